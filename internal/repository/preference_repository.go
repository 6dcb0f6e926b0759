package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrPreferenceNotFound is returned by Load when nothing is stored.
var ErrPreferenceNotFound = errors.New("preference not found")

// PreferenceRepository stores small per-user JSON documents in Redis.
type PreferenceRepository struct {
	client *redis.Client
	ttl    time.Duration
}

// NewPreferenceRepository constructs the repository. A zero ttl keeps entries forever.
func NewPreferenceRepository(client *redis.Client, ttl time.Duration) *PreferenceRepository {
	return &PreferenceRepository{client: client, ttl: ttl}
}

func preferenceKey(userID, key string) string {
	return "prefs:" + userID + ":" + key
}

// Load returns the stored document.
func (r *PreferenceRepository) Load(ctx context.Context, userID, key string) (json.RawMessage, error) {
	raw, err := r.client.Get(ctx, preferenceKey(userID, key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrPreferenceNotFound
		}
		return nil, fmt.Errorf("load preference %s: %w", key, err)
	}
	return json.RawMessage(raw), nil
}

// Save replaces the stored document.
func (r *PreferenceRepository) Save(ctx context.Context, userID, key string, value json.RawMessage) error {
	if err := r.client.Set(ctx, preferenceKey(userID, key), []byte(value), r.ttl).Err(); err != nil {
		return fmt.Errorf("save preference %s: %w", key, err)
	}
	return nil
}

// Clear deletes the stored document.
func (r *PreferenceRepository) Clear(ctx context.Context, userID, key string) error {
	if err := r.client.Del(ctx, preferenceKey(userID, key)).Err(); err != nil {
		return fmt.Errorf("clear preference %s: %w", key, err)
	}
	return nil
}
