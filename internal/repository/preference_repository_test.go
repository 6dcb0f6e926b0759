package repository

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreferenceKeyScopesByUser(t *testing.T) {
	assert.Equal(t, "prefs:user-1:survey-draft", preferenceKey("user-1", "survey-draft"))
	assert.NotEqual(t, preferenceKey("user-1", "k"), preferenceKey("user-2", "k"))
}

func TestPreferenceRepositoryWrapsConnectionErrors(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	repo := NewPreferenceRepository(client, 0)

	_, err := repo.Load(context.Background(), "user-1", "draft")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrPreferenceNotFound)
	assert.Contains(t, err.Error(), "load preference draft")

	err = repo.Save(context.Background(), "user-1", "draft", []byte(`{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "save preference draft")

	err = repo.Clear(context.Background(), "user-1", "draft")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "clear preference draft")
}
