package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pawtograder/office-hours/pkg/config"
)

// KeyPrefix namespaces every response cache key. Keys are grouped by tag so a
// revalidation for a tag can drop them with one pattern scan.
const KeyPrefix = "cache:"

// NewRedis returns a configured Redis client, or nil when Redis is disabled.
func NewRedis(cfg config.RedisConfig) (*redis.Client, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	return client, nil
}

// TagKey builds a cache key under tag.
func TagKey(tag string, parts ...string) string {
	if len(parts) == 0 {
		return KeyPrefix + tag
	}
	return KeyPrefix + tag + ":" + strings.Join(parts, ":")
}

var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

// TagPattern returns the SCAN pattern matching every key under tag.
func TagPattern(tag string) string {
	return KeyPrefix + globEscaper.Replace(tag) + "*"
}
