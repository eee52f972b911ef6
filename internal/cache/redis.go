package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"marketgrid/internal/market"

	"github.com/redis/go-redis/v9"
)

// RedisStore persists entries in Redis so multiple instances share one
// cache. Redis owns expiry through per-key TTLs.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore wraps an existing client. keyPrefix namespaces this
// deployment's keys.
func NewRedisStore(client *redis.Client, keyPrefix string) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = "marketgrid"
	}
	return &RedisStore{client: client, prefix: keyPrefix + ":"}
}

func (r *RedisStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	raw, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, market.WrapError(market.ErrUpstreamUnavailable, "", err, "redis get failed")
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		// A corrupt entry behaves like a miss; the next write replaces it.
		return Entry{}, false, nil
	}
	return e, true, nil
}

func (r *RedisStore) Set(ctx context.Context, key string, entry Entry, ttl time.Duration) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.prefix+key, raw, ttl).Err(); err != nil {
		return market.WrapError(market.ErrUpstreamUnavailable, "", err, "redis set failed")
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		return market.WrapError(market.ErrUpstreamUnavailable, "", err, "redis del failed")
	}
	return nil
}

func (r *RedisStore) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	var (
		cursor  uint64
		deleted int
	)
	pattern := r.prefix + prefix + "*"
	for {
		keys, next, err := r.client.Scan(ctx, cursor, pattern, 256).Result()
		if err != nil {
			return deleted, market.WrapError(market.ErrUpstreamUnavailable, "", err, "redis scan failed")
		}
		if len(keys) > 0 {
			n, err := r.client.Del(ctx, keys...).Result()
			if err != nil {
				return deleted, market.WrapError(market.ErrUpstreamUnavailable, "", err, "redis del failed")
			}
			deleted += int(n)
		}
		cursor = next
		if cursor == 0 {
			return deleted, nil
		}
	}
}
