package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisKeyPrefix = "codebuddy:"

// Redis shares the store between processes, e.g. a popup started separately
// from the page context.
type Redis struct {
	client redis.UniversalClient
	origin string
	ttl    time.Duration
	log    *zap.Logger
}

// NewRedis wraps client and verifies the connection. A zero ttl keeps keys
// until they are overwritten or deleted.
func NewRedis(ctx context.Context, client redis.UniversalClient, origin string, ttl time.Duration, logger *zap.Logger) (*Redis, error) {
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return &Redis{
		client: client,
		origin: origin,
		ttl:    ttl,
		log:    logger.Named("store.redis"),
	}, nil
}

func (r *Redis) key(key string) string {
	return redisKeyPrefix + scopedKey(r.origin, key)
}

func (r *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.client.Get(ctx, r.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return v, true, nil
}

func (r *Redis) Set(ctx context.Context, key, value string) error {
	if err := r.client.Set(ctx, r.key(key), value, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	r.log.Debug("Stored value", zap.String("key", key), zap.Int("bytes", len(value)))
	return nil
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// Client exposes the underlying connection so the bus bridge can share it.
func (r *Redis) Client() redis.UniversalClient { return r.client }

func (r *Redis) Close() error { return r.client.Close() }
