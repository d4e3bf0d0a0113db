package store

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"

	"github.com/sells-group/artist-check/internal/config"
)

// RedisStore implements Store on a redis server. Keys are namespaced with a
// prefix so one server can hold several deployments.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedis connects to the server described by cfg and pings it.
func NewRedis(ctx context.Context, cfg config.RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 1,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "redis: ping")
	}
	return NewRedisFromClient(client, cfg.Prefix), nil
}

// NewRedisFromClient wraps an existing client.
func NewRedisFromClient(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(k string) string { return s.prefix + k }

// Migrate is a no-op; redis needs no schema.
func (s *RedisStore) Migrate(context.Context) error { return nil }

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "redis: get %s", key)
	}
	return value, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	err := s.client.Set(ctx, s.key(key), value, 0).Err()
	return eris.Wrapf(err, "redis: set %s", key)
}

func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = s.key(k)
	}
	return eris.Wrap(s.client.Del(ctx, full...).Err(), "redis: delete")
}
