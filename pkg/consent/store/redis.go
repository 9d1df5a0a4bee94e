package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"

	"assent/pkg/platform/sentinel"
)

const defaultKeyPrefix = "assent:"

// redisStore is the Redis-backed driver. This is the recommended driver for
// distributed deployments where multiple instances share consent state.
type redisStore struct {
	client *redis.Client
	prefix string

	// ownsClient controls whether Close tears down the connection. Clients
	// passed in via NewRedis have their lifecycle managed externally.
	ownsClient bool
}

func openRedis(ctx context.Context, cfg Config) (Store, error) {
	if strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil, errors.New("redis address is required")
	}

	var opts *redis.Options
	if strings.Contains(cfg.RedisAddr, "://") {
		parsed, err := redis.ParseURL(cfg.RedisAddr)
		if err != nil {
			return nil, fmt.Errorf("parse redis URL: %w", err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &redisStore{
		client:     client,
		prefix:     keyPrefix(cfg.KeyPrefix),
		ownsClient: true,
	}, nil
}

// NewRedis wraps an existing client. The client lifecycle stays with the
// caller; Close will not tear it down.
func NewRedis(client *redis.Client, prefix string) Store {
	return &redisStore{client: client, prefix: keyPrefix(prefix)}
}

func keyPrefix(p string) string {
	if strings.TrimSpace(p) == "" {
		return defaultKeyPrefix
	}
	return p
}

func (s *redisStore) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return v, nil
}

func (s *redisStore) Set(ctx context.Context, key string, value []byte) error {
	// No TTL at the storage layer; record expiry is handled above.
	if err := s.client.Set(ctx, s.prefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (s *redisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis delete: %w", err)
	}
	return nil
}

func (s *redisStore) Has(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, s.prefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n > 0, nil
}

func (s *redisStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	match := s.prefix + prefix + "*"
	var (
		keys   []string
		cursor uint64
	)
	for {
		batch, next, err := s.client.Scan(ctx, cursor, match, 256).Result()
		if err != nil {
			return nil, fmt.Errorf("redis scan: %w", err)
		}
		for _, k := range batch {
			keys = append(keys, strings.TrimPrefix(k, s.prefix))
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *redisStore) Close() error {
	if !s.ownsClient {
		return nil
	}
	return s.client.Close()
}
