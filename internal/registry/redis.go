package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRegistry is the production Registry implementation, backed by a
// pooled go-redis client.
//
// Grounded on the teacher's internal/cache.Cache (connection pool sizing,
// dial/read/write timeouts, retry backoff), extended here with the Redis
// set and list primitives (SADD/SREM/SMEMBERS, RPUSH/LTRIM/LRANGE) the
// Registry Adapter contract needs that a pure K/V cache didn't.
type RedisRegistry struct {
	client *redis.Client
}

// Config mirrors the teacher's cache.Config shape.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisRegistry connects to Redis with the teacher's pool/timeout
// settings and verifies connectivity with a bounded ping.
func NewRedisRegistry(cfg Config) (*RedisRegistry, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,

		PoolSize:        25,
		MinIdleConns:    5,
		MaxIdleConns:    10,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 1 * time.Minute,

		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,

		MaxRetries:      3,
		MinRetryBackoff: 8 * time.Millisecond,
		MaxRetryBackoff: 512 * time.Millisecond,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("registry: failed to ping redis: %w", err)
	}

	return &RedisRegistry{client: client}, nil
}

func (r *RedisRegistry) Close() error {
	return r.client.Close()
}

func (r *RedisRegistry) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("registry: set %s: %w", key, err)
	}
	return nil
}

func (r *RedisRegistry) Get(ctx context.Context, key string) (string, error) {
	val, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("registry: get %s: %w", key, err)
	}
	return val, nil
}

func (r *RedisRegistry) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("registry: delete %s: %w", key, err)
	}
	return nil
}

func (r *RedisRegistry) SetAdd(ctx context.Context, key, member string) error {
	if err := r.client.SAdd(ctx, key, member).Err(); err != nil {
		return fmt.Errorf("registry: sadd %s: %w", key, err)
	}
	return nil
}

func (r *RedisRegistry) SetRemove(ctx context.Context, key, member string) error {
	if err := r.client.SRem(ctx, key, member).Err(); err != nil {
		return fmt.Errorf("registry: srem %s: %w", key, err)
	}
	return nil
}

func (r *RedisRegistry) SetMembers(ctx context.Context, key string) ([]string, error) {
	members, err := r.client.SMembers(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("registry: smembers %s: %w", key, err)
	}
	return members, nil
}

func (r *RedisRegistry) ListPush(ctx context.Context, key, value string) error {
	if err := r.client.RPush(ctx, key, value).Err(); err != nil {
		return fmt.Errorf("registry: rpush %s: %w", key, err)
	}
	return nil
}

func (r *RedisRegistry) ListTrim(ctx context.Context, key string, start, stop int64) error {
	if err := r.client.LTrim(ctx, key, start, stop).Err(); err != nil {
		return fmt.Errorf("registry: ltrim %s: %w", key, err)
	}
	return nil
}

func (r *RedisRegistry) ListRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	vals, err := r.client.LRange(ctx, key, start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("registry: lrange %s: %w", key, err)
	}
	return vals, nil
}
