package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisCounterPrefix = "adgate:rl:cnt:"
	redisBlockPrefix   = "adgate:rl:block:"
)

// redisIncrScript increments a window counter and re-arms its expiry in one
// atomic server-side step, so a counter key can never outlive its TTL even if
// the client dies mid-operation.
var redisIncrScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
redis.call('PEXPIRE', KEYS[1], ARGV[1])
return count
`)

// RedisStore is a CounterStore backed by a shared Redis instance, letting
// multiple gateway replicas enforce one quota. Redis INCR and per-key TTLs
// give atomic increments and expiry natively; network failures propagate to
// the caller as infrastructure errors.
type RedisStore struct {
	client *redis.Client
}

// RedisOptions configures the Redis connection.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// NewRedisStore connects to Redis and verifies the connection with a ping.
func NewRedisStore(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	if opts.Addr == "" {
		return nil, errors.New("redis address is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
		PoolSize: opts.PoolSize,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", opts.Addr, err)
	}

	return &RedisStore{client: client}, nil
}

// NewRedisStoreFromClient wraps an existing client; used by tests.
func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Increment(ctx context.Context, identity string, windowStart int64, ttl time.Duration) (int64, error) {
	key := redisCounterPrefix + identity + ":" + strconv.FormatInt(windowStart, 10)

	count, err := redisIncrScript.Run(ctx, s.client, []string{key}, ttl.Milliseconds()).Int64()
	if err != nil {
		return 0, fmt.Errorf("redis incr: %w", err)
	}
	return count, nil
}

func (s *RedisStore) GetBlock(ctx context.Context, identity string) (time.Time, bool, error) {
	val, err := s.client.Get(ctx, redisBlockPrefix+identity).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("redis get block: %w", err)
	}

	unix, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("malformed block marker %q: %w", val, err)
	}
	return time.Unix(unix, 0), true, nil
}

func (s *RedisStore) SetBlock(ctx context.Context, identity string, until time.Time, ttl time.Duration) error {
	err := s.client.Set(ctx, redisBlockPrefix+identity, strconv.FormatInt(until.Unix(), 10), ttl).Err()
	if err != nil {
		return fmt.Errorf("redis set block: %w", err)
	}
	return nil
}

func (s *RedisStore) ClearBlock(ctx context.Context, identity string) error {
	if err := s.client.Del(ctx, redisBlockPrefix+identity).Err(); err != nil {
		return fmt.Errorf("redis clear block: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
