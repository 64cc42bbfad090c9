package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable is returned when a Redis command fails for reasons other than a
// missing key.
var ErrRedisUnavailable = errors.New("redis unavailable")

// DefaultRedisPrefix namespaces session keys.
const DefaultRedisPrefix = "gs"

// RedisBackend is a Backend storing binary-encoded sessions in Redis.
type RedisBackend struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisBackend creates a [RedisBackend] backed by the given Redis client. An empty
// prefix selects DefaultRedisPrefix.
func NewRedisBackend(client redis.UniversalClient, prefix string) *RedisBackend {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisBackend{
		redis:  client,
		prefix: prefix,
	}
}

func (b *RedisBackend) key(id string) string {
	return b.prefix + ":" + id
}

// Set persists s under id. A non-positive ttl stores it without expiry.
//
//	Performance: 1 Redis SET.
func (b *RedisBackend) Set(ctx context.Context, id string, s *Session, ttl time.Duration) error {
	data, err := Encode(s)
	if err != nil {
		return err
	}
	if ttl < 0 {
		ttl = 0
	}
	if err := b.redis.Set(ctx, b.key(id), data, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Get returns the session stored under id, or nil when absent. Blobs that fail to
// decode are deleted and reported.
//
//	Performance: 1 Redis GET.
func (b *RedisBackend) Get(ctx context.Context, id string) (*Session, error) {
	key := b.key(id)

	data, err := b.redis.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	s, err := Decode(data)
	if err != nil {
		_ = b.redis.Del(ctx, key).Err()
		return nil, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	return s, nil
}

// Delete removes id. Deleting a missing id is not an error.
func (b *RedisBackend) Delete(ctx context.Context, id string) error {
	if err := b.redis.Del(ctx, b.key(id)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// TTL returns the remaining lifetime of id, negative when it has none.
func (b *RedisBackend) TTL(ctx context.Context, id string) (time.Duration, error) {
	d, err := b.redis.PTTL(ctx, b.key(id)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return d, nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (b *RedisBackend) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := b.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}
