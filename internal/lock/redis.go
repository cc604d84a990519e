package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only when it still holds the caller's value
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// NewRedisClient creates a client from a redis:// URL
func NewRedisClient(url string) (redis.UniversalClient, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

// CheckRedisConnection pings the server with a short timeout
func CheckRedisConnection(client redis.UniversalClient) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("error connecting to redis: %w", err)
	}
	return nil
}

// RedisLocker keeps the lock as a redis key with an expiry
type RedisLocker struct {
	client redis.UniversalClient
	key    string
}

// NewRedisLocker creates a locker for key
func NewRedisLocker(client redis.UniversalClient, key string) *RedisLocker {
	return &RedisLocker{client: client, key: key}
}

// Acquire runs SET key holder NX with the ttl
func (l *RedisLocker) Acquire(ctx context.Context, holder string, ttl time.Duration) (bool, string, error) {
	// two attempts: the key may expire between SET NX and GET
	for attempt := 0; attempt < 2; attempt++ {
		ok, err := l.client.SetNX(ctx, l.key, holder, ttl).Result()
		if err != nil {
			return false, "", fmt.Errorf("failed to acquire lock: %w", err)
		}
		if ok {
			return true, holder, nil
		}

		current, err := l.client.Get(ctx, l.key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return false, "", fmt.Errorf("failed to read lock holder: %w", err)
		}
		return current == holder, current, nil
	}
	return false, "", nil
}

// Release deletes the key if holder owns it
func (l *RedisLocker) Release(ctx context.Context, holder string) error {
	n, err := releaseScript.Run(ctx, l.client, []string{l.key}, holder).Int()
	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	if n == 0 {
		return ErrNotHeld
	}
	return nil
}

// Current returns the holder and expiry of the key
func (l *RedisLocker) Current(ctx context.Context) (*Info, error) {
	holder, err := l.client.Get(ctx, l.key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read lock: %w", err)
	}

	info := &Info{Holder: holder}
	if ttl, err := l.client.PTTL(ctx, l.key).Result(); err == nil && ttl > 0 {
		info.ExpiresAt = time.Now().Add(ttl).UTC()
	}
	return info, nil
}

// Close closes the client
func (l *RedisLocker) Close() error {
	return l.client.Close()
}
