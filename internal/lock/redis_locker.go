package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrLockTimeout = errors.New("lock: could not acquire lock")

// compare-and-delete so an expired holder cannot release someone else's lock
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a Locker shared by every instance pointing at the same Redis.
type RedisLocker struct {
	rdb       *redis.Client
	prefix    string
	ttl       time.Duration
	retryWait time.Duration
}

func NewRedisLocker(rdb *redis.Client, prefix string, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	if prefix == "" {
		prefix = "lock:"
	}
	return &RedisLocker{rdb: rdb, prefix: prefix, ttl: ttl, retryWait: 25 * time.Millisecond}
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := l.prefix + key
	token := uuid.NewString()

	for {
		ok, err := l.rdb.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("lock %s: %w", key, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w %s: %v", ErrLockTimeout, key, ctx.Err())
		case <-time.After(l.retryWait):
		}
	}

	return func() {
		// release must survive a cancelled request context
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = releaseScript.Run(releaseCtx, l.rdb, []string{redisKey}, token).Err()
	}, nil
}
