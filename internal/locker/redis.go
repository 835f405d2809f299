// Package locker provides short-lived distributed leases on Redis.  They
// keep two workers from pushing the same reservation to the channel-manager
// at once; correctness never depends on them.
package locker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only if it still holds our token, so an
// expired lease re-acquired by someone else is left alone.
var releaseScript = redis.NewScript(`
    if redis.call('GET', KEYS[1]) == ARGV[1] then
        return redis.call('DEL', KEYS[1])
    end
    return 0
`)

// RedisLocker grants leases with SET NX PX.
type RedisLocker struct {
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisLocker returns a locker whose leases expire after ttl even if the
// holder never releases them.
func NewRedisLocker(rdb *redis.Client, ttl time.Duration, prefix string) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if prefix == "" {
		prefix = "lock"
	}
	return &RedisLocker{rdb: rdb, ttl: ttl, prefix: prefix}
}

// TryLock attempts to take the lease for key without waiting.
func (l *RedisLocker) TryLock(ctx context.Context, key string) (func(), bool, error) {
	k := l.prefix + ":" + key
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, k, token, l.ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	unlock := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = releaseScript.Run(ctx, l.rdb, []string{k}, token).Err()
	}
	return unlock, true, nil
}
