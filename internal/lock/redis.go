package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/atmx/hedge-engine/internal/model"
)

// unlockLua deletes the lock key only while it still holds our token, so an
// expired holder cannot release a lock someone else has since taken.
const unlockLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// Redis is a Locker shared by every engine process pointed at the same
// Redis. Locks expire after ttl in case a holder dies; Lock retries every
// retry interval for up to wait before giving up with ErrLockHeld.
type Redis struct {
	rdb      *redis.Client
	unlockSc *redis.Script
	ttl      time.Duration
	wait     time.Duration
	retry    time.Duration
}

// NewRedis creates a Redis-backed locker.
func NewRedis(rdb *redis.Client, ttl, wait time.Duration) *Redis {
	return &Redis{
		rdb:      rdb,
		unlockSc: redis.NewScript(unlockLua),
		ttl:      ttl,
		wait:     wait,
		retry:    25 * time.Millisecond,
	}
}

func redisKey(key string) string { return "hedge:lock:" + key }

// Lock takes key, polling until wait elapses.
func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	token := uuid.New().String()
	rk := redisKey(key)
	deadline := time.Now().Add(r.wait)

	for {
		ok, err := r.rdb.SetNX(ctx, rk, token, r.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("lock: acquire %s: %w", key, err)
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: %s", model.ErrLockHeld, key)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(r.retry):
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// The caller's context may already be cancelled.
			unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = r.unlockSc.Run(unlockCtx, r.rdb, []string{rk}, token).Err()
		})
	}, nil
}

var (
	_ Locker = (*Local)(nil)
	_ Locker = (*Redis)(nil)
)
