package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aretw0/flujos/pkg/ports"
	"github.com/google/uuid"
	backend "github.com/redis/go-redis/v9"
)

// lockRetry is the polling interval while a lock is held elsewhere.
const lockRetry = 100 * time.Millisecond

// release deletes the lock only if it still holds our token.
var release = backend.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

// extend renews the lease only if it still holds our token.
var extend = backend.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
else
	return 0
end
`)

// Locker implements ports.DistributedLocker using Redis.
type Locker struct {
	client *backend.Client
	prefix string
}

// NewLocker creates a new Redis locker. An empty prefix falls back to DefaultPrefix.
func NewLocker(client *backend.Client, prefix string) *Locker {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Locker{
		client: client,
		prefix: prefix,
	}
}

// Lock acquires the lock for key using SET NX PX, polling until it is free or ctx ends.
// The lease is renewed every ttl/3 until the returned UnlockFunc runs, so ttl only bounds
// how long a crashed holder blocks the key.
func (l *Locker) Lock(ctx context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
	lockKey := l.prefix + "lock:" + key
	token := uuid.NewString()

	ticker := time.NewTicker(lockRetry)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, lockKey, token, ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("redis error acquiring lock: %w", err)
		}
		if ok {
			stop := l.keepAlive(lockKey, token, ttl)
			return func(ctx context.Context) error {
				stop()
				return release.Run(ctx, l.client, []string{lockKey}, token).Err()
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// keepAlive extends the lease on key while token owns it. The returned function stops
// the renewals and waits for the renewing goroutine to exit.
func (l *Locker) keepAlive(key, token string, ttl time.Duration) func() {
	interval := ttl / 3
	if ttl.Milliseconds() <= 0 || interval <= 0 {
		return func() {}
	}

	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
			}
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			n, err := extend.Run(ctx, l.client, []string{key}, token, ttl.Milliseconds()).Int64()
			cancel()
			if err == nil && n == 0 {
				// Lost the key: another holder owns it now.
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			<-finished
		})
	}
}
