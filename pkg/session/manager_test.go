package session_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/flujos/pkg/ports"
	"github.com/aretw0/flujos/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_SerializesSameKey(t *testing.T) {
	mgr := session.NewManager()
	ctx := context.Background()

	var inside, maxInside int32
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := mgr.WithLock(ctx, "whatsapp:569", func(ctx context.Context) error {
				n := atomic.AddInt32(&inside, 1)
				for {
					m := atomic.LoadInt32(&maxInside)
					if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
						break
					}
				}
				// Read-modify-write with simulated IO would lose updates without the lock.
				v := counter
				time.Sleep(time.Millisecond)
				counter = v + 1
				atomic.AddInt32(&inside, -1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 20, counter)
	assert.Equal(t, int32(1), maxInside)
	assert.Equal(t, 0, mgr.Active(), "locks must be released after use")
}

func TestManager_DifferentKeysRunInParallel(t *testing.T) {
	mgr := session.NewManager()
	ctx := context.Background()

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = mgr.WithLock(ctx, "web:a", func(ctx context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	done := make(chan struct{})
	go func() {
		_ = mgr.WithLock(ctx, "web:b", func(ctx context.Context) error { return nil })
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("a different key was blocked by an unrelated conversation")
	}
	close(release)
}

func TestManager_LockLifecycle(t *testing.T) {
	mgr := session.NewManager()
	ctx := context.Background()
	for i := 0; i < 10000; i++ {
		_ = mgr.WithLock(ctx, fmt.Sprintf("web:%d", i), func(ctx context.Context) error { return nil })
	}
	if n := mgr.Active(); n != 0 {
		t.Errorf("Memory Leak Detected: %d locks remaining", n)
	}
}

func TestManager_PropagatesError(t *testing.T) {
	mgr := session.NewManager()
	boom := errors.New("boom")
	err := mgr.WithLock(context.Background(), "k", func(ctx context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
}

type fakeLocker struct {
	mu       sync.Mutex
	locked   []string
	unlocked int
	ttl      time.Duration
	err      error
}

func (f *fakeLocker) Lock(ctx context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.locked = append(f.locked, key)
	f.ttl = ttl
	return func(ctx context.Context) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.unlocked++
		return nil
	}, nil
}

func TestManager_DistributedLocker(t *testing.T) {
	locker := &fakeLocker{}
	mgr := session.NewManager(session.WithLocker(locker), session.WithLockTTL(5*time.Second))

	ran := false
	err := mgr.WithLock(context.Background(), "instagram:u", func(ctx context.Context) error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Equal(t, []string{"instagram:u"}, locker.locked)
	assert.Equal(t, 1, locker.unlocked)
	assert.Equal(t, 5*time.Second, locker.ttl)

	locker.err = errors.New("redis down")
	err = mgr.WithLock(context.Background(), "instagram:u", func(ctx context.Context) error {
		t.Fatal("fn must not run without the distributed lock")
		return nil
	})
	assert.ErrorContains(t, err, "redis down")
}
