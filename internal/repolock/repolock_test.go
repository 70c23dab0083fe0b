package repolock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestWithRepoLockReturnsResult(t *testing.T) {
	r := NewRegistry()
	boom := errors.New("boom")
	assert.NoError(t, r.WithRepoLock(context.Background(), "k", func() error { return nil }))
	assert.ErrorIs(t, r.WithRepoLock(context.Background(), "k", func() error { return boom }), boom)
	// The failed section released the lock.
	assert.NoError(t, r.WithRepoLock(context.Background(), "k", func() error { return nil }))
}

func TestWithRepoLockReleasesOnPanic(t *testing.T) {
	r := NewRegistry()
	assert.Panics(t, func() {
		_ = r.WithRepoLock(context.Background(), "k", func() error { panic("kaboom") })
	})

	done := make(chan struct{})
	go func() {
		_ = r.WithRepoLock(context.Background(), "k", func() error { return nil })
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock was not released after panic")
	}
}

func TestWithRepoLockIsExclusivePerKey(t *testing.T) {
	r := NewRegistry()
	var inside, maxInside int32
	var g errgroup.Group
	for i := 0; i < 50; i++ {
		g.Go(func() error {
			return r.WithRepoLock(context.Background(), "same", func() error {
				n := atomic.AddInt32(&inside, 1)
				for {
					old := atomic.LoadInt32(&maxInside)
					if n <= old || atomic.CompareAndSwapInt32(&maxInside, old, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&inside, -1)
				return nil
			})
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, int32(1), maxInside)
}

func TestWithRepoLockIsFIFO(t *testing.T) {
	r := NewRegistry()
	release := make(chan struct{})
	started := make(chan struct{})

	go func() {
		_ = r.WithRepoLock(context.Background(), "k", func() error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = r.WithRepoLock(context.Background(), "k", func() error {
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				return nil
			})
		}(i)
		waitForWaiters(t, r, "k", i+1)
	}
	close(release)
	wg.Wait()
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestDifferentKeysDoNotBlock(t *testing.T) {
	r := NewRegistry()
	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = r.WithRepoLock(context.Background(), "a", func() error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started
	defer close(release)

	done := make(chan struct{})
	go func() {
		_ = r.WithRepoLock(context.Background(), "b", func() error { return nil })
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("key b was blocked by key a")
	}
}

func TestCancelledWaiterLeavesQueue(t *testing.T) {
	r := NewRegistry()
	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = r.WithRepoLock(context.Background(), "k", func() error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	ran := false
	err := r.WithRepoLock(ctx, "k", func() error { ran = true; return nil })
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, ran)

	close(release)
	require.NoError(t, r.WithRepoLock(context.Background(), "k", func() error { return nil }))
}

func waitForWaiters(t *testing.T, r *Registry, key string, n int) {
	t.Helper()
	m := r.mutex(key)
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		m.mu.Lock()
		count := len(m.waiters)
		m.mu.Unlock()
		if count >= n {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("expected %d waiters on %s", n, key)
}
