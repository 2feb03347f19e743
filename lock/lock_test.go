package lock

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kbukum/coordkit/errors"
	redistest "github.com/kbukum/coordkit/redis/testutil"
)

func newLock(t *testing.T) (*RedisLock, func(time.Duration)) {
	t.Helper()
	client, mini := redistest.NewClient(t)
	return New(client), mini.FastForward
}

func TestRedisLock_ConcurrentAcquireHasOneWinner(t *testing.T) {
	l, _ := newLock(t)
	ctx := context.Background()

	const contenders = 16
	var (
		wins  atomic.Int32
		wg    sync.WaitGroup
		start = make(chan struct{})
	)
	for range contenders {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			ok, err := l.Acquire(ctx, "job", 10*time.Second)
			if err != nil {
				t.Errorf("Acquire failed: %v", err)
				return
			}
			if ok {
				wins.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	if wins.Load() != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins.Load())
	}

	ok, _ := l.Acquire(ctx, "job", 10*time.Second)
	if ok {
		t.Error("expected a later Acquire to fail while held")
	}
}

func TestRedisLock_ReleaseAndReacquire(t *testing.T) {
	l, _ := newLock(t)
	ctx := context.Background()

	l.Acquire(ctx, "job", time.Minute)

	released, err := l.Release(ctx, "job")
	if err != nil || !released {
		t.Fatalf("expected release to delete the key, released=%v err=%v", released, err)
	}
	released, _ = l.Release(ctx, "job")
	if released {
		t.Error("expected second release to report false")
	}

	if ok, _ := l.Acquire(ctx, "job", time.Minute); !ok {
		t.Error("expected acquire to succeed after release")
	}
}

func TestRedisLock_Expiry(t *testing.T) {
	l, fastForward := newLock(t)
	ctx := context.Background()

	l.Acquire(ctx, "job", 2*time.Second)
	if ok, _ := l.Exists(ctx, "job"); !ok {
		t.Fatal("expected lock to exist")
	}

	fastForward(3 * time.Second)
	if ok, _ := l.Exists(ctx, "job"); ok {
		t.Error("expected lock to expire")
	}
	if ok, _ := l.Acquire(ctx, "job", time.Second); !ok {
		t.Error("expected acquire after expiry to succeed")
	}
}

func TestRedisLock_SubSecondTTL(t *testing.T) {
	l, fastForward := newLock(t)
	ctx := context.Background()

	if ok, _ := l.Acquire(ctx, "fast", 250*time.Millisecond); !ok {
		t.Fatal("expected acquire to succeed")
	}
	fastForward(300 * time.Millisecond)
	if ok, _ := l.Exists(ctx, "fast"); ok {
		t.Error("expected millisecond expiry to be honoured")
	}
}

func TestRedisLock_RejectsNonPositiveTTL(t *testing.T) {
	l, _ := newLock(t)
	_, err := l.Acquire(context.Background(), "job", 0)
	if !errors.HasCode(err, errors.ErrCodeConfiguration) {
		t.Errorf("expected CONFIGURATION_ERROR, got %v", err)
	}
}

func TestRedisLock_ReleaseIsUnconditional(t *testing.T) {
	l, fastForward := newLock(t)
	ctx := context.Background()

	l.Acquire(ctx, "job", time.Second)
	fastForward(2 * time.Second)
	l.Acquire(ctx, "job", time.Minute) // a second holder

	// The first holder's late release frees the second holder's lock.
	released, _ := l.Release(ctx, "job")
	if !released {
		t.Error("expected release to delete whatever holds the key")
	}
}

func TestRedisLock_WithLock(t *testing.T) {
	l, _ := newLock(t)
	ctx := context.Background()

	var ran bool
	err := l.WithLock(ctx, "job", time.Minute, func(ctx context.Context) error {
		ran = true
		if ok, _ := l.Exists(ctx, "job"); !ok {
			t.Error("expected lock held during fn")
		}
		return nil
	})
	if err != nil || !ran {
		t.Fatalf("expected fn to run, ran=%v err=%v", ran, err)
	}
	if ok, _ := l.Exists(ctx, "job"); ok {
		t.Error("expected lock released after fn")
	}
}

func TestRedisLock_WithLockHeld(t *testing.T) {
	l, _ := newLock(t)
	ctx := context.Background()

	l.Acquire(ctx, "job", time.Minute)
	called := false
	err := l.WithLock(ctx, "job", time.Minute, func(context.Context) error {
		called = true
		return nil
	})
	if called {
		t.Error("fn must not run when the lock is held")
	}
	if !stderrors.Is(err, ErrNotAcquired) {
		t.Errorf("expected ErrNotAcquired, got %v", err)
	}
	if !errors.HasCode(err, errors.ErrCodeLockHeld) {
		t.Errorf("expected LOCK_HELD code, got %v", err)
	}
}

func TestRedisLock_WithLockReleasesOnError(t *testing.T) {
	l, _ := newLock(t)
	ctx := context.Background()
	boom := stderrors.New("boom")

	err := l.WithLock(ctx, "job", time.Minute, func(context.Context) error { return boom })
	if !stderrors.Is(err, boom) {
		t.Errorf("expected fn error returned unchanged, got %v", err)
	}
	if ok, _ := l.Exists(ctx, "job"); ok {
		t.Error("expected lock released after a failing fn")
	}
}

func TestRedisLock_WithLockReleasesOnPanic(t *testing.T) {
	l, _ := newLock(t)
	ctx := context.Background()

	func() {
		defer func() { _ = recover() }()
		l.WithLock(ctx, "job", time.Minute, func(context.Context) error { panic("boom") })
	}()

	if ok, _ := l.Exists(ctx, "job"); ok {
		t.Error("expected lock released after a panicking fn")
	}
}
