package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Hoang105205/Event-Ticket-Platform/internal/domain"
)

func TestKeyedLocker_SerializesSameKey(t *testing.T) {
	t.Parallel()

	l := newKeyedLocker()
	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.Acquire(context.Background(), "ticket:1", time.Second); err != nil {
				t.Errorf("acquire: %v", err)
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			l.Release("ticket:1")
		}()
	}
	wg.Wait()

	if maxInside != 1 {
		t.Fatalf("expected at most one holder, saw %d", maxInside)
	}
	if len(l.locks) != 0 {
		t.Fatalf("expected lock table to be empty, got %d entries", len(l.locks))
	}
}

func TestKeyedLocker_DistinctKeysDoNotContend(t *testing.T) {
	t.Parallel()

	l := newKeyedLocker()
	if err := l.Acquire(context.Background(), "a", time.Second); err != nil {
		t.Fatalf("acquire a: %v", err)
	}
	defer l.Release("a")

	if err := l.Acquire(context.Background(), "b", 10*time.Millisecond); err != nil {
		t.Fatalf("acquire b while a is held: %v", err)
	}
	l.Release("b")
}

func TestKeyedLocker_Timeout(t *testing.T) {
	t.Parallel()

	l := newKeyedLocker()
	if err := l.Acquire(context.Background(), "a", time.Second); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer l.Release("a")

	err := l.Acquire(context.Background(), "a", 10*time.Millisecond)
	if !errors.Is(err, domain.ErrLockTimeout) {
		t.Fatalf("expected ErrLockTimeout, got %v", err)
	}
}

func TestKeyedLocker_ContextDeadline(t *testing.T) {
	t.Parallel()

	l := newKeyedLocker()
	if err := l.Acquire(context.Background(), "a", 0); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer l.Release("a")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := l.Acquire(ctx, "a", 0)
	if !errors.Is(err, domain.ErrLockTimeout) {
		t.Fatalf("expected ErrLockTimeout, got %v", err)
	}
}
