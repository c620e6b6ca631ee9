package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Hoang105205/Event-Ticket-Platform/internal/domain"
)

// keyedLocker hands out one exclusive lock per key. Waiting is bounded by
// the lock timeout and the caller's context; unrelated keys never contend.
type keyedLocker struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	ch   chan struct{}
	refs int
}

func newKeyedLocker() *keyedLocker {
	return &keyedLocker{locks: make(map[string]*keyedLock)}
}

func (l *keyedLocker) ref(key string) *keyedLock {
	l.mu.Lock()
	defer l.mu.Unlock()
	lk, ok := l.locks[key]
	if !ok {
		lk = &keyedLock{ch: make(chan struct{}, 1)}
		l.locks[key] = lk
	}
	lk.refs++
	return lk
}

func (l *keyedLocker) unref(key string, lk *keyedLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lk.refs--
	if lk.refs == 0 {
		delete(l.locks, key)
	}
}

// Acquire blocks until key is held, timeout elapses or ctx is done.
func (l *keyedLocker) Acquire(ctx context.Context, key string, timeout time.Duration) error {
	lk := l.ref(key)

	select {
	case lk.ch <- struct{}{}:
		return nil
	default:
	}

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case lk.ch <- struct{}{}:
		return nil
	case <-expired:
		l.unref(key, lk)
		return fmt.Errorf("lock %s: %w", key, domain.ErrLockTimeout)
	case <-ctx.Done():
		l.unref(key, lk)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("lock %s: %w", key, domain.ErrLockTimeout)
		}
		return ctx.Err()
	}
}

func (l *keyedLocker) Release(key string) {
	l.mu.Lock()
	lk, ok := l.locks[key]
	l.mu.Unlock()
	if !ok {
		return
	}
	<-lk.ch
	l.unref(key, lk)
}
