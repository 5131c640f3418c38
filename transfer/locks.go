package transfer

import (
	"context"
	"sync"
)

// pathLocks serializes transfers per local path: at most one in-flight
// unit may touch a given path at a time, no matter how many workers run.
type pathLocks struct {
	mu   sync.Mutex
	held map[string]chan struct{}
}

func newPathLocks() *pathLocks {
	return &pathLocks{held: make(map[string]chan struct{})}
}

// Acquire blocks until the path is free or ctx is cancelled.
func (l *pathLocks) Acquire(ctx context.Context, path string) error {
	for {
		l.mu.Lock()
		ch, taken := l.held[path]
		if !taken {
			l.held[path] = make(chan struct{})
			l.mu.Unlock()
			return nil
		}
		l.mu.Unlock()

		select {
		case <-ch:
			// Holder released; race for it again.
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Release frees the path and wakes every waiter.
func (l *pathLocks) Release(path string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if ch, taken := l.held[path]; taken {
		delete(l.held, path)
		close(ch)
	}
}
