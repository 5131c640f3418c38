package transfer

import (
	"context"
	"sync"
)

// queue is an unbounded FIFO of transfer units shared by the scheduler
// and the worker pool. Closing it signals that no further units will
// arrive; workers drain what remains and exit.
type queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	units  []*Unit
	closed bool
}

func newQueue() *queue {
	q := &queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// push appends a unit. Returns false once the queue is closed.
func (q *queue) push(u *Unit) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.units = append(q.units, u)
	q.cond.Signal()
	return true
}

// pop blocks until a unit is available, the queue is closed and empty,
// or ctx is cancelled. The caller must arrange for wake to be called on
// cancellation; pop rechecks ctx each time it wakes.
func (q *queue) pop(ctx context.Context) (*Unit, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.units) == 0 {
		if q.closed || ctx.Err() != nil {
			return nil, false
		}
		q.cond.Wait()
	}
	if ctx.Err() != nil {
		return nil, false
	}
	u := q.units[0]
	q.units = q.units[1:]
	return u, true
}

// close marks the queue complete and wakes all waiters.
func (q *queue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
}

// wake unblocks waiting poppers so they can observe cancellation. The
// lock is taken so a popper between its ctx check and Wait cannot miss
// the broadcast.
func (q *queue) wake() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.cond.Broadcast()
}

// drain removes and returns everything still queued. Used after a
// cancelled run to mark unstarted units pending.
func (q *queue) drain() []*Unit {
	q.mu.Lock()
	defer q.mu.Unlock()
	left := q.units
	q.units = nil
	return left
}
