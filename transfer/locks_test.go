package transfer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPathLocks_SerializesSamePath(t *testing.T) {
	l := newPathLocks()
	ctx := context.Background()

	require.NoError(t, l.Acquire(ctx, "/data/a"))

	acquired := make(chan struct{})
	go func() {
		_ = l.Acquire(ctx, "/data/a")
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("second acquire succeeded while the path was held")
	case <-time.After(20 * time.Millisecond):
	}

	l.Release("/data/a")

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("waiter did not acquire after release")
	}
	l.Release("/data/a")
}

func TestPathLocks_DistinctPathsIndependent(t *testing.T) {
	l := newPathLocks()
	ctx := context.Background()

	require.NoError(t, l.Acquire(ctx, "/data/a"))
	require.NoError(t, l.Acquire(ctx, "/data/b"))

	l.Release("/data/a")
	l.Release("/data/b")
}

func TestPathLocks_CancelledWaiter(t *testing.T) {
	l := newPathLocks()
	require.NoError(t, l.Acquire(context.Background(), "/data/a"))

	ctx, cancel := context.WithCancel(context.Background())
	waited := make(chan error, 1)
	go func() {
		waited <- l.Acquire(ctx, "/data/a")
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-waited:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled waiter did not return")
	}
	l.Release("/data/a")
}

func TestPathLocks_MutualExclusionUnderContention(t *testing.T) {
	l := newPathLocks()
	ctx := context.Background()

	var (
		mu      sync.Mutex
		holders int
		maxSeen int
	)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				if err := l.Acquire(ctx, "/shared"); err != nil {
					return
				}
				mu.Lock()
				holders++
				if holders > maxSeen {
					maxSeen = holders
				}
				mu.Unlock()

				time.Sleep(time.Microsecond)

				mu.Lock()
				holders--
				mu.Unlock()
				l.Release("/shared")
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen, "lock admitted more than one holder at a time")
}
