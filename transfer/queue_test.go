package transfer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_FIFO(t *testing.T) {
	q := newQueue()
	q.push(&Unit{ID: "a"})
	q.push(&Unit{ID: "b"})
	q.push(&Unit{ID: "c"})

	var got []string
	for i := 0; i < 3; i++ {
		u, ok := q.pop(context.Background())
		require.True(t, ok)
		got = append(got, u.ID)
	}
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestQueue_PopBlocksUntilPush(t *testing.T) {
	q := newQueue()

	popped := make(chan *Unit, 1)
	go func() {
		u, _ := q.pop(context.Background())
		popped <- u
	}()

	select {
	case <-popped:
		t.Fatal("pop returned before anything was pushed")
	case <-time.After(20 * time.Millisecond):
	}

	q.push(&Unit{ID: "late"})

	select {
	case u := <-popped:
		require.NotNil(t, u)
		assert.Equal(t, "late", u.ID)
	case <-time.After(time.Second):
		t.Fatal("pop did not wake after push")
	}
}

func TestQueue_CloseDrainsThenStops(t *testing.T) {
	q := newQueue()
	q.push(&Unit{ID: "a"})
	q.close()

	u, ok := q.pop(context.Background())
	require.True(t, ok)
	assert.Equal(t, "a", u.ID)

	_, ok = q.pop(context.Background())
	assert.False(t, ok)

	assert.False(t, q.push(&Unit{ID: "b"}), "push after close must be refused")
}

func TestQueue_CancelUnblocksPop(t *testing.T) {
	q := newQueue()
	ctx, cancel := context.WithCancel(context.Background())

	popped := make(chan bool, 1)
	go func() {
		_, ok := q.pop(ctx)
		popped <- ok
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()
	q.wake()

	select {
	case ok := <-popped:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("pop did not observe cancellation")
	}
}

func TestQueue_Drain(t *testing.T) {
	q := newQueue()
	q.push(&Unit{ID: "a"})
	q.push(&Unit{ID: "b"})

	left := q.drain()
	require.Len(t, left, 2)
	assert.Equal(t, "a", left[0].ID)
	assert.Equal(t, "b", left[1].ID)

	q.close()
	_, ok := q.pop(context.Background())
	assert.False(t, ok)
}

func TestQueue_ConcurrentProducersConsumers(t *testing.T) {
	q := newQueue()
	const producers, perProducer = 4, 50

	var pwg sync.WaitGroup
	for p := 0; p < producers; p++ {
		pwg.Add(1)
		go func() {
			defer pwg.Done()
			for i := 0; i < perProducer; i++ {
				q.push(&Unit{ID: "u"})
			}
		}()
	}
	go func() {
		pwg.Wait()
		q.close()
	}()

	var (
		mu    sync.Mutex
		count int
		cwg   sync.WaitGroup
	)
	for c := 0; c < 3; c++ {
		cwg.Add(1)
		go func() {
			defer cwg.Done()
			for {
				if _, ok := q.pop(context.Background()); !ok {
					return
				}
				mu.Lock()
				count++
				mu.Unlock()
			}
		}()
	}
	cwg.Wait()

	assert.Equal(t, producers*perProducer, count, "every pushed unit must be popped exactly once")
}
