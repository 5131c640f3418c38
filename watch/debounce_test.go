package watch

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fireCounter records debouncer fires per path.
type fireCounter struct {
	mu    sync.Mutex
	fires map[string]int
}

func newFireCounter() *fireCounter {
	return &fireCounter{fires: make(map[string]int)}
}

func (f *fireCounter) fire(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fires[path]++
}

func (f *fireCounter) count(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fires[path]
}

func TestDebouncer_CoalescesBurst(t *testing.T) {
	fc := newFireCounter()
	d := newDebouncer(30*time.Millisecond, fc.fire)
	defer d.stop()

	for i := 0; i < 10; i++ {
		d.touch("/src/a.txt")
		time.Sleep(2 * time.Millisecond)
	}

	require.Eventually(t, func() bool {
		return fc.count("/src/a.txt") == 1
	}, 2*time.Second, 5*time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, fc.count("/src/a.txt"), "a single burst fires once")
}

func TestDebouncer_DistinctPathsFireIndependently(t *testing.T) {
	fc := newFireCounter()
	d := newDebouncer(10*time.Millisecond, fc.fire)
	defer d.stop()

	d.touch("/src/a.txt")
	d.touch("/src/b.txt")

	require.Eventually(t, func() bool {
		return fc.count("/src/a.txt") == 1 && fc.count("/src/b.txt") == 1
	}, 2*time.Second, 5*time.Millisecond)
}

func TestDebouncer_SeparateBurstsFireSeparately(t *testing.T) {
	fc := newFireCounter()
	d := newDebouncer(10*time.Millisecond, fc.fire)
	defer d.stop()

	d.touch("/src/a.txt")
	require.Eventually(t, func() bool {
		return fc.count("/src/a.txt") == 1
	}, 2*time.Second, 5*time.Millisecond)

	d.touch("/src/a.txt")
	require.Eventually(t, func() bool {
		return fc.count("/src/a.txt") == 2
	}, 2*time.Second, 5*time.Millisecond)
}

func TestDebouncer_StopCancelsPending(t *testing.T) {
	fc := newFireCounter()
	d := newDebouncer(20*time.Millisecond, fc.fire)

	d.touch("/src/a.txt")
	d.stop()

	time.Sleep(80 * time.Millisecond)
	assert.Zero(t, fc.count("/src/a.txt"), "stop must cancel pending fires")

	d.touch("/src/b.txt")
	time.Sleep(80 * time.Millisecond)
	assert.Zero(t, fc.count("/src/b.txt"), "touches after stop are ignored")
}
