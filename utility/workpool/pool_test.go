package workpool

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestSubmitRunsEverything(t *testing.T) {
	pool := NewPool(4)

	var done atomic.Int32
	for i := 0; i < 100; i++ {
		pool.Submit(func() {
			done.Add(1)
		})
	}

	assert.True(t, waitFor(3*time.Second, func() bool {
		return done.Load() == 100
	}))
}

func TestSubmitNilIsIgnored(t *testing.T) {
	pool := NewPool(1)
	pool.Submit(nil)

	var ran atomic.Bool
	pool.Submit(func() { ran.Store(true) })
	assert.True(t, waitFor(3*time.Second, ran.Load))
}

func TestHashKeyKeepsOrder(t *testing.T) {
	pool := NewPool(4)

	var mutex sync.Mutex
	var order []int
	const numTasks = 50
	for i := 0; i < numTasks; i++ {
		i := i
		pool.Submit(func() {
			mutex.Lock()
			order = append(order, i)
			mutex.Unlock()
		}, WithWorkerHashKey(7))
	}

	require.True(t, waitFor(3*time.Second, func() bool {
		mutex.Lock()
		defer mutex.Unlock()
		return len(order) == numTasks
	}))

	mutex.Lock()
	defer mutex.Unlock()
	for i := 0; i < numTasks; i++ {
		assert.Equal(t, i, order[i])
	}
}

func TestPoolSizeFloor(t *testing.T) {
	pool := NewPool(0)
	assert.Equal(t, 1, pool.size)
}
