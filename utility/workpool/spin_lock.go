package workpool

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// spinLock is a Locker for the short critical sections of a worker queue.
type spinLock uint32

func NewSpinLock() sync.Locker {
	return new(spinLock)
}

func (sl *spinLock) Lock() {
	for !atomic.CompareAndSwapUint32((*uint32)(sl), 0, 1) {
		runtime.Gosched()
	}
}

func (sl *spinLock) Unlock() {
	atomic.StoreUint32((*uint32)(sl), 0)
}
