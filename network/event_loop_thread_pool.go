package network

import (
	"fmt"

	"github.com/moshang1314/muduo/log"
)

// EventLoopThreadPool owns the IO loops behind a server. With zero threads
// the base loop doubles as the only IO loop.
type EventLoopThreadPool struct {
	baseLoop    *EventLoop
	name        string
	started     bool
	numThreads  int
	threads     []*EventLoopThread
	loops       []*EventLoop
	loadBalance LoadBalance
}

func NewEventLoopThreadPool(baseLoop *EventLoop, name string, loadBalance LoadBalance) *EventLoopThreadPool {
	if loadBalance == nil {
		loadBalance = NewLoadBalanceRoundRobin()
	}
	return &EventLoopThreadPool{
		baseLoop:    baseLoop,
		name:        name,
		loadBalance: loadBalance,
	}
}

func (pool *EventLoopThreadPool) SetThreadNum(numThreads int) {
	pool.numThreads = numThreads
}

// Start spins up the IO goroutines. cb runs once on every fresh loop before
// it starts polling; with zero threads it runs on the base loop directly.
func (pool *EventLoopThreadPool) Start(cb ThreadInitCallback) {
	if pool.started {
		log.Warn("event loop thread pool %s started twice", pool.name)
		return
	}
	pool.started = true

	for i := 0; i < pool.numThreads; i++ {
		name := fmt.Sprintf("%s%d", pool.name, i)
		t := NewEventLoopThread(cb, name)
		pool.threads = append(pool.threads, t)
		pool.loops = append(pool.loops, t.StartLoop())
	}

	if pool.numThreads == 0 && cb != nil {
		cb(pool.baseLoop)
	}
}

// GetNextLoop picks the IO loop for a new connection via the configured
// balancing strategy.
func (pool *EventLoopThreadPool) GetNextLoop(key string) *EventLoop {
	if len(pool.loops) == 0 {
		return pool.baseLoop
	}
	return pool.loops[pool.loadBalance.AllocLoop(key, len(pool.loops))]
}

func (pool *EventLoopThreadPool) GetAllLoops() []*EventLoop {
	if len(pool.loops) == 0 {
		return []*EventLoop{pool.baseLoop}
	}
	return pool.loops
}

func (pool *EventLoopThreadPool) Started() bool {
	return pool.started
}

func (pool *EventLoopThreadPool) Name() string {
	return pool.name
}
