package network

import (
	"runtime"

	"github.com/moshang1314/muduo/log"
)

// EventLoopThread owns one IO goroutine and the loop living on it. The loop
// is constructed inside the goroutine so that construction and Loop share
// the same goroutine id.
type EventLoopThread struct {
	name         string
	loop         *EventLoop
	loopCh       chan *EventLoop
	initCallback ThreadInitCallback
}

func NewEventLoopThread(cb ThreadInitCallback, name string) *EventLoopThread {
	return &EventLoopThread{
		name:         name,
		loopCh:       make(chan *EventLoop, 1),
		initCallback: cb,
	}
}

// StartLoop spawns the IO goroutine and blocks until its loop exists.
func (t *EventLoopThread) StartLoop() *EventLoop {
	go t.threadFunc()
	t.loop = <-t.loopCh
	return t.loop
}

func (t *EventLoopThread) threadFunc() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	loop := NewEventLoop()
	if t.initCallback != nil {
		t.initCallback(loop)
	}
	t.loopCh <- loop

	loop.Loop()
	log.Info("event loop thread %s exited", t.name)
}
