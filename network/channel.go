package network

import (
	"runtime"
	"time"

	"github.com/moshang1314/muduo/log"
	"golang.org/x/sys/unix"
)

const (
	noneEvent  uint32 = 0
	readEvent  uint32 = unix.EPOLLIN | unix.EPOLLPRI
	writeEvent uint32 = unix.EPOLLOUT
)

// registration state of a channel inside its poller
const (
	kNew     = -1
	kAdded   = 1
	kDeleted = 2
)

type ReadEventCallback func(receiveTime time.Time)

type EventCallback func()

// Channel binds one fd to its interest mask, the events returned by the last
// poll and the callbacks that consume them. It never owns the fd and is only
// touched from its loop's goroutine.
type Channel struct {
	loop    *EventLoop
	fd      int
	events  uint32
	revents uint32
	index   int

	tied bool
	tie  interface{}

	readCallback  ReadEventCallback
	writeCallback EventCallback
	closeCallback EventCallback
	errorCallback EventCallback
}

func NewChannel(loop *EventLoop, fd int) *Channel {
	return &Channel{
		loop:  loop,
		fd:    fd,
		index: kNew,
	}
}

func (c *Channel) SetReadCallback(cb ReadEventCallback) {
	c.readCallback = cb
}

func (c *Channel) SetWriteCallback(cb EventCallback) {
	c.writeCallback = cb
}

func (c *Channel) SetCloseCallback(cb EventCallback) {
	c.closeCallback = cb
}

func (c *Channel) SetErrorCallback(cb EventCallback) {
	c.errorCallback = cb
}

// Tie pins owner across event dispatch. The connection that owns this
// channel registers itself here so a teardown queued on another loop cannot
// reclaim it while one of its callbacks is still running.
func (c *Channel) Tie(owner interface{}) {
	c.tie = owner
	c.tied = true
}

func (c *Channel) Fd() int {
	return c.fd
}

func (c *Channel) Events() uint32 {
	return c.events
}

// SetRevents is called by the poller with the ready events of the last wait.
func (c *Channel) SetRevents(revents uint32) {
	c.revents = revents
}

func (c *Channel) Index() int {
	return c.index
}

func (c *Channel) SetIndex(index int) {
	c.index = index
}

func (c *Channel) IsNoneEvent() bool {
	return c.events == noneEvent
}

func (c *Channel) IsWriting() bool {
	return c.events&writeEvent != 0
}

func (c *Channel) IsReading() bool {
	return c.events&readEvent != 0
}

func (c *Channel) EnableReading() {
	c.events |= readEvent
	c.update()
}

func (c *Channel) DisableReading() {
	c.events &^= readEvent
	c.update()
}

func (c *Channel) EnableWriting() {
	c.events |= writeEvent
	c.update()
}

func (c *Channel) DisableWriting() {
	c.events &^= writeEvent
	c.update()
}

func (c *Channel) DisableAll() {
	c.events = noneEvent
	c.update()
}

func (c *Channel) OwnerLoop() *EventLoop {
	return c.loop
}

func (c *Channel) update() {
	c.loop.UpdateChannel(c)
}

// Remove unregisters the channel from the poller. The interest mask must be
// empty by the time this is called.
func (c *Channel) Remove() {
	c.loop.RemoveChannel(c)
}

// HandleEvent dispatches the ready events to the callbacks. When tied, a
// local reference to the owner is held for the whole dispatch.
func (c *Channel) HandleEvent(receiveTime time.Time) {
	if c.tied {
		guard := c.tie
		if guard == nil {
			return
		}
		c.handleEventWithGuard(receiveTime)
		runtime.KeepAlive(guard)
		return
	}
	c.handleEventWithGuard(receiveTime)
}

func (c *Channel) handleEventWithGuard(receiveTime time.Time) {
	log.Debug("channel handleEvent fd=%d revents=%d", c.fd, c.revents)

	// peer hung up and left nothing to read
	if c.revents&unix.EPOLLHUP != 0 && c.revents&unix.EPOLLIN == 0 {
		if c.closeCallback != nil {
			c.closeCallback()
		}
	}

	if c.revents&unix.EPOLLERR != 0 {
		if c.errorCallback != nil {
			c.errorCallback()
		}
	}

	if c.revents&(unix.EPOLLIN|unix.EPOLLPRI|unix.EPOLLRDHUP) != 0 {
		if c.readCallback != nil {
			c.readCallback(receiveTime)
		}
	}

	if c.revents&unix.EPOLLOUT != 0 {
		if c.writeCallback != nil {
			c.writeCallback()
		}
	}
}
