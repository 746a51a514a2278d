package network

import (
	"os"
	"time"
)

// Poller is the readiness interface the event loop drives. One poller exists
// per loop and is only called from the loop goroutine.
type Poller interface {
	// Poll blocks up to timeoutMs and returns the receive timestamp plus
	// the channels with ready events.
	Poll(timeoutMs int) (time.Time, []*Channel)
	// UpdateChannel installs or modifies the channel's interest set.
	UpdateChannel(channel *Channel)
	// RemoveChannel unregisters the channel completely.
	RemoveChannel(channel *Channel)
	HasChannel(channel *Channel) bool
	// close releases the backend resources at loop teardown.
	close()
}

// basePoller carries the fd to channel registry shared by the backends.
type basePoller struct {
	ownerLoop *EventLoop
	channels  map[int]*Channel
}

func (p *basePoller) HasChannel(channel *Channel) bool {
	ch, ok := p.channels[channel.Fd()]
	return ok && ch == channel
}

// newDefaultPoller picks the backend. MUDUO_USE_POLL switches to the poll(2)
// backend, everything else gets level-triggered epoll.
func newDefaultPoller(loop *EventLoop) Poller {
	if os.Getenv("MUDUO_USE_POLL") != "" {
		return newPollPoller(loop)
	}
	return newEpollPoller(loop)
}
