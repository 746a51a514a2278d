//go:build linux

package network

import (
	"time"

	"github.com/moshang1314/muduo/log"
	"golang.org/x/sys/unix"
)

const kInitEventListSize = 16

// EpollPoller is the level-triggered epoll backend. The connection code
// relies on repeat notification until an fd is drained, so EPOLLET is never
// set.
type EpollPoller struct {
	basePoller
	epollFd int
	events  []unix.EpollEvent
}

func newEpollPoller(loop *EventLoop) *EpollPoller {
	epollFd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		log.Fatal("epoll_create1 error : %v", err)
	}
	return &EpollPoller{
		basePoller: basePoller{
			ownerLoop: loop,
			channels:  make(map[int]*Channel),
		},
		epollFd: epollFd,
		events:  make([]unix.EpollEvent, kInitEventListSize),
	}
}

func (p *EpollPoller) Poll(timeoutMs int) (time.Time, []*Channel) {
	log.Debug("poll fd total count:%d", len(p.channels))

	numEvents, err := unix.EpollWait(p.epollFd, p.events, timeoutMs)
	now := time.Now()

	if err != nil {
		if err != unix.EINTR {
			log.Error("epoll_wait error : %v", err)
		}
		return now, nil
	}
	if numEvents == 0 {
		log.Debug("epoll_wait timeout, nothing happened")
		return now, nil
	}

	log.Debug("%d events happened of %d registered fds", numEvents, len(p.channels))
	activeChannels := p.fillActiveChannels(numEvents)
	if numEvents == len(p.events) {
		// saturated, grab more events next round
		p.events = make([]unix.EpollEvent, len(p.events)*2)
	}
	return now, activeChannels
}

func (p *EpollPoller) fillActiveChannels(numEvents int) []*Channel {
	activeChannels := make([]*Channel, 0, numEvents)
	for i := 0; i < numEvents; i++ {
		channel, ok := p.channels[int(p.events[i].Fd)]
		if !ok {
			continue
		}
		channel.SetRevents(p.events[i].Events)
		activeChannels = append(activeChannels, channel)
	}
	return activeChannels
}

func (p *EpollPoller) UpdateChannel(channel *Channel) {
	index := channel.Index()
	log.Debug("update channel fd=%d events=%d index=%d", channel.Fd(), channel.Events(), index)

	if index == kNew || index == kDeleted {
		if index == kNew {
			p.channels[channel.Fd()] = channel
		}
		// a deleted channel stays in the map, only the kernel forgot it
		channel.SetIndex(kAdded)
		p.update(unix.EPOLL_CTL_ADD, channel)
	} else {
		if channel.IsNoneEvent() {
			p.update(unix.EPOLL_CTL_DEL, channel)
			channel.SetIndex(kDeleted)
		} else {
			p.update(unix.EPOLL_CTL_MOD, channel)
		}
	}
}

func (p *EpollPoller) RemoveChannel(channel *Channel) {
	fd := channel.Fd()
	ch, ok := p.channels[fd]
	if !ok || ch != channel {
		log.Error("remove channel fd=%d not registered with this poller", fd)
		return
	}
	delete(p.channels, fd)

	if channel.Index() == kAdded {
		p.update(unix.EPOLL_CTL_DEL, channel)
	}
	channel.SetIndex(kNew)
}

// update applies one epoll_ctl operation. ADD and MOD failures break the
// channel state invariant and are fatal, DEL failures are only logged.
func (p *EpollPoller) update(operation int, channel *Channel) {
	event := &unix.EpollEvent{
		Events: channel.Events(),
		Fd:     int32(channel.Fd()),
	}
	if err := unix.EpollCtl(p.epollFd, operation, channel.Fd(), event); err != nil {
		if operation == unix.EPOLL_CTL_DEL {
			log.Error("epoll_ctl del fd=%d error : %v", channel.Fd(), err)
		} else {
			log.Fatal("epoll_ctl add/mod fd=%d error : %v", channel.Fd(), err)
		}
	}
}

func (p *EpollPoller) close() {
	unix.Close(p.epollFd)
}
