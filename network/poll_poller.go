//go:build linux

package network

import (
	"time"

	"github.com/moshang1314/muduo/log"
	"golang.org/x/sys/unix"
)

// PollPoller is the poll(2) backend, selected through MUDUO_USE_POLL. It
// keeps the same level-triggered contract as the epoll backend; the pollfd
// set is rebuilt from the registry on every wait.
type PollPoller struct {
	basePoller
	pollFds []unix.PollFd
}

func newPollPoller(loop *EventLoop) *PollPoller {
	return &PollPoller{
		basePoller: basePoller{
			ownerLoop: loop,
			channels:  make(map[int]*Channel),
		},
	}
}

func (p *PollPoller) Poll(timeoutMs int) (time.Time, []*Channel) {
	p.pollFds = p.pollFds[:0]
	for fd, channel := range p.channels {
		if channel.Index() != kAdded || channel.IsNoneEvent() {
			continue
		}
		p.pollFds = append(p.pollFds, unix.PollFd{
			Fd:     int32(fd),
			Events: int16(channel.Events()),
		})
	}

	numEvents, err := unix.Poll(p.pollFds, timeoutMs)
	now := time.Now()

	if err != nil {
		if err != unix.EINTR {
			log.Error("poll error : %v", err)
		}
		return now, nil
	}
	if numEvents == 0 {
		log.Debug("poll timeout, nothing happened")
		return now, nil
	}

	activeChannels := make([]*Channel, 0, numEvents)
	for i := range p.pollFds {
		if p.pollFds[i].Revents == 0 {
			continue
		}
		channel, ok := p.channels[int(p.pollFds[i].Fd)]
		if !ok {
			continue
		}
		channel.SetRevents(uint32(uint16(p.pollFds[i].Revents)))
		activeChannels = append(activeChannels, channel)
	}
	return now, activeChannels
}

func (p *PollPoller) UpdateChannel(channel *Channel) {
	index := channel.Index()
	log.Debug("update channel fd=%d events=%d index=%d", channel.Fd(), channel.Events(), index)

	if index == kNew || index == kDeleted {
		if index == kNew {
			p.channels[channel.Fd()] = channel
		}
		channel.SetIndex(kAdded)
	} else if channel.IsNoneEvent() {
		channel.SetIndex(kDeleted)
	}
}

func (p *PollPoller) RemoveChannel(channel *Channel) {
	fd := channel.Fd()
	ch, ok := p.channels[fd]
	if !ok || ch != channel {
		log.Error("remove channel fd=%d not registered with this poller", fd)
		return
	}
	delete(p.channels, fd)
	channel.SetIndex(kNew)
}

func (p *PollPoller) close() {
}
