package network

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/moshang1314/muduo/log"
	"golang.org/x/sys/unix"
)

// default poller timeout
const kPollTimeMs = 10000

var (
	wakeInt64 = int64(1)
	wakeBytes = (*(*[8]byte)(unsafe.Pointer(&wakeInt64)))[:]
)

// at most one loop per goroutine
var (
	loopsMutex       sync.Mutex
	loopsInGoroutine = make(map[uint64]*EventLoop)
)

// EventLoop is the single-goroutine scheduler at the center of the reactor.
// It waits on its poller, dispatches ready channels and then drains the
// cross-goroutine task queue. All channel and connection state it owns is
// only ever touched from its goroutine; other goroutines hand work over via
// RunInLoop/QueueInLoop and wake it through the eventfd.
type EventLoop struct {
	looping             atomic.Bool
	quit                atomic.Bool
	callingPendingTasks atomic.Bool

	goroutineID uint64
	poller      Poller

	wakeupFd      int
	wfdBuf        []byte
	wakeupChannel *Channel

	activeChannels []*Channel

	mutex        sync.Mutex
	pendingTasks []Task
}

// NewEventLoop must be called on the goroutine that will run Loop. A second
// loop on the same goroutine is a setup error and aborts.
func NewEventLoop() *EventLoop {
	gid := getGoroutineID()

	loop := &EventLoop{
		goroutineID: gid,
		wfdBuf:      make([]byte, 8),
	}

	loopsMutex.Lock()
	if other := loopsInGoroutine[gid]; other != nil {
		loopsMutex.Unlock()
		log.Fatal("another EventLoop %p exists in goroutine %d", other, gid)
	}
	loopsInGoroutine[gid] = loop
	loopsMutex.Unlock()

	loop.poller = newDefaultPoller(loop)
	loop.wakeupFd = createEventfd()
	loop.wakeupChannel = NewChannel(loop, loop.wakeupFd)
	loop.wakeupChannel.SetReadCallback(func(time.Time) { loop.handleWakeupRead() })
	loop.wakeupChannel.EnableReading()

	log.Debug("EventLoop %p created in goroutine %d", loop, gid)
	return loop
}

func createEventfd() int {
	efd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		log.Fatal("create eventfd error : %v", err)
	}
	return efd
}

// Loop runs until Quit. Each iteration waits on the poller, dispatches every
// ready channel with the receive timestamp, then runs the queued tasks.
func (loop *EventLoop) Loop() {
	loop.assertInLoopGoroutine()
	loop.looping.Store(true)
	loop.quit.Store(false)

	log.Info("EventLoop %p start looping", loop)

	for !loop.quit.Load() {
		loop.activeChannels = loop.activeChannels[:0]
		pollReturnTime, activeChannels := loop.poller.Poll(kPollTimeMs)
		loop.activeChannels = append(loop.activeChannels, activeChannels...)
		for _, channel := range loop.activeChannels {
			channel.HandleEvent(pollReturnTime)
		}
		loop.doPendingTasks()
	}

	log.Info("EventLoop %p stop looping", loop)
	loop.looping.Store(false)
	loop.teardown()
}

// teardown releases the wakeup fd and the poller and frees the goroutine
// slot so the goroutine may host a fresh loop later.
func (loop *EventLoop) teardown() {
	loop.wakeupChannel.DisableAll()
	loop.wakeupChannel.Remove()
	unix.Close(loop.wakeupFd)
	loop.poller.close()

	loopsMutex.Lock()
	delete(loopsInGoroutine, loop.goroutineID)
	loopsMutex.Unlock()
}

// Quit stops the loop at the top of its next iteration. Called from another
// goroutine it wakes the loop out of its poll wait first.
func (loop *EventLoop) Quit() {
	loop.quit.Store(true)
	if !loop.IsInLoopGoroutine() {
		loop.wakeup()
	}
}

// RunInLoop runs task on the loop goroutine, inline when the caller already
// is that goroutine.
func (loop *EventLoop) RunInLoop(task Task) {
	if loop.IsInLoopGoroutine() {
		task()
	} else {
		loop.QueueInLoop(task)
	}
}

// QueueInLoop appends task to the pending queue. The loop is woken when the
// caller is another goroutine, and also while the loop is draining pending
// tasks: a task queued during the drain would otherwise sit unnoticed until
// the next natural poll return.
func (loop *EventLoop) QueueInLoop(task Task) {
	loop.mutex.Lock()
	loop.pendingTasks = append(loop.pendingTasks, task)
	loop.mutex.Unlock()

	if !loop.IsInLoopGoroutine() || loop.callingPendingTasks.Load() {
		loop.wakeup()
	}
}

func (loop *EventLoop) handleWakeupRead() {
	n, err := unix.Read(loop.wakeupFd, loop.wfdBuf)
	if err != nil || n != 8 {
		log.Error("wakeup read got %d bytes instead of 8, error : %v", n, err)
	}
}

func (loop *EventLoop) wakeup() {
	for {
		_, err := unix.Write(loop.wakeupFd, wakeBytes)
		if err == unix.EINTR || err == unix.EAGAIN {
			continue
		}
		if err != nil {
			log.Error("wakeup write error : %v", err)
		}
		return
	}
}

func (loop *EventLoop) doPendingTasks() {
	loop.callingPendingTasks.Store(true)

	loop.mutex.Lock()
	tasks := loop.pendingTasks
	loop.pendingTasks = nil
	loop.mutex.Unlock()

	for _, task := range tasks {
		task()
	}
	loop.callingPendingTasks.Store(false)
}

// UpdateChannel forwards to the poller. Only the loop goroutine may touch
// channel registration.
func (loop *EventLoop) UpdateChannel(channel *Channel) {
	loop.assertInLoopGoroutine()
	loop.poller.UpdateChannel(channel)
}

func (loop *EventLoop) RemoveChannel(channel *Channel) {
	loop.assertInLoopGoroutine()
	loop.poller.RemoveChannel(channel)
}

func (loop *EventLoop) HasChannel(channel *Channel) bool {
	loop.assertInLoopGoroutine()
	return loop.poller.HasChannel(channel)
}

func (loop *EventLoop) IsInLoopGoroutine() bool {
	return getGoroutineID() == loop.goroutineID
}

func (loop *EventLoop) assertInLoopGoroutine() {
	if !loop.IsInLoopGoroutine() {
		log.Fatal("EventLoop %p owned by goroutine %d was used from goroutine %d",
			loop, loop.goroutineID, getGoroutineID())
	}
}

// getGoroutineID parses the goroutine id out of the runtime stack header.
func getGoroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] < '0' || buf[i] > '9' {
			break
		}
		id = id*10 + uint64(buf[i]-'0')
	}
	return id
}
