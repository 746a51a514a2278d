package network

import (
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/moshang1314/muduo/internal/socket"
	"github.com/moshang1314/muduo/log"
	"golang.org/x/sys/unix"
)

type ConnState int32

const (
	StateConnecting ConnState = iota
	StateConnected
	StateDisconnecting
	StateDisconnected
)

const defaultHighWaterMark = 64 * 1024 * 1024 // 64M

// TcpConnection is the per-connection state machine. It is bound to one IO
// loop for its whole lifetime; every state transition and every buffer
// access happens on that loop's goroutine. The public methods are safe to
// call from anywhere, they hop onto the loop first.
type TcpConnection struct {
	loop      *EventLoop
	name      string
	state     atomic.Int32
	destroyed atomic.Bool
	reading   bool

	sockFd  int
	channel *Channel

	localAddr *net.TCPAddr
	peerAddr  *net.TCPAddr

	inputBuffer  *Buffer
	outputBuffer *Buffer

	connectionCallback    ConnectionCallback
	messageCallback       MessageCallback
	writeCompleteCallback WriteCompleteCallback
	highWaterMarkCallback HighWaterMarkCallback
	closeCallback         CloseCallback
	highWaterMark         int

	attrMap sync.Map
}

func newTcpConnection(loop *EventLoop, name string, sockFd int, localAddr, peerAddr *net.TCPAddr) *TcpConnection {
	conn := &TcpConnection{
		loop:          checkLoopNotNil(loop),
		name:          name,
		reading:       true,
		sockFd:        sockFd,
		localAddr:     localAddr,
		peerAddr:      peerAddr,
		inputBuffer:   NewBuffer(),
		outputBuffer:  NewBuffer(),
		highWaterMark: defaultHighWaterMark,
	}
	conn.setState(StateConnecting)

	conn.channel = NewChannel(loop, sockFd)
	conn.channel.SetReadCallback(conn.handleRead)
	conn.channel.SetWriteCallback(conn.handleWrite)
	conn.channel.SetCloseCallback(conn.handleClose)
	conn.channel.SetErrorCallback(conn.handleError)

	log.Info("TcpConnection ctor [%s] at fd=%d", name, sockFd)
	socket.SetKeepAlive(sockFd, true)
	return conn
}

func (conn *TcpConnection) GetLoop() *EventLoop {
	return conn.loop
}

func (conn *TcpConnection) Name() string {
	return conn.name
}

func (conn *TcpConnection) LocalAddr() *net.TCPAddr {
	return conn.localAddr
}

func (conn *TcpConnection) PeerAddr() *net.TCPAddr {
	return conn.peerAddr
}

func (conn *TcpConnection) Connected() bool {
	return conn.getState() == StateConnected
}

func (conn *TcpConnection) Disconnected() bool {
	return conn.getState() == StateDisconnected
}

// InputBuffer is only valid on the connection's loop goroutine, normally
// inside the message callback.
func (conn *TcpConnection) InputBuffer() *Buffer {
	return conn.inputBuffer
}

func (conn *TcpConnection) OutputBuffer() *Buffer {
	return conn.outputBuffer
}

// SetAttrib attaches application state to the connection.
func (conn *TcpConnection) SetAttrib(k, v interface{}) {
	conn.attrMap.Store(k, v)
}

func (conn *TcpConnection) GetAttrib(k interface{}) interface{} {
	v, ok := conn.attrMap.Load(k)
	if !ok {
		return nil
	}
	return v
}

func (conn *TcpConnection) setState(s ConnState) {
	conn.state.Store(int32(s))
}

func (conn *TcpConnection) getState() ConnState {
	return ConnState(conn.state.Load())
}

func (conn *TcpConnection) setConnectionCallback(cb ConnectionCallback) {
	conn.connectionCallback = cb
}

func (conn *TcpConnection) setMessageCallback(cb MessageCallback) {
	conn.messageCallback = cb
}

func (conn *TcpConnection) setWriteCompleteCallback(cb WriteCompleteCallback) {
	conn.writeCompleteCallback = cb
}

func (conn *TcpConnection) setCloseCallback(cb CloseCallback) {
	conn.closeCallback = cb
}

// SetHighWaterMarkCallback arms cb for upward crossings of mark bytes in
// the output buffer.
func (conn *TcpConnection) SetHighWaterMarkCallback(cb HighWaterMarkCallback, mark int) {
	conn.highWaterMarkCallback = cb
	conn.highWaterMark = mark
}

// Send queues data for delivery. Off the loop goroutine the bytes are copied
// first, the caller may reuse the slice as soon as Send returns.
func (conn *TcpConnection) Send(data []byte) {
	if conn.getState() != StateConnected {
		return
	}
	if conn.loop.IsInLoopGoroutine() {
		conn.sendInLoop(data)
	} else {
		buf := append([]byte(nil), data...)
		conn.loop.RunInLoop(func() {
			conn.sendInLoop(buf)
		})
	}
}

// SendString sends msg. The string conversion already makes a private copy.
func (conn *TcpConnection) SendString(msg string) {
	if conn.getState() != StateConnected {
		return
	}
	data := []byte(msg)
	if conn.loop.IsInLoopGoroutine() {
		conn.sendInLoop(data)
	} else {
		conn.loop.RunInLoop(func() {
			conn.sendInLoop(data)
		})
	}
}

func (conn *TcpConnection) sendInLoop(data []byte) {
	conn.loop.assertInLoopGoroutine()

	nwrote := 0
	remaining := len(data)
	faultError := false

	if conn.getState() == StateDisconnected {
		log.Warn("TcpConnection [%s] disconnected, give up writing", conn.name)
		return
	}

	// nothing queued and not watching writability: try the direct write
	if !conn.channel.IsWriting() && conn.outputBuffer.ReadableBytes() == 0 {
		n, err := unix.Write(conn.channel.Fd(), data)
		if err == nil {
			nwrote = n
			remaining = len(data) - nwrote
			if remaining == 0 && conn.writeCompleteCallback != nil {
				conn.loop.QueueInLoop(func() {
					conn.writeCompleteCallback(conn)
				})
			}
		} else {
			nwrote = 0
			if err != unix.EAGAIN {
				log.Error("TcpConnection [%s] sendInLoop write error : %v", conn.name, err)
				if err == unix.EPIPE || err == unix.ECONNRESET {
					faultError = true
				}
			}
		}
	}

	if !faultError && remaining > 0 {
		oldLen := conn.outputBuffer.ReadableBytes()
		newLen := oldLen + remaining
		if newLen >= conn.highWaterMark && oldLen < conn.highWaterMark && conn.highWaterMarkCallback != nil {
			conn.loop.QueueInLoop(func() {
				conn.highWaterMarkCallback(conn, newLen)
			})
		}
		conn.outputBuffer.Append(data[nwrote:])
		if !conn.channel.IsWriting() {
			conn.channel.EnableWriting()
		}
	}
}

// Shutdown closes the write half once the output buffer has drained. The
// read half stays open until the peer closes.
func (conn *TcpConnection) Shutdown() {
	if conn.state.CompareAndSwap(int32(StateConnected), int32(StateDisconnecting)) {
		conn.loop.RunInLoop(conn.shutdownInLoop)
	}
}

func (conn *TcpConnection) shutdownInLoop() {
	conn.loop.assertInLoopGoroutine()
	// still flushing: handleWrite calls back here after the final drain
	if !conn.channel.IsWriting() {
		if err := socket.ShutdownWrite(conn.sockFd); err != nil {
			log.Error("TcpConnection [%s] shutdown write error : %v", conn.name, err)
		}
	}
}

// ForceClose tears the connection down without waiting for the output
// buffer to drain.
func (conn *TcpConnection) ForceClose() {
	s := conn.getState()
	if s == StateConnected || s == StateDisconnecting {
		conn.setState(StateDisconnecting)
		conn.loop.QueueInLoop(conn.forceCloseInLoop)
	}
}

func (conn *TcpConnection) forceCloseInLoop() {
	conn.loop.assertInLoopGoroutine()
	s := conn.getState()
	if s == StateConnected || s == StateDisconnecting {
		conn.handleClose()
	}
}

// StartRead resumes delivery of read events.
func (conn *TcpConnection) StartRead() {
	conn.loop.RunInLoop(func() {
		if !conn.reading || !conn.channel.IsReading() {
			conn.channel.EnableReading()
			conn.reading = true
		}
	})
}

// StopRead stops watching readability; kernel-side backpressure builds up
// until StartRead.
func (conn *TcpConnection) StopRead() {
	conn.loop.RunInLoop(func() {
		if conn.reading || conn.channel.IsReading() {
			conn.channel.DisableReading()
			conn.reading = false
		}
	})
}

func (conn *TcpConnection) handleRead(receiveTime time.Time) {
	conn.loop.assertInLoopGoroutine()

	n, err := conn.inputBuffer.ReadFd(conn.channel.Fd())
	if err != nil {
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
			return
		}
		log.Error("TcpConnection [%s] handleRead error : %v", conn.name, err)
		conn.handleError()
		return
	}
	if n == 0 {
		// peer closed its write half
		conn.handleClose()
		return
	}
	conn.messageCallback(conn, conn.inputBuffer, receiveTime)
}

func (conn *TcpConnection) handleWrite() {
	conn.loop.assertInLoopGoroutine()

	if !conn.channel.IsWriting() {
		log.Error("TcpConnection fd=%d is down, no more writing", conn.channel.Fd())
		return
	}

	n, err := conn.outputBuffer.WriteFd(conn.channel.Fd())
	if err != nil {
		if !errors.Is(err, unix.EAGAIN) {
			log.Error("TcpConnection [%s] handleWrite error : %v", conn.name, err)
		}
		return
	}

	conn.outputBuffer.Retrieve(n)
	if conn.outputBuffer.ReadableBytes() == 0 {
		conn.channel.DisableWriting()
		if conn.writeCompleteCallback != nil {
			conn.loop.QueueInLoop(func() {
				conn.writeCompleteCallback(conn)
			})
		}
		if conn.getState() == StateDisconnecting {
			conn.shutdownInLoop()
		}
	}
}

// handleClose runs at most once, the state check rejects repeats caused by
// a close event and a read EOF landing in the same poll round.
func (conn *TcpConnection) handleClose() {
	conn.loop.assertInLoopGoroutine()

	s := conn.getState()
	if s != StateConnected && s != StateDisconnecting {
		return
	}
	log.Info("TcpConnection [%s] handleClose fd=%d state=%d", conn.name, conn.channel.Fd(), s)

	conn.setState(StateDisconnected)
	conn.channel.DisableAll()

	if conn.connectionCallback != nil {
		conn.connectionCallback(conn)
	}
	// the server unregisters the connection here
	if conn.closeCallback != nil {
		conn.closeCallback(conn)
	}
}

// handleError reads and logs the pending socket error. No transition: a
// real close follows through handleClose when the poller reports it.
func (conn *TcpConnection) handleError() {
	err := socket.GetSocketError(conn.channel.Fd())
	log.Error("TcpConnection [%s] handleError SO_ERROR : %v", conn.name, err)
}

// ConnectEstablished finishes setup on the IO loop: the channel is tied to
// its connection, read interest is installed and the user learns about the
// new connection.
func (conn *TcpConnection) ConnectEstablished() {
	conn.loop.assertInLoopGoroutine()

	conn.setState(StateConnected)
	conn.channel.Tie(conn)
	conn.channel.EnableReading()

	if conn.connectionCallback != nil {
		conn.connectionCallback(conn)
	}
}

// ConnectDestroyed is the last step of teardown and runs exactly once per
// connection. It covers the path where the server drops a connection that
// never went through handleClose.
func (conn *TcpConnection) ConnectDestroyed() {
	conn.loop.assertInLoopGoroutine()

	// a close racing a server stop can schedule this twice
	if !conn.destroyed.CompareAndSwap(false, true) {
		return
	}

	if conn.getState() == StateConnected {
		conn.setState(StateDisconnected)
		conn.channel.DisableAll()
		if conn.connectionCallback != nil {
			conn.connectionCallback(conn)
		}
	}
	conn.channel.Remove()
	socket.Close(conn.sockFd)
	log.Info("TcpConnection dtor [%s] at fd=%d", conn.name, conn.sockFd)
}
