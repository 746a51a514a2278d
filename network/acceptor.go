package network

import (
	"net"
	"time"

	"github.com/moshang1314/muduo/internal/socket"
	"github.com/moshang1314/muduo/log"
	"golang.org/x/sys/unix"
)

// Acceptor owns the listening socket and its channel on the accept loop.
// Setup failures here leave nothing to serve, so they abort.
type Acceptor struct {
	loop                  *EventLoop
	acceptFd              int
	acceptChannel         *Channel
	newConnectionCallback NewConnectionCallback
	listening             bool
}

func NewAcceptor(loop *EventLoop, listenAddr *net.TCPAddr, reusePort bool) *Acceptor {
	fd, err := socket.CreateNonblocking()
	if err != nil {
		log.Fatal("acceptor create listen socket error : %v", err)
	}
	if err := socket.SetReuseAddr(fd, true); err != nil {
		log.Fatal("acceptor set reuse addr error : %v", err)
	}
	if reusePort {
		if err := socket.SetReusePort(fd, true); err != nil {
			log.Fatal("acceptor set reuse port error : %v", err)
		}
	}
	if err := socket.Bind(fd, listenAddr); err != nil {
		log.Fatal("acceptor bind %s error : %v", listenAddr, err)
	}

	a := &Acceptor{
		loop:     loop,
		acceptFd: fd,
	}
	a.acceptChannel = NewChannel(loop, fd)
	a.acceptChannel.SetReadCallback(a.handleRead)
	return a
}

func (a *Acceptor) SetNewConnectionCallback(cb NewConnectionCallback) {
	a.newConnectionCallback = cb
}

func (a *Acceptor) Listening() bool {
	return a.listening
}

// Listen turns the socket passive and starts watching for readability. Runs
// on the accept loop.
func (a *Acceptor) Listen() {
	a.loop.assertInLoopGoroutine()
	a.listening = true
	if err := socket.Listen(a.acceptFd); err != nil {
		log.Fatal("acceptor listen error : %v", err)
	}
	a.acceptChannel.EnableReading()
}

// handleRead drains the accept queue. Level-triggered readiness would re-arm
// anyway, but accepting everything available keeps the backlog short under
// a connection burst.
func (a *Acceptor) handleRead(receiveTime time.Time) {
	for {
		connFd, sa, err := socket.Accept(a.acceptFd)
		if err != nil {
			if err == unix.EAGAIN {
				return
			}
			log.Error("acceptor accept error : %v", err)
			if err == unix.EMFILE {
				// process fd limit reached, nothing can be served until
				// the operator raises it or load drops
				log.Error("acceptor reached the process fd limit")
			}
			return
		}

		if a.newConnectionCallback != nil {
			a.newConnectionCallback(connFd, socket.SockaddrToTCPAddr(sa))
		} else {
			unix.Close(connFd)
		}
	}
}

// Close detaches the channel and closes the listening socket. Runs on the
// accept loop; the acceptor cannot listen again afterwards.
func (a *Acceptor) Close() {
	a.loop.assertInLoopGoroutine()
	a.acceptChannel.DisableAll()
	a.acceptChannel.Remove()
	socket.Close(a.acceptFd)
	a.listening = false
}
