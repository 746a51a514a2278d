package network

import (
	"fmt"
	"net"
	"sync/atomic"

	"github.com/moshang1314/muduo/internal/socket"
	"github.com/moshang1314/muduo/log"
	"golang.org/x/exp/maps"
)

// TcpServer composes the acceptor with the IO loop pool. New fds arrive on
// the accept loop, get a name and an IO loop, and from then on only that
// loop drives them. The name to connection registry is touched exclusively
// on the accept loop.
type TcpServer struct {
	loop     *EventLoop // accept loop, owned by the caller
	ipPort   string
	name     string
	acceptor *Acceptor
	pool     *EventLoopThreadPool
	opts     *Options

	connectionCallback    ConnectionCallback
	messageCallback       MessageCallback
	writeCompleteCallback WriteCompleteCallback
	threadInitCallback    ThreadInitCallback

	started    atomic.Int32
	nextConnId int
	// connection name -> connection, accept loop only
	connections map[string]*TcpConnection
}

func NewTcpServer(loop *EventLoop, listenAddr *net.TCPAddr, name string, opts ...Option) *TcpServer {
	options := loadOptions(opts)

	s := &TcpServer{
		loop:        checkLoopNotNil(loop),
		ipPort:      listenAddr.String(),
		name:        name,
		opts:        options,
		nextConnId:  1,
		connections: make(map[string]*TcpConnection),
	}
	s.acceptor = NewAcceptor(loop, listenAddr, options.reusePort)
	s.pool = NewEventLoopThreadPool(loop, name, options.loadBalance)
	s.acceptor.SetNewConnectionCallback(s.newConnection)
	return s
}

func (s *TcpServer) Name() string {
	return s.name
}

func (s *TcpServer) IpPort() string {
	return s.ipPort
}

// ListenAddr reports the bound listen address, useful when the configured
// port was 0.
func (s *TcpServer) ListenAddr() *net.TCPAddr {
	return socket.GetLocalAddr(s.acceptor.acceptFd)
}

func (s *TcpServer) GetLoop() *EventLoop {
	return s.loop
}

// SetThreadNum fixes the IO loop count. Zero runs all IO on the accept
// loop. Must be called before Start.
func (s *TcpServer) SetThreadNum(numThreads int) {
	s.pool.SetThreadNum(numThreads)
}

func (s *TcpServer) SetConnectionCallback(cb ConnectionCallback) {
	s.connectionCallback = cb
}

func (s *TcpServer) SetMessageCallback(cb MessageCallback) {
	s.messageCallback = cb
}

func (s *TcpServer) SetWriteCompleteCallback(cb WriteCompleteCallback) {
	s.writeCompleteCallback = cb
}

func (s *TcpServer) SetThreadInitCallback(cb ThreadInitCallback) {
	s.threadInitCallback = cb
}

// Start brings up the IO loops and schedules the listen on the accept loop.
// Extra calls are no-ops.
func (s *TcpServer) Start() {
	if !s.started.CompareAndSwap(0, 1) {
		return
	}
	s.pool.Start(s.threadInitCallback)
	s.loop.RunInLoop(s.acceptor.Listen)
}

// Stop destroys every live connection and closes the listener. The accept
// loop itself belongs to the caller and keeps running.
func (s *TcpServer) Stop() {
	s.loop.RunInLoop(func() {
		log.Info("TcpServer [%s] stopping, %d connections", s.name, len(s.connections))
		conns := maps.Clone(s.connections)
		s.connections = make(map[string]*TcpConnection)
		for _, conn := range conns {
			conn := conn
			conn.GetLoop().QueueInLoop(conn.ConnectDestroyed)
		}
		if s.acceptor.Listening() {
			s.acceptor.Close()
		}
	})
}

// newConnection runs on the accept loop for every fd the acceptor hands
// over: pick an IO loop, mint the name, install callbacks, register, then
// finish establishment over on the IO loop.
func (s *TcpServer) newConnection(sockFd int, peerAddr *net.TCPAddr) {
	s.loop.assertInLoopGoroutine()

	connName := fmt.Sprintf("%s-%s#%d", s.name, s.ipPort, s.nextConnId)
	s.nextConnId++
	ioLoop := s.pool.GetNextLoop(connName)

	log.Info("TcpServer [%s] new connection [%s] from %s", s.name, connName, peerAddr)

	if s.opts.tcpNoDelay {
		if err := socket.SetTcpNoDelay(sockFd, true); err != nil {
			log.Error("TcpServer [%s] set tcp_nodelay error : %v", s.name, err)
		}
	}
	if s.opts.socketSendBufferSize > 0 {
		if err := socket.SetSendBufferSize(sockFd, s.opts.socketSendBufferSize); err != nil {
			log.Error("TcpServer [%s] set send buffer size error : %v", s.name, err)
		}
	}
	if s.opts.socketRcvBufferSize > 0 {
		if err := socket.SetRcvBufferSize(sockFd, s.opts.socketRcvBufferSize); err != nil {
			log.Error("TcpServer [%s] set rcv buffer size error : %v", s.name, err)
		}
	}

	localAddr := socket.GetLocalAddr(sockFd)
	conn := newTcpConnection(ioLoop, connName, sockFd, localAddr, peerAddr)
	s.connections[connName] = conn

	if s.connectionCallback != nil {
		conn.setConnectionCallback(s.connectionCallback)
	} else {
		conn.setConnectionCallback(defaultConnectionCallback)
	}
	if s.messageCallback != nil {
		conn.setMessageCallback(s.messageCallback)
	} else {
		conn.setMessageCallback(defaultMessageCallback)
	}
	conn.setWriteCompleteCallback(s.writeCompleteCallback)
	conn.setCloseCallback(s.removeConnection)

	ioLoop.RunInLoop(conn.ConnectEstablished)
}

// removeConnection is the close callback installed on every connection. It
// may fire on any IO loop, so the registry work hops to the accept loop.
func (s *TcpServer) removeConnection(conn *TcpConnection) {
	s.loop.RunInLoop(func() {
		s.removeConnectionInLoop(conn)
	})
}

func (s *TcpServer) removeConnectionInLoop(conn *TcpConnection) {
	s.loop.assertInLoopGoroutine()
	log.Info("TcpServer [%s] remove connection [%s]", s.name, conn.Name())

	delete(s.connections, conn.Name())
	// the destroy task holds the connection until it has run
	conn.GetLoop().QueueInLoop(conn.ConnectDestroyed)
}

// NumConnections reports the registry size; accept loop only.
func (s *TcpServer) NumConnections() int {
	s.loop.assertInLoopGoroutine()
	return len(s.connections)
}
