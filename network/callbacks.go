package network

import (
	"net"
	"time"

	"github.com/moshang1314/muduo/log"
)

// Task is a unit of work queued onto an event loop.
type Task func()

// ThreadInitCallback runs on a freshly started IO loop goroutine before the
// loop begins polling.
type ThreadInitCallback func(loop *EventLoop)

type ConnectionCallback func(conn *TcpConnection)

type MessageCallback func(conn *TcpConnection, buf *Buffer, receiveTime time.Time)

type WriteCompleteCallback func(conn *TcpConnection)

type HighWaterMarkCallback func(conn *TcpConnection, size int)

type CloseCallback func(conn *TcpConnection)

type NewConnectionCallback func(sockfd int, peerAddr *net.TCPAddr)

func defaultConnectionCallback(conn *TcpConnection) {
	state := "DOWN"
	if conn.Connected() {
		state = "UP"
	}
	log.Info("connection %s -> %s is %s", conn.LocalAddr(), conn.PeerAddr(), state)
}

func defaultMessageCallback(conn *TcpConnection, buf *Buffer, receiveTime time.Time) {
	buf.RetrieveAll()
}

func checkLoopNotNil(loop *EventLoop) *EventLoop {
	if loop == nil {
		log.Fatal("event loop is nil")
	}
	return loop
}
