package network

import (
	"bytes"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func testListenAddr() *net.TCPAddr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0}
}

func startAcceptLoop(name string) *EventLoop {
	return NewEventLoopThread(nil, name).StartLoop()
}

// waitListening returns once the accept loop has run the listen that Start
// scheduled; tasks queued on a loop run in FIFO order.
func waitListening(s *TcpServer) {
	listened := make(chan struct{})
	s.GetLoop().QueueInLoop(func() { close(listened) })
	<-listened
}

// stopServer tears the server down and quits every loop it started.
func stopServer(s *TcpServer, acceptLoop *EventLoop) {
	s.Stop()
	time.Sleep(50 * time.Millisecond)
	for _, l := range s.pool.GetAllLoops() {
		if l != acceptLoop {
			l.Quit()
		}
	}
	acceptLoop.Quit()
}

func TestEchoSingleThread(t *testing.T) {
	loop := startAcceptLoop("echo0")

	server := NewTcpServer(loop, testListenAddr(), "echo0")
	server.SetThreadNum(0)
	server.SetMessageCallback(func(conn *TcpConnection, buf *Buffer, receiveTime time.Time) {
		conn.SendString(buf.RetrieveAllAsString())
	})
	server.Start()
	waitListening(server)
	defer stopServer(server, loop)

	c, err := net.Dial("tcp", server.ListenAddr().String())
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Write([]byte("hello"))
	require.NoError(t, err)

	got := make([]byte, 5)
	_, err = io.ReadFull(c, got)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
}

func TestEchoMultiThread(t *testing.T) {
	loop := startAcceptLoop("echo4")

	var loopsUsed sync.Map
	server := NewTcpServer(loop, testListenAddr(), "echo4")
	server.SetThreadNum(4)
	server.SetConnectionCallback(func(conn *TcpConnection) {
		if conn.Connected() {
			loopsUsed.Store(conn.GetLoop(), true)
		}
	})
	server.SetMessageCallback(func(conn *TcpConnection, buf *Buffer, receiveTime time.Time) {
		conn.SendString(buf.RetrieveAllAsString())
	})
	server.Start()
	waitListening(server)
	defer stopServer(server, loop)

	addr := server.ListenAddr().String()

	const numClients = 100
	const numMessages = 10
	const messageSize = 1024

	var wg sync.WaitGroup
	errCh := make(chan error, numClients)
	for i := 0; i < numClients; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			c, err := net.Dial("tcp", addr)
			if err != nil {
				errCh <- err
				return
			}
			defer c.Close()

			msg := bytes.Repeat([]byte{byte('a' + id%26)}, messageSize)
			got := make([]byte, messageSize)
			for m := 0; m < numMessages; m++ {
				if _, err := c.Write(msg); err != nil {
					errCh <- err
					return
				}
				if _, err := io.ReadFull(c, got); err != nil {
					errCh <- err
					return
				}
				if !bytes.Equal(msg, got) {
					errCh <- io.ErrUnexpectedEOF
					return
				}
			}
		}(i)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		require.NoError(t, err)
	}

	// 100 connections round-robin over 4 loops touches every loop
	numLoops := 0
	loopsUsed.Range(func(k, v interface{}) bool {
		numLoops++
		return true
	})
	assert.Equal(t, 4, numLoops)
}

func TestGracefulShutdown(t *testing.T) {
	loop := startAcceptLoop("shutdown")

	const payloadSize = 1024 * 1024
	var events []string
	var eventsMutex sync.Mutex
	record := func(ev string) {
		eventsMutex.Lock()
		events = append(events, ev)
		eventsMutex.Unlock()
	}

	server := NewTcpServer(loop, testListenAddr(), "shutdown")
	server.SetThreadNum(1)
	server.SetConnectionCallback(func(conn *TcpConnection) {
		if conn.Connected() {
			conn.Send(bytes.Repeat([]byte{'d'}, payloadSize))
			conn.Shutdown()
		} else {
			record("disconnected")
		}
	})
	server.SetWriteCompleteCallback(func(conn *TcpConnection) {
		record("writecomplete")
	})
	server.Start()
	waitListening(server)
	defer stopServer(server, loop)

	c, err := net.Dial("tcp", server.ListenAddr().String())
	require.NoError(t, err)
	defer c.Close()

	// the peer must see the full payload followed by a clean EOF
	got, err := io.ReadAll(c)
	require.NoError(t, err)
	require.Equal(t, payloadSize, len(got))
	c.Close()

	require.True(t, waitFor(3*time.Second, func() bool {
		eventsMutex.Lock()
		defer eventsMutex.Unlock()
		return len(events) >= 2
	}))

	eventsMutex.Lock()
	defer eventsMutex.Unlock()
	assert.Equal(t, []string{"writecomplete", "disconnected"}, events)
}

func TestPeerReset(t *testing.T) {
	loop := startAcceptLoop("reset")

	var messages atomic.Int32
	var disconnected atomic.Bool
	server := NewTcpServer(loop, testListenAddr(), "reset")
	server.SetThreadNum(1)
	server.SetConnectionCallback(func(conn *TcpConnection) {
		if !conn.Connected() {
			disconnected.Store(true)
		}
	})
	server.SetMessageCallback(func(conn *TcpConnection, buf *Buffer, receiveTime time.Time) {
		messages.Add(1)
		buf.RetrieveAll()
	})
	server.Start()
	waitListening(server)
	defer stopServer(server, loop)

	c, err := net.DialTCP("tcp", nil, server.ListenAddr())
	require.NoError(t, err)
	require.NoError(t, c.SetLinger(0))

	_, err = c.Write([]byte("boom"))
	require.NoError(t, err)
	require.True(t, waitFor(3*time.Second, func() bool {
		return messages.Load() >= 1
	}))

	// linger 0 turns this close into a reset
	require.NoError(t, c.Close())

	assert.True(t, waitFor(3*time.Second, disconnected.Load))
	assert.Equal(t, int32(1), messages.Load())
}

func TestCrossThreadSend(t *testing.T) {
	loop := startAcceptLoop("crossthread")

	connCh := make(chan *TcpConnection, 1)
	server := NewTcpServer(loop, testListenAddr(), "crossthread")
	server.SetThreadNum(1)
	server.SetConnectionCallback(func(conn *TcpConnection) {
		if conn.Connected() {
			connCh <- conn
		}
	})
	server.Start()
	waitListening(server)
	defer stopServer(server, loop)

	c, err := net.Dial("tcp", server.ListenAddr().String())
	require.NoError(t, err)
	defer c.Close()

	var conn *TcpConnection
	select {
	case conn = <-connCh:
	case <-time.After(3 * time.Second):
		t.Fatal("no connection arrived")
	}

	// the test goroutine is no loop, Send must hop to the io loop
	conn.Send([]byte("x"))

	got := make([]byte, 1)
	_, err = io.ReadFull(c, got)
	require.NoError(t, err)
	assert.Equal(t, "x", string(got))
}

func TestHighWaterMark(t *testing.T) {
	loop := startAcceptLoop("backpressure")

	const mark = 4096
	var highWater atomic.Int32
	var writeComplete atomic.Int32
	var disconnected atomic.Bool

	server := NewTcpServer(loop, testListenAddr(), "backpressure",
		WithSocketSendBufferSize(4096),
	)
	server.SetThreadNum(1)
	server.SetConnectionCallback(func(conn *TcpConnection) {
		if conn.Connected() {
			conn.SetHighWaterMarkCallback(func(c *TcpConnection, size int) {
				highWater.Add(1)
			}, mark)
			// one burst the peer will never read
			conn.Send(bytes.Repeat([]byte{'b'}, 10*mark))
			conn.Send(bytes.Repeat([]byte{'b'}, mark))
			conn.Send(bytes.Repeat([]byte{'b'}, mark))
		} else {
			disconnected.Store(true)
		}
	})
	server.SetWriteCompleteCallback(func(conn *TcpConnection) {
		writeComplete.Add(1)
	})
	server.Start()
	waitListening(server)
	defer stopServer(server, loop)

	// shrink the client receive window so the data cannot drain
	dialer := net.Dialer{
		Control: func(network, address string, rc syscall.RawConn) error {
			var serr error
			rc.Control(func(fd uintptr) {
				serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF, 4096)
			})
			return serr
		},
	}
	c, err := dialer.Dial("tcp", server.ListenAddr().String())
	require.NoError(t, err)

	require.True(t, waitFor(3*time.Second, func() bool {
		return highWater.Load() >= 1
	}))
	// crossing the mark upwards happened exactly once and the buffer
	// never drained
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int32(1), highWater.Load())
	assert.Equal(t, int32(0), writeComplete.Load())

	// peer goes away with data still queued
	require.NoError(t, c.Close())
	assert.True(t, waitFor(3*time.Second, disconnected.Load))
}

func TestStartIdempotent(t *testing.T) {
	loop := startAcceptLoop("idempotent")

	server := NewTcpServer(loop, testListenAddr(), "idempotent")
	server.SetThreadNum(1)
	server.SetMessageCallback(func(conn *TcpConnection, buf *Buffer, receiveTime time.Time) {
		conn.SendString(buf.RetrieveAllAsString())
	})

	server.Start()
	server.Start()
	server.Start()
	waitListening(server)
	defer stopServer(server, loop)

	c, err := net.Dial("tcp", server.ListenAddr().String())
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Write([]byte("ping"))
	require.NoError(t, err)
	got := make([]byte, 4)
	_, err = io.ReadFull(c, got)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(got))
}
