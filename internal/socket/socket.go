// Package socket wraps the fd level socket calls used by the network core.
// Only IPv4 TCP is covered, which is what the listeners above it create.
package socket

import (
	"bufio"
	"net"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// 监听端口的连接队列和半连接队列长度
var listenerBacklogMaxSize = ListenerBacklogMaxSize()

// ListenerBacklogMaxSize reads the host somaxconn setting.
func ListenerBacklogMaxSize() int {
	fd, err := os.Open("/proc/sys/net/core/somaxconn")
	if err != nil {
		return unix.SOMAXCONN
	}
	defer fd.Close()

	rd := bufio.NewReader(fd)
	line, err := rd.ReadString('\n')
	if err != nil {
		return unix.SOMAXCONN
	}

	f := strings.Fields(line)
	if len(f) < 1 {
		return unix.SOMAXCONN
	}

	n, err := strconv.Atoi(f[0])
	if err != nil || n == 0 {
		return unix.SOMAXCONN
	}
	return n
}

// CreateNonblocking makes the nonblocking stream socket a listener is built
// on. Failure here is a setup error, the caller aborts on it.
func CreateNonblocking() (int, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err != nil {
		return -1, os.NewSyscallError("socket", err)
	}
	return fd, nil
}

// Bind binds fd to the given address.
func Bind(fd int, addr *net.TCPAddr) error {
	sa4 := TCPAddrToSockaddr(addr)
	if err := unix.Bind(fd, sa4); err != nil {
		return os.NewSyscallError("bind", err)
	}
	return nil
}

// Listen turns fd passive with the host backlog.
func Listen(fd int) error {
	if err := unix.Listen(fd, listenerBacklogMaxSize); err != nil {
		return os.NewSyscallError("listen", err)
	}
	return nil
}

// Accept returns the new connection fd already set nonblocking.
func Accept(fd int) (int, unix.Sockaddr, error) {
	nfd, sa, err := unix.Accept(fd)
	if err != nil {
		return -1, nil, err
	}
	if err := unix.SetNonblock(nfd, true); err != nil {
		unix.Close(nfd)
		return -1, nil, os.NewSyscallError("fcntl nonblock", err)
	}
	return nfd, sa, nil
}

// ShutdownWrite closes the write half, the read half keeps draining.
func ShutdownWrite(fd int) error {
	if err := unix.Shutdown(fd, unix.SHUT_WR); err != nil {
		return os.NewSyscallError("shutdown", err)
	}
	return nil
}

func Close(fd int) error {
	return os.NewSyscallError("close", unix.Close(fd))
}

func SetReuseAddr(fd int, on bool) error {
	return os.NewSyscallError("setsockopt",
		unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, boolToInt(on)))
}

func SetReusePort(fd int, on bool) error {
	return os.NewSyscallError("setsockopt",
		unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEPORT, boolToInt(on)))
}

func SetKeepAlive(fd int, on bool) error {
	return os.NewSyscallError("setsockopt",
		unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_KEEPALIVE, boolToInt(on)))
}

func SetTcpNoDelay(fd int, on bool) error {
	return os.NewSyscallError("setsockopt",
		unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, boolToInt(on)))
}

func SetSendBufferSize(fd int, size int) error {
	return os.NewSyscallError("setsockopt",
		unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_SNDBUF, size))
}

func SetRcvBufferSize(fd int, size int) error {
	return os.NewSyscallError("setsockopt",
		unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF, size))
}

// GetSocketError fetches and clears the pending SO_ERROR value.
func GetSocketError(fd int) error {
	optval, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return os.NewSyscallError("getsockopt", err)
	}
	if optval == 0 {
		return nil
	}
	return unix.Errno(optval)
}

// GetLocalAddr queries the bound local address of fd.
func GetLocalAddr(fd int) *net.TCPAddr {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return &net.TCPAddr{}
	}
	return SockaddrToTCPAddr(sa)
}

// GetPeerAddr queries the remote address of fd.
func GetPeerAddr(fd int) *net.TCPAddr {
	sa, err := unix.Getpeername(fd)
	if err != nil {
		return &net.TCPAddr{}
	}
	return SockaddrToTCPAddr(sa)
}

// SockaddrToTCPAddr converts the raw accept/getsockname result.
func SockaddrToTCPAddr(sa unix.Sockaddr) *net.TCPAddr {
	switch sa := sa.(type) {
	case *unix.SockaddrInet4:
		return &net.TCPAddr{IP: append([]byte{}, sa.Addr[:]...), Port: sa.Port}
	case *unix.SockaddrInet6:
		return &net.TCPAddr{IP: append([]byte{}, sa.Addr[:]...), Port: sa.Port}
	default:
		return &net.TCPAddr{}
	}
}

// TCPAddrToSockaddr converts addr for bind. A 16 byte IP keeps its last 4
// bytes, same as the v4-in-v6 mapping.
func TCPAddrToSockaddr(addr *net.TCPAddr) *unix.SockaddrInet4 {
	sa4 := &unix.SockaddrInet4{Port: addr.Port}
	if addr.IP != nil {
		if len(addr.IP) == 16 {
			copy(sa4.Addr[:], addr.IP[12:16]) // copy last 4 bytes of slice to array
		} else {
			copy(sa4.Addr[:], addr.IP) // copy all bytes of slice to array
		}
	}
	return sa4
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
