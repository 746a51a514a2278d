package network

import (
	"os"

	"golang.org/x/sys/unix"
)

const (
	// CheapPrepend is the space kept in front of the readable data so a
	// length header can be prepended without moving the payload.
	CheapPrepend = 8
	// InitialSize is the starting capacity of the readable region.
	InitialSize = 1024
)

// Buffer is the input/output byte buffer owned by a connection.
//
//	+-------------------+------------------+------------------+
//	| prependable bytes |  readable bytes  |  writable bytes  |
//	+-------------------+------------------+------------------+
//	0      <=      readerIndex   <=   writerIndex    <=     cap
type Buffer struct {
	buf         []byte
	readerIndex int
	writerIndex int
}

func NewBuffer() *Buffer {
	return &Buffer{
		buf:         make([]byte, CheapPrepend+InitialSize),
		readerIndex: CheapPrepend,
		writerIndex: CheapPrepend,
	}
}

func (b *Buffer) ReadableBytes() int {
	return b.writerIndex - b.readerIndex
}

func (b *Buffer) WritableBytes() int {
	return len(b.buf) - b.writerIndex
}

func (b *Buffer) PrependableBytes() int {
	return b.readerIndex
}

// Peek returns the readable region without consuming it. The slice aliases
// the internal storage and is only valid until the next buffer operation.
func (b *Buffer) Peek() []byte {
	return b.buf[b.readerIndex:b.writerIndex]
}

// Retrieve consumes n readable bytes. Consuming everything resets both
// indices so the whole capacity becomes writable again.
func (b *Buffer) Retrieve(n int) {
	if n < b.ReadableBytes() {
		b.readerIndex += n
	} else {
		b.RetrieveAll()
	}
}

func (b *Buffer) RetrieveAll() {
	b.readerIndex = CheapPrepend
	b.writerIndex = CheapPrepend
}

func (b *Buffer) RetrieveAsString(n int) string {
	if n > b.ReadableBytes() {
		n = b.ReadableBytes()
	}
	s := string(b.buf[b.readerIndex : b.readerIndex+n])
	b.Retrieve(n)
	return s
}

func (b *Buffer) RetrieveAllAsString() string {
	return b.RetrieveAsString(b.ReadableBytes())
}

func (b *Buffer) Append(data []byte) {
	b.EnsureWritableBytes(len(data))
	copy(b.buf[b.writerIndex:], data)
	b.writerIndex += len(data)
}

func (b *Buffer) AppendString(data string) {
	b.EnsureWritableBytes(len(data))
	copy(b.buf[b.writerIndex:], data)
	b.writerIndex += len(data)
}

// Prepend writes data in front of the readable region. The caller must not
// prepend more than PrependableBytes.
func (b *Buffer) Prepend(data []byte) {
	b.readerIndex -= len(data)
	copy(b.buf[b.readerIndex:], data)
}

func (b *Buffer) EnsureWritableBytes(n int) {
	if b.WritableBytes() < n {
		b.makeSpace(n)
	}
}

// makeSpace first tries to reclaim the already consumed front of the buffer,
// growing the storage only when compaction still leaves too little room.
func (b *Buffer) makeSpace(n int) {
	if b.WritableBytes()+b.PrependableBytes() < n+CheapPrepend {
		newBuf := make([]byte, b.writerIndex+n)
		copy(newBuf, b.buf[:b.writerIndex])
		b.buf = newBuf
	} else {
		readable := b.ReadableBytes()
		copy(b.buf[CheapPrepend:], b.buf[b.readerIndex:b.writerIndex])
		b.readerIndex = CheapPrepend
		b.writerIndex = b.readerIndex + readable
	}
}

// ReadFd reads from fd with a scattered read into the writable region plus a
// 64KiB spill buffer on the local stack. One syscall grabs everything a
// level-triggered wakeup reported while the heap buffer stays small for
// mostly idle connections. Returns 0 and no error on EOF.
func (b *Buffer) ReadFd(fd int) (int, error) {
	var extrabuf [65536]byte

	writable := b.WritableBytes()
	var iovs [][]byte
	if writable < len(extrabuf) {
		iovs = [][]byte{b.buf[b.writerIndex:], extrabuf[:]}
	} else {
		iovs = [][]byte{b.buf[b.writerIndex:]}
	}

	n, err := unix.Readv(fd, iovs)
	if err != nil {
		return 0, os.NewSyscallError("readv", err)
	}
	if n <= writable {
		b.writerIndex += n
	} else {
		b.writerIndex = len(b.buf)
		b.Append(extrabuf[:n-writable])
	}
	return n, nil
}

// WriteFd writes the readable region to fd. The caller retrieves whatever
// was accepted by the kernel.
func (b *Buffer) WriteFd(fd int) (int, error) {
	n, err := unix.Write(fd, b.Peek())
	if err != nil {
		return 0, os.NewSyscallError("write", err)
	}
	return n, nil
}
