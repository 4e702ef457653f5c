// ABOUTME: Byte ring buffer between the writer and the device callback
// ABOUTME: Bounded, thread-safe, zero-fills on underrun
package output

import (
	"sync"
	"time"
)

// RingBuffer provides a thread-safe circular buffer of PCM bytes
type RingBuffer struct {
	buffer   []byte
	readPos  int
	writePos int
	count    int // Number of bytes currently in buffer
	mu       sync.Mutex

	// space is signalled whenever a read frees room for a blocked writer
	space chan struct{}
}

// NewRingBuffer creates a ring buffer with given capacity in bytes
func NewRingBuffer(capacity int) *RingBuffer {
	return &RingBuffer{
		buffer: make([]byte, capacity),
		space:  make(chan struct{}, 1),
	}
}

// Write copies as much of p as fits and returns the number of bytes copied
func (rb *RingBuffer) Write(p []byte) int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	size := len(rb.buffer)
	n := min(len(p), size-rb.count)
	if n == 0 {
		return 0
	}

	first := copy(rb.buffer[rb.writePos:], p[:n])
	if first < n {
		copy(rb.buffer, p[first:n])
	}
	rb.writePos = (rb.writePos + n) % size
	rb.count += n
	return n
}

// Read fills p from the buffer and zero-fills the rest on underrun.
// It returns the number of buffered bytes copied.
func (rb *RingBuffer) Read(p []byte) int {
	rb.mu.Lock()
	size := len(rb.buffer)
	n := min(len(p), rb.count)
	if n > 0 {
		first := copy(p[:n], rb.buffer[rb.readPos:])
		if first < n {
			copy(p[first:n], rb.buffer)
		}
		rb.readPos = (rb.readPos + n) % size
		rb.count -= n
	}
	rb.mu.Unlock()

	clear(p[n:])

	if n > 0 {
		select {
		case rb.space <- struct{}{}:
		default:
		}
	}
	return n
}

// WriteTimeout writes all of p, waiting for the reader to free space.
// It gives up when timeout elapses or done is closed and returns what was written.
func (rb *RingBuffer) WriteTimeout(p []byte, timeout time.Duration, done <-chan struct{}) (int, error) {
	written := rb.Write(p)
	if written == len(p) {
		return written, nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for written < len(p) {
		select {
		case <-rb.space:
			written += rb.Write(p[written:])
		case <-timer.C:
			return written, ErrBufferFull
		case <-done:
			return written, ErrNotOpen
		}
	}
	return written, nil
}

// Available returns the number of bytes available to read
func (rb *RingBuffer) Available() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.count
}

// Free returns the number of free bytes in the buffer
func (rb *RingBuffer) Free() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return len(rb.buffer) - rb.count
}

// Cap returns the buffer capacity in bytes
func (rb *RingBuffer) Cap() int {
	return len(rb.buffer)
}

// Reset discards buffered audio
func (rb *RingBuffer) Reset() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.readPos = 0
	rb.writePos = 0
	rb.count = 0
}

// ringReader adapts a RingBuffer to io.Reader for pull-based players.
// It never blocks: missing audio is served as silence.
type ringReader struct {
	rb *RingBuffer
}

func (r ringReader) Read(p []byte) (int, error) {
	r.rb.Read(p)
	return len(p), nil
}
