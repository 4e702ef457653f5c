// ABOUTME: Tests for the byte ring buffer
// ABOUTME: Covers wraparound, underrun zero-fill and bounded blocking writes
package output

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingBufferWriteRead(t *testing.T) {
	rb := NewRingBuffer(8)

	assert.Equal(t, 6, rb.Write([]byte{1, 2, 3, 4, 5, 6}))
	assert.Equal(t, 6, rb.Available())
	assert.Equal(t, 2, rb.Free())

	out := make([]byte, 4)
	assert.Equal(t, 4, rb.Read(out))
	assert.Equal(t, []byte{1, 2, 3, 4}, out)

	// wraps around the end of the backing slice
	assert.Equal(t, 6, rb.Write([]byte{7, 8, 9, 10, 11, 12}))
	out = make([]byte, 8)
	assert.Equal(t, 8, rb.Read(out))
	assert.Equal(t, []byte{5, 6, 7, 8, 9, 10, 11, 12}, out)
}

func TestRingBufferFull(t *testing.T) {
	rb := NewRingBuffer(4)

	assert.Equal(t, 4, rb.Write([]byte{1, 2, 3, 4, 5}))
	assert.Equal(t, 0, rb.Write([]byte{6}))
	assert.Equal(t, 0, rb.Free())
}

func TestRingBufferUnderrunZeroFills(t *testing.T) {
	rb := NewRingBuffer(8)
	rb.Write([]byte{9, 9})

	out := []byte{1, 1, 1, 1, 1}
	assert.Equal(t, 2, rb.Read(out))
	assert.Equal(t, []byte{9, 9, 0, 0, 0}, out)
}

func TestRingBufferReset(t *testing.T) {
	rb := NewRingBuffer(8)
	rb.Write([]byte{1, 2, 3})
	rb.Reset()

	assert.Equal(t, 0, rb.Available())
	assert.Equal(t, 8, rb.Cap())
}

func TestRingBufferWriteTimeoutWaitsForReader(t *testing.T) {
	rb := NewRingBuffer(4)
	rb.Write([]byte{1, 2, 3, 4})

	go func() {
		time.Sleep(20 * time.Millisecond)
		rb.Read(make([]byte, 4))
	}()

	n, err := rb.WriteTimeout([]byte{5, 6}, time.Second, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, rb.Available())
}

func TestRingBufferWriteTimeoutExpires(t *testing.T) {
	rb := NewRingBuffer(4)

	n, err := rb.WriteTimeout([]byte{1, 2, 3, 4, 5, 6}, 10*time.Millisecond, nil)
	assert.Equal(t, 4, n)
	assert.ErrorIs(t, err, ErrBufferFull)
}

func TestRingBufferWriteTimeoutDone(t *testing.T) {
	rb := NewRingBuffer(2)
	done := make(chan struct{})
	close(done)

	n, err := rb.WriteTimeout([]byte{1, 2, 3}, time.Second, done)
	assert.Equal(t, 2, n)
	assert.ErrorIs(t, err, ErrNotOpen)
}

func TestRingReaderServesSilence(t *testing.T) {
	rb := NewRingBuffer(4)
	rb.Write([]byte{7})

	p := make([]byte, 3)
	n, err := ringReader{rb: rb}.Read(p)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []byte{7, 0, 0}, p)
}
