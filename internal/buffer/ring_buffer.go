// Package buffer provides the ring buffer that keeps recent session output.
package buffer

import (
	"sync"
)

// RingBuffer is a thread-safe circular byte buffer holding the most recent
// output of a session up to a fixed capacity. Older bytes are overwritten.
//
// It backs the history endpoint so that a UI that reloads its terminal view
// can repaint what the session printed before.
type RingBuffer struct {
	mu       sync.RWMutex
	buf      []byte
	start    int // index of the oldest byte
	size     int // bytes currently held
	capacity int
}

// NewRingBuffer creates a new RingBuffer with the specified capacity.
// A capacity below 1 is raised to 1.
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &RingBuffer{
		buf:      make([]byte, capacity),
		capacity: capacity,
	}
}

// Write appends p, discarding the oldest bytes when capacity is exceeded.
// It implements io.Writer and never fails.
func (rb *RingBuffer) Write(p []byte) (int, error) {
	n := len(p)
	if n == 0 {
		return 0, nil
	}

	rb.mu.Lock()
	defer rb.mu.Unlock()

	if n >= rb.capacity {
		copy(rb.buf, p[n-rb.capacity:])
		rb.start = 0
		rb.size = rb.capacity
		return n, nil
	}

	end := (rb.start + rb.size) % rb.capacity
	first := copy(rb.buf[end:], p)
	copy(rb.buf, p[first:])

	rb.size += n
	if rb.size > rb.capacity {
		overflow := rb.size - rb.capacity
		rb.start = (rb.start + overflow) % rb.capacity
		rb.size = rb.capacity
	}
	return n, nil
}

// ReadAll returns a copy of the buffered bytes, oldest first.
func (rb *RingBuffer) ReadAll() []byte {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	if rb.size == 0 {
		return nil
	}

	out := make([]byte, rb.size)
	n := copy(out, rb.buf[rb.start:min(rb.start+rb.size, rb.capacity)])
	copy(out[n:], rb.buf[:rb.size-n])
	return out
}
