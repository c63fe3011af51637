package session

import "sync"

// RingBuffer keeps the most recent output chunks of a session, oldest first.
// The shell is not restarted when the UI reloads or a client reconnects, so
// the transport replays this history to a new client before live output;
// without it the prompt printed at spawn would be lost. When full, each Write
// evicts the oldest chunk.
type RingBuffer struct {
	mu       sync.RWMutex
	buf      []Chunk
	capacity int
	pos      int // next write position
	full     bool
}

// NewRingBuffer creates a buffer holding up to capacity chunks. A capacity
// below one is raised to one so the latest chunk is always kept.
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &RingBuffer{
		buf:      make([]Chunk, capacity),
		capacity: capacity,
	}
}

// Write appends chunk, evicting the oldest when full.
func (rb *RingBuffer) Write(chunk Chunk) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.buf[rb.pos] = chunk
	rb.pos = (rb.pos + 1) % rb.capacity
	if rb.pos == 0 {
		rb.full = true
	}
}

// ReadAll returns a copy of the buffered chunks in the order they were
// written, ready to replay to a reconnecting client.
func (rb *RingBuffer) ReadAll() []Chunk {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	if !rb.full {
		result := make([]Chunk, rb.pos)
		copy(result, rb.buf[:rb.pos])
		return result
	}

	result := make([]Chunk, rb.capacity)
	copy(result, rb.buf[rb.pos:])
	copy(result[rb.capacity-rb.pos:], rb.buf[:rb.pos])
	return result
}

// Reset drops all buffered chunks. The transport calls it when output of a
// new session arrives so a replay never mixes two sessions.
func (rb *RingBuffer) Reset() {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	clear(rb.buf)
	rb.pos = 0
	rb.full = false
}
