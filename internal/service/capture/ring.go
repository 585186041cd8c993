package capture

import "sync"

// Ring is a fixed-capacity buffer of the most recent samples.
// Writers never block on readers; Last copies out under a read lock.
type Ring struct {
	mu     sync.RWMutex
	buf    []int16
	pos    int // next write index
	filled int
	total  uint64
}

// NewRing creates a ring holding at most capacity samples.
func NewRing(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{buf: make([]int16, capacity)}
}

// Write appends samples, overwriting the oldest when full.
func (r *Ring) Write(samples []int16) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Only the tail can survive a write larger than the buffer.
	if len(samples) > len(r.buf) {
		r.total += uint64(len(samples) - len(r.buf))
		samples = samples[len(samples)-len(r.buf):]
	}
	for len(samples) > 0 {
		n := copy(r.buf[r.pos:], samples)
		samples = samples[n:]
		r.pos = (r.pos + n) % len(r.buf)
		r.filled += n
		r.total += uint64(n)
	}
	if r.filled > len(r.buf) {
		r.filled = len(r.buf)
	}
}

// Last returns a copy of the newest n samples in chronological order.
// Fewer are returned if the ring holds fewer.
func (r *Ring) Last(n int) []int16 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if n > r.filled {
		n = r.filled
	}
	if n <= 0 {
		return nil
	}
	out := make([]int16, n)
	start := (r.pos - n + len(r.buf)) % len(r.buf)
	if start+n <= len(r.buf) {
		copy(out, r.buf[start:start+n])
	} else {
		k := copy(out, r.buf[start:])
		copy(out[k:], r.buf[:n-k])
	}
	return out
}

// Len returns the number of valid samples held.
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.filled
}

// Cap returns the ring capacity in samples.
func (r *Ring) Cap() int {
	return len(r.buf)
}

// Total returns the number of samples ever written.
func (r *Ring) Total() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.total
}

// Reset discards all samples.
func (r *Ring) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pos = 0
	r.filled = 0
}
