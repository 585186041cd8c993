// Package tick numbers pipeline ticks and decides which results are stale.
package tick

import "sync/atomic"

// Sequencer hands out strictly increasing tick numbers starting at 1.
type Sequencer struct {
	counter uint64
}

// NewSequencer creates a sequencer whose first tick is 1.
func NewSequencer() *Sequencer {
	return &Sequencer{}
}

// Next returns the next tick number. Safe for concurrent use.
func (s *Sequencer) Next() uint64 {
	return atomic.AddUint64(&s.counter, 1)
}

// Current returns the most recently issued tick, or 0 if none.
func (s *Sequencer) Current() uint64 {
	return atomic.LoadUint64(&s.counter)
}
