package tick

import (
	"errors"
	"sync"
)

// ErrStale is returned for a result whose tick is not newer than the
// most recently displayed tick.
var ErrStale = errors.New("result is older than the displayed caption")

// Gate serializes result application and remembers the newest displayed tick.
//
// Results may complete in any order. Admit runs apply under the gate's lock,
// so a newer result can never be overwritten by an older one that finishes
// later:
//
//	tick 2 completes → Admit(2) → displayed=2
//	tick 1 completes → Admit(1) → ErrStale
type Gate struct {
	mu        sync.Mutex
	displayed uint64
}

// NewGate creates a gate with nothing displayed.
func NewGate() *Gate {
	return &Gate{}
}

// Admit applies a result for tick seq. apply reports whether the result
// reached the display; only then does the displayed tick advance.
// Results suppressed by apply never move the watermark.
func (g *Gate) Admit(seq uint64, apply func() bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.displayed != 0 && seq <= g.displayed {
		return ErrStale
	}
	if apply() {
		g.displayed = seq
	}
	return nil
}

// Displayed returns the tick of the caption currently considered newest.
func (g *Gate) Displayed() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.displayed
}
