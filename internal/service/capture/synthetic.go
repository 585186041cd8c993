package capture

import (
	"context"
	"math"
	"sync"
	"time"
)

// syntheticFrame is the generation step of SyntheticSource.
const syntheticFrame = 20 * time.Millisecond

// SyntheticSource generates a sine tone (or silence) in real time.
// It is used with the mock transcription provider and in tests.
type SyntheticSource struct {
	buffer
	amplitude float64
	frequency float64

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	phase  float64
}

// NewSyntheticSource creates a tone source. amplitude is in [0,1]; zero is silence.
func NewSyntheticSource(opts Options, amplitude, frequencyHz float64) *SyntheticSource {
	return &SyntheticSource{
		buffer:    newBuffer(opts),
		amplitude: amplitude,
		frequency: frequencyHz,
	}
}

// Start begins generating audio.
func (s *SyntheticSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(runCtx)
	return nil
}

func (s *SyntheticSource) run(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(syntheticFrame)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.write(s.generate(int(syntheticFrame.Seconds() * float64(s.sampleRate))))
		}
	}
}

func (s *SyntheticSource) generate(n int) []int16 {
	out := make([]int16, n)
	step := 2 * math.Pi * s.frequency / float64(s.sampleRate)
	for i := range out {
		out[i] = int16(s.amplitude * math.MaxInt16 * math.Sin(s.phase))
		s.phase += step
	}
	s.phase = math.Mod(s.phase, 2*math.Pi)
	return out
}

// Feed writes samples directly into the buffer.
func (s *SyntheticSource) Feed(samples []int16) {
	s.write(samples)
}

// Stop ends generation.
func (s *SyntheticSource) Stop() error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}
