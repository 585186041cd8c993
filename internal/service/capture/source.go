package capture

import (
	"context"
	"errors"
	"time"

	"speech-caption-service/internal/observability/metrics"
)

// ErrCaptureUnavailable means no usable input exists. It is fatal to the pipeline.
var ErrCaptureUnavailable = errors.New("capture unavailable")

// Source is a continuously running audio input.
//
// Capture runs on its own goroutine from Start until Stop whether or not
// anyone snapshots it. Snapshot never blocks capture.
type Source interface {
	Start(ctx context.Context) error
	// Snapshot returns the most recent d of audio. If less than d has been
	// captured, the window is shorter; it is empty before the first samples.
	Snapshot(d time.Duration) AudioWindow
	Stop() error
}

// Options sizes the capture buffer.
type Options struct {
	SampleRateHz   int
	BufferDuration time.Duration
	SpeakerID      int
}

// DefaultOptions mirrors a 10 second buffer at 16 kHz.
func DefaultOptions() Options {
	return Options{
		SampleRateHz:   16000,
		BufferDuration: 10 * time.Second,
	}
}

// buffer is the ring-backed snapshot logic shared by all sources.
type buffer struct {
	ring       *Ring
	sampleRate int
	speakerID  int
	metrics    *metrics.Metrics
}

func newBuffer(opts Options) buffer {
	if opts.SampleRateHz <= 0 {
		opts.SampleRateHz = DefaultOptions().SampleRateHz
	}
	if opts.BufferDuration <= 0 {
		opts.BufferDuration = DefaultOptions().BufferDuration
	}
	capacity := int(opts.BufferDuration.Seconds() * float64(opts.SampleRateHz))
	return buffer{
		ring:       NewRing(capacity),
		sampleRate: opts.SampleRateHz,
		speakerID:  opts.SpeakerID,
		metrics:    metrics.DefaultMetrics,
	}
}

func (b *buffer) write(samples []int16) {
	b.ring.Write(samples)
	b.metrics.RecordCapture(len(samples) * 2)
}

// Snapshot implements Source.
func (b *buffer) Snapshot(d time.Duration) AudioWindow {
	n := int(d.Seconds() * float64(b.sampleRate))
	return newWindow(b.ring.Last(n), b.sampleRate, b.speakerID)
}
