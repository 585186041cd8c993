// Package loudness watches the live capture buffer for loud noise and raises
// a warning indicator while the level stays above a threshold.
package loudness

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"speech-caption-service/internal/observability/logging"
	"speech-caption-service/internal/observability/metrics"
	"speech-caption-service/internal/service/capture"
)

// Snapshotter is the capture view the monitor samples.
type Snapshotter interface {
	Snapshot(d time.Duration) capture.AudioWindow
}

// Indicator shows or clears the noise warning.
type Indicator interface {
	SetNoiseWarning(on bool, level float64)
}

// Monitor samples the most recent interval of audio on every tick.
type Monitor struct {
	source    Snapshotter
	indicator Indicator
	threshold float64
	interval  time.Duration
	metrics   *metrics.Metrics
	logger    zerolog.Logger

	mu      sync.Mutex
	level   float64
	warning bool
}

// NewMonitor creates a monitor. threshold is a normalized RMS in (0,1].
func NewMonitor(source Snapshotter, indicator Indicator, threshold float64, interval time.Duration) *Monitor {
	return &Monitor{
		source:    source,
		indicator: indicator,
		threshold: threshold,
		interval:  interval,
		metrics:   metrics.DefaultMetrics,
		logger:    logging.WithComponent("loudness"),
	}
}

// Run samples until ctx is done.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.logger.Info().
		Float64("threshold", m.threshold).
		Dur("interval", m.interval).
		Msg("Loudness monitor started")

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.Sample()
		}
	}
}

// Sample measures the latest interval once and updates the indicator on
// threshold crossings only.
func (m *Monitor) Sample() float64 {
	level := RMS(m.source.Snapshot(m.interval).Samples())
	loud := level > m.threshold

	m.mu.Lock()
	m.level = level
	changed := loud != m.warning
	m.warning = loud
	m.mu.Unlock()

	m.metrics.RecordLoudness(level, changed && loud)
	if changed {
		m.indicator.SetNoiseWarning(loud, level)
		m.logger.Info().
			Bool("warning", loud).
			Float64("level", level).
			Msg("Noise warning changed")
	}
	return level
}

// Level returns the last measured level and whether the warning is up.
func (m *Monitor) Level() (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.level, m.warning
}

// RMS returns the root mean square of samples normalized to [0,1].
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s) / 32768
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// Indicators fans a warning out to several indicators.
type Indicators []Indicator

func (is Indicators) SetNoiseWarning(on bool, level float64) {
	for _, i := range is {
		i.SetNoiseWarning(on, level)
	}
}
