// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "speech_caption"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Pipeline metrics
	TicksTotal             prometheus.Counter
	TicksSkipped           *prometheus.CounterVec
	TranscriptionsInFlight prometheus.Gauge
	StaleResults           prometheus.Counter
	ManualEvents           *prometheus.CounterVec

	// Capture metrics
	CaptureBytes prometheus.Counter
	WindowBytes  prometheus.Histogram

	// Transcription metrics
	TranscriptionLatency *prometheus.HistogramVec
	TranscriptionErrors  *prometheus.CounterVec

	// Routing and display metrics
	CaptionsDisplayed  prometheus.Counter
	CaptionsSuppressed *prometheus.CounterVec
	OnboardingRequests prometheus.Counter
	DisplayHides       prometheus.Counter

	// Loudness metrics
	LoudnessLevel prometheus.Gauge
	NoiseWarnings prometheus.Counter

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec

	// gRPC metrics
	StreamsTotal   prometheus.Counter
	StreamsActive  prometheus.Gauge
	StreamsFailed  prometheus.Counter
	StreamDuration prometheus.Histogram
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics()

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		// Pipeline metrics
		TicksTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Total number of pipeline cadence ticks",
		}),
		TicksSkipped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_skipped_total",
			Help:      "Ticks that produced no caption",
		}, []string{"reason"}),
		TranscriptionsInFlight: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "transcriptions_in_flight",
			Help:      "Number of outstanding transcription calls",
		}),
		StaleResults: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_results_total",
			Help:      "Transcription results dropped because a newer tick was already displayed",
		}),
		ManualEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "manual_events_total",
			Help:      "Manually triggered acoustic events",
		}, []string{"source"}),

		// Capture metrics
		CaptureBytes: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_bytes_total",
			Help:      "Total PCM bytes written into the capture buffer",
		}),
		WindowBytes: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "window_bytes",
			Help:      "Size of audio windows submitted for transcription",
			Buckets:   prometheus.ExponentialBuckets(4096, 2, 8),
		}),

		// Transcription metrics
		TranscriptionLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transcription_latency_seconds",
			Help:      "Transcription call latency in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 3, 5, 8},
		}, []string{"provider"}),
		TranscriptionErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcription_errors_total",
			Help:      "Total number of failed transcription calls",
		}, []string{"provider", "kind"}),

		// Routing and display metrics
		CaptionsDisplayed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "captions_displayed_total",
			Help:      "Captions handed to the display",
		}),
		CaptionsSuppressed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "captions_suppressed_total",
			Help:      "Transcriptions that were routed but not displayed",
		}, []string{"reason"}),
		OnboardingRequests: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "onboarding_requests_total",
			Help:      "Onboarding requests emitted for unnamed speakers",
		}),
		DisplayHides: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "display_hides_total",
			Help:      "Number of times the caption auto-hid",
		}),

		// Loudness metrics
		LoudnessLevel: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "loudness_rms",
			Help:      "Most recent normalized RMS level of the input",
		}),
		NoiseWarnings: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "noise_warnings_total",
			Help:      "Times the loud-noise warning was raised",
		}),

		// Kafka publish metrics
		KafkaPublishTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka messages published",
		}, []string{"topic", "event_type"}),
		KafkaPublishErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		}, []string{"topic", "event_type"}),
		KafkaPublishLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),

		// gRPC metrics
		StreamsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grpc_streams_total",
			Help:      "Total number of gRPC streams started",
		}),
		StreamsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "grpc_streams_active",
			Help:      "Number of currently active gRPC streams",
		}),
		StreamsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grpc_streams_failed_total",
			Help:      "Total number of failed gRPC streams",
		}),
		StreamDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "grpc_stream_duration_seconds",
			Help:      "Duration of gRPC streams in seconds",
			Buckets:   []float64{0.1, 1, 10, 60, 300, 1800},
		}),
	}
}

// RecordTick records a cadence tick firing.
func (m *Metrics) RecordTick() {
	m.TicksTotal.Inc()
}

// RecordTickSkipped records a tick that produced no caption.
func (m *Metrics) RecordTickSkipped(reason string) {
	m.TicksSkipped.WithLabelValues(reason).Inc()
}

// RecordTranscriptionStart records a transcription call going out.
func (m *Metrics) RecordTranscriptionStart(windowBytes int) {
	m.TranscriptionsInFlight.Inc()
	m.WindowBytes.Observe(float64(windowBytes))
}

// RecordTranscriptionEnd records a transcription call returning.
// kind is empty on success.
func (m *Metrics) RecordTranscriptionEnd(provider, kind string, latencySeconds float64) {
	m.TranscriptionsInFlight.Dec()
	m.TranscriptionLatency.WithLabelValues(provider).Observe(latencySeconds)
	if kind != "" {
		m.TranscriptionErrors.WithLabelValues(provider, kind).Inc()
	}
}

// RecordStale records a late result that was dropped.
func (m *Metrics) RecordStale() {
	m.StaleResults.Inc()
}

// RecordDisplayed records a caption reaching the display.
func (m *Metrics) RecordDisplayed() {
	m.CaptionsDisplayed.Inc()
}

// RecordSuppressed records a routed caption that was not displayed.
func (m *Metrics) RecordSuppressed(reason string) {
	m.CaptionsSuppressed.WithLabelValues(reason).Inc()
}

// RecordOnboardingRequest records an onboarding prompt being raised.
func (m *Metrics) RecordOnboardingRequest() {
	m.OnboardingRequests.Inc()
}

// RecordHide records the display hiding on its own timer.
func (m *Metrics) RecordHide() {
	m.DisplayHides.Inc()
}

// RecordManualEvent records a manually triggered acoustic event.
func (m *Metrics) RecordManualEvent(source string) {
	m.ManualEvents.WithLabelValues(source).Inc()
}

// RecordCapture records PCM bytes entering the capture buffer.
func (m *Metrics) RecordCapture(bytes int) {
	m.CaptureBytes.Add(float64(bytes))
}

// RecordLoudness records the latest loudness level.
func (m *Metrics) RecordLoudness(level float64, warningRaised bool) {
	m.LoudnessLevel.Set(level)
	if warningRaised {
		m.NoiseWarnings.Inc()
	}
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}

// RecordStreamStart records a new gRPC stream starting.
func (m *Metrics) RecordStreamStart() {
	m.StreamsTotal.Inc()
	m.StreamsActive.Inc()
}

// RecordStreamEnd records a gRPC stream ending.
func (m *Metrics) RecordStreamEnd(success bool, durationSeconds float64) {
	m.StreamsActive.Dec()
	m.StreamDuration.Observe(durationSeconds)
	if !success {
		m.StreamsFailed.Inc()
	}
}
