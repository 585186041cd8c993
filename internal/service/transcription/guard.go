package transcription

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"speech-caption-service/internal/observability/logging"
	"speech-caption-service/internal/observability/metrics"
	"speech-caption-service/internal/service/capture"
)

// Guarded wraps a Client with a per-call deadline and instrumentation.
// It never retries: a failed window is dropped and the next tick captures
// fresh audio.
type Guarded struct {
	client   Client
	provider string
	timeout  time.Duration
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

// NewGuarded wraps client. provider labels metrics and logs.
func NewGuarded(client Client, provider string, timeout time.Duration) *Guarded {
	return &Guarded{
		client:   client,
		provider: provider,
		timeout:  timeout,
		metrics:  metrics.DefaultMetrics,
		logger:   logging.WithComponent("transcription").With().Str("provider", provider).Logger(),
	}
}

// Provider returns the wrapped provider's label.
func (g *Guarded) Provider() string {
	return g.provider
}

// Transcribe implements Client. A deadline hit is reported as ErrTimeout even
// when the provider surfaces it differently; caller cancellation stays
// context.Canceled.
func (g *Guarded) Transcribe(ctx context.Context, w capture.AudioWindow) (Result, error) {
	callCtx := ctx
	if g.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	start := time.Now()
	g.metrics.RecordTranscriptionStart(len(w.Data))

	res, err := g.client.Transcribe(callCtx, w)
	if err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, ErrTimeout) {
		err = errors.Join(ErrTimeout, err)
	}

	latency := time.Since(start)
	g.metrics.RecordTranscriptionEnd(g.provider, KindOf(err), latency.Seconds())

	if err == nil {
		g.logger.Debug().
			Dur("latency", latency).
			Bool("success", res.Success).
			Int("chars", len(res.Text)).
			Msg("Transcription completed")
	}
	return res, err
}
