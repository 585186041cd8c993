// Package pipeline drives the captioning cadence: every window it snapshots
// capture, transcribes asynchronously, and routes results that are still
// newer than what is on screen.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"speech-caption-service/internal/models"
	"speech-caption-service/internal/observability/logging"
	"speech-caption-service/internal/observability/metrics"
	"speech-caption-service/internal/service/caption"
	"speech-caption-service/internal/service/capture"
	"speech-caption-service/internal/service/tick"
	"speech-caption-service/internal/service/transcription"
)

// HapticRightHand is the handle pulsed on acoustic events.
const HapticRightHand = "right_hand"

// Tick skip reasons.
const (
	skipEmptyWindow = "empty_window"
	skipError       = "transcription_error"
	skipNoSpeech    = "no_speech"
	skipStopped     = "stopped"
)

var (
	// ErrAlreadyRunning is returned by Start on a running pipeline.
	ErrAlreadyRunning = errors.New("pipeline already running")

	// ErrUnknownSource is returned by TriggerManualEvent for ids not in settings.
	ErrUnknownSource = errors.New("unknown acoustic source")
)

// Router routes one transcription result.
type Router interface {
	Route(res transcription.Result, tick uint64) caption.Decision
}

// Display shows manual event captions directly.
type Display interface {
	Show(ev models.CaptionEvent)
}

// Sources resolves acoustic event sources.
type Sources interface {
	AcousticSource(id string) (models.AcousticSource, bool)
}

// Haptics is the fire-and-forget haptic boundary.
type Haptics interface {
	PulseHaptic(handle string)
}

// Publisher receives displayed captions. Optional.
type Publisher interface {
	PublishCaption(ctx context.Context, ev models.CaptionDisplayed) error
}

// Options configures the cadence.
type Options struct {
	WindowDuration time.Duration
	WarmUp         time.Duration
	// ViewerOrigin is where acoustic source offsets are measured from.
	ViewerOrigin models.Vec3
}

// DefaultOptions returns a 3 second cadence with a 1 second warm-up.
func DefaultOptions() Options {
	return Options{
		WindowDuration: 3 * time.Second,
		WarmUp:         time.Second,
	}
}

// Status is a point-in-time view of the pipeline.
type Status struct {
	Running       bool       `json:"running"`
	SessionID     string     `json:"sessionId,omitempty"`
	Tick          uint64     `json:"tick"`
	DisplayedTick uint64     `json:"displayedTick"`
	InFlight      int64      `json:"inFlight"`
	StartedAt     *time.Time `json:"startedAt,omitempty"`
}

// Pipeline owns the cadence timer and in-flight transcriptions.
type Pipeline struct {
	source    capture.Source
	client    transcription.Client
	router    Router
	display   Display
	sources   Sources
	haptics   Haptics
	publisher Publisher
	opts      Options
	metrics   *metrics.Metrics

	seq  *tick.Sequencer
	gate *tick.Gate

	inflight atomic.Int64
	calls    sync.WaitGroup

	mu        sync.Mutex
	running   bool
	sessionID string
	started   time.Time
	cancel    context.CancelFunc
	loopDone  chan struct{}
	logger    zerolog.Logger
}

// New creates a stopped pipeline. publisher may be nil.
func New(
	source capture.Source,
	client transcription.Client,
	router Router,
	display Display,
	sources Sources,
	haptics Haptics,
	publisher Publisher,
	opts Options,
) *Pipeline {
	if opts.WindowDuration <= 0 {
		opts.WindowDuration = DefaultOptions().WindowDuration
	}
	return &Pipeline{
		source:    source,
		client:    client,
		router:    router,
		display:   display,
		sources:   sources,
		haptics:   haptics,
		publisher: publisher,
		opts:      opts,
		metrics:   metrics.DefaultMetrics,
		seq:       tick.NewSequencer(),
		gate:      tick.NewGate(),
		logger:    logging.WithComponent("pipeline"),
	}
}

// Start begins capture and the cadence. A capture failure is returned
// wrapped around capture.ErrCaptureUnavailable and nothing is started.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return ErrAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := p.source.Start(runCtx); err != nil {
		cancel()
		p.logger.Error().Err(err).Msg("Audio capture unavailable")
		return fmt.Errorf("start capture: %w", err)
	}

	p.running = true
	p.sessionID = uuid.NewString()
	p.started = time.Now()
	p.cancel = cancel
	p.loopDone = make(chan struct{})
	p.logger = logging.WithSession("pipeline", p.sessionID)

	go p.loop(runCtx, p.loopDone)

	p.logger.Info().
		Dur("window", p.opts.WindowDuration).
		Dur("warmUp", p.opts.WarmUp).
		Msg("Captioning pipeline started")
	return nil
}

// loop waits out the capture warm-up, then fires a tick every window, so the
// first tick lands at warm-up plus one window. Ticks never wait on transcription.
func (p *Pipeline) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	if p.opts.WarmUp > 0 {
		warmUp := time.NewTimer(p.opts.WarmUp)
		select {
		case <-ctx.Done():
			warmUp.Stop()
			return
		case <-warmUp.C:
		}
	}

	ticker := time.NewTicker(p.opts.WindowDuration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.runTick(ctx)
		}
	}
}

// runTick snapshots the latest window and submits it without blocking.
func (p *Pipeline) runTick(ctx context.Context) {
	p.metrics.RecordTick()

	p.mu.Lock()
	sessionID := p.sessionID
	p.mu.Unlock()

	seq := p.seq.Next()
	w := p.source.Snapshot(p.opts.WindowDuration)
	if w.Empty() {
		p.metrics.RecordTickSkipped(skipEmptyWindow)
		logger := logging.WithTick(sessionID, seq)
		logger.Debug().Msg("Empty window, skipping tick")
		return
	}

	p.inflight.Add(1)
	p.calls.Add(1)
	go p.transcribe(ctx, sessionID, seq, w)
}

func (p *Pipeline) transcribe(ctx context.Context, sessionID string, seq uint64, w capture.AudioWindow) {
	defer p.calls.Done()
	defer p.inflight.Add(-1)

	logger := logging.WithTick(sessionID, seq)

	res, err := p.client.Transcribe(ctx, w)
	if ctx.Err() != nil {
		p.metrics.RecordTickSkipped(skipStopped)
		logger.Debug().Msg("Pipeline stopped, discarding transcription")
		return
	}
	if err != nil {
		p.metrics.RecordTickSkipped(skipError)
		logger.Warn().
			Err(err).
			Str("errorKind", transcription.KindOf(err)).
			Msg("Transcription failed, skipping tick")
		return
	}
	if !res.Captionable() {
		p.metrics.RecordTickSkipped(skipNoSpeech)
		logger.Debug().Int("speakerId", res.SpeakerID).Msg("No speech in window")
		return
	}

	var decision caption.Decision
	err = p.gate.Admit(seq, func() bool {
		decision = p.router.Route(res, seq)
		return decision.Outcome == caption.OutcomeDisplayed
	})
	if errors.Is(err, tick.ErrStale) {
		p.metrics.RecordStale()
		logger.Debug().
			Uint64("displayedTick", p.gate.Displayed()).
			Msg("Dropping stale result")
		return
	}

	logger.Debug().
		Int("speakerId", res.SpeakerID).
		Str("outcome", decision.Outcome.String()).
		Msg("Result routed")

	if decision.Outcome == caption.OutcomeDisplayed {
		p.publish(ctx, models.CaptionDisplayed{
			EventType:   models.EventTypeCaptionDisplayed,
			SessionID:   sessionID,
			Tick:        seq,
			SpeakerID:   decision.Event.SpeakerID,
			DisplayName: decision.Event.DisplayName,
			Text:        decision.Event.Text,
			Confidence:  res.Confidence,
			Timestamp:   time.Now().UnixMilli(),
		})
	}
}

func (p *Pipeline) publish(ctx context.Context, ev models.CaptionDisplayed) {
	if p.publisher == nil {
		return
	}
	if err := p.publisher.PublishCaption(ctx, ev); err != nil {
		logger := logging.WithSession("pipeline", ev.SessionID)
		logger.Warn().
			Err(err).
			Uint64("tick", ev.Tick).
			Msg("Failed to publish caption event")
	}
}

// TriggerManualEvent shows an acoustic event marker for sourceID at its
// configured offset from the viewer and pulses the right hand. Manual
// events skip routing and tick ordering.
func (p *Pipeline) TriggerManualEvent(sourceID string) error {
	src, ok := p.sources.AcousticSource(sourceID)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownSource, sourceID)
	}

	pos := p.opts.ViewerOrigin.Add(src.Offset)
	p.display.Show(models.CaptionEvent{
		SpeakerID:     models.ManualSpeakerID,
		DisplayName:   src.Name,
		Text:          src.Name,
		SpawnPosition: &pos,
	})
	p.haptics.PulseHaptic(HapticRightHand)
	p.metrics.RecordManualEvent(sourceID)

	p.mu.Lock()
	sessionID, logger := p.sessionID, p.logger
	p.mu.Unlock()

	logger.Info().
		Str("sourceId", sourceID).
		Str("position", pos.String()).
		Msg("Acoustic event triggered")

	p.publish(context.Background(), models.CaptionDisplayed{
		EventType:   models.EventTypeCaptionDisplayed,
		SessionID:   sessionID,
		SpeakerID:   models.ManualSpeakerID,
		DisplayName: src.Name,
		Text:        src.Name,
		Manual:      true,
		Timestamp:   time.Now().UnixMilli(),
	})
	return nil
}

// Stop cancels the cadence and in-flight transcriptions, waits for them,
// then releases capture. A visible caption is left to hide on its own timer.
func (p *Pipeline) Stop() error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	cancel, done, logger := p.cancel, p.loopDone, p.logger
	p.mu.Unlock()

	cancel()
	<-done
	p.calls.Wait()

	err := p.source.Stop()
	logger.Info().
		Uint64("ticks", p.seq.Current()).
		Uint64("displayedTick", p.gate.Displayed()).
		Msg("Captioning pipeline stopped")
	return err
}

// Running reports whether the cadence is active.
func (p *Pipeline) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Status returns the pipeline's current state.
func (p *Pipeline) Status() Status {
	p.mu.Lock()
	running, sessionID, started := p.running, p.sessionID, p.started
	p.mu.Unlock()

	var startedAt *time.Time
	if running {
		startedAt = &started
	}
	return Status{
		StartedAt:     startedAt,
		Running:       running,
		SessionID:     sessionID,
		Tick:          p.seq.Current(),
		DisplayedTick: p.gate.Displayed(),
		InFlight:      p.inflight.Load(),
	}
}
