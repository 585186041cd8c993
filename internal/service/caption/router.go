// Package caption decides what happens to each transcription result:
// suppression by isolation policy, onboarding of unnamed speakers, or a
// caption on the display.
package caption

import (
	"github.com/rs/zerolog"

	"speech-caption-service/internal/models"
	"speech-caption-service/internal/observability/logging"
	"speech-caption-service/internal/observability/metrics"
	"speech-caption-service/internal/service/speaker"
	"speech-caption-service/internal/service/transcription"
)

// Outcome is the terminal state of routing one result.
type Outcome int

const (
	OutcomeSuppressed Outcome = iota
	OutcomeOnboarding
	OutcomeDisplayed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuppressed:
		return "suppressed"
	case OutcomeOnboarding:
		return "onboarding"
	case OutcomeDisplayed:
		return "displayed"
	default:
		return "unknown"
	}
}

// Suppression reasons.
const (
	ReasonIsolation = "isolation"
	ReasonEmpty     = "empty"
)

// Decision is the result of Route.
type Decision struct {
	Outcome Outcome
	Reason  string
	Event   models.CaptionEvent // set when Outcome is OutcomeDisplayed
}

// PolicySource supplies the isolation policy. It is read on every result.
type PolicySource interface {
	IsolationPolicy() models.IsolationPolicy
}

// Speakers is the registry view the router needs.
type Speakers interface {
	Lookup(id int) speaker.Profile
	Resolve(id int) string
}

// Onboarder starts naming for an unknown speaker. It must tolerate repeated
// requests for the same id.
type Onboarder interface {
	RequestOnboarding(speakerID int)
}

// Display receives approved captions.
type Display interface {
	Show(ev models.CaptionEvent)
}

// PositionResolver optionally maps a speaker to a spatial position.
type PositionResolver interface {
	SpeakerPosition(id int) (models.Vec3, bool)
}

// Router applies isolation, then onboarding, then display, in that order.
type Router struct {
	policy    PolicySource
	speakers  Speakers
	onboarder Onboarder
	display   Display
	positions PositionResolver
	metrics   *metrics.Metrics
	logger    zerolog.Logger
}

// NewRouter creates a router. positions may be nil.
func NewRouter(policy PolicySource, speakers Speakers, onboarder Onboarder, display Display, positions PositionResolver) *Router {
	return &Router{
		policy:    policy,
		speakers:  speakers,
		onboarder: onboarder,
		display:   display,
		positions: positions,
		metrics:   metrics.DefaultMetrics,
		logger:    logging.WithComponent("caption-router"),
	}
}

// Route handles one result produced by tick.
func (r *Router) Route(res transcription.Result, tick uint64) Decision {
	if !res.Captionable() {
		return r.suppress(res, ReasonEmpty)
	}

	// Isolation is checked first and short-circuits onboarding.
	if !r.policy.IsolationPolicy().Allows(res.SpeakerID) {
		return r.suppress(res, ReasonIsolation)
	}

	if !r.speakers.Lookup(res.SpeakerID).Known {
		r.onboarder.RequestOnboarding(res.SpeakerID)
		r.metrics.RecordSuppressed("onboarding")
		r.logger.Info().
			Int("speakerId", res.SpeakerID).
			Uint64("tick", tick).
			Msg("Unnamed speaker, caption held for onboarding")
		return Decision{Outcome: OutcomeOnboarding}
	}

	ev := models.CaptionEvent{
		SpeakerID:   res.SpeakerID,
		DisplayName: r.speakers.Resolve(res.SpeakerID),
		Text:        res.Text,
		Tick:        tick,
	}
	if r.positions != nil {
		if pos, ok := r.positions.SpeakerPosition(res.SpeakerID); ok {
			ev.SpawnPosition = &pos
		}
	}

	r.display.Show(ev)
	r.metrics.RecordDisplayed()
	return Decision{Outcome: OutcomeDisplayed, Event: ev}
}

func (r *Router) suppress(res transcription.Result, reason string) Decision {
	r.metrics.RecordSuppressed(reason)
	r.logger.Debug().
		Int("speakerId", res.SpeakerID).
		Str("reason", reason).
		Msg("Caption suppressed")
	return Decision{Outcome: OutcomeSuppressed, Reason: reason}
}
