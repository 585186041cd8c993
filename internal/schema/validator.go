// Package schema checks outbound events before they are published.
package schema

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"speech-caption-service/internal/models"
	"speech-caption-service/internal/observability/logging"
)

// ErrInvalidEvent wraps every validation failure.
var ErrInvalidEvent = errors.New("invalid event")

// maxTextLen bounds caption text on the stream.
const maxTextLen = 4096

// Validator validates caption stream events.
type Validator struct {
	logger zerolog.Logger
}

func New() *Validator {
	return &Validator{logger: logging.WithComponent("schema")}
}

// Validate checks required fields for known event types. Unknown types are rejected.
func (v *Validator) Validate(event any) error {
	var problems []string

	switch e := event.(type) {
	case models.CaptionDisplayed:
		problems = validateCaption(e)
	case *models.CaptionDisplayed:
		if e == nil {
			return fmt.Errorf("%w: nil caption event", ErrInvalidEvent)
		}
		problems = validateCaption(*e)
	case models.OnboardingRequired:
		problems = validateOnboarding(e)
	case *models.OnboardingRequired:
		if e == nil {
			return fmt.Errorf("%w: nil onboarding event", ErrInvalidEvent)
		}
		problems = validateOnboarding(*e)
	default:
		return fmt.Errorf("%w: unsupported type %T", ErrInvalidEvent, event)
	}

	if len(problems) > 0 {
		v.logger.Debug().Strs("problems", problems).Msg("Event failed validation")
		return fmt.Errorf("%w: %s", ErrInvalidEvent, strings.Join(problems, "; "))
	}
	return nil
}

func validateCaption(e models.CaptionDisplayed) []string {
	var p []string
	if e.EventType != models.EventTypeCaptionDisplayed {
		p = append(p, fmt.Sprintf("eventType must be %q", models.EventTypeCaptionDisplayed))
	}
	if strings.TrimSpace(e.Text) == "" {
		p = append(p, "text is required")
	}
	if len(e.Text) > maxTextLen {
		p = append(p, fmt.Sprintf("text longer than %d bytes", maxTextLen))
	}
	if e.DisplayName == "" {
		p = append(p, "displayName is required")
	}
	if e.Manual != (e.SpeakerID == models.ManualSpeakerID) {
		p = append(p, "manual events and only manual events use the manual speaker id")
	}
	if !e.Manual && e.Tick == 0 {
		p = append(p, "tick is required for speech captions")
	}
	if e.Confidence < 0 || e.Confidence > 1 {
		p = append(p, "confidence must be within [0,1]")
	}
	if e.Timestamp <= 0 {
		p = append(p, "timestamp is required")
	}
	return p
}

func validateOnboarding(e models.OnboardingRequired) []string {
	var p []string
	if e.EventType != models.EventTypeOnboardingRequired {
		p = append(p, fmt.Sprintf("eventType must be %q", models.EventTypeOnboardingRequired))
	}
	if e.SpeakerID == models.ManualSpeakerID {
		p = append(p, "speakerId must not be the manual speaker id")
	}
	if e.Timestamp <= 0 {
		p = append(p, "timestamp is required")
	}
	return p
}
