// Package onboarding runs the naming flow for speakers heard for the first
// time: it prompts the user once per speaker and feeds submitted names back
// into the registry.
package onboarding

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"speech-caption-service/internal/observability/logging"
	"speech-caption-service/internal/observability/metrics"
	"speech-caption-service/internal/service/speaker"
)

// promptTimeout bounds one prompter call.
const promptTimeout = 5 * time.Second

// Prompter surfaces a naming request to the user or downstream systems.
type Prompter interface {
	PromptOnboarding(ctx context.Context, speakerID int) error
}

// PrompterFunc adapts a function to Prompter.
type PrompterFunc func(ctx context.Context, speakerID int) error

func (f PrompterFunc) PromptOnboarding(ctx context.Context, speakerID int) error {
	return f(ctx, speakerID)
}

// Namer is the registry operation a submitted name re-enters.
type Namer interface {
	Assign(id int, name string) error
}

// Pending is an open naming request.
type Pending struct {
	SpeakerID int       `json:"speakerId"`
	Since     time.Time `json:"since"`
}

// Coordinator tracks open naming requests. Requests are idempotent per
// speaker: prompters fire once until a name is accepted.
type Coordinator struct {
	namer     Namer
	prompters []Prompter
	metrics   *metrics.Metrics
	logger    zerolog.Logger

	mu      sync.Mutex
	pending map[int]time.Time
	wg      sync.WaitGroup
}

// NewCoordinator creates a coordinator that assigns names through namer.
func NewCoordinator(namer Namer, prompters ...Prompter) *Coordinator {
	return &Coordinator{
		namer:     namer,
		prompters: prompters,
		metrics:   metrics.DefaultMetrics,
		logger:    logging.WithComponent("onboarding"),
		pending:   make(map[int]time.Time),
	}
}

// RequestOnboarding opens a naming request for speakerID. Repeated requests
// while one is open do nothing. Prompters run in the background so routing
// never waits on them.
func (c *Coordinator) RequestOnboarding(speakerID int) {
	c.mu.Lock()
	if _, open := c.pending[speakerID]; open {
		c.mu.Unlock()
		return
	}
	c.pending[speakerID] = time.Now()
	c.mu.Unlock()

	c.metrics.RecordOnboardingRequest()
	c.logger.Info().Int("speakerId", speakerID).Msg("Onboarding requested")

	for _, p := range c.prompters {
		c.wg.Add(1)
		go func(p Prompter) {
			defer c.wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), promptTimeout)
			defer cancel()
			if err := p.PromptOnboarding(ctx, speakerID); err != nil {
				c.logger.Warn().Err(err).Int("speakerId", speakerID).Msg("Onboarding prompt failed")
			}
		}(p)
	}
}

// OnNameSubmitted assigns name to speakerID and closes its request.
// On speaker.ErrInvalidName the request stays open so the user can retry.
func (c *Coordinator) OnNameSubmitted(speakerID int, name string) error {
	err := c.namer.Assign(speakerID, name)
	if errors.Is(err, speaker.ErrInvalidName) {
		c.logger.Debug().Int("speakerId", speakerID).Msg("Rejected blank speaker name")
		return err
	}

	c.mu.Lock()
	delete(c.pending, speakerID)
	c.mu.Unlock()

	if err != nil {
		c.logger.Warn().Err(err).Int("speakerId", speakerID).Msg("Speaker named but not persisted")
	}
	return err
}

// IsPending reports whether a naming request is open for speakerID.
func (c *Coordinator) IsPending(speakerID int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pending[speakerID]
	return ok
}

// Pending lists open requests, oldest first.
func (c *Coordinator) Pending() []Pending {
	c.mu.Lock()
	out := make([]Pending, 0, len(c.pending))
	for id, since := range c.pending {
		out = append(out, Pending{SpeakerID: id, Since: since})
	}
	c.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Since.Equal(out[j].Since) {
			return out[i].SpeakerID < out[j].SpeakerID
		}
		return out[i].Since.Before(out[j].Since)
	})
	return out
}

// Wait blocks until in-flight prompts have returned.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}
