// Package display owns the lifecycle of the single on-screen caption:
// show, reposition, debounce and auto-hide.
package display

import (
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"speech-caption-service/internal/models"
	"speech-caption-service/internal/observability/logging"
	"speech-caption-service/internal/observability/metrics"
)

// State is the visibility state of the caption.
type State int

const (
	StateHidden State = iota
	StateVisible
)

func (s State) String() string {
	switch s {
	case StateHidden:
		return "Hidden"
	case StateVisible:
		return "Visible"
	default:
		return "Unknown"
	}
}

// RenderRequest is everything a renderer needs to draw the caption.
type RenderRequest struct {
	SpeakerID   int                 `json:"speakerId"`
	SpeakerName string              `json:"speakerName"`
	Text        string              `json:"text"`
	Color       models.Color        `json:"color"`
	ColorHex    string              `json:"colorHex"`
	FontSize    int                 `json:"fontSize"`
	Position    models.Vec3         `json:"position"`
	Facing      models.Vec3         `json:"facing"`
	Anchor      models.TextPosition `json:"-"`
	AnchorName  string              `json:"anchor"`
	// Pivot is the normalized text anchor, (0,0) bottom-left to (1,1) top-right.
	Pivot   models.Vec2 `json:"pivot"`
	Spatial bool        `json:"spatial"` // placed at a speaker or source, not the HUD
	Tick    uint64      `json:"tick"`
}

// Renderer draws and clears the caption. Calls happen with the controller
// lock held and must not block.
type Renderer interface {
	RenderCaption(req RenderRequest)
	HideCaption()
}

// Settings is the settings view the controller reads at render time.
type Settings interface {
	CaptionStyle() models.CaptionStyle
	HUDDisplayTime() time.Duration
	OnTextPositionChanged(fn func(models.TextPosition)) (unsubscribe func())
}

// Snapshot is a point-in-time view of the display session.
type Snapshot struct {
	State      string         `json:"state"`
	Deadline   *time.Time     `json:"hideDeadline,omitempty"`
	Generation uint64         `json:"generation"`
	Caption    *RenderRequest `json:"caption,omitempty"`
}

// Controller is the Hidden/Visible state machine. Show and the hide timer
// are the only transitions and both run under mu. Every Show bumps the
// generation before arming a new timer; a timer only hides the session if
// its captured generation is still current.
type Controller struct {
	renderer Renderer
	settings Settings
	metrics  *metrics.Metrics
	logger   zerolog.Logger

	mu         sync.Mutex
	state      State
	deadline   time.Time
	generation uint64
	timer      *time.Timer
	event      models.CaptionEvent
	current    *RenderRequest

	unsubscribe func()
}

// NewController creates a hidden controller subscribed to text position changes.
func NewController(renderer Renderer, settings Settings) *Controller {
	c := &Controller{
		renderer: renderer,
		settings: settings,
		metrics:  metrics.DefaultMetrics,
		logger:   logging.WithComponent("display"),
	}
	c.unsubscribe = settings.OnTextPositionChanged(c.reposition)
	return c
}

// Show renders ev and restarts the hide timer from the full display time.
// Only the latest event's text is ever on screen.
func (c *Controller) Show(ev models.CaptionEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.generation++
	gen := c.generation
	if c.timer != nil {
		c.timer.Stop()
	}

	req := c.build(ev, c.settings.CaptionStyle())
	c.renderer.RenderCaption(req)

	hold := c.settings.HUDDisplayTime()
	c.state = StateVisible
	c.event = ev
	c.current = &req
	c.deadline = time.Now().Add(hold)
	c.timer = time.AfterFunc(hold, func() { c.expire(gen) })

	c.logger.Debug().
		Int("speakerId", ev.SpeakerID).
		Uint64("tick", ev.Tick).
		Uint64("generation", gen).
		Dur("hold", hold).
		Msg("Caption shown")
}

// expire is the hide timer callback.
func (c *Controller) expire(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation || c.state != StateVisible {
		return
	}
	c.renderer.HideCaption()
	c.state = StateHidden
	c.deadline = time.Time{}
	c.current = nil
	c.timer = nil
	c.metrics.RecordHide()

	c.logger.Debug().Uint64("generation", gen).Msg("Caption hidden")
}

// reposition re-renders a visible HUD caption at the new anchor without
// touching the hide timer. Spatial captions are unaffected.
func (c *Controller) reposition(pos models.TextPosition) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateVisible || c.event.SpawnPosition != nil {
		return
	}
	style := c.settings.CaptionStyle()
	style.TextPosition = pos
	req := c.build(c.event, style)
	c.renderer.RenderCaption(req)
	c.current = &req

	c.logger.Debug().Str("textPosition", pos.String()).Msg("Caption repositioned")
}

// build computes placement: a spawn position faces the viewer from where the
// sound came from, otherwise the caption sits at the HUD offset.
func (c *Controller) build(ev models.CaptionEvent, style models.CaptionStyle) RenderRequest {
	req := RenderRequest{
		SpeakerID:   ev.SpeakerID,
		SpeakerName: ev.DisplayName,
		Text:        ev.Text,
		Color:       style.Color,
		ColorHex:    style.Color.Hex(),
		FontSize:    style.FontSize,
		Anchor:      style.TextPosition,
		AnchorName:  style.TextPosition.String(),
		Tick:        ev.Tick,
	}
	req.Pivot.X, req.Pivot.Y = style.TextPosition.Anchor()
	if ev.SpawnPosition != nil {
		req.Position = *ev.SpawnPosition
		req.Facing = towardViewer(*ev.SpawnPosition)
		req.Spatial = true
	} else {
		req.Position = style.HUDOffset
		req.Facing = models.Vec3{Z: -1}
	}
	return req
}

// towardViewer returns the unit vector from p back to the viewer origin.
func towardViewer(p models.Vec3) models.Vec3 {
	n := math.Sqrt(p.X*p.X + p.Y*p.Y + p.Z*p.Z)
	if n == 0 {
		return models.Vec3{Z: -1}
	}
	return models.Vec3{X: -p.X / n, Y: -p.Y / n, Z: -p.Z / n}
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Snapshot returns the current session.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Snapshot{State: c.state.String(), Generation: c.generation}
	if c.state == StateVisible {
		d := c.deadline
		s.Deadline = &d
		req := *c.current
		s.Caption = &req
	}
	return s
}

// Close stops listening for settings changes. A visible caption still hides
// on its own timer.
func (c *Controller) Close() {
	c.mu.Lock()
	unsubscribe := c.unsubscribe
	c.unsubscribe = nil
	c.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}
