// Package http exposes the control API for the captioning service.
package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"speech-caption-service/internal/models"
	"speech-caption-service/internal/observability/logging"
	"speech-caption-service/internal/service/display"
	"speech-caption-service/internal/service/onboarding"
	"speech-caption-service/internal/service/pipeline"
	"speech-caption-service/internal/service/speaker"
)

// Speakers lists registry profiles.
type Speakers interface {
	List() []speaker.Profile
}

// Onboarding accepts submitted names and lists open requests.
type Onboarding interface {
	OnNameSubmitted(speakerID int, name string) error
	Pending() []onboarding.Pending
}

// Settings is the mutable user settings surface.
type Settings interface {
	IsolationPolicy() models.IsolationPolicy
	SetIsolation(p models.IsolationPolicy) error
	CaptionStyle() models.CaptionStyle
	SetFontSize(size int) (int, error)
	SetCaptionColor(c models.Color) error
	SetTextPosition(p models.TextPosition) error
	SetHUDOffset(v models.Vec3) error
	HUDDisplayTime() time.Duration
	SetHUDDisplayTime(d time.Duration) error
	AcousticSources() []models.AcousticSource
}

// Pipeline is the captioning pipeline control surface.
type Pipeline interface {
	Running() bool
	Status() pipeline.Status
	TriggerManualEvent(sourceID string) error
}

// Display exposes the current caption session.
type Display interface {
	Snapshot() display.Snapshot
}

// Deps are the components the router serves. Overlay may be nil.
type Deps struct {
	Speakers   Speakers
	Onboarding Onboarding
	Settings   Settings
	Pipeline   Pipeline
	Display    Display
	Overlay    http.HandlerFunc
}

type handlers struct {
	Deps
	logger zerolog.Logger
}

// NewRouter constructs the HTTP router for the service.
func NewRouter(deps Deps) http.Handler {
	h := &handlers{Deps: deps, logger: logging.WithComponent("http")}
	r := chi.NewRouter()

	// Basic middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// Health endpoints
	r.Get("/v1/liveness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/v1/readiness", h.readiness)

	// API routes
	r.Route("/v1", func(r chi.Router) {
		r.Get("/status", h.status)
		r.Get("/caption", h.caption)

		r.Get("/speakers", h.listSpeakers)
		r.Put("/speakers/{id}/name", h.submitName)
		r.Get("/onboarding", h.listPending)

		r.Get("/settings/isolation", h.getIsolation)
		r.Put("/settings/isolation", h.putIsolation)
		r.Get("/settings/style", h.getStyle)
		r.Patch("/settings/style", h.patchStyle)

		r.Get("/events", h.listSources)
		r.Post("/events/{sourceId}", h.triggerEvent)

		if deps.Overlay != nil {
			r.Get("/overlay", deps.Overlay)
		}
	})

	return r
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, errorResponse{Error: err.Error()})
}

func (h *handlers) readiness(w http.ResponseWriter, _ *http.Request) {
	if !h.Pipeline.Running() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (h *handlers) status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.Pipeline.Status())
}

func (h *handlers) caption(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.Display.Snapshot())
}

func (h *handlers) listSpeakers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.Speakers.List())
}

type nameRequest struct {
	Name string `json:"name"`
}

func (h *handlers) submitName(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id < 0 {
		writeError(w, http.StatusBadRequest, errors.New("speaker id must be a non-negative integer"))
		return
	}

	var req nameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := h.Onboarding.OnNameSubmitted(id, req.Name); err != nil {
		if errors.Is(err, speaker.ErrInvalidName) {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		h.logger.Error().Err(err).Int("speakerId", id).Msg("Failed to assign speaker name")
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) listPending(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.Onboarding.Pending())
}

type isolationBody struct {
	Enabled         bool `json:"enabled"`
	TargetSpeakerID int  `json:"targetSpeakerId"`
}

func (h *handlers) getIsolation(w http.ResponseWriter, _ *http.Request) {
	p := h.Settings.IsolationPolicy()
	writeJSON(w, http.StatusOK, isolationBody{Enabled: p.Enabled, TargetSpeakerID: p.TargetSpeakerID})
}

func (h *handlers) putIsolation(w http.ResponseWriter, r *http.Request) {
	var body isolationBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.Settings.SetIsolation(models.IsolationPolicy{
		Enabled:         body.Enabled,
		TargetSpeakerID: body.TargetSpeakerID,
	}); err != nil {
		h.logger.Error().Err(err).Msg("Failed to persist isolation policy")
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

type styleResponse struct {
	FontSize           int         `json:"fontSize"`
	Color              string      `json:"color"`
	ColorHex           string      `json:"colorHex"`
	TextPosition       string      `json:"textPosition"`
	HUDOffset          models.Vec3 `json:"hudOffset"`
	DisplayTimeSeconds float64     `json:"displayTimeSeconds"`
}

type stylePatch struct {
	FontSize           *int         `json:"fontSize"`
	Color              *string      `json:"color"`
	TextPosition       *string      `json:"textPosition"`
	HUDOffset          *models.Vec3 `json:"hudOffset"`
	DisplayTimeSeconds *float64     `json:"displayTimeSeconds"`
}

func (h *handlers) style() styleResponse {
	s := h.Settings.CaptionStyle()
	return styleResponse{
		FontSize:           s.FontSize,
		Color:              string(s.Color),
		ColorHex:           s.Color.Hex(),
		TextPosition:       s.TextPosition.String(),
		HUDOffset:          s.HUDOffset,
		DisplayTimeSeconds: h.Settings.HUDDisplayTime().Seconds(),
	}
}

func (h *handlers) getStyle(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.style())
}

// patchStyle validates every field before applying any of them.
func (h *handlers) patchStyle(w http.ResponseWriter, r *http.Request) {
	var patch stylePatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var (
		color    models.Color
		position models.TextPosition
		err      error
	)
	if patch.Color != nil {
		if color, err = models.ParseColor(*patch.Color); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	if patch.TextPosition != nil {
		if position, err = models.ParseTextPosition(*patch.TextPosition); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	if patch.DisplayTimeSeconds != nil && *patch.DisplayTimeSeconds <= 0 {
		writeError(w, http.StatusBadRequest, errors.New("displayTimeSeconds must be positive"))
		return
	}

	var errs []error
	if patch.FontSize != nil {
		_, err := h.Settings.SetFontSize(*patch.FontSize)
		errs = append(errs, err)
	}
	if patch.Color != nil {
		errs = append(errs, h.Settings.SetCaptionColor(color))
	}
	if patch.TextPosition != nil {
		errs = append(errs, h.Settings.SetTextPosition(position))
	}
	if patch.HUDOffset != nil {
		errs = append(errs, h.Settings.SetHUDOffset(*patch.HUDOffset))
	}
	if patch.DisplayTimeSeconds != nil {
		d := time.Duration(*patch.DisplayTimeSeconds * float64(time.Second))
		errs = append(errs, h.Settings.SetHUDDisplayTime(d))
	}
	if err := errors.Join(errs...); err != nil {
		h.logger.Error().Err(err).Msg("Failed to persist caption style")
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, h.style())
}

func (h *handlers) listSources(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.Settings.AcousticSources())
}

func (h *handlers) triggerEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sourceId")
	if err := h.Pipeline.TriggerManualEvent(id); err != nil {
		if errors.Is(err, pipeline.ErrUnknownSource) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
