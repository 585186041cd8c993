package render

import (
	"github.com/rs/zerolog"

	"speech-caption-service/internal/observability/logging"
	"speech-caption-service/internal/service/display"
)

// LogRenderer writes render calls to the log.
type LogRenderer struct {
	logger zerolog.Logger
}

// NewLogRenderer creates a log renderer.
func NewLogRenderer() *LogRenderer {
	return &LogRenderer{logger: logging.WithComponent("render")}
}

func (r *LogRenderer) RenderCaption(req display.RenderRequest) {
	r.logger.Info().
		Int("speakerId", req.SpeakerID).
		Str("speaker", req.SpeakerName).
		Str("text", req.Text).
		Str("color", string(req.Color)).
		Int("fontSize", req.FontSize).
		Str("position", req.Position.String()).
		Str("anchor", req.AnchorName).
		Floats64("pivot", []float64{req.Pivot.X, req.Pivot.Y}).
		Bool("spatial", req.Spatial).
		Msg("Caption")
}

func (r *LogRenderer) HideCaption() {
	r.logger.Debug().Msg("Caption hidden")
}

func (r *LogRenderer) PulseHaptic(handle string) {
	r.logger.Debug().Str("handle", handle).Msg("Haptic pulse")
}

func (r *LogRenderer) SetNoiseWarning(on bool, level float64) {
	r.logger.Info().Bool("warning", on).Float64("level", level).Msg("Noise warning")
}
