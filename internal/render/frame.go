// Package render implements the render boundary: the overlay hub that
// pushes caption, haptic and warning frames to connected displays, and a
// log renderer for headless runs.
package render

import (
	"time"

	"speech-caption-service/internal/service/display"
)

// Frame types sent to overlay clients.
const (
	FrameCaption    = "caption"
	FrameHide       = "hide"
	FrameHaptic     = "haptic"
	FrameNoise      = "noise"
	FrameOnboarding = "onboarding"
)

// Frame is one overlay message.
type Frame struct {
	Type      string                 `json:"type"`
	Caption   *display.RenderRequest `json:"caption,omitempty"`
	Handle    string                 `json:"handle,omitempty"`
	Warning   *bool                  `json:"warning,omitempty"`
	Level     float64                `json:"level,omitempty"`
	SpeakerID *int                   `json:"speakerId,omitempty"`
	Timestamp int64                  `json:"timestamp"`
}

func newFrame(typ string) Frame {
	return Frame{Type: typ, Timestamp: time.Now().UnixMilli()}
}
