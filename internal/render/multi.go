package render

import (
	"speech-caption-service/internal/service/display"
)

// Target is everything a render backend can receive.
type Target interface {
	display.Renderer
	PulseHaptic(handle string)
	SetNoiseWarning(on bool, level float64)
}

// Multi fans every call out to each target in order.
type Multi []Target

func (m Multi) RenderCaption(req display.RenderRequest) {
	for _, t := range m {
		t.RenderCaption(req)
	}
}

func (m Multi) HideCaption() {
	for _, t := range m {
		t.HideCaption()
	}
}

func (m Multi) PulseHaptic(handle string) {
	for _, t := range m {
		t.PulseHaptic(handle)
	}
}

func (m Multi) SetNoiseWarning(on bool, level float64) {
	for _, t := range m {
		t.SetNoiseWarning(on, level)
	}
}
