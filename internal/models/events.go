package models

// Event types published on the caption event stream.
const (
	EventTypeCaptionDisplayed   = "caption.displayed"
	EventTypeOnboardingRequired = "speaker.onboarding.required"
)

// CaptionDisplayed is published once per caption that reached the display.
type CaptionDisplayed struct {
	EventType   string  `json:"eventType"`
	SessionID   string  `json:"sessionId"`
	Tick        uint64  `json:"tick"`
	SpeakerID   int     `json:"speakerId"`
	DisplayName string  `json:"displayName"`
	Text        string  `json:"text"`
	Confidence  float64 `json:"confidence,omitempty"`
	Manual      bool    `json:"manual,omitempty"`
	Timestamp   int64   `json:"timestamp"`
}

// OnboardingRequired is published the first time an unnamed speaker is heard.
type OnboardingRequired struct {
	EventType string `json:"eventType"`
	SpeakerID int    `json:"speakerId"`
	Timestamp int64  `json:"timestamp"`
}
