// Package models defines the value types shared between the captioning
// components and the event payloads published for them.
package models

import "fmt"

// ManualSpeakerID marks captions that did not originate from speech.
const ManualSpeakerID = -1

// Vec2 is a normalized 2D point, used for HUD anchor pivots.
type Vec2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Vec3 is a position or offset in viewer space, in meters.
type Vec3 struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
}

// Add returns v+o.
func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z}
}

func (v Vec3) String() string {
	return fmt.Sprintf("(%.2f, %.2f, %.2f)", v.X, v.Y, v.Z)
}

// CaptionEvent is one approved caption handed to the display.
type CaptionEvent struct {
	SpeakerID     int
	DisplayName   string
	Text          string
	SpawnPosition *Vec3
	// Tick is the pipeline tick that produced the caption, zero for manual events.
	Tick uint64
}

// IsolationPolicy suppresses every speaker except TargetSpeakerID when enabled.
type IsolationPolicy struct {
	Enabled         bool
	TargetSpeakerID int
}

// Allows reports whether captions from speakerID pass the policy.
func (p IsolationPolicy) Allows(speakerID int) bool {
	return !p.Enabled || speakerID == p.TargetSpeakerID
}

// AcousticSource is a named non-speech event with a fixed spawn offset.
type AcousticSource struct {
	ID     string `json:"id" yaml:"id"`
	Name   string `json:"name" yaml:"name"`
	Offset Vec3   `json:"offset" yaml:"offset"`
}
