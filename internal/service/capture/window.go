// Package capture owns the audio input: a continuously filled ring buffer
// and snapshots of its most recent seconds as transcription windows.
package capture

import (
	"encoding/binary"
	"time"
)

// EncodingLinear16 is signed 16-bit little-endian mono PCM.
const EncodingLinear16 = "LINEAR16"

// AudioWindow is an immutable slice of captured audio.
type AudioWindow struct {
	Data       []byte // PCM, see Encoding
	SampleRate int
	Duration   time.Duration
	Encoding   string
	// SpeakerID is the externally supplied speaker for this input channel.
	SpeakerID  int
	CapturedAt time.Time
}

// Empty reports whether the window carries no audio.
func (w AudioWindow) Empty() bool {
	return len(w.Data) == 0
}

// Samples decodes the window back to 16-bit samples.
func (w AudioWindow) Samples() []int16 {
	out := make([]int16, len(w.Data)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(w.Data[i*2:]))
	}
	return out
}

func newWindow(samples []int16, sampleRate, speakerID int) AudioWindow {
	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(s))
	}
	var dur time.Duration
	if sampleRate > 0 {
		dur = time.Duration(len(samples)) * time.Second / time.Duration(sampleRate)
	}
	return AudioWindow{
		Data:       data,
		SampleRate: sampleRate,
		Duration:   dur,
		Encoding:   EncodingLinear16,
		SpeakerID:  speakerID,
		CapturedAt: time.Now(),
	}
}
