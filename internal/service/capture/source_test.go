package capture

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSnapshot_ShorterThanRequestedBeforeBufferFills(t *testing.T) {
	src := NewSyntheticSource(Options{SampleRateHz: 1000, BufferDuration: 10 * time.Second, SpeakerID: 3}, 0, 0)

	if w := src.Snapshot(3 * time.Second); !w.Empty() {
		t.Errorf("expected empty window before capture, got %d bytes", len(w.Data))
	}

	src.Feed(seq(1, 500)) // half a second
	w := src.Snapshot(3 * time.Second)

	if w.Duration != 500*time.Millisecond {
		t.Errorf("expected 500ms window, got %v", w.Duration)
	}
	if len(w.Data) != 1000 {
		t.Errorf("expected 1000 bytes, got %d", len(w.Data))
	}
	if w.SpeakerID != 3 {
		t.Errorf("expected speaker 3, got %d", w.SpeakerID)
	}
	if w.Encoding != EncodingLinear16 || w.SampleRate != 1000 {
		t.Errorf("unexpected format %s@%d", w.Encoding, w.SampleRate)
	}
}

func TestSnapshot_ReturnsMostRecentAudio(t *testing.T) {
	src := NewSyntheticSource(Options{SampleRateHz: 100, BufferDuration: 2 * time.Second}, 0, 0)
	src.Feed(seq(0, 300)) // 3s into a 2s buffer

	w := src.Snapshot(time.Second)
	samples := w.Samples()

	if len(samples) != 100 {
		t.Fatalf("expected 100 samples, got %d", len(samples))
	}
	if samples[0] != 200 || samples[99] != 299 {
		t.Errorf("expected samples 200..299, got %d..%d", samples[0], samples[99])
	}
}

func TestSyntheticSource_CapturesContinuously(t *testing.T) {
	src := NewSyntheticSource(Options{SampleRateHz: 8000, BufferDuration: time.Second}, 0.5, 440)

	if err := src.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	time.Sleep(150 * time.Millisecond)
	if err := src.Stop(); err != nil {
		t.Fatalf("unexpected error on stop: %v", err)
	}

	w := src.Snapshot(time.Second)
	if w.Empty() {
		t.Fatal("expected captured audio")
	}

	var peak int16
	for _, s := range w.Samples() {
		if s > peak {
			peak = s
		}
	}
	if peak < 10000 {
		t.Errorf("expected a half-scale tone, peak was %d", peak)
	}
}

func TestSyntheticSource_StopIdempotent(t *testing.T) {
	src := NewSyntheticSource(DefaultOptions(), 0, 0)
	if err := src.Stop(); err != nil {
		t.Errorf("stop before start should be a no-op, got %v", err)
	}
	src.Start(context.Background())
	src.Stop()
	if err := src.Stop(); err != nil {
		t.Errorf("second stop should be a no-op, got %v", err)
	}
}

func TestEncodeWAV_HeaderRoundTrip(t *testing.T) {
	pcm := []byte{1, 0, 2, 0, 3, 0}
	wav := EncodeWAV(pcm, 16000)

	if len(wav) != wavHeaderSize+len(pcm) {
		t.Fatalf("expected %d bytes, got %d", wavHeaderSize+len(pcm), len(wav))
	}

	format, err := ReadWAVHeader(bytes.NewReader(wav))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if format.SampleRate != 16000 || format.Channels != 1 || format.BitsPerSample != 16 {
		t.Errorf("unexpected format %+v", format)
	}
	if !bytes.Equal(wav[wavHeaderSize:], pcm) {
		t.Error("expected PCM payload after header")
	}
}

func TestReadWAVHeader_RejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"too short", []byte("RIFF")},
		{"not riff", append([]byte("JUNK0000WAVE"), make([]byte, 32)...)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ReadWAVHeader(bytes.NewReader(tt.data)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestWAVSource_ReplaysFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "speech.wav")

	pcm := make([]byte, 1600) // 100ms at 8 kHz
	for i := range pcm {
		pcm[i] = byte(i)
	}
	if err := os.WriteFile(path, EncodeWAV(pcm, 8000), 0o644); err != nil {
		t.Fatal(err)
	}

	src := NewWAVSource(Options{SampleRateHz: 8000, BufferDuration: time.Second}, path)
	if err := src.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	time.Sleep(250 * time.Millisecond)
	src.Stop()

	if w := src.Snapshot(time.Second); w.Empty() {
		t.Error("expected replayed audio in buffer")
	}
}

func TestWAVSource_MissingFileIsCaptureUnavailable(t *testing.T) {
	src := NewWAVSource(DefaultOptions(), filepath.Join(t.TempDir(), "missing.wav"))

	err := src.Start(context.Background())
	if !errors.Is(err, ErrCaptureUnavailable) {
		t.Errorf("expected ErrCaptureUnavailable, got %v", err)
	}
}
