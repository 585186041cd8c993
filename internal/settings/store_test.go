package settings

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"speech-caption-service/internal/models"
)

func TestNewMemory_Defaults(t *testing.T) {
	s := NewMemory()

	style := s.CaptionStyle()
	if style.FontSize != models.DefaultFontSize {
		t.Errorf("expected font size %d, got %d", models.DefaultFontSize, style.FontSize)
	}
	if style.Color != models.ColorWhite {
		t.Errorf("expected white, got %s", style.Color)
	}
	if style.TextPosition != models.TextPositionCenter {
		t.Errorf("expected Center, got %s", style.TextPosition)
	}
	if style.HUDOffset != DefaultHUDOffset {
		t.Errorf("expected default HUD offset, got %s", style.HUDOffset)
	}
	if s.HUDDisplayTime() != DefaultHUDDisplayTime {
		t.Errorf("expected %v, got %v", DefaultHUDDisplayTime, s.HUDDisplayTime())
	}
	if s.IsolationPolicy().Enabled {
		t.Error("expected isolation disabled")
	}
	if len(s.AcousticSources()) != len(DefaultAcousticSources) {
		t.Errorf("expected default acoustic sources, got %d", len(s.AcousticSources()))
	}
}

func TestSetFontSize_Clamps(t *testing.T) {
	tests := []struct {
		in, expected int
	}{
		{48, 48},
		{5, models.MinFontSize},
		{500, models.MaxFontSize},
		{10, 10},
		{100, 100},
	}

	s := NewMemory()
	for _, tt := range tests {
		got, err := s.SetFontSize(tt.in)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != tt.expected || s.CaptionStyle().FontSize != tt.expected {
			t.Errorf("SetFontSize(%d) stored %d, want %d", tt.in, got, tt.expected)
		}
	}
}

func TestSetCaptionColor_RejectsUnknown(t *testing.T) {
	s := NewMemory()

	if err := s.SetCaptionColor(models.Color("magenta")); err == nil {
		t.Error("expected error for color outside the palette")
	}
	if err := s.SetCaptionColor(models.ColorCyan); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.CaptionStyle().Color != models.ColorCyan {
		t.Errorf("expected cyan, got %s", s.CaptionStyle().Color)
	}
}

func TestTextPosition_NotifiesOnChangeOnly(t *testing.T) {
	s := NewMemory()
	var calls atomic.Int32
	var last atomic.Int32

	unsubscribe := s.OnTextPositionChanged(func(p models.TextPosition) {
		calls.Add(1)
		last.Store(int32(p))
	})

	s.SetTextPosition(models.TextPositionTopLeft)
	s.SetTextPosition(models.TextPositionTopLeft) // unchanged

	if calls.Load() != 1 {
		t.Errorf("expected 1 notification, got %d", calls.Load())
	}
	if models.TextPosition(last.Load()) != models.TextPositionTopLeft {
		t.Errorf("expected TopLeft, got %s", models.TextPosition(last.Load()))
	}

	unsubscribe()
	unsubscribe() // safe to call twice
	s.SetTextPosition(models.TextPositionBottomRight)

	if calls.Load() != 1 {
		t.Errorf("expected no notification after unsubscribe, got %d", calls.Load())
	}
}

func TestSetHUDDisplayTime_RejectsNonPositive(t *testing.T) {
	s := NewMemory()
	if err := s.SetHUDDisplayTime(0); err == nil {
		t.Error("expected error for zero duration")
	}
	if err := s.SetHUDDisplayTime(2 * time.Second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.HUDDisplayTime() != 2*time.Second {
		t.Errorf("expected 2s, got %v", s.HUDDisplayTime())
	}
}

func TestAcousticSource_Lookup(t *testing.T) {
	s := NewMemory()

	src, ok := s.AcousticSource("doorbell")
	if !ok || src.Name != "Doorbell" {
		t.Errorf("expected doorbell source, got %+v (%v)", src, ok)
	}
	if _, ok := s.AcousticSource("siren"); ok {
		t.Error("expected unknown source to be missing")
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")

	s, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.CaptionStyle().FontSize != models.DefaultFontSize {
		t.Error("expected defaults")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("expected no file until the first change")
	}
}

func TestLoad_PersistsAcrossReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "settings.yaml")

	s, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s.SetIsolation(models.IsolationPolicy{Enabled: true, TargetSpeakerID: 2})
	s.SetSpeakerName(7, "Bob")
	s.SetSpeakerPosition(7, models.Vec3{X: 1, Y: 0, Z: 3})
	s.SetFontSize(64)
	s.SetCaptionColor(models.ColorYellow)
	s.SetTextPosition(models.TextPositionBottomLeft)
	s.SetHUDDisplayTime(4 * time.Second)

	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error on reload: %v", err)
	}

	if p := reloaded.IsolationPolicy(); !p.Enabled || p.TargetSpeakerID != 2 {
		t.Errorf("isolation not persisted: %+v", p)
	}
	if reloaded.SpeakerNames()[7] != "Bob" {
		t.Errorf("speaker name not persisted: %v", reloaded.SpeakerNames())
	}
	if pos, ok := reloaded.SpeakerPosition(7); !ok || pos.Z != 3 {
		t.Errorf("speaker position not persisted: %v %v", pos, ok)
	}
	style := reloaded.CaptionStyle()
	if style.FontSize != 64 || style.Color != models.ColorYellow || style.TextPosition != models.TextPositionBottomLeft {
		t.Errorf("style not persisted: %+v", style)
	}
	if reloaded.HUDDisplayTime() != 4*time.Second {
		t.Errorf("display time not persisted: %v", reloaded.HUDDisplayTime())
	}
}

func TestLoad_IgnoresInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	content := `
caption:
  fontSize: 4
  color: purple
  textPosition: Sideways
speakers:
  names:
    1: "  "
    2: Carol
acousticSources:
  - id: siren
    name: Siren
    offset: {x: 0, y: 1, z: 2}
  - name: nameless
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	style := s.CaptionStyle()
	if style.FontSize != models.MinFontSize {
		t.Errorf("expected clamped font size, got %d", style.FontSize)
	}
	if style.Color != models.ColorWhite || style.TextPosition != models.TextPositionCenter {
		t.Errorf("expected default color/position, got %+v", style)
	}
	names := s.SpeakerNames()
	if _, ok := names[1]; ok {
		t.Error("expected blank name to be ignored")
	}
	if names[2] != "Carol" {
		t.Errorf("expected Carol, got %v", names)
	}
	sources := s.AcousticSources()
	if len(sources) != 1 || sources[0].ID != "siren" {
		t.Errorf("expected only the siren source, got %+v", sources)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	os.WriteFile(path, []byte("caption: [unclosed"), 0o644)

	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}
