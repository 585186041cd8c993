package app

import (
	"context"
	"testing"

	"speech-caption-service/internal/config"
	"speech-caption-service/internal/service/capture"
	"speech-caption-service/internal/service/transcription/mock"
)

func TestNewSource(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.CaptureConfig
		wantErr bool
	}{
		{"portaudio", config.CaptureConfig{Source: "portaudio"}, false},
		{"synthetic", config.CaptureConfig{Source: "synthetic"}, false},
		{"wav", config.CaptureConfig{Source: "wav", WAVPath: "in.wav"}, false},
		{"wav without path", config.CaptureConfig{Source: "wav"}, true},
		{"unknown", config.CaptureConfig{Source: "tape"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, err := newSource(tt.cfg)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if src == nil {
				t.Error("expected a source")
			}
		})
	}
}

func TestNewSource_Synthetic(t *testing.T) {
	src, _ := newSource(config.CaptureConfig{Source: "synthetic"})
	if _, ok := src.(*capture.SyntheticSource); !ok {
		t.Errorf("expected *capture.SyntheticSource, got %T", src)
	}
}

func TestNewTranscriptionClient(t *testing.T) {
	cfg := &config.Configuration{}
	cfg.STT.Provider = "mock"

	c, err := NewTranscriptionClient(context.Background(), cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := c.(*mock.Client); !ok {
		t.Errorf("expected mock client, got %T", c)
	}

	cfg.STT.Provider = "whisper"
	if _, err := NewTranscriptionClient(context.Background(), cfg); err == nil {
		t.Error("expected error for unknown provider")
	}

	cfg.STT.Provider = "azure"
	if _, err := NewTranscriptionClient(context.Background(), cfg); err == nil {
		t.Error("expected error for azure without key")
	}
}

func TestNew_WiresComponents(t *testing.T) {
	cfg := &config.Configuration{}
	cfg.Service.Principal = "svc-test"
	cfg.Capture.Source = "synthetic"
	cfg.Capture.SampleRateHz = 16000
	cfg.STT.Provider = "mock"
	cfg.Settings.Path = t.TempDir() + "/settings.yaml"
	cfg.Loudness.Enabled = true
	cfg.Loudness.Threshold = 0.5
	cfg.Validate()

	a, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer a.Close()

	if a.Pipeline == nil || a.Display == nil || a.HTTPHandler == nil || a.Loudness == nil {
		t.Error("expected all components to be built")
	}
	if a.Client.Provider() != "mock" {
		t.Errorf("expected mock provider, got %s", a.Client.Provider())
	}
	if a.Pipeline.Running() {
		t.Error("expected pipeline to stay stopped until Run")
	}
}
