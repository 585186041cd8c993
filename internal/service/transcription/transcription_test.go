package transcription

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"speech-caption-service/internal/service/capture"
)

type testClient struct {
	delay  time.Duration
	result Result
	err    error
}

func (c *testClient) Transcribe(ctx context.Context, w capture.AudioWindow) (Result, error) {
	if c.delay > 0 {
		select {
		case <-time.After(c.delay):
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
	}
	return c.result, c.err
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"nil", nil, ""},
		{"timeout", ErrTimeout, KindTimeout},
		{"wrapped timeout", fmt.Errorf("call: %w", ErrTimeout), KindTimeout},
		{"deadline", context.DeadlineExceeded, KindTimeout},
		{"service", &ServiceError{Code: 503}, KindService},
		{"wrapped service", fmt.Errorf("azure: %w", &ServiceError{Code: 401}), KindService},
		{"malformed", ErrMalformedResponse, KindMalformed},
		{"canceled", context.Canceled, KindCanceled},
		{"other", errors.New("boom"), KindOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.expected {
				t.Errorf("KindOf(%v) = %q, want %q", tt.err, got, tt.expected)
			}
		})
	}
}

func TestServiceError_Message(t *testing.T) {
	err := &ServiceError{Code: 429, Message: "too many requests"}
	if err.Error() != "transcription service error 429: too many requests" {
		t.Errorf("unexpected message: %s", err.Error())
	}
	if (&ServiceError{Code: 500}).Error() != "transcription service error 500" {
		t.Error("expected code-only message")
	}
}

func TestResult_Captionable(t *testing.T) {
	tests := []struct {
		name     string
		result   Result
		expected bool
	}{
		{"success with text", Result{Text: "hi", Success: true}, true},
		{"success empty", Result{Success: true}, false},
		{"failed with text", Result{Text: "hi"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.result.Captionable(); got != tt.expected {
				t.Errorf("Captionable() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestGuarded_PassesThroughResult(t *testing.T) {
	inner := &testClient{result: Result{Text: "hello", SpeakerID: 2, Confidence: 0.9, Success: true}}
	g := NewGuarded(inner, "test", time.Second)

	res, err := g.Transcribe(context.Background(), capture.AudioWindow{Data: []byte{0, 0}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Text != "hello" || res.SpeakerID != 2 {
		t.Errorf("unexpected result %+v", res)
	}
	if g.Provider() != "test" {
		t.Errorf("expected provider 'test', got %s", g.Provider())
	}
}

func TestGuarded_DeadlineBecomesTimeout(t *testing.T) {
	inner := &testClient{delay: time.Second}
	g := NewGuarded(inner, "test", 20*time.Millisecond)

	start := time.Now()
	_, err := g.Transcribe(context.Background(), capture.AudioWindow{})

	if !errors.Is(err, ErrTimeout) {
		t.Errorf("expected ErrTimeout, got %v", err)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Error("expected the call to be cut off at the deadline")
	}
}

func TestGuarded_CallerCancelIsNotTimeout(t *testing.T) {
	inner := &testClient{delay: time.Second}
	g := NewGuarded(inner, "test", time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := g.Transcribe(ctx, capture.AudioWindow{})
	if KindOf(err) != KindCanceled {
		t.Errorf("expected canceled kind, got %q (%v)", KindOf(err), err)
	}
}

func TestGuarded_ServiceErrorUnchanged(t *testing.T) {
	inner := &testClient{err: &ServiceError{Code: 500}}
	g := NewGuarded(inner, "test", time.Second)

	_, err := g.Transcribe(context.Background(), capture.AudioWindow{})

	var svc *ServiceError
	if !errors.As(err, &svc) || svc.Code != 500 {
		t.Errorf("expected ServiceError 500, got %v", err)
	}
}
