// Package transcription defines the boundary to remote speech-to-text services.
package transcription

import (
	"context"
	"errors"
	"fmt"

	"speech-caption-service/internal/service/capture"
)

// Error kinds used as metric and log labels.
const (
	KindTimeout   = "timeout"
	KindService   = "service"
	KindMalformed = "malformed"
	KindCanceled  = "canceled"
	KindOther     = "other"
)

var (
	// ErrTimeout means the provider did not answer within the call deadline.
	ErrTimeout = errors.New("transcription timed out")

	// ErrMalformedResponse means the provider answered with something undecodable.
	ErrMalformedResponse = errors.New("malformed transcription response")
)

// ServiceError is a provider-side failure carrying the provider's status code
// (HTTP status for REST providers, gRPC code for Google).
type ServiceError struct {
	Code    int
	Message string
}

func (e *ServiceError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("transcription service error %d", e.Code)
	}
	return fmt.Sprintf("transcription service error %d: %s", e.Code, e.Message)
}

// Result is one provider answer for one window.
// Success=false or empty Text means there is nothing to caption.
type Result struct {
	Text       string
	SpeakerID  int
	Confidence float64
	Success    bool
}

// Captionable reports whether the result should reach the router.
func (r Result) Captionable() bool {
	return r.Success && r.Text != ""
}

// Client turns one audio window into text.
type Client interface {
	Transcribe(ctx context.Context, w capture.AudioWindow) (Result, error)
}

// KindOf maps an error to one of the Kind* labels; nil maps to "".
func KindOf(err error) string {
	var svc *ServiceError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.As(err, &svc):
		return KindService
	case errors.Is(err, ErrMalformedResponse):
		return KindMalformed
	case errors.Is(err, context.Canceled):
		return KindCanceled
	default:
		return KindOther
	}
}
