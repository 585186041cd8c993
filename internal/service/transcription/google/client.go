// Package google provides a Google Cloud Speech-to-Text transcription client.
package google

import (
	"context"
	"errors"
	"fmt"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"

	"speech-caption-service/internal/observability/logging"
	"speech-caption-service/internal/service/capture"
	"speech-caption-service/internal/service/transcription"
)

// Config holds Google recognition settings.
type Config struct {
	LanguageCode  string
	SampleRateHz  int32 // used when the window does not carry a rate
	AudioEncoding string
	Model         string
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		LanguageCode:  "en-US",
		SampleRateHz:  16000,
		AudioEncoding: "LINEAR16",
	}
}

// recognizer is the subset of the Speech client used per window.
type recognizer interface {
	Recognize(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error)
}

type speechRecognizer struct {
	client *speech.Client
}

func (r speechRecognizer) Recognize(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error) {
	return r.client.Recognize(ctx, req)
}

// Client implements transcription.Client with synchronous Recognize calls,
// one per window.
type Client struct {
	rec    recognizer
	closer func() error
	cfg    Config
	logger zerolog.Logger
}

// New creates a Google client.
// Requires GOOGLE_APPLICATION_CREDENTIALS environment variable to be set.
func New(ctx context.Context, cfg Config) (*Client, error) {
	c, err := speech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create speech client: %w", err)
	}
	client := newClient(speechRecognizer{client: c}, cfg)
	client.closer = c.Close
	return client, nil
}

func newClient(rec recognizer, cfg Config) *Client {
	return &Client{
		rec:    rec,
		closer: func() error { return nil },
		cfg:    cfg,
		logger: logging.WithComponent("stt-google"),
	}
}

// Transcribe implements transcription.Client. The speaker id is taken from
// the window; Google is not asked to diarize.
func (c *Client) Transcribe(ctx context.Context, w capture.AudioWindow) (transcription.Result, error) {
	rate := int32(w.SampleRate)
	if rate <= 0 {
		rate = c.cfg.SampleRateHz
	}
	encoding := c.cfg.AudioEncoding
	if w.Encoding != "" {
		encoding = w.Encoding
	}

	resp, err := c.rec.Recognize(ctx, &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:        parseAudioEncoding(encoding),
			SampleRateHertz: rate,
			LanguageCode:    c.cfg.LanguageCode,
			Model:           c.cfg.Model,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: w.Data},
		},
	})
	if err != nil {
		return transcription.Result{}, mapError(err)
	}
	if resp == nil {
		return transcription.Result{}, transcription.ErrMalformedResponse
	}

	res := transcription.Result{SpeakerID: w.SpeakerID}
	if len(resp.Results) == 0 {
		return res, nil
	}

	var parts []string
	var confidence float64
	for _, r := range resp.Results {
		if len(r.Alternatives) == 0 {
			continue
		}
		alt := r.Alternatives[0]
		if t := strings.TrimSpace(alt.Transcript); t != "" {
			parts = append(parts, t)
			confidence += float64(alt.Confidence)
		}
	}
	if len(parts) == 0 {
		c.logger.Debug().
			Str("response", protojson.Format(resp)).
			Msg("Recognize returned results without transcripts")
		return transcription.Result{}, fmt.Errorf("%w: results without alternatives", transcription.ErrMalformedResponse)
	}

	res.Text = strings.Join(parts, " ")
	res.Confidence = confidence / float64(len(parts))
	res.Success = true
	return res, nil
}

// Close releases the underlying gRPC connection.
func (c *Client) Close() error {
	return c.closer()
}

func mapError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", transcription.ErrTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	st, ok := status.FromError(err)
	if !ok {
		return fmt.Errorf("recognize: %w", err)
	}
	switch st.Code() {
	case codes.DeadlineExceeded:
		return fmt.Errorf("%w: %s", transcription.ErrTimeout, st.Message())
	case codes.Canceled:
		return context.Canceled
	default:
		return &transcription.ServiceError{Code: int(st.Code()), Message: st.Message()}
	}
}

// parseAudioEncoding converts string encoding name to speechpb enum.
func parseAudioEncoding(encoding string) speechpb.RecognitionConfig_AudioEncoding {
	switch encoding {
	case "LINEAR16":
		return speechpb.RecognitionConfig_LINEAR16
	case "FLAC":
		return speechpb.RecognitionConfig_FLAC
	case "MULAW":
		return speechpb.RecognitionConfig_MULAW
	case "AMR":
		return speechpb.RecognitionConfig_AMR
	case "AMR_WB":
		return speechpb.RecognitionConfig_AMR_WB
	case "OGG_OPUS":
		return speechpb.RecognitionConfig_OGG_OPUS
	case "SPEEX_WITH_HEADER_BYTE":
		return speechpb.RecognitionConfig_SPEEX_WITH_HEADER_BYTE
	case "WEBM_OPUS":
		return speechpb.RecognitionConfig_WEBM_OPUS
	default:
		return speechpb.RecognitionConfig_LINEAR16
	}
}
