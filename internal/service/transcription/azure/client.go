// Package azure provides an Azure Speech REST transcription client.
// Each window is posted as a WAV file to the short-audio recognition endpoint.
package azure

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"speech-caption-service/internal/observability/logging"
	"speech-caption-service/internal/service/capture"
	"speech-caption-service/internal/service/transcription"
)

const statusSuccess = "Success"

// Config holds Azure credentials and endpoint selection.
type Config struct {
	Key          string
	Region       string
	Endpoint     string // overrides the region-derived endpoint
	LanguageCode string
}

// URL returns the recognition endpoint including the language query.
func (c Config) URL() string {
	base := c.Endpoint
	if base == "" {
		base = fmt.Sprintf("https://%s.stt.speech.microsoft.com/speech/recognition/conversation/cognitiveservices/v1", c.Region)
	}
	lang := c.LanguageCode
	if lang == "" {
		lang = "en-US"
	}
	return base + "?language=" + url.QueryEscape(lang)
}

// response is the simple-format recognition body.
type response struct {
	RecognitionStatus string `json:"RecognitionStatus"`
	DisplayText       string `json:"DisplayText"`
	Offset            int64  `json:"Offset"`
	Duration          int64  `json:"Duration"`
}

// Client implements transcription.Client against the Azure REST API.
type Client struct {
	cfg    Config
	url    string
	http   *http.Client
	logger zerolog.Logger
}

// New creates an Azure client.
func New(cfg Config) (*Client, error) {
	if cfg.Key == "" {
		return nil, errors.New("azure speech key is required")
	}
	if cfg.Region == "" && cfg.Endpoint == "" {
		return nil, errors.New("azure speech region or endpoint is required")
	}
	return &Client{
		cfg:    cfg,
		url:    cfg.URL(),
		http:   newHTTPClient(),
		logger: logging.WithComponent("stt-azure"),
	}, nil
}

func newHTTPClient() *http.Client {
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        16,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	// Per-call deadlines come from the context.
	return &http.Client{Transport: tr}
}

// Transcribe implements transcription.Client.
func (c *Client) Transcribe(ctx context.Context, w capture.AudioWindow) (transcription.Result, error) {
	body := capture.EncodeWAV(w.Data, w.SampleRate)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return transcription.Result{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", c.cfg.Key)
	req.Header.Set("Content-Type", fmt.Sprintf("audio/wav; codecs=audio/pcm; samplerate=%d", w.SampleRate))
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return transcription.Result{}, fmt.Errorf("%w: %v", transcription.ErrTimeout, err)
		}
		return transcription.Result{}, fmt.Errorf("azure request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		const maxErr = 4096
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErr))
		return transcription.Result{}, &transcription.ServiceError{
			Code:    resp.StatusCode,
			Message: strings.TrimSpace(string(msg)),
		}
	}

	var out response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return transcription.Result{}, fmt.Errorf("%w: %v", transcription.ErrMalformedResponse, err)
	}

	res := transcription.Result{SpeakerID: w.SpeakerID}
	if out.RecognitionStatus != statusSuccess {
		c.logger.Debug().
			Str("status", out.RecognitionStatus).
			Msg("No speech recognized in window")
		return res, nil
	}

	// The simple format carries no confidence.
	res.Text = strings.TrimSpace(out.DisplayText)
	res.Confidence = 1
	res.Success = true
	return res, nil
}
