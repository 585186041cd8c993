// Package mock provides a scripted transcription client for running without
// cloud credentials. It answers each window with the next utterance of a
// script after a simulated network delay.
package mock

import (
	"context"
	"sync"
	"time"

	"speech-caption-service/internal/service/capture"
	"speech-caption-service/internal/service/transcription"
)

// Utterance is one scripted answer.
type Utterance struct {
	Text       string
	SpeakerID  int
	Confidence float64
}

// DefaultUtterances cycles between two speakers so onboarding and
// captioning both show up in a demo run.
var DefaultUtterances = []Utterance{
	{Text: "Can everyone hear me", SpeakerID: 0, Confidence: 0.94},
	{Text: "Yes loud and clear", SpeakerID: 1, Confidence: 0.91},
	{Text: "Let's start with the agenda", SpeakerID: 0, Confidence: 0.97},
	{Text: "I have a question about the budget", SpeakerID: 1, Confidence: 0.89},
	{Text: "Thank you very much", SpeakerID: 0, Confidence: 0.98},
}

// Client implements transcription.Client with scripted responses.
type Client struct {
	latency time.Duration

	mu     sync.Mutex
	script []Utterance
	next   int
	calls  int
}

// New creates a mock client. With no utterances, DefaultUtterances is used.
func New(latency time.Duration, utterances ...Utterance) *Client {
	if len(utterances) == 0 {
		utterances = DefaultUtterances
	}
	return &Client{latency: latency, script: utterances}
}

// Transcribe returns the next scripted utterance. Empty windows transcribe
// to silence (Success=false).
func (c *Client) Transcribe(ctx context.Context, w capture.AudioWindow) (transcription.Result, error) {
	c.mu.Lock()
	c.calls++
	if w.Empty() {
		c.mu.Unlock()
		return transcription.Result{SpeakerID: w.SpeakerID}, nil
	}
	utt := c.script[c.next%len(c.script)]
	c.next++
	c.mu.Unlock()

	if c.latency > 0 {
		timer := time.NewTimer(c.latency)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return transcription.Result{}, ctx.Err()
		}
	}

	return transcription.Result{
		Text:       utt.Text,
		SpeakerID:  utt.SpeakerID,
		Confidence: utt.Confidence,
		Success:    true,
	}, nil
}

// Calls returns how many windows were submitted.
func (c *Client) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}
