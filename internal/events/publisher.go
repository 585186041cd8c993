// Package events publishes caption stream events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"speech-caption-service/internal/models"
	"speech-caption-service/internal/observability/metrics"
)

// Validator checks an event before it is written.
type Validator interface {
	Validate(event any) error
}

// Publisher publishes caption and onboarding events to separate Kafka topics.
type Publisher struct {
	writerCaptions   *kafka.Writer
	writerOnboarding *kafka.Writer
	principal        string
	topicCaptions    string
	topicOnboarding  string
	enabled          bool
	validator        Validator
	metrics          *metrics.Metrics
}

// Config holds Kafka publisher configuration.
type Config struct {
	Brokers         []string
	TopicCaptions   string
	TopicOnboarding string
	Principal       string
	Enabled         bool
}

// New creates a new Kafka event publisher. validator may be nil.
func New(cfg *Config, validator Validator) *Publisher {
	m := metrics.DefaultMetrics

	// Handle nil config case
	if cfg == nil {
		log.Info().Msg("Kafka disabled (nil config), using log-only mode")
		return &Publisher{
			enabled:   false,
			validator: validator,
			metrics:   m,
		}
	}

	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		log.Info().Msg("Kafka disabled, using log-only mode")
		return &Publisher{
			principal:       cfg.Principal,
			topicCaptions:   cfg.TopicCaptions,
			topicOnboarding: cfg.TopicOnboarding,
			enabled:         false,
			validator:       validator,
			metrics:         m,
		}
	}

	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}

	transport := &kafka.Transport{
		Dial: dialer.DialFunc,
	}

	newWriter := func(topic string) *kafka.Writer {
		return &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 10 * time.Millisecond,
			WriteTimeout: 10 * time.Second,
			RequiredAcks: kafka.RequireOne,
			Transport:    transport,
		}
	}

	log.Info().
		Strs("brokers", cfg.Brokers).
		Str("topicCaptions", cfg.TopicCaptions).
		Str("topicOnboarding", cfg.TopicOnboarding).
		Str("principal", cfg.Principal).
		Msg("Kafka publisher initialized")

	return &Publisher{
		writerCaptions:   newWriter(cfg.TopicCaptions),
		writerOnboarding: newWriter(cfg.TopicOnboarding),
		principal:        cfg.Principal,
		topicCaptions:    cfg.TopicCaptions,
		topicOnboarding:  cfg.TopicOnboarding,
		enabled:          true,
		validator:        validator,
		metrics:          m,
	}
}

// PublishCaption publishes a displayed caption keyed by session, so one
// session's captions stay ordered on a single partition.
func (p *Publisher) PublishCaption(ctx context.Context, ev models.CaptionDisplayed) error {
	return p.publish(ctx, p.writerCaptions, p.topicCaptions, ev.EventType, ev.SessionID, ev)
}

// PublishOnboarding publishes an onboarding request keyed by speaker.
func (p *Publisher) PublishOnboarding(ctx context.Context, ev models.OnboardingRequired) error {
	return p.publish(ctx, p.writerOnboarding, p.topicOnboarding, ev.EventType, strconv.Itoa(ev.SpeakerID), ev)
}

// PromptOnboarding publishes an onboarding request for speakerID.
func (p *Publisher) PromptOnboarding(ctx context.Context, speakerID int) error {
	return p.PublishOnboarding(ctx, models.OnboardingRequired{
		EventType: models.EventTypeOnboardingRequired,
		SpeakerID: speakerID,
		Timestamp: time.Now().UnixMilli(),
	})
}

// publish validates, marshals and writes one event to a specific Kafka writer.
func (p *Publisher) publish(ctx context.Context, writer *kafka.Writer, topic, eventType, key string, event any) error {
	start := time.Now()

	if p.validator != nil {
		if err := p.validator.Validate(event); err != nil {
			log.Error().Err(err).Str("topic", topic).Msg("Event failed schema validation")
			p.metrics.RecordKafkaPublish(topic, eventType, err, time.Since(start).Seconds())
			return err
		}
	}

	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("Failed to marshal event")
		return err
	}

	log.Debug().
		Str("principal", p.principal).
		Str("topic", topic).
		Str("key", key).
		RawJSON("payload", payload).
		Msg("Publishing event")

	// If Kafka is disabled, just log
	if !p.enabled || writer == nil {
		p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(eventType)},
			{Key: "principal", Value: []byte(p.principal)},
		},
	}

	if err := writer.WriteMessages(ctx, msg); err != nil {
		log.Error().
			Err(err).
			Str("topic", topic).
			Str("key", key).
			Msg("Failed to write to Kafka")
		p.metrics.RecordKafkaPublish(topic, eventType, err, time.Since(start).Seconds())
		return err
	}

	p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
	return nil
}

// Close closes both Kafka writers.
func (p *Publisher) Close() error {
	var err error
	if p.writerCaptions != nil {
		if e := p.writerCaptions.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing caption writer")
			err = e
		}
	}
	if p.writerOnboarding != nil {
		if e := p.writerOnboarding.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing onboarding writer")
			err = e
		}
	}
	return err
}
