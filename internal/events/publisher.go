// Package events provides optional audit-event publishing.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"voice-privacy-pipeline/internal/observability/metrics"
)

// Publisher publishes turn audit events to a Kafka topic. When disabled it
// runs in log-only mode so callers never have to branch.
type Publisher struct {
	writer    *kafka.Writer
	principal string
	topic     string
	enabled   bool
	metrics   *metrics.Metrics
}

// Config holds Kafka publisher configuration.
type Config struct {
	Brokers   []string
	Topic     string
	Principal string
	Enabled   bool
}

// New creates a new audit event publisher.
func New(cfg *Config) *Publisher {
	m := metrics.DefaultMetrics

	if cfg == nil || !cfg.Enabled || len(cfg.Brokers) == 0 {
		log.Info().Msg("audit events disabled, using log-only mode")
		p := &Publisher{enabled: false, metrics: m}
		if cfg != nil {
			p.principal = cfg.Principal
			p.topic = cfg.Topic
		}
		return p
	}

	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Transport:    &kafka.Transport{Dial: dialer.DialFunc},
	}

	log.Info().
		Strs("brokers", cfg.Brokers).
		Str("topic", cfg.Topic).
		Str("principal", cfg.Principal).
		Msg("audit event publisher initialized")

	return &Publisher{
		writer:    writer,
		principal: cfg.Principal,
		topic:     cfg.Topic,
		enabled:   true,
		metrics:   m,
	}
}

// Publish writes one audit event keyed by turn ID. Publish failures are
// recorded and returned but never abort the pipeline.
func (p *Publisher) Publish(ctx context.Context, eventType, turnID string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("eventType", eventType).Msg("failed to marshal audit event")
		return err
	}

	log.Debug().
		Str("eventType", eventType).
		Str("turnId", turnID).
		RawJSON("payload", payload).
		Msg("publishing audit event")

	if !p.enabled || p.writer == nil {
		p.metrics.RecordAuditPublish(eventType, nil)
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(turnID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(eventType)},
			{Key: "principal", Value: []byte(p.principal)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		log.Error().
			Err(err).
			Str("eventType", eventType).
			Str("turnId", turnID).
			Msg("failed to write audit event")
		p.metrics.RecordAuditPublish(eventType, err)
		return err
	}

	p.metrics.RecordAuditPublish(eventType, nil)
	return nil
}

// Close closes the Kafka writer.
func (p *Publisher) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
