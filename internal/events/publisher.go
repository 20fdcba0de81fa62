package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"ai-call-insight-service/internal/observability/metrics"
)

// Publisher mirrors notification events to a Kafka topic so peer backend
// instances and downstream consumers observe the same per-session stream.
// The session id is the partition key, which preserves per-session ordering.
type Publisher struct {
	writer    *kafka.Writer
	principal string
	topic     string
	enabled   bool
	metrics   *metrics.Metrics
}

// PublisherConfig holds Kafka publisher configuration.
type PublisherConfig struct {
	Brokers   []string
	Topic     string
	Principal string
	Enabled   bool
}

// NewPublisher creates a Kafka event publisher. With Kafka disabled (or no
// brokers configured) it runs in log-only mode.
func NewPublisher(cfg *PublisherConfig) *Publisher {
	m := metrics.DefaultMetrics

	if cfg == nil {
		log.Info().Msg("Kafka disabled (nil config), using log-only mode")
		return &Publisher{enabled: false, metrics: m}
	}

	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		log.Info().Msg("Kafka disabled, using log-only mode")
		return &Publisher{
			principal: cfg.Principal,
			topic:     cfg.Topic,
			enabled:   false,
			metrics:   m,
		}
	}

	// Longer dial timeout for DNS resolution in Kubernetes
	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Transport:    &kafka.Transport{Dial: dialer.DialFunc},
	}

	log.Info().
		Strs("brokers", cfg.Brokers).
		Str("topic", cfg.Topic).
		Str("principal", cfg.Principal).
		Msg("Kafka publisher initialized")

	return &Publisher{
		writer:    writer,
		principal: cfg.Principal,
		topic:     cfg.Topic,
		enabled:   true,
		metrics:   m,
	}
}

// Publish writes one event to Kafka, keyed by session id. Failures are
// logged and counted, never propagated: mirroring is best-effort and must
// not stall the in-process fan-out.
func (p *Publisher) Publish(ev Event) {
	start := time.Now()

	payload, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Str("topic", p.topic).Msg("Failed to marshal event")
		return
	}

	log.Debug().
		Str("principal", p.principal).
		Str("topic", p.topic).
		Str("key", ev.SessionID).
		RawJSON("payload", payload).
		Msg("Mirroring event")

	if !p.enabled || p.writer == nil {
		p.metrics.RecordKafkaPublish(p.topic, string(ev.Kind), nil, time.Since(start).Seconds())
		return
	}

	msg := kafka.Message{
		Key:   []byte(ev.SessionID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(ev.Kind)},
			{Key: "principal", Value: []byte(p.principal)},
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		log.Error().
			Err(err).
			Str("topic", p.topic).
			Str("key", ev.SessionID).
			Msg("Failed to write to Kafka")
		p.metrics.RecordKafkaPublish(p.topic, string(ev.Kind), err, time.Since(start).Seconds())
		return
	}

	p.metrics.RecordKafkaPublish(p.topic, string(ev.Kind), nil, time.Since(start).Seconds())
}

// Close closes the Kafka writer.
func (p *Publisher) Close() error {
	if p.writer == nil {
		return nil
	}
	if err := p.writer.Close(); err != nil {
		log.Error().Err(err).Msg("Error closing Kafka writer")
		return err
	}
	return nil
}
