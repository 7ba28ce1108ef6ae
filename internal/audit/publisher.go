package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/wanderlane/pricing-engine/internal/auth"
)

// Event is the envelope written to the audit topic for every admin mutation.
type Event struct {
	ID      string      `json:"id"`
	Action  string      `json:"action"`
	Actor   string      `json:"actor,omitempty"`
	Payload interface{} `json:"payload"`
	TS      time.Time   `json:"ts"`
}

// PublisherConfig contains configurable parameters for the Kafka publisher.
type PublisherConfig struct {
	// Brokers is the list of Kafka broker addresses (host:port).
	Brokers []string

	// Topic is the topic admin mutation events are written to.
	Topic string

	// MaxAttempts is how many times a publish is retried on transient error.
	// Defaults to 3 if <= 0.
	MaxAttempts int

	// WriteTimeout is the per-attempt timeout. Defaults to 10s if zero.
	WriteTimeout time.Duration

	// Balancer decides partition selection. If nil, a Hash balancer is used
	// so events for the same action land on the same partition.
	Balancer kafka.Balancer
}

// Publisher wraps a kafka-go Writer with retrying publish behavior. Callers
// treat publish failures as non-fatal; the write path never depends on Kafka.
type Publisher struct {
	writer      *kafka.Writer
	maxAttempts int
}

func NewPublisher(cfg PublisherConfig) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka: at least one broker required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka: topic required")
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.Balancer == nil {
		cfg.Balancer = &kafka.Hash{}
	}

	w := kafka.NewWriter(kafka.WriterConfig{
		Brokers:      cfg.Brokers,
		Topic:        cfg.Topic,
		Balancer:     cfg.Balancer,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: cfg.WriteTimeout,
		Async:        false,
	})

	return &Publisher{
		writer:      w,
		maxAttempts: cfg.MaxAttempts,
	}, nil
}

// Publish writes one event, retrying on transient failure. The actor is read
// from the request's auth context when present.
func (p *Publisher) Publish(ctx context.Context, action string, payload interface{}) error {
	event := Event{
		ID:      uuid.NewString(),
		Action:  action,
		Payload: payload,
		TS:      time.Now().UTC(),
	}
	if ai := auth.FromContext(ctx); ai != nil {
		event.Actor = ai.Subject
	}
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(action),
		Value: value,
	}

	var lastErr error
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		if err := p.writer.WriteMessages(ctx, msg); err != nil {
			lastErr = err
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * 100 * time.Millisecond):
			}
			continue
		}
		return nil
	}
	return fmt.Errorf("publish audit event after %d attempts: %w", p.maxAttempts, lastErr)
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
