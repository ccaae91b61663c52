// Package publish streams applied audit events to NATS JetStream for
// downstream consumers (analytics, notifications, risk monitors).
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"LendLedger/internal/event"
	"LendLedger/internal/observability"
)

// Publisher drains the publish channel and publishes each envelope.
// Publishing is best-effort: the channel send side drops on overflow, and
// a failed publish is logged, not retried. Consumers needing completeness
// read the audit log.
type Publisher struct {
	js        jetstream.JetStream
	inputChan <-chan *event.Envelope
	metrics   *observability.Metrics
}

// wireEvent is the JSON shape published to NATS.
type wireEvent struct {
	Sequence  int64           `json:"sequence"`
	EventID   string          `json:"event_id"`
	EventType string          `json:"event_type"`
	User      string          `json:"user,omitempty"`
	Asset     string          `json:"asset,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	StateHash []byte          `json:"state_hash"`
	Timestamp time.Time       `json:"timestamp"`
}

func NewPublisher(js jetstream.JetStream, inputChan <-chan *event.Envelope, metrics *observability.Metrics) *Publisher {
	return &Publisher{
		js:        js,
		inputChan: inputChan,
		metrics:   metrics,
	}
}

// Run starts the publisher loop. Blocks until ctx is cancelled or the
// input channel closes.
func (p *Publisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case env, ok := <-p.inputChan:
			if !ok {
				return nil
			}

			if err := p.publish(ctx, env); err != nil {
				log.Printf("WARN: outbound publish failed seq=%d: %v", env.Sequence, err)
				if p.metrics != nil {
					p.metrics.PublishErrors.Inc()
				}
				continue
			}
			if p.metrics != nil {
				p.metrics.EventsPublished.WithLabelValues(env.EventType.String()).Inc()
			}
		}
	}
}

// publish sends to lend.ledger.events.{event_type}, with the asset as a
// trailing token when present.
func (p *Publisher) publish(ctx context.Context, env *event.Envelope) error {
	data, err := json.Marshal(wireEvent{
		Sequence:  env.Sequence,
		EventID:   env.EventID,
		EventType: env.EventType.String(),
		User:      env.User.Hex(),
		Asset:     env.Asset,
		Payload:   env.Payload,
		StateHash: env.StateHash[:],
		Timestamp: env.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	subject := fmt.Sprintf("lend.ledger.events.%s", env.EventType)
	if env.Asset != "" {
		subject = fmt.Sprintf("%s.%s", subject, env.Asset)
	}

	_, err = p.js.Publish(ctx, subject, data)
	return err
}

// EnsureAuditStream creates the outbound events stream.
func EnsureAuditStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      "LEND_LEDGER_EVENTS",
		Subjects:  []string{"lend.ledger.events.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create outbound stream: %w", err)
	}
	log.Println("INFO: ensured outbound stream LEND_LEDGER_EVENTS")
	return nil
}

// ConnectNATS establishes a NATS connection and returns a JetStream context.
func ConnectNATS(url string) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Printf("WARN: NATS disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Println("INFO: NATS reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}

	return nc, js, nil
}
