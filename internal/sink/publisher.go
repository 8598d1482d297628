// Package sink mirrors realtime events onto a local message bus so other
// desktop integrations (status bars, automation) can consume them without
// touching the backend.
package sink

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"vibez-client/internal/observability"
)

// Routing keys for mirrored events.
const (
	KeyChatMessage  = "chat.message"
	KeyChatUpdate   = "chat.update"
	KeyNotification = "notification"
	KeyConnection   = "connection"
)

// EventEnvelope wraps every mirrored event.
type EventEnvelope struct {
	EventType  string    `json:"eventType"`
	OccurredAt time.Time `json:"occurredAt"`
	Payload    any       `json:"payload"`
}

// NewEnvelope stamps an event for publishing.
func NewEnvelope(eventType string, payload any) EventEnvelope {
	return EventEnvelope{EventType: eventType, OccurredAt: time.Now().UTC(), Payload: payload}
}

// Publisher mirrors events onto the bus.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
	Close() error
}

// NewPublisher builds an AMQP publisher, or a noop publisher when the bus
// is disabled or unreachable. The client never fails to start over the
// sink.
func NewPublisher(amqpURL, exchange string, logger zerolog.Logger) Publisher {
	logger = logger.With().Str("component", "sink").Logger()
	if amqpURL == "" {
		logger.Info().Msg("event sink disabled: empty amqp url")
		return noopPublisher{logger: logger}
	}

	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		logger.Warn().Err(err).Msg("event sink disabled")
		return noopPublisher{logger: logger}
	}
	ch, err := conn.Channel()
	if err != nil {
		logger.Warn().Err(err).Msg("event sink disabled")
		_ = conn.Close()
		return noopPublisher{logger: logger}
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		logger.Warn().Err(err).Msg("event sink disabled")
		_ = ch.Close()
		_ = conn.Close()
		return noopPublisher{logger: logger}
	}

	logger.Info().Str("exchange", exchange).Msg("event sink connected")
	return &amqpPublisher{conn: conn, ch: ch, exchange: exchange, logger: logger}
}

type amqpPublisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	logger   zerolog.Logger
}

func (p *amqpPublisher) Publish(ctx context.Context, routingKey string, event any) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	err = p.ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	if err != nil {
		observability.IncSinkPublishError()
		p.logger.Warn().Err(err).Str("routing_key", routingKey).Msg("sink publish failed")
	}
	return err
}

func (p *amqpPublisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

type noopPublisher struct {
	logger zerolog.Logger
}

func (p noopPublisher) Publish(_ context.Context, routingKey string, event any) error {
	if envelope, ok := event.(EventEnvelope); ok {
		p.logger.Debug().Str("routing_key", routingKey).Str("event_type", envelope.EventType).Msg("noop publish")
		return nil
	}
	p.logger.Debug().Str("routing_key", routingKey).Msg("noop publish")
	return nil
}

func (noopPublisher) Close() error { return nil }

// Mode reports the publisher mode for startup logging.
func Mode(p Publisher) string {
	switch p.(type) {
	case *amqpPublisher:
		return "amqp"
	default:
		return "noop"
	}
}
