// Package eventsvc publishes drowsiness domain events.
package eventsvc

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/trezcool/drowsiness/core"
	"github.com/trezcool/drowsiness/core/drowsiness"
)

const EventSessionScored = "drowsiness.session.scored"

// envelope wraps every event body.
type envelope struct {
	Type       string      `json:"type"`
	OccurredAt time.Time   `json:"occurred_at"`
	Data       interface{} `json:"data"`
}

func encode(eventType string, at time.Time, data interface{}) ([]byte, error) {
	return json.Marshal(envelope{Type: eventType, OccurredAt: at.UTC(), Data: data})
}

type AMQPPublisher struct {
	conn       *amqp.Connection
	mu         sync.Mutex
	channel    *amqp.Channel
	exchange   string
	routingKey string
}

var _ drowsiness.EventPublisher = (*AMQPPublisher)(nil)

// NewAMQPPublisher dials the broker, waiting for it to come up, and declares the topic exchange.
func NewAMQPPublisher(ctx context.Context, conf core.AMQPConfig) (*AMQPPublisher, error) {
	var conn *amqp.Connection
	err := core.WaitReady(ctx, 30*time.Second, func() (err error) {
		conn, err = amqp.Dial(conf.URL)
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "dialing broker")
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "opening channel")
	}
	err = ch.ExchangeDeclare(
		conf.Exchange,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "declaring exchange")
	}

	routingKey := conf.RoutingKey
	if routingKey == "" {
		routingKey = EventSessionScored
	}
	return &AMQPPublisher{conn: conn, channel: ch, exchange: conf.Exchange, routingKey: routingKey}, nil
}

func (p *AMQPPublisher) PublishScored(ctx context.Context, ev drowsiness.ScoredEvent) error {
	now := time.Now()
	body, err := encode(EventSessionScored, now, ev)
	if err != nil {
		return errors.Wrap(err, "encoding event")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.channel.PublishWithContext(ctx,
		p.exchange,
		p.routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    now,
			Type:         EventSessionScored,
			Body:         body,
		},
	)
	return errors.Wrap(err, "publishing event")
}

func (p *AMQPPublisher) Close() error {
	return p.conn.Close()
}

// NopPublisher drops events. It is used when no broker is configured.
type NopPublisher struct {
	Log core.Logger
}

var _ drowsiness.EventPublisher = NopPublisher{}

func (p NopPublisher) PublishScored(_ context.Context, ev drowsiness.ScoredEvent) error {
	if p.Log != nil {
		p.Log.Debug("event not published, no broker configured", "type", EventSessionScored, "session", ev.SessionID)
	}
	return nil
}
