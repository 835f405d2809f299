// Package service holds outbound integrations invoked from request
// handlers.  Publishing failures are logged and returned so callers can
// ignore them without interrupting the main request flow.
package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	q "github.com/iliyamo/rental-hold-engine/internal/queue"
)

// Publisher announces domain events on RabbitMQ.  It dials per publish.
type Publisher struct {
	url string
	log *slog.Logger
}

func NewPublisher(url string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{url: url, log: logger}
}

// PublishReservationConfirmed publishes a ReservationConfirmedEvent to the
// "reservation.confirmed" queue.  Messages are marked as persistent.
func (p *Publisher) PublishReservationConfirmed(ctx context.Context, event q.ReservationConfirmedEvent) error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		p.log.Warn("rabbitmq: dial failed", "err", err)
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		p.log.Warn("rabbitmq: channel open failed", "err", err)
		return err
	}
	defer func() { _ = ch.Close() }()

	// Durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(q.ReservationConfirmedQueue, true, false, false, false, nil); err != nil {
		p.log.Warn("rabbitmq: queue declare failed", "err", err)
		return err
	}

	body, err := json.Marshal(event)
	if err != nil {
		p.log.Warn("rabbitmq: marshal event failed", "err", err)
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.ReservationID,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", q.ReservationConfirmedQueue, false, false, pub); err != nil {
		p.log.Warn("rabbitmq: publish failed", "err", err)
		return err
	}
	return nil
}
