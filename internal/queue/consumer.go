package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/rental-hold-engine/internal/booking"
)

// Syncer is the part of booking.SyncAgent the consumer needs.
type Syncer interface {
	Sync(ctx context.Context, id string) (booking.SyncResult, error)
}

// SyncConsumer reads reservation.confirmed messages and pushes each
// reservation to the channel-manager.
type SyncConsumer struct {
	url    string
	syncer Syncer
	log    *slog.Logger
}

func NewSyncConsumer(url string, syncer Syncer, logger *slog.Logger) *SyncConsumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &SyncConsumer{url: url, syncer: syncer, log: logger}
}

// Run connects to RabbitMQ, declares the queue (durable) and consumes until
// ctx is cancelled, reconnecting with backoff whenever the broker goes away.
func (c *SyncConsumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn, err := amqp.Dial(c.url)
		if err != nil {
			c.log.Warn("sync-consumer: failed to dial broker", "err", err, "retry_in", backoff)
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second // reset after successful connect

		err = c.consumeLoop(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.Warn("sync-consumer: consume loop ended, reconnecting", "err", err)
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (c *SyncConsumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.log.Warn("sync-consumer: set QoS failed", "err", err)
	}
	if _, err := ch.QueueDeclare(ReservationConfirmedQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(ReservationConfirmedQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := c.handleMessage(ctx, d.Body); err != nil {
				c.log.Error("sync-consumer: handle message failed", "err", err)
				_ = d.Nack(false, false) // reject, do not requeue; the resync job retries
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// handleMessage returns an error only when the message itself is unusable
// or the store failed.  Sync failures are already recorded on the
// reservation and retried by the scheduler, so they are acknowledged.
func (c *SyncConsumer) handleMessage(ctx context.Context, body []byte) error {
	var ev ReservationConfirmedEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if ev.ReservationID == "" {
		return errors.New("event has no reservation_id")
	}
	r, err := c.syncer.Sync(ctx, ev.ReservationID)
	if err != nil {
		return fmt.Errorf("sync %s: %w", ev.ReservationID, err)
	}
	c.log.Info("sync-consumer: processed", "id", ev.ReservationID,
		"outcome", string(r.Outcome), "reason", string(r.Reason), "external_ref", r.ExternalRef)
	return nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
