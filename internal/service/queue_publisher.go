// Package service holds the outbound integrations used by handlers.  The
// booking event publisher is best effort: errors are logged and returned so
// callers can ignore them without failing the request.
package service

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/iliyamo/farmwise/internal/queue"
)

// BookingPublisher emits booking lifecycle events.
type BookingPublisher interface {
	Publish(ctx context.Context, ev queue.BookingEvent) error
}

// RabbitPublisher publishes each event on a short-lived connection to the
// queue named by ev.Type.
type RabbitPublisher struct {
	url string
	log *zap.Logger
}

func NewRabbitPublisher(url string, log *zap.Logger) *RabbitPublisher {
	return &RabbitPublisher{url: url, log: log}
}

func (p *RabbitPublisher) Publish(ctx context.Context, ev queue.BookingEvent) error {
	log := p.log.With(zap.String("queue", ev.Type), zap.String("booking_id", ev.BookingID))
	conn, err := amqp.Dial(p.url)
	if err != nil {
		log.Warn("rabbitmq: dial failed", zap.Error(err))
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		log.Warn("rabbitmq: channel open failed", zap.Error(err))
		return err
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(ev.Type, true, false, false, false, nil); err != nil {
		log.Warn("rabbitmq: queue declare failed", zap.Error(err))
		return err
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if err := ch.PublishWithContext(ctx, "", ev.Type, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}); err != nil {
		log.Warn("rabbitmq: publish failed", zap.Error(err))
		return err
	}
	return nil
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, queue.BookingEvent) error { return nil }
