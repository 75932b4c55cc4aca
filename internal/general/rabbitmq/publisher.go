package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"ride-dispatch/internal/general/contracts"
	"ride-dispatch/internal/general/logger"
)

const (
	publishTimeout = 5 * time.Second
	confirmGrace   = 2 * time.Second
	producerName   = "dispatch-service"
)

// ErrNotConnected is returned while the broker link is down.
var ErrNotConnected = errors.New("rabbitmq: broker link is not open")

// Publisher sends a JSON body to an exchange. *Client implements it.
type Publisher interface {
	PublishMessage(ctx context.Context, exchange, routingKey string, body []byte) error
}

// publishJSON stamps env, encodes v and publishes it.
func publishJSON(ctx context.Context, pub Publisher, exchange, routingKey string, env *contracts.Envelope, v any) error {
	env.CorrelationID = logger.RequestID(ctx)
	env.Producer = producerName
	env.SentAt = time.Now().UTC()

	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("rabbitmq: encode %s: %w", routingKey, err)
	}
	return pub.PublishMessage(ctx, exchange, routingKey, body)
}

// PublishMessage publishes a persistent JSON message and waits for the broker confirm.
// Publishes are serialized so each confirm is matched to its message.
func (client *Client) PublishMessage(ctx context.Context, exchange, routingKey string, body []byte) error {
	client.pubMu.Lock()
	defer client.pubMu.Unlock()

	l := client.current()
	if !l.open() {
		return ErrNotConnected
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := l.ch.PublishWithContext(ctx, exchange, routingKey, true /* mandatory */, false, /* immediate */
		amqp.Publishing{
			DeliveryMode:  amqp.Persistent,
			ContentType:   "application/json",
			CorrelationId: logger.RequestID(ctx),
			Timestamp:     time.Now().UTC(),
			Body:          body,
		},
	); err != nil {
		return err
	}

	select {
	case c, ok := <-l.confirms:
		if !ok {
			return errors.New("rabbitmq: confirm stream closed")
		}
		if !c.Ack {
			return fmt.Errorf("rabbitmq: publish not acknowledged")
		}
	case <-ctx.Done():
		// keep the confirm stream aligned: try to consume exactly one confirm even if we return a timeout to the caller
		select {
		case c, ok := <-l.confirms:
			if ok && !c.Ack {
				return fmt.Errorf("rabbitmq: publish not acknowledged after timeout")
			}
		case <-time.After(confirmGrace):
		}

		return ctx.Err()
	}

	return nil
}
