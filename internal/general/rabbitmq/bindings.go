package rabbitmq

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"ride-dispatch/internal/general/contracts"
)

// declareTopology declares the exchanges the dispatch service publishes to and the
// durable queues downstream workers consume from.
func declareTopology(ch *amqp.Channel) error {
	// 1. Exchanges
	exchanges := []string{
		contracts.ExchangeRideTopic,
		contracts.ExchangePaymentsTopic,
		contracts.ExchangeNotificationTopic,
	}

	for _, ex := range exchanges {
		if err := ch.ExchangeDeclare(ex, "topic", true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare exchange %s: %w", ex, err)
		}
	}

	// 2. Queues + bindings
	bindings := []struct {
		queue      string
		exchange   string
		routingKey string
	}{
		{contracts.QueueRideStatus, contracts.ExchangeRideTopic, contracts.RouteRideStatusPrefix + "*"},
		{contracts.QueuePaymentCmds, contracts.ExchangePaymentsTopic, contracts.RoutePaymentPrefix + "*"},
		{contracts.QueueNotifications, contracts.ExchangeNotificationTopic, contracts.RouteNotificationPrefix + "*"},
	}

	for _, b := range bindings {
		if _, err := ch.QueueDeclare(b.queue, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %s: %w", b.queue, err)
		}
		if err := ch.QueueBind(b.queue, b.routingKey, b.exchange, false, nil); err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
		}
	}

	return nil
}
