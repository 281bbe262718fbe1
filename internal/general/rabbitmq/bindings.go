package rabbitmq

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// declareTopology declares the durable fanout exchange the mirror publishes to.
// Consumers bring their own queues.
func declareTopology(ch *amqp.Channel, exchange string) error {
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return nil
}

// declareTailQueue creates a server-named exclusive queue bound to exchange.
// It disappears with the channel that declared it.
func declareTailQueue(ch *amqp.Channel, exchange string) (string, error) {
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return "", fmt.Errorf("declare tail queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, "", exchange, false, nil); err != nil {
		return "", fmt.Errorf("bind %s to %s: %w", q.Name, exchange, err)
	}
	return q.Name, nil
}
