package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Tail binds a private queue to the mirror exchange and hands every event to
// handler until ctx ends.
func (client *Client) Tail(ctx context.Context, handler func(context.Context, amqp.Delivery) error) error {
	ch, err := client.newConsumerChannel(16)
	if err != nil {
		return err
	}
	defer ch.Close()

	queue, err := declareTailQueue(ch, client.exchange)
	if err != nil {
		return err
	}

	client.logger.Info(client.logCtx, "rabbitmq_tail_started", "Tailing mirror exchange", map[string]any{
		"exchange": client.exchange,
		"queue":    queue,
	})
	return client.consumeOn(ctx, ch, queue, "campus-tracker-tail", handler)
}

// newConsumerChannel returns a fresh channel with prefetch (QoS) applied.
func (client *Client) newConsumerChannel(prefetch int) (*amqp.Channel, error) {
	client.mu.RLock()
	conn := client.conn
	client.mu.RUnlock()

	// quick fail if no connection
	if conn == nil || conn.IsClosed() {
		return nil, errors.New("rabbitmq: connection is not ready")
	}

	// open a new channel
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("rabbitmq: open channel: %w", err)
	}

	// set prefetch if requested
	if prefetch < 0 {
		prefetch = 1
	}
	if prefetch > 0 {
		if err := ch.Qos(prefetch, 0, false); err != nil {
			_ = ch.Close()
			return nil, fmt.Errorf("rabbitmq: set QoS (prefetch=%d): %w", prefetch, err)
		}
	}

	return ch, nil
}

// consumeOn consumes queue on ch with manual acks.
func (client *Client) consumeOn(
	ctx context.Context,
	ch *amqp.Channel,
	queue string,
	consumerTag string,
	handler func(context.Context, amqp.Delivery) error,
) error {
	deliveries, err := ch.Consume(
		queue,
		consumerTag,
		false, // autoAck
		false, // exclusive
		false, // noLocal (ignored by RabbitMQ)
		false, // noWait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("rabbitmq: consume(%s): %w", queue, err)
	}

	chClosed := ch.NotifyClose(make(chan *amqp.Error, 1))

	for {
		select {
		case <-ctx.Done():
			if consumerTag != "" {
				_ = ch.Cancel(consumerTag, false)
			}
			return nil

		case cerr := <-chClosed:
			if cerr != nil {
				return fmt.Errorf("rabbitmq: channel closed while consuming %s: %w", queue, cerr)
			}
			return nil

		case d, ok := <-deliveries:
			if !ok {
				// deliveries stream ended
				return nil
			}

			hCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			err := handler(hCtx, d)
			cancel()

			if err != nil {
				client.logger.Error(client.logCtx, "rabbitmq_handler_failed", "Dropped undeliverable message", err, map[string]any{
					"queue":       queue,
					"routing_key": d.RoutingKey,
				})
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}
