package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"campus-transport/internal/general/contracts"
	"campus-transport/internal/general/logger"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher is the part of Client the mirror needs.
type Publisher interface {
	PublishMessage(exchange, routingKey string, body []byte) error
}

// PublishMessage publishes a JSON body and waits for the broker confirm.
func (client *Client) PublishMessage(exchange, routingKey string, body []byte) error {
	client.mu.RLock()
	ch := client.pubChan
	conn := client.conn
	client.mu.RUnlock()

	if conn == nil || conn.IsClosed() {
		return errors.New("rabbitmq: connection is not open")
	}
	if ch == nil || ch.IsClosed() {
		return errors.New("rabbitmq: publish channel is not open")
	}

	client.pubMu.Lock()
	defer client.pubMu.Unlock()
	confirms := client.pubConfirms

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// fanout without bound queues is fine for a mirror, so not mandatory
	if err := ch.PublishWithContext(ctx, exchange, routingKey, false, false,
		amqp.Publishing{
			ContentType: "application/json",
			Timestamp:   time.Now().UTC(),
			Body:        body,
		},
	); err != nil {
		return err
	}

	select {
	case c, ok := <-confirms:
		if !ok {
			return errors.New("rabbitmq: confirm stream closed")
		}
		if !c.Ack {
			return fmt.Errorf("rabbitmq: publish not acknowledged")
		}
	case <-ctx.Done():
		// keep the confirm stream aligned with publishes
		select {
		case <-confirms:
		case <-time.After(2 * time.Second):
		}
		return ctx.Err()
	}

	return nil
}

// Mirror republishes normalized entity events. Events are queued and
// published by one goroutine so callers never wait on the broker; when the
// queue is full the event is dropped.
type Mirror struct {
	pub      Publisher
	exchange string
	logger   *logger.Logger
	logCtx   context.Context

	mu     sync.RWMutex
	closed bool
	queue  chan contracts.MirrorEvent
	done   chan struct{}
}

// NewMirror starts the publishing goroutine.
func NewMirror(ctx context.Context, pub Publisher, exchange string, buffer int, log *logger.Logger) *Mirror {
	if buffer <= 0 {
		buffer = 256
	}
	if log == nil {
		log = logger.Discard()
	}
	m := &Mirror{
		pub:      pub,
		exchange: exchange,
		logger:   log,
		logCtx:   context.WithoutCancel(ctx),
		queue:    make(chan contracts.MirrorEvent, buffer),
		done:     make(chan struct{}),
	}
	go m.run()
	return m
}

// Mirror queues event for publishing.
func (m *Mirror) Mirror(ctx context.Context, event contracts.MirrorEvent) {
	if event.SentAt.IsZero() {
		event.SentAt = time.Now().UTC()
	}
	if event.SessionID == "" {
		event.SessionID = logger.SessionID(ctx)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return
	}

	select {
	case m.queue <- event:
	default:
		m.logger.Error(m.logCtx, "mirror_dropped", "Mirror queue full; event dropped", errors.New("queue full"), map[string]any{
			"routing_key": event.RoutingKey(),
		})
	}
}

// Close publishes what is queued and stops.
func (m *Mirror) Close() {
	m.mu.Lock()
	if !m.closed {
		m.closed = true
		close(m.queue)
	}
	m.mu.Unlock()
	<-m.done
}

func (m *Mirror) run() {
	defer close(m.done)

	for event := range m.queue {
		body, err := json.Marshal(event)
		if err != nil {
			m.logger.Error(m.logCtx, "mirror_encode_failed", "Failed to encode mirror event", err, map[string]any{
				"routing_key": event.RoutingKey(),
			})
			continue
		}
		if err := m.pub.PublishMessage(m.exchange, event.RoutingKey(), body); err != nil {
			m.logger.Error(m.logCtx, "mirror_publish_failed", "Failed to publish mirror event", err, map[string]any{
				"exchange":    m.exchange,
				"routing_key": event.RoutingKey(),
			})
			continue
		}
		m.logger.Debug(m.logCtx, "mirror_published", "Published mirror event", map[string]any{
			"routing_key": event.RoutingKey(),
		})
	}
}
