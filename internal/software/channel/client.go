// Package channel keeps one joined pub/sub topic alive and turns its events
// into typed snapshot and entity callbacks.
package channel

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"campus-transport/internal/domain/fleet"
	"campus-transport/internal/general/contracts"
	"campus-transport/internal/general/logger"
	"campus-transport/internal/general/phoenix"
)

var ErrNotJoined = errors.New("channel: topic not joined")

const defaultJoinTimeout = 10 * time.Second

// Options configure a Client.
type Options struct {
	Endpoint    string
	Topic       string
	Dialect     contracts.Dialect
	Socket      phoenix.Options
	JoinTimeout time.Duration
	Backoff     Backoff
	// NoReconnect stops the client after the first lost connection.
	NoReconnect bool
}

// binding is one socket plus the join made on it. A binding is current
// while it is the client's active one; callbacks carrying any other
// binding are dropped.
type binding struct {
	sock    *phoenix.Socket
	joinRef string
	joined  atomic.Bool
}

// Client is a persistent subscription to one topic.
//
// Handlers run on the socket read goroutine, one at a time, in arrival
// order. The join snapshot is always delivered before any delta of the
// same join. Handlers may call Send but must not call Disconnect.
type Client struct {
	opts   Options
	logger *logger.Logger

	hmu          sync.RWMutex
	onSnapshot   []func(fleet.Snapshot)
	onUpdated    map[fleet.Kind][]func(fleet.Entity)
	onRemoved    map[fleet.Kind][]func(string)
	onRegistered []func(string)
	onStatus     []func(bool)

	mu      sync.Mutex
	active  *binding
	cancel  context.CancelFunc
	running chan struct{}

	// held while a handler runs; Disconnect takes it to wait out in-flight dispatch
	dispatchMu sync.Mutex
	connected  atomic.Bool
}

// New builds a client. Nothing connects until Connect.
func New(opts Options, log *logger.Logger) *Client {
	if opts.Topic == "" {
		opts.Topic = contracts.DefaultTopic
	}
	if opts.Dialect.Name == "" {
		opts.Dialect = contracts.V2()
	}
	if opts.JoinTimeout <= 0 {
		opts.JoinTimeout = defaultJoinTimeout
	}
	opts.Backoff = opts.Backoff.withDefaults()
	if log == nil {
		log = logger.Discard()
	}

	return &Client{
		opts:      opts,
		logger:    log,
		onUpdated: make(map[fleet.Kind][]func(fleet.Entity)),
		onRemoved: make(map[fleet.Kind][]func(string)),
	}
}

// Dialect returns the event naming in use.
func (client *Client) Dialect() contracts.Dialect { return client.opts.Dialect }

// OnSnapshot registers a handler for the full state received on every join.
func (client *Client) OnSnapshot(h func(fleet.Snapshot)) {
	client.hmu.Lock()
	client.onSnapshot = append(client.onSnapshot, h)
	client.hmu.Unlock()
}

// OnEntityUpdated registers a handler for complete entity updates of kind.
func (client *Client) OnEntityUpdated(kind fleet.Kind, h func(fleet.Entity)) {
	client.hmu.Lock()
	client.onUpdated[kind] = append(client.onUpdated[kind], h)
	client.hmu.Unlock()
}

// OnEntityRemoved registers a handler for removals of kind.
func (client *Client) OnEntityRemoved(kind fleet.Kind, h func(id string)) {
	client.hmu.Lock()
	client.onRemoved[kind] = append(client.onRemoved[kind], h)
	client.hmu.Unlock()
}

// OnSelfRegistered registers a handler for the server echo of our own registration.
func (client *Client) OnSelfRegistered(h func(id string)) {
	client.hmu.Lock()
	client.onRegistered = append(client.onRegistered, h)
	client.hmu.Unlock()
}

// OnStatus registers a handler for joined/not joined transitions.
func (client *Client) OnStatus(h func(connected bool)) {
	client.hmu.Lock()
	client.onStatus = append(client.onStatus, h)
	client.hmu.Unlock()
}

// Connected reports whether the topic is currently joined.
func (client *Client) Connected() bool { return client.connected.Load() }

// Connect starts the connection supervisor. It returns immediately; calling
// it again while running is a no-op.
func (client *Client) Connect(ctx context.Context) {
	client.mu.Lock()
	defer client.mu.Unlock()

	if client.cancel != nil {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	client.cancel = cancel
	client.running = done

	go func() {
		defer close(done)
		client.supervise(runCtx)
	}()
}

// Disconnect leaves the topic and closes the socket. No handler runs after
// it returns. Calling it while not connected is a no-op.
func (client *Client) Disconnect() {
	// detach first so late callbacks see a stale binding
	client.mu.Lock()
	cancel, running, b := client.cancel, client.running, client.active
	client.cancel, client.running, client.active = nil, nil, nil
	client.mu.Unlock()

	if cancel == nil {
		return
	}

	// wait out a handler that is running right now
	client.dispatchMu.Lock()
	wasJoined := b != nil && b.joined.Swap(false)
	wasConnected := client.connected.Swap(false)
	if wasConnected {
		client.notifyStatus(false)
	}
	client.dispatchMu.Unlock()

	if b != nil {
		if wasJoined {
			_ = b.sock.Leave(client.opts.Topic, b.joinRef)
		}
		_ = b.sock.Close()
	}

	cancel()
	<-running

	client.logger.Info(context.Background(), "channel_disconnected", "Left topic and closed socket", map[string]any{
		"topic": client.opts.Topic,
	})
}

// Send pushes an event on the joined topic. It does not block.
func (client *Client) Send(event string, payload any) error {
	client.mu.Lock()
	b := client.active
	client.mu.Unlock()

	if b == nil || !b.joined.Load() {
		return ErrNotJoined
	}
	return b.sock.Push(client.opts.Topic, b.joinRef, event, payload)
}

func (client *Client) supervise(ctx context.Context) {
	delay := client.opts.Backoff.Initial

	for attempt := 1; ; attempt++ {
		joined := client.session(ctx, attempt)

		if ctx.Err() != nil {
			return
		}
		if client.opts.NoReconnect {
			client.logger.Info(ctx, "channel_stopped", "Connection lost and reconnect is disabled", nil)
			return
		}
		if joined {
			delay = client.opts.Backoff.Initial
		}

		client.logger.Info(ctx, "retry_attempted", "Reconnecting to transport channel", map[string]any{
			"attempt":  attempt,
			"delay_ms": delay.Milliseconds(),
		})

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		delay = client.opts.Backoff.Next(delay)
	}
}

// session runs one connection from dial to loss and reports whether the join succeeded.
func (client *Client) session(ctx context.Context, attempt int) bool {
	b := &binding{}

	sock, err := phoenix.Dial(ctx, client.opts.Endpoint, client.opts.Socket, client.logger, func(msg phoenix.Message) {
		client.dispatch(b, msg)
	})
	if err != nil {
		if ctx.Err() == nil {
			client.logger.Error(ctx, "channel_dial_failed", "Failed to open transport socket", err, map[string]any{
				"attempt": attempt,
			})
		}
		return false
	}
	b.sock = sock
	defer client.release(b)

	if !client.install(ctx, b) {
		return false
	}

	replies := make(chan phoenix.Reply, 1)

	// joinRef must be set before the reply can be dispatched
	client.dispatchMu.Lock()
	joinRef, err := sock.Join(client.opts.Topic, map[string]any{}, func(reply phoenix.Reply) {
		client.onJoinReply(b, reply)
		replies <- reply
	})
	b.joinRef = joinRef
	client.dispatchMu.Unlock()
	if err != nil {
		client.logger.Error(ctx, "channel_join_failed", "Failed to send join", err, nil)
		return false
	}

	timer := time.NewTimer(client.opts.JoinTimeout)
	defer timer.Stop()

	select {
	case reply := <-replies:
		if !reply.OK() {
			client.logger.Error(ctx, "channel_join_rejected", "Server rejected the join", errors.New(string(reply.Response)), map[string]any{
				"topic":  client.opts.Topic,
				"status": reply.Status,
			})
			return false
		}
	case <-timer.C:
		client.logger.Error(ctx, "channel_join_timeout", "No reply to join", context.DeadlineExceeded, map[string]any{
			"topic":      client.opts.Topic,
			"timeout_ms": client.opts.JoinTimeout.Milliseconds(),
		})
		return false
	case <-sock.Done():
		return false
	case <-ctx.Done():
		return false
	}

	select {
	case <-sock.Done():
		if ctx.Err() == nil {
			client.logger.Error(ctx, "channel_connection_lost", "Transport socket closed", sock.Err(), map[string]any{
				"topic": client.opts.Topic,
			})
		}
	case <-ctx.Done():
	}
	return true
}

// install makes b the active binding unless Disconnect already ran.
func (client *Client) install(ctx context.Context, b *binding) bool {
	client.mu.Lock()
	defer client.mu.Unlock()
	if ctx.Err() != nil || client.cancel == nil {
		return false
	}
	client.active = b
	return true
}

func (client *Client) isActive(b *binding) bool {
	client.mu.Lock()
	defer client.mu.Unlock()
	return client.active == b
}

// release tears down a binding the session is done with.
func (client *Client) release(b *binding) {
	client.mu.Lock()
	current := client.active == b
	if current {
		client.active = nil
	}
	client.mu.Unlock()

	if current {
		client.dispatchMu.Lock()
		b.joined.Store(false)
		if client.connected.Swap(false) {
			client.notifyStatus(false)
		}
		client.dispatchMu.Unlock()
	}
	_ = b.sock.Close()
}

func (client *Client) onJoinReply(b *binding, reply phoenix.Reply) {
	client.dispatchMu.Lock()
	defer client.dispatchMu.Unlock()

	if !client.isActive(b) || !reply.OK() {
		return
	}

	snapshot, skipped := decodeSnapshot(reply.Response, client.opts.Dialect)
	b.joined.Store(true)

	client.logger.Info(context.Background(), "channel_joined", "Joined topic and received snapshot", map[string]any{
		"topic":   client.opts.Topic,
		"autos":   len(snapshot.Autos),
		"buggies": len(snapshot.Buggies),
		"riders":  len(snapshot.Riders),
		"skipped": skipped,
	})

	client.hmu.RLock()
	handlers := slices.Clone(client.onSnapshot)
	client.hmu.RUnlock()
	for _, h := range handlers {
		h(snapshot.Clone())
	}
	client.connected.Store(true)
	client.notifyStatus(true)
}

// dispatch routes one inbound frame. It runs on the socket read goroutine.
func (client *Client) dispatch(b *binding, msg phoenix.Message) {
	if msg.Topic != client.opts.Topic || msg.Event == phoenix.EventReply {
		return
	}

	client.dispatchMu.Lock()
	defer client.dispatchMu.Unlock()

	if !client.isActive(b) {
		return
	}
	if msg.JoinRef != "" && msg.JoinRef != b.joinRef {
		return
	}

	ctx := context.Background()

	switch msg.Event {
	case phoenix.EventError, phoenix.EventClose:
		// the server dropped our join; a fresh socket rejoins and resyncs
		client.logger.Error(ctx, "channel_closed_by_server", "Topic closed by server", errors.New(msg.Event), map[string]any{
			"topic": client.opts.Topic,
		})
		b.joined.Store(false)
		b.sock.Abort(errors.New("channel: " + msg.Event))
		return
	}

	if !b.joined.Load() {
		client.logger.Debug(ctx, "channel_event_before_join", "Dropped event received before the join snapshot", map[string]any{
			"event": msg.Event,
		})
		return
	}

	op, kind := client.opts.Dialect.Classify(msg.Event)
	switch op {
	case contracts.OpUpdated:
		entity, err := decodeEntity(kind, msg.Payload)
		if err != nil {
			client.logger.Error(ctx, "channel_bad_update", "Rejected incomplete entity update", err, map[string]any{
				"event": msg.Event,
			})
			return
		}
		client.hmu.RLock()
		handlers := slices.Clone(client.onUpdated[kind])
		client.hmu.RUnlock()
		for _, h := range handlers {
			h(entity)
		}

	case contracts.OpRemoved:
		id, err := decodeID(msg.Payload)
		if err != nil {
			client.logger.Error(ctx, "channel_bad_removal", "Rejected removal without id", err, map[string]any{
				"event": msg.Event,
			})
			return
		}
		client.hmu.RLock()
		handlers := slices.Clone(client.onRemoved[kind])
		client.hmu.RUnlock()
		for _, h := range handlers {
			h(id)
		}

	case contracts.OpRegistered:
		id, err := decodeID(msg.Payload)
		if err != nil {
			client.logger.Error(ctx, "channel_bad_registration", "Rejected registration echo without id", err, nil)
			return
		}
		client.hmu.RLock()
		handlers := slices.Clone(client.onRegistered)
		client.hmu.RUnlock()
		for _, h := range handlers {
			h(id)
		}

	default:
		client.logger.Debug(ctx, "channel_unknown_event", "Ignored unknown event", map[string]any{
			"event": msg.Event,
		})
	}
}

// notifyStatus must be called with dispatchMu held.
func (client *Client) notifyStatus(connected bool) {
	client.hmu.RLock()
	handlers := slices.Clone(client.onStatus)
	client.hmu.RUnlock()
	for _, h := range handlers {
		h(connected)
	}
}
