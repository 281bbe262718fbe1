package phoenix

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"campus-transport/internal/general/logger"

	"github.com/gorilla/websocket"
)

var (
	ErrClosed           = errors.New("phoenix: socket closed")
	ErrBackpressure     = errors.New("phoenix: outbound queue full")
	ErrHeartbeatTimeout = errors.New("phoenix: heartbeat not acknowledged")
)

const (
	defaultHeartbeatInterval = 30 * time.Second
	defaultWriteTimeout      = 5 * time.Second
	defaultHandshakeTimeout  = 10 * time.Second
	defaultReadLimit         = 1 << 20
	defaultOutboundBuffer    = 64
	closeAckWindow           = time.Second
)

// Options tune a Socket. Zero values fall back to defaults.
type Options struct {
	HeartbeatInterval time.Duration
	WriteTimeout      time.Duration
	HandshakeTimeout  time.Duration
	ReadLimit         int64
	OutboundBuffer    int
	Params            url.Values
	Header            http.Header
}

func (o Options) withDefaults() Options {
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = defaultHeartbeatInterval
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = defaultWriteTimeout
	}
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = defaultHandshakeTimeout
	}
	if o.ReadLimit <= 0 {
		o.ReadLimit = defaultReadLimit
	}
	if o.OutboundBuffer <= 0 {
		o.OutboundBuffer = defaultOutboundBuffer
	}
	return o
}

// Socket is one websocket connection speaking the channels protocol.
//
// Inbound frames are handled on a single read goroutine: reply callbacks
// registered through Join or Request run there, in frame order, before any
// later frame reaches the message callback. Outbound frames go through a
// bounded queue drained by a writer goroutine that also sends heartbeats.
type Socket struct {
	conn      *websocket.Conn
	opts      Options
	logger    *logger.Logger
	logCtx    context.Context
	onMessage func(Message)

	ref atomic.Uint64
	out chan []byte

	mu        sync.Mutex
	replies   map[string]func(Reply)
	heartbeat string

	closing   chan struct{}
	closeOnce sync.Once
	err       error
	done      chan struct{}
	wg        sync.WaitGroup
}

// Dial connects to endpoint and starts the read and write loops.
// onMessage receives every frame that is not a reply to a tracked request.
func Dial(ctx context.Context, endpoint string, opts Options, log *logger.Logger, onMessage func(Message)) (*Socket, error) {
	opts = opts.withDefaults()
	if log == nil {
		log = logger.Discard()
	}

	target, err := EndpointURL(endpoint, opts.Params)
	if err != nil {
		return nil, err
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: opts.HandshakeTimeout,
	}
	conn, resp, err := dialer.DialContext(ctx, target, opts.Header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("phoenix: dial %s: %w", target, err)
	}
	conn.SetReadLimit(opts.ReadLimit)

	s := &Socket{
		conn:      conn,
		opts:      opts,
		logger:    log,
		logCtx:    context.WithoutCancel(ctx),
		onMessage: onMessage,
		out:       make(chan []byte, opts.OutboundBuffer),
		replies:   make(map[string]func(Reply)),
		closing:   make(chan struct{}),
		done:      make(chan struct{}),
	}

	s.wg.Add(2)
	go s.readLoop()
	go s.writeLoop()
	go func() {
		s.wg.Wait()
		close(s.done)
	}()

	return s, nil
}

// Join sends phx_join for topic. The join_ref of the channel is returned;
// onReply runs on the read goroutine when the server answers.
func (s *Socket) Join(topic string, params any, onReply func(Reply)) (string, error) {
	ref := s.nextRef()
	if err := s.enqueue(Message{JoinRef: ref, Ref: ref, Topic: topic, Event: EventJoin}, params, onReply); err != nil {
		return "", err
	}
	return ref, nil
}

// Leave sends phx_leave for a joined topic. The reply is not awaited.
func (s *Socket) Leave(topic, joinRef string) error {
	return s.enqueue(Message{JoinRef: joinRef, Ref: s.nextRef(), Topic: topic, Event: EventLeave}, nil, nil)
}

// Push queues an event on a joined topic without tracking the reply.
// It never blocks: a full queue returns ErrBackpressure.
func (s *Socket) Push(topic, joinRef, event string, payload any) error {
	return s.enqueue(Message{JoinRef: joinRef, Ref: s.nextRef(), Topic: topic, Event: event}, payload, nil)
}

// Request is Push with a reply callback, run on the read goroutine.
func (s *Socket) Request(topic, joinRef, event string, payload any, onReply func(Reply)) error {
	return s.enqueue(Message{JoinRef: joinRef, Ref: s.nextRef(), Topic: topic, Event: event}, payload, onReply)
}

// Abort stops the socket without waiting for its goroutines.
// Safe to call from the message callback.
func (s *Socket) Abort(err error) {
	if err == nil {
		err = ErrClosed
	}
	s.shutdown(err)
}

// Close flushes queued frames, says goodbye and waits for both loops to exit.
// It must not be called from the message callback; use Abort there.
func (s *Socket) Close() error {
	s.shutdown(ErrClosed)
	<-s.done
	return nil
}

// Done is closed once the connection is gone.
func (s *Socket) Done() <-chan struct{} { return s.done }

// Err reports why the socket stopped. It returns nil while the socket is open.
func (s *Socket) Err() error {
	select {
	case <-s.closing:
	default:
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Socket) nextRef() string {
	return strconv.FormatUint(s.ref.Add(1), 10)
}

func (s *Socket) enqueue(msg Message, payload any, onReply func(Reply)) error {
	select {
	case <-s.closing:
		return ErrClosed
	default:
	}

	if payload == nil {
		payload = struct{}{}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("phoenix: encode %s payload: %w", msg.Event, err)
	}
	msg.Payload = body

	frame, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("phoenix: encode %s frame: %w", msg.Event, err)
	}

	if onReply != nil {
		s.mu.Lock()
		s.replies[msg.Ref] = onReply
		s.mu.Unlock()
	}

	select {
	case s.out <- frame:
		return nil
	case <-s.closing:
		s.forget(msg.Ref)
		return ErrClosed
	default:
		s.forget(msg.Ref)
		return ErrBackpressure
	}
}

func (s *Socket) forget(ref string) {
	s.mu.Lock()
	delete(s.replies, ref)
	s.mu.Unlock()
}

func (s *Socket) takeReply(ref string) func(Reply) {
	if ref == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cb, ok := s.replies[ref]
	if ok {
		delete(s.replies, ref)
	}
	return cb
}

func (s *Socket) shutdown(err error) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.err = err
		s.replies = make(map[string]func(Reply))
		s.mu.Unlock()
		close(s.closing)
	})
}

func (s *Socket) readLoop() {
	defer s.wg.Done()

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.closing:
			default:
				s.logger.Debug(s.logCtx, "phoenix_read_failed", "Socket read ended", map[string]any{"error": err.Error()})
			}
			s.shutdown(fmt.Errorf("phoenix: read: %w", err))
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Error(s.logCtx, "phoenix_bad_frame", "Dropped undecodable frame", err, map[string]any{"bytes": len(data)})
			continue
		}

		if msg.Event == EventReply {
			if cb := s.takeReply(msg.Ref); cb != nil {
				reply, err := DecodeReply(msg.Payload)
				if err != nil {
					s.logger.Error(s.logCtx, "phoenix_bad_reply", "Reply payload could not be decoded", err, map[string]any{"topic": msg.Topic})
				}
				cb(reply)
				continue
			}
			if msg.Topic == TopicPhoenix {
				continue
			}
		}

		if s.onMessage != nil {
			s.onMessage(msg)
		}
	}
}

func (s *Socket) writeLoop() {
	defer s.wg.Done()
	defer s.conn.Close()

	ticker := time.NewTicker(s.opts.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case frame := <-s.out:
			if err := s.write(frame); err != nil {
				s.shutdown(fmt.Errorf("phoenix: write: %w", err))
				return
			}

		case <-ticker.C:
			if err := s.beat(); err != nil {
				s.logger.Error(s.logCtx, "phoenix_heartbeat_failed", "Closing socket after heartbeat failure", err, nil)
				s.shutdown(err)
				return
			}

		case <-s.closing:
			s.flush()
			_ = s.conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"),
				time.Now().Add(closeAckWindow),
			)
			return
		}
	}
}

// flush writes whatever is still queued, e.g. a phx_leave pushed right before Close.
func (s *Socket) flush() {
	for {
		select {
		case frame := <-s.out:
			if err := s.write(frame); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (s *Socket) write(frame []byte) error {
	_ = s.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
	return s.conn.WriteMessage(websocket.TextMessage, frame)
}

// beat sends a heartbeat; the previous one must have been acknowledged.
func (s *Socket) beat() error {
	s.mu.Lock()
	pending := s.heartbeat
	s.mu.Unlock()
	if pending != "" {
		return ErrHeartbeatTimeout
	}

	ref := s.nextRef()
	s.mu.Lock()
	s.heartbeat = ref
	s.replies[ref] = func(Reply) {
		s.mu.Lock()
		if s.heartbeat == ref {
			s.heartbeat = ""
		}
		s.mu.Unlock()
	}
	s.mu.Unlock()

	frame, err := json.Marshal(Message{Ref: ref, Topic: TopicPhoenix, Event: EventHeartbeat, Payload: json.RawMessage("{}")})
	if err != nil {
		return err
	}
	return s.write(frame)
}
