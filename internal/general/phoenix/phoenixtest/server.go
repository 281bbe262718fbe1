// Package phoenixtest runs an in-process channels server for tests.
package phoenixtest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"campus-transport/internal/general/phoenix"

	"github.com/gorilla/websocket"
)

// Server accepts sockets on /socket/websocket and answers joins,
// leaves and heartbeats. Every other inbound frame is recorded.
type Server struct {
	srv *httptest.Server

	// JoinReply decides the answer to phx_join. The default accepts with an empty response.
	JoinReply func(topic string, params json.RawMessage) phoenix.Reply
	// BeforeJoinReply runs right before the join reply is written.
	BeforeJoinReply func(c *Conn, topic string)
	// SilentHeartbeat stops heartbeat acknowledgements.
	SilentHeartbeat atomic.Bool

	mu     sync.Mutex
	conns  []*Conn
	pushes []phoenix.Message
	joins  int
	leaves int
	seq    atomic.Uint64
}

// Conn is the server side of one client socket.
type Conn struct {
	ws *websocket.Conn

	mu       sync.Mutex
	joinRefs map[string]string
}

var upgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

// NewServer starts a server that is closed when the test ends.
func NewServer(t testing.TB) *Server {
	t.Helper()
	s := &Server{}
	mux := http.NewServeMux()
	mux.HandleFunc("/socket/websocket", s.serve)
	s.srv = httptest.NewServer(mux)
	t.Cleanup(func() {
		s.DropAll()
		s.srv.Close()
	})
	return s
}

// URL is the socket address to hand to a client, e.g. http://127.0.0.1:1234/socket.
func (s *Server) URL() string { return s.srv.URL + "/socket" }

// Broadcast sends event to every connection joined to topic.
func (s *Server) Broadcast(topic, event string, payload any) {
	s.mu.Lock()
	conns := append([]*Conn(nil), s.conns...)
	s.mu.Unlock()
	for _, c := range conns {
		if c.joined(topic) {
			c.Push(topic, event, payload)
		}
	}
}

// DropAll closes every connection without a close handshake.
func (s *Server) DropAll() {
	s.mu.Lock()
	conns := s.conns
	s.conns = nil
	s.mu.Unlock()
	for _, c := range conns {
		_ = c.ws.Close()
	}
}

// Joins counts phx_join frames received.
func (s *Server) Joins() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.joins
}

// Leaves counts phx_leave frames received.
func (s *Server) Leaves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.leaves
}

// Pushes returns the recorded client events.
func (s *Server) Pushes() []phoenix.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]phoenix.Message(nil), s.pushes...)
}

// WaitPush polls until a client event named event arrives.
func (s *Server) WaitPush(t testing.TB, event string, timeout time.Duration) phoenix.Message {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		for _, m := range s.Pushes() {
			if m.Event == event {
				return m
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("no %q push within %s", event, timeout)
	return phoenix.Message{}
}

// Push writes an event frame for topic on this connection.
func (c *Conn) Push(topic, event string, payload any) {
	body, _ := json.Marshal(payload)
	c.mu.Lock()
	joinRef := c.joinRefs[topic]
	c.mu.Unlock()
	c.write(phoenix.Message{JoinRef: joinRef, Topic: topic, Event: event, Payload: body})
}

func (c *Conn) joined(topic string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.joinRefs[topic]
	return ok
}

func (c *Conn) reply(m phoenix.Message, r phoenix.Reply) {
	body, _ := json.Marshal(r)
	c.write(phoenix.Message{JoinRef: m.JoinRef, Ref: m.Ref, Topic: m.Topic, Event: phoenix.EventReply, Payload: body})
}

func (c *Conn) write(m phoenix.Message) {
	frame, err := json.Marshal(m)
	if err != nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(2 * time.Second))
	_ = c.ws.WriteMessage(websocket.TextMessage, frame)
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &Conn{ws: ws, joinRefs: make(map[string]string)}

	s.mu.Lock()
	s.conns = append(s.conns, c)
	s.mu.Unlock()

	defer ws.Close()
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		var m phoenix.Message
		if err := json.Unmarshal(data, &m); err != nil {
			continue
		}
		s.handle(c, m)
	}
}

func (s *Server) handle(c *Conn, m phoenix.Message) {
	switch m.Event {
	case phoenix.EventHeartbeat:
		if !s.SilentHeartbeat.Load() {
			c.reply(m, phoenix.Reply{Status: phoenix.StatusOK, Response: json.RawMessage("{}")})
		}

	case phoenix.EventJoin:
		s.mu.Lock()
		s.joins++
		s.mu.Unlock()

		reply := phoenix.Reply{Status: phoenix.StatusOK, Response: json.RawMessage("{}")}
		if s.JoinReply != nil {
			reply = s.JoinReply(m.Topic, m.Payload)
		}
		if s.BeforeJoinReply != nil {
			s.BeforeJoinReply(c, m.Topic)
		}
		if reply.OK() {
			c.mu.Lock()
			c.joinRefs[m.Topic] = m.JoinRef
			c.mu.Unlock()
		}
		c.reply(m, reply)

	case phoenix.EventLeave:
		s.mu.Lock()
		s.leaves++
		s.mu.Unlock()

		c.mu.Lock()
		delete(c.joinRefs, m.Topic)
		c.mu.Unlock()
		c.reply(m, phoenix.Reply{Status: phoenix.StatusOK, Response: json.RawMessage("{}")})
		c.write(phoenix.Message{JoinRef: m.JoinRef, Ref: strconv.FormatUint(s.seq.Add(1), 10), Topic: m.Topic, Event: phoenix.EventClose, Payload: json.RawMessage("{}")})

	default:
		s.mu.Lock()
		s.pushes = append(s.pushes, m)
		s.mu.Unlock()
		c.reply(m, phoenix.Reply{Status: phoenix.StatusOK, Response: json.RawMessage("{}")})
	}
}
