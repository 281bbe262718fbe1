package phoenix

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Vsn is the serializer version requested from the server.
const Vsn = "2.0.0"

// Reserved events and topics of the channels protocol.
const (
	EventJoin      = "phx_join"
	EventLeave     = "phx_leave"
	EventReply     = "phx_reply"
	EventError     = "phx_error"
	EventClose     = "phx_close"
	EventHeartbeat = "heartbeat"

	TopicPhoenix = "phoenix"

	StatusOK    = "ok"
	StatusError = "error"
)

var (
	ErrMalformedFrame = errors.New("phoenix: malformed frame")
	ErrBadEndpoint    = errors.New("phoenix: endpoint must be an http(s) or ws(s) URL with a host")
)

// Message is one frame: [join_ref, ref, topic, event, payload].
type Message struct {
	JoinRef string
	Ref     string
	Topic   string
	Event   string
	Payload json.RawMessage
}

// MarshalJSON encodes the v2 array form. Empty refs are sent as null.
func (m Message) MarshalJSON() ([]byte, error) {
	payload := m.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	return json.Marshal([]any{nullable(m.JoinRef), nullable(m.Ref), m.Topic, m.Event, payload})
}

// UnmarshalJSON decodes the v2 array form. Refs may be strings, numbers or null.
func (m *Message) UnmarshalJSON(data []byte) error {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if len(parts) != 5 {
		return fmt.Errorf("%w: %d elements", ErrMalformedFrame, len(parts))
	}

	joinRef, err := decodeRef(parts[0])
	if err != nil {
		return err
	}
	ref, err := decodeRef(parts[1])
	if err != nil {
		return err
	}

	var topic, event string
	if err := json.Unmarshal(parts[2], &topic); err != nil {
		return fmt.Errorf("%w: topic: %v", ErrMalformedFrame, err)
	}
	if err := json.Unmarshal(parts[3], &event); err != nil {
		return fmt.Errorf("%w: event: %v", ErrMalformedFrame, err)
	}

	*m = Message{JoinRef: joinRef, Ref: ref, Topic: topic, Event: event, Payload: parts[4]}
	return nil
}

// Reply is the payload of a phx_reply frame.
type Reply struct {
	Status   string          `json:"status"`
	Response json.RawMessage `json:"response,omitempty"`
}

// OK reports whether the server accepted the request.
func (r Reply) OK() bool { return r.Status == StatusOK }

// DecodeReply reads a phx_reply payload.
func DecodeReply(payload json.RawMessage) (Reply, error) {
	var r Reply
	if err := json.Unmarshal(payload, &r); err != nil {
		return Reply{Status: StatusError}, fmt.Errorf("%w: reply: %v", ErrMalformedFrame, err)
	}
	return r, nil
}

// EndpointURL turns a configured socket address such as "https://host/socket"
// into the websocket URL the server listens on.
func EndpointURL(raw string, params url.Values) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadEndpoint, err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", ErrBadEndpoint
	}
	if u.Host == "" {
		return "", ErrBadEndpoint
	}

	if !strings.HasSuffix(u.Path, "/websocket") {
		u.Path = strings.TrimSuffix(u.Path, "/") + "/websocket"
	}

	q := u.Query()
	for k, vs := range params {
		q[k] = append([]string(nil), vs...)
	}
	q.Set("vsn", Vsn)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func decodeRef(raw json.RawMessage) (string, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", fmt.Errorf("%w: ref: %v", ErrMalformedFrame, err)
	}
	switch ref := v.(type) {
	case nil:
		return "", nil
	case string:
		return ref, nil
	case float64:
		return strings.TrimSpace(string(raw)), nil
	default:
		return "", fmt.Errorf("%w: ref of type %T", ErrMalformedFrame, v)
	}
}
