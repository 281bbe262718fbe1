package phoenix

import (
	"encoding/json"
	"errors"
	"net/url"
	"testing"
)

func TestMessageRoundTripArrayForm(t *testing.T) {
	msg := Message{JoinRef: "1", Ref: "2", Topic: "transport:app", Event: "rider_added", Payload: json.RawMessage(`{"id":"r1"}`)}

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if got, want := string(data), `["1","2","transport:app","rider_added",{"id":"r1"}]`; got != want {
		t.Fatalf("frame = %s, want %s", got, want)
	}

	var back Message
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.JoinRef != "1" || back.Ref != "2" || back.Topic != msg.Topic || back.Event != msg.Event {
		t.Fatalf("decoded %+v", back)
	}
}

func TestMessageNullRefsAndEmptyPayload(t *testing.T) {
	data, err := json.Marshal(Message{Topic: "phoenix", Event: EventHeartbeat})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if got, want := string(data), `[null,null,"phoenix","heartbeat",{}]`; got != want {
		t.Fatalf("frame = %s, want %s", got, want)
	}

	var m Message
	if err := json.Unmarshal([]byte(`[null,7,"t","e",null]`), &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m.JoinRef != "" || m.Ref != "7" {
		t.Fatalf("refs = %q %q", m.JoinRef, m.Ref)
	}
}

func TestMessageRejectsMalformedFrames(t *testing.T) {
	cases := []string{
		`{"topic":"t"}`,
		`["1","2","t","e"]`,
		`["1","2",5,"e",{}]`,
		`[true,"2","t","e",{}]`,
	}
	for _, raw := range cases {
		var m Message
		err := json.Unmarshal([]byte(raw), &m)
		if !errors.Is(err, ErrMalformedFrame) {
			t.Errorf("%s: err = %v, want ErrMalformedFrame", raw, err)
		}
	}
}

func TestDecodeReply(t *testing.T) {
	r, err := DecodeReply(json.RawMessage(`{"status":"ok","response":{"riders":{}}}`))
	if err != nil || !r.OK() {
		t.Fatalf("reply = %+v, %v", r, err)
	}
	if string(r.Response) != `{"riders":{}}` {
		t.Fatalf("response = %s", r.Response)
	}

	r, err = DecodeReply(json.RawMessage(`[]`))
	if err == nil || r.OK() {
		t.Fatalf("expected error reply, got %+v, %v", r, err)
	}
}

func TestEndpointURL(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"http://localhost:4000/socket", "ws://localhost:4000/socket/websocket?vsn=2.0.0"},
		{"https://campus.example.org/socket/", "wss://campus.example.org/socket/websocket?vsn=2.0.0"},
		{"wss://campus.example.org/socket/websocket", "wss://campus.example.org/socket/websocket?vsn=2.0.0"},
	}
	for _, tc := range cases {
		got, err := EndpointURL(tc.in, nil)
		if err != nil {
			t.Fatalf("%s: %v", tc.in, err)
		}
		if got != tc.want {
			t.Errorf("%s: got %s, want %s", tc.in, got, tc.want)
		}
	}

	got, err := EndpointURL("http://localhost:4000/socket", url.Values{"token": {"abc"}})
	if err != nil {
		t.Fatal(err)
	}
	if got != "ws://localhost:4000/socket/websocket?token=abc&vsn=2.0.0" {
		t.Errorf("with params: %s", got)
	}

	for _, bad := range []string{"ftp://host/socket", "localhost:4000", "http:///socket"} {
		if _, err := EndpointURL(bad, nil); !errors.Is(err, ErrBadEndpoint) {
			t.Errorf("%s: err = %v, want ErrBadEndpoint", bad, err)
		}
	}
}
