package channel

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"campus-transport/internal/domain/fleet"
	"campus-transport/internal/general/contracts"
	"campus-transport/internal/general/logger"
	"campus-transport/internal/general/phoenix"
	"campus-transport/internal/general/phoenix/phoenixtest"
)

const topic = contracts.DefaultTopic

type recorder struct {
	mu        sync.Mutex
	snapshots []fleet.Snapshot
	updates   []fleet.Entity
	removals  []string
	selfIDs   []string
	statuses  []bool
}

func (r *recorder) attach(client *Client) {
	client.OnSnapshot(func(s fleet.Snapshot) {
		r.mu.Lock()
		r.snapshots = append(r.snapshots, s)
		r.mu.Unlock()
	})
	for _, kind := range fleet.Kinds() {
		client.OnEntityUpdated(kind, func(e fleet.Entity) {
			r.mu.Lock()
			r.updates = append(r.updates, e)
			r.mu.Unlock()
		})
		client.OnEntityRemoved(kind, func(id string) {
			r.mu.Lock()
			r.removals = append(r.removals, id)
			r.mu.Unlock()
		})
	}
	client.OnSelfRegistered(func(id string) {
		r.mu.Lock()
		r.selfIDs = append(r.selfIDs, id)
		r.mu.Unlock()
	})
	client.OnStatus(func(up bool) {
		r.mu.Lock()
		r.statuses = append(r.statuses, up)
		r.mu.Unlock()
	})
}

func (r *recorder) counts() (snapshots, updates, removals int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snapshots), len(r.updates), len(r.removals)
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func snapshotReply(body string) func(string, json.RawMessage) phoenix.Reply {
	return func(string, json.RawMessage) phoenix.Reply {
		return phoenix.Reply{Status: phoenix.StatusOK, Response: json.RawMessage(body)}
	}
}

func newClient(t *testing.T, srv *phoenixtest.Server, opts Options) (*Client, *recorder) {
	t.Helper()
	opts.Endpoint = srv.URL()
	if opts.Backoff.Initial == 0 {
		opts.Backoff = Backoff{Initial: 10 * time.Millisecond, Max: 40 * time.Millisecond}
	}
	client := New(opts, logger.Discard())
	rec := &recorder{}
	rec.attach(client)
	t.Cleanup(client.Disconnect)
	return client, rec
}

func TestSnapshotThenDeltas(t *testing.T) {
	srv := phoenixtest.NewServer(t)
	srv.JoinReply = snapshotReply(`{
		"vehiclesA": {"a1": {"id": "a1", "lat": 19.13, "lng": 72.91, "state": "available"}},
		"vehiclesB": {"b1": {"lat": 19.12, "lng": 72.90, "route": "red"}},
		"riders": {}
	}`)

	client, rec := newClient(t, srv, Options{})
	client.Connect(context.Background())

	eventually(t, "join", client.Connected)
	rec.mu.Lock()
	first := rec.snapshots[0]
	rec.mu.Unlock()
	if len(first.Autos) != 1 || first.Autos["a1"].State != fleet.AutoAvailable {
		t.Fatalf("autos = %+v", first.Autos)
	}
	if first.Buggies["b1"].ID != "b1" {
		t.Fatalf("buggy id not taken from key: %+v", first.Buggies)
	}

	srv.Broadcast(topic, "vehicleA_updated", map[string]any{"id": "a1", "lat": 19.14, "lng": 72.92, "state": "booked"})
	srv.Broadcast(topic, "rider_added", map[string]any{"id": "r1", "lat": 19.13, "lng": 72.91, "type": "within"})
	srv.Broadcast(topic, "rider_removed", map[string]any{"id": "r1"})
	srv.Broadcast(topic, "rider_registered", map[string]any{"id": "r9"})

	eventually(t, "deltas", func() bool {
		_, updates, removals := rec.counts()
		return updates == 2 && removals == 1
	})
	eventually(t, "registration", func() bool {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		return len(rec.selfIDs) == 1 && rec.selfIDs[0] == "r9"
	})

	rec.mu.Lock()
	defer rec.mu.Unlock()
	auto, ok := rec.updates[0].(fleet.Auto)
	if !ok || !auto.Booked() {
		t.Fatalf("first update = %#v", rec.updates[0])
	}
	if rec.removals[0] != "r1" {
		t.Fatalf("removal = %q", rec.removals[0])
	}
	if len(rec.statuses) == 0 || !rec.statuses[0] {
		t.Fatalf("statuses = %v", rec.statuses)
	}
}

func TestSnapshotKeysEntriesByTheirID(t *testing.T) {
	snapshot, skipped := decodeSnapshot(json.RawMessage(`{
		"vehiclesA": {"k0": {"id": "a7", "lat": 19.13, "lng": 72.91, "state": "available"}},
		"vehiclesB": {"b1": {"lat": 1, "lng": 2}},
		"riders": {"k1": {"id": "r9", "lat": 19.13, "lng": 72.91, "type": "within"}}
	}`), contracts.V2())
	if skipped != 0 {
		t.Fatalf("skipped = %d", skipped)
	}
	if _, ok := snapshot.Riders["k1"]; ok {
		t.Fatal("rider stored under its mapping key")
	}
	if r, ok := snapshot.Riders["r9"]; !ok || r.ID != "r9" {
		t.Fatalf("riders = %+v", snapshot.Riders)
	}
	if _, ok := snapshot.Autos["a7"]; !ok || len(snapshot.Autos) != 1 {
		t.Fatalf("autos = %+v", snapshot.Autos)
	}
	if snapshot.Buggies["b1"].ID != "b1" {
		t.Fatalf("buggies = %+v", snapshot.Buggies)
	}
}

func TestEventsBeforeJoinReplyAreDropped(t *testing.T) {
	srv := phoenixtest.NewServer(t)
	srv.JoinReply = snapshotReply(`{"vehiclesA":{},"vehiclesB":{},"riders":{}}`)
	srv.BeforeJoinReply = func(c *phoenixtest.Conn, topic string) {
		c.Push(topic, "rider_added", map[string]any{"id": "early", "type": "within"})
	}

	client, rec := newClient(t, srv, Options{})
	client.Connect(context.Background())
	eventually(t, "join", client.Connected)

	srv.Broadcast(topic, "rider_added", map[string]any{"id": "late", "type": "outside"})
	eventually(t, "late update", func() bool {
		_, updates, _ := rec.counts()
		return updates == 1
	})

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.updates[0].EntityID() != "late" {
		t.Fatalf("delivered %q, want only the post-join update", rec.updates[0].EntityID())
	}
}

func TestIncompleteDeltaRejected(t *testing.T) {
	srv := phoenixtest.NewServer(t)
	client, rec := newClient(t, srv, Options{})
	client.Connect(context.Background())
	eventually(t, "join", client.Connected)

	srv.Broadcast(topic, "vehicleA_updated", map[string]any{"id": "a1", "lat": 1.0})
	srv.Broadcast(topic, "rider_added", map[string]any{"lat": 1.0, "type": "within"})
	srv.Broadcast(topic, "rider_removed", map[string]any{})
	srv.Broadcast(topic, "vehicleB_updated", map[string]any{"id": "b1"})

	eventually(t, "valid buggy update", func() bool {
		_, updates, _ := rec.counts()
		return updates == 1
	})
	_, updates, removals := rec.counts()
	if updates != 1 || removals != 0 {
		t.Fatalf("updates=%d removals=%d", updates, removals)
	}
}

func TestReconnectResyncsWithFreshSnapshot(t *testing.T) {
	srv := phoenixtest.NewServer(t)
	var (
		mu    sync.Mutex
		joins int
	)
	srv.JoinReply = func(string, json.RawMessage) phoenix.Reply {
		mu.Lock()
		defer mu.Unlock()
		joins++
		if joins == 1 {
			return phoenix.Reply{Status: phoenix.StatusOK, Response: json.RawMessage(`{"riders":{"r1":{"type":"within"}}}`)}
		}
		return phoenix.Reply{Status: phoenix.StatusOK, Response: json.RawMessage(`{}`)}
	}

	client, rec := newClient(t, srv, Options{})
	client.Connect(context.Background())
	eventually(t, "first join", client.Connected)

	srv.DropAll()
	eventually(t, "second snapshot", func() bool {
		snapshots, _, _ := rec.counts()
		return snapshots == 2
	})
	eventually(t, "rejoined", client.Connected)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.snapshots[0].Riders) != 1 || len(rec.snapshots[1].Riders) != 0 {
		t.Fatalf("snapshots = %+v", rec.snapshots)
	}
	if rec.snapshots[1].Autos == nil || rec.snapshots[1].Buggies == nil {
		t.Fatal("missing mappings must decode as empty, not nil")
	}
	sawDown := false
	for _, up := range rec.statuses {
		if !up {
			sawDown = true
		}
	}
	if !sawDown {
		t.Fatalf("statuses = %v, want a disconnect in between", rec.statuses)
	}
}

func TestRejectedJoinRetries(t *testing.T) {
	srv := phoenixtest.NewServer(t)
	srv.JoinReply = func(string, json.RawMessage) phoenix.Reply {
		return phoenix.Reply{Status: phoenix.StatusError, Response: json.RawMessage(`{"reason":"unmatched topic"}`)}
	}

	client, rec := newClient(t, srv, Options{})
	client.Connect(context.Background())

	eventually(t, "retries", func() bool { return srv.Joins() >= 3 })
	if client.Connected() {
		t.Fatal("connected after rejected join")
	}
	if snapshots, _, _ := rec.counts(); snapshots != 0 {
		t.Fatalf("snapshots = %d", snapshots)
	}
}

func TestNoReconnectStopsAfterLoss(t *testing.T) {
	srv := phoenixtest.NewServer(t)
	client, _ := newClient(t, srv, Options{NoReconnect: true})
	client.Connect(context.Background())
	eventually(t, "join", client.Connected)

	srv.DropAll()
	eventually(t, "disconnected", func() bool { return !client.Connected() })
	time.Sleep(100 * time.Millisecond)
	if srv.Joins() != 1 {
		t.Fatalf("joins = %d, want 1", srv.Joins())
	}
}

func TestSendRequiresJoin(t *testing.T) {
	srv := phoenixtest.NewServer(t)
	client, _ := newClient(t, srv, Options{})

	if err := client.Send("register_rider", nil); !errors.Is(err, ErrNotJoined) {
		t.Fatalf("send before connect: %v", err)
	}

	client.Connect(context.Background())
	eventually(t, "join", client.Connected)

	payload := contracts.RegisterRider{Lat: 19.13, Lng: 72.91, Type: fleet.RiderWithin}
	if err := client.Send("register_rider", payload); err != nil {
		t.Fatalf("send: %v", err)
	}
	m := srv.WaitPush(t, "register_rider", 2*time.Second)
	var got contracts.RegisterRider
	if err := json.Unmarshal(m.Payload, &got); err != nil || got != payload {
		t.Fatalf("payload = %s (%v)", m.Payload, err)
	}

	client.Disconnect()
	if err := client.Send("register_rider", payload); !errors.Is(err, ErrNotJoined) {
		t.Fatalf("send after disconnect: %v", err)
	}
}

func TestDisconnectLeavesAndSilencesHandlers(t *testing.T) {
	srv := phoenixtest.NewServer(t)
	client, rec := newClient(t, srv, Options{})
	client.Connect(context.Background())
	eventually(t, "join", client.Connected)

	client.Disconnect()
	if client.Connected() {
		t.Fatal("still connected")
	}
	eventually(t, "leave", func() bool { return srv.Leaves() == 1 })

	srv.Broadcast(topic, "rider_added", map[string]any{"id": "r1", "type": "within"})
	time.Sleep(50 * time.Millisecond)
	if _, updates, _ := rec.counts(); updates != 0 {
		t.Fatalf("handler ran after disconnect: %d updates", updates)
	}

	// a second disconnect is a no-op
	client.Disconnect()
}

func TestDisconnectWaitsForRunningHandler(t *testing.T) {
	srv := phoenixtest.NewServer(t)
	client := New(Options{Endpoint: srv.URL()}, logger.Discard())

	entered := make(chan struct{})
	release := make(chan struct{})
	var calls int
	client.OnEntityUpdated(fleet.KindRider, func(fleet.Entity) {
		calls++
		if calls == 1 {
			close(entered)
			<-release
		}
	})

	client.Connect(context.Background())
	eventually(t, "join", client.Connected)

	srv.Broadcast(topic, "rider_added", map[string]any{"id": "r1", "type": "within"})
	<-entered

	done := make(chan struct{})
	go func() {
		client.Disconnect()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Disconnect returned while a handler was running")
	case <-time.After(50 * time.Millisecond):
	}

	srv.Broadcast(topic, "rider_added", map[string]any{"id": "r2", "type": "within"})
	close(release)
	<-done

	time.Sleep(50 * time.Millisecond)
	if calls != 1 {
		t.Fatalf("handler calls = %d, want 1", calls)
	}
}

func TestLegacyDialect(t *testing.T) {
	srv := phoenixtest.NewServer(t)
	srv.JoinReply = snapshotReply(`{"autos":{"a1":{"state":"available"}},"buggies":{},"passengers":{"p1":{"type":"outside-campus"}}}`)

	client, rec := newClient(t, srv, Options{Dialect: contracts.Legacy().WithVehicleRemoval()})
	client.Connect(context.Background())
	eventually(t, "join", client.Connected)

	srv.Broadcast(topic, "auto_removed", map[string]any{"id": "a1"})
	eventually(t, "removal", func() bool {
		_, _, removals := rec.counts()
		return removals == 1
	})

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.snapshots[0].Riders["p1"].Type != fleet.RiderOutside {
		t.Fatalf("rider type = %q", rec.snapshots[0].Riders["p1"].Type)
	}
}

func TestBackoffSchedule(t *testing.T) {
	b := DefaultBackoff()
	delay := b.Initial
	var got []time.Duration
	for i := 0; i < 7; i++ {
		got = append(got, delay)
		delay = b.Next(delay)
	}
	want := []time.Duration{1, 2, 4, 8, 16, 30, 30}
	for i := range want {
		if got[i] != want[i]*time.Second {
			t.Fatalf("delay[%d] = %s, want %ds", i, got[i], want[i])
		}
	}

	b = Backoff{Initial: 5 * time.Second, Max: time.Second}.withDefaults()
	if b.Max != b.Initial {
		t.Fatalf("max below initial not raised: %+v", b)
	}
}
