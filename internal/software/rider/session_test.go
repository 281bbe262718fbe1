package rider

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"campus-transport/internal/domain/fleet"
	"campus-transport/internal/domain/geo"
	"campus-transport/internal/general/contracts"
	"campus-transport/internal/general/location"
	"campus-transport/internal/general/logger"
	"campus-transport/internal/software/store"
)

type sent struct {
	event   string
	payload any
}

type fakeSender struct {
	mu     sync.Mutex
	events []sent
}

func (f *fakeSender) Send(event string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, sent{event, payload})
	return nil
}

func (f *fakeSender) count(event string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.events {
		if e.event == event {
			n++
		}
	}
	return n
}

func (f *fakeSender) last(event string) (any, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.events) - 1; i >= 0; i-- {
		if f.events[i].event == event {
			return f.events[i].payload, true
		}
	}
	return nil, false
}

// gated blocks every request until release is closed and ignores cancellation,
// like a fix that arrives late.
type gated struct {
	mu      sync.Mutex
	calls   int
	entered chan struct{}
	release chan struct{}
}

func newGated() *gated {
	return &gated{entered: make(chan struct{}, 16), release: make(chan struct{})}
}

func (g *gated) CurrentPosition(context.Context, location.Options) (geo.Point, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
	select {
	case g.entered <- struct{}{}:
	default:
	}
	<-g.release
	return geo.Point{Lat: 19.13, Lng: 72.91}, nil
}

func (g *gated) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

var here = location.Static{Point: geo.Point{Lat: 19.1334, Lng: 72.9133}}

func newSession(t *testing.T, provider location.Provider, interval time.Duration) (*Session, *store.Store, *fakeSender) {
	t.Helper()
	st := store.New()
	sender := &fakeSender{}
	s := NewSession(context.Background(), st, sender, contracts.V2(), provider, Options{RefreshInterval: interval}, logger.Discard())
	t.Cleanup(s.Close)
	return s, st, sender
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestRegisterSendsPosition(t *testing.T) {
	s, st, sender := newSession(t, here, time.Hour)

	if err := s.Register(context.Background(), fleet.RiderType("bus")); !errors.Is(err, fleet.ErrInvalidRiderType) {
		t.Fatalf("invalid type: %v", err)
	}

	if err := s.Register(context.Background(), fleet.RiderOutside); err != nil {
		t.Fatalf("register: %v", err)
	}
	payload, ok := sender.last("register_rider")
	if !ok {
		t.Fatal("register_rider not sent")
	}
	want := contracts.RegisterRider{Lat: 19.1334, Lng: 72.9133, Type: fleet.RiderOutside}
	if payload != want {
		t.Fatalf("payload = %+v", payload)
	}

	st.SetSelf("r1")
	if err := s.Register(context.Background(), fleet.RiderWithin); !errors.Is(err, ErrAlreadyRegistered) {
		t.Fatalf("second register: %v", err)
	}
}

func TestRegisterLocationFailure(t *testing.T) {
	denied := location.Static{Err: &location.Failure{Kind: location.PermissionDenied}}
	s, _, sender := newSession(t, denied, time.Hour)

	err := s.Register(context.Background(), fleet.RiderWithin)
	f, ok := location.AsFailure(err)
	if !ok || f.Kind != location.PermissionDenied {
		t.Fatalf("err = %v", err)
	}
	if sender.count("register_rider") != 0 {
		t.Fatal("registration sent without a position")
	}
	if got := s.Status().LastError; got != location.PermissionDenied.Message() {
		t.Fatalf("last error = %q", got)
	}
}

func TestRegisterRefusesWhileLocating(t *testing.T) {
	g := newGated()
	s, _, _ := newSession(t, g, time.Hour)

	errs := make(chan error, 1)
	go func() { errs <- s.Register(context.Background(), fleet.RiderWithin) }()
	<-g.entered

	if err := s.Register(context.Background(), fleet.RiderWithin); !errors.Is(err, ErrLocating) {
		t.Fatalf("concurrent register: %v", err)
	}
	if !s.Status().Locating {
		t.Fatal("status does not show the running request")
	}
	close(g.release)
	if err := <-errs; err != nil {
		t.Fatalf("first register: %v", err)
	}
}

func TestRegisteredStartsRefresh(t *testing.T) {
	s, st, sender := newSession(t, here, 10*time.Millisecond)

	s.HandleRegistered("r1")
	if st.Self() != "r1" || !s.Status().Registered {
		t.Fatalf("self = %q", st.Self())
	}

	eventually(t, "refresh", func() bool { return sender.count("location_update") >= 2 })
	payload, _ := sender.last("location_update")
	body := payload.(map[string]any)
	if body["kind"] != "rider" || body["id"] != "r1" || body["lat"] != 19.1334 {
		t.Fatalf("payload = %v", body)
	}
}

func TestDoneCancelsRefresh(t *testing.T) {
	s, st, sender := newSession(t, here, 10*time.Millisecond)
	s.HandleRegistered("r1")
	eventually(t, "refresh", func() bool { return sender.count("location_update") >= 1 })

	if !s.Done(context.Background()) {
		t.Fatal("Done reported nothing to end")
	}
	if st.Self() != "" || s.refreshing() {
		t.Fatal("Done left self or the refresh task behind")
	}
	payload, _ := sender.last("rider_done")
	if payload != (contracts.IDPayload{ID: "r1"}) {
		t.Fatalf("done payload = %+v", payload)
	}

	before := sender.count("location_update")
	time.Sleep(60 * time.Millisecond)
	if after := sender.count("location_update"); after != before {
		t.Fatalf("refresh kept sending after Done: %d -> %d", before, after)
	}

	if s.Done(context.Background()) {
		t.Fatal("second Done should be a no-op")
	}
	// the server echo of our own removal arrives late
	s.HandleRemoved("r1")
	if sender.count("rider_done") != 1 {
		t.Fatalf("rider_done sent %d times", sender.count("rider_done"))
	}
}

func TestCancelledTickNeverSends(t *testing.T) {
	g := newGated()
	s, _, sender := newSession(t, g, 10*time.Millisecond)

	s.HandleRegistered("r1")
	<-g.entered

	s.Done(context.Background())
	close(g.release)

	time.Sleep(50 * time.Millisecond)
	if n := sender.count("location_update"); n != 0 {
		t.Fatalf("location_update sent %d times after cancellation", n)
	}
	if n := sender.count("rider_done"); n != 1 {
		t.Fatalf("rider_done sent %d times", n)
	}
}

func TestTickSkippedWhileInFlight(t *testing.T) {
	g := newGated()
	s, _, sender := newSession(t, g, 5*time.Millisecond)

	s.HandleRegistered("r1")
	<-g.entered
	time.Sleep(60 * time.Millisecond)

	if n := g.callCount(); n != 1 {
		t.Fatalf("overlapping requests: %d", n)
	}
	close(g.release)
	eventually(t, "refresh after release", func() bool { return sender.count("location_update") >= 1 })
}

func TestRefreshFailureEndsRegistration(t *testing.T) {
	lost := location.Static{Err: errors.New("gps off")}
	s, st, sender := newSession(t, lost, 10*time.Millisecond)

	s.HandleRegistered("r1")
	eventually(t, "done", func() bool { return sender.count("rider_done") == 1 })

	if st.Self() != "" || s.refreshing() {
		t.Fatal("failed refresh left the registration alive")
	}
	if got := s.Status().LastError; got != location.Unavailable.Message() {
		t.Fatalf("last error = %q", got)
	}
	time.Sleep(40 * time.Millisecond)
	if n := sender.count("rider_done"); n != 1 {
		t.Fatalf("rider_done sent %d times", n)
	}
}

func TestHandleRemoved(t *testing.T) {
	s, st, sender := newSession(t, here, time.Hour)
	s.HandleRegistered("r1")

	s.HandleRemoved("r2")
	if st.Self() != "r1" || !s.refreshing() {
		t.Fatal("removal of another rider touched self")
	}

	s.HandleRemoved("r1")
	if st.Self() != "" || s.refreshing() {
		t.Fatal("self removal did not clear self and the task")
	}
	if sender.count("rider_done") != 0 {
		t.Fatal("server removal must not echo done")
	}
}

func TestRemovalAfterStoreClearedSelf(t *testing.T) {
	s, st, _ := newSession(t, here, time.Hour)
	s.HandleRegistered("r1")

	// the store already dropped the rider (and with it self)
	st.Remove(fleet.KindRider, "r1")
	s.HandleRemoved("r1")
	if s.refreshing() {
		t.Fatal("refresh task survived removal")
	}
}

func TestRegisteredSupersedes(t *testing.T) {
	s, st, sender := newSession(t, here, 10*time.Millisecond)
	s.HandleRegistered("r1")
	s.HandleRegistered("r2")
	if st.Self() != "r2" {
		t.Fatalf("self = %q", st.Self())
	}

	eventually(t, "refresh for r2", func() bool { return sender.count("location_update") >= 2 })
	sender.mu.Lock()
	defer sender.mu.Unlock()
	for _, e := range sender.events {
		if body, ok := e.payload.(map[string]any); ok && body["id"] != "r2" {
			t.Fatalf("superseded task sent %v", body)
		}
	}
}

func TestReconcile(t *testing.T) {
	s, st, _ := newSession(t, here, time.Hour)
	s.HandleRegistered("r1")

	present := fleet.EmptySnapshot()
	present.Riders["r1"] = fleet.Rider{ID: "r1", Type: fleet.RiderWithin}
	s.Reconcile(present)
	if st.Self() != "r1" {
		t.Fatal("reconcile dropped a present self rider")
	}

	s.Reconcile(fleet.EmptySnapshot())
	if st.Self() != "" || s.refreshing() {
		t.Fatal("reconcile kept a self rider the server forgot")
	}
}

func TestLocate(t *testing.T) {
	s, _, sender := newSession(t, here, time.Hour)
	p, err := s.Locate(context.Background())
	if err != nil || p.Lat != 19.1334 {
		t.Fatalf("locate: %v %v", p, err)
	}
	if pos := s.Status().Position; pos == nil || pos.Lng != 72.9133 {
		t.Fatalf("position = %v", pos)
	}
	if sender.count("rider_done") != 0 {
		t.Fatal("unexpected done")
	}
}

func TestLocateFailureEndsRegistration(t *testing.T) {
	lost := location.Static{Err: &location.Failure{Kind: location.Timeout}}
	s, st, sender := newSession(t, lost, time.Hour)
	s.HandleRegistered("r1")

	_, err := s.Locate(context.Background())
	if f, ok := location.AsFailure(err); !ok || f.Kind != location.Timeout {
		t.Fatalf("err = %v", err)
	}
	if st.Self() != "" || sender.count("rider_done") != 1 {
		t.Fatal("locate failure did not end the registration")
	}
}

// waiting never answers; it returns once the caller stops waiting.
type waiting struct{}

func (waiting) CurrentPosition(ctx context.Context, _ location.Options) (geo.Point, error) {
	<-ctx.Done()
	return geo.Point{}, ctx.Err()
}

func TestLocateCancelledByCallerKeepsRegistration(t *testing.T) {
	s, st, sender := newSession(t, waiting{}, time.Hour)
	s.HandleRegistered("p1")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := s.Locate(ctx); err == nil {
		t.Fatal("expected an error from an abandoned locate")
	}
	if st.Self() != "p1" {
		t.Fatalf("self = %q, want p1", st.Self())
	}
	if n := sender.count("rider_done"); n != 0 {
		t.Fatalf("rider_done sent %d times", n)
	}
	if s.Status().Locating {
		t.Fatal("still locating")
	}
}

func TestClosedSessionIgnoresEverything(t *testing.T) {
	s, st, _ := newSession(t, here, 10*time.Millisecond)
	s.HandleRegistered("r1")
	s.Close()

	if s.refreshing() {
		t.Fatal("task survived Close")
	}
	st.ClearSelf("r1")
	s.HandleRegistered("r2")
	if st.Self() != "" {
		t.Fatal("closed session adopted a registration")
	}
	if err := s.Register(context.Background(), fleet.RiderWithin); !errors.Is(err, ErrClosed) {
		t.Fatalf("register after close: %v", err)
	}
}
