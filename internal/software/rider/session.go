// Package rider owns this client's own registration: the self id, the
// pickup request, and the periodic position refresh that runs while
// registered.
package rider

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"campus-transport/internal/domain/fleet"
	"campus-transport/internal/domain/geo"
	"campus-transport/internal/general/contracts"
	"campus-transport/internal/general/location"
	"campus-transport/internal/general/logger"
	"campus-transport/internal/ports"
	"campus-transport/internal/software/store"
)

var (
	ErrAlreadyRegistered = errors.New("rider: already registered")
	ErrLocating          = errors.New("rider: a location request is already running")
	ErrClosed            = errors.New("rider: session closed")
)

const defaultRefreshInterval = 30 * time.Second

type Options struct {
	RefreshInterval time.Duration
	Location        location.Options
}

// refreshTask sends the self position every interval until stopped.
type refreshTask struct {
	id       string
	ctx      context.Context
	cancel   context.CancelFunc
	stopped  bool // guarded by Session.mu
	inFlight atomic.Bool
}

// Session is safe for concurrent use by the channel dispatch, the refresh
// task and user intents.
type Session struct {
	store    *store.Store
	sender   ports.Sender
	dialect  contracts.Dialect
	provider location.Provider
	opts     Options
	logger   *logger.Logger
	logCtx   context.Context

	mu       sync.Mutex
	task     *refreshTask
	locating bool
	lastErr  string
	position *geo.Point
	closed   bool
	wg       sync.WaitGroup
}

func NewSession(ctx context.Context, st *store.Store, sender ports.Sender, dialect contracts.Dialect, provider location.Provider, opts Options, log *logger.Logger) *Session {
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = defaultRefreshInterval
	}
	if opts.Location == (location.Options{}) {
		opts.Location = location.DefaultOptions()
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Session{
		store:    st,
		sender:   sender,
		dialect:  dialect,
		provider: provider,
		opts:     opts,
		logger:   log,
		logCtx:   context.WithoutCancel(ctx),
	}
}

// Register asks for the device position and requests a pickup. The server
// answers with a registration echo handled by HandleRegistered.
func (session *Session) Register(ctx context.Context, riderType fleet.RiderType) error {
	if !riderType.Valid() {
		return fleet.ErrInvalidRiderType
	}

	// claim the user location slot
	session.mu.Lock()
	switch {
	case session.closed:
		session.mu.Unlock()
		return ErrClosed
	case session.store.Self() != "":
		session.mu.Unlock()
		return ErrAlreadyRegistered
	case session.locating:
		session.mu.Unlock()
		return ErrLocating
	}
	session.locating = true
	session.lastErr = ""
	session.mu.Unlock()

	defer func() {
		session.mu.Lock()
		session.locating = false
		session.mu.Unlock()
	}()

	point, err := location.Get(ctx, session.provider, session.opts.Location)
	if err != nil {
		session.recordFailure(err)
		session.logger.Error(session.logCtx, "rider_register_location_failed", "Could not locate device for registration", err, map[string]any{
			"type": riderType.String(),
		})
		return err
	}

	payload := contracts.RegisterRider{Lat: point.Lat, Lng: point.Lng, Type: riderType}
	if err := session.sender.Send(session.dialect.Register, payload); err != nil {
		session.logger.Error(session.logCtx, "rider_register_send_failed", "Failed to send registration", err, nil)
		return fmt.Errorf("rider: send %s: %w", session.dialect.Register, err)
	}

	session.mu.Lock()
	session.position = &point
	session.mu.Unlock()

	session.logger.Info(session.logCtx, "rider_register_sent", "Requested pickup", map[string]any{
		"type": riderType.String(),
		"lat":  point.Lat,
		"lng":  point.Lng,
	})
	return nil
}

// HandleRegistered adopts id as the self rider and starts its refresh task,
// superseding any earlier registration.
func (session *Session) HandleRegistered(id string) {
	session.mu.Lock()
	defer session.mu.Unlock()

	if session.closed || id == "" {
		return
	}
	if session.task != nil && session.task.id == id && !session.task.stopped {
		session.store.SetSelf(id)
		return
	}

	prev := session.store.SetSelf(id)
	session.stopLocked()
	session.startLocked(id)

	session.logger.Info(session.logger.WithRiderID(session.logCtx, id), "rider_registered", "Registration confirmed; position refresh started", map[string]any{
		"previous":    prev,
		"interval_ms": session.opts.RefreshInterval.Milliseconds(),
	})
}

// Done ends the registration: the server is told, self is cleared and the
// refresh task is cancelled before Done returns.
func (session *Session) Done(ctx context.Context) bool {
	session.mu.Lock()
	defer session.mu.Unlock()

	id := session.store.Self()
	if id == "" {
		return false
	}
	session.endLocked(id, "rider_done", "Registration ended by user", nil)
	return true
}

// HandleRemoved reacts to the server dropping a rider. Only the self rider
// matters; a removal that arrives after Done finds nothing to do.
func (session *Session) HandleRemoved(id string) {
	session.mu.Lock()
	defer session.mu.Unlock()

	cleared := session.store.ClearSelf(id)
	if session.task != nil && session.task.id == id {
		session.stopLocked()
		cleared = true
	}
	if cleared {
		session.logger.Info(session.logger.WithRiderID(session.logCtx, id), "rider_removed", "Server removed our registration; refresh stopped", nil)
	}
}

// Reconcile treats a self rider missing from a fresh snapshot as removed.
func (session *Session) Reconcile(snapshot fleet.Snapshot) {
	id := session.store.Self()
	if id == "" {
		return
	}
	if _, ok := snapshot.Riders[id]; ok {
		return
	}
	session.HandleRemoved(id)
}

// Locate gets the device position for centering the view. A failure while
// registered ends the registration; a caller that gives up does not.
func (session *Session) Locate(ctx context.Context) (geo.Point, error) {
	session.mu.Lock()
	if session.closed {
		session.mu.Unlock()
		return geo.Point{}, ErrClosed
	}
	if session.locating {
		session.mu.Unlock()
		return geo.Point{}, ErrLocating
	}
	session.locating = true
	session.lastErr = ""
	session.mu.Unlock()

	point, err := location.Get(ctx, session.provider, session.opts.Location)

	session.mu.Lock()
	defer session.mu.Unlock()
	session.locating = false

	if err != nil && ctx.Err() != nil {
		return geo.Point{}, err
	}
	if err != nil {
		session.lastErrLocked(err)
		if id := session.store.Self(); id != "" {
			session.endLocked(id, "rider_locate_failed", "Location lost; registration ended", err)
		}
		return geo.Point{}, err
	}
	session.position = &point
	return point, nil
}

// Status reports the self id, whether a location request runs, and the
// last failure message.
func (session *Session) Status() ports.RiderStatus {
	session.mu.Lock()
	defer session.mu.Unlock()

	id := session.store.Self()
	status := ports.RiderStatus{
		SelfID:     id,
		Registered: id != "",
		Locating:   session.locating,
		LastError:  session.lastErr,
	}
	if session.position != nil {
		p := *session.position
		status.Position = &p
	}
	return status
}

// Close cancels the refresh task and waits for any retrieval in flight.
func (session *Session) Close() {
	session.mu.Lock()
	session.closed = true
	session.stopLocked()
	session.mu.Unlock()

	session.wg.Wait()
}

// refreshing reports whether a refresh task is live. Used by tests.
func (session *Session) refreshing() bool {
	session.mu.Lock()
	defer session.mu.Unlock()
	return session.task != nil && !session.task.stopped
}

func (session *Session) startLocked(id string) {
	ctx, cancel := context.WithCancel(session.logger.WithRiderID(session.logCtx, id))
	task := &refreshTask{id: id, ctx: ctx, cancel: cancel}
	session.task = task

	session.wg.Add(1)
	go session.runRefresh(task)
}

// stopLocked cancels the current task. It is the only place a task stops.
func (session *Session) stopLocked() {
	task := session.task
	if task == nil {
		return
	}
	session.task = nil
	if task.stopped {
		return
	}
	task.stopped = true
	task.cancel()
}

// endLocked tells the server we are done, clears self and stops the task.
func (session *Session) endLocked(id, action, msg string, cause error) {
	if err := session.sender.Send(session.dialect.Done, contracts.IDPayload{ID: id}); err != nil {
		session.logger.Error(session.logCtx, "rider_done_send_failed", "Failed to send done", err, map[string]any{"id": id})
	}
	session.store.ClearSelf(id)
	if session.task != nil && session.task.id == id {
		session.stopLocked()
	}

	ctx := session.logger.WithRiderID(session.logCtx, id)
	if cause != nil {
		session.logger.Error(ctx, action, msg, cause, nil)
		return
	}
	session.logger.Info(ctx, action, msg, nil)
}

func (session *Session) runRefresh(task *refreshTask) {
	defer session.wg.Done()

	ticker := time.NewTicker(session.opts.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-task.ctx.Done():
			return
		case <-ticker.C:
			session.tick(task)
		}
	}
}

func (session *Session) tick(task *refreshTask) {
	if !task.inFlight.CompareAndSwap(false, true) {
		session.logger.Debug(task.ctx, "rider_refresh_skipped", "Previous position request still running", nil)
		return
	}

	session.mu.Lock()
	if task.stopped {
		session.mu.Unlock()
		task.inFlight.Store(false)
		return
	}
	session.wg.Add(1)
	session.mu.Unlock()

	go func() {
		defer session.wg.Done()
		defer task.inFlight.Store(false)

		point, err := location.Get(task.ctx, session.provider, session.opts.Location)

		session.mu.Lock()
		defer session.mu.Unlock()

		// cancelled while we were waiting for the fix
		if task.stopped {
			return
		}
		if err != nil {
			session.lastErrLocked(err)
			session.endLocked(task.id, "rider_refresh_failed", "Location refresh failed; registration ended", err)
			return
		}

		payload := session.dialect.LocationUpdatePayload(task.id, point.Lat, point.Lng)
		if err := session.sender.Send(session.dialect.LocationUpdate, payload); err != nil {
			session.logger.Error(task.ctx, "rider_refresh_send_failed", "Failed to send position refresh", err, nil)
			return
		}
		session.position = &point
		session.logger.Debug(task.ctx, "rider_refresh_sent", "Sent position refresh", map[string]any{
			"lat": point.Lat,
			"lng": point.Lng,
		})
	}()
}

func (session *Session) recordFailure(err error) {
	session.mu.Lock()
	session.lastErrLocked(err)
	session.mu.Unlock()
}

func (session *Session) lastErrLocked(err error) {
	if f, ok := location.AsFailure(err); ok {
		session.lastErr = f.Message()
		return
	}
	session.lastErr = err.Error()
}
