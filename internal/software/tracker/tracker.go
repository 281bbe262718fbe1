// Package tracker wires the channel client to the fleet store, the rider
// session and the optional event mirror.
package tracker

import (
	"context"

	"campus-transport/internal/domain/fleet"
	"campus-transport/internal/domain/route"
	"campus-transport/internal/general/contracts"
	"campus-transport/internal/general/location"
	"campus-transport/internal/general/logger"
	"campus-transport/internal/ports"
	"campus-transport/internal/software/channel"
	"campus-transport/internal/software/rider"
	"campus-transport/internal/software/store"
	"campus-transport/internal/software/view"
)

// Options configure a Tracker.
type Options struct {
	Channel channel.Options
	Rider   rider.Options
}

// Tracker is the live client: one subscription, one store, one rider session.
type Tracker struct {
	client *channel.Client
	store  *store.Store
	rider  *rider.Session
	route  *route.Route
	mirror ports.EventMirror
	logger *logger.Logger
	logCtx context.Context
}

// New wires a tracker. mirror may be nil.
func New(ctx context.Context, opts Options, rt *route.Route, provider location.Provider, mirror ports.EventMirror, log *logger.Logger) *Tracker {
	if log == nil {
		log = logger.Discard()
	}
	client := channel.New(opts.Channel, log)
	st := store.New()

	tracker := &Tracker{
		client: client,
		store:  st,
		rider:  rider.NewSession(ctx, st, client, client.Dialect(), provider, opts.Rider, log),
		route:  rt,
		mirror: mirror,
		logger: log,
		logCtx: context.WithoutCancel(ctx),
	}

	client.OnSnapshot(tracker.applySnapshot)
	for _, kind := range fleet.Kinds() {
		client.OnEntityUpdated(kind, func(entity fleet.Entity) { tracker.applyUpdate(kind, entity) })
		client.OnEntityRemoved(kind, func(id string) { tracker.applyRemoval(kind, id) })
	}
	client.OnSelfRegistered(tracker.rider.HandleRegistered)
	client.OnStatus(func(connected bool) {
		tracker.logger.Info(tracker.logCtx, "tracker_connectivity", "Connectivity changed", map[string]any{"connected": connected})
	})
	return tracker
}

// Start connects in the background; it returns immediately.
func (tracker *Tracker) Start(ctx context.Context) {
	tracker.client.Connect(ctx)
}

// Stop ends the refresh task and leaves the topic. No handler runs after Stop.
func (tracker *Tracker) Stop() {
	tracker.rider.Close()
	tracker.client.Disconnect()
}

// Frame derives the current map picture.
func (tracker *Tracker) Frame() view.Frame {
	return view.Build(tracker.store.Snapshot(), tracker.store.Self(), tracker.route)
}

func (tracker *Tracker) Route() *route.Route { return tracker.route }

func (tracker *Tracker) Connected() bool { return tracker.client.Connected() }

func (tracker *Tracker) Rider() ports.RiderService { return tracker.rider }

// Store exposes the fleet state for read-only consumers.
func (tracker *Tracker) Store() *store.Store { return tracker.store }

func (tracker *Tracker) applySnapshot(snapshot fleet.Snapshot) {
	tracker.store.ApplySnapshot(snapshot)
	tracker.rider.Reconcile(snapshot)

	tracker.publish(contracts.MirrorEvent{
		Event: contracts.MirrorSnapshot,
		Snapshot: &contracts.SnapshotCounts{
			Autos:   len(snapshot.Autos),
			Buggies: len(snapshot.Buggies),
			Riders:  len(snapshot.Riders),
		},
	})
}

func (tracker *Tracker) applyUpdate(kind fleet.Kind, entity fleet.Entity) {
	if err := tracker.store.Upsert(kind, entity); err != nil {
		tracker.logger.Error(tracker.logCtx, "tracker_upsert_rejected", "Dropped entity update", err, map[string]any{
			"kind": kind.String(),
			"id":   entity.EntityID(),
		})
		return
	}

	// publish what the store now holds, including a carried-forward position
	stored, ok := tracker.store.Get(kind, entity.EntityID())
	if !ok {
		stored = entity
	}
	tracker.publish(contracts.MirrorEvent{Event: contracts.MirrorUpdated, Kind: kind, ID: entity.EntityID(), Entity: stored})
}

func (tracker *Tracker) applyRemoval(kind fleet.Kind, id string) {
	removed := tracker.store.Remove(kind, id)
	if kind == fleet.KindRider {
		tracker.rider.HandleRemoved(id)
	}
	if removed {
		tracker.publish(contracts.MirrorEvent{Event: contracts.MirrorRemoved, Kind: kind, ID: id})
	}
}

func (tracker *Tracker) publish(event contracts.MirrorEvent) {
	if tracker.mirror == nil {
		return
	}
	tracker.mirror.Mirror(tracker.logCtx, event)
}
