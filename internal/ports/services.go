package ports

import (
	"context"

	"campus-transport/internal/domain/fleet"
	"campus-transport/internal/domain/geo"
	"campus-transport/internal/domain/route"
	"campus-transport/internal/general/contracts"
	"campus-transport/internal/software/view"
)

// Sender pushes an event on the joined topic without blocking.
type Sender interface {
	Send(event string, payload any) error
}

// EventMirror republishes normalized entity events. Mirror must not block.
type EventMirror interface {
	Mirror(ctx context.Context, event contracts.MirrorEvent)
}

// ----- DTOs for the rider session -----

// RiderStatus is what the client knows about its own registration.
type RiderStatus struct {
	SelfID     string     `json:"self_id,omitempty"`
	Registered bool       `json:"registered"`
	Locating   bool       `json:"locating"`
	LastError  string     `json:"last_error,omitempty"`
	Position   *geo.Point `json:"position,omitempty"`
}

// ----- Service interfaces -----

// RiderService is the self-registration surface.
type RiderService interface {
	Register(ctx context.Context, riderType fleet.RiderType) error
	Done(ctx context.Context) bool
	Locate(ctx context.Context) (geo.Point, error)
	Status() RiderStatus
}

// TrackerService exposes the live view to outer surfaces.
type TrackerService interface {
	Frame() view.Frame
	Route() *route.Route
	Connected() bool
	Rider() RiderService
}
