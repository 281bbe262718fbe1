package contracts

import (
	"time"

	"campus-transport/internal/domain/fleet"
)

// IDPayload carries a single entity id (removal, registration echo, done).
type IDPayload struct {
	ID string `json:"id"`
}

// RegisterRider is sent to request a pickup.
type RegisterRider struct {
	Lat  float64         `json:"lat"`
	Lng  float64         `json:"lng"`
	Type fleet.RiderType `json:"type"`
}

// LocationUpdatePayload builds the periodic rider position payload. The kind key differs
// between dialects so it is a map rather than a struct.
func (d Dialect) LocationUpdatePayload(id string, lat, lng float64) map[string]any {
	return map[string]any{
		d.LocationKindKey: d.RiderKindValue,
		"id":              id,
		"lat":             lat,
		"lng":             lng,
	}
}

// Mirror event names, used as AMQP routing keys.
const (
	MirrorSnapshot = "snapshot"
	MirrorUpdated  = "updated"
	MirrorRemoved  = "removed"
)

// MirrorEvent is a normalized entity event republished for other consumers.
type MirrorEvent struct {
	Event     string          `json:"event"`           // snapshot|updated|removed
	Kind      fleet.Kind      `json:"kind,omitempty"`  // empty for snapshots
	ID        string          `json:"id,omitempty"`    // removed entity id
	Entity    fleet.Entity    `json:"entity,omitempty"`
	Snapshot  *SnapshotCounts `json:"snapshot,omitempty"`
	SessionID string          `json:"session_id,omitempty"`
	SentAt    time.Time       `json:"sent_at"`
}

// SnapshotCounts summarizes a snapshot without copying it onto the bus.
type SnapshotCounts struct {
	Autos   int `json:"autos"`
	Buggies int `json:"buggies"`
	Riders  int `json:"riders"`
}

// RoutingKey returns "<kind>.<event>" or "snapshot".
func (event MirrorEvent) RoutingKey() string {
	if event.Kind == "" {
		return event.Event
	}
	return event.Kind.String() + "." + event.Event
}
