package contracts

import (
	"errors"
	"strings"

	"campus-transport/internal/domain/fleet"
)

// Dialect names
const (
	DialectV2     = "v2"
	DialectLegacy = "legacy"
)

// DefaultTopic is the topic both dialects join.
const DefaultTopic = "transport:app"

var ErrUnknownDialect = errors.New("unknown protocol dialect")

// Dialect is the set of topic event names and payload keys one server version speaks.
type Dialect struct {
	Name string

	// join reply keys holding each entity mapping
	SnapshotKeys map[fleet.Kind]string

	// inbound
	Updated    map[fleet.Kind]string
	Removed    map[fleet.Kind]string
	Registered string

	// outbound
	Register       string
	Done           string
	LocationUpdate string

	// key and value naming the entity kind in a location_update payload
	LocationKindKey string
	RiderKindValue  string
}

// V2 returns the current dialect.
func V2() Dialect {
	return Dialect{
		Name: DialectV2,
		SnapshotKeys: map[fleet.Kind]string{
			fleet.KindAuto:  "vehiclesA",
			fleet.KindBuggy: "vehiclesB",
			fleet.KindRider: "riders",
		},
		Updated: map[fleet.Kind]string{
			fleet.KindAuto:  "vehicleA_updated",
			fleet.KindBuggy: "vehicleB_updated",
			fleet.KindRider: "rider_added",
		},
		Removed: map[fleet.Kind]string{
			fleet.KindRider: "rider_removed",
		},
		Registered:      "rider_registered",
		Register:        "register_rider",
		Done:            "rider_done",
		LocationUpdate:  "location_update",
		LocationKindKey: "kind",
		RiderKindValue:  "rider",
	}
}

// Legacy returns the dialect of the first deployed server.
func Legacy() Dialect {
	return Dialect{
		Name: DialectLegacy,
		SnapshotKeys: map[fleet.Kind]string{
			fleet.KindAuto:  "autos",
			fleet.KindBuggy: "buggies",
			fleet.KindRider: "passengers",
		},
		Updated: map[fleet.Kind]string{
			fleet.KindAuto:  "auto_updated",
			fleet.KindBuggy: "buggy_updated",
			fleet.KindRider: "passenger_added",
		},
		Removed: map[fleet.Kind]string{
			fleet.KindRider: "passenger_removed",
		},
		Registered:      "passenger_registered",
		Register:        "register_passenger",
		Done:            "passenger_done",
		LocationUpdate:  "location_update",
		LocationKindKey: "type",
		RiderKindValue:  "passenger",
	}
}

// DialectByName returns the named dialect.
func DialectByName(name string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", DialectV2:
		return V2(), nil
	case DialectLegacy:
		return Legacy(), nil
	default:
		return Dialect{}, ErrUnknownDialect
	}
}

// WithVehicleRemoval adds removal events for both vehicle kinds, named after the
// kind's update event ("vehicleA_updated" -> "vehicleA_removed").
func (d Dialect) WithVehicleRemoval() Dialect {
	removed := make(map[fleet.Kind]string, len(d.Removed)+2)
	for k, v := range d.Removed {
		removed[k] = v
	}
	for _, kind := range []fleet.Kind{fleet.KindAuto, fleet.KindBuggy} {
		if name, ok := d.Updated[kind]; ok {
			removed[kind] = strings.TrimSuffix(name, "_updated") + "_removed"
		}
	}
	d.Removed = removed
	return d
}

// Op is what an inbound event does to the store.
type Op int

const (
	OpUnknown Op = iota
	OpUpdated
	OpRemoved
	OpRegistered
)

// Classify maps an inbound event name to its operation and entity kind.
func (d Dialect) Classify(event string) (Op, fleet.Kind) {
	if event == d.Registered {
		return OpRegistered, fleet.KindRider
	}
	for kind, name := range d.Updated {
		if name == event {
			return OpUpdated, kind
		}
	}
	for kind, name := range d.Removed {
		if name == event {
			return OpRemoved, kind
		}
	}
	return OpUnknown, ""
}
