package contracts

import (
	"testing"

	"campus-transport/internal/domain/fleet"
)

func TestClassify(t *testing.T) {
	d := V2()
	tests := []struct {
		event string
		op    Op
		kind  fleet.Kind
	}{
		{"vehicleA_updated", OpUpdated, fleet.KindAuto},
		{"vehicleB_updated", OpUpdated, fleet.KindBuggy},
		{"rider_added", OpUpdated, fleet.KindRider},
		{"rider_removed", OpRemoved, fleet.KindRider},
		{"rider_registered", OpRegistered, fleet.KindRider},
		{"vehicleA_removed", OpUnknown, ""},
		{"auto_updated", OpUnknown, ""},
	}
	for _, tc := range tests {
		op, kind := d.Classify(tc.event)
		if op != tc.op || kind != tc.kind {
			t.Errorf("Classify(%q) = %v, %q; want %v, %q", tc.event, op, kind, tc.op, tc.kind)
		}
	}
}

func TestWithVehicleRemoval(t *testing.T) {
	d := V2().WithVehicleRemoval()
	if op, kind := d.Classify("vehicleA_removed"); op != OpRemoved || kind != fleet.KindAuto {
		t.Errorf("vehicleA_removed = %v, %q", op, kind)
	}
	if op, kind := d.Classify("vehicleB_removed"); op != OpRemoved || kind != fleet.KindBuggy {
		t.Errorf("vehicleB_removed = %v, %q", op, kind)
	}

	legacy := Legacy().WithVehicleRemoval()
	if op, kind := legacy.Classify("buggy_removed"); op != OpRemoved || kind != fleet.KindBuggy {
		t.Errorf("buggy_removed = %v, %q", op, kind)
	}
	// the base dialect is untouched
	if op, _ := V2().Classify("vehicleA_removed"); op != OpUnknown {
		t.Error("WithVehicleRemoval mutated the base dialect")
	}
}

func TestDialectByName(t *testing.T) {
	if d, err := DialectByName(""); err != nil || d.Name != DialectV2 {
		t.Errorf("default dialect = %q, %v", d.Name, err)
	}
	if d, err := DialectByName("Legacy"); err != nil || d.Name != DialectLegacy {
		t.Errorf("legacy dialect = %q, %v", d.Name, err)
	}
	if _, err := DialectByName("v3"); err != ErrUnknownDialect {
		t.Errorf("unknown dialect err = %v", err)
	}
}

func TestLocationUpdatePayload(t *testing.T) {
	p := V2().LocationUpdatePayload("r1", 1.5, 2.5)
	if p["kind"] != "rider" || p["id"] != "r1" || p["lat"] != 1.5 || p["lng"] != 2.5 {
		t.Errorf("v2 payload = %v", p)
	}
	legacy := Legacy().LocationUpdatePayload("r1", 1.5, 2.5)
	if legacy["type"] != "passenger" {
		t.Errorf("legacy payload = %v", legacy)
	}
}

func TestMirrorRoutingKey(t *testing.T) {
	if got := (MirrorEvent{Event: MirrorSnapshot}).RoutingKey(); got != "snapshot" {
		t.Errorf("snapshot key = %q", got)
	}
	if got := (MirrorEvent{Event: MirrorRemoved, Kind: fleet.KindRider}).RoutingKey(); got != "rider.removed" {
		t.Errorf("removal key = %q", got)
	}
}
