package channel

import (
	"encoding/json"
	"fmt"
	"strings"

	"campus-transport/internal/domain/fleet"
	"campus-transport/internal/general/contracts"
)

// decodeSnapshot reads a join reply. It is lenient: a missing or broken
// mapping becomes empty, a broken entry is skipped and an entry without an
// id takes its key. Entries are stored under their own id, not the key.
func decodeSnapshot(raw json.RawMessage, d contracts.Dialect) (fleet.Snapshot, int) {
	snapshot := fleet.EmptySnapshot()

	var top map[string]json.RawMessage
	if len(raw) == 0 || json.Unmarshal(raw, &top) != nil {
		return snapshot, 0
	}

	skipped := 0
	skipped += decodeMapping(top[d.SnapshotKeys[fleet.KindAuto]], snapshot.Autos, func(key string, auto *fleet.Auto) string {
		if auto.ID == "" {
			auto.ID = key
		}
		return auto.ID
	})
	skipped += decodeMapping(top[d.SnapshotKeys[fleet.KindBuggy]], snapshot.Buggies, func(key string, buggy *fleet.Buggy) string {
		if buggy.ID == "" {
			buggy.ID = key
		}
		return buggy.ID
	})
	skipped += decodeMapping(top[d.SnapshotKeys[fleet.KindRider]], snapshot.Riders, func(key string, rider *fleet.Rider) string {
		if rider.ID == "" {
			rider.ID = key
		}
		if rider.Type != "" {
			if parsed, err := fleet.ParseRiderType(rider.Type.String()); err == nil {
				rider.Type = parsed
			}
		}
		return rider.ID
	})

	return snapshot, skipped
}

// decodeMapping fills into from a keyed mapping. fix completes an entry and
// returns the id it is stored under.
func decodeMapping[T any](raw json.RawMessage, into map[string]T, fix func(key string, v *T) string) int {
	if len(raw) == 0 || string(raw) == "null" {
		return 0
	}
	var entries map[string]json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return 1
	}

	skipped := 0
	for key, entry := range entries {
		var v T
		if err := json.Unmarshal(entry, &v); err != nil {
			skipped++
			continue
		}
		into[fix(key, &v)] = v
	}
	return skipped
}

// decodeEntity reads a delta. Unlike snapshots, deltas must be complete.
func decodeEntity(kind fleet.Kind, raw json.RawMessage) (fleet.Entity, error) {
	switch kind {
	case fleet.KindAuto:
		var auto fleet.Auto
		if err := json.Unmarshal(raw, &auto); err != nil {
			return nil, fmt.Errorf("decode auto: %w", err)
		}
		if err := auto.Validate(); err != nil {
			return nil, err
		}
		return auto, nil

	case fleet.KindBuggy:
		var buggy fleet.Buggy
		if err := json.Unmarshal(raw, &buggy); err != nil {
			return nil, fmt.Errorf("decode buggy: %w", err)
		}
		if err := buggy.Validate(); err != nil {
			return nil, err
		}
		return buggy, nil

	case fleet.KindRider:
		var rider fleet.Rider
		if err := json.Unmarshal(raw, &rider); err != nil {
			return nil, fmt.Errorf("decode rider: %w", err)
		}
		if rider.Type != "" {
			if parsed, err := fleet.ParseRiderType(rider.Type.String()); err == nil {
				rider.Type = parsed
			}
		}
		if err := rider.Validate(); err != nil {
			return nil, err
		}
		return rider, nil

	default:
		return nil, fmt.Errorf("decode: %w", fleet.ErrInvalidKind)
	}
}

func decodeID(raw json.RawMessage) (string, error) {
	var p contracts.IDPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return "", fmt.Errorf("decode id payload: %w", err)
	}
	id := strings.TrimSpace(p.ID)
	if id == "" {
		return "", fleet.ErrEmptyID
	}
	return id, nil
}
