// Package store holds the live fleet state: autos, buggies and riders keyed by
// id, plus the id of the rider this client registered.
package store

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"campus-transport/internal/domain/fleet"
)

var ErrKindMismatch = errors.New("store: entity kind does not match")

// Store is safe for concurrent use. Writers are the channel dispatch and the
// rider session; readers take consistent copies.
type Store struct {
	mu      sync.RWMutex
	autos   map[string]fleet.Auto
	buggies map[string]fleet.Buggy
	riders  map[string]fleet.Rider
	selfID  string
}

func New() *Store {
	return &Store{
		autos:   map[string]fleet.Auto{},
		buggies: map[string]fleet.Buggy{},
		riders:  map[string]fleet.Rider{},
	}
}

// ApplySnapshot replaces all three mappings. The self id is left alone.
func (store *Store) ApplySnapshot(snapshot fleet.Snapshot) {
	snapshot = snapshot.Clone()

	store.mu.Lock()
	store.autos = snapshot.Autos
	store.buggies = snapshot.Buggies
	store.riders = snapshot.Riders
	store.mu.Unlock()
}

// Upsert stores entity under kind, replacing any previous value. A value
// without a position keeps the position it had before.
func (store *Store) Upsert(kind fleet.Kind, entity fleet.Entity) error {
	if entity == nil || entity.Kind() != kind {
		return fmt.Errorf("%w: want %s", ErrKindMismatch, kind)
	}
	if entity.EntityID() == "" {
		return fleet.ErrEmptyID
	}

	store.mu.Lock()
	defer store.mu.Unlock()

	switch v := entity.(type) {
	case fleet.Auto:
		if prev, ok := store.autos[v.ID]; ok {
			v.Lat, v.Lng = carry(v.Lat, v.Lng, prev.Lat, prev.Lng)
		}
		store.autos[v.ID] = v
	case fleet.Buggy:
		if prev, ok := store.buggies[v.ID]; ok {
			v.Lat, v.Lng = carry(v.Lat, v.Lng, prev.Lat, prev.Lng)
		}
		store.buggies[v.ID] = v
	case fleet.Rider:
		if prev, ok := store.riders[v.ID]; ok {
			v.Lat, v.Lng = carry(v.Lat, v.Lng, prev.Lat, prev.Lng)
		}
		store.riders[v.ID] = v
	default:
		return fmt.Errorf("%w: unsupported %T", ErrKindMismatch, entity)
	}
	return nil
}

// carry keeps the previous coordinates when the update has no complete pair.
func carry(lat, lng, prevLat, prevLng *float64) (*float64, *float64) {
	if lat != nil && lng != nil {
		return lat, lng
	}
	return prevLat, prevLng
}

// Remove deletes id from kind and reports whether it was present. Removing
// the self rider also clears the self id.
func (store *Store) Remove(kind fleet.Kind, id string) bool {
	store.mu.Lock()
	defer store.mu.Unlock()

	var found bool
	switch kind {
	case fleet.KindAuto:
		_, found = store.autos[id]
		delete(store.autos, id)
	case fleet.KindBuggy:
		_, found = store.buggies[id]
		delete(store.buggies, id)
	case fleet.KindRider:
		_, found = store.riders[id]
		delete(store.riders, id)
		if id != "" && store.selfID == id {
			store.selfID = ""
		}
	}
	return found
}

// SetSelf records the registered rider id and returns the one it replaces.
func (store *Store) SetSelf(id string) string {
	store.mu.Lock()
	defer store.mu.Unlock()
	prev := store.selfID
	store.selfID = id
	return prev
}

// ClearSelf drops the self id if it is id.
func (store *Store) ClearSelf(id string) bool {
	store.mu.Lock()
	defer store.mu.Unlock()
	if id == "" || store.selfID != id {
		return false
	}
	store.selfID = ""
	return true
}

// Self returns the registered rider id, or "".
func (store *Store) Self() string {
	store.mu.RLock()
	defer store.mu.RUnlock()
	return store.selfID
}

// Get returns the entity of kind stored under id.
func (store *Store) Get(kind fleet.Kind, id string) (fleet.Entity, bool) {
	switch kind {
	case fleet.KindAuto:
		if v, ok := store.Auto(id); ok {
			return v, true
		}
	case fleet.KindBuggy:
		if v, ok := store.Buggy(id); ok {
			return v, true
		}
	case fleet.KindRider:
		if v, ok := store.Rider(id); ok {
			return v, true
		}
	}
	return nil, false
}

func (store *Store) Auto(id string) (fleet.Auto, bool) {
	store.mu.RLock()
	defer store.mu.RUnlock()
	v, ok := store.autos[id]
	return v, ok
}

func (store *Store) Buggy(id string) (fleet.Buggy, bool) {
	store.mu.RLock()
	defer store.mu.RUnlock()
	v, ok := store.buggies[id]
	return v, ok
}

func (store *Store) Rider(id string) (fleet.Rider, bool) {
	store.mu.RLock()
	defer store.mu.RUnlock()
	v, ok := store.riders[id]
	return v, ok
}

// Autos returns all autos sorted by id.
func (store *Store) Autos() []fleet.Auto {
	store.mu.RLock()
	defer store.mu.RUnlock()
	out := make([]fleet.Auto, 0, len(store.autos))
	for _, v := range store.autos {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Buggies returns all buggies sorted by id.
func (store *Store) Buggies() []fleet.Buggy {
	store.mu.RLock()
	defer store.mu.RUnlock()
	out := make([]fleet.Buggy, 0, len(store.buggies))
	for _, v := range store.buggies {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Riders returns all riders sorted by id.
func (store *Store) Riders() []fleet.Rider {
	store.mu.RLock()
	defer store.mu.RUnlock()
	out := make([]fleet.Rider, 0, len(store.riders))
	for _, v := range store.riders {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Snapshot returns a deep copy of the three mappings.
func (store *Store) Snapshot() fleet.Snapshot {
	store.mu.RLock()
	defer store.mu.RUnlock()
	return fleet.Snapshot{Autos: store.autos, Buggies: store.buggies, Riders: store.riders}.Clone()
}
