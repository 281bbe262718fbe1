package fleet

import (
	"errors"
	"strings"
)

// Kind identifies one of the tracked entity mappings.
type Kind string

const (
	KindAuto  Kind = "auto"  // dispatch vehicle
	KindBuggy Kind = "buggy" // route shuttle
	KindRider Kind = "rider"
)

var ErrInvalidKind = errors.New("invalid entity kind")

// Kinds lists every kind in a stable order.
func Kinds() []Kind {
	return []Kind{KindAuto, KindBuggy, KindRider}
}

// ParseKind normalizes (lowercases+trims) and validates a kind string.
func ParseKind(in string) (Kind, error) {
	kind := Kind(strings.ToLower(strings.TrimSpace(in)))
	if kind.Valid() {
		return kind, nil
	}
	return "", ErrInvalidKind
}

// Valid reports whether kind is one of the allowed kind constants.
func (kind Kind) Valid() bool {
	switch kind {
	case KindAuto, KindBuggy, KindRider:
		return true
	default:
		return false
	}
}

// IsVehicle reports whether kind is one of the two vehicle kinds.
func (kind Kind) IsVehicle() bool { return kind == KindAuto || kind == KindBuggy }

// String returns the string representation of the Kind.
func (kind Kind) String() string {
	return string(kind)
}

// Entity is a complete entity value. Updates always carry a whole Entity, never a patch.
type Entity interface {
	EntityID() string
	Kind() Kind
	Position() (lat, lng *float64)
}
