package fleet

import (
	"errors"
	"strings"
)

// RiderType is the travel intent of a waiting rider.
type RiderType string

const (
	RiderWithin  RiderType = "within"  // within campus
	RiderOutside RiderType = "outside" // outside campus
)

var ErrInvalidRiderType = errors.New("invalid rider type")

// ParseRiderType normalizes (lowercases+trims) and validates a rider type string.
// The long forms "within-campus" and "outside-campus" are accepted too.
func ParseRiderType(in string) (RiderType, error) {
	s := strings.ToLower(strings.TrimSpace(in))
	s = strings.TrimSuffix(s, "-campus")
	riderType := RiderType(s)
	if riderType.Valid() {
		return riderType, nil
	}
	return "", ErrInvalidRiderType
}

// Valid reports whether riderType is one of the allowed rider types.
func (riderType RiderType) Valid() bool {
	switch riderType {
	case RiderWithin, RiderOutside:
		return true
	default:
		return false
	}
}

func (riderType RiderType) String() string { return string(riderType) }

// Rider is a person waiting for an auto.
type Rider struct {
	ID   string    `json:"id"`
	Lat  *float64  `json:"lat,omitempty"`
	Lng  *float64  `json:"lng,omitempty"`
	Type RiderType `json:"type"`
}

func (rider Rider) EntityID() string               { return rider.ID }
func (rider Rider) Kind() Kind                     { return KindRider }
func (rider Rider) Position() (*float64, *float64) { return rider.Lat, rider.Lng }

// Validate checks the fields a complete rider update must carry.
func (rider Rider) Validate() error {
	if strings.TrimSpace(rider.ID) == "" {
		return ErrEmptyID
	}
	if !rider.Type.Valid() {
		return ErrInvalidRiderType
	}
	return nil
}
