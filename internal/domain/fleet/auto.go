package fleet

import (
	"errors"
	"strings"
)

// AutoState is the operational state of a dispatch vehicle.
type AutoState string

const (
	AutoAvailable AutoState = "available"
	AutoBooked    AutoState = "booked"
)

var (
	ErrInvalidAutoState = errors.New("invalid auto state")
	ErrEmptyID          = errors.New("entity id cannot be empty")
)

// ParseAutoState normalizes (lowercases+trims) and validates an auto state string.
func ParseAutoState(in string) (AutoState, error) {
	state := AutoState(strings.ToLower(strings.TrimSpace(in)))
	if state.Valid() {
		return state, nil
	}
	return "", ErrInvalidAutoState
}

// Valid reports whether state is one of the allowed auto states.
func (state AutoState) Valid() bool {
	switch state {
	case AutoAvailable, AutoBooked:
		return true
	default:
		return false
	}
}

func (state AutoState) String() string { return string(state) }

// Auto is a dispatch vehicle (vehicle kind A).
type Auto struct {
	ID             string    `json:"id"`
	Lat            *float64  `json:"lat,omitempty"`
	Lng            *float64  `json:"lng,omitempty"`
	State          AutoState `json:"state"`
	PassengerCount *int      `json:"passengerCount,omitempty"`
}

func (auto Auto) EntityID() string               { return auto.ID }
func (auto Auto) Kind() Kind                     { return KindAuto }
func (auto Auto) Position() (*float64, *float64) { return auto.Lat, auto.Lng }

// Validate checks the fields a complete auto update must carry.
func (auto Auto) Validate() error {
	if strings.TrimSpace(auto.ID) == "" {
		return ErrEmptyID
	}
	if !auto.State.Valid() {
		return ErrInvalidAutoState
	}
	return nil
}

// Booked reports whether the auto currently carries riders.
func (auto Auto) Booked() bool { return auto.State == AutoBooked }
