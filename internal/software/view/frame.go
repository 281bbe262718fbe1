// Package view turns the fleet state into what a map shows: positioned
// markers, buggies snapped onto their route, and the route paths.
package view

import (
	"fmt"
	"sort"

	"campus-transport/internal/domain/fleet"
	"campus-transport/internal/domain/geo"
	"campus-transport/internal/domain/route"
)

// Marker colors.
const (
	ColorAutoAvailable = "#22c55e"
	ColorAutoBooked    = "#f59e0b"
	ColorRiderWithin   = "#10b981"
	ColorRiderOutside  = "#3b82f6"
	ColorBuggyRed      = "#ef4444"
	ColorBuggyBlue     = "#3b82f6"
)

type Marker struct {
	ID       string     `json:"id"`
	Kind     fleet.Kind `json:"kind"`
	Position geo.Point  `json:"position"`
	Color    string     `json:"color"`
	Label    string     `json:"label"`
	Self     bool       `json:"self,omitempty"`
	Route    string     `json:"route,omitempty"`
	State    string     `json:"state,omitempty"`
}

// Frame is one renderable picture of the fleet.
type Frame struct {
	RouteVersion string       `json:"route_version,omitempty"`
	SelfID       string       `json:"self_id,omitempty"`
	Autos        []Marker     `json:"autos"`
	Buggies      []Marker     `json:"buggies"`
	Riders       []Marker     `json:"riders"`
	Paths        []route.Path `json:"paths"`
	// entities left off the map for lack of a position
	Unplaced int `json:"unplaced"`
}

// Build derives a frame. A nil route leaves buggies where they are reported.
func Build(snapshot fleet.Snapshot, selfID string, rt *route.Route) Frame {
	frame := Frame{
		SelfID:  selfID,
		Autos:   []Marker{},
		Buggies: []Marker{},
		Riders:  []Marker{},
		Paths:   []route.Path{},
	}
	if rt != nil {
		frame.RouteVersion = rt.Version()
		frame.Paths = rt.Paths()
	}

	for _, auto := range snapshot.Autos {
		point, ok := geo.PointFrom(auto.Lat, auto.Lng)
		if !ok {
			frame.Unplaced++
			continue
		}
		frame.Autos = append(frame.Autos, autoMarker(auto, point))
	}

	for _, buggy := range snapshot.Buggies {
		point, ok := geo.PointFrom(buggy.Lat, buggy.Lng)
		if !ok {
			frame.Unplaced++
			continue
		}
		if rt != nil {
			point = rt.Snap(point, buggy.Route)
		}
		frame.Buggies = append(frame.Buggies, Marker{
			ID:       buggy.ID,
			Kind:     fleet.KindBuggy,
			Position: point,
			Color:    BuggyColor(rt, buggy.Route),
			Label:    buggyLabel(buggy.Route),
			Route:    buggy.Route,
		})
	}

	for _, rider := range snapshot.Riders {
		point, ok := geo.PointFrom(rider.Lat, rider.Lng)
		if !ok {
			frame.Unplaced++
			continue
		}
		frame.Riders = append(frame.Riders, riderMarker(rider, point, selfID))
	}

	byID := func(markers []Marker) {
		sort.Slice(markers, func(i, j int) bool { return markers[i].ID < markers[j].ID })
	}
	byID(frame.Autos)
	byID(frame.Buggies)
	byID(frame.Riders)

	return frame
}

// BuggyColor uses the branch color from the route; labels the route does not
// color fall back to blue for "blue" and red for everything else.
func BuggyColor(rt *route.Route, label string) string {
	if rt != nil && label != route.TrunkLabel {
		if color, ok := rt.ColorOf(label); ok {
			return color
		}
	}
	if label == "blue" {
		return ColorBuggyBlue
	}
	return ColorBuggyRed
}

func autoMarker(auto fleet.Auto, point geo.Point) Marker {
	m := Marker{
		ID:       auto.ID,
		Kind:     fleet.KindAuto,
		Position: point,
		Color:    ColorAutoAvailable,
		Label:    "Auto (available)",
		State:    auto.State.String(),
	}
	if auto.Booked() {
		count := 0
		if auto.PassengerCount != nil {
			count = *auto.PassengerCount
		}
		m.Color = ColorAutoBooked
		m.Label = fmt.Sprintf("Auto (booked, %d passengers)", count)
	}
	return m
}

func riderMarker(rider fleet.Rider, point geo.Point, selfID string) Marker {
	m := Marker{
		ID:       rider.ID,
		Kind:     fleet.KindRider,
		Position: point,
		Color:    ColorRiderWithin,
		Label:    "Waiting (within campus)",
		Self:     selfID != "" && rider.ID == selfID,
	}
	if rider.Type == fleet.RiderOutside {
		m.Color = ColorRiderOutside
		m.Label = "Waiting (outside campus)"
	}
	if m.Self {
		m.Label = "You"
	}
	return m
}

func buggyLabel(label string) string {
	if label == "" {
		return "Buggy"
	}
	return "Buggy (" + label + " route)"
}
