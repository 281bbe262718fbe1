package route

import (
	"fmt"
	"os"
	"sort"

	"campus-transport/internal/domain/geo"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// FileStop is one stop entry of a route file.
type FileStop struct {
	Name string  `yaml:"name" validate:"required"`
	Lat  float64 `yaml:"lat" validate:"gte=-90,lte=90"`
	Lng  float64 `yaml:"lng" validate:"gte=-180,lte=180"`
}

// FileSegment is one segment entry of a route file.
type FileSegment struct {
	Route string   `yaml:"route" validate:"required"`
	Color string   `yaml:"color" validate:"omitempty,hexcolor"`
	Stops []string `yaml:"stops" validate:"required,min=1,dive,required"`
}

// File is the on-disk route description.
//
//	version: campus-2024
//	stops:
//	  chayoos: {name: Chayoos, lat: 19.1365, lng: 72.902}
//	segments:
//	  - route: common
//	    color: "#6366f1"
//	    stops: [h12_13, h17, chayoos]
type File struct {
	Version  string              `yaml:"version" validate:"required"`
	Stops    map[string]FileStop `yaml:"stops" validate:"required,min=1,dive"`
	Segments []FileSegment       `yaml:"segments" validate:"required,min=1,dive"`
}

// LoadFile reads, validates and builds a route from a YAML file.
func LoadFile(path string) (*Route, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read route file: %w", err)
	}
	return Parse(data)
}

// Parse builds a route from YAML bytes.
func Parse(data []byte) (*Route, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse route file: %w", err)
	}
	if err := validator.New().Struct(f); err != nil {
		return nil, fmt.Errorf("invalid route file: %w", err)
	}
	return f.Build(), nil
}

// Build converts the file into a Route. Stops are ordered by id since YAML
// mappings carry no order.
func (f File) Build() *Route {
	ids := make([]string, 0, len(f.Stops))
	for id := range f.Stops {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	stops := make([]Stop, 0, len(ids))
	for _, id := range ids {
		s := f.Stops[id]
		stops = append(stops, Stop{ID: id, Name: s.Name, Position: geo.Point{Lat: s.Lat, Lng: s.Lng}})
	}

	segments := make([]Segment, 0, len(f.Segments))
	for _, s := range f.Segments {
		segments = append(segments, Segment{Label: s.Route, Color: s.Color, StopIDs: s.Stops})
	}
	return New(f.Version, stops, segments)
}
