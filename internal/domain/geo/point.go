package geo

import (
	"errors"
	"math"
)

// Point is a WGS84 coordinate as delivered by the transport and the device.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

var (
	ErrInvalidLatitude  = errors.New("latitude must be between -90 and 90")
	ErrInvalidLongitude = errors.New("longitude must be between -180 and 180")
)

// Validate checks the coordinate ranges.
func (point Point) Validate() error {
	if math.IsNaN(point.Lat) || point.Lat < -90 || point.Lat > 90 {
		return ErrInvalidLatitude
	}
	if math.IsNaN(point.Lng) || point.Lng < -180 || point.Lng > 180 {
		return ErrInvalidLongitude
	}
	return nil
}

// DistSq returns the squared planar distance between a and b in the input units.
func DistSq(a, b Point) float64 {
	dLat := a.Lat - b.Lat
	dLng := a.Lng - b.Lng
	return dLat*dLat + dLng*dLng
}

// PointFrom builds a point from optional wire fields. Both must be present.
func PointFrom(lat, lng *float64) (Point, bool) {
	if lat == nil || lng == nil {
		return Point{}, false
	}
	return Point{Lat: *lat, Lng: *lng}, true
}
