package geo

import "math"

// LocalPlane is an equirectangular projection around a fixed reference latitude.
// Longitudes are scaled by cos(refLat) so planar distances approximate ground
// distances near the reference.
type LocalPlane struct {
	RefLat float64
	scale  float64
}

// NewLocalPlane returns a plane centered on refLat degrees.
func NewLocalPlane(refLat float64) LocalPlane {
	return LocalPlane{RefLat: refLat, scale: math.Cos(refLat * math.Pi / 180)}
}

// ToPlane maps a coordinate into the plane.
func (plane LocalPlane) ToPlane(point Point) Point {
	return Point{Lat: point.Lat, Lng: point.Lng * plane.factor()}
}

// FromPlane maps a planar point back to a coordinate.
func (plane LocalPlane) FromPlane(point Point) Point {
	f := plane.factor()
	if f == 0 {
		return point
	}
	return Point{Lat: point.Lat, Lng: point.Lng / f}
}

// Project runs Project in plane coordinates and returns a coordinate.
func (plane LocalPlane) Project(point Point, polyline []Point) Point {
	planar := make([]Point, len(polyline))
	for i, p := range polyline {
		planar[i] = plane.ToPlane(p)
	}
	return plane.FromPlane(Project(plane.ToPlane(point), planar))
}

func (plane LocalPlane) factor() float64 {
	// zero value behaves like the identity transform
	if plane.scale == 0 && plane.RefLat == 0 {
		return 1
	}
	return plane.scale
}
