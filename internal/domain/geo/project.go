package geo

import "math"

// Project returns the point of polyline closest to point.
//
// Latitude and longitude are treated as planar Cartesian coordinates. This holds
// only over a small area such as a campus; for wider extents transform the inputs
// with a LocalPlane first instead of changing this function.
//
// An empty polyline returns point unchanged and a single vertex is returned as is.
// Ties between segments resolve to the first segment in polyline order.
func Project(point Point, polyline []Point) Point {
	switch len(polyline) {
	case 0:
		return point
	case 1:
		return polyline[0]
	}

	best := polyline[0]
	bestDist := math.Inf(1)
	for i := 0; i < len(polyline)-1; i++ {
		candidate := ProjectOnSegment(point, polyline[i], polyline[i+1])
		if d := DistSq(point, candidate); d < bestDist {
			bestDist = d
			best = candidate
		}
	}
	return best
}

// ProjectOnSegment projects point onto the line through a and b and clamps the
// result to the segment [a, b]. A zero-length segment projects onto a.
func ProjectOnSegment(point, a, b Point) Point {
	abLat := b.Lat - a.Lat
	abLng := b.Lng - a.Lng
	lenSq := abLat*abLat + abLng*abLng
	if lenSq == 0 {
		return a
	}

	t := ((point.Lat-a.Lat)*abLat + (point.Lng-a.Lng)*abLng) / lenSq
	t = math.Max(0, math.Min(1, t))
	return Point{Lat: a.Lat + t*abLat, Lng: a.Lng + t*abLng}
}
