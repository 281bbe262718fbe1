package route

import (
	"campus-transport/internal/domain/geo"
)

// TrunkLabel is the segment label shared by every branch.
const TrunkLabel = "common"

// Stop is a named point on the route.
type Stop struct {
	ID       string
	Name     string
	Position geo.Point
}

// Segment is an ordered run of stops drawn in one color.
type Segment struct {
	Label   string
	Color   string
	StopIDs []string
}

// Path is a drawable segment resolved to coordinates.
type Path struct {
	Label  string      `json:"route"`
	Color  string      `json:"color"`
	Points []geo.Point `json:"points"`
}

// Route is the immutable route graph. Derived polylines are built once in New.
type Route struct {
	version  string
	stops    map[string]Stop
	order    []string
	segments []Segment

	paths    [][]geo.Point
	full     []geo.Point
	branches map[string][]geo.Point
}

// New builds a route. Segment stop ids that do not resolve are skipped; a later
// stop with an already used id replaces the earlier one.
func New(version string, stops []Stop, segments []Segment) *Route {
	r := &Route{
		version:  version,
		stops:    make(map[string]Stop, len(stops)),
		branches: map[string][]geo.Point{},
	}
	for _, s := range stops {
		if _, dup := r.stops[s.ID]; !dup {
			r.order = append(r.order, s.ID)
		}
		r.stops[s.ID] = s
	}

	r.segments = make([]Segment, len(segments))
	r.paths = make([][]geo.Point, len(segments))
	for i, seg := range segments {
		seg.StopIDs = append([]string(nil), seg.StopIDs...)
		r.segments[i] = seg

		points := make([]geo.Point, 0, len(seg.StopIDs))
		for _, id := range seg.StopIDs {
			if s, ok := r.stops[id]; ok {
				points = append(points, s.Position)
			}
		}
		r.paths[i] = points
		r.full = append(r.full, points...)
	}

	// a branch polyline is the trunk plus the branch segments in declaration order
	for _, seg := range r.segments {
		if seg.Label == TrunkLabel || seg.Label == "" {
			continue
		}
		if _, done := r.branches[seg.Label]; done {
			continue
		}
		var points []geo.Point
		for i, other := range r.segments {
			if other.Label == TrunkLabel || other.Label == seg.Label {
				points = append(points, r.paths[i]...)
			}
		}
		r.branches[seg.Label] = points
	}

	return r
}

// Version returns the configuration version the route was loaded from.
func (r *Route) Version() string { return r.version }

// Stop looks up a stop by id.
func (r *Route) Stop(id string) (Stop, bool) {
	s, ok := r.stops[id]
	return s, ok
}

// Stops returns every stop in declaration order.
func (r *Route) Stops() []Stop {
	out := make([]Stop, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.stops[id])
	}
	return out
}

// Segments returns a copy of the segment list.
func (r *Route) Segments() []Segment {
	out := make([]Segment, len(r.segments))
	for i, seg := range r.segments {
		seg.StopIDs = append([]string(nil), seg.StopIDs...)
		out[i] = seg
	}
	return out
}

// FullPolyline concatenates every segment's resolvable vertices.
func (r *Route) FullPolyline() []geo.Point {
	return clonePoints(r.full)
}

// SegmentPath returns the resolved vertices of segment i.
func (r *Route) SegmentPath(i int) []geo.Point {
	if i < 0 || i >= len(r.paths) {
		return nil
	}
	return clonePoints(r.paths[i])
}

// Paths returns the drawable segments. Segments with fewer than two resolvable
// stops are left out.
func (r *Route) Paths() []Path {
	out := make([]Path, 0, len(r.segments))
	for i, seg := range r.segments {
		if len(r.paths[i]) < 2 {
			continue
		}
		out = append(out, Path{Label: seg.Label, Color: seg.Color, Points: clonePoints(r.paths[i])})
	}
	return out
}

// BranchPolyline returns the trunk joined with the segments labeled label.
func (r *Route) BranchPolyline(label string) ([]geo.Point, bool) {
	points, ok := r.branches[label]
	if !ok {
		return nil, false
	}
	return clonePoints(points), true
}

// SnapTarget is the polyline an entity with the given branch label snaps to.
// Unknown or empty labels snap to the full polyline.
func (r *Route) SnapTarget(label string) []geo.Point {
	if points, ok := r.branches[label]; ok {
		return points
	}
	return r.full
}

// Snap projects point onto SnapTarget(label).
func (r *Route) Snap(point geo.Point, label string) geo.Point {
	return geo.Project(point, r.SnapTarget(label))
}

// ColorOf returns the color of the first segment labeled label.
func (r *Route) ColorOf(label string) (string, bool) {
	for _, seg := range r.segments {
		if seg.Label == label && seg.Color != "" {
			return seg.Color, true
		}
	}
	return "", false
}

func clonePoints(in []geo.Point) []geo.Point {
	if in == nil {
		return nil
	}
	return append([]geo.Point(nil), in...)
}
