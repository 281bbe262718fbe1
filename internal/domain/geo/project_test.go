package geo

import (
	"math"
	"testing"
)

func TestProjectOnTwoPointSegment(t *testing.T) {
	segment := []Point{{Lat: 0, Lng: 0}, {Lat: 0, Lng: 10}}

	tests := []struct {
		name string
		in   Point
		want Point
	}{
		{"inside", Point{Lat: 5, Lng: 3}, Point{Lat: 0, Lng: 3}},
		{"clamped to start", Point{Lat: 5, Lng: -2}, Point{Lat: 0, Lng: 0}},
		{"clamped to end", Point{Lat: 5, Lng: 12}, Point{Lat: 0, Lng: 10}},
		{"on the line", Point{Lat: 0, Lng: 7}, Point{Lat: 0, Lng: 7}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Project(tc.in, segment)
			if got != tc.want {
				t.Errorf("Project(%v) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestProjectDegenerateInputs(t *testing.T) {
	in := Point{Lat: 19.13, Lng: 72.91}

	if got := Project(in, nil); got != in {
		t.Errorf("empty polyline: got %v, want input %v", got, in)
	}

	only := Point{Lat: 1, Lng: 2}
	for _, p := range []Point{in, {}, {Lat: -40, Lng: 100}} {
		if got := Project(p, []Point{only}); got != only {
			t.Errorf("single vertex: Project(%v) = %v, want %v", p, got, only)
		}
	}
}

func TestProjectZeroLengthSegment(t *testing.T) {
	a := Point{Lat: 3, Lng: 3}
	got := Project(Point{Lat: 10, Lng: 10}, []Point{a, a})
	if got != a {
		t.Errorf("got %v, want %v", got, a)
	}
}

func TestProjectTiesResolveToFirstSegment(t *testing.T) {
	// point equidistant from two parallel segments
	polyline := []Point{
		{Lat: 1, Lng: 0}, {Lat: 1, Lng: 10},
		{Lat: -1, Lng: 10}, {Lat: -1, Lng: 0},
	}
	got := Project(Point{Lat: 0, Lng: 5}, polyline)
	want := Point{Lat: 1, Lng: 5}
	if got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestProjectIsGlobalMinimum(t *testing.T) {
	polyline := []Point{
		{Lat: 19.1445, Lng: 72.902},
		{Lat: 19.1365, Lng: 72.902},
		{Lat: 19.1365, Lng: 72.908},
		{Lat: 19.1385, Lng: 72.914},
		{Lat: 19.1285, Lng: 72.914},
		{Lat: 19.1285, Lng: 72.902},
	}
	samples := []Point{
		{Lat: 19.14, Lng: 72.905},
		{Lat: 19.13, Lng: 72.92},
		{Lat: 19.1375, Lng: 72.911},
		{Lat: 19.12, Lng: 72.9},
		{Lat: 19.1365, Lng: 72.902},
	}

	for _, p := range samples {
		got := Project(p, polyline)
		gotDist := DistSq(p, got)
		for i := 0; i < len(polyline)-1; i++ {
			single := ProjectOnSegment(p, polyline[i], polyline[i+1])
			if d := DistSq(p, single); gotDist > d+1e-18 {
				t.Errorf("Project(%v) dist %g exceeds segment %d dist %g", p, gotDist, i, d)
			}
		}
	}
}

func TestLocalPlaneRoundTrip(t *testing.T) {
	plane := NewLocalPlane(19.13)
	p := Point{Lat: 19.1334, Lng: 72.9137}
	back := plane.FromPlane(plane.ToPlane(p))
	if math.Abs(back.Lat-p.Lat) > 1e-12 || math.Abs(back.Lng-p.Lng) > 1e-12 {
		t.Errorf("round trip: got %v, want %v", back, p)
	}
}

func TestLocalPlaneProjectStaysOnSegment(t *testing.T) {
	plane := NewLocalPlane(19.13)
	a := Point{Lat: 19.1365, Lng: 72.902}
	b := Point{Lat: 19.1365, Lng: 72.908}
	got := plane.Project(Point{Lat: 19.137, Lng: 72.905}, []Point{a, b})
	if math.Abs(got.Lat-19.1365) > 1e-9 || math.Abs(got.Lng-72.905) > 1e-9 {
		t.Errorf("got %v, want (19.1365, 72.905)", got)
	}
}

func TestPointValidate(t *testing.T) {
	tests := []struct {
		in   Point
		want error
	}{
		{Point{Lat: 19.1, Lng: 72.9}, nil},
		{Point{Lat: 91, Lng: 0}, ErrInvalidLatitude},
		{Point{Lat: math.NaN(), Lng: 0}, ErrInvalidLatitude},
		{Point{Lat: 0, Lng: -181}, ErrInvalidLongitude},
	}
	for _, tc := range tests {
		if got := tc.in.Validate(); got != tc.want {
			t.Errorf("Validate(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
