package route

import "campus-transport/internal/domain/geo"

// CampusVersion identifies the built-in schematic layout.
const CampusVersion = "campus-schematic-v1"

// Campus returns the built-in buggy route: a vertical main line from H12&13 to the
// main gate, and a rectangular red loop leaving it at Chayoos and rejoining at T Point.
// Coordinates are schematic, not surveyed.
func Campus() *Route {
	stops := []Stop{
		// main line
		{ID: "h12_13", Name: "H 12 & 13", Position: geo.Point{Lat: 19.1445, Lng: 72.902}},
		{ID: "h17", Name: "h17", Position: geo.Point{Lat: 19.1405, Lng: 72.902}},
		{ID: "chayoos", Name: "Chayoos", Position: geo.Point{Lat: 19.1365, Lng: 72.902}},
		{ID: "gymkhana", Name: "Gymkhana", Position: geo.Point{Lat: 19.1325, Lng: 72.902}},
		{ID: "t_point", Name: "T Point", Position: geo.Point{Lat: 19.1285, Lng: 72.902}},
		{ID: "convocation", Name: "Convocation", Position: geo.Point{Lat: 19.1265, Lng: 72.902}},
		{ID: "lhc", Name: "LHC", Position: geo.Point{Lat: 19.1245, Lng: 72.902}},
		{ID: "h10", Name: "h10 (T-point)", Position: geo.Point{Lat: 19.1225, Lng: 72.902}},
		{ID: "maingate", Name: "Maingate", Position: geo.Point{Lat: 19.1185, Lng: 72.902}},

		// loop, top edge
		{ID: "h5", Name: "h5", Position: geo.Point{Lat: 19.1365, Lng: 72.908}},
		{ID: "h4", Name: "h4", Position: geo.Point{Lat: 19.1385, Lng: 72.914}},

		// loop, right edge
		{ID: "h3", Name: "h3", Position: geo.Point{Lat: 19.1355, Lng: 72.914}},
		{ID: "h2", Name: "h2", Position: geo.Point{Lat: 19.1335, Lng: 72.914}},
		{ID: "h1", Name: "h1", Position: geo.Point{Lat: 19.1315, Lng: 72.914}},
		{ID: "h1_turning", Name: "h1 turning", Position: geo.Point{Lat: 19.1285, Lng: 72.914}},
	}

	segments := []Segment{
		{Label: TrunkLabel, Color: "#6366f1", StopIDs: []string{"h12_13", "h17", "chayoos"}},
		{Label: "blue", Color: "#3b82f6", StopIDs: []string{"chayoos", "gymkhana", "t_point"}},
		{Label: "red", Color: "#ef4444", StopIDs: []string{"chayoos", "h5", "h4", "h3", "h2", "h1", "h1_turning", "t_point"}},
		{Label: TrunkLabel, Color: "#6366f1", StopIDs: []string{"t_point", "convocation", "lhc", "h10", "maingate"}},
	}

	return New(CampusVersion, stops, segments)
}
