package routeinfo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"campus-transport/internal/domain/route"
	"campus-transport/internal/general/config"
	"campus-transport/internal/general/logger"
	"campus-transport/internal/general/postgres"
	"campus-transport/internal/software/routes"
)

// Params select what route-info does.
type Params struct {
	ConfigPath string
	// File overrides the configured route source.
	File string
	// Save stores the route in Postgres under its version.
	Save bool
	JSON bool
}

// Run prints the route layout to w and optionally stores it.
func Run(ctx context.Context, p Params, w io.Writer) error {
	logger := logger.New("route-info")

	cfg, err := config.LoadFromFile(p.ConfigPath)
	if err != nil {
		logger.Error(ctx, "config_load_failed", "Failed to load configuration", err, nil)
		return err
	}

	var rt *route.Route
	if p.File != "" {
		rt, err = route.LoadFile(p.File)
	} else {
		rt, err = routes.Load(ctx, cfg, logger)
	}
	if err != nil {
		logger.Error(ctx, "route_load_failed", "Failed to load route", err, nil)
		return err
	}

	if p.Save {
		if err := save(ctx, cfg, logger, rt); err != nil {
			logger.Error(ctx, "route_save_failed", "Failed to store route", err, map[string]any{"version": rt.Version()})
			return err
		}
		logger.Info(ctx, "route_saved", "Route stored in Postgres", map[string]any{"version": rt.Version()})
	}

	if p.JSON {
		return writeJSON(w, rt)
	}
	return writeText(w, rt)
}

func save(ctx context.Context, cfg *config.Config, log *logger.Logger, rt *route.Route) error {
	pool, err := postgres.NewPool(ctx, cfg, postgres.WriteRoute, log)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := postgres.EnsureSchema(ctx, pool); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return routes.Save(ctx, postgres.NewUnitOfWork(pool), postgres.NewRouteRepo(), rt)
}

func writeText(w io.Writer, rt *route.Route) error {
	var b strings.Builder
	fmt.Fprintf(&b, "route %s: %d stops, %d segments\n", rt.Version(), len(rt.Stops()), len(rt.Segments()))
	for _, s := range rt.Stops() {
		fmt.Fprintf(&b, "  stop %-16s %-24s %.6f,%.6f\n", s.ID, s.Name, s.Position.Lat, s.Position.Lng)
	}
	for i, seg := range rt.Segments() {
		fmt.Fprintf(&b, "  segment %-8s %-8s %s (%d points)\n", seg.Label, seg.Color, strings.Join(seg.StopIDs, " > "), len(rt.SegmentPath(i)))
	}
	_, err := io.WriteString(w, b.String())
	return err
}

type stopJSON struct {
	ID   string  `json:"id"`
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
}

type segmentJSON struct {
	Label string   `json:"label"`
	Color string   `json:"color,omitempty"`
	Stops []string `json:"stops"`
}

func writeJSON(w io.Writer, rt *route.Route) error {
	out := struct {
		Version  string        `json:"version"`
		Stops    []stopJSON    `json:"stops"`
		Segments []segmentJSON `json:"segments"`
	}{Version: rt.Version()}

	for _, s := range rt.Stops() {
		out.Stops = append(out.Stops, stopJSON{ID: s.ID, Name: s.Name, Lat: s.Position.Lat, Lng: s.Position.Lng})
	}
	for _, seg := range rt.Segments() {
		out.Segments = append(out.Segments, segmentJSON{Label: seg.Label, Color: seg.Color, Stops: seg.StopIDs})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
