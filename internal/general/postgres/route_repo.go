package postgres

import (
	"context"
	"errors"
	"fmt"

	"campus-transport/internal/domain/geo"
	"campus-transport/internal/domain/route"
	"campus-transport/internal/ports"

	"github.com/jackc/pgx/v5"
)

var ErrRouteNotFound = errors.New("route version not found")

// RouteRepo reads and writes route layouts. Every call must run inside UnitOfWork.WithinTx.
type RouteRepo struct{}

// NewRouteRepo constructs a new RouteRepo.
func NewRouteRepo() ports.RouteRepository {
	return &RouteRepo{}
}

type stopRow struct {
	ID       string
	Name     string
	Lat, Lng float64
}

type segmentRow struct {
	Label   string
	Color   string
	StopIDs []string
}

// Load reads the stops and segments stored under version.
func (repo *RouteRepo) Load(ctx context.Context, version string) (*route.Route, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
		SELECT stop_id, name, lat, lng
		FROM route_stops
		WHERE version = $1
		ORDER BY ordering
	`, version)
	if err != nil {
		return nil, fmt.Errorf("query route stops: %w", err)
	}
	stops, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (stopRow, error) {
		var s stopRow
		err := row.Scan(&s.ID, &s.Name, &s.Lat, &s.Lng)
		return s, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan route stops: %w", err)
	}
	if len(stops) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrRouteNotFound, version)
	}

	rows, err = tx.Query(ctx, `
		SELECT label, color, stop_ids
		FROM route_segments
		WHERE version = $1
		ORDER BY ordering
	`, version)
	if err != nil {
		return nil, fmt.Errorf("query route segments: %w", err)
	}
	segments, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (segmentRow, error) {
		var s segmentRow
		err := row.Scan(&s.Label, &s.Color, &s.StopIDs)
		return s, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan route segments: %w", err)
	}

	return assemble(version, stops, segments), nil
}

// Save replaces everything stored under the route's version.
func (repo *RouteRepo) Save(ctx context.Context, r *route.Route) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	batch := &pgx.Batch{}
	batch.Queue(`DELETE FROM route_segments WHERE version = $1`, r.Version())
	batch.Queue(`DELETE FROM route_stops WHERE version = $1`, r.Version())
	for i, s := range r.Stops() {
		batch.Queue(`
			INSERT INTO route_stops (version, stop_id, name, lat, lng, ordering)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, r.Version(), s.ID, s.Name, s.Position.Lat, s.Position.Lng, i)
	}
	for i, seg := range r.Segments() {
		batch.Queue(`
			INSERT INTO route_segments (version, ordering, label, color, stop_ids)
			VALUES ($1, $2, $3, $4, $5)
		`, r.Version(), i, seg.Label, seg.Color, seg.StopIDs)
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("save route %q: %w", r.Version(), err)
	}
	return nil
}

func assemble(version string, stops []stopRow, segments []segmentRow) *route.Route {
	rs := make([]route.Stop, len(stops))
	for i, s := range stops {
		rs[i] = route.Stop{ID: s.ID, Name: s.Name, Position: geo.Point{Lat: s.Lat, Lng: s.Lng}}
	}
	segs := make([]route.Segment, len(segments))
	for i, s := range segments {
		segs[i] = route.Segment{Label: s.Label, Color: s.Color, StopIDs: s.StopIDs}
	}
	return route.New(version, rs, segs)
}
