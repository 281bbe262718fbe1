package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

const routeSchema = `
CREATE TABLE IF NOT EXISTS route_stops (
	version  TEXT             NOT NULL,
	stop_id  TEXT             NOT NULL,
	name     TEXT             NOT NULL DEFAULT '',
	lat      DOUBLE PRECISION NOT NULL,
	lng      DOUBLE PRECISION NOT NULL,
	ordering INTEGER          NOT NULL,
	PRIMARY KEY (version, stop_id)
);

CREATE TABLE IF NOT EXISTS route_segments (
	version  TEXT    NOT NULL,
	ordering INTEGER NOT NULL,
	label    TEXT    NOT NULL,
	color    TEXT    NOT NULL DEFAULT '',
	stop_ids TEXT[]  NOT NULL,
	PRIMARY KEY (version, ordering)
);
`

// EnsureSchema creates the route tables when they are missing.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, routeSchema)
	return err
}
