package postgres

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"campus-transport/internal/general/config"
	"campus-transport/internal/general/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

const applicationName = "campus-transport"

// Access says what a pool may do with the route tables.
type Access int

const (
	// ReadRoute is the tracker's startup load: one session, read only.
	ReadRoute Access = iota
	// WriteRoute is routeinfo --save: schema creation plus an upsert.
	WriteRoute
)

func (a Access) String() string {
	if a == WriteRoute {
		return "write"
	}
	return "read"
}

// routeDSN points at the configured database. Do not log its result.
func routeDSN(cfg *config.Config) string {
	u := &url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(cfg.Database.Host, strconv.Itoa(cfg.Database.Port)),
		Path:   "/" + cfg.Database.Name,
		User:   url.UserPassword(cfg.Database.User, cfg.Database.Password),
	}
	q := url.Values{}
	q.Set("sslmode", "disable")
	q.Set("application_name", applicationName)
	u.RawQuery = q.Encode()
	return u.String()
}

// poolConfig sizes the pool for access. A read pool asks the server to
// reject writes for every transaction on its sessions.
func poolConfig(cfg *config.Config, access Access) (*pgxpool.Config, error) {
	pcfg, err := pgxpool.ParseConfig(routeDSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("postgres parse dsn: %w", err)
	}

	pcfg.ConnConfig.ConnectTimeout = 5 * time.Second
	if pcfg.ConnConfig.RuntimeParams == nil {
		pcfg.ConnConfig.RuntimeParams = make(map[string]string, 3)
	}
	pcfg.ConnConfig.RuntimeParams["timezone"] = "UTC"

	switch access {
	case WriteRoute:
		// schema DDL and the upsert run one after another
		pcfg.MaxConns = 2
		pcfg.ConnConfig.RuntimeParams["statement_timeout"] = "30000"
	default:
		pcfg.MaxConns = 1
		pcfg.ConnConfig.RuntimeParams["default_transaction_read_only"] = "on"
		pcfg.ConnConfig.RuntimeParams["statement_timeout"] = "5000"
	}
	pcfg.MinConns = 0
	pcfg.MaxConnIdleTime = time.Minute
	pcfg.HealthCheckPeriod = 0

	return pcfg, nil
}

// NewPool opens a short-lived pool for loading or storing a route and
// verifies connectivity before returning it.
func NewPool(ctx context.Context, cfg *config.Config, access Access, logger *logger.Logger) (*pgxpool.Pool, error) {
	start := time.Now()

	logger.Info(ctx, "route_db_config", "Route database parameters", map[string]any{
		"host":           cfg.Database.Host,
		"port":           cfg.Database.Port,
		"user":           cfg.Database.User,
		"database":       cfg.Database.Name,
		"password_empty": cfg.Database.Password == "",
		"access":         access.String(),
	})

	pcfg, err := poolConfig(cfg, access)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.NewWithConfig: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping (%s): %w", access, err)
	}

	logger.Info(ctx, "route_db_connected", "Connected to route database", map[string]any{
		"access":      access.String(),
		"duration_ms": time.Since(start).Milliseconds(),
	})

	return pool, nil
}
