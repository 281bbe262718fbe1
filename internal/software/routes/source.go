// Package routes resolves the route layout named by the configuration.
package routes

import (
	"context"
	"fmt"

	"campus-transport/internal/domain/route"
	"campus-transport/internal/general/config"
	"campus-transport/internal/general/logger"
	"campus-transport/internal/general/postgres"
	"campus-transport/internal/ports"
)

// Load returns the route from the configured source.
func Load(ctx context.Context, cfg *config.Config, log *logger.Logger) (*route.Route, error) {
	switch cfg.Route.Source {
	case config.RouteFile:
		rt, err := route.LoadFile(cfg.Route.File)
		if err != nil {
			return nil, fmt.Errorf("route file %s: %w", cfg.Route.File, err)
		}
		return rt, nil

	case config.RoutePostgres:
		pool, err := postgres.NewPool(ctx, cfg, postgres.ReadRoute, log)
		if err != nil {
			return nil, err
		}
		defer pool.Close()
		return FromRepository(ctx, postgres.NewReadOnlyUnitOfWork(pool), postgres.NewRouteRepo(), Version(cfg))

	default:
		return route.Campus(), nil
	}
}

// FromRepository loads version inside one transaction.
func FromRepository(ctx context.Context, uow ports.UnitOfWork, repo ports.RouteRepository, version string) (*route.Route, error) {
	var rt *route.Route
	err := uow.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		rt, err = repo.Load(ctx, version)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("load route %q: %w", version, err)
	}
	return rt, nil
}

// Save stores rt inside one transaction.
func Save(ctx context.Context, uow ports.UnitOfWork, repo ports.RouteRepository, rt *route.Route) error {
	return uow.WithinTx(ctx, func(ctx context.Context) error {
		return repo.Save(ctx, rt)
	})
}

// Version is the stored route version to read, defaulting to the built-in one.
func Version(cfg *config.Config) string {
	if cfg.Route.Version != "" {
		return cfg.Route.Version
	}
	return route.CampusVersion
}
