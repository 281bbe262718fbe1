package ports

import (
	"context"

	"campus-transport/internal/domain/route"
)

// RouteRepository stores route layouts by version.
type RouteRepository interface {
	Load(ctx context.Context, version string) (*route.Route, error)
	Save(ctx context.Context, r *route.Route) error
}

// UnitOfWork runs fn inside one transaction carried by ctx.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}
