package routes

import (
	"context"
	"errors"
	"testing"

	"campus-transport/internal/domain/route"
	"campus-transport/internal/general/config"
)

type fakeUOW struct{ calls int }

func (f *fakeUOW) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	f.calls++
	return fn(ctx)
}

type memRepo struct {
	routes map[string]*route.Route
}

func (m *memRepo) Load(ctx context.Context, version string) (*route.Route, error) {
	rt, ok := m.routes[version]
	if !ok {
		return nil, errors.New("not found")
	}
	return rt, nil
}

func (m *memRepo) Save(ctx context.Context, rt *route.Route) error {
	m.routes[rt.Version()] = rt
	return nil
}

func TestSaveThenLoadThroughUnitOfWork(t *testing.T) {
	uow := &fakeUOW{}
	repo := &memRepo{routes: map[string]*route.Route{}}

	if err := Save(context.Background(), uow, repo, route.Campus()); err != nil {
		t.Fatal(err)
	}
	rt, err := FromRepository(context.Background(), uow, repo, route.CampusVersion)
	if err != nil {
		t.Fatal(err)
	}
	if rt.Version() != route.CampusVersion || uow.calls != 2 {
		t.Fatalf("version %q after %d transactions", rt.Version(), uow.calls)
	}

	if _, err := FromRepository(context.Background(), uow, repo, "nope"); err == nil {
		t.Fatal("expected an error for a missing version")
	}
}

func TestBuiltinAndFileSources(t *testing.T) {
	cfg := &config.Config{}
	cfg.Route.Source = config.RouteBuiltin
	rt, err := Load(context.Background(), cfg, nil)
	if err != nil || rt.Version() != route.CampusVersion {
		t.Fatalf("builtin = %v, %v", rt, err)
	}

	cfg.Route.Source = config.RouteFile
	cfg.Route.File = "does-not-exist.yaml"
	if _, err := Load(context.Background(), cfg, nil); err == nil {
		t.Fatal("expected an error for a missing route file")
	}
}

func TestVersionDefault(t *testing.T) {
	cfg := &config.Config{}
	if Version(cfg) != route.CampusVersion {
		t.Fatalf("default version = %q", Version(cfg))
	}
	cfg.Route.Version = "2026-fall"
	if Version(cfg) != "2026-fall" {
		t.Fatalf("version = %q", Version(cfg))
	}
}
