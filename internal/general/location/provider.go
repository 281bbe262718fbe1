// Package location obtains the device position through a pluggable provider
// and classifies every way that can fail.
package location

import (
	"context"
	"errors"
	"time"

	"campus-transport/internal/domain/geo"
)

// Options mirror what a device positioning API accepts.
type Options struct {
	HighAccuracy bool
	Timeout      time.Duration
	MaximumAge   time.Duration
}

// DefaultOptions asks for a fresh, high-accuracy fix within 15 seconds.
func DefaultOptions() Options {
	return Options{HighAccuracy: true, Timeout: 15 * time.Second, MaximumAge: 0}
}

// Provider returns the current position or an error, ideally a *Failure.
type Provider interface {
	CurrentPosition(ctx context.Context, opts Options) (geo.Point, error)
}

// Get asks provider for a position, bounded by opts.Timeout, and guarantees
// that every error it returns is a *Failure.
func Get(ctx context.Context, provider Provider, opts Options) (geo.Point, error) {
	if provider == nil {
		return geo.Point{}, fail(Unsupported, nil)
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	point, err := provider.CurrentPosition(ctx, opts)
	if err != nil {
		return geo.Point{}, classify(err)
	}
	if err := point.Validate(); err != nil {
		return geo.Point{}, fail(Unavailable, err)
	}
	return point, nil
}

func classify(err error) error {
	if f, ok := AsFailure(err); ok {
		return f
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fail(Timeout, err)
	}
	return fail(Unavailable, err)
}
