package location

import (
	"context"

	"campus-transport/internal/domain/geo"
)

// Static always reports the same point. Err, when set, is returned instead.
type Static struct {
	Point geo.Point
	Err   error
}

func (s Static) CurrentPosition(ctx context.Context, _ Options) (geo.Point, error) {
	if err := ctx.Err(); err != nil {
		return geo.Point{}, err
	}
	if s.Err != nil {
		return geo.Point{}, s.Err
	}
	return s.Point, nil
}
