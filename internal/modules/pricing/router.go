// README: Straight-line router used when no maps API key is configured.
package pricing

import (
	"context"
	"math"

	"ridedispatch/internal/types"
)

// StraightLineRouter estimates a route from the great-circle distance and a fixed average speed.
type StraightLineRouter struct {
	SpeedMps float64
}

func (r StraightLineRouter) Route(_ context.Context, origin, destination types.Point) (Route, error) {
	meters := types.DistanceKm(origin, destination) * 1000
	speed := r.SpeedMps
	if speed <= 0 {
		speed = 8
	}
	return Route{
		DistanceMeters:  int(math.Round(meters)),
		DurationSeconds: int(math.Round(meters / speed)),
	}, nil
}
