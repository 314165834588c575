// README: Pricing service turns a route into a priced estimate.
package pricing

import (
	"context"
	"fmt"
	"math"

	"ridedispatch/internal/types"
)

// Router resolves the driving route between two points.
type Router interface {
	Route(ctx context.Context, origin, destination types.Point) (Route, error)
}

type Service struct {
	router Router
	rate   Rate
}

func NewService(router Router, rate Rate) *Service {
	return &Service{router: router, rate: rate}
}

func (s *Service) Estimate(ctx context.Context, origin, destination types.Point) (Estimate, error) {
	if !origin.Valid() || !destination.Valid() {
		return Estimate{}, fmt.Errorf("estimate route: coordinates out of range: %w", types.ErrBadRequest)
	}
	route, err := s.router.Route(ctx, origin, destination)
	if err != nil {
		return Estimate{}, fmt.Errorf("estimate route: %w", err)
	}
	return Estimate{
		DistanceMeters:  route.DistanceMeters,
		DurationSeconds: route.DurationSeconds,
		Price:           s.rate.Price(route),
	}, nil
}

// Price rounds to cents.
func (r Rate) Price(route Route) float64 {
	km := float64(route.DistanceMeters) / 1000
	minutes := float64(route.DurationSeconds) / 60
	return round2(r.BaseFare + r.PerKm*km + r.PerMinute*minutes)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
