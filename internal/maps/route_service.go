// README: Google Maps Directions adapter used as the production route source.
package maps

import (
	"context"
	"fmt"
	"math"

	"googlemaps.github.io/maps"

	"ridedispatch/internal/modules/pricing"
	"ridedispatch/internal/types"
)

// RouteService handles interactions with Google Maps API.
type RouteService struct {
	client *maps.Client
}

// NewRouteService creates a new RouteService with the given API Key.
func NewRouteService(apiKey string) (*RouteService, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &RouteService{client: client}, nil
}

// Route returns the driving distance and duration of the first leg Google suggests.
func (s *RouteService) Route(ctx context.Context, origin, destination types.Point) (pricing.Route, error) {
	r := &maps.DirectionsRequest{
		Origin:      latLng(origin),
		Destination: latLng(destination),
		Mode:        maps.TravelModeDriving,
	}

	routes, _, err := s.client.Directions(ctx, r)
	if err != nil {
		return pricing.Route{}, fmt.Errorf("maps api error: %w: %w", err, types.ErrTransient)
	}
	if len(routes) == 0 || len(routes[0].Legs) == 0 {
		return pricing.Route{}, fmt.Errorf("no route found: %w", types.ErrBadRequest)
	}

	leg := routes[0].Legs[0]
	return pricing.Route{
		DistanceMeters:  leg.Distance.Meters,
		DurationSeconds: int(math.Round(leg.Duration.Seconds())),
	}, nil
}

func latLng(p types.Point) string {
	return fmt.Sprintf("%f,%f", p.Lat, p.Lng)
}
