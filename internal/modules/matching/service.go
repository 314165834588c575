// README: Matching service computes the next offer for a polling driver, oldest request first.
package matching

import (
	"context"
	"sort"
	"time"

	"ridedispatch/internal/modules/availability"
	"ridedispatch/internal/modules/ride"
	"ridedispatch/internal/observability"
	"ridedispatch/internal/types"
)

type Rides interface {
	Requested(ctx context.Context) ([]*ride.Ride, error)
	CurrentForDriver(ctx context.Context, driverID types.ID) (*ride.Ride, error)
}

type Presence interface {
	Get(ctx context.Context, driverID types.ID) (*availability.Presence, error)
}

type Service struct {
	rides    Rides
	presence Presence
}

func NewService(rides Rides, presence Presence) *Service {
	return &Service{rides: rides, presence: presence}
}

// NextOffer returns nil when the driver is offline or unknown, already holds a
// ride, or every requested ride is suppressed for them.
func (s *Service) NextOffer(ctx context.Context, driverID types.ID, now time.Time) (*Offer, error) {
	offer, err := s.nextOffer(ctx, driverID, now)
	if err != nil {
		return nil, err
	}
	if offer == nil {
		observability.OffersEmpty.Inc()
	} else {
		observability.OffersServed.Inc()
	}
	return offer, nil
}

func (s *Service) nextOffer(ctx context.Context, driverID types.ID, now time.Time) (*Offer, error) {
	p, err := s.presence.Get(ctx, driverID)
	if err != nil {
		return nil, err
	}
	if p == nil || !p.Online {
		return nil, nil
	}
	current, err := s.rides.CurrentForDriver(ctx, driverID)
	if err != nil {
		return nil, err
	}
	if current != nil {
		return nil, nil
	}

	requested, err := s.rides.Requested(ctx)
	if err != nil {
		return nil, err
	}
	for _, r := range oldestFirst(requested) {
		if p.Suppressed(r.ID, now) {
			continue
		}
		return &Offer{
			Ride:                 r,
			DriverID:             driverID,
			PickupDistanceMeters: pickupDistance(p, r),
		}, nil
	}
	return nil, nil
}

// oldestFirst sorts by CreatedAt, ties broken by ID.
func oldestFirst(rides []*ride.Ride) []*ride.Ride {
	out := append([]*ride.Ride(nil), rides...)
	sort.SliceStable(out, func(i, j int) bool { return before(out[i], out[j]) })
	return out
}

func before(a, b *ride.Ride) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

func pickupDistance(p *availability.Presence, r *ride.Ride) int {
	if p.LastLocation == nil {
		return 0
	}
	return types.DistanceMeters(p.LastLocation.Point, r.Origin.Point())
}
