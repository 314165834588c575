// README: Simulated driver behaviour: accept offers, drive the trip, and emit location samples.
package main

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"time"

	"ridedispatch/internal/client"
	"ridedispatch/internal/modules/matching"
	"ridedispatch/internal/poller"
	"ridedispatch/internal/types"
)

type simulator struct {
	cfg     Config
	api     *client.Client
	session *poller.Driver
	log     *slog.Logger
}

// onOffer accepts each new offer and plays the trip out in the background.
func (s *simulator) onOffer(ctx context.Context) func(*matching.Offer) {
	return func(o *matching.Offer) {
		if o == nil {
			return
		}
		s.log.Info("offer", "ride_id", o.Ride.ID, "price", o.Ride.Price, "pickup_m", o.PickupDistanceMeters)
		r, err := s.session.Accept(ctx)
		if err != nil {
			s.log.Warn("accept failed", "ride_id", o.Ride.ID, "err", err)
			return
		}
		if r == nil {
			return
		}
		go s.drive(ctx, r.ID)
	}
}

func (s *simulator) drive(ctx context.Context, rideID types.ID) {
	if _, err := s.api.Start(ctx, rideID); err != nil {
		s.log.Warn("start failed", "ride_id", rideID, "err", err)
		return
	}
	s.log.Info("trip started", "ride_id", rideID)
	select {
	case <-ctx.Done():
		return
	case <-time.After(s.cfg.TripDuration):
	}
	if _, err := s.api.Complete(ctx, rideID); err != nil {
		s.log.Warn("complete failed", "ride_id", rideID, "err", err)
		return
	}
	s.log.Info("trip completed", "ride_id", rideID)
}

// feedLocation wanders around pos, sending one sample per interval.
func (s *simulator) feedLocation(ctx context.Context, pos types.Point) error {
	ticker := time.NewTicker(s.cfg.LocationEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		pos.Lat += (rand.Float64() - 0.5) * 0.001
		pos.Lng += (rand.Float64() - 0.5) * 0.001
		if _, err := s.api.UpdateLocation(ctx, pos); err != nil && ctx.Err() == nil {
			s.log.Debug("location update failed", "err", err)
		}
	}
}

// passengerSim keeps one ride requested near the driver so offers keep coming.
type passengerSim struct {
	api   *client.Client
	every time.Duration
	near  types.Point
	log   *slog.Logger
}

func (p *passengerSim) run(ctx context.Context) error {
	ticker := time.NewTicker(p.every)
	defer ticker.Stop()
	for {
		if err := p.requestIfIdle(ctx); err != nil {
			if errors.Is(err, types.ErrUnauthenticated) {
				return err
			}
			if ctx.Err() == nil {
				p.log.Warn("ride request failed", "err", err)
			}
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (p *passengerSim) requestIfIdle(ctx context.Context) error {
	cur, err := p.api.CurrentRide(ctx)
	if err != nil {
		return err
	}
	if cur != nil {
		return nil
	}
	origin := types.Point{Lat: p.near.Lat + (rand.Float64()-0.5)*0.01, Lng: p.near.Lng + (rand.Float64()-0.5)*0.01}
	dest := types.Point{Lat: origin.Lat + (rand.Float64()-0.5)*0.05, Lng: origin.Lng + (rand.Float64()-0.5)*0.05}
	r, err := p.api.RequestRide(ctx, types.PlaceAt(origin, "sim pickup"), types.PlaceAt(dest, "sim dropoff"))
	if err != nil {
		return err
	}
	p.log.Info("ride requested", "ride_id", r.ID, "price", r.Price)
	return nil
}
