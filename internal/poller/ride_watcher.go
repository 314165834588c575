// README: Current-ride loop; follows an active ride until it completes or is cancelled.
package poller

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"ridedispatch/internal/logging"
	"ridedispatch/internal/modules/ride"
	"ridedispatch/internal/types"
)

type currentRideReader interface {
	CurrentRide(ctx context.Context) (*ride.Ride, error)
}

type RideWatcher struct {
	api      currentRideReader
	interval time.Duration
	log      *slog.Logger
}

func NewRideWatcher(api currentRideReader, interval time.Duration, log *slog.Logger) *RideWatcher {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if log == nil {
		log = logging.Discard()
	}
	return &RideWatcher{api: api, interval: interval, log: log}
}

// Check reports whether rideID is still the caller's active ride.
func (w *RideWatcher) Check(ctx context.Context, rideID types.ID) (*ride.Ride, bool, error) {
	r, err := w.api.CurrentRide(ctx)
	if err != nil {
		return nil, false, err
	}
	if r == nil || r.ID != rideID {
		return nil, false, nil
	}
	return r, true, nil
}

// Watch polls until rideID stops being active, calling onUpdate with each fresh
// copy while it is. Transient failures are logged and retried; ctx cancellation
// and an expired session end the watch with an error.
func (w *RideWatcher) Watch(ctx context.Context, rideID types.ID, onUpdate func(*ride.Ride)) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	var lastStatus ride.Status
	for {
		r, active, err := w.Check(ctx, rideID)
		switch {
		case errors.Is(err, types.ErrUnauthenticated):
			return err
		case err != nil:
			w.log.Warn("current ride poll failed", "ride_id", rideID, "err", err)
		case !active:
			return nil
		default:
			if r.Status != lastStatus {
				w.log.Info("ride status", "ride_id", rideID, "status", r.Status)
				lastStatus = r.Status
			}
			if onUpdate != nil {
				onUpdate(r)
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
