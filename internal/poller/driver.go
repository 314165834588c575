// README: Driver session; polls for offers while idle and follows the current ride while busy.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"ridedispatch/internal/logging"
	"ridedispatch/internal/modules/matching"
	"ridedispatch/internal/modules/ride"
	"ridedispatch/internal/types"
)

const DefaultInterval = 5 * time.Second

// API is the subset of the dispatch HTTP API a driver session uses.
type API interface {
	CurrentRide(ctx context.Context) (*ride.Ride, error)
	AvailableOffer(ctx context.Context) (*matching.Offer, error)
	Accept(ctx context.Context, rideID types.ID) (*ride.Ride, error)
	Decline(ctx context.Context, rideID types.ID) error
	SetAvailability(ctx context.Context, online bool, loc *types.Point) error
}

type Config struct {
	DriverID      types.ID
	OfferInterval time.Duration
	RideInterval  time.Duration
}

type Driver struct {
	api     API
	cfg     Config
	watcher *RideWatcher
	log     *slog.Logger
	onOffer func(*matching.Offer)

	mu      sync.Mutex
	online  bool
	offer   *matching.Offer
	current *ride.Ride
}

func NewDriver(api API, cfg Config, log *slog.Logger) *Driver {
	if cfg.OfferInterval <= 0 {
		cfg.OfferInterval = DefaultInterval
	}
	if cfg.RideInterval <= 0 {
		cfg.RideInterval = DefaultInterval
	}
	if log == nil {
		log = logging.Discard()
	}
	return &Driver{
		api:     api,
		cfg:     cfg,
		watcher: NewRideWatcher(api, cfg.RideInterval, log),
		log:     log,
	}
}

// OnOffer registers a callback for every change of the displayed offer, including nil.
func (d *Driver) OnOffer(fn func(*matching.Offer)) *Driver {
	d.onOffer = fn
	return d
}

// Bootstrap reads the current ride before any offer is polled, so a driver
// restarting mid-ride resumes that ride instead of seeing offers.
func (d *Driver) Bootstrap(ctx context.Context) error {
	r, err := d.api.CurrentRide(ctx)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	d.mu.Lock()
	d.current = r
	d.mu.Unlock()
	return nil
}

func (d *Driver) GoOnline(ctx context.Context, loc *types.Point) error {
	if err := d.api.SetAvailability(ctx, true, loc); err != nil {
		return err
	}
	d.mu.Lock()
	d.online = true
	d.mu.Unlock()
	return nil
}

// SetOffline stops offer polling immediately, then tells the server. The local
// state changes even when the server cannot be reached.
func (d *Driver) SetOffline(ctx context.Context, _ types.ID) error {
	d.mu.Lock()
	d.online = false
	d.mu.Unlock()
	d.setOffer(nil)
	return d.api.SetAvailability(ctx, false, nil)
}

func (d *Driver) Online() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.online
}

func (d *Driver) Offer() *matching.Offer {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.offer
}

func (d *Driver) Current() *ride.Ride {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current
}

// PollOnce asks for an offer. It does nothing while offline or on a ride.
func (d *Driver) PollOnce(ctx context.Context) error {
	d.mu.Lock()
	idle := d.online && d.current == nil
	d.mu.Unlock()
	if !idle {
		return nil
	}
	offer, err := d.api.AvailableOffer(ctx)
	if err != nil {
		return err
	}
	d.publishOffer(offer)
	return nil
}

// Accept takes the displayed offer. Losing the race clears the offer and is not
// an error; the returned ride is nil in that case.
func (d *Driver) Accept(ctx context.Context) (*ride.Ride, error) {
	offer := d.Offer()
	if offer == nil {
		return nil, fmt.Errorf("no offer to accept: %w", types.ErrInvalidState)
	}
	r, err := d.api.Accept(ctx, offer.Ride.ID)
	if errors.Is(err, types.ErrConflict) {
		d.log.Info("offer gone", "driver_id", d.cfg.DriverID, "ride_id", offer.Ride.ID)
		d.setOffer(nil)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.current = r
	d.mu.Unlock()
	d.setOffer(nil)
	return r, nil
}

func (d *Driver) Decline(ctx context.Context) error {
	offer := d.Offer()
	if offer == nil {
		return nil
	}
	if err := d.api.Decline(ctx, offer.Ride.ID); err != nil {
		return err
	}
	d.setOffer(nil)
	return nil
}

// Run bootstraps and then alternates between the offer loop and following the
// current ride. It returns nil when ctx is done and the error when the session expires.
func (d *Driver) Run(ctx context.Context) error {
	if err := d.Bootstrap(ctx); err != nil {
		return err
	}
	ticker := time.NewTicker(d.cfg.OfferInterval)
	defer ticker.Stop()

	for {
		if cur := d.Current(); cur != nil {
			if err := d.follow(ctx, cur); err != nil {
				return err
			}
			if ctx.Err() != nil {
				return nil
			}
			continue
		}
		if err := d.PollOnce(ctx); err != nil {
			if errors.Is(err, types.ErrUnauthenticated) {
				return err
			}
			d.log.Warn("offer poll failed", "driver_id", d.cfg.DriverID, "err", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// follow blocks until the current ride is no longer active, then clears it so
// the offer loop resumes.
func (d *Driver) follow(ctx context.Context, cur *ride.Ride) error {
	err := d.watcher.Watch(ctx, cur.ID, func(r *ride.Ride) {
		d.mu.Lock()
		d.current = r
		d.mu.Unlock()
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	d.mu.Lock()
	d.current = nil
	d.mu.Unlock()
	d.log.Info("ride finished, resuming offers", "driver_id", d.cfg.DriverID, "ride_id", cur.ID)
	return nil
}

func (d *Driver) setOffer(o *matching.Offer) {
	d.mu.Lock()
	changed := !sameOffer(d.offer, o)
	d.offer = o
	d.mu.Unlock()
	if changed && d.onOffer != nil {
		d.onOffer(o)
	}
}

// publishOffer shows a polled offer only if the driver is still online and idle.
// SetOffline or Accept may have run while the poll was in flight.
func (d *Driver) publishOffer(o *matching.Offer) {
	d.mu.Lock()
	if !d.online || d.current != nil {
		d.mu.Unlock()
		d.log.Debug("dropping offer from stale poll", "driver_id", d.cfg.DriverID)
		return
	}
	changed := !sameOffer(d.offer, o)
	d.offer = o
	d.mu.Unlock()
	if changed && d.onOffer != nil {
		d.onOffer(o)
	}
}

func sameOffer(a, b *matching.Offer) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Ride.ID == b.Ride.ID
}
