// README: Availability registry owns driver presence, location and decline suppression.
package availability

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"ridedispatch/internal/logging"
	"ridedispatch/internal/modules/ride"
	"ridedispatch/internal/observability"
	"ridedispatch/internal/types"
)

// DefaultSuppression is how long a declined ride stays hidden from the driver who declined it.
const DefaultSuppression = 45 * time.Second

// ActiveRides answers whether a driver currently holds a ride.
type ActiveRides interface {
	CurrentForDriver(ctx context.Context, driverID types.ID) (*ride.Ride, error)
}

// Sink receives presence changes after they are stored. Errors are logged only.
type Sink interface {
	PresenceChanged(ctx context.Context, p Presence) error
}

type Registry struct {
	store       Store
	rides       ActiveRides
	sink        Sink
	suppression time.Duration
	log         *slog.Logger
	now         func() time.Time

	// locks serializes read-modify-write per driver.
	locks sync.Map
}

func NewRegistry(store Store, rides ActiveRides, suppression time.Duration, log *slog.Logger) *Registry {
	if suppression <= 0 {
		suppression = DefaultSuppression
	}
	if log == nil {
		log = logging.Discard()
	}
	return &Registry{
		store:       store,
		rides:       rides,
		suppression: suppression,
		log:         log,
		now:         time.Now,
	}
}

func (r *Registry) WithSink(sink Sink) *Registry {
	r.sink = sink
	return r
}

func (r *Registry) WithClock(now func() time.Time) *Registry {
	r.now = now
	return r
}

// SetOnline marks the driver available. A reconnect starts with no suppression.
func (r *Registry) SetOnline(ctx context.Context, driverID types.ID, loc *types.Sample) error {
	if loc != nil && !loc.Valid() {
		return fmt.Errorf("location out of range: %w", types.ErrBadRequest)
	}
	unlock := r.lock(driverID)
	defer unlock()

	current, err := r.rides.CurrentForDriver(ctx, driverID)
	if err != nil {
		return err
	}
	if current != nil {
		return fmt.Errorf("driver %s is on ride %s: %w", driverID, current.ID, types.ErrInvalidState)
	}

	p, err := r.load(ctx, driverID)
	if err != nil {
		return err
	}
	now := r.now()
	p.Online = true
	p.LastSeenAt = now
	p.clearSuppression()
	if loc != nil {
		p.LastLocation = stamped(*loc, now)
	}
	return r.save(ctx, p)
}

// SetOffline is idempotent: an already offline or unknown driver is left untouched.
func (r *Registry) SetOffline(ctx context.Context, driverID types.ID) error {
	unlock := r.lock(driverID)
	defer unlock()

	p, err := r.store.Get(ctx, driverID)
	if err != nil {
		return err
	}
	if p == nil || !p.Online {
		return nil
	}
	p.Online = false
	p.clearSuppression()
	return r.save(ctx, p)
}

// UpdateLocation records a geolocation sample for an online driver and reports
// whether it was applied. Samples for offline or unknown drivers are dropped.
func (r *Registry) UpdateLocation(ctx context.Context, driverID types.ID, loc types.Sample) (bool, error) {
	if !loc.Valid() {
		return false, fmt.Errorf("location out of range: %w", types.ErrBadRequest)
	}
	unlock := r.lock(driverID)
	defer unlock()

	p, err := r.store.Get(ctx, driverID)
	if err != nil {
		return false, err
	}
	if p == nil || !p.Online {
		return false, nil
	}
	now := r.now()
	p.LastLocation = stamped(loc, now)
	p.LastSeenAt = now
	if err := r.save(ctx, p); err != nil {
		return false, err
	}
	return true, nil
}

// Decline hides rideID from the driver for suppressFor (the registry default when <= 0).
// Only the latest decline is kept.
func (r *Registry) Decline(ctx context.Context, driverID, rideID types.ID, suppressFor time.Duration) error {
	if suppressFor <= 0 {
		suppressFor = r.suppression
	}
	unlock := r.lock(driverID)
	defer unlock()

	p, err := r.store.Get(ctx, driverID)
	if err != nil {
		return err
	}
	if p == nil || !p.Online {
		return fmt.Errorf("driver %s is not online: %w", driverID, types.ErrInvalidState)
	}
	until := r.now().Add(suppressFor)
	id := rideID
	p.DeclinedRideID = &id
	p.DeclinedUntil = &until
	if err := r.save(ctx, p); err != nil {
		return err
	}
	observability.Declines.Inc()
	return nil
}

func (r *Registry) IsSuppressed(ctx context.Context, driverID, rideID types.ID, now time.Time) (bool, error) {
	p, err := r.store.Get(ctx, driverID)
	if err != nil || p == nil {
		return false, err
	}
	return p.Suppressed(rideID, now), nil
}

// Get returns the driver's presence, or nil if the driver was never seen.
// An expired suppression window is reported as absent.
func (r *Registry) Get(ctx context.Context, driverID types.ID) (*Presence, error) {
	p, err := r.store.Get(ctx, driverID)
	if err != nil || p == nil {
		return nil, err
	}
	return p.view(r.now()), nil
}

func (r *Registry) Nearby(ctx context.Context, center types.Point, radiusKm float64, limit int) ([]NearbyDriver, error) {
	if !center.Valid() || radiusKm <= 0 {
		return nil, fmt.Errorf("nearby: bad center or radius: %w", types.ErrBadRequest)
	}
	return r.store.Nearby(ctx, center, radiusKm, limit)
}

func (r *Registry) load(ctx context.Context, driverID types.ID) (*Presence, error) {
	p, err := r.store.Get(ctx, driverID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		p = &Presence{DriverID: driverID}
	}
	return p, nil
}

func (r *Registry) save(ctx context.Context, p *Presence) error {
	if err := r.store.Put(ctx, p); err != nil {
		return err
	}
	if n, err := r.store.OnlineCount(ctx); err == nil {
		observability.DriversOnline.Set(float64(n))
	}
	if r.sink != nil {
		if err := r.sink.PresenceChanged(ctx, *p); err != nil {
			r.log.Warn("presence sink failed", "driver_id", p.DriverID, "err", err)
		}
	}
	return nil
}

func (r *Registry) lock(driverID types.ID) func() {
	v, _ := r.locks.LoadOrStore(driverID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func stamped(s types.Sample, now time.Time) *types.Sample {
	if s.At.IsZero() {
		s.At = now
	}
	return &s
}
