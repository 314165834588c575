// README: Ride service implements the lifecycle state machine on top of the ride store.
package ride

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"ridedispatch/internal/logging"
	"ridedispatch/internal/modules/pricing"
	"ridedispatch/internal/observability"
	"ridedispatch/internal/types"
)

type Estimator interface {
	Estimate(ctx context.Context, origin, destination types.Point) (pricing.Estimate, error)
}

// Publisher receives every committed transition. Failures are logged only.
type Publisher interface {
	PublishRideEvent(ctx context.Context, r *Ride, e *Event) error
}

type Service struct {
	store     Store
	estimator Estimator
	publisher Publisher
	log       *slog.Logger
	now       func() time.Time
}

func NewService(store Store, estimator Estimator, publisher Publisher, log *slog.Logger) *Service {
	if log == nil {
		log = logging.Discard()
	}
	return &Service{
		store:     store,
		estimator: estimator,
		publisher: publisher,
		log:       log,
		now:       time.Now,
	}
}

// WithClock replaces the wall clock; used by tests that need ordered CreatedAt values.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

type CreateCommand struct {
	PassengerID types.ID
	Origin      types.Place
	Destination types.Place
}

type AcceptCommand struct {
	RideID   types.ID
	DriverID types.ID
}

type StartCommand struct {
	RideID   types.ID
	DriverID types.ID
}

type CompleteCommand struct {
	RideID   types.ID
	DriverID types.ID
}

type CancelCommand struct {
	RideID      types.ID
	PassengerID types.ID
	Reason      string
}

func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*Ride, error) {
	if cmd.PassengerID == "" {
		return nil, fmt.Errorf("create ride: missing passenger: %w", types.ErrBadRequest)
	}
	active, err := s.store.ActiveByPassenger(ctx, cmd.PassengerID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return nil, fmt.Errorf("passenger %s has active ride %s: %w", cmd.PassengerID, active.ID, types.ErrInvalidState)
	}

	est, err := s.estimator.Estimate(ctx, cmd.Origin.Point(), cmd.Destination.Point())
	if err != nil {
		return nil, err
	}

	now := s.now()
	r := &Ride{
		ID:              types.NewID(),
		PassengerID:     cmd.PassengerID,
		Origin:          cmd.Origin,
		Destination:     cmd.Destination,
		DistanceMeters:  est.DistanceMeters,
		DurationSeconds: est.DurationSeconds,
		Price:           est.Price,
		Status:          StatusRequested,
		CreatedAt:       now,
	}
	if err := s.store.Create(ctx, r); err != nil {
		if errors.Is(err, types.ErrConflict) {
			return nil, fmt.Errorf("create ride: %w", types.ErrInvalidState)
		}
		return nil, err
	}
	s.record(ctx, r, StatusNone, ActorPassenger, &cmd.PassengerID, now)
	return r, nil
}

// Accept assigns the ride to the first driver whose conditional update lands.
// Every loser, including a driver that already holds a ride, sees ErrConflict.
func (s *Service) Accept(ctx context.Context, cmd AcceptCommand) (*Ride, error) {
	r, err := s.store.Get(ctx, cmd.RideID)
	if err != nil {
		s.acceptResult("not_found")
		return nil, err
	}
	if r.Status != StatusRequested {
		s.acceptResult("conflict")
		return nil, fmt.Errorf("ride %s is %s: %w", r.ID, r.Status, types.ErrConflict)
	}
	busy, err := s.store.ActiveByDriver(ctx, cmd.DriverID)
	if err != nil {
		return nil, err
	}
	if busy != nil {
		s.acceptResult("conflict")
		return nil, fmt.Errorf("driver %s already on ride %s: %w", cmd.DriverID, busy.ID, types.ErrConflict)
	}

	now := s.now()
	ok, err := s.store.Transition(ctx, Transition{
		RideID:   r.ID,
		From:     StatusRequested,
		To:       StatusAccepted,
		Version:  r.StatusVersion,
		DriverID: &cmd.DriverID,
		At:       now,
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		s.acceptResult("conflict")
		return nil, fmt.Errorf("ride %s: %w", r.ID, types.ErrConflict)
	}
	s.acceptResult("won")

	driverID := cmd.DriverID
	r.Status = StatusAccepted
	r.StatusVersion++
	r.DriverID = &driverID
	r.AcceptedAt = &now
	s.record(ctx, r, StatusRequested, ActorDriver, &driverID, now)
	return r, nil
}

func (s *Service) Start(ctx context.Context, cmd StartCommand) (*Ride, error) {
	return s.driverTransition(ctx, cmd.RideID, cmd.DriverID, StatusAccepted, StatusInProgress)
}

func (s *Service) Complete(ctx context.Context, cmd CompleteCommand) (*Ride, error) {
	return s.driverTransition(ctx, cmd.RideID, cmd.DriverID, StatusInProgress, StatusCompleted)
}

func (s *Service) driverTransition(ctx context.Context, rideID, driverID types.ID, from, to Status) (*Ride, error) {
	r, err := s.store.Get(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if !r.AssignedTo(driverID) {
		return nil, fmt.Errorf("driver %s is not assigned to ride %s: %w", driverID, r.ID, types.ErrForbidden)
	}
	if r.Status != from || !CanTransition(from, to) {
		return nil, fmt.Errorf("ride %s is %s, cannot move to %s: %w", r.ID, r.Status, to, types.ErrInvalidState)
	}

	now := s.now()
	ok, err := s.store.Transition(ctx, Transition{
		RideID:  r.ID,
		From:    from,
		To:      to,
		Version: r.StatusVersion,
		At:      now,
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("ride %s: %w", r.ID, types.ErrConflict)
	}

	r.Status = to
	r.StatusVersion++
	switch to {
	case StatusInProgress:
		r.StartedAt = &now
	case StatusCompleted:
		r.CompletedAt = &now
	}
	s.record(ctx, r, from, ActorDriver, &driverID, now)
	return r, nil
}

func (s *Service) Cancel(ctx context.Context, cmd CancelCommand) (*Ride, error) {
	r, err := s.store.Get(ctx, cmd.RideID)
	if err != nil {
		return nil, err
	}
	if r.PassengerID != cmd.PassengerID {
		return nil, fmt.Errorf("passenger %s does not own ride %s: %w", cmd.PassengerID, r.ID, types.ErrForbidden)
	}
	if !CanTransition(r.Status, StatusCancelled) {
		return nil, fmt.Errorf("ride %s is %s, cannot cancel: %w", r.ID, r.Status, types.ErrInvalidState)
	}

	var reason *string
	if cmd.Reason != "" {
		reason = &cmd.Reason
	}
	now := s.now()
	from := r.Status
	ok, err := s.store.Transition(ctx, Transition{
		RideID:  r.ID,
		From:    from,
		To:      StatusCancelled,
		Version: r.StatusVersion,
		Reason:  reason,
		At:      now,
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("ride %s: %w", r.ID, types.ErrConflict)
	}

	r.Status = StatusCancelled
	r.StatusVersion++
	r.DriverID = nil
	r.CancelledAt = &now
	r.CancelReason = reason
	s.record(ctx, r, from, ActorPassenger, &cmd.PassengerID, now)
	return r, nil
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Ride, error) {
	return s.store.Get(ctx, id)
}

// CurrentForPassenger returns nil when the passenger has no active ride.
func (s *Service) CurrentForPassenger(ctx context.Context, passengerID types.ID) (*Ride, error) {
	return s.store.ActiveByPassenger(ctx, passengerID)
}

// CurrentForDriver returns nil when the driver has no accepted or in-progress ride.
func (s *Service) CurrentForDriver(ctx context.Context, driverID types.ID) (*Ride, error) {
	return s.store.ActiveByDriver(ctx, driverID)
}

// Requested lists rides waiting for a driver, oldest first.
func (s *Service) Requested(ctx context.Context) ([]*Ride, error) {
	return s.store.ListByStatus(ctx, StatusRequested)
}

func (s *Service) Events(ctx context.Context, rideID types.ID) ([]*Event, error) {
	return s.store.Events(ctx, rideID)
}

// record appends the state event and publishes it. Neither step can undo the transition.
func (s *Service) record(ctx context.Context, r *Ride, from Status, actor ActorType, actorID *types.ID, at time.Time) {
	observability.Transitions.WithLabelValues(string(r.Status)).Inc()

	e := &Event{
		RideID:     r.ID,
		FromStatus: from,
		ToStatus:   r.Status,
		ActorType:  actor,
		ActorID:    actorID,
		CreatedAt:  at,
	}
	if err := s.store.AppendEvent(ctx, e); err != nil {
		s.log.Warn("append ride event failed", "ride_id", r.ID, "to", r.Status, "err", err)
	}
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishRideEvent(ctx, r, e); err != nil {
		s.log.Warn("publish ride event failed", "ride_id", r.ID, "to", r.Status, "err", err)
	}
}

func (s *Service) acceptResult(result string) {
	observability.AcceptResults.WithLabelValues(result).Inc()
}
