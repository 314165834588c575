// README: Ride store contract and its PostgreSQL implementation (pgxpool).
package ride

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"ridedispatch/internal/types"
)

// Store is the durable source of truth for rides. Transition is the only
// compare-and-swap primitive in the system; it reports false when the row no
// longer matches the expected status and version.
type Store interface {
	Create(ctx context.Context, r *Ride) error
	Get(ctx context.Context, id types.ID) (*Ride, error)
	Transition(ctx context.Context, t Transition) (bool, error)
	ListByStatus(ctx context.Context, status Status) ([]*Ride, error)
	ActiveByPassenger(ctx context.Context, passengerID types.ID) (*Ride, error)
	ActiveByDriver(ctx context.Context, driverID types.ID) (*Ride, error)
	AppendEvent(ctx context.Context, e *Event) error
	Events(ctx context.Context, rideID types.ID) ([]*Event, error)
}

const uniqueViolation = "23505"

type PGStore struct {
	db *pgxpool.Pool
}

func NewPGStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

const rideColumns = `
    id, passenger_id, driver_id, status, status_version,
    origin_lng, origin_lat, origin_address,
    destination_lng, destination_lat, destination_address,
    distance_meters, duration_seconds, price,
    created_at, accepted_at, started_at, completed_at, cancelled_at, cancel_reason`

func (s *PGStore) Create(ctx context.Context, r *Ride) error {
	_, err := s.db.Exec(ctx, `
        INSERT INTO rides (`+rideColumns+`
        ) VALUES (
            $1, $2, $3, $4, $5,
            $6, $7, $8,
            $9, $10, $11,
            $12, $13, $14,
            $15, NULL, NULL, NULL, NULL, NULL
        )`,
		string(r.ID),
		string(r.PassengerID),
		toStringPtr(r.DriverID),
		string(r.Status),
		r.StatusVersion,
		r.Origin.Coordinates[0], r.Origin.Coordinates[1], r.Origin.Address,
		r.Destination.Coordinates[0], r.Destination.Coordinates[1], r.Destination.Address,
		r.DistanceMeters, r.DurationSeconds, r.Price,
		r.CreatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("passenger %s already has an active ride: %w", r.PassengerID, types.ErrConflict)
	}
	return err
}

func (s *PGStore) Get(ctx context.Context, id types.ID) (*Ride, error) {
	row := s.db.QueryRow(ctx, `SELECT `+rideColumns+` FROM rides WHERE id = $1`, string(id))
	r, err := scanRide(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("ride %s: %w", id, types.ErrNotFound)
	}
	return r, err
}

func (s *PGStore) Transition(ctx context.Context, t Transition) (bool, error) {
	tag, err := s.db.Exec(ctx, `
        UPDATE rides
        SET status = $1,
            status_version = status_version + 1,
            driver_id = CASE WHEN $1 = 'cancelled' THEN NULL ELSE COALESCE($2, driver_id) END,
            accepted_at = CASE WHEN $1 = 'accepted' THEN $3 ELSE accepted_at END,
            started_at = CASE WHEN $1 = 'in_progress' THEN $3 ELSE started_at END,
            completed_at = CASE WHEN $1 = 'completed' THEN $3 ELSE completed_at END,
            cancelled_at = CASE WHEN $1 = 'cancelled' THEN $3 ELSE cancelled_at END,
            cancel_reason = CASE WHEN $1 = 'cancelled' THEN $4 ELSE cancel_reason END
        WHERE id = $5 AND status = $6 AND status_version = $7`,
		string(t.To),
		toStringPtr(t.DriverID),
		t.At,
		t.Reason,
		string(t.RideID),
		string(t.From),
		t.Version,
	)
	if isUniqueViolation(err) {
		// Another ride was assigned to this driver concurrently.
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PGStore) ListByStatus(ctx context.Context, status Status) ([]*Ride, error) {
	rows, err := s.db.Query(ctx, `
        SELECT `+rideColumns+`
        FROM rides
        WHERE status = $1
        ORDER BY created_at ASC, id ASC`, string(status),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Ride
	for rows.Next() {
		r, err := scanRide(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PGStore) ActiveByPassenger(ctx context.Context, passengerID types.ID) (*Ride, error) {
	return s.activeBy(ctx, "passenger_id", passengerID)
}

func (s *PGStore) ActiveByDriver(ctx context.Context, driverID types.ID) (*Ride, error) {
	return s.activeBy(ctx, "driver_id", driverID)
}

// activeBy returns nil, nil when the actor has no active ride.
func (s *PGStore) activeBy(ctx context.Context, column string, id types.ID) (*Ride, error) {
	row := s.db.QueryRow(ctx, `
        SELECT `+rideColumns+`
        FROM rides
        WHERE `+column+` = $1
          AND status = ANY($2)
        ORDER BY created_at DESC
        LIMIT 1`, string(id), activeStatusStrings(),
	)
	r, err := scanRide(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return r, err
}

func (s *PGStore) AppendEvent(ctx context.Context, e *Event) error {
	return s.db.QueryRow(ctx, `
        INSERT INTO ride_events (
            ride_id, from_status, to_status, actor_type, actor_id, created_at
        ) VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING id`,
		string(e.RideID),
		string(e.FromStatus),
		string(e.ToStatus),
		string(e.ActorType),
		toStringPtr(e.ActorID),
		e.CreatedAt,
	).Scan(&e.ID)
}

func (s *PGStore) Events(ctx context.Context, rideID types.ID) ([]*Event, error) {
	rows, err := s.db.Query(ctx, `
        SELECT id, ride_id, from_status, to_status, actor_type, actor_id, created_at
        FROM ride_events
        WHERE ride_id = $1
        ORDER BY id ASC`, string(rideID),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Event
	for rows.Next() {
		var e Event
		var actorID *string
		if err := rows.Scan(&e.ID, &e.RideID, &e.FromStatus, &e.ToStatus, &e.ActorType, &actorID, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.ActorID = toIDPtr(actorID)
		out = append(out, &e)
	}
	return out, rows.Err()
}

func scanRide(row pgx.Row) (*Ride, error) {
	var r Ride
	var driverID *string
	err := row.Scan(
		&r.ID, &r.PassengerID, &driverID, &r.Status, &r.StatusVersion,
		&r.Origin.Coordinates[0], &r.Origin.Coordinates[1], &r.Origin.Address,
		&r.Destination.Coordinates[0], &r.Destination.Coordinates[1], &r.Destination.Address,
		&r.DistanceMeters, &r.DurationSeconds, &r.Price,
		&r.CreatedAt, &r.AcceptedAt, &r.StartedAt, &r.CompletedAt, &r.CancelledAt, &r.CancelReason,
	)
	if err != nil {
		return nil, err
	}
	r.DriverID = toIDPtr(driverID)
	return &r, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func activeStatusStrings() []string {
	out := make([]string, len(ActiveStatuses))
	for i, s := range ActiveStatuses {
		out[i] = string(s)
	}
	return out
}

func toStringPtr(v *types.ID) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}

func toIDPtr(v *string) *types.ID {
	if v == nil {
		return nil
	}
	id := types.ID(*v)
	return &id
}
