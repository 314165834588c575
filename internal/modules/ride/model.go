// README: Ride aggregate, lifecycle statuses and the transition table.
package ride

import (
	"time"

	"ridedispatch/internal/types"
)

type Status string

const (
	StatusNone       Status = "none"
	StatusRequested  Status = "requested"
	StatusAccepted   Status = "accepted"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

type ActorType string

const (
	ActorPassenger ActorType = "passenger"
	ActorDriver    ActorType = "driver"
	ActorSystem    ActorType = "system"
)

type Ride struct {
	ID              types.ID    `json:"id"`
	PassengerID     types.ID    `json:"passengerId"`
	DriverID        *types.ID   `json:"driverId,omitempty"`
	Origin          types.Place `json:"origin"`
	Destination     types.Place `json:"destination"`
	DistanceMeters  int         `json:"distance"`
	DurationSeconds int         `json:"duration"`
	Price           float64     `json:"price"`
	Status          Status      `json:"status"`
	StatusVersion   int         `json:"statusVersion"`
	CreatedAt       time.Time   `json:"createdAt"`
	AcceptedAt      *time.Time  `json:"acceptedAt,omitempty"`
	StartedAt       *time.Time  `json:"startedAt,omitempty"`
	CompletedAt     *time.Time  `json:"completedAt,omitempty"`
	CancelledAt     *time.Time  `json:"cancelledAt,omitempty"`
	CancelReason    *string     `json:"cancelReason,omitempty"`
}

// Active reports whether the ride counts against the one-active-ride-per-actor rule.
func (r *Ride) Active() bool {
	return IsActive(r.Status)
}

func (r *Ride) AssignedTo(driverID types.ID) bool {
	return r.DriverID != nil && *r.DriverID == driverID
}

func IsActive(s Status) bool {
	switch s {
	case StatusRequested, StatusAccepted, StatusInProgress:
		return true
	}
	return false
}

// ActiveStatuses is the SQL-facing form of IsActive.
var ActiveStatuses = []Status{StatusRequested, StatusAccepted, StatusInProgress}

type Event struct {
	ID         int64     `json:"id"`
	RideID     types.ID  `json:"rideId"`
	FromStatus Status    `json:"from"`
	ToStatus   Status    `json:"to"`
	ActorType  ActorType `json:"actorType"`
	ActorID    *types.ID `json:"actorId,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// AllowedTransitions represents the ride state flow (diagram) as code.
var AllowedTransitions = map[Status][]Status{
	StatusRequested:  {StatusAccepted, StatusCancelled},
	StatusAccepted:   {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted},
}

func CanTransition(from, to Status) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

// Transition is a conditional update: it applies only while the stored row still
// has status From and version Version. DriverID is written on accept; a transition
// to cancelled clears the assignment.
type Transition struct {
	RideID   types.ID
	From     Status
	To       Status
	Version  int
	DriverID *types.ID
	Reason   *string
	At       time.Time
}
