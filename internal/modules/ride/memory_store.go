// README: In-process ride store used when no database DSN is configured, and by tests.
package ride

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"ridedispatch/internal/types"
)

// MemoryStore mirrors PGStore semantics, including the one-active-ride-per-actor
// unique indexes, under a single mutex.
type MemoryStore struct {
	mu     sync.RWMutex
	rides  map[types.ID]*Ride
	events map[types.ID][]*Event
	nextID int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rides:  make(map[types.ID]*Ride),
		events: make(map[types.ID][]*Event),
	}
}

func (s *MemoryStore) Create(_ context.Context, r *Ride) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rides[r.ID]; ok {
		return fmt.Errorf("ride %s exists: %w", r.ID, types.ErrConflict)
	}
	if s.activeByLocked(func(x *Ride) bool { return x.PassengerID == r.PassengerID }) != nil {
		return fmt.Errorf("passenger %s already has an active ride: %w", r.PassengerID, types.ErrConflict)
	}
	s.rides[r.ID] = clone(r)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id types.ID) (*Ride, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rides[id]
	if !ok {
		return nil, fmt.Errorf("ride %s: %w", id, types.ErrNotFound)
	}
	return clone(r), nil
}

func (s *MemoryStore) Transition(_ context.Context, t Transition) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rides[t.RideID]
	if !ok || r.Status != t.From || r.StatusVersion != t.Version {
		return false, nil
	}
	if t.To == StatusAccepted && t.DriverID != nil {
		busy := s.activeByLocked(func(x *Ride) bool {
			return x.ID != r.ID && x.Status != StatusRequested && x.AssignedTo(*t.DriverID)
		})
		if busy != nil {
			return false, nil
		}
	}

	at := t.At
	r.Status = t.To
	r.StatusVersion++
	switch t.To {
	case StatusAccepted:
		r.DriverID = copyID(t.DriverID)
		r.AcceptedAt = &at
	case StatusInProgress:
		r.StartedAt = &at
	case StatusCompleted:
		r.CompletedAt = &at
	case StatusCancelled:
		r.DriverID = nil
		r.CancelledAt = &at
		if t.Reason != nil {
			reason := *t.Reason
			r.CancelReason = &reason
		}
	}
	return true, nil
}

func (s *MemoryStore) ListByStatus(_ context.Context, status Status) ([]*Ride, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Ride
	for _, r := range s.rides {
		if r.Status == status {
			out = append(out, clone(r))
		}
	}
	sortFIFO(out)
	return out, nil
}

func (s *MemoryStore) ActiveByPassenger(_ context.Context, passengerID types.ID) (*Ride, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clone(s.activeByLocked(func(x *Ride) bool { return x.PassengerID == passengerID })), nil
}

func (s *MemoryStore) ActiveByDriver(_ context.Context, driverID types.ID) (*Ride, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clone(s.activeByLocked(func(x *Ride) bool { return x.AssignedTo(driverID) })), nil
}

func (s *MemoryStore) AppendEvent(_ context.Context, e *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	e.ID = s.nextID
	cp := *e
	s.events[e.RideID] = append(s.events[e.RideID], &cp)
	return nil
}

func (s *MemoryStore) Events(_ context.Context, rideID types.ID) ([]*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	src := s.events[rideID]
	out := make([]*Event, 0, len(src))
	for _, e := range src {
		cp := *e
		out = append(out, &cp)
	}
	return out, nil
}

func (s *MemoryStore) activeByLocked(match func(*Ride) bool) *Ride {
	for _, r := range s.rides {
		if r.Active() && match(r) {
			return r
		}
	}
	return nil
}

// sortFIFO orders rides oldest first; ties on CreatedAt break by ID.
func sortFIFO(rides []*Ride) {
	sort.SliceStable(rides, func(i, j int) bool {
		if !rides[i].CreatedAt.Equal(rides[j].CreatedAt) {
			return rides[i].CreatedAt.Before(rides[j].CreatedAt)
		}
		return rides[i].ID < rides[j].ID
	})
}

func clone(r *Ride) *Ride {
	if r == nil {
		return nil
	}
	cp := *r
	cp.DriverID = copyID(r.DriverID)
	return &cp
}

func copyID(id *types.ID) *types.ID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}
