// README: Presence storage contract and its in-process implementation.
package availability

import (
	"context"
	"sync"

	"ridedispatch/internal/types"
)

// Store persists presence rows. Get returns nil, nil for a driver never seen.
type Store interface {
	Get(ctx context.Context, driverID types.ID) (*Presence, error)
	Put(ctx context.Context, p *Presence) error
	OnlineCount(ctx context.Context) (int64, error)
	// Nearby lists online drivers with a known location within radiusKm, closest first.
	Nearby(ctx context.Context, center types.Point, radiusKm float64, limit int) ([]NearbyDriver, error)
}

type MemoryStore struct {
	mu   sync.RWMutex
	rows map[types.ID]Presence
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[types.ID]Presence)}
}

func (s *MemoryStore) Get(_ context.Context, driverID types.ID) (*Presence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.rows[driverID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (s *MemoryStore) Put(_ context.Context, p *Presence) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[p.DriverID] = *p
	return nil
}

func (s *MemoryStore) OnlineCount(context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, p := range s.rows {
		if p.Online {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) Nearby(_ context.Context, center types.Point, radiusKm float64, limit int) ([]NearbyDriver, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []NearbyDriver
	for _, p := range s.rows {
		if !p.Online || p.LastLocation == nil {
			continue
		}
		d := types.DistanceKm(center, p.LastLocation.Point)
		if d <= radiusKm {
			out = append(out, NearbyDriver{DriverID: p.DriverID, Position: p.LastLocation.Point, DistanceKm: d})
		}
	}
	types.SortByDistance(out, func(n NearbyDriver) float64 { return n.DistanceKm })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
