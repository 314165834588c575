// README: Location service applies feed samples to presence and throttles snapshot writes.
package location

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"ridedispatch/internal/logging"
	"ridedispatch/internal/types"
)

type Presence interface {
	UpdateLocation(ctx context.Context, driverID types.ID, loc types.Sample) (bool, error)
}

type Service struct {
	presence      Presence
	snapshots     SnapshotStore
	snapshotEvery time.Duration
	log           *slog.Logger

	mu           sync.Mutex
	lastSnapshot map[types.ID]time.Time
}

// NewService wires the feed. snapshots may be nil, in which case no history is kept.
func NewService(presence Presence, snapshots SnapshotStore, snapshotEvery time.Duration, log *slog.Logger) *Service {
	if log == nil {
		log = logging.Discard()
	}
	return &Service{
		presence:      presence,
		snapshots:     snapshots,
		snapshotEvery: snapshotEvery,
		log:           log,
		lastSnapshot:  make(map[types.ID]time.Time),
	}
}

// Update reports whether the sample was applied; samples from offline drivers are dropped.
func (s *Service) Update(ctx context.Context, u Update) (bool, error) {
	if u.Sample.At.IsZero() {
		u.Sample.At = time.Now()
	}
	applied, err := s.presence.UpdateLocation(ctx, u.DriverID, u.Sample)
	if err != nil || !applied {
		return applied, err
	}
	if s.snapshotDue(u.DriverID, u.Sample.At) {
		if err := s.FlushSnapshot(ctx, u); err != nil {
			s.log.Warn("location snapshot failed", "driver_id", u.DriverID, "err", err)
		}
	}
	return true, nil
}

func (s *Service) FlushSnapshot(ctx context.Context, u Update) error {
	if s.snapshots == nil {
		return nil
	}
	snap := Snapshot{
		UserID:     u.DriverID,
		UserType:   UserTypeDriver,
		Position:   u.Sample.Point,
		RecordedAt: u.Sample.At,
	}
	return s.snapshots.AppendSnapshot(ctx, snap)
}

func (s *Service) History(ctx context.Context, driverID types.ID, limit int) ([]Snapshot, error) {
	if s.snapshots == nil {
		return nil, nil
	}
	return s.snapshots.Recent(ctx, driverID, limit)
}

func (s *Service) snapshotDue(driverID types.ID, at time.Time) bool {
	if s.snapshots == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	last, ok := s.lastSnapshot[driverID]
	if ok && at.Sub(last) < s.snapshotEvery {
		return false
	}
	s.lastSnapshot[driverID] = at
	return true
}
