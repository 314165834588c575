package location

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ridedispatch/internal/modules/availability"
	"ridedispatch/internal/types"
)

type fakePresence struct {
	applied bool
	err     error
	calls   int
}

func (f *fakePresence) UpdateLocation(context.Context, types.ID, types.Sample) (bool, error) {
	f.calls++
	return f.applied, f.err
}

type memSnapshots struct {
	mu    sync.Mutex
	snaps []Snapshot
	err   error
}

func (m *memSnapshots) AppendSnapshot(_ context.Context, snap Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.snaps = append(m.snaps, snap)
	return nil
}

func (m *memSnapshots) Recent(_ context.Context, userID types.ID, limit int) ([]Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Snapshot
	for i := len(m.snaps) - 1; i >= 0 && len(out) < limit; i-- {
		if m.snaps[i].UserID == userID {
			out = append(out, m.snaps[i])
		}
	}
	return out, nil
}

var base = time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)

func sampleAt(offset time.Duration) types.Sample {
	return types.Sample{Point: types.Point{Lat: 25.033, Lng: 121.5654}, At: base.Add(offset)}
}

func TestUpdate_ThrottlesSnapshots(t *testing.T) {
	ctx := context.Background()
	snaps := &memSnapshots{}
	svc := NewService(&fakePresence{applied: true}, snaps, 30*time.Second, nil)

	for _, off := range []time.Duration{0, 10 * time.Second, 29 * time.Second, 30 * time.Second, 45 * time.Second, 61 * time.Second} {
		applied, err := svc.Update(ctx, Update{DriverID: "d1", Sample: sampleAt(off)})
		if err != nil || !applied {
			t.Fatalf("update at %s: applied=%v err=%v", off, applied, err)
		}
	}
	if len(snaps.snaps) != 3 {
		t.Fatalf("snapshots = %d, want 3 (t=0, 30s, 61s)", len(snaps.snaps))
	}

	history, err := svc.History(ctx, "d1", 2)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 || !history[0].RecordedAt.Equal(base.Add(61*time.Second)) {
		t.Fatalf("history = %+v", history)
	}
}

func TestUpdate_DroppedSampleNotSnapshotted(t *testing.T) {
	snaps := &memSnapshots{}
	svc := NewService(&fakePresence{applied: false}, snaps, 0, nil)

	applied, err := svc.Update(context.Background(), Update{DriverID: "d1", Sample: sampleAt(0)})
	if err != nil || applied {
		t.Fatalf("offline driver: applied=%v err=%v", applied, err)
	}
	if len(snaps.snaps) != 0 {
		t.Fatalf("dropped sample was snapshotted")
	}
}

func TestUpdate_SnapshotFailureIsNotFatal(t *testing.T) {
	svc := NewService(&fakePresence{applied: true}, &memSnapshots{err: errors.New("db down")}, 0, nil)
	applied, err := svc.Update(context.Background(), Update{DriverID: "d1", Sample: sampleAt(0)})
	if err != nil || !applied {
		t.Fatalf("applied=%v err=%v", applied, err)
	}
}

func TestUpdate_PresenceErrorPropagates(t *testing.T) {
	svc := NewService(&fakePresence{err: types.ErrBadRequest}, nil, 0, nil)
	_, err := svc.Update(context.Background(), Update{DriverID: "d1", Sample: sampleAt(0)})
	if !errors.Is(err, types.ErrBadRequest) {
		t.Fatalf("expected ErrBadRequest, got %v", err)
	}
}

func TestMirrorEntry(t *testing.T) {
	seen := base.Add(time.Minute)
	entry := mirrorEntry(availability.Presence{
		DriverID:     "d1",
		Online:       true,
		LastLocation: &types.Sample{Point: types.Point{Lat: 25.1, Lng: 121.2}},
		LastSeenAt:   seen,
	})
	if entry.Status != "online" || entry.Lat != 25.1 || entry.Lng != 121.2 || entry.Timestamp != seen.UnixMilli() {
		t.Fatalf("entry = %+v", entry)
	}

	if off := mirrorEntry(availability.Presence{DriverID: "d1"}); off.Status != "offline" {
		t.Fatalf("offline entry = %+v", off)
	}
}
