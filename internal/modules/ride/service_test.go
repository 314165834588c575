// README: Ride lifecycle tests (flow, guards, concurrent accept) against the memory store.
package ride

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"ridedispatch/internal/modules/pricing"
	"ridedispatch/internal/types"
)

type fixedEstimator struct{}

func (fixedEstimator) Estimate(context.Context, types.Point, types.Point) (pricing.Estimate, error) {
	return pricing.Estimate{DistanceMeters: 4000, DurationSeconds: 600, Price: 12.50}, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*Event
	err    error
}

func (p *recordingPublisher) PublishRideEvent(_ context.Context, _ *Ride, e *Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

var (
	taipei101 = types.PlaceAt(types.Point{Lat: 25.0330, Lng: 121.5654}, "Taipei 101")
	mainStn   = types.PlaceAt(types.Point{Lat: 25.0478, Lng: 121.5170}, "Taipei Main Station")
)

func newTestService(store Store) *Service {
	return NewService(store, fixedEstimator{}, nil, nil)
}

func mustCreate(t *testing.T, svc *Service, passenger types.ID) *Ride {
	t.Helper()
	r, err := svc.Create(context.Background(), CreateCommand{
		PassengerID: passenger,
		Origin:      taipei101,
		Destination: mainStn,
	})
	if err != nil {
		t.Fatalf("create ride: %v", err)
	}
	return r
}

func TestCreate_PricesAndRequests(t *testing.T) {
	svc := newTestService(NewMemoryStore())
	r := mustCreate(t, svc, "p1")

	if r.Status != StatusRequested {
		t.Fatalf("status = %s, want requested", r.Status)
	}
	if r.Price != 12.50 || r.DistanceMeters != 4000 || r.DurationSeconds != 600 {
		t.Fatalf("estimate not applied: %+v", r)
	}
	if r.DriverID != nil {
		t.Fatalf("new ride should have no driver")
	}
	if r.Origin.Address != "Taipei 101" {
		t.Fatalf("origin = %+v", r.Origin)
	}
}

func TestCreate_RejectsSecondActiveRide(t *testing.T) {
	svc := newTestService(NewMemoryStore())
	mustCreate(t, svc, "p1")

	_, err := svc.Create(context.Background(), CreateCommand{PassengerID: "p1", Origin: taipei101, Destination: mainStn})
	if !errors.Is(err, types.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestCreate_MissingPassenger(t *testing.T) {
	svc := newTestService(NewMemoryStore())
	_, err := svc.Create(context.Background(), CreateCommand{Origin: taipei101, Destination: mainStn})
	if !errors.Is(err, types.ErrBadRequest) {
		t.Fatalf("expected ErrBadRequest, got %v", err)
	}
}

func TestLifecycle_HappyPath(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	pub := &recordingPublisher{}
	svc := NewService(store, fixedEstimator{}, pub, nil)

	r := mustCreate(t, svc, "p1")
	if _, err := svc.Accept(ctx, AcceptCommand{RideID: r.ID, DriverID: "d1"}); err != nil {
		t.Fatalf("accept: %v", err)
	}
	cur, err := svc.CurrentForDriver(ctx, "d1")
	if err != nil || cur == nil || cur.ID != r.ID {
		t.Fatalf("current for driver = %v, %v", cur, err)
	}
	if _, err := svc.Start(ctx, StartCommand{RideID: r.ID, DriverID: "d1"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	done, err := svc.Complete(ctx, CompleteCommand{RideID: r.ID, DriverID: "d1"})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.Status != StatusCompleted || done.CompletedAt == nil || done.StartedAt == nil || done.AcceptedAt == nil {
		t.Fatalf("completed ride missing timestamps: %+v", done)
	}

	// Completion frees both actors.
	if cur, _ := svc.CurrentForDriver(ctx, "d1"); cur != nil {
		t.Fatalf("driver should be free after completion, got %s", cur.ID)
	}
	if cur, _ := svc.CurrentForPassenger(ctx, "p1"); cur != nil {
		t.Fatalf("passenger should be free after completion, got %s", cur.ID)
	}

	got, err := svc.Get(ctx, r.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.StatusVersion != 3 || got.DriverID == nil || *got.DriverID != "d1" {
		t.Fatalf("stored ride = %+v", got)
	}

	events, _ := svc.Events(ctx, r.ID)
	want := []Status{StatusRequested, StatusAccepted, StatusInProgress, StatusCompleted}
	if len(events) != len(want) {
		t.Fatalf("events = %d, want %d", len(events), len(want))
	}
	for i, e := range events {
		if e.ToStatus != want[i] {
			t.Errorf("event %d to = %s, want %s", i, e.ToStatus, want[i])
		}
	}
	if len(pub.events) != len(want) {
		t.Fatalf("published %d events, want %d", len(pub.events), len(want))
	}
}

func TestPublisherFailureKeepsTransition(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryStore(), fixedEstimator{}, &recordingPublisher{err: errors.New("broker down")}, nil)

	r := mustCreate(t, svc, "p1")
	if _, err := svc.Accept(ctx, AcceptCommand{RideID: r.ID, DriverID: "d1"}); err != nil {
		t.Fatalf("accept should succeed despite publisher error: %v", err)
	}
	got, _ := svc.Get(ctx, r.ID)
	if got.Status != StatusAccepted {
		t.Fatalf("status = %s, want accepted", got.Status)
	}
}

func TestDriverGuards(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(NewMemoryStore())
	r := mustCreate(t, svc, "p1")

	// Nobody is assigned yet.
	if _, err := svc.Start(ctx, StartCommand{RideID: r.ID, DriverID: "d1"}); !errors.Is(err, types.ErrForbidden) {
		t.Fatalf("start before accept: expected ErrForbidden, got %v", err)
	}
	if _, err := svc.Accept(ctx, AcceptCommand{RideID: r.ID, DriverID: "d1"}); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, err := svc.Start(ctx, StartCommand{RideID: r.ID, DriverID: "d2"}); !errors.Is(err, types.ErrForbidden) {
		t.Fatalf("start by other driver: expected ErrForbidden, got %v", err)
	}
	if _, err := svc.Complete(ctx, CompleteCommand{RideID: r.ID, DriverID: "d1"}); !errors.Is(err, types.ErrInvalidState) {
		t.Fatalf("complete before start: expected ErrInvalidState, got %v", err)
	}
	if _, err := svc.Start(ctx, StartCommand{RideID: r.ID, DriverID: "d1"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := svc.Start(ctx, StartCommand{RideID: r.ID, DriverID: "d1"}); !errors.Is(err, types.ErrInvalidState) {
		t.Fatalf("double start: expected ErrInvalidState, got %v", err)
	}
	if _, err := svc.Complete(ctx, CompleteCommand{RideID: "missing", DriverID: "d1"}); !errors.Is(err, types.ErrNotFound) {
		t.Fatalf("complete missing: expected ErrNotFound, got %v", err)
	}
}

func TestCancelGuards(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(NewMemoryStore())

	t.Run("other passenger is forbidden", func(t *testing.T) {
		r := mustCreate(t, svc, "p_owner")
		_, err := svc.Cancel(ctx, CancelCommand{RideID: r.ID, PassengerID: "p_other"})
		if !errors.Is(err, types.ErrForbidden) {
			t.Fatalf("expected ErrForbidden, got %v", err)
		}
	})

	t.Run("accepted ride clears driver", func(t *testing.T) {
		r := mustCreate(t, svc, "p_accepted")
		if _, err := svc.Accept(ctx, AcceptCommand{RideID: r.ID, DriverID: "d_accepted"}); err != nil {
			t.Fatalf("accept: %v", err)
		}
		got, err := svc.Cancel(ctx, CancelCommand{RideID: r.ID, PassengerID: "p_accepted", Reason: "changed plans"})
		if err != nil {
			t.Fatalf("cancel: %v", err)
		}
		if got.Status != StatusCancelled || got.DriverID != nil || got.CancelReason == nil {
			t.Fatalf("cancelled ride = %+v", got)
		}
		stored, _ := svc.Get(ctx, r.ID)
		if stored.DriverID != nil {
			t.Fatalf("stored driver should be cleared")
		}
		if cur, _ := svc.CurrentForDriver(ctx, "d_accepted"); cur != nil {
			t.Fatalf("driver should be free after cancel")
		}
	})

	t.Run("in progress cannot be cancelled", func(t *testing.T) {
		r := mustCreate(t, svc, "p_riding")
		if _, err := svc.Accept(ctx, AcceptCommand{RideID: r.ID, DriverID: "d_riding"}); err != nil {
			t.Fatalf("accept: %v", err)
		}
		if _, err := svc.Start(ctx, StartCommand{RideID: r.ID, DriverID: "d_riding"}); err != nil {
			t.Fatalf("start: %v", err)
		}
		_, err := svc.Cancel(ctx, CancelCommand{RideID: r.ID, PassengerID: "p_riding"})
		if !errors.Is(err, types.ErrInvalidState) {
			t.Fatalf("expected ErrInvalidState, got %v", err)
		}
	})
}

func TestAccept_NonRequestedIsConflict(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(NewMemoryStore())
	r := mustCreate(t, svc, "p1")
	if _, err := svc.Cancel(ctx, CancelCommand{RideID: r.ID, PassengerID: "p1"}); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	_, err := svc.Accept(ctx, AcceptCommand{RideID: r.ID, DriverID: "d1"})
	if !errors.Is(err, types.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestAccept_BusyDriverIsConflict(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(NewMemoryStore())
	first := mustCreate(t, svc, "p1")
	second := mustCreate(t, svc, "p2")

	if _, err := svc.Accept(ctx, AcceptCommand{RideID: first.ID, DriverID: "d1"}); err != nil {
		t.Fatalf("accept first: %v", err)
	}
	_, err := svc.Accept(ctx, AcceptCommand{RideID: second.ID, DriverID: "d1"})
	if !errors.Is(err, types.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	got, _ := svc.Get(ctx, second.ID)
	if got.Status != StatusRequested {
		t.Fatalf("second ride should stay requested, got %s", got.Status)
	}
}

func TestConcurrentAcceptSameRide(t *testing.T) {
	runConcurrentAccept(t, newTestService(NewMemoryStore()))
}

func TestConcurrentAcceptVsCancel(t *testing.T) {
	runAcceptVsCancel(t, newTestService(NewMemoryStore()))
}

// TestConcurrentAcceptOneDriverManyRides checks a driver racing itself across rides
// ends up with exactly one of them.
func TestConcurrentAcceptOneDriverManyRides(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(NewMemoryStore())

	const rides = 6
	ids := make([]types.ID, rides)
	for i := range ids {
		ids[i] = mustCreate(t, svc, types.ID(fmt.Sprintf("p%d", i))).ID
	}

	start := make(chan struct{})
	var wg sync.WaitGroup
	errs := make(chan error, rides)
	for _, id := range ids {
		wg.Add(1)
		go func(rideID types.ID) {
			defer wg.Done()
			<-start
			_, err := svc.Accept(ctx, AcceptCommand{RideID: rideID, DriverID: "d_greedy"})
			errs <- err
		}(id)
	}
	close(start)
	wg.Wait()
	close(errs)

	if n := countAcceptWinners(t, errs); n != 1 {
		t.Fatalf("expected exactly 1 accepted ride, got %d", n)
	}
}

func runConcurrentAccept(t *testing.T, svc *Service) {
	t.Helper()
	ctx := context.Background()
	r := mustCreate(t, svc, "p_multi_accept")

	const attempts = 16
	start := make(chan struct{})
	var wg sync.WaitGroup
	errs := make(chan error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(did types.ID) {
			defer wg.Done()
			<-start
			_, err := svc.Accept(ctx, AcceptCommand{RideID: r.ID, DriverID: did})
			errs <- err
		}(types.ID(fmt.Sprintf("d%d", i)))
	}
	close(start)
	wg.Wait()
	close(errs)

	if n := countAcceptWinners(t, errs); n != 1 {
		t.Fatalf("expected exactly 1 success, got %d", n)
	}

	got, err := svc.Get(ctx, r.ID)
	if err != nil {
		t.Fatalf("get ride: %v", err)
	}
	if got.Status != StatusAccepted {
		t.Fatalf("unexpected final status: %s", got.Status)
	}
	if got.DriverID == nil || *got.DriverID == "" {
		t.Fatalf("expected driver_id to be set")
	}
}

func runAcceptVsCancel(t *testing.T, svc *Service) {
	t.Helper()
	ctx := context.Background()
	r := mustCreate(t, svc, "p_accept_cancel")

	start := make(chan struct{})
	var wg sync.WaitGroup
	errs := make(chan error, 2)

	wg.Add(2)
	go func() {
		defer wg.Done()
		<-start
		_, err := svc.Accept(ctx, AcceptCommand{RideID: r.ID, DriverID: "d1"})
		errs <- err
	}()
	go func() {
		defer wg.Done()
		<-start
		_, err := svc.Cancel(ctx, CancelCommand{RideID: r.ID, PassengerID: "p_accept_cancel", Reason: "user_cancel"})
		errs <- err
	}()
	close(start)
	wg.Wait()
	close(errs)

	success := 0
	for err := range errs {
		if err == nil {
			success++
			continue
		}
		if !errors.Is(err, types.ErrConflict) && !errors.Is(err, types.ErrInvalidState) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if success < 1 || success > 2 {
		t.Fatalf("expected 1 or 2 successes, got %d", success)
	}

	got, err := svc.Get(ctx, r.ID)
	if err != nil {
		t.Fatalf("get ride: %v", err)
	}
	if success == 2 && got.Status != StatusCancelled {
		t.Fatalf("expected cancelled after accept+cancel, got %s", got.Status)
	}
	if got.Status != StatusAccepted && got.Status != StatusCancelled {
		t.Fatalf("unexpected final status: %s", got.Status)
	}
}

func countAcceptWinners(t *testing.T, errs <-chan error) int {
	t.Helper()
	success := 0
	for err := range errs {
		if err == nil {
			success++
			continue
		}
		if !errors.Is(err, types.ErrConflict) {
			t.Fatalf("loser should see ErrConflict, got %v", err)
		}
	}
	return success
}

func TestRequested_FIFO(t *testing.T) {
	base := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)
	tick := 0
	svc := newTestService(NewMemoryStore()).WithClock(func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	})

	r1 := mustCreate(t, svc, "p1")
	r2 := mustCreate(t, svc, "p2")
	r3 := mustCreate(t, svc, "p3")

	list, err := svc.Requested(context.Background())
	if err != nil {
		t.Fatalf("requested: %v", err)
	}
	if len(list) != 3 || list[0].ID != r1.ID || list[1].ID != r2.ID || list[2].ID != r3.ID {
		t.Fatalf("requested order wrong: %v", list)
	}
}
