package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"ridedispatch/internal/types"
)

// scriptedProber returns the queued results in order, then nil.
type scriptedProber struct {
	mu      sync.Mutex
	results []error
	calls   int
}

func (p *scriptedProber) Probe(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if len(p.results) == 0 {
		return nil
	}
	err := p.results[0]
	p.results = p.results[1:]
	return err
}

type countingOffliner struct {
	mu    sync.Mutex
	calls int
}

func (o *countingOffliner) SetOffline(context.Context, types.ID) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls++
	return nil
}

func (o *countingOffliner) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.calls
}

var errDown = fmt.Errorf("dial tcp: connection refused: %w", types.ErrTransient)

func TestThreeFailuresForceOffline(t *testing.T) {
	ctx := context.Background()
	prober := &scriptedProber{results: []error{errDown, errDown, errDown, errDown, errDown}}
	off := &countingOffliner{}
	m := New(Config{DriverID: "d1"}, prober, off, nil)

	for i := 1; i <= 2; i++ {
		_ = m.Check(ctx)
		if off.count() != 0 {
			t.Fatalf("forced offline after %d failures", i)
		}
		if m.State() != StateConnected {
			t.Fatalf("state after %d failures = %s", i, m.State())
		}
	}
	_ = m.Check(ctx)
	if off.count() != 1 || m.State() != StateDisconnected {
		t.Fatalf("after 3 failures: offline calls=%d state=%s", off.count(), m.State())
	}

	// Still down: no repeat for the same outage.
	_ = m.Check(ctx)
	_ = m.Check(ctx)
	if off.count() != 1 {
		t.Fatalf("offline forced %d times in one outage", off.count())
	}
}

func TestSuccessResetsCounter(t *testing.T) {
	ctx := context.Background()
	prober := &scriptedProber{results: []error{errDown, errDown, nil, errDown, errDown}}
	off := &countingOffliner{}
	m := New(Config{DriverID: "d1", MaxFailures: 3}, prober, off, nil)

	_ = m.Check(ctx)
	_ = m.Check(ctx)
	if m.Failures() != 2 {
		t.Fatalf("failures = %d, want 2", m.Failures())
	}
	if err := m.Check(ctx); err != nil {
		t.Fatalf("successful probe returned %v", err)
	}
	if m.Failures() != 0 {
		t.Fatalf("failures after success = %d, want 0", m.Failures())
	}
	_ = m.Check(ctx)
	_ = m.Check(ctx)
	if off.count() != 0 {
		t.Fatal("two failures after a reset must not force offline")
	}
}

func TestNewOutageForcesAgain(t *testing.T) {
	ctx := context.Background()
	prober := &scriptedProber{results: []error{errDown, errDown, errDown, nil, errDown, errDown, errDown}}
	off := &countingOffliner{}
	var states []State
	m := New(Config{DriverID: "d1"}, prober, off, nil).OnChange(func(s State) { states = append(states, s) })

	for i := 0; i < 7; i++ {
		_ = m.Check(ctx)
	}
	if off.count() != 2 {
		t.Fatalf("offline calls = %d, want 2 (one per outage)", off.count())
	}
	want := []State{StateDisconnected, StateConnected, StateDisconnected}
	if len(states) != len(want) {
		t.Fatalf("state changes = %v, want %v", states, want)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Fatalf("state changes = %v, want %v", states, want)
		}
	}
}

func TestUnauthenticatedIsTerminal(t *testing.T) {
	ctx := context.Background()
	prober := &scriptedProber{results: []error{fmt.Errorf("401: %w", types.ErrUnauthenticated)}}
	off := &countingOffliner{}
	m := New(Config{DriverID: "d1", Interval: time.Millisecond}, prober, off, nil)

	err := m.Run(ctx)
	if !errors.Is(err, types.ErrUnauthenticated) {
		t.Fatalf("Run() = %v, want ErrUnauthenticated", err)
	}
	if m.State() != StateSessionExpired {
		t.Fatalf("state = %s", m.State())
	}
	if m.Failures() != 0 || off.count() != 0 {
		t.Fatalf("401 counted as failure: failures=%d offline=%d", m.Failures(), off.count())
	}

	calls := prober.calls
	if err := m.Check(ctx); !errors.Is(err, types.ErrUnauthenticated) {
		t.Fatalf("check after expiry = %v", err)
	}
	if prober.calls != calls {
		t.Fatal("expired monitor should not probe again")
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	prober := &scriptedProber{}
	m := New(Config{DriverID: "d1", Interval: time.Millisecond}, prober, &countingOffliner{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() = %v, want nil on cancel", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
	prober.mu.Lock()
	defer prober.mu.Unlock()
	if prober.calls < 2 {
		t.Fatalf("expected repeated probes, got %d", prober.calls)
	}
}
