// README: Connection monitor probes liveness and forces the driver offline after repeated failures.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"ridedispatch/internal/logging"
	"ridedispatch/internal/types"
)

type State string

const (
	StateConnected      State = "connected"
	StateDisconnected   State = "disconnected"
	StateSessionExpired State = "session_expired"
)

const (
	DefaultInterval    = 10 * time.Second
	DefaultMaxFailures = 3
)

// Prober performs one liveness check. An error wrapping types.ErrUnauthenticated
// ends monitoring; any other error counts as a failed probe.
type Prober interface {
	Probe(ctx context.Context) error
}

type Offliner interface {
	SetOffline(ctx context.Context, driverID types.ID) error
}

type Config struct {
	DriverID    types.ID
	Interval    time.Duration
	MaxFailures int
}

type Monitor struct {
	cfg      Config
	prober   Prober
	offliner Offliner
	log      *slog.Logger
	onChange func(State)

	mu       sync.Mutex
	failures int
	state    State
	// forced is set once the current outage has taken the driver offline.
	forced bool
}

func New(cfg Config, prober Prober, offliner Offliner, log *slog.Logger) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = DefaultMaxFailures
	}
	if log == nil {
		log = logging.Discard()
	}
	return &Monitor{
		cfg:      cfg,
		prober:   prober,
		offliner: offliner,
		log:      log,
		state:    StateConnected,
	}
}

// OnChange registers a callback invoked after every state change.
func (m *Monitor) OnChange(fn func(State)) *Monitor {
	m.onChange = fn
	return m
}

// Check runs a single probe and applies its outcome. It returns the probe error.
func (m *Monitor) Check(ctx context.Context) error {
	m.mu.Lock()
	expired := m.state == StateSessionExpired
	m.mu.Unlock()
	if expired {
		return fmt.Errorf("session expired: %w", types.ErrUnauthenticated)
	}

	err := m.prober.Probe(ctx)
	switch {
	case err == nil:
		m.recordSuccess()
		return nil
	case errors.Is(err, types.ErrUnauthenticated):
		m.setState(StateSessionExpired)
		m.log.Warn("session expired, monitor stopping", "driver_id", m.cfg.DriverID)
		return err
	default:
		m.recordFailure(ctx, err)
		return err
	}
}

// Run checks immediately and then every interval until ctx ends or the session expires.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		if err := m.Check(ctx); errors.Is(err, types.ErrUnauthenticated) {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Monitor) Failures() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failures
}

func (m *Monitor) recordSuccess() {
	m.mu.Lock()
	m.failures = 0
	m.forced = false
	m.mu.Unlock()
	m.setState(StateConnected)
}

func (m *Monitor) recordFailure(ctx context.Context, probeErr error) {
	m.mu.Lock()
	m.failures++
	failures := m.failures
	force := failures >= m.cfg.MaxFailures && !m.forced
	if force {
		m.forced = true
	}
	m.mu.Unlock()

	m.log.Warn("liveness probe failed", "driver_id", m.cfg.DriverID, "failures", failures, "err", probeErr)
	if !force {
		return
	}
	if err := m.offliner.SetOffline(ctx, m.cfg.DriverID); err != nil {
		m.log.Error("force offline failed", "driver_id", m.cfg.DriverID, "err", err)
	}
	m.setState(StateDisconnected)
}

func (m *Monitor) setState(s State) {
	m.mu.Lock()
	changed := m.state != s
	m.state = s
	fn := m.onChange
	m.mu.Unlock()
	if changed && fn != nil {
		fn(s)
	}
}
