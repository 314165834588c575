// README: Driver simulator; runs the driver session, connection monitor, location feed and optional ride requests against the API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"ridedispatch/internal/client"
	"ridedispatch/internal/logging"
	"ridedispatch/internal/modules/monitor"
	"ridedispatch/internal/poller"
	"ridedispatch/internal/types"
)

type Config struct {
	BaseURL        string
	Token          string
	DriverID       string
	Lat, Lng       float64
	AutoAccept     bool
	TripDuration   time.Duration
	PollInterval   time.Duration
	ProbeInterval  time.Duration
	MaxFailures    int
	LocationEvery  time.Duration
	RequestEvery   time.Duration
	PassengerToken string
	LogLevel       string
}

// parseConfig reads flags; env vars only supply the defaults.
func parseConfig(args []string) (Config, error) {
	var cfg Config
	var errs []error
	flags := flag.NewFlagSet("driversim", flag.ContinueOnError)
	flags.StringVar(&cfg.BaseURL, "base-url", envOrDefault("DISPATCH_SIM_BASE_URL", "http://localhost:8080"), "API base URL")
	flags.StringVar(&cfg.Token, "token", envOrDefault("DISPATCH_SIM_TOKEN", ""), "bearer token (dev mode: uid:driver)")
	flags.StringVar(&cfg.DriverID, "driver-id", envOrDefault("DISPATCH_SIM_DRIVER_ID", "sim-driver-1"), "driver uid")
	flags.Float64Var(&cfg.Lat, "lat", 25.0330, "start latitude")
	flags.Float64Var(&cfg.Lng, "lng", 121.5654, "start longitude")
	flags.BoolVar(&cfg.AutoAccept, "auto-accept", true, "accept every offer")
	flags.DurationVar(&cfg.TripDuration, "trip", 20*time.Second, "simulated time from accept to complete")
	flags.DurationVar(&cfg.PollInterval, "poll", poller.DefaultInterval, "offer and current-ride poll interval")
	flags.DurationVar(&cfg.ProbeInterval, "probe", envOrDefaultDuration("DISPATCH_MONITOR_INTERVAL", monitor.DefaultInterval, &errs), "connection check interval")
	flags.IntVar(&cfg.MaxFailures, "max-failures", envOrDefaultInt("DISPATCH_MONITOR_MAX_FAILURES", monitor.DefaultMaxFailures, &errs), "failed checks before going offline")
	flags.DurationVar(&cfg.LocationEvery, "location-every", 5*time.Second, "location feed interval")
	flags.DurationVar(&cfg.RequestEvery, "request-every", 0, "request a passenger ride near the driver this often (0 disables)")
	flags.StringVar(&cfg.PassengerToken, "passenger-token", envOrDefault("DISPATCH_SIM_PASSENGER_TOKEN", "sim-passenger-1:passenger"), "bearer token for simulated ride requests")
	flags.StringVar(&cfg.LogLevel, "log-level", envOrDefault("DISPATCH_LOG_LEVEL", "info"), "log level")
	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}
	if err := flags.Parse(args); err != nil {
		return Config{}, err
	}
	if cfg.ProbeInterval <= 0 {
		return Config{}, fmt.Errorf("probe interval must be positive, got %s", cfg.ProbeInterval)
	}
	if cfg.MaxFailures < 1 {
		return Config{}, fmt.Errorf("max failures must be at least 1, got %d", cfg.MaxFailures)
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Token == "" {
		cfg.Token = cfg.DriverID + ":driver"
	}
	return cfg, nil
}

func (c Config) monitorConfig() monitor.Config {
	return monitor.Config{
		DriverID:    types.ID(c.DriverID),
		Interval:    c.ProbeInterval,
		MaxFailures: c.MaxFailures,
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int, errs *[]error) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}

func envOrDefaultDuration(key string, def time.Duration, errs *[]error) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return d
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "driversim: load .env:", err)
		os.Exit(2)
	}
	cfg, err := parseConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "driversim:", err)
		os.Exit(2)
	}
	log := logging.NewLogger(cfg.LogLevel).With("driver_id", cfg.DriverID)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	api := client.New(cfg.BaseURL, cfg.Token)
	driverID := types.ID(cfg.DriverID)
	session := poller.NewDriver(api, poller.Config{
		DriverID:      driverID,
		OfferInterval: cfg.PollInterval,
		RideInterval:  cfg.PollInterval,
	}, log)
	sim := &simulator{cfg: cfg, api: api, session: session, log: log}
	if cfg.AutoAccept {
		session.OnOffer(sim.onOffer(ctx))
	}

	mon := monitor.New(cfg.monitorConfig(), api, session, log).
		OnChange(func(s monitor.State) { log.Info("connection state", "state", s) })

	pos := types.Point{Lat: cfg.Lat, Lng: cfg.Lng}
	if err := session.GoOnline(ctx, &pos); err != nil {
		log.Error("go online", "err", err)
		os.Exit(1)
	}

	errCh := make(chan error, 4)
	go func() { errCh <- mon.Run(ctx) }()
	go func() { errCh <- session.Run(ctx) }()
	go func() { errCh <- sim.feedLocation(ctx, pos) }()
	if cfg.RequestEvery > 0 {
		passenger := &passengerSim{
			api:   client.New(cfg.BaseURL, cfg.PassengerToken),
			every: cfg.RequestEvery,
			near:  pos,
			log:   log.With("role", "passenger"),
		}
		go func() { errCh <- passenger.run(ctx) }()
	}

	err = <-errCh
	stop()
	if errors.Is(err, types.ErrUnauthenticated) {
		log.Error("session expired, sign in again", "err", err)
		os.Exit(2)
	}
	if err != nil {
		log.Error("driversim stopped", "err", err)
		os.Exit(1)
	}

	offCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_ = session.SetOffline(offCtx, driverID)
	log.Info("driversim stopped")
}
