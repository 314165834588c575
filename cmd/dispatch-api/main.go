// README: Entry point; loads config, picks storage backends, wires services and serves the dispatch API.
package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	firebase "firebase.google.com/go/v4"
	"github.com/joho/godotenv"

	"ridedispatch/internal/config"
	"ridedispatch/internal/events"
	httptransport "ridedispatch/internal/http"
	"ridedispatch/internal/infra"
	"ridedispatch/internal/logging"
	"ridedispatch/internal/maps"
	"ridedispatch/internal/modules/availability"
	"ridedispatch/internal/modules/location"
	"ridedispatch/internal/modules/matching"
	"ridedispatch/internal/modules/pricing"
	"ridedispatch/internal/modules/ride"
)

func main() {
	// A local .env is optional; real environment variables take precedence.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Error("load .env", "err", err)
		os.Exit(1)
	}
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", "err", err)
		os.Exit(1)
	}
	log := logging.NewLogger(cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("dispatch-api stopped", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	var (
		rideStore     ride.Store         = ride.NewMemoryStore()
		presenceStore availability.Store = availability.NewMemoryStore()
	)
	var snapshots location.SnapshotStore
	if cfg.DB.DSN != "" {
		db, err := infra.NewDB(ctx, cfg.DB.DSN)
		if err != nil {
			return err
		}
		defer db.Close()
		rideStore = ride.NewPGStore(db)
		snapshots = location.NewPGSnapshotStore(db)
		log.Info("ride store", "backend", "postgres")
	} else {
		log.Warn("DISPATCH_DB_DSN not set, rides are kept in memory")
	}

	if cfg.Redis.Addr != "" {
		rdb, err := infra.NewRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password)
		if err != nil {
			return err
		}
		defer rdb.Close()
		presenceStore = availability.NewRedisStore(rdb)
		log.Info("presence store", "backend", "redis")
	}

	var router pricing.Router = pricing.StraightLineRouter{SpeedMps: cfg.Dispatch.AvgSpeedMps}
	if cfg.Maps.APIKey != "" {
		rs, err := maps.NewRouteService(cfg.Maps.APIKey)
		if err != nil {
			return err
		}
		router = rs
	}
	pricingSvc := pricing.NewService(router, pricing.DefaultRate)

	var publisher ride.Publisher
	if len(cfg.Kafka.Brokers) > 0 {
		kp := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer kp.Close()
		publisher = kp
		log.Info("ride events", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	}

	rideSvc := ride.NewService(rideStore, pricingSvc, publisher, log)
	registry := availability.NewRegistry(presenceStore, rideSvc, cfg.Dispatch.DeclineSuppression, log)
	matchingSvc := matching.NewService(rideSvc, registry)
	locationSvc := location.NewService(registry, snapshots, cfg.Dispatch.SnapshotInterval, log)

	var verifier infra.TokenVerifier = infra.DevVerifier{}
	if cfg.Auth.Mode == "firebase" {
		app, err := infra.NewFirebaseApp(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile, cfg.Firebase.DatabaseURL)
		if err != nil {
			return err
		}
		if verifier, err = infra.NewFirebaseVerifier(ctx, app); err != nil {
			return err
		}
		if err := attachMirror(ctx, app, cfg.Firebase.DatabaseURL, registry, log); err != nil {
			return err
		}
	} else {
		log.Warn("dev auth mode: bearer tokens are trusted as uid:role")
	}

	handler := httptransport.NewServer(httptransport.ServerDeps{
		Rides:    rideSvc,
		Matching: matchingSvc,
		Registry: registry,
		Location: locationSvc,
		Verifier: verifier,
		Log:      log,
	})
	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      handler.Routes(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", cfg.HTTP.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	log.Info("shutting down")
	return server.Shutdown(shutdownCtx)
}

// attachMirror publishes presence to the Realtime Database when a database URL is configured.
func attachMirror(ctx context.Context, app *firebase.App, databaseURL string, registry *availability.Registry, log *slog.Logger) error {
	if databaseURL == "" {
		return nil
	}
	mirror, err := location.NewFirebaseMirror(ctx, app)
	if err != nil {
		return err
	}
	registry.WithSink(mirror)
	log.Info("presence mirror", "backend", "firebase-rtdb")
	return nil
}
