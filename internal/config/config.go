// README: Config loader with env defaults for HTTP, storage backends, auth and dispatch policy.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type DispatchConfig struct {
	// DeclineSuppression is how long a declined ride stays hidden from the declining driver.
	DeclineSuppression time.Duration
	// AvgSpeedMps feeds the straight-line router when no maps key is configured.
	AvgSpeedMps float64
	// SnapshotInterval is the minimum gap between stored location snapshots per driver.
	SnapshotInterval time.Duration
}

type Config struct {
	HTTP struct {
		Addr            string
		ReadTimeout     time.Duration
		WriteTimeout    time.Duration
		ShutdownTimeout time.Duration
	}
	DB struct {
		DSN string
	}
	Redis struct {
		Addr     string
		Password string
	}
	Kafka struct {
		Brokers []string
		Topic   string
	}
	Maps struct {
		APIKey string
	}
	Firebase struct {
		ProjectID       string
		CredentialsFile string
		DatabaseURL     string
	}
	Auth struct {
		// Mode is "firebase" (default) or "dev"; dev accepts "uid:role" bearer tokens.
		Mode string
	}
	Log struct {
		Level string
	}
	Dispatch DispatchConfig
}

func Load() (Config, error) {
	var cfg Config
	var errs []error

	cfg.HTTP.Addr = envOrDefault("DISPATCH_HTTP_ADDR", ":8080")
	cfg.HTTP.ReadTimeout = envOrDefaultDuration("DISPATCH_HTTP_READ_TIMEOUT", 5*time.Second, &errs)
	cfg.HTTP.WriteTimeout = envOrDefaultDuration("DISPATCH_HTTP_WRITE_TIMEOUT", 10*time.Second, &errs)
	cfg.HTTP.ShutdownTimeout = envOrDefaultDuration("DISPATCH_HTTP_SHUTDOWN_TIMEOUT", 15*time.Second, &errs)

	cfg.DB.DSN = os.Getenv("DISPATCH_DB_DSN")
	cfg.Redis.Addr = os.Getenv("DISPATCH_REDIS_ADDR")
	cfg.Redis.Password = os.Getenv("DISPATCH_REDIS_PASSWORD")
	cfg.Kafka.Brokers = splitAndTrim(os.Getenv("DISPATCH_KAFKA_BROKERS"))
	cfg.Kafka.Topic = envOrDefault("DISPATCH_KAFKA_TOPIC", "ride-events")
	cfg.Maps.APIKey = os.Getenv("DISPATCH_MAPS_API_KEY")

	cfg.Firebase.ProjectID = os.Getenv("DISPATCH_FIREBASE_PROJECT_ID")
	cfg.Firebase.CredentialsFile = os.Getenv("DISPATCH_FIREBASE_CREDENTIALS")
	cfg.Firebase.DatabaseURL = os.Getenv("DISPATCH_FIREBASE_DATABASE_URL")
	cfg.Auth.Mode = strings.ToLower(envOrDefault("DISPATCH_AUTH_MODE", "firebase"))
	cfg.Log.Level = strings.ToLower(envOrDefault("DISPATCH_LOG_LEVEL", "info"))

	cfg.Dispatch.DeclineSuppression = envOrDefaultDuration("DISPATCH_DECLINE_SUPPRESSION", 45*time.Second, &errs)
	cfg.Dispatch.AvgSpeedMps = envOrDefaultFloat("DISPATCH_AVG_SPEED_MPS", 8.0)
	cfg.Dispatch.SnapshotInterval = envOrDefaultDuration("DISPATCH_SNAPSHOT_INTERVAL", 30*time.Second, &errs)

	switch cfg.Auth.Mode {
	case "firebase":
		if cfg.Firebase.ProjectID == "" {
			errs = append(errs, errors.New("DISPATCH_FIREBASE_PROJECT_ID is required when DISPATCH_AUTH_MODE=firebase"))
		}
	case "dev":
	default:
		errs = append(errs, fmt.Errorf("unknown DISPATCH_AUTH_MODE %q", cfg.Auth.Mode))
	}
	if cfg.Dispatch.DeclineSuppression <= 0 {
		errs = append(errs, errors.New("DISPATCH_DECLINE_SUPPRESSION must be > 0"))
	}

	return cfg, errors.Join(errs...)
}

func envOrDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envOrDefaultFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			return n
		}
	}
	return def
}

func envOrDefaultDuration(key string, def time.Duration, errs *[]error) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
		return def
	}
	return d
}

func splitAndTrim(v string) []string {
	if v == "" {
		return nil
	}
	raw := strings.Split(v, ",")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}
