package config

import (
	"testing"
	"time"
)

func TestLoad_DevDefaults(t *testing.T) {
	t.Setenv("DISPATCH_AUTH_MODE", "dev")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTP.Addr != ":8080" {
		t.Errorf("addr = %q, want :8080", cfg.HTTP.Addr)
	}
	if cfg.Dispatch.DeclineSuppression != 45*time.Second {
		t.Errorf("decline suppression = %s, want 45s", cfg.Dispatch.DeclineSuppression)
	}
	if cfg.Kafka.Brokers != nil {
		t.Errorf("expected no kafka brokers, got %v", cfg.Kafka.Brokers)
	}
}

func TestLoad_FirebaseRequiresProject(t *testing.T) {
	t.Setenv("DISPATCH_AUTH_MODE", "firebase")
	t.Setenv("DISPATCH_FIREBASE_PROJECT_ID", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error without firebase project id")
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	t.Setenv("DISPATCH_AUTH_MODE", "dev")
	t.Setenv("DISPATCH_DECLINE_SUPPRESSION", "soon")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for unparsable duration")
	}
}

func TestLoad_BrokerList(t *testing.T) {
	t.Setenv("DISPATCH_AUTH_MODE", "dev")
	t.Setenv("DISPATCH_KAFKA_BROKERS", " k1:9092, ,k2:9092 ")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[0] != "k1:9092" || cfg.Kafka.Brokers[1] != "k2:9092" {
		t.Fatalf("brokers = %v", cfg.Kafka.Brokers)
	}
}
