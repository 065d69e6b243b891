package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"CONFIG_FILE", "SERVICE_NAME", "HTTP_PORT", "POSTGRES_DSN", "SQLITE_PATH",
		"KAFKA_BROKERS", "ENABLE_EXPIRY_SWEEP", "WORKER_POLL_INTERVAL", "OUTBOX_BATCH_SIZE",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ServiceName != "medvault" || cfg.HTTPPort != "8080" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.EnableExpirySweep {
		t.Fatalf("expected expiry sweep disabled by default")
	}
	if cfg.WorkerPollInterval != 2*time.Second || cfg.OutboxBatchSize != 100 {
		t.Fatalf("unexpected worker defaults: %+v", cfg)
	}
	if len(cfg.KafkaBrokers) != 1 || cfg.KafkaBrokers[0] != "localhost:9092" {
		t.Fatalf("unexpected brokers: %v", cfg.KafkaBrokers)
	}
	if _, err := cfg.Storage(); !errors.Is(err, ErrNoStorage) {
		t.Fatalf("expected ErrNoStorage, got %v", err)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("SQLITE_PATH", "/tmp/medvault.db")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092")
	t.Setenv("ENABLE_EXPIRY_SWEEP", "yes")
	t.Setenv("WORKER_POLL_INTERVAL", "500ms")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPPort != "9090" || !cfg.EnableExpirySweep || cfg.WorkerPollInterval != 500*time.Millisecond {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "kafka-2:9092" {
		t.Fatalf("unexpected brokers: %v", cfg.KafkaBrokers)
	}
	storage, err := cfg.Storage()
	if err != nil || storage != StorageSQLite {
		t.Fatalf("expected sqlite storage, got %q err=%v", storage, err)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "medvault.yml")
	content := []byte("service_name: consent\npostgres_dsn: postgres://localhost/medvault\nsqlite_path: /tmp/ignored.db\noutbox_batch_size: 25\nkafka_brokers:\n  - a:9092\n  - b:9092\n")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("OUTBOX_BATCH_SIZE", "50")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ServiceName != "consent" {
		t.Fatalf("expected file value, got %q", cfg.ServiceName)
	}
	if cfg.OutboxBatchSize != 50 {
		t.Fatalf("expected env to override file, got %d", cfg.OutboxBatchSize)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[0] != "a:9092" {
		t.Fatalf("unexpected brokers: %v", cfg.KafkaBrokers)
	}
	storage, err := cfg.Storage()
	if err != nil || storage != StoragePostgres {
		t.Fatalf("expected postgres to win, got %q err=%v", storage, err)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("OUTBOX_BATCH_SIZE", "many")
	if _, err := Load(); err == nil {
		t.Fatalf("expected invalid batch size error")
	}

	clearEnv(t)
	t.Setenv("WORKER_POLL_INTERVAL", "-1s")
	if _, err := Load(); err == nil {
		t.Fatalf("expected invalid poll interval error")
	}
}
