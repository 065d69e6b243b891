package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Storage backends selected from configuration.
const (
	StoragePostgres = "postgres"
	StorageSQLite   = "sqlite"
)

// ErrNoStorage is returned by Storage when neither POSTGRES_DSN nor SQLITE_PATH is set.
var ErrNoStorage = errors.New("no storage configured: set POSTGRES_DSN or SQLITE_PATH")

// Config is centralized process configuration.
// Keep infra values here and pass typed config into builders.
type Config struct {
	ServiceName  string
	HTTPPort     string
	PostgresDSN  string
	SQLitePath   string
	KafkaBrokers []string

	EnableExpirySweep  bool
	WorkerPollInterval time.Duration
	OutboxBatchSize    int
}

// Load reads the optional YAML file named by CONFIG_FILE, then overlays
// environment variables (SERVICE_NAME -> service_name, etc.).
func Load() (Config, error) {
	return LoadFile(os.Getenv("CONFIG_FILE"))
}

// LoadFile is Load with an explicit YAML path. An empty path skips the file.
func LoadFile(path string) (Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("reading config %s: %w", path, err)
		}
	}
	// Empty variables are skipped so they never mask file values.
	if err := k.Load(env.ProviderWithValue("", ".", func(key string, value string) (string, any) {
		if strings.TrimSpace(value) == "" {
			return "", nil
		}
		return strings.ToLower(key), value
	}), nil); err != nil {
		return Config{}, fmt.Errorf("loading env overrides: %w", err)
	}

	pollInterval, err := durationValue(k, "worker_poll_interval", 2*time.Second)
	if err != nil {
		return Config{}, err
	}
	batchSize, err := intValue(k, "outbox_batch_size", 100)
	if err != nil {
		return Config{}, err
	}
	if batchSize <= 0 {
		return Config{}, fmt.Errorf("outbox_batch_size must be positive, got %d", batchSize)
	}

	brokers := stringList(k, "kafka_brokers")
	if len(brokers) == 0 {
		brokers = []string{"localhost:9092"}
	}

	return Config{
		ServiceName:  stringValue(k, "service_name", "medvault"),
		HTTPPort:     stringValue(k, "http_port", "8080"),
		PostgresDSN:  stringValue(k, "postgres_dsn", ""),
		SQLitePath:   stringValue(k, "sqlite_path", ""),
		KafkaBrokers: brokers,

		EnableExpirySweep:  boolValue(k, "enable_expiry_sweep", false),
		WorkerPollInterval: pollInterval,
		OutboxBatchSize:    batchSize,
	}, nil
}

// Storage picks postgres when a DSN is configured, else sqlite when a path is.
func (c Config) Storage() (string, error) {
	switch {
	case c.PostgresDSN != "":
		return StoragePostgres, nil
	case c.SQLitePath != "":
		return StorageSQLite, nil
	default:
		return "", ErrNoStorage
	}
}

func stringValue(k *koanf.Koanf, key string, fallback string) string {
	value := strings.TrimSpace(k.String(key))
	if value == "" {
		return fallback
	}
	return value
}

func stringList(k *koanf.Koanf, key string) []string {
	var raw []string
	switch k.Get(key).(type) {
	case []any:
		raw = k.Strings(key)
	default:
		raw = strings.Split(k.String(key), ",")
	}
	items := make([]string, 0, len(raw))
	for _, value := range raw {
		value = strings.TrimSpace(value)
		if value != "" {
			items = append(items, value)
		}
	}
	return items
}

func boolValue(k *koanf.Koanf, key string, fallback bool) bool {
	raw := strings.TrimSpace(strings.ToLower(k.String(key)))
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return fallback
	}
}

func intValue(k *koanf.Koanf, key string, fallback int) (int, error) {
	raw := strings.TrimSpace(k.String(key))
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return value, nil
}

func durationValue(k *koanf.Koanf, key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(k.String(key))
	if raw == "" {
		return fallback, nil
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration: %w", key, err)
	}
	if value <= 0 {
		return 0, fmt.Errorf("%s must be positive", key)
	}
	return value, nil
}
