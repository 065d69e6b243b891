package bootstrap

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	consent "medvault/contexts/records-access/consent-service"
	eventsadapter "medvault/contexts/records-access/consent-service/adapters/events"
	postgresadapter "medvault/contexts/records-access/consent-service/adapters/postgres"
	sqliteadapter "medvault/contexts/records-access/consent-service/adapters/sqlite"
	"medvault/contexts/records-access/consent-service/application"
	"medvault/internal/platform/config"
	"medvault/internal/platform/db"
	"medvault/internal/platform/httpserver"
	"medvault/internal/platform/messaging"
)

// Package bootstrap is the composition root.
// Keep construction/wiring here so module code stays framework-agnostic.

type APIApp struct {
	server  *httpserver.Server
	storage io.Closer
	logger  *slog.Logger
}

// accessProjectionGroup is the consumer group of the worker's access projection.
const accessProjectionGroup = "consent-access-projection"

type WorkerApp struct {
	storage      io.Closer
	outboxRelay  relay
	sweeper      sweeper
	bus          eventSubscriber
	projection   *eventsadapter.AccessProjection
	sweepEnabled bool
	pollInterval time.Duration
	logger       *slog.Logger
}

type relay interface {
	RunOnce(ctx context.Context) error
}

type sweeper interface {
	RunOnce(ctx context.Context) (int, error)
}

type eventSubscriber interface {
	Subscribe(ctx context.Context, topic string, consumerGroup string, handler messaging.Handler) error
}

func BuildAPI(ctx context.Context) (*APIApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := slog.Default().With("service", cfg.ServiceName, "process", "api")

	deps, storage, err := buildStorage(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	deps.Publisher = eventsadapter.NewPublisher(logger)
	module := consent.NewModule(deps)

	return &APIApp{
		server:  httpserver.New(module, logger, normalizeAddr(cfg.HTTPPort)),
		storage: storage,
		logger:  logger,
	}, nil
}

func BuildWorker(ctx context.Context) (*WorkerApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := slog.Default().With("service", cfg.ServiceName, "process", "worker")

	deps, storage, err := buildStorage(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	kafka, err := messaging.NewKafka(cfg.KafkaBrokers, logger)
	if err != nil {
		_ = storage.Close()
		return nil, err
	}
	deps.Publisher = eventsadapter.BusPublisher{Bus: kafka}
	deps.BatchSize = cfg.OutboxBatchSize
	module := consent.NewModule(deps)

	return &WorkerApp{
		storage:      storage,
		outboxRelay:  module.Relay,
		sweeper:      module.Sweeper,
		bus:          kafka,
		projection:   eventsadapter.NewAccessProjection(logger),
		sweepEnabled: cfg.EnableExpirySweep,
		pollInterval: cfg.WorkerPollInterval,
		logger:       logger,
	}, nil
}

// buildStorage opens the configured backend and returns the consent ports bound to it.
func buildStorage(ctx context.Context, cfg config.Config, logger *slog.Logger) (consent.Dependencies, io.Closer, error) {
	backend, err := cfg.Storage()
	if err != nil {
		return consent.Dependencies{}, nil, err
	}

	deps := consent.Dependencies{
		Clock:       postgresadapter.SystemClock{},
		IDGenerator: postgresadapter.UUIDGenerator{},
		BatchSize:   cfg.OutboxBatchSize,
		Logger:      logger,
	}

	switch backend {
	case config.StoragePostgres:
		pg, err := db.Connect(ctx, cfg.PostgresDSN, logger)
		if err != nil {
			return consent.Dependencies{}, nil, err
		}
		if err := postgresadapter.EnsureSchema(ctx, pg.DB); err != nil {
			_ = pg.Close()
			return consent.Dependencies{}, nil, err
		}
		repo := postgresadapter.NewRepository(pg.DB, logger)
		deps.Permissions = repo
		deps.AuditLog = repo
		deps.Outbox = repo
		deps.Documents = postgresadapter.NewDocumentRegistry(pg.DB)
		return deps, pg, nil
	case config.StorageSQLite:
		store, err := sqliteadapter.Open(cfg.SQLitePath, logger)
		if err != nil {
			return consent.Dependencies{}, nil, err
		}
		deps.Permissions = store
		deps.AuditLog = store
		deps.Outbox = store
		deps.Documents = store
		return deps, store, nil
	default:
		return consent.Dependencies{}, nil, fmt.Errorf("unsupported storage backend %q", backend)
	}
}

// Run serves HTTP until ctx is cancelled, then drains in-flight requests.
func (a *APIApp) Run(ctx context.Context) error {
	a.logger.Info("api app started",
		"event", "bootstrap_api_started",
		"module", "internal/app/bootstrap",
		"layer", "platform",
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.server.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

func (a *APIApp) Close() error {
	if a.storage != nil {
		return a.storage.Close()
	}
	return nil
}

func (w *WorkerApp) Run(ctx context.Context) error {
	if err := w.subscribe(ctx); err != nil {
		return err
	}
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	w.logger.Info("worker app started",
		"event", "bootstrap_worker_started",
		"module", "internal/app/bootstrap",
		"layer", "platform",
		"poll_interval", w.pollInterval.String(),
		"expiry_sweep_enabled", w.sweepEnabled,
	)

	for {
		if err := w.tick(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// subscribe joins the access projection to the bus before the first relay pass,
// so relayed events always have a group to land in.
func (w *WorkerApp) subscribe(ctx context.Context) error {
	if w.bus == nil || w.projection == nil {
		return nil
	}
	return w.bus.Subscribe(ctx, application.EventTypeAccessChanged, accessProjectionGroup, w.projection.Handle)
}

// tick runs one sweep (when enabled) and one relay pass. The sweep runs first so
// its expiry events go out in the same pass.
func (w *WorkerApp) tick(ctx context.Context) error {
	if w.sweepEnabled {
		if _, err := w.sweeper.RunOnce(ctx); err != nil {
			return err
		}
	}
	return w.outboxRelay.RunOnce(ctx)
}

func (w *WorkerApp) Close() error {
	if w.storage != nil {
		return w.storage.Close()
	}
	return nil
}

func normalizeAddr(port string) string {
	value := strings.TrimSpace(port)
	if value == "" {
		return ":8080"
	}
	if strings.HasPrefix(value, ":") {
		return value
	}
	return ":" + value
}
