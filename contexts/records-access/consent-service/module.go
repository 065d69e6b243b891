package consent

import (
	"log/slog"

	eventsadapter "medvault/contexts/records-access/consent-service/adapters/events"
	httpadapter "medvault/contexts/records-access/consent-service/adapters/http"
	"medvault/contexts/records-access/consent-service/adapters/memory"
	"medvault/contexts/records-access/consent-service/application/commands"
	"medvault/contexts/records-access/consent-service/application/queries"
	"medvault/contexts/records-access/consent-service/application/workers"
	"medvault/contexts/records-access/consent-service/ports"
)

// Module is the consent-service composition root exposed to runtime wiring.
type Module struct {
	Handler httpadapter.Handler
	Relay   workers.OutboxRelay
	Sweeper workers.ExpirySweeper

	// Set by NewInMemoryModule only.
	Store     *memory.Store
	AuditLog  *memory.AuditLog
	Documents *memory.DocumentRegistry
}

// Dependencies captures all runtime ports/config required by NewModule.
type Dependencies struct {
	Permissions ports.PermissionRepository
	AuditLog    ports.AuditLog
	Outbox      ports.OutboxRepository
	Documents   ports.DocumentRegistry
	Publisher   ports.AccessChangedPublisher
	Clock       ports.Clock
	IDGenerator ports.IDGenerator
	BatchSize   int
	Logger      *slog.Logger
}

// NewModule wires the consent use cases, workers and transport handler from explicit ports.
func NewModule(deps Dependencies) Module {
	publisher := deps.Publisher
	if publisher == nil {
		publisher = eventsadapter.NewPublisher(deps.Logger)
	}

	canAccess := queries.CanAccessUseCase{
		Repository: deps.Permissions,
		Documents:  deps.Documents,
		Clock:      deps.Clock,
		Logger:     deps.Logger,
	}

	handler := httpadapter.Handler{
		RequestAccess: commands.RequestAccessUseCase{
			Repository:  deps.Permissions,
			Documents:   deps.Documents,
			Clock:       deps.Clock,
			IDGenerator: deps.IDGenerator,
			Logger:      deps.Logger,
		},
		GrantAccess: commands.GrantAccessUseCase{
			Repository:  deps.Permissions,
			Clock:       deps.Clock,
			IDGenerator: deps.IDGenerator,
			Logger:      deps.Logger,
		},
		RevokeAccess: commands.RevokeAccessUseCase{
			Repository:  deps.Permissions,
			Clock:       deps.Clock,
			IDGenerator: deps.IDGenerator,
			Logger:      deps.Logger,
		},
		RecordDocumentAccess: commands.RecordDocumentAccessUseCase{
			CanAccess:   canAccess,
			AuditLog:    deps.AuditLog,
			Clock:       deps.Clock,
			IDGenerator: deps.IDGenerator,
			Logger:      deps.Logger,
		},
		CanAccess:        canAccess,
		ListForOwner:     queries.ListForOwnerUseCase{Repository: deps.Permissions},
		ListForRequester: queries.ListForRequesterUseCase{Repository: deps.Permissions},
		ListAccessible: queries.ListAccessibleDocumentsUseCase{
			Repository: deps.Permissions,
			Clock:      deps.Clock,
		},
		QueryAudit: queries.QueryAuditUseCase{
			AuditLog:  deps.AuditLog,
			Documents: deps.Documents,
		},
		Stats:  queries.PermissionStatsUseCase{Repository: deps.Permissions},
		Logger: deps.Logger,
	}

	return Module{
		Handler: handler,
		Relay: workers.OutboxRelay{
			Outbox:    deps.Outbox,
			Publisher: publisher,
			Clock:     deps.Clock,
			BatchSize: deps.BatchSize,
			Logger:    deps.Logger,
		},
		Sweeper: workers.ExpirySweeper{
			Permissions: deps.Permissions,
			IDGenerator: deps.IDGenerator,
			Clock:       deps.Clock,
			BatchSize:   deps.BatchSize,
			Logger:      deps.Logger,
		},
	}
}

// NewInMemoryModule builds a development/testing module with in-memory adapters.
// Documents must be registered on module.Documents before access can be requested.
func NewInMemoryModule(logger *slog.Logger) Module {
	auditLog := memory.NewAuditLog()
	store := memory.NewStore(auditLog)
	documents := memory.NewDocumentRegistry()
	module := NewModule(Dependencies{
		Permissions: store,
		AuditLog:    auditLog,
		Outbox:      store,
		Documents:   documents,
		Publisher:   eventsadapter.NewPublisher(logger),
		Clock:       store,
		IDGenerator: store,
		Logger:      logger,
	})
	module.Store = store
	module.AuditLog = auditLog
	module.Documents = documents
	return module
}
