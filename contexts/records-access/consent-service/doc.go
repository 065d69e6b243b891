// Package consent implements the record-access consent service inside medvault.
//
// Layering:
// - domain: permission state machine, authorization decision, errors
// - application: commands/queries/workers using explicit ports
// - ports: stable boundaries for persistence, audit, registry, events
// - adapters: concrete HTTP, memory, postgres, sqlite, and event publisher implementations
// - transport: module-private DTOs for HTTP contracts
//
// Boundary notes:
// - Documents are owned by the external registry; this module references them by id only.
// - Expiry is derived at decision time. Stored status stays Active until the optional sweep
//   runs, so never treat a stored Active status as proof of access.
package consent
