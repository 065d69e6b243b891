package postgresadapter

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// LivePairIndex enforces at most one pending or active permission per (document, requester).
const LivePairIndex = "access_permissions_live_pair"

// newestPermissionFirst breaks created_at ties by insertion order.
const newestPermissionFirst = "created_at DESC, seq DESC"

const schema = `
CREATE TABLE IF NOT EXISTS medical_reports (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS access_permissions (
	seq BIGSERIAL UNIQUE,
	permission_id TEXT PRIMARY KEY,
	document_id TEXT NOT NULL,
	requester_id TEXT NOT NULL,
	owner_id TEXT NOT NULL,
	status TEXT NOT NULL CHECK (status IN ('pending', 'active', 'revoked', 'expired')),
	reason TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	granted_at TIMESTAMPTZ,
	expires_at TIMESTAMPTZ,
	updated_at TIMESTAMPTZ NOT NULL
);
ALTER TABLE access_permissions ADD COLUMN IF NOT EXISTS seq BIGSERIAL UNIQUE;

CREATE UNIQUE INDEX IF NOT EXISTS access_permissions_live_pair
	ON access_permissions (document_id, requester_id)
	WHERE status IN ('pending', 'active');
CREATE INDEX IF NOT EXISTS access_permissions_owner_idx ON access_permissions (owner_id, created_at DESC, seq DESC);
CREATE INDEX IF NOT EXISTS access_permissions_requester_idx ON access_permissions (requester_id, created_at DESC, seq DESC);
CREATE INDEX IF NOT EXISTS access_permissions_expiry_idx ON access_permissions (expires_at) WHERE status = 'active';

CREATE TABLE IF NOT EXISTS consent_audit_entries (
	seq BIGSERIAL UNIQUE,
	entry_id TEXT PRIMARY KEY,
	actor_id TEXT NOT NULL,
	actor_role TEXT NOT NULL,
	document_id TEXT NOT NULL DEFAULT '',
	permission_id TEXT NOT NULL DEFAULT '',
	action TEXT NOT NULL,
	detail TEXT NOT NULL DEFAULT '',
	occurred_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS consent_audit_actor_idx ON consent_audit_entries (actor_id, occurred_at DESC);
CREATE INDEX IF NOT EXISTS consent_audit_document_idx ON consent_audit_entries (document_id, occurred_at DESC);

CREATE TABLE IF NOT EXISTS consent_outbox (
	outbox_id TEXT PRIMARY KEY,
	event_type TEXT NOT NULL,
	partition_key TEXT NOT NULL DEFAULT '',
	payload JSONB NOT NULL,
	status TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	published_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS consent_outbox_pending_idx ON consent_outbox (created_at) WHERE status = 'pending';
`

// EnsureSchema creates the consent tables and indexes when they are missing.
func EnsureSchema(ctx context.Context, db *gorm.DB) error {
	if err := db.WithContext(ctx).Exec(schema).Error; err != nil {
		return fmt.Errorf("ensure consent schema: %w", mapStorageError(err))
	}
	return nil
}
