package sqliteadapter

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// timeLayout keeps stored timestamps fixed-width so text ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store implements the permission, audit, outbox and document registry ports on an
// embedded SQLite database. The pool is limited to one connection, which serialises writers.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open creates or opens a SQLite database at path and applies the schema.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	sqlDB, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("pinging database: %w", mapStorageError(err))
	}

	s := &Store{db: sqlDB, logger: logger}
	if err := s.migrate(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

const schema = `
CREATE TABLE IF NOT EXISTS medical_reports (
    id TEXT PRIMARY KEY,
    owner_id TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS access_permissions (
    permission_id TEXT PRIMARY KEY,
    document_id TEXT NOT NULL,
    requester_id TEXT NOT NULL,
    owner_id TEXT NOT NULL,
    status TEXT NOT NULL CHECK(status IN ('pending','active','revoked','expired')),
    reason TEXT NOT NULL,
    created_at TEXT NOT NULL,
    granted_at TEXT,
    expires_at TEXT,
    updated_at TEXT NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS access_permissions_live_pair
    ON access_permissions(document_id, requester_id)
    WHERE status IN ('pending','active');
CREATE INDEX IF NOT EXISTS idx_access_permissions_owner ON access_permissions(owner_id, created_at);
CREATE INDEX IF NOT EXISTS idx_access_permissions_requester ON access_permissions(requester_id, created_at);

CREATE TABLE IF NOT EXISTS consent_audit_entries (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    entry_id TEXT NOT NULL UNIQUE,
    actor_id TEXT NOT NULL,
    actor_role TEXT NOT NULL CHECK(actor_role IN ('owner','requester','system')),
    document_id TEXT NOT NULL DEFAULT '',
    permission_id TEXT NOT NULL DEFAULT '',
    action TEXT NOT NULL,
    detail TEXT NOT NULL DEFAULT '',
    occurred_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_consent_audit_actor ON consent_audit_entries(actor_id, occurred_at);
CREATE INDEX IF NOT EXISTS idx_consent_audit_document ON consent_audit_entries(document_id, occurred_at);

CREATE TABLE IF NOT EXISTS consent_outbox (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    outbox_id TEXT NOT NULL UNIQUE,
    event_type TEXT NOT NULL,
    partition_key TEXT NOT NULL DEFAULT '',
    payload BLOB NOT NULL,
    status TEXT NOT NULL DEFAULT 'pending',
    created_at TEXT NOT NULL,
    published_at TEXT
);

CREATE INDEX IF NOT EXISTS idx_consent_outbox_pending ON consent_outbox(status, seq);
`

// checkStorable rejects times whose year does not fit timeLayout; such a value
// would be written but could never be parsed back.
func checkStorable(times ...*time.Time) error {
	for _, t := range times {
		if t == nil {
			continue
		}
		if year := t.UTC().Year(); year < 0 || year > 9999 {
			return fmt.Errorf("time %s is outside the storable range", t.UTC().Format(time.RFC3339))
		}
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseTime(value string) (time.Time, error) {
	t, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing stored time %q: %w", value, err)
	}
	return t.UTC(), nil
}

func parseTimePtr(value sql.NullString) (*time.Time, error) {
	if !value.Valid {
		return nil, nil
	}
	t, err := parseTime(value.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
