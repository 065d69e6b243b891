package postgresadapter

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	domainerrors "medvault/contexts/records-access/consent-service/domain/errors"

	"github.com/jackc/pgx/v5/pgconn"
)

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func constraintName(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.ConstraintName
	}
	return ""
}

// classifyPermissionInsertError reports ErrDuplicateRequest only for the live-pair
// index. Other unique violations, such as a permission id collision, stay internal.
func classifyPermissionInsertError(err error) error {
	if isUniqueViolation(err) && constraintName(err) == LivePairIndex {
		return domainerrors.ErrDuplicateRequest
	}
	return fmt.Errorf("inserting permission: %w", err)
}

// mapStorageError wraps connection-level failures in ErrStorageUnavailable and
// leaves domain and statement errors untouched.
func mapStorageError(err error) error {
	if err == nil {
		return nil
	}
	if isUnavailable(err) {
		return fmt.Errorf("%w: %w", domainerrors.ErrStorageUnavailable, err)
	}
	return err
}

func isUnavailable(err error) bool {
	if errors.Is(err, domainerrors.ErrStorageUnavailable) {
		return false
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 08 is connection exception, 57P0x is operator shutdown.
		return len(pgErr.Code) == 5 && (pgErr.Code[:2] == "08" || pgErr.Code[:4] == "57P0")
	}
	var netErr net.Error
	return errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.As(err, &netErr) ||
		pgconn.Timeout(err)
}
