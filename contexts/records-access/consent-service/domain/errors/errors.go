package errors

import "errors"

var (
	ErrInvalidDocumentID   = errors.New("invalid document id")
	ErrInvalidRequesterID  = errors.New("invalid requester id")
	ErrInvalidOwnerID      = errors.New("invalid owner id")
	ErrInvalidPermissionID = errors.New("invalid permission id")
	ErrReasonRequired      = errors.New("reason is required")
	ErrInvalidExpiry       = errors.New("expires_in_days must be between 1 and 36500")
	ErrSelfRequest         = errors.New("owner cannot request access to own document")
	ErrInvalidAccessAction = errors.New("invalid document access action")

	ErrPermissionNotFound = errors.New("permission not found")
	ErrDocumentNotFound   = errors.New("document not found")
	ErrNotOwner           = errors.New("actor is not the document owner")
	ErrInvalidState       = errors.New("transition not allowed from current status")
	ErrDuplicateRequest   = errors.New("live access request already exists")
	ErrAccessDenied       = errors.New("access denied")
	ErrStorageUnavailable = errors.New("storage unavailable")

	ErrDuplicateAuditEntry = errors.New("audit entry already recorded")
)
