package services

import (
	"time"

	"medvault/contexts/records-access/consent-service/domain/entities"
)

// Decide derives an access decision from the document owner, the live permission for
// (document, requester) if any, and the evaluation instant. It has no side effects.
//
// Expiry is derived here from ExpiresAt; a stored Active status is not sufficient.
func Decide(
	documentID string,
	ownerID string,
	requesterID string,
	live *entities.AccessPermission,
	asOf time.Time,
) entities.AccessDecision {
	decision := entities.AccessDecision{
		DocumentID:  documentID,
		RequesterID: requesterID,
		CheckedAt:   asOf.UTC(),
	}

	if requesterID == ownerID {
		decision.Allowed = true
		decision.Reason = entities.DecisionReasonOwner
		return decision
	}
	if live == nil || live.DocumentID != documentID || live.RequesterID != requesterID {
		decision.Reason = entities.DecisionReasonNoActiveGrant
		return decision
	}

	decision.PermissionID = live.PermissionID
	switch live.Status {
	case entities.PermissionStatusActive:
		if live.ExpiredAt(asOf) {
			decision.Reason = entities.DecisionReasonExpired
			return decision
		}
		decision.Allowed = true
		decision.Reason = entities.DecisionReasonActiveGrant
	case entities.PermissionStatusExpired:
		decision.Reason = entities.DecisionReasonExpired
	default:
		decision.Reason = entities.DecisionReasonNoActiveGrant
	}
	return decision
}
