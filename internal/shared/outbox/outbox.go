// Package outbox holds the row states shared by every outbox table in medvault.
// A row is written pending in the same transaction as the state change it
// describes and is flipped to published once the relay hands it to the bus.
package outbox

const (
	StatusPending   = "pending"
	StatusPublished = "published"
)
