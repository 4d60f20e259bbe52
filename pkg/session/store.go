package session

import (
	"context"
	"errors"
)

// Common errors for storage operations.
var (
	// ErrNotFound is returned when no record exists for a user.
	// Backends also return it for records that fail to deserialize:
	// corruption is treated as absence, not as a fatal error.
	ErrNotFound = errors.New("session record not found")
	// ErrStorageClosed is returned when operating on a closed backend.
	ErrStorageClosed = errors.New("storage backend is closed")
)

// Store abstracts durable session persistence.
// Keys are stringified user identifiers; each key maps to exactly one
// serialized State, overwritten wholesale on every Save.
// Implementations must be safe for concurrent use.
type Store interface {
	// Load retrieves the record for userID.
	// Returns ErrNotFound if no record exists or the record is malformed.
	Load(ctx context.Context, userID string) (*State, error)

	// Save serializes the state and overwrites any prior record.
	// A failed Save must leave the previous record intact.
	Save(ctx context.Context, userID string, state *State) error

	// Exists reports whether a record exists for userID.
	Exists(ctx context.Context, userID string) (bool, error)

	// Close releases any resources held by the backend.
	Close() error
}
