package utils

import (
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// NewID returns an opaque identifier for a live connection.
func NewID() string {
	return uuid.NewString()
}

// NewRecordID returns a lexically sortable identifier for persisted records.
// IDs minted within the same millisecond still increase monotonically.
func NewRecordID() string {
	return ulid.Make().String()
}
