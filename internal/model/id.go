package model

import "github.com/oklog/ulid/v2"

// NewID generates a transfer identifier. ULIDs embed a millisecond
// timestamp, so journal ids sort by submission time, which keeps the
// created_at-ordered listings and the id ordering consistent.
func NewID() string {
	return ulid.Make().String()
}
