package model

import (
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// NewID generates a new ULID string for use as a run identifier.
func NewID() string {
	return ulid.Make().String()
}

// NewLogicalID generates the stable identity shared by all retry attempts of
// one invocation. Flow run identities use the same form.
func NewLogicalID() string {
	return uuid.NewString()
}
