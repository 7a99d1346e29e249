package idgen

import (
	"github.com/google/uuid"
)

// ID prefixes, one per kind of identifier
const (
	PrefixIntervention = "blk_"
	PrefixRequest      = "req_"
)

// NewIntervention returns a blk_ ID. Intervention IDs are UUIDv7, so they
// sort by the time the block screen was shown.
func NewIntervention() string {
	return PrefixIntervention + uuid.Must(uuid.NewV7()).String()
}

// NewRequest returns a random req_ ID for HTTP request correlation
func NewRequest() string {
	return PrefixRequest + uuid.NewString()
}
