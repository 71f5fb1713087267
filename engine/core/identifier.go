package core

import (
	"github.com/google/uuid"
)

// Identifier tags long-lived renderer objects (paths, targets) so their
// lifecycle can be followed in the logs.
type Identifier uuid.UUID

func NewIdentifier() Identifier {
	return Identifier(uuid.New())
}

func (id Identifier) String() string {
	return uuid.UUID(id).String()
}

// Short returns the first block of the textual form.
func (id Identifier) Short() string {
	return id.String()[:8]
}
