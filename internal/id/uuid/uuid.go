// Package uuid generates cycle identifiers.
package uuid

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator implements monitor.IDGenerator with UUIDv7, so identifiers of
// later cycles sort after earlier ones.
type Generator struct{}

// New creates a Generator.
func New() *Generator {
	return &Generator{}
}

// NewID returns a UUIDv7 string.
func (Generator) NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate uuid7: %w", err)
	}
	return id.String(), nil
}
