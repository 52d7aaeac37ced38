// Package uuid generates the time-ordered IDs used for records, tasks and
// archive keys.
package uuid

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator creates UUID v7 strings.
type Generator struct{}

// New creates a new Generator.
func New() *Generator {
	return &Generator{}
}

// NewID returns a UUID7 string.
func (Generator) NewID() (string, error) {
	id, err := NewRaw()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// NewRaw returns a UUID7, for callers that store the binary form.
func NewRaw() (uuid.UUID, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.Nil, fmt.Errorf("generate uuid7: %w", err)
	}
	return id, nil
}
