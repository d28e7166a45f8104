// Package uuid mints job tokens from random UUIDs.
package uuid

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Generator creates hyphen-free UUIDv4 tokens. The result is 32 lowercase
// hex characters, so it is alphanumeric and safe in URLs and file names.
type Generator struct{}

// New creates a new Generator.
func New() *Generator {
	return &Generator{}
}

// NewID returns a fresh token.
func (Generator) NewID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate uuid4: %w", err)
	}
	return strings.ReplaceAll(id.String(), "-", ""), nil
}
