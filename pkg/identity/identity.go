// Package identity derives canonical entity identifiers from free-text names.
//
// The same normalized name and entity type always produce a byte-identical
// ID, independent of process, platform, or call order, so that every agent's
// mention of an entity resolves to the same graph node.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidEntityName indicates the name is empty after normalization.
	ErrInvalidEntityName = errors.New("entity name is empty after normalization")

	// ErrInvalidEntityType indicates an entity type other than "drug" or "disease".
	ErrInvalidEntityType = errors.New("entity type must be \"drug\" or \"disease\"")
)

// EntityType constrains identity generation to the two canonical entity kinds.
type EntityType string

const (
	EntityDrug    EntityType = "drug"
	EntityDisease EntityType = "disease"
)

// digestLength is the number of hex characters kept from the SHA-256 digest.
const digestLength = 16

// GenerateID maps a free-text entity name and type to a stable identifier:
// "drug_<16 hex>" or "disease_<16 hex>". It is a pure function of the
// normalized name.
func GenerateID(name string, entityType EntityType) (string, error) {
	if entityType != EntityDrug && entityType != EntityDisease {
		return "", fmt.Errorf("%w: got %q", ErrInvalidEntityType, entityType)
	}

	normalized := Normalize(name)
	if normalized == "" {
		return "", fmt.Errorf("%w: input %q", ErrInvalidEntityName, name)
	}

	sum := sha256.Sum256([]byte(normalized))
	digest := hex.EncodeToString(sum[:])[:digestLength]
	return string(entityType) + "_" + digest, nil
}

// Normalize lowercases, trims, collapses internal whitespace, and strips all
// characters except alphanumerics, spaces, and hyphens. The result is the
// canonical form hashed by GenerateID; two names normalizing to the same
// string are the same entity.
func Normalize(name string) string {
	lowered := strings.ToLower(strings.TrimSpace(name))

	var b strings.Builder
	b.Grow(len(lowered))
	for _, r := range lowered {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		case r == ' ', r == '\t', r == '\n':
			b.WriteByte(' ')
		}
	}

	return strings.Join(strings.Fields(b.String()), " ")
}
