package ingest

import (
	"fmt"
	"strings"
)

// DuplicatePolicy decides what happens when a document with the same
// original name is already stored.
type DuplicatePolicy string

const (
	// DuplicateAllow stores another document alongside the existing ones
	DuplicateAllow DuplicatePolicy = "allow"
	// DuplicateReject fails with types.ErrDuplicateDocument
	DuplicateReject DuplicatePolicy = "reject"
	// DuplicateReplace deletes the existing documents in the same transaction
	DuplicateReplace DuplicatePolicy = "replace"
)

// EmptyPolicy decides whether a document that yields no chunks is stored.
type EmptyPolicy string

const (
	// EmptyStore records the document with zero chunks
	EmptyStore EmptyPolicy = "store"
	// EmptyReject fails with types.ErrEmptyDocument and writes nothing
	EmptyReject EmptyPolicy = "reject"
)

// ParseDuplicatePolicy parses a policy name; empty means DuplicateAllow.
func ParseDuplicatePolicy(s string) (DuplicatePolicy, error) {
	switch p := DuplicatePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return DuplicateAllow, nil
	case DuplicateAllow, DuplicateReject, DuplicateReplace:
		return p, nil
	default:
		return "", fmt.Errorf("unknown duplicate policy %q (want allow, reject or replace)", s)
	}
}

// ParseEmptyPolicy parses a policy name; empty means EmptyStore.
func ParseEmptyPolicy(s string) (EmptyPolicy, error) {
	switch p := EmptyPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return EmptyStore, nil
	case EmptyStore, EmptyReject:
		return p, nil
	default:
		return "", fmt.Errorf("unknown empty document policy %q (want store or reject)", s)
	}
}
