package models

import (
	"fmt"
	"strings"

	id "attestor/pkg/domain"
)

// ResolveOutcome reports how an identity resolution concluded.
type ResolveOutcome string

const (
	// OutcomeNewItemCreated means no canonical identifier matched and a fresh
	// dfid was allocated.
	OutcomeNewItemCreated ResolveOutcome = "new_item_created"
	// OutcomeEnriched means the submission merged into an existing item.
	OutcomeEnriched ResolveOutcome = "enriched"
)

// ResolveResult is the outcome of one dedup-index resolution.
type ResolveResult struct {
	Item    *Item
	Outcome ResolveOutcome
	// BoundTuples are the canonical tuples newly bound to the dfid by this
	// resolution; the write-through layer replicates exactly these.
	BoundTuples []string
}

// IdentityConflictError reports canonical identifiers that map to more than
// one existing dfid. It is never resolved by guessing: the caller must fix
// the identifier set. Namespace/alias mismatches silently picking a winner
// were the single largest source of orphaned records upstream.
type IdentityConflictError struct {
	Matches map[string]id.DFID // tuple → bound dfid
}

func (e *IdentityConflictError) Error() string {
	parts := make([]string, 0, len(e.Matches))
	for tuple, dfid := range e.Matches {
		parts = append(parts, fmt.Sprintf("%s→%s", strings.ReplaceAll(tuple, tupleSep, ":"), dfid))
	}
	return "canonical identifiers match multiple records: " + strings.Join(parts, ", ")
}
