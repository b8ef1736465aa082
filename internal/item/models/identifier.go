package models

import (
	"sort"
	"strings"

	dErrors "attestor/pkg/domain-errors"
)

// IdentifierKind separates dedup-relevant identifiers from descriptive ones.
type IdentifierKind string

const (
	// KindCanonical identifiers form the dedup key. A canonical identifier,
	// once bound to a dfid, stays bound to it forever.
	KindCanonical IdentifierKind = "canonical"
	// KindContextual identifiers are descriptive only and never participate
	// in dedup.
	KindContextual IdentifierKind = "contextual"
)

// Identifier names a real-world record in some namespace, e.g.
// {gs1, gtin, 0761234567890}.
type Identifier struct {
	Namespace string         `json:"namespace"`
	Key       string         `json:"key"`
	Value     string         `json:"value"`
	Kind      IdentifierKind `json:"kind"`
}

// Validate enforces the trust-boundary invariants for a single identifier.
func (i Identifier) Validate() error {
	if strings.TrimSpace(i.Namespace) == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "identifier namespace is required")
	}
	if strings.TrimSpace(i.Key) == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "identifier key is required")
	}
	if strings.TrimSpace(i.Value) == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "identifier value is required")
	}
	if i.Kind != KindCanonical && i.Kind != KindContextual {
		return dErrors.Newf(dErrors.CodeInvalidInput, "unknown identifier kind %q", i.Kind)
	}
	return nil
}

// ValidateIdentifiers validates a full identifier set.
func ValidateIdentifiers(ids []Identifier) error {
	for _, i := range ids {
		if err := i.Validate(); err != nil {
			return err
		}
	}
	return nil
}

const tupleSep = "\x1f"

// Tuple is the normalized index form of a canonical identifier. Namespace and
// key are lowercased so alias casing differences cannot split a record across
// dfids; values are compared verbatim.
func (i Identifier) Tuple() string {
	return strings.ToLower(strings.TrimSpace(i.Namespace)) + tupleSep +
		strings.ToLower(strings.TrimSpace(i.Key)) + tupleSep +
		strings.TrimSpace(i.Value)
}

// SplitTuple unpacks a tuple into its namespace, key, and value parts.
func SplitTuple(tuple string) (namespace, key, value string) {
	parts := strings.SplitN(tuple, tupleSep, 3)
	for len(parts) < 3 {
		parts = append(parts, "")
	}
	return parts[0], parts[1], parts[2]
}

// CanonicalTuples extracts the deduplicated, deterministically ordered tuples
// of the canonical identifiers. Ordering is lexicographic by
// (namespace, key, value); this is the documented precedence rule — the
// resolver never infers priority between namespaces, it either finds exactly
// one bound dfid or fails.
func CanonicalTuples(ids []Identifier) []string {
	seen := make(map[string]struct{})
	var tuples []string
	for _, i := range ids {
		if i.Kind != KindCanonical {
			continue
		}
		t := i.Tuple()
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		tuples = append(tuples, t)
	}
	sort.Strings(tuples)
	return tuples
}

// CanonicalKey derives the composite dedup key: the sorted canonical tuples
// joined with a record separator. Empty when the set has no canonical
// identifiers, meaning the submission can never be deduplicated.
func CanonicalKey(ids []Identifier) string {
	return strings.Join(CanonicalTuples(ids), "\x1e")
}

// UnionIdentifiers merges src into dst, dropping duplicates by
// (tuple, kind). Returns the merged set and whether anything was added.
func UnionIdentifiers(dst, src []Identifier) ([]Identifier, bool) {
	type dedupKey struct {
		tuple string
		kind  IdentifierKind
	}
	seen := make(map[dedupKey]struct{}, len(dst))
	for _, i := range dst {
		seen[dedupKey{i.Tuple(), i.Kind}] = struct{}{}
	}
	added := false
	for _, i := range src {
		k := dedupKey{i.Tuple(), i.Kind}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		dst = append(dst, i)
		added = true
	}
	return dst, added
}
