package models

import (
	"time"

	id "attestor/pkg/domain"
	dErrors "attestor/pkg/domain-errors"
)

// ItemStatus is the lifecycle flag of a deduplicated item.
type ItemStatus string

const (
	StatusActive ItemStatus = "active"
	// StatusDeprecated is terminal. Items are never physically deleted;
	// history and circuit relations persist for audit.
	StatusDeprecated ItemStatus = "deprecated"
)

// Item is the aggregate root for a deduplicated real-world record.
//
// Invariants:
//   - DFID is assigned once and its canonical-identifier binding never changes
//   - Status transitions: active → deprecated only; deprecated is terminal
//   - EnrichedData merges are per-field: an incoming value replaces the stored
//     one only when it differs; fields absent from the incoming payload are
//     preserved
type Item struct {
	DFID         id.DFID        `json:"dfid"`
	Identifiers  []Identifier   `json:"identifiers"`
	EnrichedData map[string]any `json:"enriched_data"`
	Status       ItemStatus     `json:"status"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// NewItem allocates a fresh item with a new dfid.
func NewItem(identifiers []Identifier, enriched map[string]any, now time.Time) (*Item, error) {
	if err := ValidateIdentifiers(identifiers); err != nil {
		return nil, err
	}
	dfid, err := id.NewDFID()
	if err != nil {
		return nil, err
	}
	return &Item{
		DFID:         dfid,
		Identifiers:  append([]Identifier(nil), identifiers...),
		EnrichedData: CloneEnrichedData(enriched),
		Status:       StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

func (it *Item) IsActive() bool { return it.Status == StatusActive }

// CanDeprecate checks the active → deprecated transition.
func (it *Item) CanDeprecate() error {
	if it.Status == StatusDeprecated {
		return dErrors.New(dErrors.CodeInvariantViolation, "item is already deprecated")
	}
	return nil
}

// ApplyDeprecation transitions the item to deprecated status.
// Call CanDeprecate first to validate the transition.
func (it *Item) ApplyDeprecation(now time.Time) {
	it.Status = StatusDeprecated
	it.UpdatedAt = now
}

// Enrich merges an incoming submission into the item: per-field merge of the
// enriched payload plus union of identifiers. Reports whether anything
// changed so stores can skip no-op durable writes.
func (it *Item) Enrich(identifiers []Identifier, enriched map[string]any, now time.Time) bool {
	merged, dataChanged := MergeEnrichedData(it.EnrichedData, enriched)
	it.EnrichedData = merged
	ids, idsChanged := UnionIdentifiers(it.Identifiers, identifiers)
	it.Identifiers = ids
	if dataChanged || idsChanged {
		it.UpdatedAt = now
		return true
	}
	return false
}

// Clone returns a deep copy safe to hand out of the store.
func (it *Item) Clone() *Item {
	cp := *it
	cp.Identifiers = append([]Identifier(nil), it.Identifiers...)
	cp.EnrichedData = CloneEnrichedData(it.EnrichedData)
	return &cp
}

// MergeEnrichedData deep-merges src into a copy of dst. Per field: the
// incoming value wins only when it differs from the stored one; fields absent
// from src are preserved; nested maps merge recursively. Returns the merged
// map and whether it differs from dst.
func MergeEnrichedData(dst, src map[string]any) (map[string]any, bool) {
	out := CloneEnrichedData(dst)
	if out == nil {
		out = make(map[string]any)
	}
	changed := false
	for k, sv := range src {
		dv, exists := out[k]
		if !exists {
			out[k] = cloneValue(sv)
			changed = true
			continue
		}
		dm, dOK := dv.(map[string]any)
		sm, sOK := sv.(map[string]any)
		if dOK && sOK {
			merged, sub := MergeEnrichedData(dm, sm)
			out[k] = merged
			changed = changed || sub
			continue
		}
		if !valuesEqual(dv, sv) {
			out[k] = cloneValue(sv)
			changed = true
		}
	}
	return out, changed
}

// CloneEnrichedData deep-copies an enriched payload.
func CloneEnrichedData(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return CloneEnrichedData(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

func valuesEqual(a, b any) bool {
	am, aOK := a.(map[string]any)
	bm, bOK := b.(map[string]any)
	if aOK && bOK {
		if len(am) != len(bm) {
			return false
		}
		for k, av := range am {
			bv, ok := bm[k]
			if !ok || !valuesEqual(av, bv) {
				return false
			}
		}
		return true
	}
	as, aOK := a.([]any)
	bs, bOK := b.([]any)
	if aOK && bOK {
		if len(as) != len(bs) {
			return false
		}
		for i := range as {
			if !valuesEqual(as[i], bs[i]) {
				return false
			}
		}
		return true
	}
	return a == b
}
