package models

import (
	"time"

	"github.com/google/uuid"

	id "attestor/pkg/domain"
	dErrors "attestor/pkg/domain-errors"
)

// LocalItem is a pre-commitment staging record: captured identifiers and
// payload that have not yet been resolved against the dedup index or pushed
// into any circuit.
type LocalItem struct {
	ID           id.LocalItemID `json:"id"`
	Owner        id.MemberID    `json:"owner"`
	Identifiers  []Identifier   `json:"identifiers"`
	EnrichedData map[string]any `json:"enriched_data"`
	CreatedAt    time.Time      `json:"created_at"`
}

// NewLocalItem validates and stages a submission for a later push.
func NewLocalItem(owner id.MemberID, identifiers []Identifier, enriched map[string]any, now time.Time) (*LocalItem, error) {
	if owner.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "local item owner is required")
	}
	if len(identifiers) == 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "at least one identifier is required")
	}
	if err := ValidateIdentifiers(identifiers); err != nil {
		return nil, err
	}
	return &LocalItem{
		ID:           id.LocalItemID(uuid.New()),
		Owner:        owner,
		Identifiers:  append([]Identifier(nil), identifiers...),
		EnrichedData: CloneEnrichedData(enriched),
		CreatedAt:    now,
	}, nil
}

// Clone returns a deep copy safe to hand out of the store.
func (l *LocalItem) Clone() *LocalItem {
	cp := *l
	cp.Identifiers = append([]Identifier(nil), l.Identifiers...)
	cp.EnrichedData = CloneEnrichedData(l.EnrichedData)
	return &cp
}
