// Package models defines the append-only provenance timeline entries.
package models

import (
	"strings"
	"time"

	id "attestor/pkg/domain"
	dErrors "attestor/pkg/domain-errors"
)

// StorageHistoryRecord is one entry in an item's provenance timeline: a
// confirmed or pending external commit through an adapter. Records are
// append-only; nothing in the system updates or deletes them, including
// unpublish.
type StorageHistoryRecord struct {
	DFID           id.DFID        `json:"dfid"`
	AdapterKind    id.AdapterKind `json:"adapter_kind"`
	ContentAddress string         `json:"content_address"`
	// LedgerReference is empty while the ledger step is still pending.
	LedgerReference string      `json:"ledger_reference,omitempty"`
	Network         string      `json:"network,omitempty"`
	TriggeredBy     id.MemberID `json:"triggered_by"`
	StoredAt        time.Time   `json:"stored_at"`
}

// Validate checks the fields every record must carry.
func (r *StorageHistoryRecord) Validate() error {
	if _, err := id.ParseDFID(string(r.DFID)); err != nil {
		return err
	}
	if !r.AdapterKind.Valid() {
		return dErrors.Newf(dErrors.CodeInvalidInput, "unknown adapter kind %q", r.AdapterKind)
	}
	if strings.TrimSpace(r.ContentAddress) == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "history record requires a content address")
	}
	return nil
}

// Key identifies a record for idempotent upserts: the same ledger reference
// observed twice for the same dfid and adapter is one event.
func (r *StorageHistoryRecord) Key() string {
	return string(r.DFID) + "\x1f" + string(r.AdapterKind) + "\x1f" + r.LedgerReference
}

// Clone returns a copy safe to hand out of the store.
func (r *StorageHistoryRecord) Clone() *StorageHistoryRecord {
	cp := *r
	return &cp
}
