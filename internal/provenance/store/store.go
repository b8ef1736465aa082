// Package store persists storage-history records. The timeline is
// append-only: the interface offers append and an idempotent upsert for
// ledger-watcher confirmations, never update or delete.
package store

import (
	"context"

	"attestor/internal/provenance/models"
	id "attestor/pkg/domain"
)

// Store is the provenance surface used by services.
type Store interface {
	// Append adds a record to the item's timeline unconditionally.
	Append(ctx context.Context, record *models.StorageHistoryRecord) error
	// Upsert adds the record unless one with the same (dfid, adapter kind,
	// ledger reference) already exists. Reports whether a record was added.
	Upsert(ctx context.Context, record *models.StorageHistoryRecord) (bool, error)
	// ListByDFID returns the item's timeline in insertion order.
	ListByDFID(ctx context.Context, dfid id.DFID) ([]*models.StorageHistoryRecord, error)
}

// Durable is the lagging Postgres tier behind the write-through store.
type Durable interface {
	InsertRecord(ctx context.Context, record *models.StorageHistoryRecord) error
	ListByDFID(ctx context.Context, dfid id.DFID) ([]*models.StorageHistoryRecord, error)
	LoadRecords(ctx context.Context) ([]*models.StorageHistoryRecord, error)
}
