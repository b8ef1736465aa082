package store

import (
	"context"

	"attestor/internal/provenance/models"
	"attestor/internal/storage"
	id "attestor/pkg/domain"
)

const entityHistory = "storage_history"

// WriteThrough composes the authoritative timeline cache with the lagging
// durable tier. Durable inserts are idempotent, so replayed replication ops
// are harmless.
type WriteThrough struct {
	mem     *InMemory
	durable Durable
	repl    *storage.Replicator
	lazy    bool
}

// NewWriteThrough wires the cache, durable store, and replicator.
func NewWriteThrough(mem *InMemory, durable Durable, repl *storage.Replicator, lazy bool) *WriteThrough {
	return &WriteThrough{mem: mem, durable: durable, repl: repl, lazy: lazy}
}

// Hydrate loads timelines from the durable store. In lazy mode timelines are
// fetched on first read instead.
func (w *WriteThrough) Hydrate(ctx context.Context) error {
	if w.lazy {
		return nil
	}
	records, err := w.durable.LoadRecords(ctx)
	if err != nil {
		return err
	}
	w.mem.Hydrate(records)
	return nil
}

func (w *WriteThrough) Append(ctx context.Context, record *models.StorageHistoryRecord) error {
	if err := w.mem.Append(ctx, record); err != nil {
		return err
	}
	w.enqueueInsert(record.Clone())
	return nil
}

func (w *WriteThrough) Upsert(ctx context.Context, record *models.StorageHistoryRecord) (bool, error) {
	if w.lazy {
		// Fault the timeline in first so the seen set covers confirmations
		// replayed across restarts.
		if _, err := w.ListByDFID(ctx, record.DFID); err != nil {
			return false, err
		}
	}
	added, err := w.mem.Upsert(ctx, record)
	if err != nil || !added {
		return added, err
	}
	w.enqueueInsert(record.Clone())
	return true, nil
}

func (w *WriteThrough) ListByDFID(ctx context.Context, dfid id.DFID) ([]*models.StorageHistoryRecord, error) {
	records, err := w.mem.ListByDFID(ctx, dfid)
	if err != nil {
		return nil, err
	}
	if len(records) > 0 || !w.lazy {
		return records, nil
	}
	loaded, err := w.durable.ListByDFID(ctx, dfid)
	if err != nil {
		return nil, err
	}
	w.mem.Hydrate(loaded)
	return w.mem.ListByDFID(ctx, dfid)
}

func (w *WriteThrough) enqueueInsert(snapshot *models.StorageHistoryRecord) {
	w.repl.Enqueue(storage.Op{
		Entity: entityHistory,
		ID:     string(snapshot.DFID),
		Name:   "insert_history_record",
		Apply: func(ctx context.Context) error {
			return w.durable.InsertRecord(ctx, snapshot)
		},
	})
}

var _ Store = (*WriteThrough)(nil)
