package store

import (
	"context"
	"errors"
	"time"

	"attestor/internal/item/models"
	"attestor/internal/storage"
	id "attestor/pkg/domain"
	"attestor/pkg/platform/sentinel"
)

const entityItem = "item"

// WriteThrough composes the authoritative cache with the lagging durable
// tier. Mutations apply to memory synchronously and return; the matching
// durable writes are enqueued on the replicator afterwards, outside any
// guard. Durable failures never roll back the cache.
type WriteThrough struct {
	mem     *InMemory
	durable Durable
	repl    *storage.Replicator
	lazy    bool
}

// NewWriteThrough wires the cache, durable store, and replicator. With lazy
// hydration, Hydrate loads only the dedup index (compact, needed for
// correctness); reads, resolution, and mutations fault cold items in from
// Postgres on a cache miss.
func NewWriteThrough(mem *InMemory, durable Durable, repl *storage.Replicator, lazy bool) *WriteThrough {
	return &WriteThrough{mem: mem, durable: durable, repl: repl, lazy: lazy}
}

// Hydrate loads cache state from the durable store on startup.
func (w *WriteThrough) Hydrate(ctx context.Context) error {
	index, err := w.durable.LoadIndex(ctx)
	if err != nil {
		return err
	}
	if w.lazy {
		w.mem.Hydrate(nil, index)
		return nil
	}
	items, err := w.durable.LoadItems(ctx)
	if err != nil {
		return err
	}
	w.mem.Hydrate(items, index)
	return nil
}

func (w *WriteThrough) FindByDFID(ctx context.Context, dfid id.DFID) (*models.Item, error) {
	item, err := w.mem.FindByDFID(ctx, dfid)
	if err == nil {
		return item, nil
	}
	if !w.lazy || !errors.Is(err, sentinel.ErrNotFound) {
		return nil, err
	}
	if err := w.faultIn(ctx, dfid); err != nil {
		return nil, err
	}
	return w.mem.FindByDFID(ctx, dfid)
}

// faultIn loads one item from the durable tier into the cache. Existing
// cache entries win, so a write racing the fault-in is never clobbered.
func (w *WriteThrough) faultIn(ctx context.Context, dfid id.DFID) error {
	item, err := w.durable.FindByDFID(ctx, dfid)
	if err != nil {
		return err
	}
	w.mem.Hydrate([]*models.Item{item}, nil)
	return nil
}

func (w *WriteThrough) Resolve(ctx context.Context, identifiers []models.Identifier, enriched map[string]any, now time.Time) (models.ResolveResult, error) {
	res, err := w.mem.Resolve(ctx, identifiers, enriched, now)
	var missing *missingItemError
	if w.lazy && errors.As(err, &missing) {
		// The index matched an item not yet faulted into the cache.
		if ferr := w.faultIn(ctx, missing.dfid); ferr != nil {
			return models.ResolveResult{}, ferr
		}
		res, err = w.mem.Resolve(ctx, identifiers, enriched, now)
	}
	if err != nil {
		return models.ResolveResult{}, err
	}

	snapshot := res.Item.Clone()
	tuples := append([]string(nil), res.BoundTuples...)
	switch res.Outcome {
	case models.OutcomeNewItemCreated:
		w.repl.Enqueue(storage.Op{
			Entity: entityItem,
			ID:     string(snapshot.DFID),
			Name:   "insert_item",
			Apply: func(ctx context.Context) error {
				return w.durable.InsertItem(ctx, snapshot)
			},
		})
	case models.OutcomeEnriched:
		w.repl.Enqueue(storage.Op{
			Entity: entityItem,
			ID:     string(snapshot.DFID),
			Name:   "update_item",
			Apply: func(ctx context.Context) error {
				return w.durable.UpdateItem(ctx, snapshot)
			},
		})
	}
	if len(tuples) > 0 {
		w.repl.Enqueue(storage.Op{
			Entity: entityItem,
			ID:     string(snapshot.DFID),
			Name:   "bind_tuples",
			Apply: func(ctx context.Context) error {
				return w.durable.BindTuples(ctx, snapshot.DFID, tuples)
			},
		})
	}
	return res, nil
}

func (w *WriteThrough) Execute(ctx context.Context, dfid id.DFID, validate func(*models.Item) error, mutate func(*models.Item)) (*models.Item, error) {
	item, err := w.mem.Execute(ctx, dfid, validate, mutate)
	if w.lazy && errors.Is(err, sentinel.ErrNotFound) {
		if ferr := w.faultIn(ctx, dfid); ferr != nil {
			return nil, ferr
		}
		item, err = w.mem.Execute(ctx, dfid, validate, mutate)
	}
	if err != nil {
		return nil, err
	}
	snapshot := item.Clone()
	w.repl.Enqueue(storage.Op{
		Entity: entityItem,
		ID:     string(snapshot.DFID),
		Name:   "update_item",
		Apply: func(ctx context.Context) error {
			return w.durable.UpdateItem(ctx, snapshot)
		},
	})
	return item, nil
}

var _ Store = (*WriteThrough)(nil)
