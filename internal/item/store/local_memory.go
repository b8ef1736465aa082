package store

import (
	"context"
	"errors"
	"sync"

	"attestor/internal/item/models"
	"attestor/internal/storage"
	id "attestor/pkg/domain"
	"attestor/pkg/platform/sentinel"
)

const entityLocalItem = "local_item"

// LocalInMemory is the cache tier for staging records. Staging records are
// single-writer (their owner), so a single RWMutex is enough.
type LocalInMemory struct {
	mu    sync.RWMutex
	items map[id.LocalItemID]*models.LocalItem
}

// NewLocalInMemory creates an empty staging cache.
func NewLocalInMemory() *LocalInMemory {
	return &LocalInMemory{items: make(map[id.LocalItemID]*models.LocalItem)}
}

func (s *LocalInMemory) Create(_ context.Context, item *models.LocalItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[item.ID]; ok {
		return sentinel.ErrConflict
	}
	s.items[item.ID] = item.Clone()
	return nil
}

func (s *LocalInMemory) FindByID(_ context.Context, localID id.LocalItemID) (*models.LocalItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[localID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return item.Clone(), nil
}

// Hydrate fills gaps from durable state; cached entries win.
func (s *LocalInMemory) Hydrate(items []*models.LocalItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range items {
		if _, ok := s.items[item.ID]; !ok {
			s.items[item.ID] = item.Clone()
		}
	}
}

// LocalWriteThrough trails staging-record creates into Postgres.
type LocalWriteThrough struct {
	mem     *LocalInMemory
	durable LocalDurable
	repl    *storage.Replicator
	lazy    bool
}

// NewLocalWriteThrough wires the staging cache, durable store, and replicator.
func NewLocalWriteThrough(mem *LocalInMemory, durable LocalDurable, repl *storage.Replicator, lazy bool) *LocalWriteThrough {
	return &LocalWriteThrough{mem: mem, durable: durable, repl: repl, lazy: lazy}
}

// Hydrate loads staging records from the durable store; in lazy mode reads
// fall through on miss instead.
func (w *LocalWriteThrough) Hydrate(ctx context.Context) error {
	if w.lazy {
		return nil
	}
	items, err := w.durable.LoadLocalItems(ctx)
	if err != nil {
		return err
	}
	w.mem.Hydrate(items)
	return nil
}

func (w *LocalWriteThrough) Create(ctx context.Context, item *models.LocalItem) error {
	if err := w.mem.Create(ctx, item); err != nil {
		return err
	}
	snapshot := item.Clone()
	w.repl.Enqueue(storage.Op{
		Entity: entityLocalItem,
		ID:     snapshot.ID.String(),
		Name:   "insert_local_item",
		Apply: func(ctx context.Context) error {
			return w.durable.InsertLocalItem(ctx, snapshot)
		},
	})
	return nil
}

func (w *LocalWriteThrough) FindByID(ctx context.Context, localID id.LocalItemID) (*models.LocalItem, error) {
	item, err := w.mem.FindByID(ctx, localID)
	if err == nil {
		return item, nil
	}
	if !w.lazy || !errors.Is(err, sentinel.ErrNotFound) {
		return nil, err
	}
	item, err = w.durable.FindLocalItem(ctx, localID)
	if err != nil {
		return nil, err
	}
	w.mem.Hydrate([]*models.LocalItem{item})
	return item, nil
}

var _ LocalStore = (*LocalWriteThrough)(nil)
