package store

import (
	"context"
	"errors"

	"attestor/internal/circuit/models"
	"attestor/internal/storage"
	id "attestor/pkg/domain"
	"attestor/pkg/platform/sentinel"
)

const entityCircuit = "circuit"

// WriteThrough composes the authoritative circuit cache with the lagging
// durable tier. The whole aggregate is replicated per mutation: the circuit
// row, members, items, and published set land in one durable transaction so
// the durable store never shows a pushed-but-unpublished interleaving either.
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

// Hydrate loads circuits from the durable store. Circuits stay eagerly
// hydrated even in lazy mode: the reverse dfid index must be complete for
// ledger-confirmation fan-out to find every pending push.
func (w *WriteThrough) Hydrate(ctx context.Context) error {
	circuits, err := w.durable.LoadCircuits(ctx)
	if err != nil {
		return err
	}
	w.mem.Hydrate(circuits)
	return nil
}

func (w *WriteThrough) Create(ctx context.Context, circuit *models.Circuit) error {
	if err := w.mem.Create(ctx, circuit); err != nil {
		return err
	}
	w.enqueueUpsert(circuit.Clone())
	return nil
}

func (w *WriteThrough) FindByID(ctx context.Context, circuitID id.CircuitID) (*models.Circuit, error) {
	circuit, err := w.mem.FindByID(ctx, circuitID)
	if err == nil {
		return circuit, nil
	}
	if !w.lazy || !errors.Is(err, sentinel.ErrNotFound) {
		return nil, err
	}
	circuit, err = w.durable.FindByID(ctx, circuitID)
	if err != nil {
		return nil, err
	}
	w.mem.Hydrate([]*models.Circuit{circuit})
	return circuit, nil
}

func (w *WriteThrough) Execute(ctx context.Context, circuitID id.CircuitID, validate func(*models.Circuit) error, mutate func(*models.Circuit) error) (*models.Circuit, error) {
	circuit, err := w.mem.Execute(ctx, circuitID, validate, mutate)
	if err != nil {
		return nil, err
	}
	w.enqueueUpsert(circuit.Clone())
	return circuit, nil
}

func (w *WriteThrough) CircuitsWithItem(ctx context.Context, dfid id.DFID) []id.CircuitID {
	return w.mem.CircuitsWithItem(ctx, dfid)
}

func (w *WriteThrough) enqueueUpsert(snapshot *models.Circuit) {
	w.repl.Enqueue(storage.Op{
		Entity: entityCircuit,
		ID:     snapshot.ID.String(),
		Name:   "upsert_circuit",
		Apply: func(ctx context.Context) error {
			return w.durable.UpsertCircuit(ctx, snapshot)
		},
	})
}

var _ Store = (*WriteThrough)(nil)
