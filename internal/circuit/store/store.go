// Package store persists circuit aggregates. The circuit's items relation
// and published list live inside the aggregate, so Execute gives callers a
// single mutation covering state transition and publish with no observable
// window between them.
package store

import (
	"context"

	"attestor/internal/circuit/models"
	id "attestor/pkg/domain"
)

// Store is the circuit surface used by services.
type Store interface {
	Create(ctx context.Context, circuit *models.Circuit) error
	FindByID(ctx context.Context, circuitID id.CircuitID) (*models.Circuit, error)
	// Execute atomically validates and mutates a circuit under its entity
	// guard, returning a copy of the mutated aggregate. All push, publish,
	// approval, and settings transitions flow through here.
	Execute(ctx context.Context, circuitID id.CircuitID, validate func(*models.Circuit) error, mutate func(*models.Circuit) error) (*models.Circuit, error)
	// CircuitsWithItem returns the circuits holding a circuit item for the
	// dfid. Used by ledger confirmation fan-out.
	CircuitsWithItem(ctx context.Context, dfid id.DFID) []id.CircuitID
}

// Durable is the lagging Postgres tier behind the write-through store.
type Durable interface {
	UpsertCircuit(ctx context.Context, circuit *models.Circuit) error
	FindByID(ctx context.Context, circuitID id.CircuitID) (*models.Circuit, error)
	LoadCircuits(ctx context.Context) ([]*models.Circuit, error)
}
