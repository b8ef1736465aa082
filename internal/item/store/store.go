// Package store persists items and the canonical dedup index.
//
// The authoritative tier is the sharded in-memory store; the Postgres tier
// trails it through the storage replicator. Services only see the
// write-through composition.
package store

import (
	"context"
	"time"

	"attestor/internal/item/models"
	id "attestor/pkg/domain"
)

// Store is the item surface used by services.
type Store interface {
	// FindByDFID returns a copy of the item.
	FindByDFID(ctx context.Context, dfid id.DFID) (*models.Item, error)
	// Resolve performs the lookup-or-allocate decision for a submission,
	// serialized per canonical key. See the resolver service for the
	// conflict contract.
	Resolve(ctx context.Context, identifiers []models.Identifier, enriched map[string]any, now time.Time) (models.ResolveResult, error)
	// Execute atomically validates and mutates an item under its entity
	// guard, returning a copy of the mutated item.
	Execute(ctx context.Context, dfid id.DFID, validate func(*models.Item) error, mutate func(*models.Item)) (*models.Item, error)
}

// LocalStore persists pre-commitment staging records.
type LocalStore interface {
	Create(ctx context.Context, item *models.LocalItem) error
	FindByID(ctx context.Context, localID id.LocalItemID) (*models.LocalItem, error)
}

// Durable is the lagging Postgres tier behind the write-through item store.
type Durable interface {
	InsertItem(ctx context.Context, item *models.Item) error
	UpdateItem(ctx context.Context, item *models.Item) error
	BindTuples(ctx context.Context, dfid id.DFID, tuples []string) error
	FindByDFID(ctx context.Context, dfid id.DFID) (*models.Item, error)
	LoadItems(ctx context.Context) ([]*models.Item, error)
	LoadIndex(ctx context.Context) (map[string]id.DFID, error)
}

// LocalDurable is the lagging tier for staging records.
type LocalDurable interface {
	InsertLocalItem(ctx context.Context, item *models.LocalItem) error
	FindLocalItem(ctx context.Context, localID id.LocalItemID) (*models.LocalItem, error)
	LoadLocalItems(ctx context.Context) ([]*models.LocalItem, error)
}
