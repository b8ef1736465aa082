package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"attestor/internal/item/models"
	"attestor/internal/storage"
	id "attestor/pkg/domain"
	"attestor/pkg/platform/sentinel"
)

type itemShard struct {
	mu    sync.RWMutex
	items map[id.DFID]*models.Item
}

type indexShard struct {
	mu     sync.RWMutex
	tuples map[string]id.DFID
}

// InMemory is the authoritative cache tier: items sharded by dfid, the
// canonical dedup index sharded by tuple, and striped resolution guards
// keyed by canonical key. No guard is ever held across I/O; resolution holds
// its stripe only for the lookup+allocate decision.
type InMemory struct {
	items   []*itemShard
	index   []*indexShard
	resolve []sync.Mutex
}

// NewInMemory creates the cache tier with the given shard count.
func NewInMemory(shards int) *InMemory {
	if shards < 1 {
		shards = 1
	}
	s := &InMemory{
		items:   make([]*itemShard, shards),
		index:   make([]*indexShard, shards),
		resolve: make([]sync.Mutex, shards),
	}
	for i := 0; i < shards; i++ {
		s.items[i] = &itemShard{items: make(map[id.DFID]*models.Item)}
		s.index[i] = &indexShard{tuples: make(map[string]id.DFID)}
	}
	return s
}

func (s *InMemory) itemShardFor(dfid id.DFID) *itemShard {
	return s.items[storage.ShardIndex(string(dfid), len(s.items))]
}

func (s *InMemory) indexShardFor(tuple string) *indexShard {
	return s.index[storage.ShardIndex(tuple, len(s.index))]
}

// FindByDFID returns a copy of the item or sentinel.ErrNotFound.
func (s *InMemory) FindByDFID(_ context.Context, dfid id.DFID) (*models.Item, error) {
	sh := s.itemShardFor(dfid)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	it, ok := sh.items[dfid]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return it.Clone(), nil
}

// Resolve implements the lookup-or-allocate decision. Submissions with no
// canonical identifiers always allocate a fresh item and never touch the
// index. Canonical tuples matching more than one dfid fail with
// IdentityConflictError; the resolver never picks a winner.
func (s *InMemory) Resolve(_ context.Context, identifiers []models.Identifier, enriched map[string]any, now time.Time) (models.ResolveResult, error) {
	tuples := models.CanonicalTuples(identifiers)
	if len(tuples) == 0 {
		item, err := models.NewItem(identifiers, enriched, now)
		if err != nil {
			return models.ResolveResult{}, err
		}
		s.insert(item)
		return models.ResolveResult{Item: item.Clone(), Outcome: models.OutcomeNewItemCreated}, nil
	}

	key := models.CanonicalKey(identifiers)
	stripe := &s.resolve[storage.ShardIndex(key, len(s.resolve))]
	stripe.Lock()
	defer stripe.Unlock()

	matches := make(map[string]id.DFID)
	distinct := make(map[id.DFID]struct{})
	for _, t := range tuples {
		if dfid, ok := s.lookupTuple(t); ok {
			matches[t] = dfid
			distinct[dfid] = struct{}{}
		}
	}

	if len(distinct) > 1 {
		return models.ResolveResult{}, &models.IdentityConflictError{Matches: matches}
	}

	if len(distinct) == 1 {
		var dfid id.DFID
		for d := range distinct {
			dfid = d
		}
		var newTuples []string
		for _, t := range tuples {
			if _, ok := matches[t]; !ok {
				newTuples = append(newTuples, t)
			}
		}

		sh := s.itemShardFor(dfid)
		sh.mu.Lock()
		it, ok := sh.items[dfid]
		if !ok {
			sh.mu.Unlock()
			return models.ResolveResult{}, &missingItemError{dfid: dfid}
		}
		it.Enrich(identifiers, enriched, now)
		snapshot := it.Clone()
		sh.mu.Unlock()

		for _, t := range newTuples {
			if err := s.bindTuple(t, dfid); err != nil {
				return models.ResolveResult{}, err
			}
		}
		return models.ResolveResult{Item: snapshot, Outcome: models.OutcomeEnriched, BoundTuples: newTuples}, nil
	}

	item, err := models.NewItem(identifiers, enriched, now)
	if err != nil {
		return models.ResolveResult{}, err
	}
	s.insert(item)
	for _, t := range tuples {
		if err := s.bindTuple(t, item.DFID); err != nil {
			return models.ResolveResult{}, err
		}
	}
	return models.ResolveResult{Item: item.Clone(), Outcome: models.OutcomeNewItemCreated, BoundTuples: tuples}, nil
}

// Execute atomically validates and mutates an item under its shard guard.
func (s *InMemory) Execute(_ context.Context, dfid id.DFID, validate func(*models.Item) error, mutate func(*models.Item)) (*models.Item, error) {
	sh := s.itemShardFor(dfid)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	it, ok := sh.items[dfid]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if validate != nil {
		if err := validate(it); err != nil {
			return nil, err
		}
	}
	if mutate != nil {
		mutate(it)
	}
	return it.Clone(), nil
}

// Hydrate populates the cache from durable state. Existing entries win: the
// cache is authoritative, durable state only fills gaps.
func (s *InMemory) Hydrate(items []*models.Item, index map[string]id.DFID) {
	for _, it := range items {
		sh := s.itemShardFor(it.DFID)
		sh.mu.Lock()
		if _, ok := sh.items[it.DFID]; !ok {
			sh.items[it.DFID] = it.Clone()
		}
		sh.mu.Unlock()
	}
	for tuple, dfid := range index {
		sh := s.indexShardFor(tuple)
		sh.mu.Lock()
		if _, ok := sh.tuples[tuple]; !ok {
			sh.tuples[tuple] = dfid
		}
		sh.mu.Unlock()
	}
}

// missingItemError marks an index entry whose item is not resident in the
// cache. Under lazy hydration the write-through tier faults the item in from
// the durable store and retries; under eager hydration it is corruption.
type missingItemError struct {
	dfid id.DFID
}

func (e *missingItemError) Error() string {
	return fmt.Sprintf("index binds %s to a missing item: %s", e.dfid, sentinel.ErrNotFound)
}

func (e *missingItemError) Unwrap() error { return sentinel.ErrNotFound }

func (s *InMemory) insert(item *models.Item) {
	sh := s.itemShardFor(item.DFID)
	sh.mu.Lock()
	sh.items[item.DFID] = item
	sh.mu.Unlock()
}

func (s *InMemory) lookupTuple(tuple string) (id.DFID, bool) {
	sh := s.indexShardFor(tuple)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	dfid, ok := sh.tuples[tuple]
	return dfid, ok
}

// bindTuple records tuple → dfid. A tuple already bound to a different dfid
// means two resolutions with overlapping identifier sets raced on distinct
// canonical keys; the binding never silently moves.
func (s *InMemory) bindTuple(tuple string, dfid id.DFID) error {
	sh := s.indexShardFor(tuple)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if existing, ok := sh.tuples[tuple]; ok && existing != dfid {
		return fmt.Errorf("tuple already bound to %s: %w", existing, sentinel.ErrConflict)
	}
	sh.tuples[tuple] = dfid
	return nil
}
