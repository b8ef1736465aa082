package store

import (
	"context"
	"sync"

	"attestor/internal/provenance/models"
	id "attestor/pkg/domain"
)

// InMemory is the authoritative cache tier for provenance timelines: a
// per-dfid append log plus a key set for idempotent upserts. A single guard
// suffices; records are small and appends rare relative to reads.
type InMemory struct {
	mu      sync.RWMutex
	byDFID  map[id.DFID][]*models.StorageHistoryRecord
	seen    map[string]struct{}
}

// NewInMemory creates the cache tier.
func NewInMemory() *InMemory {
	return &InMemory{
		byDFID: make(map[id.DFID][]*models.StorageHistoryRecord),
		seen:   make(map[string]struct{}),
	}
}

func (s *InMemory) Append(_ context.Context, record *models.StorageHistoryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.append(record)
	return nil
}

func (s *InMemory) Upsert(_ context.Context, record *models.StorageHistoryRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[record.Key()]; ok {
		return false, nil
	}
	s.append(record)
	return true, nil
}

func (s *InMemory) ListByDFID(_ context.Context, dfid id.DFID) ([]*models.StorageHistoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	records := s.byDFID[dfid]
	out := make([]*models.StorageHistoryRecord, 0, len(records))
	for _, r := range records {
		out = append(out, r.Clone())
	}
	return out, nil
}

// Hydrate fills timelines from durable state; records already seen win.
func (s *InMemory) Hydrate(records []*models.StorageHistoryRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		if _, ok := s.seen[r.Key()]; ok {
			continue
		}
		s.append(r)
	}
}

// append requires s.mu held.
func (s *InMemory) append(record *models.StorageHistoryRecord) {
	cp := record.Clone()
	s.byDFID[cp.DFID] = append(s.byDFID[cp.DFID], cp)
	s.seen[cp.Key()] = struct{}{}
}

var _ Store = (*InMemory)(nil)
