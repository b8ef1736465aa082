package store

import (
	"context"
	"sync"

	"attestor/internal/circuit/models"
	"attestor/internal/storage"
	id "attestor/pkg/domain"
	"attestor/pkg/platform/sentinel"
)

type circuitShard struct {
	mu       sync.RWMutex
	circuits map[id.CircuitID]*models.Circuit
}

// InMemory is the authoritative cache tier for circuits, sharded by circuit
// id, plus a reverse dfid → circuits index for confirmation fan-out.
type InMemory struct {
	shards []*circuitShard

	revMu  sync.RWMutex
	byDFID map[id.DFID]map[id.CircuitID]struct{}
}

// NewInMemory creates the cache tier with the given shard count.
func NewInMemory(shards int) *InMemory {
	if shards < 1 {
		shards = 1
	}
	s := &InMemory{
		shards: make([]*circuitShard, shards),
		byDFID: make(map[id.DFID]map[id.CircuitID]struct{}),
	}
	for i := 0; i < shards; i++ {
		s.shards[i] = &circuitShard{circuits: make(map[id.CircuitID]*models.Circuit)}
	}
	return s
}

func (s *InMemory) shardFor(circuitID id.CircuitID) *circuitShard {
	return s.shards[storage.ShardIndex(circuitID.String(), len(s.shards))]
}

func (s *InMemory) Create(_ context.Context, circuit *models.Circuit) error {
	sh := s.shardFor(circuit.ID)
	sh.mu.Lock()
	if _, ok := sh.circuits[circuit.ID]; ok {
		sh.mu.Unlock()
		return sentinel.ErrConflict
	}
	sh.circuits[circuit.ID] = circuit.Clone()
	sh.mu.Unlock()
	s.reindex(circuit)
	return nil
}

func (s *InMemory) FindByID(_ context.Context, circuitID id.CircuitID) (*models.Circuit, error) {
	sh := s.shardFor(circuitID)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	c, ok := sh.circuits[circuitID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return c.Clone(), nil
}

// Execute runs validate then mutate under the circuit's shard guard. The
// mutation sees current state, including settings another caller may have
// replaced a moment ago; nothing here is served from a stale copy.
func (s *InMemory) Execute(_ context.Context, circuitID id.CircuitID, validate func(*models.Circuit) error, mutate func(*models.Circuit) error) (*models.Circuit, error) {
	sh := s.shardFor(circuitID)
	sh.mu.Lock()
	c, ok := sh.circuits[circuitID]
	if !ok {
		sh.mu.Unlock()
		return nil, sentinel.ErrNotFound
	}
	if validate != nil {
		if err := validate(c); err != nil {
			sh.mu.Unlock()
			return nil, err
		}
	}
	if mutate != nil {
		if err := mutate(c); err != nil {
			sh.mu.Unlock()
			return nil, err
		}
	}
	snapshot := c.Clone()
	sh.mu.Unlock()
	s.reindex(snapshot)
	return snapshot, nil
}

func (s *InMemory) CircuitsWithItem(_ context.Context, dfid id.DFID) []id.CircuitID {
	s.revMu.RLock()
	defer s.revMu.RUnlock()
	out := make([]id.CircuitID, 0, len(s.byDFID[dfid]))
	for circuitID := range s.byDFID[dfid] {
		out = append(out, circuitID)
	}
	return out
}

// Hydrate fills gaps from durable state; cached aggregates win.
func (s *InMemory) Hydrate(circuits []*models.Circuit) {
	for _, c := range circuits {
		sh := s.shardFor(c.ID)
		sh.mu.Lock()
		if _, ok := sh.circuits[c.ID]; !ok {
			sh.circuits[c.ID] = c.Clone()
		}
		sh.mu.Unlock()
		s.reindex(c)
	}
}

// reindex records the circuit's items in the reverse index. Circuit items
// are never removed, so additions are the only delta to track.
func (s *InMemory) reindex(c *models.Circuit) {
	if len(c.Items) == 0 {
		return
	}
	s.revMu.Lock()
	defer s.revMu.Unlock()
	for dfid := range c.Items {
		set, ok := s.byDFID[dfid]
		if !ok {
			set = make(map[id.CircuitID]struct{})
			s.byDFID[dfid] = set
		}
		set[c.ID] = struct{}{}
	}
}
