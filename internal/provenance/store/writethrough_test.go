package store

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"attestor/internal/provenance/models"
	"attestor/internal/storage"
	id "attestor/pkg/domain"
)

// fakeDurable is a map-backed durable tier for exercising the lazy-hydration
// paths without Postgres.
type fakeDurable struct {
	mu      sync.Mutex
	records []*models.StorageHistoryRecord
	seen    map[string]struct{}
}

func newFakeDurable() *fakeDurable {
	return &fakeDurable{seen: make(map[string]struct{})}
}

func (f *fakeDurable) InsertRecord(_ context.Context, record *models.StorageHistoryRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.seen[record.Key()]; ok {
		return nil
	}
	f.seen[record.Key()] = struct{}{}
	f.records = append(f.records, record.Clone())
	return nil
}

func (f *fakeDurable) ListByDFID(_ context.Context, dfid id.DFID) ([]*models.StorageHistoryRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.StorageHistoryRecord
	for _, r := range f.records {
		if r.DFID == dfid {
			out = append(out, r.Clone())
		}
	}
	return out, nil
}

func (f *fakeDurable) LoadRecords(_ context.Context) ([]*models.StorageHistoryRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*models.StorageHistoryRecord, 0, len(f.records))
	for _, r := range f.records {
		out = append(out, r.Clone())
	}
	return out, nil
}

type ProvenanceWriteThroughSuite struct {
	suite.Suite
	durable *fakeDurable
	store   *WriteThrough
	ctx     context.Context
	dfid    id.DFID
	now     time.Time
}

// SetupTest seeds the durable tier with one confirmed record, then builds a
// lazy write-through over it: the cache starts with no timelines at all, as
// after a restart.
func (s *ProvenanceWriteThroughSuite) SetupTest() {
	s.ctx = context.Background()
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.durable = newFakeDurable()

	dfid, err := id.NewDFID()
	s.Require().NoError(err)
	s.dfid = dfid
	s.Require().NoError(s.durable.InsertRecord(s.ctx, s.record("0xabc", s.now)))

	repl := storage.NewReplicator(2, 64, 1, slog.New(slog.DiscardHandler))
	s.store = NewWriteThrough(NewInMemory(), s.durable, repl, true)
	s.Require().NoError(s.store.Hydrate(s.ctx))
}

func TestProvenanceWriteThroughSuite(t *testing.T) {
	suite.Run(t, new(ProvenanceWriteThroughSuite))
}

func (s *ProvenanceWriteThroughSuite) record(ref string, at time.Time) *models.StorageHistoryRecord {
	return &models.StorageHistoryRecord{
		DFID:            s.dfid,
		AdapterKind:     id.AdapterLedger,
		ContentAddress:  "sha256:abc",
		LedgerReference: ref,
		Network:         "testnet",
		TriggeredBy:     id.MemberID(uuid.New()),
		StoredAt:        at,
	}
}

func (s *ProvenanceWriteThroughSuite) TestUpsertDedupesAcrossRestart() {
	// The same confirmation replayed against a cold cache is a no-op.
	added, err := s.store.Upsert(s.ctx, s.record("0xabc", s.now.Add(time.Hour)))
	s.Require().NoError(err)
	s.False(added)

	records, err := s.store.ListByDFID(s.ctx, s.dfid)
	s.Require().NoError(err)
	s.Require().Len(records, 1)
	s.Equal(s.now, records[0].StoredAt, "the original record wins")
}

func (s *ProvenanceWriteThroughSuite) TestUpsertAdmitsNewReferenceOnColdTimeline() {
	added, err := s.store.Upsert(s.ctx, s.record("0xdef", s.now.Add(time.Hour)))
	s.Require().NoError(err)
	s.True(added)

	records, err := s.store.ListByDFID(s.ctx, s.dfid)
	s.Require().NoError(err)
	s.Len(records, 2)
}
