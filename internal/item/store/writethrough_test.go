package store

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"attestor/internal/item/models"
	"attestor/internal/storage"
	id "attestor/pkg/domain"
	"attestor/pkg/platform/sentinel"
)

// fakeDurable is a map-backed durable tier for exercising the lazy-hydration
// fall-through paths without Postgres.
type fakeDurable struct {
	mu    sync.Mutex
	items map[id.DFID]*models.Item
	index map[string]id.DFID
	reads int
}

func newFakeDurable() *fakeDurable {
	return &fakeDurable{
		items: make(map[id.DFID]*models.Item),
		index: make(map[string]id.DFID),
	}
}

func (f *fakeDurable) InsertItem(_ context.Context, item *models.Item) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[item.DFID] = item.Clone()
	return nil
}

func (f *fakeDurable) UpdateItem(ctx context.Context, item *models.Item) error {
	return f.InsertItem(ctx, item)
}

func (f *fakeDurable) BindTuples(_ context.Context, dfid id.DFID, tuples []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range tuples {
		f.index[t] = dfid
	}
	return nil
}

func (f *fakeDurable) FindByDFID(_ context.Context, dfid id.DFID) (*models.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	it, ok := f.items[dfid]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return it.Clone(), nil
}

func (f *fakeDurable) LoadItems(_ context.Context) ([]*models.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*models.Item, 0, len(f.items))
	for _, it := range f.items {
		out = append(out, it.Clone())
	}
	return out, nil
}

func (f *fakeDurable) LoadIndex(_ context.Context) (map[string]id.DFID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]id.DFID, len(f.index))
	for t, d := range f.index {
		out[t] = d
	}
	return out, nil
}

type WriteThroughSuite struct {
	suite.Suite
	durable *fakeDurable
	store   *WriteThrough
	ctx     context.Context
	now     time.Time
	dfid    id.DFID
}

// SetupTest seeds the durable tier with one indexed item, then hydrates a
// lazy write-through over it: the index is resident, the item is cold.
func (s *WriteThroughSuite) SetupTest() {
	s.ctx = context.Background()
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.durable = newFakeDurable()

	item, err := models.NewItem(
		[]models.Identifier{canonical("gtin", "ean13", "0761234500001")},
		map[string]any{"name": "widget"},
		s.now,
	)
	s.Require().NoError(err)
	s.dfid = item.DFID
	s.Require().NoError(s.durable.InsertItem(s.ctx, item))
	s.Require().NoError(s.durable.BindTuples(s.ctx, item.DFID, models.CanonicalTuples(item.Identifiers)))

	repl := storage.NewReplicator(2, 64, 1, slog.New(slog.DiscardHandler))
	s.store = NewWriteThrough(NewInMemory(4), s.durable, repl, true)
	s.Require().NoError(s.store.Hydrate(s.ctx))
}

func TestWriteThroughSuite(t *testing.T) {
	suite.Run(t, new(WriteThroughSuite))
}

func (s *WriteThroughSuite) TestResolveFaultsInColdItem() {
	res, err := s.store.Resolve(s.ctx,
		[]models.Identifier{canonical("gtin", "ean13", "0761234500001")},
		map[string]any{"color": "blue"},
		s.now.Add(time.Minute),
	)
	s.Require().NoError(err)
	s.Equal(models.OutcomeEnriched, res.Outcome)
	s.Equal(s.dfid, res.Item.DFID)
	s.Equal("blue", res.Item.EnrichedData["color"])
	s.Equal("widget", res.Item.EnrichedData["name"], "durable state survives the fault-in")
}

func (s *WriteThroughSuite) TestExecuteFaultsInColdItem() {
	item, err := s.store.Execute(s.ctx, s.dfid,
		func(it *models.Item) error { return it.CanDeprecate() },
		func(it *models.Item) { it.ApplyDeprecation(s.now.Add(time.Minute)) },
	)
	s.Require().NoError(err)
	s.Equal(models.StatusDeprecated, item.Status)
}

func (s *WriteThroughSuite) TestFindByDFIDFaultsInOnce() {
	before := s.durable.reads

	first, err := s.store.FindByDFID(s.ctx, s.dfid)
	s.Require().NoError(err)
	s.Equal(s.dfid, first.DFID)

	_, err = s.store.FindByDFID(s.ctx, s.dfid)
	s.Require().NoError(err)
	s.Equal(before+1, s.durable.reads, "second read is served from the cache")
}

func (s *WriteThroughSuite) TestUnknownDFIDStaysNotFound() {
	other, err := id.NewDFID()
	s.Require().NoError(err)

	_, err = s.store.FindByDFID(s.ctx, other)
	s.ErrorIs(err, sentinel.ErrNotFound)

	_, err = s.store.Execute(s.ctx, other, nil, nil)
	s.ErrorIs(err, sentinel.ErrNotFound)
}
