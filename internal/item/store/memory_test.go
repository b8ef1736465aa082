package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"attestor/internal/item/models"
	id "attestor/pkg/domain"
	"attestor/pkg/platform/sentinel"
)

type ItemStoreSuite struct {
	suite.Suite
	store *InMemory
	ctx   context.Context
	now   time.Time
}

func (s *ItemStoreSuite) SetupTest() {
	s.store = NewInMemory(8)
	s.ctx = context.Background()
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

func TestItemStoreSuite(t *testing.T) {
	suite.Run(t, new(ItemStoreSuite))
}

func canonical(ns, key, value string) models.Identifier {
	return models.Identifier{Namespace: ns, Key: key, Value: value, Kind: models.KindCanonical}
}

func contextual(ns, key, value string) models.Identifier {
	return models.Identifier{Namespace: ns, Key: key, Value: value, Kind: models.KindContextual}
}

func (s *ItemStoreSuite) TestResolveAllocatesAndEnriches() {
	s.Run("first submission allocates a fresh dfid", func() {
		res, err := s.store.Resolve(s.ctx, []models.Identifier{canonical("gs1", "gtin", "1")}, map[string]any{"a": "1"}, s.now)
		s.Require().NoError(err)
		s.Equal(models.OutcomeNewItemCreated, res.Outcome)
		s.NotEmpty(res.Item.DFID)
		s.Len(res.BoundTuples, 1)
	})

	s.Run("matching submission enriches the same dfid", func() {
		first, err := s.store.Resolve(s.ctx, []models.Identifier{canonical("gs1", "gtin", "2")}, nil, s.now)
		s.Require().NoError(err)

		second, err := s.store.Resolve(s.ctx,
			[]models.Identifier{canonical("GS1", "GTIN", "2"), canonical("iso", "serial", "9")},
			map[string]any{"color": "red"}, s.now)
		s.Require().NoError(err)
		s.Equal(models.OutcomeEnriched, second.Outcome)
		s.Equal(first.Item.DFID, second.Item.DFID)
		// Only the serial tuple is newly bound.
		s.Len(second.BoundTuples, 1)

		found, err := s.store.FindByDFID(s.ctx, first.Item.DFID)
		s.Require().NoError(err)
		s.Equal("red", found.EnrichedData["color"])
		s.Len(found.Identifiers, 2)
	})

	s.Run("contextual-only submission always allocates", func() {
		a, err := s.store.Resolve(s.ctx, []models.Identifier{contextual("vendor", "sku", "X")}, nil, s.now)
		s.Require().NoError(err)
		b, err := s.store.Resolve(s.ctx, []models.Identifier{contextual("vendor", "sku", "X")}, nil, s.now)
		s.Require().NoError(err)
		s.NotEqual(a.Item.DFID, b.Item.DFID)
		s.Empty(a.BoundTuples)
	})
}

func (s *ItemStoreSuite) TestIdentityConflict() {
	a, err := s.store.Resolve(s.ctx, []models.Identifier{canonical("gs1", "gtin", "1")}, nil, s.now)
	s.Require().NoError(err)
	b, err := s.store.Resolve(s.ctx, []models.Identifier{canonical("iso", "serial", "9")}, nil, s.now)
	s.Require().NoError(err)
	s.Require().NotEqual(a.Item.DFID, b.Item.DFID)

	_, err = s.store.Resolve(s.ctx,
		[]models.Identifier{canonical("gs1", "gtin", "1"), canonical("iso", "serial", "9")},
		nil, s.now)
	s.Require().Error(err)

	var conflict *models.IdentityConflictError
	s.Require().ErrorAs(err, &conflict)
	s.Len(conflict.Matches, 2)

	// Neither binding moved.
	foundA, err := s.store.Resolve(s.ctx, []models.Identifier{canonical("gs1", "gtin", "1")}, nil, s.now)
	s.Require().NoError(err)
	s.Equal(a.Item.DFID, foundA.Item.DFID)
}

func (s *ItemStoreSuite) TestConcurrentResolveConverges() {
	const writers = 32
	identifiers := []models.Identifier{canonical("gs1", "gtin", "0761234567890")}

	var wg sync.WaitGroup
	dfids := make(chan id.DFID, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := s.store.Resolve(s.ctx, identifiers, map[string]any{"n": "1"}, s.now)
			if err == nil {
				dfids <- res.Item.DFID
			}
		}()
	}
	wg.Wait()
	close(dfids)

	distinct := make(map[id.DFID]struct{})
	count := 0
	for dfid := range dfids {
		distinct[dfid] = struct{}{}
		count++
	}
	s.Equal(writers, count, "every resolution should succeed")
	s.Len(distinct, 1, "all writers must converge on one dfid")
}

func (s *ItemStoreSuite) TestExecute() {
	res, err := s.store.Resolve(s.ctx, []models.Identifier{canonical("gs1", "gtin", "5")}, nil, s.now)
	s.Require().NoError(err)
	dfid := res.Item.DFID

	s.Run("validate failure leaves the item untouched", func() {
		_, err := s.store.Execute(s.ctx, dfid,
			func(*models.Item) error { return sentinel.ErrInvalidState },
			func(it *models.Item) { it.ApplyDeprecation(s.now) },
		)
		s.Require().ErrorIs(err, sentinel.ErrInvalidState)

		found, err := s.store.FindByDFID(s.ctx, dfid)
		s.Require().NoError(err)
		s.True(found.IsActive())
	})

	s.Run("mutation applies under the guard", func() {
		updated, err := s.store.Execute(s.ctx, dfid, nil, func(it *models.Item) {
			it.ApplyDeprecation(s.now)
		})
		s.Require().NoError(err)
		s.Equal(models.StatusDeprecated, updated.Status)
	})

	s.Run("unknown dfid is not found", func() {
		_, err := s.store.Execute(s.ctx, id.DFID("df_missing"), nil, nil)
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *ItemStoreSuite) TestHydrateExistingEntriesWin() {
	res, err := s.store.Resolve(s.ctx, []models.Identifier{canonical("gs1", "gtin", "7")}, map[string]any{"v": "cache"}, s.now)
	s.Require().NoError(err)

	stale := res.Item.Clone()
	stale.EnrichedData = map[string]any{"v": "durable"}
	s.store.Hydrate([]*models.Item{stale}, map[string]id.DFID{"other\x1ftuple\x1f1": stale.DFID})

	found, err := s.store.FindByDFID(s.ctx, res.Item.DFID)
	s.Require().NoError(err)
	s.Equal("cache", found.EnrichedData["v"])
}
