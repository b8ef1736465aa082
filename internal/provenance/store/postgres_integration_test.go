//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"attestor/internal/provenance/models"
	"attestor/internal/provenance/store"
	id "attestor/pkg/domain"
	"attestor/pkg/testutil/containers"
)

type ProvenancePostgresSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.Postgres
	now      time.Time
}

func TestProvenancePostgresSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(ProvenancePostgresSuite))
}

func (s *ProvenancePostgresSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

func (s *ProvenancePostgresSuite) SetupTest() {
	err := s.postgres.TruncateTables(context.Background(), "storage_history")
	s.Require().NoError(err)
}

func (s *ProvenancePostgresSuite) record(dfid id.DFID, ref string, at time.Time) *models.StorageHistoryRecord {
	return &models.StorageHistoryRecord{
		DFID:            dfid,
		AdapterKind:     id.AdapterLedger,
		ContentAddress:  "sha256:abc",
		LedgerReference: ref,
		Network:         "testnet",
		TriggeredBy:     id.MemberID(uuid.New()),
		StoredAt:        at,
	}
}

func (s *ProvenancePostgresSuite) TestInsertIsIdempotent() {
	ctx := context.Background()
	dfid, err := id.NewDFID()
	s.Require().NoError(err)

	s.Require().NoError(s.store.InsertRecord(ctx, s.record(dfid, "ref-1", s.now)))
	// Replayed replication op and duplicate watcher event.
	s.Require().NoError(s.store.InsertRecord(ctx, s.record(dfid, "ref-1", s.now.Add(time.Hour))))

	records, err := s.store.ListByDFID(ctx, dfid)
	s.Require().NoError(err)
	s.Require().Len(records, 1)
	s.Equal(s.now, records[0].StoredAt.UTC(), "first write wins")
}

func (s *ProvenancePostgresSuite) TestListOrdersByStoredAt() {
	ctx := context.Background()
	dfid, err := id.NewDFID()
	s.Require().NoError(err)

	s.Require().NoError(s.store.InsertRecord(ctx, s.record(dfid, "ref-2", s.now.Add(time.Minute))))
	s.Require().NoError(s.store.InsertRecord(ctx, s.record(dfid, "ref-1", s.now)))

	records, err := s.store.ListByDFID(ctx, dfid)
	s.Require().NoError(err)
	s.Require().Len(records, 2)
	s.Equal("ref-1", records[0].LedgerReference)
	s.Equal("ref-2", records[1].LedgerReference)
}

func (s *ProvenancePostgresSuite) TestLoadRecordsForHydration() {
	ctx := context.Background()
	a, err := id.NewDFID()
	s.Require().NoError(err)
	b, err := id.NewDFID()
	s.Require().NoError(err)

	s.Require().NoError(s.store.InsertRecord(ctx, s.record(a, "ref-1", s.now)))
	s.Require().NoError(s.store.InsertRecord(ctx, s.record(b, "ref-2", s.now.Add(time.Second))))

	records, err := s.store.LoadRecords(ctx)
	s.Require().NoError(err)
	s.Len(records, 2)
}
