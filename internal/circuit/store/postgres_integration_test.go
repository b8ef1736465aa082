//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"attestor/internal/circuit/models"
	"attestor/internal/circuit/store"
	id "attestor/pkg/domain"
	"attestor/pkg/platform/sentinel"
	"attestor/pkg/testutil/containers"
)

type CircuitPostgresSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.Postgres
	now      time.Time
	owner    id.MemberID
}

func TestCircuitPostgresSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(CircuitPostgresSuite))
}

func (s *CircuitPostgresSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

func (s *CircuitPostgresSuite) SetupTest() {
	s.owner = id.MemberID(uuid.New())
	err := s.postgres.TruncateTables(context.Background(),
		"circuit_items", "circuit_members", "circuits")
	s.Require().NoError(err)
}

func (s *CircuitPostgresSuite) newCircuit() *models.Circuit {
	circuit, err := models.NewCircuit(id.CircuitID(uuid.New()), "cold-chain", s.owner, models.AdapterConfig{
		Kind:            id.AdapterLedger,
		TierRequirement: id.TierProfessional,
		Network:         "testnet",
	}, s.now)
	s.Require().NoError(err)
	return circuit
}

func (s *CircuitPostgresSuite) TestAggregateRoundTrip() {
	ctx := context.Background()
	circuit := s.newCircuit()

	member := id.MemberID(uuid.New())
	circuit.RequestJoin(member, s.now)
	_, err := circuit.ApproveMember(member, s.now)
	s.Require().NoError(err)

	dfid, err := id.NewDFID()
	s.Require().NoError(err)
	s.Require().NoError(circuit.AddItem(&models.CircuitItem{
		CircuitID: circuit.ID,
		DFID:      dfid,
		PushedBy:  member,
		PushedAt:  s.now,
		State:     models.ItemPushed,
	}))
	_, err = circuit.Publish(dfid, s.now)
	s.Require().NoError(err)

	s.Require().NoError(s.store.UpsertCircuit(ctx, circuit))

	found, err := s.store.FindByID(ctx, circuit.ID)
	s.Require().NoError(err)
	s.Equal(circuit.Name, found.Name)
	s.Equal(id.AdapterLedger, found.AdapterConfig.Kind)
	s.Len(found.Members, 2)
	s.Require().Contains(found.Items, dfid)
	s.Equal(models.ItemPushed, found.Items[dfid].State)
	s.Contains(found.PublicSettings.PublishedItems, dfid)

	m, ok := found.ApprovedMember(member)
	s.Require().True(ok)
	s.True(m.CanPush)
}

func (s *CircuitPostgresSuite) TestUpsertReplacesMutableFields() {
	ctx := context.Background()
	circuit := s.newCircuit()
	s.Require().NoError(s.store.UpsertCircuit(ctx, circuit))

	circuit.PublicSettings.AccessMode = models.AccessPublic
	circuit.PublicSettings.AutoPublishPushedItems = true
	circuit.UpdatedAt = s.now.Add(time.Minute)
	s.Require().NoError(s.store.UpsertCircuit(ctx, circuit))

	found, err := s.store.FindByID(ctx, circuit.ID)
	s.Require().NoError(err)
	s.Equal(models.AccessPublic, found.PublicSettings.AccessMode)
	s.True(found.PublicSettings.AutoPublishPushedItems)
	s.Equal(circuit.UpdatedAt, found.UpdatedAt.UTC())
}

func (s *CircuitPostgresSuite) TestLoadCircuitsForHydration() {
	ctx := context.Background()
	a := s.newCircuit()
	b := s.newCircuit()
	s.Require().NoError(s.store.UpsertCircuit(ctx, a))
	s.Require().NoError(s.store.UpsertCircuit(ctx, b))

	circuits, err := s.store.LoadCircuits(ctx)
	s.Require().NoError(err)
	s.Len(circuits, 2)
	for _, c := range circuits {
		s.Len(c.Members, 1, "owner membership must survive the round trip")
	}
}

func (s *CircuitPostgresSuite) TestNotFound() {
	_, err := s.store.FindByID(context.Background(), id.CircuitID(uuid.New()))
	s.ErrorIs(err, sentinel.ErrNotFound)
}
