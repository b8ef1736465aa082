package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	id "attestor/pkg/domain"
	dErrors "attestor/pkg/domain-errors"
)

type CircuitSuite struct {
	suite.Suite
	now   time.Time
	owner id.MemberID
}

func (s *CircuitSuite) SetupTest() {
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.owner = id.MemberID(uuid.New())
}

func TestCircuitSuite(t *testing.T) {
	suite.Run(t, new(CircuitSuite))
}

func (s *CircuitSuite) newCircuit() *Circuit {
	c, err := NewCircuit(id.CircuitID(uuid.New()), "supply-chain", s.owner, AdapterConfig{
		Kind:            id.AdapterLedger,
		TierRequirement: id.TierProfessional,
		Network:         "testnet",
	}, s.now)
	s.Require().NoError(err)
	return c
}

func (s *CircuitSuite) pushItem(c *Circuit, state ItemState) id.DFID {
	dfid, err := id.NewDFID()
	s.Require().NoError(err)
	s.Require().NoError(c.AddItem(&CircuitItem{
		CircuitID: c.ID,
		DFID:      dfid,
		PushedBy:  s.owner,
		PushedAt:  s.now,
		State:     state,
	}))
	return dfid
}

func (s *CircuitSuite) TestNewCircuit() {
	s.Run("owner is the first approved member", func() {
		c := s.newCircuit()
		m, ok := c.ApprovedMember(s.owner)
		s.Require().True(ok)
		s.Equal(RoleOwner, m.Role)
		s.True(m.CanPush)
	})

	s.Run("defaults to private with empty published list", func() {
		c := s.newCircuit()
		s.Equal(AccessPrivate, c.PublicSettings.AccessMode)
		s.Empty(c.PublicSettings.PublishedItems)
	})

	s.Run("rejects invalid input", func() {
		_, err := NewCircuit(id.CircuitID(uuid.New()), "", s.owner, AdapterConfig{Kind: id.AdapterContent, TierRequirement: id.TierBasic}, s.now)
		s.Error(err)
		_, err = NewCircuit(id.CircuitID(uuid.New()), "x", s.owner, AdapterConfig{Kind: "other", TierRequirement: id.TierBasic}, s.now)
		s.Error(err)
	})
}

func (s *CircuitSuite) TestMembershipWorkflow() {
	member := id.MemberID(uuid.New())

	s.Run("join is pending until approved", func() {
		c := s.newCircuit()
		s.Equal(MemberPending, c.RequestJoin(member, s.now))
		// Idempotent.
		s.Equal(MemberPending, c.RequestJoin(member, s.now))

		changed, err := c.ApproveMember(member, s.now)
		s.Require().NoError(err)
		s.True(changed)

		changed, err = c.ApproveMember(member, s.now)
		s.Require().NoError(err)
		s.False(changed, "re-approval is a no-op")
	})

	s.Run("auto-approve circuits approve on join", func() {
		c := s.newCircuit()
		c.AutoApproveMembers = true
		s.Equal(MemberApproved, c.RequestJoin(member, s.now))
	})

	s.Run("denied members may re-request", func() {
		c := s.newCircuit()
		c.RequestJoin(member, s.now)
		changed, err := c.DenyMember(member, s.now)
		s.Require().NoError(err)
		s.True(changed)

		s.Equal(MemberPending, c.RequestJoin(member, s.now))
	})

	s.Run("owner cannot be denied", func() {
		c := s.newCircuit()
		_, err := c.DenyMember(s.owner, s.now)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})
}

func (s *CircuitSuite) TestPublishInvariant() {
	s.Run("publish requires a pushed item", func() {
		c := s.newCircuit()
		dfid, err := id.NewDFID()
		s.Require().NoError(err)

		_, pubErr := c.Publish(dfid, s.now)
		s.Require().Error(pubErr)
		s.True(dErrors.HasCode(pubErr, dErrors.CodeInvalidInput))
	})

	s.Run("rejected items cannot be published", func() {
		c := s.newCircuit()
		dfid := s.pushItem(c, ItemRejected)
		_, err := c.Publish(dfid, s.now)
		s.Error(err)
	})

	s.Run("items awaiting approval cannot be published", func() {
		c := s.newCircuit()
		dfid := s.pushItem(c, ItemPendingApproval)

		_, err := c.Publish(dfid, s.now)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
		s.NotContains(c.PublicSettings.PublishedItems, dfid)

		// Settings replacement cannot smuggle it in either.
		s.Error(c.ValidatePublicSettings(PublicSettings{
			AccessMode:     AccessPublic,
			PublishedItems: map[id.DFID]struct{}{dfid: {}},
		}))
	})

	s.Run("pending-ledger items are publishable", func() {
		c := s.newCircuit()
		dfid := s.pushItem(c, ItemPendingLedger)

		changed, err := c.Publish(dfid, s.now)
		s.Require().NoError(err)
		s.True(changed)
	})

	s.Run("publish and unpublish are idempotent", func() {
		c := s.newCircuit()
		dfid := s.pushItem(c, ItemPushed)

		changed, err := c.Publish(dfid, s.now)
		s.Require().NoError(err)
		s.True(changed)
		changed, err = c.Publish(dfid, s.now)
		s.Require().NoError(err)
		s.False(changed)

		s.True(c.Unpublish(dfid, s.now))
		s.False(c.Unpublish(dfid, s.now))
		// The circuit item survives unpublish.
		_, ok := c.Items[dfid]
		s.True(ok)
	})

	s.Run("settings replacement validates published against pushed", func() {
		c := s.newCircuit()
		dfid := s.pushItem(c, ItemPushed)
		stranger, err := id.NewDFID()
		s.Require().NoError(err)

		s.NoError(c.ValidatePublicSettings(PublicSettings{
			AccessMode:     AccessPublic,
			PublishedItems: map[id.DFID]struct{}{dfid: {}},
		}))
		s.Error(c.ValidatePublicSettings(PublicSettings{
			AccessMode:     AccessPublic,
			PublishedItems: map[id.DFID]struct{}{stranger: {}},
		}))
		s.Error(c.ValidatePublicSettings(PublicSettings{AccessMode: "sideways"}))
	})
}

func (s *CircuitSuite) TestItemLifecycle() {
	s.Run("live item blocks a second push", func() {
		c := s.newCircuit()
		dfid := s.pushItem(c, ItemPushed)
		err := c.AddItem(&CircuitItem{CircuitID: c.ID, DFID: dfid, PushedBy: s.owner, PushedAt: s.now, State: ItemPushed})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("rejected item may be replaced by a fresh push", func() {
		c := s.newCircuit()
		dfid := s.pushItem(c, ItemRejected)
		s.NoError(c.AddItem(&CircuitItem{CircuitID: c.ID, DFID: dfid, PushedBy: s.owner, PushedAt: s.now, State: ItemPushed}))
	})

	s.Run("ledger confirmation is idempotent", func() {
		c := s.newCircuit()
		dfid := s.pushItem(c, ItemPendingLedger)

		s.True(c.ConfirmLedger(dfid, s.now))
		s.False(c.ConfirmLedger(dfid, s.now))
		ci, ok := c.ItemInState(dfid, ItemPushed)
		s.Require().True(ok)
		s.Equal(ItemPushed, ci.State)
	})

	s.Run("reject only applies to pending approvals", func() {
		c := s.newCircuit()
		pending := s.pushItem(c, ItemPendingApproval)
		pushed := s.pushItem(c, ItemPushed)

		s.NoError(c.Reject(pending, s.now))
		s.Error(c.Reject(pending, s.now), "terminal")
		s.Error(c.Reject(pushed, s.now))
	})
}

func (s *CircuitSuite) TestCloneIsolation() {
	c := s.newCircuit()
	dfid := s.pushItem(c, ItemPushed)
	_, err := c.Publish(dfid, s.now)
	s.Require().NoError(err)

	cp := c.Clone()
	cp.Items[dfid].State = ItemRejected
	delete(cp.PublicSettings.PublishedItems, dfid)
	cp.Members[s.owner].CanPush = false

	s.Equal(ItemPushed, c.Items[dfid].State)
	s.Contains(c.PublicSettings.PublishedItems, dfid)
	s.True(c.Members[s.owner].CanPush)
}
