package adapter

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"attestor/internal/adapter/mocks"
	id "attestor/pkg/domain"
	dErrors "attestor/pkg/domain-errors"
	"attestor/pkg/platform/circuit"
)

type GatewaySuite struct {
	suite.Suite
	ctrl    *gomock.Controller
	content *mocks.MockContentStore
	ledger  *mocks.MockLedgerClient
	gateway *Gateway
	ctx     context.Context
	dfid    id.DFID
}

func (s *GatewaySuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.content = mocks.NewMockContentStore(s.ctrl)
	s.ledger = mocks.NewMockLedgerClient(s.ctrl)
	s.gateway = NewGateway(s.content, s.ledger, time.Second, WithLogger(slog.New(slog.DiscardHandler)))
	s.ctx = context.Background()

	dfid, err := id.NewDFID()
	s.Require().NoError(err)
	s.dfid = dfid
}

func TestGatewaySuite(t *testing.T) {
	suite.Run(t, new(GatewaySuite))
}

func (s *GatewaySuite) ledgerDesc() Descriptor {
	return Descriptor{Kind: id.AdapterLedger, MinTier: id.TierProfessional, Network: "testnet"}
}

func (s *GatewaySuite) TestCommitConfirmed() {
	payload := []byte(`{"dfid":"x"}`)
	addr := ContentAddress(payload)
	s.content.EXPECT().Put(gomock.Any(), payload).Return(addr, nil)
	s.ledger.EXPECT().Register(gomock.Any(), s.dfid, addr, "testnet").Return("ref-1", nil)

	result, err := s.gateway.Commit(s.ctx, s.dfid, payload, s.ledgerDesc())
	s.Require().NoError(err)
	s.Equal(StatusConfirmed, result.Status)
	s.Equal(addr, result.ContentAddress)
	s.Equal("ref-1", result.LedgerReference)
}

func (s *GatewaySuite) TestContentFailureAborts() {
	s.content.EXPECT().Put(gomock.Any(), gomock.Any()).Return("", errors.New("boom"))

	_, err := s.gateway.Commit(s.ctx, s.dfid, []byte("payload"), s.ledgerDesc())
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeAdapterContent))
}

func (s *GatewaySuite) TestLedgerFailureDegradesToPending() {
	payload := []byte("payload")
	addr := ContentAddress(payload)
	s.content.EXPECT().Put(gomock.Any(), payload).Return(addr, nil)
	s.ledger.EXPECT().Register(gomock.Any(), s.dfid, addr, "testnet").Return("", errors.New("chain unavailable"))

	result, err := s.gateway.Commit(s.ctx, s.dfid, payload, s.ledgerDesc())
	s.Require().NoError(err, "ledger degradation is not a commit failure")
	s.Equal(StatusPending, result.Status)
	s.Equal(addr, result.ContentAddress, "address survives for retry")
	s.Empty(result.LedgerReference)
}

func (s *GatewaySuite) TestContentOnlyAdapterSkipsLedger() {
	payload := []byte("payload")
	addr := ContentAddress(payload)
	s.content.EXPECT().Put(gomock.Any(), payload).Return(addr, nil)
	// No ledger expectation: the ledger must never be called.

	result, err := s.gateway.Commit(s.ctx, s.dfid, payload, Descriptor{Kind: id.AdapterContent, MinTier: id.TierBasic})
	s.Require().NoError(err)
	s.Equal(StatusConfirmed, result.Status)
	s.Empty(result.LedgerReference)
}

func (s *GatewaySuite) TestLedgerBreakerShortCircuits() {
	breaker := circuit.New("ledger", circuit.WithFailureThreshold(2))
	gateway := NewGateway(s.content, s.ledger, time.Second,
		WithLogger(slog.New(slog.DiscardHandler)),
		WithLedgerBreaker(breaker),
	)
	payload := []byte("payload")
	addr := ContentAddress(payload)

	s.Run("failures open the breaker", func() {
		s.content.EXPECT().Put(gomock.Any(), payload).Return(addr, nil).Times(2)
		s.ledger.EXPECT().Register(gomock.Any(), s.dfid, addr, "testnet").
			Return("", errors.New("chain unavailable")).Times(2)

		for i := 0; i < 2; i++ {
			result, err := gateway.Commit(s.ctx, s.dfid, payload, s.ledgerDesc())
			s.Require().NoError(err)
			s.Equal(StatusPending, result.Status)
		}
		s.True(breaker.IsOpen())
	})

	s.Run("open breaker skips the ledger entirely", func() {
		s.content.EXPECT().Put(gomock.Any(), payload).Return(addr, nil)
		// No Register expectation: the ledger must not be called.

		result, err := gateway.Commit(s.ctx, s.dfid, payload, s.ledgerDesc())
		s.Require().NoError(err)
		s.Equal(StatusPending, result.Status)
		s.Equal(addr, result.ContentAddress)
	})

	s.Run("a successful retry closes it again", func() {
		s.ledger.EXPECT().Register(gomock.Any(), s.dfid, addr, "testnet").Return("ref-3", nil)

		ref, err := gateway.RetryLedger(s.ctx, s.dfid, addr, s.ledgerDesc())
		s.Require().NoError(err)
		s.Equal("ref-3", ref)
		s.False(breaker.IsOpen())
	})
}

func (s *GatewaySuite) TestRetryLedger() {
	s.Run("retries only the ledger step", func() {
		s.ledger.EXPECT().Register(gomock.Any(), s.dfid, "sha256:abc", "testnet").Return("ref-2", nil)

		ref, err := s.gateway.RetryLedger(s.ctx, s.dfid, "sha256:abc", s.ledgerDesc())
		s.Require().NoError(err)
		s.Equal("ref-2", ref)
	})

	s.Run("surfaces ledger errors", func() {
		s.ledger.EXPECT().Register(gomock.Any(), s.dfid, "sha256:abc", "testnet").Return("", errors.New("still down"))

		_, err := s.gateway.RetryLedger(s.ctx, s.dfid, "sha256:abc", s.ledgerDesc())
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeAdapterLedger))
	})

	s.Run("rejects content-only descriptors", func() {
		_, err := s.gateway.RetryLedger(s.ctx, s.dfid, "sha256:abc", Descriptor{Kind: id.AdapterContent})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}
