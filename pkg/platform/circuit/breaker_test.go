package circuit

import (
	"testing"

	"github.com/stretchr/testify/suite"
)

type BreakerSuite struct {
	suite.Suite
}

func TestBreakerSuite(t *testing.T) {
	suite.Run(t, new(BreakerSuite))
}

func (s *BreakerSuite) TestStartsClosed() {
	b := New("downstream")
	s.False(b.IsOpen())
	s.Equal(StateClosed, b.State())
	s.Equal("downstream", b.Name())
}

func (s *BreakerSuite) TestOpensAtFailureThreshold() {
	b := New("downstream", WithFailureThreshold(3))

	for i := 0; i < 2; i++ {
		useFallback, change := b.RecordFailure()
		s.False(useFallback)
		s.False(change.Opened)
	}

	useFallback, change := b.RecordFailure()
	s.True(useFallback)
	s.True(change.Opened)
	s.True(b.IsOpen())

	s.Run("further failures report no state change", func() {
		useFallback, change := b.RecordFailure()
		s.True(useFallback)
		s.False(change.Opened)
	})
}

func (s *BreakerSuite) TestClosesAtSuccessThreshold() {
	b := New("downstream", WithFailureThreshold(1), WithSuccessThreshold(2))
	b.RecordFailure()
	s.Require().True(b.IsOpen())

	usePrimary, change := b.RecordSuccess()
	s.False(usePrimary)
	s.False(change.Closed)
	s.True(b.IsOpen())

	usePrimary, change = b.RecordSuccess()
	s.True(usePrimary)
	s.True(change.Closed)
	s.False(b.IsOpen())
}

func (s *BreakerSuite) TestCountsAreConsecutive() {
	s.Run("a success resets the failure count", func() {
		b := New("downstream", WithFailureThreshold(3))
		b.RecordFailure()
		b.RecordFailure()
		b.RecordSuccess()

		b.RecordFailure()
		b.RecordFailure()
		s.False(b.IsOpen())
		b.RecordFailure()
		s.True(b.IsOpen())
	})

	s.Run("a failure resets the success count", func() {
		b := New("downstream", WithFailureThreshold(1), WithSuccessThreshold(3))
		b.RecordFailure()
		s.Require().True(b.IsOpen())

		b.RecordSuccess()
		b.RecordSuccess()
		b.RecordFailure()

		b.RecordSuccess()
		b.RecordSuccess()
		s.True(b.IsOpen())
		b.RecordSuccess()
		s.False(b.IsOpen())
	})
}

func (s *BreakerSuite) TestReset() {
	b := New("downstream", WithFailureThreshold(1))
	b.RecordFailure()
	s.Require().True(b.IsOpen())

	b.Reset()
	s.False(b.IsOpen())
	s.Equal(StateClosed, b.State())
}
