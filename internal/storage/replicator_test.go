package storage

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type ReplicatorSuite struct {
	suite.Suite
	logger *slog.Logger
}

func (s *ReplicatorSuite) SetupTest() {
	s.logger = slog.New(slog.DiscardHandler)
}

func TestReplicatorSuite(t *testing.T) {
	suite.Run(t, new(ReplicatorSuite))
}

// run starts the replicator and returns a stop func that cancels and waits
// for the drain to finish.
func (s *ReplicatorSuite) run(r *Replicator) (stop func()) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()
	return func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			s.FailNow("replicator did not drain")
		}
	}
}

func (s *ReplicatorSuite) TestRetriesUntilSuccess() {
	r := NewReplicator(1, 16, 5, s.logger, WithBaseDelay(time.Millisecond))
	stop := s.run(r)

	var attempts atomic.Int32
	applied := make(chan struct{})
	r.Enqueue(Op{
		Entity: "item",
		ID:     "df_1",
		Name:   "upsert",
		Apply: func(context.Context) error {
			if attempts.Add(1) < 3 {
				return errors.New("transient")
			}
			close(applied)
			return nil
		},
	})

	select {
	case <-applied:
	case <-time.After(2 * time.Second):
		s.FailNow("op never succeeded")
	}
	stop()
	s.Equal(int32(3), attempts.Load())
}

func (s *ReplicatorSuite) TestTerminalFailureDoesNotBlockQueue() {
	r := NewReplicator(1, 16, 1, s.logger, WithBaseDelay(time.Millisecond))
	stop := s.run(r)
	defer stop()

	applied := make(chan string, 2)
	r.Enqueue(Op{
		Entity: "item",
		ID:     "df_1",
		Name:   "upsert",
		Apply: func(context.Context) error {
			return errors.New("permanent")
		},
	})
	r.Enqueue(Op{
		Entity: "item",
		ID:     "df_1",
		Name:   "upsert",
		Apply: func(context.Context) error {
			applied <- "second"
			return nil
		},
	})

	select {
	case got := <-applied:
		s.Equal("second", got)
	case <-time.After(2 * time.Second):
		s.FailNow("queue stalled behind a terminal failure")
	}
}

func (s *ReplicatorSuite) TestPerEntityOrdering() {
	r := NewReplicator(4, 64, 0, s.logger, WithBaseDelay(time.Millisecond))
	stop := s.run(r)

	var mu sync.Mutex
	seen := map[string][]int{}
	const perEntity = 20
	entities := []string{"df_a", "df_b", "df_c"}

	for i := 0; i < perEntity; i++ {
		for _, entity := range entities {
			entity, i := entity, i
			r.Enqueue(Op{
				Entity: "item",
				ID:     entity,
				Name:   "upsert",
				Apply: func(context.Context) error {
					mu.Lock()
					seen[entity] = append(seen[entity], i)
					mu.Unlock()
					return nil
				},
			})
		}
	}
	stop()

	mu.Lock()
	defer mu.Unlock()
	for _, entity := range entities {
		s.Require().Len(seen[entity], perEntity)
		for i, got := range seen[entity] {
			s.Require().Equal(i, got, "writes for %s applied out of order", entity)
		}
	}
}

func (s *ReplicatorSuite) TestDrainOnShutdown() {
	r := NewReplicator(2, 64, 0, s.logger)
	ctx, cancel := context.WithCancel(context.Background())

	var applied atomic.Int32
	const queued = 10
	for i := 0; i < queued; i++ {
		r.Enqueue(Op{
			Entity: "circuit",
			ID:     "c1",
			Name:   "upsert",
			Apply: func(context.Context) error {
				applied.Add(1)
				return nil
			},
		})
	}

	// Cancel before Run: workers must still drain what was accepted.
	cancel()
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		s.FailNow("replicator did not drain")
	}
	s.Equal(int32(queued), applied.Load())
}
