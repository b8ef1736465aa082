//go:build integration

package adapter_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"

	"attestor/internal/adapter"
	"attestor/pkg/testutil/containers"
)

type RedisContentSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *adapter.RedisContentStore
}

func TestRedisContentSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisContentSuite))
}

func (s *RedisContentSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
	s.store = adapter.NewRedisContentStore(s.redis.Client)
}

func (s *RedisContentSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisContentSuite) TestConcurrentPutsConverge() {
	ctx := context.Background()
	payload := []byte("shared payload")
	want := adapter.ContentAddress(payload)

	const writers = 20
	var wg sync.WaitGroup
	addrs := make(chan string, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			addr, err := s.store.Put(ctx, payload)
			if err == nil {
				addrs <- addr
			}
		}()
	}
	wg.Wait()
	close(addrs)

	count := 0
	for addr := range addrs {
		s.Equal(want, addr)
		count++
	}
	s.Equal(writers, count, "every put must succeed")

	got, err := s.store.Get(ctx, want)
	s.Require().NoError(err)
	s.Equal(payload, got)
}

func (s *RedisContentSuite) TestFirstWriteWins() {
	ctx := context.Background()
	payload := []byte("immutable object")
	addr, err := s.store.Put(ctx, payload)
	s.Require().NoError(err)

	// A second put of the same content must not clobber the stored object.
	again, err := s.store.Put(ctx, payload)
	s.Require().NoError(err)
	s.Equal(addr, again)

	got, err := s.store.Get(ctx, addr)
	s.Require().NoError(err)
	s.Equal(payload, got)
}
