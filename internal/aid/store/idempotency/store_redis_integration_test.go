//go:build integration

package idempotency_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"aidpool/internal/aid/store/idempotency"
	"aidpool/pkg/testutil/containers"
)

type RedisIdempotencySuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *idempotency.RedisStore
}

func TestRedisIdempotencySuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisIdempotencySuite))
}

func (s *RedisIdempotencySuite) SetupSuite() {
	s.redis = containers.NewRedisContainer(s.T())
	s.store = idempotency.NewRedis(s.redis.Client)
}

func (s *RedisIdempotencySuite) TearDownSuite() {
	_ = s.redis.Client.Close()
	_ = s.redis.Container.Terminate(context.Background())
}

func (s *RedisIdempotencySuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisIdempotencySuite) TestClaimOnce() {
	ctx := context.Background()

	claimed, err := s.store.Claim(ctx, "evt-1", time.Minute)
	s.Require().NoError(err)
	s.True(claimed)

	claimed, err = s.store.Claim(ctx, "evt-1", time.Minute)
	s.Require().NoError(err)
	s.False(claimed)

	// A different key is independent.
	claimed, err = s.store.Claim(ctx, "evt-2", time.Minute)
	s.Require().NoError(err)
	s.True(claimed)
}

func (s *RedisIdempotencySuite) TestClaimExpires() {
	ctx := context.Background()

	claimed, err := s.store.Claim(ctx, "evt-ttl", 100*time.Millisecond)
	s.Require().NoError(err)
	s.True(claimed)

	s.Require().Eventually(func() bool {
		claimed, err := s.store.Claim(ctx, "evt-ttl", time.Minute)
		return err == nil && claimed
	}, 2*time.Second, 50*time.Millisecond)
}

func (s *RedisIdempotencySuite) TestConcurrentClaimsSingleWinner() {
	ctx := context.Background()

	const goroutines = 20
	var wg sync.WaitGroup
	var wins atomic.Int32
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claimed, err := s.store.Claim(ctx, "evt-race", time.Minute)
			s.Require().NoError(err)
			if claimed {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), wins.Load())
}
