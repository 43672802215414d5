//go:build integration

package lock_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"crosslink/internal/sync/lock"
	"crosslink/pkg/testutil/containers"
)

type RedisLockerSuite struct {
	suite.Suite
	redis  *containers.RedisContainer
	locker *lock.RedisLocker
}

func TestRedisLockerSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisLockerSuite))
}

func (s *RedisLockerSuite) SetupSuite() {
	s.redis = containers.NewRedisContainer(s.T())
	s.locker = lock.NewRedis(s.redis.Client)
}

func (s *RedisLockerSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisLockerSuite) TestAcquireRelease() {
	ctx := context.Background()

	lease, err := s.locker.Acquire(ctx, "integration:abc", time.Minute)
	s.Require().NoError(err)
	s.Require().NotNil(lease)

	s.Require().NoError(s.locker.Release(ctx, lease))

	// The key is free again.
	again, err := s.locker.Acquire(ctx, "integration:abc", time.Minute)
	s.Require().NoError(err)
	s.Require().NoError(s.locker.Release(ctx, again))
}

func (s *RedisLockerSuite) TestContendedAcquireTimesOut() {
	ctx := context.Background()

	held, err := s.locker.Acquire(ctx, "integration:abc", time.Minute)
	s.Require().NoError(err)
	defer func() { s.NoError(s.locker.Release(ctx, held)) }()

	waitCtx, cancel := context.WithTimeout(ctx, 150*time.Millisecond)
	defer cancel()
	_, err = s.locker.Acquire(waitCtx, "integration:abc", time.Minute)
	s.ErrorIs(err, context.DeadlineExceeded)
}

func (s *RedisLockerSuite) TestAcquireWaitsForRelease() {
	ctx := context.Background()

	held, err := s.locker.Acquire(ctx, "integration:abc", time.Minute)
	s.Require().NoError(err)

	go func() {
		time.Sleep(100 * time.Millisecond)
		_ = s.locker.Release(context.Background(), held)
	}()

	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	lease, err := s.locker.Acquire(waitCtx, "integration:abc", time.Minute)
	s.Require().NoError(err)
	s.NoError(s.locker.Release(ctx, lease))
}

// TestStaleLeaseCannotReleaseNewLock exercises the fenced release: a lease
// whose TTL expired must not delete the lock a later holder acquired.
func (s *RedisLockerSuite) TestStaleLeaseCannotReleaseNewLock() {
	ctx := context.Background()

	stale, err := s.locker.Acquire(ctx, "integration:abc", 50*time.Millisecond)
	s.Require().NoError(err)

	// Let the lease expire, then let someone else take the lock.
	time.Sleep(100 * time.Millisecond)
	current, err := s.locker.Acquire(ctx, "integration:abc", time.Minute)
	s.Require().NoError(err)

	// Releasing the stale lease is a no-op.
	s.Require().NoError(s.locker.Release(ctx, stale))

	// The current holder's lock survives: a third acquire still waits.
	waitCtx, cancel := context.WithTimeout(ctx, 150*time.Millisecond)
	defer cancel()
	_, err = s.locker.Acquire(waitCtx, "integration:abc", time.Minute)
	s.ErrorIs(err, context.DeadlineExceeded)

	s.NoError(s.locker.Release(ctx, current))
}
