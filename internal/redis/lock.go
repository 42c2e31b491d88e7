package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// lockPollInterval is how often a blocked caller re-attempts acquisition.
const lockPollInterval = 50 * time.Millisecond

// LockStore handles distributed per-trip locking in Redis. All mutating
// operations on the same trip id serialize on this lock; operations on
// different trips do not block each other.
type LockStore struct {
	client *redis.Client
}

// NewLockStore creates a new LockStore.
func NewLockStore(client *redis.Client) *LockStore {
	return &LockStore{client: client}
}

// AcquireTripLock attempts a single acquisition of the lock for the given
// trip. Returns true if the lock was acquired, false if already held.
func (s *LockStore) AcquireTripLock(ctx context.Context, tripID string, ttl time.Duration) (bool, error) {
	key := fmt.Sprintf("lock:trip:%s", tripID)

	ok, err := s.client.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		return false, err
	}

	return ok, nil
}

// AcquireTripLockWait blocks until the trip lock is acquired or the wait
// budget elapses. Returns false when the budget runs out; callers map
// that to a retryable store-busy failure, not a business rejection.
func (s *LockStore) AcquireTripLockWait(ctx context.Context, tripID string, ttl, wait time.Duration) (bool, error) {
	deadline := time.Now().Add(wait)

	for {
		ok, err := s.AcquireTripLock(ctx, tripID, ttl)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}

		if time.Now().Add(lockPollInterval).After(deadline) {
			return false, nil
		}

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(lockPollInterval):
		}
	}
}

// ReleaseTripLock releases the lock for the given trip.
func (s *LockStore) ReleaseTripLock(ctx context.Context, tripID string) error {
	key := fmt.Sprintf("lock:trip:%s", tripID)

	return s.client.Del(ctx, key).Err()
}
