package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrNotAcquired means the lock is held by someone else.
var ErrNotAcquired = errors.New("lock not acquired")

// unlockScript deletes the key only when the caller still holds it, so an
// expired holder cannot release a successor's lock.
const unlockScript = `
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end`

// DistributedLock is a single-key redis lock (SET NX EX + scripted unlock).
type DistributedLock struct {
	client     *redis.Client
	key        string
	value      string
	expiration time.Duration
}

// NewDistributedLock creates a lock on key with the given TTL.
func NewDistributedLock(client *redis.Client, key string, expiration time.Duration) *DistributedLock {
	return &DistributedLock{
		client:     client,
		key:        key,
		value:      uuid.New().String(),
		expiration: expiration,
	}
}

// TryLock attempts a non-blocking acquisition.
func (l *DistributedLock) TryLock(ctx context.Context) (bool, error) {
	return l.client.SetNX(ctx, l.key, l.value, l.expiration).Result()
}

// Lock retries acquisition until maxRetries is exhausted.
func (l *DistributedLock) Lock(ctx context.Context, retryInterval time.Duration, maxRetries int) error {
	for i := 0; i < maxRetries; i++ {
		ok, err := l.TryLock(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryInterval):
		}
	}
	return ErrNotAcquired
}

// Unlock releases the lock if this instance still holds it.
func (l *DistributedLock) Unlock(ctx context.Context) error {
	_, err := l.client.Eval(ctx, unlockScript, []string{l.key}, l.value).Result()
	return err
}

// AffiliateLocker serializes settlement runs per affiliate across service
// instances. The database row locks remain the correctness backstop; this
// lock only keeps concurrent settlements from burning transactions against
// each other, so redis unavailability degrades to lock-free operation
// instead of blocking settlements.
type AffiliateLocker struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewAffiliateLocker builds a locker with the given lock TTL.
func NewAffiliateLocker(client *redis.Client, ttl time.Duration, logger *zap.Logger) *AffiliateLocker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AffiliateLocker{client: client, ttl: ttl, logger: logger}
}

// Acquire takes the per-affiliate lock. An error always means the lock is
// held elsewhere; redis failures fail open with a no-op release.
func (a *AffiliateLocker) Acquire(ctx context.Context, affiliateID string) (func(), error) {
	l := NewDistributedLock(a.client, fmt.Sprintf("settle:lock:affiliate:%s", affiliateID), a.ttl)

	ok, err := l.TryLock(ctx)
	if err != nil {
		a.logger.Warn("settlement lock unavailable, proceeding on row locks",
			zap.String("affiliate_id", affiliateID),
			zap.Error(err))
		return func() {}, nil
	}
	if !ok {
		return nil, ErrNotAcquired
	}

	return func() {
		if err := l.Unlock(context.Background()); err != nil {
			a.logger.Warn("failed to release settlement lock",
				zap.String("affiliate_id", affiliateID),
				zap.Error(err))
		}
	}, nil
}
