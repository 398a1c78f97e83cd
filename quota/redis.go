package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ZaguanLabs/phrasebook"
	"github.com/redis/go-redis/v9"
)

// RedisTracker keeps quota counters in Redis so several processes share one
// budget.
//
// Each provider and month has its own counter key
// ("<prefix>quota:<provider>:<YYYY-MM>"), so rollover happens by moving to a
// new key. Old keys expire two months after their period started.
type RedisTracker struct {
	client    redis.Cmdable
	limits    map[string]int64
	now       func() time.Time
	location  *time.Location
	keyPrefix string
}

// NewRedisTracker creates a tracker for the given providers on an existing client.
func NewRedisTracker(client redis.Cmdable, descriptors []phrasebook.ProviderDescriptor, opts ...Option) *RedisTracker {
	o := newOptions(opts)
	return &RedisTracker{
		client:    client,
		limits:    limits(descriptors),
		now:       o.now,
		location:  o.location,
		keyPrefix: o.keyPrefix,
	}
}

// CanConsume reports whether chars more characters fit in the provider's
// budget for the current period.
func (t *RedisTracker) CanConsume(ctx context.Context, providerID string, chars int64) (bool, error) {
	limit, err := t.limit(providerID)
	if err != nil {
		return false, err
	}
	if limit <= 0 {
		return true, nil
	}

	consumed, err := t.consumed(ctx, providerID, t.periodStart())
	if err != nil {
		return false, err
	}
	return fits(limit, consumed, chars), nil
}

// Record adds chars to the provider's consumption for the current period.
func (t *RedisTracker) Record(ctx context.Context, providerID string, chars int64) error {
	if _, err := t.limit(providerID); err != nil {
		return err
	}
	if chars < 0 {
		return &phrasebook.QuotaError{Provider: providerID, Op: "record", Cause: fmt.Errorf("negative character count %d", chars)}
	}

	start := t.periodStart()
	key := t.key(providerID, start)

	if err := t.client.IncrBy(ctx, key, chars).Err(); err != nil {
		return &phrasebook.QuotaError{Provider: providerID, Op: "record", Cause: err}
	}
	if err := t.client.ExpireAt(ctx, key, start.AddDate(0, 2, 0)).Err(); err != nil {
		return &phrasebook.QuotaError{Provider: providerID, Op: "expire", Cause: err}
	}
	return nil
}

// CurrentPeriod returns the provider's state for the current period.
func (t *RedisTracker) CurrentPeriod(ctx context.Context, providerID string) (phrasebook.QuotaState, error) {
	limit, err := t.limit(providerID)
	if err != nil {
		return phrasebook.QuotaState{}, err
	}

	start := t.periodStart()
	consumed, err := t.consumed(ctx, providerID, start)
	if err != nil {
		return phrasebook.QuotaState{}, err
	}

	return phrasebook.QuotaState{
		ProviderID:         providerID,
		PeriodStart:        start,
		CharactersConsumed: consumed,
		MonthlyLimit:       limit,
	}, nil
}

func (t *RedisTracker) consumed(ctx context.Context, providerID string, start time.Time) (int64, error) {
	n, err := t.client.Get(ctx, t.key(providerID, start)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, &phrasebook.QuotaError{Provider: providerID, Op: "get", Cause: err}
	}
	return n, nil
}

func (t *RedisTracker) limit(providerID string) (int64, error) {
	limit, ok := t.limits[providerID]
	if !ok {
		return 0, fmt.Errorf("%w: %q", phrasebook.ErrUnknownProvider, providerID)
	}
	return limit, nil
}

func (t *RedisTracker) periodStart() time.Time {
	return PeriodStart(t.now(), t.location)
}

func (t *RedisTracker) key(providerID string, start time.Time) string {
	return t.keyPrefix + "quota:" + providerID + ":" + start.Format("2006-01")
}

var _ phrasebook.QuotaTracker = (*RedisTracker)(nil)
