package quota

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ZaguanLabs/phrasebook"
)

// counter is one provider's consumption for its current period.
type counter struct {
	mu          sync.Mutex
	limit       int64
	periodStart time.Time
	consumed    int64
}

// MemoryTracker keeps quota counters in process memory.
//
// The set of providers is fixed at construction. Each provider has its own
// lock, so updates for different providers never contend.
type MemoryTracker struct {
	counters map[string]*counter
	now      func() time.Time
	location *time.Location
}

// NewMemoryTracker creates a tracker for the given providers.
func NewMemoryTracker(descriptors []phrasebook.ProviderDescriptor, opts ...Option) *MemoryTracker {
	o := newOptions(opts)
	start := PeriodStart(o.now(), o.location)

	counters := make(map[string]*counter, len(descriptors))
	for id, limit := range limits(descriptors) {
		counters[id] = &counter{limit: limit, periodStart: start}
	}

	return &MemoryTracker{
		counters: counters,
		now:      o.now,
		location: o.location,
	}
}

// CanConsume reports whether chars more characters fit in the provider's
// budget for the current period.
func (t *MemoryTracker) CanConsume(_ context.Context, providerID string, chars int64) (bool, error) {
	c, err := t.counter(providerID)
	if err != nil {
		return false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	t.rollover(c)
	return fits(c.limit, c.consumed, chars), nil
}

// Record adds chars to the provider's consumption for the current period.
func (t *MemoryTracker) Record(_ context.Context, providerID string, chars int64) error {
	if chars < 0 {
		return &phrasebook.QuotaError{Provider: providerID, Op: "record", Cause: fmt.Errorf("negative character count %d", chars)}
	}
	c, err := t.counter(providerID)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	t.rollover(c)
	c.consumed += chars
	return nil
}

// CurrentPeriod returns the provider's state for the current period.
func (t *MemoryTracker) CurrentPeriod(_ context.Context, providerID string) (phrasebook.QuotaState, error) {
	c, err := t.counter(providerID)
	if err != nil {
		return phrasebook.QuotaState{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	t.rollover(c)
	return phrasebook.QuotaState{
		ProviderID:         providerID,
		PeriodStart:        c.periodStart,
		CharactersConsumed: c.consumed,
		MonthlyLimit:       c.limit,
	}, nil
}

func (t *MemoryTracker) counter(providerID string) (*counter, error) {
	c, ok := t.counters[providerID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", phrasebook.ErrUnknownProvider, providerID)
	}
	return c, nil
}

// rollover resets c when a new calendar month has started. Must be called
// with c.mu held.
func (t *MemoryTracker) rollover(c *counter) {
	start := PeriodStart(t.now(), t.location)
	if start.After(c.periodStart) {
		c.periodStart = start
		c.consumed = 0
	}
}

var _ phrasebook.QuotaTracker = (*MemoryTracker)(nil)
