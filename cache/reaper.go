package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/ZaguanLabs/phrasebook"
	"github.com/ZaguanLabs/phrasebook/telemetry"
)

// Reaper runs PurgeExpired on a store at a fixed interval.
type Reaper struct {
	store    phrasebook.CacheStore
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// ReaperOption configures a Reaper.
type ReaperOption func(*Reaper)

// WithReaperInterval sets the purge interval.
func WithReaperInterval(d time.Duration) ReaperOption {
	return func(r *Reaper) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithReaperLogger sets the logger for the reaper.
func WithReaperLogger(logger *slog.Logger) ReaperOption {
	return func(r *Reaper) {
		r.logger = logger
	}
}

// WithReaperNow sets the clock passed to PurgeExpired.
func WithReaperNow(now func() time.Time) ReaperOption {
	return func(r *Reaper) {
		r.now = now
	}
}

// NewReaper creates a reaper for store. Defaults: interval=1h.
func NewReaper(store phrasebook.CacheStore, opts ...ReaperOption) *Reaper {
	r := &Reaper{
		store:    store,
		interval: time.Hour,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run starts the purge loop. It blocks until the context is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Debug("cache reaper started", "interval", r.interval)

	for {
		select {
		case <-ctx.Done():
			r.logger.Debug("cache reaper stopped")
			return
		case <-ticker.C:
			_, _ = r.ReapNow(ctx)
		}
	}
}

// ReapNow runs a single purge immediately and returns how many entries
// were deleted.
func (r *Reaper) ReapNow(ctx context.Context) (int, error) {
	start := time.Now()
	deleted, err := r.store.PurgeExpired(ctx, r.now())
	if err != nil {
		r.logger.Error("cache purge failed", "error", err)
		return 0, err
	}
	telemetry.RecordPurge(ctx, deleted, time.Since(start))

	if deleted > 0 {
		r.logger.Info("expired translations purged", "deleted", deleted)
	}
	return deleted, nil
}
