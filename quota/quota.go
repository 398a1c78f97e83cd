// Package quota provides phrasebook.QuotaTracker implementations that count
// characters per provider per calendar month.
package quota

import (
	"time"

	"github.com/ZaguanLabs/phrasebook"
)

// Option configures a tracker.
type Option func(*options)

type options struct {
	now       func() time.Time
	location  *time.Location
	keyPrefix string
}

func newOptions(opts []Option) options {
	o := options{
		now:       time.Now,
		location:  time.UTC,
		keyPrefix: "phrasebook:",
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithNow sets the clock used to determine the current period.
func WithNow(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithLocation sets the time zone whose calendar months define periods
// (default: UTC).
func WithLocation(loc *time.Location) Option {
	return func(o *options) {
		if loc != nil {
			o.location = loc
		}
	}
}

// WithKeyPrefix sets the key prefix for shared backends (default: "phrasebook:").
func WithKeyPrefix(prefix string) Option {
	return func(o *options) {
		if prefix != "" {
			o.keyPrefix = prefix
		}
	}
}

// PeriodStart returns the first instant of t's calendar month in loc.
func PeriodStart(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, loc)
}

// limits indexes monthly limits by provider ID.
func limits(descriptors []phrasebook.ProviderDescriptor) map[string]int64 {
	m := make(map[string]int64, len(descriptors))
	for _, d := range descriptors {
		m[d.ID] = d.MonthlyLimit
	}
	return m
}

func fits(limit, consumed, chars int64) bool {
	if limit <= 0 {
		return true
	}
	return limit-consumed >= chars
}
