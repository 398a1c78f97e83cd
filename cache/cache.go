// Package cache provides phrasebook.CacheStore implementations.
//
// Every store keeps entries until PurgeExpired removes them, but Get never
// returns an entry older than the store's retention window.
package cache

import (
	"context"
	"time"

	"github.com/ZaguanLabs/phrasebook"
)

// Lister is implemented by stores that can enumerate their live entries.
// It is used for cache export.
type Lister interface {
	Entries(ctx context.Context) ([]phrasebook.CacheEntry, error)
}

// Option configures a cache store.
type Option func(*options)

type options struct {
	retention time.Duration
	now       func() time.Time
	keyPrefix string
}

func newOptions(opts []Option) options {
	o := options{
		retention: phrasebook.DefaultRetention,
		now:       time.Now,
		keyPrefix: "phrasebook:",
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithRetention sets how long entries stay servable (default: 30 days).
// Zero or negative keeps entries forever.
func WithRetention(d time.Duration) Option {
	return func(o *options) {
		o.retention = d
	}
}

// WithNow sets the clock used for expiry and default timestamps.
func WithNow(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
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

// stamp fills a zero CreatedAt and validates the entry.
func stamp(entry phrasebook.CacheEntry, now func() time.Time) (phrasebook.CacheEntry, error) {
	if entry.Key.Text == "" {
		return entry, &phrasebook.CacheError{Op: "put", Cause: phrasebook.ErrEmptyText}
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now()
	}
	return entry, nil
}

// record is the serialized form of an entry in bolt, redis and export files.
type record struct {
	Text           string    `json:"text"`
	SourceLang     string    `json:"source_lang"`
	TargetLang     string    `json:"target_lang"`
	TranslatedText string    `json:"translated_text"`
	ProviderID     string    `json:"provider_id"`
	CreatedAt      time.Time `json:"created_at"`
}

func toRecord(e phrasebook.CacheEntry) record {
	return record{
		Text:           e.Key.Text,
		SourceLang:     e.Key.SourceLang,
		TargetLang:     e.Key.TargetLang,
		TranslatedText: e.TranslatedText,
		ProviderID:     e.ProviderID,
		CreatedAt:      e.CreatedAt.UTC(),
	}
}

func (r record) entry() phrasebook.CacheEntry {
	return phrasebook.CacheEntry{
		Key: phrasebook.CacheKey{
			Text:       r.Text,
			SourceLang: r.SourceLang,
			TargetLang: r.TargetLang,
		},
		TranslatedText: r.TranslatedText,
		ProviderID:     r.ProviderID,
		CreatedAt:      r.CreatedAt,
	}
}
