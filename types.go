package phrasebook

import (
	"context"
	"time"
)

// DefaultRetention is how long a cached translation stays servable.
const DefaultRetention = 30 * 24 * time.Hour

// IdentityProviderID tags results returned unchanged because the source and
// target languages are the same.
const IdentityProviderID = "identity"

// CacheEntry is one resolved translation as held by a CacheStore.
type CacheEntry struct {
	Key            CacheKey
	TranslatedText string
	ProviderID     string    // Provider that produced the translation
	CreatedAt      time.Time // Set when the translation was resolved
}

// Expired reports whether the entry is stale at now for the given retention.
// A retention of zero or less never expires.
func (e CacheEntry) Expired(now time.Time, retention time.Duration) bool {
	if retention <= 0 {
		return false
	}
	return now.Sub(e.CreatedAt) >= retention
}

// QuotaState is a provider's character budget for the current period.
type QuotaState struct {
	ProviderID         string
	PeriodStart        time.Time
	CharactersConsumed int64
	MonthlyLimit       int64 // <= 0 means unmetered
}

// Remaining returns the characters left in the period, or -1 when unmetered.
func (s QuotaState) Remaining() int64 {
	if s.MonthlyLimit <= 0 {
		return -1
	}
	if r := s.MonthlyLimit - s.CharactersConsumed; r > 0 {
		return r
	}
	return 0
}

// ProviderDescriptor is the static description of a provider.
type ProviderDescriptor struct {
	ID             string
	Priority       int   // Lower values are tried first in the default order
	MonthlyLimit   int64 // Characters per calendar month, <= 0 means unmetered
	OfflineCapable bool  // Translates locally; never consults quota
}

// TranslationResult is what callers get back from a translation.
type TranslationResult struct {
	TranslatedText  string `json:"translated_text"`
	ProviderID      string `json:"provider_id"`
	ServedFromCache bool   `json:"served_from_cache"`
	ElapsedMs       int64  `json:"elapsed_ms"`
}

// Provider is a translation backend.
//
// Translate returns the translated text or an error. Implementations report
// failures as *ProviderError so the orchestrator can decide how to proceed
// without inspecting backend details.
type Provider interface {
	Descriptor() ProviderDescriptor
	Translate(ctx context.Context, text, srcLang, tgtLang string) (string, error)
}

// CacheStore persists resolved translations.
type CacheStore interface {
	// Get returns the entry for key if it exists and is inside the retention
	// window. Expired rows that have not been purged yet are reported as misses.
	Get(ctx context.Context, key CacheKey) (CacheEntry, bool, error)

	// Put stores entry under entry.Key, replacing any previous entry.
	// A zero CreatedAt is set to the store's current time.
	Put(ctx context.Context, entry CacheEntry) error

	// PurgeExpired physically deletes entries that are stale at now and
	// returns how many were removed.
	PurgeExpired(ctx context.Context, now time.Time) (int, error)
}

// QuotaTracker counts characters consumed per provider per calendar month.
type QuotaTracker interface {
	// CanConsume reports whether chars more characters fit in the budget.
	// It is a check, not a reservation.
	CanConsume(ctx context.Context, providerID string, chars int64) (bool, error)

	// Record adds chars to the provider's consumption for the current period.
	Record(ctx context.Context, providerID string, chars int64) error

	// CurrentPeriod returns the provider's state, rolling the period over
	// first if the calendar month has changed.
	CurrentPeriod(ctx context.Context, providerID string) (QuotaState, error)
}
