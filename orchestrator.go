package phrasebook

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/ZaguanLabs/phrasebook/telemetry"
)

// OrchestratorConfig configures an Orchestrator.
type OrchestratorConfig struct {
	Providers []Provider   // Registered providers; IDs must be unique
	Quota     QuotaTracker // Optional; nil leaves every provider unmetered
	Cache     CacheStore   // Optional; successful translations are written here
	Logger    *slog.Logger // Defaults to slog.Default()
	Now       func() time.Time
}

// Orchestrator walks an ordered provider list until one translates the text.
//
// Each provider gets a single attempt per resolve. Metered providers are
// skipped when their quota cannot cover the text, failures advance to the next
// provider and successes are charged to quota and written to the cache store.
type Orchestrator struct {
	providers    map[string]Provider
	defaultOrder []string
	quota        QuotaTracker
	cache        CacheStore
	logger       *slog.Logger
	now          func() time.Time
}

// NewOrchestrator validates cfg and builds an Orchestrator.
func NewOrchestrator(cfg OrchestratorConfig) (*Orchestrator, error) {
	if len(cfg.Providers) == 0 {
		return nil, ErrNoProviders
	}

	o := &Orchestrator{
		providers: make(map[string]Provider, len(cfg.Providers)),
		quota:     cfg.Quota,
		cache:     cfg.Cache,
		logger:    cfg.Logger,
		now:       cfg.Now,
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.now == nil {
		o.now = time.Now
	}

	descriptors := make([]ProviderDescriptor, 0, len(cfg.Providers))
	for _, p := range cfg.Providers {
		d := p.Descriptor()
		if d.ID == "" {
			return nil, fmt.Errorf("phrasebook: provider with empty id")
		}
		if _, dup := o.providers[d.ID]; dup {
			return nil, fmt.Errorf("phrasebook: duplicate provider id %q", d.ID)
		}
		o.providers[d.ID] = p
		descriptors = append(descriptors, d)
	}

	slices.SortFunc(descriptors, func(a, b ProviderDescriptor) int {
		if c := cmp.Compare(a.Priority, b.Priority); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	for _, d := range descriptors {
		o.defaultOrder = append(o.defaultOrder, d.ID)
	}

	return o, nil
}

// DefaultOrder returns provider IDs sorted by priority, then ID.
func (o *Orchestrator) DefaultOrder() []string {
	return slices.Clone(o.defaultOrder)
}

// Provider returns the registered provider with the given ID.
func (o *Orchestrator) Provider(id string) (Provider, bool) {
	p, ok := o.providers[id]
	return p, ok
}

// Quota returns the quota tracker, which may be nil.
func (o *Orchestrator) Quota() QuotaTracker {
	return o.quota
}

// Cache returns the cache store, which may be nil.
func (o *Orchestrator) Cache() CacheStore {
	return o.cache
}

// Resolve translates text by trying providers in order. An empty order means
// DefaultOrder. Naming an unregistered provider fails with ErrUnknownProvider
// before any backend is called.
//
// When every provider fails, the error is an *AllProvidersExhaustedError
// carrying the last outcome per provider. When ctx is done the walk stops and
// the context error is returned.
func (o *Orchestrator) Resolve(ctx context.Context, text, srcLang, tgtLang string, order []string) (TranslationResult, error) {
	start := o.now()

	key := NewCacheKey(text, srcLang, tgtLang)
	if key.Text == "" {
		return TranslationResult{}, ErrEmptyText
	}

	chain, err := o.chain(order)
	if err != nil {
		return TranslationResult{}, err
	}

	chars := CharCount(key.Text)
	attempts := make([]Attempt, 0, len(chain))
	seen := make(map[string]int, len(chain))
	record := func(a Attempt) {
		if i, ok := seen[a.ProviderID]; ok {
			attempts[i] = a
			return
		}
		seen[a.ProviderID] = len(attempts)
		attempts = append(attempts, a)
	}

	for _, p := range chain {
		if err := ctx.Err(); err != nil {
			return TranslationResult{}, fmt.Errorf("phrasebook: resolve cancelled: %w", err)
		}

		desc := p.Descriptor()
		metered := o.quota != nil && !desc.OfflineCapable

		if metered && !o.canConsume(ctx, desc.ID, chars) {
			o.logger.Debug("provider skipped", "provider", desc.ID, "outcome", OutcomeQuotaExceeded, "chars", chars)
			telemetry.RecordProviderAttempt(ctx, desc.ID, OutcomeQuotaExceeded.String(), 0)
			record(Attempt{
				ProviderID: desc.ID,
				Outcome:    OutcomeQuotaExceeded,
				Err:        NewProviderError(desc.ID, OutcomeQuotaExceeded, "monthly quota exhausted", nil),
			})
			continue
		}

		callStart := time.Now()
		translated, err := p.Translate(ctx, key.Text, srcLang, tgtLang)
		callDuration := time.Since(callStart)

		if err == nil && translated == "" {
			err = NewProviderError(desc.ID, OutcomeUnsupported, "empty translation", nil)
		}

		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return TranslationResult{}, fmt.Errorf("phrasebook: resolve cancelled during %s: %w", desc.ID, ctxErr)
			}

			outcome := OutcomeOf(err)
			if outcome == OutcomeSuccess {
				outcome = OutcomeNetworkError
			}
			o.logger.Debug("provider failed", "provider", desc.ID, "outcome", outcome, "error", err)
			telemetry.RecordProviderAttempt(ctx, desc.ID, outcome.String(), callDuration)
			record(Attempt{ProviderID: desc.ID, Outcome: outcome, Err: err})
			continue
		}

		telemetry.RecordProviderAttempt(ctx, desc.ID, OutcomeSuccess.String(), callDuration)

		if metered {
			if err := o.quota.Record(ctx, desc.ID, chars); err != nil {
				o.logger.Warn("quota record failed", "provider", desc.ID, "chars", chars, "error", err)
			} else {
				telemetry.RecordQuotaConsumed(ctx, desc.ID, chars)
			}
		}

		if o.cache != nil {
			entry := CacheEntry{
				Key:            key,
				TranslatedText: translated,
				ProviderID:     desc.ID,
				CreatedAt:      o.now(),
			}
			if err := o.cache.Put(ctx, entry); err != nil {
				o.logger.Warn("cache write failed", "provider", desc.ID, "error", err)
			}
		}

		return TranslationResult{
			TranslatedText: translated,
			ProviderID:     desc.ID,
			ElapsedMs:      o.now().Sub(start).Milliseconds(),
		}, nil
	}

	return TranslationResult{}, &AllProvidersExhaustedError{Attempts: attempts}
}

// chain maps order to registered providers.
func (o *Orchestrator) chain(order []string) ([]Provider, error) {
	if len(order) == 0 {
		order = o.defaultOrder
	}

	chain := make([]Provider, 0, len(order))
	for _, id := range order {
		p, ok := o.providers[id]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, id)
		}
		chain = append(chain, p)
	}
	return chain, nil
}

// canConsume reports quota headroom. Tracker errors count as headroom.
func (o *Orchestrator) canConsume(ctx context.Context, providerID string, chars int64) bool {
	ok, err := o.quota.CanConsume(ctx, providerID, chars)
	if err != nil {
		o.logger.Warn("quota check failed", "provider", providerID, "error", err)
		return true
	}
	return ok
}
