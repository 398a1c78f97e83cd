package phrasebook

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ZaguanLabs/phrasebook/telemetry"
)

// Translator is the entry point collaborators call. It answers from the
// cache store when it can and hands misses to the orchestrator.
type Translator struct {
	orch         *Orchestrator
	cache        CacheStore
	pair         LanguagePair
	defaultOrder []string
	coalesce     bool
	group        singleflight.Group
	logger       *slog.Logger
	now          func() time.Time
}

// TranslatorOption is a functional option for configuring the Translator.
type TranslatorOption func(*Translator)

// WithLanguagePair sets the deployment's language pair. Calls may omit the
// languages to use it, and calls naming any other pair are rejected.
func WithLanguagePair(source, target string) TranslatorOption {
	return func(t *Translator) {
		t.pair = LanguagePair{Source: source, Target: target}
	}
}

// WithDefaultOrder sets the provider order used when a call names none.
func WithDefaultOrder(order ...string) TranslatorOption {
	return func(t *Translator) {
		t.defaultOrder = order
	}
}

// WithCoalescing makes concurrent misses for the same key and order share a
// single resolve.
func WithCoalescing(enabled bool) TranslatorOption {
	return func(t *Translator) {
		t.coalesce = enabled
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) TranslatorOption {
	return func(t *Translator) {
		t.logger = logger
	}
}

// WithNow sets the clock used for elapsed time.
func WithNow(now func() time.Time) TranslatorOption {
	return func(t *Translator) {
		t.now = now
	}
}

// NewTranslator creates a Translator over orch. The cache store is the one
// the orchestrator writes to.
func NewTranslator(orch *Orchestrator, opts ...TranslatorOption) *Translator {
	t := &Translator{
		orch:   orch,
		cache:  orch.Cache(),
		logger: slog.Default(),
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// LanguagePair returns the configured pair. It is zero when none was set.
func (t *Translator) LanguagePair() LanguagePair {
	return t.pair
}

// Translate resolves text from srcLang to tgtLang. Empty languages default
// to the configured pair, and an empty order to the translator's default
// order or, failing that, the orchestrator's.
func (t *Translator) Translate(ctx context.Context, text, srcLang, tgtLang string, order ...string) (TranslationResult, error) {
	start := t.now()

	if srcLang == "" {
		srcLang = t.pair.Source
	}
	if tgtLang == "" {
		tgtLang = t.pair.Target
	}

	key := NewCacheKey(text, srcLang, tgtLang)
	if key.Text == "" {
		return TranslationResult{}, ErrEmptyText
	}
	if srcLang == "" || tgtLang == "" {
		return TranslationResult{}, fmt.Errorf("%w: source and target language are required", ErrUnsupportedLanguagePair)
	}

	if SameLanguage(srcLang, tgtLang) {
		telemetry.RecordTranslation(ctx, "identity", t.now().Sub(start))
		return TranslationResult{
			TranslatedText: key.Text,
			ProviderID:     IdentityProviderID,
			ElapsedMs:      t.now().Sub(start).Milliseconds(),
		}, nil
	}

	if t.pair != (LanguagePair{}) && !t.pair.Accepts(srcLang, tgtLang) {
		return TranslationResult{}, fmt.Errorf("%w: %s-%s (configured %s)", ErrUnsupportedLanguagePair, srcLang, tgtLang, t.pair)
	}

	if entry, ok := t.lookup(ctx, key); ok {
		elapsed := t.now().Sub(start)
		telemetry.RecordTranslation(ctx, "cache", elapsed)
		return TranslationResult{
			TranslatedText:  entry.TranslatedText,
			ProviderID:      entry.ProviderID,
			ServedFromCache: true,
			ElapsedMs:       elapsed.Milliseconds(),
		}, nil
	}

	if len(order) == 0 {
		order = t.defaultOrder
	}

	result, err := t.resolve(ctx, key, order)
	elapsed := t.now().Sub(start)
	if err != nil {
		telemetry.RecordTranslation(ctx, "error", elapsed)
		return TranslationResult{}, err
	}

	telemetry.RecordTranslation(ctx, "provider", elapsed)
	result.ServedFromCache = false
	result.ElapsedMs = elapsed.Milliseconds()
	return result, nil
}

// lookup reads the cache. Read failures are logged and count as misses.
func (t *Translator) lookup(ctx context.Context, key CacheKey) (CacheEntry, bool) {
	if t.cache == nil {
		return CacheEntry{}, false
	}

	entry, ok, err := t.cache.Get(ctx, key)
	switch {
	case err != nil:
		t.logger.Warn("cache read failed", "error", err)
		telemetry.RecordCacheLookup(ctx, telemetry.CacheError)
		return CacheEntry{}, false
	case !ok:
		telemetry.RecordCacheLookup(ctx, telemetry.CacheMiss)
		return CacheEntry{}, false
	}

	telemetry.RecordCacheLookup(ctx, telemetry.CacheHit)
	return entry, true
}

func (t *Translator) resolve(ctx context.Context, key CacheKey, order []string) (TranslationResult, error) {
	if !t.coalesce {
		return t.orch.Resolve(ctx, key.Text, key.SourceLang, key.TargetLang, order)
	}

	// The shared resolve outlives any single caller; each caller still
	// stops waiting when its own context is done.
	group := key.String() + "\x00" + strings.Join(order, ",")
	ch := t.group.DoChan(group, func() (any, error) {
		return t.orch.Resolve(context.WithoutCancel(ctx), key.Text, key.SourceLang, key.TargetLang, order)
	})

	select {
	case <-ctx.Done():
		return TranslationResult{}, fmt.Errorf("phrasebook: translate cancelled: %w", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return TranslationResult{}, res.Err
		}
		return res.Val.(TranslationResult), nil
	}
}
