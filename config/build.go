package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/redis/go-redis/v9"

	"github.com/ZaguanLabs/phrasebook"
	"github.com/ZaguanLabs/phrasebook/cache"
	"github.com/ZaguanLabs/phrasebook/provider"
	"github.com/ZaguanLabs/phrasebook/quota"
)

// Engine is a fully wired translation engine.
type Engine struct {
	Config       *Config
	Translator   *phrasebook.Translator
	Orchestrator *phrasebook.Orchestrator
	Cache        phrasebook.CacheStore
	Quota        phrasebook.QuotaTracker
	Reaper       *cache.Reaper
	Providers    []phrasebook.ProviderDescriptor

	closers []func() error
}

// Build wires providers, the cache store and the quota tracker described by
// cfg. Close releases the backends it opened.
func Build(ctx context.Context, cfg *Config, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{Config: cfg}
	ok := false
	defer func() {
		if !ok {
			_ = e.Close()
		}
	}()

	providers, err := buildProviders(cfg, logger)
	if err != nil {
		return nil, err
	}
	for _, p := range providers {
		e.Providers = append(e.Providers, p.Descriptor())
	}

	var rdb *redis.Client
	if cfg.CacheBackend == BackendRedis || cfg.QuotaBackend == BackendRedis {
		rdb, err = connectRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		e.closers = append(e.closers, rdb.Close)
	}

	e.Cache, err = e.openCache(ctx, cfg, rdb)
	if err != nil {
		return nil, err
	}

	e.Quota, err = e.openQuota(cfg, rdb)
	if err != nil {
		return nil, err
	}

	e.Orchestrator, err = phrasebook.NewOrchestrator(phrasebook.OrchestratorConfig{
		Providers: providers,
		Quota:     e.Quota,
		Cache:     e.Cache,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}

	// The offline provider sorts last when the configured order omits it.
	order := e.Orchestrator.DefaultOrder()

	e.Translator = phrasebook.NewTranslator(e.Orchestrator,
		phrasebook.WithLanguagePair(cfg.SourceLang, cfg.TargetLang),
		phrasebook.WithDefaultOrder(order...),
		phrasebook.WithCoalescing(cfg.Coalesce),
		phrasebook.WithLogger(logger),
	)
	e.Reaper = cache.NewReaper(e.Cache,
		cache.WithReaperInterval(cfg.PurgeInterval),
		cache.WithReaperLogger(logger),
	)

	logger.Info("engine ready",
		"pair", cfg.SourceLang+"-"+cfg.TargetLang,
		"order", order,
		"cache", cfg.CacheBackend,
		"quota", cfg.QuotaBackend,
	)

	ok = true
	return e, nil
}

// Close releases every backend opened by Build, in reverse order.
func (e *Engine) Close() error {
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	e.closers = nil
	return errors.Join(errs...)
}

// Lister returns the cache as a cache.Lister when the backend supports it.
func (e *Engine) Lister() (cache.Lister, bool) {
	l, ok := e.Cache.(cache.Lister)
	return l, ok
}

// priority is the provider's position in the configured order. Providers not
// named in the order go after the ones that are.
func priority(cfg *Config, id string) int {
	if i := slices.Index(cfg.ProviderOrder, id); i >= 0 {
		return i
	}
	return len(cfg.ProviderOrder)
}

// buildProviders registers the networked providers named in the order that
// have credentials. The offline provider is always registered.
func buildProviders(cfg *Config, logger *slog.Logger) ([]phrasebook.Provider, error) {
	var providers []phrasebook.Provider

	switch {
	case !slices.Contains(cfg.ProviderOrder, ProviderGoogle):
	case cfg.Google.APIKey == "":
		logger.Warn("provider disabled, no credentials", "provider", ProviderGoogle, "env", "GOOGLE_TRANSLATE_API_KEY")
	default:
		var p phrasebook.Provider = provider.NewGoogleProvider(provider.GoogleConfig{
			ID:           ProviderGoogle,
			Priority:     priority(cfg, ProviderGoogle),
			MonthlyLimit: cfg.Google.MonthlyChars,
			APIKey:       cfg.Google.APIKey,
			BaseURL:      cfg.Google.BaseURL,
			Timeout:      cfg.Google.Timeout,
		})
		providers = append(providers, rateLimited(p, cfg.Google.RPM))
	}

	switch {
	case !slices.Contains(cfg.ProviderOrder, ProviderOpenAI):
	case cfg.OpenAI.APIKey == "":
		logger.Warn("provider disabled, no credentials", "provider", ProviderOpenAI, "env", "OPENAI_API_KEY")
	default:
		var p phrasebook.Provider = provider.NewOpenAIProvider(provider.OpenAIConfig{
			ID:           ProviderOpenAI,
			Priority:     priority(cfg, ProviderOpenAI),
			MonthlyLimit: cfg.OpenAI.MonthlyChars,
			APIKey:       cfg.OpenAI.APIKey,
			Model:        cfg.OpenAIModel,
			BaseURL:      cfg.OpenAI.BaseURL,
			Timeout:      cfg.OpenAI.Timeout,
		})
		providers = append(providers, rateLimited(p, cfg.OpenAI.RPM))
	}

	offline, err := provider.NewPhrasebookProvider(provider.PhrasebookConfig{
		ID:             ProviderPhrasebook,
		Priority:       priority(cfg, ProviderPhrasebook),
		DictionaryPath: cfg.DictionaryPath,
	})
	if err != nil {
		return nil, fmt.Errorf("phrasebook provider: %w", err)
	}
	providers = append(providers, offline)

	return providers, nil
}

func rateLimited(p phrasebook.Provider, rpm int) phrasebook.Provider {
	if rpm <= 0 {
		return p
	}
	return phrasebook.NewRateLimitedProvider(p, phrasebook.RateLimitConfig{RequestsPerMinute: rpm})
}

func connectRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return client, nil
}

// defaultQuotaPath is used for a bolt quota tracker when the cache is not a
// bolt file it could share.
const defaultQuotaPath = "./phrasebook-quota.db"

func (e *Engine) openQuota(cfg *Config, rdb *redis.Client) (phrasebook.QuotaTracker, error) {
	switch cfg.QuotaBackend {
	case BackendMemory:
		return quota.NewMemoryTracker(e.Providers), nil
	case BackendRedis:
		return quota.NewRedisTracker(rdb, e.Providers), nil
	case BackendBolt:
		if store, ok := e.Cache.(*cache.BoltStore); ok && (cfg.QuotaPath == "" || cfg.QuotaPath == cfg.CachePath) {
			return quota.NewBoltTracker(store.DB(), e.Providers)
		}
		path := cfg.QuotaPath
		if path == "" {
			path = defaultQuotaPath
		}
		tracker, err := quota.OpenBoltTracker(path, e.Providers)
		if err != nil {
			return nil, err
		}
		e.closers = append(e.closers, tracker.Close)
		return tracker, nil
	}
	return nil, fmt.Errorf("unknown quota backend %q", cfg.QuotaBackend)
}

func (e *Engine) openCache(ctx context.Context, cfg *Config, rdb *redis.Client) (phrasebook.CacheStore, error) {
	retention := cache.WithRetention(cfg.CacheRetention)

	switch cfg.CacheBackend {
	case BackendMemory:
		return cache.NewMemoryStore(retention), nil
	case BackendBolt:
		store, err := cache.OpenBoltStore(cfg.CachePath, retention)
		if err != nil {
			return nil, err
		}
		e.closers = append(e.closers, store.Close)
		return store, nil
	case BackendRedis:
		return cache.NewRedisStore(rdb, retention), nil
	case BackendSQLite:
		store, err := cache.OpenSQLStore(ctx, cache.DialectSQLite, cfg.CachePath, retention)
		if err != nil {
			return nil, err
		}
		e.closers = append(e.closers, store.Close)
		return store, nil
	case BackendPostgres:
		store, err := cache.OpenSQLStore(ctx, cache.DialectPostgres, cfg.DatabaseURL, retention)
		if err != nil {
			return nil, err
		}
		e.closers = append(e.closers, store.Close)
		return store, nil
	}
	return nil, fmt.Errorf("unknown cache backend %q", cfg.CacheBackend)
}
