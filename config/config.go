// Package config loads phrasebook settings from the environment and an
// optional .env file, and wires them into a ready-to-use translation engine.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Provider IDs known to the configuration.
const (
	ProviderGoogle     = "google"
	ProviderOpenAI     = "openai"
	ProviderPhrasebook = "phrasebook"
)

// Cache and quota backends.
const (
	BackendMemory   = "memory"
	BackendBolt     = "bolt"
	BackendRedis    = "redis"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Config holds all configuration for a phrasebook deployment.
type Config struct {
	// Language pair
	SourceLang string
	TargetLang string

	// Fallback chain
	ProviderOrder []string
	Coalesce      bool

	// Cache
	CacheBackend   string
	CachePath      string
	CacheRetention time.Duration
	PurgeInterval  time.Duration

	// Quota
	QuotaBackend string
	QuotaPath    string // bolt quota file; empty shares the bolt cache file

	// Shared backends
	RedisURL    string
	DatabaseURL string

	// Providers
	Google         ProviderConfig
	OpenAI         ProviderConfig
	OpenAIModel    string
	DictionaryPath string

	// Server
	Port string

	// Metrics
	OTLPEndpoint     string
	EnablePrometheus bool
}

// ProviderConfig holds the settings shared by the networked providers.
type ProviderConfig struct {
	APIKey       string
	BaseURL      string
	MonthlyChars int64
	Timeout      time.Duration
	RPM          int // Requests per minute, 0 disables rate limiting
}

// Load loads configuration from environment variables. When envFile is set
// it must exist; otherwise a .env file in the working directory is loaded
// if present.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("loading %s: %w", envFile, err)
		}
	} else {
		// Try to load .env file (ignore error if not found)
		_ = godotenv.Load()
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function such as os.Getenv.
func FromEnv(getenv func(string) string) (*Config, error) {
	e := &env{getenv: getenv}

	cfg := &Config{
		SourceLang:     e.getEnv("PHRASEBOOK_SOURCE_LANG", "ja"),
		TargetLang:     e.getEnv("PHRASEBOOK_TARGET_LANG", "ko"),
		ProviderOrder:  e.getEnvList("PHRASEBOOK_PROVIDER_ORDER", "google,openai,phrasebook"),
		Coalesce:       e.getEnvBool("PHRASEBOOK_COALESCE", false),
		CacheBackend:   e.getEnv("PHRASEBOOK_CACHE_BACKEND", BackendBolt),
		CachePath:      e.getEnv("PHRASEBOOK_CACHE_PATH", "./phrasebook.db"),
		CacheRetention: e.getEnvDuration("PHRASEBOOK_CACHE_RETENTION", 720*time.Hour),
		PurgeInterval:  e.getEnvDuration("PHRASEBOOK_PURGE_INTERVAL", time.Hour),
		QuotaBackend:   e.getEnv("PHRASEBOOK_QUOTA_BACKEND", ""),
		QuotaPath:      e.getEnv("PHRASEBOOK_QUOTA_PATH", ""),
		RedisURL:       e.getEnv("REDIS_URL", "redis://localhost:6379"),
		DatabaseURL:    e.getEnv("DATABASE_URL", ""),
		Google: ProviderConfig{
			APIKey:       e.getEnv("GOOGLE_TRANSLATE_API_KEY", ""),
			BaseURL:      e.getEnv("GOOGLE_TRANSLATE_BASE_URL", ""),
			MonthlyChars: e.getEnvInt64("GOOGLE_MONTHLY_CHARS", 500_000),
			Timeout:      e.getEnvDuration("GOOGLE_TIMEOUT", 5*time.Second),
			RPM:          int(e.getEnvInt64("GOOGLE_RPM", 0)),
		},
		OpenAI: ProviderConfig{
			APIKey:       e.getEnv("OPENAI_API_KEY", ""),
			BaseURL:      e.getEnv("OPENAI_BASE_URL", ""),
			MonthlyChars: e.getEnvInt64("OPENAI_MONTHLY_CHARS", 100_000),
			Timeout:      e.getEnvDuration("OPENAI_TIMEOUT", 15*time.Second),
			RPM:          int(e.getEnvInt64("OPENAI_RPM", 0)),
		},
		OpenAIModel:      e.getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		DictionaryPath:   e.getEnv("PHRASEBOOK_DICTIONARY", ""),
		Port:             e.getEnv("PORT", "8080"),
		OTLPEndpoint:     e.getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		EnablePrometheus: e.getEnvBool("PHRASEBOOK_PROMETHEUS", true),
	}

	if cfg.QuotaBackend == "" {
		cfg.QuotaBackend = defaultQuotaBackend(cfg.CacheBackend)
	}

	if err := errors.Join(e.errs...); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// defaultQuotaBackend returns a quota backend that persists as long as the
// cache backend does.
func defaultQuotaBackend(cacheBackend string) string {
	switch cacheBackend {
	case BackendMemory:
		return BackendMemory
	case BackendRedis:
		return BackendRedis
	default:
		return BackendBolt
	}
}

// Validate checks values that would otherwise fail at wiring time.
func (c *Config) Validate() error {
	var errs []error

	if c.SourceLang == "" || c.TargetLang == "" {
		errs = append(errs, errors.New("source and target language are required"))
	}
	if c.CacheRetention <= 0 {
		errs = append(errs, fmt.Errorf("PHRASEBOOK_CACHE_RETENTION must be positive, got %s", c.CacheRetention))
	}
	if c.PurgeInterval <= 0 {
		errs = append(errs, fmt.Errorf("PHRASEBOOK_PURGE_INTERVAL must be positive, got %s", c.PurgeInterval))
	}

	if len(c.ProviderOrder) == 0 {
		errs = append(errs, errors.New("PHRASEBOOK_PROVIDER_ORDER must name at least one provider"))
	}
	seen := make(map[string]bool)
	for _, id := range c.ProviderOrder {
		switch id {
		case ProviderGoogle, ProviderOpenAI, ProviderPhrasebook:
		default:
			errs = append(errs, fmt.Errorf("unknown provider %q in PHRASEBOOK_PROVIDER_ORDER", id))
		}
		if seen[id] {
			errs = append(errs, fmt.Errorf("provider %q listed twice in PHRASEBOOK_PROVIDER_ORDER", id))
		}
		seen[id] = true
	}

	switch c.CacheBackend {
	case BackendMemory, BackendBolt, BackendRedis, BackendSQLite:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres cache backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown cache backend %q", c.CacheBackend))
	}

	switch c.QuotaBackend {
	case BackendMemory, BackendBolt, BackendRedis:
	default:
		errs = append(errs, fmt.Errorf("unknown quota backend %q", c.QuotaBackend))
	}

	return errors.Join(errs...)
}

// env reads typed values and collects parse errors.
type env struct {
	getenv func(string) string
	errs   []error
}

func (e *env) getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(e.getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func (e *env) getEnvInt64(key string, defaultValue int64) int64 {
	value := strings.TrimSpace(e.getenv(key))
	if value == "" {
		return defaultValue
	}
	n, err := strconv.ParseInt(strings.ReplaceAll(value, "_", ""), 10, 64)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return n
}

func (e *env) getEnvBool(key string, defaultValue bool) bool {
	value := strings.TrimSpace(e.getenv(key))
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return b
}

func (e *env) getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := strings.TrimSpace(e.getenv(key))
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return d
}

func (e *env) getEnvList(key, defaultValue string) []string {
	var out []string
	for _, part := range strings.Split(e.getEnv(key, defaultValue), ",") {
		if part = strings.ToLower(strings.TrimSpace(part)); part != "" {
			out = append(out, part)
		}
	}
	return out
}
