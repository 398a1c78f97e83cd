package phrasebook_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ZaguanLabs/phrasebook"
	"github.com/ZaguanLabs/phrasebook/cache"
	"github.com/ZaguanLabs/phrasebook/provider"
	"github.com/ZaguanLabs/phrasebook/quota"
)

// Integration tests using the real HTTP providers against local servers, the
// embedded phrasebook and a bolt cache on disk.

type backend struct {
	srv   *httptest.Server
	calls atomic.Int32
}

func (b *backend) Calls() int { return int(b.calls.Load()) }

// googleBackend answers Cloud Translation v2 requests with translated, or
// with status and body when status is not 200.
func googleBackend(t *testing.T, translated string, status int, body string) *backend {
	t.Helper()
	b := &backend{}
	b.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.calls.Add(1)
		if r.URL.Query().Get("key") == "" {
			t.Errorf("google request without key")
		}
		w.Header().Set("Content-Type", "application/json")
		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(body))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{
				"translations": []map[string]string{{"translatedText": translated}},
			},
		})
	}))
	t.Cleanup(b.srv.Close)
	return b
}

// openAIBackend answers chat completions with {"translation": translated}.
func openAIBackend(t *testing.T, translated string) *backend {
	t.Helper()
	b := &backend{}
	b.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.calls.Add(1)
		content, _ := json.Marshal(map[string]string{"translation": translated})
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"model":  "gpt-4o-mini",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]string{"role": "assistant", "content": string(content)},
			}},
		})
	}))
	t.Cleanup(b.srv.Close)
	return b
}

type stack struct {
	translator *phrasebook.Translator
	store      *cache.BoltStore
	tracker    *quota.MemoryTracker
	now        *time.Time
}

func newStack(t *testing.T, google, openai *backend, googleLimit int64, dbPath string, retention time.Duration, now *time.Time) *stack {
	t.Helper()
	clock := func() time.Time { return *now }

	offline, err := provider.NewPhrasebookProvider(provider.PhrasebookConfig{Priority: 2})
	if err != nil {
		t.Fatalf("NewPhrasebookProvider: %v", err)
	}
	providers := []phrasebook.Provider{
		provider.NewGoogleProvider(provider.GoogleConfig{
			Priority:     0,
			MonthlyLimit: googleLimit,
			APIKey:       "test-key",
			BaseURL:      google.srv.URL,
			Timeout:      time.Second,
		}),
		provider.NewOpenAIProvider(provider.OpenAIConfig{
			Priority:     1,
			MonthlyLimit: 100_000,
			APIKey:       "sk-test",
			BaseURL:      openai.srv.URL + "/v1",
			Timeout:      time.Second,
		}),
		offline,
	}
	descriptors := make([]phrasebook.ProviderDescriptor, len(providers))
	for i, p := range providers {
		descriptors[i] = p.Descriptor()
	}

	store, err := cache.OpenBoltStore(dbPath, cache.WithRetention(retention), cache.WithNow(clock))
	if err != nil {
		t.Fatalf("OpenBoltStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	tracker := quota.NewMemoryTracker(descriptors, quota.WithNow(clock))
	orch, err := phrasebook.NewOrchestrator(phrasebook.OrchestratorConfig{
		Providers: providers,
		Quota:     tracker,
		Cache:     store,
		Now:       clock,
	})
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}

	return &stack{
		translator: phrasebook.NewTranslator(orch,
			phrasebook.WithLanguagePair("ja", "ko"),
			phrasebook.WithNow(clock),
		),
		store:   store,
		tracker: tracker,
		now:     now,
	}
}

func TestIntegration_ThankYouScenario(t *testing.T) {
	google := googleBackend(t, "감사합니다", http.StatusOK, "")
	openai := openAIBackend(t, "고마워요")
	now := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)

	// The primary's budget covers exactly one "ありがとう".
	s := newStack(t, google, openai, 5, filepath.Join(t.TempDir(), "cache.db"), time.Hour, &now)
	ctx := context.Background()

	res, err := s.translator.Translate(ctx, "ありがとう", "ja", "ko")
	if err != nil {
		t.Fatalf("first Translate failed: %v", err)
	}
	if res.TranslatedText != "감사합니다" || res.ProviderID != "google" || res.ServedFromCache {
		t.Errorf("first call: got %+v", res)
	}

	res, err = s.translator.Translate(ctx, "ありがとう", "ja", "ko")
	if err != nil {
		t.Fatalf("second Translate failed: %v", err)
	}
	if !res.ServedFromCache || res.TranslatedText != "감사합니다" {
		t.Errorf("second call should be a cache hit, got %+v", res)
	}
	if google.Calls() != 1 {
		t.Errorf("google called %d times, want 1", google.Calls())
	}

	// Let the entry expire and purge it, staying inside the month.
	now = now.Add(2 * time.Hour)
	purged, err := s.store.PurgeExpired(ctx, now)
	if err != nil {
		t.Fatalf("PurgeExpired failed: %v", err)
	}
	if purged != 1 {
		t.Errorf("purged %d entries, want 1", purged)
	}

	res, err = s.translator.Translate(ctx, "ありがとう", "ja", "ko")
	if err != nil {
		t.Fatalf("third Translate failed: %v", err)
	}
	if res.TranslatedText != "고마워요" || res.ProviderID != "openai" {
		t.Errorf("third call should fall back to openai, got %+v", res)
	}
	if google.Calls() != 1 {
		t.Errorf("google should be skipped once its quota is spent, called %d times", google.Calls())
	}

	state, err := s.tracker.CurrentPeriod(ctx, "google")
	if err != nil {
		t.Fatalf("CurrentPeriod failed: %v", err)
	}
	if state.CharactersConsumed != 5 || state.Remaining() != 0 {
		t.Errorf("google quota: got %+v", state)
	}
	state, _ = s.tracker.CurrentPeriod(ctx, "openai")
	if state.CharactersConsumed != 5 {
		t.Errorf("openai consumed %d, want 5", state.CharactersConsumed)
	}
}

func TestIntegration_AuthErrorFallsBack(t *testing.T) {
	google := googleBackend(t, "", http.StatusForbidden,
		`{"error":{"code":403,"message":"API key not valid","errors":[{"reason":"keyInvalid"}]}}`)
	openai := openAIBackend(t, "안녕하세요")
	now := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	s := newStack(t, google, openai, 500_000, filepath.Join(t.TempDir(), "cache.db"), phrasebook.DefaultRetention, &now)
	ctx := context.Background()

	res, err := s.translator.Translate(ctx, "こんにちは", "ja", "ko")
	if err != nil {
		t.Fatalf("Translate failed: %v", err)
	}
	if res.ProviderID != "openai" || res.TranslatedText != "안녕하세요" {
		t.Errorf("expected openai fallback, got %+v", res)
	}

	// Failed attempts are not charged
	state, _ := s.tracker.CurrentPeriod(ctx, "google")
	if state.CharactersConsumed != 0 {
		t.Errorf("google consumed %d after a failure, want 0", state.CharactersConsumed)
	}
}

func TestIntegration_OfflineWhenNetworkDown(t *testing.T) {
	google := googleBackend(t, "감사합니다", http.StatusOK, "")
	openai := openAIBackend(t, "고마워요")
	google.srv.Close()
	openai.srv.Close()

	now := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	s := newStack(t, google, openai, 500_000, filepath.Join(t.TempDir(), "cache.db"), phrasebook.DefaultRetention, &now)

	res, err := s.translator.Translate(context.Background(), "ありがとう", "ja", "ko")
	if err != nil {
		t.Fatalf("Translate failed: %v", err)
	}
	if res.ProviderID != "phrasebook" || res.TranslatedText != "고마워" {
		t.Errorf("expected offline phrasebook answer, got %+v", res)
	}
}

func TestIntegration_CacheSurvivesRestart(t *testing.T) {
	google := googleBackend(t, "네", http.StatusOK, "")
	openai := openAIBackend(t, "네")
	now := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	dbPath := filepath.Join(t.TempDir(), "cache.db")
	ctx := context.Background()

	first := newStack(t, google, openai, 500_000, dbPath, phrasebook.DefaultRetention, &now)
	if _, err := first.translator.Translate(ctx, "はい", "ja", "ko"); err != nil {
		t.Fatalf("Translate failed: %v", err)
	}
	if err := first.store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	now = now.Add(24 * time.Hour)
	second := newStack(t, google, openai, 500_000, dbPath, phrasebook.DefaultRetention, &now)
	res, err := second.translator.Translate(ctx, "はい", "ja", "ko")
	if err != nil {
		t.Fatalf("Translate after reopen failed: %v", err)
	}
	if !res.ServedFromCache || res.ProviderID != "google" {
		t.Errorf("expected cached google result after reopen, got %+v", res)
	}
	if google.Calls() != 1 {
		t.Errorf("google called %d times, want 1", google.Calls())
	}
}

func TestIntegration_ReversePair(t *testing.T) {
	google := googleBackend(t, "ありがとうございます", http.StatusOK, "")
	openai := openAIBackend(t, "")
	now := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	s := newStack(t, google, openai, 500_000, filepath.Join(t.TempDir(), "cache.db"), phrasebook.DefaultRetention, &now)

	res, err := s.translator.Translate(context.Background(), "감사합니다", "ko", "ja")
	if err != nil {
		t.Fatalf("Translate failed: %v", err)
	}
	if res.TranslatedText != "ありがとうございます" {
		t.Errorf("got %+v", res)
	}
}
