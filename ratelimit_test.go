package phrasebook

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestRateLimiter_TryAcquire(t *testing.T) {
	clock := &stepClock{t: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)}
	limiter := NewRateLimiter(RateLimitConfig{
		RequestsPerMinute: 60, // 1 per second
		BurstSize:         3,
		Now:               clock.Now,
	})

	// Should be able to acquire burst size immediately
	for i := 0; i < 3; i++ {
		if !limiter.TryAcquire() {
			t.Errorf("Expected to acquire token %d", i)
		}
	}

	// Fourth should fail
	if limiter.TryAcquire() {
		t.Error("Expected fourth acquire to fail")
	}
}

func TestRateLimiter_Refill(t *testing.T) {
	clock := &stepClock{t: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)}
	limiter := NewRateLimiter(RateLimitConfig{
		RequestsPerMinute: 600, // 10 per second
		BurstSize:         1,
		Now:               clock.Now,
	})

	// Drain the bucket
	limiter.TryAcquire()

	if limiter.TryAcquire() {
		t.Error("Expected acquire to fail after drain")
	}

	clock.Advance(150 * time.Millisecond)

	if !limiter.TryAcquire() {
		t.Error("Expected acquire to succeed after refill")
	}
}

func TestRateLimiter_Available(t *testing.T) {
	clock := &stepClock{t: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)}
	limiter := NewRateLimiter(RateLimitConfig{
		RequestsPerMinute: 60,
		BurstSize:         5,
		Now:               clock.Now,
	})

	if available := limiter.Available(); available != 5 {
		t.Errorf("Expected 5 available, got %f", available)
	}

	limiter.TryAcquire()
	limiter.TryAcquire()

	if available := limiter.Available(); available != 3 {
		t.Errorf("Expected 3 available, got %f", available)
	}

	// Refill never exceeds the burst size
	clock.Advance(time.Hour)
	if available := limiter.Available(); available != 5 {
		t.Errorf("Expected 5 available after an hour, got %f", available)
	}
}

func TestRateLimiter_Concurrent(t *testing.T) {
	clock := &stepClock{t: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)}
	limiter := NewRateLimiter(RateLimitConfig{
		RequestsPerMinute: 6000,
		BurstSize:         10,
		Now:               clock.Now,
	})

	var wg sync.WaitGroup
	var mu sync.Mutex
	acquired := 0

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if limiter.TryAcquire() {
				mu.Lock()
				acquired++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if acquired != 10 {
		t.Errorf("Expected 10 acquired, got %d", acquired)
	}
}

// stubProvider is a minimal Provider for tests inside this package.
type stubProvider struct {
	id    string
	calls int
}

func (s *stubProvider) Descriptor() ProviderDescriptor {
	return ProviderDescriptor{ID: s.id}
}

func (s *stubProvider) Translate(_ context.Context, text, _, _ string) (string, error) {
	s.calls++
	return "<" + text + ">", nil
}

func TestRateLimitedProvider(t *testing.T) {
	clock := &stepClock{t: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)}
	inner := &stubProvider{id: "google"}

	p := NewRateLimitedProvider(inner, RateLimitConfig{
		RequestsPerMinute: 60,
		BurstSize:         2,
		Now:               clock.Now,
	})

	if p.Descriptor().ID != "google" {
		t.Errorf("Descriptor should pass through, got %q", p.Descriptor().ID)
	}
	if p.Unwrap() != Provider(inner) {
		t.Error("Unwrap should return the inner provider")
	}

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if _, err := p.Translate(ctx, "a", "ja", "ko"); err != nil {
			t.Fatalf("translate %d failed: %v", i, err)
		}
	}

	_, err := p.Translate(ctx, "c", "ja", "ko")
	if OutcomeOf(err) != OutcomeQuotaExceeded {
		t.Fatalf("Expected quota exceeded, got %v", err)
	}
	var pe *ProviderError
	if !errors.As(err, &pe) || pe.Provider != "google" {
		t.Errorf("Expected ProviderError for google, got %v", err)
	}
	if inner.calls != 2 {
		t.Errorf("Rejected call should not reach the provider, got %d calls", inner.calls)
	}

	clock.Advance(time.Second)
	result, err := p.Translate(ctx, "d", "ja", "ko")
	if err != nil {
		t.Fatalf("translate after refill failed: %v", err)
	}
	if result != "<d>" {
		t.Errorf("Expected '<d>', got %q", result)
	}
}
