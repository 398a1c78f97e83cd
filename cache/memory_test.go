package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ZaguanLabs/phrasebook"
)

// fakeClock is a settable clock for expiry tests.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func entry(text, translated string) phrasebook.CacheEntry {
	return phrasebook.CacheEntry{
		Key:            phrasebook.NewCacheKey(text, "ja", "ko"),
		TranslatedText: translated,
		ProviderID:     "google",
	}
}

func TestMemoryStore_GetPut(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if err := s.Put(ctx, entry("ありがとう", "감사합니다")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, ok, err := s.Get(ctx, phrasebook.NewCacheKey("ありがとう", "ja", "ko"))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !ok {
		t.Fatal("Get should return true for existing key")
	}
	if got.TranslatedText != "감사합니다" || got.ProviderID != "google" {
		t.Errorf("Get returned %+v", got)
	}
	if got.CreatedAt.IsZero() {
		t.Error("Put should stamp CreatedAt")
	}

	// Test missing key
	_, ok, err = s.Get(ctx, phrasebook.NewCacheKey("さようなら", "ja", "ko"))
	if err != nil || ok {
		t.Errorf("Get should miss for unknown key (ok=%v, err=%v)", ok, err)
	}
}

func TestMemoryStore_RejectsEmptyText(t *testing.T) {
	s := NewMemoryStore()
	if err := s.Put(context.Background(), entry("   ", "x")); err == nil {
		t.Error("Put should reject an empty key")
	}
}

func TestMemoryStore_Expiry(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	s := NewMemoryStore(WithRetention(time.Hour), WithNow(clock.Now))

	s.Put(ctx, entry("ありがとう", "감사합니다"))
	key := phrasebook.NewCacheKey("ありがとう", "ja", "ko")

	clock.Advance(59 * time.Minute)
	if _, ok, _ := s.Get(ctx, key); !ok {
		t.Error("entry should be served inside the retention window")
	}

	clock.Advance(time.Minute)
	if _, ok, _ := s.Get(ctx, key); ok {
		t.Error("entry should expire at the retention boundary")
	}

	// Expired but not yet purged
	if s.Len() != 1 {
		t.Errorf("expired entry should remain until purge, Len = %d", s.Len())
	}
}

func TestMemoryStore_PurgeExpired(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	s := NewMemoryStore(WithRetention(time.Hour), WithNow(clock.Now))

	s.Put(ctx, entry("old", "오래된"))
	clock.Advance(30 * time.Minute)
	s.Put(ctx, entry("new", "새로운"))
	clock.Advance(45 * time.Minute)

	deleted, err := s.PurgeExpired(ctx, clock.Now())
	if err != nil {
		t.Fatalf("PurgeExpired failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("PurgeExpired deleted %d, want 1", deleted)
	}
	if s.Len() != 1 {
		t.Errorf("Len = %d, want 1", s.Len())
	}
	if _, ok, _ := s.Get(ctx, phrasebook.NewCacheKey("new", "ja", "ko")); !ok {
		t.Error("fresh entry should survive purge")
	}
}

func TestMemoryStore_Overwrite(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	s.Put(ctx, entry("ありがとう", "고마워"))
	e := entry("ありがとう", "감사합니다")
	e.ProviderID = "openai"
	s.Put(ctx, e)

	got, ok, _ := s.Get(ctx, e.Key)
	if !ok {
		t.Fatal("Key should exist")
	}
	if got.TranslatedText != "감사합니다" || got.ProviderID != "openai" {
		t.Errorf("Value should be overwritten, got %+v", got)
	}
	if s.Len() != 1 {
		t.Errorf("Len = %d, want 1", s.Len())
	}
}

func TestMemoryStore_Clear(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	s.Put(ctx, entry("a", "1"))
	s.Put(ctx, entry("b", "2"))
	s.Clear()

	if s.Len() != 0 {
		t.Errorf("Cleared store should have length 0, got %d", s.Len())
	}
}

func TestMemoryStore_Entries(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	s := NewMemoryStore(WithRetention(time.Hour), WithNow(clock.Now))

	s.Put(ctx, entry("old", "오래된"))
	clock.Advance(2 * time.Hour)
	s.Put(ctx, entry("new", "새로운"))

	entries, err := s.Entries(ctx)
	if err != nil {
		t.Fatalf("Entries failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Key.Text != "new" {
		t.Errorf("Entries should skip expired rows, got %+v", entries)
	}
}

func TestMemoryStore_Concurrent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			s.Put(ctx, entry(fmt.Sprintf("text-%d", i%26), "value"))
		}(i)
		go func(i int) {
			defer wg.Done()
			s.Get(ctx, phrasebook.NewCacheKey(fmt.Sprintf("text-%d", i%26), "ja", "ko"))
		}(i)
	}

	wg.Wait()

	if s.Len() != 26 {
		t.Errorf("Len = %d, want 26", s.Len())
	}
}
