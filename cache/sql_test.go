package cache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZaguanLabs/phrasebook"
)

func openTestSQLite(t *testing.T, clock *fakeClock) *SQLStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data", "cache.sqlite")
	s, err := OpenSQLStore(context.Background(), DialectSQLite, path, WithNow(clock.Now))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLStore_GetPut(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	s := openTestSQLite(t, clock)

	key := phrasebook.NewCacheKey("ありがとう", "ja", "ko")
	_, ok, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Put(ctx, entry("ありがとう", "감사합니다")))

	got, ok, err := s.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "감사합니다", got.TranslatedText)
	assert.Equal(t, "google", got.ProviderID)
	assert.True(t, clock.Now().Equal(got.CreatedAt))
}

func TestSQLStore_Upsert(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	s := openTestSQLite(t, clock)

	require.NoError(t, s.Put(ctx, entry("ありがとう", "감사합니다")))
	clock.Advance(time.Minute)

	replacement := entry("ありがとう", "고마워요")
	replacement.ProviderID = "openai"
	require.NoError(t, s.Put(ctx, replacement))

	got, ok, err := s.Get(ctx, replacement.Key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "고마워요", got.TranslatedText)
	assert.Equal(t, "openai", got.ProviderID)
	assert.True(t, clock.Now().Equal(got.CreatedAt))

	entries, err := s.Entries(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestSQLStore_ExpiryAndPurge(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	s := openTestSQLite(t, clock)

	require.NoError(t, s.Put(ctx, entry("はい", "네")))
	clock.Advance(5 * 24 * time.Hour)
	require.NoError(t, s.Put(ctx, entry("いいえ", "아니요")))

	clock.Advance(25 * 24 * time.Hour)
	_, ok, err := s.Get(ctx, phrasebook.NewCacheKey("はい", "ja", "ko"))
	require.NoError(t, err)
	assert.False(t, ok, "stale before purge")

	entries, err := s.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "いいえ", entries[0].Key.Text)

	n, err := s.PurgeExpired(ctx, clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = s.PurgeExpired(ctx, clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, n, "purge is idempotent")
}

func TestSQLStore_KeysAreExact(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	s := openTestSQLite(t, clock)

	require.NoError(t, s.Put(ctx, phrasebook.CacheEntry{
		Key:            phrasebook.NewCacheKey("Hello", "en", "ko"),
		TranslatedText: "안녕하세요",
		ProviderID:     "google",
	}))

	_, ok, err := s.Get(ctx, phrasebook.NewCacheKey("hello", "en", "ko"))
	require.NoError(t, err)
	assert.False(t, ok, "case is significant")
}

func TestOpenSQLStore_UnknownDialect(t *testing.T) {
	_, err := OpenSQLStore(context.Background(), Dialect("oracle"), "x")
	assert.Error(t, err)
}
