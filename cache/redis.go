package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ZaguanLabs/phrasebook"
)

// RedisStore is a cache store shared through Redis.
//
// Each entry is a JSON string under <prefix>entry:<digest> that Redis expires
// at the end of the retention window. A sorted set <prefix>entries scores
// digests by creation time so PurgeExpired can find stale rows.
type RedisStore struct {
	client    redis.Cmdable
	retention time.Duration
	now       func() time.Time
	keyPrefix string
}

// NewRedisStore creates a RedisStore from an existing client.
func NewRedisStore(client redis.Cmdable, opts ...Option) *RedisStore {
	o := newOptions(opts)
	return &RedisStore{
		client:    client,
		retention: o.retention,
		now:       o.now,
		keyPrefix: o.keyPrefix,
	}
}

func (s *RedisStore) entryKey(digest string) string {
	return s.keyPrefix + "entry:" + digest
}

func (s *RedisStore) indexKey() string {
	return s.keyPrefix + "entries"
}

// Get returns the entry for key if it is inside the retention window.
func (s *RedisStore) Get(ctx context.Context, key phrasebook.CacheKey) (phrasebook.CacheEntry, bool, error) {
	data, err := s.client.Get(ctx, s.entryKey(key.Digest())).Bytes()
	if errors.Is(err, redis.Nil) {
		return phrasebook.CacheEntry{}, false, nil
	}
	if err != nil {
		return phrasebook.CacheEntry{}, false, &phrasebook.CacheError{Op: "get", Cause: err}
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return phrasebook.CacheEntry{}, false, &phrasebook.CacheError{Op: "get", Cause: err}
	}

	entry := rec.entry()
	if entry.Key != key || entry.Expired(s.now(), s.retention) {
		return phrasebook.CacheEntry{}, false, nil
	}
	return entry, true, nil
}

// Put stores entry, replacing any previous entry for the same key. Entries
// that are already stale are not written.
func (s *RedisStore) Put(ctx context.Context, entry phrasebook.CacheEntry) error {
	entry, err := stamp(entry, s.now)
	if err != nil {
		return err
	}

	var ttl time.Duration
	if s.retention > 0 {
		ttl = s.retention - s.now().Sub(entry.CreatedAt)
		if ttl <= 0 {
			return nil
		}
	}

	data, err := json.Marshal(toRecord(entry))
	if err != nil {
		return &phrasebook.CacheError{Op: "put", Cause: err}
	}

	// Entry and index change together so a concurrent purge never sees one
	// without the other.
	digest := entry.Key.Digest()
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.entryKey(digest), string(data), ttl)
		pipe.ZAdd(ctx, s.indexKey(), redis.Z{Score: float64(entry.CreatedAt.UnixMilli()), Member: digest})
		return nil
	})
	if err != nil {
		return &phrasebook.CacheError{Op: "put", Cause: err}
	}
	return nil
}

// purgeBatch bounds how many entries one script call removes, so a large
// backlog does not block Redis for long.
const purgeBatch = 500

// purgeScriptSource removes up to ARGV[3] entries whose index score is at or below
// ARGV[1]. It runs atomically, so an entry rewritten by Put before the script
// starts has a fresh score and is left alone.
//
// KEYS[1] index sorted set, ARGV[1] cutoff in ms, ARGV[2] entry key prefix,
// ARGV[3] batch size.
const purgeScriptSource = `
local stale = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[3]))
for _, digest in ipairs(stale) do
	redis.call('DEL', ARGV[2] .. digest)
	redis.call('ZREM', KEYS[1], digest)
end
return #stale
`

var purgeScript = redis.NewScript(purgeScriptSource)

// PurgeExpired deletes entries created at or before now minus the retention
// window. Rows Redis has already expired are counted with them.
func (s *RedisStore) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	if s.retention <= 0 {
		return 0, nil
	}

	cutoff := strconv.FormatInt(now.Add(-s.retention).UnixMilli(), 10)
	total := 0
	for {
		n, err := purgeScript.Run(ctx, s.client, []string{s.indexKey()},
			cutoff, s.entryKey(""), strconv.Itoa(purgeBatch)).Int()
		if err != nil {
			return total, &phrasebook.CacheError{Op: "purge", Cause: err}
		}
		total += n
		if n < purgeBatch {
			return total, nil
		}
	}
}

// Entries returns all non-expired entries, oldest first.
func (s *RedisStore) Entries(ctx context.Context) ([]phrasebook.CacheEntry, error) {
	digests, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, &phrasebook.CacheError{Op: "list", Cause: err}
	}
	if len(digests) == 0 {
		return nil, nil
	}

	keys := make([]string, len(digests))
	for i, d := range digests {
		keys[i] = s.entryKey(d)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, &phrasebook.CacheError{Op: "list", Cause: err}
	}

	now := s.now()
	entries := make([]phrasebook.CacheEntry, 0, len(values))
	for _, v := range values {
		str, ok := v.(string)
		if !ok {
			continue
		}
		var rec record
		if err := json.Unmarshal([]byte(str), &rec); err != nil {
			return nil, &phrasebook.CacheError{Op: "list", Cause: err}
		}
		if entry := rec.entry(); !entry.Expired(now, s.retention) {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

var (
	_ phrasebook.CacheStore = (*RedisStore)(nil)
	_ Lister                = (*RedisStore)(nil)
)
