package cache

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/ZaguanLabs/phrasebook"
)

// Bucket names for bbolt storage.
var (
	bucketTranslations = []byte("translations")             // canonical key -> record JSON
	bucketByCreated    = []byte("translations_by_created") // timestamp+canonical key -> nil
)

// BoltStore is a durable cache store backed by a single bbolt file.
type BoltStore struct {
	db        *bbolt.DB
	retention time.Duration
	now       func() time.Time
}

// OpenBoltStore opens (or creates) the store at path.
func OpenBoltStore(path string, opts ...Option) (*BoltStore, error) {
	o := newOptions(opts)

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, &phrasebook.CacheError{Op: "open", Cause: fmt.Errorf("opening database: %w", err)}
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketTranslations, bucketByCreated} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("creating bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, &phrasebook.CacheError{Op: "open", Cause: err}
	}

	return &BoltStore{db: db, retention: o.retention, now: o.now}, nil
}

// Close closes the database file.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// DB returns the underlying database so other components can keep their
// buckets in the same file.
func (s *BoltStore) DB() *bbolt.DB {
	return s.db
}

// Get returns the entry for key if it is inside the retention window.
func (s *BoltStore) Get(_ context.Context, key phrasebook.CacheKey) (phrasebook.CacheEntry, bool, error) {
	var (
		rec   record
		found bool
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketTranslations).Get([]byte(key.String()))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &rec)
	})
	if err != nil {
		return phrasebook.CacheEntry{}, false, &phrasebook.CacheError{Op: "get", Cause: err}
	}
	if !found {
		return phrasebook.CacheEntry{}, false, nil
	}

	entry := rec.entry()
	if entry.Expired(s.now(), s.retention) {
		return phrasebook.CacheEntry{}, false, nil
	}
	return entry, true, nil
}

// Put stores entry, replacing any previous entry for the same key.
func (s *BoltStore) Put(_ context.Context, entry phrasebook.CacheEntry) error {
	entry, err := stamp(entry, s.now)
	if err != nil {
		return err
	}

	data, err := json.Marshal(toRecord(entry))
	if err != nil {
		return &phrasebook.CacheError{Op: "put", Cause: err}
	}

	canonical := []byte(entry.Key.String())
	err = s.db.Update(func(tx *bbolt.Tx) error {
		translations := tx.Bucket(bucketTranslations)
		byCreated := tx.Bucket(bucketByCreated)

		// Drop the index row of the entry being replaced
		if old := translations.Get(canonical); old != nil {
			var prev record
			if err := json.Unmarshal(old, &prev); err == nil {
				if err := byCreated.Delete(makeCreatedKey(prev.CreatedAt, canonical)); err != nil {
					return err
				}
			}
		}

		if err := translations.Put(canonical, data); err != nil {
			return err
		}
		return byCreated.Put(makeCreatedKey(entry.CreatedAt, canonical), nil)
	})
	if err != nil {
		return &phrasebook.CacheError{Op: "put", Cause: err}
	}
	return nil
}

// PurgeExpired deletes entries that are stale at now by walking the
// creation-time index from the oldest entry.
func (s *BoltStore) PurgeExpired(_ context.Context, now time.Time) (int, error) {
	if s.retention <= 0 {
		return 0, nil
	}
	cutoff := encodeTimestamp(now.Add(-s.retention))

	deleted := 0
	err := s.db.Update(func(tx *bbolt.Tx) error {
		translations := tx.Bucket(bucketTranslations)
		byCreated := tx.Bucket(bucketByCreated)

		var stale [][]byte
		c := byCreated.Cursor()
		for k, _ := c.First(); k != nil && bytes.Compare(k[:8], cutoff) <= 0; k, _ = c.Next() {
			stale = append(stale, bytes.Clone(k))
		}

		for _, k := range stale {
			if err := byCreated.Delete(k); err != nil {
				return err
			}
			if err := translations.Delete(k[8:]); err != nil {
				return err
			}
			deleted++
		}
		return nil
	})
	if err != nil {
		return 0, &phrasebook.CacheError{Op: "purge", Cause: err}
	}
	return deleted, nil
}

// Entries returns all non-expired entries, oldest first.
func (s *BoltStore) Entries(_ context.Context) ([]phrasebook.CacheEntry, error) {
	now := s.now()
	var entries []phrasebook.CacheEntry

	err := s.db.View(func(tx *bbolt.Tx) error {
		translations := tx.Bucket(bucketTranslations)
		return tx.Bucket(bucketByCreated).ForEach(func(k, _ []byte) error {
			key, ok := phrasebook.ParseCacheKey(string(k[8:]))
			if !ok {
				return nil
			}
			data := translations.Get(k[8:])
			if data == nil {
				return nil
			}
			var rec record
			if err := json.Unmarshal(data, &rec); err != nil {
				return err
			}
			// Skip index rows that no longer describe the stored record.
			entry := rec.entry()
			if entry.Key != key || !entry.CreatedAt.Equal(decodeTimestamp(k[:8])) {
				return nil
			}
			if !entry.Expired(now, s.retention) {
				entries = append(entries, entry)
			}
			return nil
		})
	})
	if err != nil {
		return nil, &phrasebook.CacheError{Op: "list", Cause: err}
	}
	return entries, nil
}

// Len returns the number of stored entries, including expired ones.
func (s *BoltStore) Len() int {
	n := 0
	_ = s.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(bucketTranslations).Stats().KeyN
		return nil
	})
	return n
}

// encodeTimestamp converts a time.Time to a fixed-width big-endian byte slice
// that sorts in time order, including pre-1970 values.
func encodeTimestamp(t time.Time) []byte {
	buf := make([]byte, 8)
	ns := t.UnixNano()
	binary.BigEndian.PutUint64(buf, uint64(ns-(-1<<63))) //nolint:gosec // intentional signed->unsigned shift
	return buf
}

// decodeTimestamp is the inverse of encodeTimestamp.
func decodeTimestamp(b []byte) time.Time {
	return time.Unix(0, int64(binary.BigEndian.Uint64(b))+(-1<<63)) //nolint:gosec // inverse of encodeTimestamp
}

// makeCreatedKey creates a key for the creation-time index.
// Format: [8-byte timestamp][canonical cache key]
func makeCreatedKey(createdAt time.Time, canonical []byte) []byte {
	key := make([]byte, 8+len(canonical))
	copy(key[:8], encodeTimestamp(createdAt))
	copy(key[8:], canonical)
	return key
}

var (
	_ phrasebook.CacheStore = (*BoltStore)(nil)
	_ Lister                = (*BoltStore)(nil)
)
