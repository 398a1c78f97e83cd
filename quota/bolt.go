package quota

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/ZaguanLabs/phrasebook"
)

// bucketQuota maps "<provider>|<YYYY-MM>" to the big-endian uint64 count of
// characters consumed in that period.
var bucketQuota = []byte("quota_periods")

// BoltTracker keeps quota counters in a bbolt file so consumption survives
// process restarts. Rollover happens by moving to a new period key; old
// periods stay in the file as history.
type BoltTracker struct {
	db       *bbolt.DB
	owned    bool
	limits   map[string]int64
	now      func() time.Time
	location *time.Location
}

// OpenBoltTracker opens (or creates) a tracker database at path. Close
// releases the file.
func OpenBoltTracker(path string, descriptors []phrasebook.ProviderDescriptor, opts ...Option) (*BoltTracker, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, &phrasebook.QuotaError{Op: "open", Cause: fmt.Errorf("opening database: %w", err)}
	}
	t, err := NewBoltTracker(db, descriptors, opts...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	t.owned = true
	return t, nil
}

// NewBoltTracker creates a tracker on an already open database, such as the
// one behind cache.BoltStore. Close leaves a borrowed database open.
func NewBoltTracker(db *bbolt.DB, descriptors []phrasebook.ProviderDescriptor, opts ...Option) (*BoltTracker, error) {
	o := newOptions(opts)

	err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketQuota)
		return err
	})
	if err != nil {
		return nil, &phrasebook.QuotaError{Op: "open", Cause: fmt.Errorf("creating bucket %s: %w", bucketQuota, err)}
	}

	return &BoltTracker{
		db:       db,
		limits:   limits(descriptors),
		now:      o.now,
		location: o.location,
	}, nil
}

// Close closes the database if the tracker opened it.
func (t *BoltTracker) Close() error {
	if !t.owned {
		return nil
	}
	return t.db.Close()
}

// CanConsume reports whether chars more characters fit in the provider's
// budget for the current period.
func (t *BoltTracker) CanConsume(_ context.Context, providerID string, chars int64) (bool, error) {
	limit, err := t.limit(providerID)
	if err != nil {
		return false, err
	}
	if limit <= 0 {
		return true, nil
	}

	consumed, err := t.consumed(providerID, t.periodStart())
	if err != nil {
		return false, err
	}
	return fits(limit, consumed, chars), nil
}

// Record adds chars to the provider's consumption for the current period.
// The read and the write happen in one bbolt transaction.
func (t *BoltTracker) Record(_ context.Context, providerID string, chars int64) error {
	if _, err := t.limit(providerID); err != nil {
		return err
	}
	if chars < 0 {
		return &phrasebook.QuotaError{Provider: providerID, Op: "record", Cause: fmt.Errorf("negative character count %d", chars)}
	}

	key := periodKey(providerID, t.periodStart())
	err := t.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketQuota)
		return b.Put(key, encodeCount(decodeCount(b.Get(key))+chars))
	})
	if err != nil {
		return &phrasebook.QuotaError{Provider: providerID, Op: "record", Cause: err}
	}
	return nil
}

// CurrentPeriod returns the provider's state for the current period.
func (t *BoltTracker) CurrentPeriod(_ context.Context, providerID string) (phrasebook.QuotaState, error) {
	limit, err := t.limit(providerID)
	if err != nil {
		return phrasebook.QuotaState{}, err
	}

	start := t.periodStart()
	consumed, err := t.consumed(providerID, start)
	if err != nil {
		return phrasebook.QuotaState{}, err
	}

	return phrasebook.QuotaState{
		ProviderID:         providerID,
		PeriodStart:        start,
		CharactersConsumed: consumed,
		MonthlyLimit:       limit,
	}, nil
}

func (t *BoltTracker) consumed(providerID string, start time.Time) (int64, error) {
	var n int64
	err := t.db.View(func(tx *bbolt.Tx) error {
		n = decodeCount(tx.Bucket(bucketQuota).Get(periodKey(providerID, start)))
		return nil
	})
	if err != nil {
		return 0, &phrasebook.QuotaError{Provider: providerID, Op: "get", Cause: err}
	}
	return n, nil
}

func (t *BoltTracker) limit(providerID string) (int64, error) {
	limit, ok := t.limits[providerID]
	if !ok {
		return 0, fmt.Errorf("%w: %q", phrasebook.ErrUnknownProvider, providerID)
	}
	return limit, nil
}

func (t *BoltTracker) periodStart() time.Time {
	return PeriodStart(t.now(), t.location)
}

func periodKey(providerID string, start time.Time) []byte {
	return []byte(providerID + "|" + start.Format("2006-01"))
}

func encodeCount(n int64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(n)) //nolint:gosec // counts are never negative
	return buf
}

func decodeCount(b []byte) int64 {
	if len(b) != 8 {
		return 0
	}
	return int64(binary.BigEndian.Uint64(b)) //nolint:gosec // written by encodeCount
}

var _ phrasebook.QuotaTracker = (*BoltTracker)(nil)
