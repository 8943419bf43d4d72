package store

import (
	"context"
	"time"
)

// Entry is a single cached record. Key, Value, AbsoluteExpiration and
// SlidingExpiration are fixed when the entry is written; only ExpiresAt moves.
type Entry struct {
	Key   string
	Value []byte
	// ExpiresAt is the next deadline at which the entry is stale. nil means the
	// entry never expires.
	ExpiresAt *time.Time
	// AbsoluteExpiration is a ceiling ExpiresAt never passes.
	AbsoluteExpiration *time.Time
	// SlidingExpiration is how far ExpiresAt moves forward on each access.
	SlidingExpiration *time.Duration
}

// WithExpiresAt returns a copy of the entry with ExpiresAt replaced.
func (e Entry) WithExpiresAt(t *time.Time) Entry {
	if t != nil {
		v := *t
		t = &v
	}
	e.ExpiresAt = t
	return e
}

// Store is the document collection the cache is built on. Every method is a
// single atomic operation on the backing store.
type Store interface {
	// Fetch returns the entry for key, or nil if there is none. When
	// includeValue is false the value is not transferred.
	Fetch(ctx context.Context, key string, includeValue bool) (*Entry, error)
	// Upsert inserts the entry or replaces every field of an existing one.
	Upsert(ctx context.Context, e Entry) error
	// TouchExpiry rewrites ExpiresAt for key, but only if the stored entry
	// exists, has a non-nil ExpiresAt and still carries the absolute
	// expiration the caller read (nil matching nil). An entry replaced since
	// it was read is left alone.
	TouchExpiry(ctx context.Context, key string, expiresAt time.Time, absolute *time.Time) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	// DeleteExpired removes every entry whose ExpiresAt is at or before now
	// and returns how many were removed.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

func secondsOf(d *time.Duration) *float64 {
	if d == nil {
		return nil
	}
	s := d.Seconds()
	return &s
}

func durationOf(seconds *float64) *time.Duration {
	if seconds == nil {
		return nil
	}
	d := time.Duration(*seconds * float64(time.Second))
	return &d
}
