// Package expiry computes when a cache entry goes stale. Everything here is a
// pure function of its inputs; persisting the result is the caller's job.
package expiry

import (
	"time"

	"github.com/agentuity/go-doccache/store"
)

// ComputeExpiresAt returns the next deadline for an entry accessed at now.
//
//   - neither sliding nor absolute: nil, the entry never expires
//   - absolute only: absolute
//   - sliding only: now + sliding
//   - both: the earlier of now + sliding and absolute
func ComputeExpiresAt(now time.Time, sliding *time.Duration, absolute *time.Time) *time.Time {
	if sliding == nil {
		if absolute == nil {
			return nil
		}
		t := *absolute
		return &t
	}
	next := now.Add(*sliding)
	if absolute != nil && !next.Before(*absolute) {
		next = *absolute
	}
	return &next
}

// IsExpired reports whether e has a deadline at or before now.
func IsExpired(now time.Time, e *store.Entry) bool {
	return e != nil && e.ExpiresAt != nil && !e.ExpiresAt.After(now)
}

// Renew returns e with ExpiresAt recomputed for an access at now. The bool is
// false when e never expires, in which case e is returned unchanged and there
// is nothing to persist. Once the sliding window reaches the absolute ceiling
// every renewal yields the ceiling.
func Renew(now time.Time, e store.Entry) (store.Entry, bool) {
	if e.ExpiresAt == nil {
		return e, false
	}
	return e.WithExpiresAt(ComputeExpiresAt(now, e.SlidingExpiration, e.AbsoluteExpiration)), true
}
