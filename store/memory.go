package store

import (
	"context"
	"sync"
	"time"
)

// Memory is a Store held in a process-local map. It is useful for tests and for
// a single process that wants the cache semantics without a database.
type Memory struct {
	mutex   sync.Mutex
	entries map[string]Entry
}

var _ Store = (*Memory)(nil)

// NewMemory returns an empty in-memory Store.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]Entry)}
}

func clone(e Entry, includeValue bool) Entry {
	out := Entry{Key: e.Key}
	if includeValue && e.Value != nil {
		out.Value = append([]byte{}, e.Value...)
	}
	if e.ExpiresAt != nil {
		t := *e.ExpiresAt
		out.ExpiresAt = &t
	}
	if e.AbsoluteExpiration != nil {
		t := *e.AbsoluteExpiration
		out.AbsoluteExpiration = &t
	}
	if e.SlidingExpiration != nil {
		d := *e.SlidingExpiration
		out.SlidingExpiration = &d
	}
	return out
}

func (m *Memory) Fetch(ctx context.Context, key string, includeValue bool) (*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return nil, nil
	}
	out := clone(e, includeValue)
	return &out, nil
}

func (m *Memory) Upsert(ctx context.Context, e Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mutex.Lock()
	m.entries[e.Key] = clone(e, true)
	m.mutex.Unlock()
	return nil
}

func (m *Memory) TouchExpiry(ctx context.Context, key string, expiresAt time.Time, absolute *time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if e, ok := m.entries[key]; ok && e.ExpiresAt != nil && sameInstant(e.AbsoluteExpiration, absolute) {
		m.entries[key] = e.WithExpiresAt(&expiresAt)
	}
	return nil
}

func (m *Memory) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mutex.Lock()
	delete(m.entries, key)
	m.mutex.Unlock()
	return nil
}

func (m *Memory) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()
	var removed int64
	for key, e := range m.entries {
		if e.ExpiresAt != nil && !e.ExpiresAt.After(now) {
			delete(m.entries, key)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of stored entries, expired or not.
func (m *Memory) Len() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return len(m.entries)
}

// Snapshot returns the stored entry for key without any expiry handling.
func (m *Memory) Snapshot(key string) (Entry, bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return Entry{}, false
	}
	return clone(e, true), true
}

func sameInstant(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
