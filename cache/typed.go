package cache

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/vmihailenco/msgpack/v5"
)

// GetValue reads key and decodes it from msgpack into a T.
func GetValue[T any](ctx context.Context, c *Cache, key string) (bool, T, error) {
	var zero T
	found, data, err := c.GetContext(ctx, key)
	if !found || err != nil {
		return false, zero, err
	}
	var result T
	if err := msgpack.Unmarshal(data, &result); err != nil {
		return false, zero, errors.Wrapf(err, "failed to unmarshal cached value for %q", key)
	}
	return true, result, nil
}

// SetValue encodes v with msgpack and stores it under key.
func SetValue[T any](ctx context.Context, c *Cache, key string, v T, opts EntryOptions) error {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "failed to marshal value for %q", key)
	}
	return c.SetContext(ctx, key, data, opts)
}

// Invoker produces a value of type T. The bool reports whether a value was
// found; returning false keeps a zero value out of the cache.
type Invoker[T any] func(ctx context.Context) (T, bool, error)

// Exec is a cache-aside helper. A hit returns the cached value. A miss calls
// invoke and caches what it found under opts. Read and invoke errors are
// returned; a failure to write the result back is only logged, because the
// caller already has its value.
func Exec[T any](ctx context.Context, c *Cache, key string, opts EntryOptions, invoke Invoker[T]) (bool, T, error) {
	var zero T
	found, val, err := GetValue[T](ctx, c, key)
	if err != nil {
		return false, zero, err
	}
	if found {
		return true, val, nil
	}
	result, ok, err := invoke(ctx)
	if err != nil {
		return false, zero, err
	}
	if !ok {
		return false, zero, nil
	}
	if err := SetValue(ctx, c, key, result, opts); err != nil {
		c.log.Warn("failed to cache result for %q: %v", key, err)
	}
	return true, result, nil
}
