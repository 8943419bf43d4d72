package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agentuity/go-doccache/expiry"
	"github.com/agentuity/go-doccache/logger"
	"github.com/agentuity/go-doccache/metrics"
	"github.com/agentuity/go-doccache/store"
	"github.com/agentuity/go-doccache/sweep"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	opGet     = "get"
	opSet     = "set"
	opRefresh = "refresh"
	opRemove  = "remove"
)

// EntryOptions controls when a new entry expires. The zero value never
// expires.
type EntryOptions struct {
	// AbsoluteExpiration is the latest instant the entry may live to.
	AbsoluteExpiration *time.Time
	// AbsoluteExpirationRelativeToNow is resolved against the current time
	// when the entry is written and takes precedence over AbsoluteExpiration.
	AbsoluteExpirationRelativeToNow *time.Duration
	// SlidingExpiration extends the entry by this much on every access.
	SlidingExpiration *time.Duration
}

// Stats is a snapshot of the read outcomes seen by one Cache.
type Stats struct {
	Hits    int64
	Misses  int64
	Expired int64
}

// Cache is a TTL-aware cache over a shared document store. It is safe for
// concurrent use, and many processes may share the same store.
type Cache struct {
	ctx     context.Context
	cancel  context.CancelFunc
	store   store.Store
	sweeper *sweep.Scheduler
	now     func() time.Time
	timeout time.Duration
	log     logger.Logger
	metrics *metrics.Collector
	tracer  trace.Tracer

	closers  []func(context.Context) error
	once     sync.Once
	closeErr error

	hits    atomic.Int64
	misses  atomic.Int64
	expired atomic.Int64
}

// NewWithStore returns a Cache over s. The caller keeps ownership of s;
// closing the Cache does not close it.
func NewWithStore(ctx context.Context, s store.Store, opts ...Option) *Cache {
	return newCache(ctx, s, applyOptions(opts))
}

func newCache(ctx context.Context, s store.Store, cfg config) *Cache {
	ctx, cancel := context.WithCancel(ctx)
	log := logger.WithKV(cfg.log.WithPrefix("[doccache]"), "cache", uuid.NewString())
	sweepOpts := []sweep.Option{
		sweep.WithInterval(cfg.sweepInterval),
		sweep.WithTimeout(cfg.sweepTimeout),
		sweep.WithStartTime(cfg.now()),
		sweep.WithLogger(log),
		sweep.WithErrorHandler(cfg.onSweepError),
	}
	if cfg.metrics != nil {
		sweepOpts = append(sweepOpts, sweep.WithObserver(cfg.metrics))
	}
	return &Cache{
		ctx:     ctx,
		cancel:  cancel,
		store:   s,
		sweeper: sweep.New(ctx, s, sweepOpts...),
		now:     cfg.now,
		timeout: cfg.queryTimeout,
		log:     log,
		metrics: cfg.metrics,
		tracer:  cfg.tracer,
	}
}

// Get is GetContext using the cache's own context.
func (c *Cache) Get(key string) (bool, []byte, error) {
	return c.GetContext(c.ctx, key)
}

// GetContext returns the value stored under key and slides its expiration
// forward. Absent and expired entries both report found=false with a nil
// error; an expired entry is deleted before returning.
func (c *Cache) GetContext(ctx context.Context, key string) (found bool, value []byte, err error) {
	ctx, span, started := c.begin(ctx, opGet, key)
	now := c.now()
	result := metrics.ResultMiss
	defer func() { c.finish(span, opGet, started, now, &result, err) }()
	return c.read(ctx, key, true, &result)
}

// Refresh is RefreshContext using the cache's own context.
func (c *Cache) Refresh(key string) error {
	return c.RefreshContext(c.ctx, key)
}

// RefreshContext slides the expiration of key forward without transferring
// its value. Refreshing an absent or expired key is not an error.
func (c *Cache) RefreshContext(ctx context.Context, key string) (err error) {
	ctx, span, started := c.begin(ctx, opRefresh, key)
	now := c.now()
	result := metrics.ResultMiss
	defer func() { c.finish(span, opRefresh, started, now, &result, err) }()
	_, _, err = c.read(ctx, key, false, &result)
	return err
}

// read is the shared Get and Refresh path. It fetches once, deletes the entry
// if it is already stale, and otherwise persists the renewed deadline.
func (c *Cache) read(ctx context.Context, key string, includeValue bool, result *string) (bool, []byte, error) {
	if key == "" {
		return false, nil, nil
	}
	var entry *store.Entry
	if err := c.call(ctx, func(ctx context.Context) (err error) {
		entry, err = c.store.Fetch(ctx, key, includeValue)
		return err
	}); err != nil {
		return false, nil, err
	}
	now := c.now()
	if entry == nil {
		c.misses.Add(1)
		return false, nil, nil
	}
	if expiry.IsExpired(now, entry) {
		if err := c.call(ctx, func(ctx context.Context) error {
			return c.store.Delete(ctx, key)
		}); err != nil {
			return false, nil, err
		}
		c.expired.Add(1)
		*result = metrics.ResultExpired
		c.log.Debug("removed expired entry %q (expired at %s)", key, entry.ExpiresAt.Format(time.RFC3339Nano))
		return false, nil, nil
	}
	if renewed, ok := expiry.Renew(now, *entry); ok {
		if err := c.call(ctx, func(ctx context.Context) error {
			return c.store.TouchExpiry(ctx, key, *renewed.ExpiresAt, entry.AbsoluteExpiration)
		}); err != nil {
			return false, nil, err
		}
	}
	c.hits.Add(1)
	*result = metrics.ResultHit
	value := entry.Value
	if includeValue && value == nil {
		value = []byte{}
	}
	return true, value, nil
}

// Set is SetContext using the cache's own context.
func (c *Cache) Set(key string, value []byte, opts EntryOptions) error {
	return c.SetContext(c.ctx, key, value, opts)
}

// SetContext stores value under key, replacing any existing entry along with
// its expiration settings. An empty key, a nil value, a non-positive sliding
// window or an absolute expiration that is not in the future is rejected with
// ErrInvalidConfiguration before the store is touched.
func (c *Cache) SetContext(ctx context.Context, key string, value []byte, opts EntryOptions) (err error) {
	ctx, span, started := c.begin(ctx, opSet, key)
	now := c.now()
	result := metrics.ResultOK
	defer func() { c.finish(span, opSet, started, now, &result, err) }()
	if key == "" {
		return invalidf("cache key must not be empty")
	}
	if value == nil {
		return invalidf("value for %q must not be nil", key)
	}
	entry, err := newEntry(now, key, value, opts)
	if err != nil {
		return err
	}
	return c.call(ctx, func(ctx context.Context) error {
		return c.store.Upsert(ctx, entry)
	})
}

func newEntry(now time.Time, key string, value []byte, opts EntryOptions) (store.Entry, error) {
	var absolute *time.Time
	switch {
	case opts.AbsoluteExpirationRelativeToNow != nil:
		rel := *opts.AbsoluteExpirationRelativeToNow
		if rel <= 0 {
			return store.Entry{}, invalidf("relative absolute expiration for %q must be positive, got %s", key, rel)
		}
		t := now.Add(rel)
		absolute = &t
	case opts.AbsoluteExpiration != nil:
		t := *opts.AbsoluteExpiration
		absolute = &t
	}
	if absolute != nil && !absolute.After(now) {
		return store.Entry{}, invalidf("absolute expiration %s for %q is not in the future", absolute.Format(time.RFC3339Nano), key)
	}
	var sliding *time.Duration
	if opts.SlidingExpiration != nil {
		d := *opts.SlidingExpiration
		if d <= 0 {
			return store.Entry{}, invalidf("sliding expiration for %q must be positive, got %s", key, d)
		}
		sliding = &d
	}
	return store.Entry{
		Key:                key,
		Value:              value,
		ExpiresAt:          expiry.ComputeExpiresAt(now, sliding, absolute),
		AbsoluteExpiration: absolute,
		SlidingExpiration:  sliding,
	}, nil
}

// Remove is RemoveContext using the cache's own context.
func (c *Cache) Remove(key string) error {
	return c.RemoveContext(c.ctx, key)
}

// RemoveContext deletes key. Removing an absent key is not an error.
func (c *Cache) RemoveContext(ctx context.Context, key string) (err error) {
	ctx, span, started := c.begin(ctx, opRemove, key)
	now := c.now()
	result := metrics.ResultOK
	defer func() { c.finish(span, opRemove, started, now, &result, err) }()
	if key == "" {
		return nil
	}
	return c.call(ctx, func(ctx context.Context) error {
		return c.store.Delete(ctx, key)
	})
}

// Inspect returns the stored metadata for key without its value and without
// applying expiry or renewal. It returns nil when there is no entry.
func (c *Cache) Inspect(ctx context.Context, key string) (*store.Entry, error) {
	var entry *store.Entry
	err := c.call(ctx, func(ctx context.Context) (err error) {
		entry, err = c.store.Fetch(ctx, key, false)
		return err
	})
	return entry, err
}

// Sweep removes every expired entry now, bypassing the debounce interval,
// and returns how many were removed.
func (c *Cache) Sweep(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	started := time.Now()
	removed, err := c.sweeper.RunNow(ctx, c.now())
	if c.metrics != nil {
		c.metrics.SweepFinished(removed, err, time.Since(started))
	}
	return removed, err
}

// Stats returns the hit, miss and lazy expiry counts seen by this Cache.
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Expired: c.expired.Load(),
	}
}

// Close is CloseContext with a background context.
func (c *Cache) Close() error {
	return c.CloseContext(context.Background())
}

// CloseContext stops background sweeps and releases any client the Cache
// opened itself. A sweep still running when ctx is done is cancelled.
// Closing more than once returns the first result.
func (c *Cache) CloseContext(ctx context.Context) error {
	c.once.Do(func() {
		done := make(chan struct{})
		go func() {
			c.sweeper.Close()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			c.cancel()
			<-done
		}
		c.cancel()
		var errs error
		for i := len(c.closers) - 1; i >= 0; i-- {
			errs = errors.CombineErrors(errs, c.closers[i](ctx))
		}
		c.closeErr = errs
	})
	return c.closeErr
}

// call runs fn with the per-operation timeout, refusing to start when ctx is
// already done.
func (c *Cache) call(ctx context.Context, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return fn(ctx)
}

func (c *Cache) begin(ctx context.Context, op, key string) (context.Context, trace.Span, time.Time) {
	ctx, span := c.tracer.Start(ctx, "doccache."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("cache.operation", op),
			attribute.String("cache.key", key),
		),
	)
	return ctx, span, time.Now()
}

// finish closes the span and records the operation. A successful operation,
// including one that found nothing, may start a background sweep.
func (c *Cache) finish(span trace.Span, op string, started, now time.Time, result *string, err error) {
	defer span.End()
	if err != nil {
		*result = metrics.ResultError
		if errors.Is(err, ErrInvalidConfiguration) {
			*result = metrics.ResultInvalid
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		c.sweeper.MaybeRun(now)
	}
	span.SetAttributes(attribute.String("cache.result", *result))
	c.metrics.ObserveOperation(op, *result, time.Since(started))
}
