// Package sweep runs best-effort background removal of expired cache entries.
//
// A Scheduler is poked after every cache operation. It starts a sweep when
// more than its interval has passed since the last one, using a compare and
// swap on the last run time so the check stays lock-free. Two callers that
// race on the same stale timestamp can still both observe it as due; the CAS
// lets only one of them win for a given timestamp. A redundant sweep is
// harmless because deleting expired entries is idempotent.
//
// Sweeps run on their own goroutine with their own context. Their errors are
// reported through the logger, the Observer and the error handler and never
// reach the operation that triggered them.
package sweep

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agentuity/go-doccache/logger"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// DefaultInterval is the minimum time between two sweeps.
const DefaultInterval = 5 * time.Minute

// DefaultTimeout bounds a single sweep.
const DefaultTimeout = time.Minute

// Deleter removes every entry that expired at or before now.
type Deleter interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Observer is told about every finished sweep.
type Observer interface {
	SweepFinished(removed int64, err error, took time.Duration)
}

// Scheduler decides when to sweep and runs sweeps in the background.
type Scheduler struct {
	ctx      context.Context
	deleter  Deleter
	interval time.Duration
	timeout  time.Duration
	log      logger.Logger
	onError  func(error)
	observer Observer

	lastRun atomic.Int64 // unix nanos

	mu        sync.Mutex
	closed    bool
	waitGroup sync.WaitGroup
}

type config struct {
	interval time.Duration
	timeout  time.Duration
	start    time.Time
	log      logger.Logger
	onError  func(error)
	observer Observer
}

// Option configures a Scheduler.
type Option func(*config)

// WithInterval sets the minimum time between sweeps. A non-positive value
// keeps DefaultInterval.
func WithInterval(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithTimeout bounds how long a single sweep may take.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithStartTime sets the initial last run time. Defaults to time.Now, so the
// first sweep happens one interval after construction.
func WithStartTime(t time.Time) Option {
	return func(c *config) { c.start = t }
}

// WithLogger sets the logger sweeps report to.
func WithLogger(log logger.Logger) Option {
	return func(c *config) { c.log = log }
}

// WithErrorHandler registers fn to receive every sweep failure. fn runs on
// the sweep goroutine.
func WithErrorHandler(fn func(error)) Option {
	return func(c *config) { c.onError = fn }
}

// WithObserver registers o to be told about every finished sweep.
func WithObserver(o Observer) Option {
	return func(c *config) { c.observer = o }
}

// New returns a Scheduler that sweeps d. Sweeps are cancelled when ctx is.
func New(ctx context.Context, d Deleter, opts ...Option) *Scheduler {
	cfg := config{
		interval: DefaultInterval,
		timeout:  DefaultTimeout,
		start:    time.Now(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.log == nil {
		cfg.log = logger.NewConsoleLogger(logger.LevelNone)
	}
	s := &Scheduler{
		ctx:      ctx,
		deleter:  d,
		interval: cfg.interval,
		timeout:  cfg.timeout,
		log:      cfg.log.WithPrefix("[sweep]"),
		onError:  cfg.onError,
		observer: cfg.observer,
	}
	s.lastRun.Store(cfg.start.UnixNano())
	return s
}

// Interval returns the minimum time between sweeps.
func (s *Scheduler) Interval() time.Duration {
	return s.interval
}

// LastRun returns the time the most recent sweep was scheduled for.
func (s *Scheduler) LastRun() time.Time {
	return time.Unix(0, s.lastRun.Load())
}

// MaybeRun starts a background sweep of everything expired at now if more
// than the interval has passed since the last one. It reports whether a sweep
// was started and never blocks on the sweep itself.
func (s *Scheduler) MaybeRun(now time.Time) bool {
	last := s.lastRun.Load()
	if now.UnixNano()-last <= int64(s.interval) {
		return false
	}
	if !s.lastRun.CompareAndSwap(last, now.UnixNano()) {
		return false
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.waitGroup.Add(1)
	s.mu.Unlock()
	go s.run(now)
	return true
}

// RunNow sweeps synchronously and returns the result. It does not touch the
// debounce state.
func (s *Scheduler) RunNow(ctx context.Context, now time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.deleter.DeleteExpired(ctx, now)
}

func (s *Scheduler) sweep(now time.Time) (removed int64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("sweep panicked: %v", r)
		}
	}()
	return s.RunNow(s.ctx, now)
}

func (s *Scheduler) run(now time.Time) {
	defer s.waitGroup.Done()
	log := logger.WithKV(s.log, "sweep", uuid.NewString())
	// the observer and error handler are caller code running on this goroutine
	defer func() {
		if r := recover(); r != nil {
			log.Error("sweep callback panicked: %v", r)
		}
	}()
	started := time.Now()
	removed, err := s.sweep(now)
	took := time.Since(started)
	if s.observer != nil {
		s.observer.SweepFinished(removed, err, took)
	}
	if err != nil {
		log.Warn("sweep for entries expired by %s failed: %v", now.Format(time.RFC3339Nano), err)
		if s.onError != nil {
			s.onError(err)
		}
		return
	}
	log.Debug("sweep removed %d expired entries in %s", removed, took)
}

// Wait blocks until every sweep started so far has finished.
func (s *Scheduler) Wait() {
	s.waitGroup.Wait()
}

// Close stops new sweeps from starting and waits for running ones.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.waitGroup.Wait()
}
