package cache

import (
	"time"

	"github.com/agentuity/go-doccache/logger"
	"github.com/agentuity/go-doccache/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// DefaultQueryTimeout is the per-operation timeout applied to store calls.
// It prevents indefinite hangs on a slow or unresponsive store.
const DefaultQueryTimeout = 5 * time.Second

const tracerName = "github.com/agentuity/go-doccache/cache"

// config holds the resolved configuration for a Cache.
type config struct {
	now           func() time.Time
	queryTimeout  time.Duration
	sweepInterval time.Duration
	sweepTimeout  time.Duration
	log           logger.Logger
	metrics       *metrics.Collector
	tracer        trace.Tracer
	onSweepError  func(error)
}

// Option configures a Cache.
type Option func(*config)

func defaultConfig() config {
	return config{
		now:          time.Now,
		queryTimeout: DefaultQueryTimeout,
	}
}

func applyOptions(opts []Option) config {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.log == nil {
		cfg.log = logger.NewConsoleLogger()
	}
	if cfg.tracer == nil {
		cfg.tracer = otel.Tracer(tracerName)
	}
	return cfg
}

// WithClock replaces time.Now as the source of the current time.
func WithClock(now func() time.Time) Option {
	return func(c *config) {
		if now != nil {
			c.now = now
		}
	}
}

// WithQueryTimeout sets the timeout for each store call. Non-positive values
// keep DefaultQueryTimeout.
func WithQueryTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.queryTimeout = d
		}
	}
}

// WithSweepInterval sets the minimum time between expired entry sweeps.
// Non-positive values keep the 5 minute default.
func WithSweepInterval(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.sweepInterval = d
		}
	}
}

// WithSweepTimeout bounds a single background sweep.
func WithSweepTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.sweepTimeout = d
		}
	}
}

// WithSweepErrorHandler receives every background sweep failure. It runs on
// the sweep goroutine.
func WithSweepErrorHandler(fn func(error)) Option {
	return func(c *config) { c.onSweepError = fn }
}

// WithLogger sets the logger. Defaults to a console logger at the level in
// DOCCACHE_LOG_LEVEL.
func WithLogger(log logger.Logger) Option {
	return func(c *config) { c.log = log }
}

// WithMetrics records cache and sweep activity in m.
func WithMetrics(m *metrics.Collector) Option {
	return func(c *config) { c.metrics = m }
}

// WithTracer sets the tracer used for operation spans. Defaults to the global
// OpenTelemetry tracer provider.
func WithTracer(t trace.Tracer) Option {
	return func(c *config) { c.tracer = t }
}
