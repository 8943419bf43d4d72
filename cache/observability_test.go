package cache

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/agentuity/go-doccache/metrics"
	"github.com/agentuity/go-doccache/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestOperationSpans(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	c, _ := newTestCache(t, store.NewMemory(), WithTracer(tp.Tracer("test")))
	require.NoError(t, c.Set("k", []byte("v"), EntryOptions{}))
	_, _, err := c.Get("k")
	require.NoError(t, err)
	require.NoError(t, c.Refresh("k"))
	require.NoError(t, c.Remove("k"))
	assert.Error(t, c.Set("", []byte("v"), EntryOptions{}))

	spans := sr.Ended()
	require.Len(t, spans, 5)
	names := make([]string, 0, len(spans))
	for _, s := range spans {
		names = append(names, s.Name())
	}
	assert.Equal(t, []string{"doccache.set", "doccache.get", "doccache.refresh", "doccache.remove", "doccache.set"}, names)

	assert.Contains(t, spans[1].Attributes(), attribute.String("cache.key", "k"))
	assert.Contains(t, spans[1].Attributes(), attribute.String("cache.result", metrics.ResultHit))
	assert.Equal(t, codes.Unset, spans[1].Status().Code)

	assert.Equal(t, codes.Error, spans[4].Status().Code)
	assert.Contains(t, spans[4].Attributes(), attribute.String("cache.result", metrics.ResultInvalid))
}

func TestOperationMetrics(t *testing.T) {
	m := metrics.New("test")
	reg := prometheus.NewRegistry()
	require.NoError(t, m.Register(reg))

	c, clock := newTestCache(t, store.NewMemory(), WithMetrics(m))
	require.NoError(t, c.Set("k", []byte("v"), EntryOptions{AbsoluteExpiration: at(time.Minute)}))
	_, _, err := c.Get("k")
	require.NoError(t, err)
	_, _, err = c.Get("missing")
	require.NoError(t, err)
	assert.Error(t, c.Set("k", nil, EntryOptions{}))
	clock.Set(t0.Add(time.Minute))
	_, _, err = c.Get("k")
	require.NoError(t, err)

	expected := `
# HELP test_cache_operations_total Cache operations by operation and result
# TYPE test_cache_operations_total counter
test_cache_operations_total{operation="get",result="expired"} 1
test_cache_operations_total{operation="get",result="hit"} 1
test_cache_operations_total{operation="get",result="miss"} 1
test_cache_operations_total{operation="set",result="invalid"} 1
test_cache_operations_total{operation="set",result="ok"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "test_cache_operations_total"))
}

func TestSweepMetrics(t *testing.T) {
	m := metrics.New("test")
	reg := prometheus.NewRegistry()
	require.NoError(t, m.Register(reg))

	c, clock := newTestCache(t, store.NewMemory(), WithMetrics(m), WithSweepInterval(time.Minute))
	require.NoError(t, c.Set("a", []byte("1"), EntryOptions{SlidingExpiration: dur(time.Second)}))
	require.NoError(t, c.Set("b", []byte("2"), EntryOptions{SlidingExpiration: dur(time.Second)}))

	clock.Set(t0.Add(2 * time.Minute))
	require.NoError(t, c.Remove("unrelated"))
	c.sweeper.Wait()

	expected := `
# HELP test_cache_swept_entries_total Entries removed by sweeps
# TYPE test_cache_swept_entries_total counter
test_cache_swept_entries_total 2
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "test_cache_swept_entries_total"))
}
