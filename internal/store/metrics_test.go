// ABOUTME: Tests for the Prometheus instrumentation decorator
// ABOUTME: Verifies op counters by result and latency observations

package store

import (
	"context"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstrument_CountsByResult(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := Instrument(NewMemoryStore(nil), reg)
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "k", "v"))
	_, err := s.Get(ctx, "k")
	require.NoError(t, err)
	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.HGet(ctx, "h", "f")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Equal(t, 1.0, testutil.ToFloat64(s.ops.WithLabelValues("set", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.ops.WithLabelValues("get", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.ops.WithLabelValues("get", "not_found")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.ops.WithLabelValues("hget", "not_found")))
}

func TestInstrument_CountsErrors(t *testing.T) {
	reg := prometheus.NewRegistry()
	inner := NewMemoryStore(nil)
	s := Instrument(inner, reg)

	require.NoError(t, inner.Close())
	err := s.Set(context.Background(), "k", "v")
	assert.ErrorIs(t, err, ErrClosed)

	assert.Equal(t, 1.0, testutil.ToFloat64(s.ops.WithLabelValues("set", "error")))
}

func TestInstrument_Exposition(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := Instrument(NewMemoryStore(nil), reg)
	defer s.Close()

	ctx := context.Background()
	_, err := s.SAdd(ctx, "users", "user:Simple:alice")
	require.NoError(t, err)

	expected := `
# HELP pairwise_store_ops_total Store primitives executed, by operation and result.
# TYPE pairwise_store_ops_total counter
pairwise_store_ops_total{op="sadd",result="ok"} 1
`
	err = testutil.GatherAndCompare(reg, strings.NewReader(expected), "pairwise_store_ops_total")
	require.NoError(t, err)

	count, err := testutil.GatherAndCount(reg, "pairwise_store_op_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
