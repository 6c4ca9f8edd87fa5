// ABOUTME: Prometheus instrumentation decorator for any Store
// ABOUTME: Counts every primitive by result and records its latency

package store

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Result label values for pairwise_store_ops_total.
const (
	resultOK       = "ok"
	resultNotFound = "not_found"
	resultError    = "error"
)

// InstrumentedStore wraps a Store and records metrics for every call.
type InstrumentedStore struct {
	next     Store
	ops      *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// Instrument wraps s so each primitive is counted and timed in reg.
// Registering twice in the same registry panics, as with promauto.
func Instrument(s Store, reg prometheus.Registerer) *InstrumentedStore {
	factory := promauto.With(reg)
	return &InstrumentedStore{
		next: s,
		ops: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pairwise_store_ops_total",
			Help: "Store primitives executed, by operation and result.",
		}, []string{"op", "result"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pairwise_store_op_duration_seconds",
			Help:    "Latency of store primitives.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, []string{"op"}),
	}
}

func (s *InstrumentedStore) observe(op string, start time.Time, err error) {
	s.duration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	result := resultOK
	switch {
	case errors.Is(err, ErrNotFound):
		result = resultNotFound
	case err != nil:
		result = resultError
	}
	s.ops.WithLabelValues(op, result).Inc()
}

func (s *InstrumentedStore) Get(ctx context.Context, key string) (string, error) {
	start := time.Now()
	v, err := s.next.Get(ctx, key)
	s.observe("get", start, err)
	return v, err
}

func (s *InstrumentedStore) Set(ctx context.Context, key, value string) error {
	start := time.Now()
	err := s.next.Set(ctx, key, value)
	s.observe("set", start, err)
	return err
}

func (s *InstrumentedStore) SetNX(ctx context.Context, key, value string) (bool, error) {
	start := time.Now()
	ok, err := s.next.SetNX(ctx, key, value)
	s.observe("setnx", start, err)
	return ok, err
}

func (s *InstrumentedStore) Del(ctx context.Context, keys ...string) (int64, error) {
	start := time.Now()
	n, err := s.next.Del(ctx, keys...)
	s.observe("del", start, err)
	return n, err
}

func (s *InstrumentedStore) SAdd(ctx context.Context, key string, members ...string) (int64, error) {
	start := time.Now()
	n, err := s.next.SAdd(ctx, key, members...)
	s.observe("sadd", start, err)
	return n, err
}

func (s *InstrumentedStore) SRem(ctx context.Context, key string, members ...string) (int64, error) {
	start := time.Now()
	n, err := s.next.SRem(ctx, key, members...)
	s.observe("srem", start, err)
	return n, err
}

func (s *InstrumentedStore) SMembers(ctx context.Context, key string) ([]string, error) {
	start := time.Now()
	members, err := s.next.SMembers(ctx, key)
	s.observe("smembers", start, err)
	return members, err
}

func (s *InstrumentedStore) HGet(ctx context.Context, key, field string) (string, error) {
	start := time.Now()
	v, err := s.next.HGet(ctx, key, field)
	s.observe("hget", start, err)
	return v, err
}

func (s *InstrumentedStore) HSet(ctx context.Context, key, field, value string) error {
	start := time.Now()
	err := s.next.HSet(ctx, key, field, value)
	s.observe("hset", start, err)
	return err
}

func (s *InstrumentedStore) HSetNX(ctx context.Context, key, field, value string) (bool, error) {
	start := time.Now()
	ok, err := s.next.HSetNX(ctx, key, field, value)
	s.observe("hsetnx", start, err)
	return ok, err
}

func (s *InstrumentedStore) HKeys(ctx context.Context, key string) ([]string, error) {
	start := time.Now()
	fields, err := s.next.HKeys(ctx, key)
	s.observe("hkeys", start, err)
	return fields, err
}

func (s *InstrumentedStore) HDel(ctx context.Context, key string, fields ...string) (int64, error) {
	start := time.Now()
	n, err := s.next.HDel(ctx, key, fields...)
	s.observe("hdel", start, err)
	return n, err
}

func (s *InstrumentedStore) Publish(ctx context.Context, channel, payload string) (int64, error) {
	start := time.Now()
	n, err := s.next.Publish(ctx, channel, payload)
	s.observe("publish", start, err)
	return n, err
}

func (s *InstrumentedStore) Subscribe(ctx context.Context, channel string) (*Subscription, error) {
	start := time.Now()
	sub, err := s.next.Subscribe(ctx, channel)
	s.observe("subscribe", start, err)
	return sub, err
}

// Close closes the wrapped store.
func (s *InstrumentedStore) Close() error {
	return s.next.Close()
}

var _ Store = (*InstrumentedStore)(nil)
