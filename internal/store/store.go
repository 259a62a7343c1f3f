// Package store implements the metric store: the label-indexed
// key-value structure jobs upsert samples into and the exposition
// handler renders on every scrape. It is built directly on
// prometheus/client_golang's Registry and *Vec collector family
// instead of a hand-rolled map, following the wiring pattern used
// across the retrieved example pack's exporters (GaugeVec/CounterVec
// registered against a private prometheus.Registry, rendered through
// expfmt). Vecs give upsert/last-write-wins and delete_by_label for
// free through With and DeletePartialMatch.
package store

import (
	"bytes"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// deletableVec is satisfied by every *Vec type client_golang ships;
// it is the shape DeletePartialMatch needs for eviction.
type deletableVec interface {
	DeletePartialMatch(labels prometheus.Labels) int
}

// Store owns the private registry every metric family is registered
// against, plus the global prefix and constant labels applied to
// every family at registration time. Because configuration is
// immutable after startup (per the concurrency model), applying the
// prefix/global-labels once at family registration is equivalent to
// applying them per upsert, and avoids re-merging a map on every
// sample.
type Store struct {
	registry   *prometheus.Registry
	prefix     string
	constLabel prometheus.Labels

	dropletVecs []deletableVec
}

// New creates a Store. prefix is prepended to every family name;
// globalLabels are merged into every sample as constant labels
// (explicit per-sample labels always win because they are the
// variable labels, never overridden by ConstLabels).
func New(prefix string, globalLabels map[string]string) *Store {
	cl := make(prometheus.Labels, len(globalLabels))
	for k, v := range globalLabels {
		cl[k] = v
	}
	return &Store{
		registry:   prometheus.NewRegistry(),
		prefix:     prefix,
		constLabel: cl,
	}
}

func (s *Store) name(family string) string {
	return s.prefix + family
}

// NewGauge registers and returns a GaugeVec for family. isPerDroplet
// marks the family as eligible for eviction when a droplet
// disappears from the registry; such families must include "droplet"
// in labelNames.
func (s *Store) NewGauge(family, help string, labelNames []string, isPerDroplet bool) *prometheus.GaugeVec {
	vec := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name:        s.name(family),
		Help:        help,
		ConstLabels: s.constLabel,
	}, labelNames)
	s.registry.MustRegister(vec)
	if isPerDroplet {
		s.dropletVecs = append(s.dropletVecs, vec)
	}
	return vec
}

// NewCounter registers and returns a CounterVec for family.
func (s *Store) NewCounter(family, help string, labelNames []string) *prometheus.CounterVec {
	vec := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        s.name(family),
		Help:        help,
		ConstLabels: s.constLabel,
	}, labelNames)
	s.registry.MustRegister(vec)
	return vec
}

// NewHistogram registers and returns a HistogramVec for family.
func (s *Store) NewHistogram(family, help string, labelNames []string, buckets []float64) *prometheus.HistogramVec {
	vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        s.name(family),
		Help:        help,
		ConstLabels: s.constLabel,
		Buckets:     buckets,
	}, labelNames)
	s.registry.MustRegister(vec)
	return vec
}

// Upsert sets the value for one (gauge family, label set) identity,
// overwriting whatever was previously stored there.
func (s *Store) Upsert(vec *prometheus.GaugeVec, labels prometheus.Labels, value float64) {
	vec.With(labels).Set(value)
}

// EvictDroplets implements registry.Evictor. It removes every sample
// whose "droplet" label matches one of names, across every family
// registered with isPerDroplet=true.
func (s *Store) EvictDroplets(names []string) {
	for _, vec := range s.dropletVecs {
		for _, name := range names {
			vec.DeletePartialMatch(prometheus.Labels{"droplet": name})
		}
	}
}

// Render produces the complete text-format exposition of every
// registered family with at least one sample. Families with zero
// samples are never emitted, because client_golang only gathers
// MetricFamily entries for series that have actually been touched by
// With/WithLabelValues.
func (s *Store) Render() ([]byte, error) {
	families, err := s.registry.Gather()
	if err != nil {
		return nil, fmt.Errorf("store: gather metric families: %w", err)
	}

	var buf bytes.Buffer
	enc := expfmt.NewEncoder(&buf, expfmt.FmtText)
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return nil, fmt.Errorf("store: encode family %s: %w", mf.GetName(), err)
		}
	}
	return buf.Bytes(), nil
}

// ContentType is the Prometheus text exposition content type served
// by the /metrics handler.
const ContentType = "text/plain; version=0.0.4"
