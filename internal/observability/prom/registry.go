// Package prom exposes engine metrics for Prometheus scraping. It implements
// statsd.Sink so the emitters stay unaware of the exporter.
package prom

import (
	"log/slog"
	"maps"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/Perkybeet/wasm/internal/observability/statsd"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultBuckets spans 50ms to roughly 7 minutes, the range of deployment stages.
var DefaultBuckets = prometheus.ExponentialBuckets(0.05, 2, 14)

// Options configures a Registry.
type Options struct {
	// Namespace prefixes every metric, e.g. "wasm".
	Namespace string
	Buckets   []float64
	Logger    *slog.Logger

	// OptionalLabels are added to every family so emitters may set them only
	// on some calls, e.g. "error_class" on failures.
	OptionalLabels []string
}

type kind uint8

const (
	kindCounter kind = iota
	kindGauge
	kindHistogram
)

type family struct {
	kind      kind
	labels    []string
	collector prometheus.Collector
	warned    bool
}

// Registry turns StatsD-style calls into Prometheus families. A family is
// created on first use with the label names of that call plus the optional
// labels. Later calls may omit labels, which are then empty; calls that bring
// labels the family does not have are dropped and logged once.
type Registry struct {
	reg       *prometheus.Registry
	namespace string
	buckets   []float64
	logger    *slog.Logger
	optional  []string

	mu       sync.Mutex
	families map[string]*family
}

var _ statsd.Sink = (*Registry)(nil)

// New returns a registry that also carries the Go runtime and process collectors.
func New(opts Options) *Registry {
	r := &Registry{
		reg:       prometheus.NewRegistry(),
		namespace: sanitizeName(opts.Namespace),
		buckets:   opts.Buckets,
		logger:    opts.Logger,
		families:  make(map[string]*family),
	}
	for _, l := range opts.OptionalLabels {
		if ln := sanitizeName(l); ln != "" {
			r.optional = append(r.optional, ln)
		}
	}
	if len(r.buckets) == 0 {
		r.buckets = DefaultBuckets
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	r.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Handler serves the text exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

// Gatherer exposes the underlying registry, mainly for tests.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// Count adds value to a counter named "<ns>_<name>_total". Negative values are ignored.
func (r *Registry) Count(name string, value int64, tags map[string]string) {
	if value < 0 {
		return
	}
	if vec, labels := r.family(kindCounter, name, tags); vec != nil {
		vec.(*prometheus.CounterVec).With(labels).Add(float64(value))
	}
}

// Gauge sets a gauge named "<ns>_<name>".
func (r *Registry) Gauge(name string, value float64, tags map[string]string) {
	if vec, labels := r.family(kindGauge, name, tags); vec != nil {
		vec.(*prometheus.GaugeVec).With(labels).Set(value)
	}
}

// Timing observes value in seconds on a histogram named "<ns>_<name>_seconds".
func (r *Registry) Timing(name string, value time.Duration, tags map[string]string) {
	if vec, labels := r.family(kindHistogram, name, tags); vec != nil {
		vec.(*prometheus.HistogramVec).With(labels).Observe(value.Seconds())
	}
}

func (r *Registry) family(k kind, name string, tags map[string]string) (prometheus.Collector, prometheus.Labels) {
	fq := r.fqName(k, name)
	if fq == "" {
		return nil, nil
	}
	labels := make(prometheus.Labels, len(tags)+len(r.optional))
	for _, ln := range r.optional {
		labels[ln] = ""
	}
	for key, v := range tags {
		if ln := sanitizeName(key); ln != "" {
			labels[ln] = v
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if f, ok := r.families[fq]; ok {
		if f.collector == nil || f.kind != k || !fits(f.labels, labels) {
			if !f.warned {
				f.warned = true
				r.logger.Warn("prometheus metric dropped: inconsistent type or labels",
					"metric", fq, "labels", slices.Sorted(maps.Keys(labels)), "registered", f.labels)
			}
			return nil, nil
		}
		for _, ln := range f.labels {
			if _, ok := labels[ln]; !ok {
				labels[ln] = ""
			}
		}
		return f.collector, labels
	}

	names := slices.Sorted(maps.Keys(labels))
	f := &family{kind: k, labels: names, collector: r.newCollector(k, fq, names)}
	if err := r.reg.Register(f.collector); err != nil {
		r.logger.Warn("prometheus metric registration failed", "metric", fq, "error", err)
		f.collector = nil
		f.warned = true
	}
	r.families[fq] = f
	if f.collector == nil {
		return nil, nil
	}
	return f.collector, labels
}

// fits reports whether every label of a call belongs to the family.
func fits(family []string, labels prometheus.Labels) bool {
	for ln := range labels {
		if _, found := slices.BinarySearch(family, ln); !found {
			return false
		}
	}
	return true
}

func (r *Registry) newCollector(k kind, fq string, labels []string) prometheus.Collector {
	help := "Engine metric " + fq + "."
	switch k {
	case kindCounter:
		return prometheus.NewCounterVec(prometheus.CounterOpts{Name: fq, Help: help}, labels)
	case kindGauge:
		return prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: fq, Help: help}, labels)
	default:
		return prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: fq, Help: help, Buckets: r.buckets}, labels)
	}
}

func (r *Registry) fqName(k kind, name string) string {
	base := sanitizeName(name)
	if base == "" {
		return ""
	}
	if r.namespace != "" {
		base = r.namespace + "_" + base
	}
	switch k {
	case kindCounter:
		if !strings.HasSuffix(base, "_total") {
			base += "_total"
		}
	case kindHistogram:
		if !strings.HasSuffix(base, "_seconds") {
			base += "_seconds"
		}
	}
	return base
}

// sanitizeName maps a StatsD-style name ("jobs.submitted", "stage/duration")
// onto the Prometheus name alphabet.
func sanitizeName(s string) string {
	var b strings.Builder
	for _, c := range strings.TrimSpace(s) {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			b.WriteRune(c)
		default:
			b.WriteByte('_')
		}
	}
	out := strings.Trim(b.String(), "_")
	for strings.Contains(out, "__") {
		out = strings.ReplaceAll(out, "__", "_")
	}
	if out != "" && out[0] >= '0' && out[0] <= '9' {
		out = "_" + out
	}
	return out
}
