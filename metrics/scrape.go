package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ScrapeConfig configures a ScrapeRegistry.
type ScrapeConfig struct {
	// Namespace is prepended to every metric name unless the metric sets its own.
	Namespace string
	// Runtime registers the Go and process collectors.
	Runtime bool
}

// ScrapeRegistry registers metrics with a private Prometheus registry and
// serves them over HTTP.
type ScrapeRegistry struct {
	prom      *prometheus.Registry
	namespace string
}

// NewScrapeRegistry creates a ScrapeRegistry.
func NewScrapeRegistry(cfg ScrapeConfig) (*ScrapeRegistry, error) {
	reg := prometheus.NewRegistry()
	if cfg.Runtime {
		if err := reg.Register(collectors.NewGoCollector()); err != nil {
			return nil, fmt.Errorf("registering go collector: %w", err)
		}
		if err := reg.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
			return nil, fmt.Errorf("registering process collector: %w", err)
		}
	}
	return &ScrapeRegistry{prom: reg, namespace: cfg.Namespace}, nil
}

// Handler serves the registry in the Prometheus exposition format.
func (r *ScrapeRegistry) Handler() http.Handler {
	return promhttp.HandlerFor(r.prom, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Gatherer exposes the underlying registry, mainly for tests.
func (r *ScrapeRegistry) Gatherer() prometheus.Gatherer {
	return r.prom
}

// NewGauge creates and registers a Gauge.
func (r *ScrapeRegistry) NewGauge(opts prometheus.GaugeOpts) (Gauge, error) {
	r.applyNamespace(&opts.Namespace)
	g := prometheus.NewGauge(opts)
	if err := register(r.prom, g, opts.Name); err != nil {
		return nil, err
	}
	return g, nil
}

// NewGaugeVec creates and registers a GaugeVec.
func (r *ScrapeRegistry) NewGaugeVec(opts prometheus.GaugeOpts, labels []string) (GaugeVec, error) {
	r.applyNamespace(&opts.Namespace)
	g := prometheus.NewGaugeVec(opts, labels)
	if err := register(r.prom, g, opts.Name); err != nil {
		return nil, err
	}
	return gaugeVec{vec[prometheus.Gauge]{with: g.With}}, nil
}

// NewCounter creates and registers a Counter.
func (r *ScrapeRegistry) NewCounter(opts prometheus.CounterOpts) (Counter, error) {
	r.applyNamespace(&opts.Namespace)
	c := prometheus.NewCounter(opts)
	if err := register(r.prom, c, opts.Name); err != nil {
		return nil, err
	}
	return c, nil
}

// NewCounterVec creates and registers a CounterVec.
func (r *ScrapeRegistry) NewCounterVec(opts prometheus.CounterOpts, labels []string) (CounterVec, error) {
	r.applyNamespace(&opts.Namespace)
	c := prometheus.NewCounterVec(opts, labels)
	if err := register(r.prom, c, opts.Name); err != nil {
		return nil, err
	}
	return counterVec{vec[prometheus.Counter]{with: c.With}}, nil
}

func (r *ScrapeRegistry) applyNamespace(ns *string) {
	if *ns == "" {
		*ns = r.namespace
	}
}

func register(reg *prometheus.Registry, c prometheus.Collector, name string) error {
	if err := reg.Register(c); err != nil {
		return fmt.Errorf("registering %q: %w", name, err)
	}
	return nil
}
