// Package metrics exposes pipeline metrics in Prometheus form.
//
// Two registries implement the same interface:
//   - ScrapeRegistry registers with a Prometheus registry served over HTTP (server mode)
//   - PushRegistry buffers values and sends them to a remote write endpoint
//     when Push is called (one-shot CLI runs)
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Gauge is a value that can go up and down.
type Gauge interface {
	Set(float64)
}

// Counter only increases.
type Counter interface {
	Inc()
	// Add panics if v is negative.
	Add(v float64)
}

// GaugeVec is a Gauge partitioned by labels.
type GaugeVec interface {
	With(prometheus.Labels) Gauge
}

// CounterVec is a Counter partitioned by labels.
type CounterVec interface {
	With(prometheus.Labels) Counter
}

// Registry creates and registers metrics.
type Registry interface {
	NewGauge(opts prometheus.GaugeOpts) (Gauge, error)
	NewGaugeVec(opts prometheus.GaugeOpts, labels []string) (GaugeVec, error)
	NewCounter(opts prometheus.CounterOpts) (Counter, error)
	NewCounterVec(opts prometheus.CounterOpts, labels []string) (CounterVec, error)
}

// vec adapts a prometheus *Vec whose With returns a concrete metric type.
type vec[M any] struct {
	with func(prometheus.Labels) M
}

func (v vec[M]) get(labels prometheus.Labels) M {
	return v.with(labels)
}

type gaugeVec struct{ vec[prometheus.Gauge] }

func (g gaugeVec) With(labels prometheus.Labels) Gauge { return g.get(labels) }

type counterVec struct{ vec[prometheus.Counter] }

func (c counterVec) With(labels prometheus.Labels) Counter { return c.get(labels) }
