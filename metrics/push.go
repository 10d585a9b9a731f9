package metrics

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/golang/protobuf/proto"
	"github.com/golang/snappy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/prometheus/prompb"
)

// DefaultTimeout bounds a single remote write request.
const DefaultTimeout = 30 * time.Second

// PushConfig configures a PushRegistry.
type PushConfig struct {
	// URL is the base URL of the remote write endpoint, e.g. "http://localhost:8428".
	URL string
	// Prefix is prepended to every metric name, separated by an underscore.
	Prefix string
	// Job is added as the "job" label when set.
	Job string
	// Instance is added as the "instance" label when set.
	Instance string
	// Timeout defaults to DefaultTimeout.
	Timeout time.Duration
}

// PushRegistry keeps the latest value of every series in memory. Push sends
// them all in one remote write request.
type PushRegistry struct {
	url        string
	httpClient *http.Client
	prefix     string
	constant   []prompb.Label
	now        func() time.Time

	mu     sync.Mutex
	series map[string]*series
}

type series struct {
	labels []prompb.Label
	value  float64
}

// NewPushRegistry creates a PushRegistry for cfg.
func NewPushRegistry(cfg PushConfig) *PushRegistry {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	r := &PushRegistry{
		url:        strings.TrimSuffix(cfg.URL, "/") + "/api/v1/write",
		httpClient: &http.Client{Timeout: timeout},
		prefix:     cfg.Prefix,
		now:        time.Now,
		series:     make(map[string]*series),
	}
	if cfg.Job != "" {
		r.constant = append(r.constant, prompb.Label{Name: "job", Value: cfg.Job})
	}
	if cfg.Instance != "" {
		r.constant = append(r.constant, prompb.Label{Name: "instance", Value: cfg.Instance})
	}
	return r
}

// NewGauge creates a buffered Gauge.
func (r *PushRegistry) NewGauge(opts prometheus.GaugeOpts) (Gauge, error) {
	return &pushMetric{registry: r, name: r.metricName(opts.Namespace, opts.Subsystem, opts.Name)}, nil
}

// NewGaugeVec creates a buffered GaugeVec.
func (r *PushRegistry) NewGaugeVec(opts prometheus.GaugeOpts, labels []string) (GaugeVec, error) {
	return pushGaugeVec{pushVec{registry: r, name: r.metricName(opts.Namespace, opts.Subsystem, opts.Name), labels: labels}}, nil
}

// NewCounter creates a buffered Counter.
func (r *PushRegistry) NewCounter(opts prometheus.CounterOpts) (Counter, error) {
	return &pushMetric{registry: r, name: r.metricName(opts.Namespace, opts.Subsystem, opts.Name)}, nil
}

// NewCounterVec creates a buffered CounterVec.
func (r *PushRegistry) NewCounterVec(opts prometheus.CounterOpts, labels []string) (CounterVec, error) {
	return pushCounterVec{pushVec{registry: r, name: r.metricName(opts.Namespace, opts.Subsystem, opts.Name), labels: labels}}, nil
}

// Push sends the current value of every series. Nothing is sent when no
// metric has been recorded.
func (r *PushRegistry) Push(ctx context.Context) error {
	timeseries := r.snapshot()
	if len(timeseries) == 0 {
		return nil
	}

	data, err := proto.Marshal(&prompb.WriteRequest{Timeseries: timeseries})
	if err != nil {
		return fmt.Errorf("marshaling write request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(snappy.Encode(nil, data)))
	if err != nil {
		return fmt.Errorf("creating HTTP request: %w", err)
	}
	req.Header.Set("Content-Encoding", "snappy")
	req.Header.Set("Content-Type", "application/x-protobuf")
	req.Header.Set("X-Prometheus-Remote-Write-Version", "0.1.0")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

// Run pushes every interval until ctx is cancelled, then pushes once more.
// Push errors are logged and do not stop the loop.
func (r *PushRegistry) Run(ctx context.Context, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := r.Push(ctx); err != nil {
				logger.Warn("failed to push metrics", "error", err)
			}
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), r.httpClient.Timeout)
			if err := r.Push(flushCtx); err != nil {
				logger.Warn("failed to push metrics on shutdown", "error", err)
			}
			cancel()
			return
		}
	}
}

func (r *PushRegistry) snapshot() []prompb.TimeSeries {
	r.mu.Lock()
	defer r.mu.Unlock()

	ts := r.now().UnixMilli()
	out := make([]prompb.TimeSeries, 0, len(r.series))
	for _, key := range slices.Sorted(maps.Keys(r.series)) {
		s := r.series[key]
		out = append(out, prompb.TimeSeries{
			Labels:  slices.Clone(s.labels),
			Samples: []prompb.Sample{{Value: s.value, Timestamp: ts}},
		})
	}
	return out
}

func (r *PushRegistry) metricName(namespace, subsystem, name string) string {
	return prometheus.BuildFQName(r.prefix, "", prometheus.BuildFQName(namespace, subsystem, name))
}

// update applies fn to the series identified by name and labels.
func (r *PushRegistry) update(name string, labels prometheus.Labels, fn func(float64) float64) {
	key := seriesKey(name, labels)

	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.series[key]
	if !ok {
		s = &series{labels: r.labelSet(name, labels)}
		r.series[key] = s
	}
	s.value = fn(s.value)
}

func (r *PushRegistry) labelSet(name string, labels prometheus.Labels) []prompb.Label {
	set := make([]prompb.Label, 0, len(labels)+len(r.constant)+1)
	set = append(set, prompb.Label{Name: "__name__", Value: name})
	set = append(set, r.constant...)
	for _, k := range slices.Sorted(maps.Keys(labels)) {
		set = append(set, prompb.Label{Name: k, Value: labels[k]})
	}
	return set
}

// seriesKey is stable regardless of map iteration order.
func seriesKey(name string, labels prometheus.Labels) string {
	var b strings.Builder
	b.WriteString(name)
	for _, k := range slices.Sorted(maps.Keys(labels)) {
		b.WriteString("," + k + "=" + labels[k])
	}
	return b.String()
}

// pushMetric serves as both Gauge and Counter for one series.
type pushMetric struct {
	registry *PushRegistry
	name     string
	labels   prometheus.Labels
}

func (m *pushMetric) Set(v float64) {
	m.registry.update(m.name, m.labels, func(float64) float64 { return v })
}

func (m *pushMetric) Inc() {
	m.Add(1)
}

func (m *pushMetric) Add(v float64) {
	if v < 0 {
		panic("counter cannot decrease in value")
	}
	m.registry.update(m.name, m.labels, func(cur float64) float64 { return cur + v })
}

type pushVec struct {
	registry *PushRegistry
	name     string
	labels   []string
}

func (v pushVec) metric(labels prometheus.Labels) *pushMetric {
	if len(labels) != len(v.labels) {
		panic(fmt.Sprintf("metric %s: expected %d labels, got %d", v.name, len(v.labels), len(labels)))
	}
	for _, name := range v.labels {
		if _, ok := labels[name]; !ok {
			panic(fmt.Sprintf("metric %s: missing label %q", v.name, name))
		}
	}
	return &pushMetric{registry: v.registry, name: v.name, labels: maps.Clone(labels)}
}

type pushGaugeVec struct{ pushVec }

func (v pushGaugeVec) With(labels prometheus.Labels) Gauge { return v.metric(labels) }

type pushCounterVec struct{ pushVec }

func (v pushCounterVec) With(labels prometheus.Labels) Counter { return v.metric(labels) }
