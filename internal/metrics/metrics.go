// Package metrics records per-run scan metrics in a Prometheus registry.
// A run can export them to a node_exporter textfile, and `blueteam serve`
// can expose them over HTTP.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Host outcomes.
const (
	OutcomeOK     = "ok"
	OutcomeFailed = "failed"
)

// Recorder owns one registry. All methods are safe for concurrent use, and a
// nil *Recorder ignores every call.
type Recorder struct {
	registry     *prometheus.Registry
	hosts        *prometheus.CounterVec
	taskDuration *prometheus.HistogramVec
	taskFailures *prometheus.CounterVec
	dropped      prometheus.Counter
}

// NewRecorder creates a Recorder with its own registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		hosts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "blueteam_hosts_scanned_total",
			Help: "Hosts scanned, by outcome.",
		}, []string{"outcome"}),
		taskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "blueteam_task_duration_seconds",
			Help:    "Duration of scan tasks.",
			Buckets: []float64{.05, .1, .5, 1, 5, 15, 60, 300, 1800},
		}, []string{"task"}),
		taskFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "blueteam_task_failures_total",
			Help: "Scan tasks that returned an error.",
		}, []string{"task"}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "blueteam_processes_dropped_total",
			Help: "Processes that exited between listing and detail fetch.",
		}),
	}
	r.registry.MustRegister(r.hosts, r.taskDuration, r.taskFailures, r.dropped)
	return r
}

// WithRuntimeCollectors adds Go runtime and process collectors, for the
// long-running server.
func (r *Recorder) WithRuntimeCollectors() *Recorder {
	if r != nil {
		r.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

func (r *Recorder) HostScanned(outcome string) {
	if r == nil {
		return
	}
	r.hosts.WithLabelValues(outcome).Inc()
}

func (r *Recorder) ObserveTask(task string, d time.Duration, failed bool) {
	if r == nil {
		return
	}
	r.taskDuration.WithLabelValues(task).Observe(d.Seconds())
	if failed {
		r.taskFailures.WithLabelValues(task).Inc()
	}
}

func (r *Recorder) ProcessesDropped(n int) {
	if r == nil || n <= 0 {
		return
	}
	r.dropped.Add(float64(n))
}

// WriteTextfile writes the registry in the text exposition format, atomically.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, r.registry)
}
