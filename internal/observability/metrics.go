package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metric names exported by the service
const (
	MetricJobsSubmitted      = "truthlens_jobs_submitted_total"
	MetricJobsCompleted      = "truthlens_jobs_completed_total"
	MetricJobsFailed         = "truthlens_jobs_failed_total"
	MetricJobsRunning        = "truthlens_jobs_running"
	MetricJobsEvicted        = "truthlens_jobs_evicted_total"
	MetricCollaboratorFailed = "truthlens_collaborator_degraded_total"
	MetricDecisions          = "truthlens_decisions_total"
	MetricObserverDropped    = "truthlens_observer_dropped_total"
	MetricSinkFailed         = "truthlens_sink_publish_failed_total"
)

// Recorder is the subset of the registry that components write to
type Recorder interface {
	IncCounter(name string, labels map[string]string, delta float64)
	SetGauge(name string, labels map[string]string, value float64)
}

type metricDef struct {
	name   string
	help   string
	labels []string
	gauge  bool
}

var metricDefs = []metricDef{
	{name: MetricJobsSubmitted, help: "Jobs accepted by the worker."},
	{name: MetricJobsCompleted, help: "Jobs finished with a verdict.", labels: []string{"verdict"}},
	{name: MetricJobsFailed, help: "Jobs that ended in an error, cancellation or timeout."},
	{name: MetricJobsRunning, help: "Jobs currently running.", gauge: true},
	{name: MetricJobsEvicted, help: "Finished jobs removed by retention."},
	{name: MetricCollaboratorFailed, help: "Collaborator calls degraded to a neutral value.", labels: []string{"collaborator"}},
	{name: MetricDecisions, help: "Verdicts by decision engine.", labels: []string{"source"}},
	{name: MetricObserverDropped, help: "Events dropped for slow observers."},
	{name: MetricSinkFailed, help: "Events the external sink failed to publish.", labels: []string{"type"}},
}

// Registry holds the service's Prometheus collectors
type Registry struct {
	reg      *prometheus.Registry
	counters map[string]*prometheus.CounterVec
	gauges   map[string]*prometheus.GaugeVec
}

// NewRegistry registers every service metric plus the Go runtime collector
func NewRegistry() *Registry {
	r := &Registry{
		reg:      prometheus.NewRegistry(),
		counters: make(map[string]*prometheus.CounterVec, len(metricDefs)),
		gauges:   make(map[string]*prometheus.GaugeVec),
	}
	r.reg.MustRegister(collectors.NewGoCollector())

	for _, d := range metricDefs {
		if d.gauge {
			v := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: d.name, Help: d.help}, d.labels)
			r.reg.MustRegister(v)
			r.gauges[d.name] = v
			continue
		}
		v := prometheus.NewCounterVec(prometheus.CounterOpts{Name: d.name, Help: d.help}, d.labels)
		r.reg.MustRegister(v)
		r.counters[d.name] = v
	}
	return r
}

// IncCounter adds a positive delta. Unknown names and label sets that do not
// match the metric's definition are dropped.
func (r *Registry) IncCounter(name string, labels map[string]string, delta float64) {
	if delta <= 0 {
		return
	}
	vec, ok := r.counters[name]
	if !ok {
		return
	}
	c, err := vec.GetMetricWith(prometheus.Labels(labels))
	if err != nil {
		return
	}
	c.Add(delta)
}

func (r *Registry) SetGauge(name string, labels map[string]string, value float64) {
	vec, ok := r.gauges[name]
	if !ok {
		return
	}
	g, err := vec.GetMetricWith(prometheus.Labels(labels))
	if err != nil {
		return
	}
	g.Set(value)
}

// Value returns the current value of a counter or gauge, zero when unset
func (r *Registry) Value(name string, labels map[string]string) float64 {
	families, err := r.reg.Gather()
	if err != nil {
		return 0
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			pairs := m.GetLabel()
			if len(pairs) != len(labels) {
				continue
			}
			match := true
			for _, lp := range pairs {
				if v, ok := labels[lp.GetName()]; !ok || v != lp.GetValue() {
					match = false
					break
				}
			}
			if !match {
				continue
			}
			if m.GetGauge() != nil {
				return m.GetGauge().GetValue()
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

// Handler serves the registry in the Prometheus exposition format
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

type nopRecorder struct{}

func (nopRecorder) IncCounter(string, map[string]string, float64) {}
func (nopRecorder) SetGauge(string, map[string]string, float64)   {}

// Nop returns a recorder that discards everything
func Nop() Recorder {
	return nopRecorder{}
}
