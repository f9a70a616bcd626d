package metrics

import (
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	reg             *prom.Registry
	documents       *prom.CounterVec
	directiveErrors *prom.CounterVec
	stageDuration   *prom.HistogramVec
	runDuration     prom.Histogram
	runOutcome      *prom.CounterVec
}

// NewPrometheusRecorder constructs and registers the metrics on reg, or on a
// fresh registry when reg is nil.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		reg: reg,
		documents: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "presto",
			Name:      "documents_total",
			Help:      "Source files processed, by outcome",
		}, []string{"result"}),
		directiveErrors: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "presto",
			Name:      "directive_errors_total",
			Help:      "Directive failures by directive kind",
		}, []string{"kind"}),
		stageDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "presto",
			Name:      "stage_duration_seconds",
			Help:      "Duration of publish run stages",
			Buckets:   prom.DefBuckets,
		}, []string{"stage"}),
		runDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: "presto",
			Name:      "run_duration_seconds",
			Help:      "Total publish run duration",
			Buckets:   prom.DefBuckets,
		}),
		runOutcome: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "presto",
			Name:      "run_outcomes_total",
			Help:      "Publish runs by final status",
		}, []string{"outcome"}),
	}
	reg.MustRegister(pr.documents, pr.directiveErrors, pr.stageDuration, pr.runDuration, pr.runOutcome)
	return pr
}

// Registry returns the registry the metrics are registered on.
func (p *PrometheusRecorder) Registry() *prom.Registry { return p.reg }

// WriteTextfile writes the current metric values to path in the text
// exposition format. The file is replaced atomically.
func (p *PrometheusRecorder) WriteTextfile(path string) error {
	return prom.WriteToTextfile(path, p.reg)
}

func (p *PrometheusRecorder) IncDocument(result ResultLabel) {
	if p == nil || p.documents == nil {
		return
	}
	p.documents.WithLabelValues(string(result)).Inc()
}

func (p *PrometheusRecorder) IncDirectiveError(kind string) {
	if p == nil || p.directiveErrors == nil {
		return
	}
	p.directiveErrors.WithLabelValues(kind).Inc()
}

func (p *PrometheusRecorder) ObserveStageDuration(stage string, d time.Duration) {
	if p == nil || p.stageDuration == nil {
		return
	}
	p.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObserveRunDuration(d time.Duration) {
	if p == nil || p.runDuration == nil {
		return
	}
	p.runDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncRunOutcome(outcome string) {
	if p == nil || p.runOutcome == nil {
		return
	}
	p.runOutcome.WithLabelValues(outcome).Inc()
}
