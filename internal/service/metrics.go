package service

import (
	"time"

	"emxloader/internal/importer"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	_ Metrics = (*PrometheusRecorder)(nil)
	_ Metrics = (*ExpvarRecorder)(nil)
	_ Metrics = MultiMetrics(nil)
)

// PrometheusRecorder exports import metrics to a prometheus registry.
type PrometheusRecorder struct {
	duration  *prometheus.HistogramVec
	rows      *prometheus.CounterVec
	lookups   prometheus.Counter
	rollbacks prometheus.Counter
}

// NewPrometheusRecorder registers the import collectors under namespace on reg.
func NewPrometheusRecorder(namespace string, reg prometheus.Registerer) (*PrometheusRecorder, error) {
	if namespace == "" {
		namespace = "emx"
	}
	r := &PrometheusRecorder{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "import_duration_seconds",
			Help:      "Duration of EMX imports by outcome.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"outcome"}),
		rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_written_total",
			Help:      "Rows written by the merge engine.",
		}, []string{"entity", "operation"}),
		lookups: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lookup_queries_total",
			Help:      "Existence lookup queries issued by the merge engine.",
		}),
		rollbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rollbacks_total",
			Help:      "Imports whose schema changes were rolled back.",
		}),
	}
	if reg != nil {
		for _, c := range []prometheus.Collector{r.duration, r.rows, r.lookups, r.rollbacks} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return r, nil
}

func (r *PrometheusRecorder) LookupQuery(string, int) { r.lookups.Inc() }

func (r *PrometheusRecorder) RowsWritten(entity, operation string, n int) {
	if n <= 0 {
		return
	}
	r.rows.WithLabelValues(entity, operation).Add(float64(n))
}

func (r *PrometheusRecorder) ObserveImport(outcome string, elapsed time.Duration) {
	r.duration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

func (r *PrometheusRecorder) ObserveRollback() { r.rollbacks.Inc() }

// MultiMetrics fans every observation out to each recorder.
type MultiMetrics []Metrics

func (m MultiMetrics) LookupQuery(entity string, disjuncts int) {
	for _, r := range m {
		r.LookupQuery(entity, disjuncts)
	}
}

func (m MultiMetrics) RowsWritten(entity, operation string, n int) {
	for _, r := range m {
		r.RowsWritten(entity, operation, n)
	}
}

func (m MultiMetrics) ObserveImport(outcome string, elapsed time.Duration) {
	for _, r := range m {
		r.ObserveImport(outcome, elapsed)
	}
}

func (m MultiMetrics) ObserveRollback() {
	for _, r := range m {
		r.ObserveRollback()
	}
}

// operations the merge engine reports, in tally order.
var operations = []string{importer.OperationAdd, importer.OperationUpdate}
