// Package monitoring exposes per-run Prometheus metrics and writes them in the
// node_exporter textfile format.
package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
)

const namespace = "superfund_counties"

// Metrics holds the gauges and counters describing a single run.
type Metrics struct {
	Registry *prometheus.Registry

	RowsLoaded      *prometheus.GaugeVec // labels: input={sites,counties,table}
	RowsJoined      prometheus.Gauge
	NullEvaluations prometheus.Gauge
	OutputRows      *prometheus.GaugeVec // labels: layer
	StepDuration    *prometheus.GaugeVec // labels: step
	Runs            *prometheus.CounterVec
	LastRunSuccess  prometheus.Gauge
	LastRunTime     prometheus.Gauge
}

// NewMetrics creates run metrics registered on their own registry, so a
// textfile only ever holds this run's series.
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		RowsLoaded: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rows_loaded",
			Help:      "Rows read from each input.",
		}, []string{"input"}),
		RowsJoined: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rows_joined",
			Help:      "County rows that matched an attribute table row.",
		}),
		NullEvaluations: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "null_evaluations",
			Help:      "County rows whose evaluation is null.",
		}),
		OutputRows: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "output_rows",
			Help:      "Features written to each output layer.",
		}, []string{"layer"}),
		StepDuration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "Wall time of each pipeline step.",
		}, []string{"step"}),
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Runs by outcome.",
		}, []string{"outcome"}),
		LastRunSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_success",
			Help:      "1 if the last run succeeded, 0 otherwise.",
		}),
		LastRunTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished.",
		}),
	}

	m.Registry.MustRegister(
		m.RowsLoaded,
		m.RowsJoined,
		m.NullEvaluations,
		m.OutputRows,
		m.StepDuration,
		m.Runs,
		m.LastRunSuccess,
		m.LastRunTime,
	)
	return m
}

// ObserveStep records how long a step took.
func (m *Metrics) ObserveStep(step string, d time.Duration) {
	m.StepDuration.WithLabelValues(step).Set(d.Seconds())
}

// Finish records the outcome of a run finished at t.
func (m *Metrics) Finish(err error, t time.Time) {
	outcome, success := "success", 1.0
	if err != nil {
		outcome, success = "failure", 0
	}
	m.Runs.WithLabelValues(outcome).Inc()
	m.LastRunSuccess.Set(success)
	m.LastRunTime.Set(float64(t.Unix()))
}

// WriteTextfile writes every metric to path for the node_exporter textfile
// collector. The file is replaced atomically.
func (m *Metrics) WriteTextfile(path string) error {
	return eris.Wrapf(prometheus.WriteToTextfile(path, m.Registry), "monitoring: write %s", path)
}
