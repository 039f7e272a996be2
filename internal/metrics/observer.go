package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"CallScorer/internal/domain"
	"CallScorer/internal/ports"
)

// Observer exports analysis run progress as Prometheus metrics.
type Observer struct {
	BatchesTotal     *prometheus.CounterVec
	ItemsTotal       *prometheus.CounterVec
	ItemAttempts     prometheus.Histogram
	Scores           prometheus.Histogram
	StatusTotal      *prometheus.CounterVec
	BatchSize        prometheus.Gauge
	Concurrency      prometheus.Gauge
	CostUSD          prometheus.Gauge
	CheckpointsTotal *prometheus.CounterVec
}

var _ ports.RunObserver = (*Observer)(nil)

// NewObserver registers the run metrics with reg.
func NewObserver(reg prometheus.Registerer) *Observer {
	factory := promauto.With(reg)

	return &Observer{
		BatchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callscorer_batches_total",
				Help: "Completed batches by outcome",
			},
			[]string{"outcome"},
		),
		ItemsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callscorer_items_total",
				Help: "Processed work items by result",
			},
			[]string{"result"},
		),
		ItemAttempts: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "callscorer_item_attempts",
				Help:    "Extraction attempts needed per item",
				Buckets: []float64{1, 2, 3, 5, 8},
			},
		),
		Scores: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "callscorer_qci_score",
				Help:    "Distribution of QCI total scores",
				Buckets: prometheus.LinearBuckets(10, 10, 10),
			},
		),
		StatusTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callscorer_status_total",
				Help: "Scored calls by status",
			},
			[]string{"status"},
		),
		BatchSize: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "callscorer_batch_size",
				Help: "Batch size chosen for the next batch",
			},
		),
		Concurrency: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "callscorer_concurrency",
				Help: "Concurrency chosen for the next batch",
			},
		),
		CostUSD: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "callscorer_run_cost_usd",
				Help: "Accumulated extraction cost of the current run",
			},
		),
		CheckpointsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callscorer_checkpoints_total",
				Help: "Checkpoint attempts by result",
			},
			[]string{"result"},
		),
	}
}

func (o *Observer) BatchStarted(_, size, concurrency int) {
	o.BatchSize.Set(float64(size))
	o.Concurrency.Set(float64(concurrency))
}

func (o *Observer) ItemCompleted(_ string, result *domain.ScoringResult, attempts int, err error) {
	o.ItemAttempts.Observe(float64(attempts))
	if err != nil || result == nil {
		o.ItemsTotal.WithLabelValues("failed").Inc()
		return
	}
	o.ItemsTotal.WithLabelValues("analyzed").Inc()
	o.Scores.Observe(result.TotalScore)
	o.StatusTotal.WithLabelValues(string(result.Status)).Inc()
}

func (o *Observer) BatchCompleted(_ int, failed int, state domain.SchedulerState) {
	outcome := "success"
	if failed > 0 {
		outcome = "failure"
	}
	o.BatchesTotal.WithLabelValues(outcome).Inc()
	o.BatchSize.Set(float64(state.BatchSize))
	o.Concurrency.Set(float64(state.Concurrency))
	o.CostUSD.Set(state.Counters.CostUSD)
}

func (o *Observer) CheckpointSaved(_ int, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	o.CheckpointsTotal.WithLabelValues(result).Inc()
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
