package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Stage names used in diagnostics and metric labels.
const (
	StageSemantic = "semantic"
	StageLexical  = "lexical"
	StageGenerate = "generate"
)

// pipelineMetrics holds the per-stage instruments for one Pipeline.
type pipelineMetrics struct {
	// runsTotal counts completed runs by intent.
	runsTotal *prometheus.CounterVec
	// stageDurationSeconds tracks stage latency.
	stageDurationSeconds *prometheus.HistogramVec
	// degradedTotal counts stages that fell back to an empty result.
	degradedTotal *prometheus.CounterVec
	// resultsCount records how many items each retriever contributed.
	resultsCount *prometheus.HistogramVec
}

// newPipelineMetrics registers the pipeline instruments on reg.
func newPipelineMetrics(reg prometheus.Registerer) *pipelineMetrics {
	f := promauto.With(reg)
	return &pipelineMetrics{
		runsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cinerag",
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Total number of pipeline runs by classified intent.",
		}, []string{"intent"}),

		stageDurationSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "cinerag",
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Latency of each pipeline stage.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"stage"}),

		degradedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cinerag",
			Subsystem: "pipeline",
			Name:      "degraded_total",
			Help:      "Stages that degraded to an empty result, by stage and error kind.",
		}, []string{"stage", "kind"}),

		resultsCount: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "cinerag",
			Subsystem: "pipeline",
			Name:      "results",
			Help:      "Number of results returned by each retriever.",
			Buckets:   []float64{0, 1, 2, 5, 10, 20},
		}, []string{"stage"}),
	}
}
