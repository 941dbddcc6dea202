package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder holds the pipeline's collectors. A nil *Recorder is valid and
// records nothing.
type Recorder struct {
	registry        *prometheus.Registry
	cycles          *prometheus.CounterVec
	interpretations *prometheus.CounterVec
	sampleFailures  *prometheus.CounterVec
	stageDuration   *prometheus.HistogramVec
	llmTokens       *prometheus.CounterVec
}

// NewRecorder registers the collectors on a fresh registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hypocycle",
			Name:      "cycles_total",
			Help:      "Completed or aborted cycles by outcome.",
		}, []string{"outcome"}),
		interpretations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hypocycle",
			Name:      "interpretations_total",
			Help:      "Hypothesis interpretations by source and status.",
		}, []string{"source", "status"}),
		sampleFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hypocycle",
			Name:      "sample_failures_total",
			Help:      "Per-sample execution failures by strategy.",
		}, []string{"strategy"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "hypocycle",
			Name:      "stage_duration_seconds",
			Help:      "Duration of each pipeline stage.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage"}),
		llmTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hypocycle",
			Name:      "llm_tokens_total",
			Help:      "Tokens consumed by LLM interpretation, by model and direction.",
		}, []string{"model", "direction"}),
	}
	r.registry.MustRegister(r.cycles, r.interpretations, r.sampleFailures, r.stageDuration, r.llmTokens)
	return r
}

// Cycle counts a finished cycle. Outcome is a conclusion or an error code.
func (r *Recorder) Cycle(outcome string) {
	if r == nil {
		return
	}
	r.cycles.WithLabelValues(outcome).Inc()
}

func (r *Recorder) Interpretation(source, status string) {
	if r == nil {
		return
	}
	r.interpretations.WithLabelValues(source, status).Inc()
}

func (r *Recorder) SampleFailures(strategy string, n int) {
	if r == nil || n <= 0 {
		return
	}
	r.sampleFailures.WithLabelValues(strategy).Add(float64(n))
}

// ObserveStage records how long a stage took since start.
func (r *Recorder) ObserveStage(stage string, start time.Time) {
	if r == nil {
		return
	}
	r.stageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// LLMTokens adds prompt and completion token counts for a model.
func (r *Recorder) LLMTokens(model string, prompt, completion int) {
	if r == nil {
		return
	}
	r.llmTokens.WithLabelValues(model, "prompt").Add(float64(prompt))
	r.llmTokens.WithLabelValues(model, "completion").Add(float64(completion))
}

// Registry exposes the underlying registry for tests and custom handlers.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
