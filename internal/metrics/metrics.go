// Package metrics exposes Prometheus instrumentation for the decision
// engine. All Registry methods are nil-safe so the engine can run without
// metrics wired (one-shot CLI calls, tests).
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Registry holds all engine metrics on a private Prometheus registry.
type Registry struct {
	reg *prometheus.Registry

	Evaluations         *prometheus.CounterVec
	Rejections          *prometheus.CounterVec
	Trims               prometheus.Counter
	AutoRebalances      prometheus.Counter
	DividendTransitions *prometheus.CounterVec
	EvalDuration        prometheus.Histogram
}

// New creates and registers the engine metric set.
func New() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),

		Evaluations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradecell_evaluations_total",
				Help: "Completed evaluations by terminal state",
			},
			[]string{"state"},
		),

		Rejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradecell_order_rejections_total",
				Help: "Order validator rejections by reason",
			},
			[]string{"reason"},
		),

		Trims: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tradecell_guardrail_trims_total",
				Help: "Orders trimmed to an allocation bound",
			},
		),

		AutoRebalances: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tradecell_auto_rebalances_total",
				Help: "Drift-correction orders proposed without a trigger",
			},
		),

		DividendTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradecell_dividend_transitions_total",
				Help: "Dividend state machine transitions by stage",
			},
			[]string{"stage"},
		),

		EvalDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tradecell_evaluation_duration_seconds",
				Help:    "Duration of one evaluation cycle",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
			},
		),
	}

	r.reg.MustRegister(r.Evaluations, r.Rejections, r.Trims, r.AutoRebalances,
		r.DividendTransitions, r.EvalDuration)
	return r
}

// ObserveEvaluation records a completed cycle and its latency.
func (r *Registry) ObserveEvaluation(state string, seconds float64) {
	if r == nil {
		return
	}
	r.Evaluations.WithLabelValues(state).Inc()
	r.EvalDuration.Observe(seconds)
}

// IncRejection counts a validator rejection by reason.
func (r *Registry) IncRejection(reason string) {
	if r == nil {
		return
	}
	r.Rejections.WithLabelValues(reason).Inc()
}

// IncTrim counts a guardrail trim.
func (r *Registry) IncTrim() {
	if r == nil {
		return
	}
	r.Trims.Inc()
}

// IncAutoRebalance counts a drift-correction proposal.
func (r *Registry) IncAutoRebalance() {
	if r == nil {
		return
	}
	r.AutoRebalances.Inc()
}

// IncDividend counts a dividend transition (announced, effective, paid).
func (r *Registry) IncDividend(stage string) {
	if r == nil {
		return
	}
	r.DividendTransitions.WithLabelValues(stage).Inc()
}

// Handler serves the registry in Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Serve runs a metrics server on addr with /metrics and /healthz. It blocks
// until the server stops.
func (r *Registry) Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	log.Info().Str("addr", addr).Msg("metrics server listening")
	return srv.ListenAndServe()
}
