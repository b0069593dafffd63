package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder publishes calculation statistics using Prometheus.
type Recorder struct {
	phaseDuration *prometheus.HistogramVec
	regressions   *prometheus.CounterVec
	calculations  *prometheus.CounterVec
	paths         prometheus.Counter
	evaluations   prometheus.Counter
}

// New creates a recorder registered on reg. A nil reg uses the default
// registerer.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Recorder{
		phaseDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "amc_phase_duration_seconds",
				Help:    "Duration of calculation phases in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"phase"},
		),
		regressions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "amc_regressions_total",
				Help: "Total number of trained regression models",
			},
			[]string{"kind"},
		),
		calculations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "amc_calculations_total",
				Help: "Total number of engine calculations",
			},
			[]string{"outcome"},
		),
		paths: f.NewCounter(prometheus.CounterOpts{
			Name: "amc_paths_total",
			Help: "Total number of simulated scenarios",
		}),
		evaluations: f.NewCounter(prometheus.CounterOpts{
			Name: "amc_replay_evaluations_total",
			Help: "Total number of calculator evaluations on external paths",
		}),
	}
}

// Observe publishes the content of s. Observe is meant to be called once per
// calculation with a fresh Stats.
func (r *Recorder) Observe(s *Stats) {
	if r == nil || s == nil {
		return
	}
	for _, p := range phases {
		r.phaseDuration.WithLabelValues(p.String()).Observe(s.Elapsed(p).Seconds())
	}
	trained, zero := s.Regressions()
	r.regressions.WithLabelValues("fitted").Add(float64(trained - zero))
	r.regressions.WithLabelValues("zero").Add(float64(zero))
	r.paths.Add(float64(s.Paths()))
}

// RecordCalculation counts a calculation by outcome.
func (r *Recorder) RecordCalculation(err error) {
	if r == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	r.calculations.WithLabelValues(outcome).Inc()
}

// RecordEvaluation counts a replay evaluation.
func (r *Recorder) RecordEvaluation() {
	if r == nil {
		return
	}
	r.evaluations.Inc()
}
