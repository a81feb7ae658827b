package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Solve outcomes used as the label on the solve counter.
const (
	OutcomePlanned    = "planned"
	OutcomeInfeasible = "infeasible"
	OutcomeInvalid    = "invalid"
	OutcomeAborted    = "aborted"
	OutcomeError      = "error"
)

// Recorder tracks planner activity for the daemon's /metrics endpoint.
// A nil Recorder is valid and records nothing, so one-shot CLI runs can
// skip metrics entirely.
type Recorder struct {
	solves   *prometheus.CounterVec
	duration prometheus.Histogram
	states   prometheus.Histogram
	lastCost prometheus.Gauge
}

// NewRecorder registers the planner metrics on the default Prometheus
// registerer.
func NewRecorder() (*Recorder, error) {
	return NewRecorderWithRegistry(prometheus.DefaultRegisterer)
}

// NewRecorderWithRegistry registers metrics on the provided registerer.
// Collectors that are already registered are reused, so building a second
// Recorder against the same registry is fine.
func NewRecorderWithRegistry(reg prometheus.Registerer) (*Recorder, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	solves := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "loadplan_solves_total",
		Help: "Total number of solve attempts by outcome",
	}, []string{"outcome"})
	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "loadplan_solve_duration_seconds",
		Help:    "Wall time spent inside the solver",
		Buckets: prometheus.DefBuckets,
	})
	states := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "loadplan_solve_states",
		Help:    "Dynamic-programming states explored per solve",
		Buckets: prometheus.ExponentialBuckets(64, 4, 10),
	})
	lastCost := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "loadplan_last_plan_cost",
		Help: "Total cost of the most recent successful plan",
	})

	if err := reg.Register(solves); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			solves = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(duration); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			duration = are.ExistingCollector.(prometheus.Histogram)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(states); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			states = are.ExistingCollector.(prometheus.Histogram)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(lastCost); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			lastCost = are.ExistingCollector.(prometheus.Gauge)
		} else {
			return nil, err
		}
	}

	return &Recorder{solves: solves, duration: duration, states: states, lastCost: lastCost}, nil
}

// RecordSolve counts one solve attempt with its outcome and timing.
func (r *Recorder) RecordSolve(outcome string, elapsed time.Duration, states int) {
	if r == nil {
		return
	}
	r.solves.WithLabelValues(outcome).Inc()
	r.duration.Observe(elapsed.Seconds())
	if states > 0 {
		r.states.Observe(float64(states))
	}
}

// RecordPlanCost publishes the latest successful plan's total cost.
func (r *Recorder) RecordPlanCost(cost float64) {
	if r == nil {
		return
	}
	r.lastCost.Set(cost)
}
