package services

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the prometheus collectors of the progression engine. A nil *Metrics is valid and
// records nothing, which keeps tests free of registry setup.
type Metrics struct {
	advancements     *prometheus.CounterVec
	conflicts        prometheus.Counter
	repairs          *prometheus.CounterVec
	autofixDecisions *prometheus.CounterVec
	scoreSubmissions *prometheus.CounterVec
	advanceDuration  *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		advancements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bracket",
			Name:      "slot_writes_total",
			Help:      "Destination slots filled by advancement, by branch of the destination.",
		}, []string{"branch"}),
		conflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bracket",
			Name:      "advancement_conflicts_total",
			Help:      "Destination slots found occupied by a different player.",
		}),
		repairs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bracket",
			Name:      "repairs_total",
			Help:      "Whole-bracket repair runs by result code.",
		}, []string{"code"}),
		autofixDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bracket",
			Name:      "autofix_decisions_total",
			Help:      "Auto-fix trigger outcomes.",
		}, []string{"decision"}),
		scoreSubmissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bracket",
			Name:      "score_submissions_total",
			Help:      "Score submissions by result code.",
		}, []string{"code"}),
		advanceDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "bracket",
			Name:      "advancement_duration_seconds",
			Help:      "Latency of advance and repair operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
	}
	reg.MustRegister(m.advancements, m.conflicts, m.repairs, m.autofixDecisions, m.scoreSubmissions, m.advanceDuration)
	return m
}

func (m *Metrics) slotFilled(branch string) {
	if m == nil {
		return
	}
	m.advancements.WithLabelValues(branch).Inc()
}

func (m *Metrics) conflict() {
	if m == nil {
		return
	}
	m.conflicts.Inc()
}

func (m *Metrics) repair(code Code) {
	if m == nil {
		return
	}
	m.repairs.WithLabelValues(string(code)).Inc()
}

func (m *Metrics) autofix(decision AutoFixDecision) {
	if m == nil {
		return
	}
	m.autofixDecisions.WithLabelValues(string(decision)).Inc()
}

func (m *Metrics) scoreSubmitted(code Code) {
	if m == nil {
		return
	}
	m.scoreSubmissions.WithLabelValues(string(code)).Inc()
}

func (m *Metrics) observe(operation string, start time.Time) {
	if m == nil {
		return
	}
	m.advanceDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
