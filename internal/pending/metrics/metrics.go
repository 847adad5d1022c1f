package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Finalization outcomes.
const (
	OutcomeFinalized        = "finalized"
	OutcomeAlreadyFinalized = "already_finalized"
	OutcomeIncomplete       = "incomplete"
	OutcomeUnavailable      = "unavailable"
	OutcomeFailed           = "failed"
)

// Deletion reasons.
const (
	ReasonExpired   = "expired"
	ReasonFinalized = "finalized"
	ReasonManual    = "manual"
)

// Metrics holds Prometheus collectors for pending registrations.
type Metrics struct {
	Submissions      *prometheus.CounterVec
	Finalizations    *prometheus.CounterVec
	AlarmResets      prometheus.Counter
	Deletions        *prometheus.CounterVec
	SweepRuns        prometheus.Counter
	SweepFailures    prometheus.Counter
	SweepDuration    prometheus.Histogram
	RemindersSent    *prometheus.CounterVec
	LockWait         prometheus.Histogram
	StoreUnavailable *prometheus.CounterVec
	PendingByUrgency *prometheus.GaugeVec
}

// New registers and returns pending registration collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Submissions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "enrollgate_pending_submissions_total",
			Help: "Total number of pending registration submissions, labeled by resulting state",
		}, []string{"state"}),
		Finalizations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "enrollgate_pending_finalizations_total",
			Help: "Total number of finalization attempts, labeled by outcome",
		}, []string{"outcome"}),
		AlarmResets: f.NewCounter(prometheus.CounterOpts{
			Name: "enrollgate_pending_alarm_resets_total",
			Help: "Total number of expiry alarm resets",
		}),
		Deletions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "enrollgate_pending_deletions_total",
			Help: "Total number of pending registrations removed, labeled by reason",
		}, []string{"reason"}),
		SweepRuns: f.NewCounter(prometheus.CounterOpts{
			Name: "enrollgate_pending_sweep_runs_total",
			Help: "Total number of lifecycle sweeps",
		}),
		SweepFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "enrollgate_pending_sweep_record_failures_total",
			Help: "Total number of records skipped by a sweep because of an error",
		}),
		SweepDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "enrollgate_pending_sweep_duration_seconds",
			Help:    "Duration of lifecycle sweeps in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		}),
		RemindersSent: f.NewCounterVec(prometheus.CounterOpts{
			Name: "enrollgate_pending_reminders_total",
			Help: "Total number of reminders dispatched, labeled by urgency",
		}, []string{"urgency"}),
		LockWait: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "enrollgate_pending_lock_wait_seconds",
			Help:    "Time spent waiting for a per-registration lock",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 3},
		}),
		StoreUnavailable: f.NewCounterVec(prometheus.CounterOpts{
			Name: "enrollgate_pending_store_unavailable_total",
			Help: "Total number of operations rejected because the store or lock was unavailable",
		}, []string{"operation"}),
		PendingByUrgency: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "enrollgate_pending_registrations",
			Help: "Live pending registrations seen by the last sweep, labeled by urgency",
		}, []string{"urgency"}),
	}
}

func (m *Metrics) IncrementSubmissions(state string) {
	if m == nil {
		return
	}
	m.Submissions.WithLabelValues(state).Inc()
}

func (m *Metrics) IncrementFinalizations(outcome string) {
	if m == nil {
		return
	}
	m.Finalizations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncrementAlarmResets() {
	if m == nil {
		return
	}
	m.AlarmResets.Inc()
}

func (m *Metrics) IncrementDeletions(reason string) {
	if m == nil {
		return
	}
	m.Deletions.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncrementStoreUnavailable(operation string) {
	if m == nil {
		return
	}
	m.StoreUnavailable.WithLabelValues(operation).Inc()
}

func (m *Metrics) IncrementReminders(urgency string) {
	if m == nil {
		return
	}
	m.RemindersSent.WithLabelValues(urgency).Inc()
}

func (m *Metrics) ObserveLockWait(start time.Time) {
	if m == nil {
		return
	}
	m.LockWait.Observe(time.Since(start).Seconds())
}

// ObserveSweep records one sweep and the number of records it skipped.
func (m *Metrics) ObserveSweep(duration time.Duration, failures int) {
	if m == nil {
		return
	}
	m.SweepRuns.Inc()
	m.SweepDuration.Observe(duration.Seconds())
	m.SweepFailures.Add(float64(failures))
}

// SetPendingByUrgency replaces the urgency gauge with the latest sweep counts.
func (m *Metrics) SetPendingByUrgency(counts map[string]int) {
	if m == nil {
		return
	}
	m.PendingByUrgency.Reset()
	for urgency, n := range counts {
		m.PendingByUrgency.WithLabelValues(urgency).Set(float64(n))
	}
}
