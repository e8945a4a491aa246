// Package metrics exposes Prometheus instruments for the playback engine.
// Labels are bounded enums; learner, course and session ids never become
// label values.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Checkpoint write triggers.
const (
	TriggerDebounced = "debounced"
	TriggerImmediate = "immediate"
)

// Reasons a checkpoint write was skipped.
const (
	SuppressedSmallAdvance = "small_advance"
	SuppressedZero         = "zero_position"
	SuppressedUnchanged    = "unchanged"
)

var (
	checkpointWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "progress_checkpoint_writes_total",
		Help: "Checkpoint writes issued, by trigger.",
	}, []string{"trigger"})

	checkpointSuppressed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "progress_checkpoint_suppressed_total",
		Help: "Checkpoint writes skipped, by reason.",
	}, []string{"reason"})

	storeFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "progress_store_failures_total",
		Help: "Best-effort store operations that failed, by operation.",
	}, []string{"op"})

	restoreDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "progress_restore_decisions_total",
		Help: "Session restore decisions, by outcome.",
	}, []string{"outcome"})

	lessonsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "progress_lessons_completed_total",
		Help: "Lessons marked completed.",
	})

	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "progress_active_sessions",
		Help: "Player sessions currently open.",
	})
)

func CheckpointWritten(trigger string) {
	checkpointWrites.WithLabelValues(trigger).Inc()
}

func CheckpointSuppressed(reason string) {
	checkpointSuppressed.WithLabelValues(reason).Inc()
}

// StoreFailed counts a swallowed store error for op.
func StoreFailed(op string) {
	storeFailures.WithLabelValues(op).Inc()
}

func RestoreDecided(outcome string) {
	restoreDecisions.WithLabelValues(outcome).Inc()
}

func LessonCompleted() {
	lessonsCompleted.Inc()
}

func SessionOpened() {
	activeSessions.Inc()
}

func SessionClosed() {
	activeSessions.Dec()
}
