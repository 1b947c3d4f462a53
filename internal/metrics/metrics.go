package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ClaimDuration tracks the latency of claim requests by outcome kind
	ClaimDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "review_slot_claim_duration_seconds",
			Help: "Duration of slot claim requests in seconds",
			Buckets: []float64{
				0.001, // 1ms
				0.005, // 5ms
				0.01,  // 10ms
				0.025, // 25ms
				0.05,  // 50ms
				0.1,   // 100ms
				0.25,  // 250ms
				0.5,   // 500ms
				1.0,   // 1s
				2.5,   // 2.5s
			},
		},
		[]string{"outcome"},
	)

	SlotTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "review_slot_transitions_total",
			Help: "Slot state changes by cause",
		},
		[]string{"cause"}, // claim, cancel, submit, sync_open, sync_close, sync_repair, bulk
	)

	SyncRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "review_quota_sync_runs_total",
			Help: "Quota synchronization runs by result",
		},
		[]string{"result"}, // ok, skipped, error
	)

	BulkItems = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "review_bulk_status_items_total",
			Help: "Slots processed by the admin bulk status mutator",
		},
		[]string{"result"}, // succeeded, failed
	)
)

// RecordClaim records the duration of a claim request
func RecordClaim(outcome string, seconds float64) {
	ClaimDuration.WithLabelValues(outcome).Observe(seconds)
	if outcome == "ok" {
		SlotTransitions.WithLabelValues("claim").Inc()
	}
}

func RecordTransition(cause string, n int) {
	if n > 0 {
		SlotTransitions.WithLabelValues(cause).Add(float64(n))
	}
}

// RecordSync counts one synchronization run and the slots it touched
func RecordSync(result string, opened, closed, repaired int) {
	SyncRuns.WithLabelValues(result).Inc()
	RecordTransition("sync_open", opened)
	RecordTransition("sync_close", closed)
	RecordTransition("sync_repair", repaired)
}

func RecordBulk(succeeded, failed int) {
	BulkItems.WithLabelValues("succeeded").Add(float64(succeeded))
	BulkItems.WithLabelValues("failed").Add(float64(failed))
	RecordTransition("bulk", succeeded)
}
