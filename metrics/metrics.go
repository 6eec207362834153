// Package metrics has prometheus metric variables for the storage core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricCounterDrift = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kopano_folder_counter_drift_total",
			Help: "Folder counters found drifted from their recounted values during reset.",
		},
		[]string{
			"counter", // contents, unread, subfolders, ...
		},
	)

	metricCorruptHierarchy = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kopano_delete_corrupt_hierarchy_skipped_total",
			Help: "Hierarchy rows skipped during delete expansion because of a missing parent or type.",
		},
	)

	metricChangesRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kopano_ics_changes_recorded_total",
			Help: "Change records written, by scope.",
		},
		[]string{
			"scope", // message, folder, ab
		},
	)

	metricDeleteBatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kopano_delete_batches_total",
			Help: "Hard delete batches, by result.",
		},
		[]string{
			"result", // ok, error
		},
	)

	metricChangesServed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kopano_ics_changes_served_total",
			Help: "Change entries returned to sync cursors.",
		},
	)

	metricChangesPurged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kopano_ics_changes_purged_total",
			Help: "Change rows removed by the retention sweep.",
		},
	)
)

func CounterDriftAdd(counter string, n int) {
	metricCounterDrift.WithLabelValues(counter).Add(float64(n))
}

func CorruptHierarchyInc() {
	metricCorruptHierarchy.Inc()
}

func ChangeRecordedInc(scope string) {
	metricChangesRecorded.WithLabelValues(scope).Inc()
}

func DeleteBatchInc(result string) {
	metricDeleteBatches.WithLabelValues(result).Inc()
}

func ChangesServedAdd(n int) {
	metricChangesServed.Add(float64(n))
}

func ChangesPurgedAdd(n int) {
	metricChangesPurged.Add(float64(n))
}
