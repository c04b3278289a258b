// Package metrics registers the engine's prometheus collectors: lock
// acquisitions and crash recoveries, backups performed, transaction
// outcomes, and bytes moved. Plain client_golang collectors, with no
// exporter wired up since there is no HTTP surface in this engine to
// serve them from -- a caller that wants to expose them registers this
// package's Registry with its own handler.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds every collector the engine updates during normal
// operation.
type Metrics struct {
	Registry *prometheus.Registry

	LockAcquisitions    *prometheus.CounterVec
	LockCrashRecoveries prometheus.Counter
	LockWaitTimeouts    prometheus.Counter

	BackupsPerformed prometheus.Counter
	BackupsSkipped   prometheus.Counter
	BackupDuration   prometheus.Histogram

	TransactionsCommitted  prometheus.Counter
	TransactionsRolledBack prometheus.Counter
	TransactionsTimedOut   prometheus.Counter
	PatchesPerTransaction  prometheus.Histogram

	BytesRead    prometheus.Counter
	BytesWritten prometheus.Counter
}

// New builds and registers every collector against a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,

		LockAcquisitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cozyfs",
			Subsystem: "lock",
			Name:      "acquisitions_total",
			Help:      "Lock acquisitions, labeled by whether a prior crash was detected.",
		}, []string{"crash_detected"}),

		LockCrashRecoveries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cozyfs",
			Subsystem: "lock",
			Name:      "crash_recoveries_total",
			Help:      "Successful RestoreBackup calls following a detected crash.",
		}),

		LockWaitTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cozyfs",
			Subsystem: "lock",
			Name:      "wait_timeouts_total",
			Help:      "Acquire calls that gave up after wait_timeout elapsed.",
		}),

		BackupsPerformed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cozyfs",
			Subsystem: "backup",
			Name:      "performed_total",
			Help:      "Completed PerformBackup calls.",
		}),

		BackupsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cozyfs",
			Subsystem: "backup",
			Name:      "skipped_total",
			Help:      "PerformBackup calls that were a no-op (disabled or throttled).",
		}),

		BackupDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "cozyfs",
			Subsystem: "backup",
			Name:      "duration_seconds",
			Help:      "Wall time spent copying a half during PerformBackup.",
		}),

		TransactionsCommitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cozyfs",
			Subsystem: "transaction",
			Name:      "committed_total",
			Help:      "Transactions that reached Commit.",
		}),

		TransactionsRolledBack: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cozyfs",
			Subsystem: "transaction",
			Name:      "rolled_back_total",
			Help:      "Transactions that reached Rollback.",
		}),

		TransactionsTimedOut: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cozyfs",
			Subsystem: "transaction",
			Name:      "timed_out_total",
			Help:      "Transactions whose holder's ticket expired before commit.",
		}),

		PatchesPerTransaction: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "cozyfs",
			Subsystem: "transaction",
			Name:      "patches_per_commit",
			Help:      "Number of distinct pages patched in a committed transaction.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),

		BytesRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cozyfs",
			Subsystem: "io",
			Name:      "bytes_read_total",
			Help:      "Bytes returned by read operations.",
		}),

		BytesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cozyfs",
			Subsystem: "io",
			Name:      "bytes_written_total",
			Help:      "Bytes accepted by write operations.",
		}),
	}

	reg.MustRegister(
		m.LockAcquisitions,
		m.LockCrashRecoveries,
		m.LockWaitTimeouts,
		m.BackupsPerformed,
		m.BackupsSkipped,
		m.BackupDuration,
		m.TransactionsCommitted,
		m.TransactionsRolledBack,
		m.TransactionsTimedOut,
		m.PatchesPerTransaction,
		m.BytesRead,
		m.BytesWritten,
	)

	return m
}
