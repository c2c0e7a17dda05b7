// Package metrics defines the Prometheus collectors exported by treewatch.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "treewatch"

var (
	ActiveMonitors = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "monitor",
		Name:      "active",
		Help:      "Number of registered monitors",
	})
	TreeNodes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "monitor",
		Name:      "tree_nodes",
		Help:      "Entries in the in-memory mirror, per registered monitor",
	}, []string{"handle"})

	Registrations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "monitor",
		Name:      "registrations_total",
		Help:      "Registration attempts, per result (ok/error)",
	}, []string{"result"})
	Unregistrations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "monitor",
		Name:      "unregistrations_total",
		Help:      "Monitors torn down, per reason (request/root_changed/stream_failed/shutdown)",
	}, []string{"reason"})

	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "monitor",
		Name:      "notifications_total",
		Help:      "Notifications processed, per kind (shallow/deep/root_changed)",
	}, []string{"kind"})
	Events = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "monitor",
		Name:      "events_total",
		Help:      "Change events delivered, per kind (added/modified/removed)",
	}, []string{"kind"})
	UnmatchedPaths = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "monitor",
		Name:      "unmatched_paths_total",
		Help:      "Notifications naming a path absent from the mirror",
	})

	Scans = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scanner",
		Name:      "scans_total",
		Help:      "Directory scans, per mode (shallow/recursive)",
	}, []string{"mode"})
	ScanErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scanner",
		Name:      "scan_errors_total",
		Help:      "Scans abandoned because of a filesystem error",
	})
	ScanSeconds = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scanner",
		Name:      "scan_seconds_total",
		Help:      "Total time spent scanning, per mode (shallow/recursive)",
	}, []string{"mode"})

	JournalDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "journal",
		Name:      "dropped_batches_total",
		Help:      "Change batches not journaled because the recorder queue was full",
	})
)

// ScanMode labels a scan for the scanner collectors.
func ScanMode(recursive bool) string {
	if recursive {
		return "recursive"
	}
	return "shallow"
}

// ObserveScan records one completed or failed scan.
func ObserveScan(recursive bool, started time.Time, err error) {
	mode := ScanMode(recursive)
	Scans.WithLabelValues(mode).Inc()
	ScanSeconds.WithLabelValues(mode).Add(time.Since(started).Seconds())
	if err != nil {
		ScanErrors.Inc()
	}
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
