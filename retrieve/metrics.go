// SPDX-License-Identifier: ISC

package retrieve

import "github.com/prometheus/client_golang/prometheus"

// metrics is the Retrieval engine's observability surface. Instance-
// scoped, like the publish engine's, so concurrent Engines never collide
// on metric names.
type metrics struct {
	chaptersFetched     prometheus.Counter
	integrityViolations prometheus.Counter
	findSeconds         prometheus.Histogram
}

func newMetrics(databaseInterfaceID string) metrics {
	labels := prometheus.Labels{"database_interface_id": databaseInterfaceID}
	return metrics{
		chaptersFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "todd_retrieve_chapters_fetched_total",
			Help:        "Chapters fetched, verified, and decoded.",
			ConstLabels: labels,
		}),
		integrityViolations: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "todd_retrieve_integrity_violations_total",
			Help:        "Fetched Chapters whose bytes did not hash to the manifest cid.",
			ConstLabels: labels,
		}),
		findSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "todd_retrieve_find_duration_seconds",
			Help:        "Wall time of Find queries.",
			ConstLabels: labels,
		}),
	}
}
