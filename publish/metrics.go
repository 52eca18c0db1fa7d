// SPDX-License-Identifier: ISC

package publish

import "github.com/prometheus/client_golang/prometheus"

// metrics is the Publication engine's observability surface. It is
// instance-scoped rather than registered against prometheus's global
// DefaultRegisterer, so multiple Engines (e.g. one per Spec in a test)
// never collide on metric names.
type metrics struct {
	volumesPublished prometheus.Counter
	chaptersWritten  prometheus.Counter
}

func newMetrics(databaseInterfaceID string) metrics {
	labels := prometheus.Labels{"database_interface_id": databaseInterfaceID}
	return metrics{
		volumesPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "todd_publish_volumes_total",
			Help:        "Volumes finalised by the publication engine.",
			ConstLabels: labels,
		}),
		chaptersWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "todd_publish_chapters_written_total",
			Help:        "Chapter files written by the publication engine.",
			ConstLabels: labels,
		}),
	}
}
