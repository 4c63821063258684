package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Database access
	DBConnectionsCached = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "linkwatch_db_connections_cached",
			Help: "Number of persistent connections held by the connection manager",
		},
	)

	DBQueryRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "linkwatch_db_query_retries_total",
			Help: "Total number of query retries after connection loss, by operation type",
		},
		[]string{"operation"},
	)

	DBConnectionsEvictedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "linkwatch_db_connections_evicted_total",
			Help: "Total number of cached connections evicted, by reason",
		},
		[]string{"reason"}, // broken, idle, lost
	)

	DBHealthy = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "linkwatch_db_healthy",
			Help: "1 if the last database probe succeeded, 0 otherwise",
		},
	)

	// Inventory
	InventoryHosts = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "linkwatch_inventory_hosts",
			Help: "Number of hosts in the cached inventory",
		},
	)

	InventoryRefreshFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "linkwatch_inventory_refresh_failures_total",
			Help: "Total number of failed inventory refreshes",
		},
	)

	// Host state
	EventJournalSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "linkwatch_event_journal_size",
			Help: "Number of events currently held in the journal",
		},
	)

	TransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "linkwatch_transitions_total",
			Help: "Total number of recorded host state transitions by target state",
		},
		[]string{"to"},
	)

	// Alerts
	AlertsSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "linkwatch_alerts_sent_total",
			Help: "Total number of incident notifications sent by kind",
		},
		[]string{"kind"},
	)

	AlertsSuppressedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "linkwatch_alerts_suppressed_total",
			Help: "Total number of incident notifications suppressed by reason",
		},
		[]string{"reason"},
	)
)

// SetDBHealthy records the outcome of a database probe
func SetDBHealthy(healthy bool) {
	if healthy {
		DBHealthy.Set(1)
		return
	}
	DBHealthy.Set(0)
}
