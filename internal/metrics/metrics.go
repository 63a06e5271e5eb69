package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	cacheLookupsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "forum_subscriptions_cache_lookups_total",
		Help: "Subscription cache lookups by table and result",
	}, []string{"table", "result"})

	storeLoadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "forum_subscriptions_store_loads_total",
		Help: "Record store loads issued by the subscription cache",
	}, []string{"kind"})

	cacheResetsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "forum_subscriptions_cache_resets_total",
		Help: "Subscription cache resets by table",
	}, []string{"table"})

	mutationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "forum_subscriptions_mutations_total",
		Help: "Subscription mutations by operation and outcome",
	}, []string{"operation", "outcome"})

	eventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "forum_subscriptions_events_total",
		Help: "Published subscription events by name and status",
	}, []string{"event", "status"})

	cacheResetDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "forum_subscriptions_cache_reset_duration_seconds",
		Help:    "Duration of scheduled cache resets in seconds",
		Buckets: prometheus.DefBuckets,
	})
)

func init() {
	prometheus.MustRegister(cacheLookupsTotal)
	prometheus.MustRegister(storeLoadsTotal)
	prometheus.MustRegister(cacheResetsTotal)
	prometheus.MustRegister(mutationsTotal)
	prometheus.MustRegister(eventsTotal)
	prometheus.MustRegister(cacheResetDurationSeconds)
}

// RecordCacheLookup records a cache hit or miss
func RecordCacheLookup(table string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheLookupsTotal.WithLabelValues(table, result).Inc()
}

// RecordStoreLoad records a cache fill that reached the record store
func RecordStoreLoad(kind string) {
	storeLoadsTotal.WithLabelValues(kind).Inc()
}

// RecordCacheReset records a cache table reset
func RecordCacheReset(table string) {
	cacheResetsTotal.WithLabelValues(table).Inc()
}

// RecordMutation records a mutation outcome: "changed", "noop" or "error"
func RecordMutation(operation, outcome string) {
	mutationsTotal.WithLabelValues(operation, outcome).Inc()
}

// RecordEvent records an event publish attempt
func RecordEvent(event, status string) {
	eventsTotal.WithLabelValues(event, status).Inc()
}

// RecordCacheResetDuration records how long a scheduled reset took
func RecordCacheResetDuration(duration time.Duration) {
	cacheResetDurationSeconds.Observe(duration.Seconds())
}
