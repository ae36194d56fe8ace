package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	promCounterForCacheHit = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cachepool_cache_hit_total",
		Help: "The total number of cache hits",
	}, []string{"partition"})

	promCounterForCacheMiss = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cachepool_cache_miss_total",
		Help: "The total number of cache misses",
	}, []string{"partition"})

	promCounterForFallback = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cachepool_fallback_total",
		Help: "The total number of fallback responses served",
	}, []string{"partition"})

	promCounterForNetworkFailure = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cachepool_network_failures_total",
		Help: "The total number of network fetch failures",
	})

	promCounterForPrefetchDispatched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cachepool_prefetch_dispatched_total",
		Help: "The total number of dispatched prefetches",
	})

	promCounterForPrefetchDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cachepool_prefetch_dropped_total",
		Help: "The total number of prefetch candidates dropped on queue overflow",
	})

	promGaugeForPrefetchInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cachepool_prefetch_in_flight",
		Help: "The number of in-flight prefetches",
	})

	promCounterForPreloadCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cachepool_preload_completed_total",
		Help: "The total number of completed media preloads",
	})

	promCounterForPreloadFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cachepool_preload_failed_total",
		Help: "The total number of failed media preloads",
	})

	promCounterForPreloadRetried = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cachepool_preload_retried_total",
		Help: "The total number of media preload retries",
	})

	promGaugeForPreloadInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cachepool_preload_in_flight",
		Help: "The number of in-flight media preloads",
	})
)

func metricsCountCacheHit(class ResourceClass) {
	promCounterForCacheHit.WithLabelValues(string(class)).Inc()
}

func metricsCountCacheMiss(class ResourceClass) {
	promCounterForCacheMiss.WithLabelValues(string(class)).Inc()
}

func metricsCountFallback(class ResourceClass) {
	promCounterForFallback.WithLabelValues(string(class)).Inc()
}

func metricsCountNetworkFailure() {
	promCounterForNetworkFailure.Inc()
}
