package commons

import "time"

const (
	DataRootPathDefault string = "/var/lib/cachepool"

	ServicePortDefault            int = 12030
	ProfileServicePortDefault     int = 12031
	PrometheusExporterPortDefault int = 12032

	NetworkTimeoutDefault       time.Duration = 5 * time.Second
	PreloadRetryLimitDefault    int           = 3
	PreloadBackoffBaseDefault   time.Duration = 1 * time.Second
	PreloadMaxConcurrentDefault int           = 3
	PrefetchQueueMaxDefault     int           = 50
	PreviewBytesDefault         int64         = 512 * 1024 // leading 512KB of a media resource

	MediaCacheEntryCapDefault int = 30

	PrefetchedMarkTimeoutDefault time.Duration = 5 * time.Minute
	PrefetchedMarkCleanupDefault time.Duration = 10 * time.Minute
)
