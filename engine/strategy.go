package engine

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/streamtv/cachepool/commons"
	"github.com/streamtv/cachepool/engine/store"
)

// StrategyExecutor implements the named caching strategies on top of the
// tiered store and the network fetcher. Every strategy returns a well-formed
// response; raw transport errors never escape. The only exception is
// cache-only, which signals NoCacheEntry when the store has nothing.
type StrategyExecutor struct {
	store          *store.TieredStore
	fetcher        Fetcher
	networkTimeout time.Duration

	refreshGroup singleflight.Group
	background   sync.WaitGroup
}

// NewStrategyExecutor creates a new StrategyExecutor
func NewStrategyExecutor(tieredStore *store.TieredStore, fetcher Fetcher, networkTimeout time.Duration) *StrategyExecutor {
	return &StrategyExecutor{
		store:          tieredStore,
		fetcher:        fetcher,
		networkTimeout: networkTimeout,
	}
}

// Execute resolves the resource with the named strategy
func (executor *StrategyExecutor) Execute(ctx context.Context, strategy StrategyName, class ResourceClass, url string) (*Response, error) {
	switch strategy {
	case StrategyCacheFirst:
		return executor.cacheFirst(ctx, class, url), nil
	case StrategyNetworkFirst:
		return executor.networkFirst(ctx, class, url), nil
	case StrategyStaleWhileRevalidate:
		return executor.staleWhileRevalidate(ctx, class, url), nil
	case StrategyNetworkOnly:
		return executor.networkOnly(ctx, class, url), nil
	case StrategyCacheOnly:
		return executor.cacheOnly(class, url)
	default:
		return executor.networkFirst(ctx, class, url), nil
	}
}

// WaitBackground blocks until all background refreshes finish.
// Called on engine shutdown.
func (executor *StrategyExecutor) WaitBackground() {
	executor.background.Wait()
}

// cache-first: serve the stored entry even when stale, refreshing stale
// entries in the background; fall back to the network on a miss
func (executor *StrategyExecutor) cacheFirst(ctx context.Context, class ResourceClass, url string) *Response {
	entry, stale, err := executor.getAnyLogged(class, url)
	if err == nil {
		if stale {
			executor.refreshInBackground(class, url)
		}
		return makeCacheResponse(entry, stale)
	}

	resource, err := executor.fetchWithTimeout(ctx, url)
	if err != nil {
		metricsCountFallback(class)
		return makeFallbackResponse(url, class)
	}

	executor.storeResource(class, url, resource)
	return makeNetworkResponse(resource)
}

// network-first: race the network against the configured timeout; fall back
// to the stored entry, then to the class fallback
func (executor *StrategyExecutor) networkFirst(ctx context.Context, class ResourceClass, url string) *Response {
	resource, err := executor.fetchWithTimeout(ctx, url)
	if err == nil {
		executor.storeResource(class, url, resource)
		return makeNetworkResponse(resource)
	}

	entry, getErr := executor.getLogged(class, url)
	if getErr == nil {
		return makeCacheResponse(entry, false)
	}

	metricsCountFallback(class)
	return makeFallbackResponse(url, class)
}

// stale-while-revalidate: serve the stored entry immediately and revalidate
// unconditionally in the background; block on the network only on a miss
func (executor *StrategyExecutor) staleWhileRevalidate(ctx context.Context, class ResourceClass, url string) *Response {
	entry, stale, err := executor.getAnyLogged(class, url)
	if err == nil {
		executor.refreshInBackground(class, url)
		return makeCacheResponse(entry, stale)
	}

	resource, err := executor.fetchWithTimeout(ctx, url)
	if err != nil {
		metricsCountFallback(class)
		return makeFallbackResponse(url, class)
	}

	executor.storeResource(class, url, resource)
	return makeNetworkResponse(resource)
}

// network-only: always fetch, never touch the store
func (executor *StrategyExecutor) networkOnly(ctx context.Context, class ResourceClass, url string) *Response {
	resource, err := executor.fetchWithTimeout(ctx, url)
	if err != nil {
		metricsCountFallback(class)
		return makeFallbackResponse(url, class)
	}

	return makeNetworkResponse(resource)
}

// cache-only: serve the stored entry or signal NoCacheEntry, never touch
// the network
func (executor *StrategyExecutor) cacheOnly(class ResourceClass, url string) (*Response, error) {
	entry, err := executor.getLogged(class, url)
	if err != nil {
		if commons.IsStorageError(err) {
			return nil, commons.NewNoCacheEntryError(string(class), url)
		}
		return nil, err
	}

	return makeCacheResponse(entry, false), nil
}

func (executor *StrategyExecutor) fetchWithTimeout(ctx context.Context, url string) (*Resource, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, executor.networkTimeout)
	defer cancel()

	resource, err := executor.fetcher.Fetch(fetchCtx, url)
	if err != nil {
		metricsCountNetworkFailure()
		return nil, err
	}

	return resource, nil
}

// getLogged reads an entry honoring the partition TTL. A storage failure is
// logged and reported as a miss so the caller proceeds as if absent.
func (executor *StrategyExecutor) getLogged(class ResourceClass, url string) (*store.CacheEntry, error) {
	logger := log.WithFields(log.Fields{
		"package":  "engine",
		"struct":   "StrategyExecutor",
		"function": "getLogged",
	})

	entry, err := executor.store.Get(string(class), url)
	if err != nil {
		if commons.IsStorageError(err) {
			logger.WithError(err).Errorf("failed to read cache entry for %q", url)
		}
		metricsCountCacheMiss(class)
		return nil, err
	}

	metricsCountCacheHit(class)
	return entry, nil
}

func (executor *StrategyExecutor) getAnyLogged(class ResourceClass, url string) (*store.CacheEntry, bool, error) {
	logger := log.WithFields(log.Fields{
		"package":  "engine",
		"struct":   "StrategyExecutor",
		"function": "getAnyLogged",
	})

	entry, stale, err := executor.store.GetAny(string(class), url)
	if err != nil {
		if commons.IsStorageError(err) {
			logger.WithError(err).Errorf("failed to read cache entry for %q", url)
		}
		metricsCountCacheMiss(class)
		return nil, false, err
	}

	metricsCountCacheHit(class)
	return entry, stale, nil
}

// storeResource writes a fetched resource into the partition. A write
// failure is logged, and a quota failure triggers an eviction sweep;
// the response is served regardless.
func (executor *StrategyExecutor) storeResource(class ResourceClass, url string, resource *Resource) {
	logger := log.WithFields(log.Fields{
		"package":  "engine",
		"struct":   "StrategyExecutor",
		"function": "storeResource",
	})

	err := executor.store.Put(string(class), url, resource.ContentType, resource.Payload)
	if err == nil {
		return
	}

	if commons.IsQuotaExceededError(err) {
		logger.WithError(err).Warnf("quota exceeded while storing %q, sweeping partitions", url)

		_, sweepErr := executor.store.Sweep()
		if sweepErr != nil {
			logger.WithError(sweepErr).Error("failed to sweep partitions")
			return
		}

		err = executor.store.Put(string(class), url, resource.ContentType, resource.Payload)
		if err == nil {
			return
		}
	}

	logger.WithError(err).Errorf("failed to store entry for %q", url)
}

// refreshInBackground issues an unawaited network refresh for the resource.
// Concurrent refreshes for the same resource collapse into one fetch.
func (executor *StrategyExecutor) refreshInBackground(class ResourceClass, url string) {
	logger := log.WithFields(log.Fields{
		"package":  "engine",
		"struct":   "StrategyExecutor",
		"function": "refreshInBackground",
	})

	executor.background.Add(1)

	go func() {
		defer executor.background.Done()

		_, err, _ := executor.refreshGroup.Do(url, func() (interface{}, error) {
			refreshCtx, cancel := context.WithTimeout(context.Background(), executor.networkTimeout)
			defer cancel()

			resource, err := executor.fetcher.Fetch(refreshCtx, url)
			if err != nil {
				return nil, err
			}

			executor.storeResource(class, url, resource)
			return resource, nil
		})
		if err != nil {
			logger.WithError(err).Debugf("background refresh for %q failed", url)
		}
	}()
}

func makeCacheResponse(entry *store.CacheEntry, stale bool) *Response {
	return &Response{
		URL:         entry.Key,
		Source:      ResponseSourceCache,
		ContentType: entry.ContentType,
		Payload:     entry.Payload,
		StoredAt:    entry.StoredAt,
		Stale:       stale,
	}
}

func makeNetworkResponse(resource *Resource) *Response {
	return &Response{
		URL:         resource.URL,
		Source:      ResponseSourceNetwork,
		ContentType: resource.ContentType,
		Payload:     resource.Payload,
		StoredAt:    time.Now(),
	}
}
