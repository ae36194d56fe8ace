package engine

import (
	"bytes"
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/streamtv/cachepool/commons"
	"github.com/streamtv/cachepool/engine/store"
	"github.com/streamtv/cachepool/utils"
)

// MediaQuality is a preload quality level derived from network conditions
type MediaQuality string

const (
	MediaQualityLow    MediaQuality = "low"
	MediaQualityMedium MediaQuality = "medium"
	MediaQualityHigh   MediaQuality = "high"
	MediaQualityAuto   MediaQuality = "auto"
)

// assumed audio byte rates per quality level, used for duration estimates
var qualityByteRates = map[MediaQuality]int64{
	MediaQualityLow:    96 * 125, // 96 kbps
	MediaQualityMedium: 160 * 125,
	MediaQualityHigh:   320 * 125,
}

// preloadBlockSize is the range request size for progressive preview
// downloads. Small enough that cancellation is observed promptly.
const preloadBlockSize = 128 * 1024

// PreloadStatus is the lifecycle status of a preload item
type PreloadStatus string

const (
	PreloadStatusQueued    PreloadStatus = "queued"
	PreloadStatusInFlight  PreloadStatus = "in-flight"
	PreloadStatusCompleted PreloadStatus = "completed"
	PreloadStatusFailed    PreloadStatus = "failed"
)

// PreloadItem is a media preload request
type PreloadItem struct {
	ID          string        `json:"id"`
	ResourceRef string        `json:"resource_ref"`
	Priority    Priority      `json:"priority"`
	Attempts    int           `json:"attempts"`
	Status      PreloadStatus `json:"status"`
	EnqueuedAt  time.Time     `json:"enqueued_at"`
}

// preloadState is the runtime state of an in-flight preload
type preloadState struct {
	id        string
	startTime time.Time
	progress  float64
	cancel    context.CancelFunc
}

// PreloadEventType ...
type PreloadEventType string

const (
	PreloadEventCompleted PreloadEventType = "completed"
	PreloadEventFailed    PreloadEventType = "failed"
)

// PreloadEvent is emitted when a preload reaches a terminal state.
// Cancellation emits no event.
type PreloadEvent struct {
	Type              PreloadEventType `json:"type"`
	ID                string           `json:"id"`
	ResourceRef       string           `json:"resource_ref"`
	Quality           MediaQuality     `json:"quality,omitempty"`
	Size              int              `json:"size,omitempty"`
	TotalSize         int64            `json:"total_size,omitempty"`
	EstimatedDuration time.Duration    `json:"estimated_duration,omitempty"`
	Message           string           `json:"message,omitempty"`
}

// PreloadStats is a snapshot of queue state
type PreloadStats struct {
	Queued   int `json:"queued"`
	InFlight int `json:"in_flight"`
}

// PreloadQueue downloads the leading bytes of media resources ahead of
// playback. Concurrency is capped by the configured maximum and further
// lowered under the network-monitor ceiling. Failed preloads retry with a
// linear backoff up to the retry limit; cancellation is cooperative and
// emits no failure event.
type PreloadQueue struct {
	fetcher     Fetcher
	mediaCache  *store.MediaCache
	monitor     *NetworkMonitor
	retryLimit  int
	backoffBase time.Duration
	maxInFlight int
	previewSize int64
	blockHelper *utils.BlockHelper

	quality MediaQuality // quality override, auto by default

	queue     []*PreloadItem
	items     map[string]*PreloadItem // non-terminal items by id
	states    map[string]*preloadState
	inFlight  int
	listeners []func(PreloadEvent)
	closed    bool
	mutex     sync.Mutex

	waitGroup sync.WaitGroup
}

// NewPreloadQueue creates a new PreloadQueue
func NewPreloadQueue(fetcher Fetcher, mediaCache *store.MediaCache, monitor *NetworkMonitor, retryLimit int, backoffBase time.Duration, maxInFlight int, previewSize int64) *PreloadQueue {
	queue := &PreloadQueue{
		fetcher:     fetcher,
		mediaCache:  mediaCache,
		monitor:     monitor,
		retryLimit:  retryLimit,
		backoffBase: backoffBase,
		maxInFlight: maxInFlight,
		previewSize: previewSize,
		blockHelper: utils.NewBlockHelper(preloadBlockSize),

		quality: MediaQualityAuto,

		queue:     []*PreloadItem{},
		items:     map[string]*PreloadItem{},
		states:    map[string]*preloadState{},
		listeners: []func(PreloadEvent){},
	}

	monitor.Subscribe(func(condition NetworkCondition) {
		go queue.dispatch()
	})

	return queue
}

// Release cancels in-flight preloads, drops queued items, and waits for
// workers to return
func (queue *PreloadQueue) Release() {
	queue.mutex.Lock()
	queue.closed = true
	queue.queue = []*PreloadItem{}
	queue.items = map[string]*PreloadItem{}

	for _, state := range queue.states {
		state.cancel()
	}
	queue.mutex.Unlock()

	queue.waitGroup.Wait()
}

// AddEventListener registers a callback for terminal preload events
func (queue *PreloadQueue) AddEventListener(listener func(PreloadEvent)) {
	queue.mutex.Lock()
	defer queue.mutex.Unlock()

	queue.listeners = append(queue.listeners, listener)
}

// SetQuality overrides the network-derived quality level.
// MediaQualityAuto restores network-derived selection.
func (queue *PreloadQueue) SetQuality(quality MediaQuality) {
	queue.mutex.Lock()
	defer queue.mutex.Unlock()

	queue.quality = quality
}

// GetQuality returns the active quality level for new preloads
func (queue *PreloadQueue) GetQuality() MediaQuality {
	queue.mutex.Lock()
	override := queue.quality
	queue.mutex.Unlock()

	if override != MediaQualityAuto {
		return override
	}

	switch queue.monitor.GetCondition().Info.EffectiveClass {
	case NetworkClass2G:
		return MediaQualityLow
	case NetworkClass3G:
		return MediaQualityMedium
	default:
		return MediaQualityHigh
	}
}

// Enqueue adds a media preload request. Returns false when an item with
// the same id is already queued or in flight.
func (queue *PreloadQueue) Enqueue(id string, resourceRef string, priority Priority) bool {
	logger := log.WithFields(log.Fields{
		"package":  "engine",
		"struct":   "PreloadQueue",
		"function": "Enqueue",
	})

	queue.mutex.Lock()

	if queue.closed {
		queue.mutex.Unlock()
		return false
	}

	if _, exists := queue.items[id]; exists {
		queue.mutex.Unlock()
		return false
	}

	item := &PreloadItem{
		ID:          id,
		ResourceRef: resourceRef,
		Priority:    priority,
		Attempts:    0,
		Status:      PreloadStatusQueued,
		EnqueuedAt:  time.Now(),
	}

	queue.items[id] = item
	queue.insert(item)
	queue.mutex.Unlock()

	logger.Debugf("Queued preload %q for %q, priority %s", id, resourceRef, priority)

	go queue.dispatch()
	return true
}

// insert places the item after the last queued item of equal or higher
// priority. Must be called with the mutex held.
func (queue *PreloadQueue) insert(item *PreloadItem) {
	position := len(queue.queue)
	for index, queued := range queue.queue {
		if queued.Priority < item.Priority {
			position = index
			break
		}
	}

	queue.queue = append(queue.queue, nil)
	copy(queue.queue[position+1:], queue.queue[position:])
	queue.queue[position] = item
}

// Cancel removes a queued item or cancels an in-flight preload.
// A canceled preload never emits a failure event and does not count as
// a retry attempt. Returns false for unknown or terminal ids.
func (queue *PreloadQueue) Cancel(id string) bool {
	logger := log.WithFields(log.Fields{
		"package":  "engine",
		"struct":   "PreloadQueue",
		"function": "Cancel",
	})

	queue.mutex.Lock()
	defer queue.mutex.Unlock()

	item, exists := queue.items[id]
	if !exists {
		return false
	}

	if item.Status == PreloadStatusQueued {
		// also covers items waiting out a retry backoff
		queue.removeQueued(id)
		delete(queue.items, id)

		logger.Debugf("Canceled queued preload %q", id)
		return true
	}

	if state, inFlight := queue.states[id]; inFlight {
		state.cancel()

		logger.Debugf("Canceling in-flight preload %q", id)
		return true
	}

	return false
}

// removeQueued must be called with the mutex held
func (queue *PreloadQueue) removeQueued(id string) {
	for index, queued := range queue.queue {
		if queued.ID == id {
			queue.queue = append(queue.queue[:index], queue.queue[index+1:]...)
			return
		}
	}
}

// ceiling returns the effective in-flight cap. Must be called with the
// mutex held or on an immutable field.
func (queue *PreloadQueue) ceiling() int {
	ceiling := queue.monitor.GetConcurrencyCeiling()
	if ceiling > queue.maxInFlight {
		ceiling = queue.maxInFlight
	}
	return ceiling
}

// dispatch starts queued preloads while the in-flight count stays below
// the effective ceiling
func (queue *PreloadQueue) dispatch() {
	for {
		queue.mutex.Lock()

		if queue.closed || queue.inFlight >= queue.ceiling() || len(queue.queue) == 0 {
			queue.mutex.Unlock()
			return
		}

		item := queue.queue[0]
		queue.queue = queue.queue[1:]

		item.Status = PreloadStatusInFlight

		ctx, cancel := context.WithCancel(context.Background())
		state := &preloadState{
			id:        item.ID,
			startTime: time.Now(),
			cancel:    cancel,
		}
		queue.states[item.ID] = state

		queue.inFlight++
		promGaugeForPreloadInFlight.Set(float64(queue.inFlight))
		queue.mutex.Unlock()

		queue.waitGroup.Add(1)
		go queue.run(ctx, item, state)
	}
}

func (queue *PreloadQueue) run(ctx context.Context, item *PreloadItem, state *preloadState) {
	logger := log.WithFields(log.Fields{
		"package":  "engine",
		"struct":   "PreloadQueue",
		"function": "run",
	})

	defer func() {
		state.cancel()

		queue.mutex.Lock()
		delete(queue.states, item.ID)
		queue.inFlight--
		promGaugeForPreloadInFlight.Set(float64(queue.inFlight))
		queue.mutex.Unlock()

		queue.waitGroup.Done()

		queue.dispatch()
	}()

	quality := queue.GetQuality()

	data, totalSize, err := queue.download(ctx, item, state)
	if err != nil {
		if commons.IsCanceledError(err) || ctx.Err() != nil {
			logger.Debugf("Preload %q canceled", item.ID)

			queue.mutex.Lock()
			delete(queue.items, item.ID)
			queue.mutex.Unlock()
			return
		}

		logger.WithError(err).Debugf("Preload %q failed, attempt %d", item.ID, item.Attempts+1)
		queue.handleFailure(item)
		return
	}

	_, err = queue.mediaCache.CreateEntry(item.ResourceRef, string(quality), data, totalSize)
	if err != nil {
		logger.WithError(err).Errorf("failed to store preloaded media for %q", item.ResourceRef)
		queue.handleFailure(item)
		return
	}

	queue.mutex.Lock()
	item.Status = PreloadStatusCompleted
	delete(queue.items, item.ID)
	queue.mutex.Unlock()

	promCounterForPreloadCompleted.Inc()

	queue.emit(PreloadEvent{
		Type:              PreloadEventCompleted,
		ID:                item.ID,
		ResourceRef:       item.ResourceRef,
		Quality:           quality,
		Size:              len(data),
		TotalSize:         totalSize,
		EstimatedDuration: estimateMediaDuration(totalSize, quality),
	})
}

// download fetches the leading previewSize bytes block by block,
// checking for cancellation and updating progress between blocks
func (queue *PreloadQueue) download(ctx context.Context, item *PreloadItem, state *preloadState) ([]byte, int64, error) {
	buffer := bytes.Buffer{}
	totalSize := int64(-1)

	firstBlock, lastBlock := queue.blockHelper.GetFirstAndLastBlockID(0, queue.previewSize)
	for blockID := firstBlock; blockID <= lastBlock; blockID++ {
		if ctx.Err() != nil {
			return nil, -1, commons.NewCanceledError(item.ResourceRef)
		}

		offset := queue.blockHelper.GetBlockStartOffsetForBlockID(blockID)
		length := queue.blockHelper.GetBlockLength(blockID, queue.previewSize)
		if length == 0 {
			break
		}

		resource, err := queue.fetcher.FetchRange(ctx, item.ResourceRef, offset, int64(length))
		if err != nil {
			return nil, -1, err
		}

		buffer.Write(resource.Payload)
		if resource.TotalSize >= 0 {
			totalSize = resource.TotalSize
		}

		queue.mutex.Lock()
		state.progress = float64(buffer.Len()) / float64(queue.previewSize)
		queue.mutex.Unlock()

		// the whole resource is smaller than the preview window
		if len(resource.Payload) < length || (totalSize >= 0 && int64(buffer.Len()) >= totalSize) {
			break
		}
	}

	return buffer.Bytes(), totalSize, nil
}

// handleFailure requeues the item with a linear backoff, or marks it
// failed once the retry limit is exhausted. Exactly one failure event is
// emitted per item.
func (queue *PreloadQueue) handleFailure(item *PreloadItem) {
	logger := log.WithFields(log.Fields{
		"package":  "engine",
		"struct":   "PreloadQueue",
		"function": "handleFailure",
	})

	queue.mutex.Lock()

	item.Attempts++

	if item.Attempts >= queue.retryLimit {
		item.Status = PreloadStatusFailed
		delete(queue.items, item.ID)
		queue.mutex.Unlock()

		promCounterForPreloadFailed.Inc()

		logger.Debugf("Preload %q failed after %d attempts", item.ID, item.Attempts)

		queue.emit(PreloadEvent{
			Type:        PreloadEventFailed,
			ID:          item.ID,
			ResourceRef: item.ResourceRef,
			Message:     "retry limit exhausted",
		})
		return
	}

	item.Status = PreloadStatusQueued
	delay := time.Duration(item.Attempts) * queue.backoffBase
	queue.mutex.Unlock()

	promCounterForPreloadRetried.Inc()

	logger.Debugf("Requeueing preload %q in %s, attempt %d", item.ID, delay, item.Attempts)

	time.AfterFunc(delay, func() {
		queue.mutex.Lock()

		// dropped by Cancel or Release while backing off
		if current, exists := queue.items[item.ID]; !exists || current != item || queue.closed {
			queue.mutex.Unlock()
			return
		}

		queue.insert(item)
		queue.mutex.Unlock()

		queue.dispatch()
	})
}

func (queue *PreloadQueue) emit(event PreloadEvent) {
	queue.mutex.Lock()
	listeners := make([]func(PreloadEvent), len(queue.listeners))
	copy(listeners, queue.listeners)
	queue.mutex.Unlock()

	for _, listener := range listeners {
		listener(event)
	}
}

// GetStats returns a snapshot of queue state
func (queue *PreloadQueue) GetStats() PreloadStats {
	queue.mutex.Lock()
	defer queue.mutex.Unlock()

	queued := 0
	for _, item := range queue.items {
		if item.Status == PreloadStatusQueued {
			queued++
		}
	}

	return PreloadStats{
		Queued:   queued,
		InFlight: queue.inFlight,
	}
}

// GetItems returns a snapshot of all non-terminal items
func (queue *PreloadQueue) GetItems() []PreloadItem {
	queue.mutex.Lock()
	defer queue.mutex.Unlock()

	items := make([]PreloadItem, 0, len(queue.items))
	for _, item := range queue.items {
		items = append(items, *item)
	}
	return items
}

// GetProgress returns the download progress of an in-flight preload
// in [0, 1], or -1 when the id is not in flight
func (queue *PreloadQueue) GetProgress(id string) float64 {
	queue.mutex.Lock()
	defer queue.mutex.Unlock()

	if state, exists := queue.states[id]; exists {
		return state.progress
	}
	return -1
}

// estimateMediaDuration estimates the media duration from the full size
// and an assumed byte rate for the quality level
func estimateMediaDuration(totalSize int64, quality MediaQuality) time.Duration {
	if totalSize <= 0 {
		return 0
	}

	byteRate, ok := qualityByteRates[quality]
	if !ok {
		byteRate = qualityByteRates[MediaQualityMedium]
	}

	return time.Duration(totalSize/byteRate) * time.Second
}
