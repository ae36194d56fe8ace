package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/streamtv/cachepool/commons"
	"github.com/streamtv/cachepool/engine/store"
)

// ControlMessageType is an application control message type
type ControlMessageType string

const (
	ControlMessageInit          ControlMessageType = "INIT"
	ControlMessagePrefetch      ControlMessageType = "PREFETCH"
	ControlMessagePreloadTrack  ControlMessageType = "PRELOAD_TRACK"
	ControlMessagePreloadBatch  ControlMessageType = "PRELOAD_BATCH"
	ControlMessageCancelPreload ControlMessageType = "CANCEL_PRELOAD"
	ControlMessageClearCache    ControlMessageType = "CLEAR_CACHE"
	ControlMessageGetStatus     ControlMessageType = "GET_STATUS"
	ControlMessageSetQuality    ControlMessageType = "SET_QUALITY"
	ControlMessageSetNetwork    ControlMessageType = "SET_NETWORK"
)

// ControlMessage is a control request from the application layer
type ControlMessage struct {
	Type    ControlMessageType `json:"type"`
	ID      string             `json:"id,omitempty"`
	Payload json.RawMessage    `json:"payload,omitempty"`
}

// ControlResponse is a control reply. Type is SUCCESS or ERROR; an ERROR
// carries a typed error code in Message.
type ControlResponse struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
}

const (
	ControlResponseSuccess = "SUCCESS"
	ControlResponseError   = "ERROR"
)

// InitRequest is the INIT payload. Chunks supplement the configured
// manifest file.
type InitRequest struct {
	Chunks []string `json:"chunks,omitempty"`
}

// PrefetchRequest is the PREFETCH payload
type PrefetchRequest struct {
	ResourceRef string `json:"resource_ref"`
	Kind        string `json:"kind,omitempty"`
	Priority    string `json:"priority,omitempty"`
	Trigger     string `json:"trigger,omitempty"`
}

// PreloadTrackRequest is the PRELOAD_TRACK payload
type PreloadTrackRequest struct {
	ID          string `json:"id"`
	ResourceRef string `json:"resource_ref"`
	Priority    string `json:"priority,omitempty"`
}

// PreloadBatchRequest is the PRELOAD_BATCH payload
type PreloadBatchRequest struct {
	Tracks []PreloadTrackRequest `json:"tracks"`
}

// CancelPreloadRequest is the CANCEL_PRELOAD payload
type CancelPreloadRequest struct {
	ID string `json:"id"`
}

// ClearCacheRequest is the CLEAR_CACHE payload. An empty partition
// clears every partition and the media preview cache.
type ClearCacheRequest struct {
	Partition string `json:"partition,omitempty"`
}

// SetQualityRequest is the SET_QUALITY payload
type SetQualityRequest struct {
	Quality string `json:"quality"`
}

// SetNetworkRequest is the SET_NETWORK payload, a connectivity-change
// signal from the application layer
type SetNetworkRequest struct {
	Type           string  `json:"type,omitempty"`
	EffectiveClass string  `json:"effective_class"`
	DownlinkMbps   float64 `json:"downlink_mbps,omitempty"`
	RTTMS          int     `json:"rtt_ms,omitempty"`
	DataSaver      bool    `json:"data_saver,omitempty"`
}

// PartitionStatus is the status of one store partition
type PartitionStatus struct {
	Name     string `json:"name"`
	Count    int    `json:"count"`
	MaxItems int    `json:"max_items"`
}

// EngineStatus is the GET_STATUS reply payload
type EngineStatus struct {
	Version      string            `json:"version"`
	InstanceID   string            `json:"instance_id"`
	Partitions   []PartitionStatus `json:"partitions"`
	MediaEntries int               `json:"media_entries"`
	Prefetch     PrefetchStats     `json:"prefetch"`
	Preload      PreloadStats      `json:"preload"`
	PreloadItems []PreloadItem     `json:"preload_items"`
	Network      NetworkCondition  `json:"network"`
}

// Engine is the client-resident content delivery layer. It owns the
// tiered store, the media preview cache, the strategy executor, and the
// prefetch and preload schedulers.
type Engine struct {
	config *commons.Config

	store      *store.TieredStore
	mediaCache *store.MediaCache
	monitor    *NetworkMonitor
	classifier *Classifier
	fetcher    Fetcher
	executor   *StrategyExecutor
	prefetcher *PrefetchScheduler
	preloader  *PreloadQueue
}

// NewEngine creates a new Engine from the config
func NewEngine(config *commons.Config) (*Engine, error) {
	logger := log.WithFields(log.Fields{
		"package":  "engine",
		"struct":   "Engine",
		"function": "NewEngine",
	})

	err := config.Validate()
	if err != nil {
		return nil, err
	}

	err = config.MakeWorkDirs()
	if err != nil {
		return nil, commons.NewStorageError("", "", err)
	}

	tieredStore, err := store.NewTieredStore(config.GetBadgerDirPath(), config.Partitions)
	if err != nil {
		return nil, err
	}

	err = tieredStore.CheckVersion(config.EngineVersion)
	if err != nil {
		tieredStore.Close()
		return nil, err
	}

	mediaEntryCap := commons.MediaCacheEntryCapDefault
	if setting, ok := config.GetPartitionSetting(string(ResourceClassMedia)); ok && setting.MaxItems > 0 {
		mediaEntryCap = setting.MaxItems
	}

	mediaCache, err := store.NewMediaCache(mediaEntryCap, config.GetMediaCacheDirPath())
	if err != nil {
		tieredStore.Close()
		return nil, err
	}

	monitor := NewNetworkMonitor()
	classifier := NewClassifier(config.ClassifyRules)
	fetcher := NewHTTPFetcher(config.OriginURL, 0)
	executor := NewStrategyExecutor(tieredStore, fetcher, config.NetworkTimeout.Get())
	prefetcher := NewPrefetchScheduler(classifier, executor, monitor, config.PrefetchQueueMax)
	preloader := NewPreloadQueue(fetcher, mediaCache, monitor, config.PreloadRetryLimit, config.PreloadBackoffBase.Get(), config.PreloadMaxConcurrent, config.PreviewBytes)

	logger.Infof("Engine %s created, instance %s", config.EngineVersion, config.InstanceID)

	return &Engine{
		config: config,

		store:      tieredStore,
		mediaCache: mediaCache,
		monitor:    monitor,
		classifier: classifier,
		fetcher:    fetcher,
		executor:   executor,
		prefetcher: prefetcher,
		preloader:  preloader,
	}, nil
}

// Release stops schedulers, drains background refreshes, and closes the
// store
func (engine *Engine) Release() {
	logger := log.WithFields(log.Fields{
		"package":  "engine",
		"struct":   "Engine",
		"function": "Release",
	})

	logger.Info("Releasing the engine")

	engine.preloader.Release()
	engine.prefetcher.Release()
	engine.executor.WaitBackground()

	err := engine.store.Close()
	if err != nil {
		logger.WithError(err).Error("failed to close the store")
	}
}

// GetNetworkMonitor returns the network monitor
func (engine *Engine) GetNetworkMonitor() *NetworkMonitor {
	return engine.monitor
}

// GetPreloadQueue returns the media preload queue
func (engine *Engine) GetPreloadQueue() *PreloadQueue {
	return engine.preloader
}

// Intercept resolves an outbound resource request through the caching
// strategies. Non-GET requests are not handled and must go to the
// network untouched.
func (engine *Engine) Intercept(ctx context.Context, request Request) (*Response, bool, error) {
	if len(request.Method) > 0 && !strings.EqualFold(request.Method, http.MethodGet) {
		return nil, false, nil
	}

	classification := engine.classifier.Classify(request.URL, request.Kind)

	response, err := engine.executor.Execute(ctx, classification.Strategy, classification.Class, request.URL)
	if err != nil {
		return nil, true, err
	}

	return response, true, nil
}

// Prefetch queues a speculative fetch candidate
func (engine *Engine) Prefetch(resourceRef string, kind ResourceKind, priority Priority, trigger PrefetchTrigger) {
	engine.prefetcher.Enqueue(resourceRef, kind, priority, trigger)
}

// GetStatus returns a status snapshot
func (engine *Engine) GetStatus() (*EngineStatus, error) {
	partitions := []PartitionStatus{}
	for _, name := range engine.store.PartitionNames() {
		count, err := engine.store.Count(name)
		if err != nil {
			return nil, err
		}

		policy, _ := engine.store.GetPartition(name)
		partitions = append(partitions, PartitionStatus{
			Name:     name,
			Count:    count,
			MaxItems: policy.MaxItems,
		})
	}

	return &EngineStatus{
		Version:      engine.config.EngineVersion,
		InstanceID:   engine.config.InstanceID,
		Partitions:   partitions,
		MediaEntries: engine.mediaCache.GetTotalEntries(),
		Prefetch:     engine.prefetcher.GetStats(),
		Preload:      engine.preloader.GetStats(),
		PreloadItems: engine.preloader.GetItems(),
		Network:      engine.monitor.GetCondition(),
	}, nil
}

// Control handles an application control message. Every message yields
// a reply; failures come back as ERROR replies with a typed error code.
func (engine *Engine) Control(message ControlMessage) ControlResponse {
	logger := log.WithFields(log.Fields{
		"package":  "engine",
		"struct":   "Engine",
		"function": "Control",
	})

	logger.Debugf("Handling control message %s, id %q", message.Type, message.ID)

	switch message.Type {
	case ControlMessageInit:
		return engine.handleInit(message)
	case ControlMessagePrefetch:
		return engine.handlePrefetch(message)
	case ControlMessagePreloadTrack:
		return engine.handlePreloadTrack(message)
	case ControlMessagePreloadBatch:
		return engine.handlePreloadBatch(message)
	case ControlMessageCancelPreload:
		return engine.handleCancelPreload(message)
	case ControlMessageClearCache:
		return engine.handleClearCache(message)
	case ControlMessageGetStatus:
		return engine.handleGetStatus(message)
	case ControlMessageSetQuality:
		return engine.handleSetQuality(message)
	case ControlMessageSetNetwork:
		return engine.handleSetNetwork(message)
	default:
		return makeErrorResponse(message.ID, fmt.Errorf("unknown control message type %q", message.Type))
	}
}

// handleInit warms the static partition with the application shell
// resources listed in the manifest
func (engine *Engine) handleInit(message ControlMessage) ControlResponse {
	logger := log.WithFields(log.Fields{
		"package":  "engine",
		"struct":   "Engine",
		"function": "handleInit",
	})

	request := InitRequest{}
	if len(message.Payload) > 0 {
		err := json.Unmarshal(message.Payload, &request)
		if err != nil {
			return makeErrorResponse(message.ID, commons.NewParseError("INIT payload", err))
		}
	}

	chunks := []string{}
	if len(engine.config.ManifestPath) > 0 {
		manifest, err := LoadManifestFile(engine.config.ManifestPath)
		if err != nil {
			// an unreadable manifest must not block warmup of the
			// payload-supplied chunks
			logger.WithError(err).Warnf("failed to load manifest %q, skipping", engine.config.ManifestPath)
		} else {
			chunks = append(chunks, manifest.Chunks...)
		}
	}
	chunks = append(chunks, filterManifestEntries(request.Chunks)...)

	for _, chunk := range chunks {
		engine.prefetcher.Enqueue(chunk, ResourceKindScript, PriorityLow, PrefetchTriggerPredicted)
	}

	return makeSuccessResponse(message.ID, map[string]interface{}{
		"queued": len(chunks),
	})
}

func (engine *Engine) handlePrefetch(message ControlMessage) ControlResponse {
	request := PrefetchRequest{}
	err := json.Unmarshal(message.Payload, &request)
	if err != nil {
		return makeErrorResponse(message.ID, commons.NewParseError("PREFETCH payload", err))
	}

	if len(request.ResourceRef) == 0 {
		return makeErrorResponse(message.ID, commons.NewParseError("PREFETCH payload", fmt.Errorf("resource_ref must be given")))
	}

	trigger := PrefetchTrigger(request.Trigger)
	if len(trigger) == 0 {
		trigger = PrefetchTriggerPredicted
	}

	engine.prefetcher.Enqueue(request.ResourceRef, ResourceKind(request.Kind), ParsePriority(request.Priority), trigger)
	return makeSuccessResponse(message.ID, nil)
}

func (engine *Engine) handlePreloadTrack(message ControlMessage) ControlResponse {
	request := PreloadTrackRequest{}
	err := json.Unmarshal(message.Payload, &request)
	if err != nil {
		return makeErrorResponse(message.ID, commons.NewParseError("PRELOAD_TRACK payload", err))
	}

	if len(request.ID) == 0 || len(request.ResourceRef) == 0 {
		return makeErrorResponse(message.ID, commons.NewParseError("PRELOAD_TRACK payload", fmt.Errorf("id and resource_ref must be given")))
	}

	queued := engine.preloader.Enqueue(request.ID, request.ResourceRef, ParsePriority(request.Priority))
	return makeSuccessResponse(message.ID, map[string]interface{}{
		"id":     request.ID,
		"queued": queued,
	})
}

func (engine *Engine) handlePreloadBatch(message ControlMessage) ControlResponse {
	request := PreloadBatchRequest{}
	err := json.Unmarshal(message.Payload, &request)
	if err != nil {
		return makeErrorResponse(message.ID, commons.NewParseError("PRELOAD_BATCH payload", err))
	}

	queued := 0
	for _, track := range request.Tracks {
		if len(track.ID) == 0 || len(track.ResourceRef) == 0 {
			continue
		}

		if engine.preloader.Enqueue(track.ID, track.ResourceRef, ParsePriority(track.Priority)) {
			queued++
		}
	}

	return makeSuccessResponse(message.ID, map[string]interface{}{
		"queued": queued,
	})
}

func (engine *Engine) handleCancelPreload(message ControlMessage) ControlResponse {
	request := CancelPreloadRequest{}
	err := json.Unmarshal(message.Payload, &request)
	if err != nil {
		return makeErrorResponse(message.ID, commons.NewParseError("CANCEL_PRELOAD payload", err))
	}

	canceled := engine.preloader.Cancel(request.ID)
	return makeSuccessResponse(message.ID, map[string]interface{}{
		"id":       request.ID,
		"canceled": canceled,
	})
}

func (engine *Engine) handleClearCache(message ControlMessage) ControlResponse {
	request := ClearCacheRequest{}
	if len(message.Payload) > 0 {
		err := json.Unmarshal(message.Payload, &request)
		if err != nil {
			return makeErrorResponse(message.ID, commons.NewParseError("CLEAR_CACHE payload", err))
		}
	}

	if len(request.Partition) == 0 {
		err := engine.store.ClearAll()
		if err != nil {
			return makeErrorResponse(message.ID, err)
		}

		engine.mediaCache.DeleteAllEntries()
		return makeSuccessResponse(message.ID, nil)
	}

	err := engine.store.Clear(request.Partition)
	if err != nil {
		return makeErrorResponse(message.ID, err)
	}

	if request.Partition == string(ResourceClassMedia) {
		engine.mediaCache.DeleteAllEntries()
	}

	return makeSuccessResponse(message.ID, nil)
}

func (engine *Engine) handleGetStatus(message ControlMessage) ControlResponse {
	status, err := engine.GetStatus()
	if err != nil {
		return makeErrorResponse(message.ID, err)
	}

	return makeSuccessResponse(message.ID, status)
}

func (engine *Engine) handleSetQuality(message ControlMessage) ControlResponse {
	request := SetQualityRequest{}
	err := json.Unmarshal(message.Payload, &request)
	if err != nil {
		return makeErrorResponse(message.ID, commons.NewParseError("SET_QUALITY payload", err))
	}

	switch MediaQuality(request.Quality) {
	case MediaQualityLow, MediaQualityMedium, MediaQualityHigh, MediaQualityAuto:
		engine.preloader.SetQuality(MediaQuality(request.Quality))
		return makeSuccessResponse(message.ID, nil)
	default:
		return makeErrorResponse(message.ID, commons.NewParseError("SET_QUALITY payload", fmt.Errorf("unknown quality %q", request.Quality)))
	}
}

func (engine *Engine) handleSetNetwork(message ControlMessage) ControlResponse {
	request := SetNetworkRequest{}
	err := json.Unmarshal(message.Payload, &request)
	if err != nil {
		return makeErrorResponse(message.ID, commons.NewParseError("SET_NETWORK payload", err))
	}

	engine.monitor.Update(NetworkInfo{
		Type:           request.Type,
		EffectiveClass: ParseNetworkClass(request.EffectiveClass),
		DownlinkMbps:   request.DownlinkMbps,
		RTT:            time.Duration(request.RTTMS) * time.Millisecond,
		DataSaver:      request.DataSaver,
	})

	return makeSuccessResponse(message.ID, nil)
}

func makeSuccessResponse(id string, data interface{}) ControlResponse {
	response := ControlResponse{
		Type: ControlResponseSuccess,
		ID:   id,
	}

	if data != nil {
		dataBytes, err := json.Marshal(data)
		if err != nil {
			return makeErrorResponse(id, err)
		}
		response.Data = dataBytes
	}

	return response
}

func makeErrorResponse(id string, err error) ControlResponse {
	return ControlResponse{
		Type:    ControlResponseError,
		ID:      id,
		Message: commons.ErrorToCode(err),
	}
}
