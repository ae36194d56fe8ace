package engine

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// NetworkClass is an effective connection quality class
type NetworkClass string

const (
	NetworkClass2G NetworkClass = "2g-or-worse"
	NetworkClass3G NetworkClass = "3g"
	NetworkClass4G NetworkClass = "4g-or-better"
)

// ParseNetworkClass parses a network class string, defaulting to 4g-or-better
func ParseNetworkClass(value string) NetworkClass {
	switch value {
	case "slow-2g", "2g", string(NetworkClass2G):
		return NetworkClass2G
	case "3g":
		return NetworkClass3G
	default:
		return NetworkClass4G
	}
}

// NetworkInfo is a snapshot of connection quality signals
type NetworkInfo struct {
	Type           string        `json:"type"`
	EffectiveClass NetworkClass  `json:"effective_class"`
	DownlinkMbps   float64       `json:"downlink_mbps"`
	RTT            time.Duration `json:"rtt"`
	DataSaver      bool          `json:"data_saver"`
}

// NetworkCondition is derived from NetworkInfo on every connectivity change
// and consumed by the prefetch scheduler and the preload queue before each
// dispatch decision
type NetworkCondition struct {
	Info               NetworkInfo `json:"info"`
	ConcurrencyCeiling int         `json:"concurrency_ceiling"`
	MediaPrefetchOK    bool        `json:"media_prefetch_ok"`
}

// NetworkMonitor keeps the current network condition and pushes updates
// to subscribers. It never cancels in-flight work on a downgrade; a lowered
// ceiling applies to future dispatch decisions only.
type NetworkMonitor struct {
	condition   NetworkCondition
	subscribers []func(NetworkCondition)
	mutex       sync.RWMutex
}

// NewNetworkMonitor creates a new NetworkMonitor assuming a good connection
// until the first connectivity signal arrives
func NewNetworkMonitor() *NetworkMonitor {
	info := NetworkInfo{
		Type:           "unknown",
		EffectiveClass: NetworkClass4G,
	}

	return &NetworkMonitor{
		condition:   deriveCondition(info),
		subscribers: []func(NetworkCondition){},
	}
}

func deriveCondition(info NetworkInfo) NetworkCondition {
	ceiling := 3
	switch info.EffectiveClass {
	case NetworkClass2G:
		ceiling = 1
	case NetworkClass3G:
		ceiling = 2
	case NetworkClass4G:
		ceiling = 3
	}

	if info.DataSaver {
		ceiling = 1
	}

	mediaOK := info.EffectiveClass == NetworkClass4G && !info.DataSaver

	return NetworkCondition{
		Info:               info,
		ConcurrencyCeiling: ceiling,
		MediaPrefetchOK:    mediaOK,
	}
}

// Update recomputes the network condition from a connectivity-change signal
// and pushes it to all subscribers
func (monitor *NetworkMonitor) Update(info NetworkInfo) {
	logger := log.WithFields(log.Fields{
		"package":  "engine",
		"struct":   "NetworkMonitor",
		"function": "Update",
	})

	condition := deriveCondition(info)

	monitor.mutex.Lock()
	monitor.condition = condition
	subscribers := make([]func(NetworkCondition), len(monitor.subscribers))
	copy(subscribers, monitor.subscribers)
	monitor.mutex.Unlock()

	logger.Infof("Network condition changed - class %s, ceiling %d, media prefetch %t",
		condition.Info.EffectiveClass, condition.ConcurrencyCeiling, condition.MediaPrefetchOK)

	for _, subscriber := range subscribers {
		subscriber(condition)
	}
}

// Subscribe registers a callback invoked on every condition change
func (monitor *NetworkMonitor) Subscribe(callback func(NetworkCondition)) {
	monitor.mutex.Lock()
	defer monitor.mutex.Unlock()

	monitor.subscribers = append(monitor.subscribers, callback)
}

// GetCondition returns the current network condition
func (monitor *NetworkMonitor) GetCondition() NetworkCondition {
	monitor.mutex.RLock()
	defer monitor.mutex.RUnlock()

	return monitor.condition
}

// GetConcurrencyCeiling returns the current soft cap on in-flight operations
func (monitor *NetworkMonitor) GetConcurrencyCeiling() int {
	return monitor.GetCondition().ConcurrencyCeiling
}

// IsMediaPrefetchAllowed tells whether media-class speculative fetches
// are currently permitted
func (monitor *NetworkMonitor) IsMediaPrefetchAllowed() bool {
	return monitor.GetCondition().MediaPrefetchOK
}
