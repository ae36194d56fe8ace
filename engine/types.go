package engine

import (
	"time"
)

// ResourceClass is a class of an outbound resource, mapping 1:1 to a
// partition of the tiered store
type ResourceClass string

const (
	ResourceClassStatic  ResourceClass = "static"
	ResourceClassDynamic ResourceClass = "dynamic"
	ResourceClassMedia   ResourceClass = "media"
	ResourceClassImages  ResourceClass = "images"
	ResourceClassAPI     ResourceClass = "api"
)

// ResourceClasses returns all known resource classes
func ResourceClasses() []ResourceClass {
	return []ResourceClass{
		ResourceClassStatic,
		ResourceClassDynamic,
		ResourceClassMedia,
		ResourceClassImages,
		ResourceClassAPI,
	}
}

// IsValidResourceClass checks if the given name is a known resource class
func IsValidResourceClass(name string) bool {
	for _, class := range ResourceClasses() {
		if string(class) == name {
			return true
		}
	}
	return false
}

// StrategyName is a named caching strategy
type StrategyName string

const (
	StrategyCacheFirst           StrategyName = "cache-first"
	StrategyNetworkFirst         StrategyName = "network-first"
	StrategyStaleWhileRevalidate StrategyName = "stale-while-revalidate"
	StrategyNetworkOnly          StrategyName = "network-only"
	StrategyCacheOnly            StrategyName = "cache-only"
)

// ResourceKind is a declared kind of the requested resource
// (e.g., from a fetch destination)
type ResourceKind string

const (
	ResourceKindUnknown  ResourceKind = ""
	ResourceKindImage    ResourceKind = "image"
	ResourceKindScript   ResourceKind = "script"
	ResourceKindStyle    ResourceKind = "style"
	ResourceKindMedia    ResourceKind = "media"
	ResourceKindDocument ResourceKind = "document"
)

// Priority of a queued speculative fetch
type Priority int

const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
)

// ParsePriority parses a priority string, defaulting to medium
func ParsePriority(value string) Priority {
	switch value {
	case "high":
		return PriorityHigh
	case "low":
		return PriorityLow
	default:
		return PriorityMedium
	}
}

// String ...
func (priority Priority) String() string {
	switch priority {
	case PriorityHigh:
		return "high"
	case PriorityLow:
		return "low"
	default:
		return "medium"
	}
}

// ResponseSource tells where a response payload came from
type ResponseSource string

const (
	ResponseSourceCache    ResponseSource = "cache"
	ResponseSourceNetwork  ResponseSource = "network"
	ResponseSourceFallback ResponseSource = "fallback"
)

// Request is an outbound GET-equivalent resource request intercepted
// by the engine
type Request struct {
	URL    string
	Method string
	Kind   ResourceKind
}

// Response is a well-formed resolution result. A strategy never propagates
// a raw transport error; failures surface as fallback responses instead.
type Response struct {
	URL         string
	Source      ResponseSource
	ContentType string
	Payload     []byte
	StoredAt    time.Time
	Stale       bool
}

// Resource is a payload fetched from the network
type Resource struct {
	URL         string
	ContentType string
	Payload     []byte
	TotalSize   int64 // full resource size if known (from a range response), -1 otherwise
}
