package engine

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	log "github.com/sirupsen/logrus"

	"github.com/streamtv/cachepool/commons"
)

// PrefetchTrigger is the UI signal that produced a prefetch candidate
type PrefetchTrigger string

const (
	PrefetchTriggerHover     PrefetchTrigger = "hover"
	PrefetchTriggerFocus     PrefetchTrigger = "focus"
	PrefetchTriggerVisible   PrefetchTrigger = "visible"
	PrefetchTriggerPredicted PrefetchTrigger = "predicted"
)

// PrefetchCandidate is a speculative fetch candidate
type PrefetchCandidate struct {
	ResourceRef string
	Kind        ResourceKind
	Priority    Priority
	Trigger     PrefetchTrigger
	QueuedAt    time.Time
}

// PrefetchStats is a snapshot of scheduler state
type PrefetchStats struct {
	Queued   int `json:"queued"`
	InFlight int `json:"in_flight"`
}

// PrefetchScheduler keeps a bounded priority queue of speculative fetch
// candidates and drains it opportunistically while the number of in-flight
// prefetches stays below the network-monitor-supplied concurrency ceiling.
type PrefetchScheduler struct {
	classifier *Classifier
	executor   *StrategyExecutor
	monitor    *NetworkMonitor
	maxQueue   int

	queues     map[Priority][]*PrefetchCandidate
	pending    map[string]bool // queued or in-flight, keyed by resource ref
	prefetched *gocache.Cache  // recently prefetched resources
	inFlight   int
	closed     bool
	mutex      sync.Mutex

	waitGroup sync.WaitGroup
}

// NewPrefetchScheduler creates a new PrefetchScheduler
func NewPrefetchScheduler(classifier *Classifier, executor *StrategyExecutor, monitor *NetworkMonitor, maxQueue int) *PrefetchScheduler {
	scheduler := &PrefetchScheduler{
		classifier: classifier,
		executor:   executor,
		monitor:    monitor,
		maxQueue:   maxQueue,

		queues: map[Priority][]*PrefetchCandidate{
			PriorityHigh:   {},
			PriorityMedium: {},
			PriorityLow:    {},
		},
		pending:    map[string]bool{},
		prefetched: gocache.New(commons.PrefetchedMarkTimeoutDefault, commons.PrefetchedMarkCleanupDefault),
	}

	// drain again when the ceiling rises
	monitor.Subscribe(func(condition NetworkCondition) {
		go scheduler.dispatch()
	})

	return scheduler
}

// Release stops the scheduler and waits for in-flight prefetches
func (scheduler *PrefetchScheduler) Release() {
	scheduler.mutex.Lock()
	scheduler.closed = true
	scheduler.queues = map[Priority][]*PrefetchCandidate{
		PriorityHigh:   {},
		PriorityMedium: {},
		PriorityLow:    {},
	}
	scheduler.pending = map[string]bool{}
	scheduler.mutex.Unlock()

	scheduler.waitGroup.Wait()
}

// Enqueue adds a speculative fetch candidate. Duplicates of queued,
// in-flight, or recently prefetched resources are silently ignored.
func (scheduler *PrefetchScheduler) Enqueue(resourceRef string, kind ResourceKind, priority Priority, trigger PrefetchTrigger) {
	logger := log.WithFields(log.Fields{
		"package":  "engine",
		"struct":   "PrefetchScheduler",
		"function": "Enqueue",
	})

	scheduler.mutex.Lock()

	if scheduler.closed {
		scheduler.mutex.Unlock()
		return
	}

	if scheduler.pending[resourceRef] {
		scheduler.mutex.Unlock()
		return
	}

	if _, found := scheduler.prefetched.Get(resourceRef); found {
		scheduler.mutex.Unlock()
		return
	}

	if scheduler.queuedCount() >= scheduler.maxQueue {
		if !scheduler.dropLeastImportant(priority) {
			// the new candidate is the least important one
			promCounterForPrefetchDropped.Inc()
			scheduler.mutex.Unlock()
			return
		}
	}

	candidate := &PrefetchCandidate{
		ResourceRef: resourceRef,
		Kind:        kind,
		Priority:    priority,
		Trigger:     trigger,
		QueuedAt:    time.Now(),
	}

	scheduler.queues[priority] = append(scheduler.queues[priority], candidate)
	scheduler.pending[resourceRef] = true
	scheduler.mutex.Unlock()

	logger.Debugf("Queued prefetch candidate %q, priority %s, trigger %s", resourceRef, priority, trigger)

	go scheduler.dispatch()
}

// queuedCount must be called with the mutex held
func (scheduler *PrefetchScheduler) queuedCount() int {
	return len(scheduler.queues[PriorityHigh]) + len(scheduler.queues[PriorityMedium]) + len(scheduler.queues[PriorityLow])
}

// dropLeastImportant removes the oldest candidate of the lowest non-empty
// priority, provided it ranks below the incoming priority. Returns false
// when the incoming candidate itself is the least important.
// Must be called with the mutex held.
func (scheduler *PrefetchScheduler) dropLeastImportant(incoming Priority) bool {
	for _, priority := range []Priority{PriorityLow, PriorityMedium, PriorityHigh} {
		queue := scheduler.queues[priority]
		if len(queue) == 0 {
			continue
		}

		if priority > incoming {
			return false
		}

		victim := queue[0]
		scheduler.queues[priority] = queue[1:]
		delete(scheduler.pending, victim.ResourceRef)
		promCounterForPrefetchDropped.Inc()
		return true
	}

	return false
}

// popNext must be called with the mutex held
func (scheduler *PrefetchScheduler) popNext() *PrefetchCandidate {
	for _, priority := range []Priority{PriorityHigh, PriorityMedium, PriorityLow} {
		queue := scheduler.queues[priority]
		if len(queue) > 0 {
			candidate := queue[0]
			scheduler.queues[priority] = queue[1:]
			return candidate
		}
	}
	return nil
}

// dispatch drains the queue while the in-flight count stays below the
// concurrency ceiling. Invoked on enqueue, on completion, and on network
// condition changes; there is no fixed timer.
func (scheduler *PrefetchScheduler) dispatch() {
	logger := log.WithFields(log.Fields{
		"package":  "engine",
		"struct":   "PrefetchScheduler",
		"function": "dispatch",
	})

	for {
		scheduler.mutex.Lock()

		if scheduler.closed {
			scheduler.mutex.Unlock()
			return
		}

		if scheduler.inFlight >= scheduler.monitor.GetConcurrencyCeiling() {
			scheduler.mutex.Unlock()
			return
		}

		candidate := scheduler.popNext()
		if candidate == nil {
			scheduler.mutex.Unlock()
			return
		}

		classification := scheduler.classifier.Classify(candidate.ResourceRef, candidate.Kind)

		if classification.Class == ResourceClassMedia && !scheduler.monitor.IsMediaPrefetchAllowed() {
			delete(scheduler.pending, candidate.ResourceRef)
			promCounterForPrefetchDropped.Inc()
			scheduler.mutex.Unlock()

			logger.Debugf("Dropping media prefetch candidate %q, media prefetch not permitted", candidate.ResourceRef)
			continue
		}

		scheduler.inFlight++
		promGaugeForPrefetchInFlight.Set(float64(scheduler.inFlight))
		scheduler.mutex.Unlock()

		scheduler.waitGroup.Add(1)
		go scheduler.run(candidate, classification)
	}
}

func (scheduler *PrefetchScheduler) run(candidate *PrefetchCandidate, classification Classification) {
	logger := log.WithFields(log.Fields{
		"package":  "engine",
		"struct":   "PrefetchScheduler",
		"function": "run",
	})

	defer func() {
		scheduler.mutex.Lock()
		scheduler.inFlight--
		promGaugeForPrefetchInFlight.Set(float64(scheduler.inFlight))
		delete(scheduler.pending, candidate.ResourceRef)
		scheduler.mutex.Unlock()

		scheduler.waitGroup.Done()

		// drain further candidates
		scheduler.dispatch()
	}()

	promCounterForPrefetchDispatched.Inc()

	response, err := scheduler.executor.Execute(context.Background(), classification.Strategy, classification.Class, candidate.ResourceRef)
	if err != nil {
		logger.WithError(err).Debugf("prefetch for %q failed", candidate.ResourceRef)
		return
	}

	if response.Source != ResponseSourceFallback {
		scheduler.prefetched.Set(candidate.ResourceRef, true, gocache.DefaultExpiration)
	}
}

// GetStats returns a snapshot of scheduler state
func (scheduler *PrefetchScheduler) GetStats() PrefetchStats {
	scheduler.mutex.Lock()
	defer scheduler.mutex.Unlock()

	return PrefetchStats{
		Queued:   scheduler.queuedCount(),
		InFlight: scheduler.inFlight,
	}
}
