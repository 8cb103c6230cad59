// Package events provides the in-process audit event bus. Every decision the
// pipeline takes about a signal is published here so operators can reconstruct
// why a signal ended in its terminal state.
package events

import (
	"sync"
	"time"
)

// EventType represents different types of audit events in the system
type EventType string

const (
	EventSignalAdmitted     EventType = "SIGNAL_ADMITTED"
	EventSignalRejected     EventType = "SIGNAL_REJECTED"
	EventPoolSelected       EventType = "POOL_SELECTED"
	EventNoEligiblePool     EventType = "NO_ELIGIBLE_POOL"
	EventExecutionConfirmed EventType = "EXECUTION_CONFIRMED"
	EventExecutionTimedOut  EventType = "EXECUTION_TIMED_OUT"
	EventVenueFailed        EventType = "VENUE_FAILED"
	EventLimitViolation     EventType = "LIMIT_VIOLATION"
	EventBackpressureDrop   EventType = "BACKPRESSURE_DROP"
	EventEmergencyStopSet   EventType = "EMERGENCY_STOP_ENGAGED"
	EventEmergencyStopClear EventType = "EMERGENCY_STOP_CLEARED"
)

// Event represents a single audit record
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscriber is a function that handles events
type Subscriber func(Event)

// Bus manages event publishing and subscriptions. Subscribers run in their
// own goroutines so a slow consumer never stalls the trading pipeline.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber
}

// NewBus creates a new audit event bus
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[EventType][]Subscriber),
		allSubs:     make([]Subscriber, 0),
	}
}

// Subscribe registers a subscriber for a specific event type
func (b *Bus) Subscribe(eventType EventType, subscriber Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.subscribers[eventType] = append(b.subscribers[eventType], subscriber)
}

// SubscribeAll registers a subscriber for all events
func (b *Bus) SubscribeAll(subscriber Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.allSubs = append(b.allSubs, subscriber)
}

// Publish sends an event to all subscribers
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	if subs, ok := b.subscribers[event.Type]; ok {
		for _, sub := range subs {
			go sub(event)
		}
	}

	for _, sub := range b.allSubs {
		go sub(event)
	}
}

// PublishSignalAdmitted records a signal passing the admission gate
func (b *Bus) PublishSignalAdmitted(signalID, strategy string, confidence, notional float64) {
	b.Publish(Event{
		Type: EventSignalAdmitted,
		Data: map[string]interface{}{
			"signal_id":  signalID,
			"strategy":   strategy,
			"confidence": confidence,
			"notional":   notional,
		},
	})
}

// PublishSignalRejected records an admission rejection with its reason
func (b *Bus) PublishSignalRejected(signalID, reason string) {
	b.Publish(Event{
		Type: EventSignalRejected,
		Data: map[string]interface{}{
			"signal_id": signalID,
			"reason":    reason,
		},
	})
}

// PublishPoolSelected records the routing decision for an admitted signal
func (b *Bus) PublishPoolSelected(signalID, poolID, reason string) {
	b.Publish(Event{
		Type: EventPoolSelected,
		Data: map[string]interface{}{
			"signal_id": signalID,
			"pool_id":   poolID,
			"reason":    reason,
		},
	})
}

// PublishNoEligiblePool records a signal no pool could take
func (b *Bus) PublishNoEligiblePool(signalID, strategy string, notional float64) {
	b.Publish(Event{
		Type: EventNoEligiblePool,
		Data: map[string]interface{}{
			"signal_id": signalID,
			"strategy":  strategy,
			"notional":  notional,
		},
	})
}

// PublishExecutionConfirmed records a confirmed fill
func (b *Bus) PublishExecutionConfirmed(signalID, poolID, transactionID string, executedPrice, fees float64, latencyMs int64) {
	b.Publish(Event{
		Type: EventExecutionConfirmed,
		Data: map[string]interface{}{
			"signal_id":      signalID,
			"pool_id":        poolID,
			"transaction_id": transactionID,
			"executed_price": executedPrice,
			"fees":           fees,
			"latency_ms":     latencyMs,
		},
	})
}

// PublishExecutionTimedOut records a signal whose venue call outlived the
// latency budget; the underlying submission was not cancelled
func (b *Bus) PublishExecutionTimedOut(signalID, poolID string, budgetMs int64) {
	b.Publish(Event{
		Type: EventExecutionTimedOut,
		Data: map[string]interface{}{
			"signal_id": signalID,
			"pool_id":   poolID,
			"budget_ms": budgetMs,
		},
	})
}

// PublishVenueFailed records a definitive venue rejection
func (b *Bus) PublishVenueFailed(signalID, poolID, reason string) {
	b.Publish(Event{
		Type: EventVenueFailed,
		Data: map[string]interface{}{
			"signal_id": signalID,
			"pool_id":   poolID,
			"reason":    reason,
		},
	})
}

// PublishLimitViolation records a commit-time re-check failure
func (b *Bus) PublishLimitViolation(signalID, poolID, rule string) {
	b.Publish(Event{
		Type: EventLimitViolation,
		Data: map[string]interface{}{
			"signal_id": signalID,
			"pool_id":   poolID,
			"rule":      rule,
		},
	})
}

// PublishBackpressureDrop records a signal dropped because the intake queue
// stayed full past the bounded wait
func (b *Bus) PublishBackpressureDrop(signalID string, queueDepth int) {
	b.Publish(Event{
		Type: EventBackpressureDrop,
		Data: map[string]interface{}{
			"signal_id":   signalID,
			"queue_depth": queueDepth,
		},
	})
}

// PublishEmergencyStop records an emergency stop transition
func (b *Bus) PublishEmergencyStop(engaged bool, reason string) {
	t := EventEmergencyStopSet
	if !engaged {
		t = EventEmergencyStopClear
	}
	b.Publish(Event{
		Type: t,
		Data: map[string]interface{}{
			"reason": reason,
		},
	})
}
