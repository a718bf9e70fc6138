package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rescale/rescale-foldernav/internal/constants"
)

// EventType defines the types of events that can be emitted
type EventType string

const (
	EventLog EventType = "log"

	// Tree cache events
	EventNodeLoaded     EventType = "node_loaded"      // Folder listing merged into the cache
	EventNodeLoadFailed EventType = "node_load_failed" // Folder fetch failed, cache untouched
	EventNodeRemoved    EventType = "node_removed"     // Node and its cached descendants evicted

	// Navigation and mutation events
	EventMutationFailed   EventType = "mutation_failed"   // Create/rename/delete rejected by the service
	EventSelectionChanged EventType = "selection_changed" // Selected node changed

	// Configuration change events
	EventConfigChanged EventType = "config_changed" // Backend or credentials changed, caches should be dropped
)

// LogLevel defines log severity levels
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

func (l LogLevel) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Event is the base interface for all events
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// BaseEvent provides common event fields
type BaseEvent struct {
	EventType EventType
	Time      time.Time
}

func (e BaseEvent) Type() EventType      { return e.EventType }
func (e BaseEvent) Timestamp() time.Time { return e.Time }

// LogEvent represents log messages
type LogEvent struct {
	BaseEvent
	Level     LogLevel
	Message   string
	Component string
}

// NodeEvent reports a change to one cached node.
type NodeEvent struct {
	BaseEvent
	NodeID     string
	ChildCount int           // node_loaded only
	Elapsed    time.Duration // node_loaded and node_load_failed
	Removed    []string      // node_removed: the node and every evicted descendant
	Error      error
}

// MutationEvent reports a failed create, rename or delete.
type MutationEvent struct {
	BaseEvent
	Op     string // "create", "rename", "delete"
	NodeID string
	Error  error
}

// SelectionEvent is published after the selection moves.
type SelectionEvent struct {
	BaseEvent
	NodeID string
	Path   string // display breadcrumb, "Root > Reports"
}

// ConfigChangedEvent represents configuration changes.
// Subscribers should drop cached trees and reconnect.
type ConfigChangedEvent struct {
	BaseEvent
	Source  string // "file", "flag", "env"
	Backend string
}

// EventBus manages event subscriptions and publishing
type EventBus struct {
	subscribers   map[EventType][]chan Event
	all           []chan Event // Subscribers to all events
	mu            sync.RWMutex
	bufferSize    int
	closed        bool
	droppedEvents atomic.Int64 // Count of dropped events due to full buffers
}

// NewEventBus creates a new event bus with specified buffer size
func NewEventBus(bufferSize int) *EventBus {
	if bufferSize <= 0 {
		bufferSize = constants.EventBusDefaultBuffer
	}
	if bufferSize > constants.EventBusMaxBuffer {
		bufferSize = constants.EventBusMaxBuffer
	}
	return &EventBus{
		subscribers: make(map[EventType][]chan Event),
		all:         make([]chan Event, 0),
		bufferSize:  bufferSize,
	}
}

// Subscribe creates a subscription to a specific event type
func (eb *EventBus) Subscribe(eventType EventType) <-chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	ch := make(chan Event, eb.bufferSize)
	eb.subscribers[eventType] = append(eb.subscribers[eventType], ch)
	return ch
}

// SubscribeAll creates a subscription to all events
func (eb *EventBus) SubscribeAll() <-chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	ch := make(chan Event, eb.bufferSize)
	eb.all = append(eb.all, ch)
	return ch
}

// Publish sends an event to all subscribers without blocking. Events for
// a full subscriber are dropped and counted. A nil bus is a no-op so
// components can be built without one.
func (eb *EventBus) Publish(event Event) {
	if eb == nil {
		return
	}

	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if eb.closed {
		return
	}

	for _, ch := range eb.subscribers[event.Type()] {
		select {
		case ch <- event:
		default:
			eb.droppedEvents.Add(1)
		}
	}

	for _, ch := range eb.all {
		select {
		case ch <- event:
		default:
			eb.droppedEvents.Add(1)
		}
	}
}

// Close shuts down the event bus and closes all channels
func (eb *EventBus) Close() {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}

	eb.closed = true

	for _, channels := range eb.subscribers {
		for _, ch := range channels {
			close(ch)
		}
	}

	for _, ch := range eb.all {
		close(ch)
	}
}

// PublishLog is a convenience method for publishing log events
func (eb *EventBus) PublishLog(level LogLevel, message, component string) {
	eb.Publish(&LogEvent{
		BaseEvent: BaseEvent{EventType: EventLog, Time: time.Now()},
		Level:     level,
		Message:   message,
		Component: component,
	})
}

// PublishNodeLoaded announces a merged folder listing.
func (eb *EventBus) PublishNodeLoaded(nodeID string, childCount int, elapsed time.Duration) {
	eb.Publish(&NodeEvent{
		BaseEvent:  BaseEvent{EventType: EventNodeLoaded, Time: time.Now()},
		NodeID:     nodeID,
		ChildCount: childCount,
		Elapsed:    elapsed,
	})
}

// PublishNodeLoadFailed announces a failed folder fetch.
func (eb *EventBus) PublishNodeLoadFailed(nodeID string, elapsed time.Duration, err error) {
	eb.Publish(&NodeEvent{
		BaseEvent: BaseEvent{EventType: EventNodeLoadFailed, Time: time.Now()},
		NodeID:    nodeID,
		Elapsed:   elapsed,
		Error:     err,
	})
}

// PublishNodeRemoved announces an eviction after a successful delete.
func (eb *EventBus) PublishNodeRemoved(nodeID string, removed []string) {
	eb.Publish(&NodeEvent{
		BaseEvent: BaseEvent{EventType: EventNodeRemoved, Time: time.Now()},
		NodeID:    nodeID,
		Removed:   removed,
	})
}

// PublishMutationFailed announces a rejected mutation.
func (eb *EventBus) PublishMutationFailed(op, nodeID string, err error) {
	eb.Publish(&MutationEvent{
		BaseEvent: BaseEvent{EventType: EventMutationFailed, Time: time.Now()},
		Op:        op,
		NodeID:    nodeID,
		Error:     err,
	})
}

// PublishSelectionChanged announces a new selection.
func (eb *EventBus) PublishSelectionChanged(nodeID, path string) {
	eb.Publish(&SelectionEvent{
		BaseEvent: BaseEvent{EventType: EventSelectionChanged, Time: time.Now()},
		NodeID:    nodeID,
		Path:      path,
	})
}

// Unsubscribe removes a subscription channel from a specific event type
// This prevents memory leaks from abandoned subscriptions
func (eb *EventBus) Unsubscribe(eventType EventType, ch <-chan Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}

	subscribers := eb.subscribers[eventType]
	for i, subCh := range subscribers {
		if subCh == ch {
			subscribers[i] = subscribers[len(subscribers)-1]
			eb.subscribers[eventType] = subscribers[:len(subscribers)-1]
			break
		}
	}
}

// UnsubscribeAll removes a subscription channel from all event types
// Use this when cleaning up a subscriber that subscribed to multiple event types
func (eb *EventBus) UnsubscribeAll(ch <-chan Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}

	for eventType, subscribers := range eb.subscribers {
		for i, subCh := range subscribers {
			if subCh == ch {
				subscribers[i] = subscribers[len(subscribers)-1]
				eb.subscribers[eventType] = subscribers[:len(subscribers)-1]
				break
			}
		}
	}

	for i, subCh := range eb.all {
		if subCh == ch {
			eb.all[i] = eb.all[len(eb.all)-1]
			eb.all = eb.all[:len(eb.all)-1]
			break
		}
	}
}

// GetDroppedEventCount returns the total number of events dropped due to full buffers
func (eb *EventBus) GetDroppedEventCount() int64 {
	return eb.droppedEvents.Load()
}

// ResetDroppedEventCount resets the dropped event counter to zero
func (eb *EventBus) ResetDroppedEventCount() int64 {
	return eb.droppedEvents.Swap(0)
}
