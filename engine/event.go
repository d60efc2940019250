package engine

import (
	"sync"
	"time"

	"github.com/seetharamtessell/opsexec/logger"
)

// EventType classifies engine events.
type EventType string

const (
	EventStarted      EventType = "started"
	EventStdout       EventType = "stdout"
	EventStderr       EventType = "stderr"
	EventCompleted    EventType = "completed"
	EventFailed       EventType = "failed"
	EventCancelled    EventType = "cancelled"
	EventPlanProgress EventType = "plan_progress"
)

// Event is one observation from a live execution: lifecycle changes,
// output lines as they arrive, and plan progress. Terminal events carry
// the full Result; timeouts surface as failed events whose Result holds
// StatusTimeout.
type Event struct {
	Type        EventType `json:"type"`
	ExecutionID string    `json:"execution_id,omitempty"`
	PlanID      string    `json:"plan_id,omitempty"`
	Line        string    `json:"line,omitempty"`
	Result      *Result   `json:"result,omitempty"`
	Error       string    `json:"error,omitempty"`
	Completed   int       `json:"completed,omitempty"`
	Total       int       `json:"total,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Observer receives engine events. OnEvent is called synchronously from
// engine goroutines and must not block; observers that fan out (the
// websocket bridge) buffer internally.
type Observer interface {
	OnEvent(Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(Event)

func (f ObserverFunc) OnEvent(e Event) { f(e) }

// Notifier fans engine events out to registered observers. A panicking
// observer is logged and skipped; it never takes down the runner.
type Notifier struct {
	mu        sync.RWMutex
	nextID    int
	observers map[int]Observer
}

// NewNotifier returns an empty notifier.
func NewNotifier() *Notifier {
	return &Notifier{observers: make(map[int]Observer)}
}

// Register adds an observer and returns a token for Unregister.
func (n *Notifier) Register(o Observer) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.nextID++
	n.observers[n.nextID] = o
	return n.nextID
}

// Unregister removes the observer registered under the token.
func (n *Notifier) Unregister(token int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.observers, token)
}

// Notify delivers the event to all observers. Events about one
// execution arrive in emission order because the runner calls Notify
// from a single goroutine per stream.
func (n *Notifier) Notify(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	n.mu.RLock()
	observers := make([]Observer, 0, len(n.observers))
	for _, o := range n.observers {
		observers = append(observers, o)
	}
	n.mu.RUnlock()

	for _, o := range observers {
		n.deliver(o, e)
	}
}

func (n *Notifier) deliver(o Observer, e Event) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorw("Event observer panicked",
				"event_type", e.Type,
				"execution_id", e.ExecutionID,
				"panic", r)
		}
	}()
	o.OnEvent(e)
}
