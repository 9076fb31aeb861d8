package trainer

import (
	"sync"
	"time"

	"github.com/park285/Cheese-Endgame-Trainer/internal/eval"
)

type EventType string

const (
	EventMoveApplied        EventType = "move-applied"
	EventEvaluationResolved EventType = "evaluation-resolved"
	EventMistakeDetected    EventType = "mistake-detected"
	EventSessionReset       EventType = "session-reset"
	EventSessionCompleted   EventType = "session-completed"
)

// Event is the outbound notification for UI and telemetry consumers. Only
// the fields matching the Type are set.
type Event struct {
	Type       EventType        `json:"type"`
	SessionID  string           `json:"session_id"`
	At         time.Time        `json:"at"`
	FEN        string           `json:"fen,omitempty"`
	Move       *ValidatedMove   `json:"move,omitempty"`
	Evaluation *eval.Evaluation `json:"evaluation,omitempty"`
	Annotation string           `json:"annotation,omitempty"`
	Mistake    *MistakeRecord   `json:"mistake,omitempty"`
	Success    bool             `json:"success,omitempty"`
}

// EventBus fans events out to subscribers. Handlers are copied before
// invocation so a handler may subscribe or unsubscribe from inside itself.
type EventBus struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[int]func(Event)
}

func NewEventBus() *EventBus {
	return &EventBus{handlers: make(map[int]func(Event))}
}

// Subscribe registers a handler and returns its unsubscribe func.
func (b *EventBus) Subscribe(fn func(Event)) func() {
	if fn == nil {
		return func() {}
	}
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.handlers[id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.handlers, id)
		b.mu.Unlock()
	}
}

func (b *EventBus) Publish(ev Event) {
	b.mu.RLock()
	fns := make([]func(Event), 0, len(b.handlers))
	for _, fn := range b.handlers {
		fns = append(fns, fn)
	}
	b.mu.RUnlock()

	for _, fn := range fns {
		fn(ev)
	}
}
