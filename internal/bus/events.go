package bus

import (
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Well-known event types.
const (
	EventFormatterResponse = "formatter.response" // payload: response (domain.Response), adapter (optional)
	EventSlackAttachment   = "slack.attachment"   // payload: envelope, attachments
	EventMessengerMessage  = "fb.message"         // payload: envelope, message
)

const defaultHistory = 1000

// Event is a named occurrence carried between the formatter, the router and
// the delivery channels.
type Event struct {
	Type      string         `json:"type"`
	Source    string         `json:"source"`
	Payload   map[string]any `json:"payload"`
	Timestamp time.Time      `json:"timestamp"`
}

type EventHandler func(Event)

type subscription struct {
	id      string
	pattern string
	fn      EventHandler
}

// matches reports whether pattern selects eventType. Patterns are an exact
// type, "*" for everything, or "prefix.*" for a namespace.
func matches(pattern, eventType string) bool {
	switch {
	case pattern == "*":
		return true
	case strings.HasSuffix(pattern, ".*"):
		return strings.HasPrefix(eventType, pattern[:len(pattern)-1])
	default:
		return pattern == eventType
	}
}

// rank orders delivery: exact subscribers first, then namespaces, then "*".
func rank(pattern string) int {
	switch {
	case pattern == "*":
		return 2
	case strings.HasSuffix(pattern, ".*"):
		return 1
	default:
		return 0
	}
}

// EventBus is a synchronous topic pub/sub with a bounded replay history.
type EventBus struct {
	logger *slog.Logger

	mu   sync.RWMutex
	subs []subscription
	seq  uint64

	ring  []Event // replay buffer, oldest at head once full
	head  int
	count int
}

// NewEventBus keeps the last 1000 events for replay.
func NewEventBus(logger *slog.Logger) *EventBus {
	return NewEventBusWithHistory(logger, defaultHistory)
}

// NewEventBusWithHistory keeps the last maxHistory events; maxHistory <= 0
// disables history.
func NewEventBusWithHistory(logger *slog.Logger, maxHistory int) *EventBus {
	if logger == nil {
		logger = slog.Default()
	}
	eb := &EventBus{logger: logger}
	if maxHistory > 0 {
		eb.ring = make([]Event, maxHistory)
	}
	return eb
}

// On subscribes handler to pattern and returns an ID for Off.
func (eb *EventBus) On(pattern string, handler EventHandler) string {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.seq++
	id := pattern + "#" + strconv.FormatUint(eb.seq, 10)
	eb.subs = append(eb.subs, subscription{id: id, pattern: pattern, fn: handler})
	return id
}

// Off removes the subscription with handlerID. Unknown IDs are ignored.
func (eb *EventBus) Off(pattern, handlerID string) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	for i, s := range eb.subs {
		if s.id == handlerID && s.pattern == pattern {
			eb.subs = append(eb.subs[:i:i], eb.subs[i+1:]...)
			return
		}
	}
}

// Emit records event and calls every matching handler on the caller's
// goroutine. Handlers may emit in turn. A panicking handler is logged and
// the rest still run.
func (eb *EventBus) Emit(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	eb.mu.Lock()
	eb.record(event)
	var targets [3][]subscription
	for _, s := range eb.subs {
		if matches(s.pattern, event.Type) {
			r := rank(s.pattern)
			targets[r] = append(targets[r], s)
		}
	}
	eb.mu.Unlock()

	for _, group := range targets {
		for _, s := range group {
			eb.call(s, event)
		}
	}
}

func (eb *EventBus) call(s subscription, event Event) {
	defer func() {
		if r := recover(); r != nil {
			eb.logger.Error("event handler panic", "event", event.Type, "handler", s.id, "panic", r)
		}
	}()
	s.fn(event)
}

// record appends to the ring; callers hold mu.
func (eb *EventBus) record(event Event) {
	size := len(eb.ring)
	if size == 0 {
		return
	}
	if eb.count < size {
		eb.ring[(eb.head+eb.count)%size] = event
		eb.count++
		return
	}
	eb.ring[eb.head] = event
	eb.head = (eb.head + 1) % size
}

// Replay returns recorded events matching pattern with a timestamp at or
// after since, oldest first.
func (eb *EventBus) Replay(pattern string, since time.Time) []Event {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	var out []Event
	for i := 0; i < eb.count; i++ {
		e := eb.ring[(eb.head+i)%len(eb.ring)]
		if e.Timestamp.Before(since) || !matches(pattern, e.Type) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// HistoryLen returns the number of recorded events.
func (eb *EventBus) HistoryLen() int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	return eb.count
}
