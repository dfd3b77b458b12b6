package events

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fairfound/agentcore/internal/domain"
	"github.com/fairfound/agentcore/logging"
)

// Default capacity limits for a Bus.
const (
	// DefaultMaxHistory bounds the retained event history.
	DefaultMaxHistory = 1000

	// DefaultQueueSize bounds the asynchronous publish queue.
	DefaultQueueSize = 256

	// defaultHistoryLimit is applied when a history query passes a
	// non-positive limit.
	defaultHistoryLimit = 100
)

// Subscription is the handle returned by Subscribe. It identifies one
// handler registration and is passed to Unsubscribe for removal.
// Handlers are function values and not comparable in Go, so removal is
// by handle rather than by handler identity.
type Subscription struct {
	eventType string
	handler   Handler
	predicate Predicate
	priority  Priority
	once      bool

	// seq preserves subscription order for stable priority sorting.
	seq uint64

	// fired guards one-shot subscriptions against double invocation
	// when publishes race.
	fired atomic.Bool
}

// matchesType reports whether the subscription's type matches the event.
func (s *Subscription) matchesType(e Event) bool {
	return s.eventType == WildcardType || s.eventType == e.Type
}

// SubscribeOption customizes a subscription.
type SubscribeOption func(*Subscription)

// WithPredicate filters delivered events; only events for which the
// predicate returns true invoke the handler.
func WithPredicate(p Predicate) SubscribeOption {
	return func(s *Subscription) { s.predicate = p }
}

// WithPriority sets the dispatch priority. Higher priorities are invoked
// first; equal priorities preserve subscription order.
func WithPriority(p Priority) SubscribeOption {
	return func(s *Subscription) { s.priority = p }
}

// WithOnce removes the subscription after its first matching invocation.
func WithOnce() SubscribeOption {
	return func(s *Subscription) { s.once = true }
}

// BusOption customizes a Bus at construction time.
type BusOption func(*Bus)

// WithMaxHistory bounds the retained event history.
func WithMaxHistory(n int) BusOption {
	return func(b *Bus) {
		if n > 0 {
			b.maxHistory = n
		}
	}
}

// WithQueueSize bounds the asynchronous publish queue.
func WithQueueSize(n int) BusOption {
	return func(b *Bus) {
		if n > 0 {
			b.queueSize = n
		}
	}
}

// WithLogger sets the logger used for handler failures.
func WithLogger(l logging.Logger) BusOption {
	return func(b *Bus) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithPersistFunc installs a persistence hook invoked for every published
// event, after history recording and before handler dispatch. The bus
// functions correctly without one.
func WithPersistFunc(fn func(Event)) BusOption {
	return func(b *Bus) { b.persist = fn }
}

// Bus is a thread-safe publish/subscribe event bus with bounded history.
// Construct one per pipeline deployment and pass it by reference; there
// is deliberately no process-wide instance.
type Bus struct {
	// mu guards subscriptions, history, and the sequence counter.
	// Handler invocation happens outside the lock so a handler may
	// re-enter the bus without deadlocking.
	mu         sync.Mutex
	subs       map[string][]*Subscription
	history    []Event
	maxHistory int
	seq        uint64

	logger  logging.Logger
	persist func(Event)

	// Async publishing: a bounded queue drained by exactly one worker.
	// qmu guards queue and closed, serializing lazy worker startup and
	// enqueue against Close so the channel is never created after close
	// nor written after it is closed.
	qmu        sync.RWMutex
	queue      chan Event
	queueSize  int
	workerDone chan struct{}
	closed     bool
}

// NewBus creates an event bus with bounded history and async queue.
func NewBus(opts ...BusOption) *Bus {
	b := &Bus{
		subs:       make(map[string][]*Subscription),
		maxHistory: DefaultMaxHistory,
		queueSize:  DefaultQueueSize,
		logger:     logging.NoOp{},
		workerDone: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.history = make([]Event, 0, b.maxHistory)
	return b
}

// Subscribe registers a handler for an event type. eventType may be the
// wildcard "*" to match every published event. The returned handle is
// used with Unsubscribe.
func (b *Bus) Subscribe(eventType string, handler Handler, opts ...SubscribeOption) *Subscription {
	sub := &Subscription{
		eventType: eventType,
		handler:   handler,
		priority:  PriorityNormal,
	}
	for _, opt := range opts {
		opt(sub)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	sub.seq = b.seq
	b.subs[eventType] = append(b.subs[eventType], sub)
	return sub
}

// Unsubscribe removes a subscription. Removing an already-removed
// subscription is a no-op.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.removeLocked(sub)
}

// removeLocked deletes sub from its type's subscription list.
// Must be called with mu held.
func (b *Bus) removeLocked(sub *Subscription) {
	list := b.subs[sub.eventType]
	for i, s := range list {
		if s == sub {
			b.subs[sub.eventType] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

// Publish delivers an event synchronously to every matching subscription,
// highest priority first, preserving subscription order among equals.
// The event is recorded in history before dispatch. A handler panic is
// recovered, logged, and never stops later handlers or the publisher.
func (b *Bus) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.Lock()
	b.history = append(b.history, event)
	if overflow := len(b.history) - b.maxHistory; overflow > 0 {
		b.history = append(b.history[:0], b.history[overflow:]...)
	}

	matching := make([]*Subscription, 0, len(b.subs[event.Type])+len(b.subs[WildcardType]))
	for _, sub := range b.subs[event.Type] {
		matching = append(matching, sub)
	}
	if event.Type != WildcardType {
		for _, sub := range b.subs[WildcardType] {
			matching = append(matching, sub)
		}
	}
	sort.SliceStable(matching, func(i, j int) bool {
		if matching[i].priority != matching[j].priority {
			return matching[i].priority > matching[j].priority
		}
		return matching[i].seq < matching[j].seq
	})
	b.mu.Unlock()

	if b.persist != nil {
		b.persist(event)
	}

	// Dispatch outside the lock so handlers may re-enter the bus.
	var fired []*Subscription
	for _, sub := range matching {
		if sub.predicate != nil && !sub.predicate(event) {
			continue
		}
		if sub.once {
			if !sub.fired.CompareAndSwap(false, true) {
				continue
			}
			fired = append(fired, sub)
		}
		b.invoke(sub, event)
	}

	// One-shot subscriptions are removed after the full dispatch pass,
	// never mid-iteration.
	if len(fired) > 0 {
		b.mu.Lock()
		for _, sub := range fired {
			b.removeLocked(sub)
		}
		b.mu.Unlock()
	}
}

// invoke runs one handler, isolating panics from the publisher and from
// the remaining handlers.
func (b *Bus) invoke(sub *Subscription, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				"event_type", event.Type, "agent_id", event.AgentID, "panic", r)
		}
	}()
	sub.handler(event)
}

// PublishAsync enqueues an event for delivery by the bus's single
// background worker. Enqueueing blocks when the bounded queue is full,
// providing backpressure. Returns domain.ErrBusClosed after Close.
func (b *Bus) PublishAsync(event Event) error {
	b.ensureWorker()

	b.qmu.RLock()
	defer b.qmu.RUnlock()
	if b.closed {
		return domain.ErrBusClosed
	}
	b.queue <- event
	return nil
}

// ensureWorker lazily creates the queue and starts the drain worker on
// the first async publish. Creation happens under the write lock, and a
// closed bus never starts a worker.
func (b *Bus) ensureWorker() {
	b.qmu.Lock()
	defer b.qmu.Unlock()

	if b.closed || b.queue != nil {
		return
	}
	b.queue = make(chan Event, b.queueSize)
	go b.drain()
}

// drain is the single consumer of the async queue. It preserves the
// enqueue order across all async publishers.
func (b *Bus) drain() {
	defer close(b.workerDone)
	for event := range b.queue {
		b.Publish(event)
	}
}

// Close stops accepting async publishes, drains the queue, and waits for
// the worker to finish. Synchronous Publish remains usable after Close.
// Close is idempotent.
func (b *Bus) Close() {
	b.qmu.Lock()
	if b.closed {
		b.qmu.Unlock()
		return
	}
	b.closed = true
	started := b.queue != nil
	if started {
		close(b.queue)
	}
	b.qmu.Unlock()

	if started {
		<-b.workerDone
	}
}

// HistoryFilter selects events from the bus history. Zero-valued fields
// match everything; Limit defaults to 100 when non-positive.
type HistoryFilter struct {
	Type    string
	AgentID string
	JobID   string
	Limit   int
}

// History returns the most recent events matching the filter, oldest
// first, capped at the filter's limit.
func (b *Bus) History(filter HistoryFilter) []Event {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	b.mu.Lock()
	snapshot := make([]Event, len(b.history))
	copy(snapshot, b.history)
	b.mu.Unlock()

	matched := snapshot[:0]
	for _, e := range snapshot {
		if filter.Type != "" && e.Type != filter.Type {
			continue
		}
		if filter.AgentID != "" && e.AgentID != filter.AgentID {
			continue
		}
		if filter.JobID != "" && e.JobID != filter.JobID {
			continue
		}
		matched = append(matched, e)
	}

	if len(matched) > limit {
		matched = matched[len(matched)-limit:]
	}
	result := make([]Event, len(matched))
	copy(result, matched)
	return result
}

// Stats summarizes the bus state for introspection.
type Stats struct {
	// TotalEvents is the number of events currently retained in history.
	TotalEvents int `json:"total_events"`

	// SubscriptionCount is the number of active subscriptions.
	SubscriptionCount int `json:"subscription_count"`

	// EventTypes counts retained events per type.
	EventTypes map[string]int `json:"event_types"`
}

// Stats returns a snapshot of bus activity.
func (b *Bus) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	counts := make(map[string]int, len(b.history))
	for _, e := range b.history {
		counts[e.Type]++
	}
	subCount := 0
	for _, list := range b.subs {
		subCount += len(list)
	}
	return Stats{
		TotalEvents:       len(b.history),
		SubscriptionCount: subCount,
		EventTypes:        counts,
	}
}
