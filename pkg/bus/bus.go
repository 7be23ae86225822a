// Package bus is the synchronous publish/subscribe channel that couples the
// pin state machine, the scheduler and any external observers.
//
// Publish invokes every current subscriber of a topic, in subscription order,
// before it returns. Handlers run on the publisher's goroutine with no bus
// lock held, so a handler may publish, subscribe or unsubscribe freely.
package bus

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Topic names an event stream.
type Topic string

const (
	TopicPinChange             Topic = "pin-change"
	TopicPWMChange             Topic = "pwm-change"
	TopicConsoleLog            Topic = "console-log"
	TopicEngineState           Topic = "engine-state"
	TopicComponentRegistered   Topic = "component-registered"
	TopicComponentUnregistered Topic = "component-unregistered"
	TopicGPIOReset             Topic = "gpio-reset"
	TopicEngineReset           Topic = "engine-reset"

	// TopicAll subscribes to every topic. Publishing to it is not allowed.
	TopicAll Topic = "*"
)

// DefaultHistory is the ring buffer capacity used when none is given.
const DefaultHistory = 512

// Event is one published message.
type Event struct {
	Topic     Topic     `json:"topic"`
	Payload   any       `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// Handler receives events. A panicking handler is recovered and logged.
type Handler func(Event)

type subscription struct {
	id      uint64
	topic   Topic
	handler Handler
	once    bool
}

// Bus is safe for concurrent use.
type Bus struct {
	mu     sync.Mutex
	subs   []*subscription
	nextID uint64

	// ring buffer
	history []Event
	start   int
	size    int

	log *slog.Logger
	now func() time.Time
}

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets the logger used for recovered handler panics.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bus) {
		if l != nil {
			b.log = l
		}
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(b *Bus) {
		if now != nil {
			b.now = now
		}
	}
}

// New creates a bus retaining at most capacity events in its history.
func New(capacity int, opts ...Option) *Bus {
	if capacity <= 0 {
		capacity = DefaultHistory
	}
	b := &Bus{
		history: make([]Event, capacity),
		log:     slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers handler for topic and returns a function that removes it.
// Calling the returned function more than once is harmless.
func (b *Bus) Subscribe(topic Topic, handler Handler) (unsubscribe func()) {
	return b.add(topic, handler, false)
}

// SubscribeOnce registers handler for the next event on topic only.
func (b *Bus) SubscribeOnce(topic Topic, handler Handler) (unsubscribe func()) {
	return b.add(topic, handler, true)
}

func (b *Bus) add(topic Topic, handler Handler, once bool) func() {
	b.mu.Lock()
	b.nextID++
	sub := &subscription{id: b.nextID, topic: topic, handler: handler, once: once}
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	return func() { b.remove(sub.id) }
}

func (b *Bus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			// copy so snapshots taken by in-flight Publish calls stay intact
			next := make([]*subscription, 0, len(b.subs)-1)
			next = append(next, b.subs[:i]...)
			next = append(next, b.subs[i+1:]...)
			b.subs = next
			return
		}
	}
}

// Publish records the event and delivers it to every current subscriber of
// topic (and of TopicAll) before returning.
func (b *Bus) Publish(topic Topic, payload any) {
	if topic == TopicAll {
		b.log.Warn("bus: refusing to publish on wildcard topic")
		return
	}
	ev := Event{Topic: topic, Payload: payload, Timestamp: b.now()}

	b.mu.Lock()
	b.record(ev)
	var targets []*subscription
	var fired []uint64
	for _, s := range b.subs {
		if s.topic != topic && s.topic != TopicAll {
			continue
		}
		targets = append(targets, s)
		if s.once {
			fired = append(fired, s.id)
		}
	}
	b.mu.Unlock()

	for _, id := range fired {
		b.remove(id)
	}
	for _, s := range targets {
		b.deliver(s, ev)
	}
}

func (b *Bus) deliver(s *subscription, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("bus: handler panicked", "topic", ev.Topic, "err", fmt.Sprint(r))
		}
	}()
	s.handler(ev)
}

// record appends ev to the ring buffer, discarding the oldest entry when full.
// Caller holds b.mu.
func (b *Bus) record(ev Event) {
	capacity := len(b.history)
	if b.size < capacity {
		b.history[(b.start+b.size)%capacity] = ev
		b.size++
		return
	}
	b.history[b.start] = ev
	b.start = (b.start + 1) % capacity
}

// History returns retained events oldest first. With no topics every event is
// returned; otherwise only events on one of the given topics.
func (b *Bus) History(topics ...Topic) []Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	want := make(map[Topic]bool, len(topics))
	for _, t := range topics {
		want[t] = true
	}
	out := make([]Event, 0, b.size)
	for i := 0; i < b.size; i++ {
		ev := b.history[(b.start+i)%len(b.history)]
		if len(want) > 0 && !want[ev.Topic] {
			continue
		}
		out = append(out, ev)
	}
	return out
}

// Clear drops the retained history. Subscriptions are untouched.
func (b *Bus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.history {
		b.history[i] = Event{}
	}
	b.start, b.size = 0, 0
}

// Subscribers reports how many handlers are registered for topic.
func (b *Bus) Subscribers(topic Topic) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, s := range b.subs {
		if s.topic == topic {
			n++
		}
	}
	return n
}
