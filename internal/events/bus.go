// Package events is an in-process publish/subscribe bus. It replaces ad hoc
// global listeners: the bus is built once at startup and handed to whoever
// publishes or subscribes.
package events

import (
	"context"
	"sync"
	"time"

	"gymdesk/internal/model"
	"gymdesk/internal/reconcile"

	"github.com/rs/zerolog/log"
)

type Topic string

const (
	// TopicClosureSubmitted fires after the closure store accepted a closure.
	TopicClosureSubmitted Topic = "closure.submitted"
	// TopicClosureFailed fires when a submission could not be stored.
	TopicClosureFailed Topic = "closure.failed"
	// TopicSummaryUnavailable fires when a shift summary could not be fetched.
	TopicSummaryUnavailable Topic = "summary.unavailable"
)

// Event carries what subscribers need; fields unused by a topic are zero.
type Event struct {
	Topic          Topic
	At             time.Time
	UserID         string
	Username       string
	Closure        model.CashClosure
	Differences    reconcile.DifferenceSet
	Deviation      reconcile.Deviation
	HasDiscrepancy bool
	Err            error
}

type Handler func(ctx context.Context, e Event)

type subscription struct {
	id uint64
	h  Handler
}

// Bus delivers events synchronously, in subscription order, on the
// publisher's goroutine. Handlers that need to do slow work should hand it
// off (the alerter enqueues a job). Safe for concurrent use.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[Topic][]subscription
	now    func() time.Time
}

func NewBus() *Bus {
	return &Bus{subs: make(map[Topic][]subscription), now: time.Now}
}

// Subscribe registers h for topic. The returned func removes it; calling it
// more than once is harmless.
func (b *Bus) Subscribe(topic Topic, h Handler) (unsubscribe func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[topic] = append(b.subs[topic], subscription{id: id, h: h})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(topic, id) })
	}
}

func (b *Bus) remove(topic Topic, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[topic]
	for i, s := range subs {
		if s.id == id {
			// copy so a Publish iterating the old slice is unaffected
			next := make([]subscription, 0, len(subs)-1)
			next = append(next, subs[:i]...)
			next = append(next, subs[i+1:]...)
			b.subs[topic] = next
			return
		}
	}
}

// Publish delivers e to every current subscriber of e.Topic. A panicking
// handler is logged and does not stop delivery to the others.
func (b *Bus) Publish(ctx context.Context, e Event) {
	if e.At.IsZero() {
		e.At = b.now()
	}
	b.mu.RLock()
	subs := b.subs[e.Topic]
	b.mu.RUnlock()

	for _, s := range subs {
		deliver(ctx, s.h, e)
	}
}

// Subscribers reports how many handlers listen on topic.
func (b *Bus) Subscribers(topic Topic) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}

func deliver(ctx context.Context, h Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("topic", string(e.Topic)).Msg("events: handler panicked")
		}
	}()
	h(ctx, e)
}
