package events

import (
	"context"
	"iter"
	"slices"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// DefaultBufferSize is the per-subscription channel capacity.
const DefaultBufferSize = 64

// HubConfig holds hub configuration.
type HubConfig struct {
	// BufferSize is the capacity of each subscription channel. Events that
	// do not fit are dropped for that subscriber only.
	BufferSize int

	Logger *zap.SugaredLogger
}

// Hub fans events out to subscriptions keyed by consumer id. At most one
// subscription is active per consumer id.
//
// Publish holds the read lock while it delivers and every channel close
// happens under the write lock, so an event is never sent on a closed
// channel.
type Hub struct {
	mu      sync.RWMutex
	subs    map[string]*Subscription
	stopped bool
	buffer  int
	dropped atomic.Uint64
	logger  *zap.SugaredLogger
}

// NewHub creates a Hub.
func NewHub(config HubConfig) *Hub {
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultBufferSize
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop().Sugar()
	}
	return &Hub{
		subs:   make(map[string]*Subscription),
		buffer: config.BufferSize,
		logger: config.Logger.Named("hub"),
	}
}

// Subscribe registers a subscription for consumerID receiving the given
// kinds, or every kind when none are given. A previous subscription for the
// same consumer is closed first.
func (h *Hub) Subscribe(consumerID string, kinds ...Kind) *Subscription {
	sub := newSubscription(h, consumerID, h.buffer, kinds)

	h.mu.Lock()
	defer h.mu.Unlock()

	if old, ok := h.subs[consumerID]; ok {
		old.finish()
		h.logger.Debugw("subscription replaced", "consumer", consumerID)
	}
	h.subs[consumerID] = sub
	return sub
}

// Publish delivers ev to every subscription interested in its kind.
// It never blocks; a full subscription misses the event. Publishing on a
// stopped hub does nothing.
func (h *Hub) Publish(ev CVEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.stopped {
		return
	}
	for _, sub := range h.subs {
		if !sub.wants(ev.Kind) {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			h.dropped.Add(1)
			if sub.dropped.Add(1) == 1 {
				h.logger.Warnw("subscriber not keeping up, dropping events", "consumer", sub.id)
			}
		}
	}
}

// Unsubscribe closes and removes the subscription of consumerID.
func (h *Hub) Unsubscribe(consumerID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if sub, ok := h.subs[consumerID]; ok {
		delete(h.subs, consumerID)
		sub.finish()
	}
}

// remove drops sub only if it is still the active subscription of its
// consumer, so closing a replaced subscription never affects its successor.
func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if cur, ok := h.subs[sub.id]; ok && cur == sub {
		delete(h.subs, sub.id)
	}
	sub.finish()
}

// Stop closes every subscription and turns later publishes into no-ops
// until Reopen. It returns once all channels are closed.
func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.stopped = true
	for id, sub := range h.subs {
		sub.finish()
		delete(h.subs, id)
	}
}

// Reopen re-enables publishing after Stop.
func (h *Hub) Reopen() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopped = false
}

// Stopped reports whether the hub is stopped.
func (h *Hub) Stopped() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.stopped
}

// Len returns the number of active subscriptions.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Consumers returns the ids of the active subscriptions, sorted.
func (h *Hub) Consumers() []string {
	h.mu.RLock()
	ids := make([]string, 0, len(h.subs))
	for id := range h.subs {
		ids = append(ids, id)
	}
	h.mu.RUnlock()
	slices.Sort(ids)
	return ids
}

// Dropped returns the total number of events dropped across subscribers.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// Stream subscribes consumerID when iteration starts and yields events until
// ctx is done, the subscription is closed, or the loop breaks. The
// subscription is closed when iteration ends.
func (h *Hub) Stream(ctx context.Context, consumerID string, kinds ...Kind) iter.Seq[CVEvent] {
	return func(yield func(CVEvent) bool) {
		sub := h.Subscribe(consumerID, kinds...)
		defer sub.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub.ch:
				if !ok || !yield(ev) {
					return
				}
			}
		}
	}
}

// Subscription is the read side of one consumer's event stream.
type Subscription struct {
	hub     *Hub
	id      string
	kinds   map[Kind]bool
	ch      chan CVEvent
	closed  bool // guarded by hub.mu
	dropped atomic.Uint64
}

func newSubscription(h *Hub, id string, buffer int, kinds []Kind) *Subscription {
	sub := &Subscription{
		hub: h,
		id:  id,
		ch:  make(chan CVEvent, buffer),
	}
	if len(kinds) > 0 {
		sub.kinds = make(map[Kind]bool, len(kinds))
		for _, k := range kinds {
			sub.kinds[k] = true
		}
	}
	return sub
}

// Finished returns a subscription whose stream has already ended. It is the
// answer to unknown consumers and invalid configuration.
func Finished(consumerID string) *Subscription {
	sub := &Subscription{id: consumerID, ch: make(chan CVEvent), closed: true}
	close(sub.ch)
	return sub
}

// finish closes the channel. Callers hold hub.mu for writing.
func (s *Subscription) finish() {
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

func (s *Subscription) wants(k Kind) bool {
	return s.kinds == nil || s.kinds[k]
}

// ID returns the consumer id.
func (s *Subscription) ID() string {
	return s.id
}

// Events returns the event channel. It is closed when the subscription ends.
func (s *Subscription) Events() <-chan CVEvent {
	return s.ch
}

// All yields events until the subscription ends. Breaking out of the loop
// closes the subscription.
func (s *Subscription) All() iter.Seq[CVEvent] {
	return func(yield func(CVEvent) bool) {
		for ev := range s.ch {
			if !yield(ev) {
				s.Close()
				return
			}
		}
	}
}

// Close ends the subscription. It is safe to call more than once and on a
// subscription that has already been replaced or stopped.
func (s *Subscription) Close() {
	if s.hub == nil {
		return
	}
	s.hub.remove(s)
}

// Dropped returns how many events this subscription missed because its
// buffer was full.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}
