package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill/message"
)

// Subscription receives the events of one group. C is closed on Close or
// when the hub shuts down.
type Subscription struct {
	C <-chan Event

	id      uint64
	group   string
	ch      chan Event
	hub     *Hub
	dropped atomic.Int64
}

func (s *Subscription) Group() string {
	return s.group
}

// Dropped counts events discarded because the subscriber fell behind.
func (s *Subscription) Dropped() int64 {
	return s.dropped.Load()
}

func (s *Subscription) Close() {
	s.hub.unsubscribe(s)
}

// Hub fans events out to subscriber groups keyed by exam. Delivery never
// blocks: a subscriber with a full buffer misses the event.
type Hub struct {
	mu     sync.RWMutex
	groups map[string]map[uint64]*Subscription
	nextID uint64
	buffer int
	closed bool
	logger *slog.Logger
}

func NewHub(buffer int, logger *slog.Logger) *Hub {
	if buffer <= 0 {
		buffer = 16
	}
	return &Hub{
		groups: make(map[string]map[uint64]*Subscription),
		buffer: buffer,
		logger: logger,
	}
}

func (h *Hub) Subscribe(group string) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	ch := make(chan Event, h.buffer)
	sub := &Subscription{C: ch, id: h.nextID, group: group, ch: ch, hub: h}

	if h.closed {
		close(ch)
		return sub
	}

	if h.groups[group] == nil {
		h.groups[group] = make(map[uint64]*Subscription)
	}
	h.groups[group][sub.id] = sub
	return sub
}

func (h *Hub) unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.groups[sub.group]
	if !ok {
		return
	}
	if _, ok := members[sub.id]; !ok {
		return
	}
	delete(members, sub.id)
	close(sub.ch)
	if len(members) == 0 {
		delete(h.groups, sub.group)
	}
}

// Broadcast delivers e to its exam group and returns how many subscribers got it.
func (h *Hub) Broadcast(e Event) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for _, sub := range h.groups[e.Group()] {
		select {
		case sub.ch <- e:
			delivered++
		default:
			sub.dropped.Add(1)
		}
	}
	return delivered
}

func (h *Hub) GroupSize(group string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[group])
}

// Run consumes topic from subscriber and broadcasts every event until ctx
// ends or the subscription closes.
func (h *Hub) Run(ctx context.Context, subscriber message.Subscriber, topic string) error {
	messages, err := subscriber.Subscribe(ctx, topic)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}

	h.logger.Info("Monitoring broadcaster started", "topic", topic)
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			event, err := DecodeMessage(msg)
			if err != nil {
				// poison messages are acked so they are not redelivered forever
				h.logger.Error("Discarding undecodable monitoring message", "error", err)
				msg.Ack()
				continue
			}
			n := h.Broadcast(event)
			msg.Ack()
			h.logger.Debug("Monitoring event broadcast", "type", event.Type, "group", event.Group(), "delivered", n)
		}
	}
}

// Close ends every subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for group, members := range h.groups {
		for _, sub := range members {
			close(sub.ch)
		}
		delete(h.groups, group)
	}
}
