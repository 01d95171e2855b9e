package events

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

var (
	ErrQueueFull       = errors.New("event queue full")
	ErrPublisherClosed = errors.New("event publisher closed")
)

// AsyncPublisher decouples callers from transport latency: Publish only
// enqueues, and a single worker forwards to the wrapped publisher. When the
// queue is full the event is dropped and logged.
type AsyncPublisher struct {
	next   EventPublisher
	queue  chan Event
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func NewAsyncPublisher(next EventPublisher, buffer int, logger *slog.Logger) *AsyncPublisher {
	p := &AsyncPublisher{
		next:   next,
		queue:  make(chan Event, buffer),
		logger: logger,
		done:   make(chan struct{}),
	}
	go p.run()
	return p
}

func (p *AsyncPublisher) Publish(_ context.Context, event Event) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPublisherClosed
	}

	select {
	case p.queue <- event:
		return nil
	default:
		p.logger.Warn("Dropping monitoring event, queue full", "event_id", event.ID, "type", event.Type, "exam_id", event.Data.ExamID)
		return ErrQueueFull
	}
}

func (p *AsyncPublisher) run() {
	defer close(p.done)
	for event := range p.queue {
		// Request contexts are gone by now; bound each send on its own.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := p.next.Publish(ctx, event); err != nil {
			p.logger.Error("Failed to deliver monitoring event", "error", err, "event_id", event.ID, "type", event.Type)
		}
		cancel()
	}
}

// Close drains queued events and then closes the wrapped publisher.
func (p *AsyncPublisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	<-p.done
	return p.next.Close()
}
