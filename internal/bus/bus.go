// Package bus is the in-process event pipe between the business operations
// that produce lifecycle events and the notification dispatcher that consumes
// them. Publishing never blocks: when the queue is full the event is dropped
// and logged, because notifications are at-most-once and must never stall a
// webhook, request or scheduled job.
package bus

import (
	"context"
	"log/slog"
	"sync"
)

type Handler func(ctx context.Context, ev Event)

type Bus struct {
	queue   chan Event
	handler Handler

	mu      sync.Mutex
	started bool
	stopped bool
	wg      sync.WaitGroup
}

func New(queueSize int) *Bus {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Bus{queue: make(chan Event, queueSize)}
}

// Start launches the worker pool. Workers drain the queue until Stop is
// called and the queue is empty.
func (b *Bus) Start(ctx context.Context, workers int, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return
	}
	b.started = true
	b.handler = handler

	if workers <= 0 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			for ev := range b.queue {
				b.handler(ctx, ev)
			}
		}()
	}
}

// Publish enqueues the event without blocking. A full queue drops the event,
// and so does publishing after Stop: late publishers (a consumer goroutine
// racing shutdown) must never hit the closed queue.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		slog.Warn("bus stopped, dropping event", slog.String("Event", ev.Name()))
		return
	}
	select {
	case b.queue <- ev:
	default:
		slog.Warn("event queue full, dropping event", slog.String("Event", ev.Name()))
	}
}

// Stop closes the queue and waits for in-flight handlers to finish.
func (b *Bus) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.started || b.stopped {
		return
	}
	b.stopped = true
	close(b.queue)
	b.wg.Wait()
}
