// Package messaging implements event delivery for the progression engine:
// an in-process event bus for local subscribers and an AMQP publisher that
// forwards committed domain events to other services.
package messaging

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/brainbites/progression-engine/internal/domain/shared"
	"github.com/brainbites/progression-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// IN-MEMORY EVENT BUS
// ══════════════════════════════════════════════════════════════════════════════

// InMemoryEventBus is a simple in-memory implementation of shared.EventBus.
type InMemoryEventBus struct {
	mu          sync.RWMutex
	handlers    map[shared.EventType][]shared.EventHandler
	allHandlers []shared.EventHandler
	ordered     map[shared.EventType][]shared.EventHandler
	asyncMode   bool
	workerPool  chan struct{}
	logger      *logger.Logger
	metrics     *EventBusMetrics
	closed      bool
	closeCh     chan struct{}
	wg          sync.WaitGroup

	// queues holds pending ordered deliveries per aggregate; an entry exists
	// while a goroutine is draining it.
	qmu    sync.Mutex
	queues map[string]*aggregateQueue
}

type orderedDelivery struct {
	event    shared.Event
	handlers []shared.EventHandler
}

type aggregateQueue struct {
	pending []orderedDelivery
}

// InMemoryEventBusConfig contains configuration for InMemoryEventBus.
type InMemoryEventBusConfig struct {
	// AsyncMode runs handlers on a worker pool instead of the publisher's goroutine.
	AsyncMode bool

	// WorkerPoolSize is the number of concurrent workers for async processing.
	WorkerPoolSize int

	Logger *logger.Logger

	EnableMetrics bool
}

// DefaultInMemoryEventBusConfig returns sensible defaults.
func DefaultInMemoryEventBusConfig() InMemoryEventBusConfig {
	return InMemoryEventBusConfig{
		AsyncMode:      true,
		WorkerPoolSize: 10,
		EnableMetrics:  true,
	}
}

// NewInMemoryEventBus creates a new in-memory event bus.
func NewInMemoryEventBus(config InMemoryEventBusConfig) *InMemoryEventBus {
	if config.Logger == nil {
		config.Logger = logger.Nop()
	}
	if config.WorkerPoolSize <= 0 {
		config.WorkerPoolSize = 10
	}

	bus := &InMemoryEventBus{
		handlers:    make(map[shared.EventType][]shared.EventHandler),
		allHandlers: make([]shared.EventHandler, 0),
		ordered:     make(map[shared.EventType][]shared.EventHandler),
		queues:      make(map[string]*aggregateQueue),
		asyncMode:   config.AsyncMode,
		workerPool:  make(chan struct{}, config.WorkerPoolSize),
		logger:      config.Logger.With(logger.Component("event_bus")),
		closeCh:     make(chan struct{}),
	}

	if config.EnableMetrics {
		bus.metrics = NewEventBusMetrics()
	}

	return bus
}

// Subscribe registers a handler for a specific event type.
func (b *InMemoryEventBus) Subscribe(eventType shared.EventType, handler shared.EventHandler) error {
	if handler == nil {
		return errors.New("handler cannot be nil")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrEventBusClosed
	}

	b.handlers[eventType] = append(b.handlers[eventType], handler)
	b.logger.Debug("subscribed handler", logger.String("event_type", string(eventType)))
	return nil
}

// SubscribeAll registers a handler for all events.
func (b *InMemoryEventBus) SubscribeAll(handler shared.EventHandler) error {
	if handler == nil {
		return errors.New("handler cannot be nil")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrEventBusClosed
	}

	b.allHandlers = append(b.allHandlers, handler)
	b.logger.Debug("subscribed global handler")
	return nil
}

// SubscribeOrdered registers a handler that sees the events of one aggregate
// in publish order, even in async mode. Events of different aggregates are
// still handled concurrently.
func (b *InMemoryEventBus) SubscribeOrdered(eventType shared.EventType, handler shared.EventHandler) error {
	if handler == nil {
		return errors.New("handler cannot be nil")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrEventBusClosed
	}

	b.ordered[eventType] = append(b.ordered[eventType], handler)
	b.logger.Debug("subscribed ordered handler", logger.String("event_type", string(eventType)))
	return nil
}

// Publish sends an event to all subscribed handlers. Handler failures are
// logged and never returned to the publisher.
func (b *InMemoryEventBus) Publish(event shared.Event) error {
	if event == nil {
		return errors.New("event cannot be nil")
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrEventBusClosed
	}

	handlers := make([]shared.EventHandler, 0, len(b.handlers[event.EventType()])+len(b.allHandlers))
	handlers = append(handlers, b.handlers[event.EventType()]...)
	handlers = append(handlers, b.allHandlers...)
	ordered := append([]shared.EventHandler(nil), b.ordered[event.EventType()]...)
	b.mu.RUnlock()

	if b.metrics != nil {
		b.metrics.RecordPublish(event.EventType())
	}

	if len(handlers) == 0 && len(ordered) == 0 {
		b.logger.Debug("no handlers for event", logger.String("event_type", string(event.EventType())))
		return nil
	}

	if len(ordered) > 0 {
		if b.asyncMode {
			b.enqueueOrdered(event, ordered)
		} else {
			b.runOrdered(orderedDelivery{event: event, handlers: ordered})
		}
	}

	for _, handler := range handlers {
		if b.asyncMode {
			b.executeAsync(event, handler)
			continue
		}
		if err := b.execute(event, handler); err != nil {
			b.logger.Error("handler error",
				logger.String("event_type", string(event.EventType())),
				logger.UserID(event.AggregateID()),
				logger.Err(err),
			)
		}
	}
	return nil
}

// executeAsync executes a handler asynchronously using the worker pool.
func (b *InMemoryEventBus) executeAsync(event shared.Event, handler shared.EventHandler) {
	b.wg.Add(1)

	go func() {
		defer b.wg.Done()

		select {
		case b.workerPool <- struct{}{}:
			defer func() { <-b.workerPool }()
		case <-b.closeCh:
			return
		}

		if err := b.execute(event, handler); err != nil {
			b.logger.Error("async handler error",
				logger.String("event_type", string(event.EventType())),
				logger.UserID(event.AggregateID()),
				logger.Err(err),
			)
		}
	}()
}

// enqueueOrdered appends the delivery to its aggregate's queue and starts a
// drainer when none is running.
func (b *InMemoryEventBus) enqueueOrdered(event shared.Event, handlers []shared.EventHandler) {
	b.wg.Add(1)

	key := event.AggregateID()
	b.qmu.Lock()
	q, draining := b.queues[key]
	if !draining {
		q = &aggregateQueue{}
		b.queues[key] = q
	}
	q.pending = append(q.pending, orderedDelivery{event: event, handlers: handlers})
	b.qmu.Unlock()

	if !draining {
		go b.drainQueue(key, q)
	}
}

// drainQueue delivers the aggregate's events one at a time until the queue
// is empty. After Close the remaining deliveries are dropped. The queue entry
// is removed before the last delivery is marked done, so Drain sees no queues.
func (b *InMemoryEventBus) drainQueue(key string, q *aggregateQueue) {
	for {
		b.qmu.Lock()
		d := q.pending[0]
		b.qmu.Unlock()

		select {
		case b.workerPool <- struct{}{}:
			b.runOrdered(d)
			<-b.workerPool
		case <-b.closeCh:
		}

		b.qmu.Lock()
		q.pending = q.pending[1:]
		empty := len(q.pending) == 0
		if empty {
			delete(b.queues, key)
		}
		b.qmu.Unlock()

		b.wg.Done()
		if empty {
			return
		}
	}
}

func (b *InMemoryEventBus) runOrdered(d orderedDelivery) {
	for _, handler := range d.handlers {
		if err := b.execute(d.event, handler); err != nil {
			b.logger.Error("ordered handler error",
				logger.String("event_type", string(d.event.EventType())),
				logger.UserID(d.event.AggregateID()),
				logger.Err(err),
			)
		}
	}
}

// execute runs one handler, turning a panic into ErrHandlerPanic.
func (b *InMemoryEventBus) execute(event shared.Event, handler shared.EventHandler) (err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
		if b.metrics != nil {
			b.metrics.RecordHandlerExecution(event.EventType(), time.Since(start), err == nil)
		}
	}()
	return handler(event)
}

// Drain blocks until every handler started so far has returned.
func (b *InMemoryEventBus) Drain() {
	b.wg.Wait()
}

// Close gracefully shuts down the event bus.
func (b *InMemoryEventBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.closeCh)
	b.mu.Unlock()

	b.wg.Wait()

	b.logger.Info("event bus closed")
	return nil
}

// Metrics returns the current metrics.
func (b *InMemoryEventBus) Metrics() *EventBusMetrics {
	return b.metrics
}

// ══════════════════════════════════════════════════════════════════════════════
// METRICS
// ══════════════════════════════════════════════════════════════════════════════

// EventBusMetrics tracks event bus counters.
type EventBusMetrics struct {
	mu sync.RWMutex

	PublishedTotal map[shared.EventType]int64

	HandlerExecutions    int64
	HandlerSuccesses     int64
	HandlerFailures      int64
	HandlerTotalDuration time.Duration
}

// NewEventBusMetrics creates new metrics tracker.
func NewEventBusMetrics() *EventBusMetrics {
	return &EventBusMetrics{
		PublishedTotal: make(map[shared.EventType]int64),
	}
}

// RecordPublish records a publish.
func (m *EventBusMetrics) RecordPublish(eventType shared.EventType) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PublishedTotal[eventType]++
}

// RecordHandlerExecution records a handler execution.
func (m *EventBusMetrics) RecordHandlerExecution(eventType shared.EventType, duration time.Duration, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.HandlerExecutions++
	m.HandlerTotalDuration += duration
	if success {
		m.HandlerSuccesses++
	} else {
		m.HandlerFailures++
	}
}

// Snapshot returns a copy of current metrics.
func (m *EventBusMetrics) Snapshot() EventBusMetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := EventBusMetricsSnapshot{
		TotalHandlerExecs:  m.HandlerExecutions,
		HandlerFailures:    m.HandlerFailures,
		HandlerSuccessRate: 1.0,
	}
	for _, v := range m.PublishedTotal {
		snap.TotalPublished += v
	}
	if m.HandlerExecutions > 0 {
		snap.AverageHandlerDuration = m.HandlerTotalDuration / time.Duration(m.HandlerExecutions)
		snap.HandlerSuccessRate = float64(m.HandlerSuccesses) / float64(m.HandlerExecutions)
	}
	return snap
}

// EventBusMetricsSnapshot is a point-in-time snapshot of metrics.
type EventBusMetricsSnapshot struct {
	TotalPublished         int64
	TotalHandlerExecs      int64
	HandlerFailures        int64
	HandlerSuccessRate     float64
	AverageHandlerDuration time.Duration
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrEventBusClosed is returned when operations are attempted on a closed bus.
	ErrEventBusClosed = errors.New("event bus is closed")

	// ErrHandlerPanic is returned when a handler panics.
	ErrHandlerPanic = errors.New("handler panicked")
)

var _ shared.EventBus = (*InMemoryEventBus)(nil)
