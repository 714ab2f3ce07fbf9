// Package messaging implements the in-process event bus that connects
// command handlers to the reactive event handlers.
package messaging

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/quizhub/streak-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// IN-MEMORY EVENT BUS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrEventBusClosed is returned when operations are attempted on a closed bus.
	ErrEventBusClosed = errors.New("event bus is closed")

	// ErrNilHandler is returned when a nil handler is subscribed.
	ErrNilHandler = errors.New("handler cannot be nil")
)

// InMemoryEventBus is a single-process implementation of shared.EventBus.
// Handlers run asynchronously on a bounded worker pool; a slow handler
// never blocks the publishing command.
type InMemoryEventBus struct {
	mu          sync.RWMutex
	handlers    map[shared.EventType][]shared.EventHandler
	allHandlers []shared.EventHandler
	asyncMode   bool
	handlerTTL  time.Duration
	workerPool  chan struct{}
	logger      *slog.Logger
	metrics     *Metrics
	closed      bool
	closeCh     chan struct{}
	wg          sync.WaitGroup
}

// Config contains configuration for InMemoryEventBus.
type Config struct {
	// AsyncMode runs handlers on the worker pool instead of inline.
	AsyncMode bool

	// WorkerPoolSize bounds concurrent handler executions in async mode.
	WorkerPoolSize int

	// HandlerTimeout bounds a single handler execution.
	HandlerTimeout time.Duration

	// Logger for structured logging.
	Logger *slog.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		AsyncMode:      true,
		WorkerPoolSize: 10,
		HandlerTimeout: 10 * time.Second,
	}
}

// NewInMemoryEventBus creates a new in-memory event bus.
func NewInMemoryEventBus(config Config) *InMemoryEventBus {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.WorkerPoolSize <= 0 {
		config.WorkerPoolSize = 10
	}
	if config.HandlerTimeout <= 0 {
		config.HandlerTimeout = 10 * time.Second
	}

	return &InMemoryEventBus{
		handlers:   make(map[shared.EventType][]shared.EventHandler),
		asyncMode:  config.AsyncMode,
		handlerTTL: config.HandlerTimeout,
		workerPool: make(chan struct{}, config.WorkerPoolSize),
		logger:     config.Logger,
		metrics:    NewMetrics(),
		closeCh:    make(chan struct{}),
	}
}

// Subscribe registers a handler for a specific event type.
func (b *InMemoryEventBus) Subscribe(eventType shared.EventType, handler shared.EventHandler) error {
	if handler == nil {
		return ErrNilHandler
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrEventBusClosed
	}

	b.handlers[eventType] = append(b.handlers[eventType], handler)
	b.logger.Debug("subscribed handler",
		"event_type", eventType,
		"handler", handler.Name())
	return nil
}

// SubscribeAll registers a handler for every event.
func (b *InMemoryEventBus) SubscribeAll(handler shared.EventHandler) error {
	if handler == nil {
		return ErrNilHandler
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrEventBusClosed
	}

	b.allHandlers = append(b.allHandlers, handler)
	b.logger.Debug("subscribed global handler", "handler", handler.Name())
	return nil
}

// Publish delivers an event to all subscribed handlers.
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
	b.mu.RUnlock()

	b.metrics.RecordPublish(event.EventType())

	if len(handlers) == 0 {
		b.logger.Debug("no handlers for event", "event_type", event.EventType())
		return nil
	}

	if b.asyncMode {
		for _, handler := range handlers {
			b.executeAsync(event, handler)
		}
		return nil
	}

	for _, handler := range handlers {
		if err := b.execute(context.Background(), event, handler); err != nil {
			b.logger.Error("handler error",
				"event_type", event.EventType(),
				"handler", handler.Name(),
				"error", err)
		}
	}
	return nil
}

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

		if err := b.execute(context.Background(), event, handler); err != nil {
			b.logger.Error("async handler error",
				"event_type", event.EventType(),
				"handler", handler.Name(),
				"error", err)
		}
	}()
}

func (b *InMemoryEventBus) execute(ctx context.Context, event shared.Event, handler shared.EventHandler) error {
	ctx, cancel := context.WithTimeout(ctx, b.handlerTTL)
	defer cancel()

	start := time.Now()
	err := handler.Handle(ctx, event)
	b.metrics.RecordExecution(event.EventType(), time.Since(start), err == nil)
	return err
}

// Close waits for in-flight handlers and shuts the bus down.
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

// BusMetrics returns the bus metrics tracker.
func (b *InMemoryEventBus) BusMetrics() *Metrics {
	return b.metrics
}

// ══════════════════════════════════════════════════════════════════════════════
// METRICS
// ══════════════════════════════════════════════════════════════════════════════

// Metrics tracks publish and handler execution counts.
type Metrics struct {
	mu sync.RWMutex

	published     map[shared.EventType]int64
	executions    int64
	successes     int64
	failures      int64
	totalDuration time.Duration
}

// NewMetrics creates a new metrics tracker.
func NewMetrics() *Metrics {
	return &Metrics{published: make(map[shared.EventType]int64)}
}

// RecordPublish records one published event.
func (m *Metrics) RecordPublish(eventType shared.EventType) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published[eventType]++
}

// RecordExecution records one handler execution.
func (m *Metrics) RecordExecution(eventType shared.EventType, duration time.Duration, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.executions++
	m.totalDuration += duration
	if success {
		m.successes++
	} else {
		m.failures++
	}
}

// MetricsSnapshot is a point-in-time view of the counters.
type MetricsSnapshot struct {
	TotalPublished  int64         `json:"total_published"`
	TotalExecutions int64         `json:"total_executions"`
	SuccessRate     float64       `json:"success_rate"`
	AverageDuration time.Duration `json:"average_duration"`
}

// Snapshot returns a copy of the current counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var total int64
	for _, v := range m.published {
		total += v
	}

	rate := 1.0
	if m.executions > 0 {
		rate = float64(m.successes) / float64(m.executions)
	}

	avg := time.Duration(0)
	if m.executions > 0 {
		avg = m.totalDuration / time.Duration(m.executions)
	}

	return MetricsSnapshot{
		TotalPublished:  total,
		TotalExecutions: m.executions,
		SuccessRate:     rate,
		AverageDuration: avg,
	}
}
