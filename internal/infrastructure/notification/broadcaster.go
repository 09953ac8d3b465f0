package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/kiosk/backend/internal/domain/shared"
)

// Notification is the wire form of a domain event pushed to terminals and
// staff consoles. Sequence numbers are assigned at enqueue time, so the order
// observed on any transport matches the order the events were committed in.
type Notification struct {
	Sequence  uint64    `json:"sequence"`
	Event     string    `json:"event"`
	Data      string    `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// Transport delivers notifications to connected consumers. Implementations
// must not block indefinitely; a slow consumer is the transport's problem.
type Transport interface {
	Name() string
	Send(ctx context.Context, n Notification) error
	Close() error
}

// Broadcaster subscribes to the event bus and fans committed domain events
// out to its transports. Delivery is best effort and at least once: the state
// change is already persisted by the time a notification is enqueued, and a
// failed transport never propagates back to the caller.
//
// All events flow through one bounded queue drained by a single goroutine,
// which preserves cross-transport ordering. When the queue is full the event
// is dropped and counted.
type Broadcaster struct {
	transports []Transport
	queue      chan Notification
	logger     *zap.Logger
	seq        atomic.Uint64
	dropped    atomic.Uint64
	eventTypes []string

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool
}

// BroadcasterOption is a functional option for configuring the broadcaster
type BroadcasterOption func(*Broadcaster)

// WithQueueSize sets the dispatch queue capacity
func WithQueueSize(size int) BroadcasterOption {
	return func(b *Broadcaster) {
		if size > 0 {
			b.queue = make(chan Notification, size)
		}
	}
}

// WithEventTypes restricts which event types the broadcaster forwards.
// Without it the broadcaster subscribes as a wildcard handler.
func WithEventTypes(eventTypes ...string) BroadcasterOption {
	return func(b *Broadcaster) {
		b.eventTypes = eventTypes
	}
}

// NewBroadcaster creates a broadcaster over the given transports
func NewBroadcaster(logger *zap.Logger, transports ...Transport) *Broadcaster {
	ctx, cancel := context.WithCancel(context.Background())
	return &Broadcaster{
		transports: transports,
		queue:      make(chan Notification, 1024),
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// NewBroadcasterWithOptions creates a broadcaster with functional options
func NewBroadcasterWithOptions(logger *zap.Logger, opts []BroadcasterOption, transports ...Transport) *Broadcaster {
	b := NewBroadcaster(logger, transports...)
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Handle implements shared.EventHandler. The event payload is serialized and
// enqueued; when the queue is full the notification is dropped rather than
// stalling the publishing request.
func (b *Broadcaster) Handle(ctx context.Context, event shared.DomainEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s notification: %w", event.EventType(), err)
	}

	n := Notification{
		Sequence:  b.seq.Add(1),
		Event:     event.EventType(),
		Data:      string(data),
		Timestamp: event.OccurredAt(),
	}

	select {
	case b.queue <- n:
		return nil
	default:
		b.dropped.Add(1)
		b.logger.Warn("notification queue full, dropping event",
			zap.String("event_type", n.Event),
			zap.Uint64("sequence", n.Sequence),
		)
		return nil
	}
}

// EventTypes implements shared.EventHandler
func (b *Broadcaster) EventTypes() []string {
	return b.eventTypes
}

// Start launches the dispatch goroutine
func (b *Broadcaster) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.started {
		return fmt.Errorf("broadcaster already started")
	}
	b.started = true

	b.wg.Add(1)
	go b.dispatchLoop()

	b.logger.Info("notification broadcaster started",
		zap.Int("transports", len(b.transports)),
		zap.Int("queue_size", cap(b.queue)),
	)
	return nil
}

// Stop drains in-flight dispatch and closes the transports
func (b *Broadcaster) Stop() {
	b.mu.Lock()
	if !b.started {
		b.mu.Unlock()
		return
	}
	b.started = false
	b.mu.Unlock()

	b.cancel()
	b.wg.Wait()

	for _, tr := range b.transports {
		if err := tr.Close(); err != nil {
			b.logger.Warn("transport close failed",
				zap.String("transport", tr.Name()),
				zap.Error(err),
			)
		}
	}
	b.logger.Info("notification broadcaster stopped")
}

// Dropped returns how many notifications were discarded on a full queue
func (b *Broadcaster) Dropped() uint64 {
	return b.dropped.Load()
}

func (b *Broadcaster) dispatchLoop() {
	defer b.wg.Done()

	for {
		select {
		case <-b.ctx.Done():
			return
		case n := <-b.queue:
			for _, tr := range b.transports {
				if err := tr.Send(b.ctx, n); err != nil {
					b.logger.Warn("transport delivery failed",
						zap.String("transport", tr.Name()),
						zap.String("event_type", n.Event),
						zap.Uint64("sequence", n.Sequence),
						zap.Error(err),
					)
				}
			}
		}
	}
}

// Ensure Broadcaster implements EventHandler
var _ shared.EventHandler = (*Broadcaster)(nil)
