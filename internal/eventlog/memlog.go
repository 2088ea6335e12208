package eventlog

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sarkarn/clinprecision-sub002/internal/domain"
)

// deliveryAttempts bounds redelivery of an event to a failing handler
// before the event is dropped with an error log. A durable log would
// park the event instead; for local wiring a bound is enough.
const deliveryAttempts = 5

// MemLog is an in-memory Log. Streams are ordered per aggregate and
// delivery runs on one goroutine per aggregate, so subscribers observe
// per-aggregate order while different aggregates proceed concurrently.
type MemLog struct {
	log *slog.Logger

	// sendMu serializes queue sends against Close: senders hold the
	// read side across the send, Close takes the write side before
	// closing any queue, so a send can never hit a closed channel.
	sendMu sync.RWMutex

	mu          sync.Mutex
	streams     map[uuid.UUID][]domain.Event
	queues      map[uuid.UUID]chan domain.Event
	subscribers map[domain.EventType][]Handler
	retryDelay  time.Duration
	wg          sync.WaitGroup
	closed      bool
}

// NewMemLog creates an empty in-memory event log.
func NewMemLog(log *slog.Logger) *MemLog {
	return &MemLog{
		log:         log,
		streams:     make(map[uuid.UUID][]domain.Event),
		queues:      make(map[uuid.UUID]chan domain.Event),
		subscribers: make(map[domain.EventType][]Handler),
		retryDelay:  10 * time.Millisecond,
	}
}

// Subscribe registers a handler for an event type.
func (l *MemLog) Subscribe(eventType domain.EventType, handler Handler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.subscribers[eventType] = append(l.subscribers[eventType], handler)
}

// Append stores the event in its aggregate's stream and queues it for
// asynchronous delivery.
func (l *MemLog) Append(ctx context.Context, event domain.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.sendMu.RLock()
	defer l.sendMu.RUnlock()

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return context.Canceled
	}
	l.streams[event.AggregateID] = append(l.streams[event.AggregateID], event)
	queue, ok := l.queues[event.AggregateID]
	if !ok {
		queue = make(chan domain.Event, 64)
		l.queues[event.AggregateID] = queue
		l.wg.Add(1)
		go l.deliverLoop(queue)
	}
	l.mu.Unlock()

	queue <- event
	return nil
}

// ReadStream returns a copy of the aggregate's ordered event history.
func (l *MemLog) ReadStream(_ context.Context, aggregateID uuid.UUID) ([]domain.Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	stream := l.streams[aggregateID]
	out := make([]domain.Event, len(stream))
	copy(out, stream)
	return out, nil
}

// Close stops accepting events and waits for in-flight deliveries.
func (l *MemLog) Close() {
	l.sendMu.Lock()
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		l.sendMu.Unlock()
		return
	}
	l.closed = true
	for _, queue := range l.queues {
		close(queue)
	}
	l.mu.Unlock()
	l.sendMu.Unlock()

	l.wg.Wait()
}

// deliverLoop drains one aggregate's queue in order, retrying each
// handler until it succeeds or the attempt bound is reached.
func (l *MemLog) deliverLoop(queue chan domain.Event) {
	defer l.wg.Done()

	for event := range queue {
		l.mu.Lock()
		handlers := make([]Handler, len(l.subscribers[event.Type]))
		copy(handlers, l.subscribers[event.Type])
		l.mu.Unlock()

		for _, handler := range handlers {
			l.deliver(event, handler)
		}
	}
}

func (l *MemLog) deliver(event domain.Event, handler Handler) {
	ctx := context.Background()

	var err error
	for attempt := 1; attempt <= deliveryAttempts; attempt++ {
		if err = handler(ctx, event); err == nil {
			return
		}
		l.log.Warn("event delivery failed, will retry",
			slog.String("event_type", event.Type.String()),
			slog.String("aggregate_id", event.AggregateID.String()),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)
		time.Sleep(l.retryDelay)
	}

	l.log.Error("event delivery abandoned after max attempts",
		slog.String("event_type", event.Type.String()),
		slog.String("aggregate_id", event.AggregateID.String()),
		slog.String("error", err.Error()),
	)
}
