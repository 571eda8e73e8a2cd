package notifications

import (
	"context"
	"errors"
	"sync"
	"time"

	"repair_shop_backend/internal/metrics"
	"repair_shop_backend/pkg/utils"
)

// ErrQueueFull is returned when the async queue cannot take another event.
var ErrQueueFull = errors.New("notification queue full")

// AsyncNotifier queues events for a background worker so that callers never
// wait on SMTP.
type AsyncNotifier struct {
	next    Notifier
	queue   chan Event
	metrics *metrics.Metrics
	timeout time.Duration
	wg      sync.WaitGroup
	closeMu sync.RWMutex
	closed  bool
}

// NewAsyncNotifier starts the worker. Call Close to drain the queue on shutdown.
func NewAsyncNotifier(next Notifier, size int, m *metrics.Metrics) *AsyncNotifier {
	if size <= 0 {
		size = 100
	}
	n := &AsyncNotifier{
		next:    next,
		queue:   make(chan Event, size),
		metrics: m,
		timeout: 30 * time.Second,
	}
	n.wg.Add(1)
	go n.run()
	return n
}

// Notify enqueues without blocking.
func (n *AsyncNotifier) Notify(_ context.Context, event Event) error {
	n.closeMu.RLock()
	defer n.closeMu.RUnlock()
	if n.closed {
		return ErrQueueFull
	}
	select {
	case n.queue <- event:
		return nil
	default:
		n.metrics.RecordNotification(string(event.Kind), ErrQueueFull)
		return ErrQueueFull
	}
}

func (n *AsyncNotifier) run() {
	defer n.wg.Done()
	for event := range n.queue {
		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		err := n.next.Notify(ctx, event)
		cancel()
		n.metrics.RecordNotification(string(event.Kind), err)
		if err != nil {
			utils.LogWarn(err, "Notification delivery failed", map[string]interface{}{
				"event":     string(event.Kind),
				"ticket_id": event.TicketID,
			})
		}
	}
}

// Close stops accepting events and waits for the queued ones to be sent.
func (n *AsyncNotifier) Close() {
	n.closeMu.Lock()
	if n.closed {
		n.closeMu.Unlock()
		return
	}
	n.closed = true
	close(n.queue)
	n.closeMu.Unlock()
	n.wg.Wait()
}
