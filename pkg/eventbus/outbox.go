package eventbus

import (
	"context"
	"log/slog"
	"sync"

	"github.com/dukex/jobflow/pkg/events"
)

// Outbox decouples event producers from the bus. Emit never blocks; a single pump goroutine
// publishes queued events in emission order, keyed by job id.
type Outbox struct {
	logger    *slog.Logger
	publisher EventPublisher

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []events.JobEvent
	closed  bool
	drained chan struct{}
}

func NewOutbox(logger *slog.Logger, publisher EventPublisher) *Outbox {
	o := &Outbox{
		logger:    logger.With("module", "outbox"),
		publisher: publisher,
		drained:   make(chan struct{}),
	}
	o.cond = sync.NewCond(&o.mu)

	go o.pump()

	return o
}

// Emit queues ev for publishing. Events emitted after Close are dropped.
func (o *Outbox) Emit(ev events.JobEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		o.logger.Warn("Dropping event emitted after close", "event_type", ev.Type, "job_id", ev.JobID)
		return
	}

	o.queue = append(o.queue, ev)
	o.cond.Signal()
}

// Pending reports how many events are waiting to be published.
func (o *Outbox) Pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()

	return len(o.queue)
}

func (o *Outbox) pump() {
	defer close(o.drained)

	for {
		o.mu.Lock()
		for len(o.queue) == 0 && !o.closed {
			o.cond.Wait()
		}

		if len(o.queue) == 0 {
			o.mu.Unlock()
			return
		}

		ev := o.queue[0]
		o.queue[0] = events.JobEvent{}
		o.queue = o.queue[1:]
		o.mu.Unlock()

		err := o.publisher.Publish(context.Background(), ev.JobID, ev)
		if err != nil {
			o.logger.Error("Failed to publish event",
				"event_id", ev.ID, "event_type", ev.Type, "job_id", ev.JobID, "error", err)
		}
	}
}

// Close stops accepting events and waits until everything queued has been published or ctx
// expires.
func (o *Outbox) Close(ctx context.Context) error {
	o.mu.Lock()
	o.closed = true
	o.cond.Broadcast()
	o.mu.Unlock()

	select {
	case <-o.drained:
		return nil
	case <-ctx.Done():
		o.logger.WarnContext(ctx, "Outbox closed before draining", "pending", o.Pending())
		return ctx.Err()
	}
}
