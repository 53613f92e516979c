package eventbus

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukex/jobflow/pkg/channels/gochannel"
	"github.com/dukex/jobflow/pkg/events"
)

func newTestBus(t *testing.T) *WatermillEventBus {
	t.Helper()

	pub, sub, err := gochannel.CreateChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := NewWatermillEventBus(slog.New(slog.NewTextHandler(io.Discard, nil)), pub, sub)
	t.Cleanup(func() { _ = bus.Close() })

	return bus
}

type collector struct {
	mu     sync.Mutex
	events []events.JobEvent
}

func (c *collector) handle(_ context.Context, ev events.JobEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.events = append(c.events, ev)

	if ev.Type == events.JobError {
		return errors.New("handler refused event")
	}

	return nil
}

func (c *collector) snapshot() []events.JobEvent {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]events.JobEvent(nil), c.events...)
}

func TestWatermillEventBus_PublishSubscribe(t *testing.T) {
	bus := newTestBus(t)
	c := &collector{}

	require.NoError(t, bus.Subscribe(t.Context(), c.handle))

	ev := events.NewJobEvent(events.JobExecuted, "job-1", "wf-1")
	ev.Output = "done"

	require.NoError(t, bus.Publish(t.Context(), ev.JobID, ev))

	require.Eventually(t, func() bool { return len(c.snapshot()) == 1 }, time.Second, 5*time.Millisecond)

	got := c.snapshot()[0]
	assert.Equal(t, ev.ID, got.ID)
	assert.Equal(t, events.JobExecuted, got.Type)
	assert.Equal(t, "job-1", got.JobID)
	assert.Equal(t, "done", got.Output)
}

func TestWatermillEventBus_HandlerErrorDoesNotBlockStream(t *testing.T) {
	bus := newTestBus(t)
	c := &collector{}

	require.NoError(t, bus.Subscribe(t.Context(), c.handle))

	require.NoError(t, bus.Publish(t.Context(), "job-1", events.NewJobEvent(events.JobError, "job-1", "wf")))
	require.NoError(t, bus.Publish(t.Context(), "job-1", events.NewJobEvent(events.JobRemoved, "job-1", "wf")))

	require.Eventually(t, func() bool { return len(c.snapshot()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, events.JobRemoved, c.snapshot()[1].Type)
}

func TestWatermillEventBus_SingleSubscriber(t *testing.T) {
	bus := newTestBus(t)

	require.NoError(t, bus.Subscribe(t.Context(), func(context.Context, events.JobEvent) error { return nil }))
	err := bus.Subscribe(t.Context(), func(context.Context, events.JobEvent) error { return nil })
	assert.ErrorIs(t, err, ErrAlreadySubscribed)
}

func TestOutbox_PublishesInEmissionOrder(t *testing.T) {
	bus := newTestBus(t)
	c := &collector{}

	require.NoError(t, bus.Subscribe(t.Context(), c.handle))

	outbox := NewOutbox(slog.New(slog.NewTextHandler(io.Discard, nil)), bus)

	const total = 50
	for i := range total {
		outbox.Emit(events.NewJobEvent(events.JobScheduled, fmt.Sprintf("job-%d", i%3), "wf"))
	}

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	require.NoError(t, outbox.Close(ctx))
	assert.Equal(t, 0, outbox.Pending())

	require.Eventually(t, func() bool { return len(c.snapshot()) == total }, 2*time.Second, 5*time.Millisecond)

	got := c.snapshot()
	for i, ev := range got {
		assert.Equal(t, fmt.Sprintf("job-%d", i%3), ev.JobID)
	}
}

type blockingPublisher struct {
	release chan struct{}
}

func (p *blockingPublisher) Publish(context.Context, string, Event) error {
	<-p.release
	return nil
}

func TestOutbox_CloseHonoursDeadline(t *testing.T) {
	pub := &blockingPublisher{release: make(chan struct{})}
	defer close(pub.release)

	outbox := NewOutbox(slog.New(slog.NewTextHandler(io.Discard, nil)), pub)
	outbox.Emit(events.NewJobEvent(events.JobAdded, "job-1", "wf"))
	outbox.Emit(events.NewJobEvent(events.JobAdded, "job-2", "wf"))

	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()

	err := outbox.Close(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// dropped after close
	outbox.Emit(events.NewJobEvent(events.JobAdded, "job-3", "wf"))
	assert.LessOrEqual(t, outbox.Pending(), 1)
}
