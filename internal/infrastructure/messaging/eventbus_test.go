package messaging

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quizhub/streak-engine/internal/domain/shared"
)

func syncBus() *InMemoryEventBus {
	cfg := DefaultConfig()
	cfg.AsyncMode = false
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewInMemoryEventBus(cfg)
}

type countingHandler struct {
	mu   sync.Mutex
	seen []shared.Event
	fail error
	name string
}

func (h *countingHandler) Handle(_ context.Context, event shared.Event) error {
	h.mu.Lock()
	h.seen = append(h.seen, event)
	h.mu.Unlock()
	return h.fail
}

func (h *countingHandler) Name() string {
	if h.name == "" {
		return "counting"
	}
	return h.name
}

func (h *countingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.seen)
}

func TestPublishDeliversToSubscribedType(t *testing.T) {
	bus := syncBus()
	defer bus.Close()

	started := &countingHandler{}
	lost := &countingHandler{}
	require.NoError(t, bus.Subscribe(shared.EventStreakStarted, started))
	require.NoError(t, bus.Subscribe(shared.EventStreakLost, lost))

	require.NoError(t, bus.Publish(shared.NewStreakStartedEvent(shared.UserID(1))))

	assert.Equal(t, 1, started.count())
	assert.Equal(t, 0, lost.count())
}

func TestSubscribeAllSeesEveryEvent(t *testing.T) {
	bus := syncBus()
	defer bus.Close()

	all := &countingHandler{}
	require.NoError(t, bus.SubscribeAll(all))

	require.NoError(t, bus.Publish(shared.NewStreakStartedEvent(shared.UserID(1))))
	require.NoError(t, bus.Publish(shared.NewStreakLostEvent(shared.UserID(1), 5, 2, false)))

	assert.Equal(t, 2, all.count())
}

func TestPublishWithoutSubscribersIsFine(t *testing.T) {
	bus := syncBus()
	defer bus.Close()

	assert.NoError(t, bus.Publish(shared.NewStreakStartedEvent(shared.UserID(1))))
}

func TestSubscribeNilHandlerRejected(t *testing.T) {
	bus := syncBus()
	defer bus.Close()

	assert.ErrorIs(t, bus.Subscribe(shared.EventStreakStarted, nil), ErrNilHandler)
	assert.ErrorIs(t, bus.SubscribeAll(nil), ErrNilHandler)
}

func TestHandlerErrorDoesNotBlockOthers(t *testing.T) {
	bus := syncBus()
	defer bus.Close()

	failing := &countingHandler{fail: errors.New("boom"), name: "failing"}
	healthy := &countingHandler{name: "healthy"}
	require.NoError(t, bus.Subscribe(shared.EventStreakStarted, failing))
	require.NoError(t, bus.Subscribe(shared.EventStreakStarted, healthy))

	require.NoError(t, bus.Publish(shared.NewStreakStartedEvent(shared.UserID(1))))

	assert.Equal(t, 1, failing.count())
	assert.Equal(t, 1, healthy.count())
}

func TestPublishAfterCloseFails(t *testing.T) {
	bus := syncBus()
	require.NoError(t, bus.Close())

	assert.ErrorIs(t, bus.Publish(shared.NewStreakStartedEvent(shared.UserID(1))), ErrEventBusClosed)
}

func TestAsyncDeliveryCompletesBeforeClose(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AsyncMode = true
	cfg.WorkerPoolSize = 2
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	bus := NewInMemoryEventBus(cfg)

	h := &countingHandler{}
	require.NoError(t, bus.Subscribe(shared.EventStreakStarted, h))

	for i := 0; i < 5; i++ {
		require.NoError(t, bus.Publish(shared.NewStreakStartedEvent(shared.UserID(1))))
	}

	assert.Eventually(t, func() bool { return h.count() == 5 },
		2*time.Second, 10*time.Millisecond)
	require.NoError(t, bus.Close())
}

func TestMetricsTrackExecutions(t *testing.T) {
	bus := syncBus()
	defer bus.Close()

	ok := &countingHandler{name: "ok"}
	bad := &countingHandler{fail: errors.New("boom"), name: "bad"}
	require.NoError(t, bus.Subscribe(shared.EventStreakStarted, ok))
	require.NoError(t, bus.Subscribe(shared.EventStreakStarted, bad))

	require.NoError(t, bus.Publish(shared.NewStreakStartedEvent(shared.UserID(1))))

	snap := bus.BusMetrics().Snapshot()
	assert.Equal(t, int64(1), snap.TotalPublished)
	assert.Equal(t, int64(2), snap.TotalExecutions)
	assert.InDelta(t, 0.5, snap.SuccessRate, 0.001)
	assert.GreaterOrEqual(t, snap.AverageDuration, time.Duration(0))
}
