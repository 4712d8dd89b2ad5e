package events_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/overtimeamm/internal/domain"
	"github.com/alanyoungcy/overtimeamm/internal/events"
)

func evt(seq uint64) domain.Event {
	e := domain.NewEvent(domain.EventDeposited, map[string]any{"n": seq})
	e.Seq = seq
	return e
}

func TestSubscribersReceiveInOrder(t *testing.T) {
	bus := events.NewBus(slog.New(slog.DiscardHandler))
	ch, cancel := bus.Subscribe(8)
	defer cancel()

	bus.Dispatch(context.Background(), []domain.Event{evt(1), evt(2)})
	bus.Dispatch(context.Background(), []domain.Event{evt(3)})
	for want := uint64(1); want <= 3; want++ {
		e := <-ch
		assert.Equal(t, want, e.Seq)
	}
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	bus := events.NewBus(slog.New(slog.DiscardHandler))
	_, cancel := bus.Subscribe(1)
	defer cancel()

	bus.Dispatch(context.Background(), []domain.Event{evt(1), evt(2), evt(3)})
	assert.Equal(t, uint64(2), bus.Dropped())
}

func TestCancelClosesChannel(t *testing.T) {
	bus := events.NewBus(slog.New(slog.DiscardHandler))
	ch, cancel := bus.Subscribe(1)
	cancel()
	cancel()
	_, ok := <-ch
	assert.False(t, ok)
	bus.Dispatch(context.Background(), []domain.Event{evt(1)})
	assert.Zero(t, bus.Dropped())
}

func TestSinksAreServedByRun(t *testing.T) {
	bus := events.NewBus(slog.New(slog.DiscardHandler))
	var mu sync.Mutex
	var got []uint64
	bus.AddSink("broken", events.SinkFunc(func(context.Context, domain.Event) error {
		return errors.New("down")
	}))
	bus.AddSink("memory", events.SinkFunc(func(_ context.Context, e domain.Event) error {
		mu.Lock()
		got = append(got, e.Seq)
		mu.Unlock()
		return nil
	}))

	ctx, stop := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- bus.Run(ctx) }()

	bus.Dispatch(ctx, []domain.Event{evt(1), evt(2)})
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, time.Second, 5*time.Millisecond)
	stop()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, []uint64{1, 2}, got)
}
