package eventbus_test

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptline/promptline/pkg/channels/gochannel"
	"github.com/promptline/promptline/pkg/eventbus"
	"github.com/promptline/promptline/pkg/events"
)

func TestWatermillEventBusRoundTrip(t *testing.T) {
	pub, sub, err := gochannel.CreateTestChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub)

	received := make(chan *events.RunTriggered, 1)

	err = bus.Handle(events.RunTriggeredEvent, func(_ context.Context, event any) error {
		triggered, ok := event.(*events.RunTriggered)
		require.True(t, ok)

		received <- triggered

		return nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, bus.Subscribe(ctx))

	sent := events.RunTriggered{
		BaseEvent: events.NewBaseEvent(events.RunTriggeredEvent, "chain-1", "run-1"),
		Inputs:    map[string]any{"topic": "bees"},
	}
	sent.UserID = "user-1"

	require.NoError(t, bus.Publish(ctx, "run-1", sent))

	select {
	case got := <-received:
		assert.Equal(t, "chain-1", got.ChainID)
		assert.Equal(t, "run-1", got.RunID)
		assert.Equal(t, "user-1", got.UserID)
		assert.Equal(t, "bees", got.Inputs["topic"])
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for run.triggered event")
	}

	require.NoError(t, bus.Close())
}

func TestWatermillEventBusIgnoresUnsubscribedTypes(t *testing.T) {
	pub, sub, err := gochannel.CreateTestChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub)

	received := make(chan *events.RunCompleted, 1)

	err = bus.Handle(events.RunCompletedEvent, func(_ context.Context, event any) error {
		received <- event.(*events.RunCompleted)

		return nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, bus.Subscribe(ctx))

	// An event type with no handler is acked and dropped.
	started := events.RunStarted{
		BaseEvent: events.NewBaseEvent(events.RunStartedEvent, "chain-1", "run-1"),
		ChainName: "test",
		StepCount: 1,
	}
	require.NoError(t, bus.Publish(ctx, "run-1", started))

	completed := events.RunCompleted{
		BaseEvent:     events.NewBaseEvent(events.RunCompletedEvent, "chain-1", "run-1"),
		FinalOutput:   "done",
		StepsExecuted: 1,
	}
	require.NoError(t, bus.Publish(ctx, "run-1", completed))

	select {
	case got := <-received:
		assert.Equal(t, "done", got.FinalOutput)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for run.completed event")
	}

	require.NoError(t, bus.Close())
}
