package control

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_Dispatch_RunsHandlersInRegistrationOrder(t *testing.T) {
	b := newBus()
	defer b.close()

	var order []int
	b.subscribe("unit", func(ctx context.Context, env Envelope) error {
		order = append(order, 1)
		return nil
	})
	b.subscribe("unit", func(ctx context.Context, env Envelope) error {
		order = append(order, 2)
		return nil
	})

	b.dispatch(context.Background(), "unit", Envelope{Operation: OpDelUnit})
	assert.Equal(t, []int{1, 2}, order)
}

func TestBus_Dispatch_OnlyNotifiesMatchingChannel(t *testing.T) {
	b := newBus()
	defer b.close()

	var unitCalls, appCalls int
	b.subscribe("unit", func(ctx context.Context, env Envelope) error { unitCalls++; return nil })
	b.subscribe("application", func(ctx context.Context, env Envelope) error { appCalls++; return nil })

	b.dispatch(context.Background(), "unit", Envelope{Operation: OpDelUnit})
	assert.Equal(t, 1, unitCalls)
	assert.Equal(t, 0, appCalls)
}

func TestBus_Dispatch_PublishesOntoInternalTopic(t *testing.T) {
	b := newBus()
	defer b.close()

	messages, err := b.pubsub.Subscribe(context.Background(), "network")
	require.NoError(t, err)

	b.dispatch(context.Background(), "network", Envelope{Operation: OpAddNetwork})

	select {
	case msg := <-messages:
		msg.Ack()
		assert.Contains(t, string(msg.Payload), OpAddNetwork)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for internal bus message")
	}
}
