package control

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannel_Handle_MalformedJSONIsAckedNotNacked(t *testing.T) {
	var called bool
	ch := newChannel("unit", "amqp://broker", 10, nil, func(ctx context.Context, env Envelope) error {
		called = true
		return nil
	})

	err := ch.handle(context.Background(), []byte("{not json"))
	require.NoError(t, err, "malformed control messages must be ACKed, never NACKed")
	assert.False(t, called)
}

func TestChannel_Handle_ValidEnvelopeForwardsToOnRecv(t *testing.T) {
	var got Envelope
	ch := newChannel("application", "amqp://broker", 10, nil, func(ctx context.Context, env Envelope) error {
		got = env
		return nil
	})

	body := []byte(`{"operation":"add-application","new":{"unitCode":"u1","applicationCode":"app1"}}`)
	err := ch.handle(context.Background(), body)
	require.NoError(t, err)
	assert.Equal(t, OpAddApplication, got.Operation)
	require.NotNil(t, got.New)
	assert.Equal(t, "u1", got.New.UnitCode)
	assert.Equal(t, "app1", got.New.ApplicationCode)
}

func TestChannel_Handle_HandlerErrorStillAcks(t *testing.T) {
	ch := newChannel("device", "amqp://broker", 10, nil, func(ctx context.Context, env Envelope) error {
		return assert.AnError
	})

	body := []byte(`{"operation":"add-device","new":{"unitCode":"u1"}}`)
	err := ch.handle(context.Background(), body)
	require.NoError(t, err, "a handler error must not propagate as a NACK")
}
