package mq

import (
	"context"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
)

func TestDeliveryMode_ReliableIsPersistent(t *testing.T) {
	assert.Equal(t, uint8(amqp.Persistent), deliveryMode(true))
	assert.Equal(t, uint8(amqp.Transient), deliveryMode(false))
}

func TestAMQPQueue_ConnectBeforeTransportDialedFails(t *testing.T) {
	tr := NewAMQPTransport("amqp://broker")
	q := tr.NewQueue("ctrl.u1", true, Options{})

	err := q.Connect(context.Background())

	assert.Error(t, err)
	assert.Equal(t, Closed, q.Status())
}

func TestAMQPQueue_SendBeforeConnectFails(t *testing.T) {
	tr := NewAMQPTransport("amqp://broker")
	q := tr.NewQueue("ctrl.u1", false, Options{})

	err := q.Send(context.Background(), []byte("body"))

	assert.Error(t, err)
}

func TestAMQPTransport_DisconnectWithoutDialIsNoop(t *testing.T) {
	tr := NewAMQPTransport("amqp://broker")
	assert.NoError(t, tr.Disconnect(context.Background()))
}
