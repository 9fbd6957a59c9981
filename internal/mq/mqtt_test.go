package mq

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMQTTQueue_SubscribeTopic_AppliesSharedPrefixOnlyForBroadcast(t *testing.T) {
	tr := NewMQTTTransport("mqtt://broker", "$share/broker/")

	broadcast := tr.NewQueue("uldata", true, Options{Broadcast: true}).(*mqttQueue)
	assert.Equal(t, "$share/broker/uldata", broadcast.subscribeTopic())

	plain := tr.NewQueue("ctrl.u1", true, Options{Broadcast: false}).(*mqttQueue)
	assert.Equal(t, "ctrl.u1", plain.subscribeTopic())
}

func TestMQTTQueue_SubscribeTopic_NoPrefixConfiguredFallsBackToPlain(t *testing.T) {
	tr := NewMQTTTransport("mqtt://broker", "")
	q := tr.NewQueue("uldata", true, Options{Broadcast: true}).(*mqttQueue)
	assert.Equal(t, "uldata", q.subscribeTopic())
}

func TestMQTTQueue_QoS_ReliableIsOne(t *testing.T) {
	tr := NewMQTTTransport("mqtt://broker", "")
	reliable := tr.NewQueue("ctrl.u1", false, Options{Reliable: true}).(*mqttQueue)
	assert.Equal(t, byte(1), reliable.qos())

	unreliable := tr.NewQueue("ctrl.u1", false, Options{Reliable: false}).(*mqttQueue)
	assert.Equal(t, byte(0), unreliable.qos())
}

func TestMQTTQueue_ConnectBeforeTransportDialedFails(t *testing.T) {
	tr := NewMQTTTransport("mqtt://broker", "")
	q := tr.NewQueue("ctrl.u1", true, Options{})

	err := q.Connect(context.Background())

	assert.Error(t, err)
	assert.Equal(t, Closed, q.Status())
}

func TestMQTTQueue_SendBeforeConnectFails(t *testing.T) {
	tr := NewMQTTTransport("mqtt://broker", "")
	q := tr.NewQueue("ctrl.u1", false, Options{})

	err := q.Send(context.Background(), []byte("body"))

	assert.Error(t, err)
}

func TestMQTTTransport_DisconnectWithoutDialIsNoop(t *testing.T) {
	tr := NewMQTTTransport("mqtt://broker", "")
	assert.NoError(t, tr.Disconnect(context.Background()))
}
