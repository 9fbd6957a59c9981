package mq

import (
	"context"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/sylvia-iot/broker-core/internal/errors"
	"github.com/sylvia-iot/broker-core/internal/logger"
)

// MQTTTransport dials one MQTT broker connection. Broadcast receive queues
// (uldata, dldata-result) are subscribed under the configured
// shared-subscription prefix so multiple broker replicas cooperate as one
// logical consumer group; send queues publish to the plain topic name.
type MQTTTransport struct {
	hostURI      string
	sharedPrefix string

	mu     sync.Mutex
	client mqtt.Client
}

// NewMQTTTransport returns a Transport for an mqtt(s):// host_uri.
// sharedPrefix is applied to broadcast receive-side subscriptions, e.g.
// "$share/sylvia-iot-broker/".
func NewMQTTTransport(hostURI, sharedPrefix string) *MQTTTransport {
	return &MQTTTransport{hostURI: hostURI, sharedPrefix: sharedPrefix}
}

func (t *MQTTTransport) Dial(ctx context.Context) error {
	opts := mqtt.NewClientOptions().
		AddBroker(t.hostURI).
		SetAutoReconnect(true).
		SetConnectTimeout(5 * time.Second).
		SetConnectRetry(false)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		return errors.NewDownstreamTransient("mqtt connect timed out", nil)
	}
	if err := token.Error(); err != nil {
		return err
	}
	t.mu.Lock()
	t.client = client
	t.mu.Unlock()
	return nil
}

func (t *MQTTTransport) Disconnect(ctx context.Context) error {
	t.mu.Lock()
	client := t.client
	t.client = nil
	t.mu.Unlock()
	if client == nil {
		return nil
	}
	client.Disconnect(250)
	return nil
}

func (t *MQTTTransport) NewQueue(name string, recv bool, opts Options) Queue {
	return &mqttQueue{transport: t, name: name, recv: recv, opts: opts, state: Closed}
}

type mqttQueue struct {
	transport *MQTTTransport
	name      string
	recv      bool
	opts      Options

	mu      sync.Mutex
	handler Handler
	state   ConnState
}

func (q *mqttQueue) Name() string { return q.name }

func (q *mqttQueue) Status() ConnState {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state
}

func (q *mqttQueue) SetHandler(h Handler) {
	q.mu.Lock()
	q.handler = h
	q.mu.Unlock()
}

// subscribeTopic returns the topic used for subscription, applying the
// shared prefix to broadcast queues so that multiple broker replicas form
// one consumer group instead of each receiving every message.
func (q *mqttQueue) subscribeTopic() string {
	if q.opts.Broadcast && q.transport.sharedPrefix != "" {
		return q.transport.sharedPrefix + q.name
	}
	return q.name
}

func (q *mqttQueue) qos() byte {
	if q.opts.Reliable {
		return 1
	}
	return 0
}

func (q *mqttQueue) Connect(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.state == Connected {
		return nil
	}

	q.transport.mu.Lock()
	client := q.transport.client
	q.transport.mu.Unlock()
	if client == nil {
		return errors.NewDownstreamTransient("mqtt queue connect: transport not dialed", nil).WithContext("queue", q.name)
	}

	if q.recv {
		topic := q.subscribeTopic()
		token := client.Subscribe(topic, q.qos(), func(_ mqtt.Client, msg mqtt.Message) {
			q.deliver(msg)
		})
		if !token.WaitTimeout(5 * time.Second) {
			q.state = Disconnected
			return errors.NewDownstreamTransient("mqtt subscribe timed out", nil).WithContext("topic", topic)
		}
		if err := token.Error(); err != nil {
			if topic != q.name && strings.Contains(err.Error(), "not supported") {
				logger.Warn("broker rejected shared subscription, falling back to plain topic", zap.String("topic", topic))
				retry := client.Subscribe(q.name, q.qos(), func(_ mqtt.Client, msg mqtt.Message) { q.deliver(msg) })
				retry.Wait()
				if rerr := retry.Error(); rerr != nil {
					q.state = Disconnected
					return errors.NewDownstreamTransient("mqtt fallback subscribe failed", rerr).WithContext("topic", q.name)
				}
			} else {
				q.state = Disconnected
				return errors.NewDownstreamTransient("mqtt subscribe failed", err).WithContext("topic", topic)
			}
		}
	}
	q.state = Connected
	return nil
}

func (q *mqttQueue) deliver(msg mqtt.Message) {
	q.mu.Lock()
	h := q.handler
	q.mu.Unlock()
	if h == nil {
		return
	}
	if err := h(context.Background(), msg.Payload()); err != nil {
		logger.Warn("mqtt message handler failed", zap.String("topic", msg.Topic()), zap.Error(err))
		return
	}
	msg.Ack()
}

func (q *mqttQueue) Send(ctx context.Context, body []byte) error {
	q.transport.mu.Lock()
	client := q.transport.client
	q.transport.mu.Unlock()
	if client == nil {
		return errors.NewDownstreamTransient("mqtt send: transport not dialed", nil).WithContext("queue", q.name)
	}
	token := client.Publish(q.name, q.qos(), false, body)
	if !token.WaitTimeout(5 * time.Second) {
		return errors.NewDownstreamTransient("mqtt publish timed out", nil).WithContext("queue", q.name)
	}
	if err := token.Error(); err != nil {
		return errors.NewDownstreamTransient("mqtt publish failed", err).WithContext("queue", q.name)
	}
	return nil
}

func (q *mqttQueue) Close(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.transport.mu.Lock()
	client := q.transport.client
	q.transport.mu.Unlock()
	if client != nil && q.recv {
		client.Unsubscribe(q.subscribeTopic())
	}
	q.state = Closed
	return nil
}
