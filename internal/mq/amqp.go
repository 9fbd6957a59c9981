package mq

import (
	"context"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/sylvia-iot/broker-core/internal/errors"
	"github.com/sylvia-iot/broker-core/internal/logger"
)

// AMQPTransport dials one AMQP 0-9-1 broker connection and opens channels
// for its queues. AMQP fan-out uses ordinary work-queue competing
// consumers: no shared-subscription prefix is needed, unlike MQTT.
type AMQPTransport struct {
	hostURI string

	mu   sync.Mutex
	conn *amqp.Connection
}

// NewAMQPTransport returns a Transport for an amqp(s):// host_uri.
func NewAMQPTransport(hostURI string) *AMQPTransport {
	return &AMQPTransport{hostURI: hostURI}
}

func (t *AMQPTransport) Dial(ctx context.Context) error {
	conn, err := amqp.DialConfig(t.hostURI, amqp.Config{})
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()
	return nil
}

func (t *AMQPTransport) Disconnect(ctx context.Context) error {
	t.mu.Lock()
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}

func (t *AMQPTransport) NewQueue(name string, recv bool, opts Options) Queue {
	return &amqpQueue{transport: t, name: name, recv: recv, opts: opts, state: Closed}
}

type amqpQueue struct {
	transport *AMQPTransport
	name      string
	recv      bool
	opts      Options

	mu      sync.Mutex
	ch      *amqp.Channel
	handler Handler
	state   ConnState
}

func (q *amqpQueue) Name() string { return q.name }

func (q *amqpQueue) Status() ConnState {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state
}

func (q *amqpQueue) SetHandler(h Handler) {
	q.mu.Lock()
	q.handler = h
	q.mu.Unlock()
}

func (q *amqpQueue) Connect(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.state == Connected {
		return nil
	}

	q.transport.mu.Lock()
	conn := q.transport.conn
	q.transport.mu.Unlock()
	if conn == nil {
		return errors.NewDownstreamTransient("amqp queue connect: transport not dialed", nil).WithContext("queue", q.name)
	}

	ch, err := conn.Channel()
	if err != nil {
		q.state = Disconnected
		return errors.NewDownstreamTransient("open amqp channel", err).WithContext("queue", q.name)
	}
	if q.opts.Prefetch > 0 {
		if err := ch.Qos(q.opts.Prefetch, 0, false); err != nil {
			ch.Close()
			return errors.NewDownstreamTransient("set amqp qos", err).WithContext("queue", q.name)
		}
	}
	if _, err := ch.QueueDeclare(q.name, q.opts.Reliable, !q.opts.Reliable, false, false, nil); err != nil {
		ch.Close()
		return errors.NewDownstreamTransient("declare amqp queue", err).WithContext("queue", q.name)
	}
	q.ch = ch
	q.state = Connected

	if q.recv && q.handler != nil {
		deliveries, err := ch.Consume(q.name, "", false, false, false, false, nil)
		if err != nil {
			return errors.NewDownstreamTransient("consume amqp queue", err).WithContext("queue", q.name)
		}
		go q.consumeLoop(deliveries)
	}
	return nil
}

func (q *amqpQueue) consumeLoop(deliveries <-chan amqp.Delivery) {
	for d := range deliveries {
		q.mu.Lock()
		h := q.handler
		q.mu.Unlock()
		if h == nil {
			d.Nack(false, true)
			continue
		}
		if err := h(context.Background(), d.Body); err != nil {
			logger.Warn("amqp message handler failed, nacking", zap.String("queue", q.name), zap.Error(err))
			d.Nack(false, !d.Redelivered)
			continue
		}
		d.Ack(false)
	}
}

func (q *amqpQueue) Send(ctx context.Context, body []byte) error {
	q.mu.Lock()
	ch := q.ch
	q.mu.Unlock()
	if ch == nil {
		return errors.NewDownstreamTransient("amqp send: queue not connected", nil).WithContext("queue", q.name)
	}
	err := ch.PublishWithContext(ctx, "", q.name, false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: deliveryMode(q.opts.Reliable),
	})
	if err != nil {
		return errors.NewDownstreamTransient("publish amqp message", err).WithContext("queue", q.name)
	}
	return nil
}

func deliveryMode(reliable bool) uint8 {
	if reliable {
		return amqp.Persistent
	}
	return amqp.Transient
}

func (q *amqpQueue) Close(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.ch == nil {
		q.state = Closed
		return nil
	}
	err := q.ch.Close()
	q.ch = nil
	q.state = Closed
	return err
}
