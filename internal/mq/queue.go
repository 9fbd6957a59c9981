package mq

import "context"

// Handler processes one received message. Returning an error NACKs the
// message (on AMQP it is redelivered once, and a failed redelivery is
// dropped); returning nil ACKs it. A handler must not
// block past the message's processing; suspension points are confined to
// the I/O the handler itself performs.
type Handler func(ctx context.Context, body []byte) error

// Options configures one queue within a connection: its reliable/non-reliable
// and broadcast/non-broadcast distinctions.
type Options struct {
	// Reliable requests at-least-once delivery (AMQP durable/ack'd queue,
	// MQTT QoS 1). Non-reliable queues (ctrl-send) use QoS 0 / no publisher
	// confirms.
	Reliable bool

	// Broadcast requests fan-out delivery to every subscriber rather than
	// work-queue competition (used for uldata/dldata-result subscriptions
	// shared across broker replicas via the MQTT shared-subscription
	// prefix; AMQP uses normal work-queue fan-out instead).
	Broadcast bool

	// Prefetch bounds the unacked in-flight window (AMQP QoS prefetch).
	Prefetch int
}

// Queue is the abstract capability the network/application managers
// consume: connect, close, send, receive-handler registration, and
// status, independent of the underlying transport.
type Queue interface {
	// Connect opens the queue against its connection, declaring/subscribing
	// as needed. Idempotent: calling Connect while already Connected is a
	// no-op.
	Connect(ctx context.Context) error

	// Close tears the queue down. It returns without waiting for in-flight
	// handler calls to finish.
	Close(ctx context.Context) error

	// Send publishes body. Only valid for send-direction queues.
	Send(ctx context.Context, body []byte) error

	// SetHandler registers the receive handler. Only valid for
	// receive-direction queues; must be called before Connect.
	SetHandler(h Handler)

	// Status returns the queue's current connection state.
	Status() ConnState

	// Name returns the queue's broker-visible name.
	Name() string
}
