package control

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/sylvia-iot/broker-core/internal/logger"
	"github.com/sylvia-iot/broker-core/internal/mq"
)

// channel owns the wire queues for one control channel (unit, application,
// network, device, device-route or network-route): a broadcast receive
// queue every process subscribes to, and a broadcast send queue every
// process publishes its own mutations on.
type channel struct {
	name string

	pool *mq.Pool
	opts mq.Options

	mu       sync.Mutex
	conn     *mq.Connection
	hostURI  string
	recv     mq.Queue
	send     mq.Queue
	onRecv   Handler
}

func newChannel(name, hostURI string, prefetch int, pool *mq.Pool, onRecv Handler) *channel {
	return &channel{
		name:    name,
		hostURI: hostURI,
		pool:    pool,
		opts:    mq.Options{Reliable: true, Broadcast: true, Prefetch: prefetch},
		onRecv:  onRecv,
	}
}

func (c *channel) queueName() string { return "broker.ctrl." + c.name }

func (c *channel) start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	conn, err := c.pool.Acquire(ctx, c.hostURI)
	if err != nil {
		return err
	}
	c.conn = conn

	recv := conn.NewQueue(c.queueName(), true, c.opts)
	recv.SetHandler(c.handle)
	if err := recv.Connect(ctx); err != nil {
		c.pool.Release(ctx, c.hostURI)
		return err
	}
	c.recv = recv

	send := conn.NewQueue(c.queueName(), false, c.opts)
	if err := send.Connect(ctx); err != nil {
		recv.Close(ctx)
		c.pool.Release(ctx, c.hostURI)
		return err
	}
	c.send = send

	return nil
}

// handle decodes one wire message. Bad JSON is logged and ACKed (returning
// nil) rather than NACKed, so a malformed message cannot poison the channel
// with endless redelivery.
func (c *channel) handle(ctx context.Context, body []byte) error {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		logger.WarnCtx(ctx, "dropping malformed control message")
		return nil
	}
	if c.onRecv != nil {
		if err := c.onRecv(ctx, env); err != nil {
			logger.WarnCtx(ctx, "control message handler returned an error")
		}
	}
	return nil
}

func (c *channel) publish(ctx context.Context, env Envelope) error {
	c.mu.Lock()
	send := c.send
	c.mu.Unlock()
	if send == nil {
		return nil
	}
	body, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return send.Send(ctx, body)
}

// ready reports whether the channel's queues are connected, or true if the
// channel was never configured with a broker URL (nothing to wait for).
func (c *channel) ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hostURI == "" {
		return true
	}
	return c.recv != nil && c.recv.Status() == mq.Connected &&
		c.send != nil && c.send.Status() == mq.Connected
}

func (c *channel) close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.recv != nil {
		c.recv.Close(ctx)
	}
	if c.send != nil {
		c.send.Close(ctx)
	}
	if c.conn != nil {
		c.pool.Release(ctx, c.hostURI)
	}
	return nil
}
