package mq

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/sylvia-iot/broker-core/internal/errors"
	"github.com/sylvia-iot/broker-core/internal/logger"
)

// Transport opens queues against one broker connection. AMQPTransport and
// MQTTTransport are the two concrete implementations; Connection is
// transport-agnostic.
type Transport interface {
	// Dial establishes the underlying broker connection.
	Dial(ctx context.Context) error

	// Disconnect tears down the underlying broker connection.
	Disconnect(ctx context.Context) error

	// NewQueue returns a Queue bound to this connection for the given name
	// and direction/options.
	NewQueue(name string, recv bool, opts Options) Queue
}

// Connection is one pooled transport connection to a host_uri, shared by
// every queue opened against that broker.
type Connection struct {
	HostURI   string
	transport Transport
	breaker   *CircuitBreaker

	mu       sync.RWMutex
	state    ConnState
	refCount int
}

func newConnection(hostURI string, transport Transport) *Connection {
	return &Connection{
		HostURI:   hostURI,
		transport: transport,
		breaker:   NewCircuitBreaker(hostURI, DefaultCircuitBreakerConfig(), logCircuitTransition),
		state:     Closed,
	}
}

func logCircuitTransition(hostURI string, from, to gobreaker.State) {
	logger.Warn("mq circuit breaker state change",
		zap.String("host_uri", redactHostURI(hostURI)), zap.Stringer("from", from), zap.Stringer("to", to))
}

func (c *Connection) setState(next ConnState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.state.CanTransitionTo(next) {
		return
	}
	c.state = next
}

// Status returns the connection's current state.
func (c *Connection) Status() ConnState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// NewQueue returns a Queue bound to this connection, delegating to the
// underlying transport (AMQP or MQTT). Callers still call Connect on the
// returned Queue themselves.
func (c *Connection) NewQueue(name string, recv bool, opts Options) Queue {
	return c.transport.NewQueue(name, recv, opts)
}

// connect dials the broker with exponential backoff, retrying until ctx is
// done, and runs the whole attempt through the circuit breaker: while the
// breaker is open, connect fails at once without dialing.
func (c *Connection) connect(ctx context.Context) error {
	if c.Status() == Connected {
		return nil
	}
	c.setState(Connecting)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxElapsedTime = 0
	bctx := backoff.WithContext(b, ctx)

	_, err := c.breaker.Execute(func() (any, error) {
		return nil, backoff.Retry(func() error {
			return c.transport.Dial(ctx)
		}, bctx)
	})
	if err != nil {
		c.setState(Disconnected)
		return errors.NewDownstreamTransient("connect to message broker", err).WithContext("host_uri", c.HostURI)
	}
	c.setState(Connected)
	logger.Info("mq connection established", zap.String("host_uri", redactHostURI(c.HostURI)))
	return nil
}

func (c *Connection) acquire() {
	c.mu.Lock()
	c.refCount++
	c.mu.Unlock()
}

// release decrements the refcount and reports whether it reached zero (the
// caller should then close the underlying transport).
func (c *Connection) release() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.refCount > 0 {
		c.refCount--
	}
	return c.refCount == 0
}

func (c *Connection) close(ctx context.Context) error {
	c.setState(Closed)
	return c.transport.Disconnect(ctx)
}

// redactHostURI strips userinfo (broker credentials) from a host URI before
// it reaches a log line.
func redactHostURI(hostURI string) string {
	at := strings.LastIndex(hostURI, "@")
	scheme := strings.Index(hostURI, "://")
	if at == -1 || scheme == -1 || at < scheme {
		return hostURI
	}
	return hostURI[:scheme+3] + "***" + hostURI[at:]
}

// Pool is the process-wide host_uri -> Connection map. Multiple
// network/application managers pointed at the same broker share one
// Connection; the last releaser closes it.
type Pool struct {
	mu    sync.Mutex
	conns map[string]*Connection
	dial  func(hostURI string) (Transport, error)
}

// NewPool returns an empty pool. dial constructs a Transport for a host_uri
// without connecting it; Acquire calls Dial separately.
func NewPool(dial func(hostURI string) (Transport, error)) *Pool {
	return &Pool{conns: make(map[string]*Connection), dial: dial}
}

// Acquire returns the shared Connection for hostURI, creating and dialing
// it on first use, and increments its reference count. Callers must call
// Release exactly once when done with the connection.
func (p *Pool) Acquire(ctx context.Context, hostURI string) (*Connection, error) {
	p.mu.Lock()
	conn, ok := p.conns[hostURI]
	if !ok {
		transport, err := p.dial(hostURI)
		if err != nil {
			p.mu.Unlock()
			return nil, errors.NewDownstreamPermanent("build message broker transport", err).WithContext("host_uri", hostURI)
		}
		conn = newConnection(hostURI, transport)
		p.conns[hostURI] = conn
	}
	conn.acquire()
	p.mu.Unlock()

	if err := conn.connect(ctx); err != nil {
		p.Release(ctx, hostURI)
		return nil, err
	}
	return conn, nil
}

// Release decrements hostURI's refcount and closes the connection once no
// caller holds it.
func (p *Pool) Release(ctx context.Context, hostURI string) {
	p.mu.Lock()
	conn, ok := p.conns[hostURI]
	if !ok {
		p.mu.Unlock()
		return
	}
	last := conn.release()
	if last {
		delete(p.conns, hostURI)
	}
	p.mu.Unlock()

	if last {
		if err := conn.close(ctx); err != nil {
			logger.Warn("mq connection close failed", zap.String("host_uri", redactHostURI(hostURI)), zap.Error(err))
		}
	}
}

// Count returns the number of distinct broker connections currently pooled.
func (p *Pool) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.conns)
}

// CloseAll tears down every pooled connection regardless of refcount, used
// during process shutdown.
func (p *Pool) CloseAll(ctx context.Context) {
	p.mu.Lock()
	conns := make([]*Connection, 0, len(p.conns))
	for _, c := range p.conns {
		conns = append(conns, c)
	}
	p.conns = make(map[string]*Connection)
	p.mu.Unlock()

	for _, c := range conns {
		if err := c.close(ctx); err != nil {
			logger.Warn("mq connection close failed during shutdown", zap.String("host_uri", redactHostURI(c.HostURI)), zap.Error(err))
		}
	}
}
