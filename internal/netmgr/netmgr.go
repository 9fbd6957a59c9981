// Package netmgr implements the Network Manager: one instance per
// (unit_code, network_code, host_uri), owning the uldata/dldata/
// dldata-result/ctrl queue roster rooted at
// broker.network.<unit_code>.<network_code>.<kind>. Runs a
// Disconnected -> Connecting -> Connected -> Ready state machine,
// generalized from a single router client connection to a four-queue
// roster sharing one pooled broker connection.
package netmgr

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sylvia-iot/broker-core/internal/errors"
	"github.com/sylvia-iot/broker-core/internal/logger"
	"github.com/sylvia-iot/broker-core/internal/mq"
)

// MgrStatus aggregates the worst of a manager's queue statuses.
type MgrStatus int

const (
	NotReady MgrStatus = iota
	Ready
)

func (s MgrStatus) String() string {
	if s == Ready {
		return "ready"
	}
	return "not_ready"
}

// UplinkFrame is the validated shape of a network->broker uldata message.
type UplinkFrame struct {
	Time        time.Time
	NetworkAddr string
	Data        string // hex
	Extension   map[string]any
}

// UplinkHandler processes one validated uplink frame. Errors are treated as
// processing failures (NACK); on AMQP the message is redelivered once and
// dropped if the redelivery fails too.
type UplinkHandler func(ctx context.Context, frame UplinkFrame) error

// ResultFrame is the validated shape of a network->broker dldata-result
// message.
type ResultFrame struct {
	DataID  string
	Status  int // <0 non-retryable, 0 success, >0 retryable
	Message string
}

// ResultHandler processes one delivery-result frame.
type ResultHandler func(ctx context.Context, result ResultFrame) error

// Identity names one network manager instance.
type Identity struct {
	UnitCode    string // "_" for public networks
	NetworkCode string
	HostURI     string
	Public      bool
}

// QueueName returns the broker.network.<unit_code>.<network_code>.<kind>
// name for this identity.
func (id Identity) QueueName(kind string) string {
	unitCode := id.UnitCode
	if id.Public {
		unitCode = "_"
	}
	return fmt.Sprintf("broker.network.%s.%s.%s", unitCode, id.NetworkCode, kind)
}

// Manager is one Network Manager instance.
type Manager struct {
	id   Identity
	pool *mq.Pool
	opts mq.Options

	mu       sync.RWMutex
	conn     *mq.Connection
	uldata   mq.Queue
	dldata   mq.Queue
	dlResult mq.Queue
	ctrl     mq.Queue

	onUplink UplinkHandler
	onResult ResultHandler
}

// New constructs a Manager without connecting it. Call Start to dial and
// open the queue roster.
func New(id Identity, pool *mq.Pool, prefetch int, onUplink UplinkHandler, onResult ResultHandler) *Manager {
	return &Manager{
		id:       id,
		pool:     pool,
		opts:     mq.Options{Prefetch: prefetch},
		onUplink: onUplink,
		onResult: onResult,
	}
}

// Identity returns the identity this manager was constructed with.
func (m *Manager) Identity() Identity {
	return m.id
}

// Start dials the shared broker connection and opens uldata, dldata,
// dldata-result, and ctrl queues.
func (m *Manager) Start(ctx context.Context) error {
	conn, err := m.pool.Acquire(ctx, m.id.HostURI)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.conn = conn
	m.mu.Unlock()

	ul := m.queue(m.id.QueueName("uldata"), true, mq.Options{Reliable: true, Broadcast: false, Prefetch: m.opts.Prefetch})
	ul.SetHandler(m.handleUplink)

	dl := m.queue(m.id.QueueName("dldata"), false, mq.Options{Reliable: true})
	res := m.queue(m.id.QueueName("dldata-result"), true, mq.Options{Reliable: true})
	res.SetHandler(m.handleResult)
	ctrl := m.queue(m.id.QueueName("ctrl"), false, mq.Options{Reliable: false})

	for _, q := range []mq.Queue{ul, dl, res, ctrl} {
		if err := q.Connect(ctx); err != nil {
			return err
		}
	}

	m.mu.Lock()
	m.uldata, m.dldata, m.dlResult, m.ctrl = ul, dl, res, ctrl
	m.mu.Unlock()

	logger.Info("network manager started")
	return nil
}

func (m *Manager) queue(name string, recv bool, opts mq.Options) mq.Queue {
	m.mu.RLock()
	conn := m.conn
	m.mu.RUnlock()
	return conn.NewQueue(name, recv, opts)
}

// handleUplink validates the raw JSON uldata payload and forwards it to
// onUplink. Invalid payloads are logged and ACKed (dropped).
func (m *Manager) handleUplink(ctx context.Context, body []byte) error {
	frame, err := decodeUplink(body)
	if err != nil {
		logger.WarnCtx(ctx, "dropping invalid uplink payload")
		return nil
	}
	if m.onUplink == nil {
		return nil
	}
	return m.onUplink(ctx, frame)
}

func (m *Manager) handleResult(ctx context.Context, body []byte) error {
	result, err := decodeResult(body)
	if err != nil {
		logger.WarnCtx(ctx, "dropping invalid dldata-result payload")
		return nil
	}
	if m.onResult == nil {
		return nil
	}
	return m.onResult(ctx, result)
}

// SendDownlink publishes a dldata frame to the network.
func (m *Manager) SendDownlink(ctx context.Context, body []byte) error {
	m.mu.RLock()
	q := m.dldata
	m.mu.RUnlock()
	if q == nil {
		return errors.NewDownstreamTransient("network manager not started", nil)
	}
	return q.Send(ctx, body)
}

// SendCtrl announces a device-membership change to the network.
func (m *Manager) SendCtrl(ctx context.Context, body []byte) error {
	m.mu.RLock()
	q := m.ctrl
	m.mu.RUnlock()
	if q == nil {
		return errors.NewDownstreamTransient("network manager not started", nil)
	}
	return q.Send(ctx, body)
}

// Status aggregates the manager's queue statuses (Ready requires
// every required queue Connected).
func (m *Manager) Status() MgrStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	queues := []mq.Queue{m.uldata, m.dldata, m.dlResult, m.ctrl}
	for _, q := range queues {
		if q == nil || q.Status() != mq.Connected {
			return NotReady
		}
	}
	return Ready
}

// Close tears down the queue roster and releases the shared connection.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	queues := []mq.Queue{m.uldata, m.dldata, m.dlResult, m.ctrl}
	m.mu.Unlock()

	var firstErr error
	for _, q := range queues {
		if q == nil {
			continue
		}
		if err := q.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	m.pool.Release(ctx, m.id.HostURI)
	return firstErr
}
