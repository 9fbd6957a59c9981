// Package appmgr implements the Application Manager: one
// instance per (unit_code, application_code, host_uri), owning the
// uldata/dldata/dldata-resp/dldata-result/ctrl queue roster rooted at
// broker.application.<unit_code>.<application_code>.<kind>. Grounded on
// internal/netmgr's Network Manager, which shares the same lifecycle shape
// against a different queue roster and payload contract.
package appmgr

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

// DownlinkRequest is the validated shape of an application->broker dldata
// submission.
type DownlinkRequest struct {
	CorrelationID string
	DeviceID      string
	NetworkAddr   string
	NetworkCode   string
	Data          string // hex
	Extension     map[string]any
	ExpiresIn     time.Duration // 0 means "use the routing engine's default"
}

// DownlinkHandler processes one validated downlink submission, returning the
// data_id assigned to it (echoed in the dldata-resp message) or an error.
type DownlinkHandler func(ctx context.Context, req DownlinkRequest) (dataID string, err error)

// DownlinkAcceptedHook runs after the accept dldata-resp for req has been
// sent to the application, so the network-bound send it triggers never
// races ahead of the application's acknowledgement.
type DownlinkAcceptedHook func(ctx context.Context, req DownlinkRequest, dataID string)

// ResultFrame is the validated shape of a broker->application dldata-result
// message (delivery outcome reported upstream).
type ResultFrame struct {
	DataID  string
	Status  int
	Message string
}

// Identity names one application manager instance.
type Identity struct {
	UnitCode        string
	ApplicationCode string
	HostURI         string
}

// QueueName returns the broker.application.<unit_code>.<application_code>.<kind>
// name for this identity.
func (id Identity) QueueName(kind string) string {
	return fmt.Sprintf("broker.application.%s.%s.%s", id.UnitCode, id.ApplicationCode, kind)
}

// Manager is one Application Manager instance.
type Manager struct {
	id   Identity
	pool *mq.Pool
	opts mq.Options

	mu         sync.RWMutex
	conn       *mq.Connection
	uldata     mq.Queue
	dldata     mq.Queue
	dldataResp mq.Queue
	dlResult   mq.Queue
	ctrl       mq.Queue

	onDownlink DownlinkHandler
	onAccepted DownlinkAcceptedHook
}

// New constructs a Manager without connecting it. Call Start to dial and
// open the queue roster.
func New(id Identity, pool *mq.Pool, prefetch int, onDownlink DownlinkHandler) *Manager {
	return &Manager{
		id:         id,
		pool:       pool,
		opts:       mq.Options{Prefetch: prefetch},
		onDownlink: onDownlink,
	}
}

// SetOnAccepted registers the hook run once a downlink's accept dldata-resp
// has been sent. Must be called before Start.
func (m *Manager) SetOnAccepted(hook DownlinkAcceptedHook) {
	m.onAccepted = hook
}

// Identity returns the identity this manager was constructed with.
func (m *Manager) Identity() Identity {
	return m.id
}

// Start dials the shared broker connection and opens uldata, dldata,
// dldata-resp, dldata-result, and ctrl queues.
func (m *Manager) Start(ctx context.Context) error {
	conn, err := m.pool.Acquire(ctx, m.id.HostURI)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.conn = conn
	m.mu.Unlock()

	ul := m.queue(m.id.QueueName("uldata"), false, mq.Options{Reliable: true})
	dl := m.queue(m.id.QueueName("dldata"), true, mq.Options{Reliable: true, Prefetch: m.opts.Prefetch})
	dl.SetHandler(m.handleDownlink)
	resp := m.queue(m.id.QueueName("dldata-resp"), false, mq.Options{Reliable: true})
	res := m.queue(m.id.QueueName("dldata-result"), false, mq.Options{Reliable: true})
	ctrl := m.queue(m.id.QueueName("ctrl"), false, mq.Options{Reliable: false})

	for _, q := range []mq.Queue{ul, dl, resp, res, ctrl} {
		if err := q.Connect(ctx); err != nil {
			return err
		}
	}

	m.mu.Lock()
	m.uldata, m.dldata, m.dldataResp, m.dlResult, m.ctrl = ul, dl, resp, res, ctrl
	m.mu.Unlock()

	logger.Info("application manager started")
	return nil
}

func (m *Manager) queue(name string, recv bool, opts mq.Options) mq.Queue {
	m.mu.RLock()
	conn := m.conn
	m.mu.RUnlock()
	return conn.NewQueue(name, recv, opts)
}

// handleDownlink decodes an application's dldata submission, runs it through
// onDownlink, and emits the matching dldata-resp acknowledgement before the
// message it caused is forwarded to the network.
func (m *Manager) handleDownlink(ctx context.Context, body []byte) error {
	req, err := decodeDownlinkRequest(body)
	if err != nil {
		logger.WarnCtx(ctx, "dropping invalid dldata submission")
		return m.sendResp(ctx, respWire{CorrelationID: req.CorrelationID, Error: errCodeOf(err)})
	}
	if m.onDownlink == nil {
		return nil
	}
	dataID, err := m.onDownlink(ctx, req)
	if err != nil {
		return m.sendResp(ctx, respWire{CorrelationID: req.CorrelationID, Error: errCodeOf(err)})
	}
	if err := m.sendResp(ctx, respWire{CorrelationID: req.CorrelationID, DataID: dataID}); err != nil {
		return err
	}
	if m.onAccepted != nil {
		m.onAccepted(ctx, req, dataID)
	}
	return nil
}

func (m *Manager) sendResp(ctx context.Context, resp respWire) error {
	body, err := encodeResp(resp)
	if err != nil {
		return err
	}
	m.mu.RLock()
	q := m.dldataResp
	m.mu.RUnlock()
	if q == nil {
		return errors.NewDownstreamTransient("application manager not started", nil)
	}
	return q.Send(ctx, body)
}

// PublishUplink forwards an uplink frame to the application.
func (m *Manager) PublishUplink(ctx context.Context, body []byte) error {
	m.mu.RLock()
	q := m.uldata
	m.mu.RUnlock()
	if q == nil {
		return errors.NewDownstreamTransient("application manager not started", nil)
	}
	return q.Send(ctx, body)
}

// PublishResult forwards a delivery-result frame to the application.
func (m *Manager) PublishResult(ctx context.Context, body []byte) error {
	m.mu.RLock()
	q := m.dlResult
	m.mu.RUnlock()
	if q == nil {
		return errors.NewDownstreamTransient("application manager not started", nil)
	}
	return q.Send(ctx, body)
}

// SendCtrl announces a device-membership change to the application.
func (m *Manager) SendCtrl(ctx context.Context, body []byte) error {
	m.mu.RLock()
	q := m.ctrl
	m.mu.RUnlock()
	if q == nil {
		return errors.NewDownstreamTransient("application manager not started", nil)
	}
	return q.Send(ctx, body)
}

// Status aggregates the manager's queue statuses.
func (m *Manager) Status() MgrStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	queues := []mq.Queue{m.uldata, m.dldata, m.dldataResp, m.dlResult, m.ctrl}
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
	queues := []mq.Queue{m.uldata, m.dldata, m.dldataResp, m.dlResult, m.ctrl}
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

func errCodeOf(err error) string {
	if be := errors.As(err); be != nil {
		return be.Code
	}
	return errors.CodeUnknown
}
