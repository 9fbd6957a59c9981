package routing

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sylvia-iot/broker-core/internal/appmgr"
	"github.com/sylvia-iot/broker-core/internal/cache"
	"github.com/sylvia-iot/broker-core/internal/config"
	"github.com/sylvia-iot/broker-core/internal/model"
	"github.com/sylvia-iot/broker-core/internal/model/sqlite"
	"github.com/sylvia-iot/broker-core/internal/mq"
	"github.com/sylvia-iot/broker-core/internal/netmgr"

	"github.com/stretchr/testify/require"
)

// newTestModel returns a fresh in-memory-sqlite-backed model. Each call
// opens its own private database, so tests never share state.
func newTestModel(t *testing.T) *model.Model {
	t.Helper()
	db, err := sqlite.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlite.NewModel(db)
}

func newTestCache() *cache.Routing {
	return cache.NewRouting(config.CacheEngineMemory, config.CacheMemorySettings{
		Device: 100, DeviceRoute: 100, NetworkRoute: 100,
	})
}

type fakeQueue struct {
	mu   sync.Mutex
	name string
	st   mq.ConnState
	sent [][]byte
}

func (q *fakeQueue) Connect(ctx context.Context) error { q.st = mq.Connected; return nil }
func (q *fakeQueue) Close(ctx context.Context) error   { q.st = mq.Closed; return nil }
func (q *fakeQueue) Send(ctx context.Context, body []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.sent = append(q.sent, body)
	return nil
}
func (q *fakeQueue) SetHandler(h mq.Handler) {}
func (q *fakeQueue) Status() mq.ConnState    { return q.st }
func (q *fakeQueue) Name() string            { return q.name }

type fakeTransport struct {
	mu     sync.Mutex
	queues map[string]*fakeQueue
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{queues: make(map[string]*fakeQueue)}
}

func (t *fakeTransport) Dial(ctx context.Context) error       { return nil }
func (t *fakeTransport) Disconnect(ctx context.Context) error { return nil }
func (t *fakeTransport) NewQueue(name string, recv bool, opts mq.Options) mq.Queue {
	t.mu.Lock()
	defer t.mu.Unlock()
	q := &fakeQueue{name: name}
	t.queues[name] = q
	return q
}

// newTestAppManager starts a ready appmgr.Manager backed by its own fake
// transport, so tests can inspect what it sent on its dldata-resp/result
// queues after the fact.
func newTestAppManager(t *testing.T, unitCode, appCode string, onDownlink appmgr.DownlinkHandler) (*appmgr.Manager, *fakeTransport) {
	t.Helper()
	tr := newFakeTransport()
	pool := mq.NewPool(func(hostURI string) (mq.Transport, error) { return tr, nil })
	id := appmgr.Identity{UnitCode: unitCode, ApplicationCode: appCode, HostURI: "amqp://broker"}
	m := appmgr.New(id, pool, 10, onDownlink)
	require.NoError(t, m.Start(context.Background()))
	return m, tr
}

// newTestNetManager starts a ready netmgr.Manager backed by its own fake
// transport.
func newTestNetManager(t *testing.T, unitCode, netCode string, public bool, onUplink netmgr.UplinkHandler, onResult netmgr.ResultHandler) (*netmgr.Manager, *fakeTransport) {
	t.Helper()
	tr := newFakeTransport()
	pool := mq.NewPool(func(hostURI string) (mq.Transport, error) { return tr, nil })
	id := netmgr.Identity{UnitCode: unitCode, NetworkCode: netCode, Public: public, HostURI: "amqp://broker"}
	m := netmgr.New(id, pool, 10, onUplink, onResult)
	require.NoError(t, m.Start(context.Background()))
	return m, tr
}

// stubAppLookup is a fixed-roster AppManagerLookup keyed by
// "unitCode/applicationCode".
type stubAppLookup map[string]*appmgr.Manager

func appKey(unitCode, appCode string) string { return unitCode + "/" + appCode }

func (s stubAppLookup) AppManager(unitCode, applicationCode string) (*appmgr.Manager, bool) {
	mgr, ok := s[appKey(unitCode, applicationCode)]
	return mgr, ok
}

// stubNetLookup is a fixed-roster NetManagerLookup keyed by
// "unitCode/networkCode".
type stubNetLookup map[string]*netmgr.Manager

func netKeyStr(unitCode, networkCode string) string { return unitCode + "/" + networkCode }

func (s stubNetLookup) NetManager(unitCode, networkCode string) (*netmgr.Manager, bool) {
	mgr, ok := s[netKeyStr(unitCode, networkCode)]
	return mgr, ok
}

func truncMillis(t time.Time) time.Time { return t.UTC().Truncate(time.Millisecond) }
