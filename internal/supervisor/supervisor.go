// Package supervisor implements the Manager Lifecycle Supervisor: the
// process-wide registry of live Application and Network Managers, keyed by
// (unit_code, code), that the control plane drives as applications and
// networks are added, removed, or re-pointed at a different broker. Built
// around a lock-protected map of managers with circuit-breaker-backed
// reconnection, driven by an event bus, generalized here from one
// router-client connection per pool entry to a whole multi-queue manager
// per entry, and using a per-key lock rather than one package-wide RWMutex
// so one application's slow startup can never stall another's create or
// destroy.
package supervisor

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sylvia-iot/broker-core/internal/appmgr"
	"github.com/sylvia-iot/broker-core/internal/logger"
	"github.com/sylvia-iot/broker-core/internal/mq"
	"github.com/sylvia-iot/broker-core/internal/netmgr"
)

type appKey struct{ unitCode, applicationCode string }

func (k appKey) String() string { return "app:" + k.unitCode + "/" + k.applicationCode }

type netKey struct{ unitCode, networkCode string }

func (k netKey) String() string { return "net:" + k.unitCode + "/" + k.networkCode }

// EngineHandlers is the subset of internal/routing.Engine the supervisor
// needs to bind a freshly constructed manager's handlers. *routing.Engine
// satisfies this directly; defined here (rather than imported from routing)
// so supervisor and routing can each be built and tested without depending
// on the other's full package, mirroring the AppManagerLookup/
// NetManagerLookup interfaces routing itself defines for the reverse
// direction.
type EngineHandlers interface {
	ApplicationDownlinkHandler(id appmgr.Identity) appmgr.DownlinkHandler
	ApplicationAcceptedHook(id appmgr.Identity) appmgr.DownlinkAcceptedHook
	NetworkUplinkHandler(id netmgr.Identity) netmgr.UplinkHandler
	NetworkResultHandler(id netmgr.Identity) netmgr.ResultHandler
}

// Supervisor owns every live Application/Network Manager in the process. It
// implements routing.AppManagerLookup, routing.NetManagerLookup, and
// control.ManagerLifecycle by structural typing; this package imports
// neither routing nor control.
type Supervisor struct {
	pool       *mq.Pool
	engine     EngineHandlers
	prefetch   int
	startGrace time.Duration
	closeGrace time.Duration

	locks *keyedMutex

	appsMu sync.RWMutex
	apps   map[appKey]*appmgr.Manager

	netsMu sync.RWMutex
	nets   map[netKey]*netmgr.Manager
}

// New constructs a Supervisor. startGrace bounds how long a newly created
// manager is given to finish Start before the attempt is given up on;
// closeGrace is the deadline of the context handed to a manager's Close on
// destroy (queue Close does not wait for in-flight handlers). SetEngine must be
// called once before any control-plane traffic arrives.
func New(pool *mq.Pool, prefetch int, startGrace, closeGrace time.Duration) *Supervisor {
	return &Supervisor{
		pool:       pool,
		prefetch:   prefetch,
		startGrace: startGrace,
		closeGrace: closeGrace,
		locks:      newKeyedMutex(),
		apps:       make(map[appKey]*appmgr.Manager),
		nets:       make(map[netKey]*netmgr.Manager),
	}
}

// SetEngine wires the routing Engine whose handlers new managers bind to.
// The Engine and Supervisor are mutually dependent at construction (the
// Engine needs the Supervisor as a manager lookup, the Supervisor needs the
// Engine to hand new managers their handlers), so wiring happens in two
// phases: construct the Supervisor, construct the Engine with it as the
// lookup, then SetEngine the Engine back onto the Supervisor.
func (s *Supervisor) SetEngine(e EngineHandlers) {
	s.engine = e
}

// AppManager resolves the live, ready Application Manager for
// (unit_code, application_code). Implements routing.AppManagerLookup.
func (s *Supervisor) AppManager(unitCode, applicationCode string) (*appmgr.Manager, bool) {
	s.appsMu.RLock()
	defer s.appsMu.RUnlock()
	mgr, ok := s.apps[appKey{unitCode, applicationCode}]
	if !ok || mgr.Status() != appmgr.Ready {
		return nil, false
	}
	return mgr, true
}

// NetManager resolves the live, ready Network Manager for
// (unit_code, network_code); pass unitCode "_" for a public network.
// Implements routing.NetManagerLookup.
func (s *Supervisor) NetManager(unitCode, networkCode string) (*netmgr.Manager, bool) {
	s.netsMu.RLock()
	defer s.netsMu.RUnlock()
	mgr, ok := s.nets[netKey{unitCode, networkCode}]
	if !ok || mgr.Status() != netmgr.Ready {
		return nil, false
	}
	return mgr, true
}

// CreateApplication creates the Application Manager for
// (unit_code, application_code) if none exists yet. Re-creating an existing
// manager with the same host_uri is a no-op; a different host_uri triggers
// a construct-new -> swap -> close-old handoff so in-flight uplinks never
// see a gap. Implements control.ManagerLifecycle.
func (s *Supervisor) CreateApplication(unitCode, applicationCode, hostURI string) {
	key := appKey{unitCode, applicationCode}
	unlock := s.locks.Lock(key.String())
	defer unlock()

	s.appsMu.RLock()
	existing, exists := s.apps[key]
	s.appsMu.RUnlock()

	if exists {
		if existing.Identity().HostURI == hostURI {
			return
		}
		s.swapApplication(key, unitCode, applicationCode, hostURI, existing)
		return
	}
	s.startApplication(key, unitCode, applicationCode, hostURI)
}

func (s *Supervisor) startApplication(key appKey, unitCode, applicationCode, hostURI string) {
	if s.engine == nil {
		logger.Warn("supervisor has no engine wired, refusing to start application manager")
		return
	}
	id := appmgr.Identity{UnitCode: unitCode, ApplicationCode: applicationCode, HostURI: hostURI}
	mgr := appmgr.New(id, s.pool, s.prefetch, s.engine.ApplicationDownlinkHandler(id))
	mgr.SetOnAccepted(s.engine.ApplicationAcceptedHook(id))

	ctx, cancel := context.WithTimeout(context.Background(), s.startGrace)
	defer cancel()
	if err := mgr.Start(ctx); err != nil {
		logger.Warn("application manager failed to start",
			zap.String("unit_code", unitCode), zap.String("application_code", applicationCode), zap.Error(err))
		return
	}

	s.appsMu.Lock()
	s.apps[key] = mgr
	s.appsMu.Unlock()
}

func (s *Supervisor) swapApplication(key appKey, unitCode, applicationCode, hostURI string, old *appmgr.Manager) {
	if s.engine == nil {
		logger.Warn("supervisor has no engine wired, refusing to swap application manager")
		return
	}
	id := appmgr.Identity{UnitCode: unitCode, ApplicationCode: applicationCode, HostURI: hostURI}
	next := appmgr.New(id, s.pool, s.prefetch, s.engine.ApplicationDownlinkHandler(id))
	next.SetOnAccepted(s.engine.ApplicationAcceptedHook(id))

	ctx, cancel := context.WithTimeout(context.Background(), s.startGrace)
	defer cancel()
	if err := next.Start(ctx); err != nil {
		logger.Warn("application manager host_uri swap failed, keeping previous connection",
			zap.String("unit_code", unitCode), zap.String("application_code", applicationCode), zap.Error(err))
		return
	}

	s.appsMu.Lock()
	s.apps[key] = next
	s.appsMu.Unlock()

	s.closeApplication(old)
}

func (s *Supervisor) closeApplication(mgr *appmgr.Manager) {
	ctx, cancel := context.WithTimeout(context.Background(), s.closeGrace)
	defer cancel()
	if err := mgr.Close(ctx); err != nil {
		logger.Warn("application manager close failed", zap.Error(err))
	}
}

// DestroyApplication tears down the Application Manager for
// (unit_code, application_code). Destroying an unknown manager is a no-op.
// Implements control.ManagerLifecycle.
func (s *Supervisor) DestroyApplication(unitCode, applicationCode string) {
	key := appKey{unitCode, applicationCode}
	unlock := s.locks.Lock(key.String())
	defer unlock()

	s.appsMu.Lock()
	mgr, ok := s.apps[key]
	if ok {
		delete(s.apps, key)
	}
	s.appsMu.Unlock()
	if !ok {
		return
	}
	s.closeApplication(mgr)
}

// CreateNetwork creates the Network Manager for (unit_code, network_code),
// the same create/swap-on-host_uri-change/no-op-if-identical policy as
// CreateApplication. A public network (public true, or an empty unitCode —
// control.ManagerLifecycle.DestroyNetwork carries no public flag, so the
// registry key always normalizes an empty unit_code to "_") is keyed and
// looked up under unit_code "_", matching routing.NetManagerLookup's
// documented convention. Implements control.ManagerLifecycle.
func (s *Supervisor) CreateNetwork(unitCode, networkCode, hostURI string, public bool) {
	keyUnit := unitCode
	if public || keyUnit == "" {
		keyUnit, public = "_", true
	}
	key := netKey{keyUnit, networkCode}
	unlock := s.locks.Lock(key.String())
	defer unlock()

	id := netmgr.Identity{UnitCode: unitCode, NetworkCode: networkCode, HostURI: hostURI, Public: public}

	s.netsMu.RLock()
	existing, exists := s.nets[key]
	s.netsMu.RUnlock()

	if exists {
		if existing.Identity().HostURI == hostURI {
			return
		}
		s.swapNetwork(key, id, existing)
		return
	}
	s.startNetwork(key, id)
}

func (s *Supervisor) startNetwork(key netKey, id netmgr.Identity) {
	if s.engine == nil {
		logger.Warn("supervisor has no engine wired, refusing to start network manager")
		return
	}
	mgr := netmgr.New(id, s.pool, s.prefetch, s.engine.NetworkUplinkHandler(id), s.engine.NetworkResultHandler(id))

	ctx, cancel := context.WithTimeout(context.Background(), s.startGrace)
	defer cancel()
	if err := mgr.Start(ctx); err != nil {
		logger.Warn("network manager failed to start",
			zap.String("unit_code", id.UnitCode), zap.String("network_code", id.NetworkCode), zap.Error(err))
		return
	}

	s.netsMu.Lock()
	s.nets[key] = mgr
	s.netsMu.Unlock()
}

func (s *Supervisor) swapNetwork(key netKey, id netmgr.Identity, old *netmgr.Manager) {
	if s.engine == nil {
		logger.Warn("supervisor has no engine wired, refusing to swap network manager")
		return
	}
	next := netmgr.New(id, s.pool, s.prefetch, s.engine.NetworkUplinkHandler(id), s.engine.NetworkResultHandler(id))

	ctx, cancel := context.WithTimeout(context.Background(), s.startGrace)
	defer cancel()
	if err := next.Start(ctx); err != nil {
		logger.Warn("network manager host_uri swap failed, keeping previous connection",
			zap.String("unit_code", id.UnitCode), zap.String("network_code", id.NetworkCode), zap.Error(err))
		return
	}

	s.netsMu.Lock()
	s.nets[key] = next
	s.netsMu.Unlock()

	s.closeNetwork(old)
}

func (s *Supervisor) closeNetwork(mgr *netmgr.Manager) {
	ctx, cancel := context.WithTimeout(context.Background(), s.closeGrace)
	defer cancel()
	if err := mgr.Close(ctx); err != nil {
		logger.Warn("network manager close failed", zap.Error(err))
	}
}

// DestroyNetwork tears down the Network Manager for
// (unit_code, network_code). Destroying an unknown manager is a no-op.
// Implements control.ManagerLifecycle.
func (s *Supervisor) DestroyNetwork(unitCode, networkCode string) {
	keyUnit := unitCode
	if keyUnit == "" {
		keyUnit = "_"
	}
	key := netKey{keyUnit, networkCode}
	unlock := s.locks.Lock(key.String())
	defer unlock()

	s.netsMu.Lock()
	mgr, ok := s.nets[key]
	if ok {
		delete(s.nets, key)
	}
	s.netsMu.Unlock()
	if !ok {
		return
	}
	s.closeNetwork(mgr)
}

// CloseUnit tears down every application and (private) network manager
// owned by unitCode, used on del-unit. Public networks are never "owned" by
// a unit and are left running. Closes concurrently since one manager's
// teardown grace should not add to another's.
func (s *Supervisor) CloseUnit(unitCode string) {
	var appMgrs []*appmgr.Manager
	var appKeys []appKey
	s.appsMu.Lock()
	for k, mgr := range s.apps {
		if k.unitCode == unitCode {
			appMgrs = append(appMgrs, mgr)
			appKeys = append(appKeys, k)
			delete(s.apps, k)
		}
	}
	s.appsMu.Unlock()

	var netMgrs []*netmgr.Manager
	var netKeys []netKey
	s.netsMu.Lock()
	for k, mgr := range s.nets {
		if k.unitCode == unitCode {
			netMgrs = append(netMgrs, mgr)
			netKeys = append(netKeys, k)
			delete(s.nets, k)
		}
	}
	s.netsMu.Unlock()

	var g errgroup.Group
	for i := range appMgrs {
		mgr, key := appMgrs[i], appKeys[i]
		g.Go(func() error {
			unlock := s.locks.Lock(key.String())
			defer unlock()
			s.closeApplication(mgr)
			return nil
		})
	}
	for i := range netMgrs {
		mgr, key := netMgrs[i], netKeys[i]
		g.Go(func() error {
			unlock := s.locks.Lock(key.String())
			defer unlock()
			s.closeNetwork(mgr)
			return nil
		})
	}
	_ = g.Wait()
}

// CloseAll tears down every application and network manager the supervisor
// owns, public or private, for process shutdown. Unlike CloseUnit it does
// not filter by unit_code, so it is the only path that closes public
// network managers.
func (s *Supervisor) CloseAll(ctx context.Context) {
	s.appsMu.Lock()
	appMgrs := make([]*appmgr.Manager, 0, len(s.apps))
	appKeys := make([]appKey, 0, len(s.apps))
	for k, mgr := range s.apps {
		appMgrs = append(appMgrs, mgr)
		appKeys = append(appKeys, k)
		delete(s.apps, k)
	}
	s.appsMu.Unlock()

	s.netsMu.Lock()
	netMgrs := make([]*netmgr.Manager, 0, len(s.nets))
	netKeys := make([]netKey, 0, len(s.nets))
	for k, mgr := range s.nets {
		netMgrs = append(netMgrs, mgr)
		netKeys = append(netKeys, k)
		delete(s.nets, k)
	}
	s.netsMu.Unlock()

	var g errgroup.Group
	for i := range appMgrs {
		mgr, key := appMgrs[i], appKeys[i]
		g.Go(func() error {
			unlock := s.locks.Lock(key.String())
			defer unlock()
			s.closeApplication(mgr)
			return nil
		})
	}
	for i := range netMgrs {
		mgr, key := netMgrs[i], netKeys[i]
		g.Go(func() error {
			unlock := s.locks.Lock(key.String())
			defer unlock()
			s.closeNetwork(mgr)
			return nil
		})
	}
	_ = g.Wait()
}

// Stats reports how many application and network managers are currently
// registered, regardless of readiness, for the ambient status endpoint.
type Stats struct {
	Applications int
	Networks     int
}

// Stats returns current registry sizes.
func (s *Supervisor) Stats() Stats {
	s.appsMu.RLock()
	apps := len(s.apps)
	s.appsMu.RUnlock()
	s.netsMu.RLock()
	nets := len(s.nets)
	s.netsMu.RUnlock()
	return Stats{Applications: apps, Networks: nets}
}
