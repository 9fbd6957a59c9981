package control

import (
	"context"

	"github.com/sylvia-iot/broker-core/internal/cache"
	"github.com/sylvia-iot/broker-core/internal/logger"
)

// ManagerLifecycle creates and destroys application/network managers in
// reaction to control-plane mutations. internal/supervisor implements this
// structurally; control never imports supervisor, the same import-cycle
// avoidance internal/routing uses for its own manager lookups.
type ManagerLifecycle interface {
	CreateApplication(unitCode, applicationCode, hostURI string)
	DestroyApplication(unitCode, applicationCode string)
	CreateNetwork(unitCode, networkCode, hostURI string, public bool)
	DestroyNetwork(unitCode, networkCode string)
	CloseUnit(unitCode string)
}

// Dispatcher implements the control plane's receiver policy: for every
// operation a channel can carry, which routing caches to invalidate and
// which manager to create or destroy. Every handler tolerates duplicate and
// out-of-order delivery: invalidating an already-absent cache entry or
// destroying an already-absent manager is a no-op, so redelivery never
// corrupts state.
type Dispatcher struct {
	cache *cache.Routing
	mgrs  ManagerLifecycle
}

// NewDispatcher constructs a Dispatcher. mgrs may be nil for a process that
// only needs cache invalidation (e.g. a read-only component); no manager
// lifecycle calls are attempted in that case.
func NewDispatcher(rc *cache.Routing, mgrs ManagerLifecycle) *Dispatcher {
	return &Dispatcher{cache: rc, mgrs: mgrs}
}

// Unit handles the unit channel: del-unit clears every cache and tears down
// every application/network manager owned by the unit.
func (d *Dispatcher) Unit(ctx context.Context, env Envelope) error {
	switch env.Operation {
	case OpDelUnit:
		if env.New == nil {
			return nil
		}
		d.cache.Clear()
		if d.mgrs != nil {
			d.mgrs.CloseUnit(env.New.UnitCode)
		}
	case OpAddUnit:
		// no cache or manager state exists yet for a newly added unit.
	default:
		logger.WarnCtx(ctx, "unrecognized unit control operation")
	}
	return nil
}

// Application handles the application channel: add/del create or destroy
// the application's manager, and invalidate the route caches an
// application's manager affects (route caches aren't addressable per
// application, so this is a full route-cache clear; see
// cache.Routing.ClearRoutes).
func (d *Dispatcher) Application(ctx context.Context, env Envelope) error {
	switch env.Operation {
	case OpAddApplication:
		if env.New == nil {
			return nil
		}
		d.cache.ClearRoutes()
		if d.mgrs != nil {
			d.mgrs.CreateApplication(env.New.UnitCode, env.New.ApplicationCode, env.New.HostURI)
		}
	case OpDelApplication:
		if env.New == nil {
			return nil
		}
		d.cache.ClearRoutes()
		if d.mgrs != nil {
			d.mgrs.DestroyApplication(env.New.UnitCode, env.New.ApplicationCode)
		}
	default:
		logger.WarnCtx(ctx, "unrecognized application control operation")
	}
	return nil
}

// Network handles the network channel: add/del create or destroy the
// network's manager and invalidate routes the same way as Application.
func (d *Dispatcher) Network(ctx context.Context, env Envelope) error {
	switch env.Operation {
	case OpAddNetwork:
		if env.New == nil {
			return nil
		}
		d.cache.ClearRoutes()
		if d.mgrs != nil {
			d.mgrs.CreateNetwork(env.New.UnitCode, env.New.NetworkCode, env.New.HostURI, env.New.Public)
		}
	case OpDelNetwork:
		if env.New == nil {
			return nil
		}
		d.cache.ClearRoutes()
		if d.mgrs != nil {
			d.mgrs.DestroyNetwork(env.New.UnitCode, env.New.NetworkCode)
		}
	default:
		logger.WarnCtx(ctx, "unrecognized network control operation")
	}
	return nil
}

// Device handles the device channel: add (including bulk/range variants)
// invalidates the uplink/downlink caches for the new address; upd
// invalidates both the old and new address.
func (d *Dispatcher) Device(ctx context.Context, env Envelope) error {
	switch env.Operation {
	case OpAddDevice, OpAddDeviceBulk, OpAddDeviceRange:
		if env.New == nil {
			return nil
		}
		d.invalidateAddr(env.New)
	case OpUpdDevice:
		if env.Old != nil {
			d.invalidateAddr(env.Old)
		}
		if env.New != nil {
			d.invalidateAddr(env.New)
		}
	default:
		logger.WarnCtx(ctx, "unrecognized device control operation")
	}
	return nil
}

func (d *Dispatcher) invalidateAddr(k *Keys) {
	d.cache.DelUlData(k.UnitCode, k.NetworkCode, k.NetworkAddr)
	d.cache.DelDlData(k.UnitCode, k.NetworkCode, k.NetworkAddr)
}

// DeviceRoute handles the device-route channel: add/del/upd invalidate the
// uplink/downlink route caches for the route's address and the
// dldata-pub resolution cache for (unit_id, device_id).
func (d *Dispatcher) DeviceRoute(ctx context.Context, env Envelope) error {
	switch env.Operation {
	case OpAddDeviceRoute, OpDelDeviceRoute, OpUpdDeviceRoute:
		if env.New != nil {
			d.invalidateRoute(env.New)
		}
		if env.Old != nil {
			d.invalidateRoute(env.Old)
		}
	default:
		logger.WarnCtx(ctx, "unrecognized device-route control operation")
	}
	return nil
}

func (d *Dispatcher) invalidateRoute(k *Keys) {
	d.cache.DelUlData(k.UnitCode, k.NetworkCode, k.NetworkAddr)
	d.cache.DelDlData(k.UnitCode, k.NetworkCode, k.NetworkAddr)
	d.cache.DelDlDataPub(k.UnitID, k.DeviceID)
}

// NetworkRoute handles the network-route channel: add/del invalidate the
// network-route-uplink cache for (unit_code, network_code).
func (d *Dispatcher) NetworkRoute(ctx context.Context, env Envelope) error {
	switch env.Operation {
	case OpAddNetworkRoute, OpDelNetworkRoute:
		if env.New != nil {
			d.cache.DelNetworkRoute(env.New.UnitCode, env.New.NetworkCode)
		}
		if env.Old != nil {
			d.cache.DelNetworkRoute(env.Old.UnitCode, env.Old.NetworkCode)
		}
	default:
		logger.WarnCtx(ctx, "unrecognized network-route control operation")
	}
	return nil
}
