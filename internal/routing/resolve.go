package routing

import (
	"context"

	"github.com/sylvia-iot/broker-core/internal/cache"
	"github.com/sylvia-iot/broker-core/internal/errors"
	"github.com/sylvia-iot/broker-core/internal/model"
)

// Resolver performs cache-aside lookups against the routing caches, falling
// back to the data-model on a miss and repopulating the cache (including a
// negative entry on a data-model miss, so a repeated lookup for an unknown
// address doesn't keep hitting storage).
type Resolver struct {
	model *model.Model
	cache *cache.Routing
}

// Device resolves a (unit_code, network_code, network_addr) uplink address
// to its device identity, consulting the cache before the data-model.
func (r *Resolver) Device(ctx context.Context, unitCode, networkCode, networkAddr string, public bool) (cache.DeviceIdentity, error) {
	key := cache.AddrKey(unitCode, networkCode, networkAddr)
	if id, res := r.cache.DeviceByAddr.Get(key); res == cache.Hit {
		return id, nil
	} else if res == cache.Negative {
		return cache.DeviceIdentity{}, errors.NewNotFound(errors.CodeDeviceNotExist, "device not found for address")
	}

	network, err := r.resolveNetwork(ctx, unitCode, networkCode, public)
	if err != nil {
		r.cache.DeviceByAddr.SetNegative(key)
		return cache.DeviceIdentity{}, errors.NewNotFound(errors.CodeDeviceNotExist, "network not found for address").WithCause(err)
	}
	dev, err := r.model.Device.GetByAddr(ctx, network.NetworkID, networkAddr)
	if err != nil {
		r.cache.DeviceByAddr.SetNegative(key)
		return cache.DeviceIdentity{}, errors.NewNotFound(errors.CodeDeviceNotExist, "device not found for address").WithCause(err)
	}

	id := cache.DeviceIdentity{
		DeviceID:    dev.DeviceID,
		UnitID:      dev.UnitID,
		NetworkID:   dev.NetworkID,
		NetworkAddr: dev.NetworkAddr,
		Profile:     dev.Profile,
	}
	r.cache.DeviceByAddr.Set(key, id)
	r.cache.DeviceByID.Set(dev.DeviceID, id)
	return id, nil
}

// DeviceByID resolves a device identity by its opaque id, used by the
// downlink submission path when the application addresses by deviceId.
func (r *Resolver) DeviceByID(ctx context.Context, deviceID string) (cache.DeviceIdentity, error) {
	if id, res := r.cache.DeviceByID.Get(deviceID); res == cache.Hit {
		return id, nil
	} else if res == cache.Negative {
		return cache.DeviceIdentity{}, errors.NewNotFound(errors.CodeDeviceNotExist, "device not found")
	}
	dev, err := r.model.Device.GetByID(ctx, deviceID)
	if err != nil {
		r.cache.DeviceByID.SetNegative(deviceID)
		return cache.DeviceIdentity{}, errors.NewNotFound(errors.CodeDeviceNotExist, "device not found").WithCause(err)
	}
	id := cache.DeviceIdentity{
		DeviceID:    dev.DeviceID,
		UnitID:      dev.UnitID,
		NetworkID:   dev.NetworkID,
		NetworkAddr: dev.NetworkAddr,
		Profile:     dev.Profile,
	}
	r.cache.DeviceByID.Set(deviceID, id)
	return id, nil
}

func (r *Resolver) resolveNetwork(ctx context.Context, unitCode, networkCode string, public bool) (*model.Network, error) {
	if public {
		return r.model.Network.GetByCode(ctx, "", networkCode)
	}
	unit, err := r.model.Unit.GetByCode(ctx, unitCode)
	if err != nil {
		return nil, err
	}
	return r.model.Network.GetByCode(ctx, unit.UnitID, networkCode)
}

// UplinkTargets returns the deduplicated set of applications an uplink from
// (unit_code, network_code, network_addr) fans out to: the union of
// device-route-uplink entries for this address and network-route-uplink
// entries for the whole network.
func (r *Resolver) UplinkTargets(ctx context.Context, unitCode, networkCode, networkAddr string, dev cache.DeviceIdentity) ([]cache.RouteTarget, error) {
	deviceTargets, err := r.deviceRouteTargets(ctx, unitCode, networkCode, networkAddr, dev.DeviceID)
	if err != nil {
		return nil, err
	}
	networkTargets, err := r.networkRouteTargets(ctx, unitCode, networkCode, dev.NetworkID)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(deviceTargets)+len(networkTargets))
	out := make([]cache.RouteTarget, 0, len(deviceTargets)+len(networkTargets))
	for _, t := range append(deviceTargets, networkTargets...) {
		if _, ok := seen[t.ApplicationID]; ok {
			continue
		}
		seen[t.ApplicationID] = struct{}{}
		out = append(out, t)
	}
	return out, nil
}

func (r *Resolver) deviceRouteTargets(ctx context.Context, unitCode, networkCode, networkAddr, deviceID string) ([]cache.RouteTarget, error) {
	key := cache.AddrKey(unitCode, networkCode, networkAddr)
	if targets, res := r.cache.DeviceRouteUplink.Get(key); res == cache.Hit {
		return targets, nil
	}

	routes, err := r.model.DeviceRoute.ListByDevice(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	targets := make([]cache.RouteTarget, 0, len(routes))
	for _, route := range routes {
		app, err := r.model.Application.GetByID(ctx, route.ApplicationID)
		if err != nil {
			continue
		}
		targets = append(targets, cache.RouteTarget{
			ApplicationID:   app.ApplicationID,
			ApplicationCode: app.Code,
			HostURI:         app.HostURI,
		})
	}
	r.cache.DeviceRouteUplink.Set(key, targets)
	return targets, nil
}

func (r *Resolver) networkRouteTargets(ctx context.Context, unitCode, networkCode, networkID string) ([]cache.RouteTarget, error) {
	key := cache.NetKey(unitCode, networkCode)
	if targets, res := r.cache.NetworkRouteUplink.Get(key); res == cache.Hit {
		return targets, nil
	}

	routes, err := r.model.NetworkRoute.ListByNetwork(ctx, networkID)
	if err != nil {
		return nil, err
	}
	targets := make([]cache.RouteTarget, 0, len(routes))
	for _, route := range routes {
		app, err := r.model.Application.GetByID(ctx, route.ApplicationID)
		if err != nil {
			continue
		}
		targets = append(targets, cache.RouteTarget{
			ApplicationID:   app.ApplicationID,
			ApplicationCode: app.Code,
			HostURI:         app.HostURI,
		})
	}
	r.cache.NetworkRouteUplink.Set(key, targets)
	return targets, nil
}
