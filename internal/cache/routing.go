package cache

import "github.com/sylvia-iot/broker-core/internal/config"

// DeviceIdentity is the cached shape for device-by-address and
// device-by-id lookups: identity plus routing profile.
type DeviceIdentity struct {
	DeviceID    string
	UnitID      string
	NetworkID   string
	NetworkAddr string
	Profile     string
}

// RouteTarget describes one application reachable via a route, the shared
// shape for device-route-uplink and network-route-uplink entries.
type RouteTarget struct {
	ApplicationID   string
	ApplicationCode string
	HostURI         string
}

// DownlinkTarget is the cached shape for device-route-downlink lookups:
// enough to resolve a downlink submission straight to a network send.
type DownlinkTarget struct {
	NetworkHostURI string
	DeviceID       string
	Profile        string
}

// DlDataPubTarget is the cached shape for device-route-dldata-pub lookups,
// used to resolve a published downlink back to its originating route.
type DlDataPubTarget struct {
	ApplicationID string
	NetworkID     string
}

type addrKey struct{ unitCode, networkCode, networkAddr string }
type netKey struct{ unitCode, networkCode string }
type devIDKey struct{ unitID, deviceID string }

// Routing bundles the six named caches the routing engine consults, each
// with its own entity-family capacity and backing engine.
type Routing struct {
	DeviceByAddr       Cache[addrKey, DeviceIdentity]
	DeviceByID         Cache[string, DeviceIdentity]
	DeviceRouteUplink  Cache[addrKey, []RouteTarget]
	NetworkRouteUplink Cache[netKey, []RouteTarget]
	DeviceRouteDownlink Cache[addrKey, DownlinkTarget]
	DeviceRouteDlDataPub Cache[devIDKey, DlDataPubTarget]
}

// AddrKey builds the (unit_code, network_code, network_addr) composite key
// used by the address-scoped caches.
func AddrKey(unitCode, networkCode, networkAddr string) addrKey {
	return addrKey{unitCode, networkCode, networkAddr}
}

// NetKey builds the (unit_code, network_code) composite key used by
// network-route-uplink.
func NetKey(unitCode, networkCode string) netKey { return netKey{unitCode, networkCode} }

// DevIDKey builds the (unit_id, device_id) composite key used by
// device-route-dldata-pub.
func DevIDKey(unitID, deviceID string) devIDKey { return devIDKey{unitID, deviceID} }

// NewRouting constructs the routing cache bundle for the given engine and
// per-family capacities.
func NewRouting(engine config.CacheEngine, mem config.CacheMemorySettings) *Routing {
	if engine == config.CacheEngineNone {
		return &Routing{
			DeviceByAddr:         NewNoopCache[addrKey, DeviceIdentity](),
			DeviceByID:           NewNoopCache[string, DeviceIdentity](),
			DeviceRouteUplink:    NewNoopCache[addrKey, []RouteTarget](),
			NetworkRouteUplink:   NewNoopCache[netKey, []RouteTarget](),
			DeviceRouteDownlink:  NewNoopCache[addrKey, DownlinkTarget](),
			DeviceRouteDlDataPub: NewNoopCache[devIDKey, DlDataPubTarget](),
		}
	}
	deviceCap := mem.Device
	routeCap := mem.DeviceRoute
	netRouteCap := mem.NetworkRoute
	return &Routing{
		DeviceByAddr:         NewLRUCache[addrKey, DeviceIdentity](deviceCap),
		DeviceByID:           NewLRUCache[string, DeviceIdentity](deviceCap),
		DeviceRouteUplink:    NewLRUCache[addrKey, []RouteTarget](routeCap),
		NetworkRouteUplink:   NewLRUCache[netKey, []RouteTarget](netRouteCap),
		DeviceRouteDownlink:  NewLRUCache[addrKey, DownlinkTarget](routeCap),
		DeviceRouteDlDataPub: NewLRUCache[devIDKey, DlDataPubTarget](routeCap),
	}
}

// Clear empties every cache, used when a unit is deleted and every
// device/route cache entry under it must go.
func (r *Routing) Clear() {
	r.DeviceByAddr.Clear()
	r.DeviceByID.Clear()
	r.DeviceRouteUplink.Clear()
	r.NetworkRouteUplink.Clear()
	r.DeviceRouteDownlink.Clear()
	r.DeviceRouteDlDataPub.Clear()
}

// DelUlData invalidates the uplink-path caches for one device address,
// used on add/upd device and add/del/upd device-route.
func (r *Routing) DelUlData(unitCode, networkCode, networkAddr string) {
	k := AddrKey(unitCode, networkCode, networkAddr)
	r.DeviceByAddr.Delete(k)
	r.DeviceRouteUplink.Delete(k)
}

// DelDlData invalidates the downlink-path cache for one device address.
func (r *Routing) DelDlData(unitCode, networkCode, networkAddr string) {
	r.DeviceRouteDownlink.Delete(AddrKey(unitCode, networkCode, networkAddr))
}

// DelDlDataPub invalidates the published-downlink resolution cache for one
// (unit_id, device_id) pair.
func (r *Routing) DelDlDataPub(unitID, deviceID string) {
	r.DeviceByID.Delete(deviceID)
	r.DeviceRouteDlDataPub.Delete(DevIDKey(unitID, deviceID))
}

// DelNetworkRoute invalidates a network-route-uplink entry, used on
// add/del network-route.
func (r *Routing) DelNetworkRoute(unitCode, networkCode string) {
	r.NetworkRouteUplink.Delete(NetKey(unitCode, networkCode))
}

// ClearRoutes empties every route-fan-out cache (but not the device
// identity caches), used on add/del application and add/del network: the
// route caches are keyed by address/network rather than by application or
// unit, so a precise per-unit invalidation isn't addressable and a full
// route-cache clear is the safe alternative.
func (r *Routing) ClearRoutes() {
	r.DeviceRouteUplink.Clear()
	r.NetworkRouteUplink.Clear()
}
