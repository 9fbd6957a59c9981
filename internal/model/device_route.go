package model

import "context"

// DeviceRouteListCond narrows a device-route listing.
type DeviceRouteListCond struct {
	UnitID        string
	ApplicationID string
	NetworkID     string
	DeviceID      string
}

// DeviceRouteStore persists DeviceRoute entities. DeviceRoute rows have no
// mutable fields beyond their denormalized device identity, which is
// recomputed wholesale on Device.Move rather than patched field by field.
type DeviceRouteStore interface {
	// Add inserts a new device route. Conflict if (application_id,
	// device_id) already exists.
	Add(ctx context.Context, r *DeviceRoute) error

	GetByID(ctx context.Context, routeID string) (*DeviceRoute, error)

	// ListByDevice returns every route for a device, used by the uplink fan-
	// out path to find candidate applications.
	ListByDevice(ctx context.Context, deviceID string) ([]DeviceRoute, error)

	// RefreshDeviceIdentity rewrites the denormalized network/address/
	// profile fields on every route for deviceID, called after Device.Move.
	RefreshDeviceIdentity(ctx context.Context, deviceID, networkID, networkCode, networkAddr, profile string) error

	Delete(ctx context.Context, routeID string) error

	// DeleteByDeviceAndApplication removes the route for a specific
	// (deviceID, applicationID) pair, if any. Not an error if absent.
	DeleteByDeviceAndApplication(ctx context.Context, deviceID, applicationID string) error

	Count(ctx context.Context, cond DeviceRouteListCond) (int, error)
	List(ctx context.Context, cond DeviceRouteListCond, opts ListOptions) (Page[DeviceRoute], error)
}

// NetworkRouteListCond narrows a network-route listing.
type NetworkRouteListCond struct {
	UnitID        string
	ApplicationID string
	NetworkID     string
}

// NetworkRouteStore persists NetworkRoute entities.
type NetworkRouteStore interface {
	// Add inserts a new network route. Conflict if (application_id,
	// network_id) already exists.
	Add(ctx context.Context, r *NetworkRoute) error

	GetByID(ctx context.Context, routeID string) (*NetworkRoute, error)

	// ListByNetwork returns every application subscribed to a network's
	// full traffic, used by the uplink fan-out path.
	ListByNetwork(ctx context.Context, networkID string) ([]NetworkRoute, error)

	Delete(ctx context.Context, routeID string) error

	Count(ctx context.Context, cond NetworkRouteListCond) (int, error)
	List(ctx context.Context, cond NetworkRouteListCond, opts ListOptions) (Page[NetworkRoute], error)
}

// Route sort keys, shared by device and network routes.
const (
	RouteSortNetworkCode     = "network_code"
	RouteSortApplicationCode = "application_code"
	RouteSortCreatedAt       = "created_at"
)
