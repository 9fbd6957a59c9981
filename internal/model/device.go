package model

import "context"

// DeviceListCond narrows a device listing.
type DeviceListCond struct {
	UnitID             string
	NetworkID          string
	NetworkAddr        string
	NetworkAddrContains string
	Profile            string
}

// DeviceUpdates carries tri-state field updates for Device.Update. Moving a
// device to a new network/address is expressed as Move, not through this
// type, because it cascades into DeviceRoute's denormalized fields.
type DeviceUpdates struct {
	Profile Opt[string]
	Name    Opt[string]
	Info    Opt[map[string]string]
}

// DeviceStore persists Device entities.
type DeviceStore interface {
	// Add inserts a new device. Conflict if (network_id, network_addr)
	// already exists.
	Add(ctx context.Context, d *Device) error

	GetByID(ctx context.Context, deviceID string) (*Device, error)

	// GetByAddr returns the device with the given (networkID, networkAddr),
	// used by the uplink resolution path.
	GetByAddr(ctx context.Context, networkID, networkAddr string) (*Device, error)

	Update(ctx context.Context, deviceID string, updates DeviceUpdates) error

	// Move relocates a device to a new (networkID, networkAddr). The caller
	// (internal/routing) is responsible for invalidating and recomputing any
	// DeviceRoute rows that denormalize the device's network identity.
	Move(ctx context.Context, deviceID, networkID, networkAddr string) error

	// Delete removes the device. Callers must cascade device-route cleanup.
	Delete(ctx context.Context, deviceID string) error

	Count(ctx context.Context, cond DeviceListCond) (int, error)
	List(ctx context.Context, cond DeviceListCond, opts ListOptions) (Page[Device], error)
}

// Device sort keys.
const (
	DeviceSortNetworkCode = "network_code"
	DeviceSortNetworkAddr = "network_addr"
	DeviceSortCreatedAt   = "created_at"
	DeviceSortModifiedAt  = "modified_at"
)
