// Package model defines the broker's Data-Model Layer: the
// entities, their CRUD/list contracts, and the abstract Store interfaces
// that persistence backends (internal/model/sqlite) implement. It follows a
// light-repository pattern: narrow per-entity interfaces rather than a
// generic CRUD base, generalized from router-fleet entities to
// unit/application/network/device/route entities.
package model

import "time"

// Unit is a tenancy boundary: a namespace for applications, networks,
// devices and routes.
type Unit struct {
	UnitID     string
	Code       string // lowercase slug [a-z0-9][a-z0-9-_]*, unique
	OwnerID    string
	MemberIDs  []string // deduplicated, owner always present
	Name       string
	Info       map[string]string
	CreatedAt  time.Time
	ModifiedAt time.Time
}

// Application is a downstream consumer of uplinks and producer of
// downlinks, reached via its dedicated queues.
type Application struct {
	ApplicationID string
	UnitID        string
	Code          string // unique within unit
	HostURI       string // queue broker URI
	Name          string
	Info          map[string]string
	CreatedAt     time.Time
	ModifiedAt    time.Time
}

// Network is an upstream integration with a device fleet's transport,
// reached via queues. UnitID is empty for a public network
// (admin/manager-owned, usable by any unit).
type Network struct {
	NetworkID  string
	UnitID     string // empty = public network
	Code       string // unique within (unit, code)
	HostURI    string
	Name       string
	Info       map[string]string
	CreatedAt  time.Time
	ModifiedAt time.Time
}

// IsPublic reports whether the network has no owning unit.
func (n *Network) IsPublic() bool { return n.UnitID == "" }

// Device is an addressable endpoint identified by (network, networkAddr)
// within a unit.
type Device struct {
	DeviceID    string
	UnitID      string
	NetworkID   string // may reference a public network
	NetworkAddr string // unique within network_id
	Profile     string
	Name        string
	Info        map[string]string
	CreatedAt   time.Time
	ModifiedAt  time.Time
}

// DeviceRoute maps a single device to an application, with the network
// identity/profile denormalized for fast routing decisions. Unique on
// (application_id, device_id).
type DeviceRoute struct {
	RouteID         string
	UnitID          string
	ApplicationID   string
	DeviceID        string
	NetworkID       string
	NetworkCode     string
	NetworkAddr     string
	Profile         string
	ApplicationCode string
	CreatedAt       time.Time
}

// NetworkRoute routes all traffic from a network to an application, in
// addition to any explicit device routes. Unique on
// (application_id, network_id).
type NetworkRoute struct {
	RouteID         string
	UnitID          string
	ApplicationID   string
	NetworkID       string
	NetworkCode     string
	ApplicationCode string
	CreatedAt       time.Time
}

// DlDataBuffer is a correlation record created on every accepted downlink,
// consumed when a downlink-result arrives or reaped after expiry.
type DlDataBuffer struct {
	DataID        string
	UnitID        string
	ApplicationID string
	NetworkID     string
	DeviceID      string
	CreatedAt     time.Time
	ExpiresAt     time.Time
}
