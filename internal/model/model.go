package model

// Model is the Data-Model Layer's capability set: a locator bundling every
// entity store behind one handle, composing its per-aggregate stores into a
// single injectable root.
// Callers (internal/routing, internal/netmgr, internal/appmgr,
// internal/supervisor) depend on this interface, never on a concrete
// backend package, so internal/model/sqlite can be swapped for another
// db.engine implementation without touching calling code.
type Model struct {
	Unit         UnitStore
	Application  ApplicationStore
	Network      NetworkStore
	Device       DeviceStore
	DeviceRoute  DeviceRouteStore
	NetworkRoute NetworkRouteStore
	DlData       DlDataStore
}
