package model

import "context"

// NetworkListCond narrows a network listing. UnitID == "" together with
// PublicOnly selects only public networks; leaving both zero lists every
// network visible to the caller's scope, which is a policy decision made by
// the caller, not this store.
type NetworkListCond struct {
	UnitID       string
	PublicOnly   bool
	Code         string
	CodeContains string
}

// NetworkUpdates carries tri-state field updates for Network.Update.
type NetworkUpdates struct {
	HostURI Opt[string]
	Name    Opt[string]
	Info    Opt[map[string]string]
}

// NetworkStore persists Network entities.
type NetworkStore interface {
	// Add inserts a new network. Conflict if (unit_id, code) already exists,
	// where unit_id == "" scopes the uniqueness check to public networks.
	Add(ctx context.Context, n *Network) error

	GetByID(ctx context.Context, networkID string) (*Network, error)

	// GetByCode returns the network with the given (unitID, code). unitID ==
	// "" looks up a public network.
	GetByCode(ctx context.Context, unitID, code string) (*Network, error)

	Update(ctx context.Context, networkID string, updates NetworkUpdates) error

	// Delete removes the network. Callers must cascade device, device-route
	// and network-route cleanup and tear down the network's manager.
	Delete(ctx context.Context, networkID string) error

	Count(ctx context.Context, cond NetworkListCond) (int, error)
	List(ctx context.Context, cond NetworkListCond, opts ListOptions) (Page[Network], error)
}

// Network sort keys.
const (
	NetworkSortCode       = "code"
	NetworkSortName       = "name"
	NetworkSortCreatedAt  = "created_at"
	NetworkSortModifiedAt = "modified_at"
)
