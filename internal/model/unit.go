package model

import "context"

// UnitListCond narrows a unit listing.
type UnitListCond struct {
	Code         string // exact match, case-insensitive
	CodeContains string // substring match, case-insensitive
	OwnerID      string
	MemberID     string // units where this id is owner or member
}

// UnitUpdates carries tri-state field updates for Unit.Update.
type UnitUpdates struct {
	OwnerID Opt[string]
	Name    Opt[string]
	Info    Opt[map[string]string]
}

// UnitStore persists Unit entities.
type UnitStore interface {
	// Add inserts a new unit. Code is lower-cased before comparison/storage.
	// Returns a conflict error if Code already exists.
	Add(ctx context.Context, u *Unit) error

	// GetByID returns the unit with the given id, or a not-found error.
	GetByID(ctx context.Context, unitID string) (*Unit, error)

	// GetByCode returns the unit with the given code (case-insensitive), or
	// a not-found error.
	GetByCode(ctx context.Context, code string) (*Unit, error)

	// Update applies updates to the unit. A no-op update (all fields absent)
	// still bumps ModifiedAt. Updating a nonexistent unit is not an error.
	Update(ctx context.Context, unitID string, updates UnitUpdates) error

	// Delete removes the unit. Deleting a nonexistent unit is not an error.
	// Callers are responsible for cascading application/device/route cleanup.
	Delete(ctx context.Context, unitID string) error

	// AddMember adds memberID to the unit's member set (idempotent).
	AddMember(ctx context.Context, unitID, memberID string) error

	// RemoveMember removes memberID from the unit's member set (idempotent,
	// refuses to remove the owner).
	RemoveMember(ctx context.Context, unitID, memberID string) error

	// Count returns the number of units matching cond.
	Count(ctx context.Context, cond UnitListCond) (int, error)

	// List returns units matching cond, ordered and paginated per opts.
	List(ctx context.Context, cond UnitListCond, opts ListOptions) (Page[Unit], error)
}

// Unit sort keys.
const (
	UnitSortCode       = "code"
	UnitSortName       = "name"
	UnitSortCreatedAt  = "created_at"
	UnitSortModifiedAt = "modified_at"
)
