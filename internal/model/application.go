package model

import "context"

// ApplicationListCond narrows an application listing, scoped to a unit.
type ApplicationListCond struct {
	UnitID       string
	Code         string
	CodeContains string
}

// ApplicationUpdates carries tri-state field updates for Application.Update.
type ApplicationUpdates struct {
	HostURI Opt[string]
	Name    Opt[string]
	Info    Opt[map[string]string]
}

// ApplicationStore persists Application entities.
type ApplicationStore interface {
	// Add inserts a new application. Conflict if (unit_id, code) already
	// exists.
	Add(ctx context.Context, a *Application) error

	GetByID(ctx context.Context, applicationID string) (*Application, error)

	// GetByCode returns the application with the given (unitID, code), or a
	// not-found error.
	GetByCode(ctx context.Context, unitID, code string) (*Application, error)

	// Update applies updates. HostURI changes are surfaced to the manager
	// supervisor by the caller (internal/supervisor), not by this store.
	Update(ctx context.Context, applicationID string, updates ApplicationUpdates) error

	// Delete removes the application. Callers must cascade device-route and
	// network-route cleanup and tear down the application's manager.
	Delete(ctx context.Context, applicationID string) error

	Count(ctx context.Context, cond ApplicationListCond) (int, error)
	List(ctx context.Context, cond ApplicationListCond, opts ListOptions) (Page[Application], error)
}

// Application sort keys.
const (
	ApplicationSortCode       = "code"
	ApplicationSortName       = "name"
	ApplicationSortCreatedAt  = "created_at"
	ApplicationSortModifiedAt = "modified_at"
)
