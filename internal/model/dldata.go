package model

import (
	"context"
	"time"
)

// DlDataListCond narrows a downlink-buffer listing.
type DlDataListCond struct {
	UnitID        string
	ApplicationID string
	NetworkID     string
	DeviceID      string
}

// DlDataStore persists DlDataBuffer correlation records created on every
// accepted downlink submission and consumed by a matching dldata-result or
// the expiry reaper.
type DlDataStore interface {
	// Add inserts a new buffer entry.
	Add(ctx context.Context, d *DlDataBuffer) error

	// GetByID returns the buffer entry for a data id, or a not-found error.
	GetByID(ctx context.Context, dataID string) (*DlDataBuffer, error)

	// Delete removes a buffer entry after its result has been delivered.
	// Not an error if absent (duplicate or late dldata-result).
	Delete(ctx context.Context, dataID string) error

	// ListExpired returns buffer entries whose ExpiresAt is at or before
	// asOf, for the reaper to synthesize timeout results and delete.
	ListExpired(ctx context.Context, asOf time.Time, limit int) ([]DlDataBuffer, error)

	Count(ctx context.Context, cond DlDataListCond) (int, error)
	List(ctx context.Context, cond DlDataListCond, opts ListOptions) (Page[DlDataBuffer], error)
}

// DlData sort keys.
const (
	DlDataSortCreatedAt = "created_at"
	DlDataSortExpiresAt = "expires_at"
)
