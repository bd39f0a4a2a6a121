package integration

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ChannelEnablement is the per-tenant switch that makes a channel usable.
// Rows are created lazily on the first toggle; a missing row means disabled.
type ChannelEnablement struct {
	TenantID    uuid.UUID
	ChannelSlug string
	IsEnabled   bool
	UpdatedBy   uuid.UUID
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewChannelEnablement creates an enablement row for a tenant/channel pair
func NewChannelEnablement(tenantID uuid.UUID, slug string, enabled bool, actorID uuid.UUID, now time.Time) (*ChannelEnablement, error) {
	if tenantID == uuid.Nil {
		return nil, ErrInvalidTenantID
	}
	if slug == "" {
		return nil, ErrInvalidChannelSlug
	}
	return &ChannelEnablement{
		TenantID:    tenantID,
		ChannelSlug: slug,
		IsEnabled:   enabled,
		UpdatedBy:   actorID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Toggle sets the flag and reports whether it changed
func (e *ChannelEnablement) Toggle(enabled bool, actorID uuid.UUID, now time.Time) bool {
	if e.IsEnabled == enabled {
		return false
	}
	e.IsEnabled = enabled
	e.UpdatedBy = actorID
	e.UpdatedAt = now
	return true
}

// EnablementRepository persists channel enablements
type EnablementRepository interface {
	// Find returns ErrEnablementNotFound when the pair was never toggled
	Find(ctx context.Context, tenantID uuid.UUID, slug string) (*ChannelEnablement, error)
	// IsEnabled treats a missing row as disabled
	IsEnabled(ctx context.Context, tenantID uuid.UUID, slug string) (bool, error)
	ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]ChannelEnablement, error)
	Save(ctx context.Context, enablement *ChannelEnablement) error
}
