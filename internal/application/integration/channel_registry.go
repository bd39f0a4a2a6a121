package integration

import (
	"context"
	"errors"
	"time"

	"github.com/erp/marketplace/internal/domain/integration"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ChannelRegistry serves the platform-owned channel catalog and the per-tenant
// enablement flags.
type ChannelRegistry struct {
	channels    integration.ChannelRepository
	enablements integration.EnablementRepository
	gate        *PermissionGate
	logger      *zap.Logger
	now         func() time.Time
}

// NewChannelRegistry creates a new ChannelRegistry
func NewChannelRegistry(
	channels integration.ChannelRepository,
	enablements integration.EnablementRepository,
	gate *PermissionGate,
	logger *zap.Logger,
) *ChannelRegistry {
	return &ChannelRegistry{
		channels:    channels,
		enablements: enablements,
		gate:        gate,
		logger:      logger,
		now:         time.Now,
	}
}

// ---------------------------------------------------------------------------
// Catalog
// ---------------------------------------------------------------------------

// ListChannels returns the full catalog
func (r *ChannelRegistry) ListChannels(ctx context.Context) ([]integration.MarketplaceChannel, error) {
	return r.channels.List(ctx)
}

// GetChannel returns a channel by slug or ErrChannelNotFound
func (r *ChannelRegistry) GetChannel(ctx context.Context, slug string) (*integration.MarketplaceChannel, error) {
	normalized := integration.NormalizeSlug(slug)
	if normalized == "" {
		return nil, integration.ErrChannelNotFound
	}
	return r.channels.FindBySlug(ctx, normalized)
}

// SetLifecycleStatus changes a channel's lifecycle. Platform admins only; idempotent.
func (r *ChannelRegistry) SetLifecycleStatus(
	ctx context.Context,
	actor integration.Actor,
	slug string,
	status integration.LifecycleStatus,
) (*integration.MarketplaceChannel, error) {
	if err := r.gate.RequireToggleChannel(actor); err != nil {
		return nil, err
	}
	channel, err := r.GetChannel(ctx, slug)
	if err != nil {
		return nil, err
	}
	changed, err := channel.SetLifecycleStatus(status, r.now())
	if err != nil {
		return nil, err
	}
	if !changed {
		return channel, nil
	}
	if err := r.channels.Save(ctx, channel); err != nil {
		return nil, err
	}

	r.logger.Info("Channel lifecycle changed",
		zap.String("channel", channel.Slug),
		zap.String("status", status.String()),
		zap.String("actor_id", actor.UserID.String()),
	)
	return channel, nil
}

// Bootstrap seeds catalog definitions. Existing entries keep their lifecycle
// status; descriptive fields are refreshed.
func (r *ChannelRegistry) Bootstrap(ctx context.Context, definitions []integration.MarketplaceChannel) error {
	now := r.now()
	for idx := range definitions {
		def := definitions[idx]
		existing, err := r.channels.FindBySlug(ctx, def.Slug)
		switch {
		case errors.Is(err, integration.ErrChannelNotFound):
			def.CreatedAt = now
			def.UpdatedAt = now
			if def.LifecycleStatus == "" {
				def.LifecycleStatus = integration.LifecycleActive
			}
			if err := r.channels.Save(ctx, &def); err != nil {
				return err
			}
			r.logger.Info("Channel registered", zap.String("channel", def.Slug))
		case err != nil:
			return err
		default:
			existing.DisplayName = def.DisplayName
			existing.Description = def.Description
			existing.AuthType = def.AuthType
			existing.RequiredPlanFeatures = def.RequiredPlanFeatures
			existing.CredentialFields = def.CredentialFields
			existing.UpdatedAt = now
			if err := r.channels.Save(ctx, existing); err != nil {
				return err
			}
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Enablement
// ---------------------------------------------------------------------------

// SetEnablement toggles a channel for a tenant. The row is created on first toggle.
func (r *ChannelRegistry) SetEnablement(
	ctx context.Context,
	actor integration.Actor,
	tenantID uuid.UUID,
	slug string,
	enabled bool,
) (*integration.ChannelEnablement, error) {
	if err := r.gate.RequireToggleChannel(actor); err != nil {
		return nil, err
	}
	if tenantID == uuid.Nil {
		return nil, integration.ErrInvalidTenantID
	}
	channel, err := r.GetChannel(ctx, slug)
	if err != nil {
		return nil, err
	}

	now := r.now()
	enablement, err := r.enablements.Find(ctx, tenantID, channel.Slug)
	switch {
	case errors.Is(err, integration.ErrEnablementNotFound):
		enablement, err = integration.NewChannelEnablement(tenantID, channel.Slug, enabled, actor.UserID, now)
		if err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	default:
		if !enablement.Toggle(enabled, actor.UserID, now) {
			return enablement, nil
		}
	}

	if err := r.enablements.Save(ctx, enablement); err != nil {
		return nil, err
	}
	r.logger.Info("Channel enablement changed",
		zap.String("tenant_id", tenantID.String()),
		zap.String("channel", channel.Slug),
		zap.Bool("enabled", enabled),
	)
	return enablement, nil
}

// ListEnablements returns the toggled channels of a tenant
func (r *ChannelRegistry) ListEnablements(ctx context.Context, tenantID uuid.UUID) ([]integration.ChannelEnablement, error) {
	if tenantID == uuid.Nil {
		return nil, integration.ErrInvalidTenantID
	}
	return r.enablements.ListByTenant(ctx, tenantID)
}

// Available returns the channel when the tenant may use it right now: lifecycle
// active and enablement on. Otherwise ErrChannelNotAvailable.
func (r *ChannelRegistry) Available(ctx context.Context, tenantID uuid.UUID, slug string) (*integration.MarketplaceChannel, error) {
	channel, err := r.GetChannel(ctx, slug)
	if err != nil {
		return nil, err
	}
	if !channel.IsActive() {
		return nil, integration.ErrChannelNotAvailable.WithMessage("Channel " + channel.Slug + " is " + channel.LifecycleStatus.String())
	}
	enabled, err := r.enablements.IsEnabled(ctx, tenantID, channel.Slug)
	if err != nil {
		return nil, err
	}
	if !enabled {
		return nil, integration.ErrChannelNotAvailable.WithMessage("Channel " + channel.Slug + " is not enabled for this tenant")
	}
	return channel, nil
}
