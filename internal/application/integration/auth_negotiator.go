package integration

import (
	"context"
	"errors"
	"time"

	"github.com/erp/marketplace/internal/domain/integration"
	"github.com/erp/marketplace/internal/domain/shared"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AuthNegotiator turns a successful authentication into an active Integration.
// It is the only path by which an integration comes into existence or leaves pending.
type AuthNegotiator struct {
	registry     *ChannelRegistry
	integrations integration.IntegrationRepository
	vault        integration.CredentialVault
	locks        SyncLock
	gate         *PermissionGate
	oauth        *OAuth2Strategy
	apiKey       *APIKeyStrategy
	strategies   map[integration.AuthType]AuthStrategy
	validate     *validator.Validate
	logger       *zap.Logger
	now          func() time.Time
}

// NewAuthNegotiator creates a new AuthNegotiator
func NewAuthNegotiator(
	registry *ChannelRegistry,
	integrations integration.IntegrationRepository,
	vault integration.CredentialVault,
	locks SyncLock,
	gate *PermissionGate,
	oauth *OAuth2Strategy,
	apiKey *APIKeyStrategy,
	logger *zap.Logger,
) *AuthNegotiator {
	return &AuthNegotiator{
		registry:     registry,
		integrations: integrations,
		vault:        vault,
		locks:        locks,
		gate:         gate,
		oauth:        oauth,
		apiKey:       apiKey,
		strategies: map[integration.AuthType]AuthStrategy{
			oauth.AuthType():  oauth,
			apiKey.AuthType(): apiKey,
		},
		validate: validator.New(),
		logger:   logger,
		now:      time.Now,
	}
}

// ---------------------------------------------------------------------------
// OAuth2
// ---------------------------------------------------------------------------

// BeginAuthorization starts an OAuth2 flow and returns the URL the end user must visit
func (n *AuthNegotiator) BeginAuthorization(ctx context.Context, actor integration.Actor, slug string) (*AuthorizationStart, error) {
	channel, err := n.requireAvailable(ctx, actor, slug, integration.AuthTypeOAuth2)
	if err != nil {
		return nil, err
	}

	url, state, err := n.oauth.Begin(ctx, actor, channel, n.now())
	if err != nil {
		return nil, err
	}

	n.logger.Info("OAuth authorization started",
		zap.String("tenant_id", actor.TenantID.String()),
		zap.String("channel", channel.Slug),
		zap.Time("expires_at", state.ExpiresAt),
	)
	return &AuthorizationStart{
		ChannelSlug:      channel.Slug,
		AuthorizationURL: url,
		ExpiresAt:        state.ExpiresAt,
	}, nil
}

// CompleteAuthorization redeems the state token, exchanges the code and
// activates the integration
func (n *AuthNegotiator) CompleteAuthorization(ctx context.Context, actor integration.Actor, cmd CompleteAuthorizationCommand) (*integration.Integration, error) {
	if err := n.gate.RequireOperator(actor); err != nil {
		return nil, err
	}
	if err := n.validate.Struct(cmd); err != nil {
		return nil, shared.ErrInvalidInput.Wrap(err)
	}

	state, err := n.oauth.Redeem(ctx, actor, cmd.State, n.now())
	if err != nil {
		n.logger.Warn("OAuth state rejected",
			zap.String("tenant_id", actor.TenantID.String()),
			zap.Error(err),
		)
		return nil, err
	}
	if cmd.ProviderError != "" {
		return nil, integration.ErrCredentialValidationFailed.WithMessage("Authorization was declined: " + cmd.ProviderError)
	}
	if cmd.Code == "" {
		return nil, shared.ErrInvalidInput.WithMessage("Authorization code is required")
	}

	// Enablement may have changed while the user was away
	channel, err := n.requireAvailable(ctx, actor, state.ChannelSlug, integration.AuthTypeOAuth2)
	if err != nil {
		return nil, err
	}

	result, err := n.oauth.Exchange(ctx, channel, cmd.Code)
	if err != nil {
		return nil, err
	}
	return n.persist(ctx, actor, channel, result)
}

// ---------------------------------------------------------------------------
// API key
// ---------------------------------------------------------------------------

// ConnectWithAPIKey validates the supplied fields against the channel and
// activates the integration. On failure nothing is stored.
func (n *AuthNegotiator) ConnectWithAPIKey(ctx context.Context, actor integration.Actor, cmd ConnectAPIKeyCommand) (*integration.Integration, error) {
	if err := n.validate.Struct(cmd); err != nil {
		return nil, shared.ErrInvalidInput.Wrap(err)
	}
	channel, err := n.requireAvailable(ctx, actor, cmd.ChannelSlug, integration.AuthTypeAPIKey)
	if err != nil {
		return nil, err
	}

	result, err := n.apiKey.Negotiate(ctx, channel, cmd.Fields)
	if err != nil {
		n.logger.Info("API key validation failed",
			zap.String("tenant_id", actor.TenantID.String()),
			zap.String("channel", channel.Slug),
			zap.Error(err),
		)
		return nil, err
	}
	return n.persist(ctx, actor, channel, result)
}

// ---------------------------------------------------------------------------
// Resume
// ---------------------------------------------------------------------------

// Resume re-validates the stored credentials of a paused integration and
// flips it back to active
func (n *AuthNegotiator) Resume(ctx context.Context, actor integration.Actor, id uuid.UUID) (*integration.Integration, error) {
	if err := n.gate.RequireOperator(actor); err != nil {
		return nil, err
	}
	target, err := n.integrations.FindByID(ctx, actor.TenantID, id)
	if err != nil {
		return nil, err
	}
	if err := n.gate.RequireManageIntegration(actor, target); err != nil {
		return nil, err
	}
	if target.Status != integration.StatusInactive {
		return nil, integration.ErrInvalidStatusChange
	}

	channel, err := n.registry.Available(ctx, target.TenantID, target.ChannelSlug)
	if err != nil {
		return nil, err
	}
	strategy, ok := n.strategies[target.AuthType]
	if !ok {
		return nil, integration.ErrInvalidAuthType
	}

	release, err := n.acquire(ctx, target.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	creds, err := loadCredentials(ctx, n.vault, target.CredentialRef)
	if err != nil {
		return nil, err
	}
	if _, err := strategy.Revalidate(ctx, channel, creds); err != nil {
		return nil, err
	}

	if err := target.Resume(n.now()); err != nil {
		return nil, err
	}
	if err := n.integrations.Save(ctx, target); err != nil {
		return nil, err
	}
	n.logger.Info("Integration resumed",
		zap.String("tenant_id", target.TenantID.String()),
		zap.String("integration_id", target.ID.String()),
	)
	return target, nil
}

// ---------------------------------------------------------------------------
// Internals
// ---------------------------------------------------------------------------

func (n *AuthNegotiator) requireAvailable(ctx context.Context, actor integration.Actor, slug string, authType integration.AuthType) (*integration.MarketplaceChannel, error) {
	if err := n.gate.RequireOperator(actor); err != nil {
		return nil, err
	}
	channel, err := n.registry.Available(ctx, actor.TenantID, slug)
	if err != nil {
		return nil, err
	}
	if !channel.CoveredByPlan(actor.PlanFeatures) {
		return nil, integration.ErrChannelNotAvailable.WithMessage("Current plan does not include channel " + channel.Slug)
	}
	if channel.AuthType != authType {
		return nil, integration.ErrAuthTypeMismatch
	}
	return channel, nil
}

func (n *AuthNegotiator) persist(ctx context.Context, actor integration.Actor, channel *integration.MarketplaceChannel, result *negotiated) (*integration.Integration, error) {
	accountID := result.account.ExternalAccountID
	if accountID != "" {
		owner, err := n.integrations.FindByExternalAccount(ctx, channel.Slug, accountID)
		switch {
		case errors.Is(err, integration.ErrIntegrationNotFound):
		case err != nil:
			return nil, err
		case owner.TenantID != actor.TenantID:
			return nil, shared.ErrConflict.WithMessage("This account is already connected to another tenant")
		}
	}

	payload, err := encodeCredentials(result.credentials)
	if err != nil {
		return nil, err
	}
	ref, err := n.vault.Store(ctx, actor.TenantID, channel.Slug, payload)
	if err != nil {
		return nil, err
	}

	now := n.now()
	existing, err := n.integrations.FindByTenantAndChannel(ctx, actor.TenantID, channel.Slug)
	switch {
	case errors.Is(err, integration.ErrIntegrationNotFound):
		created, err := n.create(ctx, actor, channel, ref, accountID, now)
		if err != nil {
			n.revokeQuietly(ctx, ref)
			return nil, err
		}
		return created, nil
	case err != nil:
		n.revokeQuietly(ctx, ref)
		return nil, err
	}

	release, err := n.acquire(ctx, existing.ID)
	if err != nil {
		n.revokeQuietly(ctx, ref)
		return nil, err
	}
	defer release()

	previous, err := existing.Rebind(ref, accountID, now)
	if err == nil {
		err = existing.Activate(now)
	}
	if err == nil {
		err = n.integrations.Save(ctx, existing)
	}
	if err != nil {
		n.revokeQuietly(ctx, ref)
		return nil, err
	}
	if previous != ref {
		n.revokeQuietly(ctx, previous)
	}

	n.logger.Info("Integration reconnected",
		zap.String("tenant_id", existing.TenantID.String()),
		zap.String("integration_id", existing.ID.String()),
		zap.String("channel", channel.Slug),
	)
	return existing, nil
}

func (n *AuthNegotiator) create(ctx context.Context, actor integration.Actor, channel *integration.MarketplaceChannel, ref integration.CredentialRef, accountID string, now time.Time) (*integration.Integration, error) {
	created, err := integration.NewIntegration(actor.TenantID, channel, ref, accountID, actor.UserID, now)
	if err != nil {
		return nil, err
	}
	if err := created.Activate(now); err != nil {
		return nil, err
	}
	if err := n.integrations.Save(ctx, created); err != nil {
		return nil, err
	}

	n.logger.Info("Integration connected",
		zap.String("tenant_id", created.TenantID.String()),
		zap.String("integration_id", created.ID.String()),
		zap.String("channel", channel.Slug),
		zap.String("auth_type", channel.AuthType.String()),
	)
	return created, nil
}

func (n *AuthNegotiator) acquire(ctx context.Context, id uuid.UUID) (func(), error) {
	release, acquired, err := n.locks.TryAcquire(ctx, id)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, integration.ErrSyncInProgress
	}
	return release, nil
}

func (n *AuthNegotiator) revokeQuietly(ctx context.Context, ref integration.CredentialRef) {
	if err := n.vault.Revoke(ctx, ref); err != nil && !errors.Is(err, integration.ErrRefNotFound) {
		n.logger.Warn("Failed to revoke credential",
			zap.String("credential_ref", ref.String()),
			zap.Error(err),
		)
	}
}
