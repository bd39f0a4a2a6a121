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

// IntegrationService implements the tenant-facing management commands.
// Every mutation holds the integration's sync lock.
type IntegrationService struct {
	integrations integration.IntegrationRepository
	logs         integration.SyncLogRepository
	vault        integration.CredentialVault
	locks        SyncLock
	gate         *PermissionGate
	negotiator   *AuthNegotiator
	executor     *SyncExecutor
	tracker      SignatureFailureTracker
	validate     *validator.Validate
	logger       *zap.Logger
	now          func() time.Time
}

// NewIntegrationService creates a new IntegrationService
func NewIntegrationService(
	integrations integration.IntegrationRepository,
	logs integration.SyncLogRepository,
	vault integration.CredentialVault,
	locks SyncLock,
	gate *PermissionGate,
	negotiator *AuthNegotiator,
	executor *SyncExecutor,
	logger *zap.Logger,
) *IntegrationService {
	return &IntegrationService{
		integrations: integrations,
		logs:         logs,
		vault:        vault,
		locks:        locks,
		gate:         gate,
		negotiator:   negotiator,
		executor:     executor,
		validate:     validator.New(),
		logger:       logger,
		now:          time.Now,
	}
}

// SetSignatureTracker lets an operator reset also clear the signature failure streak
func (s *IntegrationService) SetSignatureTracker(t SignatureFailureTracker) {
	s.tracker = t
}

// ---------------------------------------------------------------------------
// Queries
// ---------------------------------------------------------------------------

// List returns the actor's tenant integrations
func (s *IntegrationService) List(ctx context.Context, actor integration.Actor) ([]integration.Integration, error) {
	if err := s.gate.RequireOperator(actor); err != nil {
		return nil, err
	}
	return s.integrations.ListByTenant(ctx, actor.TenantID)
}

// Get returns one integration of the actor's tenant
func (s *IntegrationService) Get(ctx context.Context, actor integration.Actor, id uuid.UUID) (*integration.Integration, error) {
	if err := s.gate.RequireOperator(actor); err != nil {
		return nil, err
	}
	target, err := s.integrations.FindByID(ctx, actor.TenantID, id)
	if err != nil {
		return nil, err
	}
	if err := s.gate.RequireManageIntegration(actor, target); err != nil {
		return nil, err
	}
	return target, nil
}

// ListLogs pages the sync history of an integration, newest first
func (s *IntegrationService) ListLogs(ctx context.Context, actor integration.Actor, id uuid.UUID, filter integration.SyncLogFilter) ([]integration.SyncLog, int64, error) {
	target, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, 0, err
	}
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > 100 {
		filter.PageSize = 20
	}
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, 0, shared.ErrInvalidInput.WithMessage("Unknown log status")
	}
	return s.logs.ListByIntegration(ctx, target.TenantID, target.ID, filter)
}

// ---------------------------------------------------------------------------
// Commands
// ---------------------------------------------------------------------------

// TriggerSync runs a manual pass. It bypasses the due check but not single-flight.
func (s *IntegrationService) TriggerSync(ctx context.Context, actor integration.Actor, id uuid.UUID, direction integration.SyncDirection) (*integration.SyncLog, error) {
	target, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if direction == "" {
		direction = integration.DirectionImport
	}
	return s.executor.RunSync(ctx, target.ID, direction, integration.TriggerManual)
}

// UpdateSettings changes auto sync, interval and webhook URL
func (s *IntegrationService) UpdateSettings(ctx context.Context, actor integration.Actor, id uuid.UUID, cmd UpdateSettingsCommand) (*integration.Integration, error) {
	if err := s.validate.Struct(cmd); err != nil {
		return nil, shared.ErrInvalidInput.Wrap(err)
	}
	return s.mutate(ctx, actor, id, func(target *integration.Integration, now time.Time) error {
		autoSync := target.AutoSyncEnabled
		if cmd.AutoSyncEnabled != nil {
			autoSync = *cmd.AutoSyncEnabled
		}
		interval := target.SyncIntervalMinutes
		if cmd.SyncIntervalMinutes != nil {
			interval = *cmd.SyncIntervalMinutes
		}
		webhookURL := target.WebhookURL
		if cmd.WebhookURL != nil {
			webhookURL = cmd.WebhookURL
		}
		return target.UpdateSettings(autoSync, interval, webhookURL, now)
	})
}

// Pause moves the integration to inactive
func (s *IntegrationService) Pause(ctx context.Context, actor integration.Actor, id uuid.UUID) (*integration.Integration, error) {
	return s.mutate(ctx, actor, id, func(target *integration.Integration, now time.Time) error {
		return target.Pause(now)
	})
}

// Resume re-validates credentials and reactivates a paused integration
func (s *IntegrationService) Resume(ctx context.Context, actor integration.Actor, id uuid.UUID) (*integration.Integration, error) {
	return s.negotiator.Resume(ctx, actor, id)
}

// ResetWebhookStatus is the operator action that clears a failing webhook
func (s *IntegrationService) ResetWebhookStatus(ctx context.Context, actor integration.Actor, id uuid.UUID) (*integration.Integration, error) {
	return s.mutateWith(ctx, actor, id, s.integrations.UpdateWebhookState, func(target *integration.Integration, now time.Time) error {
		target.ResetWebhookStatus(now)
		if s.tracker != nil {
			s.tracker.Reset(target.ID)
		}
		return nil
	})
}

// Delete tombstones the integration and revokes its credential
func (s *IntegrationService) Delete(ctx context.Context, actor integration.Actor, id uuid.UUID) error {
	deleted, err := s.mutate(ctx, actor, id, func(target *integration.Integration, now time.Time) error {
		return target.SoftDelete(now)
	})
	if err != nil {
		return err
	}
	if err := s.vault.Revoke(ctx, deleted.CredentialRef); err != nil && !errors.Is(err, integration.ErrRefNotFound) {
		s.logger.Warn("Failed to revoke credential of deleted integration",
			zap.String("integration_id", deleted.ID.String()),
			zap.Error(err),
		)
	}
	s.logger.Info("Integration deleted",
		zap.String("tenant_id", deleted.TenantID.String()),
		zap.String("integration_id", deleted.ID.String()),
	)
	return nil
}

// mutate loads the integration, applies fn under the sync lock and saves it.
// Save leaves the webhook columns alone.
func (s *IntegrationService) mutate(
	ctx context.Context,
	actor integration.Actor,
	id uuid.UUID,
	fn func(target *integration.Integration, now time.Time) error,
) (*integration.Integration, error) {
	return s.mutateWith(ctx, actor, id, s.integrations.Save, fn)
}

func (s *IntegrationService) mutateWith(
	ctx context.Context,
	actor integration.Actor,
	id uuid.UUID,
	write func(ctx context.Context, target *integration.Integration) error,
	fn func(target *integration.Integration, now time.Time) error,
) (*integration.Integration, error) {
	if _, err := s.Get(ctx, actor, id); err != nil {
		return nil, err
	}

	release, acquired, err := s.locks.TryAcquire(ctx, id)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, integration.ErrSyncInProgress
	}
	defer release()

	// Reload under the lock so a pass that just finished is not overwritten
	target, err := s.integrations.FindByID(ctx, actor.TenantID, id)
	if err != nil {
		return nil, err
	}
	if err := fn(target, s.now()); err != nil {
		return nil, err
	}
	if err := write(ctx, target); err != nil {
		return nil, err
	}
	return target, nil
}
