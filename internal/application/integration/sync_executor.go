package integration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/marketplace/internal/domain/integration"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultSyncTimeout bounds the external channel call of one pass
const DefaultSyncTimeout = 5 * time.Minute

// SyncExecutor performs one sync pass against a channel and records the outcome
// as a SyncLog. Failures of the pass itself are returned as data, not errors.
type SyncExecutor struct {
	registry     *ChannelRegistry
	integrations integration.IntegrationRepository
	logs         integration.SyncLogRepository
	vault        integration.CredentialVault
	connectors   integration.ConnectorRegistry
	locks        SyncLock
	retry        integration.RetryPolicy
	timeout      time.Duration
	metrics      SyncMetrics
	logger       *zap.Logger
	now          func() time.Time
}

// SyncExecutorConfig holds executor tuning
type SyncExecutorConfig struct {
	Timeout time.Duration
	Retry   integration.RetryPolicy
}

// NewSyncExecutor creates a new SyncExecutor
func NewSyncExecutor(
	registry *ChannelRegistry,
	integrations integration.IntegrationRepository,
	logs integration.SyncLogRepository,
	vault integration.CredentialVault,
	connectors integration.ConnectorRegistry,
	locks SyncLock,
	cfg SyncExecutorConfig,
	logger *zap.Logger,
) *SyncExecutor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultSyncTimeout
	}
	return &SyncExecutor{
		registry:     registry,
		integrations: integrations,
		logs:         logs,
		vault:        vault,
		connectors:   connectors,
		locks:        locks,
		retry:        cfg.Retry,
		timeout:      cfg.Timeout,
		metrics:      noopMetrics{},
		logger:       logger,
		now:          time.Now,
	}
}

// SetMetrics attaches a metrics sink
func (e *SyncExecutor) SetMetrics(m SyncMetrics) {
	if m != nil {
		e.metrics = m
	}
}

// RunSync executes one pass for the integration.
//
// At most one pass runs per integration: a concurrent call returns
// ErrSyncInProgress immediately. Manual passes skip the due check; scheduled
// and retry passes re-check it under the lock and return ErrSyncNotDue when the
// state moved on. Once started, a pass runs to completion even if ctx is cancelled,
// bounded only by the configured timeout.
func (e *SyncExecutor) RunSync(
	ctx context.Context,
	integrationID uuid.UUID,
	direction integration.SyncDirection,
	trigger integration.SyncTrigger,
) (*integration.SyncLog, error) {
	if !direction.IsValid() {
		return nil, integration.ErrInvalidDirection
	}
	if !trigger.IsValid() {
		return nil, integration.ErrInvalidTrigger
	}

	release, acquired, err := e.locks.TryAcquire(ctx, integrationID)
	if err != nil {
		return nil, fmt.Errorf("acquire sync lock: %w", err)
	}
	if !acquired {
		return nil, integration.ErrSyncInProgress
	}
	defer release()

	target, err := e.integrations.Get(ctx, integrationID)
	if err != nil {
		return nil, err
	}
	if !target.CanSync() {
		return nil, integration.ErrNotSyncable
	}
	if err := e.checkTrigger(target, trigger); err != nil {
		return nil, err
	}
	if _, err := e.registry.Available(ctx, target.TenantID, target.ChannelSlug); err != nil {
		return nil, err
	}

	// Detach from the caller: the pass is not cancellable once started
	runCtx := context.WithoutCancel(ctx)
	started := e.now()
	result, runErr := e.execute(runCtx, target, direction)

	outcome := integration.SyncOutcome{Duration: e.now().Sub(started), Err: runErr}
	if result != nil {
		outcome.EventType = result.EventType
		outcome.RecordsProcessed = result.RecordsProcessed
	}
	return e.record(runCtx, target, direction, trigger, outcome)
}

func (e *SyncExecutor) checkTrigger(target *integration.Integration, trigger integration.SyncTrigger) error {
	now := e.now()
	switch trigger {
	case integration.TriggerScheduled:
		if !integration.IsDue(target, now) {
			return integration.ErrSyncNotDue
		}
	case integration.TriggerRetry:
		if !e.retry.IsRetryable(target, now) {
			return integration.ErrSyncNotDue
		}
	}
	return nil
}

// execute resolves credentials and calls the connector under the timeout
func (e *SyncExecutor) execute(ctx context.Context, target *integration.Integration, direction integration.SyncDirection) (*integration.SyncResult, error) {
	creds, err := loadCredentials(ctx, e.vault, target.CredentialRef)
	if err != nil {
		return nil, fmt.Errorf("retrieve credentials: %w", err)
	}
	connector, err := e.connectors.Connector(target.ChannelSlug)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	result, err := connector.Sync(callCtx, integration.SyncRequest{
		Integration: target,
		Direction:   direction,
		Credentials: creds,
	})
	if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w after %s", integration.ErrSyncTimeout, e.timeout)
	}
	if err != nil {
		return nil, err
	}
	if result.RecordsProcessed < 0 {
		return nil, integration.ErrChannelInvalidResponse
	}
	return result, nil
}

// record appends the log entry and updates the integration's sync columns
func (e *SyncExecutor) record(
	ctx context.Context,
	target *integration.Integration,
	direction integration.SyncDirection,
	trigger integration.SyncTrigger,
	outcome integration.SyncOutcome,
) (*integration.SyncLog, error) {
	now := e.now()
	entry, err := integration.NewSyncLog(target, direction, trigger, outcome, now)
	if err != nil {
		return nil, err
	}
	if err := e.logs.Append(ctx, entry); err != nil {
		return nil, fmt.Errorf("append sync log: %w", err)
	}

	fields := []zap.Field{
		zap.String("tenant_id", target.TenantID.String()),
		zap.String("integration_id", target.ID.String()),
		zap.String("channel", target.ChannelSlug),
		zap.String("direction", direction.String()),
		zap.String("trigger", trigger.String()),
		zap.Duration("duration", outcome.Duration),
	}
	if outcome.Err != nil {
		transient := integration.IsTransient(outcome.Err)
		target.RecordSyncFailure(*entry.ErrorMessage, transient, now)
		e.logger.Warn("Sync pass failed", append(fields,
			zap.Bool("transient", transient),
			zap.Int("consecutive_failures", target.ConsecutiveFailures),
			zap.Error(outcome.Err),
		)...)
	} else {
		target.RecordSyncSuccess(now)
		e.logger.Info("Sync pass completed", append(fields,
			zap.String("event_type", entry.EventType),
			zap.Int("records_processed", entry.RecordsProcessed),
		)...)
	}

	if err := e.integrations.UpdateSyncState(ctx, target); err != nil {
		e.logger.Error("Failed to update integration sync state",
			zap.String("integration_id", target.ID.String()),
			zap.Error(err),
		)
	}
	e.metrics.RecordSync(ctx, target.ChannelSlug, direction, trigger, entry.Status, outcome.Duration)
	return entry, nil
}
