package integration

import (
	"context"
	"errors"
	"time"

	"github.com/erp/marketplace/internal/domain/integration"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultWebhookFailureThreshold is the consecutive signature failures that flag a webhook as failing
const DefaultWebhookFailureThreshold = 3

// A delivery waits at most webhookLockAttempts * webhookLockBackoff for a
// running mutation before writing the webhook columns on its own.
const (
	webhookLockAttempts = 5
	webhookLockBackoff  = 20 * time.Millisecond
)

// Webhook outcomes reported to metrics
const (
	WebhookOutcomeAccepted = "accepted"
	WebhookOutcomeRejected = "rejected"
	WebhookOutcomeUnrouted = "unrouted"
)

// WebhookIngestor validates inbound channel notifications and converges them
// on the integration store. The ack never waits for the sync it triggers.
type WebhookIngestor struct {
	registry     *ChannelRegistry
	connectors   integration.ConnectorRegistry
	integrations integration.IntegrationRepository
	vault        integration.CredentialVault
	locks        SyncLock
	failures     SignatureFailureTracker
	dispatcher   SyncDispatcher
	threshold    int
	metrics      SyncMetrics
	logger       *zap.Logger
	now          func() time.Time
	lockBackoff  time.Duration
}

// NewWebhookIngestor creates a new WebhookIngestor
func NewWebhookIngestor(
	registry *ChannelRegistry,
	connectors integration.ConnectorRegistry,
	integrations integration.IntegrationRepository,
	vault integration.CredentialVault,
	locks SyncLock,
	failures SignatureFailureTracker,
	dispatcher SyncDispatcher,
	threshold int,
	logger *zap.Logger,
) *WebhookIngestor {
	if threshold <= 0 {
		threshold = DefaultWebhookFailureThreshold
	}
	return &WebhookIngestor{
		registry:     registry,
		connectors:   connectors,
		integrations: integrations,
		vault:        vault,
		locks:        locks,
		failures:     failures,
		dispatcher:   dispatcher,
		threshold:    threshold,
		metrics:      noopMetrics{},
		logger:       logger,
		now:          time.Now,
		lockBackoff:  webhookLockBackoff,
	}
}

// SetMetrics attaches a metrics sink
func (w *WebhookIngestor) SetMetrics(m SyncMetrics) {
	if m != nil {
		w.metrics = m
	}
}

// HandleWebhook validates a delivery and returns an ack, or ErrRejected.
// A rejected delivery leaves the integration untouched, except that the
// threshold-th consecutive signature failure inside the rolling window flips
// webhook_status to failing.
func (w *WebhookIngestor) HandleWebhook(ctx context.Context, slug string, payload []byte, signature string) (*WebhookAck, error) {
	channel, err := w.registry.GetChannel(ctx, slug)
	if err != nil {
		return nil, err
	}
	connector, err := w.connectors.Connector(channel.Slug)
	if err != nil {
		return nil, err
	}

	envelope, err := connector.ParseWebhook(payload)
	if err != nil || envelope.ExternalAccountID == "" {
		w.metrics.RecordWebhook(ctx, channel.Slug, WebhookOutcomeUnrouted)
		return nil, integration.ErrRejected.WithMessage("Webhook payload does not identify an account")
	}

	target, err := w.integrations.FindByExternalAccount(ctx, channel.Slug, envelope.ExternalAccountID)
	if err != nil {
		if errors.Is(err, integration.ErrIntegrationNotFound) {
			w.metrics.RecordWebhook(ctx, channel.Slug, WebhookOutcomeUnrouted)
			return nil, integration.ErrRejected.WithMessage("No integration for this account")
		}
		return nil, err
	}

	creds, err := loadCredentials(ctx, w.vault, target.CredentialRef)
	if err != nil {
		if errors.Is(err, integration.ErrRefNotFound) {
			return nil, integration.ErrRejected.WithMessage("Integration has no signing material")
		}
		return nil, err
	}

	secret := creds.SigningSecret()
	if secret == "" || signature == "" || !connector.VerifySignature(payload, signature, secret) {
		w.rejectSignature(ctx, target)
		return nil, integration.ErrRejected.WithMessage("Invalid webhook signature")
	}

	w.failures.Reset(target.ID)
	target, err = w.updateWebhookState(ctx, target, func(current *integration.Integration, now time.Time) bool {
		current.RecordWebhook(now)
		return true
	})
	if err != nil {
		if errors.Is(err, integration.ErrIntegrationNotFound) {
			w.metrics.RecordWebhook(ctx, channel.Slug, WebhookOutcomeUnrouted)
			return nil, integration.ErrRejected.WithMessage("No integration for this account")
		}
		return nil, err
	}

	ack := &WebhookAck{IntegrationID: target.ID}
	if target.CanSync() {
		ack.SyncEnqueued = w.dispatcher.Dispatch(SyncJob{
			IntegrationID: target.ID,
			TenantID:      target.TenantID,
			Direction:     integration.DirectionImport,
			Trigger:       integration.TriggerWebhook,
		})
		if !ack.SyncEnqueued {
			w.logger.Warn("Webhook sync not enqueued, queue full",
				zap.String("integration_id", target.ID.String()),
			)
		}
	}

	w.metrics.RecordWebhook(ctx, channel.Slug, WebhookOutcomeAccepted)
	w.logger.Info("Webhook accepted",
		zap.String("tenant_id", target.TenantID.String()),
		zap.String("integration_id", target.ID.String()),
		zap.String("channel", channel.Slug),
		zap.String("event_type", envelope.EventType),
		zap.Bool("sync_enqueued", ack.SyncEnqueued),
	)
	return ack, nil
}

func (w *WebhookIngestor) rejectSignature(ctx context.Context, target *integration.Integration) {
	count := w.failures.RecordFailure(target.ID, w.now())
	w.metrics.RecordWebhook(ctx, target.ChannelSlug, WebhookOutcomeRejected)
	w.logger.Warn("Webhook signature rejected",
		zap.String("tenant_id", target.TenantID.String()),
		zap.String("integration_id", target.ID.String()),
		zap.Int("consecutive_failures", count),
	)
	if count < w.threshold {
		return
	}
	flagged := false
	if _, err := w.updateWebhookState(ctx, target, func(current *integration.Integration, now time.Time) bool {
		flagged = current.MarkWebhookFailing(now)
		return flagged
	}); err != nil {
		w.logger.Error("Failed to flag webhook as failing",
			zap.String("integration_id", target.ID.String()),
			zap.Error(err),
		)
		return
	}
	if !flagged {
		return
	}
	w.logger.Warn("Webhook flagged as failing",
		zap.String("tenant_id", target.TenantID.String()),
		zap.String("integration_id", target.ID.String()),
	)
}

// updateWebhookState reloads the integration under its sync lock, applies fn and
// writes the webhook columns when fn reports a change. The lock is released
// before returning, so a sync dispatched afterwards can take it.
//
// A sync pass holds the lock for its whole run and writes only the sync
// columns. When the lock stays busy past the retry bound the delivery is
// recorded without it; full-row saves never write the webhook columns.
func (w *WebhookIngestor) updateWebhookState(
	ctx context.Context,
	target *integration.Integration,
	fn func(current *integration.Integration, now time.Time) bool,
) (*integration.Integration, error) {
	release, err := w.acquire(ctx, target.ID)
	if err != nil {
		return nil, err
	}
	if release != nil {
		defer release()
	} else {
		w.logger.Debug("Integration busy, recording webhook state without the sync lock",
			zap.String("integration_id", target.ID.String()),
		)
	}

	current, err := w.integrations.Get(ctx, target.ID)
	if err != nil {
		return nil, err
	}
	if !fn(current, w.now()) {
		return current, nil
	}
	if err := w.integrations.UpdateWebhookState(ctx, current); err != nil {
		return nil, err
	}
	return current, nil
}

// acquire retries the sync lock a bounded number of times. A nil release with
// a nil error means the lock stayed busy.
func (w *WebhookIngestor) acquire(ctx context.Context, id uuid.UUID) (func(), error) {
	for attempt := 1; ; attempt++ {
		release, acquired, err := w.locks.TryAcquire(ctx, id)
		if err != nil {
			return nil, err
		}
		if acquired {
			return release, nil
		}
		if attempt >= webhookLockAttempts {
			return nil, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(w.lockBackoff):
		}
	}
}
