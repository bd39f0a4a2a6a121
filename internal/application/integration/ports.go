package integration

import (
	"context"
	"time"

	"github.com/erp/marketplace/internal/domain/integration"
	"github.com/google/uuid"
)

// SyncLock provides the per-integration mutual exclusion every status mutation
// goes through. TryAcquire never blocks waiting for the holder.
type SyncLock interface {
	TryAcquire(ctx context.Context, integrationID uuid.UUID) (release func(), acquired bool, err error)
}

// SyncJob is an asynchronous request for a sync pass
type SyncJob struct {
	IntegrationID uuid.UUID
	TenantID      uuid.UUID
	Direction     integration.SyncDirection
	Trigger       integration.SyncTrigger
}

// SyncDispatcher enqueues sync jobs without blocking the caller.
// Dispatch returns false when the job could not be queued.
type SyncDispatcher interface {
	Dispatch(job SyncJob) bool
}

// SignatureFailureTracker counts consecutive webhook signature failures per
// integration inside a rolling window.
type SignatureFailureTracker interface {
	// RecordFailure returns the consecutive failure count including this one
	RecordFailure(integrationID uuid.UUID, at time.Time) int
	Reset(integrationID uuid.UUID)
}

// SyncMetrics receives sync and webhook outcomes
type SyncMetrics interface {
	RecordSync(ctx context.Context, channel string, direction integration.SyncDirection, trigger integration.SyncTrigger, status integration.SyncLogStatus, duration time.Duration)
	RecordWebhook(ctx context.Context, channel string, outcome string)
}

type noopMetrics struct{}

func (noopMetrics) RecordSync(context.Context, string, integration.SyncDirection, integration.SyncTrigger, integration.SyncLogStatus, time.Duration) {
}

func (noopMetrics) RecordWebhook(context.Context, string, string) {}
