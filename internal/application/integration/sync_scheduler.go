package integration

import (
	"context"
	"time"

	"github.com/erp/marketplace/internal/domain/integration"
)

// SyncScheduler answers which integrations need a pass. It never starts one
// itself; an external trigger feeds the result to the executor.
type SyncScheduler struct {
	integrations integration.IntegrationRepository
	retry        integration.RetryPolicy
}

// NewSyncScheduler creates a new SyncScheduler
func NewSyncScheduler(integrations integration.IntegrationRepository, retry integration.RetryPolicy) *SyncScheduler {
	return &SyncScheduler{
		integrations: integrations,
		retry:        retry,
	}
}

// DueIntegrations returns active, auto-sync integrations whose interval has
// elapsed at now, longest-starved first
func (s *SyncScheduler) DueIntegrations(ctx context.Context, now time.Time) ([]integration.Integration, error) {
	candidates, err := s.integrations.ListSyncCandidates(ctx)
	if err != nil {
		return nil, err
	}
	return integration.DueIntegrations(candidates, now), nil
}

// RetryCandidates returns errored integrations whose last failure was transient
// and whose backoff has elapsed at now
func (s *SyncScheduler) RetryCandidates(ctx context.Context, now time.Time) ([]integration.Integration, error) {
	candidates, err := s.integrations.ListSyncCandidates(ctx)
	if err != nil {
		return nil, err
	}
	return s.retry.RetryCandidates(candidates, now), nil
}

// RetryPolicy returns the configured backoff
func (s *SyncScheduler) RetryPolicy() integration.RetryPolicy {
	return s.retry
}
