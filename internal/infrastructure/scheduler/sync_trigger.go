package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	appintegration "github.com/erp/marketplace/internal/application/integration"
	"github.com/erp/marketplace/internal/domain/integration"
)

// CandidateSource lists integrations ready for an unattended pass
type CandidateSource interface {
	DueIntegrations(ctx context.Context, now time.Time) ([]integration.Integration, error)
	RetryCandidates(ctx context.Context, now time.Time) ([]integration.Integration, error)
}

// SyncTriggerConfig holds configuration for the periodic sync trigger
type SyncTriggerConfig struct {
	// Spec is a standard cron expression or descriptor such as "@every 1m"
	Spec string
	// Direction is the direction of scheduled and retry passes
	Direction integration.SyncDirection
}

// DefaultSyncTriggerConfig returns default configuration
func DefaultSyncTriggerConfig() SyncTriggerConfig {
	return SyncTriggerConfig{
		Spec:      "@every 1m",
		Direction: integration.DirectionImport,
	}
}

// TickResult summarizes one trigger evaluation
type TickResult struct {
	Due        int
	Retry      int
	Dispatched int
	Dropped    int
}

// SyncTrigger periodically asks the scheduler which integrations are due and
// hands them to the dispatcher
type SyncTrigger struct {
	config     SyncTriggerConfig
	source     CandidateSource
	dispatcher appintegration.SyncDispatcher
	logger     *zap.Logger
	now        func() time.Time

	cron      *cron.Cron
	mu        sync.Mutex
	isRunning bool
}

// NewSyncTrigger creates a new sync trigger
func NewSyncTrigger(
	config SyncTriggerConfig,
	source CandidateSource,
	dispatcher appintegration.SyncDispatcher,
	logger *zap.Logger,
) (*SyncTrigger, error) {
	if config.Spec == "" {
		config.Spec = DefaultSyncTriggerConfig().Spec
	}
	if config.Direction == "" {
		config.Direction = integration.DirectionImport
	}
	if !config.Direction.IsValid() {
		return nil, fmt.Errorf("%w: direction %q", ErrInvalidConfig, config.Direction)
	}
	if _, err := cron.ParseStandard(config.Spec); err != nil {
		return nil, fmt.Errorf("%w: cron spec %q: %v", ErrInvalidConfig, config.Spec, err)
	}
	return &SyncTrigger{
		config:     config,
		source:     source,
		dispatcher: dispatcher,
		logger:     logger,
		now:        time.Now,
		cron:       cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
	}, nil
}

// Start schedules the trigger
func (t *SyncTrigger) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.isRunning {
		return nil
	}

	if _, err := t.cron.AddFunc(t.config.Spec, func() {
		if _, err := t.Tick(ctx); err != nil {
			t.logger.Error("Sync trigger tick failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("schedule sync trigger: %w", err)
	}
	t.cron.Start()
	t.isRunning = true

	t.logger.Info("Sync trigger started",
		zap.String("spec", t.config.Spec),
		zap.String("direction", t.config.Direction.String()),
	)
	return nil
}

// Stop stops the trigger and waits for a running tick to finish
func (t *SyncTrigger) Stop(ctx context.Context) error {
	t.mu.Lock()
	if !t.isRunning {
		t.mu.Unlock()
		return nil
	}
	t.isRunning = false
	t.mu.Unlock()

	stopped := t.cron.Stop()
	select {
	case <-stopped.Done():
		t.logger.Info("Sync trigger stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Tick evaluates due and retry candidates once and dispatches them
func (t *SyncTrigger) Tick(ctx context.Context) (TickResult, error) {
	now := t.now()

	var due, retry []integration.Integration
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		due, err = t.source.DueIntegrations(gctx, now)
		return err
	})
	g.Go(func() error {
		var err error
		retry, err = t.source.RetryCandidates(gctx, now)
		return err
	})
	if err := g.Wait(); err != nil {
		return TickResult{}, fmt.Errorf("list sync candidates: %w", err)
	}

	result := TickResult{Due: len(due), Retry: len(retry)}
	t.dispatchAll(due, integration.TriggerScheduled, &result)
	t.dispatchAll(retry, integration.TriggerRetry, &result)

	if result.Due+result.Retry > 0 {
		t.logger.Info("Sync trigger dispatched",
			zap.Int("due", result.Due),
			zap.Int("retry", result.Retry),
			zap.Int("dispatched", result.Dispatched),
			zap.Int("dropped", result.Dropped),
		)
	}
	return result, nil
}

func (t *SyncTrigger) dispatchAll(candidates []integration.Integration, trigger integration.SyncTrigger, result *TickResult) {
	for _, candidate := range candidates {
		ok := t.dispatcher.Dispatch(appintegration.SyncJob{
			IntegrationID: candidate.ID,
			TenantID:      candidate.TenantID,
			Direction:     t.config.Direction,
			Trigger:       trigger,
		})
		if ok {
			result.Dispatched++
		} else {
			result.Dropped++
		}
	}
}
