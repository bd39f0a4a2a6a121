package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	appintegration "github.com/erp/marketplace/internal/application/integration"
	"github.com/erp/marketplace/internal/domain/integration"
)

// SyncRunner executes one sync pass
type SyncRunner interface {
	RunSync(ctx context.Context, integrationID uuid.UUID, direction integration.SyncDirection, trigger integration.SyncTrigger) (*integration.SyncLog, error)
}

// WorkerPoolConfig holds configuration for the sync worker pool
type WorkerPoolConfig struct {
	// Workers is the number of concurrent sync passes
	Workers int
	// QueueSize bounds the number of jobs waiting for a worker
	QueueSize int
}

// DefaultWorkerPoolConfig returns default configuration
func DefaultWorkerPoolConfig() WorkerPoolConfig {
	return WorkerPoolConfig{
		Workers:   4,
		QueueSize: 256,
	}
}

// Validate validates the configuration
func (c WorkerPoolConfig) Validate() error {
	if c.Workers <= 0 || c.QueueSize <= 0 {
		return ErrInvalidConfig
	}
	return nil
}

type queueKey struct {
	integrationID uuid.UUID
	direction     integration.SyncDirection
}

// WorkerPool runs queued sync jobs on a fixed set of workers.
// A job whose integration and direction are already waiting is not queued twice.
type WorkerPool struct {
	config WorkerPoolConfig
	runner SyncRunner
	logger *zap.Logger

	jobs      chan appintegration.SyncJob
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
	queued    map[queueKey]struct{}
}

var _ appintegration.SyncDispatcher = (*WorkerPool)(nil)

// NewWorkerPool creates a new worker pool
func NewWorkerPool(config WorkerPoolConfig, runner SyncRunner, logger *zap.Logger) (*WorkerPool, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &WorkerPool{
		config: config,
		runner: runner,
		logger: logger,
		jobs:   make(chan appintegration.SyncJob, config.QueueSize),
		queued: make(map[queueKey]struct{}),
	}, nil
}

// Start starts the workers
func (p *WorkerPool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.isRunning {
		return nil
	}
	p.isRunning = true

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	for i := 0; i < p.config.Workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}

	p.logger.Info("Sync worker pool started",
		zap.Int("workers", p.config.Workers),
		zap.Int("queue_size", p.config.QueueSize),
	)
	return nil
}

// Stop stops accepting jobs and waits for in-flight passes to finish.
// Jobs still waiting in the queue are dropped; the next trigger tick picks them up again.
func (p *WorkerPool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.isRunning {
		p.mu.Unlock()
		return nil
	}
	p.isRunning = false
	if p.cancel != nil {
		p.cancel()
	}
	close(p.jobs)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("Sync worker pool stopped gracefully")
		return nil
	case <-ctx.Done():
		p.logger.Warn("Sync worker pool stop timed out")
		return ctx.Err()
	}
}

// Submit queues a job for execution
func (p *WorkerPool) Submit(job appintegration.SyncJob) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.isRunning {
		return ErrSchedulerNotRunning
	}
	key := queueKey{integrationID: job.IntegrationID, direction: job.Direction}
	if _, waiting := p.queued[key]; waiting {
		return ErrJobAlreadyQueued
	}

	select {
	case p.jobs <- job:
		p.queued[key] = struct{}{}
		p.logger.Debug("Sync job submitted",
			zap.String("integration_id", job.IntegrationID.String()),
			zap.String("tenant_id", job.TenantID.String()),
			zap.String("direction", job.Direction.String()),
			zap.String("trigger", job.Trigger.String()),
		)
		return nil
	default:
		return ErrJobQueueFull
	}
}

// Dispatch implements appintegration.SyncDispatcher. A job that is already
// waiting counts as dispatched.
func (p *WorkerPool) Dispatch(job appintegration.SyncJob) bool {
	err := p.Submit(job)
	if err == nil || errors.Is(err, ErrJobAlreadyQueued) {
		return true
	}
	p.logger.Warn("Sync job not dispatched",
		zap.String("integration_id", job.IntegrationID.String()),
		zap.String("trigger", job.Trigger.String()),
		zap.Error(err),
	)
	return false
}

// Pending returns the number of jobs waiting for a worker
func (p *WorkerPool) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queued)
}

// worker processes jobs from the queue
func (p *WorkerPool) worker(ctx context.Context, workerID int) {
	defer p.wg.Done()

	p.logger.Debug("Sync worker started", zap.Int("worker_id", workerID))

	for {
		select {
		case <-ctx.Done():
			p.logger.Debug("Sync worker stopping", zap.Int("worker_id", workerID))
			return
		case job, ok := <-p.jobs:
			if !ok {
				return
			}
			p.processJob(ctx, job, workerID)
		}
	}
}

// processJob executes a single job
func (p *WorkerPool) processJob(ctx context.Context, job appintegration.SyncJob, workerID int) {
	p.mu.Lock()
	delete(p.queued, queueKey{integrationID: job.IntegrationID, direction: job.Direction})
	p.mu.Unlock()

	fields := []zap.Field{
		zap.Int("worker_id", workerID),
		zap.String("integration_id", job.IntegrationID.String()),
		zap.String("tenant_id", job.TenantID.String()),
		zap.String("direction", job.Direction.String()),
		zap.String("trigger", job.Trigger.String()),
	}

	started := time.Now()
	log, err := p.runner.RunSync(ctx, job.IntegrationID, job.Direction, job.Trigger)
	switch {
	case err == nil:
		p.logger.Info("Sync job completed", append(fields,
			zap.String("status", log.Status.String()),
			zap.Int("records_processed", log.RecordsProcessed),
			zap.Duration("elapsed", time.Since(started)),
		)...)
	case errors.Is(err, integration.ErrSyncInProgress),
		errors.Is(err, integration.ErrSyncNotDue),
		errors.Is(err, integration.ErrNotSyncable):
		p.logger.Debug("Sync job skipped", append(fields, zap.Error(err))...)
	default:
		p.logger.Warn("Sync job rejected", append(fields, zap.Error(err))...)
	}
}
