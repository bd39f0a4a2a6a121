package integration

import (
	"context"
	"time"

	"github.com/erp/marketplace/internal/domain/integration"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// DefaultStatsWindow is the look-back for the recent success rate
const DefaultStatsWindow = 24 * time.Hour

// StatsAggregator derives read-only summary counts for a tenant
type StatsAggregator struct {
	channels     integration.ChannelRepository
	enablements  integration.EnablementRepository
	integrations integration.IntegrationRepository
	logs         integration.SyncLogRepository
	gate         *PermissionGate
	window       time.Duration
	now          func() time.Time
}

// NewStatsAggregator creates a new StatsAggregator
func NewStatsAggregator(
	channels integration.ChannelRepository,
	enablements integration.EnablementRepository,
	integrations integration.IntegrationRepository,
	logs integration.SyncLogRepository,
	gate *PermissionGate,
	window time.Duration,
) *StatsAggregator {
	if window <= 0 {
		window = DefaultStatsWindow
	}
	return &StatsAggregator{
		channels:     channels,
		enablements:  enablements,
		integrations: integrations,
		logs:         logs,
		gate:         gate,
		window:       window,
		now:          time.Now,
	}
}

// TenantStats computes the summary for the actor's tenant
func (a *StatsAggregator) TenantStats(ctx context.Context, actor integration.Actor) (*Stats, error) {
	if err := a.gate.RequireOperator(actor); err != nil {
		return nil, err
	}
	tenantID := actor.TenantID

	var (
		channels    []integration.MarketplaceChannel
		enablements []integration.ChannelEnablement
		byStatus    map[integration.IntegrationStatus]int64
		counts      integration.SyncLogCounts
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		channels, err = a.channels.List(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		enablements, err = a.enablements.ListByTenant(gctx, tenantID)
		return err
	})
	g.Go(func() error {
		var err error
		byStatus, err = a.integrations.CountByStatus(gctx, tenantID)
		return err
	})
	g.Go(func() error {
		var err error
		counts, err = a.logs.CountSince(gctx, tenantID, a.now().Add(-a.window))
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Errored integrations are still connected, only failing
	connected := byStatus[integration.StatusActive] + byStatus[integration.StatusError]
	stats := &Stats{
		IntegrationsByStatus:  byStatus,
		ConnectedIntegrations: connected,
		RecentSyncs:           counts.Success + counts.Error,
		RecentFailures:        counts.Error,
		RecentSuccessRate:     SuccessRate(counts),
		WindowHours:           int(a.window / time.Hour),
	}

	active := make(map[string]bool, len(channels))
	for idx := range channels {
		if channels[idx].IsActive() {
			stats.ActiveChannels++
			active[channels[idx].Slug] = true
		}
	}
	for idx := range enablements {
		if enablements[idx].IsEnabled && active[enablements[idx].ChannelSlug] {
			stats.EnabledChannels++
		}
	}
	return stats, nil
}

// SuccessRate is the percentage of finished passes that succeeded, two decimals.
// Pending entries are not finished and do not count.
func SuccessRate(c integration.SyncLogCounts) decimal.Decimal {
	finished := c.Success + c.Error
	if finished == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(c.Success).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(finished)).
		Round(2)
}
