package persistence

import (
	"context"
	"time"

	"github.com/erp/marketplace/internal/domain/integration"
	"github.com/erp/marketplace/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormSyncLogRepository implements integration.SyncLogRepository using GORM.
// Rows are only ever inserted.
type GormSyncLogRepository struct {
	db *gorm.DB
}

// NewGormSyncLogRepository creates a new GormSyncLogRepository
func NewGormSyncLogRepository(db *gorm.DB) *GormSyncLogRepository {
	return &GormSyncLogRepository{db: db}
}

// Append inserts a new log entry
func (r *GormSyncLogRepository) Append(ctx context.Context, log *integration.SyncLog) error {
	var model models.SyncLogModel
	model.FromDomain(log)
	return r.db.WithContext(ctx).Create(&model).Error
}

// ListByIntegration returns one page of entries, newest first, and the total matching count
func (r *GormSyncLogRepository) ListByIntegration(ctx context.Context, tenantID, integrationID uuid.UUID, filter integration.SyncLogFilter) ([]integration.SyncLog, int64, error) {
	query := r.db.WithContext(ctx).
		Model(&models.SyncLogModel{}).
		Scopes(forTenant(tenantID)).
		Where("integration_id = ?", integrationID)
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.SyncLogModel
	if err := query.
		Scopes(paginate(filter.Page, filter.PageSize)).
		Order("created_at DESC").
		Order("id DESC").
		Find(&rows).Error; err != nil {
		return nil, 0, err
	}

	logs := make([]integration.SyncLog, len(rows))
	for i := range rows {
		logs[i] = *rows[i].ToDomain()
	}
	return logs, total, nil
}

// CountSince counts the tenant's entries per status created at or after since
func (r *GormSyncLogRepository) CountSince(ctx context.Context, tenantID uuid.UUID, since time.Time) (integration.SyncLogCounts, error) {
	var rows []struct {
		Status integration.SyncLogStatus
		Count  int64
	}
	if err := r.db.WithContext(ctx).
		Model(&models.SyncLogModel{}).
		Scopes(forTenant(tenantID)).
		Where("created_at >= ?", since).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return integration.SyncLogCounts{}, err
	}

	var counts integration.SyncLogCounts
	for _, row := range rows {
		switch row.Status {
		case integration.LogSuccess:
			counts.Success = row.Count
		case integration.LogError:
			counts.Error = row.Count
		case integration.LogPending:
			counts.Pending = row.Count
		}
	}
	return counts, nil
}

// Ensure GormSyncLogRepository implements the interface
var _ integration.SyncLogRepository = (*GormSyncLogRepository)(nil)
