package persistence

import (
	"context"
	"errors"

	"github.com/erp/marketplace/internal/domain/integration"
	"github.com/erp/marketplace/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormIntegrationRepository implements integration.IntegrationRepository using GORM
type GormIntegrationRepository struct {
	db *gorm.DB
}

// NewGormIntegrationRepository creates a new GormIntegrationRepository
func NewGormIntegrationRepository(db *gorm.DB) *GormIntegrationRepository {
	return &GormIntegrationRepository{db: db}
}

// ---------------------------------------------------------------------------
// Reads
// ---------------------------------------------------------------------------

// FindByID finds a live integration within a tenant
func (r *GormIntegrationRepository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*integration.Integration, error) {
	return r.first(ctx, r.db.WithContext(ctx).Scopes(forTenant(tenantID), notDeleted).Where("id = ?", id))
}

// Get finds a live integration by ID regardless of tenant; used by background workers
func (r *GormIntegrationRepository) Get(ctx context.Context, id uuid.UUID) (*integration.Integration, error) {
	return r.first(ctx, r.db.WithContext(ctx).Scopes(notDeleted).Where("id = ?", id))
}

// FindByTenantAndChannel finds the tenant's live integration for a channel
func (r *GormIntegrationRepository) FindByTenantAndChannel(ctx context.Context, tenantID uuid.UUID, slug string) (*integration.Integration, error) {
	return r.first(ctx, r.db.WithContext(ctx).Scopes(forTenant(tenantID), notDeleted).Where("channel_slug = ?", slug))
}

// FindByExternalAccount resolves the live integration bound to a remote account
func (r *GormIntegrationRepository) FindByExternalAccount(ctx context.Context, slug, externalAccountID string) (*integration.Integration, error) {
	if externalAccountID == "" {
		return nil, integration.ErrIntegrationNotFound
	}
	return r.first(ctx, r.db.WithContext(ctx).
		Scopes(notDeleted).
		Where("channel_slug = ? AND external_account_id = ?", slug, externalAccountID))
}

func (r *GormIntegrationRepository) first(_ context.Context, query *gorm.DB) (*integration.Integration, error) {
	var model models.IntegrationModel
	if err := query.First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, integration.ErrIntegrationNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// ListByTenant returns the tenant's live integrations ordered by channel
func (r *GormIntegrationRepository) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]integration.Integration, error) {
	var rows []models.IntegrationModel
	if err := r.db.WithContext(ctx).
		Scopes(forTenant(tenantID), notDeleted).
		Order("channel_slug ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return toIntegrations(rows), nil
}

// ListSyncCandidates returns live integrations with auto sync on in active or error status.
// Due and retry filtering happens in the domain.
func (r *GormIntegrationRepository) ListSyncCandidates(ctx context.Context) ([]integration.Integration, error) {
	var rows []models.IntegrationModel
	if err := r.db.WithContext(ctx).
		Scopes(notDeleted).
		Where("auto_sync_enabled = ? AND status IN ?", true,
			[]integration.IntegrationStatus{integration.StatusActive, integration.StatusError}).
		Order("last_sync ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return toIntegrations(rows), nil
}

// CountByStatus groups the tenant's live integrations by status
func (r *GormIntegrationRepository) CountByStatus(ctx context.Context, tenantID uuid.UUID) (map[integration.IntegrationStatus]int64, error) {
	var rows []struct {
		Status integration.IntegrationStatus
		Count  int64
	}
	if err := r.db.WithContext(ctx).
		Model(&models.IntegrationModel{}).
		Scopes(forTenant(tenantID), notDeleted).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	counts := make(map[integration.IntegrationStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

// ---------------------------------------------------------------------------
// Writes
// ---------------------------------------------------------------------------

// Save creates an integration or updates every column of an existing one
// except the webhook-owned columns, which only UpdateWebhookState writes.
// A second live integration for the same tenant and channel, or for the same
// remote account, returns integration.ErrIntegrationExists.
func (r *GormIntegrationRepository) Save(ctx context.Context, i *integration.Integration) error {
	model := models.IntegrationModelFromDomain(i)
	result := r.db.WithContext(ctx).
		Model(model).
		Select("*").
		Omit(models.WebhookOwnedColumns...).
		Updates(model)
	if result.Error != nil {
		return translateIntegrationError(result.Error)
	}
	if result.RowsAffected > 0 {
		return nil
	}
	return translateIntegrationError(r.db.WithContext(ctx).Create(model).Error)
}

func translateIntegrationError(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return integration.ErrIntegrationExists.Wrap(err)
	}
	return err
}

// UpdateSyncState writes only the sync columns of an integration
func (r *GormIntegrationRepository) UpdateSyncState(ctx context.Context, i *integration.Integration) error {
	model := models.IntegrationModelFromDomain(i)
	return r.updateColumns(ctx, i, model.SyncStateColumns())
}

// UpdateWebhookState writes only the webhook columns of an integration
func (r *GormIntegrationRepository) UpdateWebhookState(ctx context.Context, i *integration.Integration) error {
	model := models.IntegrationModelFromDomain(i)
	return r.updateColumns(ctx, i, model.WebhookStateColumns())
}

func (r *GormIntegrationRepository) updateColumns(ctx context.Context, i *integration.Integration, columns map[string]any) error {
	result := r.db.WithContext(ctx).
		Model(&models.IntegrationModel{}).
		Scopes(notDeleted).
		Where("id = ? AND tenant_id = ?", i.ID, i.TenantID).
		Updates(columns)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return integration.ErrIntegrationNotFound
	}
	return nil
}

func toIntegrations(rows []models.IntegrationModel) []integration.Integration {
	out := make([]integration.Integration, len(rows))
	for i := range rows {
		out[i] = *rows[i].ToDomain()
	}
	return out
}

// Ensure GormIntegrationRepository implements the interface
var _ integration.IntegrationRepository = (*GormIntegrationRepository)(nil)
