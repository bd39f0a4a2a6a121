package handler

import (
	"context"

	appintegration "github.com/erp/marketplace/internal/application/integration"
	"github.com/erp/marketplace/internal/domain/integration"
	"github.com/erp/marketplace/internal/interfaces/http/dto"
	"github.com/erp/marketplace/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// IntegrationHandler serves tenant-side integration management
type IntegrationHandler struct {
	BaseHandler
	service *appintegration.IntegrationService
}

// NewIntegrationHandler creates a new IntegrationHandler
func NewIntegrationHandler(service *appintegration.IntegrationService) *IntegrationHandler {
	return &IntegrationHandler{service: service}
}

// TriggerSyncRequest starts a manual sync pass
type TriggerSyncRequest struct {
	Direction string `json:"direction" binding:"omitempty,oneof=import export"`
}

// ListLogsQuery pages the sync log of one integration
type ListLogsQuery struct {
	dto.ListRequest
	Status string `form:"status" binding:"omitempty,oneof=success error pending"`
}

// List godoc
// @ID           listIntegrations
// @Summary      List the tenant's integrations
// @Tags         integrations
// @Produce      json
// @Success      200 {object} dto.Response{data=[]appintegration.IntegrationResponse}
// @Failure      403 {object} dto.Response
// @Security     BearerAuth
// @Router       /integrations [get]
func (h *IntegrationHandler) List(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	items, err := h.service.List(c.Request.Context(), actor)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	resp := make([]appintegration.IntegrationResponse, 0, len(items))
	for i := range items {
		resp = append(resp, appintegration.ToIntegrationResponse(&items[i]))
	}
	h.Success(c, resp)
}

// Get godoc
// @ID           getIntegration
// @Summary      Get an integration
// @Tags         integrations
// @Produce      json
// @Param        id path string true "Integration ID"
// @Success      200 {object} dto.Response{data=appintegration.IntegrationResponse}
// @Failure      404 {object} dto.Response
// @Security     BearerAuth
// @Router       /integrations/{id} [get]
func (h *IntegrationHandler) Get(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	target, err := h.service.Get(c.Request.Context(), actor, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, appintegration.ToIntegrationResponse(target))
}

// UpdateSettings godoc
// @ID           updateIntegrationSettings
// @Summary      Update auto sync, interval and webhook URL
// @Tags         integrations
// @Accept       json
// @Produce      json
// @Param        id path string true "Integration ID"
// @Param        request body appintegration.UpdateSettingsCommand true "Settings"
// @Success      200 {object} dto.Response{data=appintegration.IntegrationResponse}
// @Failure      400 {object} dto.Response
// @Security     BearerAuth
// @Router       /integrations/{id} [patch]
func (h *IntegrationHandler) UpdateSettings(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	var cmd appintegration.UpdateSettingsCommand
	if !h.bindJSON(c, &cmd) {
		return
	}
	target, err := h.service.UpdateSettings(c.Request.Context(), actor, id, cmd)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, appintegration.ToIntegrationResponse(target))
}

// Pause godoc
// @ID           pauseIntegration
// @Summary      Pause an integration
// @Tags         integrations
// @Produce      json
// @Param        id path string true "Integration ID"
// @Success      200 {object} dto.Response{data=appintegration.IntegrationResponse}
// @Security     BearerAuth
// @Router       /integrations/{id}/pause [post]
func (h *IntegrationHandler) Pause(c *gin.Context) {
	h.transition(c, h.service.Pause)
}

// Resume godoc
// @ID           resumeIntegration
// @Summary      Re-validate credentials and resume a paused integration
// @Tags         integrations
// @Produce      json
// @Param        id path string true "Integration ID"
// @Success      200 {object} dto.Response{data=appintegration.IntegrationResponse}
// @Failure      422 {object} dto.Response
// @Security     BearerAuth
// @Router       /integrations/{id}/resume [post]
func (h *IntegrationHandler) Resume(c *gin.Context) {
	h.transition(c, h.service.Resume)
}

// ResetWebhook godoc
// @ID           resetIntegrationWebhook
// @Summary      Clear a failing webhook status
// @Tags         integrations
// @Produce      json
// @Param        id path string true "Integration ID"
// @Success      200 {object} dto.Response{data=appintegration.IntegrationResponse}
// @Security     BearerAuth
// @Router       /integrations/{id}/webhook/reset [post]
func (h *IntegrationHandler) ResetWebhook(c *gin.Context) {
	h.transition(c, h.service.ResetWebhookStatus)
}

// Delete godoc
// @ID           deleteIntegration
// @Summary      Disconnect an integration and revoke its credentials
// @Tags         integrations
// @Param        id path string true "Integration ID"
// @Success      204
// @Security     BearerAuth
// @Router       /integrations/{id} [delete]
func (h *IntegrationHandler) Delete(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	if err := h.service.Delete(c.Request.Context(), actor, id); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

// TriggerSync godoc
// @ID           triggerIntegrationSync
// @Summary      Run a manual sync pass
// @Description  Runs to completion and returns the recorded log entry. A failed pass is still 200 with status=error.
// @Tags         integrations
// @Accept       json
// @Produce      json
// @Param        id path string true "Integration ID"
// @Param        request body TriggerSyncRequest false "Direction, import by default"
// @Success      200 {object} dto.Response{data=appintegration.SyncLogResponse}
// @Failure      409 {object} dto.Response
// @Security     BearerAuth
// @Router       /integrations/{id}/sync [post]
func (h *IntegrationHandler) TriggerSync(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	var req TriggerSyncRequest
	if c.Request.ContentLength != 0 && !h.bindJSON(c, &req) {
		return
	}
	entry, err := h.service.TriggerSync(c.Request.Context(), actor, id, integration.SyncDirection(req.Direction))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, appintegration.ToSyncLogResponse(entry))
}

// ListLogs godoc
// @ID           listIntegrationLogs
// @Summary      List sync log entries, newest first
// @Tags         integrations
// @Produce      json
// @Param        id path string true "Integration ID"
// @Param        status query string false "success, error or pending"
// @Param        page query int false "Page"
// @Param        page_size query int false "Page size"
// @Success      200 {object} dto.Response{data=[]appintegration.SyncLogResponse}
// @Security     BearerAuth
// @Router       /integrations/{id}/logs [get]
func (h *IntegrationHandler) ListLogs(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	query := ListLogsQuery{ListRequest: dto.DefaultListRequest()}
	if err := c.ShouldBindQuery(&query); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	entries, total, err := h.service.ListLogs(c.Request.Context(), actor, id, integration.SyncLogFilter{
		Status:   integration.SyncLogStatus(query.Status),
		Page:     query.Page,
		PageSize: query.PageSize,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	resp := make([]appintegration.SyncLogResponse, 0, len(entries))
	for i := range entries {
		resp = append(resp, appintegration.ToSyncLogResponse(&entries[i]))
	}
	h.SuccessWithMeta(c, resp, total, query.Page, query.PageSize)
}

func (h *IntegrationHandler) transition(
	c *gin.Context,
	apply func(ctx context.Context, actor integration.Actor, id uuid.UUID) (*integration.Integration, error),
) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	target, err := apply(c.Request.Context(), actor, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, appintegration.ToIntegrationResponse(target))
}
