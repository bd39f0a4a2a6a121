package handler

import (
	appintegration "github.com/erp/marketplace/internal/application/integration"
	"github.com/erp/marketplace/internal/domain/integration"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ChannelHandler serves the channel catalog and its platform-admin controls
type ChannelHandler struct {
	BaseHandler
	registry *appintegration.ChannelRegistry
	gate     *appintegration.PermissionGate
}

// NewChannelHandler creates a new ChannelHandler
func NewChannelHandler(registry *appintegration.ChannelRegistry, gate *appintegration.PermissionGate) *ChannelHandler {
	return &ChannelHandler{
		registry: registry,
		gate:     gate,
	}
}

// SetLifecycleRequest changes a channel's platform-wide lifecycle
type SetLifecycleRequest struct {
	Status string `json:"status" binding:"required,oneof=active maintenance inactive"`
}

// SetEnablementRequest toggles a channel for one tenant
type SetEnablementRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// ListChannels godoc
// @ID           listChannels
// @Summary      List marketplace channels
// @Tags         channels
// @Produce      json
// @Success      200 {object} dto.Response{data=[]appintegration.ChannelResponse}
// @Failure      401 {object} dto.Response
// @Security     BearerAuth
// @Router       /channels [get]
func (h *ChannelHandler) ListChannels(c *gin.Context) {
	if _, ok := h.actor(c); !ok {
		return
	}
	channels, err := h.registry.ListChannels(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	resp := make([]appintegration.ChannelResponse, 0, len(channels))
	for i := range channels {
		resp = append(resp, appintegration.ToChannelResponse(&channels[i]))
	}
	h.Success(c, resp)
}

// GetChannel godoc
// @ID           getChannel
// @Summary      Get a marketplace channel
// @Tags         channels
// @Produce      json
// @Param        channel_slug path string true "Channel slug"
// @Success      200 {object} dto.Response{data=appintegration.ChannelResponse}
// @Failure      404 {object} dto.Response
// @Security     BearerAuth
// @Router       /channels/{channel_slug} [get]
func (h *ChannelHandler) GetChannel(c *gin.Context) {
	if _, ok := h.actor(c); !ok {
		return
	}
	channel, err := h.registry.GetChannel(c.Request.Context(), c.Param("channel_slug"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, appintegration.ToChannelResponse(channel))
}

// SetLifecycle godoc
// @ID           setChannelLifecycle
// @Summary      Change a channel's lifecycle status
// @Tags         admin
// @Accept       json
// @Produce      json
// @Param        channel_slug path string true "Channel slug"
// @Param        request body SetLifecycleRequest true "Lifecycle"
// @Success      200 {object} dto.Response{data=appintegration.ChannelResponse}
// @Failure      403 {object} dto.Response
// @Security     BearerAuth
// @Router       /admin/channels/{channel_slug}/lifecycle [put]
func (h *ChannelHandler) SetLifecycle(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var req SetLifecycleRequest
	if !h.bindJSON(c, &req) {
		return
	}
	channel, err := h.registry.SetLifecycleStatus(c.Request.Context(), actor, c.Param("channel_slug"), integration.LifecycleStatus(req.Status))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, appintegration.ToChannelResponse(channel))
}

// ListTenantEnablements godoc
// @ID           listTenantEnablements
// @Summary      List channel enablements of a tenant
// @Tags         admin
// @Produce      json
// @Param        tenant_id path string true "Tenant ID"
// @Success      200 {object} dto.Response{data=[]appintegration.EnablementResponse}
// @Failure      403 {object} dto.Response
// @Security     BearerAuth
// @Router       /admin/tenants/{tenant_id}/enablements [get]
func (h *ChannelHandler) ListTenantEnablements(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	if err := h.gate.RequireToggleChannel(actor); err != nil {
		h.HandleError(c, err)
		return
	}
	tenantID, ok := h.uuidParam(c, "tenant_id")
	if !ok {
		return
	}
	h.listEnablements(c, tenantID)
}

// ListMyEnablements godoc
// @ID           listMyEnablements
// @Summary      List the caller tenant's channel enablements
// @Tags         channels
// @Produce      json
// @Success      200 {object} dto.Response{data=[]appintegration.EnablementResponse}
// @Failure      403 {object} dto.Response
// @Security     BearerAuth
// @Router       /enablements [get]
func (h *ChannelHandler) ListMyEnablements(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	if err := h.gate.RequireOperator(actor); err != nil {
		h.HandleError(c, err)
		return
	}
	h.listEnablements(c, actor.TenantID)
}

func (h *ChannelHandler) listEnablements(c *gin.Context, tenantID uuid.UUID) {
	enablements, err := h.registry.ListEnablements(c.Request.Context(), tenantID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	resp := make([]appintegration.EnablementResponse, 0, len(enablements))
	for i := range enablements {
		resp = append(resp, appintegration.ToEnablementResponse(&enablements[i]))
	}
	h.Success(c, resp)
}

// SetEnablement godoc
// @ID           setChannelEnablement
// @Summary      Enable or disable a channel for a tenant
// @Tags         admin
// @Accept       json
// @Produce      json
// @Param        tenant_id path string true "Tenant ID"
// @Param        channel_slug path string true "Channel slug"
// @Param        request body SetEnablementRequest true "Enablement"
// @Success      200 {object} dto.Response{data=appintegration.EnablementResponse}
// @Failure      403 {object} dto.Response
// @Security     BearerAuth
// @Router       /admin/tenants/{tenant_id}/enablements/{channel_slug} [put]
func (h *ChannelHandler) SetEnablement(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	tenantID, ok := h.uuidParam(c, "tenant_id")
	if !ok {
		return
	}
	var req SetEnablementRequest
	if !h.bindJSON(c, &req) {
		return
	}
	enablement, err := h.registry.SetEnablement(c.Request.Context(), actor, tenantID, c.Param("channel_slug"), *req.Enabled)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, appintegration.ToEnablementResponse(enablement))
}
