package handler

import (
	appintegration "github.com/erp/marketplace/internal/application/integration"
	"github.com/gin-gonic/gin"
)

// StatsHandler serves the tenant dashboard summary
type StatsHandler struct {
	BaseHandler
	aggregator *appintegration.StatsAggregator
}

// NewStatsHandler creates a new StatsHandler
func NewStatsHandler(aggregator *appintegration.StatsAggregator) *StatsHandler {
	return &StatsHandler{aggregator: aggregator}
}

// TenantStats godoc
// @ID           getMarketplaceStats
// @Summary      Marketplace summary for the caller's tenant
// @Tags         stats
// @Produce      json
// @Success      200 {object} dto.Response{data=appintegration.Stats}
// @Failure      403 {object} dto.Response
// @Security     BearerAuth
// @Router       /stats [get]
func (h *StatsHandler) TenantStats(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	stats, err := h.aggregator.TenantStats(c.Request.Context(), actor)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, stats)
}
