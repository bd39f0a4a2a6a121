package handler

import (
	appintegration "github.com/erp/marketplace/internal/application/integration"
	"github.com/gin-gonic/gin"
)

// ConnectHandler serves the two authorization flows that create integrations
type ConnectHandler struct {
	BaseHandler
	negotiator *appintegration.AuthNegotiator
}

// NewConnectHandler creates a new ConnectHandler
func NewConnectHandler(negotiator *appintegration.AuthNegotiator) *ConnectHandler {
	return &ConnectHandler{negotiator: negotiator}
}

// ConnectAPIKeyRequest carries the credential fields for an API-key channel
type ConnectAPIKeyRequest struct {
	Fields map[string]string `json:"fields" binding:"required,min=1"`
}

// OAuthCallbackRequest relays the provider redirect parameters
type OAuthCallbackRequest struct {
	State string `json:"state" binding:"required"`
	Code  string `json:"code"`
	Error string `json:"error"`
}

// BeginAuthorization godoc
// @ID           beginChannelAuthorization
// @Summary      Start the OAuth2 flow for a channel
// @Tags         connect
// @Produce      json
// @Param        channel_slug path string true "Channel slug"
// @Success      200 {object} dto.Response{data=appintegration.AuthorizationStart}
// @Failure      422 {object} dto.Response
// @Security     BearerAuth
// @Router       /channels/{channel_slug}/authorize [post]
func (h *ConnectHandler) BeginAuthorization(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	start, err := h.negotiator.BeginAuthorization(c.Request.Context(), actor, c.Param("channel_slug"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, start)
}

// CompleteAuthorization godoc
// @ID           completeChannelAuthorization
// @Summary      Finish the OAuth2 flow with the provider's callback parameters
// @Description  The state token is single use. Expired, reused or foreign tokens answer 400.
// @Tags         connect
// @Accept       json
// @Produce      json
// @Param        request body OAuthCallbackRequest true "Callback parameters"
// @Success      201 {object} dto.Response{data=appintegration.IntegrationResponse}
// @Failure      400 {object} dto.Response
// @Security     BearerAuth
// @Router       /oauth/callback [post]
func (h *ConnectHandler) CompleteAuthorization(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var req OAuthCallbackRequest
	if !h.bindJSON(c, &req) {
		return
	}
	created, err := h.negotiator.CompleteAuthorization(c.Request.Context(), actor, appintegration.CompleteAuthorizationCommand{
		State:         req.State,
		Code:          req.Code,
		ProviderError: req.Error,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, appintegration.ToIntegrationResponse(created))
}

// ConnectWithAPIKey godoc
// @ID           connectChannelWithAPIKey
// @Summary      Connect an API-key channel
// @Tags         connect
// @Accept       json
// @Produce      json
// @Param        channel_slug path string true "Channel slug"
// @Param        request body ConnectAPIKeyRequest true "Credential fields"
// @Success      201 {object} dto.Response{data=appintegration.IntegrationResponse}
// @Failure      400 {object} dto.Response
// @Failure      422 {object} dto.Response
// @Security     BearerAuth
// @Router       /channels/{channel_slug}/connect [post]
func (h *ConnectHandler) ConnectWithAPIKey(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var req ConnectAPIKeyRequest
	if !h.bindJSON(c, &req) {
		return
	}
	created, err := h.negotiator.ConnectWithAPIKey(c.Request.Context(), actor, appintegration.ConnectAPIKeyCommand{
		ChannelSlug: c.Param("channel_slug"),
		Fields:      req.Fields,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, appintegration.ToIntegrationResponse(created))
}
