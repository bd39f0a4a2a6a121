package handler

import (
	"errors"
	"io"
	"net/http"

	appintegration "github.com/erp/marketplace/internal/application/integration"
	"github.com/erp/marketplace/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
)

// SignatureHeaders are checked in order for the delivery signature
var SignatureHeaders = []string{
	"X-Marketplace-Signature",
	"X-Hub-Signature-256",
	"X-Signature",
}

// WebhookHandler receives channel push notifications. It is unauthenticated;
// provenance is established by the payload signature alone.
type WebhookHandler struct {
	BaseHandler
	ingestor *appintegration.WebhookIngestor
}

// NewWebhookHandler creates a new WebhookHandler
func NewWebhookHandler(ingestor *appintegration.WebhookIngestor) *WebhookHandler {
	return &WebhookHandler{ingestor: ingestor}
}

// Receive godoc
// @ID           receiveWebhook
// @Summary      Receive a channel webhook
// @Description  Answers 202 once the delivery is validated. The triggered sync runs in the background.
// @Tags         webhooks
// @Accept       json
// @Produce      json
// @Param        channel_slug path string true "Channel slug"
// @Success      202 {object} dto.Response{data=appintegration.WebhookAck}
// @Failure      401 {object} dto.Response
// @Failure      413 {object} dto.Response
// @Failure      429 {object} dto.Response
// @Router       /webhooks/{channel_slug} [post]
func (h *WebhookHandler) Receive(c *gin.Context) {
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.Error(c, http.StatusRequestEntityTooLarge, dto.ErrCodeTooLarge, "Request body exceeds maximum allowed size")
			return
		}
		h.BadRequest(c, "Unable to read request body")
		return
	}

	ack, err := h.ingestor.HandleWebhook(c.Request.Context(), c.Param("channel_slug"), payload, signature(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Accepted(c, ack)
}

func signature(c *gin.Context) string {
	for _, name := range SignatureHeaders {
		if v := c.GetHeader(name); v != "" {
			return v
		}
	}
	return ""
}
