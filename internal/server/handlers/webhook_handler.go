package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/dairy/internal/domain/models"
	"github.com/mamadbah2/dairy/internal/service/ledger"
	service "github.com/mamadbah2/dairy/internal/service/whatsapp"
)

// WebhookHandler is the WhatsApp side of the dairy: customer bill queries
// arrive on the webhook and the owner can push one-off texts.
type WebhookHandler struct {
	svc    service.MessagingService
	logger *zap.Logger
}

// NewWebhookHandler builds the handler over the messaging service.
func NewWebhookHandler(svc service.MessagingService, logger *zap.Logger) *WebhookHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookHandler{svc: svc, logger: logger}
}

type verifyQuery struct {
	Mode      string `form:"hub.mode"`
	Token     string `form:"hub.verify_token"`
	Challenge string `form:"hub.challenge"`
}

// Verify echoes hub.challenge once the subscription token matches.
func (h *WebhookHandler) Verify(c *gin.Context) {
	var q verifyQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.String(http.StatusBadRequest, "invalid query")
		return
	}

	resp, err := h.svc.VerifyWebhookToken(q.Mode, q.Token, q.Challenge)
	if err != nil {
		h.logger.Warn("webhook verification failed", zap.Error(err))
		c.String(http.StatusForbidden, "verification failed")
		return
	}

	c.String(http.StatusOK, resp)
}

// Receive answers the /bill and /due commands in a callback. A failure
// answers 500 so Meta redelivers; replied messages are skipped by id.
func (h *WebhookHandler) Receive(c *gin.Context) {
	var payload models.WebhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		h.logger.Warn("unreadable whatsapp callback", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	if err := h.svc.HandleWebhook(c.Request.Context(), payload); err != nil {
		h.logger.Error("customer command reply failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "reply not sent"})
		return
	}

	c.Status(http.StatusOK)
}

// MessageCustomer sends a one-off text, such as a payment reminder, to a
// customer phone. The number is normalized like registered phones.
func (h *WebhookHandler) MessageCustomer(c *gin.Context) {
	var req models.OutboundMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	req.To = ledger.NormalizePhone(req.To)
	if req.To == "" {
		h.badRequest(c, errors.New("phone is blank"))
		return
	}

	if err := h.svc.SendOutbound(c.Request.Context(), req); err != nil {
		h.logger.Error("customer message not delivered", zap.String("to", req.To), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "whatsapp delivery failed"})
		return
	}

	c.Status(http.StatusAccepted)
}

func (h *WebhookHandler) badRequest(c *gin.Context, err error) {
	h.logger.Warn("invalid customer message", zap.Error(err))
	c.JSON(http.StatusBadRequest, gin.H{"error": "to and message are required"})
}
