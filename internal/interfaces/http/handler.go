package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"leadbridge/internal/interfaces"
	"leadbridge/internal/usecases"
)

const maxWebhookBody = 1 << 20

type Handler struct {
	messageService *usecases.MessageService
	verifyToken    string
	logger         *slog.Logger
}

func NewHandler(service *usecases.MessageService, verifyToken string, logger *slog.Logger) *Handler {
	return &Handler{
		messageService: service,
		verifyToken:    verifyToken,
		logger:         logger.With("component", "http"),
	}
}

// SetupRoutes registers the webhook endpoints. The operator API is only
// mounted when middleware is non-nil.
func SetupRoutes(r *gin.Engine, service *usecases.MessageService, store interfaces.ConversationStore, verifyToken string, middleware *Middleware, logger *slog.Logger) {
	h := NewHandler(service, verifyToken, logger)

	r.Use(noStore())

	r.GET("/healthz", h.Healthz)
	r.GET("/webhook", h.VerifyWebhook)
	r.POST("/webhook", limitBody(maxWebhookBody), h.ReceiveWebhook)

	if middleware == nil {
		logger.Info("operator API disabled")
		return
	}

	operator := NewOperatorHandler(store)
	api := r.Group("/api")
	api.Use(middleware.AuthRequired())
	api.Use(middleware.RateLimitPerUser(5, 10))
	{
		api.GET("/conversations/:channel/:user_id/messages", operator.GetMessages)
		api.GET("/clients/:channel/:user_id", operator.GetClient)
	}
}

func (h *Handler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// VerifyWebhook answers the Cloud API subscription handshake.
func (h *Handler) VerifyWebhook(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode == "subscribe" && token != "" && token == h.verifyToken {
		c.String(http.StatusOK, challenge)
		return
	}
	h.logger.Warn("webhook verification rejected", "mode", mode)
	c.String(http.StatusForbidden, "Verification failed")
}

// ReceiveWebhook always acknowledges with 200 so the platform does not
// redeliver; malformed bodies are reported as ignored.
func (h *Handler) ReceiveWebhook(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		h.logger.Warn("reading webhook body failed", "error", err)
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	forwarded, ignored := h.messageService.HandleWebhook(c.Request.Context(), body)
	if ignored {
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"forwarded": forwarded})
}
