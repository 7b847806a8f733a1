package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"leadbridge/internal/entities"
	"leadbridge/internal/interfaces"
	"leadbridge/internal/repository"
)

const (
	DefaultMessageLimit = 30
	MaxMessageLimit     = 200
)

// OperatorHandler exposes read-only views of the conversation store.
type OperatorHandler struct {
	store interfaces.ConversationStore
}

func NewOperatorHandler(store interfaces.ConversationStore) *OperatorHandler {
	return &OperatorHandler{store: store}
}

// GetMessages returns the most recent messages of one user, oldest first.
func (h *OperatorHandler) GetMessages(c *gin.Context) {
	channel, userID, ok := conversationKey(c)
	if !ok {
		return
	}
	limit, ok := ParseLimit(c.Query("limit"), DefaultMessageLimit, MaxMessageLimit)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
		return
	}

	msgs, err := h.store.GetRecentMessages(c.Request.Context(), channel, userID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load messages"})
		return
	}
	if msgs == nil {
		msgs = []entities.StoredMessage{}
	}
	c.JSON(http.StatusOK, gin.H{
		"channel":  channel,
		"user_id":  userID,
		"messages": msgs,
	})
}

func (h *OperatorHandler) GetClient(c *gin.Context) {
	channel, userID, ok := conversationKey(c)
	if !ok {
		return
	}

	client, err := h.store.GetClient(c.Request.Context(), channel, userID)
	if errors.Is(err, repository.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Client not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load client"})
		return
	}
	c.JSON(http.StatusOK, client)
}

// conversationKey validates the path parameters and writes a 400 when they
// are unusable.
func conversationKey(c *gin.Context) (entities.Channel, string, bool) {
	channel, ok := ValidChannel(c.Param("channel"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown channel"})
		return "", "", false
	}
	userID := c.Param("user_id")
	if !ValidUserID(userID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user id"})
		return "", "", false
	}
	return channel, userID, true
}
