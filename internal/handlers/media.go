package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"vibez-client/internal/models"
)

// MediaAPI is the slice of the gateway behind the feed and search
// endpoints.
type MediaAPI interface {
	Feed(ctx context.Context, feedType string) ([]models.Reel, error)
	SearchUsers(ctx context.Context, query string) ([]models.User, error)
	RegisterDeviceToken(ctx context.Context, token string) error
}

// MediaHandler proxies feed, search and device registration to the
// backend.
type MediaHandler struct {
	api MediaAPI
}

// NewMediaHandler builds a MediaHandler.
func NewMediaHandler(api MediaAPI) *MediaHandler {
	return &MediaHandler{api: api}
}

// Feed returns the reel feed. type is FOR_YOU (default) or FOLLOWING.
func (h *MediaHandler) Feed(c *gin.Context) {
	reels, err := h.api.Feed(c.Request.Context(), c.Query("type"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reels": reels})
}

// SearchUsers proxies the user search used when starting chats.
func (h *MediaHandler) SearchUsers(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query parameter q is required"})
		return
	}
	users, err := h.api.SearchUsers(c.Request.Context(), query)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

// RegisterDevice registers a push-notification device token with the
// backend.
func (h *MediaHandler) RegisterDevice(c *gin.Context) {
	var req struct {
		Token string `json:"token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.api.RegisterDeviceToken(c.Request.Context(), req.Token); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
