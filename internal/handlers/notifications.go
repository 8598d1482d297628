package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"vibez-client/internal/models"
)

// NotificationCenter is the slice of the notification client the control
// API drives.
type NotificationCenter interface {
	Notifications() []models.Notification
	Unread() int64
	CurrentToast() (models.Notification, bool)
	DismissToast()
	MarkAllRead(ctx context.Context) error
	MarkRead(ctx context.Context, id int64) error
}

// NotificationHandler serves the notification portion of the control API.
type NotificationHandler struct {
	center NotificationCenter
}

// NewNotificationHandler builds a NotificationHandler.
func NewNotificationHandler(center NotificationCenter) *NotificationHandler {
	return &NotificationHandler{center: center}
}

// List returns the retained notifications and the unread badge.
func (h *NotificationHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"notifications": h.center.Notifications(),
		"unread":        h.center.Unread(),
	})
}

// Toast returns the live toast, if any.
func (h *NotificationHandler) Toast(c *gin.Context) {
	toast, ok := h.center.CurrentToast()
	if !ok {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, toast)
}

// DismissToast clears the live toast.
func (h *NotificationHandler) DismissToast(c *gin.Context) {
	h.center.DismissToast()
	c.Status(http.StatusNoContent)
}

// ReadAll marks every notification read.
func (h *NotificationHandler) ReadAll(c *gin.Context) {
	if err := h.center.MarkAllRead(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ReadOne marks a single notification read.
func (h *NotificationHandler) ReadOne(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid notification id"})
		return
	}
	if err := h.center.MarkRead(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
