// Package handlers exposes the local control API: a small authenticated-
// by-locality HTTP surface other processes on the machine use to drive
// the client.
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"vibez-client/internal/chat"
	"vibez-client/internal/gateway"
	"vibez-client/internal/models"
)

// ChatSession is the slice of the chat session manager the control API
// drives.
type ChatSession interface {
	Rooms() []models.Room
	History(roomID uuid.UUID) []models.Message
	Unread(roomID uuid.UUID) int
	OpenRoom(ctx context.Context, roomID uuid.UUID) ([]models.Message, error)
	CloseRoom()
	SendMessage(ctx context.Context, roomID uuid.UUID, content string, reelID *int64) error
	EditMessage(ctx context.Context, messageID uuid.UUID, newContent string) error
	DeleteMessage(ctx context.Context, messageID uuid.UUID) error
	CreateOrGetPrivateChat(ctx context.Context, username string) (models.Room, error)
	CreateGroupChat(ctx context.Context, usernames []string, name string) (models.Room, error)
}

// ChatHandler serves the chat portion of the control API.
type ChatHandler struct {
	session ChatSession
}

// NewChatHandler builds a ChatHandler.
func NewChatHandler(session ChatSession) *ChatHandler {
	return &ChatHandler{session: session}
}

// ListRooms returns the cached room list with unread counters.
func (h *ChatHandler) ListRooms(c *gin.Context) {
	rooms := h.session.Rooms()

	type roomResponse struct {
		models.Room
		Unread int `json:"unread"`
	}
	resp := make([]roomResponse, 0, len(rooms))
	for _, room := range rooms {
		resp = append(resp, roomResponse{Room: room, Unread: h.session.Unread(room.ID)})
	}
	c.JSON(http.StatusOK, gin.H{"rooms": resp})
}

// OpenRoom activates a room and returns its history.
func (h *ChatHandler) OpenRoom(c *gin.Context) {
	roomID, ok := roomParam(c)
	if !ok {
		return
	}
	history, err := h.session.OpenRoom(c.Request.Context(), roomID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": history})
}

// CloseRoom deactivates the current room.
func (h *ChatHandler) CloseRoom(c *gin.Context) {
	h.session.CloseRoom()
	c.Status(http.StatusNoContent)
}

// GetMessages returns the locally held message sequence for a room.
func (h *ChatHandler) GetMessages(c *gin.Context) {
	roomID, ok := roomParam(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": h.session.History(roomID)})
}

// PostMessage sends a message into a room.
func (h *ChatHandler) PostMessage(c *gin.Context) {
	roomID, ok := roomParam(c)
	if !ok {
		return
	}
	var req struct {
		Content string `json:"content"`
		ReelID  *int64 `json:"reelId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.session.SendMessage(c.Request.Context(), roomID, req.Content, req.ReelID); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

// EditMessage rewrites one of the caller's messages.
func (h *ChatHandler) EditMessage(c *gin.Context) {
	messageID, err := uuid.Parse(c.Param("message_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message id"})
		return
	}
	var req struct {
		Content string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.session.EditMessage(c.Request.Context(), messageID, req.Content); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

// DeleteMessage tombstones one of the caller's messages.
func (h *ChatHandler) DeleteMessage(c *gin.Context) {
	messageID, err := uuid.Parse(c.Param("message_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message id"})
		return
	}
	if err := h.session.DeleteMessage(c.Request.Context(), messageID); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

// StartPrivateChat returns the private room with a user, creating it when
// needed.
func (h *ChatHandler) StartPrivateChat(c *gin.Context) {
	var req struct {
		Username string `json:"participantUsername" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	room, err := h.session.CreateOrGetPrivateChat(c.Request.Context(), req.Username)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, room)
}

// StartGroupChat creates a group room.
func (h *ChatHandler) StartGroupChat(c *gin.Context) {
	var req struct {
		Name      string   `json:"name"`
		Usernames []string `json:"participantUsernames" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	room, err := h.session.CreateGroupChat(c.Request.Context(), req.Usernames, req.Name)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, room)
}

func roomParam(c *gin.Context) (uuid.UUID, bool) {
	roomID, err := uuid.Parse(c.Param("room_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room id"})
		return uuid.Nil, false
	}
	return roomID, true
}

// writeError maps session and backend failures to control API statuses.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, chat.ErrRoomUnknown), errors.Is(err, chat.ErrMessageUnknown):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, chat.ErrNotSender):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, chat.ErrEmptyMessage), errors.Is(err, chat.ErrSelfChat), errors.Is(err, chat.ErrNoParticipants):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		if apiErr, ok := gateway.AsAPIError(err); ok && apiErr.Status > 0 {
			c.JSON(apiErr.Status, gin.H{"error": apiErr.Message, "kind": string(apiErr.Kind)})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	}
}
