package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"vibez-client/internal/chat"
	"vibez-client/internal/gateway"
	"vibez-client/internal/mocks"
	"vibez-client/internal/models"
)

func setupChatRouter(handler *ChatHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/rooms", handler.ListRooms)
	r.POST("/rooms/:room_id/open", handler.OpenRoom)
	r.POST("/rooms/close", handler.CloseRoom)
	r.GET("/rooms/:room_id/messages", handler.GetMessages)
	r.POST("/rooms/:room_id/messages", handler.PostMessage)
	r.PATCH("/messages/:message_id", handler.EditMessage)
	r.DELETE("/messages/:message_id", handler.DeleteMessage)
	r.POST("/rooms/private", handler.StartPrivateChat)
	r.POST("/rooms/group", handler.StartGroupChat)
	return r
}

func TestListRoomsIncludesUnread(t *testing.T) {
	session := new(mocks.ChatSessionMock)
	router := setupChatRouter(NewChatHandler(session))

	roomID := uuid.New()
	session.On("Rooms").Return([]models.Room{{ID: roomID, Type: models.RoomPrivate}}).Once()
	session.On("Unread", roomID).Return(3).Once()

	req := httptest.NewRequest(http.MethodGet, "/rooms", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Rooms []struct {
			ID     uuid.UUID `json:"id"`
			Unread int       `json:"unread"`
		} `json:"rooms"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Rooms, 1)
	assert.Equal(t, roomID, resp.Rooms[0].ID)
	assert.Equal(t, 3, resp.Rooms[0].Unread)
	session.AssertExpectations(t)
}

func TestOpenRoomReturnsHistory(t *testing.T) {
	session := new(mocks.ChatSessionMock)
	router := setupChatRouter(NewChatHandler(session))

	roomID := uuid.New()
	session.On("OpenRoom", mock.Anything, roomID).
		Return([]models.Message{{ID: uuid.New(), RoomID: roomID, Content: "hi"}}, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/rooms/"+roomID.String()+"/open", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	session.AssertExpectations(t)
}

func TestOpenRoomUnknownIs404(t *testing.T) {
	session := new(mocks.ChatSessionMock)
	router := setupChatRouter(NewChatHandler(session))

	roomID := uuid.New()
	session.On("OpenRoom", mock.Anything, roomID).Return(([]models.Message)(nil), chat.ErrRoomUnknown).Once()

	req := httptest.NewRequest(http.MethodPost, "/rooms/"+roomID.String()+"/open", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	session.AssertExpectations(t)
}

func TestOpenRoomInvalidID(t *testing.T) {
	router := setupChatRouter(NewChatHandler(new(mocks.ChatSessionMock)))

	req := httptest.NewRequest(http.MethodPost, "/rooms/not-a-uuid/open", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPostMessageAccepted(t *testing.T) {
	session := new(mocks.ChatSessionMock)
	router := setupChatRouter(NewChatHandler(session))

	roomID := uuid.New()
	session.On("SendMessage", mock.Anything, roomID, "hello", (*int64)(nil)).Return(nil).Once()

	body := bytes.NewBufferString(`{"content":"hello"}`)
	req := httptest.NewRequest(http.MethodPost, "/rooms/"+roomID.String()+"/messages", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	session.AssertExpectations(t)
}

func TestPostMessageEmptyIs400(t *testing.T) {
	session := new(mocks.ChatSessionMock)
	router := setupChatRouter(NewChatHandler(session))

	roomID := uuid.New()
	session.On("SendMessage", mock.Anything, roomID, "", (*int64)(nil)).Return(chat.ErrEmptyMessage).Once()

	body := bytes.NewBufferString(`{"content":""}`)
	req := httptest.NewRequest(http.MethodPost, "/rooms/"+roomID.String()+"/messages", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	session.AssertExpectations(t)
}

func TestEditMessageForeignSenderIs403(t *testing.T) {
	session := new(mocks.ChatSessionMock)
	router := setupChatRouter(NewChatHandler(session))

	messageID := uuid.New()
	session.On("EditMessage", mock.Anything, messageID, "new").Return(chat.ErrNotSender).Once()

	body := bytes.NewBufferString(`{"content":"new"}`)
	req := httptest.NewRequest(http.MethodPatch, "/messages/"+messageID.String(), body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	session.AssertExpectations(t)
}

func TestDeleteMessageAccepted(t *testing.T) {
	session := new(mocks.ChatSessionMock)
	router := setupChatRouter(NewChatHandler(session))

	messageID := uuid.New()
	session.On("DeleteMessage", mock.Anything, messageID).Return(nil).Once()

	req := httptest.NewRequest(http.MethodDelete, "/messages/"+messageID.String(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	session.AssertExpectations(t)
}

func TestStartPrivateChat(t *testing.T) {
	session := new(mocks.ChatSessionMock)
	router := setupChatRouter(NewChatHandler(session))

	room := models.Room{ID: uuid.New(), Type: models.RoomPrivate}
	session.On("CreateOrGetPrivateChat", mock.Anything, "bob").Return(room, nil).Once()

	body := bytes.NewBufferString(`{"participantUsername":"bob"}`)
	req := httptest.NewRequest(http.MethodPost, "/rooms/private", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var got models.Room
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, room.ID, got.ID)
	session.AssertExpectations(t)
}

func TestStartGroupChatCreated(t *testing.T) {
	session := new(mocks.ChatSessionMock)
	router := setupChatRouter(NewChatHandler(session))

	room := models.Room{ID: uuid.New(), Type: models.RoomGroup, Name: "crew"}
	session.On("CreateGroupChat", mock.Anything, []string{"bob", "carol"}, "crew").Return(room, nil).Once()

	body := bytes.NewBufferString(`{"name":"crew","participantUsernames":["bob","carol"]}`)
	req := httptest.NewRequest(http.MethodPost, "/rooms/group", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	session.AssertExpectations(t)
}

func TestBackendErrorStatusPassesThrough(t *testing.T) {
	session := new(mocks.ChatSessionMock)
	router := setupChatRouter(NewChatHandler(session))

	apiErr := &gateway.APIError{Status: http.StatusConflict, Kind: gateway.KindConflict, Message: "already exists"}
	session.On("CreateOrGetPrivateChat", mock.Anything, "bob").Return(models.Room{}, apiErr).Once()

	body := bytes.NewBufferString(`{"participantUsername":"bob"}`)
	req := httptest.NewRequest(http.MethodPost, "/rooms/private", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
	session.AssertExpectations(t)
}
