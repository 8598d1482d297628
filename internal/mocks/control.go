package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"vibez-client/internal/models"
	"vibez-client/internal/transport"
)

type ChatSessionMock struct {
	mock.Mock
}

func (m *ChatSessionMock) Rooms() []models.Room {
	args := m.Called()
	var rooms []models.Room
	if val := args.Get(0); val != nil {
		rooms = val.([]models.Room)
	}
	return rooms
}

func (m *ChatSessionMock) History(roomID uuid.UUID) []models.Message {
	args := m.Called(roomID)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs
}

func (m *ChatSessionMock) Unread(roomID uuid.UUID) int {
	args := m.Called(roomID)
	return args.Int(0)
}

func (m *ChatSessionMock) OpenRoom(ctx context.Context, roomID uuid.UUID) ([]models.Message, error) {
	args := m.Called(ctx, roomID)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *ChatSessionMock) CloseRoom() {
	m.Called()
}

func (m *ChatSessionMock) SendMessage(ctx context.Context, roomID uuid.UUID, content string, reelID *int64) error {
	args := m.Called(ctx, roomID, content, reelID)
	return args.Error(0)
}

func (m *ChatSessionMock) EditMessage(ctx context.Context, messageID uuid.UUID, newContent string) error {
	args := m.Called(ctx, messageID, newContent)
	return args.Error(0)
}

func (m *ChatSessionMock) DeleteMessage(ctx context.Context, messageID uuid.UUID) error {
	args := m.Called(ctx, messageID)
	return args.Error(0)
}

func (m *ChatSessionMock) CreateOrGetPrivateChat(ctx context.Context, username string) (models.Room, error) {
	args := m.Called(ctx, username)
	var room models.Room
	if val := args.Get(0); val != nil {
		room = val.(models.Room)
	}
	return room, args.Error(1)
}

func (m *ChatSessionMock) CreateGroupChat(ctx context.Context, usernames []string, name string) (models.Room, error) {
	args := m.Called(ctx, usernames, name)
	var room models.Room
	if val := args.Get(0); val != nil {
		room = val.(models.Room)
	}
	return room, args.Error(1)
}

type NotificationCenterMock struct {
	mock.Mock
}

func (m *NotificationCenterMock) Notifications() []models.Notification {
	args := m.Called()
	var list []models.Notification
	if val := args.Get(0); val != nil {
		list = val.([]models.Notification)
	}
	return list
}

func (m *NotificationCenterMock) Unread() int64 {
	args := m.Called()
	return args.Get(0).(int64)
}

func (m *NotificationCenterMock) CurrentToast() (models.Notification, bool) {
	args := m.Called()
	var toast models.Notification
	if val := args.Get(0); val != nil {
		toast = val.(models.Notification)
	}
	return toast, args.Bool(1)
}

func (m *NotificationCenterMock) DismissToast() {
	m.Called()
}

func (m *NotificationCenterMock) MarkAllRead(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *NotificationCenterMock) MarkRead(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type RealtimeMock struct {
	mock.Mock
}

func (m *RealtimeMock) State() transport.State {
	args := m.Called()
	return args.Get(0).(transport.State)
}

func (m *RealtimeMock) Destinations() []string {
	args := m.Called()
	var dests []string
	if val := args.Get(0); val != nil {
		dests = val.([]string)
	}
	return dests
}
