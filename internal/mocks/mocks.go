package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"vibez-client/internal/models"
	"vibez-client/internal/transport"
)

type ChatAPIMock struct {
	mock.Mock
}

func (m *ChatAPIMock) ListRooms(ctx context.Context) ([]models.Room, error) {
	args := m.Called(ctx)
	var rooms []models.Room
	if val := args.Get(0); val != nil {
		rooms = val.([]models.Room)
	}
	return rooms, args.Error(1)
}

func (m *ChatAPIMock) PrivateChat(ctx context.Context, username string) (models.Room, error) {
	args := m.Called(ctx, username)
	var room models.Room
	if val := args.Get(0); val != nil {
		room = val.(models.Room)
	}
	return room, args.Error(1)
}

func (m *ChatAPIMock) GroupChat(ctx context.Context, usernames []string, name string) (models.Room, error) {
	args := m.Called(ctx, usernames, name)
	var room models.Room
	if val := args.Get(0); val != nil {
		room = val.(models.Room)
	}
	return room, args.Error(1)
}

func (m *ChatAPIMock) Messages(ctx context.Context, roomID uuid.UUID, page, size int) ([]models.Message, error) {
	args := m.Called(ctx, roomID, page, size)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *ChatAPIMock) PostMessage(ctx context.Context, roomID uuid.UUID, content string, reelID *int64) (models.Message, error) {
	args := m.Called(ctx, roomID, content, reelID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *ChatAPIMock) EditMessage(ctx context.Context, messageID uuid.UUID, content string) (models.Message, error) {
	args := m.Called(ctx, messageID, content)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *ChatAPIMock) DeleteMessage(ctx context.Context, messageID uuid.UUID) (models.Message, error) {
	args := m.Called(ctx, messageID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

type NotificationAPIMock struct {
	mock.Mock
}

func (m *NotificationAPIMock) Notifications(ctx context.Context) ([]models.Notification, error) {
	args := m.Called(ctx)
	var list []models.Notification
	if val := args.Get(0); val != nil {
		list = val.([]models.Notification)
	}
	return list, args.Error(1)
}

func (m *NotificationAPIMock) UnreadNotificationCount(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *NotificationAPIMock) MarkAllNotificationsRead(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *NotificationAPIMock) MarkNotificationRead(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// BusMock records subscriptions and sends, and lets tests inject inbound
// frames through the registered handlers.
type BusMock struct {
	mock.Mock

	handlers map[string]transport.MessageHandler
}

func (m *BusMock) Subscribe(destination string, handler transport.MessageHandler) error {
	if m.handlers == nil {
		m.handlers = make(map[string]transport.MessageHandler)
	}
	m.handlers[destination] = handler
	args := m.Called(destination)
	return args.Error(0)
}

func (m *BusMock) Send(destination string, payload any) error {
	args := m.Called(destination, payload)
	return args.Error(0)
}

// Deliver feeds a raw frame body to the handler subscribed at destination.
func (m *BusMock) Deliver(destination string, body []byte) {
	if handler, ok := m.handlers[destination]; ok {
		handler(destination, body)
	}
}
