package chat

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"vibez-client/internal/mocks"
	"vibez-client/internal/models"
)

func ts(offset time.Duration) models.Timestamp {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return models.Timestamp{Time: base.Add(offset)}
}

func newTestManager(t *testing.T) (*Manager, *mocks.ChatAPIMock, *mocks.BusMock, models.Room) {
	t.Helper()
	api := new(mocks.ChatAPIMock)
	bus := new(mocks.BusMock)
	bus.On("Subscribe", DestMessages).Return(nil).Once()
	bus.On("Subscribe", DestUpdates).Return(nil).Once()

	room := models.Room{
		ID:        uuid.New(),
		Type:      models.RoomPrivate,
		CreatedAt: ts(0),
		Participants: []models.User{
			{Username: "alice"},
			{Username: "bob"},
		},
	}
	api.On("ListRooms", mock.Anything).Return([]models.Room{room}, nil).Once()

	m := NewManager("alice", api, bus, nil, zerolog.Nop())
	require.NoError(t, m.Start(context.Background()))
	return m, api, bus, room
}

func deliver(t *testing.T, bus *mocks.BusMock, destination string, payload any) {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	bus.Deliver(destination, body)
}

func newMessage(room models.Room, sender string, content string, at models.Timestamp) models.Message {
	return models.Message{
		ID:        uuid.New(),
		RoomID:    room.ID,
		Content:   content,
		Timestamp: at,
		Sender:    models.User{Username: sender},
	}
}

func TestInboundMessageDeduplicatedByID(t *testing.T) {
	m, _, bus, room := newTestManager(t)

	msg := newMessage(room, "bob", "hi", ts(time.Second))
	deliver(t, bus, DestMessages, msg)
	deliver(t, bus, DestMessages, msg)

	history := m.History(room.ID)
	require.Len(t, history, 1)
	assert.Equal(t, 1, m.Unread(room.ID), "replay must not double-count unread")
}

func TestInboundMessagesOrderedByTimestamp(t *testing.T) {
	m, _, bus, room := newTestManager(t)

	later := newMessage(room, "bob", "second", ts(2*time.Second))
	earlier := newMessage(room, "bob", "first", ts(time.Second))
	deliver(t, bus, DestMessages, later)
	deliver(t, bus, DestMessages, earlier)

	history := m.History(room.ID)
	require.Len(t, history, 2)
	assert.Equal(t, "first", history[0].Content)
	assert.Equal(t, "second", history[1].Content)
}

func TestOpenRoomZerosUnreadAndFetchesOnce(t *testing.T) {
	m, api, bus, room := newTestManager(t)

	deliver(t, bus, DestMessages, newMessage(room, "bob", "unread one", ts(time.Second)))
	require.Equal(t, 1, m.Unread(room.ID))

	// History is non-empty from the live message, so no fetch happens.
	_, err := m.OpenRoom(context.Background(), room.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, m.Unread(room.ID))

	// Arrivals in the open room never count as unread.
	deliver(t, bus, DestMessages, newMessage(room, "bob", "while open", ts(2*time.Second)))
	assert.Equal(t, 0, m.Unread(room.ID))

	// After closing, arrivals count again.
	m.CloseRoom()
	deliver(t, bus, DestMessages, newMessage(room, "bob", "while closed", ts(3*time.Second)))
	assert.Equal(t, 1, m.Unread(room.ID))

	api.AssertNotCalled(t, "Messages", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestOpenRoomFetchesHistoryWhenEmpty(t *testing.T) {
	m, api, _, room := newTestManager(t)

	past := []models.Message{
		newMessage(room, "bob", "old one", ts(-2*time.Minute)),
		newMessage(room, "bob", "old two", ts(-time.Minute)),
	}
	api.On("Messages", mock.Anything, room.ID, 0, historyPageSize).Return(past, nil).Once()

	history, err := m.OpenRoom(context.Background(), room.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)

	// Re-opening must not refetch: the sequence is already warm.
	_, err = m.OpenRoom(context.Background(), room.ID)
	require.NoError(t, err)
	api.AssertExpectations(t)
}

func TestOpenRoomUnknown(t *testing.T) {
	m, _, _, _ := newTestManager(t)
	_, err := m.OpenRoom(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrRoomUnknown)
}

func TestSendMessageOverBus(t *testing.T) {
	m, _, bus, room := newTestManager(t)

	bus.On("Send", sendDestination(room.ID), sendPayload{Content: "hello"}).Return(nil).Once()
	require.NoError(t, m.SendMessage(context.Background(), room.ID, "  hello  ", nil))
	bus.AssertExpectations(t)
}

func TestSendMessageEmpty(t *testing.T) {
	m, _, _, room := newTestManager(t)
	err := m.SendMessage(context.Background(), room.ID, "   ", nil)
	assert.ErrorIs(t, err, ErrEmptyMessage)
}

func TestSendReelShareTakesRESTFallback(t *testing.T) {
	m, api, bus, room := newTestManager(t)

	reelID := int64(99)
	api.On("PostMessage", mock.Anything, room.ID, "look at this", &reelID).
		Return(models.Message{}, nil).Once()

	require.NoError(t, m.SendMessage(context.Background(), room.ID, "look at this", &reelID))
	api.AssertExpectations(t)
	bus.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestEditMessageOnlySender(t *testing.T) {
	m, _, bus, room := newTestManager(t)

	foreign := newMessage(room, "bob", "bob's words", ts(time.Second))
	deliver(t, bus, DestMessages, foreign)

	err := m.EditMessage(context.Background(), foreign.ID, "rewritten")
	assert.ErrorIs(t, err, ErrNotSender)

	own := newMessage(room, "alice", "my words", ts(2*time.Second))
	deliver(t, bus, DestMessages, own)

	bus.On("Send", destEdit, editPayload{MessageID: own.ID, NewContent: "rewritten"}).Return(nil).Once()
	require.NoError(t, m.EditMessage(context.Background(), own.ID, "rewritten"))
	bus.AssertExpectations(t)
}

func TestEditMessageEmptyIsNoop(t *testing.T) {
	m, _, bus, room := newTestManager(t)

	own := newMessage(room, "alice", "my words", ts(time.Second))
	deliver(t, bus, DestMessages, own)

	require.NoError(t, m.EditMessage(context.Background(), own.ID, "   "))
	bus.AssertNotCalled(t, "Send", destEdit, mock.Anything)
}

func TestUpdateEditAppliesInPlace(t *testing.T) {
	m, _, bus, room := newTestManager(t)

	first := newMessage(room, "alice", "original", ts(time.Second))
	second := newMessage(room, "bob", "later", ts(2*time.Second))
	deliver(t, bus, DestMessages, first)
	deliver(t, bus, DestMessages, second)

	edited := first
	edited.Content = "corrected"
	edited.Edited = true
	deliver(t, bus, DestUpdates, models.RoomUpdate{Type: models.UpdateEdit, RoomID: room.ID, Message: edited})

	history := m.History(room.ID)
	require.Len(t, history, 2)
	assert.Equal(t, "corrected", history[0].Content)
	assert.True(t, history[0].Edited)
	assert.True(t, history[0].Timestamp.Equal(first.Timestamp.Time), "timestamp must survive an edit")
}

func TestUpdateDeleteTombstones(t *testing.T) {
	m, _, bus, room := newTestManager(t)

	reel := &models.ReelRef{ID: 5, ThumbnailURL: "http://cdn/5.jpg"}
	shared := newMessage(room, "alice", "check this reel", ts(time.Second))
	shared.Reel = reel
	deliver(t, bus, DestMessages, shared)

	deliver(t, bus, DestUpdates, models.RoomUpdate{Type: models.UpdateDelete, RoomID: room.ID, Message: shared})

	history := m.History(room.ID)
	require.Len(t, history, 1)
	assert.Equal(t, models.TombstoneContent, history[0].Content)
	assert.False(t, history[0].Edited)
	assert.Nil(t, history[0].Reel)
	assert.True(t, history[0].Deleted())
}

func TestCreateOrGetPrivateChatIdempotent(t *testing.T) {
	m, api, _, _ := newTestManager(t)

	created := models.Room{
		ID:   uuid.New(),
		Type: models.RoomPrivate,
		Participants: []models.User{
			{Username: "alice"},
			{Username: "carol"},
		},
	}
	api.On("PrivateChat", mock.Anything, "carol").Return(created, nil).Once()

	first, err := m.CreateOrGetPrivateChat(context.Background(), "carol")
	require.NoError(t, err)
	second, err := m.CreateOrGetPrivateChat(context.Background(), "carol")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	api.AssertExpectations(t)
}

func TestCreateOrGetPrivateChatRejectsSelf(t *testing.T) {
	m, _, _, _ := newTestManager(t)
	_, err := m.CreateOrGetPrivateChat(context.Background(), "alice")
	assert.ErrorIs(t, err, ErrSelfChat)
}

func TestCreateGroupChatDefaultsName(t *testing.T) {
	m, api, _, _ := newTestManager(t)

	created := models.Room{ID: uuid.New(), Type: models.RoomGroup, Name: "bob, carol"}
	api.On("GroupChat", mock.Anything, []string{"bob", "carol"}, "bob, carol").Return(created, nil).Once()

	room, err := m.CreateGroupChat(context.Background(), []string{"bob", "alice", "carol", "bob"}, "")
	require.NoError(t, err)
	assert.Equal(t, created.ID, room.ID)
	api.AssertExpectations(t)
}

func TestCreateGroupChatNeedsParticipants(t *testing.T) {
	m, _, _, _ := newTestManager(t)
	_, err := m.CreateGroupChat(context.Background(), []string{"alice", ""}, "solo")
	assert.ErrorIs(t, err, ErrNoParticipants)
}

func TestDefaultGroupNameTruncation(t *testing.T) {
	assert.Equal(t, "bob, carol", defaultGroupName([]string{"bob", "carol"}))

	long := defaultGroupName([]string{"bartholomew", "maximiliana", "persephone"})
	assert.Len(t, []rune(long), 30)
	assert.Equal(t, "bartholomew, maximiliana, pers", long)
}

func TestUnknownRoomMessageTriggersRoomRefresh(t *testing.T) {
	m, api, bus, _ := newTestManager(t)

	newRoom := models.Room{ID: uuid.New(), Type: models.RoomPrivate, CreatedAt: ts(0)}
	refreshed := make(chan struct{})
	api.On("ListRooms", mock.Anything).Return([]models.Room{newRoom}, nil).
		Run(func(mock.Arguments) { close(refreshed) }).Once()

	deliver(t, bus, DestMessages, newMessage(newRoom, "dave", "surprise", ts(time.Second)))

	select {
	case <-refreshed:
	case <-time.After(2 * time.Second):
		t.Fatal("room list was never refreshed")
	}
	require.Len(t, m.History(newRoom.ID), 1)
}
