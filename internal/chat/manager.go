// Package chat owns the client's view of chat state: the room list,
// per-room message history, unread counters and every chat mutation. It
// consumes inbound frames from the realtime transport and the room history
// endpoint of the HTTP gateway.
package chat

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"vibez-client/internal/gateway"
	"vibez-client/internal/models"
	"vibez-client/internal/observability"
	"vibez-client/internal/transport"
)

// Realtime destinations. Personal queues are delivered per-user by the
// broker; the send destinations address the application side.
const (
	DestMessages = "/user/queue/chat-messages"
	DestUpdates  = "/user/queue/chat-updates"

	destEdit   = "/app/chat/edit"
	destDelete = "/app/chat/delete"
)

func sendDestination(roomID uuid.UUID) string {
	return "/app/chat/" + roomID.String() + "/send"
}

const historyPageSize = 50

// maxGroupNameLen caps the default name derived from participant lists.
const maxGroupNameLen = 30

var (
	ErrEmptyMessage   = errors.New("message has no content")
	ErrRoomUnknown    = errors.New("room not known to this session")
	ErrMessageUnknown = errors.New("message not known to this session")
	ErrNotSender      = errors.New("only the sender may modify a message")
	ErrSelfChat       = errors.New("cannot open a chat with yourself")
	ErrNoParticipants = errors.New("group chat needs at least one other participant")
)

// Bus is the outbound half of the realtime transport the manager needs.
type Bus interface {
	Subscribe(destination string, handler transport.MessageHandler) error
	Send(destination string, payload any) error
}

// Archive is the optional local cache; nil disables persistence.
type Archive interface {
	SaveRoom(ctx context.Context, room models.Room) error
	SaveMessage(ctx context.Context, msg models.Message) error
	Rooms(ctx context.Context) ([]models.Room, error)
	RoomMessages(ctx context.Context, roomID uuid.UUID, limit int) ([]models.Message, error)
}

// Manager is the chat session manager. One instance per logged-in session;
// constructed explicitly and torn down with the session (no globals).
type Manager struct {
	api     gateway.ChatAPI
	bus     Bus
	archive Archive
	logger  zerolog.Logger
	self    string

	mu       sync.RWMutex
	rooms    map[uuid.UUID]*models.Room
	messages map[uuid.UUID][]models.Message
	seen     map[uuid.UUID]map[uuid.UUID]struct{}
	unread   map[uuid.UUID]int
	active   uuid.UUID

	// OnMessage and OnUpdate observe applied state changes (after
	// de-duplication), for rendering and the event sink. Never called for
	// replayed duplicates. Set before Start.
	OnMessage func(models.Message)
	OnUpdate  func(models.RoomUpdate)
}

// NewManager builds a chat session manager for the given user. archive may
// be nil.
func NewManager(self string, api gateway.ChatAPI, bus Bus, archive Archive, logger zerolog.Logger) *Manager {
	return &Manager{
		api:      api,
		bus:      bus,
		archive:  archive,
		logger:   logger.With().Str("component", "chat").Logger(),
		self:     self,
		rooms:    make(map[uuid.UUID]*models.Room),
		messages: make(map[uuid.UUID][]models.Message),
		seen:     make(map[uuid.UUID]map[uuid.UUID]struct{}),
		unread:   make(map[uuid.UUID]int),
	}
}

// Start subscribes the chat queues, warms state from the local archive and
// refreshes the room list from the backend. A failed refresh is logged and
// tolerated so the client can come up offline against cached state.
func (m *Manager) Start(ctx context.Context) error {
	if err := m.bus.Subscribe(DestMessages, m.onMessageFrame); err != nil {
		return fmt.Errorf("subscribe %s: %w", DestMessages, err)
	}
	if err := m.bus.Subscribe(DestUpdates, m.onUpdateFrame); err != nil {
		return fmt.Errorf("subscribe %s: %w", DestUpdates, err)
	}

	m.warmFromArchive(ctx)
	if err := m.RefreshRooms(ctx); err != nil {
		m.logger.Warn().Err(err).Msg("room list refresh failed, continuing with cached state")
	}
	return nil
}

func (m *Manager) warmFromArchive(ctx context.Context) {
	if m.archive == nil {
		return
	}
	rooms, err := m.archive.Rooms(ctx)
	if err != nil {
		m.logger.Warn().Err(err).Msg("archive room load failed")
		return
	}
	for _, room := range rooms {
		msgs, err := m.archive.RoomMessages(ctx, room.ID, historyPageSize)
		if err != nil {
			m.logger.Warn().Err(err).Str("room", room.ID.String()).Msg("archive message load failed")
			continue
		}
		m.mu.Lock()
		m.registerRoomLocked(room)
		for _, msg := range msgs {
			m.applyLocked(msg, false)
		}
		m.mu.Unlock()
	}
}

// RefreshRooms replaces the cached room list with the backend's snapshot.
func (m *Manager) RefreshRooms(ctx context.Context) error {
	rooms, err := m.api.ListRooms(ctx)
	if err != nil {
		return err
	}
	m.mu.Lock()
	for _, room := range rooms {
		m.registerRoomLocked(room)
	}
	m.mu.Unlock()

	if m.archive != nil {
		for _, room := range rooms {
			if err := m.archive.SaveRoom(ctx, room); err != nil {
				m.logger.Warn().Err(err).Msg("archive room save failed")
			}
		}
	}
	return nil
}

// registerRoomLocked merges a room snapshot, preserving any newer local
// last-message knowledge.
func (m *Manager) registerRoomLocked(room models.Room) {
	existing, ok := m.rooms[room.ID]
	if !ok {
		copied := room
		m.rooms[room.ID] = &copied
		return
	}
	existing.Type = room.Type
	existing.Name = room.Name
	existing.Participants = room.Participants
	if existing.LastMessage == nil {
		existing.LastMessage = room.LastMessage
	}
}

// Rooms returns a snapshot of the room list, most recently active first.
func (m *Manager) Rooms() []models.Room {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Room, 0, len(m.rooms))
	for _, room := range m.rooms {
		out = append(out, *room)
	}
	sort.Slice(out, func(i, j int) bool {
		return lastActivity(out[i]).After(lastActivity(out[j]))
	})
	return out
}

func lastActivity(room models.Room) time.Time {
	if room.LastMessage != nil {
		return room.LastMessage.Timestamp.Time
	}
	return room.CreatedAt.Time
}

// History returns a copy of the room's message sequence, ascending by
// timestamp, de-duplicated by id.
func (m *Manager) History(roomID uuid.UUID) []models.Message {
	m.mu.RLock()
	defer m.mu.RUnlock()
	msgs := m.messages[roomID]
	out := make([]models.Message, len(msgs))
	copy(out, msgs)
	return out
}

// Unread returns the unread counter for one room.
func (m *Manager) Unread(roomID uuid.UUID) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.unread[roomID]
}

// ActiveRoom returns the open room id, or uuid.Nil.
func (m *Manager) ActiveRoom() uuid.UUID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active
}

// OpenRoom makes a room the active one. Its unread counter drops to zero
// unconditionally; history is fetched only when the local sequence is
// empty, so re-opening a room does not refetch.
func (m *Manager) OpenRoom(ctx context.Context, roomID uuid.UUID) ([]models.Message, error) {
	m.mu.Lock()
	if _, ok := m.rooms[roomID]; !ok {
		m.mu.Unlock()
		return nil, ErrRoomUnknown
	}
	m.active = roomID
	m.unread[roomID] = 0
	needFetch := len(m.messages[roomID]) == 0
	m.mu.Unlock()
	m.publishUnreadTotal()

	if needFetch {
		if err := m.fetchHistory(ctx, roomID, 0, historyPageSize); err != nil {
			return nil, err
		}
	}
	return m.History(roomID), nil
}

// CloseRoom clears the active room; subsequent arrivals count as unread.
func (m *Manager) CloseRoom() {
	m.mu.Lock()
	m.active = uuid.Nil
	m.mu.Unlock()
}

// fetchHistory pulls one page of past messages and merges it into the
// local sequence, de-duplicating by id.
func (m *Manager) fetchHistory(ctx context.Context, roomID uuid.UUID, page, size int) error {
	msgs, err := m.api.Messages(ctx, roomID, page, size)
	if err != nil {
		return err
	}
	m.mu.Lock()
	for _, msg := range msgs {
		m.applyLocked(msg, false)
	}
	m.mu.Unlock()
	m.persist(ctx, msgs...)
	return nil
}

// SendMessage publishes a message. Plain text goes over the realtime
// transport; reel shares take the REST fallback. Either way there is no
// local echo: the message appears when the server's broadcast arrives,
// favoring consistency over optimistic latency.
func (m *Manager) SendMessage(ctx context.Context, roomID uuid.UUID, content string, reelID *int64) error {
	content = strings.TrimSpace(content)
	if content == "" && reelID == nil {
		return ErrEmptyMessage
	}
	m.mu.RLock()
	_, known := m.rooms[roomID]
	m.mu.RUnlock()
	if !known {
		return ErrRoomUnknown
	}

	if reelID != nil {
		_, err := m.api.PostMessage(ctx, roomID, content, reelID)
		return err
	}
	return m.bus.Send(sendDestination(roomID), sendPayload{Content: content, ReelID: reelID})
}

type sendPayload struct {
	Content string `json:"content"`
	ReelID  *int64 `json:"reelId"`
}

// EditMessage rewrites a message's content. No-op on empty content; only
// the sender may edit. The mutation lands when the broadcast update
// arrives on the updates queue.
func (m *Manager) EditMessage(ctx context.Context, messageID uuid.UUID, newContent string) error {
	newContent = strings.TrimSpace(newContent)
	if newContent == "" {
		return nil
	}
	if err := m.requireSender(messageID); err != nil {
		return err
	}
	return m.bus.Send(destEdit, editPayload{MessageID: messageID, NewContent: newContent})
}

type editPayload struct {
	MessageID  uuid.UUID `json:"messageId"`
	NewContent string    `json:"newContent"`
}

// DeleteMessage tombstones a message: content becomes the fixed deletion
// marker while position and timestamp are preserved.
func (m *Manager) DeleteMessage(ctx context.Context, messageID uuid.UUID) error {
	if err := m.requireSender(messageID); err != nil {
		return err
	}
	return m.bus.Send(destDelete, deletePayload{MessageID: messageID})
}

type deletePayload struct {
	MessageID uuid.UUID `json:"messageId"`
}

func (m *Manager) requireSender(messageID uuid.UUID) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	msg, ok := m.findLocked(messageID)
	if !ok {
		return ErrMessageUnknown
	}
	if msg.Sender.Username != m.self {
		return ErrNotSender
	}
	return nil
}

func (m *Manager) findLocked(messageID uuid.UUID) (models.Message, bool) {
	for _, msgs := range m.messages {
		for _, msg := range msgs {
			if msg.ID == messageID {
				return msg, true
			}
		}
	}
	return models.Message{}, false
}

// CreateOrGetPrivateChat returns the private room shared with username,
// asking the backend to create it only when no local room matches.
// Idempotent: repeated calls yield the same room id.
func (m *Manager) CreateOrGetPrivateChat(ctx context.Context, username string) (models.Room, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return models.Room{}, ErrRoomUnknown
	}
	if username == m.self {
		return models.Room{}, ErrSelfChat
	}

	m.mu.RLock()
	for _, room := range m.rooms {
		if room.Type != models.RoomPrivate {
			continue
		}
		if partner, ok := room.Partner(m.self); ok && partner.Username == username {
			found := *room
			m.mu.RUnlock()
			return found, nil
		}
	}
	m.mu.RUnlock()

	room, err := m.api.PrivateChat(ctx, username)
	if err != nil {
		return models.Room{}, err
	}
	m.adopt(ctx, room)
	return room, nil
}

// CreateGroupChat creates a group room. The caller is implicit; at least
// one other participant is required. A missing name defaults to the
// comma-joined participant list, truncated to 30 characters.
func (m *Manager) CreateGroupChat(ctx context.Context, usernames []string, name string) (models.Room, error) {
	members := make([]string, 0, len(usernames))
	seen := make(map[string]struct{}, len(usernames))
	for _, u := range usernames {
		u = strings.TrimSpace(u)
		if u == "" || u == m.self {
			continue
		}
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		members = append(members, u)
	}
	if len(members) == 0 {
		return models.Room{}, ErrNoParticipants
	}
	if strings.TrimSpace(name) == "" {
		name = defaultGroupName(members)
	}

	room, err := m.api.GroupChat(ctx, members, name)
	if err != nil {
		return models.Room{}, err
	}
	m.adopt(ctx, room)
	return room, nil
}

func defaultGroupName(members []string) string {
	name := strings.Join(members, ", ")
	runes := []rune(name)
	if len(runes) > maxGroupNameLen {
		return string(runes[:maxGroupNameLen])
	}
	return name
}

func (m *Manager) adopt(ctx context.Context, room models.Room) {
	m.mu.Lock()
	m.registerRoomLocked(room)
	m.mu.Unlock()
	if m.archive != nil {
		if err := m.archive.SaveRoom(ctx, room); err != nil {
			m.logger.Warn().Err(err).Msg("archive room save failed")
		}
	}
}

// onMessageFrame consumes one inbound frame from the chat-messages queue.
// Runs on the transport read loop; must not block.
func (m *Manager) onMessageFrame(_ string, body []byte) {
	var msg models.Message
	if err := json.Unmarshal(body, &msg); err != nil {
		m.logger.Warn().Err(err).Msg("dropping undecodable chat message")
		return
	}

	m.mu.Lock()
	_, roomKnown := m.rooms[msg.RoomID]
	applied := m.applyLocked(msg, true)
	m.mu.Unlock()

	if !applied {
		return
	}
	m.publishUnreadTotal()
	m.persist(context.Background(), msg)
	if !roomKnown {
		// A message for a brand-new room: the snapshot for it has to come
		// from the room list endpoint.
		go func() {
			if err := m.RefreshRooms(context.Background()); err != nil {
				m.logger.Warn().Err(err).Msg("room refresh after unknown room failed")
			}
		}()
	}
	if m.OnMessage != nil {
		m.OnMessage(msg)
	}
}

// applyLocked merges one message into local state. Returns false for
// duplicates. countUnread distinguishes live arrivals from history
// backfill, which never touches unread counters.
func (m *Manager) applyLocked(msg models.Message, countUnread bool) bool {
	ids, ok := m.seen[msg.RoomID]
	if !ok {
		ids = make(map[uuid.UUID]struct{})
		m.seen[msg.RoomID] = ids
	}
	if _, dup := ids[msg.ID]; dup {
		return false
	}
	ids[msg.ID] = struct{}{}

	m.messages[msg.RoomID] = insertOrdered(m.messages[msg.RoomID], msg)

	room, ok := m.rooms[msg.RoomID]
	if !ok {
		room = &models.Room{ID: msg.RoomID, Type: models.RoomPrivate}
		m.rooms[msg.RoomID] = room
	}
	if room.LastMessage == nil || !msg.Timestamp.Before(room.LastMessage.Timestamp.Time) {
		copied := msg
		room.LastMessage = &copied
	}

	if countUnread && msg.RoomID != m.active {
		m.unread[msg.RoomID]++
	}
	return true
}

// insertOrdered keeps the sequence sorted by timestamp. Arrivals are
// normally already in order, so the common case is a plain append.
func insertOrdered(msgs []models.Message, msg models.Message) []models.Message {
	if len(msgs) == 0 || !msg.Timestamp.Before(msgs[len(msgs)-1].Timestamp.Time) {
		return append(msgs, msg)
	}
	i := sort.Search(len(msgs), func(i int) bool {
		return msgs[i].Timestamp.After(msg.Timestamp.Time)
	})
	msgs = append(msgs, models.Message{})
	copy(msgs[i+1:], msgs[i:])
	msgs[i] = msg
	return msgs
}

// onUpdateFrame consumes one edit/delete broadcast from the chat-updates
// queue and applies it in place: position and timestamp never change.
func (m *Manager) onUpdateFrame(_ string, body []byte) {
	var update models.RoomUpdate
	if err := json.Unmarshal(body, &update); err != nil {
		m.logger.Warn().Err(err).Msg("dropping undecodable chat update")
		return
	}
	if update.RoomID == uuid.Nil {
		update.RoomID = update.Message.RoomID
	}

	var stored models.Message
	applied := false
	m.mu.Lock()
	msgs := m.messages[update.RoomID]
	for i := range msgs {
		if msgs[i].ID != update.Message.ID {
			continue
		}
		switch update.Type {
		case models.UpdateEdit:
			msgs[i].Content = update.Message.Content
			msgs[i].Edited = true
		case models.UpdateDelete:
			msgs[i].Content = models.TombstoneContent
			msgs[i].Edited = false
			msgs[i].Reel = nil
		default:
			m.mu.Unlock()
			m.logger.Warn().Str("type", string(update.Type)).Msg("unknown update type")
			return
		}
		stored = msgs[i]
		applied = true
		break
	}
	if applied {
		if room, ok := m.rooms[update.RoomID]; ok && room.LastMessage != nil && room.LastMessage.ID == stored.ID {
			copied := stored
			room.LastMessage = &copied
		}
	}
	m.mu.Unlock()

	if !applied {
		return
	}
	m.persist(context.Background(), stored)
	if m.OnUpdate != nil {
		update.Message = stored
		m.OnUpdate(update)
	}
}

func (m *Manager) persist(ctx context.Context, msgs ...models.Message) {
	if m.archive == nil {
		return
	}
	for _, msg := range msgs {
		if err := m.archive.SaveMessage(ctx, msg); err != nil {
			m.logger.Warn().Err(err).Str("message", msg.ID.String()).Msg("archive message save failed")
		}
	}
}

func (m *Manager) publishUnreadTotal() {
	m.mu.RLock()
	total := 0
	for _, n := range m.unread {
		total += n
	}
	m.mu.RUnlock()
	observability.SetChatUnread(total)
}
