// Package history is the client-side cache of rooms, messages and
// notifications in embedded SQLite. It warms the in-memory session state
// between runs; the backend stays authoritative.
package history

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"vibez-client/internal/models"
)

// Store persists session state. All writes are idempotent upserts keyed by
// server-assigned ids, so reconnect replays are harmless.
type Store struct {
	db *sqlx.DB
}

// Open initializes the cache database and runs migrations. Use ":memory:"
// for throwaway stores.
func Open(path string) (*Store, error) {
	db, err := sqlx.Connect("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{db: db}, nil
}

func runMigrations(db *sqlx.DB) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS rooms (
            id TEXT PRIMARY KEY,
            type TEXT NOT NULL,
            name TEXT NOT NULL DEFAULT '',
            created_at TIMESTAMP,
            participants TEXT NOT NULL DEFAULT '[]'
        );`,
		`CREATE TABLE IF NOT EXISTS messages (
            id TEXT PRIMARY KEY,
            room_id TEXT NOT NULL,
            content TEXT NOT NULL,
            sent_at TIMESTAMP,
            edited INTEGER NOT NULL DEFAULT 0,
            sender TEXT NOT NULL DEFAULT '{}',
            reel TEXT
        );`,
		`CREATE INDEX IF NOT EXISTS idx_messages_room ON messages(room_id, sent_at);`,
		`CREATE TABLE IF NOT EXISTS notifications (
            id INTEGER PRIMARY KEY,
            title TEXT NOT NULL DEFAULT '',
            body TEXT NOT NULL DEFAULT '',
            relative_url TEXT NOT NULL DEFAULT '',
            read INTEGER NOT NULL DEFAULT 0,
            created_at TIMESTAMP,
            actor TEXT NOT NULL DEFAULT '{}'
        );`,
	}
	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return err
		}
	}
	return nil
}

// Timestamps are stored as fixed-width RFC 3339 text: lexicographic order
// matches chronological order, and loads round-trip through the same
// flexible parser the wire format uses.
func formatTime(t models.Timestamp) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000000Z07:00")
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveRoom upserts a room snapshot. LastMessage is not stored here; it is
// derived from the messages table on load.
func (s *Store) SaveRoom(ctx context.Context, room models.Room) error {
	participants, err := json.Marshal(room.Participants)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO rooms (id, type, name, created_at, participants)
        VALUES (?, ?, ?, ?, ?)
        ON CONFLICT (id) DO UPDATE SET type=excluded.type, name=excluded.name, participants=excluded.participants`,
		room.ID.String(), string(room.Type), room.Name, formatTime(room.CreatedAt), string(participants))
	return err
}

// SaveMessage upserts a message, replacing content and flags on conflict
// so edits and tombstones land in the cache too.
func (s *Store) SaveMessage(ctx context.Context, msg models.Message) error {
	sender, err := json.Marshal(msg.Sender)
	if err != nil {
		return err
	}
	var reel *string
	if msg.Reel != nil {
		encoded, err := json.Marshal(msg.Reel)
		if err != nil {
			return err
		}
		v := string(encoded)
		reel = &v
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO messages (id, room_id, content, sent_at, edited, sender, reel)
        VALUES (?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT (id) DO UPDATE SET content=excluded.content, edited=excluded.edited, reel=excluded.reel`,
		msg.ID.String(), msg.RoomID.String(), msg.Content, formatTime(msg.Timestamp), msg.Edited, string(sender), reel)
	return err
}

// Rooms loads every cached room.
func (s *Store) Rooms(ctx context.Context) ([]models.Room, error) {
	type roomRow struct {
		ID           string `db:"id"`
		Type         string `db:"type"`
		Name         string `db:"name"`
		Participants string `db:"participants"`
	}
	var rows []roomRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT id, type, name, participants FROM rooms`); err != nil {
		return nil, err
	}

	rooms := make([]models.Room, 0, len(rows))
	for _, row := range rows {
		id, err := uuid.Parse(row.ID)
		if err != nil {
			continue
		}
		room := models.Room{ID: id, Type: models.RoomType(row.Type), Name: row.Name}
		if err := json.Unmarshal([]byte(row.Participants), &room.Participants); err != nil {
			return nil, fmt.Errorf("decode participants for room %s: %w", row.ID, err)
		}
		rooms = append(rooms, room)
	}
	return rooms, nil
}

// RoomMessages loads up to limit cached messages for a room in ascending
// timestamp order.
func (s *Store) RoomMessages(ctx context.Context, roomID uuid.UUID, limit int) ([]models.Message, error) {
	type messageRow struct {
		ID      string  `db:"id"`
		RoomID  string  `db:"room_id"`
		Content string  `db:"content"`
		SentAt  string  `db:"sent_at"`
		Edited  bool    `db:"edited"`
		Sender  string  `db:"sender"`
		Reel    *string `db:"reel"`
	}
	var rows []messageRow
	err := s.db.SelectContext(ctx, &rows, `SELECT id, room_id, content, sent_at, edited, sender, reel
        FROM (SELECT * FROM messages WHERE room_id=? ORDER BY sent_at DESC LIMIT ?)
        ORDER BY sent_at ASC`, roomID.String(), limit)
	if err != nil {
		return nil, err
	}

	msgs := make([]models.Message, 0, len(rows))
	for _, row := range rows {
		id, err := uuid.Parse(row.ID)
		if err != nil {
			continue
		}
		msg := models.Message{ID: id, RoomID: roomID, Content: row.Content, Edited: row.Edited}
		if err := msg.Timestamp.UnmarshalJSON([]byte(`"` + row.SentAt + `"`)); err != nil {
			return nil, fmt.Errorf("decode timestamp for message %s: %w", row.ID, err)
		}
		if err := json.Unmarshal([]byte(row.Sender), &msg.Sender); err != nil {
			return nil, fmt.Errorf("decode sender for message %s: %w", row.ID, err)
		}
		if row.Reel != nil {
			msg.Reel = &models.ReelRef{}
			if err := json.Unmarshal([]byte(*row.Reel), msg.Reel); err != nil {
				return nil, fmt.Errorf("decode reel for message %s: %w", row.ID, err)
			}
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// SaveNotification upserts a notification.
func (s *Store) SaveNotification(ctx context.Context, n models.Notification) error {
	actor, err := json.Marshal(models.User{Username: n.ActorUsername, ProfilePictureURL: n.ActorProfilePictureURL})
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO notifications (id, title, body, relative_url, read, created_at, actor)
        VALUES (?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT (id) DO UPDATE SET read=excluded.read`,
		n.ID, n.Title, n.Body, n.RelativeURL, n.Read, formatTime(n.CreatedAt), string(actor))
	return err
}

// RecentNotifications loads up to limit cached notifications, newest
// first.
func (s *Store) RecentNotifications(ctx context.Context, limit int) ([]models.Notification, error) {
	type notificationRow struct {
		ID          int64  `db:"id"`
		Title       string `db:"title"`
		Body        string `db:"body"`
		RelativeURL string `db:"relative_url"`
		Read        bool   `db:"read"`
		CreatedAt   string `db:"created_at"`
		Actor       string `db:"actor"`
	}
	var rows []notificationRow
	err := s.db.SelectContext(ctx, &rows, `SELECT id, title, body, relative_url, read, created_at, actor
        FROM notifications ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}

	list := make([]models.Notification, 0, len(rows))
	for _, row := range rows {
		n := models.Notification{
			ID:          row.ID,
			Title:       row.Title,
			Body:        row.Body,
			RelativeURL: row.RelativeURL,
			Read:        row.Read,
		}
		if err := n.CreatedAt.UnmarshalJSON([]byte(`"` + row.CreatedAt + `"`)); err != nil {
			return nil, fmt.Errorf("decode timestamp for notification %d: %w", row.ID, err)
		}
		var actor models.User
		if err := json.Unmarshal([]byte(row.Actor), &actor); err != nil {
			return nil, fmt.Errorf("decode actor for notification %d: %w", row.ID, err)
		}
		n.ActorUsername = actor.Username
		n.ActorProfilePictureURL = actor.ProfilePictureURL
		list = append(list, n)
	}
	return list, nil
}
