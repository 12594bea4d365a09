// Package chatdir keeps a directory of every chat the bot has seen:
// when it was first discovered and when it last produced a message.
package chatdir

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	. "github.com/vgrebnev/teleassist/internal/logging"
	"github.com/vgrebnev/teleassist/internal/types"
)

// ChatInfo describes one known chat.
type ChatInfo struct {
	ChatID    int64
	Kind      types.ChatKind
	Title     string
	FirstSeen time.Time
	LastSeen  time.Time
}

// Store persists the chat directory in SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the chat directory database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("failed to create chat directory dir: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open chat directory db: %w", err)
	}

	if err := InitSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// NewStore wraps an already-open database (used by tests).
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// InitSchema creates the chats table if it does not exist.
func InitSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS chats (
			chat_id    INTEGER PRIMARY KEY,
			kind       TEXT NOT NULL,
			title      TEXT NOT NULL,
			first_seen TEXT NOT NULL,
			last_seen  TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to init chat directory schema: %w", err)
	}
	return nil
}

// Touch records activity in a chat, inserting it on first sight and
// bumping last_seen otherwise. first_seen never changes after insert.
func (s *Store) Touch(chatID int64, kind types.ChatKind, title string) error {
	now := time.Now().UTC().Format(time.RFC3339)

	var one int
	err := s.db.QueryRow(`SELECT 1 FROM chats WHERE chat_id = ?`, chatID).Scan(&one)
	if err == sql.ErrNoRows {
		_, err = s.db.Exec(`
			INSERT INTO chats (chat_id, kind, title, first_seen, last_seen)
			VALUES (?, ?, ?, ?, ?)
		`, chatID, string(kind), title, now, now)
		if err != nil {
			return fmt.Errorf("failed to insert chat %d: %w", chatID, err)
		}
		L_info("chatdir: new chat discovered", "chatID", chatID, "title", title, "kind", kind)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to look up chat %d: %w", chatID, err)
	}

	_, err = s.db.Exec(`
		UPDATE chats SET kind = ?, title = ?, last_seen = ? WHERE chat_id = ?
	`, string(kind), title, now, chatID)
	if err != nil {
		return fmt.Errorf("failed to update chat %d: %w", chatID, err)
	}
	return nil
}

// Get returns the directory entry for a chat, or nil if unknown.
func (s *Store) Get(chatID int64) (*ChatInfo, error) {
	row := s.db.QueryRow(`
		SELECT chat_id, kind, title, first_seen, last_seen
		FROM chats WHERE chat_id = ?
	`, chatID)

	info, err := scanChat(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chat %d: %w", chatID, err)
	}
	return info, nil
}

// List returns all known chats ordered by most recent activity.
func (s *Store) List() ([]*ChatInfo, error) {
	rows, err := s.db.Query(`
		SELECT chat_id, kind, title, first_seen, last_seen
		FROM chats ORDER BY last_seen DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list chats: %w", err)
	}
	defer rows.Close()

	var chats []*ChatInfo
	for rows.Next() {
		info, err := scanChat(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chat: %w", err)
		}
		chats = append(chats, info)
	}
	return chats, rows.Err()
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChat(row rowScanner) (*ChatInfo, error) {
	var info ChatInfo
	var kind, firstSeen, lastSeen string
	if err := row.Scan(&info.ChatID, &kind, &info.Title, &firstSeen, &lastSeen); err != nil {
		return nil, err
	}
	info.Kind = types.ChatKind(kind)
	info.FirstSeen, _ = time.Parse(time.RFC3339, firstSeen)
	info.LastSeen, _ = time.Parse(time.RFC3339, lastSeen)
	return &info, nil
}
