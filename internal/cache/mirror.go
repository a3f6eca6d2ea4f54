package cache

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fahad7169/chatd/internal/chat"
)

// The mirror persists the last fully reconciled snapshot under two keys,
// consulted on cold start so the process has state before the first live
// snapshot arrives. It is a seed, never an authority: the first
// reconciliation supersedes it wholesale.
const (
	keyRooms    = "rooms"
	keyMessages = "messages"
)

// Save replaces the persisted snapshot with the given state. The write is
// clear-then-insert in one transaction so entries a reconciliation dropped
// on purpose never survive.
func (db *DB) Save(rooms []chat.Room, messagesByRoom map[string][]chat.Message) error {
	roomsJSON, err := json.Marshal(rooms)
	if err != nil {
		return fmt.Errorf("encode rooms: %w", err)
	}
	messagesJSON, err := json.Marshal(messagesByRoom)
	if err != nil {
		return fmt.Errorf("encode messages: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM mirror`); err != nil {
		return fmt.Errorf("clear mirror: %w", err)
	}
	now := time.Now().UnixMilli()
	for key, value := range map[string][]byte{keyRooms: roomsJSON, keyMessages: messagesJSON} {
		if _, err := tx.Exec(`INSERT INTO mirror (key, value, updated_at) VALUES (?, ?, ?)`,
			key, string(value), now); err != nil {
			return fmt.Errorf("write %s: %w", key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Load returns the last saved snapshot, or empty state if nothing was ever
// saved. Corrupt entries are treated as absent.
func (db *DB) Load() ([]chat.Room, map[string][]chat.Message, error) {
	var rooms []chat.Room
	messages := make(map[string][]chat.Message)

	if raw, ok, err := db.read(keyRooms); err != nil {
		return nil, nil, err
	} else if ok {
		if err := json.Unmarshal([]byte(raw), &rooms); err != nil {
			rooms = nil
		}
	}
	if raw, ok, err := db.read(keyMessages); err != nil {
		return nil, nil, err
	} else if ok {
		if err := json.Unmarshal([]byte(raw), &messages); err != nil {
			messages = make(map[string][]chat.Message)
		}
	}
	return rooms, messages, nil
}

func (db *DB) read(key string) (string, bool, error) {
	var value string
	err := db.QueryRow(`SELECT value FROM mirror WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read %s: %w", key, err)
	}
	return value, true, nil
}
