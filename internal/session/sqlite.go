package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/blockmind/fastgemini/pkg/models"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS chat_messages (
	chat_id TEXT NOT NULL,
	seq     INTEGER NOT NULL,
	message TEXT NOT NULL,
	PRIMARY KEY (chat_id, seq)
);
`

// SQLiteStorage is a ChatStorage backed by a SQLite database file. Messages
// are stored one row per message in conversation order, JSON-encoded.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens (or creates) the database at path and ensures the
// schema exists. Use ":memory:" for an ephemeral store.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("session: open sqlite: %w", err)
	}
	// The sqlite driver serializes writes per connection; one connection
	// avoids SQLITE_BUSY under concurrent chats.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("session: init schema: %w", err)
	}
	return &SQLiteStorage{db: db}, nil
}

// Close releases the database handle.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func (s *SQLiteStorage) GetHistory(ctx context.Context, chatID string) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT message FROM chat_messages WHERE chat_id = ? ORDER BY seq`, chatID)
	if err != nil {
		return nil, fmt.Errorf("session: get history: %w", err)
	}
	defer rows.Close()

	var history []models.Message
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("session: scan message: %w", err)
		}
		var msg models.Message
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			return nil, fmt.Errorf("session: decode message: %w", err)
		}
		history = append(history, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("session: get history: %w", err)
	}
	return history, nil
}

func (s *SQLiteStorage) UpdateHistory(ctx context.Context, chatID string, history []models.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("session: update history: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM chat_messages WHERE chat_id = ?`, chatID); err != nil {
		return fmt.Errorf("session: clear history: %w", err)
	}
	if err := insertMessages(ctx, tx, chatID, 0, history); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStorage) AppendHistory(ctx context.Context, chatID string, messages ...models.Message) error {
	if len(messages) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("session: append history: %w", err)
	}
	defer tx.Rollback()

	var next int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq) + 1, 0) FROM chat_messages WHERE chat_id = ?`, chatID).Scan(&next); err != nil {
		return fmt.Errorf("session: next seq: %w", err)
	}
	if err := insertMessages(ctx, tx, chatID, next, messages); err != nil {
		return err
	}
	return tx.Commit()
}

func insertMessages(ctx context.Context, tx *sql.Tx, chatID string, from int, messages []models.Message) error {
	for i, msg := range messages {
		raw, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("session: encode message: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO chat_messages (chat_id, seq, message) VALUES (?, ?, ?)`,
			chatID, from+i, string(raw)); err != nil {
			return fmt.Errorf("session: insert message: %w", err)
		}
	}
	return nil
}
