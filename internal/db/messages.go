package db

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/solvaholic/rally/internal/normalize"
	"github.com/solvaholic/rally/internal/utils"
)

// MessageQuery defines options for selecting messages
type MessageQuery struct {
	ChatID     *string
	SenderID   *string
	Since      *time.Time
	Until      *time.Time
	SearchText *string
	Limit      int
	Offset     int
}

// SaveMessage saves a chat message and records its sender as a user.
// Messages without an id cannot be keyed and are rejected.
func (db *DB) SaveMessage(msg *normalize.ChatMessage) error {
	if msg.ID == "" {
		return fmt.Errorf("failed to save message: missing id")
	}

	record, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	// Timestamps the server sends in an unknown layout sort last
	var sortTime *int64
	if msg.CreatedAt != nil {
		if t, ok := utils.ParseTimestamp(*msg.CreatedAt); ok {
			ms := t.UnixMilli()
			sortTime = &ms
		}
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO messages (id, chat_id, sender_id, content, created_at, sort_time, record)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			chat_id = COALESCE(excluded.chat_id, messages.chat_id),
			sender_id = excluded.sender_id,
			content = excluded.content,
			created_at = excluded.created_at,
			sort_time = excluded.sort_time,
			record = excluded.record,
			fetched_at = CURRENT_TIMESTAMP
	`, msg.ID, msg.ChatID, msg.SenderID(), msg.Content, msg.CreatedAt, sortTime, string(record))
	if err != nil {
		return fmt.Errorf("failed to save message: %w", err)
	}

	if u := UserFromSender(msg); u != nil {
		if err := saveUser(tx, u); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit message: %w", err)
	}
	return nil
}

// SaveMessages saves a batch of messages, skipping those without an id.
// It returns how many were stored.
func (db *DB) SaveMessages(messages []*normalize.ChatMessage) (int, error) {
	saved := 0
	for _, m := range messages {
		if m.ID == "" {
			continue
		}
		if err := db.SaveMessage(m); err != nil {
			return saved, err
		}
		saved++
	}
	return saved, nil
}

// SelectMessages queries messages with filters, newest first
func (db *DB) SelectMessages(opts MessageQuery) ([]*normalize.ChatMessage, error) {
	query := `SELECT id, record FROM messages WHERE 1=1`
	args := []interface{}{}

	if opts.ChatID != nil {
		query += " AND chat_id = ?"
		args = append(args, *opts.ChatID)
	}
	if opts.SenderID != nil {
		query += " AND sender_id = ?"
		args = append(args, *opts.SenderID)
	}
	if opts.Since != nil {
		query += " AND sort_time >= ?"
		args = append(args, opts.Since.UnixMilli())
	}
	if opts.Until != nil {
		query += " AND sort_time <= ?"
		args = append(args, opts.Until.UnixMilli())
	}
	if opts.SearchText != nil {
		query += " AND content LIKE ?"
		args = append(args, likePattern(*opts.SearchText))
	}

	// NULL sort times go last in descending order
	query += " ORDER BY sort_time IS NULL, sort_time DESC, id"
	query, args = paginate(query, args, opts.Limit, opts.Offset)

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select messages: %w", err)
	}
	defer rows.Close()

	messages := []*normalize.ChatMessage{}
	for rows.Next() {
		var id, record string
		if err := rows.Scan(&id, &record); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msg, err := normalize.NormalizeChatMessage([]byte(record))
		if err != nil {
			return nil, fmt.Errorf("failed to decode message %s: %w", id, err)
		}
		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}

	return messages, nil
}

// SaveRawResponse stores a response body exactly as received, keyed by kind
// (e.g. "activities") and a caller-chosen key (e.g. a chat id).
func (db *DB) SaveRawResponse(kind, key string, body []byte) error {
	_, err := db.Exec(`
		INSERT INTO raw_responses (kind, key, body)
		VALUES (?, ?, ?)
		ON CONFLICT(kind, key) DO UPDATE SET
			body = excluded.body,
			fetched_at = CURRENT_TIMESTAMP
	`, kind, key, string(body))

	if err != nil {
		return fmt.Errorf("failed to save raw response: %w", err)
	}

	return nil
}

// GetRawResponse returns a stored response body, or nil when none exists
func (db *DB) GetRawResponse(kind, key string) ([]byte, error) {
	var body string
	err := db.QueryRow(`SELECT body FROM raw_responses WHERE kind = ? AND key = ?`, kind, key).Scan(&body)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get raw response: %w", err)
	}
	return []byte(body), nil
}
