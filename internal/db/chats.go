package db

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/solvaholic/rally/internal/normalize"
)

// SaveChat saves or updates a chat and replaces its participant list
func (db *DB) SaveChat(chat *normalize.ChatThread) error {
	record, err := json.Marshal(chat)
	if err != nil {
		return fmt.Errorf("failed to marshal chat: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO chats (id, group_name, is_group, activity_id, record)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			group_name = excluded.group_name,
			is_group = excluded.is_group,
			activity_id = excluded.activity_id,
			record = excluded.record,
			updated_at = CURRENT_TIMESTAMP
	`, chat.ID, chat.GroupName, chat.IsGroup, chat.ActivityID, string(record))
	if err != nil {
		return fmt.Errorf("failed to save chat: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM chat_participants WHERE chat_id = ?`, chat.ID); err != nil {
		return fmt.Errorf("failed to clear chat participants: %w", err)
	}

	for i, p := range chat.Participants {
		if err := saveUser(tx, UserFromParticipant(p)); err != nil {
			return err
		}
		// A participant listed twice keeps its first position
		_, err := tx.Exec(`
			INSERT INTO chat_participants (chat_id, user_id, position)
			VALUES (?, ?, ?)
			ON CONFLICT(chat_id, user_id) DO NOTHING
		`, chat.ID, p.ID, i)
		if err != nil {
			return fmt.Errorf("failed to save chat participant: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit chat: %w", err)
	}
	return nil
}

// GetChat retrieves a chat by ID
func (db *DB) GetChat(id string) (*normalize.ChatThread, error) {
	var record string
	err := db.QueryRow(`SELECT record FROM chats WHERE id = ?`, id).Scan(&record)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chat: %w", err)
	}

	chat, err := normalize.NormalizeChatThread([]byte(record))
	if err != nil {
		return nil, fmt.Errorf("failed to decode chat %s: %w", id, err)
	}
	return chat, nil
}

// ChatQuery defines options for listing chats
type ChatQuery struct {
	UserID     *string // only chats this user takes part in
	ActivityID *string
	GroupsOnly bool
	Limit      int
	Offset     int
}

// ListChats lists stored chats, most recently updated first
func (db *DB) ListChats(opts ChatQuery) ([]*normalize.ChatThread, error) {
	query := `SELECT c.id, c.record FROM chats c WHERE 1=1`
	args := []interface{}{}

	if opts.UserID != nil {
		query += " AND EXISTS (SELECT 1 FROM chat_participants cp WHERE cp.chat_id = c.id AND cp.user_id = ?)"
		args = append(args, *opts.UserID)
	}
	if opts.ActivityID != nil {
		query += " AND c.activity_id = ?"
		args = append(args, *opts.ActivityID)
	}
	if opts.GroupsOnly {
		query += " AND c.is_group = 1"
	}

	query += " ORDER BY c.updated_at DESC, c.id"
	query, args = paginate(query, args, opts.Limit, opts.Offset)

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list chats: %w", err)
	}
	defer rows.Close()

	chats := []*normalize.ChatThread{}
	for rows.Next() {
		var id, record string
		if err := rows.Scan(&id, &record); err != nil {
			return nil, fmt.Errorf("failed to scan chat: %w", err)
		}
		chat, err := normalize.NormalizeChatThread([]byte(record))
		if err != nil {
			return nil, fmt.Errorf("failed to decode chat %s: %w", id, err)
		}
		chats = append(chats, chat)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating chats: %w", err)
	}

	return chats, nil
}

// ChatIDs returns the ids of every stored chat
func (db *DB) ChatIDs() ([]string, error) {
	rows, err := db.Query(`SELECT id FROM chats ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query chat ids: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan chat id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating chat ids: %w", err)
	}
	return ids, nil
}

// SaveChatListItem saves or updates a chat overview row
func (db *DB) SaveChatListItem(item *normalize.ChatListItem) error {
	if item.ID == "" {
		return fmt.Errorf("failed to save chat list item: missing id")
	}

	record, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to marshal chat list item: %w", err)
	}

	_, err = db.Exec(`
		INSERT INTO chat_list_items (
			id, participant_names, last_message, last_message_time, unread_count, is_group, record
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			participant_names = excluded.participant_names,
			last_message = excluded.last_message,
			last_message_time = excluded.last_message_time,
			unread_count = excluded.unread_count,
			is_group = excluded.is_group,
			record = excluded.record,
			fetched_at = CURRENT_TIMESTAMP
	`, item.ID, item.ParticipantNames, item.LastMessage, item.LastMessageTime,
		item.UnreadCount, item.IsGroup, string(record))
	if err != nil {
		return fmt.Errorf("failed to save chat list item: %w", err)
	}

	return nil
}

// ListChatListItems lists chat overview rows, latest activity first. With
// unreadOnly set, rows without unread messages are left out.
func (db *DB) ListChatListItems(unreadOnly bool) ([]*normalize.ChatListItem, error) {
	query := `SELECT id, record FROM chat_list_items`
	if unreadOnly {
		query += " WHERE unread_count > 0"
	}
	query += " ORDER BY last_message_time DESC, id"

	rows, err := db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list chat list items: %w", err)
	}
	defer rows.Close()

	items := []*normalize.ChatListItem{}
	for rows.Next() {
		var id, record string
		if err := rows.Scan(&id, &record); err != nil {
			return nil, fmt.Errorf("failed to scan chat list item: %w", err)
		}
		item, err := normalize.NormalizeChatListItem([]byte(record))
		if err != nil {
			return nil, fmt.Errorf("failed to decode chat list item %s: %w", id, err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating chat list items: %w", err)
	}

	return items, nil
}
