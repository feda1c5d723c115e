package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/solvaholic/rally/internal/normalize"
)

// User represents a user in the database. Users are collected from activity
// creators, chat participants and message senders, so each sighting may
// carry a different subset of the profile.
type User struct {
	ID        string
	Name      *string
	Email     *string
	AvatarURL *string
	FetchedAt time.Time
	UpdatedAt time.Time
}

// userExecer is satisfied by both *sql.DB and *sql.Tx
type userExecer interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
}

// SaveUser saves or updates a user. Fields that are nil keep their stored
// value, so a bare id never erases a known profile.
func (db *DB) SaveUser(user *User) error {
	return saveUser(db.conn, user)
}

func saveUser(ex userExecer, user *User) error {
	if user.ID == "" {
		return fmt.Errorf("failed to save user: missing id")
	}

	_, err := ex.Exec(`
		INSERT INTO users (id, name, email, avatar_url)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = COALESCE(excluded.name, users.name),
			email = COALESCE(excluded.email, users.email),
			avatar_url = COALESCE(excluded.avatar_url, users.avatar_url),
			updated_at = CURRENT_TIMESTAMP
	`, user.ID, user.Name, user.Email, user.AvatarURL)

	if err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}

	return nil
}

// GetUser retrieves a user by ID
func (db *DB) GetUser(id string) (*User, error) {
	user := &User{}

	err := db.QueryRow(`
		SELECT id, name, email, avatar_url, fetched_at, updated_at
		FROM users
		WHERE id = ?
	`, id).Scan(
		&user.ID, &user.Name, &user.Email, &user.AvatarURL, &user.FetchedAt, &user.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return user, nil
}

// GetChatUsers retrieves the participants of a chat in their listed order
func (db *DB) GetChatUsers(chatID string) ([]*User, error) {
	rows, err := db.Query(`
		SELECT u.id, u.name, u.email, u.avatar_url, u.fetched_at, u.updated_at
		FROM chat_participants cp
		INNER JOIN users u ON u.id = cp.user_id
		WHERE cp.chat_id = ?
		ORDER BY cp.position
	`, chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to query chat users: %w", err)
	}
	defer rows.Close()

	users := []*User{}
	for rows.Next() {
		user := &User{}
		err := rows.Scan(
			&user.ID, &user.Name, &user.Email, &user.AvatarURL, &user.FetchedAt, &user.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}

	return users, nil
}

// UserFromParticipant converts a chat or activity participant
func UserFromParticipant(p normalize.Participant) *User {
	return &User{ID: p.ID, Name: p.Name, Email: p.Email, AvatarURL: p.Avatar}
}

// UserFromCreator converts an activity creator. It returns nil when the
// activity names no creator.
func UserFromCreator(ref normalize.CreatorRef) *User {
	c := ref.Profile()
	if c == nil || c.ID == "" {
		return nil
	}
	u := &User{ID: c.ID, Email: c.Email, AvatarURL: c.AvatarURL}
	if c.Name != "" {
		name := c.Name
		u.Name = &name
	}
	return u
}

// UserFromSender converts a message sender. It returns nil when the sender
// has no id or is the self token.
func UserFromSender(m *normalize.ChatMessage) *User {
	id := m.SenderID()
	if id == nil || *id == "" || *id == normalize.SelfSender {
		return nil
	}
	return &User{ID: *id, Name: m.DisplayName(), AvatarURL: m.AvatarURL()}
}
