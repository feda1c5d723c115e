package db

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/solvaholic/rally/internal/normalize"
)

// ActivityQuery defines options for selecting activities
type ActivityQuery struct {
	SportType  *string
	CreatorID  *string
	SkillLevel *string
	FromDate   *string // inclusive, YYYY-MM-DD
	SearchText *string // matched against title, location and description
	Limit      int
	Offset     int
}

// SaveActivity saves an activity along with its creator and participants as
// users.
func (db *DB) SaveActivity(a *normalize.Activity) error {
	if a.ID == "" {
		return fmt.Errorf("failed to save activity: missing id")
	}

	record, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to marshal activity: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var creatorID *string
	if id := a.Creator.ID(); id != "" {
		creatorID = &id
	}

	_, err = tx.Exec(`
		INSERT INTO activities (
			id, creator_id, sport_type, title, location, date, time,
			skill_level, visibility, current_participants, max_participants, record
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			creator_id = excluded.creator_id,
			sport_type = excluded.sport_type,
			title = excluded.title,
			location = excluded.location,
			date = excluded.date,
			time = excluded.time,
			skill_level = excluded.skill_level,
			visibility = excluded.visibility,
			current_participants = excluded.current_participants,
			max_participants = excluded.max_participants,
			record = excluded.record,
			updated_at = CURRENT_TIMESTAMP
	`, a.ID, creatorID, a.SportType, a.Title, a.Location, a.Date, a.Time,
		a.SkillLevel, a.Visibility, a.CurrentParticipants, a.MaxParticipants, string(record))
	if err != nil {
		return fmt.Errorf("failed to save activity: %w", err)
	}

	if u := UserFromCreator(a.Creator); u != nil {
		if err := saveUser(tx, u); err != nil {
			return err
		}
	}
	for _, p := range a.Participants {
		if err := saveUser(tx, UserFromParticipant(p)); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit activity: %w", err)
	}
	return nil
}

// GetActivity retrieves an activity by ID
func (db *DB) GetActivity(id string) (*normalize.Activity, error) {
	var record string
	err := db.QueryRow(`SELECT record FROM activities WHERE id = ?`, id).Scan(&record)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get activity: %w", err)
	}

	a, err := normalize.NormalizeActivity([]byte(record))
	if err != nil {
		return nil, fmt.Errorf("failed to decode activity %s: %w", id, err)
	}
	return a, nil
}

// SelectActivities queries activities with filters, soonest first
func (db *DB) SelectActivities(opts ActivityQuery) ([]*normalize.Activity, error) {
	query := `SELECT id, record FROM activities WHERE 1=1`
	args := []interface{}{}

	if opts.SportType != nil {
		query += " AND sport_type = ? COLLATE NOCASE"
		args = append(args, *opts.SportType)
	}
	if opts.CreatorID != nil {
		query += " AND creator_id = ?"
		args = append(args, *opts.CreatorID)
	}
	if opts.SkillLevel != nil {
		query += " AND skill_level = ? COLLATE NOCASE"
		args = append(args, *opts.SkillLevel)
	}
	if opts.FromDate != nil {
		query += " AND date >= ?"
		args = append(args, *opts.FromDate)
	}
	if opts.SearchText != nil {
		query += ` AND (title LIKE ? OR location LIKE ? OR json_extract(record, '$.description') LIKE ?)`
		pattern := likePattern(*opts.SearchText)
		args = append(args, pattern, pattern, pattern)
	}

	query += " ORDER BY date, time, id"
	query, args = paginate(query, args, opts.Limit, opts.Offset)

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select activities: %w", err)
	}
	defer rows.Close()

	activities := []*normalize.Activity{}
	for rows.Next() {
		var id, record string
		if err := rows.Scan(&id, &record); err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		a, err := normalize.NormalizeActivity([]byte(record))
		if err != nil {
			return nil, fmt.Errorf("failed to decode activity %s: %w", id, err)
		}
		activities = append(activities, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating activities: %w", err)
	}

	return activities, nil
}
