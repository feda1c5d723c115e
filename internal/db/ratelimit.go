package db

import (
	"database/sql"
	"fmt"
	"time"
)

// Defaults for endpoints that have no rate limit row yet
const (
	DefaultRateWindowSeconds = 60
	DefaultRateMaxRequests   = 60
	DefaultRateSafetyLimit   = 50
)

// RateLimit tracks requests made to one backend endpoint within a window
type RateLimit struct {
	Host                  string
	Endpoint              string
	RequestsMade          int
	WindowStart           time.Time
	WindowDurationSeconds int
	MaxRequests           int
	SafetyLimit           int
}

// WindowEnd returns when the current window expires
func (rl *RateLimit) WindowEnd() time.Time {
	return rl.WindowStart.Add(time.Duration(rl.WindowDurationSeconds) * time.Second)
}

// CheckRateLimit checks if we can make a request within rate limits
// Returns true if request is allowed, false if rate limited
func (db *DB) CheckRateLimit(host, endpoint string) (bool, error) {
	rl, err := db.GetRateLimitStatus(host, endpoint)
	if err != nil {
		return false, fmt.Errorf("failed to check rate limit: %w", err)
	}

	if rl == nil {
		// No rate limit entry, initialize one
		return true, db.InitRateLimit(host, endpoint, DefaultRateWindowSeconds, DefaultRateMaxRequests, DefaultRateSafetyLimit)
	}

	// Check if window has expired
	if time.Now().After(rl.WindowEnd()) {
		return true, db.ResetRateLimitWindow(host, endpoint)
	}

	// Stay under the safety limit rather than the hard maximum
	if rl.RequestsMade >= rl.SafetyLimit {
		return false, nil
	}

	return true, nil
}

// ReserveRequest claims one request slot for an endpoint. Check and count
// happen in one transaction, so concurrent callers cannot overshoot the
// safety limit. Returns false when the current window is used up.
func (db *DB) ReserveRequest(host, endpoint string) (bool, error) {
	tx, err := db.Begin()
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	rl, err := getRateLimit(tx, host, endpoint)
	if err != nil {
		return false, err
	}

	now := time.Now().UTC()
	switch {
	case rl == nil:
		_, err = tx.Exec(`
			INSERT INTO rate_limits (
				host, endpoint, requests_made, window_start,
				window_duration_seconds, max_requests, safety_limit
			) VALUES (?, ?, 1, ?, ?, ?, ?)
		`, host, endpoint, now, DefaultRateWindowSeconds, DefaultRateMaxRequests, DefaultRateSafetyLimit)
	case now.After(rl.WindowEnd()):
		_, err = tx.Exec(`
			UPDATE rate_limits
			SET requests_made = 1, window_start = ?
			WHERE host = ? AND endpoint = ?
		`, now, host, endpoint)
	case rl.RequestsMade >= rl.SafetyLimit:
		return false, nil
	default:
		_, err = tx.Exec(`
			UPDATE rate_limits
			SET requests_made = requests_made + 1
			WHERE host = ? AND endpoint = ?
		`, host, endpoint)
	}
	if err != nil {
		return false, fmt.Errorf("failed to reserve request: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit rate limit: %w", err)
	}
	return true, nil
}

// RecordRequest records a successful API request
func (db *DB) RecordRequest(host, endpoint string) error {
	_, err := db.Exec(`
		UPDATE rate_limits
		SET requests_made = requests_made + 1
		WHERE host = ? AND endpoint = ?
	`, host, endpoint)

	if err != nil {
		return fmt.Errorf("failed to record request: %w", err)
	}

	return nil
}

// InitRateLimit initializes rate limit tracking for an endpoint
func (db *DB) InitRateLimit(host, endpoint string, windowDuration, maxRequests, safetyLimit int) error {
	_, err := db.Exec(`
		INSERT INTO rate_limits (
			host, endpoint, requests_made, window_start,
			window_duration_seconds, max_requests, safety_limit
		) VALUES (?, ?, 0, ?, ?, ?, ?)
		ON CONFLICT(host, endpoint) DO NOTHING
	`, host, endpoint, time.Now().UTC(), windowDuration, maxRequests, safetyLimit)

	if err != nil {
		return fmt.Errorf("failed to init rate limit: %w", err)
	}

	return nil
}

// ResetRateLimitWindow resets the rate limit window
func (db *DB) ResetRateLimitWindow(host, endpoint string) error {
	_, err := db.Exec(`
		UPDATE rate_limits
		SET requests_made = 0, window_start = ?
		WHERE host = ? AND endpoint = ?
	`, time.Now().UTC(), host, endpoint)

	if err != nil {
		return fmt.Errorf("failed to reset rate limit window: %w", err)
	}

	return nil
}

// GetRateLimitStatus returns the current rate limit status
func (db *DB) GetRateLimitStatus(host, endpoint string) (*RateLimit, error) {
	return getRateLimit(db, host, endpoint)
}

type rowQuerier interface {
	QueryRow(query string, args ...interface{}) *sql.Row
}

func getRateLimit(q rowQuerier, host, endpoint string) (*RateLimit, error) {
	rl := &RateLimit{}

	err := q.QueryRow(`
		SELECT host, endpoint, requests_made, window_start,
		       window_duration_seconds, max_requests, safety_limit
		FROM rate_limits
		WHERE host = ? AND endpoint = ?
	`, host, endpoint).Scan(
		&rl.Host, &rl.Endpoint, &rl.RequestsMade, &rl.WindowStart,
		&rl.WindowDurationSeconds, &rl.MaxRequests, &rl.SafetyLimit,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rate limit status: %w", err)
	}

	return rl, nil
}
