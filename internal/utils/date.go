package utils

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseSinceDate parses a date string that can be in these formats:
// - Relative: "12h", "7d", "2w", "3m", "1y" (ago)
// - Absolute: "2025-12-15" (YYYY-MM-DD) or an RFC3339 timestamp
//
// Returns the parsed time or an error if the format is invalid.
func ParseSinceDate(since string) (time.Time, error) {
	return parseSince(since, time.Now())
}

func parseSince(since string, now time.Time) (time.Time, error) {
	since = strings.TrimSpace(since)
	if since == "" {
		return time.Time{}, fmt.Errorf("since date cannot be empty")
	}

	// Relative format (e.g., "7d")
	unit := since[len(since)-1]
	if strings.IndexByte("hdwmy", unit) >= 0 {
		n, err := strconv.Atoi(since[:len(since)-1])
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid relative date format '%s': expected format like '7d'", since)
		}
		if n < 0 {
			return time.Time{}, fmt.Errorf("amount cannot be negative: %d", n)
		}

		switch unit {
		case 'h':
			return now.Add(-time.Duration(n) * time.Hour), nil
		case 'd':
			return now.AddDate(0, 0, -n), nil
		case 'w':
			return now.AddDate(0, 0, -7*n), nil
		case 'm':
			return now.AddDate(0, -n, 0), nil
		default:
			return now.AddDate(-n, 0, 0), nil
		}
	}

	// Absolute format (YYYY-MM-DD)
	if parsed, err := time.Parse("2006-01-02", since); err == nil {
		return parsed, nil
	}
	if parsed, err := time.Parse(time.RFC3339, since); err == nil {
		return parsed, nil
	}

	return time.Time{}, fmt.Errorf("invalid date format '%s': expected 'YYYY-MM-DD' or relative format like '7d'", since)
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp parses a server timestamp. Besides the layouts above it
// accepts Unix epoch numbers in seconds or milliseconds. The zero time and
// false are returned for anything else.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}

	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}

	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		// Anything past year 2286 in seconds is really milliseconds
		if n > 9999999999 {
			return time.UnixMilli(n).UTC(), true
		}
		return time.Unix(n, 0).UTC(), true
	}

	return time.Time{}, false
}
