package db

import (
	"database/sql"
	"errors"
)

// paginate appends LIMIT/OFFSET clauses. SQLite rejects OFFSET without
// LIMIT, so an offset alone uses LIMIT -1.
func paginate(query string, args []interface{}, limit, offset int) (string, []interface{}) {
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	} else if offset > 0 {
		query += " LIMIT -1"
	}
	if offset > 0 {
		query += " OFFSET ?"
		args = append(args, offset)
	}
	return query, args
}

// likePattern wraps s for a substring LIKE match
func likePattern(s string) string {
	return "%" + s + "%"
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
