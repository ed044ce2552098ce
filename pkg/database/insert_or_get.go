package database

import (
	"context"
	"errors"

	"github.com/lib/pq"
)

const uniqueViolationCode = "23505"

// IsUniqueViolation reports whether err is a Postgres unique constraint violation.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == uniqueViolationCode
	}
	return false
}

// InsertOrGet runs insert and, when the insert loses a uniqueness race,
// falls back to get to reread the row that won. Returns true when this
// call created the row.
func InsertOrGet(ctx context.Context, insert func(ctx context.Context) error, get func(ctx context.Context) error) (bool, error) {
	err := insert(ctx)
	if err == nil {
		return true, nil
	}
	if !IsUniqueViolation(err) {
		return false, err
	}
	return false, get(ctx)
}
