package store

import (
	"errors"

	"github.com/lib/pq"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when an insert or update violates a uniqueness
// constraint (duplicate email, short-ID race, version-number race).
var ErrConflict = errors.New("conflict")

const uniqueViolationCode = "23505"

// translateConflict maps Postgres unique-violation errors to ErrConflict
// so callers can retry or surface a 409 without driver knowledge.
func translateConflict(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolationCode {
		return ErrConflict
	}
	return err
}
