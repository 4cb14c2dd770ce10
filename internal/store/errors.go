package store

import (
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"gorm.io/gorm"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// ErrInvalidRole is returned when a user is created with a role that has no profile table.
var ErrInvalidRole = errors.New("invalid role")

const (
	pqUniqueViolation = "23505"
	pqCheckViolation  = "23514"
)

// DuplicateKeyError reports a unique constraint rejected by the database.
// Field is the API field name ("email" or "userName") when it can be determined.
type DuplicateKeyError struct {
	Field string
	Err   error
}

func (e *DuplicateKeyError) Error() string {
	if e.Field == "" {
		return "duplicate key"
	}
	return fmt.Sprintf("duplicate key on %s", e.Field)
}

func (e *DuplicateKeyError) Unwrap() error {
	return e.Err
}

// translateError maps driver level errors onto the store's error values.
func translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case pqUniqueViolation:
			return &DuplicateKeyError{Field: fieldFromConstraint(pqErr.Constraint), Err: err}
		case pqCheckViolation:
			if strings.Contains(pqErr.Constraint, "role") {
				return fmt.Errorf("%w: %v", ErrInvalidRole, err)
			}
		}
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.ExtendedCode {
		case sqlite3.ErrConstraintUnique:
			return &DuplicateKeyError{Field: fieldFromConstraint(sqliteErr.Error()), Err: err}
		case sqlite3.ErrConstraintCheck:
			if strings.Contains(sqliteErr.Error(), "role") {
				return fmt.Errorf("%w: %v", ErrInvalidRole, err)
			}
		}
	}

	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return &DuplicateKeyError{Err: err}
	}
	return err
}

// fieldFromConstraint accepts a postgres constraint name or a sqlite
// "UNIQUE constraint failed: users.email" message.
func fieldFromConstraint(s string) string {
	switch {
	case strings.Contains(s, "user_name"):
		return "userName"
	case strings.Contains(s, "email"):
		return "email"
	case strings.Contains(s, "user_id"):
		return "userId"
	default:
		return ""
	}
}
