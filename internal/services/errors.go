package services

import (
	"errors"
	"fmt"

	"github.com/eventos/apiserver/internal/store"
	"github.com/eventos/apiserver/internal/validation"
)

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrInvalidPassword = errors.New("invalid password")
	ErrInvalidRole     = store.ErrInvalidRole

	ErrForbidden             = errors.New("forbidden")
	ErrStorageUnavailable    = errors.New("object storage is not configured")
	ErrUnsupportedAvatarType = errors.New("avatar must be a png, jpeg, gif or webp image")
	ErrAvatarNotFound        = errors.New("avatar not found")
)

// ValidationError carries the field violations of a rejected payload.
type ValidationError struct {
	Errors validation.Errors
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Errors.Error()
}

// DuplicateUserError reports that the pre-insert lookup found a user with
// the same email or username. Value is the stored value that collided.
type DuplicateUserError struct {
	Field string
	Value string
}

func (e *DuplicateUserError) Error() string {
	if e.Field == "email" {
		return fmt.Sprintf("User already exists with the '%s' Email.", e.Value)
	}
	return fmt.Sprintf("User already exists with the '%s' username.", e.Value)
}
