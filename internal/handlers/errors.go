package handlers

import (
	"errors"
	"net/http"

	"github.com/eventos/apiserver/internal/services"
	"github.com/eventos/apiserver/internal/store"
	"github.com/rs/zerolog"
)

const (
	nameValidation         = "ValidationError"
	nameDuplicateKey       = "DuplicateKeyError"
	nameInvalidRole        = "InvalidRoleError"
	nameNotFound           = "NotFoundError"
	nameAuthentication     = "AuthenticationError"
	nameForbidden          = "ForbiddenError"
	nameServiceUnavailable = "ServiceUnavailableError"
	nameRateLimited        = "RateLimitError"
	nameInternal           = "InternalError"
)

// writeServiceError maps a service error onto its status code and payload.
// Unrecognised errors are logged in full and reported as 500 with a short cause.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validationErr *services.ValidationError
		duplicateErr  *services.DuplicateUserError
		storeDupErr   *store.DuplicateKeyError
	)

	switch {
	case errors.As(err, &validationErr):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:  "Validation failed",
			Name:   nameValidation,
			Errors: validationErr.Errors,
		})
	case errors.As(err, &duplicateErr):
		writeNamedError(w, http.StatusBadRequest, nameDuplicateKey, duplicateErr.Error())
	case errors.As(err, &storeDupErr):
		writeNamedError(w, http.StatusConflict, nameDuplicateKey, duplicateKeyMessage(storeDupErr.Field))
	case errors.Is(err, services.ErrInvalidRole):
		writeNamedError(w, http.StatusBadRequest, nameInvalidRole, "Invalid role")
	case errors.Is(err, services.ErrUserNotFound):
		writeNamedError(w, http.StatusNotFound, nameNotFound, "User not found")
	case errors.Is(err, services.ErrAvatarNotFound):
		writeNamedError(w, http.StatusNotFound, nameNotFound, "Avatar not found")
	case errors.Is(err, services.ErrInvalidPassword):
		writeNamedError(w, http.StatusUnauthorized, nameAuthentication, "Invalid password")
	case errors.Is(err, services.ErrForbidden):
		writeNamedError(w, http.StatusForbidden, nameForbidden, "Forbidden")
	case errors.Is(err, services.ErrUnsupportedAvatarType):
		writeNamedError(w, http.StatusBadRequest, nameValidation, "Avatar must be a png, jpeg, gif or webp image")
	case errors.Is(err, services.ErrStorageUnavailable):
		writeNamedError(w, http.StatusServiceUnavailable, nameServiceUnavailable, "Avatar storage is not configured")
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error: "Internal server error",
			Name:  nameInternal,
			Cause: rootCause(err).Error(),
		})
	}
}

func duplicateKeyMessage(field string) string {
	switch field {
	case "email":
		return "User already exists with this Email."
	case "userName":
		return "User already exists with this username."
	default:
		return "User already exists."
	}
}

func rootCause(err error) error {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
}
