package handlers

import (
	"context"
	"net/http"

	"github.com/eventos/apiserver/internal/auth"
	"github.com/eventos/apiserver/internal/services"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// AuthHandler provides login and token-authenticated endpoints.
type AuthHandler struct {
	userService *services.UserService
	tokens      *auth.TokenIssuer
}

func NewAuthHandler(userService *services.UserService, tokens *auth.TokenIssuer) *AuthHandler {
	return &AuthHandler{
		userService: userService,
		tokens:      tokens,
	}
}

// AuthRouter registers auth routes on the given router. loginLimiter may be nil.
func AuthRouter(r chi.Router, userService *services.UserService, tokens *auth.TokenIssuer, loginLimiter func(http.Handler) http.Handler) {
	handler := NewAuthHandler(userService, tokens)

	if loginLimiter != nil {
		r.With(loginLimiter).Post("/login", handler.Login)
	} else {
		r.Post("/login", handler.Login)
	}
	r.With(handler.RequireAuth).Get("/me", handler.Me)
}

// RequireAuth enforces a valid access token and injects its subject into the context.
func (h *AuthHandler) RequireAuth(next http.Handler) http.Handler {
	return RequireAuth(h.tokens)(next)
}

// RequireAuth constructs auth middleware for other routers.
func RequireAuth(tokens *auth.TokenIssuer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, err := auth.TokenFromHeader(r.Header.Get("Authorization"))
			if err != nil {
				writeNamedError(w, http.StatusUnauthorized, nameAuthentication, "Unauthorized")
				return
			}

			claims, err := tokens.ParseAccessToken(tokenString)
			if err != nil {
				writeNamedError(w, http.StatusUnauthorized, nameAuthentication, "Unauthorized")
				return
			}

			ctx := context.WithValue(r.Context(), contextSubjectKey, claims.Subject)
			if logger := zerolog.Ctx(ctx); logger.GetLevel() != zerolog.Disabled {
				ctx = logger.With().Str("user_id", claims.Subject).Logger().WithContext(ctx)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Login verifies credentials and returns the user with an access/refresh token pair.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req services.LoginInput
	if err := decodeJSON(w, r, &req); err != nil {
		writeNamedError(w, http.StatusBadRequest, nameValidation, err.Error())
		return
	}

	result, err := h.userService.Login(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// Me returns the authenticated user.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, err := subjectFromContext(r.Context())
	if err != nil {
		writeNamedError(w, http.StatusUnauthorized, nameAuthentication, "Unauthorized")
		return
	}

	user, err := h.userService.GetByID(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}
