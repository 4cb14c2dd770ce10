package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/eventos/apiserver/internal/services"
	"github.com/eventos/apiserver/internal/storage"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

const (
	defaultMaxAvatarBytes = 2 << 20
	formFieldAvatar       = "avatar"
	sniffLen              = 512
	multipartOverhead     = 64 << 10
)

// UserHandler provides registration and user lookup endpoints.
type UserHandler struct {
	userService    *services.UserService
	maxAvatarBytes int64
}

func NewUserHandler(userService *services.UserService, maxAvatarBytes int64) *UserHandler {
	if maxAvatarBytes <= 0 {
		maxAvatarBytes = defaultMaxAvatarBytes
	}
	return &UserHandler{
		userService:    userService,
		maxAvatarBytes: maxAvatarBytes,
	}
}

// UserRouter registers user routes on the given router.
func UserRouter(
	r chi.Router,
	userService *services.UserService,
	authMiddleware func(http.Handler) http.Handler,
	maxAvatarBytes int64,
) {
	handler := NewUserHandler(userService, maxAvatarBytes)

	r.Post("/user", handler.CreateUser)
	r.Post("/attendee", handler.CreateAttendee)
	r.Get("/users", handler.ListUsers)
	r.Get("/attendees", handler.ListAttendees)
	r.Route("/user/{userID}", func(r chi.Router) {
		r.Get("/", handler.GetUser)
		r.Get("/avatar", handler.GetAvatar)
		r.With(authMiddleware).Put("/avatar", handler.UploadAvatar)
	})
}

// CreateUser registers an attendee or organizer and returns the created profile row.
func (h *UserHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req services.RegisterInput
	if err := decodeJSON(w, r, &req); err != nil {
		writeNamedError(w, http.StatusBadRequest, nameValidation, err.Error())
		return
	}

	reg, err := h.userService.Register(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, reg.Profile())
}

func (h *UserHandler) CreateAttendee(w http.ResponseWriter, r *http.Request) {
	var req services.AttendeeInput
	if err := decodeJSON(w, r, &req); err != nil {
		writeNamedError(w, http.StatusBadRequest, nameValidation, err.Error())
		return
	}

	reg, err := h.userService.RegisterAttendee(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, reg.Profile())
}

func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.userService.List(r.Context())
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("list users failed")
		writeError(w, http.StatusInternalServerError, "Failed to fetch users")
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *UserHandler) ListAttendees(w http.ResponseWriter, r *http.Request) {
	attendees, err := h.userService.ListAttendees(r.Context())
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("list attendees failed")
		writeError(w, http.StatusInternalServerError, "Failed to fetch attendees")
		return
	}
	writeJSON(w, http.StatusOK, attendees)
}

func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.userService.GetByID(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// UploadAvatar accepts a multipart "avatar" file. The content type is
// sniffed from the bytes rather than trusted from the client.
func (h *UserHandler) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	actorID, err := subjectFromContext(r.Context())
	if err != nil {
		writeNamedError(w, http.StatusUnauthorized, nameAuthentication, "Unauthorized")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxAvatarBytes+multipartOverhead)
	if err := r.ParseMultipartForm(h.maxAvatarBytes); err != nil {
		writeNamedError(w, http.StatusBadRequest, nameValidation, fmt.Sprintf("avatar upload must be multipart form data of at most %d bytes", h.maxAvatarBytes))
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile(formFieldAvatar)
	if err != nil {
		writeNamedError(w, http.StatusBadRequest, nameValidation, "avatar file is required")
		return
	}
	defer file.Close()

	if header.Size > h.maxAvatarBytes {
		writeNamedError(w, http.StatusBadRequest, nameValidation, fmt.Sprintf("avatar exceeds %d bytes", h.maxAvatarBytes))
		return
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(file, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		writeServiceError(w, r, fmt.Errorf("read avatar: %w", err))
		return
	}
	head = head[:n]
	contentType := http.DetectContentType(head)

	body := io.MultiReader(bytes.NewReader(head), file)
	user, err := h.userService.UploadAvatar(r.Context(), actorID, chi.URLParam(r, "userID"), contentType, body, header.Size)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// GetAvatar streams the stored image with the content type it was uploaded with.
func (h *UserHandler) GetAvatar(w http.ResponseWriter, r *http.Request) {
	obj, err := h.userService.GetAvatar(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	defer obj.Body.Close()

	var body io.Reader = obj.Body
	contentType := obj.ContentType
	if contentType == "" {
		head := make([]byte, sniffLen)
		n, err := io.ReadFull(obj.Body, head)
		if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
			writeServiceError(w, r, fmt.Errorf("read avatar: %w", err))
			return
		}
		contentType = http.DetectContentType(head[:n])
		body = io.MultiReader(bytes.NewReader(head[:n]), obj.Body)
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", storage.CacheControl)
	if obj.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(obj.Size, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		zerolog.Ctx(r.Context()).Warn().Err(err).Msg("avatar stream interrupted")
	}
}
