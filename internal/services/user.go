package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/eventos/apiserver/internal/auth"
	"github.com/eventos/apiserver/internal/metrics"
	"github.com/eventos/apiserver/internal/mq"
	"github.com/eventos/apiserver/internal/storage"
	"github.com/eventos/apiserver/internal/store"
	"github.com/eventos/apiserver/internal/telemetry"
	"github.com/eventos/apiserver/internal/validation"
	"github.com/eventos/apiserver/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName = "github.com/eventos/apiserver/internal/services"

	avatarKeyPrefix = "avatars/"
	publishTimeout  = 5 * time.Second
)

var avatarContentTypes = map[string]struct{}{
	"image/png":  {},
	"image/jpeg": {},
	"image/gif":  {},
	"image/webp": {},
}

// UserRepository defines persistence operations for users.
type UserRepository interface {
	FindExisting(ctx context.Context, email, userName string) (types.User, error)
	FindForLogin(ctx context.Context, email, userName string) (types.User, error)
	CreateUserWithProfile(ctx context.Context, user types.User, profile types.ProfileFields) (types.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (types.User, error)
	List(ctx context.Context) ([]types.User, error)
	ListAttendees(ctx context.Context) ([]types.Attendee, error)
	SetAvatarKey(ctx context.Context, id uuid.UUID, key string) error
}

// EventPublisher publishes domain events after a workflow commits.
type EventPublisher interface {
	PublishUserRegistered(ctx context.Context, event mq.UserRegistered) (string, error)
}

// AvatarStore is the subset of object storage used for avatars.
type AvatarStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (*storage.Object, error)
	Delete(ctx context.Context, key string) error
}

// RegisterInput is the registration payload.
type RegisterInput struct {
	Email        string     `json:"email" validate:"required,email" msg:"Must be a valid email"`
	UserName     string     `json:"userName" validate:"required" msg:"Username is required"`
	Password     string     `json:"password" validate:"required,min=6,maxbytes=72" msg:"Password must be at least 6 characters long" msg_maxbytes:"Password must be at most 72 bytes long"`
	Role         types.Role `json:"role" validate:"oneof=attendee organizer" msg:"Role must be either organizer or attendee"`
	Name         string     `json:"name" validate:"required" msg:"Name is required"`
	Phone        string     `json:"phone,omitempty"`
	Organization string     `json:"organization,omitempty"`
	Website      string     `json:"website,omitempty"`
}

// AttendeeInput is the payload of the attendee-only registration endpoint.
type AttendeeInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	UserName string `json:"userName"`
	Password string `json:"password"`
	Phone    string `json:"phone,omitempty"`
}

// LoginInput is the login payload. Either password or userName must be present.
type LoginInput struct {
	Email    string `json:"email" validate:"required,email" msg:"Must be a valid email"`
	UserName string `json:"userName"`
	Password string `json:"password" validate:"required_without=UserName" msg:"Password or username is required"`
}

// Registration is the outcome of a committed registration.
type Registration struct {
	User types.User
}

// Profile returns the role-specific row created with the user.
func (r Registration) Profile() any {
	switch {
	case r.User.Attendee != nil:
		return r.User.Attendee
	case r.User.Organizer != nil:
		return r.User.Organizer
	default:
		return r.User
	}
}

type LoginResult struct {
	User   types.User     `json:"data"`
	Tokens auth.TokenPair `json:"tokens"`
}

// UserService runs the registration, login and account use-cases.
type UserService struct {
	repo      UserRepository
	hasher    *auth.PasswordHasher
	tokens    *auth.TokenIssuer
	validator *validation.Validator
	events    EventPublisher
	avatars   AvatarStore
	log       zerolog.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

type UserServiceOption func(*UserService)

// WithEventPublisher enables user.registered events.
func WithEventPublisher(p EventPublisher) UserServiceOption {
	return func(s *UserService) { s.events = p }
}

// WithAvatarStore enables avatar upload and download.
func WithAvatarStore(a AvatarStore) UserServiceOption {
	return func(s *UserService) { s.avatars = a }
}

func WithLogger(log zerolog.Logger) UserServiceOption {
	return func(s *UserService) { s.log = log.With().Str("component", "users").Logger() }
}

func NewUserService(repo UserRepository, hasher *auth.PasswordHasher, tokens *auth.TokenIssuer, opts ...UserServiceOption) *UserService {
	s := &UserService{
		repo:      repo,
		hasher:    hasher,
		tokens:    tokens,
		validator: validation.New(),
		log:       zerolog.Nop(),
		tracer:    telemetry.Tracer(tracerName),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register validates in, checks that neither the email nor the username is
// taken, and creates the user with its profile row in one transaction.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (Registration, error) {
	ctx, span := s.tracer.Start(ctx, "UserService.Register")
	defer span.End()
	span.SetAttributes(attribute.String("user.role", string(in.Role)))

	reg, err := s.register(ctx, in)
	metrics.RegistrationsTotal.WithLabelValues(roleLabel(in.Role), registrationOutcome(err)).Inc()
	if err != nil {
		recordError(span, err)
		return Registration{}, err
	}
	return reg, nil
}

// RegisterAttendee is Register with the role fixed to attendee.
func (s *UserService) RegisterAttendee(ctx context.Context, in AttendeeInput) (Registration, error) {
	return s.Register(ctx, RegisterInput{
		Email:    in.Email,
		UserName: in.UserName,
		Password: in.Password,
		Role:     types.RoleAttendee,
		Name:     in.Name,
		Phone:    in.Phone,
	})
}

func (s *UserService) register(ctx context.Context, in RegisterInput) (Registration, error) {
	err := s.step(ctx, "validate", func(context.Context) error {
		return s.validate(in)
	})
	if err != nil {
		return Registration{}, err
	}

	err = s.step(ctx, "check-uniqueness", func(ctx context.Context) error {
		existing, err := s.repo.FindExisting(ctx, in.Email, in.UserName)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("check existing user: %w", err)
		}
		if existing.Email == in.Email {
			return &DuplicateUserError{Field: "email", Value: existing.Email}
		}
		return &DuplicateUserError{Field: "userName", Value: existing.UserName}
	})
	if err != nil {
		return Registration{}, err
	}

	var hash string
	err = s.step(ctx, "hash-password", func(context.Context) error {
		var err error
		hash, err = s.hasher.Hash(in.Password)
		if err != nil {
			return fmt.Errorf("hash password: %w", err)
		}
		return nil
	})
	if err != nil {
		return Registration{}, err
	}

	var created types.User
	err = s.step(ctx, "transactional-insert", func(ctx context.Context) error {
		var err error
		created, err = s.repo.CreateUserWithProfile(ctx, types.User{
			Email:        in.Email,
			UserName:     in.UserName,
			PasswordHash: hash,
			Name:         in.Name,
			Role:         in.Role,
		}, types.ProfileFields{
			Name:         in.Name,
			Phone:        in.Phone,
			Organization: in.Organization,
			Website:      in.Website,
		})
		return err
	})
	if err != nil {
		return Registration{}, err
	}

	s.log.Info().
		Str("user_id", created.ID.String()).
		Str("role", string(created.Role)).
		Msg("user registered")

	s.publishRegistered(ctx, created)
	return Registration{User: created}, nil
}

// Login looks the user up by email or username and issues a token pair when
// the password matches.
func (s *UserService) Login(ctx context.Context, in LoginInput) (LoginResult, error) {
	ctx, span := s.tracer.Start(ctx, "UserService.Login")
	defer span.End()

	result, err := s.login(ctx, in)
	metrics.LoginsTotal.WithLabelValues(loginOutcome(err)).Inc()
	if err != nil {
		recordError(span, err)
		return LoginResult{}, err
	}
	return result, nil
}

func (s *UserService) login(ctx context.Context, in LoginInput) (LoginResult, error) {
	err := s.step(ctx, "validate", func(context.Context) error {
		return s.validate(in)
	})
	if err != nil {
		return LoginResult{}, err
	}

	var user types.User
	err = s.step(ctx, "lookup", func(ctx context.Context) error {
		var err error
		user, err = s.repo.FindForLogin(ctx, in.Email, in.UserName)
		if errors.Is(err, store.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	})
	if err != nil {
		return LoginResult{}, err
	}

	err = s.step(ctx, "verify-password", func(context.Context) error {
		if !s.hasher.Verify(in.Password, user.PasswordHash) {
			return ErrInvalidPassword
		}
		return nil
	})
	if err != nil {
		s.log.Warn().Str("user_id", user.ID.String()).Msg("login rejected: invalid password")
		return LoginResult{}, err
	}

	var tokens auth.TokenPair
	err = s.step(ctx, "issue-tokens", func(context.Context) error {
		var err error
		tokens, err = s.tokens.IssuePair(auth.Identity{
			Subject:  user.ID.String(),
			Email:    user.Email,
			UserName: user.UserName,
			Role:     string(user.Role),
		})
		if err != nil {
			return fmt.Errorf("issue tokens: %w", err)
		}
		return nil
	})
	if err != nil {
		return LoginResult{}, err
	}

	return LoginResult{User: user, Tokens: tokens}, nil
}

// GetByID returns the user with its profile. Malformed ids are reported as not found.
func (s *UserService) GetByID(ctx context.Context, id string) (types.User, error) {
	userID, err := uuid.Parse(id)
	if err != nil {
		return types.User{}, ErrUserNotFound
	}
	user, err := s.repo.GetByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return types.User{}, ErrUserNotFound
	}
	if err != nil {
		return types.User{}, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

func (s *UserService) List(ctx context.Context) ([]types.User, error) {
	users, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

func (s *UserService) ListAttendees(ctx context.Context) ([]types.Attendee, error) {
	attendees, err := s.repo.ListAttendees(ctx)
	if err != nil {
		return nil, fmt.Errorf("list attendees: %w", err)
	}
	return attendees, nil
}

// UploadAvatar stores an image for userID. Only the user may replace their own avatar.
func (s *UserService) UploadAvatar(ctx context.Context, actorID, userID, contentType string, body io.Reader, size int64) (types.User, error) {
	if s.avatars == nil {
		return types.User{}, ErrStorageUnavailable
	}
	target, err := uuid.Parse(userID)
	if err != nil {
		return types.User{}, ErrUserNotFound
	}
	if actor, err := uuid.Parse(actorID); err != nil || actor != target {
		return types.User{}, ErrForbidden
	}
	if _, ok := avatarContentTypes[contentType]; !ok {
		return types.User{}, ErrUnsupportedAvatarType
	}

	user, err := s.GetByID(ctx, target.String())
	if err != nil {
		return types.User{}, err
	}

	key := avatarKeyPrefix + user.ID.String()
	if err := s.avatars.Put(ctx, key, body, size, contentType); err != nil {
		return types.User{}, fmt.Errorf("store avatar: %w", err)
	}
	if err := s.repo.SetAvatarKey(ctx, user.ID, key); err != nil {
		// Only remove the object when no earlier upload is referencing it.
		if user.AvatarKey == "" {
			if delErr := s.avatars.Delete(context.WithoutCancel(ctx), key); delErr != nil && !errors.Is(delErr, storage.ErrObjectNotFound) {
				s.log.Warn().Err(delErr).Str("key", key).Msg("orphaned avatar object")
			}
		}
		return types.User{}, fmt.Errorf("record avatar: %w", err)
	}

	user.AvatarKey = key
	return user, nil
}

// GetAvatar opens the stored avatar of userID. The caller closes its Body.
func (s *UserService) GetAvatar(ctx context.Context, userID string) (*storage.Object, error) {
	if s.avatars == nil {
		return nil, ErrStorageUnavailable
	}

	user, err := s.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.AvatarKey == "" {
		return nil, ErrAvatarNotFound
	}

	obj, err := s.avatars.Get(ctx, user.AvatarKey)
	if errors.Is(err, storage.ErrObjectNotFound) {
		return nil, ErrAvatarNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("open avatar: %w", err)
	}
	return obj, nil
}

func (s *UserService) validate(in any) error {
	err := s.validator.Struct(in)
	if err == nil {
		return nil
	}
	var fieldErrs validation.Errors
	if errors.As(err, &fieldErrs) {
		return &ValidationError{Errors: fieldErrs}
	}
	return fmt.Errorf("validate input: %w", err)
}

// publishRegistered never fails the registration; the user row is already committed.
func (s *UserService) publishRegistered(ctx context.Context, user types.User) {
	if s.events == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	_, err := s.events.PublishUserRegistered(ctx, mq.UserRegistered{
		Type:       mq.EventUserRegistered,
		UserID:     user.ID.String(),
		Email:      user.Email,
		UserName:   user.UserName,
		Role:       string(user.Role),
		OccurredAt: s.now().UTC(),
	})
	if err != nil {
		metrics.EventsPublishedTotal.WithLabelValues(mq.EventUserRegistered, "error").Inc()
		s.log.Error().Err(err).Str("user_id", user.ID.String()).Msg("failed to publish user.registered")
		return
	}
	metrics.EventsPublishedTotal.WithLabelValues(mq.EventUserRegistered, "published").Inc()
}

// step runs one workflow state in its own span.
func (s *UserService) step(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := s.tracer.Start(ctx, name)
	defer span.End()

	if err := fn(ctx); err != nil {
		recordError(span, err)
		return err
	}
	return nil
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func roleLabel(role types.Role) string {
	if role.Valid() {
		return string(role)
	}
	return "unknown"
}

func registrationOutcome(err error) string {
	var (
		validationErr *ValidationError
		duplicateErr  *DuplicateUserError
		storeDupErr   *store.DuplicateKeyError
	)
	switch {
	case err == nil:
		return "created"
	case errors.As(err, &validationErr):
		return "invalid"
	case errors.As(err, &duplicateErr), errors.As(err, &storeDupErr):
		return "duplicate"
	case errors.Is(err, ErrInvalidRole):
		return "invalid_role"
	default:
		return "error"
	}
}

func loginOutcome(err error) string {
	var validationErr *ValidationError
	switch {
	case err == nil:
		return "success"
	case errors.As(err, &validationErr):
		return "invalid"
	case errors.Is(err, ErrUserNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidPassword):
		return "bad_password"
	default:
		return "error"
	}
}
