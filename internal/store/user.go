package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/eventos/apiserver/types"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UserRepository handles persistence for users and their profile rows.
type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindExisting returns the first user whose email or username matches.
func (r *UserRepository) FindExisting(ctx context.Context, email, userName string) (types.User, error) {
	return r.findByEmailOrUserName(r.db.WithContext(ctx), email, userName)
}

// FindForLogin is FindExisting with the profile rows loaded.
func (r *UserRepository) FindForLogin(ctx context.Context, email, userName string) (types.User, error) {
	tx := r.db.WithContext(ctx).Preload("Attendee").Preload("Organizer")
	return r.findByEmailOrUserName(tx, email, userName)
}

func (r *UserRepository) findByEmailOrUserName(tx *gorm.DB, email, userName string) (types.User, error) {
	query := tx.Where("email = ?", email)
	if userName != "" {
		query = query.Or("user_name = ?", userName)
	}

	var user types.User
	if err := query.Order("created_at").First(&user).Error; err != nil {
		return types.User{}, translateError(err)
	}
	return user, nil
}

// CreateUserWithProfile inserts the user and the profile row matching its
// role in one transaction. Nothing is written unless both inserts succeed.
func (r *UserRepository) CreateUserWithProfile(ctx context.Context, user types.User, profile types.ProfileFields) (types.User, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if !user.Role.Valid() {
			return fmt.Errorf("%w: %q", ErrInvalidRole, user.Role)
		}
		if err := tx.Omit("Attendee", "Organizer").Create(&user).Error; err != nil {
			return err
		}

		switch user.Role {
		case types.RoleAttendee:
			attendee := types.Attendee{
				UserID: user.ID,
				Name:   profile.Name,
				Phone:  profile.Phone,
			}
			if err := tx.Omit("User").Create(&attendee).Error; err != nil {
				return err
			}
			user.Attendee = &attendee
		case types.RoleOrganizer:
			organizer := types.Organizer{
				UserID:       user.ID,
				Name:         profile.Name,
				Organization: profile.Organization,
				Website:      profile.Website,
				Phone:        profile.Phone,
			}
			if err := tx.Omit("User").Create(&organizer).Error; err != nil {
				return err
			}
			user.Organizer = &organizer
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrInvalidRole) {
			return types.User{}, err
		}
		return types.User{}, translateError(err)
	}
	return user, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (types.User, error) {
	var user types.User
	err := r.db.WithContext(ctx).
		Preload("Attendee").
		Preload("Organizer").
		First(&user, "id = ?", id).Error
	if err != nil {
		return types.User{}, translateError(err)
	}
	return user, nil
}

// List returns every user with its profile row.
func (r *UserRepository) List(ctx context.Context) ([]types.User, error) {
	users := make([]types.User, 0)
	err := r.db.WithContext(ctx).
		Preload("Attendee").
		Preload("Organizer").
		Order("created_at").
		Find(&users).Error
	if err != nil {
		return nil, translateError(err)
	}
	return users, nil
}

// ListAttendees returns every attendee with its user.
func (r *UserRepository) ListAttendees(ctx context.Context) ([]types.Attendee, error) {
	attendees := make([]types.Attendee, 0)
	err := r.db.WithContext(ctx).
		Preload("User").
		Order("created_at").
		Find(&attendees).Error
	if err != nil {
		return nil, translateError(err)
	}
	return attendees, nil
}

func (r *UserRepository) SetAvatarKey(ctx context.Context, id uuid.UUID, key string) error {
	result := r.db.WithContext(ctx).
		Model(&types.User{}).
		Where("id = ?", id).
		Update("avatar_key", key)
	if result.Error != nil {
		return translateError(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
