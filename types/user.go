package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Role decides which profile table a user is linked to.
type Role string

const (
	RoleAttendee  Role = "attendee"
	RoleOrganizer Role = "organizer"
)

// Valid reports whether r is one of the persisted roles.
func (r Role) Valid() bool {
	return r == RoleAttendee || r == RoleOrganizer
}

// User represents an account in the system.
// It contains identity, role, and audit metadata, plus the
// role-specific profile row when it has been loaded.
type User struct {
	// ID is the unique identifier of the user.
	ID uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`

	// Email is the user's email address. Unique across all users.
	Email string `json:"email" gorm:"not null;uniqueIndex:users_email_key"`

	// UserName is the unique login name chosen by the user.
	UserName string `json:"userName" gorm:"column:user_name;not null;uniqueIndex:users_user_name_key"`

	// PasswordHash stores the bcrypt hash of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" gorm:"column:password_hash;not null"`

	// Name is the user's display or full name.
	Name string `json:"name" gorm:"not null"`

	// Role is either "attendee" or "organizer".
	Role Role `json:"role" gorm:"type:varchar(16);not null;check:role IN ('attendee','organizer')"`

	// AvatarKey is the object storage key of the uploaded avatar, if any.
	AvatarKey string `json:"avatarKey,omitempty" gorm:"column:avatar_key;not null;default:''"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"createdAt"`

	// UpdatedAt is the timestamp of the most recent update to the user account.
	UpdatedAt time.Time `json:"updatedAt"`

	// Attendee is set for users with the attendee role when profiles are loaded.
	Attendee *Attendee `json:"attendee,omitempty" gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`

	// Organizer is set for users with the organizer role when profiles are loaded.
	Organizer *Organizer `json:"organizer,omitempty" gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
}

// BeforeCreate assigns a fresh identifier so both postgres and sqlite
// produce the same id format.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}
