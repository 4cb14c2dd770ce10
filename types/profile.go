package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Attendee is the profile row of a user registered with the attendee role.
type Attendee struct {
	ID     uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	UserID uuid.UUID `json:"userId" gorm:"type:uuid;not null;uniqueIndex:attendees_user_id_key"`

	// Name is the attendee's name as shown on event rosters.
	Name  string `json:"name" gorm:"not null"`
	Phone string `json:"phone,omitempty" gorm:"not null;default:''"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// User is loaded when listing attendees.
	User *User `json:"user,omitempty" gorm:"foreignKey:UserID"`
}

func (a *Attendee) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// Organizer is the profile row of a user registered with the organizer role.
type Organizer struct {
	ID     uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	UserID uuid.UUID `json:"userId" gorm:"type:uuid;not null;uniqueIndex:organizers_user_id_key"`

	Name         string `json:"name" gorm:"not null"`
	Organization string `json:"organization,omitempty" gorm:"not null;default:''"`
	Website      string `json:"website,omitempty" gorm:"not null;default:''"`
	Phone        string `json:"phone,omitempty" gorm:"not null;default:''"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	User *User `json:"user,omitempty" gorm:"foreignKey:UserID"`
}

func (o *Organizer) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

// ProfileFields carries the role-specific fields supplied at registration.
// Fields that do not apply to the chosen role are ignored.
type ProfileFields struct {
	Name         string
	Phone        string
	Organization string
	Website      string
}
