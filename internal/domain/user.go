package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is provisioned out of band; the login flow only reads it.
type User struct {
	ID           string    `gorm:"primaryKey;size:36" json:"id"`
	Name         string    `gorm:"size:255;not null" json:"name"`
	Email        string    `gorm:"uniqueIndex;size:255;not null" json:"email"`
	Department   string    `gorm:"size:255" json:"department"`
	PasswordHash *string   `gorm:"size:1024" json:"-"`
	Active       bool      `gorm:"not null;index:idx_users_active" json:"active"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"-"`
}

func (u *User) BeforeCreate(*gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}
