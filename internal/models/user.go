package models

import (
	"strings"
	"time"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

type User struct {
	ID       uuid.UUID `json:"id" gorm:"primaryKey"`
	Username string    `json:"username" gorm:"uniqueIndex;not null"`
	Email    string    `json:"email"`
	Password string    `json:"-" gorm:"not null"`

	FirstName   string     `json:"first_name"`
	LastName    string     `json:"last_name"`
	IsActive    bool       `json:"is_active" gorm:"not null"`
	IsStaff     bool       `json:"is_staff" gorm:"not null"`
	IsSuperuser bool       `json:"is_superuser" gorm:"not null"`
	LastLoginAt *time.Time `json:"last_login"`

	CreatedAt time.Time `json:"date_joined"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID.IsNil() {
		id, err := uuid.NewV4()
		if err != nil {
			return err
		}
		u.ID = id
	}
	return nil
}

// IsAdmin reports whether the user bypasses object-level permission checks.
func (u *User) IsAdmin() bool {
	return u.IsStaff || u.IsSuperuser
}

func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// Token is a persisted refresh credential.
type Token struct {
	ID           uuid.UUID `json:"id" gorm:"primaryKey"`
	UserID       uuid.UUID `json:"user_id" gorm:"not null;index"`
	RefreshToken uuid.UUID `json:"refresh_token" gorm:"uniqueIndex;not null"`
	ExpiresAt    time.Time `json:"expires_at" gorm:"not null"`
	CreatedAt    time.Time `json:"created_at"`
}

func (t *Token) BeforeCreate(tx *gorm.DB) error {
	if t.ID.IsNil() {
		id, err := uuid.NewV4()
		if err != nil {
			return err
		}
		t.ID = id
	}
	return nil
}

func (t *Token) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
