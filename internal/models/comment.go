package models

import (
	"time"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

type Comment struct {
	ID        uuid.UUID `json:"id" gorm:"primaryKey"`
	TaskID    uuid.UUID `json:"task" gorm:"not null;index"`
	AuthorID  uuid.UUID `json:"author_id" gorm:"not null"`
	Author    User      `json:"author" gorm:"foreignKey:AuthorID"`
	Content   string    `json:"content" gorm:"not null"`
	CreatedAt time.Time `json:"created_at"`
}

func (c *Comment) BeforeCreate(tx *gorm.DB) error {
	if c.ID.IsNil() {
		id, err := uuid.NewV4()
		if err != nil {
			return err
		}
		c.ID = id
	}
	return nil
}

// ActivityLog is the append-only audit trail of a task. UserID is nil for
// system-generated entries.
type ActivityLog struct {
	ID        uuid.UUID  `json:"id" gorm:"primaryKey"`
	TaskID    uuid.UUID  `json:"task" gorm:"not null;index"`
	UserID    *uuid.UUID `json:"user_id"`
	User      *User      `json:"user" gorm:"foreignKey:UserID"`
	Action    string     `json:"action" gorm:"size:255;not null"`
	CreatedAt time.Time  `json:"created_at"`
}

func (l *ActivityLog) BeforeCreate(tx *gorm.DB) error {
	if l.ID.IsNil() {
		id, err := uuid.NewV4()
		if err != nil {
			return err
		}
		l.ID = id
	}
	return nil
}

// BeforeUpdate keeps log rows immutable once written.
func (l *ActivityLog) BeforeUpdate(tx *gorm.DB) error {
	return ErrImmutableLog
}
