package models

import (
	"time"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

type Project struct {
	ID          uuid.UUID `json:"id" gorm:"primaryKey"`
	Name        string    `json:"name" gorm:"size:200;not null"`
	Description string    `json:"description"`
	OwnerID     uuid.UUID `json:"owner_id" gorm:"not null;index"`
	Owner       User      `json:"owner" gorm:"foreignKey:OwnerID"`
	Members     []User    `json:"members" gorm:"many2many:project_members;"`
	CreatedAt   time.Time `json:"created_at"`

	// Derived on read, never stored.
	TaskCount   int64 `json:"task_count" gorm:"-"`
	MemberCount int64 `json:"member_count" gorm:"-"`
}

func (p *Project) BeforeCreate(tx *gorm.DB) error {
	if p.ID.IsNil() {
		id, err := uuid.NewV4()
		if err != nil {
			return err
		}
		p.ID = id
	}
	return nil
}

func (p *Project) IsOwner(userID uuid.UUID) bool {
	return p.OwnerID == userID
}

// HasMember treats the owner as a member even when the owner is absent
// from Members.
func (p *Project) HasMember(userID uuid.UUID) bool {
	if p.IsOwner(userID) {
		return true
	}
	for _, m := range p.Members {
		if m.ID == userID {
			return true
		}
	}
	return false
}
