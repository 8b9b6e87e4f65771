package models

import (
	"time"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

type Status string

const (
	StatusTodo       Status = "TODO"
	StatusInProgress Status = "IN_PROGRESS"
	StatusDone       Status = "DONE"
)

// Statuses lists the board columns in display order.
var Statuses = []Status{StatusTodo, StatusInProgress, StatusDone}

func (s Status) Valid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusDone:
		return true
	}
	return false
}

type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

type Task struct {
	ID           uuid.UUID  `json:"id" gorm:"primaryKey"`
	Title        string     `json:"title" gorm:"size:200;not null"`
	Description  string     `json:"description"`
	ProjectID    uuid.UUID  `json:"project" gorm:"not null;index"`
	Status       Status     `json:"status" gorm:"size:20;not null;index"`
	Priority     Priority   `json:"priority" gorm:"size:10;not null"`
	AssignedToID *uuid.UUID `json:"assigned_to_id"`
	AssignedTo   *User      `json:"assigned_to" gorm:"foreignKey:AssignedToID"`
	DueDate      *Date      `json:"due_date"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (t *Task) BeforeCreate(tx *gorm.DB) error {
	if t.ID.IsNil() {
		id, err := uuid.NewV4()
		if err != nil {
			return err
		}
		t.ID = id
	}
	if t.Status == "" {
		t.Status = StatusTodo
	}
	if t.Priority == "" {
		t.Priority = PriorityMedium
	}
	return nil
}

// IsOpen reports whether the task still counts towards due-soon and overdue
// figures.
func (t *Task) IsOpen() bool {
	return t.Status != StatusDone
}
