package services

import (
	"context"

	"github.com/bk-med/kanban/internal/models"

	"github.com/gofrs/uuid"
	"github.com/sirupsen/logrus"
)

const (
	NotificationTaskAssigned      = "task_assigned"
	NotificationTaskStatusChanged = "task_status_changed"
	NotificationTaskDueSoon       = "task_due_soon"
)

// Notification tells a task's assignee about a change made by someone.
type Notification struct {
	Type           string          `json:"type"`
	TaskID         uuid.UUID       `json:"task_id"`
	TaskTitle      string          `json:"task_title"`
	ProjectID      uuid.UUID       `json:"project_id"`
	Status         models.Status   `json:"status,omitempty"`
	PreviousStatus models.Status   `json:"previous_status,omitempty"`
	Priority       models.Priority `json:"priority,omitempty"`
	DueDate        *models.Date    `json:"due_date,omitempty"`
	Recipient      string          `json:"recipient"`
	Username       string          `json:"username"`
	ActorName      string          `json:"actor,omitempty"`
}

// NotificationFor addresses a notification of the given kind to the task's
// assignee. The task must have AssignedTo loaded.
func NotificationFor(kind string, task *models.Task) Notification {
	note := Notification{
		Type:      kind,
		TaskID:    task.ID,
		TaskTitle: task.Title,
		ProjectID: task.ProjectID,
		Status:    task.Status,
		Priority:  task.Priority,
		DueDate:   task.DueDate,
	}
	if task.AssignedTo != nil {
		note.Recipient = task.AssignedTo.Email
		note.Username = task.AssignedTo.Username
	}
	return note
}

type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// NopNotifier drops notifications; used when no queue is configured.
type NopNotifier struct {
	Logger logrus.FieldLogger
}

func (n NopNotifier) Notify(ctx context.Context, note Notification) error {
	if n.Logger != nil {
		n.Logger.WithFields(logrus.Fields{
			"type":    note.Type,
			"task_id": note.TaskID,
		}).Debug("Notification dropped, no queue configured")
	}
	return nil
}

// StatsInvalidator is told when a project's task set changes.
type StatsInvalidator interface {
	InvalidateStats(ctx context.Context, projectID uuid.UUID)
}

type noopInvalidator struct{}

func (noopInvalidator) InvalidateStats(context.Context, uuid.UUID) {}
