package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"

	"github.com/bk-med/kanban/internal/apperrors"
	"github.com/bk-med/kanban/internal/models"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

// Optional distinguishes an absent JSON field from an explicit null.
type Optional[T any] struct {
	Set   bool
	Value *T
}

func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		o.Value = nil
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	o.Value = &v
	return nil
}

func Some[T any](v T) Optional[T] {
	return Optional[T]{Set: true, Value: &v}
}

func Null[T any]() Optional[T] {
	return Optional[T]{Set: true}
}

// missing reports an absent entity without letting non-admins probe for
// existence: they get the same 403 as for an entity they cannot see.
func missing(actor models.Actor, what string) error {
	if actor.IsAdmin() {
		return apperrors.NotFound(what + " not found")
	}
	return apperrors.Forbidden()
}

func notFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

func loadProject(ctx context.Context, db *gorm.DB, id uuid.UUID) (*models.Project, error) {
	var project models.Project
	err := db.WithContext(ctx).
		Preload("Owner").
		Preload("Members").
		First(&project, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &project, nil
}

// loadTask returns the task together with the project it belongs to.
func loadTask(ctx context.Context, db *gorm.DB, id uuid.UUID) (*models.Task, *models.Project, error) {
	var task models.Task
	if err := db.WithContext(ctx).Preload("AssignedTo").First(&task, "id = ?", id).Error; err != nil {
		return nil, nil, err
	}
	project, err := loadProject(ctx, db, task.ProjectID)
	if err != nil {
		return nil, nil, err
	}
	return &task, project, nil
}

func userExists(ctx context.Context, db *gorm.DB, id uuid.UUID) (*models.User, error) {
	var user models.User
	err := db.WithContext(ctx).First(&user, "id = ?", id).Error
	if notFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// deleteTasks removes tasks with their comments and activity logs. It must
// run inside a transaction.
func deleteTasks(tx *gorm.DB, taskIDs []uuid.UUID) error {
	if len(taskIDs) == 0 {
		return nil
	}
	if err := tx.Where("task_id IN ?", taskIDs).Delete(&models.ActivityLog{}).Error; err != nil {
		return err
	}
	if err := tx.Where("task_id IN ?", taskIDs).Delete(&models.Comment{}).Error; err != nil {
		return err
	}
	return tx.Where("id IN ?", taskIDs).Delete(&models.Task{}).Error
}

func deleteProject(tx *gorm.DB, project *models.Project) error {
	var taskIDs []uuid.UUID
	if err := tx.Model(&models.Task{}).Where("project_id = ?", project.ID).Pluck("id", &taskIDs).Error; err != nil {
		return err
	}
	if err := deleteTasks(tx, taskIDs); err != nil {
		return err
	}
	if err := tx.Model(project).Association("Members").Clear(); err != nil {
		return err
	}
	return tx.Delete(project).Error
}
