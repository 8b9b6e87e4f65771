package services

import (
	"context"
	"strings"

	"github.com/bk-med/kanban/internal/apperrors"
	"github.com/bk-med/kanban/internal/models"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

type CommentInput struct {
	Content string `json:"content"`
}

type CommentService interface {
	ListComments(ctx context.Context, actor models.Actor, taskID uuid.UUID) ([]models.Comment, error)
	CreateComment(ctx context.Context, actor models.Actor, taskID uuid.UUID, input CommentInput) (*models.Comment, error)
	UpdateComment(ctx context.Context, actor models.Actor, id uuid.UUID, input CommentInput) (*models.Comment, error)
	DeleteComment(ctx context.Context, actor models.Actor, id uuid.UUID) error
	ListActivity(ctx context.Context, actor models.Actor, taskID uuid.UUID) ([]models.ActivityLog, error)
}

type CommentServiceImpl struct {
	db    *gorm.DB
	authz AuthorizationService
}

func NewCommentService(db *gorm.DB, authz AuthorizationService) *CommentServiceImpl {
	return &CommentServiceImpl{db: db, authz: authz}
}

func (s *CommentServiceImpl) ListComments(ctx context.Context, actor models.Actor, taskID uuid.UUID) ([]models.Comment, error) {
	task, err := s.taskFor(ctx, actor, taskID, CommentTarget, models.ActionList)
	if err != nil {
		return nil, err
	}

	comments := []models.Comment{}
	err = s.db.WithContext(ctx).
		Preload("Author").
		Where("task_id = ?", task.ID).
		Order("created_at DESC").
		Find(&comments).Error
	return comments, err
}

// CreateComment always records the actor as author, whatever the payload.
func (s *CommentServiceImpl) CreateComment(ctx context.Context, actor models.Actor, taskID uuid.UUID, input CommentInput) (*models.Comment, error) {
	task, err := s.taskFor(ctx, actor, taskID, CommentTarget, models.ActionCreate)
	if err != nil {
		return nil, err
	}

	content := strings.TrimSpace(input.Content)
	if content == "" {
		return nil, apperrors.Validation(map[string]string{"content": "This field is required."})
	}

	comment := models.Comment{TaskID: task.ID, AuthorID: actor.ID, Content: content}
	if err := s.db.WithContext(ctx).Omit("Author").Create(&comment).Error; err != nil {
		return nil, err
	}
	return s.reload(ctx, comment.ID)
}

func (s *CommentServiceImpl) UpdateComment(ctx context.Context, actor models.Actor, id uuid.UUID, input CommentInput) (*models.Comment, error) {
	comment, err := s.authorized(ctx, actor, id, models.ActionUpdate)
	if err != nil {
		return nil, err
	}

	content := strings.TrimSpace(input.Content)
	if content == "" {
		return nil, apperrors.Validation(map[string]string{"content": "This field may not be blank."})
	}
	if content != comment.Content {
		if err := s.db.WithContext(ctx).Model(&models.Comment{ID: comment.ID}).Update("content", content).Error; err != nil {
			return nil, err
		}
	}
	return s.reload(ctx, comment.ID)
}

func (s *CommentServiceImpl) DeleteComment(ctx context.Context, actor models.Actor, id uuid.UUID) error {
	comment, err := s.authorized(ctx, actor, id, models.ActionDelete)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Delete(&models.Comment{}, "id = ?", comment.ID).Error
}

// ListActivity returns the task's log, newest first.
func (s *CommentServiceImpl) ListActivity(ctx context.Context, actor models.Actor, taskID uuid.UUID) ([]models.ActivityLog, error) {
	task, err := s.taskFor(ctx, actor, taskID, func(p *models.Project, _ *models.Comment) Target {
		return ActivityLogTarget(p)
	}, models.ActionList)
	if err != nil {
		return nil, err
	}

	logs := []models.ActivityLog{}
	err = s.db.WithContext(ctx).
		Preload("User").
		Where("task_id = ?", task.ID).
		Order("created_at DESC").
		Find(&logs).Error
	return logs, err
}

func (s *CommentServiceImpl) taskFor(ctx context.Context, actor models.Actor, taskID uuid.UUID, target func(*models.Project, *models.Comment) Target, action models.Action) (*models.Task, error) {
	task, project, err := loadTask(ctx, s.db, taskID)
	if notFound(err) {
		return nil, missing(actor, "Task")
	}
	if err != nil {
		return nil, err
	}
	if !s.authz.Allowed(actor, target(project, nil), action) {
		return nil, apperrors.Forbidden()
	}
	return task, nil
}

func (s *CommentServiceImpl) authorized(ctx context.Context, actor models.Actor, id uuid.UUID, action models.Action) (*models.Comment, error) {
	var comment models.Comment
	err := s.db.WithContext(ctx).First(&comment, "id = ?", id).Error
	if notFound(err) {
		return nil, missing(actor, "Comment")
	}
	if err != nil {
		return nil, err
	}

	_, project, err := loadTask(ctx, s.db, comment.TaskID)
	if err != nil {
		return nil, err
	}
	if !s.authz.Allowed(actor, CommentTarget(project, &comment), action) {
		return nil, apperrors.Forbidden()
	}
	return &comment, nil
}

func (s *CommentServiceImpl) reload(ctx context.Context, id uuid.UUID) (*models.Comment, error) {
	var comment models.Comment
	if err := s.db.WithContext(ctx).Preload("Author").First(&comment, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &comment, nil
}
