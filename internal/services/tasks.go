package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/bk-med/kanban/internal/apperrors"
	"github.com/bk-med/kanban/internal/models"

	"github.com/gofrs/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type TaskInput struct {
	Title        string          `json:"title"`
	Description  string          `json:"description"`
	Status       models.Status   `json:"status"`
	Priority     models.Priority `json:"priority"`
	AssignedToID *uuid.UUID      `json:"assigned_to_id"`
	DueDate      *models.Date    `json:"due_date"`
	// Project is only read by the admin task endpoint.
	Project *uuid.UUID `json:"project"`
}

type TaskPatch struct {
	Title        *string               `json:"title"`
	Description  *string               `json:"description"`
	Status       *models.Status        `json:"status"`
	Priority     *models.Priority      `json:"priority"`
	AssignedToID Optional[uuid.UUID]   `json:"assigned_to_id"`
	DueDate      Optional[models.Date] `json:"due_date"`
	Project      *uuid.UUID            `json:"project"`
}

type TaskFilter struct {
	Status     models.Status
	Priority   models.Priority
	AssignedTo *uuid.UUID
	DueBefore  *models.Date
	DueAfter   *models.Date
	// Search matches every whitespace-separated term against the title or
	// the description, case-insensitively.
	Search string
	// Ordering is a comma-separated list of due_date, priority and
	// created_at, each optionally prefixed with '-' for descending.
	Ordering string
}

// orderColumns maps the sortable fields to SQL. Priority sorts by rank, not
// by name.
var orderColumns = map[string]string{
	"due_date":   "due_date",
	"created_at": "created_at",
	"priority":   "CASE priority WHEN 'LOW' THEN 1 WHEN 'MEDIUM' THEN 2 WHEN 'HIGH' THEN 3 END",
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

func (f TaskFilter) validate() error {
	fields := apperrors.FieldErrors{}
	if f.Status != "" && !f.Status.Valid() {
		fields.Add("status", fmt.Sprintf("Select a valid choice. %s is not one of the available choices.", f.Status))
	}
	if f.Priority != "" && !f.Priority.Valid() {
		fields.Add("priority", fmt.Sprintf("Select a valid choice. %s is not one of the available choices.", f.Priority))
	}
	for _, term := range splitOrdering(f.Ordering) {
		if _, ok := orderColumns[strings.TrimPrefix(term, "-")]; !ok {
			fields.Add("ordering", fmt.Sprintf("Cannot order by %s. Choose from due_date, priority, created_at.", term))
			break
		}
	}
	return fields.Err()
}

func splitOrdering(raw string) []string {
	var terms []string
	for _, term := range strings.Split(raw, ",") {
		if term = strings.TrimSpace(term); term != "" {
			terms = append(terms, term)
		}
	}
	return terms
}

// order applies the requested ordering, then fallback. The filter must have
// passed validate.
func (f TaskFilter) order(q *gorm.DB, fallback string) *gorm.DB {
	for _, term := range splitOrdering(f.Ordering) {
		dir := " ASC"
		if strings.HasPrefix(term, "-") {
			dir = " DESC"
		}
		q = q.Order(orderColumns[strings.TrimPrefix(term, "-")] + dir)
	}
	return q.Order(fallback)
}

func (f TaskFilter) apply(q *gorm.DB) *gorm.DB {
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Priority != "" {
		q = q.Where("priority = ?", f.Priority)
	}
	if f.AssignedTo != nil {
		q = q.Where("assigned_to_id = ?", *f.AssignedTo)
	}
	if f.DueBefore != nil {
		q = q.Where("due_date <= ?", *f.DueBefore)
	}
	if f.DueAfter != nil {
		q = q.Where("due_date >= ?", *f.DueAfter)
	}
	for _, term := range strings.Fields(strings.ToLower(f.Search)) {
		pattern := "%" + likeEscaper.Replace(term) + "%"
		q = q.Where(`(LOWER(title) LIKE ? ESCAPE '\' OR LOWER(description) LIKE ? ESCAPE '\')`, pattern, pattern)
	}
	return q
}

type TaskService interface {
	ListTasks(ctx context.Context, actor models.Actor, projectID uuid.UUID, filter TaskFilter) ([]models.Task, error)
	CreateTask(ctx context.Context, actor models.Actor, projectID uuid.UUID, input TaskInput) (*models.Task, error)
	GetTask(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Task, error)
	UpdateTask(ctx context.Context, actor models.Actor, id uuid.UUID, patch TaskPatch, replace bool) (*models.Task, error)
	DeleteTask(ctx context.Context, actor models.Actor, id uuid.UUID) error
}

type TaskServiceImpl struct {
	db       *gorm.DB
	authz    AuthorizationService
	notifier Notifier
	stats    StatsInvalidator
	logger   logrus.FieldLogger
}

func NewTaskService(db *gorm.DB, authz AuthorizationService, notifier Notifier, logger logrus.FieldLogger) *TaskServiceImpl {
	if notifier == nil {
		notifier = NopNotifier{Logger: logger}
	}
	return &TaskServiceImpl{
		db:       db,
		authz:    authz,
		notifier: notifier,
		stats:    noopInvalidator{},
		logger:   logger,
	}
}

func (s *TaskServiceImpl) WithStatsInvalidator(inv StatsInvalidator) *TaskServiceImpl {
	s.stats = inv
	return s
}

func (s *TaskServiceImpl) ListTasks(ctx context.Context, actor models.Actor, projectID uuid.UUID, filter TaskFilter) ([]models.Task, error) {
	project, err := loadProject(ctx, s.db, projectID)
	if notFound(err) {
		return nil, missing(actor, "Project")
	}
	if err != nil {
		return nil, err
	}
	if !s.authz.Allowed(actor, TaskTarget(project), models.ActionList) {
		return nil, apperrors.Forbidden()
	}
	if err := filter.validate(); err != nil {
		return nil, err
	}

	tasks := []models.Task{}
	query := filter.apply(s.db.WithContext(ctx).Preload("AssignedTo").Where("project_id = ?", project.ID))
	if err := filter.order(query, "created_at").Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

// AllTasks is the unscoped admin listing.
func (s *TaskServiceImpl) AllTasks(ctx context.Context, filter TaskFilter) ([]models.Task, error) {
	if err := filter.validate(); err != nil {
		return nil, err
	}
	tasks := []models.Task{}
	query := filter.apply(s.db.WithContext(ctx).Preload("AssignedTo"))
	if err := filter.order(query, "created_at DESC").Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

func (s *TaskServiceImpl) CreateTask(ctx context.Context, actor models.Actor, projectID uuid.UUID, input TaskInput) (*models.Task, error) {
	project, err := loadProject(ctx, s.db, projectID)
	if notFound(err) {
		if actor.IsAdmin() {
			return nil, apperrors.Validation(map[string]string{"project": "Invalid pk - object does not exist."})
		}
		return nil, apperrors.Forbidden()
	}
	if err != nil {
		return nil, err
	}
	if !s.authz.Allowed(actor, TaskTarget(project), models.ActionCreate) {
		return nil, apperrors.Forbidden()
	}

	fields := apperrors.FieldErrors{}
	input.Title = strings.TrimSpace(input.Title)
	if input.Title == "" {
		fields.Add("title", "This field is required.")
	} else if len(input.Title) > 200 {
		fields.Add("title", "Ensure this field has no more than 200 characters.")
	}
	if input.Status != "" && !input.Status.Valid() {
		fields.Add("status", fmt.Sprintf("\"%s\" is not a valid choice.", input.Status))
	}
	if input.Priority != "" && !input.Priority.Valid() {
		fields.Add("priority", fmt.Sprintf("\"%s\" is not a valid choice.", input.Priority))
	}
	var assignee *models.User
	if input.AssignedToID != nil {
		if assignee, err = userExists(ctx, s.db, *input.AssignedToID); err != nil {
			return nil, err
		}
		if assignee == nil {
			fields.Add("assigned_to_id", "Invalid pk - object does not exist.")
		}
	}
	if err := fields.Err(); err != nil {
		return nil, err
	}

	task := models.Task{
		Title:        input.Title,
		Description:  input.Description,
		ProjectID:    project.ID,
		Status:       input.Status,
		Priority:     input.Priority,
		AssignedToID: input.AssignedToID,
		DueDate:      input.DueDate,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("AssignedTo").Create(&task).Error; err != nil {
			return err
		}
		return writeLogs(tx, task.ID, actor, []string{"created task"})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	s.stats.InvalidateStats(ctx, project.ID)
	if assignee != nil {
		task.AssignedTo = assignee
		s.notify(ctx, NotificationTaskAssigned, &task, actor, "")
	}
	return s.reload(ctx, task.ID)
}

func (s *TaskServiceImpl) GetTask(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Task, error) {
	task, _, err := s.authorized(ctx, actor, id, models.ActionRead)
	if err != nil {
		return nil, err
	}
	return task, nil
}

// UpdateTask applies a partial update. Every changed field produces one
// activity log entry written in the same transaction; fields whose new
// value equals the current one are skipped and produce no entry.
func (s *TaskServiceImpl) UpdateTask(ctx context.Context, actor models.Actor, id uuid.UUID, patch TaskPatch, replace bool) (*models.Task, error) {
	task, _, err := s.authorized(ctx, actor, id, models.ActionUpdate)
	if err != nil {
		return nil, err
	}

	changes, actions, assignee, err := s.diff(ctx, task, patch, replace)
	if err != nil {
		return nil, err
	}
	if len(changes) == 0 {
		return task, nil
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Task{ID: task.ID}).Updates(changes).Error; err != nil {
			return err
		}
		return writeLogs(tx, task.ID, actor, actions)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update task: %w", err)
	}

	s.stats.InvalidateStats(ctx, task.ProjectID)

	updated, err := s.reload(ctx, task.ID)
	if err != nil {
		return nil, err
	}
	if _, ok := changes["assigned_to_id"]; ok && assignee != nil {
		s.notify(ctx, NotificationTaskAssigned, updated, actor, "")
	} else if _, ok := changes["status"]; ok && updated.AssignedTo != nil {
		s.notify(ctx, NotificationTaskStatusChanged, updated, actor, task.Status)
	}
	return updated, nil
}

func (s *TaskServiceImpl) diff(ctx context.Context, task *models.Task, patch TaskPatch, replace bool) (map[string]interface{}, []string, *models.User, error) {
	fields := apperrors.FieldErrors{}
	changes := map[string]interface{}{}
	var actions []string
	var assignee *models.User

	if patch.Project != nil && *patch.Project != task.ProjectID {
		fields.Add("project", "A task cannot be moved to another project.")
	}
	if replace && patch.Title == nil {
		fields.Add("title", "This field is required.")
	}

	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		switch {
		case title == "":
			fields.Add("title", "This field may not be blank.")
		case len(title) > 200:
			fields.Add("title", "Ensure this field has no more than 200 characters.")
		case title != task.Title:
			changes["title"] = title
			actions = append(actions, fmt.Sprintf("title changed to %q", title))
		}
	}
	if patch.Description != nil && *patch.Description != task.Description {
		changes["description"] = *patch.Description
		actions = append(actions, "description updated")
	}
	if patch.Status != nil {
		switch {
		case !patch.Status.Valid():
			fields.Add("status", fmt.Sprintf("\"%s\" is not a valid choice.", *patch.Status))
		case *patch.Status != task.Status:
			changes["status"] = *patch.Status
			actions = append(actions, fmt.Sprintf("status changed to %s", *patch.Status))
		}
	}
	if patch.Priority != nil {
		switch {
		case !patch.Priority.Valid():
			fields.Add("priority", fmt.Sprintf("\"%s\" is not a valid choice.", *patch.Priority))
		case *patch.Priority != task.Priority:
			changes["priority"] = *patch.Priority
			actions = append(actions, fmt.Sprintf("priority changed to %s", *patch.Priority))
		}
	}
	if patch.AssignedToID.Set {
		next := patch.AssignedToID.Value
		switch {
		case next == nil && task.AssignedToID != nil:
			changes["assigned_to_id"] = nil
			previous := "user"
			if task.AssignedTo != nil {
				previous = task.AssignedTo.Username
			}
			actions = append(actions, "unassigned from "+previous)
		case next != nil && (task.AssignedToID == nil || *task.AssignedToID != *next):
			user, err := userExists(ctx, s.db, *next)
			if err != nil {
				return nil, nil, nil, err
			}
			if user == nil {
				fields.Add("assigned_to_id", "Invalid pk - object does not exist.")
				break
			}
			assignee = user
			changes["assigned_to_id"] = user.ID
			actions = append(actions, "assigned to "+user.Username)
		}
	}
	if patch.DueDate.Set {
		next := patch.DueDate.Value
		switch {
		case next == nil && task.DueDate != nil:
			changes["due_date"] = nil
			actions = append(actions, "due date cleared")
		case next != nil && (task.DueDate == nil || !task.DueDate.Equal(*next)):
			changes["due_date"] = *next
			actions = append(actions, "due date set to "+next.String())
		}
	}

	if err := fields.Err(); err != nil {
		return nil, nil, nil, err
	}
	return changes, actions, assignee, nil
}

// DeleteTask removes the task with its comments and activity logs.
func (s *TaskServiceImpl) DeleteTask(ctx context.Context, actor models.Actor, id uuid.UUID) error {
	task, _, err := s.authorized(ctx, actor, id, models.ActionDelete)
	if err != nil {
		return err
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return deleteTasks(tx, []uuid.UUID{task.ID})
	})
	if err != nil {
		return err
	}
	s.stats.InvalidateStats(ctx, task.ProjectID)
	return nil
}

func (s *TaskServiceImpl) authorized(ctx context.Context, actor models.Actor, id uuid.UUID, action models.Action) (*models.Task, *models.Project, error) {
	task, project, err := loadTask(ctx, s.db, id)
	if notFound(err) {
		return nil, nil, missing(actor, "Task")
	}
	if err != nil {
		return nil, nil, err
	}
	if !s.authz.Allowed(actor, TaskTarget(project), action) {
		return nil, nil, apperrors.Forbidden()
	}
	return task, project, nil
}

func (s *TaskServiceImpl) reload(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	var task models.Task
	if err := s.db.WithContext(ctx).Preload("AssignedTo").First(&task, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &task, nil
}

// notify never fails the request: a lost notification is logged.
func (s *TaskServiceImpl) notify(ctx context.Context, kind string, task *models.Task, actor models.Actor, previous models.Status) {
	if task.AssignedTo == nil {
		return
	}
	note := NotificationFor(kind, task)
	note.PreviousStatus = previous
	note.ActorName = actor.Username
	if err := s.notifier.Notify(ctx, note); err != nil && s.logger != nil {
		s.logger.WithError(err).WithField("task_id", task.ID).Warn("Failed to enqueue notification")
	}
}

func writeLogs(tx *gorm.DB, taskID uuid.UUID, actor models.Actor, actions []string) error {
	if len(actions) == 0 {
		return nil
	}
	entries := make([]models.ActivityLog, len(actions))
	for i, action := range actions {
		userID := actor.ID
		entries[i] = models.ActivityLog{TaskID: taskID, UserID: &userID, Action: action}
	}
	if err := tx.Omit("User").Create(&entries).Error; err != nil {
		return fmt.Errorf("failed to write activity log: %w", err)
	}
	return nil
}
