package services

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/bk-med/kanban/internal/apperrors"
	"github.com/bk-med/kanban/internal/models"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

type ProjectInput struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	OwnerID     *uuid.UUID `json:"owner_id"`
}

type ProjectPatch struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

type TaskDigest struct {
	ID         uuid.UUID    `json:"id"`
	Title      string       `json:"title"`
	DueDate    *models.Date `json:"due_date"`
	AssignedTo string       `json:"assigned_to_username,omitempty"`
}

type MemberRank struct {
	UserID         uuid.UUID `json:"user_id"`
	Username       string    `json:"username"`
	CompletedTasks int64     `json:"completed_tasks"`
}

type ProjectStats struct {
	ProjectID     uuid.UUID               `json:"project_id"`
	TotalTasks    int64                   `json:"total_tasks"`
	TasksByStatus map[models.Status]int64 `json:"tasks_by_status"`
	DueSoon       []TaskDigest            `json:"due_soon_tasks"`
	Overdue       []TaskDigest            `json:"overdue_tasks"`
	MemberRanking []MemberRank            `json:"member_ranking"`
}

// dueSoonWindow is how far ahead an open task counts as due soon.
const dueSoonWindow = 7

type ProjectService interface {
	ListProjects(ctx context.Context, actor models.Actor) ([]models.Project, error)
	CreateProject(ctx context.Context, actor models.Actor, input ProjectInput) (*models.Project, error)
	GetProject(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Project, error)
	UpdateProject(ctx context.Context, actor models.Actor, id uuid.UUID, patch ProjectPatch, replace bool) (*models.Project, error)
	DeleteProject(ctx context.Context, actor models.Actor, id uuid.UUID) error
	AddMember(ctx context.Context, actor models.Actor, id, userID uuid.UUID) (*models.Project, error)
	RemoveMember(ctx context.Context, actor models.Actor, id, userID uuid.UUID) (*models.Project, error)
	Stats(ctx context.Context, actor models.Actor, id uuid.UUID) (*ProjectStats, error)
}

type ProjectServiceImpl struct {
	db    *gorm.DB
	authz AuthorizationService
	now   func() time.Time
}

func NewProjectService(db *gorm.DB, authz AuthorizationService) *ProjectServiceImpl {
	return &ProjectServiceImpl{db: db, authz: authz, now: time.Now}
}

func (s *ProjectServiceImpl) WithClock(now func() time.Time) *ProjectServiceImpl {
	s.now = now
	return s
}

func (s *ProjectServiceImpl) ListProjects(ctx context.Context, actor models.Actor) ([]models.Project, error) {
	if !s.authz.Allowed(actor, ProjectTarget(nil), models.ActionList) {
		return nil, apperrors.Forbidden()
	}

	query := s.db.WithContext(ctx).Preload("Owner").Preload("Members").Order("created_at DESC")
	if !actor.IsAdmin() {
		memberOf := s.db.Table("project_members").Select("project_id").Where("user_id = ?", actor.ID)
		query = query.Where("owner_id = ? OR id IN (?)", actor.ID, memberOf)
	}

	projects := []models.Project{}
	if err := query.Find(&projects).Error; err != nil {
		return nil, err
	}
	if err := s.fillCounts(ctx, projects); err != nil {
		return nil, err
	}
	return projects, nil
}

// AllProjects is the unscoped admin listing.
func (s *ProjectServiceImpl) AllProjects(ctx context.Context) ([]models.Project, error) {
	projects := []models.Project{}
	if err := s.db.WithContext(ctx).Preload("Owner").Preload("Members").Order("created_at DESC").Find(&projects).Error; err != nil {
		return nil, err
	}
	if err := s.fillCounts(ctx, projects); err != nil {
		return nil, err
	}
	return projects, nil
}

func (s *ProjectServiceImpl) CreateProject(ctx context.Context, actor models.Actor, input ProjectInput) (*models.Project, error) {
	if !s.authz.Allowed(actor, ProjectTarget(nil), models.ActionCreate) {
		return nil, apperrors.Forbidden()
	}

	fields := apperrors.FieldErrors{}
	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		fields.Add("name", "This field is required.")
	} else if len(input.Name) > 200 {
		fields.Add("name", "Ensure this field has no more than 200 characters.")
	}

	ownerID := actor.ID
	// Only admins may create a project on behalf of someone else.
	if input.OwnerID != nil && actor.IsAdmin() {
		ownerID = *input.OwnerID
	}
	owner, err := userExists(ctx, s.db, ownerID)
	if err != nil {
		return nil, err
	}
	if owner == nil {
		fields.Add("owner_id", "Invalid pk - object does not exist.")
	}
	if err := fields.Err(); err != nil {
		return nil, err
	}

	project := models.Project{
		Name:        input.Name,
		Description: input.Description,
		OwnerID:     owner.ID,
		Members:     []models.User{*owner},
	}
	if err := s.db.WithContext(ctx).Omit("Owner", "Members.*").Create(&project).Error; err != nil {
		return nil, err
	}

	return s.reload(ctx, project.ID)
}

func (s *ProjectServiceImpl) GetProject(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Project, error) {
	project, err := s.authorized(ctx, actor, id, models.ActionRead)
	if err != nil {
		return nil, err
	}
	projects := []models.Project{*project}
	if err := s.fillCounts(ctx, projects); err != nil {
		return nil, err
	}
	return &projects[0], nil
}

func (s *ProjectServiceImpl) UpdateProject(ctx context.Context, actor models.Actor, id uuid.UUID, patch ProjectPatch, replace bool) (*models.Project, error) {
	project, err := s.authorized(ctx, actor, id, models.ActionUpdate)
	if err != nil {
		return nil, err
	}

	fields := apperrors.FieldErrors{}
	if replace && patch.Name == nil {
		fields.Add("name", "This field is required.")
	}
	changes := map[string]interface{}{}
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			fields.Add("name", "This field may not be blank.")
		} else if name != project.Name {
			changes["name"] = name
		}
	}
	if patch.Description != nil && *patch.Description != project.Description {
		changes["description"] = *patch.Description
	}
	if err := fields.Err(); err != nil {
		return nil, err
	}

	if len(changes) > 0 {
		if err := s.db.WithContext(ctx).Model(project).Updates(changes).Error; err != nil {
			return nil, err
		}
	}
	return s.reload(ctx, project.ID)
}

// DeleteProject removes the project with its tasks, their comments and logs,
// and its membership rows in one transaction.
func (s *ProjectServiceImpl) DeleteProject(ctx context.Context, actor models.Actor, id uuid.UUID) error {
	project, err := s.authorized(ctx, actor, id, models.ActionDelete)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return deleteProject(tx, project)
	})
}

func (s *ProjectServiceImpl) AddMember(ctx context.Context, actor models.Actor, id, userID uuid.UUID) (*models.Project, error) {
	project, err := s.authorized(ctx, actor, id, models.ActionManageMembers)
	if err != nil {
		return nil, err
	}

	user, err := userExists(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperrors.Validation(map[string]string{"user_id": "User not found."})
	}
	if project.HasMember(user.ID) {
		return nil, apperrors.Validation(map[string]string{"user_id": "User is already a member of this project."})
	}

	if err := s.db.WithContext(ctx).Model(project).Association("Members").Append(user); err != nil {
		return nil, err
	}
	return s.reload(ctx, project.ID)
}

func (s *ProjectServiceImpl) RemoveMember(ctx context.Context, actor models.Actor, id, userID uuid.UUID) (*models.Project, error) {
	project, err := s.authorized(ctx, actor, id, models.ActionManageMembers)
	if err != nil {
		return nil, err
	}

	if project.IsOwner(userID) {
		return nil, apperrors.Validation(map[string]string{"user_id": "The project owner cannot be removed."})
	}
	if !project.HasMember(userID) {
		return nil, apperrors.Validation(map[string]string{"user_id": "User is not a member of this project."})
	}

	if err := s.db.WithContext(ctx).Model(project).Association("Members").Delete(&models.User{ID: userID}); err != nil {
		return nil, err
	}
	return s.reload(ctx, project.ID)
}

func (s *ProjectServiceImpl) Stats(ctx context.Context, actor models.Actor, id uuid.UUID) (*ProjectStats, error) {
	project, err := s.authorized(ctx, actor, id, models.ActionRead)
	if err != nil {
		return nil, err
	}

	return s.computeStats(ctx, project.ID, models.DateOf(s.now().UTC()))
}

func (s *ProjectServiceImpl) computeStats(ctx context.Context, projectID uuid.UUID, today models.Date) (*ProjectStats, error) {
	var tasks []models.Task
	if err := s.db.WithContext(ctx).Preload("AssignedTo").Where("project_id = ?", projectID).Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tallyStats(projectID, tasks, today), nil
}

func tallyStats(projectID uuid.UUID, tasks []models.Task, today models.Date) *ProjectStats {
	stats := &ProjectStats{
		ProjectID:     projectID,
		TotalTasks:    int64(len(tasks)),
		TasksByStatus: map[models.Status]int64{},
		DueSoon:       []TaskDigest{},
		Overdue:       []TaskDigest{},
		MemberRanking: []MemberRank{},
	}
	horizon := today.AddDays(dueSoonWindow)
	completed := map[uuid.UUID]*MemberRank{}

	for i := range tasks {
		task := &tasks[i]
		stats.TasksByStatus[task.Status]++

		if task.Status == models.StatusDone && task.AssignedTo != nil {
			rank, ok := completed[task.AssignedTo.ID]
			if !ok {
				rank = &MemberRank{UserID: task.AssignedTo.ID, Username: task.AssignedTo.Username}
				completed[task.AssignedTo.ID] = rank
			}
			rank.CompletedTasks++
		}

		if !task.IsOpen() || task.DueDate == nil {
			continue
		}
		digest := TaskDigest{ID: task.ID, Title: task.Title, DueDate: task.DueDate}
		if task.AssignedTo != nil {
			digest.AssignedTo = task.AssignedTo.Username
		}
		switch {
		case task.DueDate.Before(today):
			stats.Overdue = append(stats.Overdue, digest)
		case !task.DueDate.After(horizon):
			stats.DueSoon = append(stats.DueSoon, digest)
		}
	}

	for _, rank := range completed {
		stats.MemberRanking = append(stats.MemberRanking, *rank)
	}
	sort.Slice(stats.MemberRanking, func(i, j int) bool {
		a, b := stats.MemberRanking[i], stats.MemberRanking[j]
		if a.CompletedTasks != b.CompletedTasks {
			return a.CompletedTasks > b.CompletedTasks
		}
		return a.Username < b.Username
	})
	return stats
}

// authorized loads the project and checks action against it.
func (s *ProjectServiceImpl) authorized(ctx context.Context, actor models.Actor, id uuid.UUID, action models.Action) (*models.Project, error) {
	project, err := loadProject(ctx, s.db, id)
	if notFound(err) {
		return nil, missing(actor, "Project")
	}
	if err != nil {
		return nil, err
	}
	if !s.authz.Allowed(actor, ProjectTarget(project), action) {
		return nil, apperrors.Forbidden()
	}
	return project, nil
}

func (s *ProjectServiceImpl) reload(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	project, err := loadProject(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	projects := []models.Project{*project}
	if err := s.fillCounts(ctx, projects); err != nil {
		return nil, err
	}
	return &projects[0], nil
}

type projectCount struct {
	ProjectID uuid.UUID
	N         int64
}

func (s *ProjectServiceImpl) fillCounts(ctx context.Context, projects []models.Project) error {
	if len(projects) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, len(projects))
	for i := range projects {
		ids[i] = projects[i].ID
	}

	var taskCounts, memberCounts []projectCount
	if err := s.db.WithContext(ctx).Model(&models.Task{}).
		Select("project_id, COUNT(*) AS n").
		Where("project_id IN ?", ids).
		Group("project_id").
		Scan(&taskCounts).Error; err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Table("project_members").
		Select("project_id, COUNT(*) AS n").
		Where("project_id IN ?", ids).
		Group("project_id").
		Scan(&memberCounts).Error; err != nil {
		return err
	}

	tasks := map[uuid.UUID]int64{}
	for _, c := range taskCounts {
		tasks[c.ProjectID] = c.N
	}
	members := map[uuid.UUID]int64{}
	for _, c := range memberCounts {
		members[c.ProjectID] = c.N
	}
	for i := range projects {
		projects[i].TaskCount = tasks[projects[i].ID]
		projects[i].MemberCount = members[projects[i].ID]
	}
	return nil
}
