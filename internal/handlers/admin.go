package handlers

import (
	"context"
	"net/http"

	"github.com/bk-med/kanban/internal/apperrors"
	"github.com/bk-med/kanban/internal/models"
	"github.com/bk-med/kanban/internal/services"

	"github.com/gin-gonic/gin"
)

// ProjectCatalog lists every project regardless of membership.
type ProjectCatalog interface {
	AllProjects(ctx context.Context) ([]models.Project, error)
}

// TaskCatalog lists every task regardless of project.
type TaskCatalog interface {
	AllTasks(ctx context.Context, filter services.TaskFilter) ([]models.Task, error)
}

// AdminHandler serves the /admin views. Routes are expected to sit behind
// middleware.RequireAdmin; the services still check permissions.
type AdminHandler struct {
	userService services.UserService
	projects    ProjectCatalog
	tasks       TaskCatalog
	taskService services.TaskService
}

func NewAdminHandler(userService services.UserService, projects ProjectCatalog, tasks TaskCatalog, taskService services.TaskService) *AdminHandler {
	return &AdminHandler{
		userService: userService,
		projects:    projects,
		tasks:       tasks,
		taskService: taskService,
	}
}

func (h *AdminHandler) ListUsers(c *gin.Context) {
	users, summary, err := h.userService.ListUsers(c.Request.Context(), currentActor(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, listEnvelope(users, len(users), gin.H{
		"total_users":  summary.Total,
		"active_users": summary.Active,
		"staff_users":  summary.Staff,
	}))
}

func (h *AdminHandler) GetUser(c *gin.Context) {
	id, ok := pathID(c, "id", "User")
	if !ok {
		return
	}
	user, err := h.userService.GetUser(c.Request.Context(), currentActor(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *AdminHandler) CreateUser(c *gin.Context) {
	var input services.AdminUserInput
	if !bindJSON(c, &input) {
		return
	}
	user, err := h.userService.CreateUser(c.Request.Context(), currentActor(c), input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

func (h *AdminHandler) UpdateUser(c *gin.Context) {
	id, ok := pathID(c, "id", "User")
	if !ok {
		return
	}
	var patch services.UserPatch
	if !bindJSON(c, &patch) {
		return
	}
	user, err := h.userService.UpdateUser(c.Request.Context(), currentActor(c), id, patch)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *AdminHandler) DeleteUser(c *gin.Context) {
	id, ok := pathID(c, "id", "User")
	if !ok {
		return
	}
	if err := h.userService.DeleteUser(c.Request.Context(), currentActor(c), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *AdminHandler) ListProjects(c *gin.Context) {
	projects, err := h.projects.AllProjects(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	var totalTasks int64
	for _, p := range projects {
		totalTasks += p.TaskCount
	}
	c.JSON(http.StatusOK, listEnvelope(projects, len(projects), gin.H{
		"total_tasks": totalTasks,
	}))
}

func (h *AdminHandler) ListTasks(c *gin.Context) {
	filter, err := parseTaskFilter(c)
	if err != nil {
		respondError(c, err)
		return
	}
	tasks, err := h.tasks.AllTasks(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	byStatus := make(map[models.Status]int, len(models.Statuses))
	for _, s := range models.Statuses {
		byStatus[s] = 0
	}
	for _, t := range tasks {
		byStatus[t.Status]++
	}
	c.JSON(http.StatusOK, listEnvelope(tasks, len(tasks), gin.H{
		"tasks_by_status": byStatus,
	}))
}

// CreateTask takes the target project from the body instead of the path.
func (h *AdminHandler) CreateTask(c *gin.Context) {
	var input services.TaskInput
	if !bindJSON(c, &input) {
		return
	}
	if input.Project == nil {
		respondError(c, apperrors.Validation(map[string]string{"project": "This field is required."}))
		return
	}
	task, err := h.taskService.CreateTask(c.Request.Context(), currentActor(c), *input.Project, input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, task)
}
