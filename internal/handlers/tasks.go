package handlers

import (
	"net/http"
	"strings"

	"github.com/bk-med/kanban/internal/apperrors"
	"github.com/bk-med/kanban/internal/models"
	"github.com/bk-med/kanban/internal/services"

	"github.com/gin-gonic/gin"
)

type TaskHandler struct {
	taskService services.TaskService
}

func NewTaskHandler(taskService services.TaskService) *TaskHandler {
	return &TaskHandler{taskService: taskService}
}

// parseTaskFilter reads the list filters, search and ordering from the query
// string. Status and priority are matched case-insensitively.
func parseTaskFilter(c *gin.Context) (services.TaskFilter, error) {
	fields := apperrors.FieldErrors{}
	filter := services.TaskFilter{
		Status:     models.Status(strings.ToUpper(strings.TrimSpace(c.Query("status")))),
		Priority:   models.Priority(strings.ToUpper(strings.TrimSpace(c.Query("priority")))),
		AssignedTo: uuidField(fields, "assigned_to", strings.TrimSpace(c.Query("assigned_to"))),
		Search:     strings.TrimSpace(c.Query("search")),
		Ordering:   strings.TrimSpace(c.Query("ordering")),
	}
	for name, dst := range map[string]**models.Date{
		"due_before": &filter.DueBefore,
		"due_after":  &filter.DueAfter,
	} {
		raw := strings.TrimSpace(c.Query(name))
		if raw == "" {
			continue
		}
		d, err := models.ParseDate(raw)
		if err != nil {
			fields.Add(name, "Enter a valid date.")
			continue
		}
		*dst = &d
	}
	return filter, fields.Err()
}

func (h *TaskHandler) ListTasks(c *gin.Context) {
	projectID, ok := pathID(c, "id", "Project")
	if !ok {
		return
	}
	filter, err := parseTaskFilter(c)
	if err != nil {
		respondError(c, err)
		return
	}
	tasks, err := h.taskService.ListTasks(c.Request.Context(), currentActor(c), projectID, filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tasks)
}

func (h *TaskHandler) CreateTask(c *gin.Context) {
	projectID, ok := pathID(c, "id", "Project")
	if !ok {
		return
	}
	var input services.TaskInput
	if !bindJSON(c, &input) {
		return
	}
	input.Project = nil
	task, err := h.taskService.CreateTask(c.Request.Context(), currentActor(c), projectID, input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, task)
}

func (h *TaskHandler) GetTask(c *gin.Context) {
	id, ok := pathID(c, "id", "Task")
	if !ok {
		return
	}
	task, err := h.taskService.GetTask(c.Request.Context(), currentActor(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

// UpdateTask serves both PUT (replace) and PATCH.
func (h *TaskHandler) UpdateTask(c *gin.Context) {
	id, ok := pathID(c, "id", "Task")
	if !ok {
		return
	}
	var patch services.TaskPatch
	if !bindJSON(c, &patch) {
		return
	}
	replace := c.Request.Method == http.MethodPut
	task, err := h.taskService.UpdateTask(c.Request.Context(), currentActor(c), id, patch, replace)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (h *TaskHandler) DeleteTask(c *gin.Context) {
	id, ok := pathID(c, "id", "Task")
	if !ok {
		return
	}
	if err := h.taskService.DeleteTask(c.Request.Context(), currentActor(c), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
