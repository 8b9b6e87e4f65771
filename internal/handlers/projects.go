package handlers

import (
	"net/http"

	"github.com/bk-med/kanban/internal/apperrors"
	"github.com/bk-med/kanban/internal/services"

	"github.com/gin-gonic/gin"
)

type ProjectHandler struct {
	projectService services.ProjectService
}

func NewProjectHandler(projectService services.ProjectService) *ProjectHandler {
	return &ProjectHandler{projectService: projectService}
}

type MemberRequest struct {
	UserID string `json:"user_id"`
}

func (h *ProjectHandler) ListProjects(c *gin.Context) {
	projects, err := h.projectService.ListProjects(c.Request.Context(), currentActor(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, projects)
}

func (h *ProjectHandler) CreateProject(c *gin.Context) {
	var input services.ProjectInput
	if !bindJSON(c, &input) {
		return
	}
	project, err := h.projectService.CreateProject(c.Request.Context(), currentActor(c), input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, project)
}

func (h *ProjectHandler) GetProject(c *gin.Context) {
	id, ok := pathID(c, "id", "Project")
	if !ok {
		return
	}
	project, err := h.projectService.GetProject(c.Request.Context(), currentActor(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, project)
}

// UpdateProject serves both PUT (replace) and PATCH.
func (h *ProjectHandler) UpdateProject(c *gin.Context) {
	id, ok := pathID(c, "id", "Project")
	if !ok {
		return
	}
	var patch services.ProjectPatch
	if !bindJSON(c, &patch) {
		return
	}
	replace := c.Request.Method == http.MethodPut
	project, err := h.projectService.UpdateProject(c.Request.Context(), currentActor(c), id, patch, replace)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, project)
}

func (h *ProjectHandler) DeleteProject(c *gin.Context) {
	id, ok := pathID(c, "id", "Project")
	if !ok {
		return
	}
	if err := h.projectService.DeleteProject(c.Request.Context(), currentActor(c), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ProjectHandler) AddMember(c *gin.Context) {
	id, ok := pathID(c, "id", "Project")
	if !ok {
		return
	}
	var req MemberRequest
	if !bindJSON(c, &req) {
		return
	}
	fields := apperrors.FieldErrors{}
	userID := uuidField(fields, "user_id", req.UserID)
	if userID == nil {
		fields.Add("user_id", "This field is required.")
	}
	if err := fields.Err(); err != nil {
		respondError(c, err)
		return
	}

	project, err := h.projectService.AddMember(c.Request.Context(), currentActor(c), id, *userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, project)
}

func (h *ProjectHandler) RemoveMember(c *gin.Context) {
	id, ok := pathID(c, "id", "Project")
	if !ok {
		return
	}
	fields := apperrors.FieldErrors{}
	userID := uuidField(fields, "user_id", c.Param("userID"))
	if err := fields.Err(); err != nil {
		respondError(c, err)
		return
	}

	project, err := h.projectService.RemoveMember(c.Request.Context(), currentActor(c), id, *userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, project)
}

func (h *ProjectHandler) Stats(c *gin.Context) {
	id, ok := pathID(c, "id", "Project")
	if !ok {
		return
	}
	stats, err := h.projectService.Stats(c.Request.Context(), currentActor(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
