package handlers

import (
	"net/http"

	"github.com/bk-med/kanban/internal/services"

	"github.com/gin-gonic/gin"
)

type CommentHandler struct {
	commentService services.CommentService
}

func NewCommentHandler(commentService services.CommentService) *CommentHandler {
	return &CommentHandler{commentService: commentService}
}

func (h *CommentHandler) ListComments(c *gin.Context) {
	taskID, ok := pathID(c, "id", "Task")
	if !ok {
		return
	}
	comments, err := h.commentService.ListComments(c.Request.Context(), currentActor(c), taskID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, comments)
}

func (h *CommentHandler) CreateComment(c *gin.Context) {
	taskID, ok := pathID(c, "id", "Task")
	if !ok {
		return
	}
	var input services.CommentInput
	if !bindJSON(c, &input) {
		return
	}
	comment, err := h.commentService.CreateComment(c.Request.Context(), currentActor(c), taskID, input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, comment)
}

func (h *CommentHandler) UpdateComment(c *gin.Context) {
	id, ok := pathID(c, "id", "Comment")
	if !ok {
		return
	}
	var input services.CommentInput
	if !bindJSON(c, &input) {
		return
	}
	comment, err := h.commentService.UpdateComment(c.Request.Context(), currentActor(c), id, input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, comment)
}

func (h *CommentHandler) DeleteComment(c *gin.Context) {
	id, ok := pathID(c, "id", "Comment")
	if !ok {
		return
	}
	if err := h.commentService.DeleteComment(c.Request.Context(), currentActor(c), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *CommentHandler) ListActivity(c *gin.Context) {
	taskID, ok := pathID(c, "id", "Task")
	if !ok {
		return
	}
	logs, err := h.commentService.ListActivity(c.Request.Context(), currentActor(c), taskID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, logs)
}
