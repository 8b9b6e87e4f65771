package handlers

import (
	"errors"
	"io"

	"github.com/bk-med/kanban/internal/apperrors"
	"github.com/bk-med/kanban/internal/middleware"
	"github.com/bk-med/kanban/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid"
)

func respondError(c *gin.Context, err error) {
	middleware.RespondError(c, err)
}

func currentActor(c *gin.Context) models.Actor {
	actor, _ := middleware.ActorFrom(c)
	return actor
}

// pathID parses a UUID path parameter. A malformed id cannot name anything,
// so it is answered like a missing entity: 404 for admins, 403 otherwise.
func pathID(c *gin.Context, param, what string) (uuid.UUID, bool) {
	id, err := uuid.FromString(c.Param(param))
	if err == nil {
		return id, true
	}
	if currentActor(c).IsAdmin() {
		respondError(c, apperrors.NotFound(what+" not found"))
	} else {
		respondError(c, apperrors.Forbidden())
	}
	return uuid.Nil, false
}

// bindJSON decodes the request body into v. An empty body leaves v untouched.
func bindJSON(c *gin.Context, v interface{}) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		if errors.Is(err, io.EOF) {
			return true
		}
		respondError(c, apperrors.Validation(map[string]string{"non_field_errors": "Malformed JSON body"}))
		return false
	}
	return true
}

// uuidField parses an optional UUID from a request field, recording a field
// error when it is malformed.
func uuidField(fields apperrors.FieldErrors, name, raw string) *uuid.UUID {
	if raw == "" {
		return nil
	}
	id, err := uuid.FromString(raw)
	if err != nil {
		fields.Add(name, "Must be a valid UUID.")
		return nil
	}
	return &id
}

// listEnvelope is the admin list shape: results plus count, merged with any
// aggregate figures.
func listEnvelope(results interface{}, count int, extra gin.H) gin.H {
	body := gin.H{"results": results, "count": count}
	for k, v := range extra {
		body[k] = v
	}
	return body
}
