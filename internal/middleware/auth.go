package middleware

import (
	"errors"
	"strings"

	"github.com/bk-med/kanban/internal/apperrors"
	"github.com/bk-med/kanban/internal/models"
	"github.com/bk-med/kanban/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

const (
	actorKey = "actor"
	userKey  = "user"
)

// TokenParser turns a bearer access token into the user it was issued to.
type TokenParser interface {
	ParseAccessToken(token string) (uuid.UUID, error)
}

var errNoCredentials = apperrors.Unauthenticated(services.CodeNotAuthenticated, "Authentication credentials were not provided")

// Authenticate resolves the actor from the bearer token and loads the user
// record. Inactive or deleted users are rejected as an invalid token.
func Authenticate(tokens TokenParser, db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			RespondError(c, errNoCredentials)
			return
		}
		scheme, token, found := strings.Cut(header, " ")
		if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			RespondError(c, services.ErrInvalidToken)
			return
		}

		userID, err := tokens.ParseAccessToken(strings.TrimSpace(token))
		if err != nil {
			RespondError(c, err)
			return
		}

		var user models.User
		err = db.WithContext(c.Request.Context()).First(&user, "id = ?", userID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && !user.IsActive) {
			RespondError(c, services.ErrInvalidToken)
			return
		}
		if err != nil {
			RespondError(c, err)
			return
		}

		c.Set(userKey, &user)
		c.Set(actorKey, models.NewActor(&user))
		c.Next()
	}
}

// RequireAdmin must run after Authenticate.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := ActorFrom(c)
		if !ok {
			RespondError(c, errNoCredentials)
			return
		}
		if !actor.IsAdmin() {
			RespondError(c, apperrors.Forbidden())
			return
		}
		c.Next()
	}
}

func ActorFrom(c *gin.Context) (models.Actor, bool) {
	v, ok := c.Get(actorKey)
	if !ok {
		return models.Actor{}, false
	}
	actor, ok := v.(models.Actor)
	return actor, ok
}

func UserFrom(c *gin.Context) (*models.User, bool) {
	v, ok := c.Get(userKey)
	if !ok {
		return nil, false
	}
	user, ok := v.(*models.User)
	return user, ok
}
