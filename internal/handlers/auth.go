package handlers

import (
	"net/http"
	"strings"

	"github.com/bk-med/kanban/internal/apperrors"
	"github.com/bk-med/kanban/internal/middleware"
	"github.com/bk-med/kanban/internal/services"

	"github.com/gin-gonic/gin"
)

type AuthHandler struct {
	authService     services.AuthService
	registerService services.RegisterService
	userService     services.UserService
}

func NewAuthHandler(authService services.AuthService, registerService services.RegisterService, userService services.UserService) *AuthHandler {
	return &AuthHandler{
		authService:     authService,
		registerService: registerService,
		userService:     userService,
	}
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type RefreshRequest struct {
	Refresh string `json:"refresh"`
}

func (r RefreshRequest) validate() error {
	fields := apperrors.FieldErrors{}
	if strings.TrimSpace(r.Refresh) == "" {
		fields.Add("refresh", "This field is required.")
	}
	return fields.Err()
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req services.RegistrationRequest
	if !bindJSON(c, &req) {
		return
	}
	user, err := h.registerService.RegisterUser(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if !bindJSON(c, &req) {
		return
	}
	fields := apperrors.FieldErrors{}
	if strings.TrimSpace(req.Username) == "" {
		fields.Add("username", "This field is required.")
	}
	if req.Password == "" {
		fields.Add("password", "This field is required.")
	}
	if err := fields.Err(); err != nil {
		respondError(c, err)
		return
	}

	user, err := h.authService.LoginUser(c.Request.Context(), strings.TrimSpace(req.Username), req.Password)
	if err != nil {
		respondError(c, err)
		return
	}
	pair, err := h.authService.GenerateToken(c.Request.Context(), user.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, pair)
}

func (h *AuthHandler) Refresh(c *gin.Context) {
	var req RefreshRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := req.validate(); err != nil {
		respondError(c, err)
		return
	}
	access, err := h.authService.RefreshToken(c.Request.Context(), strings.TrimSpace(req.Refresh))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"access": access})
}

// Logout revokes the refresh token. Access tokens stay valid until they
// expire.
func (h *AuthHandler) Logout(c *gin.Context) {
	var req RefreshRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := req.validate(); err != nil {
		respondError(c, err)
		return
	}
	if err := h.authService.RevokeToken(c.Request.Context(), strings.TrimSpace(req.Refresh)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"detail": "Successfully logged out."})
}

func (h *AuthHandler) Me(c *gin.Context) {
	user, ok := middleware.UserFrom(c)
	if !ok {
		respondError(c, services.ErrInvalidToken)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *AuthHandler) UpdateMe(c *gin.Context) {
	var patch services.UserPatch
	if !bindJSON(c, &patch) {
		return
	}
	actor := currentActor(c)
	user, err := h.userService.UpdateUser(c.Request.Context(), actor, actor.ID, patch)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}
