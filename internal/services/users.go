package services

import (
	"context"
	"net/mail"
	"strings"

	"github.com/bk-med/kanban/internal/apperrors"
	"github.com/bk-med/kanban/internal/models"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

type UserPatch struct {
	Username    *string `json:"username"`
	Email       *string `json:"email"`
	FirstName   *string `json:"first_name"`
	LastName    *string `json:"last_name"`
	Password    *string `json:"password"`
	IsActive    *bool   `json:"is_active"`
	IsStaff     *bool   `json:"is_staff"`
	IsSuperuser *bool   `json:"is_superuser"`
}

type AdminUserInput struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	IsActive    *bool  `json:"is_active"`
	IsStaff     bool   `json:"is_staff"`
	IsSuperuser bool   `json:"is_superuser"`
}

type UserSummary struct {
	Total  int64 `json:"total_users"`
	Active int64 `json:"active_users"`
	Staff  int64 `json:"staff_users"`
}

type UserService interface {
	GetUser(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.User, error)
	UpdateUser(ctx context.Context, actor models.Actor, id uuid.UUID, patch UserPatch) (*models.User, error)
	ListUsers(ctx context.Context, actor models.Actor) ([]models.User, *UserSummary, error)
	CreateUser(ctx context.Context, actor models.Actor, input AdminUserInput) (*models.User, error)
	DeleteUser(ctx context.Context, actor models.Actor, id uuid.UUID) error
}

type UserServiceImpl struct {
	db         *gorm.DB
	authz      AuthorizationService
	bcryptCost int
}

func NewUserService(db *gorm.DB, authz AuthorizationService, bcryptCost int) *UserServiceImpl {
	return &UserServiceImpl{db: db, authz: authz, bcryptCost: bcryptCost}
}

func (s *UserServiceImpl) GetUser(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.User, error) {
	if !s.authz.Allowed(actor, UserTarget(&id), models.ActionRead) {
		return nil, apperrors.Forbidden()
	}
	var user models.User
	err := s.db.WithContext(ctx).First(&user, "id = ?", id).Error
	if notFound(err) {
		return nil, missing(actor, "User")
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateUser lets users edit their own profile; only admins may change
// usernames or the active, staff and superuser flags.
func (s *UserServiceImpl) UpdateUser(ctx context.Context, actor models.Actor, id uuid.UUID, patch UserPatch) (*models.User, error) {
	user, err := s.GetUser(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if !s.authz.Allowed(actor, UserTarget(&id), models.ActionUpdate) {
		return nil, apperrors.Forbidden()
	}

	fields := apperrors.FieldErrors{}
	changes := map[string]interface{}{}

	if !actor.IsAdmin() && (patch.Username != nil || patch.IsActive != nil || patch.IsStaff != nil || patch.IsSuperuser != nil) {
		return nil, apperrors.Forbidden()
	}

	if patch.Username != nil {
		username := strings.TrimSpace(*patch.Username)
		if username == "" {
			fields.Add("username", "This field may not be blank.")
		} else if username != user.Username {
			var count int64
			if err := s.db.WithContext(ctx).Model(&models.User{}).Where("username = ?", username).Count(&count).Error; err != nil {
				return nil, err
			}
			if count > 0 {
				fields.Add("username", "A user with that username already exists.")
			}
			changes["username"] = username
		}
	}
	if patch.Email != nil {
		email := strings.TrimSpace(*patch.Email)
		if _, err := mail.ParseAddress(email); email != "" && err != nil {
			fields.Add("email", "Enter a valid email address.")
		}
		changes["email"] = email
	}
	if patch.FirstName != nil {
		changes["first_name"] = strings.TrimSpace(*patch.FirstName)
	}
	if patch.LastName != nil {
		changes["last_name"] = strings.TrimSpace(*patch.LastName)
	}
	if patch.Password != nil {
		if len(*patch.Password) < minPasswordLength {
			fields.Add("password", "This password is too short. It must contain at least 8 characters.")
		} else {
			hashed, err := HashPassword(*patch.Password, s.bcryptCost)
			if err != nil {
				return nil, err
			}
			changes["password"] = hashed
		}
	}
	if patch.IsActive != nil {
		changes["is_active"] = *patch.IsActive
	}
	if patch.IsStaff != nil {
		changes["is_staff"] = *patch.IsStaff
	}
	if patch.IsSuperuser != nil {
		changes["is_superuser"] = *patch.IsSuperuser
	}
	if err := fields.Err(); err != nil {
		return nil, err
	}

	if len(changes) > 0 {
		if err := s.db.WithContext(ctx).Model(&models.User{ID: user.ID}).Updates(changes).Error; err != nil {
			return nil, err
		}
	}

	var updated models.User
	if err := s.db.WithContext(ctx).First(&updated, "id = ?", user.ID).Error; err != nil {
		return nil, err
	}
	return &updated, nil
}

func (s *UserServiceImpl) ListUsers(ctx context.Context, actor models.Actor) ([]models.User, *UserSummary, error) {
	if !s.authz.Allowed(actor, UserTarget(nil), models.ActionList) {
		return nil, nil, apperrors.Forbidden()
	}

	users := []models.User{}
	if err := s.db.WithContext(ctx).Order("created_at DESC").Find(&users).Error; err != nil {
		return nil, nil, err
	}

	summary := &UserSummary{Total: int64(len(users))}
	for i := range users {
		if users[i].IsActive {
			summary.Active++
		}
		if users[i].IsAdmin() {
			summary.Staff++
		}
	}
	return users, summary, nil
}

func (s *UserServiceImpl) CreateUser(ctx context.Context, actor models.Actor, input AdminUserInput) (*models.User, error) {
	if !s.authz.Allowed(actor, UserTarget(nil), models.ActionCreate) {
		return nil, apperrors.Forbidden()
	}

	req := RegistrationRequest{
		Username:        input.Username,
		Email:           input.Email,
		Password:        input.Password,
		PasswordConfirm: input.Password,
		FirstName:       input.FirstName,
		LastName:        input.LastName,
	}
	user, err := NewRegisterService(s.db, s.bcryptCost).RegisterUser(ctx, req)
	if err != nil {
		return nil, err
	}

	flags := map[string]interface{}{
		"is_staff":     input.IsStaff,
		"is_superuser": input.IsSuperuser,
		"is_active":    input.IsActive == nil || *input.IsActive,
	}
	if err := s.db.WithContext(ctx).Model(&models.User{ID: user.ID}).Updates(flags).Error; err != nil {
		return nil, err
	}
	user.IsStaff = input.IsStaff
	user.IsSuperuser = input.IsSuperuser
	user.IsActive = flags["is_active"].(bool)
	return user, nil
}

// DeleteUser removes the user and everything only they can own: their
// projects (cascading), comments and refresh tokens. Assignments and log
// authorship are cleared rather than deleted.
func (s *UserServiceImpl) DeleteUser(ctx context.Context, actor models.Actor, id uuid.UUID) error {
	if !s.authz.Allowed(actor, UserTarget(&id), models.ActionDelete) {
		return apperrors.Forbidden()
	}
	if actor.ID == id {
		return apperrors.Validation(map[string]string{"user": "You cannot delete your own account."})
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		err := tx.First(&user, "id = ?", id).Error
		if notFound(err) {
			return missing(actor, "User")
		}
		if err != nil {
			return err
		}

		var owned []models.Project
		if err := tx.Where("owner_id = ?", id).Find(&owned).Error; err != nil {
			return err
		}
		for i := range owned {
			if err := deleteProject(tx, &owned[i]); err != nil {
				return err
			}
		}

		if err := tx.Model(&models.Task{}).Where("assigned_to_id = ?", id).Update("assigned_to_id", nil).Error; err != nil {
			return err
		}
		if err := tx.Where("author_id = ?", id).Delete(&models.Comment{}).Error; err != nil {
			return err
		}
		if err := tx.Exec("UPDATE activity_logs SET user_id = NULL WHERE user_id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Exec("DELETE FROM project_members WHERE user_id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", id).Delete(&models.Token{}).Error; err != nil {
			return err
		}
		return tx.Delete(&user).Error
	})
}
