package services

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"github.com/bk-med/kanban/internal/apperrors"
	"github.com/bk-med/kanban/internal/models"

	"gorm.io/gorm"
)

type RegistrationRequest struct {
	Username        string `json:"username"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"password_confirm"`
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
}

const minPasswordLength = 8

// Validate reports every offending field at once.
func (r *RegistrationRequest) Validate() error {
	fields := apperrors.FieldErrors{}

	r.Username = strings.TrimSpace(r.Username)
	r.Email = strings.TrimSpace(r.Email)

	switch {
	case r.Username == "":
		fields.Add("username", "This field is required.")
	case len(r.Username) > 150:
		fields.Add("username", "Ensure this field has no more than 150 characters.")
	}
	if r.Email == "" {
		fields.Add("email", "This field is required.")
	} else if _, err := mail.ParseAddress(r.Email); err != nil {
		fields.Add("email", "Enter a valid email address.")
	}
	if r.Password == "" {
		fields.Add("password", "This field is required.")
	} else if len(r.Password) < minPasswordLength {
		fields.Add("password", "This password is too short. It must contain at least 8 characters.")
	}
	if r.Password != r.PasswordConfirm {
		fields.Add("password_confirm", "Password fields didn't match.")
	}

	return fields.Err()
}

type RegisterService interface {
	RegisterUser(ctx context.Context, req RegistrationRequest) (*models.User, error)
}

type RegisterServiceImpl struct {
	db         *gorm.DB
	bcryptCost int
}

func NewRegisterService(db *gorm.DB, bcryptCost int) *RegisterServiceImpl {
	return &RegisterServiceImpl{db: db, bcryptCost: bcryptCost}
}

func (s *RegisterServiceImpl) RegisterUser(ctx context.Context, req RegistrationRequest) (*models.User, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx)
	fields := apperrors.FieldErrors{}

	var count int64
	if err := db.Model(&models.User{}).Where("username = ?", req.Username).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		fields.Add("username", "A user with that username already exists.")
	}
	if err := db.Model(&models.User{}).Where("email = ?", req.Email).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		fields.Add("email", "A user with that email already exists.")
	}
	if err := fields.Err(); err != nil {
		return nil, err
	}

	hashed, err := HashPassword(req.Password, s.bcryptCost)
	if err != nil {
		return nil, err
	}

	user := models.User{
		Username:  req.Username,
		Email:     req.Email,
		Password:  hashed,
		FirstName: strings.TrimSpace(req.FirstName),
		LastName:  strings.TrimSpace(req.LastName),
		IsActive:  true,
	}
	if err := db.Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperrors.Validation(map[string]string{"username": "A user with that username already exists."})
		}
		return nil, err
	}

	return &user, nil
}
