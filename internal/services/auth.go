package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bk-med/kanban/internal/apperrors"
	"github.com/bk-med/kanban/internal/config"
	"github.com/bk-med/kanban/internal/models"

	"github.com/gofrs/uuid"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	CodeNotAuthenticated = "not_authenticated"
	CodeInvalidToken     = "invalid_token"
	CodeTokenExpired     = "token_expired"
)

var (
	ErrInvalidCredentials = apperrors.Unauthenticated("invalid_credentials", "No active account found with the given credentials")
	ErrTokenExpired       = apperrors.Unauthenticated(CodeTokenExpired, "Access token expired")
	ErrInvalidToken       = apperrors.Unauthenticated(CodeInvalidToken, "Token is invalid")
)

type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// AccessClaims is the payload of an access token.
type AccessClaims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

type AuthService interface {
	LoginUser(ctx context.Context, username, password string) (*models.User, error)
	GenerateToken(ctx context.Context, userID uuid.UUID) (*TokenPair, error)
	RefreshToken(ctx context.Context, refreshToken string) (string, error)
	RevokeToken(ctx context.Context, refreshToken string) error
	ParseAccessToken(token string) (uuid.UUID, error)
}

type AuthServiceImpl struct {
	db  *gorm.DB
	cfg config.AuthConfig
	now func() time.Time
}

func NewAuthService(db *gorm.DB, cfg config.AuthConfig) *AuthServiceImpl {
	return &AuthServiceImpl{db: db, cfg: cfg, now: time.Now}
}

// WithClock replaces the time source; tests use it to age tokens.
func (s *AuthServiceImpl) WithClock(now func() time.Time) *AuthServiceImpl {
	s.now = now
	return s
}

func HashPassword(password string, cost int) (string, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

func VerifyPassword(hashedPassword, plainPassword string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(plainPassword))
	return err == nil
}

func (s *AuthServiceImpl) LoginUser(ctx context.Context, username, password string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("username = ?", username).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !user.IsActive || !VerifyPassword(user.Password, password) {
		return nil, ErrInvalidCredentials
	}

	now := s.now()
	if err := s.db.WithContext(ctx).Model(&user).Update("last_login_at", now).Error; err != nil {
		return nil, fmt.Errorf("failed to record login: %w", err)
	}
	user.LastLoginAt = &now
	return &user, nil
}

func (s *AuthServiceImpl) GenerateToken(ctx context.Context, userID uuid.UUID) (*TokenPair, error) {
	access, err := s.signAccessToken(userID)
	if err != nil {
		return nil, err
	}

	refresh, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	token := models.Token{
		UserID:       userID,
		RefreshToken: refresh,
		ExpiresAt:    s.now().Add(s.cfg.RefreshTokenTTL),
	}
	if err := s.db.WithContext(ctx).Create(&token).Error; err != nil {
		return nil, fmt.Errorf("failed to store refresh token: %w", err)
	}

	return &TokenPair{Access: access, Refresh: refresh.String()}, nil
}

// RefreshToken exchanges a live refresh token for a new access token. The
// refresh token itself is not rotated.
func (s *AuthServiceImpl) RefreshToken(ctx context.Context, refreshToken string) (string, error) {
	id, err := uuid.FromString(refreshToken)
	if err != nil {
		return "", ErrInvalidToken
	}

	var token models.Token
	err = s.db.WithContext(ctx).Where("refresh_token = ?", id).First(&token).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrInvalidToken
	}
	if err != nil {
		return "", err
	}
	if token.IsExpired(s.now()) {
		return "", ErrInvalidToken
	}

	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", token.UserID).Error; err != nil || !user.IsActive {
		return "", ErrInvalidToken
	}

	return s.signAccessToken(user.ID)
}

func (s *AuthServiceImpl) RevokeToken(ctx context.Context, refreshToken string) error {
	id, err := uuid.FromString(refreshToken)
	if err != nil {
		return ErrInvalidToken
	}
	result := s.db.WithContext(ctx).Where("refresh_token = ?", id).Delete(&models.Token{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrInvalidToken
	}
	return nil
}

// ParseAccessToken validates signature, issuer and expiry. Expiry is
// reported as ErrTokenExpired so clients can tell it apart from garbage.
func (s *AuthServiceImpl) ParseAccessToken(tokenString string) (uuid.UUID, error) {
	claims := &AccessClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(s.cfg.JWTSecret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if errors.Is(err, jwt.ErrTokenExpired) {
		return uuid.Nil, ErrTokenExpired
	}
	if err != nil {
		return uuid.Nil, ErrInvalidToken
	}

	userID, err := uuid.FromString(claims.UserID)
	if err != nil {
		return uuid.Nil, ErrInvalidToken
	}
	return userID, nil
}

func (s *AuthServiceImpl) signAccessToken(userID uuid.UUID) (string, error) {
	now := s.now()
	claims := AccessClaims{
		UserID: userID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.cfg.Issuer,
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.AccessTokenTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, nil
}
