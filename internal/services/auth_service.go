package services

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt"
	"golang.org/x/crypto/bcrypt"

	"digicop-backend/internal/config"
	"digicop-backend/internal/dto"
)

const (
	RoleAdmin = "admin"
	TokenTTL  = 24 * time.Hour
)

var ErrInvalidCredentials = errors.New("invalid email or password")

// AuthService signs in the single configured site administrator.
type AuthService struct {
	cfg config.AdminConfig
	now func() time.Time
}

func NewAuthService(cfg config.AdminConfig) *AuthService {
	return &AuthService{cfg: cfg, now: time.Now}
}

func (s *AuthService) Login(req *dto.LoginRequest) (*dto.LoginResponse, error) {
	emailMatch := subtle.ConstantTimeCompare(
		[]byte(strings.ToLower(strings.TrimSpace(req.Email))),
		[]byte(strings.ToLower(s.cfg.Email)),
	) == 1

	pwErr := bcrypt.CompareHashAndPassword([]byte(s.cfg.PasswordHash), []byte(req.Password))
	if !emailMatch || pwErr != nil {
		return nil, ErrInvalidCredentials
	}

	expiresAt := s.now().Add(TokenTTL)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   s.cfg.Email,
		"email": s.cfg.Email,
		"role":  RoleAdmin,
		"exp":   expiresAt.Unix(),
	})

	tokenString, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	return &dto.LoginResponse{Token: tokenString, ExpiresAt: expiresAt.Unix()}, nil
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(bytes), nil
}
