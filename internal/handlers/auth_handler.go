package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"digicop-backend/internal/dto"
	"digicop-backend/internal/middleware"
	"digicop-backend/internal/services"
	"digicop-backend/utils/response"
)

type Authenticator interface {
	Login(req *dto.LoginRequest) (*dto.LoginResponse, error)
}

type AuthHandler struct {
	service      Authenticator
	secureCookie bool
	log          *zap.SugaredLogger
}

func NewAuthHandler(service Authenticator, secureCookie bool, log *zap.SugaredLogger) *AuthHandler {
	return &AuthHandler{service: service, secureCookie: secureCookie, log: log}
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req dto.LoginRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<10)).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	token, err := h.service.Login(&req)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			h.log.With("email", req.Email).Warn("admin login rejected")
			response.Error(w, http.StatusUnauthorized, "Invalid email or password")
			return
		}
		h.log.With("err", err).Error("admin login failed")
		response.Error(w, http.StatusInternalServerError, "Failed to login")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.TokenCookie,
		Value:    token.Token,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(services.TokenTTL.Seconds()),
	})

	response.Success(w, token, "Logged in")
}

func (h *AuthHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetUserFromContext(r.Context())
	if claims == nil {
		response.Error(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	response.Success(w, claims, "")
}
