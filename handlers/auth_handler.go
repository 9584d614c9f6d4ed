package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/Dosada05/arena-tournaments/middleware"
	"github.com/Dosada05/arena-tournaments/users"
	"github.com/Dosada05/arena-tournaments/utils"
)

type AuthHandler struct {
	registry        *users.Registry
	jwtSecret       []byte
	modPasswordHash string
}

func NewAuthHandler(registry *users.Registry, jwtSecret string, modPasswordHash string) *AuthHandler {
	return &AuthHandler{
		registry:        registry,
		jwtSecret:       []byte(jwtSecret),
		modPasswordHash: modPasswordHash,
	}
}

// Token resolves a display name to an account and issues a signed token for
// it. Supplying the moderator password upgrades the token's role.
func (h *AuthHandler) Token(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Name        string `json:"name"`
		ModPassword string `json:"mod_password,omitempty"`
	}

	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if input.Name == "" {
		badRequestResponse(w, r, errors.New("name is required"))
		return
	}

	user, err := h.registry.Authenticate(input.Name, clientIP(r))
	if err != nil {
		mapEngineErrorToHTTP(w, r, err)
		return
	}

	role := middleware.RolePlayer
	if input.ModPassword != "" {
		if h.modPasswordHash == "" || !utils.CheckPasswordHash(input.ModPassword, h.modPasswordHash) {
			unauthorizedResponse(w, r, "invalid moderator password")
			return
		}
		role = middleware.RoleMod
	}

	claims := jwt.MapClaims{
		"user_id": user.ID,
		"name":    user.Name,
		"role":    role,
		"exp":     time.Now().Add(24 * time.Hour).Unix(),
		"iat":     time.Now().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(h.jwtSecret)
	if err != nil {
		serverErrorResponse(w, r, fmt.Errorf("failed to sign token: %w", err))
		return
	}

	response := jsonResponse{
		"token": tokenString,
		"user":  user,
	}
	if err := writeJSON(w, http.StatusOK, response, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return forwarded
	}
	return r.RemoteAddr
}
