// Package http serves the document store API: account sign-up and login,
// collection reads and writes, and live collection subscriptions.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/atinyakov/GophSpend/internal/models"
	"github.com/atinyakov/GophSpend/internal/service"
)

// AuthService defines the authentication operations required by the HTTP
// handlers.
type AuthService interface {
	Register(ctx context.Context, email, password string) (*models.Session, error)
	Login(ctx context.Context, email, password string) (*models.Session, error)
}

// AuthHandler handles HTTP requests for account registration and login.
type AuthHandler struct {
	AuthService AuthService
	Log         *zap.Logger
}

// CredentialsRequest is the JSON body of register and login.
type CredentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register creates an account and responds 201 with its first session.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, h.AuthService.Register, http.StatusCreated)
}

// Login responds with a new session for valid credentials.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, h.AuthService.Login, http.StatusOK)
}

func (h *AuthHandler) handle(
	w http.ResponseWriter,
	r *http.Request,
	call func(ctx context.Context, email, password string) (*models.Session, error),
	status int,
) {
	var req CredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	session, err := call(r.Context(), req.Email, req.Password)
	switch {
	case err == nil:
		writeJSON(w, status, session)
	case errors.Is(err, service.ErrInvalidInput):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, service.ErrAccountExists):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, service.ErrInvalidCredentials):
		http.Error(w, err.Error(), http.StatusUnauthorized)
	default:
		logger(h.Log).Error("auth request failed", zap.String("path", r.URL.Path), zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func logger(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
