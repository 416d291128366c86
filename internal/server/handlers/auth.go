package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/iudanet/affilink/internal/crypto"
	"github.com/iudanet/affilink/internal/models"
	"github.com/iudanet/affilink/internal/server/session"
	"github.com/iudanet/affilink/internal/server/storage"
	"github.com/iudanet/affilink/internal/validation"
	"github.com/iudanet/affilink/pkg/api"
)

// SessionManager управляет cookie-сессиями
type SessionManager interface {
	Create(ctx context.Context, w http.ResponseWriter, userID int64) (*session.Session, error)
	Destroy(ctx context.Context, w http.ResponseWriter, r *http.Request) error
}

// AuthHandler обрабатывает регистрацию, вход и выход пользователей
type AuthHandler struct {
	responder
	userStorage storage.UserStorage
	sessions    SessionManager
}

// NewAuthHandler создает новый handler для авторизации
func NewAuthHandler(logger *slog.Logger, userStorage storage.UserStorage, sessions SessionManager) *AuthHandler {
	return &AuthHandler{
		responder:   responder{logger: logger},
		userStorage: userStorage,
		sessions:    sessions,
	}
}

// Register обрабатывает POST /api/register
// Регистрация нового пользователя, после которой он сразу считается вошедшим
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, ok := h.decodeCredentials(w, r)
	if !ok {
		return
	}

	if err := validation.ValidatePassword(req.Password); err != nil {
		h.logger.WarnContext(ctx, "invalid password", slog.String("username", req.Username))
		h.sendError(w, "Invalid input: "+err.Error(), http.StatusBadRequest)
		return
	}

	hash, err := crypto.HashPassword(req.Password)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to hash password", slog.Any("error", err))
		h.sendError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	user := &models.User{
		Username:     req.Username,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}

	if err := h.userStorage.CreateUser(ctx, user); err != nil {
		if errors.Is(err, storage.ErrUserAlreadyExists) {
			h.logger.WarnContext(ctx, "user already exists", slog.String("username", req.Username))
			h.sendError(w, "Username already exists", http.StatusBadRequest)
			return
		}
		h.logger.ErrorContext(ctx, "failed to create user", slog.Any("error", err))
		h.sendError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	if _, err := h.sessions.Create(ctx, w, user.ID); err != nil {
		h.logger.ErrorContext(ctx, "failed to create session", slog.Any("error", err))
		h.sendError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	h.logger.InfoContext(ctx, "user registered successfully",
		slog.String("username", user.Username),
		slog.Int64("user_id", user.ID))

	h.sendJSON(w, api.UserResponse{
		Message: "Registration successful",
		User:    user,
	}, http.StatusOK)
}

// Login обрабатывает POST /api/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, ok := h.decodeCredentials(w, r)
	if !ok {
		return
	}

	user, err := h.userStorage.GetUserByUsername(ctx, req.Username)
	if err != nil && !errors.Is(err, storage.ErrUserNotFound) {
		h.logger.ErrorContext(ctx, "failed to get user", slog.Any("error", err))
		h.sendError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	// Одинаковый ответ для неизвестного пользователя и неверного пароля
	if user == nil || !crypto.VerifyPassword(req.Password, user.PasswordHash) {
		h.logger.WarnContext(ctx, "login failed", slog.String("username", req.Username))
		h.sendError(w, "Incorrect username or password", http.StatusBadRequest)
		return
	}

	if _, err := h.sessions.Create(ctx, w, user.ID); err != nil {
		h.logger.ErrorContext(ctx, "failed to create session", slog.Any("error", err))
		h.sendError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	h.logger.InfoContext(ctx, "user logged in successfully",
		slog.String("username", user.Username),
		slog.Int64("user_id", user.ID))

	h.sendJSON(w, api.UserResponse{
		Message: "Login successful",
		User:    user,
	}, http.StatusOK)
}

// Logout обрабатывает POST /api/logout
// Запрос без сессии тоже считается успешным выходом
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.sessions.Destroy(ctx, w, r); err != nil {
		h.logger.ErrorContext(ctx, "failed to destroy session", slog.Any("error", err))
		h.sendError(w, "Logout failed", http.StatusInternalServerError)
		return
	}

	if id, ok := IdentityFromContext(ctx); ok {
		h.logger.InfoContext(ctx, "user logged out", slog.Int64("user_id", id.UserID))
	}

	h.sendJSON(w, api.MessageResponse{Message: "Logout successful"}, http.StatusOK)
}

// User обрабатывает GET /api/user
// Bearer клиент получает только id владельца токена, сессия - полную запись пользователя
func (h *AuthHandler) User(w http.ResponseWriter, r *http.Request) {
	id, ok := IdentityFromContext(r.Context())
	if !ok {
		h.sendError(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	if id.Method == AuthMethodSession && id.User != nil {
		h.sendJSON(w, id.User, http.StatusOK)
		return
	}

	h.sendJSON(w, api.IdentityResponse{ID: id.UserID}, http.StatusOK)
}

// decodeCredentials парсит и валидирует тело запроса с логином и паролем
func (h *AuthHandler) decodeCredentials(w http.ResponseWriter, r *http.Request) (*api.CredentialsRequest, bool) {
	ctx := r.Context()

	var req api.CredentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.logger.WarnContext(ctx, "failed to decode credentials", slog.Any("error", err))
		h.sendError(w, "invalid request body", http.StatusBadRequest)
		return nil, false
	}

	if err := validation.ValidateUsername(req.Username); err != nil {
		h.logger.WarnContext(ctx, "invalid username", slog.String("username", req.Username), slog.Any("error", err))
		h.sendError(w, "Invalid input: "+err.Error(), http.StatusBadRequest)
		return nil, false
	}

	if req.Password == "" {
		h.sendError(w, "Invalid input: password is required", http.StatusBadRequest)
		return nil, false
	}

	return &req, true
}
