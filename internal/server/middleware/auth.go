package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/iudanet/affilink/internal/models"
	"github.com/iudanet/affilink/internal/server/handlers"
	"github.com/iudanet/affilink/internal/server/session"
	"github.com/iudanet/affilink/internal/server/storage"
	"github.com/iudanet/affilink/internal/server/token"
)

// Outcome is the verdict of a single authentication strategy
type Outcome int

const (
	// NotApplicable means the request carries no credentials for the strategy
	NotApplicable Outcome = iota
	// Authenticated means the credentials were valid
	Authenticated
	// Invalid means credentials were presented and rejected
	Invalid
)

// Strategy authenticates a request by one mechanism
type Strategy interface {
	Authenticate(r *http.Request) (*handlers.Identity, Outcome)
}

// TokenValidator validates bearer access tokens
type TokenValidator interface {
	Validate(ctx context.Context, accessToken string) (int64, error)
}

// SessionLookup resolves the session of a request
type SessionLookup interface {
	Lookup(ctx context.Context, r *http.Request) (*session.Session, error)
}

// UserGetter loads users by id
type UserGetter interface {
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
}

// BearerStrategy authenticates `Authorization: Bearer <token>` requests
type BearerStrategy struct {
	Tokens TokenValidator
	Logger *slog.Logger
}

// Authenticate implements Strategy
func (s BearerStrategy) Authenticate(r *http.Request) (*handlers.Identity, Outcome) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return nil, NotApplicable
	}

	// Ожидаем формат: "Bearer <token>", другие схемы нас не касаются
	scheme, tokenString, _ := strings.Cut(authHeader, " ")
	if !strings.EqualFold(scheme, "Bearer") {
		return nil, NotApplicable
	}

	ctx := r.Context()
	ownerID, err := s.Tokens.Validate(ctx, strings.TrimSpace(tokenString))
	if err != nil {
		if !errors.Is(err, token.ErrInvalidToken) {
			s.Logger.ErrorContext(ctx, "Failed to validate access token", "error", err)
		}
		return nil, Invalid
	}

	return &handlers.Identity{
		UserID: ownerID,
		Method: handlers.AuthMethodBearer,
	}, Authenticated
}

// SessionStrategy authenticates requests carrying a session cookie
type SessionStrategy struct {
	Sessions SessionLookup
	Users    UserGetter
	Logger   *slog.Logger
}

// Authenticate implements Strategy
func (s SessionStrategy) Authenticate(r *http.Request) (*handlers.Identity, Outcome) {
	ctx := r.Context()

	sess, err := s.Sessions.Lookup(ctx, r)
	if err != nil {
		if !errors.Is(err, session.ErrNoSession) {
			s.Logger.ErrorContext(ctx, "Failed to look up session", "error", err)
		}
		return nil, NotApplicable
	}

	user, err := s.Users.GetUserByID(ctx, sess.UserID)
	if err != nil {
		// Сессия пользователя, которого больше нет, не даёт личности
		if !errors.Is(err, storage.ErrUserNotFound) {
			s.Logger.ErrorContext(ctx, "Failed to load session user", "user_id", sess.UserID, "error", err)
		}
		return nil, NotApplicable
	}

	return &handlers.Identity{
		UserID: user.ID,
		User:   user,
		Method: handlers.AuthMethodSession,
	}, Authenticated
}

// Authenticate runs strategies in order. The first Invalid wins over any
// later success; otherwise the first Authenticated identity is returned.
func Authenticate(r *http.Request, strategies ...Strategy) (*handlers.Identity, Outcome) {
	for _, s := range strategies {
		switch id, outcome := s.Authenticate(r); outcome {
		case Invalid:
			return nil, Invalid
		case Authenticated:
			return id, Authenticated
		}
	}
	return nil, NotApplicable
}

// RequireAuth создает middleware, пропускающий только аутентифицированные запросы
func RequireAuth(logger *slog.Logger, strategies ...Strategy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, outcome := Authenticate(r, strategies...)
			switch outcome {
			case Invalid:
				logger.WarnContext(r.Context(), "Rejected invalid credentials", "path", r.URL.Path)
				writeError(w, http.StatusUnauthorized, "Invalid or expired token")
				return
			case NotApplicable:
				logger.DebugContext(r.Context(), "Missing credentials", "path", r.URL.Path)
				writeError(w, http.StatusUnauthorized, "Authentication required")
				return
			}

			logger.DebugContext(r.Context(), "User authenticated",
				"user_id", id.UserID,
				"method", id.Method,
			)

			next.ServeHTTP(w, r.WithContext(handlers.WithIdentity(r.Context(), id)))
		})
	}
}

// OptionalAuth создает middleware, который добавляет Identity при наличии,
// но никогда не отклоняет запрос
func OptionalAuth(strategies ...Strategy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if id, outcome := Authenticate(r, strategies...); outcome == Authenticated {
				r = r.WithContext(handlers.WithIdentity(r.Context(), id))
			}
			next.ServeHTTP(w, r)
		})
	}
}
