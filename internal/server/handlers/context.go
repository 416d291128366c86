package handlers

import (
	"context"

	"github.com/iudanet/affilink/internal/models"
)

// contextKey тип для ключей контекста
type contextKey string

// identityKey ключ для хранения Identity в контексте
const identityKey contextKey = "identity"

// AuthMethod describes how the caller was authenticated
type AuthMethod string

const (
	AuthMethodBearer  AuthMethod = "bearer"
	AuthMethodSession AuthMethod = "session"
)

// Identity is the resolved caller of a request
type Identity struct {
	// User is set for session callers only
	User   *models.User
	Method AuthMethod
	UserID int64
}

// WithIdentity returns a copy of ctx carrying id
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext извлекает Identity из контекста
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityKey).(*Identity)
	return id, ok && id != nil
}
