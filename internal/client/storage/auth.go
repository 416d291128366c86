package storage

import (
	"context"
	"time"
)

// AuthStorage хранит OAuth credentials и пару токенов клиента.
// Реализация привязана к одному серверу: записи разных серверов не пересекаются.
type AuthStorage interface {
	// SaveAuth сохраняет результат login, заменяя прежние credentials и токены
	SaveAuth(ctx context.Context, auth *AuthData) error

	// GetAuth возвращает сохраненные данные или ErrAuthNotFound
	GetAuth(ctx context.Context) (*AuthData, error)

	// RotateTokens заменяет пару токенов после обмена refresh token.
	// Client credentials не меняются. Без предварительного login возвращает ErrAuthNotFound.
	RotateTokens(ctx context.Context, tokens TokenPair) error

	// DeleteAuth удаляет все данные сервера (logout), ErrAuthNotFound если их нет
	DeleteAuth(ctx context.Context) error

	// IsAuthenticated сообщает, есть ли непросроченный access token
	IsAuthenticated(ctx context.Context) (bool, error)
}

// TokenPair пара токенов, выданная /api/auth или /api/token
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	Scope        string `json:"scope"`
	ExpiresAt    int64  `json:"expires_at"` // unix seconds
}

// Expired reports whether the access token is expired at now
func (p TokenPair) Expired(now time.Time) bool {
	return now.Unix() >= p.ExpiresAt
}

// AuthData объединяет client credentials и текущую пару токенов.
// Client secret хранится, чтобы CLI мог обменять refresh token через HTTP Basic без повторного ввода.
type AuthData struct {
	ServerURL    string
	ClientID     string
	ClientSecret string
	TokenPair
}
