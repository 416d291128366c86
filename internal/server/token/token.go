// Package token issues and validates opaque bearer tokens for programmatic
// callers authenticated with client credentials.
package token

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/iudanet/affilink/internal/crypto"
	"github.com/iudanet/affilink/internal/models"
	"github.com/iudanet/affilink/internal/server/kv"
	"github.com/iudanet/affilink/internal/server/storage"
)

const (
	// TokenType is the token_type reported to clients
	TokenType = "Bearer"
	// DefaultScope is the only scope granted
	DefaultScope = "rewrite"

	keyPrefix = "token:"
)

var (
	// ErrInvalidToken is returned for unknown or expired access tokens
	ErrInvalidToken = errors.New("invalid or expired token")
	// ErrInvalidRefreshToken is returned when a refresh token cannot be redeemed
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
)

// Config configures an Issuer
type Config struct {
	Scope string
	// SystemAccountID is the owner recorded for every access token
	SystemAccountID int64
	AccessTTL       time.Duration
	RefreshTTL      time.Duration
}

// Grant is the result of a successful token exchange
type Grant struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	Scope        string
	ExpiresIn    int64
}

type accessRecord struct {
	ExpiresAt time.Time `json:"expiresAt"`
	OwnerID   int64     `json:"ownerId"`
}

// Issuer mints access/refresh token pairs and validates access tokens
type Issuer struct {
	store   kv.Store
	refresh storage.TokenStorage
	logger  *slog.Logger
	now     func() time.Time
	cfg     Config
}

// NewIssuer creates a new token issuer
func NewIssuer(store kv.Store, refresh storage.TokenStorage, cfg Config, logger *slog.Logger) *Issuer {
	if cfg.Scope == "" {
		cfg.Scope = DefaultScope
	}

	return &Issuer{
		store:   store,
		refresh: refresh,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}
}

// SetClock overrides the clock, used by tests
func (i *Issuer) SetClock(now func() time.Time) {
	i.now = now
}

// Issue mints a new access token and refresh token for clientID
func (i *Issuer) Issue(ctx context.Context, clientID string) (*Grant, error) {
	accessToken, err := crypto.GenerateToken(crypto.DefaultTokenBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	now := i.now()
	record, err := json.Marshal(accessRecord{
		OwnerID:   i.cfg.SystemAccountID,
		ExpiresAt: now.Add(i.cfg.AccessTTL),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal token record: %w", err)
	}

	if err := i.store.Set(ctx, keyPrefix+accessToken, record, i.cfg.AccessTTL); err != nil {
		return nil, fmt.Errorf("failed to store access token: %w", err)
	}

	refreshToken, err := crypto.GenerateToken(crypto.DefaultTokenBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	err = i.refresh.SaveRefreshToken(ctx, &models.RefreshToken{
		TokenHash: crypto.HashToken(refreshToken),
		ClientID:  clientID,
		UserID:    i.cfg.SystemAccountID,
		CreatedAt: now,
		ExpiresAt: now.Add(i.cfg.RefreshTTL),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save refresh token: %w", err)
	}

	return &Grant{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    TokenType,
		Scope:        i.cfg.Scope,
		ExpiresIn:    int64(i.cfg.AccessTTL.Seconds()),
	}, nil
}

// Refresh redeems refreshToken and returns a new token pair.
// A token presented by another client is left untouched so it cannot be burned
// on its owner's behalf. Once the client matches, the token is consumed even if
// it turns out to be expired.
func (i *Issuer) Refresh(ctx context.Context, clientID, refreshToken string) (*Grant, error) {
	if refreshToken == "" {
		return nil, ErrInvalidRefreshToken
	}

	hash := crypto.HashToken(refreshToken)

	stored, err := i.refresh.GetRefreshToken(ctx, hash)
	if errors.Is(err, storage.ErrTokenNotFound) {
		return nil, ErrInvalidRefreshToken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get refresh token: %w", err)
	}

	if !crypto.EqualSecrets(stored.ClientID, clientID) {
		i.logger.WarnContext(ctx, "Refresh token presented by another client",
			"client_id", clientID,
		)
		return nil, ErrInvalidRefreshToken
	}

	// Удаление определяет победителя при параллельной ротации одного токена
	if err := i.refresh.DeleteRefreshToken(ctx, hash); err != nil {
		if errors.Is(err, storage.ErrTokenNotFound) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, fmt.Errorf("failed to delete refresh token: %w", err)
	}

	if !i.now().Before(stored.ExpiresAt) {
		return nil, ErrInvalidRefreshToken
	}

	return i.Issue(ctx, clientID)
}

// Validate returns the owner of a live access token.
// Validation never extends the token lifetime.
func (i *Issuer) Validate(ctx context.Context, accessToken string) (int64, error) {
	if accessToken == "" {
		return 0, ErrInvalidToken
	}

	data, err := i.store.Get(ctx, keyPrefix+accessToken)
	if errors.Is(err, kv.ErrNotFound) {
		return 0, ErrInvalidToken
	}
	if err != nil {
		return 0, fmt.Errorf("failed to load access token: %w", err)
	}

	var record accessRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return 0, ErrInvalidToken
	}

	if !i.now().Before(record.ExpiresAt) {
		return 0, ErrInvalidToken
	}

	return record.OwnerID, nil
}

// ClientCredentials is the single configured OAuth client
type ClientCredentials struct {
	ID     string
	Secret string
}

// Check reports whether id and secret match the configured pair
func (c ClientCredentials) Check(id, secret string) bool {
	idOK := crypto.EqualSecrets(c.ID, id)
	secretOK := crypto.EqualSecrets(c.Secret, secret)
	return idOK && secretOK && c.Secret != ""
}
