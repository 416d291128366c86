// Package session implements cookie-based identities for browser callers.
// The session record lives in a kv.Store; the cookie only carries a signed
// reference to it.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/iudanet/affilink/internal/crypto"
	"github.com/iudanet/affilink/internal/server/kv"
)

// CookieName is the name of the session cookie
const CookieName = "session_id"

const keyPrefix = "session:"

// ErrNoSession is returned when the request carries no usable session
var ErrNoSession = errors.New("no session")

// Session is the server-side record behind a session cookie
type Session struct {
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
	ID        string    `json:"-"`
	UserID    int64     `json:"userId"`
}

// Config configures a Manager
type Config struct {
	Secret []byte
	TTL    time.Duration
	// Secure sets the Secure cookie attribute, enabled in production
	Secure bool
}

// Manager creates, resolves and destroys sessions
type Manager struct {
	store  kv.Store
	logger *slog.Logger
	now    func() time.Time
	cfg    Config
}

// NewManager creates a new session manager
func NewManager(store kv.Store, cfg Config, logger *slog.Logger) *Manager {
	return &Manager{
		store:  store,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// SetClock overrides the clock, used by tests
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

// Create stores a new session for userID and sets the session cookie
func (m *Manager) Create(ctx context.Context, w http.ResponseWriter, userID int64) (*Session, error) {
	id, err := crypto.GenerateToken(crypto.DefaultTokenBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to generate session id: %w", err)
	}

	now := m.now()
	sess := &Session{
		ID:        id,
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(m.cfg.TTL),
	}

	data, err := json.Marshal(sess)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session: %w", err)
	}

	if err := m.store.Set(ctx, keyPrefix+id, data, m.cfg.TTL); err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}

	value, err := signSessionID(m.cfg.Secret, id, now, m.cfg.TTL)
	if err != nil {
		return nil, err
	}

	http.SetCookie(w, m.cookie(value, sess.ExpiresAt, int(m.cfg.TTL.Seconds())))

	return sess, nil
}

// Lookup resolves the session referenced by the request cookie
// Returns ErrNoSession when the cookie is missing, forged, unknown or expired
func (m *Manager) Lookup(ctx context.Context, r *http.Request) (*Session, error) {
	id, err := m.sessionID(r)
	if err != nil {
		return nil, err
	}

	data, err := m.store.Get(ctx, keyPrefix+id)
	if errors.Is(err, kv.ErrNotFound) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		m.logger.WarnContext(ctx, "Corrupted session record", "error", err)
		return nil, ErrNoSession
	}
	sess.ID = id

	if !m.now().Before(sess.ExpiresAt) {
		return nil, ErrNoSession
	}

	return &sess, nil
}

// Destroy removes the session referenced by the request and clears the cookie
func (m *Manager) Destroy(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	id, err := m.sessionID(r)
	if err == nil {
		if err := m.store.Delete(ctx, keyPrefix+id); err != nil {
			return fmt.Errorf("failed to delete session: %w", err)
		}
	}

	http.SetCookie(w, m.cookie("", time.Unix(0, 0), -1))
	return nil
}

func (m *Manager) sessionID(r *http.Request) (string, error) {
	c, err := r.Cookie(CookieName)
	if err != nil || c.Value == "" {
		return "", ErrNoSession
	}

	id, err := parseSessionID(m.cfg.Secret, c.Value, m.now)
	if err != nil {
		m.logger.Debug("Rejected session cookie", "error", err)
		return "", ErrNoSession
	}

	return id, nil
}

func (m *Manager) cookie(value string, expires time.Time, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   m.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}
