package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/iudanet/affilink/internal/models"
	"github.com/iudanet/affilink/internal/server/session"
	"github.com/iudanet/affilink/internal/server/storage"
	"github.com/iudanet/affilink/internal/server/token"
)

// setupTestLogger creates a logger for testing
func setupTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockUserStorage is a mock implementation of UserStorage for testing
type mockUserStorage struct {
	users        map[string]*models.User // username -> User
	createError  error
	getUserError error
	nextID       int64
	mu           sync.Mutex
}

func newMockUserStorage() *mockUserStorage {
	return &mockUserStorage{users: make(map[string]*models.User)}
}

func (m *mockUserStorage) CreateUser(ctx context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createError != nil {
		return m.createError
	}
	if _, exists := m.users[user.Username]; exists {
		return storage.ErrUserAlreadyExists
	}
	m.nextID++
	user.ID = m.nextID
	m.users[user.Username] = user
	return nil
}

func (m *mockUserStorage) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getUserError != nil {
		return nil, m.getUserError
	}
	user, ok := m.users[username]
	if !ok {
		return nil, storage.ErrUserNotFound
	}
	return user, nil
}

func (m *mockUserStorage) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getUserError != nil {
		return nil, m.getUserError
	}
	for _, user := range m.users {
		if user.ID == id {
			return user, nil
		}
	}
	return nil, storage.ErrUserNotFound
}

// mockSessions is a mock SessionManager
type mockSessions struct {
	createErr  error
	destroyErr error
	created    []int64
	destroyed  int
}

func (m *mockSessions) Create(ctx context.Context, w http.ResponseWriter, userID int64) (*session.Session, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	m.created = append(m.created, userID)
	http.SetCookie(w, &http.Cookie{Name: session.CookieName, Value: "signed", Path: "/", HttpOnly: true})
	return &session.Session{ID: "sid", UserID: userID}, nil
}

func (m *mockSessions) Destroy(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	if m.destroyErr != nil {
		return m.destroyErr
	}
	m.destroyed++
	return nil
}

// mockIssuer is a mock TokenIssuer
type mockIssuer struct {
	issueErr   error
	refreshErr error
	refreshed  []string
}

func (m *mockIssuer) Issue(ctx context.Context, clientID string) (*token.Grant, error) {
	if m.issueErr != nil {
		return nil, m.issueErr
	}
	return &token.Grant{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		TokenType:    token.TokenType,
		Scope:        token.DefaultScope,
		ExpiresIn:    3600,
	}, nil
}

func (m *mockIssuer) Refresh(ctx context.Context, clientID, refreshToken string) (*token.Grant, error) {
	if m.refreshErr != nil {
		return nil, m.refreshErr
	}
	m.refreshed = append(m.refreshed, refreshToken)
	return &token.Grant{
		AccessToken:  "access-2",
		RefreshToken: "refresh-2",
		TokenType:    token.TokenType,
		Scope:        token.DefaultScope,
		ExpiresIn:    3600,
	}, nil
}

// mockResolver is a mock LinkResolver
type mockResolver struct {
	err      error
	result   string
	callerID int64
	source   string
}

func (m *mockResolver) Resolve(ctx context.Context, originalURL string, callerID int64, source string) (string, error) {
	m.callerID = callerID
	m.source = source
	if m.err != nil {
		return "", m.err
	}
	if m.result == "" {
		return originalURL, nil
	}
	return m.result, nil
}

// mockLinks is a mock LinkLister
type mockLinks struct {
	links map[int64][]*models.Link
	err   error
}

func (m *mockLinks) GetUserLinks(ctx context.Context, userID int64) ([]*models.Link, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.links[userID], nil
}

// mockStats is a mock StatsProvider
type mockStats struct {
	err     error
	payload json.RawMessage
	calls   []string
}

func (m *mockStats) Report(ctx context.Context, reportType, timeStart, timeEnd string) (json.RawMessage, error) {
	m.calls = append(m.calls, reportType+"|"+timeStart+"|"+timeEnd)
	if m.err != nil {
		return nil, m.err
	}
	return m.payload, nil
}
