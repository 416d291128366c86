package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	clientapi "github.com/iudanet/affilink/internal/client/api"
	"github.com/iudanet/affilink/internal/client/storage"
	"github.com/iudanet/affilink/internal/models"
	"github.com/iudanet/affilink/pkg/api"
)

// fakeIO накапливает вывод и отдает заранее заданный ввод
type fakeIO struct {
	out      bytes.Buffer
	password string
	readErr  error
}

func (f *fakeIO) Println(a ...any)               { fmt.Fprintln(&f.out, a...) }
func (f *fakeIO) Printf(format string, a ...any) { fmt.Fprintf(&f.out, format, a...) }
func (f *fakeIO) Write(p []byte) (int, error)    { return f.out.Write(p) }

func (f *fakeIO) ReadInput(string) (string, error) {
	return f.password, f.readErr
}

func (f *fakeIO) ReadPassword(string) (string, error) {
	return f.password, f.readErr
}

// memoryAuth хранит AuthData в памяти
type memoryAuth struct {
	auth    *storage.AuthData
	saveErr error
}

func (m *memoryAuth) SaveAuth(_ context.Context, auth *storage.AuthData) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	cp := *auth
	m.auth = &cp
	return nil
}

func (m *memoryAuth) GetAuth(context.Context) (*storage.AuthData, error) {
	if m.auth == nil {
		return nil, storage.ErrAuthNotFound
	}
	cp := *m.auth
	return &cp, nil
}

func (m *memoryAuth) RotateTokens(_ context.Context, tokens storage.TokenPair) error {
	if m.auth == nil {
		return storage.ErrAuthNotFound
	}
	if m.saveErr != nil {
		return m.saveErr
	}
	m.auth.TokenPair = tokens
	return nil
}

func (m *memoryAuth) DeleteAuth(context.Context) error {
	if m.auth == nil {
		return storage.ErrAuthNotFound
	}
	m.auth = nil
	return nil
}

func (m *memoryAuth) IsAuthenticated(context.Context) (bool, error) {
	return m.auth != nil, nil
}

// fakeAPI принимает только токен validToken, остальные получают 401
type fakeAPI struct {
	validToken string
	links      []models.Link
	report     json.RawMessage
	authErr    error
	refreshErr error
	creds      *api.OAuthCredentialsResponse

	// keepRefresh имитирует ответ /api/token без нового refresh token
	keepRefresh bool

	gotID, gotSecret string
	refreshCalls     int
	rewriteCalls     int
	gotSource        string
}

var errUnauthorized = &clientapi.Error{StatusCode: 401, Title: "Unauthorized"}

func (f *fakeAPI) OAuthCredentials(context.Context) (*api.OAuthCredentialsResponse, error) {
	if f.creds == nil {
		return nil, &clientapi.Error{StatusCode: 404, Title: "Not Found"}
	}
	return f.creds, nil
}

func (f *fakeAPI) Authenticate(_ context.Context, clientID, clientSecret string) (*api.TokenResponse, error) {
	f.gotID, f.gotSecret = clientID, clientSecret
	if f.authErr != nil {
		return nil, f.authErr
	}
	return &api.TokenResponse{
		AccessToken:  f.validToken,
		RefreshToken: "refresh-1",
		TokenType:    "Bearer",
		Scope:        "rewrite",
		ExpiresIn:    3600,
	}, nil
}

func (f *fakeAPI) Refresh(_ context.Context, clientID, clientSecret, refreshToken string) (*api.TokenResponse, error) {
	f.refreshCalls++
	f.gotID, f.gotSecret = clientID, clientSecret
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	next := refreshToken + "-next"
	if f.keepRefresh {
		next = ""
	}
	return &api.TokenResponse{
		AccessToken:  f.validToken,
		RefreshToken: next,
		ExpiresIn:    3600,
	}, nil
}

func (f *fakeAPI) Rewrite(_ context.Context, accessToken, rawURL, source string) (string, error) {
	f.rewriteCalls++
	if accessToken != f.validToken {
		return "", errUnauthorized
	}
	f.gotSource = source
	return rawURL + "?tag=turbofiliates-21", nil
}

func (f *fakeAPI) Links(_ context.Context, accessToken string) ([]models.Link, error) {
	if accessToken != f.validToken {
		return nil, errUnauthorized
	}
	return f.links, nil
}

func (f *fakeAPI) Stats(_ context.Context, accessToken, _, _, _ string) (json.RawMessage, error) {
	if accessToken != f.validToken {
		return nil, errUnauthorized
	}
	return f.report, nil
}

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestCli(apiClient APIClient, store storage.AuthStorage, io *fakeIO) *Cli {
	c := New(apiClient, store, io, "http://localhost:5000")
	c.now = func() time.Time { return testNow }
	return c
}

func loggedIn(accessToken string, expiresAt time.Time) *memoryAuth {
	return &memoryAuth{auth: &storage.AuthData{
		ServerURL:    "http://localhost:5000",
		ClientID:     "client",
		ClientSecret: "secret",
		TokenPair: storage.TokenPair{
			AccessToken:  accessToken,
			RefreshToken: "refresh-1",
			ExpiresAt:    expiresAt.Unix(),
		},
	}}
}

// TestGetClientSecret_Priority проверяет порядок источников client secret
func TestGetClientSecret_Priority(t *testing.T) {
	secretFile := filepath.Join(t.TempDir(), "secret.txt")
	require.NoError(t, os.WriteFile(secretFile, []byte("from-file\n"), 0o600))

	tests := []struct {
		name    string
		env     string
		secrets Secrets
		prompt  string
		want    string
		wantErr bool
	}{
		{name: "env wins", env: "from-env", secrets: Secrets{FromFile: secretFile, FromArgs: "from-args"}, want: "from-env"},
		{name: "file before args", secrets: Secrets{FromFile: secretFile, FromArgs: "from-args"}, want: "from-file"},
		{name: "args", secrets: Secrets{FromArgs: "from-args"}, want: "from-args"},
		{name: "prompt fallback", prompt: "typed", want: "typed"},
		{name: "empty prompt", wantErr: true},
		{name: "missing file", secrets: Secrets{FromFile: filepath.Join(t.TempDir(), "nope")}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(ClientSecretEnv, tt.env)

			c := newTestCli(&fakeAPI{}, &memoryAuth{}, &fakeIO{password: tt.prompt})
			got, err := c.getClientSecret(tt.secrets)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// TestGetClientSecret_EmptyFile проверяет отказ на пустом файле
func TestGetClientSecret_EmptyFile(t *testing.T) {
	t.Setenv(ClientSecretEnv, "")

	secretFile := filepath.Join(t.TempDir(), "secret.txt")
	require.NoError(t, os.WriteFile(secretFile, []byte("  \n"), 0o600))

	c := newTestCli(&fakeAPI{}, &memoryAuth{}, &fakeIO{})
	_, err := c.getClientSecret(Secrets{FromFile: secretFile})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty")
}

// TestRunLogin проверяет сохранение полученной пары токенов
func TestRunLogin(t *testing.T) {
	t.Setenv(ClientSecretEnv, "")

	apiClient := &fakeAPI{validToken: "access-1"}
	store := &memoryAuth{}
	out := &fakeIO{}

	err := newTestCli(apiClient, store, out).Run(context.Background(), "login", []string{"--client-id", "my-client", "--secret", "s3cret"})
	require.NoError(t, err)

	assert.Equal(t, "my-client", apiClient.gotID)
	assert.Equal(t, "s3cret", apiClient.gotSecret)

	require.NotNil(t, store.auth)
	assert.Equal(t, "http://localhost:5000", store.auth.ServerURL)
	assert.Equal(t, "my-client", store.auth.ClientID)
	assert.Equal(t, "s3cret", store.auth.ClientSecret)
	assert.Equal(t, "access-1", store.auth.AccessToken)
	assert.Equal(t, "refresh-1", store.auth.RefreshToken)
	assert.Equal(t, testNow.Unix()+3600, store.auth.ExpiresAt)
	assert.Contains(t, out.out.String(), "Login successful")
}

// TestRunLogin_Discover проверяет получение credentials с сервера
func TestRunLogin_Discover(t *testing.T) {
	apiClient := &fakeAPI{
		validToken: "access-1",
		creds:      &api.OAuthCredentialsResponse{ClientID: "discovered", ClientSecret: "disc-secret"},
	}
	store := &memoryAuth{}

	err := newTestCli(apiClient, store, &fakeIO{}).Run(context.Background(), "login", []string{"--discover"})
	require.NoError(t, err)

	assert.Equal(t, "discovered", apiClient.gotID)
	assert.Equal(t, "disc-secret", apiClient.gotSecret)
	require.NotNil(t, store.auth)
	assert.Equal(t, "disc-secret", store.auth.ClientSecret)
}

// TestRunLogin_Errors проверяет, что при ошибке ничего не сохраняется
func TestRunLogin_Errors(t *testing.T) {
	t.Setenv(ClientSecretEnv, "")

	tests := []struct {
		name string
		api  *fakeAPI
		args []string
	}{
		{name: "rejected credentials", api: &fakeAPI{authErr: errUnauthorized}, args: []string{"--secret", "bad"}},
		{name: "discovery disabled", api: &fakeAPI{}, args: []string{"--discover"}},
		{name: "unknown flag", api: &fakeAPI{}, args: []string{"--bogus"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &memoryAuth{}
			err := newTestCli(tt.api, store, &fakeIO{}).Run(context.Background(), "login", tt.args)
			require.Error(t, err)
			assert.Nil(t, store.auth)
		})
	}
}

// TestRunLogout проверяет удаление токенов и повторный logout
func TestRunLogout(t *testing.T) {
	store := loggedIn("access-1", testNow.Add(time.Hour))
	out := &fakeIO{}
	c := newTestCli(&fakeAPI{}, store, out)

	require.NoError(t, c.Run(context.Background(), "logout", nil))
	assert.Nil(t, store.auth)
	assert.Contains(t, out.out.String(), "Logged out")

	require.NoError(t, c.Run(context.Background(), "logout", nil))
	assert.Contains(t, out.out.String(), "Not logged in")
}

// TestRunStatus проверяет вывод состояния аутентификации
func TestRunStatus(t *testing.T) {
	tests := []struct {
		name  string
		store *memoryAuth
		want  string
	}{
		{name: "not authenticated", store: &memoryAuth{}, want: "Not authenticated"},
		{name: "authenticated", store: loggedIn("a", testNow.Add(90*time.Minute)), want: "Time remaining: 1h30m0s"},
		{name: "expired", store: loggedIn("a", testNow.Add(-time.Minute)), want: "Token expired"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := &fakeIO{}
			require.NoError(t, newTestCli(&fakeAPI{}, tt.store, out).Run(context.Background(), "status", nil))
			assert.Contains(t, out.out.String(), tt.want)
		})
	}
}

// multiServerAuth добавляет к memoryAuth список серверов
type multiServerAuth struct {
	*memoryAuth
	servers []string
}

func (m *multiServerAuth) Servers(context.Context) ([]string, error) { return m.servers, nil }
func (m *multiServerAuth) ServerURL() string                          { return "http://localhost:5000" }

// TestRunStatus_OtherServers проверяет вывод логинов на других серверах
func TestRunStatus_OtherServers(t *testing.T) {
	store := &multiServerAuth{
		memoryAuth: &memoryAuth{},
		servers:    []string{"http://localhost:5000", "https://links.example.com"},
	}
	out := &fakeIO{}

	require.NoError(t, newTestCli(&fakeAPI{}, store, out).Run(context.Background(), "status", nil))
	assert.Contains(t, out.out.String(), "Also logged in: https://links.example.com")
	assert.NotContains(t, out.out.String(), "Also logged in: http://localhost:5000")
	assert.Contains(t, out.out.String(), "Not authenticated")
}

// TestRunRewrite проверяет переписывание нескольких ссылок
func TestRunRewrite(t *testing.T) {
	apiClient := &fakeAPI{validToken: "access-1"}
	out := &fakeIO{}
	c := newTestCli(apiClient, loggedIn("access-1", testNow.Add(time.Hour)), out)

	err := c.Run(context.Background(), "rewrite", []string{"--source", "newsletter", "https://a.example", "https://b.example"})
	require.NoError(t, err)

	assert.Equal(t, "newsletter", apiClient.gotSource)
	assert.Equal(t, "https://a.example?tag=turbofiliates-21\nhttps://b.example?tag=turbofiliates-21\n", out.out.String())
	assert.Zero(t, apiClient.refreshCalls)
}

// TestRunRewrite_DefaultSource проверяет метку источника по умолчанию
func TestRunRewrite_DefaultSource(t *testing.T) {
	apiClient := &fakeAPI{validToken: "access-1"}
	c := newTestCli(apiClient, loggedIn("access-1", testNow.Add(time.Hour)), &fakeIO{})

	require.NoError(t, c.Run(context.Background(), "rewrite", []string{"https://a.example"}))
	assert.Equal(t, DefaultSource, apiClient.gotSource)
}

// TestRunRewrite_RefreshesExpiredToken проверяет обновление токена до запроса
func TestRunRewrite_RefreshesExpiredToken(t *testing.T) {
	apiClient := &fakeAPI{validToken: "access-2"}
	store := loggedIn("access-1", testNow.Add(-time.Second))
	c := newTestCli(apiClient, store, &fakeIO{})

	require.NoError(t, c.Run(context.Background(), "rewrite", []string{"https://a.example"}))

	assert.Equal(t, 1, apiClient.refreshCalls)
	assert.Equal(t, 1, apiClient.rewriteCalls)
	assert.Equal(t, "client", apiClient.gotID)
	assert.Equal(t, "secret", apiClient.gotSecret)
	assert.Equal(t, "access-2", store.auth.AccessToken)
	assert.Equal(t, "refresh-1-next", store.auth.RefreshToken)
	assert.Equal(t, "client", store.auth.ClientID)
}

// TestRunRewrite_RefreshWithoutNewRefreshToken проверяет, что прежний refresh token сохраняется
func TestRunRewrite_RefreshWithoutNewRefreshToken(t *testing.T) {
	apiClient := &fakeAPI{validToken: "access-2", keepRefresh: true}
	store := loggedIn("access-1", testNow.Add(-time.Second))
	c := newTestCli(apiClient, store, &fakeIO{})

	require.NoError(t, c.Run(context.Background(), "rewrite", []string{"https://a.example"}))

	assert.Equal(t, "access-2", store.auth.AccessToken)
	assert.Equal(t, "refresh-1", store.auth.RefreshToken)
	assert.Equal(t, testNow.Unix()+3600, store.auth.ExpiresAt)
}

// TestRunRewrite_RotationNotSaved проверяет ошибку сохранения новой пары
func TestRunRewrite_RotationNotSaved(t *testing.T) {
	apiClient := &fakeAPI{validToken: "access-2"}
	store := loggedIn("access-1", testNow.Add(-time.Second))
	store.saveErr = errors.New("disk full")
	c := newTestCli(apiClient, store, &fakeIO{})

	err := c.Run(context.Background(), "rewrite", []string{"https://a.example"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to save rotated tokens")
	assert.Zero(t, apiClient.rewriteCalls)
}

// TestRunRewrite_RetriesOnUnauthorized проверяет одну повторную попытку после 401
func TestRunRewrite_RetriesOnUnauthorized(t *testing.T) {
	apiClient := &fakeAPI{validToken: "access-2"}
	store := loggedIn("revoked", testNow.Add(time.Hour))
	c := newTestCli(apiClient, store, &fakeIO{})

	require.NoError(t, c.Run(context.Background(), "rewrite", []string{"https://a.example"}))

	assert.Equal(t, 1, apiClient.refreshCalls)
	assert.Equal(t, 2, apiClient.rewriteCalls)
	assert.Equal(t, "access-2", store.auth.AccessToken)
}

// TestRunRewrite_RefreshRejected проверяет сообщение о необходимости нового login
func TestRunRewrite_RefreshRejected(t *testing.T) {
	apiClient := &fakeAPI{validToken: "access-2", refreshErr: errUnauthorized}
	store := loggedIn("revoked", testNow.Add(time.Hour))
	c := newTestCli(apiClient, store, &fakeIO{})

	err := c.Run(context.Background(), "rewrite", []string{"https://a.example"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, clientapi.ErrUnauthorized))
	assert.Contains(t, err.Error(), "affilink login")
	assert.Equal(t, "revoked", store.auth.AccessToken)
}

// TestRunRewrite_Errors проверяет ошибки аргументов и отсутствие логина
func TestRunRewrite_Errors(t *testing.T) {
	tests := []struct {
		name  string
		store *memoryAuth
		args  []string
		want  string
	}{
		{name: "no urls", store: loggedIn("a", testNow.Add(time.Hour)), args: nil, want: "usage"},
		{name: "not logged in", store: &memoryAuth{}, args: []string{"https://a.example"}, want: "not authenticated"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := newTestCli(&fakeAPI{validToken: "a"}, tt.store, &fakeIO{}).Run(context.Background(), "rewrite", tt.args)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

// TestRunLinks проверяет вывод истории ссылок
func TestRunLinks(t *testing.T) {
	apiClient := &fakeAPI{
		validToken: "access-1",
		links: []models.Link{
			{
				ID:           1,
				OriginalURL:  "https://a.example",
				RewrittenURL: "https://track.example/a",
				Source:       "cli",
				CreatedAt:    testNow,
			},
		},
	}
	out := &fakeIO{}
	c := newTestCli(apiClient, loggedIn("access-1", testNow.Add(time.Hour)), out)

	require.NoError(t, c.Run(context.Background(), "links", nil))
	assert.Contains(t, out.out.String(), "https://a.example -> https://track.example/a")
	assert.Contains(t, out.out.String(), "2024-05-01T12:00:00Z")
	assert.Contains(t, out.out.String(), "Total: 1")
}

// TestRunLinks_Empty проверяет вывод пустой истории
func TestRunLinks_Empty(t *testing.T) {
	out := &fakeIO{}
	c := newTestCli(&fakeAPI{validToken: "a"}, loggedIn("a", testNow.Add(time.Hour)), out)

	require.NoError(t, c.Run(context.Background(), "links", nil))
	assert.Equal(t, "No links yet\n", out.out.String())
}

// TestRunStats проверяет вывод отчета без изменений
func TestRunStats(t *testing.T) {
	apiClient := &fakeAPI{validToken: "a", report: json.RawMessage(`{"data":[{"id":"1"}]}`)}
	out := &fakeIO{}
	c := newTestCli(apiClient, loggedIn("a", testNow.Add(time.Hour)), out)

	require.NoError(t, c.Run(context.Background(), "stats", []string{"clicks", "2024-01-01", "2024-01-31"}))
	assert.Equal(t, "{\"data\":[{\"id\":\"1\"}]}\n", out.out.String())

	err := c.Run(context.Background(), "stats", []string{"clicks"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "usage")
}

// TestRun_UnknownCommand проверяет вывод справки на неизвестной команде
func TestRun_UnknownCommand(t *testing.T) {
	out := &fakeIO{}
	err := newTestCli(&fakeAPI{}, &memoryAuth{}, out).Run(context.Background(), "sync", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown command")
	assert.Contains(t, out.out.String(), "Usage:")
}
