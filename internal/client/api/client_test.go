package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/affilink/pkg/api"
)

// TestNewClient проверяет создание нового клиента
func TestNewClient(t *testing.T) {
	client := NewClient("http://localhost:5000/")

	assert.NotNil(t, client)
	assert.Equal(t, "http://localhost:5000", client.baseURL)
	assert.Equal(t, 60*time.Second, client.httpClient.Timeout)
}

func writeJSON(t *testing.T, w http.ResponseWriter, status int, v interface{}) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

// TestClient_Authenticate проверяет обмен client credentials на токены
func TestClient_Authenticate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/auth", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Empty(t, r.Header.Get("Authorization"))

		var req api.ClientCredentialsRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "client", req.ClientID)
		assert.Equal(t, "secret", req.ClientSecret)

		writeJSON(t, w, http.StatusOK, api.TokenResponse{
			AccessToken:  "access",
			RefreshToken: "refresh",
			TokenType:    "Bearer",
			Scope:        "rewrite",
			ExpiresIn:    3600,
		})
	}))
	defer server.Close()

	resp, err := NewClient(server.URL).Authenticate(context.Background(), "client", "secret")
	require.NoError(t, err)
	assert.Equal(t, "access", resp.AccessToken)
	assert.Equal(t, "refresh", resp.RefreshToken)
	assert.Equal(t, int64(3600), resp.ExpiresIn)
}

// TestClient_Refresh проверяет form тело и HTTP Basic аутентификацию клиента
func TestClient_Refresh(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/token", r.URL.Path)
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))

		id, secret, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "client", id)
		assert.Equal(t, "secret", secret)

		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "old-refresh", r.PostForm.Get("refresh_token"))

		writeJSON(t, w, http.StatusOK, api.TokenResponse{AccessToken: "new-access", RefreshToken: "new-refresh"})
	}))
	defer server.Close()

	resp, err := NewClient(server.URL).Refresh(context.Background(), "client", "secret", "old-refresh")
	require.NoError(t, err)
	assert.Equal(t, "new-access", resp.AccessToken)
	assert.Equal(t, "new-refresh", resp.RefreshToken)
}

// TestClient_Rewrite проверяет передачу bearer токена
func TestClient_Rewrite(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/rewrite", r.URL.Path)
		assert.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))

		var req api.RewriteRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "https://shop.example.com", req.URL)
		assert.Equal(t, "cli", req.Source)

		writeJSON(t, w, http.StatusOK, api.RewriteResponse{RewrittenURL: "https://track.example/x"})
	}))
	defer server.Close()

	rewritten, err := NewClient(server.URL).Rewrite(context.Background(), "token-1", "https://shop.example.com", "cli")
	require.NoError(t, err)
	assert.Equal(t, "https://track.example/x", rewritten)
}

// TestClient_LinksAndStats проверяет чтение истории и отчетов
func TestClient_LinksAndStats(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/links":
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `[{"id":1,"userId":2,"originalUrl":"https://a","rewrittenUrl":"https://b","source":"cli","createdAt":"2024-05-01T12:00:00Z"}]`)
		case "/api/stats/clicks":
			assert.Equal(t, "2024-01-01", r.URL.Query().Get("timeStart"))
			assert.Equal(t, "2024-01-31", r.URL.Query().Get("timeEnd"))
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"data":[]}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := NewClient(server.URL)

	links, err := client.Links(context.Background(), "token")
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, "https://b", links[0].RewrittenURL)
	assert.Equal(t, int64(2), links[0].UserID)

	raw, err := client.Stats(context.Background(), "token", "clicks", "2024-01-01", "2024-01-31")
	require.NoError(t, err)
	assert.JSONEq(t, `{"data":[]}`, string(raw))
}

// TestClient_Errors проверяет разбор ответов с ошибкой
func TestClient_Errors(t *testing.T) {
	tests := []struct {
		name             string
		status           int
		body             string
		wantUnauthorized bool
		wantMessage      string
	}{
		{
			name:             "unauthorized",
			status:           http.StatusUnauthorized,
			body:             `{"error":"Unauthorized","message":"Invalid or expired token"}`,
			wantUnauthorized: true,
			wantMessage:      "Invalid or expired token",
		},
		{
			name:        "bad request",
			status:      http.StatusBadRequest,
			body:        `{"error":"Bad Request","message":"url and source are required"}`,
			wantMessage: "url and source are required",
		},
		{
			name:        "plain text body",
			status:      http.StatusBadGateway,
			body:        "upstream down",
			wantMessage: "upstream down",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer server.Close()

			_, err := NewClient(server.URL).Rewrite(context.Background(), "token", "https://a", "cli")
			require.Error(t, err)

			assert.Equal(t, tt.wantUnauthorized, errors.Is(err, ErrUnauthorized))

			var apiErr *Error
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Contains(t, apiErr.Error(), tt.wantMessage)
		})
	}
}

// TestClient_OAuthCredentials проверяет получение параметров подключения
func TestClient_OAuthCredentials(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, api.OAuthCredentialsResponse{
			ClientID:            "client",
			ClientSecret:        "secret",
			TokenExchangeMethod: "basic_auth",
			Scopes:              []string{"rewrite"},
		})
	}))
	defer server.Close()

	creds, err := NewClient(server.URL).OAuthCredentials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "client", creds.ClientID)
	assert.Equal(t, "secret", creds.ClientSecret)
	assert.Equal(t, []string{"rewrite"}, creds.Scopes)
}

// TestClient_NetworkError проверяет обработку недоступного сервера
func TestClient_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := NewClient(url).Health(context.Background())
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrUnauthorized))
}
