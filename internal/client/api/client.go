package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/iudanet/affilink/internal/models"
	"github.com/iudanet/affilink/pkg/api"
)

// ErrUnauthorized возвращается при ответе 401, токен нужно обновить или получить заново
var ErrUnauthorized = errors.New("unauthorized")

// Error описывает ответ сервера с кодом вне диапазона 2xx
type Error struct {
	Title      string
	Message    string
	StatusCode int
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("server error (%d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("server error (%d): %s", e.StatusCode, e.Title)
}

// Unwrap позволяет проверять 401 через errors.Is(err, ErrUnauthorized)
func (e *Error) Unwrap() error {
	if e.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	return nil
}

// Client представляет HTTP клиент для взаимодействия с сервером
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient создает новый API клиент
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
			// Настройка обработки редиректов
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				// Ограничиваем количество редиректов
				if len(via) >= 10 {
					return fmt.Errorf("stopped after 10 redirects")
				}
				// Копируем заголовки Authorization при редиректе
				if len(via) > 0 && via[0].Header.Get("Authorization") != "" {
					req.Header.Set("Authorization", via[0].Header.Get("Authorization"))
				}
				return nil
			},
		},
	}
}

// Health проверяет доступность сервера
func (c *Client) Health(ctx context.Context) (string, error) {
	var resp struct {
		Status  string `json:"status"`
		Version string `json:"version"`
	}
	if err := c.doRequest(ctx, http.MethodGet, "/api/health", "", nil, &resp); err != nil {
		return "", fmt.Errorf("health request failed: %w", err)
	}
	return resp.Version, nil
}

// OAuthCredentials получает параметры подключения OAuth клиента
func (c *Client) OAuthCredentials(ctx context.Context) (*api.OAuthCredentialsResponse, error) {
	var resp api.OAuthCredentialsResponse
	if err := c.doRequest(ctx, http.MethodGet, "/api/oauth-credentials", "", nil, &resp); err != nil {
		return nil, fmt.Errorf("oauth credentials request failed: %w", err)
	}
	return &resp, nil
}

// Authenticate обменивает client credentials на пару токенов
func (c *Client) Authenticate(ctx context.Context, clientID, clientSecret string) (*api.TokenResponse, error) {
	req := api.ClientCredentialsRequest{
		ClientID:     clientID,
		ClientSecret: clientSecret,
	}

	var resp api.TokenResponse
	if err := c.doRequest(ctx, http.MethodPost, "/api/auth", "", req, &resp); err != nil {
		return nil, fmt.Errorf("auth request failed: %w", err)
	}
	return &resp, nil
}

// Refresh обменивает refresh token на новую пару токенов.
// Использованный refresh token больше не действителен.
func (c *Client) Refresh(ctx context.Context, clientID, clientSecret, refreshToken string) (*api.TokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/token", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(clientID, clientSecret)

	var resp api.TokenResponse
	if err := c.do(req, &resp); err != nil {
		return nil, fmt.Errorf("token refresh failed: %w", err)
	}
	return &resp, nil
}

// Rewrite возвращает партнерскую ссылку для rawURL
func (c *Client) Rewrite(ctx context.Context, accessToken, rawURL, source string) (string, error) {
	req := api.RewriteRequest{URL: rawURL, Source: source}

	var resp api.RewriteResponse
	if err := c.doRequest(ctx, http.MethodPost, "/api/rewrite", accessToken, req, &resp); err != nil {
		return "", fmt.Errorf("rewrite request failed: %w", err)
	}
	return resp.RewrittenURL, nil
}

// Links возвращает историю переписанных ссылок владельца токена
func (c *Client) Links(ctx context.Context, accessToken string) ([]models.Link, error) {
	var links []models.Link
	if err := c.doRequest(ctx, http.MethodGet, "/api/links", accessToken, nil, &links); err != nil {
		return nil, fmt.Errorf("links request failed: %w", err)
	}
	return links, nil
}

// Stats возвращает отчет партнерской сети без изменений
func (c *Client) Stats(ctx context.Context, accessToken, reportType, timeStart, timeEnd string) (json.RawMessage, error) {
	params := url.Values{}
	params.Set("timeStart", timeStart)
	params.Set("timeEnd", timeEnd)
	path := "/api/stats/" + url.PathEscape(reportType) + "?" + params.Encode()

	var raw json.RawMessage
	if err := c.doRequest(ctx, http.MethodGet, path, accessToken, nil, &raw); err != nil {
		return nil, fmt.Errorf("stats request failed: %w", err)
	}
	return raw, nil
}

// doRequest выполняет JSON запрос, accessToken добавляется как Bearer при наличии
func (c *Client) doRequest(ctx context.Context, method, path, accessToken string, body, result interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	return c.do(req, result)
}

func (c *Client) do(req *http.Request, result interface{}) error {
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	// Читаем тело ответа
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	// Проверяем статус код
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &Error{StatusCode: resp.StatusCode}
		var errResp api.ErrorResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil {
			apiErr.Title = errResp.Error
			apiErr.Message = errResp.Message
		} else {
			apiErr.Title = strings.TrimSpace(string(respBody))
		}
		return apiErr
	}

	// Декодируем успешный ответ
	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}
