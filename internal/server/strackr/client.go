// Package strackr is a minimal client for the Strackr affiliate API v3.
package strackr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

const (
	// DefaultBaseURL is the production API root
	DefaultBaseURL = "https://api.strackr.com/v3"
	// DefaultTimeout bounds every provider call
	DefaultTimeout = 30 * time.Second

	maxBodySize = 10 << 20
)

var reportTypePattern = regexp.MustCompile(`^[a-z_]+$`)

// ErrInvalidReportType is returned for report types outside [a-z_]
var ErrInvalidReportType = errors.New("invalid report type")

// APIError describes a non-2xx provider response
type APIError struct {
	Body       string
	StatusCode int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("strackr: status %d: %s", e.StatusCode, e.Body)
}

// Config configures a Client
type Config struct {
	BaseURL string
	APIID   string
	APIKey  string
	Timeout time.Duration
}

// Client calls the Strackr API
type Client struct {
	httpClient *http.Client
	cfg        Config
}

// NewClient создает новый клиент Strackr
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// BuildLink asks the provider for a tracking link for rawURL
func (c *Client) BuildLink(ctx context.Context, rawURL string) (*LinkBuilderResponse, error) {
	params := url.Values{}
	params.Set("url", rawURL)

	var resp LinkBuilderResponse
	if err := c.get(ctx, "/tools/linkbuilder", params, &resp); err != nil {
		return nil, fmt.Errorf("linkbuilder request failed: %w", err)
	}

	return &resp, nil
}

// Report fetches reports/{reportType} for the given window.
// The payload is returned untouched.
func (c *Client) Report(ctx context.Context, reportType, timeStart, timeEnd string) (json.RawMessage, error) {
	if !reportTypePattern.MatchString(reportType) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidReportType, reportType)
	}

	params := url.Values{}
	params.Set("time_start", timeStart)
	params.Set("time_end", timeEnd)
	params.Set("time_type", "checked")

	var raw json.RawMessage
	if err := c.get(ctx, "/reports/"+reportType, params, &raw); err != nil {
		return nil, fmt.Errorf("%s report request failed: %w", reportType, err)
	}

	return raw, nil
}

// get выполняет GET запрос с учетными данными API
func (c *Client) get(ctx context.Context, path string, params url.Values, result interface{}) error {
	params.Set("api_id", c.cfg.APIID)
	params.Set("api_key", c.cfg.APIKey)

	endpoint := c.cfg.BaseURL + path + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// url.Error содержит полный адрес вместе с api_key
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}
