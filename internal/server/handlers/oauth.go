package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/iudanet/affilink/internal/server/token"
	"github.com/iudanet/affilink/pkg/api"
)

// TokenIssuer выдает и обновляет bearer токены
type TokenIssuer interface {
	Issue(ctx context.Context, clientID string) (*token.Grant, error)
	Refresh(ctx context.Context, clientID, refreshToken string) (*token.Grant, error)
}

// OAuthConfig описывает единственного OAuth клиента
type OAuthConfig struct {
	Client token.ClientCredentials
	Scopes []string
	// ExposeCredentials включает GET /api/oauth-credentials
	ExposeCredentials bool
}

// OAuthHandler обрабатывает выдачу токенов для программных клиентов
type OAuthHandler struct {
	responder
	issuer TokenIssuer
	cfg    OAuthConfig
}

// NewOAuthHandler создает новый OAuth handler
func NewOAuthHandler(logger *slog.Logger, issuer TokenIssuer, cfg OAuthConfig) *OAuthHandler {
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = []string{token.DefaultScope}
	}

	return &OAuthHandler{
		responder: responder{logger: logger},
		issuer:    issuer,
		cfg:       cfg,
	}
}

// Auth обрабатывает POST /api/auth
// Обмен client_id/client_secret из JSON тела на пару токенов
func (h *OAuthHandler) Auth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.ClientCredentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.logger.WarnContext(ctx, "failed to decode client credentials", slog.Any("error", err))
		h.sendError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if !h.cfg.Client.Check(req.ClientID, req.ClientSecret) {
		h.logger.WarnContext(ctx, "invalid client credentials", slog.String("client_id", req.ClientID))
		h.sendError(w, "Invalid client credentials", http.StatusUnauthorized)
		return
	}

	grant, err := h.issuer.Issue(ctx, req.ClientID)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to issue token", slog.Any("error", err))
		h.sendError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	h.logger.InfoContext(ctx, "access token issued", slog.String("client_id", req.ClientID))
	h.sendToken(w, grant)
}

// Token обрабатывает POST /api/token
// Клиент аутентифицируется через HTTP Basic, тело - form с grant_type=refresh_token
func (h *OAuthHandler) Token(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	clientID, clientSecret, ok := r.BasicAuth()
	if !ok {
		w.Header().Set("WWW-Authenticate", `Basic realm="token"`)
		h.sendError(w, "Missing authorization header", http.StatusUnauthorized)
		return
	}

	if !h.cfg.Client.Check(clientID, clientSecret) {
		h.logger.WarnContext(ctx, "invalid client credentials", slog.String("client_id", clientID))
		w.Header().Set("WWW-Authenticate", `Basic realm="token"`)
		h.sendError(w, "Invalid client credentials", http.StatusUnauthorized)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		h.sendError(w, "invalid form body", http.StatusBadRequest)
		return
	}

	refreshToken := r.PostForm.Get("refresh_token")
	if r.PostForm.Get("grant_type") != "refresh_token" || refreshToken == "" {
		h.sendError(w, "Invalid grant type or missing refresh token", http.StatusBadRequest)
		return
	}

	grant, err := h.issuer.Refresh(ctx, clientID, refreshToken)
	if err != nil {
		if errors.Is(err, token.ErrInvalidRefreshToken) {
			h.logger.WarnContext(ctx, "invalid refresh token", slog.String("client_id", clientID))
			h.sendError(w, "Invalid refresh token", http.StatusUnauthorized)
			return
		}
		h.logger.ErrorContext(ctx, "failed to refresh token", slog.Any("error", err))
		h.sendError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	h.logger.InfoContext(ctx, "token refreshed", slog.String("client_id", clientID))
	h.sendToken(w, grant)
}

// Credentials обрабатывает GET /api/oauth-credentials
// Отдает параметры подключения для настройки внешнего клиента
func (h *OAuthHandler) Credentials(w http.ResponseWriter, r *http.Request) {
	if !h.cfg.ExposeCredentials {
		h.sendError(w, "not found", http.StatusNotFound)
		return
	}

	base := requestBaseURL(r)
	h.sendJSON(w, api.OAuthCredentialsResponse{
		ClientID:            h.cfg.Client.ID,
		ClientSecret:        h.cfg.Client.Secret,
		AuthorizationURL:    base + "/api/auth",
		TokenURL:            base + "/api/token",
		Scopes:              h.cfg.Scopes,
		TokenExchangeMethod: "basic_auth",
	}, http.StatusOK)
}

func (h *OAuthHandler) sendToken(w http.ResponseWriter, grant *token.Grant) {
	w.Header().Set("Cache-Control", "no-store")
	h.sendJSON(w, api.TokenResponse{
		AccessToken:  grant.AccessToken,
		RefreshToken: grant.RefreshToken,
		TokenType:    grant.TokenType,
		ExpiresIn:    grant.ExpiresIn,
		Scope:        grant.Scope,
	}, http.StatusOK)
}

// requestBaseURL восстанавливает внешний адрес сервера с учетом прокси
func requestBaseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto == "http" || proto == "https" {
		scheme = proto
	}

	host := r.Host
	if fwd := r.Header.Get("X-Forwarded-Host"); fwd != "" {
		host, _, _ = strings.Cut(fwd, ",")
		host = strings.TrimSpace(host)
	}

	return scheme + "://" + host
}
