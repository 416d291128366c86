package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/iudanet/affilink/internal/models"
	"github.com/iudanet/affilink/internal/server/resolver"
	"github.com/iudanet/affilink/internal/server/strackr"
	"github.com/iudanet/affilink/internal/validation"
	"github.com/iudanet/affilink/pkg/api"
)

// LinkResolver переписывает ссылки
type LinkResolver interface {
	Resolve(ctx context.Context, originalURL string, callerID int64, source string) (string, error)
}

// LinkLister возвращает историю ссылок пользователя
type LinkLister interface {
	GetUserLinks(ctx context.Context, userID int64) ([]*models.Link, error)
}

// StatsProvider загружает отчеты партнерской сети
type StatsProvider interface {
	Report(ctx context.Context, reportType, timeStart, timeEnd string) (json.RawMessage, error)
}

// LinksHandler обрабатывает переписывание ссылок, историю и статистику
type LinksHandler struct {
	responder
	resolver LinkResolver
	links    LinkLister
	stats    StatsProvider
}

// NewLinksHandler создает новый handler для работы со ссылками
func NewLinksHandler(logger *slog.Logger, resolver LinkResolver, links LinkLister, stats StatsProvider) *LinksHandler {
	return &LinksHandler{
		responder: responder{logger: logger},
		resolver:  resolver,
		links:     links,
		stats:     stats,
	}
}

// Rewrite обрабатывает POST /api/rewrite
func (h *LinksHandler) Rewrite(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, ok := IdentityFromContext(ctx)
	if !ok {
		h.sendError(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	var req api.RewriteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.logger.WarnContext(ctx, "failed to decode rewrite request", slog.Any("error", err))
		h.sendError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if req.URL == "" || req.Source == "" {
		h.sendError(w, "url and source are required", http.StatusBadRequest)
		return
	}
	if err := validation.ValidateURL(req.URL); err != nil {
		h.logger.WarnContext(ctx, "invalid url", slog.Any("error", err))
		h.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := validation.ValidateSource(req.Source); err != nil {
		h.logger.WarnContext(ctx, "invalid source", slog.String("source", req.Source))
		h.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	rewritten, err := h.resolver.Resolve(ctx, req.URL, id.UserID, req.Source)
	if err != nil {
		h.logger.ErrorContext(ctx, "rewrite failed",
			slog.Int64("user_id", id.UserID),
			slog.Any("error", err))

		message := "internal server error"
		if errors.Is(err, resolver.ErrStore) {
			message = resolver.ErrStore.Error()
		}
		h.sendErrorTitle(w, "Failed to rewrite link", message, http.StatusInternalServerError)
		return
	}

	h.sendJSON(w, api.RewriteResponse{RewrittenURL: rewritten}, http.StatusOK)
}

// Links обрабатывает GET /api/links
// Возвращает ссылки пользователя в порядке создания
func (h *LinksHandler) Links(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, ok := IdentityFromContext(ctx)
	if !ok {
		h.sendError(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	links, err := h.links.GetUserLinks(ctx, id.UserID)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to get user links",
			slog.Int64("user_id", id.UserID),
			slog.Any("error", err))
		h.sendError(w, "Failed to fetch links", http.StatusInternalServerError)
		return
	}

	if links == nil {
		links = []*models.Link{}
	}

	h.sendJSON(w, links, http.StatusOK)
}

// Stats обрабатывает GET /api/stats/{type}
// Ответ провайдера передается клиенту без изменений
func (h *LinksHandler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reportType := chi.URLParam(r, "type")

	timeStart := r.URL.Query().Get("timeStart")
	timeEnd := r.URL.Query().Get("timeEnd")
	if timeStart == "" || timeEnd == "" {
		h.sendError(w, "timeStart and timeEnd are required", http.StatusBadRequest)
		return
	}

	report, err := h.stats.Report(ctx, reportType, timeStart, timeEnd)
	if err != nil {
		if errors.Is(err, strackr.ErrInvalidReportType) {
			h.logger.WarnContext(ctx, "invalid report type", slog.String("type", reportType))
			h.sendError(w, "invalid report type", http.StatusBadRequest)
			return
		}

		h.logger.ErrorContext(ctx, "stats request failed",
			slog.String("type", reportType),
			slog.Any("error", err))

		message := "upstream request failed"
		var apiErr *strackr.APIError
		if errors.As(err, &apiErr) {
			message = fmt.Sprintf("provider responded with status %d", apiErr.StatusCode)
		}
		h.sendErrorTitle(w, fmt.Sprintf("Failed to fetch %s stats", reportType), message, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(report); err != nil {
		h.logger.ErrorContext(ctx, "failed to write stats response", slog.Any("error", err))
	}
}
