// Package resolver turns an original url into an affiliate tracking url.
//
// Resolution order: cached value, provider tracking link, marketplace tag
// fallback, unchanged url. Every freshly computed result is cached and
// recorded as a link for the caller.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/iudanet/affilink/internal/models"
	"github.com/iudanet/affilink/internal/server/cache"
	"github.com/iudanet/affilink/internal/server/strackr"
)

const (
	// DefaultMarketplaceMarker selects urls eligible for the tag fallback
	DefaultMarketplaceMarker = "amazon."
	// DefaultAffiliateTag is the value of the appended tag parameter
	DefaultAffiliateTag = "turbofiliates-21"
)

// ErrStore is returned when the link record could not be persisted
var ErrStore = errors.New("failed to store link")

// Provider builds tracking links
type Provider interface {
	BuildLink(ctx context.Context, rawURL string) (*strackr.LinkBuilderResponse, error)
}

// LinkSaver persists link records
type LinkSaver interface {
	SaveLink(ctx context.Context, link *models.Link) error
}

// Config configures the fallback policy
type Config struct {
	MarketplaceMarker string
	AffiliateTag      string
}

// Resolver resolves and records rewritten urls
type Resolver struct {
	provider Provider
	cache    *cache.Cache
	links    LinkSaver
	logger   *slog.Logger
	now      func() time.Time
	cfg      Config
}

// New creates a new Resolver
func New(provider Provider, c *cache.Cache, links LinkSaver, cfg Config, logger *slog.Logger) *Resolver {
	if cfg.MarketplaceMarker == "" {
		cfg.MarketplaceMarker = DefaultMarketplaceMarker
	}
	if cfg.AffiliateTag == "" {
		cfg.AffiliateTag = DefaultAffiliateTag
	}

	return &Resolver{
		provider: provider,
		cache:    c,
		links:    links,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// Resolve returns the rewritten url for originalURL on behalf of callerID.
// Provider failures never surface: the fallback result is returned instead.
// The only error is ErrStore, after the result has already been cached.
func (r *Resolver) Resolve(ctx context.Context, originalURL string, callerID int64, source string) (string, error) {
	key := cache.Key{CallerID: callerID, Source: source, URL: originalURL}

	if rewritten, ok := r.cache.Get(ctx, key); ok {
		r.logger.DebugContext(ctx, "Resolution cache hit", "caller_id", callerID, "source", source)
		return rewritten, nil
	}

	// Отключение клиента не должно обрывать запрос к провайдеру и запись в БД
	detached := context.WithoutCancel(ctx)

	rewritten := r.fromProvider(detached, originalURL)
	r.cache.Put(detached, key, rewritten)

	link := &models.Link{
		UserID:       callerID,
		OriginalURL:  originalURL,
		RewrittenURL: rewritten,
		Source:       source,
		CreatedAt:    r.now(),
	}
	if err := r.links.SaveLink(detached, link); err != nil {
		r.logger.ErrorContext(ctx, "Failed to persist link record",
			"caller_id", callerID,
			"error", err,
		)
		return "", fmt.Errorf("%w: %w", ErrStore, err)
	}

	return rewritten, nil
}

func (r *Resolver) fromProvider(ctx context.Context, originalURL string) string {
	resp, err := r.provider.BuildLink(ctx, originalURL)
	if err != nil {
		r.logger.WarnContext(ctx, "Tracking link provider failed, using fallback", "error", err)
		return r.fallback(originalURL)
	}

	if link, ok := strackr.FirstTrackingLink(resp); ok {
		return link
	}

	return r.fallback(originalURL)
}

// fallback applies the marketplace tag or passes the url through
func (r *Resolver) fallback(originalURL string) string {
	if IsMarketplaceURL(originalURL, r.cfg.MarketplaceMarker) {
		return AppendAffiliateTag(originalURL, r.cfg.AffiliateTag)
	}
	return originalURL
}
