// Package cache memoizes link resolutions per caller and source.
// A cached value is only as authoritative as its age: entries older than the
// configured TTL are treated as absent even if the backing store still holds them.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/iudanet/affilink/internal/server/kv"
)

const keyPrefix = "cache:"

// Key identifies a resolution
type Key struct {
	URL      string
	Source   string
	CallerID int64
}

// String renders the storage key. The url goes last and the source is escaped,
// so colons in either cannot make two keys collide.
func (k Key) String() string {
	return keyPrefix + strconv.FormatInt(k.CallerID, 10) + ":" + url.QueryEscape(k.Source) + ":" + k.URL
}

type entry struct {
	ComputedAt   time.Time `json:"computedAt"`
	RewrittenURL string    `json:"rewrittenUrl"`
}

// Cache is a TTL cache of rewritten URLs
type Cache struct {
	store  kv.Store
	logger *slog.Logger
	now    func() time.Time
	ttl    time.Duration
}

// New creates a cache on top of store
func New(store kv.Store, ttl time.Duration, logger *slog.Logger) *Cache {
	return &Cache{
		store:  store,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
}

// SetClock overrides the clock, used by tests
func (c *Cache) SetClock(now func() time.Time) {
	c.now = now
}

// Get returns the cached rewritten URL if it was computed less than TTL ago
func (c *Cache) Get(ctx context.Context, key Key) (string, bool) {
	data, err := c.store.Get(ctx, key.String())
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			c.logger.WarnContext(ctx, "Cache read failed", "error", err)
		}
		return "", false
	}

	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		c.logger.WarnContext(ctx, "Corrupted cache entry", "error", err)
		return "", false
	}

	if c.now().Sub(e.ComputedAt) >= c.ttl {
		return "", false
	}

	return e.RewrittenURL, true
}

// Put records rewrittenURL for key, replacing any previous value
func (c *Cache) Put(ctx context.Context, key Key, rewrittenURL string) {
	data, err := json.Marshal(entry{
		RewrittenURL: rewrittenURL,
		ComputedAt:   c.now(),
	})
	if err != nil {
		c.logger.WarnContext(ctx, "Failed to encode cache entry", "error", err)
		return
	}

	// Физическое удаление доверено хранилищу, свежесть проверяется при чтении
	if err := c.store.Set(ctx, key.String(), data, c.ttl); err != nil {
		c.logger.WarnContext(ctx, "Cache write failed", "error", err)
	}
}
