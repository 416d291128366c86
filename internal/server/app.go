package server

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/iudanet/affilink/internal/config"
	"github.com/iudanet/affilink/internal/server/cache"
	"github.com/iudanet/affilink/internal/server/handlers"
	"github.com/iudanet/affilink/internal/server/kv"
	"github.com/iudanet/affilink/internal/server/kv/boltkv"
	"github.com/iudanet/affilink/internal/server/kv/rediskv"
	"github.com/iudanet/affilink/internal/server/middleware"
	"github.com/iudanet/affilink/internal/server/resolver"
	"github.com/iudanet/affilink/internal/server/session"
	"github.com/iudanet/affilink/internal/server/storage"
	"github.com/iudanet/affilink/internal/server/storage/postgres"
	"github.com/iudanet/affilink/internal/server/storage/sqlite"
	"github.com/iudanet/affilink/internal/server/strackr"
	"github.com/iudanet/affilink/internal/server/token"
)

const (
	// kvSweepInterval период очистки просроченных записей KV
	kvSweepInterval = time.Minute
	// tokenCleanupInterval период удаления просроченных refresh токенов
	tokenCleanupInterval = time.Hour
)

// OpenStorage открывает durable storage по DATABASE_URL
func OpenStorage(ctx context.Context, cfg *config.Config) (storage.Storage, error) {
	driver, dsn, err := cfg.Storage()
	if err != nil {
		return nil, err
	}

	switch driver {
	case config.DriverPostgres:
		st, err := postgres.New(ctx, dsn)
		if err != nil {
			return nil, fmt.Errorf("postgres storage: %w", err)
		}
		return st, nil
	default:
		st, err := sqlite.New(ctx, dsn)
		if err != nil {
			return nil, fmt.Errorf("sqlite storage: %w", err)
		}
		return st, nil
	}
}

// OpenKV открывает KV backend для сессий и access токенов
func OpenKV(ctx context.Context, cfg *config.Config) (kv.Store, error) {
	switch cfg.KVBackend {
	case config.KVBolt:
		store, err := boltkv.New(cfg.KVBoltPath, boltkv.Options{SweepInterval: kvSweepInterval})
		if err != nil {
			return nil, fmt.Errorf("bolt kv: %w", err)
		}
		return store, nil
	case config.KVRedis:
		store, err := rediskv.New(ctx, cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			return nil, fmt.Errorf("redis kv: %w", err)
		}
		return store, nil
	case config.KVMemory, "":
		return kv.NewMemoryStore(kv.MemoryOptions{SweepInterval: kvSweepInterval}), nil
	default:
		return nil, fmt.Errorf("unknown kv backend %q", cfg.KVBackend)
	}
}

// Build собирает все компоненты сервиса по конфигурации.
// Ресурсы освобождаются в Server.Shutdown.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger, version string) (*Server, error) {
	st, err := OpenStorage(ctx, cfg)
	if err != nil {
		return nil, err
	}

	store, err := OpenKV(ctx, cfg)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	// Ограничение размера применяется только к кешу, чтобы вытеснение
	// не затрагивало сессии и токены
	cacheStore := store
	if cfg.KVBackend == config.KVMemory && cfg.CacheMaxEntries > 0 {
		cacheStore = kv.NewMemoryStore(kv.MemoryOptions{
			SweepInterval: kvSweepInterval,
			MaxEntries:    cfg.CacheMaxEntries,
		})
	}

	provider := strackr.NewClient(strackr.Config{
		BaseURL: cfg.StrackrBaseURL,
		APIID:   cfg.StrackrAPIID,
		APIKey:  cfg.StrackrAPIKey,
		Timeout: cfg.StrackrTimeout,
	})

	linkResolver := resolver.New(
		provider,
		cache.New(cacheStore, cfg.CacheTTL, logger),
		st,
		resolver.Config{
			MarketplaceMarker: cfg.MarketplaceMarker,
			AffiliateTag:      cfg.AffiliateTag,
		},
		logger,
	)

	sessions := session.NewManager(store, session.Config{
		Secret: []byte(cfg.SessionSecret),
		TTL:    cfg.SessionTTL,
		Secure: cfg.IsProduction(),
	}, logger)

	issuer := token.NewIssuer(store, st, token.Config{
		SystemAccountID: cfg.SystemAccountID,
		AccessTTL:       cfg.AccessTokenTTL,
		RefreshTTL:      cfg.RefreshTokenTTL,
	}, logger)

	var limiter *middleware.RateLimiter
	if cfg.RateLimitPerMinute > 0 {
		limiter = middleware.NewRateLimiter(cfg.RateLimitPerMinute, time.Minute, logger)
		limiter.SetTrustProxy(cfg.TrustProxy)
	}

	router := NewRouter(Deps{
		Logger:      logger,
		Version:     version,
		Users:       st,
		Links:       st,
		Sessions:    sessions,
		Tokens:      issuer,
		Resolver:    linkResolver,
		Stats:       provider,
		RateLimiter: limiter,
		OAuth: handlers.OAuthConfig{
			Client: token.ClientCredentials{
				ID:     cfg.OAuthClientID,
				Secret: cfg.OAuthClientSecret,
			},
			ExposeCredentials: cfg.ExposeOAuthCredentials,
		},
	})

	srv := New(cfg.Addr, router, logger)

	srv.OnShutdown(func() error {
		if err := st.Close(); err != nil {
			return fmt.Errorf("close storage: %w", err)
		}
		return nil
	})
	srv.OnShutdown(func() error {
		if err := store.Close(); err != nil {
			return fmt.Errorf("close kv: %w", err)
		}
		return nil
	})
	if cacheStore != store {
		srv.OnShutdown(cacheStore.Close)
	}
	if limiter != nil {
		srv.OnShutdown(func() error {
			limiter.Stop()
			return nil
		})
	}

	stopCleanup := startTokenCleanup(st, tokenCleanupInterval, logger)
	srv.OnShutdown(func() error {
		stopCleanup()
		return nil
	})

	return srv, nil
}

// expiredTokenDeleter удаляет просроченные refresh токены
type expiredTokenDeleter interface {
	DeleteExpiredTokens(ctx context.Context) (int, error)
}

// startTokenCleanup периодически удаляет просроченные refresh токены.
// Возвращает функцию остановки, дожидающуюся завершения goroutine.
func startTokenCleanup(tokens expiredTokenDeleter, interval time.Duration, logger *slog.Logger) func() {
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				deleted, err := tokens.DeleteExpiredTokens(ctx)
				if err != nil {
					logger.Error("failed to delete expired refresh tokens", slog.Any("error", err))
					continue
				}
				if deleted > 0 {
					logger.Info("expired refresh tokens deleted", slog.Int("count", deleted))
				}
			}
		}
	}()

	return func() {
		cancel()
		wg.Wait()
	}
}
