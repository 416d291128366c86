// Package server собирает HTTP API сервиса: маршруты, middleware и
// жизненный цикл http.Server.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/iudanet/affilink/internal/server/handlers"
	"github.com/iudanet/affilink/internal/server/middleware"
	"github.com/iudanet/affilink/internal/server/storage"
)

// SessionService создает, находит и удаляет сессии
type SessionService interface {
	handlers.SessionManager
	middleware.SessionLookup
}

// TokenService выдает и проверяет bearer токены
type TokenService interface {
	handlers.TokenIssuer
	middleware.TokenValidator
}

// Deps содержит зависимости HTTP слоя
type Deps struct {
	Logger   *slog.Logger
	Users    storage.UserStorage
	Links    handlers.LinkLister
	Sessions SessionService
	Tokens   TokenService
	Resolver handlers.LinkResolver
	Stats    handlers.StatsProvider
	// RateLimiter ограничивает эндпоинты входа и выдачи токенов, nil отключает лимит
	RateLimiter *middleware.RateLimiter
	Version     string
	OAuth       handlers.OAuthConfig
}

// NewRouter создает chi router со всеми маршрутами API
func NewRouter(d Deps) http.Handler {
	logger := d.Logger

	healthHandler := handlers.NewHealthHandler(logger, d.Version)
	authHandler := handlers.NewAuthHandler(logger, d.Users, d.Sessions)
	oauthHandler := handlers.NewOAuthHandler(logger, d.Tokens, d.OAuth)
	linksHandler := handlers.NewLinksHandler(logger, d.Resolver, d.Links, d.Stats)

	// Порядок важен: bearer проверяется первым, невалидный токен отклоняет запрос
	// даже при наличии рабочей сессии
	strategies := []middleware.Strategy{
		middleware.BearerStrategy{Tokens: d.Tokens, Logger: logger},
		middleware.SessionStrategy{Sessions: d.Sessions, Users: d.Users, Logger: logger},
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestIDMiddleware)
	r.Use(middleware.LoggingWithSkip(logger, []string{"/api/health"}))
	r.Use(middleware.RecoveryMiddleware(logger))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", healthHandler.Health)
		r.Get("/oauth-credentials", oauthHandler.Credentials)

		r.Group(func(r chi.Router) {
			if d.RateLimiter != nil {
				r.Use(d.RateLimiter.Middleware)
			}
			r.Post("/register", authHandler.Register)
			r.Post("/login", authHandler.Login)
			r.Post("/auth", oauthHandler.Auth)
			r.Post("/token", oauthHandler.Token)
		})

		r.With(middleware.OptionalAuth(strategies...)).Post("/logout", authHandler.Logout)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth(logger, strategies...))
			r.Get("/user", authHandler.User)
			r.Post("/rewrite", linksHandler.Rewrite)
			r.Get("/stats/{type}", linksHandler.Stats)
			r.Get("/links", linksHandler.Links)
		})
	})

	return r
}

// Server оборачивает http.Server и освобождает ресурсы при остановке
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	closers    []func() error
}

// New создает сервер, слушающий addr
func New(addr string, handler http.Handler, logger *slog.Logger) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			// Запрос к провайдеру может занимать до 30 секунд
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		logger: logger,
	}
}

// OnShutdown регистрирует функцию, вызываемую после остановки HTTP сервера.
// Функции вызываются в обратном порядке регистрации.
func (s *Server) OnShutdown(fn func() error) {
	s.closers = append(s.closers, fn)
}

// Handler возвращает корневой handler сервера
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe запускает сервер и блокируется до его остановки
func (s *Server) ListenAndServe() error {
	s.logger.Info("HTTP server listening", slog.String("addr", s.httpServer.Addr))

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown останавливает прием запросов, дожидается активных и освобождает ресурсы
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error

	if err := s.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}

	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil

	return errors.Join(errs...)
}
