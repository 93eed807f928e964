// Пакет server — HTTP-сервер рабочего места с graceful shutdown.
// Без TLS — HTTP внутри кластера, TLS termination на API Gateway.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/arturkryukov/artstore/workstation/internal/api/handlers"
	"github.com/arturkryukov/artstore/workstation/internal/api/middleware"
	"github.com/arturkryukov/artstore/workstation/internal/api/openapi"
	"github.com/arturkryukov/artstore/workstation/internal/config"
	"github.com/arturkryukov/artstore/workstation/internal/service"
)

// UIRoutes — страницы рабочего места (server-side rendering).
type UIRoutes interface {
	Mount(r chi.Router)
}

// Server — HTTP-сервер рабочего места.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт HTTP-сервер с настроенными routes и middleware.
// jwtAuth — JWT middleware (nil — субъект берётся из заголовка gateway).
// validator — проверка запросов по OpenAPI (может быть nil).
// ui — страницы рабочего места (nil при WS_UI_ENABLED=false).
func New(
	cfg *config.Config,
	logger *slog.Logger,
	api *handlers.APIHandler,
	jwtAuth *middleware.JWTAuth,
	validator *openapi.Validator,
	ui UIRoutes,
) *Server {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           NewRouter(logger, api, jwtAuth, validator, ui),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// SSE-поток снимает дедлайн записи через http.ResponseController
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
}

// NewRouter собирает роутер: глобальные middleware, API и страницы.
func NewRouter(
	logger *slog.Logger,
	api *handlers.APIHandler,
	jwtAuth *middleware.JWTAuth,
	validator *openapi.Validator,
	ui UIRoutes,
) http.Handler {
	router := chi.NewRouter()

	// Глобальные middleware (применяются ко ВСЕМ маршрутам)
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.RequestLogger(logger, "/health/live", "/health/ready", "/metrics"))

	router.Group(func(r chi.Router) {
		// Health и metrics проверяются Kubernetes напрямую, без API Gateway.
		if jwtAuth != nil {
			r.Use(jwtAuthWithExclusions(jwtAuth, "/health/", "/metrics", "/api/v1/openapi.yaml"))
		} else {
			r.Use(middleware.TrustedGateway(service.DefaultOwner))
		}
		if validator != nil {
			r.Use(validator.Middleware())
		}
		handlers.HandlerFromMux(api, r)
	})

	if ui != nil {
		// Страницы открываются через gateway, который уже аутентифицировал пользователя.
		router.Group(func(r chi.Router) {
			r.Use(middleware.TrustedGateway(service.DefaultOwner))
			ui.Mount(r)
		})
	}

	return router
}

// jwtAuthWithExclusions оборачивает JWTAuth.Middleware(), пропуская указанные пути.
// Запросы к путям, начинающимся с любого из excludePrefixes, проходят без JWT.
func jwtAuthWithExclusions(jwtAuth *middleware.JWTAuth, excludePrefixes ...string) func(http.Handler) http.Handler {
	jwtMiddleware := jwtAuth.Middleware()

	return func(next http.Handler) http.Handler {
		protected := jwtMiddleware(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, prefix := range excludePrefixes {
				if strings.HasPrefix(r.URL.Path, prefix) {
					next.ServeHTTP(w, r)
					return
				}
			}
			protected.ServeHTTP(w, r)
		})
	}
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM).
// При получении сигнала выполняется graceful shutdown.
func (s *Server) Run() error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
		)

		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
