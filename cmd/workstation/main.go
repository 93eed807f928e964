// Точка входа рабочего места администратора.
// Загружает конфигурацию, применяет миграции, подключается к PostgreSQL,
// создаёт Keycloak клиент и сервисный слой, запускает синхронизацию каталога,
// topologymetrics и HTTP-сервер (JSON API + страницы /admin/workstation)
// с graceful shutdown.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/arturkryukov/artstore/workstation/internal/api/handlers"
	"github.com/arturkryukov/artstore/workstation/internal/api/middleware"
	"github.com/arturkryukov/artstore/workstation/internal/api/openapi"
	"github.com/arturkryukov/artstore/workstation/internal/config"
	"github.com/arturkryukov/artstore/workstation/internal/database"
	"github.com/arturkryukov/artstore/workstation/internal/domain/metrics"
	"github.com/arturkryukov/artstore/workstation/internal/domain/rbac"
	"github.com/arturkryukov/artstore/workstation/internal/keycloak"
	"github.com/arturkryukov/artstore/workstation/internal/repository"
	"github.com/arturkryukov/artstore/workstation/internal/server"
	"github.com/arturkryukov/artstore/workstation/internal/service"
	uihandlers "github.com/arturkryukov/artstore/workstation/internal/ui/handlers"
	"github.com/arturkryukov/artstore/workstation/internal/ui/i18n"
)

func main() {
	// 1. Конфигурация
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Логирование
	logger := config.SetupLogger(cfg)
	logger.Info("Рабочее место запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

	if os.Getenv("WS_DEPHEALTH_GROUP") == "" {
		logger.Warn("WS_DEPHEALTH_GROUP не задана, используется значение по умолчанию",
			slog.String("default", cfg.DephealthGroup),
		)
	}

	// 3. Миграции
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. PostgreSQL
	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// Проверка PostgreSQL в topologymetrics идёт через тот же пул.
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close() //nolint:errcheck

	// 5. Keycloak Admin API
	kcClient := keycloak.New(
		cfg.KeycloakURL,
		cfg.KeycloakRealm,
		cfg.KeycloakClientID,
		cfg.KeycloakClientSecret,
		nil,
		logger,
	)
	logger.Info("Keycloak клиент создан",
		slog.String("url", cfg.KeycloakURL),
		slog.String("realm", cfg.KeycloakRealm),
	)

	// 6. Репозитории
	txRunner := repository.NewTxRunner(pool)
	userRepo := repository.NewUserRepository(pool)
	filterRepo := repository.NewFilterStateRepository(pool)
	syncStateRepo := repository.NewSyncStateRepository(pool)

	mapping := rbac.GroupMapping{
		AdminGroups:  cfg.RoleAdminGroups,
		TeamGroups:   cfg.RoleTeamGroups,
		ClientGroups: cfg.RoleClientGroups,
	}

	// 7. Сервисы
	workstationSvc := service.NewWorkstationService(
		userRepo, filterRepo,
		metrics.NewAggregator(cfg.StatsCacheSize, cfg.StatsCacheTTL),
		cfg.DirectoryMaxUsers, cfg.RefreshTimeout,
		logger,
	)

	usersInTx := func(ctx context.Context, fn func(service.UserWriter) error) error {
		return txRunner.RunInTx(ctx, func(tx pgx.Tx) error {
			return fn(repository.NewUserRepository(tx))
		})
	}
	transferSvc := service.NewTransferService(userRepo, usersInTx, cfg.ExportMaxRows, workstationSvc.Invalidate, logger)

	// После синхронизации снимки всех владельцев помечаются устаревшими.
	syncSvc := service.NewDirectorySyncService(
		kcClient, userRepo, syncStateRepo,
		mapping, cfg.DepartmentAttribute,
		cfg.DirectoryPageSize, cfg.DirectorySyncInterval,
		workstationSvc.Invalidate,
		logger,
	)

	// 8. topologymetrics
	var depsChecker handlers.ReadinessChecker
	dephealthSvc, dephealthErr := service.NewDephealthService(
		"workstation",
		cfg.DephealthGroup,
		pgDB,
		cfg.DatabaseURL(),
		cfg.JWTJWKSURL,
		cfg.DephealthCheckInterval,
		logger,
	)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
		dephealthSvc = nil
	} else if startErr := dephealthSvc.Start(ctx); startErr != nil {
		logger.Warn("Ошибка запуска topologymetrics", slog.String("error", startErr.Error()))
		dephealthSvc = nil
	} else {
		depsChecker = dephealthSvc
		logger.Info("topologymetrics запущен",
			slog.String("group", cfg.DephealthGroup),
			slog.String("check_interval", cfg.DephealthCheckInterval.String()),
		)
	}

	// 9. Фоновая синхронизация каталога
	syncSvc.Start(ctx)

	// 10. API
	healthHandler := handlers.NewHealthHandler(database.NewReadinessChecker(pool), kcClient, depsChecker)
	apiHandler := handlers.NewAPIHandler(healthHandler, workstationSvc, transferSvc, syncSvc, logger)

	doc, err := openapi.Load(ctx)
	if err != nil {
		logger.Error("Ошибка загрузки контракта API", slog.String("error", err.Error()))
		os.Exit(1)
	}
	validator, err := openapi.NewValidator(doc, logger)
	if err != nil {
		logger.Error("Ошибка создания валидатора запросов", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 11. JWT (при WS_AUTH_ENABLED=false субъект берётся из заголовка gateway)
	var jwtAuth *middleware.JWTAuth
	if cfg.AuthEnabled {
		jwtAuth, err = middleware.NewJWTAuth(
			cfg.JWTJWKSURL,
			cfg.JWTIssuer,
			mapping,
			cfg.JWKSRefreshInterval,
			cfg.JWTLeeway,
			logger,
		)
		if err != nil {
			logger.Error("Ошибка создания JWT middleware", slog.String("error", err.Error()))
			os.Exit(1)
		}
		logger.Info("JWT middleware инициализирован",
			slog.String("jwks_url", cfg.JWTJWKSURL),
			slog.String("issuer", cfg.JWTIssuer),
		)
	} else {
		logger.Warn("Проверка JWT отключена (WS_AUTH_ENABLED=false), доверяем заголовку " + middleware.ForwardedUserHeader)
	}

	// 12. Страницы рабочего места
	var ui server.UIRoutes
	if cfg.UIEnabled {
		bundle, err := i18n.Load(logger)
		if err != nil {
			logger.Error("Ошибка загрузки переводов", slog.String("error", err.Error()))
			os.Exit(1)
		}
		ui = uihandlers.NewUI(
			uihandlers.NewWorkstationHandler(workstationSvc, transferSvc, syncSvc, uihandlers.DefaultPageSize, logger),
			uihandlers.NewEventsHandler(workstationSvc, cfg.SSEInterval, logger),
			bundle,
		)
		logger.Info("UI рабочего места включён", slog.String("path", "/admin/workstation"))
	} else {
		logger.Info("UI рабочего места отключён (WS_UI_ENABLED=false)")
	}

	// 13. HTTP-сервер
	srv := server.New(cfg, logger, apiHandler, jwtAuth, validator, ui)
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 14. Остановка фоновых задач
	logger.Info("Останавливаем фоновые задачи...")
	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}
	syncSvc.Stop()

	logger.Info("Рабочее место остановлено")
}
