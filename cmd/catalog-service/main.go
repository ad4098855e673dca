// main.go — точка входа сервиса каталога файлов.
// Порядок запуска: config → logger → миграции (проверка схемы) → pgxpool →
// сервисы каталога → reaper → topologymetrics → HTTP-сервер.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/bigkaa/fileshare-catalog/internal/api/handlers"
	"github.com/bigkaa/fileshare-catalog/internal/api/middleware"
	"github.com/bigkaa/fileshare-catalog/internal/api/openapi"
	"github.com/bigkaa/fileshare-catalog/internal/config"
	"github.com/bigkaa/fileshare-catalog/internal/database"
	"github.com/bigkaa/fileshare-catalog/internal/repository"
	"github.com/bigkaa/fileshare-catalog/internal/server"
	"github.com/bigkaa/fileshare-catalog/internal/service"
)

func main() {
	if err := run(); err != nil {
		slog.Error("Каталог файлов завершился с ошибкой", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// run запускает сервис и блокируется до остановки.
// Отложенное освобождение ресурсов выполняется до выхода из процесса.
func run() error {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("загрузка конфигурации: %w", err)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	slog.SetDefault(logger)
	logger.Info("Каталог файлов запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.Duration("stale_file_age", cfg.StaleFileAge),
		slog.Duration("reap_interval", cfg.ReapInterval),
		slog.Duration("reap_grace", cfg.ReapGrace),
	)

	if os.Getenv("CAT_DEPHEALTH_GROUP") == "" {
		logger.Warn("CAT_DEPHEALTH_GROUP не задана, используется значение по умолчанию",
			slog.String("default", cfg.DephealthGroup),
		)
	}

	// 3. Миграции БД. Без проверенной схемы сервис не стартует.
	logger.Info("Проверка схемы БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		return fmt.Errorf("миграции БД: %w", err)
	}

	// 4. Подключение к PostgreSQL (pgxpool)
	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("подключение к PostgreSQL: %w", err)
	}
	defer pool.Close()

	// 4.1 Адаптер pgxpool → *sql.DB для topologymetrics (connection pool mode)
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 5. Repository и сервисы каталога
	adRepo := repository.NewAdvertisementRepository(pool)
	catalogSvc := service.NewCatalogService(adRepo, cfg.ReapGrace, cfg.DBStatementTimeout, logger)
	livenessSvc := service.NewLivenessService(catalogSvc, cfg.StaleFileAge, logger)
	facade := service.NewFacade(catalogSvc, livenessSvc)

	// 6. Reaper — после проверки схемы
	reaper := service.NewReaperService(catalogSvc, cfg.StaleFileAge, cfg.ReapInterval, logger)
	reaper.Start(ctx)
	defer reaper.Stop()

	// 7. topologymetrics — мониторинг PostgreSQL
	var deps handlers.DependencyReporter
	dephealthSvc, dephealthErr := service.NewDephealthService(
		"fileshare-catalog",
		cfg.DephealthGroup,
		pgDB,
		cfg.DatabaseURL(),
		cfg.DephealthCheckInterval,
		logger,
	)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
	} else if startErr := dephealthSvc.Start(ctx); startErr != nil {
		logger.Warn("Ошибка запуска topologymetrics",
			slog.String("error", startErr.Error()),
		)
	} else {
		defer dephealthSvc.Stop()
		deps = dephealthSvc
		logger.Info("topologymetrics запущен",
			slog.String("group", cfg.DephealthGroup),
			slog.String("check_interval", cfg.DephealthCheckInterval.String()),
		)
	}

	// 8. HTTP handlers
	healthHandler := handlers.NewHealthHandler(database.NewReadinessChecker(pool), deps)
	apiHandler := handlers.NewAPIHandler(facade, healthHandler, logger)

	// 9. Middleware: metrics → logging → OpenAPI-валидация
	middlewares := []func(http.Handler) http.Handler{
		middleware.MetricsMiddleware(),
		middleware.RequestLogger(logger),
	}
	if cfg.OpenAPIValidation {
		validator, err := openapi.NewValidator(logger)
		if err != nil {
			return fmt.Errorf("загрузка OpenAPI-контракта: %w", err)
		}
		middlewares = append(middlewares, validator.Middleware())
	}

	// 10. Запуск сервера (блокирующий вызов с graceful shutdown)
	srv := server.New(cfg, logger, apiHandler, middlewares...)
	if err := srv.Run(); err != nil {
		return fmt.Errorf("HTTP-сервер: %w", err)
	}

	logger.Info("Каталог файлов остановлен")
	return nil
}
