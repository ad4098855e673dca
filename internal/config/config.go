// Пакет config — загрузка и валидация конфигурации File Catalog
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// maxDurationSeconds — максимальное число секунд, представимое в time.Duration.
const maxDurationSeconds = math.MaxInt64 / int64(time.Second)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации File Catalog.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера (по умолчанию 8040)
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// --- HTTP Server Timeouts ---

	// Таймаут чтения HTTP-сервера (по умолчанию 30s)
	HTTPReadTimeout time.Duration
	// Таймаут записи HTTP-сервера (по умолчанию 60s)
	HTTPWriteTimeout time.Duration
	// Таймаут простоя HTTP-сервера (по умолчанию 120s)
	HTTPIdleTimeout time.Duration

	// --- PostgreSQL ---

	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	DBSSLMode  string
	// Максимальный размер пула подключений
	DBMaxConns int
	// Таймаут одной операции с каталогом (один SQL-запрос)
	DBStatementTimeout time.Duration

	// --- Каталог и reaper ---

	// Возраст объявления без heartbeat, после которого оно считается устаревшим
	StaleFileAge time.Duration
	// Период запуска reaper
	ReapInterval time.Duration
	// Запас, добавляемый к StaleFileAge при очистке
	ReapGrace time.Duration

	// --- API ---

	// Валидация входящих запросов по встроенному OpenAPI-документу
	OpenAPIValidation bool

	// --- topologymetrics ---

	// Группа сервиса в метриках зависимостей
	DephealthGroup string
	// Интервал проверки зависимостей
	DephealthCheckInterval time.Duration

	// --- Graceful shutdown ---

	// Таймаут graceful shutdown (по умолчанию 5s)
	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения.
// Возвращает ошибку, если значения некорректны.
//
//nolint:cyclop,funlen // линейный разбор переменных окружения
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// CAT_PORT — порт HTTP-сервера (по умолчанию 8040)
	cfg.Port, err = getEnvInt("CAT_PORT", 8040)
	if err != nil {
		return nil, fmt.Errorf("CAT_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("CAT_PORT: порт %d вне диапазона 1-65535", cfg.Port)
	}

	// CAT_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("CAT_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("CAT_LOG_LEVEL: %w", err)
	}

	// CAT_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("CAT_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("CAT_LOG_FORMAT: недопустимый формат %q, допустимые: json, text", cfg.LogFormat)
	}

	// --- HTTP Server Timeouts ---

	cfg.HTTPReadTimeout, err = getEnvDuration("CAT_HTTP_READ_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("CAT_HTTP_READ_TIMEOUT: %w", err)
	}

	cfg.HTTPWriteTimeout, err = getEnvDuration("CAT_HTTP_WRITE_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("CAT_HTTP_WRITE_TIMEOUT: %w", err)
	}

	cfg.HTTPIdleTimeout, err = getEnvDuration("CAT_HTTP_IDLE_TIMEOUT", 120*time.Second)
	if err != nil {
		return nil, fmt.Errorf("CAT_HTTP_IDLE_TIMEOUT: %w", err)
	}

	// --- PostgreSQL ---

	cfg.DBHost = getEnvDefault("CAT_DB_HOST", "localhost")

	cfg.DBPort, err = getEnvInt("CAT_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("CAT_DB_PORT: %w", err)
	}

	cfg.DBName = getEnvDefault("CAT_DB_NAME", "catalog_db")
	cfg.DBUser = getEnvDefault("CAT_DB_USER", "fileshare_service")
	// Пароль по умолчанию пустой (trust/peer-аутентификация на стороне PostgreSQL)
	cfg.DBPassword = os.Getenv("CAT_DB_PASSWORD")

	cfg.DBSSLMode = getEnvDefault("CAT_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return nil, fmt.Errorf("CAT_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}

	cfg.DBMaxConns, err = getEnvInt("CAT_DB_MAX_CONNS", 10)
	if err != nil {
		return nil, fmt.Errorf("CAT_DB_MAX_CONNS: %w", err)
	}
	if cfg.DBMaxConns < 1 {
		return nil, fmt.Errorf("CAT_DB_MAX_CONNS: значение должно быть >= 1")
	}

	cfg.DBStatementTimeout, err = getEnvPositiveDuration("CAT_DB_STATEMENT_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("CAT_DB_STATEMENT_TIMEOUT: %w", err)
	}

	// --- Каталог и reaper ---

	// CAT_STALE_FILE_AGE — целое число секунд (по умолчанию 30).
	// Некорректное значение — фатальная ошибка: иначе reaper мог бы
	// молча перестать удалять устаревшие объявления.
	staleSecs, err := getEnvInt("CAT_STALE_FILE_AGE", 30)
	if err != nil {
		return nil, fmt.Errorf("CAT_STALE_FILE_AGE: %w", err)
	}
	if staleSecs <= 0 {
		return nil, fmt.Errorf("CAT_STALE_FILE_AGE: значение должно быть > 0, получено %d", staleSecs)
	}
	if int64(staleSecs) > maxDurationSeconds {
		return nil, fmt.Errorf("CAT_STALE_FILE_AGE: значение %d превышает максимум %d", staleSecs, maxDurationSeconds)
	}
	cfg.StaleFileAge = time.Duration(staleSecs) * time.Second

	cfg.ReapInterval, err = getEnvPositiveDuration("CAT_REAP_INTERVAL", time.Minute)
	if err != nil {
		return nil, fmt.Errorf("CAT_REAP_INTERVAL: %w", err)
	}

	cfg.ReapGrace, err = getEnvDuration("CAT_REAP_GRACE", time.Second)
	if err != nil {
		return nil, fmt.Errorf("CAT_REAP_GRACE: %w", err)
	}
	if cfg.ReapGrace < 0 {
		return nil, fmt.Errorf("CAT_REAP_GRACE: значение не может быть отрицательным")
	}
	// Reaper удаляет объявления старше StaleFileAge + ReapGrace, сумма не должна переполняться
	if cfg.ReapGrace > math.MaxInt64-cfg.StaleFileAge {
		return nil, fmt.Errorf("CAT_REAP_GRACE: сумма с CAT_STALE_FILE_AGE превышает максимальную длительность")
	}

	// --- API ---

	cfg.OpenAPIValidation, err = getEnvBool("CAT_OPENAPI_VALIDATION", true)
	if err != nil {
		return nil, fmt.Errorf("CAT_OPENAPI_VALIDATION: %w", err)
	}

	// --- topologymetrics ---

	cfg.DephealthGroup = getEnvDefault("CAT_DEPHEALTH_GROUP", "fileshare")

	cfg.DephealthCheckInterval, err = getEnvPositiveDuration("CAT_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("CAT_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// --- Graceful shutdown ---

	cfg.ShutdownTimeout, err = getEnvDuration("CAT_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("CAT_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL для pgxpool.
// URL-формат: пустой пароль допустим (в keyword/value он ломает разбор).
func (c *Config) DatabaseDSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.DBUser, c.DBPassword),
		Host:     fmt.Sprintf("%s:%d", c.DBHost, c.DBPort),
		Path:     "/" + c.DBName,
		RawQuery: fmt.Sprintf("sslmode=%s&pool_max_conns=%d", c.DBSSLMode, c.DBMaxConns),
	}
	return u.String()
}

// DatabaseURL возвращает URL PostgreSQL в формате postgres://.
// Используется для лейблов topologymetrics, пароль не включается.
func (c *Config) DatabaseURL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.User(c.DBUser),
		Host:     fmt.Sprintf("%s:%d", c.DBHost, c.DBPort),
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=" + c.DBSSLMode,
	}
	return u.String()
}

// MigrateURL возвращает URL для golang-migrate (драйвер pgx5).
func (c *Config) MigrateURL() string {
	u := url.URL{
		Scheme:   "pgx5",
		User:     url.UserPassword(c.DBUser, c.DBPassword),
		Host:     fmt.Sprintf("%s:%d", c.DBHost, c.DBPort),
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=" + c.DBSSLMode,
	}
	return u.String()
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(val))
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// getEnvPositiveDuration — как getEnvDuration, но значение должно быть > 0.
func getEnvPositiveDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	d, err := getEnvDuration(key, defaultVal)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("значение должно быть > 0")
	}
	return d, nil
}

// getEnvBool возвращает булево значение переменной окружения или значение по умолчанию.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное булево значение: %q (допустимые: true, false, 1, 0)", val)
	}
	return b, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
