// Пакет config — загрузка и валидация конфигурации Workstation
// из переменных окружения с префиксом WS_.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации Workstation.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера (диапазон 8010-8019)
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// --- PostgreSQL ---

	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string

	// --- Keycloak ---

	// URL Keycloak (например, https://keycloak.kryukov.lan)
	KeycloakURL string
	// Имя realm в Keycloak
	KeycloakRealm string
	// Client ID для доступа к Keycloak Admin API
	KeycloakClientID string
	// Client Secret для доступа к Keycloak Admin API
	KeycloakClientSecret string

	// --- JWT ---

	// Проверять ли Bearer-токены на JSON API
	AuthEnabled bool
	// Issuer JWT (авто-вычисляется из KeycloakURL, если не задан)
	JWTIssuer string
	// URL JWKS endpoint (авто-вычисляется из KeycloakURL, если не задан)
	JWTJWKSURL string
	// Допустимое расхождение часов при проверке exp/nbf
	JWTLeeway time.Duration
	// Интервал обновления JWKS
	JWKSRefreshInterval time.Duration

	// --- Каталог пользователей ---

	// Интервал синхронизации каталога с Keycloak
	DirectorySyncInterval time.Duration
	// Размер страницы при чтении пользователей из Keycloak
	DirectoryPageSize int
	// Максимальное количество пользователей в ответе рабочего места
	DirectoryMaxUsers int
	// Атрибут Keycloak с названием отдела
	DepartmentAttribute string

	// --- Маппинг групп → ролей ---

	RoleAdminGroups  []string
	RoleTeamGroups   []string
	RoleClientGroups []string

	// --- Показатели ---

	// Размер кэша показателей (количество отпечатков коллекций)
	StatsCacheSize int
	// Время жизни записи кэша показателей
	StatsCacheTTL time.Duration
	// Таймаут одного обновления рабочего места
	RefreshTimeout time.Duration
	// Максимальное количество строк в экспорте
	ExportMaxRows int

	// --- UI ---

	// Включить серверный UI /admin/workstation
	UIEnabled bool
	// Интервал отправки quick-stats через SSE
	SSEInterval time.Duration

	// --- topologymetrics ---

	// Группа сервисов для метрик зависимостей
	DephealthGroup string
	// Интервал проверки зависимостей
	DephealthCheckInterval time.Duration

	// --- Graceful shutdown ---

	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// WS_PORT — порт HTTP-сервера (по умолчанию 8010)
	cfg.Port, err = getEnvInt("WS_PORT", 8010)
	if err != nil {
		return nil, fmt.Errorf("WS_PORT: %w", err)
	}
	if cfg.Port < 8010 || cfg.Port > 8019 {
		return nil, fmt.Errorf("WS_PORT: значение %d вне допустимого диапазона 8010-8019", cfg.Port)
	}

	cfg.LogLevel, err = parseLogLevel(getEnvDefault("WS_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("WS_LOG_LEVEL: %w", err)
	}

	cfg.LogFormat = getEnvDefault("WS_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("WS_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// --- PostgreSQL ---

	cfg.DBHost, err = getEnvRequired("WS_DB_HOST")
	if err != nil {
		return nil, err
	}

	cfg.DBPort, err = getEnvInt("WS_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("WS_DB_PORT: %w", err)
	}

	cfg.DBName, err = getEnvRequired("WS_DB_NAME")
	if err != nil {
		return nil, err
	}

	cfg.DBUser, err = getEnvRequired("WS_DB_USER")
	if err != nil {
		return nil, err
	}

	cfg.DBPassword, err = getEnvRequired("WS_DB_PASSWORD")
	if err != nil {
		return nil, err
	}

	cfg.DBSSLMode = getEnvDefault("WS_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return nil, fmt.Errorf("WS_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}

	// --- Keycloak ---

	cfg.KeycloakURL, err = getEnvRequired("WS_KEYCLOAK_URL")
	if err != nil {
		return nil, err
	}
	cfg.KeycloakURL = strings.TrimRight(cfg.KeycloakURL, "/")

	cfg.KeycloakRealm = getEnvDefault("WS_KEYCLOAK_REALM", "artstore")

	cfg.KeycloakClientID, err = getEnvRequired("WS_KEYCLOAK_CLIENT_ID")
	if err != nil {
		return nil, err
	}

	cfg.KeycloakClientSecret, err = getEnvRequired("WS_KEYCLOAK_CLIENT_SECRET")
	if err != nil {
		return nil, err
	}

	// --- JWT ---

	cfg.AuthEnabled, err = getEnvBool("WS_AUTH_ENABLED", true)
	if err != nil {
		return nil, fmt.Errorf("WS_AUTH_ENABLED: %w", err)
	}

	// WS_JWT_ISSUER — авто-вычисляется из KeycloakURL, если не задан
	cfg.JWTIssuer = getEnvDefault("WS_JWT_ISSUER",
		fmt.Sprintf("%s/realms/%s", cfg.KeycloakURL, cfg.KeycloakRealm))

	// WS_JWT_JWKS_URL — авто-вычисляется из KeycloakURL, если не задан
	cfg.JWTJWKSURL = getEnvDefault("WS_JWT_JWKS_URL",
		fmt.Sprintf("%s/realms/%s/protocol/openid-connect/certs", cfg.KeycloakURL, cfg.KeycloakRealm))

	cfg.JWTLeeway, err = getEnvDuration("WS_JWT_LEEWAY", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("WS_JWT_LEEWAY: %w", err)
	}

	cfg.JWKSRefreshInterval, err = getEnvDuration("WS_JWKS_REFRESH_INTERVAL", 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("WS_JWKS_REFRESH_INTERVAL: %w", err)
	}

	// --- Каталог пользователей ---

	cfg.DirectorySyncInterval, err = getEnvDuration("WS_DIRECTORY_SYNC_INTERVAL", 10*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("WS_DIRECTORY_SYNC_INTERVAL: %w", err)
	}

	cfg.DirectoryPageSize, err = getEnvInt("WS_DIRECTORY_PAGE_SIZE", 100)
	if err != nil {
		return nil, fmt.Errorf("WS_DIRECTORY_PAGE_SIZE: %w", err)
	}
	if cfg.DirectoryPageSize < 1 || cfg.DirectoryPageSize > 1000 {
		return nil, fmt.Errorf("WS_DIRECTORY_PAGE_SIZE: значение %d вне допустимого диапазона 1-1000", cfg.DirectoryPageSize)
	}

	cfg.DirectoryMaxUsers, err = getEnvInt("WS_DIRECTORY_MAX_USERS", 5000)
	if err != nil {
		return nil, fmt.Errorf("WS_DIRECTORY_MAX_USERS: %w", err)
	}
	if cfg.DirectoryMaxUsers < 1 {
		return nil, fmt.Errorf("WS_DIRECTORY_MAX_USERS: значение %d должно быть положительным", cfg.DirectoryMaxUsers)
	}

	cfg.DepartmentAttribute = getEnvDefault("WS_DEPARTMENT_ATTRIBUTE", "department")

	// --- Маппинг групп → ролей ---

	cfg.RoleAdminGroups = parseCSV(getEnvDefault("WS_ROLE_ADMIN_GROUPS", "artstore-admins"))
	cfg.RoleTeamGroups = parseCSV(getEnvDefault("WS_ROLE_TEAM_GROUPS", "artstore-team"))
	cfg.RoleClientGroups = parseCSV(getEnvDefault("WS_ROLE_CLIENT_GROUPS", "artstore-clients"))

	// --- Показатели ---

	cfg.StatsCacheSize, err = getEnvInt("WS_STATS_CACHE_SIZE", 256)
	if err != nil {
		return nil, fmt.Errorf("WS_STATS_CACHE_SIZE: %w", err)
	}
	if cfg.StatsCacheSize < 1 {
		return nil, fmt.Errorf("WS_STATS_CACHE_SIZE: значение %d должно быть положительным", cfg.StatsCacheSize)
	}

	cfg.StatsCacheTTL, err = getEnvDuration("WS_STATS_CACHE_TTL", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("WS_STATS_CACHE_TTL: %w", err)
	}

	cfg.RefreshTimeout, err = getEnvDuration("WS_REFRESH_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("WS_REFRESH_TIMEOUT: %w", err)
	}

	cfg.ExportMaxRows, err = getEnvInt("WS_EXPORT_MAX_ROWS", 10000)
	if err != nil {
		return nil, fmt.Errorf("WS_EXPORT_MAX_ROWS: %w", err)
	}
	if cfg.ExportMaxRows < 1 || cfg.ExportMaxRows > 1048575 {
		return nil, fmt.Errorf("WS_EXPORT_MAX_ROWS: значение %d вне допустимого диапазона 1-1048575", cfg.ExportMaxRows)
	}

	// --- UI ---

	cfg.UIEnabled, err = getEnvBool("WS_UI_ENABLED", true)
	if err != nil {
		return nil, fmt.Errorf("WS_UI_ENABLED: %w", err)
	}

	cfg.SSEInterval, err = getEnvDuration("WS_SSE_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("WS_SSE_INTERVAL: %w", err)
	}
	if cfg.SSEInterval < time.Second {
		return nil, fmt.Errorf("WS_SSE_INTERVAL: значение %s меньше 1s", cfg.SSEInterval)
	}

	// --- topologymetrics ---

	cfg.DephealthGroup = getEnvDefault("WS_DEPHEALTH_GROUP", "artstore")

	cfg.DephealthCheckInterval, err = getEnvDuration("WS_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("WS_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// --- Graceful shutdown ---

	cfg.ShutdownTimeout, err = getEnvDuration("WS_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("WS_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL для pgxpool.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// DatabaseURL возвращает URL в формате golang-migrate (pgx5://...).
// Пароль экранируется.
func (c *Config) DatabaseURL() string {
	u := url.URL{
		Scheme:   "pgx5",
		User:     url.UserPassword(c.DBUser, c.DBPassword),
		Host:     fmt.Sprintf("%s:%d", c.DBHost, c.DBPort),
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=" + url.QueryEscape(c.DBSSLMode),
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

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvBool принимает значения strconv.ParseBool (true/false/1/0 ...).
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное логическое значение: %q", val)
	}
	return b, nil
}

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

// parseCSV разбирает строку, разделённую запятыми, на срез строк.
// Пробелы вокруг элементов убираются, пустые элементы игнорируются.
func parseCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
