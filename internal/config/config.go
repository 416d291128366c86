// Package config собирает настройки сервера из значений по умолчанию,
// YAML файла, .env файла, переменных окружения и флагов командной строки.
//
// Приоритет (от меньшего к большему):
// defaults < YAML (-config) < .env < environment < flags.
//
// YAML файл использует те же ключи, что и переменные окружения:
//
//	ADDR: ":5000"
//	KV_BACKEND: bolt
//	SESSION_TTL: 12h
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"

	"github.com/iudanet/affilink/internal/crypto"
)

// Значения окружения приложения
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Поддерживаемые KV backends
const (
	KVMemory = "memory"
	KVBolt   = "bolt"
	KVRedis  = "redis"
)

// Поддерживаемые драйверы durable storage
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config содержит все настройки сервера
type Config struct {
	Addr        string
	Env         string
	LogLevel    string
	DatabaseURL string

	KVBackend     string
	KVBoltPath    string
	RedisAddr     string
	RedisPassword string

	SessionSecret string
	SessionTTL    time.Duration

	OAuthClientID          string
	OAuthClientSecret      string
	ExposeOAuthCredentials bool
	SystemAccountID        int64
	AccessTokenTTL         time.Duration
	RefreshTokenTTL        time.Duration

	CacheTTL        time.Duration
	CacheMaxEntries int

	StrackrAPIID   string
	StrackrAPIKey  string
	StrackrBaseURL string
	StrackrTimeout time.Duration

	MarketplaceMarker string
	AffiliateTag      string

	RateLimitPerMinute int
	// TrustProxy определяет адрес клиента по X-Forwarded-For от одного обратного прокси
	TrustProxy bool

	// ShowVersion выставляется флагом -version
	ShowVersion bool
}

// Default возвращает конфигурацию со значениями по умолчанию
func Default() *Config {
	return &Config{
		Addr:                   ":5000",
		Env:                    EnvDevelopment,
		LogLevel:               "info",
		DatabaseURL:            "sqlite://affilink.db",
		KVBackend:              KVMemory,
		KVBoltPath:             "affilink-kv.db",
		SessionTTL:             24 * time.Hour,
		OAuthClientID:          "affiliate-link-manager-client",
		ExposeOAuthCredentials: true,
		SystemAccountID:        1,
		AccessTokenTTL:         time.Hour,
		RefreshTokenTTL:        30 * 24 * time.Hour,
		CacheTTL:               time.Hour,
		StrackrBaseURL:         "https://api.strackr.com/v3",
		StrackrTimeout:         30 * time.Second,
		MarketplaceMarker:      "amazon.",
		AffiliateTag:           "turbofiliates-21",
		RateLimitPerMinute:     30,
	}
}

// LookupFunc возвращает значение по ключу, аналог os.LookupEnv
type LookupFunc func(key string) (string, bool)

// Load загружает конфигурацию из аргументов командной строки и окружения процесса
func Load(args []string) (*Config, error) {
	return load(args, os.LookupEnv, ".env", os.Stderr)
}

func load(args []string, lookupEnv LookupFunc, envFile string, output io.Writer) (*Config, error) {
	fset := flag.NewFlagSet("affilink", flag.ContinueOnError)
	fset.SetOutput(output)

	addr := fset.String("addr", "", "HTTP listen address (overrides ADDR)")
	configPath := fset.String("config", "", "Path to YAML config file")
	showVersion := fset.Bool("version", false, "Show version information")

	if err := fset.Parse(args); err != nil {
		return nil, fmt.Errorf("failed to parse flags: %w", err)
	}

	cfg := Default()
	cfg.ShowVersion = *showVersion

	if *configPath != "" {
		values, err := readYAML(*configPath)
		if err != nil {
			return nil, err
		}
		if err := cfg.apply(mapLookup(values)); err != nil {
			return nil, fmt.Errorf("config file %s: %w", *configPath, err)
		}
	}

	// .env не перекрывает переменные окружения
	dotenv, err := godotenv.Read(envFile)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read %s: %w", envFile, err)
	}
	if err := cfg.apply(mapLookup(dotenv)); err != nil {
		return nil, fmt.Errorf("%s: %w", envFile, err)
	}

	if err := cfg.apply(lookupEnv); err != nil {
		return nil, fmt.Errorf("environment: %w", err)
	}

	if *addr != "" {
		cfg.Addr = *addr
	}

	return cfg, nil
}

func readYAML(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	values := make(map[string]string, len(raw))
	for k, v := range raw {
		if v == nil {
			continue
		}
		values[strings.ToUpper(k)] = fmt.Sprint(v)
	}
	return values, nil
}

func mapLookup(m map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

// apply переносит найденные ключи в конфигурацию
func (c *Config) apply(lookup LookupFunc) error {
	var errs []error

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok {
			d, err := time.ParseDuration(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := lookup(key); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(key); ok {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}

	str("ADDR", &c.Addr)
	str("APP_ENV", &c.Env)
	str("LOG_LEVEL", &c.LogLevel)
	str("DATABASE_URL", &c.DatabaseURL)

	str("KV_BACKEND", &c.KVBackend)
	str("KV_BOLT_PATH", &c.KVBoltPath)
	str("REDIS_ADDR", &c.RedisAddr)
	str("REDIS_PASSWORD", &c.RedisPassword)

	str("SESSION_SECRET", &c.SessionSecret)
	dur("SESSION_TTL", &c.SessionTTL)

	str("OAUTH_CLIENT_ID", &c.OAuthClientID)
	str("OAUTH_CLIENT_SECRET", &c.OAuthClientSecret)
	boolean("EXPOSE_OAUTH_CREDENTIALS", &c.ExposeOAuthCredentials)
	if v, ok := lookup("SYSTEM_ACCOUNT_ID"); ok {
		id, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("SYSTEM_ACCOUNT_ID: %w", err))
		} else {
			c.SystemAccountID = id
		}
	}
	dur("ACCESS_TOKEN_TTL", &c.AccessTokenTTL)
	dur("REFRESH_TOKEN_TTL", &c.RefreshTokenTTL)

	dur("CACHE_TTL", &c.CacheTTL)
	integer("CACHE_MAX_ENTRIES", &c.CacheMaxEntries)

	str("STRACKR_API_ID", &c.StrackrAPIID)
	str("STRACKR_API_KEY", &c.StrackrAPIKey)
	str("STRACKR_BASE_URL", &c.StrackrBaseURL)
	dur("STRACKR_TIMEOUT", &c.StrackrTimeout)

	str("MARKETPLACE_MARKER", &c.MarketplaceMarker)
	str("AFFILIATE_TAG", &c.AffiliateTag)

	integer("RATE_LIMIT_PER_MINUTE", &c.RateLimitPerMinute)
	boolean("TRUST_PROXY", &c.TrustProxy)

	return errors.Join(errs...)
}

// Validate проверяет, что конфигурация пригодна для запуска
func (c *Config) Validate() error {
	var errs []error

	if c.Addr == "" {
		errs = append(errs, errors.New("ADDR must not be empty"))
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		errs = append(errs, fmt.Errorf("LOG_LEVEL: %w", err))
	}

	if _, _, err := c.Storage(); err != nil {
		errs = append(errs, err)
	}

	switch c.KVBackend {
	case KVMemory:
	case KVBolt:
		if c.KVBoltPath == "" {
			errs = append(errs, errors.New("KV_BOLT_PATH is required for the bolt backend"))
		}
	case KVRedis:
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("REDIS_ADDR is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("KV_BACKEND: unknown backend %q", c.KVBackend))
	}

	positive := map[string]time.Duration{
		"SESSION_TTL":       c.SessionTTL,
		"ACCESS_TOKEN_TTL":  c.AccessTokenTTL,
		"REFRESH_TOKEN_TTL": c.RefreshTokenTTL,
		"CACHE_TTL":         c.CacheTTL,
		"STRACKR_TIMEOUT":   c.StrackrTimeout,
	}
	for key, d := range positive {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", key))
		}
	}

	if c.OAuthClientID == "" {
		errs = append(errs, errors.New("OAUTH_CLIENT_ID must not be empty"))
	}
	if c.SystemAccountID <= 0 {
		errs = append(errs, errors.New("SYSTEM_ACCOUNT_ID must be positive"))
	}
	if c.CacheMaxEntries < 0 {
		errs = append(errs, errors.New("CACHE_MAX_ENTRIES must not be negative"))
	}
	if c.RateLimitPerMinute < 0 {
		errs = append(errs, errors.New("RATE_LIMIT_PER_MINUTE must not be negative"))
	}
	if c.AffiliateTag == "" || c.MarketplaceMarker == "" {
		errs = append(errs, errors.New("MARKETPLACE_MARKER and AFFILIATE_TAG must not be empty"))
	}

	return errors.Join(errs...)
}

// Storage разбирает DATABASE_URL на драйвер и DSN
// Строка без схемы считается путем к файлу SQLite
func (c *Config) Storage() (driver, dsn string, err error) {
	switch {
	case strings.HasPrefix(c.DatabaseURL, "postgres://"), strings.HasPrefix(c.DatabaseURL, "postgresql://"):
		return DriverPostgres, c.DatabaseURL, nil
	case strings.HasPrefix(c.DatabaseURL, "sqlite://"):
		dsn = strings.TrimPrefix(c.DatabaseURL, "sqlite://")
	case strings.Contains(c.DatabaseURL, "://"):
		return "", "", fmt.Errorf("DATABASE_URL: unsupported scheme in %q", c.DatabaseURL)
	default:
		dsn = c.DatabaseURL
	}

	if dsn == "" {
		return "", "", errors.New("DATABASE_URL: empty sqlite path")
	}
	return DriverSQLite, dsn, nil
}

// IsProduction сообщает, запущен ли сервер в production окружении
func (c *Config) IsProduction() bool {
	return c.Env == EnvProduction
}

// SlogLevel возвращает уровень логирования, info при ошибке разбора
func (c *Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// FillSecrets генерирует отсутствующие секреты и возвращает имена сгенерированных ключей.
// Сгенерированные значения живут только до перезапуска процесса.
func (c *Config) FillSecrets() ([]string, error) {
	var generated []string

	if c.SessionSecret == "" {
		secret, err := crypto.GenerateToken(crypto.DefaultTokenBytes)
		if err != nil {
			return nil, fmt.Errorf("failed to generate session secret: %w", err)
		}
		c.SessionSecret = secret
		generated = append(generated, "SESSION_SECRET")
	}

	if c.OAuthClientSecret == "" {
		secret, err := crypto.GenerateToken(crypto.DefaultTokenBytes)
		if err != nil {
			return nil, fmt.Errorf("failed to generate oauth client secret: %w", err)
		}
		c.OAuthClientSecret = secret
		generated = append(generated, "OAUTH_CLIENT_SECRET")
	}

	return generated, nil
}
