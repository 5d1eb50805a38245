// Package config provides application configuration loaded from environment variables.
// Use the package-level Get() function to obtain the singleton Config instance.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// ──────────────────────────────────────────────────────────────────────────────
// Sub-config structs
// ──────────────────────────────────────────────────────────────────────────────

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port                 string        // e.g. "8080"
	BackofficePort       string        // e.g. "8081"
	Env                  string        // "development" | "production"
	ReadTimeout          time.Duration // default 10s
	WriteTimeout         time.Duration // default 10s
	BackofficeAllowedIPs string        // comma-separated IPs; "" = allow all
	EmbedBackoffice      bool          // serve the back-office router from the API process, default true
	AllowedOrigins       string        // CORS and WebSocket origins; "" = allow all
	MigrationsDir        string        // default "migrations"
}

// DBConfig holds PostgreSQL connection settings.
type DBConfig struct {
	DSN             string        // full postgres DSN
	MaxOpenConns    int           // default 25
	MaxIdleConns    int           // default 10
	ConnMaxLifetime time.Duration // default 5m
}

// JWTConfig holds token verification settings. Tokens are issued by the
// account service; this process only verifies them.
type JWTConfig struct {
	AccessSecret string // must be set
}

// SchedulerConfig controls the generate/settle loop.
type SchedulerConfig struct {
	Tick             time.Duration // default 2s; must be below MinPeriodSeconds
	Workers          int           // concurrent items per tick, default 8
	MinPeriodSeconds int64         // shortest period an item may use, default 30
	CatchupLimit     int           // missed periods drawn per item per tick, default 32
}

// WagerConfig holds wager placement rules.
type WagerConfig struct {
	MinStake decimal.Decimal // default 1
	Cutoff   time.Duration   // no wagers in the last Cutoff of a period, default 5s
	// Per-user rate limit on POST /api/wagers.
	RateLimitPerSecond float64 // default 2
	RateLimitBurst     int     // default 5
}

// RedisConfig holds the outcome cache connection. An empty Addr disables the
// cache.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration // default 24h
}

// ──────────────────────────────────────────────────────────────────────────────
// Top-level Config
// ──────────────────────────────────────────────────────────────────────────────

// Config is the root configuration object for the entire application.
type Config struct {
	Server    ServerConfig
	DB        DBConfig
	JWT       JWTConfig
	Scheduler SchedulerConfig
	Wager     WagerConfig
	Redis     RedisConfig
}

// IsProd returns true when running in the production environment.
func (c *Config) IsProd() bool {
	return c.Server.Env == "production"
}

// Validate checks that all required configuration values are present and valid.
// All problems are reported together.
func (c *Config) Validate() error {
	var errs []error

	if c.JWT.AccessSecret == "" {
		errs = append(errs, errors.New("JWT_ACCESS_SECRET must be set"))
	}

	if c.IsProd() && c.DB.DSN == "" {
		errs = append(errs, errors.New("DATABASE_DSN must be set in production"))
	}

	if c.Scheduler.Tick <= 0 {
		errs = append(errs, fmt.Errorf("SCHEDULER_TICK must be positive, got %s", c.Scheduler.Tick))
	}
	if c.Scheduler.MinPeriodSeconds <= 0 {
		errs = append(errs, fmt.Errorf(
			"SCHEDULER_MIN_PERIOD_SECONDS must be positive, got %d", c.Scheduler.MinPeriodSeconds))
	} else if c.Scheduler.Tick >= time.Duration(c.Scheduler.MinPeriodSeconds)*time.Second {
		errs = append(errs, fmt.Errorf(
			"SCHEDULER_TICK (%s) must be shorter than the minimum period (%ds)",
			c.Scheduler.Tick, c.Scheduler.MinPeriodSeconds,
		))
	}
	if c.Scheduler.Workers < 1 {
		errs = append(errs, fmt.Errorf("SCHEDULER_WORKERS must be at least 1, got %d", c.Scheduler.Workers))
	}
	if c.Scheduler.CatchupLimit < 0 {
		errs = append(errs, fmt.Errorf("SCHEDULER_CATCHUP_LIMIT must not be negative, got %d", c.Scheduler.CatchupLimit))
	}

	if !c.Wager.MinStake.IsPositive() {
		errs = append(errs, fmt.Errorf("WAGER_MIN_STAKE must be positive, got %s", c.Wager.MinStake))
	}
	if c.Wager.Cutoff < 0 ||
		(c.Scheduler.MinPeriodSeconds > 0 && c.Wager.Cutoff >= time.Duration(c.Scheduler.MinPeriodSeconds)*time.Second) {
		errs = append(errs, fmt.Errorf(
			"WAGER_CUTOFF must be in [0, minimum period), got %s", c.Wager.Cutoff))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// AllowedIPs splits BACKOFFICE_ALLOWED_IPS into a clean slice.
func (c *Config) AllowedIPs() []string {
	return splitList(c.Server.BackofficeAllowedIPs)
}

// Origins splits ALLOWED_ORIGINS into a clean slice.
func (c *Config) Origins() []string {
	return splitList(c.Server.AllowedOrigins)
}

func splitList(raw string) []string {
	var out []string
	for _, v := range strings.Split(raw, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// ──────────────────────────────────────────────────────────────────────────────
// Singleton
// ──────────────────────────────────────────────────────────────────────────────

var (
	instance *Config
	once     sync.Once
	loadErr  error
)

// Get returns the singleton Config, loading it once from environment variables.
// Panics if loading fails: call this early in main() to catch misconfigurations
// at startup.
func Get() *Config {
	once.Do(func() {
		// A missing .env is normal outside local development.
		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Warn("config: .env not loaded", "err", err)
		}
		instance, loadErr = Load()
	})
	if loadErr != nil {
		panic(fmt.Sprintf("config: failed to load: %v", loadErr))
	}
	return instance
}

// MustLoad loads and validates configuration. Intended for use in main().
// Panics on any error so misconfiguration is caught immediately at boot.
func MustLoad() *Config {
	cfg := Get()
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("config: validation failed: %v", err))
	}
	return cfg
}

// ──────────────────────────────────────────────────────────────────────────────
// Loader
// ──────────────────────────────────────────────────────────────────────────────

// Load reads the environment into a fresh Config without validating it.
func Load() (*Config, error) {
	cfg := &Config{}

	// ── Server ────────────────────────────────────────────────────────────────
	cfg.Server = ServerConfig{
		Port:                 getEnv("SERVER_PORT", "8080"),
		BackofficePort:       getEnv("BACKOFFICE_PORT", "8081"),
		Env:                  getEnv("ENVIRONMENT", "development"),
		ReadTimeout:          getDuration("SERVER_READ_TIMEOUT", 10*time.Second),
		WriteTimeout:         getDuration("SERVER_WRITE_TIMEOUT", 10*time.Second),
		BackofficeAllowedIPs: getEnv("BACKOFFICE_ALLOWED_IPS", ""),
		EmbedBackoffice:      getEnv("BACKOFFICE_EMBEDDED", "true") != "false",
		AllowedOrigins:       getEnv("ALLOWED_ORIGINS", ""),
		MigrationsDir:        getEnv("MIGRATIONS_DIR", "migrations"),
	}

	// ── Database ──────────────────────────────────────────────────────────────
	dsn := os.Getenv("DATABASE_DSN")
	if dsn == "" {
		// Build DSN from individual components for convenience in dev
		dsn = fmt.Sprintf(
			"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			getEnv("DB_HOST", "localhost"),
			getEnv("DB_PORT", "5432"),
			getEnv("DB_USER", "postgres"),
			getEnv("DB_PASSWORD", ""),
			getEnv("DB_NAME", "periodsettle"),
			getEnv("DB_SSLMODE", "disable"),
		)
	}

	maxOpen, err := getInt("DB_MAX_OPEN_CONNS", 25)
	if err != nil {
		return nil, fmt.Errorf("DB_MAX_OPEN_CONNS: %w", err)
	}
	maxIdle, err := getInt("DB_MAX_IDLE_CONNS", 10)
	if err != nil {
		return nil, fmt.Errorf("DB_MAX_IDLE_CONNS: %w", err)
	}

	cfg.DB = DBConfig{
		DSN:             dsn,
		MaxOpenConns:    maxOpen,
		MaxIdleConns:    maxIdle,
		ConnMaxLifetime: getDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}

	// ── JWT ───────────────────────────────────────────────────────────────────
	cfg.JWT = JWTConfig{
		AccessSecret: getEnv("JWT_ACCESS_SECRET", ""),
	}

	// ── Scheduler ─────────────────────────────────────────────────────────────
	workers, err := getInt("SCHEDULER_WORKERS", 8)
	if err != nil {
		return nil, fmt.Errorf("SCHEDULER_WORKERS: %w", err)
	}
	minPeriod, err := getInt("SCHEDULER_MIN_PERIOD_SECONDS", 30)
	if err != nil {
		return nil, fmt.Errorf("SCHEDULER_MIN_PERIOD_SECONDS: %w", err)
	}
	catchup, err := getInt("SCHEDULER_CATCHUP_LIMIT", 32)
	if err != nil {
		return nil, fmt.Errorf("SCHEDULER_CATCHUP_LIMIT: %w", err)
	}

	cfg.Scheduler = SchedulerConfig{
		Tick:             getDuration("SCHEDULER_TICK", 2*time.Second),
		Workers:          workers,
		MinPeriodSeconds: int64(minPeriod),
		CatchupLimit:     catchup,
	}

	// ── Wager ─────────────────────────────────────────────────────────────────
	minStake, err := getDecimal("WAGER_MIN_STAKE", decimal.NewFromInt(1))
	if err != nil {
		return nil, fmt.Errorf("WAGER_MIN_STAKE: %w", err)
	}
	rps, err := getFloat("WAGER_RATE_LIMIT_PER_SECOND", 2)
	if err != nil {
		return nil, fmt.Errorf("WAGER_RATE_LIMIT_PER_SECOND: %w", err)
	}
	burst, err := getInt("WAGER_RATE_LIMIT_BURST", 5)
	if err != nil {
		return nil, fmt.Errorf("WAGER_RATE_LIMIT_BURST: %w", err)
	}

	cfg.Wager = WagerConfig{
		MinStake:           minStake,
		Cutoff:             getDuration("WAGER_CUTOFF", 5*time.Second),
		RateLimitPerSecond: rps,
		RateLimitBurst:     burst,
	}

	// ── Redis ─────────────────────────────────────────────────────────────────
	redisDB, err := getInt("REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("REDIS_DB: %w", err)
	}

	cfg.Redis = RedisConfig{
		Addr:     getEnv("REDIS_ADDR", ""),
		Password: getEnv("REDIS_PASSWORD", ""),
		DB:       redisDB,
		TTL:      getDuration("REDIS_OUTCOME_TTL", 24*time.Hour),
	}

	return cfg, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Helper functions
// ──────────────────────────────────────────────────────────────────────────────

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q", v)
	}
	return n, nil
}

func getFloat(key string, defaultVal float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float %q", v)
	}
	return f, nil
}

// getDecimal parses money values without a float round trip.
func getDecimal(key string, defaultVal decimal.Decimal) (decimal.Decimal, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal %q", v)
	}
	return d, nil
}

// getDuration parses an env var as a Go duration string (e.g. "15m", "2s").
// Falls back to defaultVal if the variable is unset or unparsable.
func getDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("config: invalid duration, using default", "key", key, "value", v, "default", defaultVal)
		return defaultVal
	}
	return d
}
