package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Password hashing policies accepted by AuthConfig.PasswordHashing.
const (
	PasswordHashingBcrypt    = "bcrypt"
	PasswordHashingPlaintext = "plaintext"
)

// Config aggregates runtime configuration for the issuer service.
type Config struct {
	App           AppConfig
	Redis         RedisConfig
	Logger        LoggerConfig
	Auth          AuthConfig
	LoginThrottle LoginThrottleConfig
	Session       SessionConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// Required makes readiness fail while Redis is unreachable.
	Required bool
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines token lifecycle parameters.
type AuthConfig struct {
	AccessSecret          string
	RefreshSecret         string
	AccessTokenTTLSeconds int
	RefreshTokenTTLHours  int
	PasswordHashing       string
	BcryptCost            int
	MinPasswordLength     int
	RotateRefreshTokens   bool
	SeedDemoAccounts      bool
}

// LoginThrottleConfig bounds failed login attempts per email.
type LoginThrottleConfig struct {
	Enabled       bool
	MaxAttempts   int
	WindowSeconds int
}

// SessionConfig controls session registry housekeeping.
type SessionConfig struct {
	SweepIntervalSeconds int
}

// ClientConfig configures the command-line consumer.
type ClientConfig struct {
	BaseURL        string
	StatePath      string
	TimeoutSeconds int
	Logger         LoggerConfig
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "token-lifecycle-issuer"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "4000"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
			Required: getEnvAsBool("REDIS_REQUIRED", false),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			AccessSecret:          getEnv("AUTH_ACCESS_SECRET", "dev-access-secret"),
			RefreshSecret:         getEnv("AUTH_REFRESH_SECRET", "dev-refresh-secret"),
			AccessTokenTTLSeconds: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_SECONDS", 60),
			RefreshTokenTTLHours:  getEnvAsInt("AUTH_REFRESH_TOKEN_TTL_HOURS", 7*24),
			PasswordHashing:       strings.ToLower(getEnv("AUTH_PASSWORD_HASHING", PasswordHashingBcrypt)),
			BcryptCost:            getEnvAsInt("AUTH_BCRYPT_COST", 10),
			MinPasswordLength:     getEnvAsInt("AUTH_MIN_PASSWORD_LENGTH", 6),
			RotateRefreshTokens:   getEnvAsBool("AUTH_ROTATE_REFRESH_TOKENS", false),
			SeedDemoAccounts:      getEnvAsBool("AUTH_SEED_DEMO_ACCOUNTS", true),
		},
		LoginThrottle: LoginThrottleConfig{
			Enabled:       getEnvAsBool("LOGIN_THROTTLE_ENABLED", true),
			MaxAttempts:   getEnvAsInt("LOGIN_THROTTLE_MAX_ATTEMPTS", 5),
			WindowSeconds: getEnvAsInt("LOGIN_THROTTLE_WINDOW_SECONDS", 300),
		},
		Session: SessionConfig{
			SweepIntervalSeconds: getEnvAsInt("SESSION_SWEEP_INTERVAL_SECONDS", 600),
		},
	}

	if err := cfg.Auth.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadClient reads the consumer configuration.
func LoadClient() (*ClientConfig, error) {
	_ = godotenv.Load()

	cfg := &ClientConfig{
		BaseURL:        strings.TrimRight(getEnv("CLIENT_BASE_URL", "http://localhost:4000"), "/"),
		StatePath:      getEnv("CLIENT_STATE_PATH", "./client-state.db"),
		TimeoutSeconds: getEnvAsInt("CLIENT_TIMEOUT_SECONDS", 30),
		Logger:         LoggerConfig{Level: getEnv("LOG_LEVEL", "info")},
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("CLIENT_BASE_URL must not be empty")
	}
	return cfg, nil
}

func (a AuthConfig) validate() error {
	if a.AccessSecret == "" || a.RefreshSecret == "" {
		return fmt.Errorf("AUTH_ACCESS_SECRET and AUTH_REFRESH_SECRET must be set")
	}
	switch a.PasswordHashing {
	case PasswordHashingBcrypt, PasswordHashingPlaintext:
	default:
		return fmt.Errorf("invalid AUTH_PASSWORD_HASHING %q", a.PasswordHashing)
	}
	return nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// AccessTTL returns the access token lifetime.
func (a AuthConfig) AccessTTL() time.Duration {
	if a.AccessTokenTTLSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(a.AccessTokenTTLSeconds) * time.Second
}

// RefreshTTL returns the refresh token lifetime.
func (a AuthConfig) RefreshTTL() time.Duration {
	if a.RefreshTokenTTLHours <= 0 {
		return 7 * 24 * time.Hour
	}
	return time.Duration(a.RefreshTokenTTLHours) * time.Hour
}

// SecretsShared reports whether both token classes are signed with the same key.
func (a AuthConfig) SecretsShared() bool {
	return a.AccessSecret == a.RefreshSecret
}

// Window returns the throttle window.
func (l LoginThrottleConfig) Window() time.Duration {
	if l.WindowSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(l.WindowSeconds) * time.Second
}

// SweepInterval returns how often expired sessions are purged.
func (s SessionConfig) SweepInterval() time.Duration {
	if s.SweepIntervalSeconds <= 0 {
		return 10 * time.Minute
	}
	return time.Duration(s.SweepIntervalSeconds) * time.Second
}

// Timeout returns the client HTTP timeout.
func (c ClientConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
