package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment names recognized in NODE_ENV.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTest        = "test"
)

// Config holds all application configuration
type Config struct {
	Env           string
	Service       ServiceConfig
	Server        ServerConfig
	Database      DatabaseConfig
	Session       SessionConfig
	JWT           JWTConfig
	OAuth2        OAuth2Config
	Security      SecurityConfig
	Cleanup       CleanupConfig
	CORS          CORSConfig
	Observability ObservabilityConfig
	RateLimit     RateLimitConfig
}

// ServiceConfig identifies the service to the outside world.
type ServiceConfig struct {
	Name string
	URL  string // normalized: lowercase scheme/host, no trailing slash
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// SessionConfig holds session and cookie configuration
type SessionConfig struct {
	CookieName         string
	CookiePath         string
	Lifetime           time.Duration
	RememberMeLifetime time.Duration
}

// JWTConfig holds access token signing configuration
type JWTConfig struct {
	Issuer         string
	Audience       []string
	AccessTokenTTL time.Duration
	KeyID          string
	KeysDir        string
}

// OAuth2Config holds protocol configuration
type OAuth2Config struct {
	AuthCodeTTL time.Duration
}

// SecurityConfig holds credential hashing configuration
type SecurityConfig struct {
	BcryptRounds int
}

// CleanupConfig holds background cleanup configuration
type CleanupConfig struct {
	Interval time.Duration
}

// CORSConfig holds allowed cross-origin settings
type CORSConfig struct {
	Origins []string
}

// ObservabilityConfig holds logging and tracing configuration
type ObservabilityConfig struct {
	LogLevel       string
	LogFormat      string
	LogRequests    bool
	OTELEnabled    bool
	ServiceVersion string
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// Authorization codes must stay short-lived (RFC 6749 Section 4.1.2).
const maxAuthCodeTTL = 10 * time.Minute

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Env: getEnv("NODE_ENV", EnvDevelopment),
		Service: ServiceConfig{
			Name: getEnv("SERVICE_NAME", "auth-server"),
			URL:  getEnv("SERVICE_URL", "http://localhost:4000"),
		},
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnv("PORT", "4000"),
			ReadTimeout:  parseDuration("SERVER_READ_TIMEOUT", "15s"),
			WriteTimeout: parseDuration("SERVER_WRITE_TIMEOUT", "15s"),
			IdleTimeout:  parseDuration("SERVER_IDLE_TIMEOUT", "60s"),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "authrim"),
			Password:        getEnv("DB_PASSWORD", ""),
			Database:        getEnv("DB_NAME", "authrim"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    parseInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    parseInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: parseDuration("DB_CONN_MAX_LIFETIME", "5m"),
		},
		Session: SessionConfig{
			CookieName:         getEnv("SESSION_COOKIE_NAME", "session_id"),
			CookiePath:         getEnv("SESSION_COOKIE_PATH", "/"),
			Lifetime:           time.Duration(parseInt("SESSION_LIFETIME_SECONDS", 3600)) * time.Second,
			RememberMeLifetime: time.Duration(parseInt("SESSION_REMEMBER_ME_SECONDS", 30*24*3600)) * time.Second,
		},
		JWT: JWTConfig{
			Issuer:         getEnv("JWT_ISSUER", "auth-server"),
			Audience:       splitList(getEnv("JWT_AUDIENCE", "auth-server")),
			AccessTokenTTL: time.Duration(parseInt("JWT_ACCESS_TOKEN_EXPIRES_IN", 900)) * time.Second,
			KeyID:          getEnv("JWT_KEY_ID", "auth-server-key-1"),
			KeysDir:        getEnv("JWT_KEYS_DIR", "keys"),
		},
		OAuth2: OAuth2Config{
			AuthCodeTTL: time.Duration(parseInt("OAUTH2_AUTH_CODE_EXPIRES_IN", 1)) * time.Minute,
		},
		Security: SecurityConfig{
			BcryptRounds: parseInt("BCRYPT_ROUNDS", 10),
		},
		Cleanup: CleanupConfig{
			Interval: time.Duration(parseInt("AUTO_CLEANUP_INTERVAL_MS", 300000)) * time.Millisecond,
		},
		CORS: CORSConfig{
			Origins: splitList(getEnv("CORS_ORIGINS", "")),
		},
		Observability: ObservabilityConfig{
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			LogFormat:      getEnv("LOG_FORMAT", "json"),
			LogRequests:    parseBool("LOG_REQUESTS", true),
			OTELEnabled:    parseBool("OTEL_ENABLED", false),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "0.1.0"),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: float64(parseInt("RATELIMIT_RPS", 10)),
			Burst:             parseInt("RATELIMIT_BURST", 20),
		},
	}

	normalized, err := NormalizeServiceURL(cfg.Service.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid SERVICE_URL: %w", err)
	}
	cfg.Service.URL = normalized

	if cfg.OAuth2.AuthCodeTTL > maxAuthCodeTTL {
		cfg.OAuth2.AuthCodeTTL = maxAuthCodeTTL
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Env {
	case EnvDevelopment, EnvProduction, EnvTest:
	default:
		return fmt.Errorf("NODE_ENV must be development, production or test, got %q", c.Env)
	}
	if c.Database.Password == "" && c.Env == EnvProduction {
		return fmt.Errorf("DB_PASSWORD is required in production")
	}
	if c.OAuth2.AuthCodeTTL <= 0 {
		return fmt.Errorf("OAUTH2_AUTH_CODE_EXPIRES_IN must be positive")
	}
	if c.JWT.AccessTokenTTL <= 0 {
		return fmt.Errorf("JWT_ACCESS_TOKEN_EXPIRES_IN must be positive")
	}
	if c.Security.BcryptRounds < 4 || c.Security.BcryptRounds > 31 {
		return fmt.Errorf("BCRYPT_ROUNDS must be within 4..31, got %d", c.Security.BcryptRounds)
	}
	return nil
}

// IsProduction reports whether the server runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Env == EnvProduction
}

// NormalizeServiceURL lowercases scheme and host and strips any trailing
// slash. The URL must be absolute.
func NormalizeServiceURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	if !u.IsAbs() || u.Host == "" {
		return "", fmt.Errorf("must be an absolute URL, got %q", raw)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	return strings.TrimRight(u.String(), "/"), nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func parseBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func parseDuration(key string, defaultValue string) time.Duration {
	value := getEnv(key, defaultValue)
	d, err := time.ParseDuration(value)
	if err != nil {
		d, _ = time.ParseDuration(defaultValue)
	}
	return d
}

func splitList(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
