package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server settings
	ServerAddr   string
	BaseURL      string // Public URL of this server, used as token issuer
	FrontendURL  string // SSO frontend (login/consent pages)
	IsProduction bool

	// JWT settings. Access and refresh tokens are signed with distinct
	// secrets so one cannot be replayed as the other.
	AccessTokenSecret      string
	RefreshTokenSecret     string
	AccessTokenExpiration  time.Duration // default lifetime, clients may override
	RefreshTokenExpiration time.Duration

	// Authorization code settings
	AuthCodeExpiration time.Duration

	// Session settings
	SessionSecret string
	SessionMaxAge int // seconds

	// Cookie settings for first-party auth
	CookieDomain        string
	AccessCookieMaxAge  time.Duration
	RefreshCookieMaxAge time.Duration

	// CORS
	CORSOrigins []string

	// Database
	DatabaseDriver string // "sqlite" or "postgres"
	DatabaseDSN    string

	// Redis (rate limiting, client cache)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// SMTP mail delivery
	MailEnabled  bool
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	MailFrom     string

	// Google federated login
	GoogleOAuthEnabled bool
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string
	GoogleTimeout      time.Duration

	// OTP settings (password reset)
	OTPExpiration  time.Duration
	OTPCooldown    time.Duration
	OTPMaxAttempts int

	// Rate limiting
	EnableRateLimit    bool
	RateLimitStore     string // "memory" or "redis"
	LoginRateLimit     int    // requests per minute per IP
	TokenRateLimit     int
	OTPRateLimit       int
	RateLimitCleanup   time.Duration
	ClientCacheEnabled bool
	ClientCacheTTL     time.Duration

	// Metrics
	MetricsEnabled bool
	MetricsToken   string

	// Audit logging
	EnableAuditLogging bool
	AuditLogBufferSize int
	AuditLogRetention  time.Duration

	// Seed data
	DefaultAdminEmail    string
	DefaultAdminPassword string // empty means generate a random one
}

func Load() *Config {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	driver := getEnv("DATABASE_DRIVER", "sqlite")
	var dsn string
	if driver == "sqlite" {
		dsn = getEnv("DATABASE_DSN", getEnv("DATABASE_PATH", "sso.db"))
	} else {
		dsn = getEnv("DATABASE_DSN", "")
	}

	return &Config{
		ServerAddr:   getEnv("SERVER_ADDR", ":8080"),
		BaseURL:      getEnv("BASE_URL", "http://localhost:8080"),
		FrontendURL:  getEnv("FRONTEND_URL", "http://localhost:3000"),
		IsProduction: getEnvBool("PRODUCTION", false),

		AccessTokenSecret:      getEnv("ACCESS_TOKEN_SECRET", "access-secret-change-in-production"),
		RefreshTokenSecret:     getEnv("REFRESH_TOKEN_SECRET", "refresh-secret-change-in-production"),
		AccessTokenExpiration:  getEnvDuration("ACCESS_TOKEN_EXPIRATION", time.Hour),
		RefreshTokenExpiration: getEnvDuration("REFRESH_TOKEN_EXPIRATION", 720*time.Hour),

		AuthCodeExpiration: getEnvDuration("AUTH_CODE_EXPIRATION", 10*time.Minute),

		SessionSecret: getEnv("SESSION_SECRET", "session-secret-change-in-production"),
		SessionMaxAge: getEnvInt("SESSION_MAX_AGE", 600),

		CookieDomain:        getEnv("COOKIE_DOMAIN", ""),
		AccessCookieMaxAge:  getEnvDuration("ACCESS_COOKIE_MAX_AGE", 15*time.Minute),
		RefreshCookieMaxAge: getEnvDuration("REFRESH_COOKIE_MAX_AGE", 720*time.Hour),

		CORSOrigins: getEnvSlice("CORS_ORIGINS", []string{"http://localhost:3000"}),

		DatabaseDriver: driver,
		DatabaseDSN:    dsn,

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		MailEnabled:  getEnvBool("MAIL_ENABLED", false),
		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPPort:     getEnvInt("SMTP_PORT", 587),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		MailFrom:     getEnv("MAIL_FROM", "no-reply@localhost"),

		GoogleOAuthEnabled: getEnvBool("GOOGLE_OAUTH_ENABLED", false),
		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirectURL:  getEnv("GOOGLE_REDIRECT_URL", ""),
		GoogleTimeout:      getEnvDuration("GOOGLE_TIMEOUT", 15*time.Second),

		OTPExpiration:  getEnvDuration("OTP_EXPIRATION", 5*time.Minute),
		OTPCooldown:    getEnvDuration("OTP_COOLDOWN", 5*time.Minute),
		OTPMaxAttempts: getEnvInt("OTP_MAX_ATTEMPTS", 3),

		EnableRateLimit:    getEnvBool("ENABLE_RATE_LIMIT", true),
		RateLimitStore:     getEnv("RATE_LIMIT_STORE", "memory"),
		LoginRateLimit:     getEnvInt("LOGIN_RATE_LIMIT", 10),
		TokenRateLimit:     getEnvInt("TOKEN_RATE_LIMIT", 60),
		OTPRateLimit:       getEnvInt("OTP_RATE_LIMIT", 5),
		RateLimitCleanup:   getEnvDuration("RATE_LIMIT_CLEANUP_INTERVAL", 5*time.Minute),
		ClientCacheEnabled: getEnvBool("CLIENT_CACHE_ENABLED", true),
		ClientCacheTTL:     getEnvDuration("CLIENT_CACHE_TTL", time.Minute),

		MetricsEnabled: getEnvBool("METRICS_ENABLED", false),
		MetricsToken:   getEnv("METRICS_TOKEN", ""),

		EnableAuditLogging: getEnvBool("ENABLE_AUDIT_LOGGING", true),
		AuditLogBufferSize: getEnvInt("AUDIT_LOG_BUFFER_SIZE", 1000),
		AuditLogRetention:  getEnvDuration("AUDIT_LOG_RETENTION", 90*24*time.Hour),

		DefaultAdminEmail:    getEnv("DEFAULT_ADMIN_EMAIL", "admin@localhost"),
		DefaultAdminPassword: getEnv("DEFAULT_ADMIN_PASSWORD", ""),
	}
}

// Validate checks settings that would otherwise fail at runtime in
// confusing ways.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return errors.New("BASE_URL is required")
	}
	if c.AccessTokenSecret == c.RefreshTokenSecret {
		return errors.New("ACCESS_TOKEN_SECRET and REFRESH_TOKEN_SECRET must differ")
	}
	if c.DatabaseDriver == "postgres" && c.DatabaseDSN == "" {
		return errors.New("DATABASE_DSN is required when DATABASE_DRIVER=postgres")
	}
	if c.GoogleOAuthEnabled {
		if c.GoogleClientID == "" || c.GoogleClientSecret == "" || c.GoogleRedirectURL == "" {
			return errors.New(
				"GOOGLE_CLIENT_ID, GOOGLE_CLIENT_SECRET and GOOGLE_REDIRECT_URL are required when GOOGLE_OAUTH_ENABLED=true",
			)
		}
	}
	if c.MailEnabled && c.SMTPHost == "" {
		return errors.New("SMTP_HOST is required when MAIL_ENABLED=true")
	}
	switch c.RateLimitStore {
	case "memory", "redis":
	default:
		return fmt.Errorf("invalid RATE_LIMIT_STORE: %s (must be: memory, redis)", c.RateLimitStore)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var i int
		if _, err := fmt.Sscanf(value, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var parts []string
		for _, part := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				parts = append(parts, trimmed)
			}
		}
		if len(parts) > 0 {
			return parts
		}
	}
	return defaultValue
}
