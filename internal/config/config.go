package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP Server
	Port string

	// Storage
	DataBackend  string
	SQLiteDBPath string
	DataDir      string

	// HTTP edge
	TrustedProxies    []string
	RequestsPerMinute int

	// Sessions
	SessionDBPath string
	SessionTTL    time.Duration
	CookieSecure  bool

	// Authentication
	AuthProvider           string
	FirebaseAPIKey         string
	LoginAttemptsPerMinute int

	// AMQP change fan-out (optional)
	AMQPURL      string
	AMQPExchange string

	// Ledger behaviour
	WriteTimeout   time.Duration
	QueryTimeout   time.Duration
	CacheTTL       time.Duration
	CategoriesFile string

	// Logging
	LogLevel string
}

func Load() *Config {
	cfg := &Config{
		Port: getEnv("PORT", "8081"),

		TrustedProxies:    getEnvList("TRUSTED_PROXIES"),
		RequestsPerMinute: getEnvInt("REQUESTS_PER_MINUTE", 60),

		DataBackend:  getEnv("DATA_BACKEND", "sqlite"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/gagyebu.db"),
		DataDir:      getEnv("DATA_DIR", "data"),

		SessionDBPath: getEnv("SESSION_DB_PATH", "./data/sessions.db"),
		SessionTTL:    getEnvDuration("SESSION_TTL", 30*24*time.Hour),
		CookieSecure:  getEnvBool("COOKIE_SECURE", false),

		AuthProvider:           getEnv("AUTH_PROVIDER", "local"),
		FirebaseAPIKey:         getEnv("FIREBASE_API_KEY", ""),
		LoginAttemptsPerMinute: getEnvInt("LOGIN_ATTEMPTS_PER_MINUTE", 10),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "gagyebu.changes"),

		WriteTimeout:   getEnvDuration("WRITE_TIMEOUT", 10*time.Second),
		QueryTimeout:   getEnvDuration("QUERY_TIMEOUT", 5*time.Second),
		CacheTTL:       getEnvDuration("CACHE_TTL", 5*time.Minute),
		CategoriesFile: getEnv("CATEGORIES_FILE", ""),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	return cfg
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.RequestsPerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid requests per minute %d: must be at least 1", c.RequestsPerMinute))
	}
	for _, p := range c.TrustedProxies {
		if _, _, err := net.ParseCIDR(p); err != nil {
			errors = append(errors, fmt.Sprintf("invalid trusted proxy '%s': must be a CIDR", p))
		}
	}

	// Validate data backend
	validBackends := []string{"memory", "sqlite"}
	if !oneOf(c.DataBackend, validBackends) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	if c.DataBackend == "sqlite" {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else if msg := ensureDir(c.SQLiteDBPath); msg != "" {
			errors = append(errors, msg)
		}
	}

	// Sessions
	if c.SessionDBPath == "" {
		errors = append(errors, "session database path cannot be empty")
	} else if msg := ensureDir(c.SessionDBPath); msg != "" {
		errors = append(errors, msg)
	}
	if c.SessionTTL < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid session TTL %v: must be at least 1 minute", c.SessionTTL))
	}

	// Authentication
	validProviders := []string{"local", "firebase"}
	if !oneOf(c.AuthProvider, validProviders) {
		errors = append(errors, fmt.Sprintf("invalid auth provider '%s': must be one of %v", c.AuthProvider, validProviders))
	}
	if c.AuthProvider == "firebase" && c.FirebaseAPIKey == "" {
		errors = append(errors, "FIREBASE_API_KEY is required when using firebase auth provider")
	}
	if c.LoginAttemptsPerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid login attempts per minute %d: must be at least 1", c.LoginAttemptsPerMinute))
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
	}

	// Timeouts
	if c.WriteTimeout < 100*time.Millisecond || c.WriteTimeout > 2*time.Minute {
		errors = append(errors, fmt.Sprintf("invalid write timeout %v: must be between 100ms and 2m", c.WriteTimeout))
	}
	if c.QueryTimeout < 100*time.Millisecond || c.QueryTimeout > 2*time.Minute {
		errors = append(errors, fmt.Sprintf("invalid query timeout %v: must be between 100ms and 2m", c.QueryTimeout))
	}
	if c.CacheTTL < 0 {
		errors = append(errors, fmt.Sprintf("invalid cache TTL %v: must not be negative", c.CacheTTL))
	}

	if c.CategoriesFile != "" {
		if _, err := os.Stat(c.CategoriesFile); os.IsNotExist(err) {
			errors = append(errors, fmt.Sprintf("categories file does not exist: %s", c.CategoriesFile))
		}
	}

	validLevels := []string{"debug", "info", "warn", "error"}
	if !oneOf(strings.ToLower(c.LogLevel), validLevels) {
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of %v", c.LogLevel, validLevels))
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func oneOf(v string, allowed []string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

// ensureDir creates the parent directory of path and returns a message on failure.
func ensureDir(path string) string {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return ""
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Sprintf("cannot create database directory '%s': %v", dir, err)
		}
	}
	return ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvList splits a comma-separated value, dropping blanks.
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
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
