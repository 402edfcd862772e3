package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Store drivers understood by STORE_DRIVER.
const (
	StoreDriverPostgREST = "postgrest"
	StoreDriverPostgres  = "postgres"
	StoreDriverSQLite    = "sqlite"
)

// Config holds every process setting. Values come from the environment,
// optionally seeded from a .env file.
type Config struct {
	AppEnv  string `env:"APP_ENV" envDefault:"development"`
	APIHost string `env:"API_HOST" envDefault:"0.0.0.0"`
	APIPort int    `env:"API_PORT" envDefault:"3000"`

	AdminUsername  string `env:"ADMIN_USERNAME"`
	AdminPassword  string `env:"ADMIN_PASSWORD"`
	AllowedOrigins string `env:"ALLOWED_ORIGINS" envDefault:"[\"http://localhost:3000\"]"`

	StoreDriver        string        `env:"STORE_DRIVER" envDefault:"postgrest"`
	SupabaseURL        string        `env:"SUPABASE_URL"`
	SupabaseServiceKey string        `env:"SUPABASE_SERVICE_KEY"`
	DatabaseDSN        string        `env:"DATABASE_DSN"`
	StoreTimeout       time.Duration `env:"STORE_TIMEOUT" envDefault:"10s"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`

	RateLimitRequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" envDefault:"100"`
	RateLimitBurst             int `env:"RATE_LIMIT_BURST" envDefault:"20"`

	WSMaxConnections int           `env:"WS_MAX_CONNECTIONS" envDefault:"1000"`
	WSPingInterval   time.Duration `env:"WS_PING_INTERVAL" envDefault:"30s"`

	HTTPPoolMaxSize     int           `env:"HTTP_POOL_MAX_SIZE" envDefault:"100"`
	HTTPKeepaliveExpiry time.Duration `env:"HTTP_KEEPALIVE_EXPIRY" envDefault:"300s"`

	ReconcileInterval time.Duration `env:"RECONCILE_INTERVAL" envDefault:"15m"`
	ShutdownTimeout   time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Load reads an optional .env file and parses the environment.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	// A missing .env is normal outside local development.
	_ = godotenv.Load(envFiles...)

	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Addr is the HTTP listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.APIHost, strconv.Itoa(c.APIPort))
}

// Origins returns ALLOWED_ORIGINS as a list. Both a JSON array and a comma
// separated list are accepted.
func (c *Config) Origins() ([]string, error) {
	raw := strings.TrimSpace(c.AllowedOrigins)
	if raw == "" {
		return nil, nil
	}
	if strings.HasPrefix(raw, "[") {
		var origins []string
		if err := json.Unmarshal([]byte(raw), &origins); err != nil {
			return nil, errors.New("ALLOWED_ORIGINS must be a valid JSON array of URLs")
		}
		return origins, nil
	}
	var origins []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins, nil
}

// Validate enforces the startup rules for credentials and store settings.
func (c *Config) Validate() error {
	if c.APIPort <= 0 || c.APIPort >= 65536 {
		return fmt.Errorf("API_PORT out of range: %d", c.APIPort)
	}
	if len(c.AdminUsername) < 3 {
		return errors.New("admin username must be at least 3 characters")
	}
	if err := validatePassword(c.AdminPassword); err != nil {
		return err
	}
	if _, err := c.Origins(); err != nil {
		return err
	}

	switch c.StoreDriver {
	case StoreDriverPostgREST:
		if c.SupabaseURL == "" {
			return errors.New("SUPABASE_URL is required for the postgrest store")
		}
		key := c.SupabaseServiceKey
		if key == "" || key == "your-supabase-service-key" {
			return errors.New("invalid Supabase key, set SUPABASE_SERVICE_KEY")
		}
	case StoreDriverPostgres, StoreDriverSQLite:
		if c.DatabaseDSN == "" {
			return fmt.Errorf("DATABASE_DSN is required for the %s store", c.StoreDriver)
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}

	if c.RateLimitRequestsPerMinute <= 0 || c.RateLimitBurst <= 0 {
		return errors.New("rate limit settings must be positive")
	}
	if c.WSMaxConnections <= 0 {
		return errors.New("WS_MAX_CONNECTIONS must be positive")
	}
	if c.WSPingInterval <= 0 {
		return errors.New("WS_PING_INTERVAL must be positive")
	}
	if c.HTTPPoolMaxSize <= 0 {
		return errors.New("HTTP_POOL_MAX_SIZE must be positive")
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < 12 {
		return errors.New("admin password must be at least 12 characters")
	}
	var upper, lower, digit, special bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case !unicode.IsLetter(r) && !unicode.IsDigit(r):
			special = true
		}
	}
	if !(upper && lower && digit && special) {
		return errors.New("admin password must contain uppercase, lowercase, digit and special characters")
	}
	return nil
}
