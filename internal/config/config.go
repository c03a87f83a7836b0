package config

import (
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(NewConfig),
)

// Config holds all application configuration
type Config struct {
	// Server settings
	ServerPort    int    `env:"SERVER_PORT" envDefault:"3002"`
	ServerAddress string `env:"SERVER_ADDRESS" envDefault:"0.0.0.0"`
	Environment   string `env:"ENVIRONMENT" envDefault:"local"`
	Debug         bool   `env:"DEBUG" envDefault:"false"`
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`

	Database  DatabaseConfig
	Auth      AuthConfig
	Session   SessionConfig
	RateLimit RateLimitConfig
	Throttle  ThrottleConfig
	Hierarchy HierarchyConfig
	Otel      OtelConfig

	// Server timeouts
	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"30s"`
	IdleTimeout     time.Duration `env:"SERVER_IDLE_TIMEOUT" envDefault:"120s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	// Per-request context deadline and request body cap
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" envDefault:"10s"`
	BodyLimit      string        `env:"SERVER_BODY_LIMIT" envDefault:"64K"`

	// Proxies (CIDRs or single IPs) whose X-Forwarded-For is believed.
	// Empty means the socket peer is the client.
	TrustedProxies []string `env:"SERVER_TRUSTED_PROXIES" envSeparator:","`
}

// TrustedProxyRanges parses TrustedProxies.
func (c *Config) TrustedProxyRanges() ([]*net.IPNet, error) {
	ranges := make([]*net.IPNet, 0, len(c.TrustedProxies))
	for _, raw := range c.TrustedProxies {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if !strings.Contains(raw, "/") {
			ip := net.ParseIP(raw)
			if ip == nil {
				return nil, fmt.Errorf("invalid SERVER_TRUSTED_PROXIES entry %q", raw)
			}
			bits := 128
			if ip.To4() != nil {
				ip, bits = ip.To4(), 32
			}
			ranges = append(ranges, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}
		_, ipNet, err := net.ParseCIDR(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid SERVER_TRUSTED_PROXIES entry %q: %w", raw, err)
		}
		ranges = append(ranges, ipNet)
	}
	return ranges, nil
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	Host         string        `env:"POSTGRES_HOST" envDefault:"localhost"`
	Port         int           `env:"POSTGRES_PORT" envDefault:"5432"`
	User         string        `env:"POSTGRES_USER" envDefault:"helpdesk"`
	Password     string        `env:"POSTGRES_PASSWORD" envDefault:""`
	Database     string        `env:"POSTGRES_DB" envDefault:"helpdesk"`
	SSLMode      string        `env:"POSTGRES_SSL_MODE" envDefault:"disable"`
	MaxOpenConns int           `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	MaxIdleTime  time.Duration `env:"DB_MAX_IDLE_TIME" envDefault:"5m"`
	QueryDebug   bool          `env:"DB_QUERY_DEBUG" envDefault:"false"`
	AutoMigrate  bool          `env:"DB_AUTO_MIGRATE" envDefault:"false"`

	// Server-side cap on a single statement; 0 leaves the server default
	StatementTimeout time.Duration `env:"DB_STATEMENT_TIMEOUT" envDefault:"5s"`

	// Queries slower than this are logged at warn level
	SlowQuery time.Duration `env:"DB_SLOW_QUERY" envDefault:"500ms"`
}

// DSN returns the PostgreSQL connection string
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Database, d.SSLMode,
	)
}

// AuthConfig holds the staff token verification settings
type AuthConfig struct {
	// HMAC secret the host signs staff session tokens with
	JWTSecret string `env:"AUTH_JWT_SECRET" envDefault:""`

	// Expected "iss" claim; empty skips the check
	JWTIssuer string `env:"AUTH_JWT_ISSUER" envDefault:""`

	// Clock skew tolerated on exp/nbf
	Leeway time.Duration `env:"AUTH_JWT_LEEWAY" envDefault:"30s"`
}

// IsConfigured returns true if a signing secret is present
func (a *AuthConfig) IsConfigured() bool {
	return a.JWTSecret != ""
}

// SessionConfig selects where per-session gate state lives
type SessionConfig struct {
	// Backend is "memory" or "redis"
	Backend string `env:"SESSION_BACKEND" envDefault:"memory"`

	// TTL of session keys; refreshed on every write
	TTL time.Duration `env:"SESSION_TTL" envDefault:"24h"`

	// How often expired in-process entries are evicted; 0 disables
	SweepInterval time.Duration `env:"SESSION_SWEEP_INTERVAL" envDefault:"5m"`

	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	RedisPrefix   string `env:"REDIS_KEY_PREFIX" envDefault:"subtickets"`
}

// UseRedis returns true when the redis backend is selected
func (s *SessionConfig) UseRedis() bool {
	return s.Backend == "redis"
}

// RateLimitConfig configures the per-session sliding window
type RateLimitConfig struct {
	MaxRequests int           `env:"RATE_LIMIT_MAX_REQUESTS" envDefault:"100"`
	Window      time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"60s"`
	Cooldown    time.Duration `env:"RATE_LIMIT_COOLDOWN" envDefault:"60s"`
}

// ThrottleConfig configures the per-client-IP token bucket.
// RPS <= 0 disables it.
type ThrottleConfig struct {
	RPS   float64 `env:"THROTTLE_RPS" envDefault:"20"`
	Burst int     `env:"THROTTLE_BURST" envDefault:"40"`
}

// Enabled returns true when the throttle should be installed
func (t *ThrottleConfig) Enabled() bool {
	return t.RPS > 0 && t.Burst > 0
}

// HierarchyConfig holds the link validation limits
type HierarchyConfig struct {
	// Hop cap of the upward cycle walk
	WalkLimit int `env:"HIERARCHY_WALK_LIMIT" envDefault:"10"`

	// 0 disables the depth check
	MaxDepth int `env:"HIERARCHY_MAX_DEPTH" envDefault:"0"`

	// 0 disables the fan-out check
	MaxChildren int `env:"HIERARCHY_MAX_CHILDREN" envDefault:"0"`
}

// NewConfig loads configuration from environment variables
func NewConfig(log *slog.Logger) (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log.Info("configuration loaded",
		slog.String("environment", cfg.Environment),
		slog.Int("port", cfg.ServerPort),
		slog.String("db_host", cfg.Database.Host),
		slog.String("session_backend", cfg.Session.Backend),
	)

	return cfg, nil
}

// Validate rejects settings the gate or engine cannot run with
func (c *Config) Validate() error {
	if c.Session.Backend != "memory" && c.Session.Backend != "redis" {
		return fmt.Errorf("invalid SESSION_BACKEND %q: want memory or redis", c.Session.Backend)
	}
	if c.RateLimit.MaxRequests <= 0 || c.RateLimit.Window <= 0 {
		return fmt.Errorf("rate limit requires positive RATE_LIMIT_MAX_REQUESTS and RATE_LIMIT_WINDOW")
	}
	if c.RateLimit.Cooldown < 0 {
		return fmt.Errorf("RATE_LIMIT_COOLDOWN must not be negative")
	}
	if c.Hierarchy.WalkLimit <= 0 {
		return fmt.Errorf("HIERARCHY_WALK_LIMIT must be positive")
	}
	if c.Hierarchy.MaxDepth < 0 || c.Hierarchy.MaxChildren < 0 {
		return fmt.Errorf("hierarchy limits must not be negative")
	}
	if _, err := c.TrustedProxyRanges(); err != nil {
		return err
	}
	if c.Environment == "production" && !c.Auth.IsConfigured() {
		return fmt.Errorf("AUTH_JWT_SECRET is required in production")
	}
	return nil
}
