package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Store drivers.
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// Name cache types.
const (
	CacheTypeMemory = "memory"
	CacheTypeRedis  = "redis"
	CacheTypeNoop   = "noop"
)

// Config holds all configuration for the groupchat-api service.
type Config struct {
	// Service settings
	ServiceName     string        `env:"SERVICE_NAME" envDefault:"groupchat-api"`
	Environment     string        `env:"ENVIRONMENT" envDefault:"development"`
	HTTPPort        int           `env:"GROUPCHAT_API_PORT" envDefault:"8190"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	// OpenTelemetry
	EnableTracing bool   `env:"OTEL_ENABLED" envDefault:"false"`
	OTLPEndpoint  string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:""`

	// Database
	StoreDriver        string        `env:"STORE_DRIVER" envDefault:"postgres"`
	DatabaseURL        string        `env:"DATABASE_URL"`
	DatabaseReplicaURL string        `env:"DB_READ_REPLICA_URL"`
	DBMaxIdleConns     int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	DBMaxOpenConns     int           `env:"DB_MAX_OPEN_CONNS" envDefault:"20"`
	DBConnLifetime     time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"30m"`
	DBAutoMigrate      bool          `env:"DB_AUTO_MIGRATE" envDefault:"true"`

	// Auth
	JWTSecret    string `env:"JWT_SECRET"`
	AuthJWKSURL  string `env:"JWKS_URL"`
	AuthIssuer   string `env:"ISSUER"`
	AuthAudience string `env:"AUDIENCE"`

	// Websocket transport
	WSPingInterval    time.Duration `env:"WS_PING_INTERVAL" envDefault:"25s"`
	WSPongTimeout     time.Duration `env:"WS_PONG_TIMEOUT" envDefault:"60s"`
	WSWriteTimeout    time.Duration `env:"WS_WRITE_TIMEOUT" envDefault:"10s"`
	WSSendBuffer      int           `env:"WS_SEND_BUFFER" envDefault:"64"`
	WSMaxMessageBytes int64         `env:"WS_MAX_MESSAGE_BYTES" envDefault:"65536"`
	WSAllowedOrigins  []string      `env:"WS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`

	// Messages
	SanitizeHTML bool `env:"MESSAGE_SANITIZE_HTML" envDefault:"false"`

	// Sender name cache
	NameCacheType string        `env:"NAME_CACHE_TYPE" envDefault:"memory"`
	NameCacheSize int           `env:"NAME_CACHE_SIZE" envDefault:"10000"`
	NameCacheTTL  time.Duration `env:"NAME_CACHE_TTL" envDefault:"5m"`

	// Redis (name cache + retention lock)
	RedisURL       string `env:"REDIS_URL"`
	RedisKeyPrefix string `env:"REDIS_KEY_PREFIX" envDefault:"groupchat:"`

	// Audit
	AuditEnabled           bool   `env:"AUDIT_ENABLED" envDefault:"true"`
	AuditBufferSize        int    `env:"AUDIT_BUFFER_SIZE" envDefault:"1024"`
	AuditPIILevel          string `env:"AUDIT_PII_LEVEL" envDefault:"hashed"`
	AuditPIISalt           string `env:"AUDIT_PII_SALT"`
	AuditRetentionSchedule string `env:"AUDIT_RETENTION_SCHEDULE" envDefault:"*/5 * * * *"`
	AuditRetentionMaxRows  int    `env:"AUDIT_RETENTION_MAX_ROWS" envDefault:"3000"`
	AuditRetentionBatch    int    `env:"AUDIT_RETENTION_BATCH" envDefault:"2000"`
}

// Load parses environment variables into Config.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field requirements.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.JWTSecret) == "" && strings.TrimSpace(c.AuthJWKSURL) == "" {
		return fmt.Errorf("JWT_SECRET or JWKS_URL is required")
	}

	switch c.StoreDriver {
	case StoreDriverPostgres:
		if strings.TrimSpace(c.DatabaseURL) == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_DRIVER is postgres")
		}
	case StoreDriverMemory:
	default:
		return fmt.Errorf("unsupported STORE_DRIVER %q", c.StoreDriver)
	}

	switch c.NameCacheType {
	case CacheTypeMemory, CacheTypeNoop:
	case CacheTypeRedis:
		if strings.TrimSpace(c.RedisURL) == "" {
			return fmt.Errorf("REDIS_URL is required when NAME_CACHE_TYPE is redis")
		}
	default:
		return fmt.Errorf("unsupported NAME_CACHE_TYPE %q", c.NameCacheType)
	}

	if c.WSPongTimeout <= c.WSPingInterval {
		return fmt.Errorf("WS_PONG_TIMEOUT (%s) must be greater than WS_PING_INTERVAL (%s)", c.WSPongTimeout, c.WSPingInterval)
	}
	if c.WSSendBuffer <= 0 {
		return fmt.Errorf("WS_SEND_BUFFER must be positive")
	}

	return nil
}

// Addr returns the HTTP server address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// UsesPostgres reports whether the durable store is configured.
func (c *Config) UsesPostgres() bool {
	return c.StoreDriver == StoreDriverPostgres
}
