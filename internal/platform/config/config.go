// Package config loads service configuration from an optional YAML file and
// BADGES_-prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Ledger backends.
const (
	LedgerMemory   = "memory"
	LedgerRedis    = "redis"
	LedgerPostgres = "postgres"
	LedgerSQLite   = "sqlite"
)

const envPrefix = "BADGES"

// Config is the full service configuration.
type Config struct {
	Server     Server           `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Derivation DerivationConfig `mapstructure:"derivation"`
	Ledger     LedgerConfig     `mapstructure:"ledger"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Postgres   PostgresConfig   `mapstructure:"postgres"`
	SQLite     SQLiteConfig     `mapstructure:"sqlite"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	Audit      AuditConfig      `mapstructure:"audit"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Discovery  DiscoveryConfig  `mapstructure:"discovery"`
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr              string        `mapstructure:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
	// MetricsToken guards /metrics when set.
	MetricsToken string `mapstructure:"metrics_token"`
	// TrustedProxies may set X-Forwarded-For; addresses or CIDR ranges.
	TrustedProxies []string `mapstructure:"trusted_proxies"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type AuthConfig struct {
	JWTSigningKey string `mapstructure:"jwt_signing_key"`
	JWTIssuer     string `mapstructure:"jwt_issuer"`
	JWTAudience   string `mapstructure:"jwt_audience"`
}

type DerivationConfig struct {
	// ProgramID is the base58 program address every derivation is bound to.
	ProgramID string `mapstructure:"program_id"`
}

type LedgerConfig struct {
	Backend          string `mapstructure:"backend"`
	BatchConcurrency int    `mapstructure:"batch_concurrency"`
}

type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type PostgresConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

type KafkaConfig struct {
	Brokers           []string `mapstructure:"brokers"`
	Topic             string   `mapstructure:"topic"`
	Partitions        int32    `mapstructure:"partitions"`
	ReplicationFactor int16    `mapstructure:"replication_factor"`
}

type AuditConfig struct {
	QueueSize        int `mapstructure:"queue_size"`
	FailureThreshold int `mapstructure:"failure_threshold"`
	SuccessThreshold int `mapstructure:"success_threshold"`
}

// RateLimitConfig bounds requests per client IP. With a redis.url set the
// windows are shared through Redis.
type RateLimitConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

// DiscoveryConfig is the metadata published at /discovery.
type DiscoveryConfig struct {
	Title            string `mapstructure:"title"`
	Version          string `mapstructure:"version"`
	Name             string `mapstructure:"name"`
	ServerURL        string `mapstructure:"server_url"`
	TermsOfService   string `mapstructure:"terms_of_service"`
	PrivacyPolicyURL string `mapstructure:"privacy_policy_url"`
	ImageURL         string `mapstructure:"image_url"`
	RegistrationURL  string `mapstructure:"registration_url"`
	AuthorizationURL string `mapstructure:"authorization_url"`
	TokenURL         string `mapstructure:"token_url"`
	RefreshURL       string `mapstructure:"refresh_url"`
}

// Load reads configPath when given, otherwise looks for config.yaml in ./config
// and the working directory. A missing file is not an error; defaults and the
// environment still apply.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_header_timeout", 5*time.Second)
	v.SetDefault("server.request_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.metrics_token", "")
	v.SetDefault("server.trusted_proxies", []string{})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("auth.jwt_signing_key", "dev-secret-key-change-in-production")
	v.SetDefault("auth.jwt_issuer", "openbadges")
	v.SetDefault("auth.jwt_audience", "openbadges-api")

	// Default program id is the devnet deployment used for local runs.
	v.SetDefault("derivation.program_id", "BadgeProgram1111111111111111111111111111111")

	v.SetDefault("ledger.backend", LedgerMemory)
	v.SetDefault("ledger.batch_concurrency", 4)

	v.SetDefault("redis.url", "")
	v.SetDefault("redis.key_prefix", "ledger")
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)
	v.SetDefault("redis.dial_timeout", 5*time.Second)
	v.SetDefault("redis.read_timeout", 3*time.Second)
	v.SetDefault("redis.write_timeout", 3*time.Second)

	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.max_open_conns", 10)
	v.SetDefault("postgres.max_idle_conns", 5)
	v.SetDefault("postgres.conn_max_lifetime", 30*time.Minute)

	v.SetDefault("sqlite.path", "./data/ledger.db")

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "openbadges.audit")
	v.SetDefault("kafka.partitions", 3)
	v.SetDefault("kafka.replication_factor", 1)

	v.SetDefault("audit.queue_size", 1024)
	v.SetDefault("audit.failure_threshold", 5)
	v.SetDefault("audit.success_threshold", 3)

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests", 120)
	v.SetDefault("rate_limit.window", time.Minute)

	v.SetDefault("discovery.title", "Open Badges API")
	v.SetDefault("discovery.version", "1.0")
	v.SetDefault("discovery.name", "Open Badges")
}

// Validate checks cross-field requirements such as the connection settings
// of the selected ledger backend.
func (c *Config) Validate() error {
	switch c.Ledger.Backend {
	case LedgerMemory:
	case LedgerRedis:
		if c.Redis.URL == "" {
			return errors.New("config: redis.url is required for the redis ledger")
		}
	case LedgerPostgres:
		if c.Postgres.DSN == "" {
			return errors.New("config: postgres.dsn is required for the postgres ledger")
		}
	case LedgerSQLite:
		if c.SQLite.Path == "" {
			return errors.New("config: sqlite.path is required for the sqlite ledger")
		}
	default:
		return fmt.Errorf("config: unknown ledger backend %q", c.Ledger.Backend)
	}
	if c.Derivation.ProgramID == "" {
		return errors.New("config: derivation.program_id is required")
	}
	if c.RateLimit.Enabled && (c.RateLimit.Requests <= 0 || c.RateLimit.Window <= 0) {
		return errors.New("config: rate_limit.requests and rate_limit.window must be positive")
	}
	if c.Auth.JWTSigningKey == "" {
		return errors.New("config: auth.jwt_signing_key is required")
	}
	return nil
}
