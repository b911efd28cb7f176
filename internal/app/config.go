package app

import (
	"os"
	"strings"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Storage backends.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (LOYALTY_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	Storage      string `default:"postgres" usage:"Storage backend: postgres or memory"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (LOYALTY_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	ImageBaseURL string `default:"" usage:"Base URL for relative product image paths" flag:"image-base-url"`
	JWT          JWTConfig
	Settlement   SettlementConfig
	Redis        RedisConfig
	Kafka        KafkaConfig
	Payment      PaymentConfig
	Demo         DemoConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Graceful     GracefulConfig
}

// JWTConfig controls bearer token signing.
type JWTConfig struct {
	Secret string        `usage:"HMAC secret for signing bearer tokens (LOYALTY_JWT_SECRET)"`
	TTL    time.Duration `default:"24h" usage:"Bearer token lifetime"`
}

// SettlementConfig bounds retries of settlements that lose a race.
type SettlementConfig struct {
	MaxAttempts  int           `default:"3" usage:"Attempts per settlement under write conflicts" flag:"settlement-max-attempts"`
	RetryBackoff time.Duration `default:"10ms" usage:"Base delay between settlement attempts" flag:"settlement-retry-backoff"`
}

// RedisConfig enables the recommendation cache. An empty URL disables it.
type RedisConfig struct {
	URL string        `usage:"Redis URL for the recommendation cache (LOYALTY_REDIS_URL or REDIS_URL)" flag:"redis-url"`
	TTL time.Duration `default:"10m" usage:"Recommendation cache TTL" flag:"redis-ttl"`
}

// KafkaConfig enables the settlement event relay. No brokers disables it.
type KafkaConfig struct {
	Brokers  []string      `usage:"Kafka brokers for settlement events"`
	Topic    string        `default:"order.settled" usage:"Settlement event topic"`
	Interval time.Duration `default:"1s" usage:"Outbox polling interval" flag:"kafka-interval"`
	Batch    int           `default:"100" usage:"Events published per poll" flag:"kafka-batch"`
	// Backlog is the outbox size above which readiness fails.
	Backlog int `default:"10000" usage:"Unpublished events tolerated before readiness fails" flag:"kafka-backlog"`
}

// PaymentConfig tunes the payment simulator.
type PaymentConfig struct {
	SuccessRate float64 `default:"0.95" usage:"Probability that a simulated charge succeeds" flag:"payment-success-rate"`
}

// DemoConfig seeds the starter catalog and a demo account into the memory
// store on startup.
type DemoConfig struct {
	Email    string `default:"demo@electromart.test" usage:"Demo account email" flag:"demo-email"`
	Password string `usage:"Demo account password; empty skips the account" flag:"demo-password"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max        int           `default:"100" usage:"Max requests per window"`
	Window     time.Duration `default:"1m"  usage:"Rate limit window duration"`
	TrustProxy bool          `default:"false" usage:"Key clients by X-Forwarded-For" flag:"trust-proxy"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "LOYALTY",
		Files:     []string{"config.yaml", "/etc/loyalty/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults(os.Getenv)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's LOYALTY_-prefixed configuration.
func (c *Config) applyPlatformDefaults(getenv func(string) string) {
	if c.DatabaseURL == "" {
		c.DatabaseURL = getenv("DATABASE_URL")
	}
	if c.Redis.URL == "" {
		c.Redis.URL = getenv("REDIS_URL")
	}
	if port := getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
	c.Storage = strings.ToLower(strings.TrimSpace(c.Storage))
}

func (c *Config) validate() error {
	switch c.Storage {
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return errors.New("database URL is required: set LOYALTY_DATABASE_URL or DATABASE_URL")
		}
	case StorageMemory:
	default:
		return errors.Errorf("unknown storage %q: want %s or %s", c.Storage, StoragePostgres, StorageMemory)
	}
	if c.JWT.Secret == "" {
		return errors.New("jwt secret is required: set LOYALTY_JWT_SECRET")
	}
	if c.Payment.SuccessRate < 0 || c.Payment.SuccessRate > 1 {
		return errors.Errorf("payment success rate %v out of [0, 1]", c.Payment.SuccessRate)
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return errors.New("kafka topic is required when brokers are set")
	}
	return nil
}
