package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tinychat/server/internal/validation"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server      ServerConfig    `yaml:"server"`
	Database    DatabaseConfig  `yaml:"database"`
	PubSub      PubSubConfig    `yaml:"pubsub"`
	Gateway     GatewayConfig   `yaml:"gateway"`
	RateLimit   RateLimitConfig `yaml:"rate_limit"`
	CORS        CORSConfig      `yaml:"cors"`
	Logging     LoggingConfig   `yaml:"logging"`
	Tracing     TracingConfig   `yaml:"tracing"`
	Jobs        JobsConfig      `yaml:"jobs"`
	Environment string          `yaml:"environment"`

	// NodeID is the snowflake node for ids generated by this process.
	NodeID int64 `yaml:"node_id"`
}

type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
}

type DatabaseConfig struct {
	URL            string `yaml:"url"`
	MaxConnections int    `yaml:"max_connections"`
	MaxIdle        int    `yaml:"max_idle_connections"`
}

type PubSubConfig struct {
	// Driver is one of redis, postgres or memory.
	Driver         string        `yaml:"driver"`
	RedisURL       string        `yaml:"redis_url"`
	PublishTimeout time.Duration `yaml:"publish_timeout"`
}

type GatewayConfig struct {
	ResponderWorkers int           `yaml:"responder_workers"`
	HandleTimeout    time.Duration `yaml:"handle_timeout"`
	RetryBase        time.Duration `yaml:"retry_base"`
	RetryMax         time.Duration `yaml:"retry_max"`
}

type RateLimitConfig struct {
	PublicPerMinute int `yaml:"public_per_minute"`
	AuthPerMinute   int `yaml:"auth_per_minute"`
	LoginPerMinute  int `yaml:"login_per_minute"`

	// TrustedProxyCIDRs lists proxies whose X-Forwarded-For is believed.
	TrustedProxyCIDRs []string `yaml:"trusted_proxy_cidrs"`
}

type CORSConfig struct {
	AllowAllOrigins bool     `yaml:"allow_all_origins"`
	AllowedOrigins  []string `yaml:"allowed_origins"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	ServiceName  string  `yaml:"service_name"`
	OTLPEndpoint string  `yaml:"otlp_endpoint"`
	SampleRate   float64 `yaml:"sample_rate"`
}

type JobsConfig struct {
	Enabled               bool          `yaml:"enabled"`
	InviteCleanupInterval time.Duration `yaml:"invite_cleanup_interval"`
	MaxWorkers            int           `yaml:"max_workers"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			MaxBodyBytes:    1 << 20,
		},
		Database: DatabaseConfig{
			MaxConnections: 25,
			MaxIdle:        5,
		},
		PubSub: PubSubConfig{
			Driver:         "redis",
			PublishTimeout: 2 * time.Second,
		},
		Gateway: GatewayConfig{
			ResponderWorkers: 8,
			HandleTimeout:    5 * time.Second,
			RetryBase:        200 * time.Millisecond,
			RetryMax:         10 * time.Second,
		},
		RateLimit: RateLimitConfig{
			PublicPerMinute: 60,
			AuthPerMinute:   300,
			LoginPerMinute:  10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Exporter:    "none",
			ServiceName: "tinychat-server",
			SampleRate:  1.0,
		},
		Jobs: JobsConfig{
			Enabled:               true,
			InviteCleanupInterval: time.Hour,
			MaxWorkers:            2,
		},
		Environment: "development",
	}
}

// Load builds the configuration from defaults, then the YAML file at path
// when path is not empty, then environment variables.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Server.Host = getEnv("SERVER_HOST", cfg.Server.Host)
	cfg.Server.Port = getEnvInt("SERVER_PORT", cfg.Server.Port)
	cfg.Server.ReadTimeout = getEnvDuration("SERVER_READ_TIMEOUT", cfg.Server.ReadTimeout)
	cfg.Server.WriteTimeout = getEnvDuration("SERVER_WRITE_TIMEOUT", cfg.Server.WriteTimeout)
	cfg.Server.ShutdownTimeout = getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", cfg.Server.ShutdownTimeout)
	cfg.Server.MaxBodyBytes = int64(getEnvInt("SERVER_MAX_BODY_BYTES", int(cfg.Server.MaxBodyBytes)))

	cfg.Database.URL = getEnv("DATABASE_URL", cfg.Database.URL)
	cfg.Database.MaxConnections = getEnvInt("DATABASE_MAX_CONNECTIONS", cfg.Database.MaxConnections)
	cfg.Database.MaxIdle = getEnvInt("DATABASE_MAX_IDLE_CONNECTIONS", cfg.Database.MaxIdle)

	cfg.PubSub.Driver = strings.ToLower(getEnv("PUBSUB_DRIVER", cfg.PubSub.Driver))
	cfg.PubSub.RedisURL = getEnv("REDIS_URL", cfg.PubSub.RedisURL)
	cfg.PubSub.PublishTimeout = getEnvDuration("PUBSUB_PUBLISH_TIMEOUT", cfg.PubSub.PublishTimeout)

	cfg.Gateway.ResponderWorkers = getEnvInt("GATEWAY_RESPONDER_WORKERS", cfg.Gateway.ResponderWorkers)
	cfg.Gateway.HandleTimeout = getEnvDuration("GATEWAY_HANDLE_TIMEOUT", cfg.Gateway.HandleTimeout)
	cfg.Gateway.RetryBase = getEnvDuration("GATEWAY_RETRY_BASE", cfg.Gateway.RetryBase)
	cfg.Gateway.RetryMax = getEnvDuration("GATEWAY_RETRY_MAX", cfg.Gateway.RetryMax)

	cfg.RateLimit.PublicPerMinute = getEnvInt("RATE_LIMIT_PUBLIC", cfg.RateLimit.PublicPerMinute)
	cfg.RateLimit.AuthPerMinute = getEnvInt("RATE_LIMIT_AUTH", cfg.RateLimit.AuthPerMinute)
	cfg.RateLimit.LoginPerMinute = getEnvInt("RATE_LIMIT_LOGIN", cfg.RateLimit.LoginPerMinute)
	if proxies, ok := os.LookupEnv("RATE_LIMIT_TRUSTED_PROXIES"); ok {
		cfg.RateLimit.TrustedProxyCIDRs = splitList(proxies)
	}

	if origins, ok := os.LookupEnv("CORS_ALLOWED_ORIGINS"); ok {
		cfg.CORS.AllowedOrigins = splitList(origins)
	}
	cfg.CORS.AllowAllOrigins = getEnvBool("CORS_ALLOW_ALL", cfg.CORS.AllowAllOrigins)

	cfg.Logging.Level = getEnv("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = getEnv("LOG_FORMAT", cfg.Logging.Format)

	cfg.Tracing.Enabled = getEnvBool("TRACING_ENABLED", cfg.Tracing.Enabled)
	cfg.Tracing.Exporter = getEnv("TRACING_EXPORTER", cfg.Tracing.Exporter)
	cfg.Tracing.ServiceName = getEnv("TRACING_SERVICE_NAME", cfg.Tracing.ServiceName)
	cfg.Tracing.OTLPEndpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.Tracing.OTLPEndpoint)
	cfg.Tracing.SampleRate = getEnvFloat("TRACING_SAMPLE_RATE", cfg.Tracing.SampleRate)

	cfg.Jobs.Enabled = getEnvBool("JOBS_ENABLED", cfg.Jobs.Enabled)
	cfg.Jobs.InviteCleanupInterval = getEnvDuration("JOBS_INVITE_CLEANUP_INTERVAL", cfg.Jobs.InviteCleanupInterval)
	cfg.Jobs.MaxWorkers = getEnvInt("JOBS_MAX_WORKERS", cfg.Jobs.MaxWorkers)

	cfg.Environment = getEnv("ENVIRONMENT", cfg.Environment)
	cfg.NodeID = int64(getEnvInt("NODE_ID", int(cfg.NodeID)))
}

// Validate reports the first missing or inconsistent setting.
func (c Config) Validate() error {
	if c.Database.URL == "" {
		return errors.New("DATABASE_URL is required")
	}
	switch c.PubSub.Driver {
	case "redis":
		if c.PubSub.RedisURL == "" {
			return errors.New("REDIS_URL is required when PUBSUB_DRIVER is redis")
		}
	case "postgres", "memory":
	default:
		return fmt.Errorf("unsupported PUBSUB_DRIVER %q (must be redis, postgres or memory)", c.PubSub.Driver)
	}
	if c.NodeID < 0 || c.NodeID > 1023 {
		return fmt.Errorf("NODE_ID %d out of range 0-1023", c.NodeID)
	}
	if c.Gateway.ResponderWorkers < 1 {
		return errors.New("GATEWAY_RESPONDER_WORKERS must be at least 1")
	}
	if c.PubSub.PublishTimeout <= 0 {
		return errors.New("PUBSUB_PUBLISH_TIMEOUT must be positive")
	}
	if c.Environment == "production" {
		if c.CORS.AllowAllOrigins {
			return errors.New("CORS_ALLOW_ALL is not permitted in production")
		}
		if len(c.CORS.AllowedOrigins) == 0 {
			return errors.New("CORS_ALLOWED_ORIGINS is required in production")
		}
	}
	for _, origin := range c.CORS.AllowedOrigins {
		if err := validation.Origin(origin, "CORS_ALLOWED_ORIGINS", c.Environment == "production"); err != nil {
			return err
		}
	}
	if c.Tracing.Enabled && c.Tracing.Exporter == "otlp" {
		if err := validation.Endpoint(c.Tracing.OTLPEndpoint, "OTEL_EXPORTER_OTLP_ENDPOINT"); err != nil {
			return err
		}
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (s ServerConfig) Addr() string {
	return s.Host + ":" + strconv.Itoa(s.Port)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
