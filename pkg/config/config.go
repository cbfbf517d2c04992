package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Server ServerConfig `mapstructure:"server"`

	// Database configuration
	Database DatabaseConfig `mapstructure:"database"`

	// Redis configuration
	Redis RedisConfig `mapstructure:"redis"`

	// JWT configuration
	JWT JWTConfig `mapstructure:"jwt"`

	// Queue configuration
	Queue QueueConfig `mapstructure:"queue"`

	// Agenda configuration
	Agenda AgendaConfig `mapstructure:"agenda"`

	// Logging configuration
	LogLevel string `mapstructure:"log_level"`

	// Monitoring configuration
	Monitoring MonitoringConfig `mapstructure:"monitoring"`

	// Tracing configuration
	Tracing TracingConfig `mapstructure:"tracing"`
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
	IdleTimeout  int    `mapstructure:"idle_timeout"`
}

// Addr returns the listen address
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig holds database configuration. An empty Host selects the
// in-memory row store.
type DatabaseConfig struct {
	URL             string `mapstructure:"url"`
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Name            string `mapstructure:"name"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"ssl_mode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool   `mapstructure:"auto_migrate"`
}

// Enabled reports whether a Postgres backend is configured
func (d DatabaseConfig) Enabled() bool {
	return d.URL != "" || d.Host != ""
}

// RedisConfig holds Redis configuration. An empty Addr disables the Redis
// ticket allocator.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	SecretKey      string `mapstructure:"secret_key"`
	AccessTokenTTL int    `mapstructure:"access_token_ttl"`
	Issuer         string `mapstructure:"issuer"`
}

// QueueConfig holds walk-in queue policy
type QueueConfig struct {
	// Timezone is the IANA zone whose midnight bounds a queue day
	Timezone string `mapstructure:"timezone"`
	// StrictTransitions rejects status changes outside the lifecycle
	StrictTransitions bool `mapstructure:"strict_transitions"`
	// AllowConsultationCancel permits in_consultation -> cancelled in strict mode
	AllowConsultationCancel bool `mapstructure:"allow_consultation_cancel"`
	// Allocator selects ticket numbering: "store" or "redis"
	Allocator string `mapstructure:"allocator"`
	// MaxTicketRetries bounds re-allocation after a duplicate ticket conflict
	MaxTicketRetries int `mapstructure:"max_ticket_retries"`
}

// Location resolves Timezone, falling back to the local zone
func (q QueueConfig) Location() *time.Location {
	if q.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(q.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// AgendaConfig holds the appointment grid shape
type AgendaConfig struct {
	FirstHour int `mapstructure:"first_hour"`
	LastHour  int `mapstructure:"last_hour"`
}

// MonitoringConfig holds monitoring configuration
type MonitoringConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	MetricsPath string `mapstructure:"metrics_path"`
	HealthPath  string `mapstructure:"health_path"`
}

// TracingConfig holds tracing configuration
type TracingConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	ServiceName  string  `mapstructure:"service_name"`
	Environment  string  `mapstructure:"environment"`
	SamplingRate float64 `mapstructure:"sampling_rate"`
}

// Load loads configuration from a .env file, environment variables and
// config files
func Load() (*Config, error) {
	// A missing .env is the normal case outside local development
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/medisync")

	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	overrideWithEnv(&config)

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8083)
	v.SetDefault("server.read_timeout", 30)
	v.SetDefault("server.write_timeout", 30)
	v.SetDefault("server.idle_timeout", 120)

	// Database defaults
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "medisync")
	v.SetDefault("database.user", "medisync")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 300)
	v.SetDefault("database.auto_migrate", false)

	// Redis defaults
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)

	// JWT defaults
	v.SetDefault("jwt.access_token_ttl", 43200) // 12 hours, one front-desk shift
	v.SetDefault("jwt.issuer", "medisync-frontdesk")

	// Queue defaults
	v.SetDefault("queue.timezone", "Africa/Algiers")
	v.SetDefault("queue.strict_transitions", true)
	v.SetDefault("queue.allow_consultation_cancel", false)
	v.SetDefault("queue.allocator", "store")
	v.SetDefault("queue.max_ticket_retries", 3)

	// Agenda defaults
	v.SetDefault("agenda.first_hour", 8)
	v.SetDefault("agenda.last_hour", 18)

	// Monitoring defaults
	v.SetDefault("monitoring.enabled", true)
	v.SetDefault("monitoring.metrics_path", "/metrics")
	v.SetDefault("monitoring.health_path", "/health")

	// Tracing defaults
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "medisync-frontdesk")
	v.SetDefault("tracing.environment", "development")
	v.SetDefault("tracing.sampling_rate", 1.0)

	// Logging defaults
	v.SetDefault("log_level", "info")
}

// overrideWithEnv overrides configuration with conventional environment variables
func overrideWithEnv(config *Config) {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Database.URL = dbURL
	}

	if redisAddr := os.Getenv("REDIS_ADDR"); redisAddr != "" {
		config.Redis.Addr = redisAddr
	}

	if jwtSecret := os.Getenv("JWT_SECRET_KEY"); jwtSecret != "" {
		config.JWT.SecretKey = jwtSecret
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		config.LogLevel = logLevel
	}
}

// validate validates the configuration
func validate(config *Config) error {
	if config.JWT.SecretKey == "" {
		return fmt.Errorf("JWT secret key is required")
	}

	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	switch config.Queue.Allocator {
	case "store":
	case "redis":
		if config.Redis.Addr == "" {
			return fmt.Errorf("redis allocator requires redis.addr")
		}
	default:
		return fmt.Errorf("unknown queue allocator: %q", config.Queue.Allocator)
	}

	if config.Queue.MaxTicketRetries < 0 {
		return fmt.Errorf("queue.max_ticket_retries must not be negative")
	}

	if config.Agenda.FirstHour < 0 || config.Agenda.LastHour > 23 || config.Agenda.FirstHour > config.Agenda.LastHour {
		return fmt.Errorf("invalid agenda hours: %d-%d", config.Agenda.FirstHour, config.Agenda.LastHour)
	}

	return nil
}
