package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store backends for queue state.
const (
	StorePostgres = "postgres"
	StoreRedis    = "redis"
	StoreMemory   = "memory"
)

// Database drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config holds all configuration for the application
type Config struct {
	DB        DatabaseConfig
	App       AppConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
	Queue     QueueConfig
	Notify    NotifyConfig
	Logger    LoggerConfig
}

// DatabaseConfig holds configuration for the database
type DatabaseConfig struct {
	Driver          string `mapstructure:"DB_DRIVER"`
	Host            string `mapstructure:"DB_HOST"`
	Port            string `mapstructure:"DB_PORT"`
	User            string `mapstructure:"DB_USER"`
	Password        string `mapstructure:"DB_PASSWORD"`
	Name            string `mapstructure:"DB_NAME"`
	SSLMode         string `mapstructure:"DB_SSLMODE"`
	SQLitePath      string `mapstructure:"DB_SQLITE_PATH"`
	MaxOpenConns    int    `mapstructure:"DB_MAX_OPEN_CONNS"`
	MaxIdleConns    int    `mapstructure:"DB_MAX_IDLE_CONNS"`
	ConnMaxLifetime int    `mapstructure:"DB_CONN_MAX_LIFETIME_SECONDS"`
	ConnMaxIdleTime int    `mapstructure:"DB_CONN_MAX_IDLE_TIME_SECONDS"`
}

// AppConfig holds configuration for the application server
type AppConfig struct {
	Env                    string `mapstructure:"APP_ENV"`
	GRPCPort               string `mapstructure:"GRPC_PORT"`
	HTTPPort               string `mapstructure:"HTTP_PORT"`
	GinPort                string `mapstructure:"GIN_PORT"`
	ShutdownTimeoutSeconds int    `mapstructure:"SHUTDOWN_TIMEOUT_SECONDS"`
	SwaggerPath            string `mapstructure:"SWAGGER_PATH"`
	CORSAllowedOrigins     []string
}

// RedisConfig holds configuration for the Redis connection
type RedisConfig struct {
	Host        string `mapstructure:"REDIS_HOST"`
	Port        string `mapstructure:"REDIS_PORT"`
	Password    string `mapstructure:"REDIS_PASSWORD"`
	DB          int    `mapstructure:"REDIS_DB"`
	MaxRetries  int    `mapstructure:"REDIS_MAX_RETRIES"`
	PoolSize    int    `mapstructure:"REDIS_POOL_SIZE"`
	MinIdleConn int    `mapstructure:"REDIS_MIN_IDLE_CONN"`
	CacheTTL    int    `mapstructure:"REDIS_CACHE_TTL"`    // seconds
	DialTimeout int    `mapstructure:"REDIS_DIAL_TIMEOUT"` // seconds
}

// RateLimitConfig holds configuration for the token bucket limiter
type RateLimitConfig struct {
	Enabled           bool `mapstructure:"RATE_LIMIT_ENABLED"`
	RequestsPerSecond int  `mapstructure:"RATE_LIMIT_REQUESTS_PER_SECOND"`
	BurstCapacity     int  `mapstructure:"RATE_LIMIT_BURST_CAPACITY"`
}

// QueueConfig selects the queue store and bounds the retry loops
type QueueConfig struct {
	Store              string `mapstructure:"QUEUE_STORE"`
	JoinMaxAttempts    int    `mapstructure:"QUEUE_JOIN_MAX_ATTEMPTS"`
	AdvanceMaxAttempts int    `mapstructure:"QUEUE_ADVANCE_MAX_ATTEMPTS"`
	LeaveMaxAttempts   int    `mapstructure:"QUEUE_LEAVE_MAX_ATTEMPTS"`
	RetryBackoffMs     int    `mapstructure:"QUEUE_RETRY_BACKOFF_MS"`
	CacheEnabled       bool   `mapstructure:"QUEUE_CACHE_ENABLED"`
}

// NotifyConfig holds configuration for queue event publishing
type NotifyConfig struct {
	RedisEnabled  bool     `mapstructure:"NOTIFY_REDIS_ENABLED"`
	RedisChannel  string   `mapstructure:"NOTIFY_REDIS_CHANNEL"`
	KafkaEnabled  bool     `mapstructure:"NOTIFY_KAFKA_ENABLED"`
	KafkaBrokers  []string `mapstructure:"NOTIFY_KAFKA_BROKERS"`
	KafkaTopic    string   `mapstructure:"NOTIFY_KAFKA_TOPIC"`
	KafkaRetryMax int      `mapstructure:"NOTIFY_KAFKA_RETRY_MAX"`
}

// LoggerConfig holds configuration for the logger
type LoggerConfig struct {
	Level            string  `mapstructure:"LOG_LEVEL"`
	Format           string  `mapstructure:"LOG_FORMAT"`
	OutputPath       string  `mapstructure:"LOG_OUTPUT_PATH"`
	SlowQuerySeconds float64 `mapstructure:"LOG_SLOW_QUERY_SECONDS"`
	EnableSampling   bool    `mapstructure:"LOG_ENABLE_SAMPLING"`
	ServiceName      string  `mapstructure:"SERVICE_NAME"`
	ServiceVersion   string  `mapstructure:"SERVICE_VERSION"`
	MaxSizeMB        int     `mapstructure:"LOG_MAX_SIZE_MB"`
	MaxBackups       int     `mapstructure:"LOG_MAX_BACKUPS"`
	MaxAgeDays       int     `mapstructure:"LOG_MAX_AGE_DAYS"`
}

// LoadConfig reads configuration from app.env in path, overridden by
// environment variables.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.AutomaticEnv() // Read from environment variables

	// Set defaults first
	setDefaults(v)

	v.AddConfigPath(path)
	v.SetConfigName("app") // Look for app.env
	v.SetConfigType("env")

	// Try to read config file
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is okay if we have env vars
	}

	var config Config

	config.DB.Driver = strings.ToLower(v.GetString("DB_DRIVER"))
	config.DB.Host = v.GetString("DB_HOST")
	config.DB.Port = v.GetString("DB_PORT")
	config.DB.User = v.GetString("DB_USER")
	config.DB.Password = v.GetString("DB_PASSWORD")
	config.DB.Name = v.GetString("DB_NAME")
	config.DB.SSLMode = v.GetString("DB_SSLMODE")
	config.DB.SQLitePath = v.GetString("DB_SQLITE_PATH")
	config.DB.MaxOpenConns = v.GetInt("DB_MAX_OPEN_CONNS")
	config.DB.MaxIdleConns = v.GetInt("DB_MAX_IDLE_CONNS")
	config.DB.ConnMaxLifetime = v.GetInt("DB_CONN_MAX_LIFETIME_SECONDS")
	config.DB.ConnMaxIdleTime = v.GetInt("DB_CONN_MAX_IDLE_TIME_SECONDS")

	config.App.Env = v.GetString("APP_ENV")
	config.App.GRPCPort = v.GetString("GRPC_PORT")
	config.App.HTTPPort = v.GetString("HTTP_PORT")
	config.App.GinPort = v.GetString("GIN_PORT")
	config.App.ShutdownTimeoutSeconds = v.GetInt("SHUTDOWN_TIMEOUT_SECONDS")
	config.App.SwaggerPath = v.GetString("SWAGGER_PATH")
	config.App.CORSAllowedOrigins = splitList(v.GetString("CORS_ALLOWED_ORIGINS"))

	config.Redis.Host = v.GetString("REDIS_HOST")
	config.Redis.Port = v.GetString("REDIS_PORT")
	config.Redis.Password = v.GetString("REDIS_PASSWORD")
	config.Redis.DB = v.GetInt("REDIS_DB")
	config.Redis.MaxRetries = v.GetInt("REDIS_MAX_RETRIES")
	config.Redis.PoolSize = v.GetInt("REDIS_POOL_SIZE")
	config.Redis.MinIdleConn = v.GetInt("REDIS_MIN_IDLE_CONN")
	config.Redis.CacheTTL = v.GetInt("REDIS_CACHE_TTL")
	config.Redis.DialTimeout = v.GetInt("REDIS_DIAL_TIMEOUT")

	config.RateLimit.Enabled = v.GetBool("RATE_LIMIT_ENABLED")
	config.RateLimit.RequestsPerSecond = v.GetInt("RATE_LIMIT_REQUESTS_PER_SECOND")
	config.RateLimit.BurstCapacity = v.GetInt("RATE_LIMIT_BURST_CAPACITY")

	config.Queue.Store = strings.ToLower(v.GetString("QUEUE_STORE"))
	config.Queue.JoinMaxAttempts = v.GetInt("QUEUE_JOIN_MAX_ATTEMPTS")
	config.Queue.AdvanceMaxAttempts = v.GetInt("QUEUE_ADVANCE_MAX_ATTEMPTS")
	config.Queue.LeaveMaxAttempts = v.GetInt("QUEUE_LEAVE_MAX_ATTEMPTS")
	config.Queue.RetryBackoffMs = v.GetInt("QUEUE_RETRY_BACKOFF_MS")
	config.Queue.CacheEnabled = v.GetBool("QUEUE_CACHE_ENABLED")

	config.Notify.RedisEnabled = v.GetBool("NOTIFY_REDIS_ENABLED")
	config.Notify.RedisChannel = v.GetString("NOTIFY_REDIS_CHANNEL")
	config.Notify.KafkaEnabled = v.GetBool("NOTIFY_KAFKA_ENABLED")
	config.Notify.KafkaBrokers = splitList(v.GetString("NOTIFY_KAFKA_BROKERS"))
	config.Notify.KafkaTopic = v.GetString("NOTIFY_KAFKA_TOPIC")
	config.Notify.KafkaRetryMax = v.GetInt("NOTIFY_KAFKA_RETRY_MAX")

	config.Logger.Level = v.GetString("LOG_LEVEL")
	config.Logger.Format = v.GetString("LOG_FORMAT")
	config.Logger.OutputPath = v.GetString("LOG_OUTPUT_PATH")
	config.Logger.SlowQuerySeconds = v.GetFloat64("LOG_SLOW_QUERY_SECONDS")
	config.Logger.EnableSampling = v.GetBool("LOG_ENABLE_SAMPLING")
	config.Logger.ServiceName = v.GetString("SERVICE_NAME")
	config.Logger.ServiceVersion = v.GetString("SERVICE_VERSION")
	config.Logger.MaxSizeMB = v.GetInt("LOG_MAX_SIZE_MB")
	config.Logger.MaxBackups = v.GetInt("LOG_MAX_BACKUPS")
	config.Logger.MaxAgeDays = v.GetInt("LOG_MAX_AGE_DAYS")

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("DB_DRIVER", DriverPostgres)
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "queue_service")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("DB_SQLITE_PATH", "queue.db")
	v.SetDefault("DB_MAX_OPEN_CONNS", 25)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_CONN_MAX_LIFETIME_SECONDS", 300)
	v.SetDefault("DB_CONN_MAX_IDLE_TIME_SECONDS", 60)

	v.SetDefault("APP_ENV", "development")
	v.SetDefault("GRPC_PORT", "50051")
	v.SetDefault("HTTP_PORT", "8080")
	v.SetDefault("GIN_PORT", "8081")
	v.SetDefault("SHUTDOWN_TIMEOUT_SECONDS", 30)
	v.SetDefault("SWAGGER_PATH", "./api/swagger/queue.swagger.json")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "*")

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_MAX_RETRIES", 3)
	v.SetDefault("REDIS_POOL_SIZE", 10)
	v.SetDefault("REDIS_MIN_IDLE_CONN", 2)
	v.SetDefault("REDIS_CACHE_TTL", 300)
	v.SetDefault("REDIS_DIAL_TIMEOUT", 5)

	v.SetDefault("RATE_LIMIT_ENABLED", true)
	v.SetDefault("RATE_LIMIT_REQUESTS_PER_SECOND", 50)
	v.SetDefault("RATE_LIMIT_BURST_CAPACITY", 100)

	v.SetDefault("QUEUE_STORE", StorePostgres)
	v.SetDefault("QUEUE_JOIN_MAX_ATTEMPTS", 5)
	v.SetDefault("QUEUE_ADVANCE_MAX_ATTEMPTS", 5)
	v.SetDefault("QUEUE_LEAVE_MAX_ATTEMPTS", 5)
	v.SetDefault("QUEUE_RETRY_BACKOFF_MS", 10)
	v.SetDefault("QUEUE_CACHE_ENABLED", true)

	v.SetDefault("NOTIFY_REDIS_ENABLED", false)
	v.SetDefault("NOTIFY_REDIS_CHANNEL", "queue-events")
	v.SetDefault("NOTIFY_KAFKA_ENABLED", false)
	v.SetDefault("NOTIFY_KAFKA_BROKERS", "localhost:9092")
	v.SetDefault("NOTIFY_KAFKA_TOPIC", "queue-events")
	v.SetDefault("NOTIFY_KAFKA_RETRY_MAX", 3)

	// Logger defaults
	if v.GetString("APP_ENV") == "production" {
		v.SetDefault("LOG_LEVEL", "info")
		v.SetDefault("LOG_FORMAT", "json")
		v.SetDefault("LOG_ENABLE_SAMPLING", true)
	} else {
		v.SetDefault("LOG_LEVEL", "debug")
		v.SetDefault("LOG_FORMAT", "console")
		v.SetDefault("LOG_ENABLE_SAMPLING", false)
	}
	v.SetDefault("LOG_OUTPUT_PATH", "stdout")
	v.SetDefault("LOG_SLOW_QUERY_SECONDS", 0.2)
	v.SetDefault("SERVICE_NAME", "grpc-queue-service")
	v.SetDefault("SERVICE_VERSION", "1.0.0")
	v.SetDefault("LOG_MAX_SIZE_MB", 100)
	v.SetDefault("LOG_MAX_BACKUPS", 3)
	v.SetDefault("LOG_MAX_AGE_DAYS", 28)
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

// Validate checks the loaded configuration before any dependency is wired.
func (c *Config) Validate() error {
	var errs []error

	for name, port := range map[string]string{"GRPC_PORT": c.App.GRPCPort, "HTTP_PORT": c.App.HTTPPort, "GIN_PORT": c.App.GinPort} {
		if port == "" {
			errs = append(errs, fmt.Errorf("%s is required", name))
		}
	}
	if c.App.ShutdownTimeoutSeconds <= 0 {
		errs = append(errs, errors.New("SHUTDOWN_TIMEOUT_SECONDS must be positive"))
	}

	switch c.Queue.Store {
	case StorePostgres, StoreRedis, StoreMemory:
	default:
		errs = append(errs, fmt.Errorf("QUEUE_STORE must be one of postgres, redis, memory, got %q", c.Queue.Store))
	}
	if c.Queue.Store == StorePostgres {
		switch c.DB.Driver {
		case DriverPostgres:
			if c.DB.Host == "" || c.DB.Name == "" {
				errs = append(errs, errors.New("DB_HOST and DB_NAME are required for the postgres driver"))
			}
		case DriverSQLite:
			if c.DB.SQLitePath == "" {
				errs = append(errs, errors.New("DB_SQLITE_PATH is required for the sqlite driver"))
			}
		default:
			errs = append(errs, fmt.Errorf("DB_DRIVER must be postgres or sqlite, got %q", c.DB.Driver))
		}
	}
	if c.Queue.JoinMaxAttempts <= 0 || c.Queue.AdvanceMaxAttempts <= 0 || c.Queue.LeaveMaxAttempts <= 0 {
		errs = append(errs, errors.New("queue retry attempts must be positive"))
	}
	if c.Queue.RetryBackoffMs < 0 {
		errs = append(errs, errors.New("QUEUE_RETRY_BACKOFF_MS must not be negative"))
	}

	if c.Redis.Host == "" || c.Redis.Port == "" {
		errs = append(errs, errors.New("REDIS_HOST and REDIS_PORT are required"))
	}
	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.BurstCapacity <= 0) {
		errs = append(errs, errors.New("rate limit values must be positive when enabled"))
	}

	if c.Notify.RedisEnabled && c.Notify.RedisChannel == "" {
		errs = append(errs, errors.New("NOTIFY_REDIS_CHANNEL is required when redis notifications are enabled"))
	}
	if c.Notify.KafkaEnabled && (len(c.Notify.KafkaBrokers) == 0 || c.Notify.KafkaTopic == "") {
		errs = append(errs, errors.New("NOTIFY_KAFKA_BROKERS and NOTIFY_KAFKA_TOPIC are required when kafka notifications are enabled"))
	}

	return errors.Join(errs...)
}

// RetryBackoff returns the base wait between queue retry attempts.
func (c *QueueConfig) RetryBackoff() time.Duration {
	return time.Duration(c.RetryBackoffMs) * time.Millisecond
}

// DSN returns the PostgreSQL Data Source Name
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		c.Host, c.User, c.Password, c.Name, c.Port, c.SSLMode)
}

// Addr returns the Redis address in host:port form
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}
