package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the automation service
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Queue      QueueConfig      `mapstructure:"queue"`
	Driver     DriverConfig     `mapstructure:"driver"`
	Decomposer DecomposerConfig `mapstructure:"decomposer"`
	Worker     WorkerConfig     `mapstructure:"worker"`
	Stream     StreamConfig     `mapstructure:"stream"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
}

// ServerConfig holds HTTP API settings
type ServerConfig struct {
	ListenAddr     string        `mapstructure:"listen_addr"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// StorageConfig selects and bounds the task store
type StorageConfig struct {
	// Backend is "memory" or "redis"
	Backend string `mapstructure:"backend"`

	// Records older than TTL are evicted
	TTL time.Duration `mapstructure:"ttl"`

	// Upper bound on records kept by the memory backend
	MaxTasks int `mapstructure:"max_tasks"`
}

// QueueConfig selects the work queue feeding the engine
type QueueConfig struct {
	// Backend is "memory" or "redis"
	Backend string `mapstructure:"backend"`

	// Capacity of the memory backend
	Capacity int `mapstructure:"capacity"`

	// How long a single dequeue blocks before the worker re-checks shutdown
	DequeueTimeout time.Duration `mapstructure:"dequeue_timeout"`
}

// DriverConfig selects the automation driver
type DriverConfig struct {
	// Kind is "dryrun" or "remote"
	Kind         string        `mapstructure:"kind"`
	BaseURL      string        `mapstructure:"base_url"`
	Timeout      time.Duration `mapstructure:"timeout"`
	StartRetries int           `mapstructure:"start_retries"`
	Headless     bool          `mapstructure:"headless"`
}

// DecomposerConfig bounds plan size
type DecomposerConfig struct {
	MaxActions int           `mapstructure:"max_actions"`
	MaxPhrases int           `mapstructure:"max_phrases"`
	MaxWait    time.Duration `mapstructure:"max_wait"`
}

// WorkerConfig holds execution loop settings
type WorkerConfig struct {
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// StreamConfig holds event stream settings
type StreamConfig struct {
	SendBuffer   int           `mapstructure:"send_buffer"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	ReadLimit    int64         `mapstructure:"read_limit"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, text
}

// MetricsConfig holds Prometheus exposition settings
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:     ":5000",
			ReadTimeout:    15 * time.Second,
			WriteTimeout:   15 * time.Second,
			IdleTimeout:    60 * time.Second,
			AllowedOrigins: []string{"*"},
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     6379,
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       0,
			PoolSize: 10,
		},
		Storage: StorageConfig{
			Backend:  "memory",
			TTL:      24 * time.Hour,
			MaxTasks: 10000,
		},
		Queue: QueueConfig{
			Backend:        "memory",
			Capacity:       1024,
			DequeueTimeout: time.Second,
		},
		Driver: DriverConfig{
			Kind:         "dryrun",
			BaseURL:      "http://localhost:9222",
			Timeout:      30 * time.Second,
			StartRetries: 3,
			Headless:     false,
		},
		Decomposer: DecomposerConfig{
			MaxActions: 50,
			MaxPhrases: 50,
			MaxWait:    10 * time.Minute,
		},
		Worker: WorkerConfig{
			ShutdownTimeout: 30 * time.Second,
		},
		Stream: StreamConfig{
			SendBuffer:   32,
			WriteTimeout: 10 * time.Second,
			ReadLimit:    4096,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// Load reads configuration with precedence (highest first):
// environment (PILOT_SECTION_KEY, plus REDIS_HOST and REDIS_PASSWORD), the
// YAML file at path when given, built-in defaults
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !os.IsNotExist(err) {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		}
	}

	v.SetEnvPrefix("PILOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("redis.host", "PILOT_REDIS_HOST", "REDIS_HOST")
	_ = v.BindEnv("redis.password", "PILOT_REDIS_PASSWORD", "REDIS_PASSWORD")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override it
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("server.listen_addr", d.Server.ListenAddr)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.idle_timeout", d.Server.IdleTimeout)
	v.SetDefault("server.allowed_origins", d.Server.AllowedOrigins)

	v.SetDefault("redis.host", d.Redis.Host)
	v.SetDefault("redis.port", d.Redis.Port)
	v.SetDefault("redis.password", d.Redis.Password)
	v.SetDefault("redis.db", d.Redis.DB)
	v.SetDefault("redis.pool_size", d.Redis.PoolSize)

	v.SetDefault("storage.backend", d.Storage.Backend)
	v.SetDefault("storage.ttl", d.Storage.TTL)
	v.SetDefault("storage.max_tasks", d.Storage.MaxTasks)

	v.SetDefault("queue.backend", d.Queue.Backend)
	v.SetDefault("queue.capacity", d.Queue.Capacity)
	v.SetDefault("queue.dequeue_timeout", d.Queue.DequeueTimeout)

	v.SetDefault("driver.kind", d.Driver.Kind)
	v.SetDefault("driver.base_url", d.Driver.BaseURL)
	v.SetDefault("driver.timeout", d.Driver.Timeout)
	v.SetDefault("driver.start_retries", d.Driver.StartRetries)
	v.SetDefault("driver.headless", d.Driver.Headless)

	v.SetDefault("decomposer.max_actions", d.Decomposer.MaxActions)
	v.SetDefault("decomposer.max_phrases", d.Decomposer.MaxPhrases)
	v.SetDefault("decomposer.max_wait", d.Decomposer.MaxWait)

	v.SetDefault("worker.shutdown_timeout", d.Worker.ShutdownTimeout)

	v.SetDefault("stream.send_buffer", d.Stream.SendBuffer)
	v.SetDefault("stream.write_timeout", d.Stream.WriteTimeout)
	v.SetDefault("stream.read_limit", d.Stream.ReadLimit)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.path", d.Metrics.Path)
}

// RedisAddr returns the full Redis address
func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// UsesRedis reports whether any backend needs a Redis connection
func (c *Config) UsesRedis() bool {
	return c.Storage.Backend == "redis" || c.Queue.Backend == "redis"
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("server listen address cannot be empty")
	}
	switch c.Storage.Backend {
	case "memory":
		if c.Storage.MaxTasks < 1 {
			return fmt.Errorf("storage max_tasks must be at least 1")
		}
	case "redis":
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	switch c.Queue.Backend {
	case "memory":
		if c.Queue.Capacity < 1 {
			return fmt.Errorf("queue capacity must be at least 1")
		}
	case "redis":
	default:
		return fmt.Errorf("unknown queue backend %q", c.Queue.Backend)
	}
	if c.UsesRedis() && c.Redis.Host == "" {
		return fmt.Errorf("redis host cannot be empty")
	}
	if c.Storage.TTL <= 0 {
		return fmt.Errorf("storage ttl must be positive")
	}
	if c.Queue.DequeueTimeout <= 0 {
		return fmt.Errorf("queue dequeue_timeout must be positive")
	}
	switch c.Driver.Kind {
	case "dryrun":
	case "remote":
		if c.Driver.BaseURL == "" {
			return fmt.Errorf("driver base_url is required for the remote driver")
		}
	default:
		return fmt.Errorf("unknown driver kind %q", c.Driver.Kind)
	}
	if c.Decomposer.MaxActions < 1 {
		return fmt.Errorf("decomposer max_actions must be at least 1")
	}
	if c.Decomposer.MaxPhrases < 1 {
		return fmt.Errorf("decomposer max_phrases must be at least 1")
	}
	if c.Decomposer.MaxWait < time.Second {
		return fmt.Errorf("decomposer max_wait must be at least 1s")
	}
	if c.Stream.SendBuffer < 1 {
		return fmt.Errorf("stream send_buffer must be at least 1")
	}
	return nil
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
