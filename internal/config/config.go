package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the complete service configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server" toml:"server"`
	Database DatabaseConfig `yaml:"database" toml:"database"`
	Auth     AuthConfig     `yaml:"auth" toml:"auth"`
	Redis    RedisConfig    `yaml:"redis" toml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka" toml:"kafka"`
	Log      LogConfig      `yaml:"log" toml:"log"`
	Jobs     JobsConfig     `yaml:"jobs" toml:"jobs"`
}

type ServerConfig struct {
	Port            int           `yaml:"port" toml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" toml:"shutdown_timeout"`
}

// DatabaseConfig sizes the connection pool. AcquireTimeout bounds how long an
// order write waits for a free connection.
type DatabaseConfig struct {
	URL               string        `yaml:"url" toml:"url"`
	MaxConns          int32         `yaml:"max_conns" toml:"max_conns"`
	MinConns          int32         `yaml:"min_conns" toml:"min_conns"`
	HealthCheckPeriod time.Duration `yaml:"health_check_period" toml:"health_check_period"`
	AcquireTimeout    time.Duration `yaml:"acquire_timeout" toml:"acquire_timeout"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" toml:"jwt_secret"`
	JWKSURL   string `yaml:"jwks_url" toml:"jwks_url"`
}

// RedisConfig enables the order view cache when Addr is set. Writes made
// through this service invalidate at once; TTL bounds how long a status set
// directly in the database can be served stale.
type RedisConfig struct {
	Addr     string        `yaml:"addr" toml:"addr"`
	Password string        `yaml:"password" toml:"password"`
	DB       int           `yaml:"db" toml:"db"`
	TTL      time.Duration `yaml:"ttl" toml:"ttl"`
}

// KafkaConfig enables order event publishing when Brokers is not empty.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers" toml:"brokers"`
	Topic   string   `yaml:"topic" toml:"topic"`
	Buffer  int      `yaml:"buffer" toml:"buffer"`
}

type LogConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"` // "json" or "text"
}

type JobsConfig struct {
	PoolMonitorInterval time.Duration `yaml:"pool_monitor_interval" toml:"pool_monitor_interval"`
}

// Default returns the configuration used for anything not set explicitly.
func Default() Config {
	return Config{
		Server: ServerConfig{Port: 8080, ShutdownTimeout: 10 * time.Second},
		Database: DatabaseConfig{
			MaxConns:          10,
			HealthCheckPeriod: time.Minute,
			AcquireTimeout:    5 * time.Second,
		},
		Redis: RedisConfig{TTL: 30 * time.Second},
		Kafka: KafkaConfig{Topic: "orders.events", Buffer: 256},
		Log:   LogConfig{Level: "info", Format: "json"},
		Jobs:  JobsConfig{PoolMonitorInterval: 30 * time.Second},
	}
}

// Load builds the configuration from defaults, then the optional file at
// path (.yaml/.yml or .toml), then a .env file in the working directory,
// then process environment variables. Later sources win.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// .env is optional; real environment variables take precedence over it.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to read .env file", "error", err)
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadFile(path string, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return fmt.Errorf("failed to load config file: %w", err)
		}
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to load config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parsing %s: %w", path, err)
		}
	default:
		return fmt.Errorf("unsupported config file type %q", filepath.Ext(path))
	}
	return nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		cfg.Server.Port = port
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("JWKS_URL"); v != "" {
		cfg.Auth.JWKSURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		db, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid REDIS_DB %q: %w", v, err)
		}
		cfg.Redis.DB = db
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = splitList(v)
	}
	if v := os.Getenv("KAFKA_TOPIC"); v != "" {
		cfg.Kafka.Topic = v
	}
	if v := os.Getenv("DB_MAX_CONNS"); v != "" {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil {
			return fmt.Errorf("invalid DB_MAX_CONNS %q: %w", v, err)
		}
		cfg.Database.MaxConns = int32(n)
	}
	if v := os.Getenv("DB_ACQUIRE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid DB_ACQUIRE_TIMEOUT %q: %w", v, err)
		}
		cfg.Database.AcquireTimeout = d
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks the settings that have no usable default.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return errors.New("database url is required (DATABASE_URL)")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Database.MaxConns < 0 || c.Database.MinConns < 0 {
		return errors.New("database connection limits cannot be negative")
	}
	if c.Database.MaxConns > 0 && c.Database.MinConns > c.Database.MaxConns {
		return fmt.Errorf("database min_conns %d exceeds max_conns %d", c.Database.MinConns, c.Database.MaxConns)
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return errors.New("kafka topic is required when brokers are set")
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	return nil
}

func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", l.Level)
	}
	return level, nil
}

// NewLogger builds the process logger described by the config.
func (l LogConfig) NewLogger() *slog.Logger {
	level, _ := l.SlogLevel()
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(l.Format, "text") {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
