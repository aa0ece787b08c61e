// Package config loads service configuration from config.yaml and the
// environment, with environment variables taking precedence.
package config

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration for the approvals service.
type Config struct {
	Service  ServiceConfig  `mapstructure:"service"`
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	NATS     NATSConfig     `mapstructure:"nats"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Log      LogConfig      `mapstructure:"log"`
}

// ServiceConfig identifies the running service instance.
type ServiceConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL pool settings.
type DatabaseConfig struct {
	URL         string        `mapstructure:"url"`
	MaxConns    int32         `mapstructure:"max_conns"`
	MinConns    int32         `mapstructure:"min_conns"`
	MaxIdleTime time.Duration `mapstructure:"max_idle_time"`
}

// RedisConfig holds the route cache connection settings.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	RouteTTL time.Duration `mapstructure:"route_ttl"`
}

// NATSConfig holds notification publishing settings. An empty URL disables
// publishing entirely.
type NATSConfig struct {
	URL string `mapstructure:"url"`
}

// AuthConfig holds JWT verification settings.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Load reads config.yaml (from . or ./configs) and the environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !stderrors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		// No file: run on env vars and defaults.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("database.url is required (DATABASE_URL)")
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service.name", "be-payment-approvals")
	v.SetDefault("service.version", "dev")
	v.SetDefault("service.environment", "development")

	v.SetDefault("server.port", 8086)
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.request_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	v.SetDefault("database.url", "")
	v.SetDefault("database.max_conns", 15)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_idle_time", 5*time.Minute)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.route_ttl", 5*time.Minute)

	v.SetDefault("nats.url", "")
	v.SetDefault("auth.jwt_secret", "")

	v.SetDefault("log.level", "info")
}
