// Package config loads server and client settings with viper. A YAML file is
// optional; defaults live here and TASKBOARD_* environment variables win over
// both.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"taskboard/internal/telemetry"

	"github.com/spf13/viper"
)

const (
	configFileName = "taskboard"
	configFileType = "yaml"
	envPrefix      = "TASKBOARD"

	devSecret = "change-me-in-production"
)

var (
	ErrInvalidConfig = errors.New("invalid config")
	ErrDevSecret     = errors.New("jwt secret is the development default")
)

// ServerConfig configures cmd/server.
type ServerConfig struct {
	Addr           string        `mapstructure:"addr"`
	DBPath         string        `mapstructure:"db_path"`
	JWTSecret      string        `mapstructure:"jwt_secret"`
	JWTIssuer      string        `mapstructure:"jwt_issuer"`
	JWTAudience    string        `mapstructure:"jwt_audience"`
	TokenTTL       time.Duration `mapstructure:"token_ttl"`
	DraftTTL       time.Duration `mapstructure:"draft_ttl"`
	DraftCacheSize int           `mapstructure:"draft_cache_size"`
	ShutdownGrace  time.Duration `mapstructure:"shutdown_grace"`
}

// ClientConfig configures boardctl.
type ClientConfig struct {
	BaseURL         string        `mapstructure:"base_url"`
	Token           string        `mapstructure:"token"`
	Workspace       string        `mapstructure:"workspace"`
	Project         string        `mapstructure:"project"`
	Timeout         time.Duration `mapstructure:"timeout"`
	LinkConcurrency int           `mapstructure:"link_concurrency"`
}

// LogConfig selects the log level.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Config is the whole file.
type Config struct {
	Server    ServerConfig     `mapstructure:"server"`
	Client    ClientConfig     `mapstructure:"client"`
	Log       LogConfig        `mapstructure:"log"`
	Telemetry telemetry.Config `mapstructure:"telemetry"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8008")
	v.SetDefault("server.db_path", "taskboard.db")
	v.SetDefault("server.jwt_secret", devSecret)
	v.SetDefault("server.jwt_issuer", "taskboard")
	v.SetDefault("server.jwt_audience", "taskboard-clients")
	v.SetDefault("server.token_ttl", 24*time.Hour)
	v.SetDefault("server.draft_ttl", 10*time.Minute)
	v.SetDefault("server.draft_cache_size", 256)
	v.SetDefault("server.shutdown_grace", 10*time.Second)

	v.SetDefault("client.base_url", "http://localhost:8008")
	v.SetDefault("client.token", "")
	v.SetDefault("client.workspace", "")
	v.SetDefault("client.project", "")
	v.SetDefault("client.timeout", 15*time.Second)
	v.SetDefault("client.link_concurrency", 4)

	v.SetDefault("log.level", "info")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.exporter", "stdout")
	v.SetDefault("telemetry.endpoint", "")
	v.SetDefault("telemetry.service_name", "taskboard")
	v.SetDefault("telemetry.sample_rate", 1.0)
}

// Load reads path if given, or taskboard.yaml from the working directory and
// $HOME/.config/taskboard when it exists. A missing default file is not an
// error; a missing explicit path is.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(configFileName)
		v.SetConfigType(configFileType)
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/taskboard")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// ValidateServer checks what cmd/server needs. production rejects the
// development JWT secret.
func (c *Config) ValidateServer(production bool) error {
	s := c.Server
	switch {
	case strings.TrimSpace(s.Addr) == "":
		return fmt.Errorf("%w: server.addr is empty", ErrInvalidConfig)
	case strings.TrimSpace(s.DBPath) == "":
		return fmt.Errorf("%w: server.db_path is empty", ErrInvalidConfig)
	case s.JWTSecret == "":
		return fmt.Errorf("%w: server.jwt_secret is empty", ErrInvalidConfig)
	case s.TokenTTL <= 0:
		return fmt.Errorf("%w: server.token_ttl must be positive", ErrInvalidConfig)
	case s.DraftCacheSize < 0:
		return fmt.Errorf("%w: server.draft_cache_size is negative", ErrInvalidConfig)
	case production && s.JWTSecret == devSecret:
		return ErrDevSecret
	}
	return c.validateTelemetry()
}

// ValidateClient checks what boardctl needs before any request goes out.
func (c *Config) ValidateClient() error {
	cl := c.Client
	switch {
	case !strings.HasPrefix(cl.BaseURL, "http://") && !strings.HasPrefix(cl.BaseURL, "https://"):
		return fmt.Errorf("%w: client.base_url must be an http(s) URL", ErrInvalidConfig)
	case cl.Timeout <= 0:
		return fmt.Errorf("%w: client.timeout must be positive", ErrInvalidConfig)
	case cl.LinkConcurrency < 1:
		return fmt.Errorf("%w: client.link_concurrency must be at least 1", ErrInvalidConfig)
	}
	return c.validateTelemetry()
}

func (c *Config) validateTelemetry() error {
	t := c.Telemetry
	if !t.Enabled {
		return nil
	}
	switch t.Exporter {
	case "stdout", "none", "otlp-http":
	default:
		return fmt.Errorf("%w: unknown telemetry.exporter %q", ErrInvalidConfig, t.Exporter)
	}
	if t.SampleRate < 0 || t.SampleRate > 1 {
		return fmt.Errorf("%w: telemetry.sample_rate must be within [0,1]", ErrInvalidConfig)
	}
	return nil
}
