package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/loykin/usagelog/internal/env"
	"github.com/loykin/usagelog/internal/logger"
	tlsconf "github.com/loykin/usagelog/internal/tls"
)

// EnvPrefix prefixes environment overrides, e.g. USAGELOG_CLIENT_SINK.
const EnvPrefix = "USAGELOG"

// Config represents the top-level TOML structure.
type Config struct {
	Client  ClientConfig  `toml:"client" mapstructure:"client"`
	Server  ServerConfig  `toml:"server" mapstructure:"server"`
	Metrics MetricsConfig `toml:"metrics" mapstructure:"metrics"`
	Log     logger.Config `toml:"log" mapstructure:"log"`
}

// ClientConfig drives the emitting side: where batches go and how often.
type ClientConfig struct {
	App           string        `toml:"app" mapstructure:"app"`
	Version       string        `toml:"version" mapstructure:"version"`
	Sink          string        `toml:"sink" mapstructure:"sink"`
	FlushSchedule string        `toml:"flush_schedule" mapstructure:"flush_schedule"`
	FlushTimeout  time.Duration `toml:"flush_timeout" mapstructure:"flush_timeout"`
	JWTSecret     string        `toml:"jwt_secret" mapstructure:"jwt_secret"`
	TokenTTL      time.Duration `toml:"token_ttl" mapstructure:"token_ttl"`
}

// ServerConfig drives the collector.
type ServerConfig struct {
	Listen       string `toml:"listen" mapstructure:"listen"`
	BasePath     string `toml:"base_path" mapstructure:"base_path"`
	Sink         string `toml:"sink" mapstructure:"sink"`
	JWTSecret    string `toml:"jwt_secret" mapstructure:"jwt_secret"`
	StrictTypes  bool   `toml:"strict_types" mapstructure:"strict_types"`
	MaxBodyBytes int64  `toml:"max_body_bytes" mapstructure:"max_body_bytes"`

	TLS tlsconf.Config `toml:"tls" mapstructure:"tls"`
}

type MetricsConfig struct {
	Enabled bool   `toml:"enabled" mapstructure:"enabled"`
	Listen  string `toml:"listen" mapstructure:"listen"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("client.app", "usagelog")
	v.SetDefault("client.version", "dev")
	v.SetDefault("client.sink", "http://localhost:8080/api/logs")
	v.SetDefault("client.flush_schedule", "@every 30s")
	v.SetDefault("client.flush_timeout", 30*time.Second)
	v.SetDefault("client.jwt_secret", "")
	v.SetDefault("client.token_ttl", 5*time.Minute)

	v.SetDefault("server.listen", ":8080")
	v.SetDefault("server.base_path", "/api")
	v.SetDefault("server.sink", "sqlite://usagelog.db")
	v.SetDefault("server.jwt_secret", "")
	v.SetDefault("server.strict_types", false)
	v.SetDefault("server.max_body_bytes", 4<<20)
	v.SetDefault("server.tls.enabled", false)
	v.SetDefault("server.tls.dir", "")
	v.SetDefault("server.tls.auto_generate", false)
	v.SetDefault("server.tls.min_version", "1.2")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen", ":9090")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", logger.DefaultMaxSizeMB)
	v.SetDefault("log.max_backups", logger.DefaultMaxBackups)
	v.SetDefault("log.max_age_days", logger.DefaultMaxAgeDays)
	v.SetDefault("log.compress", false)
}

// Load reads the TOML file at path over the defaults, then applies
// USAGELOG_* environment overrides. An empty path loads defaults and
// environment only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.expand(env.New()); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// expand resolves ${VAR} references in DSNs, secrets and paths.
func (c *Config) expand(e *env.Env) error {
	fields := []struct {
		key string
		val *string
	}{
		{"client.sink", &c.Client.Sink},
		{"client.jwt_secret", &c.Client.JWTSecret},
		{"server.sink", &c.Server.Sink},
		{"server.jwt_secret", &c.Server.JWTSecret},
		{"server.tls.cert_file", &c.Server.TLS.CertFile},
		{"server.tls.key_file", &c.Server.TLS.KeyFile},
		{"server.tls.dir", &c.Server.TLS.Dir},
		{"log.file", &c.Log.File},
	}
	var errs []error
	for _, f := range fields {
		for _, name := range e.Missing(*f.val) {
			errs = append(errs, fmt.Errorf("%s references undefined variable ${%s}", f.key, name))
		}
		*f.val = e.Expand(*f.val)
	}
	return errors.Join(errs...)
}

// Validate checks the fields every command relies on.
func (c *Config) Validate() error {
	var errs []error
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Log.Format))
	}
	if strings.TrimSpace(c.Client.Sink) == "" {
		errs = append(errs, errors.New("client.sink is required"))
	}
	if strings.TrimSpace(c.Server.Sink) == "" {
		errs = append(errs, errors.New("server.sink is required"))
	}
	if c.Server.MaxBodyBytes < 0 {
		errs = append(errs, errors.New("server.max_body_bytes must not be negative"))
	}
	if err := c.Server.TLS.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Metrics.Enabled && c.Metrics.Listen == "" {
		errs = append(errs, errors.New("metrics.listen is required when metrics are enabled"))
	}
	return errors.Join(errs...)
}
