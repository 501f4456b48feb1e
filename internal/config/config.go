// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package config loads authd configuration from a YAML file, the
// environment and command-line flags.
package config

import (
	"net/url"
	"strings"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/samber/oops"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"github.com/holomush/authd/internal/auth"
)

// Defaults.
const (
	DefaultServerAddr  = ":8000"
	DefaultMetricsAddr = "127.0.0.1:9100"
	DefaultLogFormat   = "json"
	DefaultLogLevel    = "info"

	// MinSecretLength is the shortest accepted signing secret in bytes.
	MinSecretLength = 32

	redacted = "[REDACTED]"
)

// Duration is a time.Duration written as a Go duration string ("5m", "168h").
type Duration time.Duration

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return oops.Code("CONFIG_INVALID_DURATION").With("value", string(text)).Wrap(err)
	}
	*d = Duration(parsed)
	return nil
}

// JSONSchema describes Duration as a duration string.
func (Duration) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:        "string",
		Pattern:     `^([0-9]+(\.[0-9]+)?(ns|us|µs|ms|s|m|h))+$`,
		Description: "Go duration string, e.g. 5m or 168h",
	}
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the complete authd configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server" json:"server,omitempty" yaml:"server"`
	Metrics  MetricsConfig  `koanf:"metrics" json:"metrics,omitempty" yaml:"metrics"`
	Database DatabaseConfig `koanf:"database" json:"database,omitempty" yaml:"database"`
	JWT      JWTConfig      `koanf:"jwt" json:"jwt,omitempty" yaml:"jwt"`
	Tokens   TokenConfig    `koanf:"tokens" json:"tokens,omitempty" yaml:"tokens"`
	Auth     AuthConfig     `koanf:"auth" json:"auth,omitempty" yaml:"auth"`
	Log      LogConfig      `koanf:"log" json:"log,omitempty" yaml:"log"`
}

// ServerConfig configures the HTTP API listener.
type ServerConfig struct {
	Addr string `koanf:"addr" json:"addr,omitempty" yaml:"addr" jsonschema:"description=HTTP API listen address"`
}

// MetricsConfig configures the observability listener.
type MetricsConfig struct {
	Addr string `koanf:"addr" json:"addr,omitempty" yaml:"addr" jsonschema:"description=metrics and health listen address; empty disables it"`
}

// DatabaseConfig configures the PostgreSQL connection.
type DatabaseConfig struct {
	URL             string `koanf:"url" json:"url,omitempty" yaml:"url" jsonschema:"description=PostgreSQL connection URL"`
	MaxConns        int32  `koanf:"max_conns" json:"max_conns,omitempty" yaml:"max_conns" jsonschema:"minimum=0"`
	ConnectAttempts uint64 `koanf:"connect_attempts" json:"connect_attempts,omitempty" yaml:"connect_attempts" jsonschema:"minimum=1"`
}

// JWTConfig configures token signing.
type JWTConfig struct {
	SecretKey string `koanf:"secret_key" json:"secret_key,omitempty" yaml:"secret_key" jsonschema:"description=HS256 signing secret"`
}

// TokenConfig configures token lifetimes.
type TokenConfig struct {
	AccessTTL  Duration `koanf:"access_ttl" json:"access_ttl,omitempty" yaml:"access_ttl"`
	RefreshTTL Duration `koanf:"refresh_ttl" json:"refresh_ttl,omitempty" yaml:"refresh_ttl"`
}

// AuthConfig configures account rules.
type AuthConfig struct {
	MinUsernameLength int `koanf:"min_username_length" json:"min_username_length,omitempty" yaml:"min_username_length" jsonschema:"minimum=3,maximum=64"`
	BcryptCost        int `koanf:"bcrypt_cost" json:"bcrypt_cost,omitempty" yaml:"bcrypt_cost" jsonschema:"minimum=4,maximum=31"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Format string `koanf:"format" json:"format,omitempty" yaml:"format" jsonschema:"enum=json,enum=text"`
	Level  string `koanf:"level" json:"level,omitempty" yaml:"level" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Server:   ServerConfig{Addr: DefaultServerAddr},
		Metrics:  MetricsConfig{Addr: DefaultMetricsAddr},
		Database: DatabaseConfig{ConnectAttempts: 5},
		Tokens: TokenConfig{
			AccessTTL:  Duration(auth.DefaultAccessTokenTTL),
			RefreshTTL: Duration(auth.DefaultRefreshTokenTTL),
		},
		Auth: AuthConfig{
			MinUsernameLength: auth.MinUsernameLength,
			BcryptCost:        bcrypt.DefaultCost,
		},
		Log: LogConfig{Format: DefaultLogFormat, Level: DefaultLogLevel},
	}
}

// Validate checks everything serve needs, including the signing secret.
func (c *Config) Validate() error {
	if err := c.ValidateCommon(); err != nil {
		return err
	}
	if c.JWT.SecretKey == "" {
		return oops.Code("CONFIG_INVALID").
			With("field", "jwt.secret_key").
			Errorf("jwt secret key is required (set AUTHD_JWT__SECRET_KEY or JWT_SECRET_KEY)")
	}
	if len(c.JWT.SecretKey) < MinSecretLength {
		return oops.Code("CONFIG_INVALID").
			With("field", "jwt.secret_key").
			Errorf("jwt secret key must be at least %d bytes", MinSecretLength)
	}
	return nil
}

// ValidateCommon checks every field except the signing secret, for
// commands that never issue tokens.
func (c *Config) ValidateCommon() error {
	if c.Server.Addr == "" {
		return invalid("server.addr", "server address is required")
	}
	if c.Tokens.AccessTTL <= 0 {
		return invalid("tokens.access_ttl", "access token ttl must be positive")
	}
	if c.Tokens.RefreshTTL <= 0 {
		return invalid("tokens.refresh_ttl", "refresh token ttl must be positive")
	}
	if c.Auth.MinUsernameLength < auth.MinUsernameLength || c.Auth.MinUsernameLength > auth.MaxUsernameLength {
		return invalid("auth.min_username_length",
			"min username length must be between %d and %d", auth.MinUsernameLength, auth.MaxUsernameLength)
	}
	if c.Auth.BcryptCost < bcrypt.MinCost || c.Auth.BcryptCost > bcrypt.MaxCost {
		return invalid("auth.bcrypt_cost", "bcrypt cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}
	if c.Database.MaxConns < 0 {
		return invalid("database.max_conns", "max conns must not be negative")
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return invalid("log.format", "log format must be 'json' or 'text', got %q", c.Log.Format)
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return invalid("log.level", "log level must be debug, info, warn or error, got %q", c.Log.Level)
	}
	return nil
}

// RequireDatabase reports a missing database URL.
func (c *Config) RequireDatabase() error {
	if c.Database.URL == "" {
		return invalid("database.url", "database url is required (set AUTHD_DATABASE__URL or DATABASE_URL)")
	}
	return nil
}

// Redacted returns a copy safe to print.
func (c Config) Redacted() Config {
	if c.JWT.SecretKey != "" {
		c.JWT.SecretKey = redacted
	}
	c.Database.URL = redactURL(c.Database.URL)
	return c
}

// YAML renders the redacted configuration.
func (c Config) YAML() ([]byte, error) {
	out, err := yaml.Marshal(c.Redacted())
	if err != nil {
		return nil, oops.Code("CONFIG_RENDER_FAILED").Wrap(err)
	}
	return out, nil
}

// redactURL hides the password in a connection URL.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	return u.Redacted()
}

func invalid(field, format string, args ...any) error {
	return oops.Code("CONFIG_INVALID").With("field", field).Errorf(format, args...)
}
