// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package config defines the holoauth configuration and how it is loaded.
package config

import (
	"errors"
	"net/mail"
	"net/url"
	"time"

	"github.com/samber/oops"

	"github.com/holomush/holoauth/internal/auth"
	holomail "github.com/holomush/holoauth/internal/mail"
	"github.com/holomush/holoauth/internal/store"
)

// Mail transports.
const (
	TransportSMTP = "smtp"
	TransportLog  = "log"
)

// Config is the complete runtime configuration. It is built once by Load
// and passed by value afterwards.
type Config struct {
	Database DatabaseConfig `koanf:"database" json:"database" yaml:"database"`
	Auth     AuthConfig     `koanf:"auth" json:"auth" yaml:"auth"`
	Reset    ResetConfig    `koanf:"reset" json:"reset" yaml:"reset"`
	Mail     MailConfig     `koanf:"mail" json:"mail" yaml:"mail"`
	Log      LogConfig      `koanf:"log" json:"log" yaml:"log"`
	Metrics  MetricsConfig  `koanf:"metrics" json:"metrics" yaml:"metrics"`
	Janitor  JanitorConfig  `koanf:"janitor" json:"janitor" yaml:"janitor"`
}

// DatabaseConfig configures the PostgreSQL pool.
type DatabaseConfig struct {
	URL         string `koanf:"url" json:"url" yaml:"url" env:"DATABASE_URL" jsonschema:"description=PostgreSQL connection URL"`
	MaxConns    int32  `koanf:"max_conns" json:"max_conns" yaml:"max_conns" env:"DATABASE_MAX_CONNS" jsonschema:"minimum=1"`
	AutoMigrate bool   `koanf:"auto_migrate" json:"auto_migrate" yaml:"auto_migrate" env:"DATABASE_AUTO_MIGRATE" jsonschema:"description=Apply pending migrations on serve"`
}

// AuthConfig configures credential hashing and token issuance.
type AuthConfig struct {
	JWTSecret       string            `koanf:"jwt_secret" json:"jwt_secret" yaml:"jwt_secret" env:"JWT_SECRET" jsonschema:"minLength=32"`
	Issuer          string            `koanf:"issuer" json:"issuer" yaml:"issuer" env:"JWT_ISSUER"`
	AccessTokenTTL  time.Duration     `koanf:"access_token_ttl" json:"access_token_ttl" yaml:"access_token_ttl" env:"ACCESS_TOKEN_TTL"`
	RefreshTokenTTL time.Duration     `koanf:"refresh_token_ttl" json:"refresh_token_ttl" yaml:"refresh_token_ttl" env:"REFRESH_TOKEN_TTL"`
	Argon2          auth.Argon2Params `koanf:"argon2" json:"argon2" yaml:"argon2"`
}

// ResetConfig configures the password reset workflow.
type ResetConfig struct {
	URLBase  string        `koanf:"url_base" json:"url_base" yaml:"url_base" env:"RESET_URL_BASE" jsonschema:"description=Base URL of the password reset page"`
	TokenTTL time.Duration `koanf:"token_ttl" json:"token_ttl" yaml:"token_ttl" env:"RESET_TOKEN_TTL"`
	Subject  string        `koanf:"subject" json:"subject" yaml:"subject" env:"RESET_SUBJECT"`
}

// MailConfig configures outbound mail.
type MailConfig struct {
	Transport string        `koanf:"transport" json:"transport" yaml:"transport" env:"MAIL_TRANSPORT" jsonschema:"enum=smtp,enum=log"`
	Timeout   time.Duration `koanf:"timeout" json:"timeout" yaml:"timeout" env:"MAIL_TIMEOUT"`
	FromEmail string        `koanf:"from_email" json:"from_email" yaml:"from_email" env:"SMTP_FROM"`
	FromName  string        `koanf:"from_name" json:"from_name" yaml:"from_name" env:"SMTP_FROM_NAME"`
	SMTP      SMTPConfig    `koanf:"smtp" json:"smtp" yaml:"smtp"`
}

// SMTPConfig configures the SMTP relay.
type SMTPConfig struct {
	Host     string `koanf:"host" json:"host" yaml:"host" env:"SMTP_HOST"`
	Port     int    `koanf:"port" json:"port" yaml:"port" env:"SMTP_PORT" jsonschema:"minimum=1,maximum=65535"`
	Username string `koanf:"username" json:"username" yaml:"username" env:"SMTP_USERNAME"`
	Password string `koanf:"password" json:"password" yaml:"password" env:"SMTP_PASSWORD"`
	TLS      string `koanf:"tls" json:"tls" yaml:"tls" env:"SMTP_TLS" jsonschema:"enum=starttls,enum=implicit,enum=none"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Format string `koanf:"format" json:"format" yaml:"format" env:"LOG_FORMAT" jsonschema:"enum=json,enum=text"`
	Level  string `koanf:"level" json:"level" yaml:"level" env:"LOG_LEVEL" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
}

// MetricsConfig configures the observability HTTP server.
type MetricsConfig struct {
	Addr string `koanf:"addr" json:"addr" yaml:"addr" env:"METRICS_ADDR" jsonschema:"description=Listen address for /metrics and health probes; empty disables"`
}

// JanitorConfig configures the expired-record sweep.
type JanitorConfig struct {
	Interval time.Duration `koanf:"interval" json:"interval" yaml:"interval" env:"JANITOR_INTERVAL" jsonschema:"description=Sweep interval; 0 disables the background janitor"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Database: DatabaseConfig{MaxConns: store.DefaultMaxConns},
		Auth: AuthConfig{
			Issuer:          "holoauth",
			AccessTokenTTL:  auth.DefaultAccessTokenTTL,
			RefreshTokenTTL: auth.DefaultRefreshTokenTTL,
			Argon2:          auth.DefaultArgon2Params(),
		},
		Reset: ResetConfig{
			TokenTTL: auth.DefaultResetTokenTTL,
			Subject:  auth.DefaultResetSubject,
		},
		Mail: MailConfig{
			Transport: TransportSMTP,
			Timeout:   auth.DefaultMailTimeout,
			FromName:  "holoauth",
			SMTP:      SMTPConfig{Port: 587, TLS: string(holomail.TLSStartTLS)},
		},
		Log:     LogConfig{Format: "json", Level: "info"},
		Metrics: MetricsConfig{Addr: "127.0.0.1:9100"},
		Janitor: JanitorConfig{Interval: time.Hour},
	}
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	fail := func(field, format string, args ...any) {
		errs = append(errs, oops.With("field", field).Errorf(format, args...))
	}

	if c.Database.URL == "" {
		fail("database.url", "database.url is required")
	} else if u, err := url.Parse(c.Database.URL); err != nil || (u.Scheme != "postgres" && u.Scheme != "postgresql") {
		fail("database.url", "database.url must be a postgres:// URL")
	}
	if c.Database.MaxConns < 1 {
		fail("database.max_conns", "database.max_conns must be at least 1")
	}

	if len(c.Auth.JWTSecret) < auth.MinAccessTokenSecretLen {
		fail("auth.jwt_secret", "auth.jwt_secret must be at least %d characters", auth.MinAccessTokenSecretLen)
	}
	if c.Auth.AccessTokenTTL <= 0 {
		fail("auth.access_token_ttl", "auth.access_token_ttl must be positive")
	}
	if c.Auth.RefreshTokenTTL <= 0 {
		fail("auth.refresh_token_ttl", "auth.refresh_token_ttl must be positive")
	}
	if p := c.Auth.Argon2; p.Time < 1 || p.Threads < 1 || p.KeyLen < 16 || p.MemoryKiB < 8*uint32(p.Threads) {
		fail("auth.argon2", "auth.argon2 needs time >= 1, threads >= 1, key_len >= 16 and memory_kib >= 8*threads")
	}

	if u, err := url.Parse(c.Reset.URLBase); c.Reset.URLBase == "" || err != nil ||
		(u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		fail("reset.url_base", "reset.url_base must be an absolute http(s) URL")
	}
	if c.Reset.TokenTTL <= 0 {
		fail("reset.token_ttl", "reset.token_ttl must be positive")
	}

	if c.Mail.Timeout <= 0 {
		fail("mail.timeout", "mail.timeout must be positive")
	}
	switch c.Mail.Transport {
	case TransportLog:
	case TransportSMTP:
		if c.Mail.SMTP.Host == "" {
			fail("mail.smtp.host", "mail.smtp.host is required for the smtp transport")
		}
		if c.Mail.SMTP.Port < 1 || c.Mail.SMTP.Port > 65535 {
			fail("mail.smtp.port", "mail.smtp.port must be between 1 and 65535")
		}
		if _, err := mail.ParseAddress(c.Mail.FromEmail); err != nil {
			fail("mail.from_email", "mail.from_email must be a valid address")
		}
		if !holomail.TLSMode(c.Mail.SMTP.TLS).Valid() {
			fail("mail.smtp.tls", "mail.smtp.tls must be starttls, implicit or none")
		}
	default:
		fail("mail.transport", "mail.transport must be smtp or log, got %q", c.Mail.Transport)
	}

	if c.Log.Format != "json" && c.Log.Format != "text" {
		fail("log.format", "log.format must be 'json' or 'text', got %q", c.Log.Format)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		fail("log.level", "log.level must be debug, info, warn or error, got %q", c.Log.Level)
	}

	if c.Janitor.Interval < 0 {
		fail("janitor.interval", "janitor.interval cannot be negative")
	}

	if len(errs) > 0 {
		return oops.Code("CONFIG_INVALID").Wrap(errors.Join(errs...))
	}
	return nil
}

const redacted = "[REDACTED]"

// Redacted returns a copy safe to print: secrets are masked and the
// database password is removed from the URL.
func (c Config) Redacted() Config {
	if c.Auth.JWTSecret != "" {
		c.Auth.JWTSecret = redacted
	}
	if c.Mail.SMTP.Password != "" {
		c.Mail.SMTP.Password = redacted
	}
	if u, err := url.Parse(c.Database.URL); err == nil {
		c.Database.URL = u.Redacted()
	} else if c.Database.URL != "" {
		c.Database.URL = redacted
	}
	return c
}
