// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package cliparse

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// Database types derived from the connection URL.
const (
	DatabaseSQLite   = "sqlite"
	DatabasePostgres = "postgres"
)

// ConfigPathEnvVar overrides the YAML config file location.
const ConfigPathEnvVar = "CONFIG_PATH"

// DefaultConfigPaths are searched in order when CONFIG_PATH is unset.
var DefaultConfigPaths = []string{
	"tracker.yaml",
	"tracker.yml",
	"/etc/tracker/tracker.yaml",
}

type Config struct {
	Env      string         `koanf:"env" yaml:"env"`
	Server   ServerConfig   `koanf:"server" yaml:"server"`
	Database DatabaseConfig `koanf:"database" yaml:"database"`
	Auth     AuthConfig     `koanf:"auth" yaml:"auth"`
	Mail     MailConfig     `koanf:"mail" yaml:"mail"`
	Security SecurityConfig `koanf:"security" yaml:"security"`
	Cache    CacheConfig    `koanf:"cache" yaml:"cache"`
	Logging  LoggingConfig  `koanf:"logging" yaml:"logging"`
	Admin    AdminConfig    `koanf:"admin" yaml:"admin"`
}

type ServerConfig struct {
	Port            int           `koanf:"port" yaml:"port"`
	FrontendURL     string        `koanf:"frontend_url" yaml:"frontend_url"`
	ContactEmail    string        `koanf:"contact_email" yaml:"contact_email"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" yaml:"shutdown_timeout"`
}

type DatabaseConfig struct {
	URL  string `koanf:"url" yaml:"url"`
	Type string `koanf:"type" yaml:"type"`
}

type AuthConfig struct {
	JWTSecret       string        `koanf:"jwt_secret" yaml:"jwt_secret"`
	TokenTTL        time.Duration `koanf:"token_ttl" yaml:"token_ttl"`
	BcryptCost      int           `koanf:"bcrypt_cost" yaml:"bcrypt_cost"`
	VerificationTTL time.Duration `koanf:"verification_ttl" yaml:"verification_ttl"`
	ResetTTL        time.Duration `koanf:"reset_ttl" yaml:"reset_ttl"`
	IngestWindow    time.Duration `koanf:"ingest_window" yaml:"ingest_window"`
}

type MailConfig struct {
	Server        string        `koanf:"server" yaml:"server"`
	Port          int           `koanf:"port" yaml:"port"`
	UseTLS        bool          `koanf:"use_tls" yaml:"use_tls"`
	UseSSL        bool          `koanf:"use_ssl" yaml:"use_ssl"`
	Username      string        `koanf:"username" yaml:"username"`
	Password      string        `koanf:"password" yaml:"password"`
	DefaultSender string        `koanf:"default_sender" yaml:"default_sender"`
	Timeout       time.Duration `koanf:"timeout" yaml:"timeout"`
	PerMinute     int           `koanf:"per_minute" yaml:"per_minute"`
}

type SecurityConfig struct {
	CORSOrigins      []string `koanf:"cors_origins" yaml:"cors_origins"`
	ForceHTTPS       bool     `koanf:"force_https" yaml:"force_https"`
	MaxBodyBytes     int64    `koanf:"max_body_bytes" yaml:"max_body_bytes"`
	RateLimitDefault string   `koanf:"rate_limit_default" yaml:"rate_limit_default"`
	RateLimitAuth    string   `koanf:"rate_limit_auth" yaml:"rate_limit_auth"`
}

type CacheConfig struct {
	StatsTTL time.Duration `koanf:"stats_ttl" yaml:"stats_ttl"`
}

type LoggingConfig struct {
	Level  string `koanf:"level" yaml:"level"`
	Format string `koanf:"format" yaml:"format"`
	Caller bool   `koanf:"caller" yaml:"caller"`
}

type AdminConfig struct {
	Email    string `koanf:"email" yaml:"email"`
	Password string `koanf:"password" yaml:"password"`
}

// Defaults returns the built-in configuration layer.
func Defaults() Config {
	return Config{
		Env: "production",
		Server: ServerConfig{
			Port:            5000,
			FrontendURL:     "http://localhost:5173",
			ContactEmail:    "info@beaconhilltracker.org",
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			URL: "sqlite:///compliance_tracker.db",
		},
		Auth: AuthConfig{
			TokenTTL:        24 * time.Hour,
			BcryptCost:      12,
			VerificationTTL: 24 * time.Hour,
			ResetTTL:        time.Hour,
			IngestWindow:    5 * time.Minute,
		},
		Mail: MailConfig{
			Port:          587,
			UseTLS:        true,
			DefaultSender: "noreply@beaconhilltracker.org",
			Timeout:       10 * time.Second,
			PerMinute:     30,
		},
		Security: SecurityConfig{
			CORSOrigins:      []string{},
			MaxBodyBytes:     16 << 20,
			RateLimitDefault: "100 per hour",
			RateLimitAuth:    "5 per minute",
		},
		Cache: CacheConfig{
			StatsTTL: 5 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Admin: AdminConfig{
			Email: "admin@example.com",
		},
	}
}

// Overrides are the command-line settings. Zero values mean unset.
type Overrides struct {
	ConfigPath   string
	Port         int
	DatabaseURL  string
	DatabaseType string
	JWTSecret    string
	LogLevel     string
}

// Load merges defaults, the optional YAML file, .env, the environment and
// finally o, in increasing precedence. The result is not validated.
func Load(o Overrides) (Config, error) {
	// .env never overrides variables already present in the environment
	_ = godotenv.Load()

	configPath := o.ConfigPath
	if configPath == "" {
		configPath = findConfigFile()
	}

	k, err := load(configPath)
	if err != nil {
		return Config{}, err
	}

	overrides := map[string]any{}
	if o.Port != 0 {
		overrides["server.port"] = o.Port
	}
	if o.DatabaseURL != "" {
		overrides["database.url"] = o.DatabaseURL
	}
	if o.DatabaseType != "" {
		overrides["database.type"] = o.DatabaseType
	}
	if o.JWTSecret != "" {
		overrides["auth.jwt_secret"] = o.JWTSecret
	}
	if o.LogLevel != "" {
		overrides["logging.level"] = o.LogLevel
	}
	for path, v := range overrides {
		if err := k.Set(path, v); err != nil {
			return Config{}, fmt.Errorf("failed to apply flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if cfg.Database.Type == "" {
		cfg.Database.Type = DatabaseType(cfg.Database.URL)
	}
	return cfg, nil
}

// load builds the koanf instance for every layer below command-line flags.
func load(configPath string) (*koanf.Koanf, error) {
	k := koanf.New(".")

	defaults := Defaults()
	if err := k.Load(structs.Provider(&defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, err
	}

	return k, nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// envMappings maps the deployment's environment variable names to config paths.
var envMappings = map[string]string{
	"app_env":   "env",
	"flask_env": "env",

	"port":             "server.port",
	"frontend_url":     "server.frontend_url",
	"contact_email":    "server.contact_email",
	"shutdown_timeout": "server.shutdown_timeout",

	"database_url":  "database.url",
	"database_type": "database.type",

	"jwt_secret_key":   "auth.jwt_secret",
	"jwt_token_ttl":    "auth.token_ttl",
	"bcrypt_cost":      "auth.bcrypt_cost",
	"ingest_max_skew":  "auth.ingest_window",
	"verification_ttl": "auth.verification_ttl",
	"reset_token_ttl":  "auth.reset_ttl",

	"mail_server":         "mail.server",
	"mail_port":           "mail.port",
	"mail_use_tls":        "mail.use_tls",
	"mail_use_ssl":        "mail.use_ssl",
	"mail_username":       "mail.username",
	"mail_password":       "mail.password",
	"mail_default_sender": "mail.default_sender",
	"mail_timeout":        "mail.timeout",
	"mail_per_minute":     "mail.per_minute",

	"cors_origins":       "security.cors_origins",
	"force_https":        "security.force_https",
	"max_content_length": "security.max_body_bytes",
	"ratelimit_default":  "security.rate_limit_default",
	"ratelimit_auth":     "security.rate_limit_auth",

	"stats_cache_ttl": "cache.stats_ttl",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",

	"admin_email":    "admin.email",
	"admin_password": "admin.password",
}

func envTransformFunc(key string) string {
	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}
	// Unmapped variables are ignored
	return ""
}

var sliceConfigPaths = []string{
	"security.cors_origins",
}

// processSliceFields splits comma-separated env values into slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		s, ok := k.Get(path).(string)
		if !ok {
			continue
		}
		parts := SplitCSV(s)
		if err := k.Set(path, parts); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// SplitCSV splits a comma-separated list, trimming blanks.
func SplitCSV(s string) []string {
	out := []string{}
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// DatabaseType infers the SQL dialect from a connection URL.
func DatabaseType(url string) string {
	if strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://") {
		return DatabasePostgres
	}
	return DatabaseSQLite
}

// IsDevelopment reports whether the server runs with development defaults.
func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

// Validate rejects configurations the server cannot start with.
func (c Config) Validate() error {
	var errs []error

	if c.Database.URL == "" {
		errs = append(errs, errors.New("database URL required (use -d or DATABASE_URL env)"))
	}
	if c.Database.Type != DatabaseSQLite && c.Database.Type != DatabasePostgres {
		errs = append(errs, fmt.Errorf("unsupported database type %q", c.Database.Type))
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid port %d", c.Server.Port))
	}
	if !c.IsDevelopment() && len(c.Auth.JWTSecret) < 16 {
		errs = append(errs, errors.New("JWT_SECRET_KEY required (at least 16 characters)"))
	}
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown log level %q", c.Logging.Level))
	}
	if _, err := ParseRate(c.Security.RateLimitDefault); err != nil {
		errs = append(errs, fmt.Errorf("RATELIMIT_DEFAULT: %w", err))
	}
	if _, err := ParseRate(c.Security.RateLimitAuth); err != nil {
		errs = append(errs, fmt.Errorf("RATELIMIT_AUTH: %w", err))
	}

	return errors.Join(errs...)
}

// Redacted returns a copy with secrets masked, for display.
func (c Config) Redacted() Config {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "********"
	}
	c.Auth.JWTSecret = mask(c.Auth.JWTSecret)
	c.Mail.Password = mask(c.Mail.Password)
	c.Admin.Password = mask(c.Admin.Password)
	c.Database.URL = RedactURL(c.Database.URL)
	c.Security.CORSOrigins = append([]string(nil), c.Security.CORSOrigins...)
	return c
}

// RedactURL hides the password part of a connection URL.
func RedactURL(u string) string {
	scheme := strings.Index(u, "://")
	at := strings.LastIndex(u, "@")
	if scheme < 0 || at < scheme {
		return u
	}
	creds := u[scheme+3 : at]
	if colon := strings.Index(creds, ":"); colon >= 0 {
		return u[:scheme+3] + creds[:colon] + ":****" + u[at:]
	}
	return u
}
