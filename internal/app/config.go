package app

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/user"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/florianilch/sessionrelay/internal/client"
	"github.com/florianilch/sessionrelay/internal/session"
	"github.com/florianilch/sessionrelay/internal/tokensource"
)

// LogFormat represents the logging output format.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// TokenStorageType represents the different storage types supported for the refresh token.
type TokenStorageType string

const (
	TokenStorageTypeFile    TokenStorageType = "file"
	TokenStorageTypeKeyring TokenStorageType = "keyring"
	TokenStorageTypeDiskv   TokenStorageType = "diskv"
	TokenStorageTypeRedis   TokenStorageType = "redis"
	TokenStorageTypeMemory  TokenStorageType = "memory"
)

// Default configuration values
const (
	DefaultConfigLogFormat          = LogFormatText
	DefaultConfigServerHost         = "127.0.0.1"
	DefaultConfigServerPort         = 4000
	DefaultConfigShutdownTimeout    = 5 * time.Second
	DefaultConfigClientTimeout      = client.DefaultTimeout
	DefaultConfigAuthStorage        = TokenStorageTypeFile
	DefaultConfigAuthKey            = "refresh_token"
	DefaultConfigAuthRefreshPath    = tokensource.DefaultRefreshPath
	DefaultConfigAuthRefreshTimeout = session.DefaultRefreshTimeout
	DefaultConfigAuthLoginRoute     = "/login"
	DefaultConfigAuthRedisAddr      = "localhost:6379"
)

// keyringService names the keyring entry holding the refresh token.
const keyringService = "sessionrelay"

// ServerConfig holds server-specific configuration.
type ServerConfig struct {
	Host string `json:"host" validate:"hostname_rfc1123|ip"`
	Port uint16 `json:"port"` // Port range 0-65535 handled by uint16 type
}

// ShutdownConfig holds shutdown behavior configuration.
type ShutdownConfig struct {
	// Timeout for graceful shutdown.
	Timeout time.Duration `json:"timeout"`
}

// UpstreamConfig holds upstream API configuration.
type UpstreamConfig struct {
	BaseURL string `json:"base_url" validate:"required,url"`
}

// ClientConfig holds settings for requests sent on behalf of the session.
type ClientConfig struct {
	// Timeout per request, including a refresh and one resend.
	Timeout time.Duration `json:"timeout" validate:"gte=0"`
}

// AuthConfig describes where the refresh token lives and how it is exchanged.
type AuthConfig struct {
	// Storage configuration - where the refresh token is persisted
	Storage TokenStorageType `json:"storage" validate:"required,oneof=file keyring diskv redis memory"`

	// Storage-specific settings (used based on Storage type)
	File          string `json:"file,omitempty"`           // For file storage: path to token file
	KeyringUser   string `json:"keyring_user,omitempty"`   // For keyring storage: user identifier
	DiskvDir      string `json:"diskv_dir,omitempty"`      // For diskv storage: base directory
	RedisAddr     string `json:"redis_addr,omitempty"`     // For redis storage: host:port
	RedisDB       int    `json:"redis_db,omitempty"`       // For redis storage: database number
	RedisPassword string `json:"redis_password,omitempty"` // For redis storage: optional AUTH password
	Key           string `json:"key,omitempty"`            // For diskv and redis storage: entry key

	// Refresh call
	RefreshPath    string        `json:"refresh_path" validate:"startswith=/"`
	RefreshTimeout time.Duration `json:"refresh_timeout" validate:"gte=0"`

	// LoginRoute is reported to clients when the session expires.
	LoginRoute string `json:"login_route"`
}

// Config holds the application's configuration.
type Config struct {
	// LogLevel for logging output (defaults to Info if unset).
	LogLevel  slog.Level     `json:"log_level"`
	LogFormat LogFormat      `json:"log_format" validate:"oneof=text json"`
	Server    ServerConfig   `json:"server"`
	Shutdown  ShutdownConfig `json:"shutdown"`
	Upstream  UpstreamConfig `json:"upstream"`
	Client    ClientConfig   `json:"client"`
	Auth      AuthConfig     `json:"auth"`
}

// Default creates a new Config with default values applied.
func Default() (*Config, error) {
	cfg := &Config{}
	if err := cfg.ApplyDefaults(); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}
	return cfg, nil
}

// ApplyDefaults fills unset config fields with sensible defaults.
func (c *Config) ApplyDefaults() error {
	if c.LogFormat == "" {
		c.LogFormat = DefaultConfigLogFormat
	}
	if c.Server.Host == "" {
		c.Server.Host = DefaultConfigServerHost
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultConfigServerPort
	}
	if c.Shutdown.Timeout == 0 {
		c.Shutdown.Timeout = DefaultConfigShutdownTimeout
	}
	if c.Client.Timeout == 0 {
		c.Client.Timeout = DefaultConfigClientTimeout
	}
	if c.Auth.Storage == "" {
		c.Auth.Storage = DefaultConfigAuthStorage
	}
	if c.Auth.Key == "" {
		c.Auth.Key = DefaultConfigAuthKey
	}
	if c.Auth.RefreshPath == "" {
		c.Auth.RefreshPath = DefaultConfigAuthRefreshPath
	}
	if c.Auth.RefreshTimeout == 0 {
		c.Auth.RefreshTimeout = DefaultConfigAuthRefreshTimeout
	}
	if c.Auth.LoginRoute == "" {
		c.Auth.LoginRoute = DefaultConfigAuthLoginRoute
	}

	// Dynamic defaults based on storage type
	switch c.Auth.Storage {
	case TokenStorageTypeFile:
		if c.Auth.File == "" {
			configDir, err := os.UserConfigDir()
			if err != nil {
				return fmt.Errorf("auth.file required (auto-detect failed: %w)", err)
			}
			c.Auth.File = filepath.Join(configDir, "sessionrelay", "refresh_token")
		}
	case TokenStorageTypeKeyring:
		if c.Auth.KeyringUser == "" {
			currentUser, err := user.Current()
			if err != nil {
				return fmt.Errorf("auth.keyring_user required (auto-detect failed: %w)", err)
			}
			c.Auth.KeyringUser = currentUser.Username
		}
	case TokenStorageTypeDiskv:
		if c.Auth.DiskvDir == "" {
			configDir, err := os.UserConfigDir()
			if err != nil {
				return fmt.Errorf("auth.diskv_dir required (auto-detect failed: %w)", err)
			}
			c.Auth.DiskvDir = filepath.Join(configDir, "sessionrelay", "store")
		}
	case TokenStorageTypeRedis:
		if c.Auth.RedisAddr == "" {
			c.Auth.RedisAddr = DefaultConfigAuthRedisAddr
		}
	case TokenStorageTypeMemory:
		// Nothing survives a restart, nothing to configure
	}

	return nil
}

// Validate validates the configuration using struct tags and enum values.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	switch c.Auth.Storage {
	case TokenStorageTypeFile:
		if c.Auth.File == "" {
			return errors.New("file path required for file storage")
		}
	case TokenStorageTypeKeyring:
		if c.Auth.KeyringUser == "" {
			return errors.New("keyring_user required for keyring storage")
		}
	case TokenStorageTypeDiskv:
		if c.Auth.DiskvDir == "" {
			return errors.New("diskv_dir required for diskv storage")
		}
		if c.Auth.Key == "" {
			return errors.New("key required for diskv storage")
		}
	case TokenStorageTypeRedis:
		if c.Auth.RedisAddr == "" {
			return errors.New("redis_addr required for redis storage")
		}
		if c.Auth.Key == "" {
			return errors.New("key required for redis storage")
		}
		if c.Auth.RedisDB < 0 {
			return errors.New("redis_db must not be negative")
		}
	}

	return nil
}
