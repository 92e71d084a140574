// Package config loads casedash configuration.
//
// Sources, highest priority first:
//  1. explicit path (--config);
//  2. CONFIG_PATH;
//  3. ./casedash.yaml;
//  4. environment only.
//
// Environment variables always overlay values read from a file.
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// DefaultFile is looked up in the working directory when no path is given.
const DefaultFile = "casedash.yaml"

// Session backends.
const (
	BackendFile     = "file"
	BackendKeychain = "keychain"
	BackendEnv      = "env"
	BackendMemory   = "memory"
)

var ErrMissingBaseURL = errors.New("api base url is required (CASEDASH_API_BASE_URL)")

type Config struct {
	Env      string        `yaml:"env" env:"ENV" env-default:"development"`
	LogLevel string        `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	API      APIConfig     `yaml:"api"`
	Session  SessionConfig `yaml:"session"`
	Server   ServerConfig  `yaml:"server"`
}

// APIConfig describes the backend REST API and refresh policy.
type APIConfig struct {
	BaseURL        string        `yaml:"base_url" env:"CASEDASH_API_BASE_URL"`
	Timeout        time.Duration `yaml:"timeout" env:"CASEDASH_API_TIMEOUT" env-default:"30s"`
	RefreshTimeout time.Duration `yaml:"refresh_timeout" env:"CASEDASH_REFRESH_TIMEOUT" env-default:"15s"`
	ExpiryBuffer   time.Duration `yaml:"expiry_buffer" env:"CASEDASH_EXPIRY_BUFFER" env-default:"2m"`
	CheckInterval  time.Duration `yaml:"check_interval" env:"CASEDASH_CHECK_INTERVAL" env-default:"1m"`
}

// SessionConfig selects where the credential pair is persisted.
type SessionConfig struct {
	Backend string `yaml:"backend" env:"CASEDASH_SESSION_BACKEND" env-default:"file"`
	Dir     string `yaml:"dir" env:"CASEDASH_SESSION_DIR"`
	Secret  string `yaml:"secret" env:"CASEDASH_SESSION_SECRET"`
}

// ServerConfig is the local session server.
type ServerConfig struct {
	Host        string `yaml:"host" env:"HOST" env-default:"127.0.0.1"`
	Port        string `yaml:"port" env:"PORT" env-default:"9879"`
	AdminAPIKey string `yaml:"admin_api_key" env:"ADMIN_API_KEY"`
}

func (s ServerConfig) Addr() string { return net.JoinHostPort(s.Host, s.Port) }

// Validate checks the fields that have no usable default.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.API.BaseURL) == "" {
		return ErrMissingBaseURL
	}
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid api base url %q", c.API.BaseURL)
	}
	switch c.Session.Backend {
	case BackendFile, BackendKeychain, BackendEnv, BackendMemory:
	default:
		return fmt.Errorf("unknown session backend %q", c.Session.Backend)
	}
	if c.API.RefreshTimeout <= 0 {
		return fmt.Errorf("refresh timeout must be positive, got %s", c.API.RefreshTimeout)
	}
	return nil
}

// MustLoad panics when the configuration cannot be loaded.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}
	return cfg
}

func Load(path string) (*Config, error) {
	var cfg Config

	readFile := func(p string) (*Config, error) {
		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("config file %q stat failed: %w", p, err)
		}
		if err := cleanenv.ReadConfig(p, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return &cfg, nil
	}

	if path != "" {
		return readFile(path)
	}
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		return readFile(envPath)
	}
	if _, err := os.Stat(DefaultFile); err == nil {
		return readFile(DefaultFile)
	}

	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
