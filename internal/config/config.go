// Package config loads server settings from a TOML file with one section per
// environment. Values in the process environment (optionally seeded from a
// .env file) override the file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

type Config struct {
	Environment string `toml:"-"`
	Port        int    `toml:"port"`
	DBPath      string `toml:"db_path"`
	// logging
	LogLevel    string `toml:"log_level"`
	LogsPath    string `toml:"logs_path"`
	LogToStdout bool   `toml:"log_to_stdout"`
	LogJSON     bool   `toml:"log_json"`
	// sessions
	SessionLifetime duration `toml:"session_lifetime"`
	SecureCookies   bool     `toml:"secure_cookies"`
	// reverse proxies whose X-Forwarded-For headers are trusted
	TrustedProxies []string `toml:"trusted_proxies"`
}

// duration lets TOML files write "720h" instead of nanoseconds.
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

type Toml struct {
	Development *Config
	Production  *Config
}

func (t *Toml) Get(env string) (*Config, error) {
	var cfg *Config
	switch strings.ToLower(env) {
	case "dev", "development":
		cfg = t.Development
		env = "development"
	case "prod", "production":
		cfg = t.Production
		env = "production"
	default:
		return nil, fmt.Errorf("unknown env: %s", env)
	}
	if cfg == nil {
		return nil, fmt.Errorf("no [%s] section in config", env)
	}
	cfg.Environment = env
	return cfg, nil
}

// Default returns the settings used when no config file exists.
func Default(env string) *Config {
	cfg := &Config{
		Environment:     env,
		Port:            8080,
		DBPath:          "fitcoach.db",
		LogLevel:        "debug",
		LogToStdout:     true,
		SessionLifetime: duration{30 * 24 * time.Hour},
	}
	if env == "production" {
		cfg.LogLevel = "info"
		cfg.LogJSON = true
		cfg.SecureCookies = true
	}
	return cfg
}

// Load reads the section for env from the TOML file at path, then applies
// FITCOACH_* environment overrides. A missing file falls back to Default.
func Load(env, path string) (*Config, error) {
	// .env is optional; real environment variables win over it.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	var cfg *Config
	var t Toml
	_, err := toml.DecodeFile(path, &t)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		switch strings.ToLower(env) {
		case "dev", "development":
			cfg = Default("development")
		case "prod", "production":
			cfg = Default("production")
		default:
			return nil, fmt.Errorf("unknown env: %s", env)
		}
	case err != nil:
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	default:
		cfg, err = t.Get(env)
		if err != nil {
			return nil, err
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if cfg.SessionLifetime.Duration <= 0 {
		cfg.SessionLifetime.Duration = 30 * 24 * time.Hour
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("FITCOACH_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port <= 0 || port > 65535 {
			return fmt.Errorf("config: invalid FITCOACH_PORT %q", v)
		}
		cfg.Port = port
	}
	if v := os.Getenv("FITCOACH_DB"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("FITCOACH_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("FITCOACH_LOGS_PATH"); v != "" {
		cfg.LogsPath = v
	}
	if v := os.Getenv("FITCOACH_TRUSTED_PROXIES"); v != "" {
		cfg.TrustedProxies = nil
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				cfg.TrustedProxies = append(cfg.TrustedProxies, p)
			}
		}
	}
	return nil
}

// Addr returns the listen address for the configured port.
func (c *Config) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}
