package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds server configuration, loaded from an optional YAML file
// with environment variable overrides.
type Config struct {
	Addr      string `yaml:"addr"`
	PublicDir string `yaml:"public_dir"`
	DecksDir  string `yaml:"decks_dir"`
	StateFile string `yaml:"state_file"`

	SessionTimeoutMinutes int `yaml:"session_timeout_minutes"`

	Host struct {
		Username     string `yaml:"username"`
		PasswordHash string `yaml:"password_hash"` // bcrypt
	} `yaml:"host"`

	// Optional integrations; empty disables them.
	NATSURL     string `yaml:"nats_url"`
	DatabaseURL string `yaml:"database_url"`
}

// SessionTimeout returns the configured host session lifetime.
func (c *Config) SessionTimeout() time.Duration {
	return time.Duration(c.SessionTimeoutMinutes) * time.Minute
}

// Load reads the config file at path (skipped if it does not exist) and
// applies environment overrides on top.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Addr:                  ":3000",
		PublicDir:             "public",
		DecksDir:              "decks",
		StateFile:             "state.json",
		SessionTimeoutMinutes: 120,
	}
	cfg.Host.Username = "host"

	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if port := os.Getenv("PORT"); port != "" {
		cfg.Addr = ":" + port
	}
	cfg.PublicDir = getEnv("PUBLIC_DIR", cfg.PublicDir)
	cfg.DecksDir = getEnv("DECKS_DIR", cfg.DecksDir)
	cfg.StateFile = getEnv("STATE_FILE", cfg.StateFile)
	cfg.SessionTimeoutMinutes = getEnvAsInt("SESSION_TIMEOUT_MINUTES", cfg.SessionTimeoutMinutes)
	cfg.Host.Username = getEnv("HOST_USERNAME", cfg.Host.Username)
	cfg.Host.PasswordHash = getEnv("HOST_PASSWORD_HASH", cfg.Host.PasswordHash)
	cfg.NATSURL = getEnv("NATS_URL", cfg.NATSURL)
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
