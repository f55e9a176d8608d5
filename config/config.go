// Package config reads the host's settings from the environment.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config is every GAMEHOST_ setting
type Config struct {
	Addr          string        `env:"GAMEHOST_ADDR,default=:8000"`
	TokenSecret   string        `env:"GAMEHOST_TOKEN_SECRET"`
	LogLevel      string        `env:"GAMEHOST_LOG_LEVEL,default=info"`
	HookOnTimeout bool          `env:"GAMEHOST_HOOK_ON_TIMEOUT,default=true"`
	MaxMatches    int           `env:"GAMEHOST_MAX_MATCHES,default=256"`
	SweepInterval time.Duration `env:"GAMEHOST_SWEEP_INTERVAL,default=1m"`
	TicketTTL     time.Duration `env:"GAMEHOST_TICKET_TTL,default=12h"`

	// GeneratedSecret is set when no secret was configured and a random one
	// was made up. Tickets then stop working when the host restarts.
	GeneratedSecret bool
}

// Load reads an optional .env file, then the environment
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv decodes the environment without looking for a .env file
func FromEnv() (*Config, error) {
	cfg := &Config{}
	if err := envdecode.Decode(cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode environment: %w", err)
	}

	if _, err := cfg.Level(); err != nil {
		return nil, err
	}
	if cfg.MaxMatches < 1 {
		return nil, fmt.Errorf("GAMEHOST_MAX_MATCHES must be positive, got %d", cfg.MaxMatches)
	}
	if cfg.SweepInterval <= 0 {
		return nil, fmt.Errorf("GAMEHOST_SWEEP_INTERVAL must be positive, got %s", cfg.SweepInterval)
	}

	if cfg.TokenSecret == "" {
		secret, err := randomSecret()
		if err != nil {
			return nil, err
		}
		cfg.TokenSecret = secret
		cfg.GeneratedSecret = true
	}

	return cfg, nil
}

// Level parses LogLevel
func (c *Config) Level() (zapcore.Level, error) {
	lvl, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return lvl, fmt.Errorf("GAMEHOST_LOG_LEVEL: %w", err)
	}
	return lvl, nil
}

// Logger builds the host's production logger at the configured level
func (c *Config) Logger() (*zap.Logger, error) {
	lvl, err := c.Level()
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	return zc.Build()
}

func randomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}
