// Package config reads process configuration from the environment. Secrets
// are not configured here; they live in SSM under ParamPrefix.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type Runtime string

const (
	RuntimeLambda Runtime = "lambda"
	RuntimeHTTP   Runtime = "http"
)

// SSM parameter names, relative to ParamPrefix.
const (
	ParamTelegramToken = "/telegram-token"
	ParamWebhookSecret = "/webhook-secret"
	ParamAdminToken    = "/admin-api-token"
	ParamPoizonAPIKey  = "/poizon-api-key"
)

type Config struct {
	Runtime    Runtime `env:"RUNTIME" envDefault:"http"`
	ListenAddr string  `env:"LISTEN_ADDR" envDefault:":8080"`
	LogLevel   string  `env:"LOG_LEVEL" envDefault:"info"`

	StateTable  string `env:"STATE_TABLE,notEmpty"`
	ParamPrefix string `env:"PARAM_PREFIX,notEmpty"`

	PoizonExtractURL string        `env:"POIZON_EXTRACT_SPU_URL,notEmpty"`
	PoizonProductURL string        `env:"POIZON_PRODUCT_DATA_URL,notEmpty"`
	LookupTimeout    time.Duration `env:"LOOKUP_TIMEOUT" envDefault:"30s"`

	BroadcastDelay  time.Duration `env:"BROADCAST_DELAY" envDefault:"100ms"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"20s"`
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("config: parse env: %w", err)
	}
	cfg.Runtime = Runtime(strings.ToLower(strings.TrimSpace(string(cfg.Runtime))))
	cfg.ParamPrefix = strings.TrimSuffix(strings.TrimSpace(cfg.ParamPrefix), "/")
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch {
	case c.Runtime != RuntimeLambda && c.Runtime != RuntimeHTTP:
		return fmt.Errorf("config: unknown runtime %q", c.Runtime)
	case c.ParamPrefix == "":
		return errors.New("config: PARAM_PREFIX must not be blank")
	case c.LookupTimeout <= 0:
		return errors.New("config: LOOKUP_TIMEOUT must be positive")
	case c.BroadcastDelay < 0:
		return errors.New("config: BROADCAST_DELAY must not be negative")
	}
	return nil
}

// Param returns the full SSM name for a parameter under ParamPrefix.
func (c Config) Param(name string) string {
	return c.ParamPrefix + name
}

// Level maps LOG_LEVEL to a slog level. Unknown values mean info.
func (c Config) Level() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(c.LogLevel))); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
