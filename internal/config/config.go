// Package config loads the client configuration from a YAML file,
// KNOWIT_-prefixed environment variables and command-line flags, in
// that order of precedence.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// Config holds everything the client needs to talk to the backend and
// keep its local cache.
type Config struct {
	ServerURL            string `koanf:"server_url" validate:"required,url"`
	RefreshPath          string `koanf:"refresh_path" validate:"required,startswith=/"`
	TimeoutSeconds       int    `koanf:"timeout_seconds" validate:"min=1"`
	UploadTimeoutSeconds int    `koanf:"upload_timeout_seconds" validate:"min=1"`
	DBPath               string `koanf:"db_path" validate:"required"`
	ReposDir             string `koanf:"repos_dir" validate:"required"`
}

// Default returns the baseline configuration the providers layer over.
func Default() Config {
	return Config{
		RefreshPath:          "/auth/refresh",
		TimeoutSeconds:       15,
		UploadTimeoutSeconds: 60,
		DBPath:               "knowit.db",
		ReposDir:             "repos",
	}
}

// Load builds the configuration. path may be empty (no config file);
// flags may be nil (no flag overrides).
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("KNOWIT_", ".", func(key string) string {
		return strings.ToLower(strings.TrimPrefix(key, "KNOWIT_"))
	}), nil); err != nil {
		return Config{}, fmt.Errorf("loading environment: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return Config{}, fmt.Errorf("loading flags: %w", err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Timeout is the default per-request deadline.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// UploadTimeout is the deadline for multipart uploads.
func (c Config) UploadTimeout() time.Duration {
	return time.Duration(c.UploadTimeoutSeconds) * time.Second
}
