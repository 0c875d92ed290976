package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix  = "WINKMATCH_"
	envFileKey = envPrefix + "CONFIG"
)

// Load builds a Config by layering, lowest precedence first:
//  1. Default()
//  2. the YAML file named by WINKMATCH_CONFIG, if set
//  3. WINKMATCH_* environment variables, e.g. WINKMATCH_STORE_TIMEOUT=2s
func Load() (Config, error) {
	return LoadFrom(os.Getenv(envFileKey))
}

// LoadFrom is Load with an explicit YAML file path. An empty path skips the
// file layer.
func LoadFrom(path string) (Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("%w: read %s: %w", ErrLoadConfig, path, err)
		}
	}

	// Keys stay flat so WINKMATCH_SWEEP_INTERVAL maps onto sweep_interval.
	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return Config{}, fmt.Errorf("%w: environment: %w", ErrLoadConfig, err)
	}
	k.Delete("config")

	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return Config{}, fmt.Errorf("%w: decode: %w", ErrLoadConfig, err)
	}
	cfg.Store = strings.ToLower(strings.TrimSpace(cfg.Store))

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
