// Package config loads the proxy's configuration from an optional YAML file
// overlaid with environment variables, following this codebase's usual
// split between a typed Config and the env-facing struct envconfig
// populates.
package config

import (
	"context"
	"os"

	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/nodescope/proxy/internal/bitcoinmsg"
)

// ProxyConfig controls the SOCKS5 listener and the Bitcoin network it
// expects on the data plane.
type ProxyConfig struct {
	Port    uint16             `yaml:"port" envconfig:"PROXY_PORT" default:"6788"`
	Network bitcoinmsg.Network `yaml:"network" envconfig:"PROXY_NETWORK" default:"mainnet"`
}

// Config is the fully resolved configuration used to start the proxy.
type Config struct {
	Proxy        ProxyConfig `yaml:"proxy"`
	DatabasePath string      `yaml:"database_path" envconfig:"DATABASE_PATH" default:"nodescope.db"`
}

// fileOverrides mirrors Config with every leaf made optional, so Load can
// tell "the file set this key" apart from "the file is silent on this key"
// without a zero value being mistaken for an explicit zero.
type fileOverrides struct {
	Proxy *struct {
		Port    *uint16             `yaml:"port"`
		Network *bitcoinmsg.Network `yaml:"network"`
	} `yaml:"proxy"`
	DatabasePath *string `yaml:"database_path"`
}

// Load builds a Config from built-in defaults, environment variables (the
// NODESCOPE_ prefix; envconfig also prefixes nested fields with their
// section's key, so proxy.port is NODESCOPE_PROXY_PROXY_PORT and
// database_path is NODESCOPE_DATABASE_PATH), and, if path is non-empty
// and exists, a YAML file whose keys take precedence over the environment.
// A missing path is not an error: it simply means configuration comes
// entirely from defaults and the environment.
func Load(ctx context.Context, path string) (*Config, error) {
	cfg := &Config{}
	if err := envconfig.Process("NODESCOPE", cfg); err != nil {
		return nil, errors.Wrap(err, "process environment config")
	}

	if path != "" {
		if err := applyFile(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func applyFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrap(err, "read config file")
	}

	var overrides fileOverrides
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return errors.Wrap(err, "parse config file")
	}

	if overrides.Proxy != nil {
		if overrides.Proxy.Port != nil {
			cfg.Proxy.Port = *overrides.Proxy.Port
		}
		if overrides.Proxy.Network != nil {
			cfg.Proxy.Network = *overrides.Proxy.Network
		}
	}
	if overrides.DatabasePath != nil {
		cfg.DatabasePath = *overrides.DatabasePath
	}

	return nil
}

func validate(cfg *Config) error {
	if _, err := bitcoinmsg.MagicFor(cfg.Proxy.Network); err != nil {
		return errors.Wrap(err, "proxy.network")
	}
	if cfg.Proxy.Port == 0 {
		return errors.New("proxy.port must not be 0")
	}
	return nil
}
