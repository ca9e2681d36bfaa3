package config

import (
	"errors"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if ENFMESH_CONFIG is set
//  3. env (prefix ENFMESH_)
func Load() (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv("ENFMESH_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, err
		}
	}

	// Environment variables: ENFMESH_LISTEN_ADDR, ENFMESH_MIN_PEERS, ...
	// Underscores are preserved to match the koanf tags on the struct.
	envProvider := env.Provider("ENFMESH_", ".", func(s string) string {
		s = strings.ToLower(s)
		s = strings.TrimPrefix(s, "enfmesh_")
		return s
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, err
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, err
	}

	if cfg.ListenAddr == "" {
		return nil, errors.New("listen_addr must not be empty")
	}
	if cfg.MinPeers < 1 {
		return nil, errors.New("min_peers must be at least 1")
	}
	if cfg.OutlierThreshold <= 0 {
		return nil, errors.New("outlier_threshold must be positive")
	}
	return &cfg, nil
}
