package config

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	yaml "gopkg.in/yaml.v3"
)

//go:embed config.yml
var defaultFiles embed.FS

// Env holds process-level settings sourced from the environment. Secrets never
// live in the yaml tree so they cannot be echoed back through update-config.
type Env struct {
	APIKey     string `env:"HYPIXEL_API_KEY,required"`
	Listen     string `env:"HYRELAY_LISTEN" envDefault:":25566"`
	TargetURL  string `env:"HYRELAY_TARGET" envDefault:"ws://127.0.0.1:25577/session"`
	PingURL    string `env:"HYRELAY_PING_URL" envDefault:"http://127.0.0.1:25577/ping"`
	ConfigFile string `env:"HYRELAY_CONFIG"`
	RedisURL   string `env:"HYRELAY_REDIS_URL"`
}

// LoadEnv parses the process environment.
func LoadEnv() (*Env, error) {
	var e Env
	if err := env.Parse(&e); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	return &e, nil
}

// Load builds a Store from the embedded defaults, overlaid with the optional
// user file at path. The merged tree is mutable in memory only.
func Load(path string) (*Store, error) {
	raw, err := fs.ReadFile(defaultFiles, "config.yml")
	if err != nil {
		return nil, fmt.Errorf("read embedded config: %w", err)
	}
	tree, err := parseTree(raw)
	if err != nil {
		return nil, fmt.Errorf("parse embedded config: %w", err)
	}

	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		overlay, err := parseTree(b)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		mergeTree(tree, overlay)
	}

	return NewStore(tree), nil
}

func parseTree(b []byte) (map[string]any, error) {
	var m map[string]any
	if err := yaml.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	if m == nil {
		m = make(map[string]any)
	}
	return m, nil
}

// mergeTree overlays src onto dst: nested maps merge per key, everything else
// replaces the existing value.
func mergeTree(dst, src map[string]any) {
	for k, v := range src {
		if sv, ok := v.(map[string]any); ok {
			if dv, ok := dst[k].(map[string]any); ok {
				mergeTree(dv, sv)
				continue
			}
		}
		dst[k] = v
	}
}
