package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

const envPrefix = "ROLEMAPPER_"

// Loader layers configuration from built-in defaults, an optional file,
// ROLEMAPPER_ environment variables and explicitly set command-line flags,
// in increasing order of precedence.
//
// The file format (YAML, JSON, or TOML) is picked by extension. Environment
// variables use a double underscore for nesting, so
// ROLEMAPPER_SERVER__GRPC_PORT sets server.grpc_port.
type Loader struct {
	configPath string
	flags      *pflag.FlagSet

	mu sync.RWMutex
	k  *koanf.Koanf
}

// NewLoader creates a loader without flag support.
// If configPath is empty, only environment variables and defaults are loaded.
func NewLoader(configPath string) (*Loader, error) {
	return newLoader(configPath, nil)
}

// NewLoaderWithFlags creates a loader whose flags override every other source.
// Flags are re-applied on each reload.
func NewLoaderWithFlags(configPath string, flags *pflag.FlagSet) (*Loader, error) {
	return newLoader(configPath, flags)
}

func newLoader(configPath string, flags *pflag.FlagSet) (*Loader, error) {
	l := &Loader{configPath: configPath, flags: flags}
	k, err := l.load()
	if err != nil {
		return nil, err
	}
	l.k = k
	return l, nil
}

func defaults() map[string]any {
	return map[string]any{
		"server.grpc_port":             9090,
		"server.http_port":             8080,
		"server.jwks_refresh_interval": "1m",
		"issuer.url":                   "http://localhost:8080",
		"issuer.ttl":                   "5m",
		"issuer.key_type":              "EC-P256",
		"attribute_source.type":        "realm",
		"observability.type":           "logging",
		"observability.log_level":      "info",
		"observability.log_format":     "json",
	}
}

// load builds a fresh koanf instance from every layer
func (l *Loader) load() (*koanf.Koanf, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if l.configPath != "" {
		parser, err := parserFor(l.configPath)
		if err != nil {
			return nil, err
		}
		if err := k.Load(file.Provider(l.configPath), parser); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", l.configPath, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if l.flags != nil {
		keys := GetFlagMapping()
		cb := func(f *pflag.Flag) (string, any) {
			key, ok := keys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(l.flags, f)
		}
		if err := k.Load(posflag.ProviderWithFlag(l.flags, ".", k, cb), nil); err != nil {
			return nil, fmt.Errorf("failed to load command-line flags: %w", err)
		}
	}

	return k, nil
}

// Get unmarshals the current configuration
func (l *Loader) Get() (*Config, error) {
	l.mu.RLock()
	k := l.k
	l.mu.RUnlock()
	return unmarshal(k)
}

func unmarshal(k *koanf.Koanf) (*Config, error) {
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// reload re-reads every layer and makes the result current only if it unmarshals
func (l *Loader) reload() (*Config, error) {
	k, err := l.load()
	if err != nil {
		return nil, err
	}
	cfg, err := unmarshal(k)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.k = k
	l.mu.Unlock()
	return cfg, nil
}

// Watch reloads the configuration whenever the config file changes and hands
// the result to onChange. It runs until ctx is cancelled.
//
// A file that fails to load is logged and the previous configuration stays
// current. Without a config file, Watch just waits for ctx.
func (l *Loader) Watch(ctx context.Context, logger *slog.Logger, onChange func(*Config) error) error {
	if l.configPath == "" {
		<-ctx.Done()
		return ctx.Err()
	}

	fp := file.Provider(l.configPath)
	if err := fp.Watch(func(_ interface{}, err error) {
		if err != nil {
			logger.Warn("config watch error", "path", l.configPath, "error", err)
			return
		}
		cfg, err := l.reload()
		if err != nil {
			logger.Warn("config reload failed, keeping previous config", "path", l.configPath, "error", err)
			return
		}
		if err := onChange(cfg); err != nil {
			logger.Warn("config change not applied", "path", l.configPath, "error", err)
			return
		}
		logger.Info("config reloaded", "path", l.configPath)
	}); err != nil {
		return fmt.Errorf("failed to watch config file: %w", err)
	}
	defer func() { _ = fp.Unwatch() }()

	<-ctx.Done()
	return ctx.Err()
}

func parserFor(path string) (koanf.Parser, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return yaml.Parser(), nil
	case ".json":
		return json.Parser(), nil
	case ".toml":
		return toml.Parser(), nil
	default:
		return nil, fmt.Errorf("unsupported config file format: %s (supported: .yaml, .yml, .json, .toml)", ext)
	}
}

// envKey maps ROLEMAPPER_ISSUER__KEY_TYPE to issuer.key_type
func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "__", ".")
}
