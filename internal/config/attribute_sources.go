package config

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/project-kessel/rolemapper/internal/clock"
	"github.com/project-kessel/rolemapper/internal/datasource"
	luaservices "github.com/project-kessel/rolemapper/internal/lua"
	"github.com/project-kessel/rolemapper/internal/roleattr"
)

// NewAttributeSource creates the role attribute source from configuration.
// The realm source is used as-is for the "realm" type; it reloads with the
// realm file and is never cached.
func NewAttributeSource(cfg AttributeSourceConfig, realm roleattr.AttributeSource, transport http.RoundTripper, clk clock.Clock) (roleattr.AttributeSource, error) {
	switch cfg.Type {
	case "realm", "":
		if realm == nil {
			return nil, fmt.Errorf("realm attribute source requires a realm")
		}
		if cfg.Cache != nil {
			return nil, fmt.Errorf("the realm attribute source cannot be cached")
		}
		return realm, nil
	case "lua":
		src, err := newLuaAttributeSource(cfg, transport)
		if err != nil {
			return nil, err
		}
		return newCachingAttributeSource(cfg.Cache, src, clk)
	default:
		return nil, fmt.Errorf("unknown attribute source type: %s (supported: realm, lua)", cfg.Type)
	}
}

// newCachingAttributeSource wraps src according to cfg; nil cfg returns src unchanged
func newCachingAttributeSource(cfg *AttributeCacheConfig, src roleattr.AttributeSource, clk clock.Clock) (roleattr.AttributeSource, error) {
	if cfg == nil {
		return src, nil
	}

	var ttl time.Duration
	if cfg.TTL != "" {
		d, err := time.ParseDuration(cfg.TTL)
		if err != nil {
			return nil, fmt.Errorf("invalid cache ttl: %w", err)
		}
		if d < 0 {
			return nil, fmt.Errorf("cache ttl must not be negative, got %s", cfg.TTL)
		}
		ttl = d
	}

	switch cfg.Type {
	case "memory", "":
		return datasource.NewInMemoryCachingAttributeSource(src, ttl, datasource.WithClock(clk)), nil
	case "distributed":
		cached, err := datasource.NewDistributedCachingAttributeSource(src, datasource.DistributedCachingConfig{
			GroupName:      cfg.GroupName,
			CacheSizeBytes: cfg.SizeBytes,
			TTL:            ttl,
			Clock:          clk,
		})
		if err != nil {
			return nil, err
		}
		return cached, nil
	default:
		return nil, fmt.Errorf("unknown cache type: %s (supported: memory, distributed)", cfg.Type)
	}
}

func newLuaAttributeSource(cfg AttributeSourceConfig, transport http.RoundTripper) (roleattr.AttributeSource, error) {
	script := cfg.Script
	if cfg.ScriptFile != "" {
		content, err := os.ReadFile(cfg.ScriptFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read script file %s: %w", cfg.ScriptFile, err)
		}
		script = string(content)
	}

	if script == "" {
		return nil, fmt.Errorf("lua attribute source requires either script or script_file")
	}

	var configSource luaservices.ConfigSource
	if cfg.Config != nil {
		configSource = luaservices.NewMapConfigSource(cfg.Config)
	}

	httpConfig, err := buildHTTPConfig(cfg.HTTPConfig, transport)
	if err != nil {
		return nil, fmt.Errorf("failed to build HTTP config: %w", err)
	}

	src, err := datasource.NewLuaAttributeSource(datasource.LuaAttributeSourceConfig{
		Script:       script,
		ConfigSource: configSource,
		HTTPConfig:   httpConfig,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create lua attribute source: %w", err)
	}
	return src, nil
}

// buildHTTPConfig creates an HTTPServiceConfig from the config structure
func buildHTTPConfig(cfg *HTTPConfig, transport http.RoundTripper) (*luaservices.HTTPServiceConfig, error) {
	httpServiceCfg := &luaservices.HTTPServiceConfig{Timeout: 30 * time.Second}

	if cfg != nil && cfg.Timeout != "" {
		duration, err := time.ParseDuration(cfg.Timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid http timeout: %w", err)
		}
		httpServiceCfg.Timeout = duration
	}

	if transport != nil {
		httpServiceCfg.Transport = transport
	}

	return httpServiceCfg, nil
}
