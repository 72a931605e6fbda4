package config

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/knadh/koanf/providers/file"

	"github.com/project-kessel/rolemapper/internal/clock"
	"github.com/project-kessel/rolemapper/internal/httpfixture"
	"github.com/project-kessel/rolemapper/internal/keys"
	"github.com/project-kessel/rolemapper/internal/roleattr"
	"github.com/project-kessel/rolemapper/internal/server"
	"github.com/project-kessel/rolemapper/internal/service"
	"github.com/project-kessel/rolemapper/internal/store"
)

// Provider constructs all application components from configuration
// This is the main entry point for building a configured rolemapper instance
type Provider struct {
	config *Config
	clock  clock.Clock

	// Lazily constructed components (cached after first call)
	realmStore          *store.RealmStore
	signer              *keys.MemorySigner
	issuerRegistry      service.Registry
	attributeSource     roleattr.AttributeSource
	mapperBindings      []service.MapperBinding
	tokenService        *service.TokenService
	httpFixtureProvider httpfixture.FixtureProvider
	httpFixtureBuilt    bool
	observer            service.ApplicationObserver
}

// NewProvider creates a new provider from configuration
func NewProvider(config *Config) *Provider {
	return &Provider{
		config: config,
		clock:  clock.NewSystemClock(),
	}
}

// SetClock replaces the clock used by issuers and the JWKS cache
func (p *Provider) SetClock(clk clock.Clock) {
	p.clock = clk
}

// SetObserver sets the application observer for all components built by this provider.
// Must be called before TokenService() or any method that depends on the observer.
func (p *Provider) SetObserver(observer service.ApplicationObserver) {
	p.observer = observer
}

// Observer returns the configured application observer.
// If SetObserver was called, returns that observer.
// Otherwise, creates a default observer from config.
func (p *Provider) Observer() (service.ApplicationObserver, error) {
	if p.observer != nil {
		return p.observer, nil
	}

	observer, err := NewObserver(p.config.Observability)
	if err != nil {
		return nil, fmt.Errorf("failed to create observer: %w", err)
	}

	p.observer = observer
	return observer, nil
}

// RealmStore returns the store loaded from the configured realm file
func (p *Provider) RealmStore() (*store.RealmStore, error) {
	if p.realmStore != nil {
		return p.realmStore, nil
	}

	if p.config.Realm == "" {
		return nil, fmt.Errorf("realm file is required")
	}

	file, err := store.LoadRealmFile(p.config.Realm)
	if err != nil {
		return nil, err
	}

	realmStore, err := store.NewRealmStore(file)
	if err != nil {
		return nil, fmt.Errorf("invalid realm file %s: %w", p.config.Realm, err)
	}

	p.realmStore = realmStore
	return realmStore, nil
}

// WatchRealm reloads the realm whenever the realm file changes, until ctx is cancelled.
// A realm that fails to load is logged and the previous one keeps serving.
func (p *Provider) WatchRealm(ctx context.Context, logger *slog.Logger) error {
	realmStore, err := p.RealmStore()
	if err != nil {
		return err
	}

	fp := file.Provider(p.config.Realm)
	if err := fp.Watch(func(event interface{}, err error) {
		if err != nil {
			logger.Warn("realm watch error", "error", err)
			return
		}
		data, err := fp.ReadBytes()
		if err != nil {
			logger.Warn("failed to read realm file", "path", p.config.Realm, "error", err)
			return
		}
		realmFile, err := store.ParseRealm(data)
		if err != nil {
			logger.Warn("failed to parse realm file", "path", p.config.Realm, "error", err)
			return
		}
		if err := realmStore.Replace(realmFile); err != nil {
			logger.Warn("rejected realm file", "path", p.config.Realm, "error", err)
			return
		}
		logger.Info("realm reloaded", "realm", realmFile.Realm)
	}); err != nil {
		return fmt.Errorf("failed to watch realm file: %w", err)
	}
	defer func() { _ = fp.Unwatch() }()

	<-ctx.Done()
	return ctx.Err()
}

// Signer returns the token signing key
func (p *Provider) Signer() (*keys.MemorySigner, error) {
	if p.signer != nil {
		return p.signer, nil
	}

	signer, err := NewSigner(p.config.Issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to create signer: %w", err)
	}

	p.signer = signer
	return signer, nil
}

// IssuerRegistry returns the configured issuer registry
func (p *Provider) IssuerRegistry() (service.Registry, error) {
	if p.issuerRegistry != nil {
		return p.issuerRegistry, nil
	}

	signer, err := p.Signer()
	if err != nil {
		return nil, err
	}

	registry, err := NewIssuerRegistry(p.config.Issuer, signer, p.clock)
	if err != nil {
		return nil, fmt.Errorf("failed to create issuer registry: %w", err)
	}

	p.issuerRegistry = registry
	return registry, nil
}

// AttributeSource returns the configured role attribute source
func (p *Provider) AttributeSource() (roleattr.AttributeSource, error) {
	if p.attributeSource != nil {
		return p.attributeSource, nil
	}

	var realm roleattr.AttributeSource
	if p.config.AttributeSource.Type == "realm" || p.config.AttributeSource.Type == "" {
		realmStore, err := p.RealmStore()
		if err != nil {
			return nil, err
		}
		realm = realmStore
	}

	transport, err := p.HTTPTransport()
	if err != nil {
		return nil, err
	}

	src, err := NewAttributeSource(p.config.AttributeSource, realm, transport, p.clock)
	if err != nil {
		return nil, fmt.Errorf("failed to create attribute source: %w", err)
	}

	p.attributeSource = src
	return src, nil
}

// MapperBindings returns the configured protocol mapper instances
func (p *Provider) MapperBindings() ([]service.MapperBinding, error) {
	if p.mapperBindings != nil {
		return p.mapperBindings, nil
	}

	realmStore, err := p.RealmStore()
	if err != nil {
		return nil, err
	}

	attributes, err := p.AttributeSource()
	if err != nil {
		return nil, err
	}

	observer, err := p.Observer()
	if err != nil {
		return nil, fmt.Errorf("failed to get observer: %w", err)
	}

	bindings, err := NewMapperBindings(p.config.Mappers, MapperDeps{
		Roles:      realmStore,
		Clients:    realmStore,
		Attributes: attributes,
		Observer:   observer,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create mappers: %w", err)
	}

	p.mapperBindings = bindings
	return bindings, nil
}

// TokenService returns the configured token service
func (p *Provider) TokenService() (*service.TokenService, error) {
	if p.tokenService != nil {
		return p.tokenService, nil
	}

	realmStore, err := p.RealmStore()
	if err != nil {
		return nil, err
	}

	bindings, err := p.MapperBindings()
	if err != nil {
		return nil, err
	}

	issuerRegistry, err := p.IssuerRegistry()
	if err != nil {
		return nil, err
	}

	observer, err := p.Observer()
	if err != nil {
		return nil, fmt.Errorf("failed to get observer: %w", err)
	}

	tokenService := service.NewTokenService(
		realmStore,
		bindings,
		issuerRegistry,
		observer, // Application observer for observability
	)

	p.tokenService = tokenService
	return tokenService, nil
}

// JWKSRefreshInterval returns how long a built key set is served
func (p *Provider) JWKSRefreshInterval() (time.Duration, error) {
	if p.config.Server.JWKSRefreshInterval == "" {
		return time.Minute, nil
	}
	d, err := time.ParseDuration(p.config.Server.JWKSRefreshInterval)
	if err != nil {
		return 0, fmt.Errorf("invalid jwks refresh interval: %w", err)
	}
	return d, nil
}

// Clock returns the clock shared by built components
func (p *Provider) Clock() clock.Clock {
	return p.clock
}

// ServerConfig returns the server configuration
func (p *Provider) ServerConfig() server.Config {
	return server.Config{
		GRPCPort: p.config.Server.GRPCPort,
		HTTPPort: p.config.Server.HTTPPort,
	}
}

// HTTPTransport returns an HTTP RoundTripper configured with fixtures if available
// Returns nil if no special transport is needed (caller should use http.DefaultTransport)
func (p *Provider) HTTPTransport() (http.RoundTripper, error) {
	fixtureProvider, err := p.HTTPFixtureProvider()
	if err != nil {
		return nil, err
	}
	if fixtureProvider == nil {
		return nil, nil
	}
	return httpfixture.NewTransport(httpfixture.TransportConfig{
		Provider: fixtureProvider,
		Strict:   true,
	}), nil
}

// HTTPFixtureProvider returns the fixture provider for hermetic testing
// Returns nil if no fixtures are configured (normal production mode)
func (p *Provider) HTTPFixtureProvider() (httpfixture.FixtureProvider, error) {
	if p.httpFixtureBuilt {
		return p.httpFixtureProvider, nil
	}

	provider, err := BuildHTTPFixtureProvider(p.config.Fixtures)
	if err != nil {
		return nil, fmt.Errorf("failed to build HTTP fixture provider: %w", err)
	}

	p.httpFixtureProvider = provider
	p.httpFixtureBuilt = true
	return p.httpFixtureProvider, nil
}
