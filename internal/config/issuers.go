package config

import (
	"fmt"
	"time"

	"github.com/project-kessel/rolemapper/internal/clock"
	"github.com/project-kessel/rolemapper/internal/host"
	"github.com/project-kessel/rolemapper/internal/issuer"
	"github.com/project-kessel/rolemapper/internal/keys"
	"github.com/project-kessel/rolemapper/internal/service"
)

// NewSigner creates the token signer from configuration.
// A configured key file takes precedence over a generated key.
func NewSigner(cfg IssuerConfig) (*keys.MemorySigner, error) {
	if cfg.KeyFile != "" {
		signer, err := keys.NewMemorySignerFromPEM(cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load signing key: %w", err)
		}
		return signer, nil
	}

	keyType, err := keys.ParseKeyType(cfg.KeyType)
	if err != nil {
		return nil, err
	}

	signer, err := keys.NewMemorySigner(keyType, keys.DefaultAlgorithm(keyType))
	if err != nil {
		return nil, fmt.Errorf("failed to generate signing key: %w", err)
	}
	return signer, nil
}

// NewIssuerRegistry registers a JWT issuer for access and ID tokens and a
// JSON issuer for userinfo responses
func NewIssuerRegistry(cfg IssuerConfig, signer keys.Signer, clk clock.Clock) (service.Registry, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("issuer url is required")
	}

	ttl := 5 * time.Minute
	if cfg.TTL != "" {
		d, err := time.ParseDuration(cfg.TTL)
		if err != nil {
			return nil, fmt.Errorf("invalid issuer ttl: %w", err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("issuer ttl must be positive, got %s", cfg.TTL)
		}
		ttl = d
	}

	jwtIssuer := issuer.NewJWTIssuer(issuer.JWTIssuerConfig{
		IssuerURL: cfg.URL,
		TTL:       ttl,
		Signer:    signer,
		Clock:     clk,
	})

	registry := service.NewSimpleRegistry()
	registry.Register(host.TokenKindAccess, jwtIssuer)
	registry.Register(host.TokenKindID, jwtIssuer)
	registry.Register(host.TokenKindUserInfo, issuer.NewUserInfoIssuer(issuer.UserInfoIssuerConfig{Clock: clk}))
	return registry, nil
}
