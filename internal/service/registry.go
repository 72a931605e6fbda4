package service

import (
	"fmt"
	"sync"

	"github.com/project-kessel/rolemapper/internal/host"
)

// Registry looks up the issuer responsible for a token kind
type Registry interface {
	GetIssuer(kind host.TokenKind) (Issuer, error)

	// Issuers returns every registered issuer keyed by kind
	Issuers() map[host.TokenKind]Issuer
}

// SimpleRegistry is a map-backed Registry
type SimpleRegistry struct {
	mu      sync.RWMutex
	issuers map[host.TokenKind]Issuer
}

// NewSimpleRegistry creates an empty registry
func NewSimpleRegistry() *SimpleRegistry {
	return &SimpleRegistry{
		issuers: make(map[host.TokenKind]Issuer),
	}
}

// Register adds or replaces the issuer for a token kind
func (r *SimpleRegistry) Register(kind host.TokenKind, issuer Issuer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.issuers[kind] = issuer
}

// GetIssuer implements Registry
func (r *SimpleRegistry) GetIssuer(kind host.TokenKind) (Issuer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	iss, ok := r.issuers[kind]
	if !ok {
		return nil, fmt.Errorf("no issuer registered for token kind %s", kind)
	}
	return iss, nil
}

// Issuers implements Registry
func (r *SimpleRegistry) Issuers() map[host.TokenKind]Issuer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[host.TokenKind]Issuer, len(r.issuers))
	for k, v := range r.issuers {
		out[k] = v
	}
	return out
}
