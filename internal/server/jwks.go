package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwk"

	"github.com/project-kessel/rolemapper/internal/clock"
	"github.com/project-kessel/rolemapper/internal/service"
)

// JWKSServer serves the JSON Web Key Set of every configured issuer.
// The built set is cached and rebuilt once the refresh interval has passed.
type JWKSServer struct {
	issuerRegistry  service.Registry
	clock           clock.Clock
	refreshInterval time.Duration
	logger          *slog.Logger

	mu       sync.Mutex
	cached   jwk.Set
	cachedAt time.Time
}

// JWKSServerConfig configures the JWKS server
type JWKSServerConfig struct {
	// IssuerRegistry provides access to all issuers
	IssuerRegistry service.Registry

	// RefreshInterval is how long a built set is served
	// If zero, defaults to 1 minute
	RefreshInterval time.Duration

	// Clock is used for time operations (defaults to system clock)
	Clock clock.Clock

	// Logger is the structured logger to use. If nil, uses slog.Default()
	Logger *slog.Logger
}

// NewJWKSServer creates a new JWKS server with caching
func NewJWKSServer(cfg JWKSServerConfig) *JWKSServer {
	if cfg.RefreshInterval == 0 {
		cfg.RefreshInterval = 1 * time.Minute
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.NewSystemClock()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &JWKSServer{
		issuerRegistry:  cfg.IssuerRegistry,
		clock:           cfg.Clock,
		refreshInterval: cfg.RefreshInterval,
		logger:          logger,
	}
}

// KeySet returns the cached key set, rebuilding it when stale.
// A failed rebuild keeps serving the previous set.
func (s *JWKSServer) KeySet(ctx context.Context) (jwk.Set, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	if s.cached != nil && now.Sub(s.cachedAt) < s.refreshInterval {
		return s.cached, nil
	}

	set, err := s.buildKeySet(ctx)
	if err != nil {
		if s.cached != nil {
			s.logger.Warn("JWKS refresh failed, serving previous key set", "error", err)
			return s.cached, nil
		}
		return nil, err
	}

	s.cached = set
	s.cachedAt = now
	return set, nil
}

// buildKeySet collects the public keys of all issuers.
// Issuers shared by several token kinds contribute their keys once.
func (s *JWKSServer) buildKeySet(ctx context.Context) (jwk.Set, error) {
	set := jwk.NewSet()
	seen := make(map[string]bool)
	var errs []error

	for kind, iss := range s.issuerRegistry.Issuers() {
		publicKeys, err := iss.PublicKeys(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("issuer for %s: %w", kind, err))
			continue
		}
		for _, pk := range publicKeys {
			if seen[pk.KeyID] {
				continue
			}
			key, err := toJWK(pk)
			if err != nil {
				s.logger.Warn("skipping public key", "kid", pk.KeyID, "error", err)
				continue
			}
			if err := set.AddKey(key); err != nil {
				return nil, fmt.Errorf("failed to add key %s: %w", pk.KeyID, err)
			}
			seen[pk.KeyID] = true
		}
	}

	// Partial failures still serve the keys that were collected
	if set.Len() == 0 && len(errs) > 0 {
		return nil, fmt.Errorf("failed to get public keys: %w", errors.Join(errs...))
	}
	return set, nil
}

// toJWK converts a service.PublicKey to a JWK following RFC 7517
func toJWK(pk service.PublicKey) (jwk.Key, error) {
	key, err := jwk.Import(pk.Key)
	if err != nil {
		return nil, fmt.Errorf("unsupported key: %w", err)
	}
	if err := key.Set(jwk.KeyIDKey, pk.KeyID); err != nil {
		return nil, err
	}
	if pk.Algorithm != "" {
		alg, ok := jwa.LookupSignatureAlgorithm(pk.Algorithm)
		if !ok {
			return nil, fmt.Errorf("unknown algorithm %s", pk.Algorithm)
		}
		if err := key.Set(jwk.AlgorithmKey, alg); err != nil {
			return nil, err
		}
	}
	use := pk.Use
	if use == "" {
		use = "sig"
	}
	if err := key.Set(jwk.KeyUsageKey, use); err != nil {
		return nil, err
	}
	return key, nil
}

// handleJWKS serves the key set as application/json
func (s *JWKSServer) handleJWKS(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	set, err := s.KeySet(r.Context())
	if err != nil {
		s.logger.Error("failed to build JWKS", "error", err)
		writeError(w, http.StatusInternalServerError, "jwks_unavailable", "public keys are unavailable")
		return
	}

	body, err := json.Marshal(set)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "jwks_unavailable", err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", int(s.refreshInterval.Seconds())))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
