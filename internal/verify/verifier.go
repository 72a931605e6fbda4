package verify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/lestrrat-go/httprc/v3"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/lestrrat-go/jwx/v3/jwt"

	"github.com/project-kessel/rolemapper/internal/claims"
	"github.com/project-kessel/rolemapper/internal/clock"
	"github.com/project-kessel/rolemapper/internal/roleattr"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

// Verifier checks signed tokens against the issuer's published JWKS
// and decodes the role attributes claim they carry
type Verifier struct {
	issuer    string
	jwksURL   string
	claimName string
	cache     *jwk.Cache
	clock     clock.Clock
}

// Config contains configuration for token verification
type Config struct {
	// Issuer is the expected issuer URL (iss claim)
	Issuer string

	// JWKSURL is the URL to fetch the JSON Web Key Set from
	// If empty, defaults to issuer/.well-known/jwks.json
	JWKSURL string

	// ClaimName is the role attributes claim to decode (default: role_attributes)
	ClaimName string

	// RefreshInterval for the JWKS cache (default: 15 minutes)
	RefreshInterval time.Duration

	// HTTPClient is an optional HTTP client for JWKS fetching
	// This is useful for testing with fixtures or custom transports
	HTTPClient *http.Client

	// Clock is the time source for token validation
	// If nil, uses system clock
	Clock clock.Clock
}

// Result is a verified token
type Result struct {
	Subject   string
	Issuer    string
	Audience  []string
	ExpiresAt time.Time
	IssuedAt  time.Time

	// TokenType is the typ claim, Bearer or ID
	TokenType string

	Claims claims.Claims

	// RoleAttributes is the decoded role attributes claim, nil when the token has none
	RoleAttributes roleattr.ClaimValue
}

// NewVerifier creates a verifier and fetches the initial key set.
// Background key refreshes stop when ctx is cancelled.
func NewVerifier(ctx context.Context, cfg Config) (*Verifier, error) {
	if cfg.Issuer == "" {
		return nil, fmt.Errorf("issuer is required")
	}

	jwksURL := cfg.JWKSURL
	if jwksURL == "" {
		jwksURL = strings.TrimSuffix(cfg.Issuer, "/") + "/.well-known/jwks.json"
	}

	refreshInterval := cfg.RefreshInterval
	if refreshInterval == 0 {
		refreshInterval = 15 * time.Minute
	}

	claimName := strings.TrimSpace(cfg.ClaimName)
	if claimName == "" {
		claimName = roleattr.DefaultClaimName
	}

	cache, err := jwk.NewCache(ctx, httprc.NewClient())
	if err != nil {
		return nil, fmt.Errorf("failed to create JWKS cache: %w", err)
	}

	registerOpts := []jwk.RegisterOption{jwk.WithMinInterval(refreshInterval)}
	if cfg.HTTPClient != nil {
		registerOpts = append(registerOpts, jwk.WithHTTPClient(cfg.HTTPClient))
	}
	if err := cache.Register(ctx, jwksURL, registerOpts...); err != nil {
		return nil, fmt.Errorf("failed to register JWKS URL: %w", err)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if _, err := cache.Refresh(fetchCtx, jwksURL); err != nil {
		return nil, fmt.Errorf("failed to fetch initial JWKS: %w", err)
	}

	clk := cfg.Clock
	if clk == nil {
		clk = clock.NewSystemClock()
	}

	return &Verifier{
		issuer:    cfg.Issuer,
		jwksURL:   jwksURL,
		claimName: claimName,
		cache:     cache,
		clock:     clk,
	}, nil
}

// Verify validates the signature and registered claims of a token
func (v *Verifier) Verify(ctx context.Context, tokenString string) (*Result, error) {
	jwks, err := v.cache.Lookup(ctx, v.jwksURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch JWKS: %w", err)
	}

	token, err := jwt.Parse(
		[]byte(tokenString),
		jwt.WithKeySet(jwks),
		jwt.WithValidate(true),
		jwt.WithIssuer(v.issuer),
		jwt.WithClock(jwt.ClockFunc(v.clock.Now)),
	)
	if err != nil {
		if errors.Is(err, jwt.TokenExpiredError()) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	subject, ok := token.Subject()
	if !ok || subject == "" {
		return nil, fmt.Errorf("%w: missing subject claim", ErrInvalidToken)
	}

	allClaims := claims.Claims{}
	serialized, err := json.Marshal(token)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize token claims: %w", err)
	}
	if err := json.Unmarshal(serialized, &allClaims); err != nil {
		return nil, fmt.Errorf("failed to parse token claims: %w", err)
	}

	roleAttrs, err := decodeRoleAttributes(allClaims[v.claimName])
	if err != nil {
		return nil, fmt.Errorf("%w: claim %s: %v", ErrInvalidToken, v.claimName, err)
	}

	audiences, _ := token.Audience()
	expiresAt, _ := token.Expiration()
	issuedAt, _ := token.IssuedAt()

	var typ string
	if err := token.Get("typ", &typ); err != nil {
		typ = ""
	}

	return &Result{
		Subject:        subject,
		Issuer:         v.issuer,
		Audience:       audiences,
		ExpiresAt:      expiresAt,
		IssuedAt:       issuedAt,
		TokenType:      typ,
		Claims:         allClaims,
		RoleAttributes: roleAttrs,
	}, nil
}

// decodeRoleAttributes converts the decoded JSON claim back into its typed form
func decodeRoleAttributes(raw any) (roleattr.ClaimValue, error) {
	if raw == nil {
		return nil, nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var value roleattr.ClaimValue
	if err := json.Unmarshal(data, &value); err != nil {
		return nil, err
	}
	return value, nil
}
