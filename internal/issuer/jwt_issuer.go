package issuer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jws"
	"github.com/lestrrat-go/jwx/v3/jwt"

	"github.com/project-kessel/rolemapper/internal/clock"
	"github.com/project-kessel/rolemapper/internal/host"
	"github.com/project-kessel/rolemapper/internal/keys"
	"github.com/project-kessel/rolemapper/internal/service"
)

// ContentTypeJWT is the content type of signed tokens
const ContentTypeJWT = "application/jwt"

// JWTIssuerConfig is the configuration for creating a JWT issuer
type JWTIssuerConfig struct {
	// IssuerURL is the issuer URL (iss claim)
	IssuerURL string

	// TTL is the time-to-live for tokens
	TTL time.Duration

	// Signer provides the signing key and algorithm
	Signer keys.Signer

	// Clock is an optional clock for testing (defaults to system clock)
	Clock clock.Clock
}

// JWTIssuer issues signed access and ID tokens carrying the mapper claims.
type JWTIssuer struct {
	issuerURL string
	ttl       time.Duration
	signer    keys.Signer
	clock     clock.Clock
}

// NewJWTIssuer creates a new JWT issuer
func NewJWTIssuer(cfg JWTIssuerConfig) *JWTIssuer {
	clk := cfg.Clock
	if clk == nil {
		clk = clock.NewSystemClock()
	}

	return &JWTIssuer{
		issuerURL: cfg.IssuerURL,
		ttl:       cfg.TTL,
		signer:    cfg.Signer,
		clock:     clk,
	}
}

// tokenTypes maps token kinds to the typ claim
var tokenTypes = map[host.TokenKind]string{
	host.TokenKindAccess: "Bearer",
	host.TokenKindID:     "ID",
}

// Issue implements the Issuer interface.
// Mapper claims are set first; registered claims always win over a mapper claim of the same name.
func (i *JWTIssuer) Issue(ctx context.Context, issueCtx *service.IssueContext) (*service.Token, error) {
	typ, ok := tokenTypes[issueCtx.Kind]
	if !ok {
		return nil, fmt.Errorf("JWT issuer cannot issue %s tokens", issueCtx.Kind)
	}
	if issueCtx.Session == nil || issueCtx.Session.User == nil {
		return nil, fmt.Errorf("cannot issue a token without an authenticated user")
	}

	now := i.clock.Now()
	expiresAt := now.Add(i.ttl)

	token := jwt.New()

	for name, value := range issueCtx.Claims {
		if err := token.Set(name, value); err != nil {
			return nil, fmt.Errorf("failed to set claim %s: %w", name, err)
		}
	}

	if err := token.Set(jwt.IssuerKey, i.issuerURL); err != nil {
		return nil, fmt.Errorf("failed to set issuer: %w", err)
	}
	if err := token.Set(jwt.SubjectKey, issueCtx.Session.User.ID); err != nil {
		return nil, fmt.Errorf("failed to set subject: %w", err)
	}
	if issueCtx.Audience != "" {
		if err := token.Set(jwt.AudienceKey, []string{issueCtx.Audience}); err != nil {
			return nil, fmt.Errorf("failed to set audience: %w", err)
		}
		if err := token.Set("azp", issueCtx.Audience); err != nil {
			return nil, fmt.Errorf("failed to set authorized party: %w", err)
		}
	}
	if err := token.Set(jwt.IssuedAtKey, now.Unix()); err != nil {
		return nil, fmt.Errorf("failed to set issued at: %w", err)
	}
	if err := token.Set(jwt.ExpirationKey, expiresAt.Unix()); err != nil {
		return nil, fmt.Errorf("failed to set expiration: %w", err)
	}
	if err := token.Set(jwt.JwtIDKey, uuid.NewString()); err != nil {
		return nil, fmt.Errorf("failed to set JWT ID: %w", err)
	}
	if err := token.Set("typ", typ); err != nil {
		return nil, fmt.Errorf("failed to set token type: %w", err)
	}
	if issueCtx.Session.ID != "" {
		if err := token.Set("sid", issueCtx.Session.ID); err != nil {
			return nil, fmt.Errorf("failed to set session ID: %w", err)
		}
	}

	signer, keyID, algorithm, err := i.signer.GetCurrentSigner(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get current signer: %w", err)
	}
	signAlg, ok := jwa.LookupSignatureAlgorithm(string(algorithm))
	if !ok {
		return nil, fmt.Errorf("unsupported signature algorithm: %s", algorithm)
	}

	headers := jws.NewHeaders()
	if err := headers.Set(jws.KeyIDKey, string(keyID)); err != nil {
		return nil, fmt.Errorf("failed to set key ID header: %w", err)
	}

	signedToken, err := jwt.Sign(token,
		jwt.WithKey(signAlg, signer, jws.WithProtectedHeaders(headers)))
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	return &service.Token{
		Kind:        issueCtx.Kind,
		Value:       string(signedToken),
		ContentType: ContentTypeJWT,
		ExpiresAt:   expiresAt,
		IssuedAt:    now,
	}, nil
}

// PublicKeys implements the Issuer interface
func (i *JWTIssuer) PublicKeys(ctx context.Context) ([]service.PublicKey, error) {
	return i.signer.PublicKeys(ctx)
}
