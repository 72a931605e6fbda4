package service

import (
	"context"
	"crypto"
	"time"

	"github.com/project-kessel/rolemapper/internal/claims"
	"github.com/project-kessel/rolemapper/internal/host"
)

// IssueContext contains everything an issuer needs to encode one token
type IssueContext struct {
	// Kind is the token kind being issued
	Kind host.TokenKind

	// Session is the user session the token represents
	Session *host.UserSession

	// Audience is the client_id the token is issued to
	Audience string

	// Claims are the claims contributed by protocol mappers
	Claims claims.Claims
}

// PublicKey represents a public key for token verification
type PublicKey struct {
	// KeyID is the unique identifier for this key (kid)
	KeyID string

	// Algorithm is the signing algorithm (e.g., "RS256", "ES256")
	Algorithm string

	// Key is the actual public key material
	Key crypto.PublicKey

	// Use indicates the intended use of the key (e.g., "sig" for signature)
	Use string
}

// Issuer encodes the claims of an in-progress token into its final form
type Issuer interface {
	// Issue creates a token from the provided context
	Issue(ctx context.Context, issueCtx *IssueContext) (*Token, error)

	// PublicKeys returns the keys verifying tokens issued by this issuer.
	// Returns an empty slice for unsigned tokens.
	PublicKeys(ctx context.Context) ([]PublicKey, error)
}

// Token represents an issued token
type Token struct {
	// Kind is the token kind
	Kind host.TokenKind

	// Value is the encoded token (a JWT, or JSON for userinfo responses)
	Value string

	// ContentType describes Value (e.g., "application/jwt", "application/json")
	ContentType string

	// ExpiresAt is when the token expires
	ExpiresAt time.Time

	// IssuedAt is when the token was issued
	IssuedAt time.Time
}
