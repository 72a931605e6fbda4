package host

import (
	"fmt"
	"sync"

	"github.com/project-kessel/rolemapper/internal/claims"
)

// TokenKind identifies which token representation is being built
type TokenKind string

const (
	TokenKindAccess   TokenKind = "access"
	TokenKindID       TokenKind = "id"
	TokenKindUserInfo TokenKind = "userinfo"
)

// TokenKinds lists every kind in issuance order
var TokenKinds = []TokenKind{TokenKindAccess, TokenKindID, TokenKindUserInfo}

// ParseTokenKind validates a token kind name
func ParseTokenKind(s string) (TokenKind, error) {
	switch k := TokenKind(s); k {
	case TokenKindAccess, TokenKindID, TokenKindUserInfo:
		return k, nil
	default:
		return "", fmt.Errorf("unknown token kind %q (supported: access, id, userinfo)", s)
	}
}

// ParseTokenKinds parses each name with ParseTokenKind
func ParseTokenKinds(names []string) ([]TokenKind, error) {
	kinds := make([]TokenKind, 0, len(names))
	for _, name := range names {
		kind, err := ParseTokenKind(name)
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, kind)
	}
	return kinds, nil
}

// TokenSink is an in-progress token a mapper can attach claims to.
// The attachment call is the same for every kind.
type TokenSink interface {
	Kind() TokenKind

	// IssuedFor is the client_id the token is being issued to, if known
	IssuedFor() string

	// SetClaim attaches a claim, replacing any previous value under the same name
	SetClaim(name string, value any)
}

// Token is the reference TokenSink used by the bundled token service
type Token struct {
	mu        sync.Mutex
	kind      TokenKind
	issuedFor string
	claims    claims.Claims
}

// NewToken creates an empty token of the given kind
func NewToken(kind TokenKind, issuedFor string) *Token {
	return &Token{
		kind:      kind,
		issuedFor: issuedFor,
		claims:    make(claims.Claims),
	}
}

// Kind implements TokenSink
func (t *Token) Kind() TokenKind {
	return t.kind
}

// IssuedFor implements TokenSink
func (t *Token) IssuedFor() string {
	return t.issuedFor
}

// SetClaim implements TokenSink
func (t *Token) SetClaim(name string, value any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.claims[name] = value
}

// Claims returns a copy of the claims attached so far
func (t *Token) Claims() claims.Claims {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.claims.Copy()
}
