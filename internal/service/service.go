package service

import (
	"context"
	"fmt"

	"github.com/project-kessel/rolemapper/internal/host"
)

// TokenService builds tokens for a user session.
// It runs the configured protocol mappers against an empty token of each
// requested kind and hands the resulting claims to the kind's issuer.
type TokenService struct {
	sessions       host.SessionLookup
	mappers        []MapperBinding
	issuerRegistry Registry
	observer       TokenServiceObserver
}

// NewTokenService creates a new token service
func NewTokenService(
	sessions host.SessionLookup,
	mappers []MapperBinding,
	issuerRegistry Registry,
	observer TokenServiceObserver,
) *TokenService {
	if observer == nil {
		observer = NoOpTokenServiceObserver()
	}
	return &TokenService{
		sessions:       sessions,
		mappers:        sortBindings(mappers),
		issuerRegistry: issuerRegistry,
		observer:       observer,
	}
}

// Mappers returns the configured mapper bindings in execution order
func (ts *TokenService) Mappers() []MapperBinding {
	return ts.mappers
}

// IssueRequest contains the inputs for token issuance
type IssueRequest struct {
	// SessionID identifies the user session
	SessionID string

	// ClientID is the client the tokens are issued to (azp).
	// When the session holds a client session for it, that client session
	// becomes the mapper's client session context.
	ClientID string

	// TokenKinds specifies which token kinds to build.
	// Empty means every kind; a kind named twice is issued once.
	TokenKinds []host.TokenKind
}

// RequestedKinds returns the kinds a request issues, in request order
func RequestedKinds(kinds []host.TokenKind) []host.TokenKind {
	if len(kinds) == 0 {
		return host.TokenKinds
	}
	out := make([]host.TokenKind, 0, len(kinds))
	seen := make(map[host.TokenKind]bool, len(kinds))
	for _, kind := range kinds {
		if seen[kind] {
			continue
		}
		seen[kind] = true
		out = append(out, kind)
	}
	return out
}

// IssueTokens builds and issues one token per requested kind
func (ts *TokenService) IssueTokens(ctx context.Context, req *IssueRequest) (map[host.TokenKind]*Token, error) {
	kinds := RequestedKinds(req.TokenKinds)

	ctx, probe := ts.observer.TokenIssuanceStarted(ctx, req.SessionID, req.ClientID, kinds)
	defer probe.End()

	session, err := ts.sessions.UserSession(ctx, req.SessionID)
	if err != nil {
		probe.SessionLookupFailed(err)
		return nil, fmt.Errorf("failed to load session %s: %w", req.SessionID, err)
	}

	clientSessionCtx := clientSessionContextFor(session, req.ClientID)

	tokens := make(map[host.TokenKind]*Token, len(kinds))
	for _, kind := range kinds {
		probe.TokenKindIssuanceStarted(kind)

		iss, err := ts.issuerRegistry.GetIssuer(kind)
		if err != nil {
			probe.IssuerNotFound(kind, err)
			return nil, fmt.Errorf("no issuer for token kind %s: %w", kind, err)
		}

		sink := host.NewToken(kind, req.ClientID)
		for _, binding := range ts.mappers {
			if !IncludedIn(binding.Model, kind) {
				continue
			}
			binding.Mapper.SetClaim(ctx, &MapperInput{
				Token:                sink,
				Model:                binding.Model,
				UserSession:          session,
				ClientSessionContext: clientSessionCtx,
			})
		}

		token, err := iss.Issue(ctx, &IssueContext{
			Kind:     kind,
			Session:  session,
			Audience: req.ClientID,
			Claims:   sink.Claims(),
		})
		if err != nil {
			probe.TokenKindIssuanceFailed(kind, err)
			return nil, fmt.Errorf("failed to issue %s token: %w", kind, err)
		}

		probe.TokenKindIssuanceSucceeded(kind, token)
		tokens[kind] = token
	}

	return tokens, nil
}

// clientSessionContextFor returns the session's client session for clientID, or nil
func clientSessionContextFor(session *host.UserSession, clientID string) *host.ClientSessionContext {
	if clientID == "" {
		return nil
	}
	for _, cs := range session.AuthenticatedClientSessions {
		if cs != nil && cs.Client != nil && cs.Client.ClientID == clientID {
			return &host.ClientSessionContext{ClientSession: cs}
		}
	}
	return nil
}
