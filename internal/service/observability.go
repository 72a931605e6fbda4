package service

import (
	"context"

	"github.com/project-kessel/rolemapper/internal/host"
	"github.com/project-kessel/rolemapper/internal/roleattr"
)

// TokenServiceObserver creates request-scoped observability probes for token issuance.
//
// Following the pattern from https://martinfowler.com/articles/domain-oriented-observability.html#IncludingExecutionContext,
// the observer captures execution context at the start of an operation and returns a
// request-scoped probe that doesn't require context to be passed to each method.
type TokenServiceObserver interface {
	// TokenIssuanceStarted creates a new request-scoped probe for token issuance.
	TokenIssuanceStarted(ctx context.Context, sessionID string, clientID string, kinds []host.TokenKind) (context.Context, TokenIssuanceProbe)
}

// TokenIssuanceProbe provides request-scoped observability for a single token issuance operation.
//
// The probe lifecycle:
//  1. Created by TokenServiceObserver.TokenIssuanceStarted()
//  2. Events reported via the remaining methods
//  3. Terminated with End() - typically deferred
type TokenIssuanceProbe interface {
	// SessionLookupFailed is called when the user session cannot be loaded.
	SessionLookupFailed(err error)

	// TokenKindIssuanceStarted is called when issuance begins for a specific token kind.
	TokenKindIssuanceStarted(kind host.TokenKind)

	// TokenKindIssuanceSucceeded is called when a token of a specific kind is issued.
	TokenKindIssuanceSucceeded(kind host.TokenKind, token *Token)

	// TokenKindIssuanceFailed is called when issuance fails for a specific token kind.
	TokenKindIssuanceFailed(kind host.TokenKind, err error)

	// IssuerNotFound is called when no issuer is registered for a requested token kind.
	IssuerNotFound(kind host.TokenKind, err error)

	// End terminates the observation. Should be deferred to ensure cleanup.
	End()
}

// MapperObserver creates probes scoped to one protocol mapper invocation.
type MapperObserver interface {
	// MappingStarted creates a probe for one SetClaim call.
	MappingStarted(ctx context.Context, mapperID string, kind host.TokenKind, session *host.UserSession) (context.Context, MappingProbe)
}

// MappingProbe observes one protocol mapper invocation, including the
// claim value build it performs.
type MappingProbe interface {
	roleattr.Probe

	// ClientResolved is called with the client whose roles are mapped.
	ClientResolved(client *host.Client, source host.ClientSource)

	// ClientUnresolved is called when no client could be determined; no claim is added.
	ClientUnresolved(err error)

	// NoClientRoles is called when the user holds no roles in the client; no claim is added.
	NoClientRoles(client *host.Client)

	// ClaimAttached is called after the claim is added to the token.
	ClaimAttached(claimName string, roleCount int)

	// ClaimOmitted is called when the build produced nothing to attach.
	ClaimOmitted(claimName string)

	// MappingFailed is called for any other failure; no claim is added.
	MappingFailed(err error)

	// End terminates the observation.
	End()
}

// ApplicationObserver provides a unified interface for all observability concerns in the application.
// Implementations can embed the NoOp* types to get default behavior for methods they don't care about.
type ApplicationObserver interface {
	TokenServiceObserver
	MapperObserver
}

// compositeObserver delegates to multiple observers in order.
type compositeObserver struct {
	observers []ApplicationObserver
}

// NewCompositeObserver creates an observer that delegates to multiple observers.
// Observers are called in the order provided.
func NewCompositeObserver(observers ...ApplicationObserver) ApplicationObserver {
	return &compositeObserver{observers: observers}
}

func (c *compositeObserver) TokenIssuanceStarted(
	ctx context.Context,
	sessionID string,
	clientID string,
	kinds []host.TokenKind,
) (context.Context, TokenIssuanceProbe) {
	probes := make([]TokenIssuanceProbe, len(c.observers))
	for i, obs := range c.observers {
		ctx, probes[i] = obs.TokenIssuanceStarted(ctx, sessionID, clientID, kinds)
	}
	return ctx, &compositeTokenIssuanceProbe{probes: probes}
}

func (c *compositeObserver) MappingStarted(
	ctx context.Context,
	mapperID string,
	kind host.TokenKind,
	session *host.UserSession,
) (context.Context, MappingProbe) {
	probes := make([]MappingProbe, len(c.observers))
	for i, obs := range c.observers {
		ctx, probes[i] = obs.MappingStarted(ctx, mapperID, kind, session)
	}
	return ctx, &compositeMappingProbe{probes: probes}
}

// compositeTokenIssuanceProbe delegates to multiple probes in order.
type compositeTokenIssuanceProbe struct {
	probes []TokenIssuanceProbe
}

func (c *compositeTokenIssuanceProbe) SessionLookupFailed(err error) {
	for _, probe := range c.probes {
		probe.SessionLookupFailed(err)
	}
}

func (c *compositeTokenIssuanceProbe) TokenKindIssuanceStarted(kind host.TokenKind) {
	for _, probe := range c.probes {
		probe.TokenKindIssuanceStarted(kind)
	}
}

func (c *compositeTokenIssuanceProbe) TokenKindIssuanceSucceeded(kind host.TokenKind, token *Token) {
	for _, probe := range c.probes {
		probe.TokenKindIssuanceSucceeded(kind, token)
	}
}

func (c *compositeTokenIssuanceProbe) TokenKindIssuanceFailed(kind host.TokenKind, err error) {
	for _, probe := range c.probes {
		probe.TokenKindIssuanceFailed(kind, err)
	}
}

func (c *compositeTokenIssuanceProbe) IssuerNotFound(kind host.TokenKind, err error) {
	for _, probe := range c.probes {
		probe.IssuerNotFound(kind, err)
	}
}

func (c *compositeTokenIssuanceProbe) End() {
	for _, probe := range c.probes {
		probe.End()
	}
}

// compositeMappingProbe delegates to multiple MappingProbe instances
type compositeMappingProbe struct {
	probes []MappingProbe
}

func (c *compositeMappingProbe) RoleSkipped(role roleattr.Role, err error) {
	for _, probe := range c.probes {
		probe.RoleSkipped(role, err)
	}
}

func (c *compositeMappingProbe) RoleOmitted(role roleattr.Role) {
	for _, probe := range c.probes {
		probe.RoleOmitted(role)
	}
}

func (c *compositeMappingProbe) Built(claimName string, roleCount int) {
	for _, probe := range c.probes {
		probe.Built(claimName, roleCount)
	}
}

func (c *compositeMappingProbe) ClientResolved(client *host.Client, source host.ClientSource) {
	for _, probe := range c.probes {
		probe.ClientResolved(client, source)
	}
}

func (c *compositeMappingProbe) ClientUnresolved(err error) {
	for _, probe := range c.probes {
		probe.ClientUnresolved(err)
	}
}

func (c *compositeMappingProbe) NoClientRoles(client *host.Client) {
	for _, probe := range c.probes {
		probe.NoClientRoles(client)
	}
}

func (c *compositeMappingProbe) ClaimAttached(claimName string, roleCount int) {
	for _, probe := range c.probes {
		probe.ClaimAttached(claimName, roleCount)
	}
}

func (c *compositeMappingProbe) ClaimOmitted(claimName string) {
	for _, probe := range c.probes {
		probe.ClaimOmitted(claimName)
	}
}

func (c *compositeMappingProbe) MappingFailed(err error) {
	for _, probe := range c.probes {
		probe.MappingFailed(err)
	}
}

func (c *compositeMappingProbe) End() {
	for _, probe := range c.probes {
		probe.End()
	}
}

// NoOpTokenIssuanceProbe is an exported null object implementation of TokenIssuanceProbe.
// Implementations can embed this to get default no-op behavior, allowing new methods
// to be added to the interface without breaking existing implementations.
type NoOpTokenIssuanceProbe struct{}

func (n *NoOpTokenIssuanceProbe) SessionLookupFailed(err error)                                {}
func (n *NoOpTokenIssuanceProbe) TokenKindIssuanceStarted(kind host.TokenKind)                 {}
func (n *NoOpTokenIssuanceProbe) TokenKindIssuanceSucceeded(kind host.TokenKind, token *Token) {}
func (n *NoOpTokenIssuanceProbe) TokenKindIssuanceFailed(kind host.TokenKind, err error)       {}
func (n *NoOpTokenIssuanceProbe) IssuerNotFound(kind host.TokenKind, err error)                {}
func (n *NoOpTokenIssuanceProbe) End()                                                         {}

// NoOpMappingProbe is an exported null object implementation of MappingProbe.
type NoOpMappingProbe struct {
	roleattr.NoOpProbe
}

func (n *NoOpMappingProbe) ClientResolved(client *host.Client, source host.ClientSource) {}
func (n *NoOpMappingProbe) ClientUnresolved(err error)                                   {}
func (n *NoOpMappingProbe) NoClientRoles(client *host.Client)                            {}
func (n *NoOpMappingProbe) ClaimAttached(claimName string, roleCount int)                {}
func (n *NoOpMappingProbe) ClaimOmitted(claimName string)                                {}
func (n *NoOpMappingProbe) MappingFailed(err error)                                      {}
func (n *NoOpMappingProbe) End()                                                         {}

// NoOpApplicationObserver implements ApplicationObserver with no-op behavior.
type NoOpApplicationObserver struct{}

// NoOpTokenServiceObserver returns an observer that does nothing.
func NoOpTokenServiceObserver() TokenServiceObserver {
	return &NoOpApplicationObserver{}
}

// NoOpMapperObserver returns an observer that does nothing.
func NoOpMapperObserver() MapperObserver {
	return &NoOpApplicationObserver{}
}

// NoOpObserver returns an application observer that does nothing.
func NoOpObserver() ApplicationObserver {
	return &NoOpApplicationObserver{}
}

func (n *NoOpApplicationObserver) TokenIssuanceStarted(ctx context.Context, sessionID string, clientID string, kinds []host.TokenKind) (context.Context, TokenIssuanceProbe) {
	return ctx, &NoOpTokenIssuanceProbe{}
}

func (n *NoOpApplicationObserver) MappingStarted(ctx context.Context, mapperID string, kind host.TokenKind, session *host.UserSession) (context.Context, MappingProbe) {
	return ctx, &NoOpMappingProbe{}
}
