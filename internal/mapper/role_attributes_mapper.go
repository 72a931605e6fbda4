package mapper

import (
	"context"
	"errors"
	"fmt"

	"github.com/project-kessel/rolemapper/internal/claims"
	"github.com/project-kessel/rolemapper/internal/host"
	"github.com/project-kessel/rolemapper/internal/roleattr"
	"github.com/project-kessel/rolemapper/internal/service"
)

// ProviderID identifies the role attributes mapper type
const ProviderID = "oidc-client-role-attributes-mapper"

// RoleAttributesMapperConfig wires the host collaborators of a RoleAttributesMapper
type RoleAttributesMapperConfig struct {
	// Roles returns the user's roles within a client
	Roles host.RoleSource

	// Attributes resolves each role's attributes
	Attributes roleattr.AttributeSource

	// Clients resolves the token's issued-for client
	Clients host.ClientLookup

	// AttributeFilter optionally restricts emitted attribute names
	AttributeFilter claims.NameFilter

	// RoleFilter optionally restricts emitted roles
	RoleFilter *CELRoleFilter

	// Observer receives mapping events. Defaults to a no-op observer.
	Observer service.MapperObserver
}

// RoleAttributesMapper adds the attributes of the user's client roles to tokens.
//
// The claim value maps role names to attribute mappings:
//
//	{"admin": {"department": ["IT", "Security"], "level": ["5"]}}
//
// Nothing is attached when the build comes back empty, and no failure inside
// the mapper ever reaches the caller.
type RoleAttributesMapper struct {
	roles           host.RoleSource
	attributes      roleattr.AttributeSource
	clients         host.ClientLookup
	attributeFilter claims.NameFilter
	roleFilter      *CELRoleFilter
	observer        service.MapperObserver
}

// NewRoleAttributesMapper creates a new role attributes mapper
func NewRoleAttributesMapper(cfg RoleAttributesMapperConfig) *RoleAttributesMapper {
	observer := cfg.Observer
	if observer == nil {
		observer = service.NoOpMapperObserver()
	}
	return &RoleAttributesMapper{
		roles:           cfg.Roles,
		attributes:      cfg.Attributes,
		clients:         cfg.Clients,
		attributeFilter: cfg.AttributeFilter,
		roleFilter:      cfg.RoleFilter,
		observer:        observer,
	}
}

// Descriptor implements service.ProtocolMapper
func (m *RoleAttributesMapper) Descriptor() service.Descriptor {
	return service.Descriptor{
		ID:          ProviderID,
		DisplayType: "Client Role Attributes",
		Category:    "Token mapper",
		HelpText: "Adds the attributes of the user's roles in the current client to the token. " +
			"Each role's attributes appear as a separate map inside the claim.",
		Priority:   100,
		Properties: configProperties(),
	}
}

// SetClaim implements service.ProtocolMapper
func (m *RoleAttributesMapper) SetClaim(ctx context.Context, input *service.MapperInput) {
	var kind host.TokenKind
	if input != nil && input.Token != nil {
		kind = input.Token.Kind()
	}
	var session *host.UserSession
	if input != nil {
		session = input.UserSession
	}

	ctx, probe := m.observer.MappingStarted(ctx, ProviderID, kind, session)
	defer probe.End()

	defer func() {
		if r := recover(); r != nil {
			probe.MappingFailed(fmt.Errorf("panic while mapping role attributes: %v", r))
		}
	}()

	if err := m.setClaim(ctx, input, probe); err != nil {
		probe.MappingFailed(err)
	}
}

// setClaim returns only unexpected failures; expected "no claim" outcomes are reported on the probe
func (m *RoleAttributesMapper) setClaim(ctx context.Context, input *service.MapperInput, probe service.MappingProbe) error {
	if input == nil || input.Token == nil {
		return errors.New("no token to attach claims to")
	}
	if input.UserSession == nil || input.UserSession.User == nil {
		return errors.New("no authenticated user in session")
	}

	client, source, err := host.ResolveClient(ctx, m.clients, input.Token, input.UserSession, input.ClientSessionContext)
	if errors.Is(err, host.ErrClientUnresolved) {
		probe.ClientUnresolved(err)
		return nil
	}
	if err != nil {
		return err
	}
	probe.ClientResolved(client, source)

	cfg := ParseConfig(input.Model)

	if m.roles == nil {
		return errors.New("no role source configured")
	}
	roles, err := m.roles.ClientRoles(ctx, input.UserSession.User, client)
	if err != nil {
		return fmt.Errorf("failed to load client roles of %s: %w", client.ClientID, err)
	}
	if len(roles) == 0 {
		probe.NoClientRoles(client)
		return nil
	}

	opts := roleattr.Options{
		ClaimName:              cfg.ClaimName,
		IncludeEmptyAttributes: cfg.IncludeEmptyAttributes,
		AttributeFilter:        m.attributeFilter,
		Probe:                  probe,
	}
	if m.roleFilter != nil {
		opts.RolePredicate = m.roleFilter.Bind(client, input.UserSession.User)
	}

	value := roleattr.Build(ctx, roles, m.attributes, opts)
	if len(value) == 0 {
		probe.ClaimOmitted(cfg.ClaimName)
		return nil
	}

	input.Token.SetClaim(cfg.ClaimName, value)
	probe.ClaimAttached(cfg.ClaimName, len(value))
	return nil
}
