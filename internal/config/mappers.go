package config

import (
	"fmt"

	"github.com/project-kessel/rolemapper/internal/claims"
	"github.com/project-kessel/rolemapper/internal/host"
	"github.com/project-kessel/rolemapper/internal/mapper"
	"github.com/project-kessel/rolemapper/internal/roleattr"
	"github.com/project-kessel/rolemapper/internal/service"
)

// usernameMapperType is the provider id of the username mapper
const usernameMapperType = "oidc-usermodel-username-mapper"

// MapperDeps are the host ports and observer shared by configured mappers
type MapperDeps struct {
	Roles      host.RoleSource
	Clients    host.ClientLookup
	Attributes roleattr.AttributeSource
	Observer   service.MapperObserver
}

// NewMapperBindings creates one binding per configured mapper instance.
// With no mappers configured a default role attributes mapper is bound.
func NewMapperBindings(cfgs []MapperConfig, deps MapperDeps) ([]service.MapperBinding, error) {
	if len(cfgs) == 0 {
		cfgs = []MapperConfig{{Name: "client role attributes", Type: mapper.ProviderID}}
	}

	bindings := make([]service.MapperBinding, 0, len(cfgs))
	names := make(map[string]bool, len(cfgs))
	for i, cfg := range cfgs {
		name := cfg.Name
		if name == "" {
			name = fmt.Sprintf("%s-%d", cfg.Type, i)
		}
		if names[name] {
			return nil, fmt.Errorf("duplicate mapper name: %s", name)
		}
		names[name] = true

		m, err := newMapper(cfg, deps)
		if err != nil {
			return nil, fmt.Errorf("mapper %s: %w", name, err)
		}

		bindings = append(bindings, service.MapperBinding{
			Mapper: m,
			Model:  host.MapperModel{Name: name, Config: cfg.Config},
		})
	}
	return bindings, nil
}

func newMapper(cfg MapperConfig, deps MapperDeps) (service.ProtocolMapper, error) {
	switch cfg.Type {
	case mapper.ProviderID, "":
		var roleFilter *mapper.CELRoleFilter
		if cfg.RoleFilter != "" {
			f, err := mapper.NewCELRoleFilter(cfg.RoleFilter)
			if err != nil {
				return nil, fmt.Errorf("invalid role filter: %w", err)
			}
			roleFilter = f
		}

		return mapper.NewRoleAttributesMapper(mapper.RoleAttributesMapperConfig{
			Roles:           deps.Roles,
			Attributes:      deps.Attributes,
			Clients:         deps.Clients,
			AttributeFilter: newAttributeFilter(cfg.AttributeFilter),
			RoleFilter:      roleFilter,
			Observer:        deps.Observer,
		}), nil
	case usernameMapperType:
		return service.NewUsernameMapper(), nil
	default:
		return nil, fmt.Errorf("unknown mapper type: %s (supported: %s, %s)", cfg.Type, mapper.ProviderID, usernameMapperType)
	}
}

func newAttributeFilter(cfg *AttributeFilterConfig) claims.NameFilter {
	switch {
	case cfg == nil:
		return nil
	case len(cfg.Allow) > 0:
		return claims.NewAllowListFilter(cfg.Allow)
	case len(cfg.Deny) > 0:
		return claims.NewDenyListFilter(cfg.Deny)
	default:
		return nil
	}
}
