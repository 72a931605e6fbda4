package mapper

import (
	"strings"

	"github.com/project-kessel/rolemapper/internal/host"
	"github.com/project-kessel/rolemapper/internal/roleattr"
	"github.com/project-kessel/rolemapper/internal/service"
)

// Configuration property names stored on the mapper model
const (
	ClaimNameProperty              = "claim.name"
	IncludeEmptyAttributesProperty = "include.empty.attributes"
)

// Config is the parsed configuration of one mapper instance.
// It is rebuilt from the model on every invocation.
type Config struct {
	ClaimName              string
	IncludeEmptyAttributes bool
}

// ParseConfig reads the mapper configuration from the model.
//
// The claim name is trimmed and falls back to the default when blank.
// Empty attributes are included only when the flag is "true", ignoring case.
func ParseConfig(model host.MapperModel) Config {
	cfg := Config{ClaimName: roleattr.DefaultClaimName}

	if name := strings.TrimSpace(model.Config[ClaimNameProperty]); name != "" {
		cfg.ClaimName = name
	}

	cfg.IncludeEmptyAttributes = strings.EqualFold(model.Config[IncludeEmptyAttributesProperty], "true")
	return cfg
}

// configProperties lists the options shown when configuring this mapper
func configProperties() []service.ConfigProperty {
	props := []service.ConfigProperty{
		{
			Name:         ClaimNameProperty,
			Label:        "Claim Name",
			Type:         service.PropertyTypeString,
			DefaultValue: roleattr.DefaultClaimName,
			HelpText:     "Name of the token claim the role attributes are added under.",
		},
		{
			Name:         IncludeEmptyAttributesProperty,
			Label:        "Include Empty Attributes",
			Type:         service.PropertyTypeBoolean,
			DefaultValue: "false",
			HelpText:     "Also include roles without attributes and attributes without values.",
		},
	}
	return append(props, service.IncludeInTokensProperties()...)
}
