package service

import (
	"context"
	"slices"
	"strings"

	"github.com/project-kessel/rolemapper/internal/host"
)

// Configuration keys every protocol mapper honours
const (
	IncludeInAccessTokenKey = "access.token.claim"
	IncludeInIDTokenKey     = "id.token.claim"
	IncludeInUserInfoKey    = "userinfo.token.claim"
)

// ProtocolMapper contributes claims to tokens under construction.
// SetClaim never fails: a mapper that cannot contribute leaves the token unchanged.
type ProtocolMapper interface {
	// Descriptor describes the mapper type for registration and admin listing
	Descriptor() Descriptor

	// SetClaim attaches the mapper's claims to input.Token
	SetClaim(ctx context.Context, input *MapperInput)
}

// MapperInput contains all inputs available to a protocol mapper
type MapperInput struct {
	// Token is the token being built
	Token host.TokenSink

	// Model is the configuration of this mapper instance
	Model host.MapperModel

	// UserSession is the session the token is built for
	UserSession *host.UserSession

	// ClientSessionContext is the current client session, if the request has one
	ClientSessionContext *host.ClientSessionContext
}

// ConfigPropertyType is the type of a mapper configuration property
type ConfigPropertyType string

const (
	PropertyTypeString  ConfigPropertyType = "String"
	PropertyTypeBoolean ConfigPropertyType = "boolean"
)

// ConfigProperty describes one configuration option of a mapper type
type ConfigProperty struct {
	Name         string             `json:"name"`
	Label        string             `json:"label"`
	Type         ConfigPropertyType `json:"type"`
	DefaultValue string             `json:"defaultValue,omitempty"`
	HelpText     string             `json:"helpText,omitempty"`
}

// Descriptor describes a mapper type to the host
type Descriptor struct {
	ID          string           `json:"id"`
	DisplayType string           `json:"displayType"`
	Category    string           `json:"category"`
	HelpText    string           `json:"helpText"`
	Priority    int              `json:"priority"`
	Properties  []ConfigProperty `json:"properties"`
}

// IncludeInTokensProperties are the standard properties selecting which token kinds a mapper runs for
func IncludeInTokensProperties() []ConfigProperty {
	return []ConfigProperty{
		{
			Name:         IncludeInAccessTokenKey,
			Label:        "Add to access token",
			Type:         PropertyTypeBoolean,
			DefaultValue: "true",
			HelpText:     "Should the claim be added to the access token?",
		},
		{
			Name:         IncludeInIDTokenKey,
			Label:        "Add to ID token",
			Type:         PropertyTypeBoolean,
			DefaultValue: "true",
			HelpText:     "Should the claim be added to the ID token?",
		},
		{
			Name:         IncludeInUserInfoKey,
			Label:        "Add to userinfo",
			Type:         PropertyTypeBoolean,
			DefaultValue: "true",
			HelpText:     "Should the claim be added to the userinfo response?",
		},
	}
}

// IncludedIn reports whether a mapper instance runs for the given token kind.
// Missing keys default to true.
func IncludedIn(model host.MapperModel, kind host.TokenKind) bool {
	var key string
	switch kind {
	case host.TokenKindAccess:
		key = IncludeInAccessTokenKey
	case host.TokenKindID:
		key = IncludeInIDTokenKey
	case host.TokenKindUserInfo:
		key = IncludeInUserInfoKey
	default:
		return false
	}

	v, ok := model.Config[key]
	if !ok || strings.TrimSpace(v) == "" {
		return true
	}
	return strings.EqualFold(strings.TrimSpace(v), "true")
}

// MapperBinding pairs a mapper type with one configured instance of it
type MapperBinding struct {
	Mapper ProtocolMapper
	Model  host.MapperModel
}

// sortBindings orders bindings by descriptor priority, keeping configuration order for ties
func sortBindings(bindings []MapperBinding) []MapperBinding {
	sorted := slices.Clone(bindings)
	slices.SortStableFunc(sorted, func(a, b MapperBinding) int {
		return a.Mapper.Descriptor().Priority - b.Mapper.Descriptor().Priority
	})
	return sorted
}
