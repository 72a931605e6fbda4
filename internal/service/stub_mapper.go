package service

import (
	"context"

	"github.com/project-kessel/rolemapper/internal/claims"
)

// StubMapper is a protocol mapper that attaches fixed claims, for testing
type StubMapper struct {
	descriptor Descriptor
	claims     claims.Claims
}

// NewStubMapper creates a new stub mapper
func NewStubMapper(id string, priority int, c claims.Claims) *StubMapper {
	return &StubMapper{
		descriptor: Descriptor{ID: id, DisplayType: "Stub", Priority: priority},
		claims:     c,
	}
}

// Descriptor implements ProtocolMapper
func (s *StubMapper) Descriptor() Descriptor {
	return s.descriptor
}

// SetClaim implements ProtocolMapper
func (s *StubMapper) SetClaim(ctx context.Context, input *MapperInput) {
	for name, value := range s.claims {
		input.Token.SetClaim(name, value)
	}
}

// UsernameMapper adds the session user's username as preferred_username
type UsernameMapper struct{}

// NewUsernameMapper creates a mapper that adds preferred_username
func NewUsernameMapper() *UsernameMapper {
	return &UsernameMapper{}
}

// Descriptor implements ProtocolMapper
func (u *UsernameMapper) Descriptor() Descriptor {
	return Descriptor{
		ID:          "oidc-usermodel-username-mapper",
		DisplayType: "Username",
		Category:    "Token mapper",
		HelpText:    "Adds the username as the preferred_username claim.",
		Priority:    10,
		Properties:  IncludeInTokensProperties(),
	}
}

// SetClaim implements ProtocolMapper
func (u *UsernameMapper) SetClaim(ctx context.Context, input *MapperInput) {
	if input.UserSession == nil || input.UserSession.User == nil {
		return
	}
	if input.UserSession.User.Username != "" {
		input.Token.SetClaim("preferred_username", input.UserSession.User.Username)
	}
}
