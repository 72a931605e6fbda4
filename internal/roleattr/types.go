package roleattr

import (
	"context"
	"slices"
)

// DefaultClaimName is the claim a ClaimValue is attached under when none is configured
const DefaultClaimName = "role_attributes"

// Role is a client role assigned to a user
type Role struct {
	// ID identifies the role to the attribute source
	ID string `json:"id" yaml:"id"`

	// Name is the key the role appears under in the claim
	Name string `json:"name" yaml:"name"`
}

// Attributes is the raw attribute mapping stored on a role.
// A nil Attributes means the role has no attribute mapping at all.
type Attributes map[string][]string

// RoleAttributeSet is the filtered attribute mapping of one role as emitted in a claim
type RoleAttributeSet map[string][]string

// ClaimValue maps role names to their attribute sets.
// It is built fresh for every invocation and never shared.
type ClaimValue map[string]RoleAttributeSet

// Equal reports whether two claim values hold the same roles, attributes and value order
func (c ClaimValue) Equal(other ClaimValue) bool {
	if len(c) != len(other) {
		return false
	}
	for role, attrs := range c {
		otherAttrs, ok := other[role]
		if !ok || len(attrs) != len(otherAttrs) {
			return false
		}
		for name, values := range attrs {
			otherValues, ok := otherAttrs[name]
			if !ok || !slices.Equal(values, otherValues) {
				return false
			}
		}
	}
	return true
}

// AttributeSource resolves a role to its attribute mapping.
//
// Returns nil Attributes and nil error when the role has no attribute mapping.
// A non-nil error is a lookup failure for that role only.
type AttributeSource interface {
	RoleAttributes(ctx context.Context, role Role) (Attributes, error)
}

// AttributeSourceFunc adapts a function into an AttributeSource
type AttributeSourceFunc func(ctx context.Context, role Role) (Attributes, error)

// RoleAttributes implements AttributeSource
func (f AttributeSourceFunc) RoleAttributes(ctx context.Context, role Role) (Attributes, error) {
	return f(ctx, role)
}

// RolePredicate decides whether a role with its filtered attributes belongs in the claim
type RolePredicate interface {
	Match(ctx context.Context, role Role, attrs RoleAttributeSet) (bool, error)
}
