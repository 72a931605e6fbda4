package mapper

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"

	celhelpers "github.com/project-kessel/rolemapper/internal/cel"
	"github.com/project-kessel/rolemapper/internal/host"
	"github.com/project-kessel/rolemapper/internal/roleattr"
)

// CELRoleFilter decides per role, using a CEL expression, whether the role
// belongs in the claim.
//
// The expression has access to:
//   - role - {id, name, attributes}, attributes being the filtered attribute lists
//   - client - {id, client_id}
//   - user - {id, username}
//   - attr(role, name) - first value of an attribute, or ""
//
// The expression must evaluate to a bool.
//
// Example CEL expressions:
//
//	// Only application roles
//	role.name.startsWith("app-")
//
//	// Roles tagged for this client
//	attr(role, "audience") == client.client_id
//
//	// Roles carrying a department
//	"department" in role.attributes
type CELRoleFilter struct {
	script  string
	program cel.Program
}

// NewCELRoleFilter compiles a role filter expression
func NewCELRoleFilter(script string) (*CELRoleFilter, error) {
	if script == "" {
		return nil, fmt.Errorf("CEL script cannot be empty")
	}

	env, err := cel.NewEnv(celhelpers.RoleLibrary())
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	ast, issues := env.Compile(script)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile CEL script: %w", issues.Err())
	}

	if !ast.OutputType().IsExactType(cel.BoolType) && !ast.OutputType().IsExactType(cel.DynType) {
		return nil, fmt.Errorf("CEL role filter must evaluate to a bool, got %s", ast.OutputType())
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}

	return &CELRoleFilter{
		script:  script,
		program: program,
	}, nil
}

// Script returns the CEL script used by this filter
func (f *CELRoleFilter) Script() string {
	return f.script
}

// Bind returns a predicate evaluating the filter for one client and user
func (f *CELRoleFilter) Bind(client *host.Client, user *host.User) roleattr.RolePredicate {
	return &boundRoleFilter{filter: f, client: client, user: user}
}

type boundRoleFilter struct {
	filter *CELRoleFilter
	client *host.Client
	user   *host.User
}

// Match implements roleattr.RolePredicate
func (b *boundRoleFilter) Match(ctx context.Context, role roleattr.Role, attrs roleattr.RoleAttributeSet) (bool, error) {
	attributes := make(map[string]any, len(attrs))
	for name, values := range attrs {
		attributes[name] = values
	}

	activation := map[string]any{
		"role": map[string]any{
			"id":         role.ID,
			"name":       role.Name,
			"attributes": attributes,
		},
		"client": clientToMap(b.client),
		"user":   userToMap(b.user),
	}

	result, _, err := b.filter.program.ContextEval(ctx, activation)
	if err != nil {
		return false, fmt.Errorf("failed to evaluate CEL expression: %w", err)
	}

	matched, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("CEL role filter must evaluate to a bool, got: %T", result.Value())
	}
	return matched, nil
}

func clientToMap(client *host.Client) map[string]any {
	if client == nil {
		return map[string]any{}
	}
	return map[string]any{
		"id":        client.ID,
		"client_id": client.ClientID,
	}
}

func userToMap(user *host.User) map[string]any {
	if user == nil {
		return map[string]any{}
	}
	return map[string]any{
		"id":       user.ID,
		"username": user.Username,
	}
}
