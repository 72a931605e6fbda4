package cel

import (
	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
)

// RoleLibrary declares the variables available to role predicate expressions:
//   - role: {id, name, attributes}
//   - client: {id, client_id}
//   - user: {id, username}
//
// It also provides attr(role, name) which returns the first value of an
// attribute or the empty string.
func RoleLibrary() cel.EnvOption {
	return cel.Lib(&roleLib{})
}

type roleLib struct{}

func (lib *roleLib) CompileOptions() []cel.EnvOption {
	return []cel.EnvOption{
		cel.Variable("role", cel.DynType),
		cel.Variable("client", cel.DynType),
		cel.Variable("user", cel.DynType),
		cel.Function("attr",
			cel.Overload("attr_dyn_string",
				[]*cel.Type{cel.DynType, cel.StringType},
				cel.StringType,
				cel.BinaryBinding(firstAttributeValue),
			),
		),
	}
}

func (lib *roleLib) ProgramOptions() []cel.ProgramOption {
	return []cel.ProgramOption{}
}

// firstAttributeValue implements the attr() CEL function
func firstAttributeValue(roleVal ref.Val, nameVal ref.Val) ref.Val {
	name, ok := nameVal.Value().(string)
	if !ok {
		return types.NewErr("attr name must be a string")
	}

	role, ok := roleVal.Value().(map[string]any)
	if !ok {
		return types.String("")
	}

	attrs, ok := role["attributes"].(map[string]any)
	if !ok {
		return types.String("")
	}

	values, ok := attrs[name].([]string)
	if !ok || len(values) == 0 {
		return types.String("")
	}
	return types.String(values[0])
}
