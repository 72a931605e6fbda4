package datasource

import (
	"context"
	"fmt"
	"strconv"
	"time"

	lua "github.com/yuin/gopher-lua"

	luaservices "github.com/project-kessel/rolemapper/internal/lua"
	"github.com/project-kessel/rolemapper/internal/roleattr"
)

// LuaAttributeSource resolves role attributes by running a Lua script.
// The script has access to http, config, and json services.
type LuaAttributeSource struct {
	script       string
	configSource luaservices.ConfigSource
	httpConfig   luaservices.HTTPServiceConfig
}

// LuaAttributeSourceConfig configures a Lua attribute source
type LuaAttributeSourceConfig struct {
	// Script is the Lua script to execute.
	// It must define a function 'attributes' taking a role table {id, name}
	// and returning a table of attribute name to value list, or nil when the
	// role has no attributes. Raising an error marks the lookup as failed.
	//
	// Example:
	//   function attributes(role)
	//     local base = config.get("attributes_url")
	//     local response, err = http.get(base .. "/roles/" .. role.id)
	//     if response == nil then error(err) end
	//     if response.status == 404 then return nil end
	//     return json.decode(response.body)
	//   end
	Script string

	// ConfigSource provides configuration values available to the script via config.get()
	// If nil, an empty MapConfigSource will be used
	ConfigSource luaservices.ConfigSource

	// HTTPConfig provides HTTP service configuration including timeout and transport.
	// If nil, default HTTP config (30s timeout) will be used
	HTTPConfig *luaservices.HTTPServiceConfig
}

// NewLuaAttributeSource validates the script and creates the source
func NewLuaAttributeSource(config LuaAttributeSourceConfig) (*LuaAttributeSource, error) {
	if config.Script == "" {
		return nil, fmt.Errorf("script is required")
	}

	if config.ConfigSource == nil {
		config.ConfigSource = luaservices.NewMapConfigSource(nil)
	}

	L := lua.NewState()
	defer L.Close()

	if err := L.DoString(config.Script); err != nil {
		return nil, fmt.Errorf("failed to load script: %w", err)
	}

	if L.GetGlobal("attributes").Type() != lua.LTFunction {
		return nil, fmt.Errorf("script must define an 'attributes' function")
	}

	httpConfig := luaservices.HTTPServiceConfig{Timeout: 30 * time.Second}
	if config.HTTPConfig != nil {
		httpConfig = *config.HTTPConfig
	}

	return &LuaAttributeSource{
		script:       config.Script,
		configSource: config.ConfigSource,
		httpConfig:   httpConfig,
	}, nil
}

// RoleAttributes implements roleattr.AttributeSource
func (s *LuaAttributeSource) RoleAttributes(ctx context.Context, role roleattr.Role) (roleattr.Attributes, error) {
	L := lua.NewState()
	defer L.Close()
	L.SetContext(ctx)

	luaservices.NewHTTPServiceWithConfig(s.httpConfig).WithContext(ctx).Register(L)
	luaservices.NewConfigService(s.configSource).Register(L)
	luaservices.NewJSONService().Register(L)

	if err := L.DoString(s.script); err != nil {
		return nil, fmt.Errorf("failed to load script: %w", err)
	}

	roleTbl := L.NewTable()
	L.SetField(roleTbl, "id", lua.LString(role.ID))
	L.SetField(roleTbl, "name", lua.LString(role.Name))

	if err := L.CallByParam(lua.P{
		Fn:      L.GetGlobal("attributes"),
		NRet:    1,
		Protect: true,
	}, roleTbl); err != nil {
		return nil, fmt.Errorf("script execution failed for role %s: %w", role.Name, err)
	}

	ret := L.Get(-1)
	L.Pop(1)

	switch v := ret.(type) {
	case *lua.LNilType:
		return nil, nil
	case *lua.LTable:
		return tableToAttributes(v)
	default:
		return nil, fmt.Errorf("attributes function must return a table or nil, got %s", ret.Type())
	}
}

// tableToAttributes converts {name = {"v1", "v2"}} into attributes.
// A scalar value is taken as a single-element list.
func tableToAttributes(tbl *lua.LTable) (roleattr.Attributes, error) {
	attrs := make(roleattr.Attributes)
	var convErr error

	tbl.ForEach(func(k, v lua.LValue) {
		if convErr != nil {
			return
		}
		if k.Type() != lua.LTString {
			convErr = fmt.Errorf("attribute names must be strings, got %s", k.Type())
			return
		}
		values, err := valuesOf(v)
		if err != nil {
			convErr = fmt.Errorf("attribute %s: %w", k.String(), err)
			return
		}
		attrs[k.String()] = values
	})

	if convErr != nil {
		return nil, convErr
	}
	return attrs, nil
}

func valuesOf(v lua.LValue) ([]string, error) {
	switch val := v.(type) {
	case lua.LString:
		return []string{string(val)}, nil
	case lua.LNumber, lua.LBool:
		return []string{scalarString(val)}, nil
	case *lua.LTable:
		values := make([]string, 0, val.Len())
		var err error
		val.ForEach(func(idx, item lua.LValue) {
			if err != nil {
				return
			}
			if idx.Type() != lua.LTNumber {
				err = fmt.Errorf("values must be a list")
				return
			}
			switch item.(type) {
			case lua.LString, lua.LNumber, lua.LBool:
				values = append(values, scalarString(item))
			default:
				err = fmt.Errorf("values must be scalars, got %s", item.Type())
			}
		})
		if err != nil {
			return nil, err
		}
		return values, nil
	default:
		return nil, fmt.Errorf("unsupported value type %s", v.Type())
	}
}

func scalarString(v lua.LValue) string {
	switch val := v.(type) {
	case lua.LNumber:
		f := float64(val)
		if f == float64(int64(f)) {
			return strconv.FormatInt(int64(f), 10)
		}
		return strconv.FormatFloat(f, 'f', -1, 64)
	case lua.LBool:
		return strconv.FormatBool(bool(val))
	default:
		return lua.LVAsString(v)
	}
}
