package lua

import (
	"encoding/json"
	"fmt"

	lua "github.com/yuin/gopher-lua"
)

// ConfigSource provides values scripts read through config.get
type ConfigSource interface {
	Get(key string) (any, bool)
}

// MapConfigSource is a ConfigSource backed by a map
type MapConfigSource struct {
	values map[string]any
}

// NewMapConfigSource creates a config source; nil is an empty source
func NewMapConfigSource(values map[string]any) *MapConfigSource {
	if values == nil {
		values = map[string]any{}
	}
	return &MapConfigSource{values: values}
}

// Get implements ConfigSource
func (m *MapConfigSource) Get(key string) (any, bool) {
	v, ok := m.values[key]
	return v, ok
}

// ConfigService exposes a ConfigSource to Lua
type ConfigService struct {
	source ConfigSource
}

// NewConfigService creates a config service
func NewConfigService(source ConfigSource) *ConfigService {
	return &ConfigService{source: source}
}

// Register adds the config module to the Lua state
// Usage in Lua:
//
//	local base = config.get("attributes_url", "https://attrs.example.com")
func (s *ConfigService) Register(L *lua.LState) {
	mod := L.NewTable()
	L.SetField(mod, "get", L.NewFunction(func(L *lua.LState) int {
		key := L.CheckString(1)
		if v, ok := s.source.Get(key); ok {
			L.Push(GoToLua(L, v))
			return 1
		}
		L.Push(L.Get(2))
		return 1
	}))
	L.SetGlobal("config", mod)
}

// JSONService provides json.encode and json.decode to Lua
type JSONService struct{}

// NewJSONService creates a JSON service
func NewJSONService() *JSONService {
	return &JSONService{}
}

// Register adds the json module to the Lua state
func (s *JSONService) Register(L *lua.LState) {
	mod := L.NewTable()
	L.SetField(mod, "encode", L.NewFunction(s.encode))
	L.SetField(mod, "decode", L.NewFunction(s.decode))
	L.SetGlobal("json", mod)
}

func (s *JSONService) encode(L *lua.LState) int {
	data, err := json.Marshal(LuaToGo(L.CheckAny(1)))
	if err != nil {
		return pushError(L, "json encode failed: %v", err)
	}
	L.Push(lua.LString(string(data)))
	return 1
}

func (s *JSONService) decode(L *lua.LState) int {
	var v any
	if err := json.Unmarshal([]byte(L.CheckString(1)), &v); err != nil {
		L.Push(lua.LNil)
		L.Push(lua.LString(fmt.Sprintf("json decode failed: %v", err)))
		return 2
	}
	L.Push(GoToLua(L, v))
	return 1
}
