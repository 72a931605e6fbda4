package lua

import (
	lua "github.com/yuin/gopher-lua"
)

// GoToLua converts JSON-shaped Go values to Lua values.
// Unsupported types become nil.
func GoToLua(L *lua.LState, value any) lua.LValue {
	switch v := value.(type) {
	case nil:
		return lua.LNil
	case string:
		return lua.LString(v)
	case bool:
		return lua.LBool(v)
	case int:
		return lua.LNumber(v)
	case int64:
		return lua.LNumber(v)
	case float64:
		return lua.LNumber(v)
	case []string:
		tbl := L.NewTable()
		for _, item := range v {
			tbl.Append(lua.LString(item))
		}
		return tbl
	case []any:
		tbl := L.NewTable()
		for _, item := range v {
			tbl.Append(GoToLua(L, item))
		}
		return tbl
	case map[string][]string:
		tbl := L.NewTable()
		for key, item := range v {
			tbl.RawSetString(key, GoToLua(L, item))
		}
		return tbl
	case map[string]any:
		tbl := L.NewTable()
		for key, item := range v {
			tbl.RawSetString(key, GoToLua(L, item))
		}
		return tbl
	default:
		return lua.LNil
	}
}

// LuaToGo converts a Lua value to a Go value.
// Tables with only consecutive integer keys from 1 become slices, other tables maps.
func LuaToGo(value lua.LValue) any {
	switch v := value.(type) {
	case *lua.LNilType:
		return nil
	case lua.LBool:
		return bool(v)
	case lua.LString:
		return string(v)
	case lua.LNumber:
		f := float64(v)
		if f == float64(int64(f)) {
			return int64(f)
		}
		return f
	case *lua.LTable:
		if n := v.MaxN(); n > 0 && isSequence(v, n) {
			out := make([]any, 0, n)
			for i := 1; i <= n; i++ {
				out = append(out, LuaToGo(v.RawGetInt(i)))
			}
			return out
		}
		out := make(map[string]any)
		v.ForEach(func(k, item lua.LValue) {
			if k.Type() == lua.LTString {
				out[k.String()] = LuaToGo(item)
			}
		})
		return out
	default:
		return nil
	}
}

func isSequence(tbl *lua.LTable, n int) bool {
	count := 0
	tbl.ForEach(func(lua.LValue, lua.LValue) { count++ })
	return count == n
}
