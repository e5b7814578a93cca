package modrt

import (
	"fmt"
	"strconv"

	"github.com/Shopify/go-lua"
)

// pushValue converts a Go value onto the Lua stack. Unsupported types are
// pushed as their string representation.
func pushValue(l *lua.State, v interface{}) {
	switch x := v.(type) {
	case nil:
		l.PushNil()
	case bool:
		l.PushBoolean(x)
	case int:
		l.PushNumber(float64(x))
	case int64:
		l.PushNumber(float64(x))
	case float64:
		l.PushNumber(x)
	case string:
		l.PushString(x)
	case []interface{}:
		l.CreateTable(len(x), 0)
		for i, elem := range x {
			pushValue(l, elem)
			l.RawSetInt(-2, i+1)
		}
	case map[string]interface{}:
		l.CreateTable(0, len(x))
		for key, elem := range x {
			pushValue(l, elem)
			l.SetField(-2, key)
		}
	default:
		l.PushString(fmt.Sprintf("%v", x))
	}
}

// toGoValue converts the Lua value at index to a Go value. Tables become
// map[string]interface{} with numeric keys formatted as strings.
func toGoValue(l *lua.State, index int) interface{} {
	switch l.TypeOf(index) {
	case lua.TypeBoolean:
		return l.ToBoolean(index)
	case lua.TypeNumber:
		n, _ := l.ToNumber(index)
		return n
	case lua.TypeString:
		s, _ := l.ToString(index)
		return s
	case lua.TypeTable:
		return tableToMap(l, index)
	default:
		return nil
	}
}

func tableToMap(l *lua.State, index int) map[string]interface{} {
	idx := l.AbsIndex(index)
	m := make(map[string]interface{})

	l.PushNil()
	for l.Next(idx) {
		// Key at -2, value at -1. Numeric keys are read with ToNumber so the
		// key slot is not mutated in place, which would break Next.
		var key string
		switch l.TypeOf(-2) {
		case lua.TypeString:
			key, _ = l.ToString(-2)
		case lua.TypeNumber:
			n, _ := l.ToNumber(-2)
			key = strconv.FormatFloat(n, 'g', -1, 64)
		default:
			l.Pop(1)
			continue
		}
		m[key] = toGoValue(l, -1)
		l.Pop(1)
	}
	return m
}
