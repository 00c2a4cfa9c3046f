package payload

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/spf13/cast"
)

// Map is a string-keyed map of Values that preserves insertion order.
// The zero Map is empty and ready to use. A Map is not safe for
// concurrent mutation.
type Map struct {
	keys []string
	vals map[string]Value
}

// NewMap returns an empty map.
func NewMap() *Map { return &Map{} }

// Set stores v under key. Replacing an existing key keeps its position.
func (m *Map) Set(key string, v Value) *Map {
	if m.vals == nil {
		m.vals = make(map[string]Value)
	}
	if _, ok := m.vals[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.vals[key] = v
	return m
}

// Get returns the value stored under key.
func (m *Map) Get(key string) (Value, bool) {
	if m == nil {
		return Value{}, false
	}
	v, ok := m.vals[key]
	return v, ok
}

// GetString returns the string stored under key, or "" when absent or not
// a string.
func (m *Map) GetString(key string) string {
	v, _ := m.Get(key)
	s, _ := v.AsString()
	return s
}

// Delete removes key.
func (m *Map) Delete(key string) {
	if _, ok := m.vals[key]; !ok {
		return
	}
	delete(m.vals, key)
	m.keys = slices.DeleteFunc(m.keys, func(k string) bool { return k == key })
}

// Len returns the number of entries.
func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Keys returns the keys in insertion order.
func (m *Map) Keys() []string {
	if m == nil {
		return nil
	}
	return slices.Clone(m.keys)
}

// Range calls fn for each entry in insertion order until fn returns false.
func (m *Map) Range(fn func(key string, v Value) bool) {
	if m == nil {
		return
	}
	for _, k := range m.keys {
		if !fn(k, m.vals[k]) {
			return
		}
	}
}

// Clone returns a copy of m. Nested maps are cloned as well.
func (m *Map) Clone() *Map {
	out := NewMap()
	m.Range(func(k string, v Value) bool {
		out.Set(k, cloneValue(v))
		return true
	})
	return out
}

func cloneValue(v Value) Value {
	switch v.kind {
	case KindMap:
		return Object(v.m.Clone())
	case KindList:
		items := make([]Value, len(v.list))
		for i, e := range v.list {
			items[i] = cloneValue(e)
		}
		return Value{kind: KindList, list: items}
	default:
		return v
	}
}

// Equal reports whether both maps hold equal values under the same keys in
// the same order.
func (m *Map) Equal(o *Map) bool {
	if m.Len() != o.Len() {
		return false
	}
	if m.Len() == 0 {
		return true
	}
	if !slices.Equal(m.keys, o.keys) {
		return false
	}
	for _, k := range m.keys {
		if !m.vals[k].Equal(o.vals[k]) {
			return false
		}
	}
	return true
}

// Interface converts m into a plain map[string]any.
func (m *Map) Interface() map[string]any {
	out := make(map[string]any, m.Len())
	m.Range(func(k string, v Value) bool {
		out[k] = v.Interface()
		return true
	})
	return out
}

func (m *Map) String() string {
	parts := make([]string, 0, m.Len())
	m.Range(func(k string, v Value) bool {
		parts = append(parts, k+"="+v.Text())
		return true
	})
	return "{" + strings.Join(parts, ",") + "}"
}

// FromAny converts a plain Go value into a Value. Numeric kinds are coerced
// to int64 or float64; map[string]any keys are inserted in sorted order so
// the result is deterministic.
func FromAny(v any) (Value, error) {
	switch t := v.(type) {
	case nil:
		return Null(), nil
	case Value:
		return t, nil
	case *Map:
		return Object(t), nil
	case bool:
		return Bool(t), nil
	case string:
		return String(t), nil
	case []byte:
		return String(string(t)), nil
	case float32, float64:
		f, err := cast.ToFloat64E(t)
		if err != nil {
			return Value{}, fmt.Errorf("payload: %w", err)
		}
		return Float(f), nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		i, err := cast.ToInt64E(t)
		if err != nil {
			return Value{}, fmt.Errorf("payload: %w", err)
		}
		return Int(i), nil
	case []string:
		items := make([]Value, len(t))
		for i, s := range t {
			items[i] = String(s)
		}
		return Value{kind: KindList, list: items}, nil
	case []any:
		items := make([]Value, len(t))
		for i, e := range t {
			conv, err := FromAny(e)
			if err != nil {
				return Value{}, err
			}
			items[i] = conv
		}
		return Value{kind: KindList, list: items}, nil
	case map[string]any:
		m, err := MapFrom(t)
		if err != nil {
			return Value{}, err
		}
		return Object(m), nil
	default:
		return Value{}, fmt.Errorf("payload: unsupported type %T", v)
	}
}

// MapFrom converts a plain map into a Map with keys in sorted order.
func MapFrom(src map[string]any) (*Map, error) {
	m := NewMap()
	for _, k := range slices.Sorted(maps.Keys(src)) {
		v, err := FromAny(src[k])
		if err != nil {
			return nil, fmt.Errorf("payload: key %q: %w", k, err)
		}
		m.Set(k, v)
	}
	return m, nil
}
