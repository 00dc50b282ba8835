package graph

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// ValueKind discriminates the primitive kinds a property value may hold
type ValueKind int

const (
	KindString ValueKind = iota
	KindNumber
	KindBool
)

// Value is a typed property value. The remote store only accepts primitive
// property types (string, number, boolean), so the union is closed: anything
// else must be coerced before it reaches a Node or Edge.
type Value struct {
	kind ValueKind
	str  string
	num  float64
	b    bool
}

// String wraps a string property value
func String(s string) Value {
	return Value{kind: KindString, str: s}
}

// Number wraps a numeric property value
func Number(f float64) Value {
	return Value{kind: KindNumber, num: f}
}

// Bool wraps a boolean property value
func Bool(b bool) Value {
	return Value{kind: KindBool, b: b}
}

// Kind returns the kind of the value
func (v Value) Kind() ValueKind {
	return v.kind
}

// AsString returns the string form of the value
func (v Value) AsString() string {
	switch v.kind {
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	default:
		return v.str
	}
}

// Native returns the value as the driver-level primitive
func (v Value) Native() interface{} {
	switch v.kind {
	case KindNumber:
		return v.num
	case KindBool:
		return v.b
	default:
		return v.str
	}
}

// FromNative converts a decoded JSON / driver value into a Value.
// Returns false for non-primitive input.
func FromNative(raw interface{}) (Value, bool) {
	switch t := raw.(type) {
	case string:
		return String(t), true
	case float64:
		return Number(t), true
	case float32:
		return Number(float64(t)), true
	case int:
		return Number(float64(t)), true
	case int64:
		return Number(float64(t)), true
	case bool:
		return Bool(t), true
	default:
		return Value{}, false
	}
}

// Coerce converts any value into a Value, flattening non-primitives to
// their JSON encoding. Used when sanitizing extraction output.
func Coerce(raw interface{}) Value {
	if v, ok := FromNative(raw); ok {
		return v
	}
	if raw == nil {
		return String("")
	}
	if encoded, err := json.Marshal(raw); err == nil {
		return String(string(encoded))
	}
	return String(fmt.Sprintf("%v", raw))
}

// MarshalJSON implements json.Marshaler
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Native())
}

// UnmarshalJSON implements json.Unmarshaler
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, ok := FromNative(raw)
	if !ok {
		return fmt.Errorf("property value must be a string, number or boolean, got %T", raw)
	}
	*v = parsed
	return nil
}

// Properties is a string-keyed map of primitive values
type Properties map[string]Value

// Native converts the map into driver-level primitives
func (p Properties) Native() map[string]interface{} {
	out := make(map[string]interface{}, len(p))
	for k, v := range p {
		out[k] = v.Native()
	}
	return out
}

// Clone returns a shallow copy
func (p Properties) Clone() Properties {
	out := make(Properties, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Merge applies other on top of p, key by key. Last write wins per
// property; keys absent from other are left untouched, so metadata
// recorded earlier (e.g. cause/effect annotations) survives a later
// partial occurrence of the same node.
func (p Properties) Merge(other Properties) {
	for k, v := range other {
		p[k] = v
	}
}
