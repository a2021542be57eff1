package state

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Value is a sealed interface over the scalar state types.
// Only String, Bool and Number implement it.
type Value interface {
	stateValue()
	String() string
}

// String is a text value. Its default is the empty string.
type String string

func (String) stateValue() {}

// String returns the raw text.
func (s String) String() string { return string(s) }

// Bool is a boolean value. Its default is false.
type Bool bool

func (Bool) stateValue() {}

// String returns "true" or "false".
func (b Bool) String() string { return strconv.FormatBool(bool(b)) }

// Number is a float64 value. Its default is 0.
// Execution timestamps are stored as Number (unix seconds).
type Number float64

func (Number) stateValue() {}

// String formats the number in its shortest round-tripping form.
func (n Number) String() string {
	return strconv.FormatFloat(float64(n), 'g', -1, 64)
}

// Default returns the zero value of the same variant as v.
// A nil Value defaults to String("").
func Default(v Value) Value {
	switch v.(type) {
	case Bool:
		return Bool(false)
	case Number:
		return Number(0)
	default:
		return String("")
	}
}

// AsBool coerces v to a boolean.
// Strings are true when non-empty, numbers when non-zero.
func AsBool(v Value) bool {
	switch val := v.(type) {
	case String:
		return val != ""
	case Bool:
		return bool(val)
	case Number:
		return val != 0
	default:
		return false
	}
}

// AsNumber coerces v to a float64.
// Strings are parsed best-effort and yield 0 when unparsable.
func AsNumber(v Value) float64 {
	switch val := v.(type) {
	case String:
		f, err := strconv.ParseFloat(string(val), 64)
		if err != nil {
			return 0
		}
		return f
	case Bool:
		if val {
			return 1
		}
		return 0
	case Number:
		return float64(val)
	default:
		return 0
	}
}

// Equal reports whether a and b hold the same variant and the same value.
func Equal(a, b Value) bool {
	switch av := a.(type) {
	case String:
		bv, ok := b.(String)
		return ok && av == bv
	case Bool:
		bv, ok := b.(Bool)
		return ok && av == bv
	case Number:
		bv, ok := b.(Number)
		return ok && av == bv
	default:
		return a == nil && b == nil
	}
}

// Kind names the variant of v ("string", "bool" or "number").
func Kind(v Value) string {
	switch v.(type) {
	case String:
		return "string"
	case Bool:
		return "bool"
	case Number:
		return "number"
	default:
		return "invalid"
	}
}

// FromAny converts a decoded scalar (JSON, YAML or CUE) into a Value.
// Every Go numeric kind becomes Number. Anything else is an error.
func FromAny(v any) (Value, error) {
	switch val := v.(type) {
	case Value:
		return val, nil
	case string:
		return String(val), nil
	case bool:
		return Bool(val), nil
	case float64:
		return Number(val), nil
	case float32:
		return Number(val), nil
	case int:
		return Number(val), nil
	case int8:
		return Number(val), nil
	case int16:
		return Number(val), nil
	case int32:
		return Number(val), nil
	case int64:
		return Number(val), nil
	case uint:
		return Number(val), nil
	case uint8:
		return Number(val), nil
	case uint16:
		return Number(val), nil
	case uint32:
		return Number(val), nil
	case uint64:
		return Number(val), nil
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid number %q: %w", val.String(), err)
		}
		return Number(f), nil
	default:
		return nil, fmt.Errorf("unsupported state value type %T", v)
	}
}

// ToAny returns the plain Go value behind v, for encoders.
func ToAny(v Value) any {
	switch val := v.(type) {
	case String:
		return string(val)
	case Bool:
		return bool(val)
	case Number:
		f := float64(val)
		if math.IsInf(f, 0) || math.IsNaN(f) {
			return val.String()
		}
		return f
	default:
		return nil
	}
}

// DecodeJSON decodes a single JSON scalar into a Value.
// Objects, arrays and null are rejected.
func DecodeJSON(data []byte) (Value, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty JSON value")
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, err
		}
		return String(s), nil
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return nil, err
		}
		return Bool(b), nil
	case '{', '[', 'n':
		return nil, fmt.Errorf("unsupported JSON value %s: only string, number and bool are allowed", truncate(data))
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return nil, err
		}
		return FromAny(n)
	}
}

func truncate(data []byte) string {
	const max = 32
	if len(data) <= max {
		return string(data)
	}
	return string(data[:max]) + "..."
}
