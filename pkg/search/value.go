package search

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ValueType identifies the kind of a PropertyValue.
type ValueType string

const (
	TypeString  ValueType = "string"
	TypeLong    ValueType = "long"
	TypeDouble  ValueType = "double"
	TypeBoolean ValueType = "boolean"
	TypeDate    ValueType = "date"
	TypeEnum    ValueType = "enum"
	TypeArray   ValueType = "array"
)

// PropertyValue is an immutable typed value used as the operand of a leaf
// condition. Dates are held as milliseconds since the epoch.
type PropertyValue struct {
	typ      ValueType
	str      string
	long     int64
	double   float64
	boolean  bool
	elements []PropertyValue
}

func StringValue(s string) PropertyValue { return PropertyValue{typ: TypeString, str: s} }
func LongValue(n int64) PropertyValue    { return PropertyValue{typ: TypeLong, long: n} }
func DoubleValue(f float64) PropertyValue {
	return PropertyValue{typ: TypeDouble, double: f}
}
func BoolValue(b bool) PropertyValue { return PropertyValue{typ: TypeBoolean, boolean: b} }
func EnumValue(symbol string) PropertyValue {
	return PropertyValue{typ: TypeEnum, str: symbol}
}

// DateValue truncates t to millisecond precision.
func DateValue(t time.Time) PropertyValue {
	return PropertyValue{typ: TypeDate, long: t.UnixMilli()}
}

func ArrayValue(elements ...PropertyValue) PropertyValue {
	return PropertyValue{typ: TypeArray, elements: cloneValues(elements)}
}

// ValueOf converts a plain Go value into a PropertyValue.
func ValueOf(v any) (PropertyValue, error) {
	switch x := v.(type) {
	case PropertyValue:
		return x.Clone(), nil
	case string:
		return StringValue(x), nil
	case bool:
		return BoolValue(x), nil
	case int:
		return LongValue(int64(x)), nil
	case int32:
		return LongValue(int64(x)), nil
	case int64:
		return LongValue(x), nil
	case float32:
		return DoubleValue(float64(x)), nil
	case float64:
		return DoubleValue(x), nil
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return LongValue(n), nil
		}
		f, err := x.Float64()
		if err != nil {
			return PropertyValue{}, fmt.Errorf("invalid number %q: %w", x, err)
		}
		return DoubleValue(f), nil
	case time.Time:
		return DateValue(x), nil
	case []any:
		elements := make([]PropertyValue, len(x))
		for i, e := range x {
			pv, err := ValueOf(e)
			if err != nil {
				return PropertyValue{}, fmt.Errorf("element %d: %w", i, err)
			}
			elements[i] = pv
		}
		return PropertyValue{typ: TypeArray, elements: elements}, nil
	case []string:
		elements := make([]PropertyValue, len(x))
		for i, e := range x {
			elements[i] = StringValue(e)
		}
		return PropertyValue{typ: TypeArray, elements: elements}, nil
	}
	return PropertyValue{}, fmt.Errorf("unsupported value type %T", v)
}

func (v PropertyValue) Type() ValueType { return v.typ }

// Interface returns the value as a plain Go value: string, int64, float64,
// bool or []any. Dates are returned as int64 milliseconds.
func (v PropertyValue) Interface() any {
	switch v.typ {
	case TypeString, TypeEnum:
		return v.str
	case TypeLong, TypeDate:
		return v.long
	case TypeDouble:
		return v.double
	case TypeBoolean:
		return v.boolean
	case TypeArray:
		out := make([]any, len(v.elements))
		for i, e := range v.elements {
			out[i] = e.Interface()
		}
		return out
	}
	return nil
}

// Time returns the date value. It is only meaningful for TypeDate.
func (v PropertyValue) Time() time.Time {
	return time.UnixMilli(v.long).UTC()
}

// finite reports false for NaN and infinite doubles, including array elements.
func (v PropertyValue) finite() bool {
	if v.typ == TypeDouble {
		return !math.IsNaN(v.double) && !math.IsInf(v.double, 0)
	}
	for _, e := range v.elements {
		if !e.finite() {
			return false
		}
	}
	return true
}

// Elements returns a copy of the array elements.
func (v PropertyValue) Elements() []PropertyValue {
	return cloneValues(v.elements)
}

// Pattern compiles a LIKE operand. The expression must match the whole value.
func (v PropertyValue) Pattern() (*regexp.Regexp, error) {
	return regexp.Compile(AnchoredPattern(v.str))
}

// AnchoredPattern wraps a regular expression so that it matches whole values only.
func AnchoredPattern(expr string) string {
	return "^(?:" + expr + ")$"
}

func (v PropertyValue) Equal(other PropertyValue) bool {
	if v.typ != other.typ {
		return false
	}
	switch v.typ {
	case TypeString, TypeEnum:
		return v.str == other.str
	case TypeLong, TypeDate:
		return v.long == other.long
	case TypeDouble:
		return v.double == other.double
	case TypeBoolean:
		return v.boolean == other.boolean
	case TypeArray:
		if len(v.elements) != len(other.elements) {
			return false
		}
		for i := range v.elements {
			if !v.elements[i].Equal(other.elements[i]) {
				return false
			}
		}
		return true
	}
	return true
}

func (v PropertyValue) Clone() PropertyValue {
	c := v
	c.elements = cloneValues(v.elements)
	return c
}

func (v PropertyValue) String() string {
	switch v.typ {
	case TypeString:
		return strconv.Quote(v.str)
	case TypeEnum:
		return v.str
	case TypeLong:
		return strconv.FormatInt(v.long, 10)
	case TypeDouble:
		return strconv.FormatFloat(v.double, 'g', -1, 64)
	case TypeBoolean:
		return strconv.FormatBool(v.boolean)
	case TypeDate:
		return v.Time().Format(time.RFC3339Nano)
	case TypeArray:
		parts := make([]string, len(v.elements))
		for i, e := range v.elements {
			parts[i] = e.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	}
	return "<invalid>"
}

func cloneValues(values []PropertyValue) []PropertyValue {
	if values == nil {
		return nil
	}
	out := make([]PropertyValue, len(values))
	for i, v := range values {
		out[i] = v.Clone()
	}
	return out
}

type propertyValueJSON struct {
	Type     ValueType       `json:"type"`
	Value    json.RawMessage `json:"value,omitempty"`
	Elements []PropertyValue `json:"elements,omitempty"`
}

func (v PropertyValue) MarshalJSON() ([]byte, error) {
	out := propertyValueJSON{Type: v.typ}
	switch v.typ {
	case TypeArray:
		out.Elements = v.elements
		if out.Elements == nil {
			out.Elements = []PropertyValue{}
		}
		return json.Marshal(struct {
			Type     ValueType       `json:"type"`
			Elements []PropertyValue `json:"elements"`
		}{v.typ, out.Elements})
	case "":
		return nil, fmt.Errorf("cannot marshal an untyped property value")
	default:
		raw, err := json.Marshal(v.Interface())
		if err != nil {
			return nil, err
		}
		out.Value = raw
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts either the typed object form or a bare JSON scalar or
// array whose type is inferred.
func (v *PropertyValue) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var typed propertyValueJSON
		if err := json.Unmarshal(trimmed, &typed); err != nil {
			return &InvalidConditionError{Reason: "malformed property value", Err: err}
		}
		parsed, err := decodeTyped(typed)
		if err != nil {
			return err
		}
		*v = parsed
		return nil
	}
	parsed, err := decodeBare(trimmed)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

func decodeTyped(typed propertyValueJSON) (PropertyValue, error) {
	if typed.Type == "" {
		if len(typed.Elements) > 0 {
			return PropertyValue{typ: TypeArray, elements: typed.Elements}, nil
		}
		return decodeBare(typed.Value)
	}
	if typed.Type == TypeArray {
		elements := typed.Elements
		if elements == nil {
			elements = []PropertyValue{}
		}
		return PropertyValue{typ: TypeArray, elements: elements}, nil
	}
	if len(typed.Value) == 0 || string(typed.Value) == "null" {
		return PropertyValue{}, &InvalidConditionError{Reason: fmt.Sprintf("%s value is missing", typed.Type)}
	}

	dec := json.NewDecoder(bytes.NewReader(typed.Value))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return PropertyValue{}, &InvalidConditionError{Reason: "malformed property value", Err: err}
	}

	mismatch := func() error {
		return &InvalidConditionError{Reason: fmt.Sprintf("value %s is not a valid %s", string(typed.Value), typed.Type)}
	}

	switch typed.Type {
	case TypeString, TypeEnum:
		s, ok := raw.(string)
		if !ok {
			return PropertyValue{}, mismatch()
		}
		return PropertyValue{typ: typed.Type, str: s}, nil
	case TypeLong:
		n, ok := raw.(json.Number)
		if !ok {
			return PropertyValue{}, mismatch()
		}
		i, err := n.Int64()
		if err != nil {
			return PropertyValue{}, mismatch()
		}
		return LongValue(i), nil
	case TypeDouble:
		n, ok := raw.(json.Number)
		if !ok {
			return PropertyValue{}, mismatch()
		}
		f, err := n.Float64()
		if err != nil {
			return PropertyValue{}, mismatch()
		}
		return DoubleValue(f), nil
	case TypeBoolean:
		b, ok := raw.(bool)
		if !ok {
			return PropertyValue{}, mismatch()
		}
		return BoolValue(b), nil
	case TypeDate:
		switch x := raw.(type) {
		case json.Number:
			ms, err := x.Int64()
			if err != nil {
				return PropertyValue{}, mismatch()
			}
			return PropertyValue{typ: TypeDate, long: ms}, nil
		case string:
			t, err := time.Parse(time.RFC3339Nano, x)
			if err != nil {
				return PropertyValue{}, mismatch()
			}
			return DateValue(t), nil
		}
		return PropertyValue{}, mismatch()
	}
	return PropertyValue{}, &InvalidConditionError{Reason: fmt.Sprintf("unknown value type %q", typed.Type)}
}

func decodeBare(data []byte) (PropertyValue, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return PropertyValue{}, &InvalidConditionError{Reason: "malformed property value", Err: err}
	}
	if raw == nil {
		return PropertyValue{}, &InvalidConditionError{Reason: "property value must not be null"}
	}
	if _, isObject := raw.(map[string]any); isObject {
		return PropertyValue{}, &InvalidConditionError{Reason: "nested objects are not supported as property values"}
	}
	if arr, ok := raw.([]any); ok {
		elements := make([]PropertyValue, len(arr))
		for i, e := range arr {
			encoded, err := json.Marshal(e)
			if err != nil {
				return PropertyValue{}, &InvalidConditionError{Reason: "malformed property value", Err: err}
			}
			var pv PropertyValue
			if err := pv.UnmarshalJSON(encoded); err != nil {
				return PropertyValue{}, within(fmt.Sprintf("[%d]", i), err)
			}
			elements[i] = pv
		}
		return PropertyValue{typ: TypeArray, elements: elements}, nil
	}
	pv, err := ValueOf(raw)
	if err != nil {
		return PropertyValue{}, &InvalidConditionError{Reason: "unsupported property value", Err: err}
	}
	return pv, nil
}
