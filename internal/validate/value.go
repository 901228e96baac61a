package validate

import "github.com/nextlevelbuilder/relaybus/internal/policy"

// Value is a tagged sum of the four wire parameter types, per spec.md
// §9 ("use a tagged sum, not dynamic typing; the validator branches on
// the tag"). pkg/protocol decodes it from JSON by the schema's declared
// type and encodes it back through Any.
type Value struct {
	Type policy.ParamType
	Str  string
	Int  int64
	Flt  float64
	Bool bool
}

func StringValue(s string) Value  { return Value{Type: policy.TypeString, Str: s} }
func IntValue(i int64) Value      { return Value{Type: policy.TypeInt, Int: i} }
func FloatValue(f float64) Value  { return Value{Type: policy.TypeFloat, Flt: f} }
func BoolValue(b bool) Value      { return Value{Type: policy.TypeBool, Bool: b} }

// Any returns the value unwrapped as an interface{}, for re-encoding
// onto the wire.
func (v Value) Any() interface{} {
	switch v.Type {
	case policy.TypeString:
		return v.Str
	case policy.TypeInt:
		return v.Int
	case policy.TypeFloat:
		return v.Flt
	case policy.TypeBool:
		return v.Bool
	default:
		return nil
	}
}

// Payload maps parameter name to its tagged value.
type Payload map[string]Value
