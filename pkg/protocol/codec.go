package protocol

import (
	"encoding/json"

	"github.com/nextlevelbuilder/relaybus/internal/policy"
	"github.com/nextlevelbuilder/relaybus/internal/validate"
)

// typeMismatch is a sentinel ParamType outside the four real arms, used
// to mark a payload value whose JSON shape didn't match what its
// declared type expected. It deliberately never equals a real
// policy.ParamType, so validate.validatePayload's type-tag comparison
// reports it as InvalidParameter rather than DecodePayload having to
// duplicate that error taxonomy.
const typeMismatch policy.ParamType = -1

// DecodePayload decodes a frame's raw JSON payload object into a
// validate.Payload, typing each field by schema's declared parameter
// types rather than by sniffing the JSON (which can't distinguish int
// from float, or tell a typo'd extra key from a real one). schema may
// be nil — e.g. the channel named an undeclared schema — in which case
// every field decodes with typeMismatch so Validate's later schema
// lookup is the one that reports InvalidChannel.
func DecodePayload(schema *policy.MsgStmt, raw json.RawMessage) (validate.Payload, error) {
	var rawFields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &rawFields); err != nil {
		return nil, err
	}

	declared := make(map[string]policy.ParamType)
	if schema != nil {
		for _, p := range schema.Params {
			declared[p.Name] = p.Type
		}
	}

	payload := make(validate.Payload, len(rawFields))
	for name, field := range rawFields {
		wantType, ok := declared[name]
		if !ok {
			payload[name] = validate.Value{Type: typeMismatch}
			continue
		}
		payload[name] = decodeTyped(wantType, field)
	}
	return payload, nil
}

// decodeTyped attempts to decode field as t. On shape mismatch it
// returns a Value tagged typeMismatch rather than an error — a wrong
// JSON shape for a declared parameter is an InvalidParameter condition,
// not a structural decode failure.
func decodeTyped(t policy.ParamType, field json.RawMessage) validate.Value {
	switch t {
	case policy.TypeString:
		var s string
		if json.Unmarshal(field, &s) == nil {
			return validate.StringValue(s)
		}
	case policy.TypeInt:
		var i int64
		if json.Unmarshal(field, &i) == nil {
			return validate.IntValue(i)
		}
	case policy.TypeFloat:
		var f float64
		if json.Unmarshal(field, &f) == nil {
			return validate.FloatValue(f)
		}
	case policy.TypeBool:
		var b bool
		if json.Unmarshal(field, &b) == nil {
			return validate.BoolValue(b)
		}
	}
	return validate.Value{Type: typeMismatch}
}
