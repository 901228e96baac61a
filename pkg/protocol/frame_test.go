package protocol

import (
	"testing"

	"github.com/nextlevelbuilder/relaybus/internal/policy"
	"github.com/nextlevelbuilder/relaybus/internal/validate"
)

func mustCompile(t *testing.T, src string) *policy.Policy {
	t.Helper()
	p, err := policy.Compile(src)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	return p
}

const tickPolicy = `
role user
broadcast tick { n: int }
allow user broadcast tick
allow user listen tick
`

func TestDecodeMessageBroadcastTypesIntCorrectly(t *testing.T) {
	p := mustCompile(t, tickPolicy)
	raw := []byte(`{"type":"broadcast","channel":"tick","payload":{"n":42}}`)
	msg, err := DecodeMessage(raw, p)
	if err != nil {
		t.Fatalf("DecodeMessage: %v", err)
	}
	if msg.Kind != validate.Broadcast || msg.Channel != "tick" {
		t.Fatalf("unexpected message: %+v", msg)
	}
	n := msg.Payload["n"]
	if n.Type != policy.TypeInt || n.Int != 42 {
		t.Fatalf("expected n to decode as int 42, got %+v", n)
	}
}

func TestDecodeMessageListenHasNoPayload(t *testing.T) {
	p := mustCompile(t, tickPolicy)
	raw := []byte(`{"type":"listen","channel":"tick"}`)
	msg, err := DecodeMessage(raw, p)
	if err != nil {
		t.Fatalf("DecodeMessage: %v", err)
	}
	if msg.Kind != validate.Listen || msg.Payload != nil {
		t.Fatalf("expected a payload-less listen message, got %+v", msg)
	}
}

func TestDecodeMessageMalformedJSONIsDecodeError(t *testing.T) {
	p := mustCompile(t, tickPolicy)
	_, err := DecodeMessage([]byte(`{not json`), p)
	if err == nil {
		t.Fatalf("expected a decode error")
	}
}

func TestDecodeMessageUnknownTypeIsDecodeError(t *testing.T) {
	p := mustCompile(t, tickPolicy)
	_, err := DecodeMessage([]byte(`{"type":"connect","channel":"tick"}`), p)
	if err == nil {
		t.Fatalf("expected a decode error for an unrecognized frame type")
	}
}

func TestDecodeMessageWrongShapeYieldsTypeMismatchNotError(t *testing.T) {
	p := mustCompile(t, tickPolicy)
	raw := []byte(`{"type":"broadcast","channel":"tick","payload":{"n":"not-a-number"}}`)
	msg, err := DecodeMessage(raw, p)
	if err != nil {
		t.Fatalf("shape mismatches should decode, not error: %v", err)
	}
	if err := validate.Validate(p, "user", msg); err == nil {
		t.Fatalf("expected downstream Validate to reject the mismatched payload")
	} else if reason, _ := validate.ReasonOf(err); reason != validate.ReasonInvalidParameter {
		t.Fatalf("expected InvalidParameter, got %v", reason)
	}
}

func TestEncodeDeliveryRoundTrips(t *testing.T) {
	p := mustCompile(t, tickPolicy)
	raw, err := EncodeDelivery(validate.Broadcast, "tick", validate.Payload{"n": validate.IntValue(7)})
	if err != nil {
		t.Fatalf("EncodeDelivery: %v", err)
	}
	msg, err := DecodeMessage(raw, p)
	if err != nil {
		t.Fatalf("round-trip decode: %v", err)
	}
	if msg.Payload["n"].Int != 7 {
		t.Fatalf("expected round-tripped n=7, got %+v", msg.Payload["n"])
	}
}
