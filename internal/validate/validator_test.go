package validate

import (
	"testing"

	"github.com/nextlevelbuilder/relaybus/internal/policy"
)

const tickPolicy = `
role user
broadcast tick { n: int }
allow user broadcast tick
allow user listen tick
`

func mustCompile(t *testing.T, src string) *policy.Policy {
	t.Helper()
	p, err := policy.Compile(src)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	return p
}

func TestValidateExactSchemaMatchOK(t *testing.T) {
	p := mustCompile(t, tickPolicy)
	msg := Message{Kind: Broadcast, Channel: "tick", Payload: Payload{"n": IntValue(1)}}
	if err := Validate(p, "user", msg); err != nil {
		t.Fatalf("expected Ok, got %v", err)
	}
}

func TestValidateListenNoPayloadRequired(t *testing.T) {
	p := mustCompile(t, tickPolicy)
	msg := Message{Kind: Listen, Channel: "tick"}
	if err := Validate(p, "user", msg); err != nil {
		t.Fatalf("expected Ok, got %v", err)
	}
}

func TestValidateUnknownChannel(t *testing.T) {
	p := mustCompile(t, tickPolicy)
	msg := Message{Kind: Broadcast, Channel: "nope", Payload: Payload{}}
	err := Validate(p, "user", msg)
	assertReason(t, err, ReasonInvalidChannel)
}

func TestValidateMissingParameter(t *testing.T) {
	p := mustCompile(t, tickPolicy)
	msg := Message{Kind: Broadcast, Channel: "tick", Payload: Payload{}}
	err := Validate(p, "user", msg)
	assertReason(t, err, ReasonInvalidParameter)
}

func TestValidateExtraParameter(t *testing.T) {
	p := mustCompile(t, tickPolicy)
	msg := Message{Kind: Broadcast, Channel: "tick", Payload: Payload{"n": IntValue(1), "extra": StringValue("x")}}
	err := Validate(p, "user", msg)
	assertReason(t, err, ReasonInvalidParameter)
}

func TestValidateWrongParameterType(t *testing.T) {
	p := mustCompile(t, tickPolicy)
	msg := Message{Kind: Broadcast, Channel: "tick", Payload: Payload{"n": StringValue("hello")}}
	err := Validate(p, "user", msg)
	assertReason(t, err, ReasonInvalidParameter)
}

func TestValidateUnauthorizedRole(t *testing.T) {
	// only allow listen, not broadcast
	p := mustCompile(t, `
role user
broadcast tick { n: int }
allow user listen tick
`)
	msg := Message{Kind: Broadcast, Channel: "tick", Payload: Payload{"n": IntValue(1)}}
	err := Validate(p, "user", msg)
	assertReason(t, err, ReasonUnauthorized)
}

func TestValidateSchemaErrorMasksPermissionError(t *testing.T) {
	// role has no allow rule at all, AND the payload is malformed — the
	// schema-shape error must win, per spec.md §4.2's ordering rationale.
	p := mustCompile(t, `
broadcast tick { n: int }
`)
	msg := Message{Kind: Broadcast, Channel: "tick", Payload: Payload{"n": StringValue("bad")}}
	err := Validate(p, "nobody", msg)
	assertReason(t, err, ReasonInvalidParameter)
}

func TestValidateRoleInheritance(t *testing.T) {
	p := mustCompile(t, `
role a
role b extends a
broadcast x {}
allow a broadcast x
`)
	msg := Message{Kind: Broadcast, Channel: "x", Payload: Payload{}}
	if err := Validate(p, "b", msg); err != nil {
		t.Fatalf("expected inherited role to be authorized, got %v", err)
	}
}

func TestValidateRequestResponseRoundTrip(t *testing.T) {
	p := mustCompile(t, `
role u
request ping {}
response ping { ok: bool }
allow u request ping
allow u response ping
`)
	req := Message{Kind: Request, Channel: "ping", Payload: Payload{}}
	if err := Validate(p, "u", req); err != nil {
		t.Fatalf("request validate: %v", err)
	}
	resp := Message{Kind: Response, Channel: "ping", Payload: Payload{"ok": BoolValue(true)}}
	if err := Validate(p, "u", resp); err != nil {
		t.Fatalf("response validate: %v", err)
	}
}

func assertReason(t *testing.T, err error, want Reason) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error with reason %s, got nil", want)
	}
	got, ok := ReasonOf(err)
	if !ok {
		t.Fatalf("expected a validate.Error, got %T: %v", err, err)
	}
	if got != want {
		t.Fatalf("expected reason %s, got %s", want, got)
	}
}
