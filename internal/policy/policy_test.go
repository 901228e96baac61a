package policy

import (
	"strings"
	"testing"
)

func TestCompileEmptyBody(t *testing.T) {
	p, err := Compile("")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if len(p.body) != 0 {
		t.Fatalf("expected empty body, got %d statements", len(p.body))
	}
}

func TestCompileRoleNoExtends(t *testing.T) {
	p, err := Compile("role user")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if !p.HasRole("user") {
		t.Fatal("expected role user to be declared")
	}
}

func TestCompileZeroParamSchema(t *testing.T) {
	p, err := Compile("request ping {}")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	schema, ok := p.Schema(KindRequest, "ping")
	if !ok {
		t.Fatal("expected ping request schema")
	}
	if len(schema.Params) != 0 {
		t.Fatalf("expected zero params, got %d", len(schema.Params))
	}
}

func TestCompileFullPolicy(t *testing.T) {
	src := `
role user
broadcast tick { n: int }
allow user broadcast tick
allow user listen tick
`
	p, err := Compile(src)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if !p.Authorized("user", KindBroadcast, "tick") {
		t.Error("expected user authorized for broadcast tick")
	}
	if !p.Authorized("user", KindListen, "tick") {
		t.Error("expected user authorized for listen tick")
	}
	if p.Authorized("user", KindRequest, "tick") {
		t.Error("did not expect user authorized for request tick")
	}
}

func TestRoleInheritanceTransitive(t *testing.T) {
	src := `
role a
role b extends a
role c extends b
broadcast x {}
allow a broadcast x
`
	p, err := Compile(src)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	for _, role := range []string{"a", "b", "c"} {
		if !p.Authorized(role, KindBroadcast, "x") {
			t.Errorf("expected role %q to inherit broadcast x", role)
		}
	}
}

func TestRoleInheritanceCycleRejected(t *testing.T) {
	src := `
role a extends b
role b extends a
`
	if _, err := Compile(src); err == nil {
		t.Fatal("expected cycle detection to fail compilation")
	}
}

func TestDuplicateSchemaWarnsNotFails(t *testing.T) {
	src := `
broadcast tick { n: int }
broadcast tick { m: string }
`
	p, err := Compile(src)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if len(p.Warnings) == 0 {
		t.Fatal("expected a duplicate-schema warning")
	}
}

func TestAllowRuleWithoutSchemaWarns(t *testing.T) {
	src := `allow user broadcast nonexistent`
	p, err := Compile(src)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	found := false
	for _, w := range p.Warnings {
		if strings.Contains(w, "nonexistent") {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a warning about the unmatched allow rule")
	}
}

func TestFilterExpressionParsedButInert(t *testing.T) {
	src := `allow user request ping when some-condition`
	p, err := Compile(src)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if !p.Authorized("user", KindRequest, "ping") {
		t.Fatal("expected authorization to succeed regardless of filter")
	}
}

func TestLexUnexpectedCharacter(t *testing.T) {
	_, err := Compile("role user$")
	if err == nil {
		t.Fatal("expected lex error for unexpected character")
	}
}

func TestParseTruncatedConstruct(t *testing.T) {
	_, err := Compile("broadcast tick { n:")
	if err == nil {
		t.Fatal("expected parse error for truncated schema")
	}
}

func TestParseDuplicateParamName(t *testing.T) {
	_, err := Compile("broadcast tick { n: int n: string }")
	if err == nil {
		t.Fatal("expected parse error for duplicate parameter name")
	}
}
