package policy

import "fmt"

// schemaKey identifies one declared schema by its kind and name.
type schemaKey struct {
	Kind MsgKind
	Name string
}

// Policy is the compiled, queryable form of a policy document. It is
// immutable once built by Compile, so it may be shared freely across
// session and broker goroutines without synchronization.
type Policy struct {
	body    Body
	schemas map[schemaKey]MsgStmt
	roles   map[string]RoleStmt

	// effectiveAllow[role] is the flattened set of (kind, name) pairs the
	// role may perform, transitively closed over "extends" at compile
	// time per spec.md §9 so the validator's hot path is O(#rules) with
	// no tree walk.
	effectiveAllow map[string]map[schemaKey]bool

	// Warnings collects non-fatal compile-time diagnostics (duplicate
	// schemas, allow rules naming an undeclared schema) per spec.md
	// §3/§9: these are reported, never fatal.
	Warnings []string
}

// Schema looks up the declared schema for (kind, name). Listen messages
// are validated against Broadcast schemas (spec.md §4.2: "a listen
// subscribes to a broadcast channel"), so callers pass KindBroadcast
// when checking a Listen.
func (p *Policy) Schema(kind MsgKind, name string) (MsgStmt, bool) {
	s, ok := p.schemas[schemaKey{Kind: kind, Name: name}]
	return s, ok
}

// Authorized reports whether role (or an ancestor of role) has an allow
// rule covering (kind, name).
func (p *Policy) Authorized(role string, kind MsgKind, name string) bool {
	allowed, ok := p.effectiveAllow[role]
	if !ok {
		return false
	}
	return allowed[schemaKey{Kind: kind, Name: name}]
}

// HasRole reports whether role was declared.
func (p *Policy) HasRole(role string) bool {
	_, ok := p.roles[role]
	return ok
}

// Compile lexes, parses, and compiles policy source text into a Policy.
// Lex/parse errors are fatal *Diagnostic errors (spec.md §4.1); once
// parsing succeeds, the only fatal error is a role-inheritance cycle —
// everything else is reported as a warning (spec.md §9).
func Compile(src string) (*Policy, error) {
	tokens, err := lex(src)
	if err != nil {
		return nil, err
	}
	body, err := parseBody(tokens)
	if err != nil {
		return nil, err
	}
	return compileBody(body)
}

func compileBody(body Body) (*Policy, error) {
	p := &Policy{
		body:    body,
		schemas: make(map[schemaKey]MsgStmt),
		roles:   make(map[string]RoleStmt),
	}

	for _, stmt := range body {
		switch stmt.Kind {
		case StmtRole:
			if _, dup := p.roles[stmt.Role.Name]; dup {
				p.Warnings = append(p.Warnings, fmt.Sprintf("role %q declared more than once", stmt.Role.Name))
			}
			p.roles[stmt.Role.Name] = stmt.Role
		case StmtMsg:
			key := schemaKey{Kind: stmt.Msg.Kind, Name: stmt.Msg.Name}
			if _, dup := p.schemas[key]; dup {
				p.Warnings = append(p.Warnings, fmt.Sprintf("%s schema %q declared more than once (line %d)", stmt.Msg.Kind, stmt.Msg.Name, stmt.Msg.Line))
			}
			p.schemas[key] = stmt.Msg
		}
	}

	// Role inheritance forms a forest per spec.md §3. Detect cycles while
	// building effective-allow sets so a malformed "extends" chain can't
	// spin the closure below forever.
	for name, role := range p.roles {
		if role.Extends == "" {
			continue
		}
		if err := checkNoCycle(p.roles, name); err != nil {
			return nil, err
		}
	}

	p.effectiveAllow = make(map[string]map[schemaKey]bool, len(p.roles))
	for name := range p.roles {
		p.effectiveAllow[name] = make(map[schemaKey]bool)
	}

	for _, stmt := range body {
		if stmt.Kind != StmtAllow {
			continue
		}
		key := schemaKey{Kind: stmt.Allow.Kind, Name: stmt.Allow.Name}
		if !p.schemaExistsFor(stmt.Allow.Kind, stmt.Allow.Name) {
			p.Warnings = append(p.Warnings, fmt.Sprintf("allow rule for %s %q (line %d) has no matching schema", stmt.Allow.Kind, stmt.Allow.Name, stmt.Allow.Line))
		}
		// rolesDescendingFrom always includes stmt.Allow.Role itself, even
		// when that role was never declared with a "role" statement (an
		// author typo) — Authorized should still honor the grant rather
		// than silently discarding it.
		for _, descendant := range rolesDescendingFrom(p.roles, stmt.Allow.Role) {
			if _, ok := p.effectiveAllow[descendant]; !ok {
				p.effectiveAllow[descendant] = make(map[schemaKey]bool)
			}
			p.effectiveAllow[descendant][key] = true
		}
	}

	return p, nil
}

// schemaExistsFor reports whether a schema matching an allow rule's
// (kind, name) exists. Listen rules are checked against the Broadcast
// schema table, per spec.md §4.2.
func (p *Policy) schemaExistsFor(kind MsgKind, name string) bool {
	lookupKind := kind
	if kind == KindListen {
		lookupKind = KindBroadcast
	}
	_, ok := p.schemas[schemaKey{Kind: lookupKind, Name: name}]
	return ok
}

// rolesDescendingFrom returns base plus every role that transitively
// extends base — i.e. every role an allow-rule grant to base should
// also apply to, since a child role inherits its parent's permissions.
func rolesDescendingFrom(roles map[string]RoleStmt, base string) []string {
	result := []string{base}
	for name := range roles {
		if isDescendantOf(roles, name, base) {
			result = append(result, name)
		}
	}
	return result
}

func isDescendantOf(roles map[string]RoleStmt, name, ancestor string) bool {
	seen := map[string]bool{}
	cur := name
	for {
		role, ok := roles[cur]
		if !ok || role.Extends == "" {
			return false
		}
		if role.Extends == ancestor {
			return true
		}
		if seen[role.Extends] {
			return false // cycle guarded elsewhere; don't loop here
		}
		seen[role.Extends] = true
		cur = role.Extends
	}
}

func checkNoCycle(roles map[string]RoleStmt, start string) error {
	visited := map[string]bool{start: true}
	cur := roles[start]
	for cur.Extends != "" {
		if visited[cur.Extends] {
			return newDiagnostic(0, 0, "role inheritance cycle involving %q", cur.Extends)
		}
		visited[cur.Extends] = true
		next, ok := roles[cur.Extends]
		if !ok {
			// extends an undeclared role: not a cycle, and not fatal — the
			// role simply has no further ancestors to climb.
			return nil
		}
		cur = next
	}
	return nil
}
