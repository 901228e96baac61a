// Package policy compiles the relaybus policy DSL (roles, message
// schemas, allow rules) into an in-memory model the validator consults
// on every inbound message.
package policy

// MsgKind identifies which of the four interaction patterns a schema or
// allow rule governs.
type MsgKind int

const (
	KindBroadcast MsgKind = iota
	KindListen
	KindRequest
	KindResponse
)

func (k MsgKind) String() string {
	switch k {
	case KindBroadcast:
		return "broadcast"
	case KindListen:
		return "listen"
	case KindRequest:
		return "request"
	case KindResponse:
		return "response"
	default:
		return "unknown"
	}
}

// ParamType is one of the four wire value types a schema parameter may
// declare.
type ParamType int

const (
	TypeString ParamType = iota
	TypeInt
	TypeFloat
	TypeBool
)

func (t ParamType) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeInt:
		return "int"
	case TypeFloat:
		return "float"
	case TypeBool:
		return "bool"
	default:
		return "unknown"
	}
}

func parseParamType(s string) (ParamType, bool) {
	switch s {
	case "string":
		return TypeString, true
	case "int":
		return TypeInt, true
	case "float":
		return TypeFloat, true
	case "bool":
		return TypeBool, true
	default:
		return 0, false
	}
}

// Param is one (name, type) pair in a message schema.
type Param struct {
	Name string
	Type ParamType
}

// RoleStmt declares a role, optionally extending a parent role.
type RoleStmt struct {
	Name    string
	Extends string // empty if no parent
}

// MsgStmt declares a broadcast/request/response schema.
type MsgStmt struct {
	Kind   MsgKind // KindBroadcast, KindRequest, or KindResponse (never KindListen)
	Name   string
	Params []Param
	Line   int
}

// AllowStmt grants a role permission to perform one (kind, name)
// operation, with an optional (currently inert) filter expression.
type AllowStmt struct {
	Role   string
	Kind   MsgKind
	Name   string
	Filter string // empty if no "when" clause
	Line   int
}

// StmtKind discriminates the Statement union.
type StmtKind int

const (
	StmtRole StmtKind = iota
	StmtMsg
	StmtAllow
)

// Statement is one top-level policy statement.
type Statement struct {
	Kind  StmtKind
	Role  RoleStmt
	Msg   MsgStmt
	Allow AllowStmt
}

// Body is the ordered sequence of statements produced by the parser.
type Body []Statement
