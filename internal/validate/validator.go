// Package validate is the gate between a decoded inbound message and
// the broker: it type-checks the payload against the declared schema
// and confirms the requesting role is authorized to perform that
// operation. Validate is pure and has no side effects (spec.md §4.2).
package validate

import (
	"errors"
	"fmt"

	"github.com/nextlevelbuilder/relaybus/internal/policy"
)

// Reason is the symbolic error category surfaced to the client, per
// spec.md §7's error taxonomy.
type Reason string

const (
	ReasonInvalidChannel   Reason = "InvalidChannel"
	ReasonInvalidParameter Reason = "InvalidParameter"
	ReasonUnauthorized     Reason = "Unauthorized"
)

// Error wraps a Reason with a human-readable message.
type Error struct {
	Reason  Reason
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Reason, e.Message)
}

func newError(reason Reason, format string, args ...interface{}) *Error {
	return &Error{Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// ReasonOf extracts the Reason from err, if it is (or wraps) a
// *validate.Error.
func ReasonOf(err error) (Reason, bool) {
	var verr *Error
	if errors.As(err, &verr) {
		return verr.Reason, true
	}
	return "", false
}

// Validate checks one decoded message against the compiled policy for
// the given role. Ordering follows spec.md §4.2 exactly: schema lookup,
// then payload conformance, then authorization — so a malformed payload
// is reported before a permission problem would be, letting policy
// authors debug shapes first.
func Validate(p *policy.Policy, role string, msg Message) error {
	lookupKind := msg.Kind
	if msg.Kind == Listen {
		lookupKind = Broadcast
	}

	schema, ok := p.Schema(lookupKind, msg.Channel)
	if !ok {
		return newError(ReasonInvalidChannel, "no %s schema named %q", lookupKind, msg.Channel)
	}

	if msg.Kind != Listen {
		if err := validatePayload(schema, msg.Payload); err != nil {
			return err
		}
	}

	if !p.Authorized(role, msg.Kind, msg.Channel) {
		return newError(ReasonUnauthorized, "role %q may not %s on %q", role, msg.Kind, msg.Channel)
	}

	return nil
}

// validatePayload enforces that the payload's key set equals exactly
// the schema's declared parameter names, and that each value's tag
// matches the declared type (spec.md §4.2 step 2).
func validatePayload(schema policy.MsgStmt, payload Payload) error {
	declared := make(map[string]policy.ParamType, len(schema.Params))
	for _, param := range schema.Params {
		declared[param.Name] = param.Type
	}

	for name, wantType := range declared {
		value, present := payload[name]
		if !present {
			return newError(ReasonInvalidParameter, "missing parameter %q", name)
		}
		if value.Type != wantType {
			return newError(ReasonInvalidParameter, "parameter %q: expected %s, got %s", name, wantType, value.Type)
		}
	}

	for name := range payload {
		if _, declared := declared[name]; !declared {
			return newError(ReasonInvalidParameter, "unexpected parameter %q", name)
		}
	}

	return nil
}
