// Package session binds one connection's role and identity to the
// broker, gating every inbound frame through the validator before it
// reaches routing. A Session owns no I/O itself — it is driven by
// whatever transport decodes frames (internal/gateway) and supplies a
// Sink for outbound delivery (spec.md §4.4).
package session

import (
	"context"
	"log/slog"

	"github.com/nextlevelbuilder/relaybus/internal/broker"
	"github.com/nextlevelbuilder/relaybus/internal/policy"
	"github.com/nextlevelbuilder/relaybus/internal/telemetry"
	"github.com/nextlevelbuilder/relaybus/internal/validate"
)

// Session is the per-connection state spec.md §3 calls Session: a
// stable connection id and the role it authenticated with, both fixed
// for the connection's lifetime.
type Session struct {
	ConnID string
	Role   string

	policy *policy.Policy
	broker *broker.Broker
	sink   broker.Sink
	logger *slog.Logger
	tracer *telemetry.Provider
}

// New constructs a Session for one connection. sink is invoked by the
// broker whenever this connection should receive a broadcast, a
// forwarded request (when it is a responder), or a response (when it
// is a requester). tracer may be nil, in which case spans are skipped.
func New(connID, role string, p *policy.Policy, b *broker.Broker, sink broker.Sink, logger *slog.Logger, tracer *telemetry.Provider) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		ConnID: connID,
		Role:   role,
		policy: p,
		broker: b,
		sink:   sink,
		logger: logger,
		tracer: tracer,
	}
}

// HandleFrame validates msg against the session's role and, if
// authorized, routes it through the broker. The returned error, when
// non-nil, is a *validate.Error the caller should translate into an
// error frame sent back to this connection — it is never fatal to the
// connection itself.
func (s *Session) HandleFrame(ctx context.Context, msg validate.Message) error {
	_, endValidate := s.tracer.StartSpan(ctx, "relaybus.validate", msg.Channel, s.Role)
	err := validate.Validate(s.policy, s.Role, msg)
	endValidate(err)
	if err != nil {
		s.logger.Warn("session: rejected frame", "conn", s.ConnID, "role", s.Role,
			"kind", msg.Kind, "channel", msg.Channel, "error", err)
		return err
	}

	switch msg.Kind {
	case validate.Listen:
		_, end := s.tracer.StartSpan(ctx, "relaybus.broker.listen", msg.Channel, s.Role)
		s.broker.Listen(s.ConnID, msg.Channel, s.sink)
		end(nil)
	case validate.Broadcast:
		_, end := s.tracer.StartSpan(ctx, "relaybus.broker.broadcast", msg.Channel, s.Role)
		s.broker.Broadcast(msg.Channel, msg.Payload)
		end(nil)
	case validate.Request:
		_, end := s.tracer.StartSpan(ctx, "relaybus.broker.request", msg.Channel, s.Role)
		s.broker.Request(s.ConnID, msg.Channel, msg.Payload, s.sink)
		end(nil)
	case validate.Response:
		// A Response frame plays two roles at once: it stands up this
		// connection as the channel's responder (a no-op if it already
		// is one) and, if a request is currently in flight to it,
		// settles that request with this payload.
		_, end := s.tracer.StartSpan(ctx, "relaybus.broker.respond", msg.Channel, s.Role)
		s.broker.Respond(s.ConnID, msg.Channel, s.sink)
		s.broker.Answer(s.ConnID, msg.Channel, msg.Payload)
		end(nil)
	}
	return nil
}

// Close tears the session down, removing it from every broker table.
// Safe to call exactly once, when the underlying connection closes
// (spec.md §3 "Disconnect cleanup").
func (s *Session) Close() {
	s.broker.Disconnect(s.ConnID)
}
