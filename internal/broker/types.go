// Package broker implements the concurrent routing engine: subscription
// tables for broadcasts and a rendezvous queue for requests awaiting
// responders, per spec.md §3–§5. The broker never holds a table lock
// across an I/O send — sinks are snapshotted under lock, then invoked
// after release, so one slow peer can't stall delivery to others.
package broker

import "github.com/nextlevelbuilder/relaybus/internal/validate"

// Sink is the outbound half of a connection, used by the broker to push
// a frame toward that client. A non-nil error means delivery failed
// (the client's reply channel is gone); the broker treats this as
// non-fatal, logs it, and prunes the listener/responder that owns the
// sink — spec.md §4.3 "Failure semantics".
type Sink func(Delivery) error

// Delivery is one broker-originated outbound message: a broadcast
// fanned out to a listener, a request forwarded to a responder, or a
// response forwarded back to the original requester.
type Delivery struct {
	Kind    validate.Kind
	Channel string
	Payload validate.Payload
}

type listener struct {
	connID string
	sink   Sink
}

type responder struct {
	connID string
	sink   Sink
}

// pendingRequest is a request held in a channel's FIFO queue because no
// responder was bound at enqueue time.
type pendingRequest struct {
	connID  string
	payload validate.Payload
	reply   Sink
}

// inFlightRequest is the single request currently dispatched to a
// channel's responder, awaiting its Response frame. The wire envelope
// carries no correlation id (spec.md §6), so relaybus serializes
// request/response traffic per channel: at most one request is
// outstanding to a responder at a time. See DESIGN.md for the
// rationale — this is the network-faithful reading of an operation the
// spec originally modeled as a synchronous callback.
type inFlightRequest struct {
	connID string
	reply  Sink
}
