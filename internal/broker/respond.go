package broker

import "github.com/nextlevelbuilder/relaybus/internal/validate"

// Respond installs connID as the responder for channel, replacing any
// prior binding without notifying it (spec.md §3, §9: "replacement is
// legal"). If the replaced responder had an unanswered in-flight
// request, it is returned to the front of the pending queue so the new
// responder serves it first — the same orphan-recovery path Disconnect
// uses (spec.md §4.3 "drain pending-request queue").
//
// After installing, Respond attempts to dispatch the oldest queued
// request to the new sink.
func (b *Broker) Respond(connID, channel string, sink Sink) {
	b.respMu.Lock()
	prev := b.responders[channel]
	b.responders[channel] = &responder{connID: connID, sink: sink}
	b.respMu.Unlock()

	replaced := prev != nil && prev.connID != connID
	if prev != nil && prev.connID == connID {
		// Same connection re-registering (the common case: a Response
		// frame both confirms the binding and, via a separate Answer
		// call, settles whatever is in flight) — leave pending state
		// untouched rather than orphaning the very request this
		// connection is about to answer.
		return
	}

	st := b.getOrCreatePending(channel)
	st.mu.Lock()
	if replaced && st.inFlight != nil {
		orphan := pendingRequest{connID: st.inFlight.connID, reply: st.inFlight.reply}
		st.queue = append([]pendingRequest{orphan}, st.queue...)
		st.inFlight = nil
	}
	b.dispatchNextLocked(channel, st, connID, sink)
	st.mu.Unlock()
}

// Request delivers payload to channel's responder if one is bound and
// idle, or enqueues it FIFO otherwise. reply is invoked later, exactly
// once, when a matching Response arrives via Answer (spec.md §4.3).
func (b *Broker) Request(connID, channel string, payload validate.Payload, reply Sink) {
	b.respMu.RLock()
	r := b.responders[channel]
	b.respMu.RUnlock()

	st := b.getOrCreatePending(channel)
	st.mu.Lock()
	defer st.mu.Unlock()

	if r != nil && st.inFlight == nil {
		d := Delivery{Kind: validate.Request, Channel: channel, Payload: payload}
		if err := b.send(r.sink, d); err != nil {
			b.dropResponder(channel, r.connID)
			st.queue = append(st.queue, pendingRequest{connID: connID, payload: payload, reply: reply})
			return
		}
		st.inFlight = &inFlightRequest{connID: connID, reply: reply}
		return
	}
	st.queue = append(st.queue, pendingRequest{connID: connID, payload: payload, reply: reply})
}

// Answer is called when connID — which must be the channel's current
// responder — sends a Response frame. It completes the in-flight
// request by delivering payload to the original requester's reply
// sink, then dispatches the next queued request, if any.
//
// If connID is not the bound responder for channel, or nothing is
// in-flight, the response is spurious and is dropped.
func (b *Broker) Answer(connID, channel string, payload validate.Payload) {
	b.respMu.RLock()
	r := b.responders[channel]
	b.respMu.RUnlock()
	if r == nil || r.connID != connID {
		return
	}

	st := b.getOrCreatePending(channel)
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.inFlight == nil {
		return
	}
	inFlight := st.inFlight
	st.inFlight = nil

	d := Delivery{Kind: validate.Response, Channel: channel, Payload: payload}
	b.send(inFlight.reply, d)

	b.dispatchNextLocked(channel, st, r.connID, r.sink)
}

// dispatchNextLocked pops the oldest queued request, if any, and
// dispatches it to sink (owned by responder responderID), setting it as
// the new in-flight request. Must be called with st.mu held and
// st.inFlight == nil.
func (b *Broker) dispatchNextLocked(channel string, st *pendingState, responderID string, sink Sink) {
	if st.inFlight != nil || len(st.queue) == 0 {
		return
	}
	next := st.queue[0]
	st.queue = st.queue[1:]
	d := Delivery{Kind: validate.Request, Channel: channel, Payload: next.payload}
	if err := b.send(sink, d); err != nil {
		b.dropResponder(channel, responderID)
		st.queue = append([]pendingRequest{next}, st.queue...)
		return
	}
	st.inFlight = &inFlightRequest{connID: next.connID, reply: next.reply}
}

// dropResponder removes the responder bound to channel if it still
// matches connID — used when a send to it fails.
func (b *Broker) dropResponder(channel, connID string) {
	b.respMu.Lock()
	defer b.respMu.Unlock()
	if r, ok := b.responders[channel]; ok && r.connID == connID {
		delete(b.responders, channel)
	}
}
