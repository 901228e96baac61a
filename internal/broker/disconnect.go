package broker

// Disconnect removes every trace of connID from the broker: its
// listener bindings, its responder bindings (orphaning any in-flight
// request back onto the pending queue for the next responder), and any
// pending or in-flight requests it owns as a requester, which are
// discarded outright (spec.md §3 "Disconnect cleanup").
//
// Lock order matches every other multi-table operation in this
// package: responders, then pending, then subscriptions.
func (b *Broker) Disconnect(connID string) {
	b.dropOwnedResponders(connID)
	b.discardOwnedRequests(connID)
	b.removeOwnedListeners(connID)
}

// dropOwnedResponders clears connID's responder binding on every
// channel where it holds one, returning any unanswered in-flight
// request to the front of that channel's pending queue.
func (b *Broker) dropOwnedResponders(connID string) {
	b.respMu.Lock()
	var channels []string
	for ch, r := range b.responders {
		if r.connID == connID {
			channels = append(channels, ch)
			delete(b.responders, ch)
		}
	}
	b.respMu.Unlock()

	for _, ch := range channels {
		st := b.getOrCreatePending(ch)
		st.mu.Lock()
		if st.inFlight != nil {
			orphan := pendingRequest{connID: st.inFlight.connID, reply: st.inFlight.reply}
			st.queue = append([]pendingRequest{orphan}, st.queue...)
			st.inFlight = nil
		}
		st.mu.Unlock()
	}
}

// discardOwnedRequests drops every queued or in-flight request whose
// requester is connID, across all channels.
func (b *Broker) discardOwnedRequests(connID string) {
	b.pendMu.RLock()
	states := make(map[string]*pendingState, len(b.pending))
	for ch, st := range b.pending {
		states[ch] = st
	}
	b.pendMu.RUnlock()

	for _, st := range states {
		st.mu.Lock()
		if st.inFlight != nil && st.inFlight.connID == connID {
			st.inFlight = nil
		}
		filtered := st.queue[:0:0]
		for _, item := range st.queue {
			if item.connID != connID {
				filtered = append(filtered, item)
			}
		}
		st.queue = filtered
		st.mu.Unlock()
	}
}

// removeOwnedListeners unbinds connID from every broadcast channel it
// is listening on.
func (b *Broker) removeOwnedListeners(connID string) {
	b.subsMu.RLock()
	sets := make(map[string]*subscriptionSet, len(b.subs))
	for ch, set := range b.subs {
		sets[ch] = set
	}
	b.subsMu.RUnlock()

	for _, set := range sets {
		set.mu.Lock()
		delete(set.listeners, connID)
		set.mu.Unlock()
	}
}
