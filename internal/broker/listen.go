package broker

import "github.com/nextlevelbuilder/relaybus/internal/validate"

// Listen binds connID to channel so future Broadcast calls deliver to
// sink. Re-listening on an already-bound channel is idempotent — the
// sink is simply replaced, per spec.md §3's Listener invariant.
func (b *Broker) Listen(connID, channel string, sink Sink) {
	set := b.getOrCreateSubs(channel)
	set.mu.Lock()
	set.listeners[connID] = listener{connID: connID, sink: sink}
	set.mu.Unlock()
}

// Broadcast fans payload out to every listener currently bound to
// channel. The listener set is snapshotted under lock and released
// before any sink is invoked, so a slow or dead listener never blocks
// delivery to the rest (spec.md §5).
func (b *Broker) Broadcast(channel string, payload validate.Payload) {
	set := b.getOrCreateSubs(channel)
	set.mu.Lock()
	snapshot := make([]listener, 0, len(set.listeners))
	for _, l := range set.listeners {
		snapshot = append(snapshot, l)
	}
	set.mu.Unlock()

	d := Delivery{Kind: validate.Broadcast, Channel: channel, Payload: payload}
	var dead []string
	for _, l := range snapshot {
		if err := b.send(l.sink, d); err != nil {
			dead = append(dead, l.connID)
		}
	}
	if len(dead) == 0 {
		return
	}
	set.mu.Lock()
	for _, connID := range dead {
		delete(set.listeners, connID)
	}
	set.mu.Unlock()
}
