package broker

import (
	"sync"
	"testing"

	"github.com/nextlevelbuilder/relaybus/internal/validate"
)

func recordingSink(out *[]Delivery, mu *sync.Mutex) Sink {
	return func(d Delivery) error {
		mu.Lock()
		*out = append(*out, d)
		mu.Unlock()
		return nil
	}
}

func TestBroadcastFansOutToAllListeners(t *testing.T) {
	b := New(nil)
	var mu sync.Mutex
	var c1, c2 []Delivery
	b.Listen("c1", "tick", recordingSink(&c1, &mu))
	b.Listen("c2", "tick", recordingSink(&c2, &mu))

	b.Broadcast("tick", validate.Payload{"n": validate.IntValue(1)})

	if len(c1) != 1 || len(c2) != 1 {
		t.Fatalf("expected both listeners to receive one delivery, got %d and %d", len(c1), len(c2))
	}
	if c1[0].Kind != validate.Broadcast || c1[0].Channel != "tick" {
		t.Fatalf("unexpected delivery: %+v", c1[0])
	}
}

func TestBroadcastNoListenersIsNoop(t *testing.T) {
	b := New(nil)
	b.Broadcast("silence", validate.Payload{})
}

func TestListenIsIdempotentPerConnection(t *testing.T) {
	b := New(nil)
	var mu sync.Mutex
	var first, second []Delivery
	b.Listen("c1", "tick", recordingSink(&first, &mu))
	b.Listen("c1", "tick", recordingSink(&second, &mu))

	b.Broadcast("tick", validate.Payload{})

	if len(first) != 0 {
		t.Fatalf("expected the replaced sink to receive nothing, got %d", len(first))
	}
	if len(second) != 1 {
		t.Fatalf("expected the latest sink to receive the broadcast, got %d", len(second))
	}
}

func TestRequestEnqueuedWithoutResponder(t *testing.T) {
	b := New(nil)
	var mu sync.Mutex
	var replies []Delivery
	b.Request("requester", "ping", validate.Payload{}, recordingSink(&replies, &mu))

	stats := statsFor(b, "ping")
	if stats.QueuedRequests != 1 || stats.InFlightRequest {
		t.Fatalf("expected one queued request and none in flight, got %+v", stats)
	}
	if len(replies) != 0 {
		t.Fatalf("requester should not have been answered yet")
	}
}

func TestRespondDrainsQueuedRequestAndRoundTrips(t *testing.T) {
	b := New(nil)
	var mu sync.Mutex
	var requesterReplies []Delivery
	var responderDeliveries []Delivery

	b.Request("requester", "ping", validate.Payload{}, recordingSink(&requesterReplies, &mu))
	b.Respond("responder", "ping", recordingSink(&responderDeliveries, &mu))

	if len(responderDeliveries) != 1 || responderDeliveries[0].Kind != validate.Request {
		t.Fatalf("expected the queued request to be forwarded to the new responder, got %+v", responderDeliveries)
	}

	b.Answer("responder", "ping", validate.Payload{"ok": validate.BoolValue(true)})

	if len(requesterReplies) != 1 {
		t.Fatalf("expected exactly one reply to the requester, got %d", len(requesterReplies))
	}
	if requesterReplies[0].Kind != validate.Response {
		t.Fatalf("expected a Response delivery, got %+v", requesterReplies[0])
	}
	got := requesterReplies[0].Payload["ok"]
	if got.Type != validate.BoolValue(true).Type || got.Bool != true {
		t.Fatalf("unexpected reply payload: %+v", got)
	}
}

func TestRequestDispatchedImmediatelyWhenResponderIdle(t *testing.T) {
	b := New(nil)
	var mu sync.Mutex
	var responderDeliveries, requesterReplies []Delivery
	b.Respond("responder", "ping", recordingSink(&responderDeliveries, &mu))
	b.Request("requester", "ping", validate.Payload{}, recordingSink(&requesterReplies, &mu))

	if len(responderDeliveries) != 1 {
		t.Fatalf("expected immediate dispatch to the idle responder, got %d deliveries", len(responderDeliveries))
	}
	stats := statsFor(b, "ping")
	if !stats.InFlightRequest || stats.QueuedRequests != 0 {
		t.Fatalf("expected one in-flight request and an empty queue, got %+v", stats)
	}
}

func TestRequestQueuesBehindBusyResponder(t *testing.T) {
	b := New(nil)
	var mu sync.Mutex
	var responderDeliveries, r1, r2 []Delivery
	b.Respond("responder", "ping", recordingSink(&responderDeliveries, &mu))
	b.Request("r1", "ping", validate.Payload{}, recordingSink(&r1, &mu))
	b.Request("r2", "ping", validate.Payload{}, recordingSink(&r2, &mu))

	if len(responderDeliveries) != 1 {
		t.Fatalf("expected only the first request dispatched while the responder is busy, got %d", len(responderDeliveries))
	}
	stats := statsFor(b, "ping")
	if stats.QueuedRequests != 1 {
		t.Fatalf("expected the second request to be queued, got %+v", stats)
	}

	b.Answer("responder", "ping", validate.Payload{})
	if len(r1) != 1 || len(r2) != 0 {
		t.Fatalf("expected only r1 answered so far")
	}
	if len(responderDeliveries) != 2 {
		t.Fatalf("expected the queued request to be dispatched after the first is answered, got %d", len(responderDeliveries))
	}

	b.Answer("responder", "ping", validate.Payload{})
	if len(r2) != 1 {
		t.Fatalf("expected r2 to be answered after the second round-trip")
	}
}

func TestResponderReplacementOrphansInFlightToFrontOfQueue(t *testing.T) {
	b := New(nil)
	var mu sync.Mutex
	var oldResponder, newResponder, requesterReplies []Delivery
	b.Respond("old", "ping", recordingSink(&oldResponder, &mu))
	b.Request("requester", "ping", validate.Payload{}, recordingSink(&requesterReplies, &mu))
	if len(oldResponder) != 1 {
		t.Fatalf("setup: expected old responder to receive the request")
	}

	// old never answers; a new responder registers instead.
	b.Respond("new", "ping", recordingSink(&newResponder, &mu))

	if len(newResponder) != 1 {
		t.Fatalf("expected the orphaned in-flight request to be redelivered to the new responder, got %d", len(newResponder))
	}

	b.Answer("new", "ping", validate.Payload{"ok": validate.BoolValue(true)})
	if len(requesterReplies) != 1 {
		t.Fatalf("expected the original requester to still be answered by the replacement responder")
	}

	// the old responder's answer is now stale and must be ignored.
	b.Answer("old", "ping", validate.Payload{"ok": validate.BoolValue(false)})
	if len(requesterReplies) != 1 {
		t.Fatalf("expected the stale responder's answer to be dropped, got %d replies", len(requesterReplies))
	}
}

func TestDisconnectRemovesListenerBinding(t *testing.T) {
	b := New(nil)
	var mu sync.Mutex
	var deliveries []Delivery
	b.Listen("c1", "tick", recordingSink(&deliveries, &mu))
	b.Disconnect("c1")
	b.Broadcast("tick", validate.Payload{})
	if len(deliveries) != 0 {
		t.Fatalf("expected no delivery after disconnect, got %d", len(deliveries))
	}
}

func TestDisconnectDiscardsOwnedQueuedRequest(t *testing.T) {
	b := New(nil)
	var mu sync.Mutex
	var replies []Delivery
	b.Request("requester", "ping", validate.Payload{}, recordingSink(&replies, &mu))
	b.Disconnect("requester")

	stats := statsFor(b, "ping")
	if stats.QueuedRequests != 0 {
		t.Fatalf("expected the owned pending request to be discarded, got %+v", stats)
	}
}

func TestDisconnectOrphansInFlightRequestForNextResponder(t *testing.T) {
	b := New(nil)
	var mu sync.Mutex
	var responderDeliveries, replies []Delivery
	b.Respond("responder", "ping", recordingSink(&responderDeliveries, &mu))
	b.Request("requester", "ping", validate.Payload{}, recordingSink(&replies, &mu))

	b.Disconnect("responder")

	stats := statsFor(b, "ping")
	if stats.HasResponder {
		t.Fatalf("expected responder binding to be cleared")
	}
	if stats.QueuedRequests != 1 || stats.InFlightRequest {
		t.Fatalf("expected the in-flight request to be orphaned back onto the queue, got %+v", stats)
	}

	var next []Delivery
	b.Respond("next-responder", "ping", recordingSink(&next, &mu))
	if len(next) != 1 {
		t.Fatalf("expected the orphaned request to be forwarded to the next responder")
	}
}

func TestDisconnectClearsOwnershipOfInFlightRequest(t *testing.T) {
	b := New(nil)
	var mu sync.Mutex
	var responderDeliveries, replies []Delivery
	b.Respond("responder", "ping", recordingSink(&responderDeliveries, &mu))
	b.Request("requester", "ping", validate.Payload{}, recordingSink(&replies, &mu))

	b.Disconnect("requester")

	// the responder answers anyway; since nothing owns the in-flight slot
	// anymore the answer must be silently dropped, not delivered to a
	// vanished connection's sink.
	b.Answer("responder", "ping", validate.Payload{})
	if len(replies) != 0 {
		t.Fatalf("expected no delivery to the disconnected requester, got %d", len(replies))
	}
}

func TestDisconnectIsCompleteAcrossAllTables(t *testing.T) {
	b := New(nil)
	var mu sync.Mutex
	var a, discard []Delivery
	b.Listen("c1", "tick", recordingSink(&a, &mu))
	b.Respond("c1", "ping", recordingSink(&a, &mu))
	b.Request("c1", "other", validate.Payload{}, recordingSink(&discard, &mu))

	b.Disconnect("c1")

	for _, ch := range []string{"tick", "ping", "other"} {
		s := statsFor(b, ch)
		if s.Listeners != 0 || s.HasResponder || s.QueuedRequests != 0 || s.InFlightRequest {
			t.Fatalf("expected connection to be fully absent from channel %q after disconnect, got %+v", ch, s)
		}
	}
}

func TestConcurrentBroadcastAndListenDoesNotRace(t *testing.T) {
	b := New(nil)
	var wg sync.WaitGroup
	var mu sync.Mutex
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			var out []Delivery
			b.Listen(string(rune('a'+i%26)), "tick", recordingSink(&out, &mu))
		}(i)
		go func() {
			defer wg.Done()
			b.Broadcast("tick", validate.Payload{})
		}()
	}
	wg.Wait()
}

func statsFor(b *Broker, channel string) ChannelStats {
	for _, s := range b.Stats() {
		if s.Channel == channel {
			return s
		}
	}
	return ChannelStats{Channel: channel}
}
