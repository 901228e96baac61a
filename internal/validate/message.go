package validate

import "github.com/nextlevelbuilder/relaybus/internal/policy"

// Kind mirrors policy.MsgKind but exists at the message level since a
// decoded wire frame carries exactly this tag (request|response|
// broadcast|listen) regardless of what the policy declares.
type Kind = policy.MsgKind

const (
	Broadcast = policy.KindBroadcast
	Listen    = policy.KindListen
	Request   = policy.KindRequest
	Response  = policy.KindResponse
)

// Message is one decoded inbound frame, per spec.md §4.2: all four
// kinds carry a channel; Request/Response/Broadcast additionally carry
// a payload, Listen carries none.
type Message struct {
	Kind    Kind
	Channel string
	Payload Payload // nil for Listen
}
