package meet

import (
	"github.com/linguameet/meet-lite/pkg/meet/protocol"
)

// SessionEvent is one decoded inbound frame, dispatched in delivery order.
// Exactly one inbound message yields exactly one event.
type SessionEvent interface {
	sessionEventType() string
}

// ConversationEvent is a broadcast speech or chat message.
type ConversationEvent struct {
	Message protocol.ServerConversation
}

func (e ConversationEvent) sessionEventType() string { return e.Message.Type }

// MeetingInfoEvent carries meeting metadata.
type MeetingInfoEvent struct {
	Meeting protocol.MeetingInfo
}

func (e MeetingInfoEvent) sessionEventType() string { return protocol.TypeMeetingInfo }

// ParticipantsListEvent is the full-roster sync response.
type ParticipantsListEvent struct {
	Participants []protocol.Participant
}

func (e ParticipantsListEvent) sessionEventType() string { return protocol.TypeParticipantsList }

type ParticipantJoinedEvent struct {
	ParticipantID string
	Name          string
}

func (e ParticipantJoinedEvent) sessionEventType() string { return protocol.TypeParticipantJoined }

type ParticipantLeftEvent struct {
	Name string
}

func (e ParticipantLeftEvent) sessionEventType() string { return protocol.TypeParticipantLeft }

// SuggestionsEvent replaces the current candidate reply list.
type SuggestionsEvent struct {
	Suggestions []string
}

func (e SuggestionsEvent) sessionEventType() string { return protocol.TypeSuggestions }

// DisconnectedEvent is emitted once, after the last protocol event, when the
// read loop exits. Err is nil for a deliberate, normal close.
type DisconnectedEvent struct {
	Code   int
	Reason string
	Err    error
}

func (e DisconnectedEvent) sessionEventType() string { return "disconnected" }
