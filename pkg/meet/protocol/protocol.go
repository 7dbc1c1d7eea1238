// Package protocol defines the type-discriminated message envelope spoken on a
// meeting websocket, shared by the client SDK and the gateway.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	// Client → server message types.
	TypeRequestMeetingInfo  = "request_meeting_info"
	TypeRequestParticipants = "request_participants"
	TypeSpeech              = "speech"
	TypeChatMessage         = "chat_message"
	TypeRequestSuggestions  = "request_suggestions"

	// Server → client message types.
	TypeChat              = "chat"
	TypeMeetingInfo       = "meeting_info"
	TypeParticipantsList  = "participants_list"
	TypeParticipantJoined = "participant_joined"
	TypeParticipantLeft   = "participant_left"
	TypeSuggestions       = "suggestions"
)

type DecodeError struct {
	Code    string
	Message string
	Param   string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Param) == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Param)
}

func badRequest(message, param string) *DecodeError {
	return &DecodeError{Code: "bad_request", Message: message, Param: param}
}

// MeetingInfo is the meeting metadata object carried by meeting_info frames.
type MeetingInfo struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	Status         string `json:"status,omitempty"`
	MeetingType    string `json:"meeting_type,omitempty"`
	SourceLanguage string `json:"source_language,omitempty"`
	TargetLanguage string `json:"target_language,omitempty"`
}

// Participant is one roster entry in a participants_list frame.
type Participant struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	PreferredLanguage string `json:"preferred_language,omitempty"`
}

// Client → server frames.

type ClientRequestMeetingInfo struct {
	Type string `json:"type"`
}

type ClientRequestParticipants struct {
	Type string `json:"type"`
}

// ClientSpeech carries one transport-encoded audio segment.
type ClientSpeech struct {
	Type      string `json:"type"`
	AudioData string `json:"audio_data"`
	Language  string `json:"language"`
	Timestamp string `json:"timestamp"`
}

type ClientChatMessage struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	Language  string `json:"language"`
	Timestamp string `json:"timestamp"`
}

type ClientRequestSuggestions struct {
	Type        string `json:"type"`
	Context     string `json:"context"`
	Language    string `json:"language"`
	MeetingType string `json:"meeting_type"`
	UserRole    string `json:"user_role"`
}

// Server → client frames.

// ServerConversation is a broadcast speech or chat frame; Type distinguishes
// the two variants, the payload shape is identical.
type ServerConversation struct {
	Type             string            `json:"type"`
	ParticipantID    string            `json:"participant_id"`
	Name             string            `json:"name"`
	OriginalText     string            `json:"original_text"`
	OriginalLanguage string            `json:"original_language"`
	Translations     map[string]string `json:"translations"`
	Timestamp        string            `json:"timestamp,omitempty"`
}

type ServerMeetingInfo struct {
	Type    string      `json:"type"`
	Meeting MeetingInfo `json:"meeting"`
}

type ServerParticipantsList struct {
	Type         string        `json:"type"`
	Participants []Participant `json:"participants"`
}

type ServerParticipantJoined struct {
	Type          string `json:"type"`
	ParticipantID string `json:"participant_id"`
	Name          string `json:"name"`
}

type ServerParticipantLeft struct {
	Type          string `json:"type"`
	ParticipantID string `json:"participant_id,omitempty"`
	Name          string `json:"name"`
}

type ServerSuggestions struct {
	Type        string   `json:"type"`
	Suggestions []string `json:"suggestions"`
}

// UnknownMessage wraps a frame whose type is not part of the protocol. Both
// sides accept and drop these without failing the session.
type UnknownMessage struct {
	Type string
	Raw  json.RawMessage
}

func peekType(data []byte) (string, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return "", badRequest("invalid json frame", "")
	}
	typ := strings.TrimSpace(envelope.Type)
	if typ == "" {
		return "", badRequest("missing type", "type")
	}
	return typ, nil
}

// DecodeServerMessage decodes one server → client frame. Unknown types decode
// into UnknownMessage with a nil error.
func DecodeServerMessage(data []byte) (any, error) {
	typ, err := peekType(data)
	if err != nil {
		return nil, err
	}

	switch typ {
	case TypeSpeech, TypeChat:
		var msg ServerConversation
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid conversation frame", "")
		}
		return msg, nil
	case TypeMeetingInfo:
		var msg ServerMeetingInfo
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid meeting_info frame", "")
		}
		return msg, nil
	case TypeParticipantsList:
		var msg ServerParticipantsList
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid participants_list frame", "")
		}
		return msg, nil
	case TypeParticipantJoined:
		var msg ServerParticipantJoined
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid participant_joined frame", "")
		}
		return msg, nil
	case TypeParticipantLeft:
		var msg ServerParticipantLeft
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid participant_left frame", "")
		}
		return msg, nil
	case TypeSuggestions:
		var msg ServerSuggestions
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid suggestions frame", "")
		}
		return msg, nil
	default:
		return UnknownMessage{Type: typ, Raw: append(json.RawMessage(nil), data...)}, nil
	}
}

// DecodeClientMessage decodes and validates one client → server frame. The
// gateway drops frames that fail validation without closing the session.
func DecodeClientMessage(data []byte) (any, error) {
	typ, err := peekType(data)
	if err != nil {
		return nil, err
	}

	switch typ {
	case TypeRequestMeetingInfo:
		return ClientRequestMeetingInfo{Type: typ}, nil
	case TypeRequestParticipants:
		return ClientRequestParticipants{Type: typ}, nil
	case TypeSpeech:
		var msg ClientSpeech
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid speech frame", "")
		}
		if strings.TrimSpace(msg.AudioData) == "" {
			return nil, badRequest("speech.audio_data is required", "audio_data")
		}
		if strings.TrimSpace(msg.Language) == "" {
			msg.Language = "en-US"
		}
		return msg, nil
	case TypeChatMessage:
		var msg ClientChatMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid chat_message frame", "")
		}
		if strings.TrimSpace(msg.Message) == "" {
			return nil, badRequest("chat_message.message is required", "message")
		}
		if strings.TrimSpace(msg.Language) == "" {
			msg.Language = "en"
		}
		return msg, nil
	case TypeRequestSuggestions:
		var msg ClientRequestSuggestions
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid request_suggestions frame", "")
		}
		if strings.TrimSpace(msg.Language) == "" {
			msg.Language = "en"
		}
		if strings.TrimSpace(msg.MeetingType) == "" {
			msg.MeetingType = "interview"
		}
		if strings.TrimSpace(msg.UserRole) == "" {
			msg.UserRole = "participant"
		}
		return msg, nil
	default:
		return UnknownMessage{Type: typ, Raw: append(json.RawMessage(nil), data...)}, nil
	}
}

// BaseLanguage strips a BCP-47 region suffix ("en-US" → "en"), matching how
// translation targets are keyed.
func BaseLanguage(lang string) string {
	lang = strings.TrimSpace(lang)
	if idx := strings.Index(lang, "-"); idx > 0 {
		return lang[:idx]
	}
	return lang
}
