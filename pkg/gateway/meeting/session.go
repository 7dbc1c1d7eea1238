package meeting

import (
	"context"
	"encoding/base64"
	"log/slog"
	"time"

	"github.com/linguameet/meet-lite/pkg/gateway/ai"
	"github.com/linguameet/meet-lite/pkg/meet/protocol"
)

// SessionConfig wires one participant session to the shared services.
type SessionConfig struct {
	Hub       *Hub
	Directory Directory
	AI        ai.Services
	Logger    *slog.Logger

	// SuggestionContextLimit caps how much stored history seeds a
	// suggestion request that carries no context.
	SuggestionContextLimit int
}

// Session handles the meeting protocol for one connected participant:
// bootstrap requests, speech segments, chat and suggestion requests.
// Invalid frames are dropped without closing the connection.
type Session struct {
	cfg       SessionConfig
	client    *Client
	meetingID string
	logger    *slog.Logger
}

func NewSession(cfg SessionConfig, client *Client, meetingID string) *Session {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SuggestionContextLimit <= 0 {
		cfg.SuggestionContextLimit = 5
	}
	return &Session{
		cfg:       cfg,
		client:    client,
		meetingID: meetingID,
		logger:    logger.With("meeting", meetingID, "participant", client.ParticipantName),
	}
}

// Join registers the participant in the room and announces the arrival to
// everyone, including a participant rejoining from a second tab.
func (s *Session) Join(ctx context.Context) error {
	id, err := s.cfg.Directory.RecordJoin(ctx, s.meetingID, s.client.ParticipantName, s.client.PreferredLanguage)
	if err != nil {
		return err
	}
	s.client.ParticipantID = id
	s.cfg.Hub.Join(s.meetingID, s.client)

	return s.cfg.Hub.Broadcast(ctx, s.meetingID, protocol.ServerParticipantJoined{
		Type:          protocol.TypeParticipantJoined,
		ParticipantID: id,
		Name:          s.client.ParticipantName,
	})
}

// Leave removes the connection from the room and announces the departure.
// The participant stays in the directory; departure is an event, not a
// roster deletion.
func (s *Session) Leave(ctx context.Context) {
	s.cfg.Hub.Leave(s.meetingID, s.client)
	if err := s.cfg.Hub.Broadcast(ctx, s.meetingID, protocol.ServerParticipantLeft{
		Type: protocol.TypeParticipantLeft,
		Name: s.client.ParticipantName,
	}); err != nil {
		s.logger.Warn("announce departure failed", "error", err)
	}
}

// HandleFrame processes one inbound frame.
func (s *Session) HandleFrame(ctx context.Context, data []byte) {
	decoded, err := protocol.DecodeClientMessage(data)
	if err != nil {
		s.logger.Warn("dropping invalid frame", "error", err)
		return
	}

	switch msg := decoded.(type) {
	case protocol.ClientRequestMeetingInfo:
		s.handleMeetingInfo(ctx)
	case protocol.ClientRequestParticipants:
		s.handleParticipants(ctx)
	case protocol.ClientSpeech:
		s.handleSpeech(ctx, msg)
	case protocol.ClientChatMessage:
		s.handleChat(ctx, msg)
	case protocol.ClientRequestSuggestions:
		s.handleSuggestions(ctx, msg)
	case protocol.UnknownMessage:
		s.logger.Debug("dropping unrecognized frame", "type", msg.Type)
	}
}

func (s *Session) handleMeetingInfo(ctx context.Context) {
	info, err := s.cfg.Directory.Meeting(ctx, s.meetingID)
	if err != nil {
		s.logger.Warn("load meeting failed", "error", err)
		return
	}
	s.client.SendJSON(protocol.ServerMeetingInfo{
		Type:    protocol.TypeMeetingInfo,
		Meeting: info,
	})
}

func (s *Session) handleParticipants(ctx context.Context) {
	participants, err := s.cfg.Directory.Participants(ctx, s.meetingID)
	if err != nil {
		s.logger.Warn("list participants failed", "error", err)
		return
	}
	s.client.SendJSON(protocol.ServerParticipantsList{
		Type:         protocol.TypeParticipantsList,
		Participants: participants,
	})
}

func (s *Session) handleSpeech(ctx context.Context, msg protocol.ClientSpeech) {
	wav, err := base64.StdEncoding.DecodeString(msg.AudioData)
	if err != nil {
		s.logger.Warn("dropping speech frame with invalid base64")
		return
	}

	text, err := s.cfg.AI.Transcriber.Transcribe(ctx, wav, msg.Language)
	if err != nil {
		s.logger.Warn("transcription failed", "error", err)
		return
	}
	if text == "" {
		// Silence or noise; nothing to share.
		return
	}

	s.shareUtterance(ctx, protocol.TypeSpeech, text, protocol.BaseLanguage(msg.Language), msg.Timestamp)
}

func (s *Session) handleChat(ctx context.Context, msg protocol.ClientChatMessage) {
	s.shareUtterance(ctx, protocol.TypeChat, msg.Message, protocol.BaseLanguage(msg.Language), msg.Timestamp)
}

// shareUtterance translates one utterance for every language spoken in the
// room, persists it and broadcasts the result.
func (s *Session) shareUtterance(ctx context.Context, kind, text, language, timestamp string) {
	if timestamp == "" {
		timestamp = time.Now().UTC().Format(time.RFC3339)
	}

	translations := make(map[string]string)
	for _, target := range s.targetLanguages(ctx, language) {
		translated, err := s.cfg.AI.Translator.Translate(ctx, text, language, target)
		if err != nil {
			s.logger.Warn("translation failed", "target", target, "error", err)
			continue
		}
		translations[target] = translated
	}

	entry := HistoryEntry{
		Name:         s.client.ParticipantName,
		Text:         text,
		Kind:         kind,
		Language:     language,
		Translations: translations,
	}
	if err := s.cfg.Directory.SaveUtterance(ctx, s.meetingID, s.client.ParticipantID, entry); err != nil {
		s.logger.Warn("persist utterance failed", "error", err)
	}

	if err := s.cfg.Hub.Broadcast(ctx, s.meetingID, protocol.ServerConversation{
		Type:             kind,
		ParticipantID:    s.client.ParticipantID,
		Name:             s.client.ParticipantName,
		OriginalText:     text,
		OriginalLanguage: language,
		Translations:     translations,
		Timestamp:        timestamp,
	}); err != nil {
		s.logger.Warn("broadcast utterance failed", "error", err)
	}
}

// targetLanguages returns the distinct preferred languages in the room,
// excluding the utterance's own language.
func (s *Session) targetLanguages(ctx context.Context, sourceLanguage string) []string {
	participants, err := s.cfg.Directory.Participants(ctx, s.meetingID)
	if err != nil {
		s.logger.Warn("list participants failed", "error", err)
		return nil
	}

	seen := map[string]bool{sourceLanguage: true}
	var targets []string
	for _, p := range participants {
		lang := protocol.BaseLanguage(p.PreferredLanguage)
		if lang == "" || seen[lang] {
			continue
		}
		seen[lang] = true
		targets = append(targets, lang)
	}
	return targets
}

// handleSuggestions answers the requester only; suggestions are private.
func (s *Session) handleSuggestions(ctx context.Context, msg protocol.ClientRequestSuggestions) {
	conversationContext := msg.Context
	if conversationContext == "" {
		history, err := s.cfg.Directory.RecentHistory(ctx, s.meetingID, s.cfg.SuggestionContextLimit)
		if err != nil {
			s.logger.Warn("load history failed", "error", err)
		}
		conversationContext = ContextText(history)
	}

	suggestions, err := s.cfg.AI.Suggester.Suggest(ctx, conversationContext, msg.Language, msg.MeetingType, msg.UserRole)
	if err != nil {
		s.logger.Warn("suggestion generation failed", "error", err)
		return
	}

	if err := s.cfg.Directory.SaveSuggestions(ctx, s.meetingID, s.client.ParticipantID, suggestions); err != nil {
		s.logger.Warn("persist suggestions failed", "error", err)
	}

	s.client.SendJSON(protocol.ServerSuggestions{
		Type:        protocol.TypeSuggestions,
		Suggestions: suggestions,
	})
}
