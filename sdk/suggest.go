package meet

import (
	"sync"

	"github.com/linguameet/meet-lite/pkg/meet/protocol"
)

// suggestionContextEntries is how many recent substantive timeline entries
// seed a suggestion request.
const suggestionContextEntries = 5

// SuggestionService runs the request/response cycle for AI-generated reply
// candidates over the session connection. Each Request emits exactly one
// frame; rapid repeated requests are not deduplicated or rate-limited.
type SuggestionService struct {
	mu   sync.Mutex
	list []string
}

func NewSuggestionService() *SuggestionService {
	return &SuggestionService{}
}

// Request sends one request_suggestions frame built from the most recent
// timeline context. A connection that is not Open drops the frame silently.
func (s *SuggestionService) Request(conn *SessionConnection, timeline *Timeline, viewerLanguage, meetingKind, role string) error {
	if s == nil || conn == nil || timeline == nil {
		return nil
	}
	return conn.Send(protocol.ClientRequestSuggestions{
		Type:        protocol.TypeRequestSuggestions,
		Context:     timeline.ContextText(suggestionContextEntries),
		Language:    viewerLanguage,
		MeetingType: meetingKind,
		UserRole:    role,
	})
}

// SetResult replaces the current candidate list wholesale.
func (s *SuggestionService) SetResult(list []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.list = append([]string(nil), list...)
}

// Suggestions returns a copy of the current candidate list.
func (s *SuggestionService) Suggestions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.list...)
}

// Clear drops the current candidates.
func (s *SuggestionService) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.list = nil
}
