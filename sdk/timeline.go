package meet

import (
	"strings"
	"sync"

	"github.com/linguameet/meet-lite/pkg/meet/protocol"
)

// EntryKind discriminates timeline entry variants.
type EntryKind string

const (
	EntrySpeech EntryKind = "speech"
	EntryChat   EntryKind = "chat"
	EntrySystem EntryKind = "system"
)

// Sender identifies who produced a speech or chat entry.
type Sender struct {
	ID   string
	Name string
}

// TimelineEntry is one immutable row of the conversation timeline. IDs are
// locally generated, strictly increasing in arrival order; the server
// timestamp is display metadata only and never affects ordering.
type TimelineEntry struct {
	ID               int64
	Kind             EntryKind
	Sender           Sender
	OriginalText     string
	OriginalLanguage string
	TranslatedText   string
	Timestamp        string
}

// IsSystem reports whether the entry is a non-attributed notice.
func (e TimelineEntry) IsSystem() bool { return e.Kind == EntrySystem }

// Timeline is the append-only, ordered log of conversation events. Entries
// are never mutated or removed; the log is cleared only when the session ends.
type Timeline struct {
	mu      sync.Mutex
	nextID  int64
	entries []TimelineEntry
}

func NewTimeline() *Timeline {
	return &Timeline{nextID: 1}
}

// AppendRemote reconciles one inbound speech/chat message into the timeline.
// The translation for the viewer's preferred language is resolved here and
// frozen: later language re-selection does not re-translate appended entries.
func (t *Timeline) AppendRemote(msg protocol.ServerConversation, viewerLanguage string) TimelineEntry {
	kind := EntryChat
	if msg.Type == protocol.TypeSpeech {
		kind = EntrySpeech
	}

	translated := msg.OriginalText
	if text, ok := msg.Translations[viewerLanguage]; ok {
		translated = text
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	entry := TimelineEntry{
		ID:   t.nextID,
		Kind: kind,
		Sender: Sender{
			ID:   msg.ParticipantID,
			Name: msg.Name,
		},
		OriginalText:     msg.OriginalText,
		OriginalLanguage: msg.OriginalLanguage,
		TranslatedText:   translated,
		Timestamp:        msg.Timestamp,
	}
	t.nextID++
	t.entries = append(t.entries, entry)
	return entry
}

// AppendSystemNotice appends a non-attributed notice (join/leave announcements).
func (t *Timeline) AppendSystemNotice(text string) TimelineEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry := TimelineEntry{
		ID:             t.nextID,
		Kind:           EntrySystem,
		TranslatedText: text,
	}
	t.nextID++
	t.entries = append(t.entries, entry)
	return entry
}

// Entries returns a copy of the timeline in append order.
func (t *Timeline) Entries() []TimelineEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]TimelineEntry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Len returns the number of appended entries.
func (t *Timeline) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// LastN returns the n most recent entries, optionally skipping system
// notices. Used to build conversation context for suggestion requests.
func (t *Timeline) LastN(n int, excludeSystem bool) []TimelineEntry {
	t.mu.Lock()
	defer t.mu.Unlock()

	if n <= 0 {
		return nil
	}
	out := make([]TimelineEntry, 0, n)
	for i := len(t.entries) - 1; i >= 0 && len(out) < n; i-- {
		if excludeSystem && t.entries[i].IsSystem() {
			continue
		}
		out = append(out, t.entries[i])
	}
	// Reverse back into chronological order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// ContextText renders the n most recent substantive entries as newline-joined
// "Name: text" lines for a suggestion request.
func (t *Timeline) ContextText(n int) string {
	entries := t.LastN(n, true)
	lines := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Sender.Name
		if name == "" {
			name = "System"
		}
		lines = append(lines, name+": "+entry.TranslatedText)
	}
	return strings.Join(lines, "\n")
}

// Clear empties the timeline. Called only when the session ends.
func (t *Timeline) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = nil
}
