package meeting

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/linguameet/meet-lite/pkg/meet/protocol"
)

// HistoryEntry is one recorded utterance, used when a suggestion request
// arrives without conversation context of its own.
type HistoryEntry struct {
	Name         string
	Text         string
	Kind         string
	Language     string
	Translations map[string]string
	At           time.Time
}

// Directory is the meeting state a session reads and writes: meeting
// metadata, the ever-seen participant set, and conversation history. Backed
// by Postgres in production and by memory when no database is configured.
type Directory interface {
	Meeting(ctx context.Context, meetingID string) (protocol.MeetingInfo, error)
	RecordJoin(ctx context.Context, meetingID, name, preferredLanguage string) (participantID string, err error)
	Participants(ctx context.Context, meetingID string) ([]protocol.Participant, error)
	SaveUtterance(ctx context.Context, meetingID, participantID string, entry HistoryEntry) error
	RecentHistory(ctx context.Context, meetingID string, n int) ([]HistoryEntry, error)
	SaveSuggestions(ctx context.Context, meetingID, participantID string, suggestions []string) error
}

// ContextText renders history the way suggestion prompts expect it.
func ContextText(history []HistoryEntry) string {
	lines := make([]string, 0, len(history))
	for _, h := range history {
		lines = append(lines, h.Name+": "+h.Text)
	}
	return strings.Join(lines, "\n")
}

type memoryMeeting struct {
	info         protocol.MeetingInfo
	participants []protocol.Participant
	byName       map[string]string // name -> participant id
	history      []HistoryEntry
}

// MemoryDirectory holds meeting state in process memory. Meetings spring
// into existence on first join with sensible defaults.
type MemoryDirectory struct {
	mu       sync.Mutex
	meetings map[string]*memoryMeeting
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{meetings: make(map[string]*memoryMeeting)}
}

func (d *MemoryDirectory) room(meetingID string) *memoryMeeting {
	m, ok := d.meetings[meetingID]
	if !ok {
		m = &memoryMeeting{
			info: protocol.MeetingInfo{
				ID:             meetingID,
				Title:          "Meeting " + meetingID,
				Status:         "active",
				MeetingType:    "interview",
				SourceLanguage: "en",
				TargetLanguage: "en",
			},
			byName: make(map[string]string),
		}
		d.meetings[meetingID] = m
	}
	return m
}

func (d *MemoryDirectory) Meeting(_ context.Context, meetingID string) (protocol.MeetingInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.room(meetingID).info, nil
}

func (d *MemoryDirectory) RecordJoin(_ context.Context, meetingID, name, preferredLanguage string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	m := d.room(meetingID)
	if id, ok := m.byName[name]; ok {
		return id, nil
	}
	id := uuid.NewString()
	m.byName[name] = id
	m.participants = append(m.participants, protocol.Participant{
		ID:                id,
		Name:              name,
		PreferredLanguage: preferredLanguage,
	})
	return id, nil
}

func (d *MemoryDirectory) Participants(_ context.Context, meetingID string) ([]protocol.Participant, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	m := d.room(meetingID)
	out := make([]protocol.Participant, len(m.participants))
	copy(out, m.participants)
	return out, nil
}

func (d *MemoryDirectory) SaveUtterance(_ context.Context, meetingID, _ string, entry HistoryEntry) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if entry.At.IsZero() {
		entry.At = time.Now().UTC()
	}
	m := d.room(meetingID)
	m.history = append(m.history, entry)
	return nil
}

func (d *MemoryDirectory) RecentHistory(_ context.Context, meetingID string, n int) ([]HistoryEntry, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	m := d.room(meetingID)
	if n <= 0 || len(m.history) == 0 {
		return nil, nil
	}
	start := len(m.history) - n
	if start < 0 {
		start = 0
	}
	out := make([]HistoryEntry, len(m.history)-start)
	copy(out, m.history[start:])
	return out, nil
}

func (d *MemoryDirectory) SaveSuggestions(context.Context, string, string, []string) error {
	return nil
}
