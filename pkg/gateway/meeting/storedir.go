package meeting

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/linguameet/meet-lite/pkg/gateway/store"
	"github.com/linguameet/meet-lite/pkg/meet/protocol"
)

// StoreDirectory backs meeting state with Postgres. Meeting IDs on the wire
// are the UUIDs of meeting rows.
type StoreDirectory struct {
	store *store.Store
}

func NewStoreDirectory(s *store.Store) *StoreDirectory {
	return &StoreDirectory{store: s}
}

func parseMeetingID(meetingID string) (uuid.UUID, error) {
	id, err := uuid.Parse(meetingID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("meeting id %q is not a uuid", meetingID)
	}
	return id, nil
}

func (d *StoreDirectory) Meeting(ctx context.Context, meetingID string) (protocol.MeetingInfo, error) {
	id, err := parseMeetingID(meetingID)
	if err != nil {
		return protocol.MeetingInfo{}, err
	}
	m, err := d.store.GetMeeting(ctx, id)
	if err != nil {
		return protocol.MeetingInfo{}, err
	}
	if m == nil {
		created := &store.Meeting{
			ID:             id,
			Title:          "Meeting " + meetingID,
			Status:         "active",
			MeetingType:    "interview",
			SourceLanguage: "en",
			TargetLanguage: "en",
		}
		if err := d.store.CreateMeeting(ctx, created); err != nil {
			return protocol.MeetingInfo{}, err
		}
		m = created
	}
	return protocol.MeetingInfo{
		ID:             m.ID.String(),
		Title:          m.Title,
		Status:         m.Status,
		MeetingType:    m.MeetingType,
		SourceLanguage: m.SourceLanguage,
		TargetLanguage: m.TargetLanguage,
	}, nil
}

func (d *StoreDirectory) RecordJoin(ctx context.Context, meetingID, name, preferredLanguage string) (string, error) {
	// Ensure the meeting row exists before the participant references it.
	if _, err := d.Meeting(ctx, meetingID); err != nil {
		return "", err
	}
	id, err := parseMeetingID(meetingID)
	if err != nil {
		return "", err
	}
	p := &store.Participant{
		MeetingID:         id,
		Name:              name,
		PreferredLanguage: preferredLanguage,
	}
	if err := d.store.UpsertParticipant(ctx, p); err != nil {
		return "", err
	}
	return p.ID.String(), nil
}

func (d *StoreDirectory) Participants(ctx context.Context, meetingID string) ([]protocol.Participant, error) {
	id, err := parseMeetingID(meetingID)
	if err != nil {
		return nil, err
	}
	rows, err := d.store.ListParticipants(ctx, id)
	if err != nil {
		return nil, err
	}
	out := make([]protocol.Participant, 0, len(rows))
	for _, p := range rows {
		out = append(out, protocol.Participant{
			ID:                p.ID.String(),
			Name:              p.Name,
			PreferredLanguage: p.PreferredLanguage,
		})
	}
	return out, nil
}

func (d *StoreDirectory) SaveUtterance(ctx context.Context, meetingID, participantID string, entry HistoryEntry) error {
	mid, err := parseMeetingID(meetingID)
	if err != nil {
		return err
	}
	pid, err := uuid.Parse(participantID)
	if err != nil {
		return fmt.Errorf("participant id %q is not a uuid", participantID)
	}
	return d.store.SaveUtterance(ctx, &store.Utterance{
		MeetingID:        mid,
		ParticipantID:    pid,
		Kind:             entry.Kind,
		OriginalText:     entry.Text,
		OriginalLanguage: entry.Language,
		Translations:     entry.Translations,
		SpokenAt:         entry.At,
	})
}

func (d *StoreDirectory) RecentHistory(ctx context.Context, meetingID string, n int) ([]HistoryEntry, error) {
	id, err := parseMeetingID(meetingID)
	if err != nil {
		return nil, err
	}
	utterances, err := d.store.RecentUtterances(ctx, id, n)
	if err != nil {
		return nil, err
	}

	names := make(map[string]string)
	participants, err := d.store.ListParticipants(ctx, id)
	if err != nil {
		return nil, err
	}
	for _, p := range participants {
		names[p.ID.String()] = p.Name
	}

	out := make([]HistoryEntry, 0, len(utterances))
	for _, u := range utterances {
		name := names[u.ParticipantID.String()]
		if name == "" {
			name = "Unknown"
		}
		out = append(out, HistoryEntry{
			Name:         name,
			Text:         u.OriginalText,
			Kind:         u.Kind,
			Language:     u.OriginalLanguage,
			Translations: u.Translations,
			At:           u.SpokenAt,
		})
	}
	return out, nil
}

func (d *StoreDirectory) SaveSuggestions(ctx context.Context, meetingID, participantID string, suggestions []string) error {
	mid, err := parseMeetingID(meetingID)
	if err != nil {
		return err
	}
	pid, err := uuid.Parse(participantID)
	if err != nil {
		return fmt.Errorf("participant id %q is not a uuid", participantID)
	}
	return d.store.SaveSuggestions(ctx, mid, pid, suggestions)
}
