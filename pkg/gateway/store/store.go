// Package store persists meetings, participants and conversation history in
// PostgreSQL. All access goes through a pgx connection pool; schema changes
// are applied with embedded goose migrations at startup.
package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Meeting is one scheduled or live meeting room.
type Meeting struct {
	ID             uuid.UUID
	Title          string
	Status         string
	MeetingType    string
	SourceLanguage string
	TargetLanguage string
	CreatedAt      time.Time
}

// Participant is one person who has ever joined a meeting.
type Participant struct {
	ID                uuid.UUID
	MeetingID         uuid.UUID
	Name              string
	PreferredLanguage string
	JoinedAt          time.Time
}

// Utterance is one transcribed speech segment or chat message, stored with
// its translations keyed by language.
type Utterance struct {
	ID               uuid.UUID
	MeetingID        uuid.UUID
	ParticipantID    uuid.UUID
	Kind             string // "speech" or "chat"
	OriginalText     string
	OriginalLanguage string
	Translations     map[string]string
	SpokenAt         time.Time
}

// Store wraps the connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to Postgres, runs pending migrations and returns the store.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	if err := migrate(databaseURL); err != nil {
		return nil, err
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{pool: pool}, nil
}

func migrate(databaseURL string) error {
	cfg, err := pgx.ParseConfig(databaseURL)
	if err != nil {
		return fmt.Errorf("parse database url: %w", err)
	}
	db := sql.OpenDB(stdlib.GetConnector(*cfg))
	defer db.Close()

	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set migration dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

// GetMeeting loads one meeting by id.
func (s *Store) GetMeeting(ctx context.Context, id uuid.UUID) (*Meeting, error) {
	const query = `
		SELECT id, title, status, meeting_type, source_language, target_language, created_at
		FROM meetings
		WHERE id = $1
	`
	var m Meeting
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&m.ID, &m.Title, &m.Status, &m.MeetingType,
		&m.SourceLanguage, &m.TargetLanguage, &m.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load meeting: %w", err)
	}
	return &m, nil
}

// CreateMeeting inserts a meeting row.
func (s *Store) CreateMeeting(ctx context.Context, m *Meeting) error {
	const query = `
		INSERT INTO meetings (id, title, status, meeting_type, source_language, target_language)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	err := s.pool.QueryRow(ctx, query,
		m.ID, m.Title, m.Status, m.MeetingType, m.SourceLanguage, m.TargetLanguage,
	).Scan(&m.CreatedAt)
	if err != nil {
		return fmt.Errorf("create meeting: %w", err)
	}
	return nil
}

// UpsertParticipant records a participant's membership in a meeting. A repeat
// join for the same meeting and name reuses the existing row.
func (s *Store) UpsertParticipant(ctx context.Context, p *Participant) error {
	const query = `
		INSERT INTO participants (id, meeting_id, name, preferred_language)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (meeting_id, name) DO UPDATE
		SET preferred_language = EXCLUDED.preferred_language
		RETURNING id, joined_at
	`
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	err := s.pool.QueryRow(ctx, query,
		p.ID, p.MeetingID, p.Name, p.PreferredLanguage,
	).Scan(&p.ID, &p.JoinedAt)
	if err != nil {
		return fmt.Errorf("upsert participant: %w", err)
	}
	return nil
}

// ListParticipants returns all participants ever seen in a meeting, oldest first.
func (s *Store) ListParticipants(ctx context.Context, meetingID uuid.UUID) ([]Participant, error) {
	const query = `
		SELECT id, meeting_id, name, preferred_language, joined_at
		FROM participants
		WHERE meeting_id = $1
		ORDER BY joined_at
	`
	rows, err := s.pool.Query(ctx, query, meetingID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	var out []Participant
	for rows.Next() {
		var p Participant
		if err := rows.Scan(&p.ID, &p.MeetingID, &p.Name, &p.PreferredLanguage, &p.JoinedAt); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SaveUtterance persists one utterance with its translations.
func (s *Store) SaveUtterance(ctx context.Context, u *Utterance) error {
	const query = `
		INSERT INTO utterances (id, meeting_id, participant_id, kind, original_text, original_language, translations, spoken_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.SpokenAt.IsZero() {
		u.SpokenAt = time.Now().UTC()
	}
	translations := u.Translations
	if translations == nil {
		translations = map[string]string{}
	}
	_, err := s.pool.Exec(ctx, query,
		u.ID, u.MeetingID, u.ParticipantID, u.Kind,
		u.OriginalText, u.OriginalLanguage, translations, u.SpokenAt,
	)
	if err != nil {
		return fmt.Errorf("save utterance: %w", err)
	}
	return nil
}

// RecentUtterances returns the latest n utterances in chronological order,
// used to build suggestion context server-side.
func (s *Store) RecentUtterances(ctx context.Context, meetingID uuid.UUID, n int) ([]Utterance, error) {
	const query = `
		SELECT id, meeting_id, participant_id, kind, original_text, original_language, translations, spoken_at
		FROM (
			SELECT id, meeting_id, participant_id, kind, original_text, original_language, translations, spoken_at
			FROM utterances
			WHERE meeting_id = $1
			ORDER BY spoken_at DESC
			LIMIT $2
		) latest
		ORDER BY spoken_at
	`
	rows, err := s.pool.Query(ctx, query, meetingID, n)
	if err != nil {
		return nil, fmt.Errorf("list utterances: %w", err)
	}
	defer rows.Close()

	var out []Utterance
	for rows.Next() {
		var u Utterance
		if err := rows.Scan(
			&u.ID, &u.MeetingID, &u.ParticipantID, &u.Kind,
			&u.OriginalText, &u.OriginalLanguage, &u.Translations, &u.SpokenAt,
		); err != nil {
			return nil, fmt.Errorf("scan utterance: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// SaveSuggestions records a delivered suggestion batch for later analysis.
func (s *Store) SaveSuggestions(ctx context.Context, meetingID uuid.UUID, participantID uuid.UUID, suggestions []string) error {
	const query = `
		INSERT INTO suggestions (id, meeting_id, participant_id, suggestions)
		VALUES ($1, $2, $3, $4)
	`
	_, err := s.pool.Exec(ctx, query, uuid.New(), meetingID, participantID, suggestions)
	if err != nil {
		return fmt.Errorf("save suggestions: %w", err)
	}
	return nil
}
