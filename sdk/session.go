// Package meet is the client SDK for a live multilingual meeting session: a
// persistent websocket connection, microphone capture and segment
// transmission, and reconciliation of server events into an ordered
// conversation timeline.
package meet

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/linguameet/meet-lite/pkg/core"
	"github.com/linguameet/meet-lite/pkg/meet/protocol"
)

const defaultConnectTimeout = 15 * time.Second

// ConnState is the lifecycle state of a SessionConnection.
type ConnState int

const (
	// StateConnecting is the initial state while the dial is in flight.
	StateConnecting ConnState = iota
	// StateOpen means the transport is established and frames may be sent.
	StateOpen
	// StateClosed is terminal until a new connection is explicitly started.
	StateClosed
	// StateErrored means the transport failed to open or errored while open.
	StateErrored
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateOpen:
		return "OPEN"
	case StateClosed:
		return "CLOSED"
	case StateErrored:
		return "ERRORED"
	default:
		return "UNKNOWN"
	}
}

// ConnectConfig addresses one meeting session.
type ConnectConfig struct {
	// BaseURL is the server origin, http(s) or ws(s); http(s) schemes are
	// mapped to their websocket pair.
	BaseURL string

	// MeetingID selects the meeting room.
	MeetingID string

	// Token is an opaque bearer credential carried as a query parameter.
	Token string

	// DisplayName identifies the participant to the room. Defaults to
	// "Guest" server-side when empty.
	DisplayName string

	// PreferredLanguage is announced at join so the server translates
	// utterances for this participant.
	PreferredLanguage string

	Logger *slog.Logger
}

// SessionConnection owns one persistent meeting websocket. Writes are
// serialized; inbound frames are decoded into typed events and delivered in
// arrival order on Events().
type SessionConnection struct {
	conn   *websocket.Conn
	logger *slog.Logger

	events chan SessionEvent
	done   chan struct{}
	stop   chan struct{}

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    atomic.Bool

	stateMu     sync.Mutex
	state       ConnState
	closeCode   int
	closeReason string

	errMu sync.Mutex
	err   error
}

// MeetingEndpoint builds the websocket URL for a meeting, pairing the
// websocket scheme with the page scheme (http → ws, https → wss).
func MeetingEndpoint(baseURL, meetingID, token string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return "", core.NewInvalidRequestError("invalid base URL")
	}
	switch strings.ToLower(strings.TrimSpace(u.Scheme)) {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
		// already websocket scheme.
	default:
		return "", core.NewInvalidRequestError("base URL must use http(s) or ws(s)")
	}
	meetingID = strings.TrimSpace(meetingID)
	if meetingID == "" {
		return "", core.NewInvalidRequestError("meeting id must not be empty")
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws/meeting/" + meetingID + "/"
	if token != "" {
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// Dial opens a meeting session connection. On success the connection is Open
// and the two bootstrap requests (request_meeting_info, request_participants)
// have been sent; no other outbound frame precedes them.
func Dial(ctx context.Context, cfg ConnectConfig) (*SessionConnection, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	endpoint, err := MeetingEndpoint(cfg.BaseURL, cfg.MeetingID, cfg.Token)
	if err != nil {
		return nil, err
	}
	if cfg.DisplayName != "" || cfg.PreferredLanguage != "" {
		u, parseErr := url.Parse(endpoint)
		if parseErr == nil {
			q := u.Query()
			if cfg.DisplayName != "" {
				q.Set("name", cfg.DisplayName)
			}
			if cfg.PreferredLanguage != "" {
				q.Set("language", cfg.PreferredLanguage)
			}
			u.RawQuery = q.Encode()
			endpoint = u.String()
		}
	}

	s := &SessionConnection{
		logger: logger,
		events: make(chan SessionEvent, 256),
		done:   make(chan struct{}),
		stop:   make(chan struct{}),
		state:  StateConnecting,
	}

	dialer := websocket.DefaultDialer
	if dialer == nil {
		dialer = &websocket.Dialer{}
	}

	dialCtx := ctx
	var cancel context.CancelFunc
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		dialCtx, cancel = context.WithTimeout(ctx, defaultConnectTimeout)
		defer cancel()
	}

	conn, resp, err := dialer.DialContext(dialCtx, endpoint, http.Header{})
	if err != nil {
		s.setState(StateErrored, 0, "")
		if resp != nil {
			return nil, core.NewConnectionError(fmt.Sprintf("websocket dial failed (status %d): %v", resp.StatusCode, err))
		}
		return nil, core.NewConnectionError(fmt.Sprintf("websocket dial failed: %v", err))
	}
	s.conn = conn
	s.setState(StateOpen, 0, "")

	if err := s.Send(protocol.ClientRequestMeetingInfo{Type: protocol.TypeRequestMeetingInfo}); err != nil {
		_ = conn.Close()
		return nil, core.NewConnectionError(fmt.Sprintf("send bootstrap request: %v", err))
	}
	if err := s.Send(protocol.ClientRequestParticipants{Type: protocol.TypeRequestParticipants}); err != nil {
		_ = conn.Close()
		return nil, core.NewConnectionError(fmt.Sprintf("send bootstrap request: %v", err))
	}

	go s.readLoop()
	return s, nil
}

// State returns the current connection state.
func (s *SessionConnection) State() ConnState {
	if s == nil {
		return StateClosed
	}
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state
}

// CloseStatus returns the close code and reason once the connection has closed.
func (s *SessionConnection) CloseStatus() (int, string) {
	if s == nil {
		return 0, ""
	}
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.closeCode, s.closeReason
}

func (s *SessionConnection) setState(state ConnState, code int, reason string) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	s.state = state
	if code != 0 {
		s.closeCode = code
		s.closeReason = reason
	}
}

// Events yields decoded inbound events in delivery order. The channel is
// closed after a final DisconnectedEvent.
func (s *SessionConnection) Events() <-chan SessionEvent {
	if s == nil {
		return nil
	}
	return s.events
}

// Send enqueues one structured frame for transmission. It is a silent no-op
// when the connection is not Open; callers with user-visible writes check
// State first.
func (s *SessionConnection) Send(v any) error {
	if s == nil {
		return core.NewInvalidRequestError("connection must not be nil")
	}
	if s.State() != StateOpen || s.closed.Load() {
		return nil
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(v)
}

// SendChat sends one chat_message frame. Returns false without sending when
// the connection is not Open, so the caller can surface the dropped write.
func (s *SessionConnection) SendChat(message, language string) (bool, error) {
	if s == nil || s.State() != StateOpen {
		return false, nil
	}
	message = strings.TrimSpace(message)
	if message == "" {
		return false, nil
	}
	err := s.Send(protocol.ClientChatMessage{
		Type:      protocol.TypeChatMessage,
		Message:   message,
		Language:  language,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	return err == nil, err
}

// SendSpeechSegment transmits one transport-encoded audio segment.
func (s *SessionConnection) SendSpeechSegment(audioData, language string, capturedAt time.Time) error {
	if s == nil {
		return core.NewInvalidRequestError("connection must not be nil")
	}
	return s.Send(protocol.ClientSpeech{
		Type:      protocol.TypeSpeech,
		AudioData: audioData,
		Language:  language,
		Timestamp: capturedAt.UTC().Format(time.RFC3339),
	})
}

// Close tears the transport down unconditionally. Idempotent; a deliberate
// close surfaces no error.
func (s *SessionConnection) Close() error {
	if s == nil {
		return nil
	}
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		close(s.stop)
		if s.conn != nil {
			s.writeMu.Lock()
			_ = s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(2*time.Second))
			s.writeMu.Unlock()
			_ = s.conn.Close()
		}
	})
	<-s.done
	return nil
}

// Err returns the terminal connection error, if any. Blocks until the read
// loop has exited.
func (s *SessionConnection) Err() error {
	if s == nil {
		return nil
	}
	<-s.done
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *SessionConnection) setErr(err error) {
	if err == nil {
		return
	}
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *SessionConnection) readLoop() {
	defer close(s.done)
	defer close(s.events)

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.finish(err)
			return
		}

		event, decodeErr := s.decodeFrame(data)
		if decodeErr != nil {
			// Malformed payloads are dropped, never fatal.
			s.logger.Warn("dropping malformed meeting frame", "error", decodeErr)
			continue
		}
		if event == nil {
			continue
		}
		if !s.emit(event) {
			return
		}
	}
}

// finish records the terminal state and emits the final DisconnectedEvent.
func (s *SessionConnection) finish(readErr error) {
	if closeErr, ok := readErr.(*websocket.CloseError); ok {
		switch closeErr.Code {
		case websocket.CloseNormalClosure, websocket.CloseGoingAway:
			s.setState(StateClosed, closeErr.Code, closeErr.Text)
			s.emit(DisconnectedEvent{Code: closeErr.Code, Reason: closeErr.Text})
		default:
			abnormal := core.NewAbnormalCloseError(closeErr.Code, closeErr.Text)
			s.setState(StateErrored, closeErr.Code, closeErr.Text)
			s.setErr(abnormal)
			s.emit(DisconnectedEvent{Code: closeErr.Code, Reason: closeErr.Text, Err: abnormal})
		}
		return
	}

	if s.closed.Load() {
		// Local deliberate close; the transport error is expected.
		s.setState(StateClosed, websocket.CloseNormalClosure, "")
		s.emit(DisconnectedEvent{Code: websocket.CloseNormalClosure})
		return
	}

	connErr := core.NewConnectionError(readErr.Error())
	s.setState(StateErrored, 0, "")
	s.setErr(connErr)
	s.emit(DisconnectedEvent{Err: connErr})
}

// emit delivers an event in order, blocking until the consumer takes it or
// the connection is closed.
func (s *SessionConnection) emit(event SessionEvent) bool {
	select {
	case s.events <- event:
		return true
	case <-s.stop:
		return false
	}
}

func (s *SessionConnection) decodeFrame(data []byte) (SessionEvent, error) {
	msg, err := protocol.DecodeServerMessage(data)
	if err != nil {
		return nil, core.NewProtocolDecodeError(err.Error())
	}

	switch m := msg.(type) {
	case protocol.ServerConversation:
		return ConversationEvent{Message: m}, nil
	case protocol.ServerMeetingInfo:
		return MeetingInfoEvent{Meeting: m.Meeting}, nil
	case protocol.ServerParticipantsList:
		return ParticipantsListEvent{Participants: m.Participants}, nil
	case protocol.ServerParticipantJoined:
		return ParticipantJoinedEvent{ParticipantID: m.ParticipantID, Name: m.Name}, nil
	case protocol.ServerParticipantLeft:
		return ParticipantLeftEvent{Name: m.Name}, nil
	case protocol.ServerSuggestions:
		return SuggestionsEvent{Suggestions: m.Suggestions}, nil
	case protocol.UnknownMessage:
		// Accepted without error and dropped.
		s.logger.Debug("dropping unrecognized meeting frame", "type", m.Type)
		return nil, nil
	default:
		return nil, nil
	}
}
