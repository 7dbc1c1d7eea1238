package meet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/linguameet/meet-lite/pkg/core"
	"github.com/linguameet/meet-lite/pkg/meet/protocol"
)

// ReconnectConfig bounds the automatic redial policy applied after an
// abnormal close or transport error. Device errors are never retried.
type ReconnectConfig struct {
	Enabled        bool
	MaxAttempts    uint64
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultReconnectConfig returns the bounded exponential backoff defaults.
func DefaultReconnectConfig() ReconnectConfig {
	return ReconnectConfig{
		Enabled:        true,
		MaxAttempts:    5,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     15 * time.Second,
	}
}

// ControllerConfig configures a SessionController.
type ControllerConfig struct {
	BaseURL   string
	MeetingID string
	Token     string

	// DisplayName identifies this participant to the room.
	DisplayName string

	// ViewerLanguage resolves which translation variant is displayed.
	// Defaults to "en".
	ViewerLanguage string

	// UserRole seeds suggestion requests ("interviewer", "interviewee", ...).
	// Defaults to "participant".
	UserRole string

	Capture   CaptureConfig
	Reconnect ReconnectConfig
	Logger    *slog.Logger
}

// Snapshot is the single immutable view handed to the presentation layer.
type Snapshot struct {
	ConnState    ConnState
	Meeting      protocol.MeetingInfo
	Entries      []TimelineEntry
	Participants []protocol.Participant
	Suggestions  []string
	Capturing    bool
	Err          *core.Error
}

// SessionController composes the connection, capture engine, timeline,
// roster and suggestion service for one active meeting. All inbound events
// are reconciled on a single event loop goroutine; components are mutated
// only through their contracts, never directly by callers.
type SessionController struct {
	cfg    ControllerConfig
	logger *slog.Logger

	timeline    *Timeline
	roster      *Roster
	suggestions *SuggestionService
	capture     *CaptureEngine

	mu             sync.Mutex
	conn           *SessionConnection
	meeting        protocol.MeetingInfo
	viewerLanguage string
	lastErr        *core.Error
	closed         bool

	rootCtx    context.Context
	rootCancel context.CancelFunc
	closeOnce  sync.Once
	loopWG     sync.WaitGroup
}

// NewSessionController builds a controller; Start establishes the session.
func NewSessionController(cfg ControllerConfig) *SessionController {
	if cfg.ViewerLanguage == "" {
		cfg.ViewerLanguage = "en"
	}
	if cfg.UserRole == "" {
		cfg.UserRole = "participant"
	}
	if cfg.Reconnect == (ReconnectConfig{}) {
		cfg.Reconnect = DefaultReconnectConfig()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &SessionController{
		cfg:            cfg,
		logger:         logger,
		timeline:       NewTimeline(),
		roster:         NewRoster(),
		suggestions:    NewSuggestionService(),
		viewerLanguage: cfg.ViewerLanguage,
	}
	captureCfg := cfg.Capture
	captureCfg.Logger = logger
	c.capture = NewCaptureEngine(captureCfg, c.transmitSegment, c.connectionOpen, c.reportError)
	return c
}

// Start dials the meeting session and begins event reconciliation. A failed
// initial dial is returned to the caller and recorded in the snapshot; the
// reconnect policy applies only to failures of an established session.
func (c *SessionController) Start(ctx context.Context) error {
	if c == nil {
		return core.NewInvalidRequestError("controller must not be nil")
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return core.NewInvalidRequestError("controller is closed")
	}
	if c.conn != nil {
		c.mu.Unlock()
		return core.NewInvalidRequestError("session already started")
	}
	c.rootCtx, c.rootCancel = context.WithCancel(ctx)
	c.mu.Unlock()

	conn, err := Dial(c.rootCtx, c.connectConfig())
	if err != nil {
		c.recordError(err)
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	c.loopWG.Add(1)
	go c.runLoop(conn)
	return nil
}

func (c *SessionController) connectConfig() ConnectConfig {
	return ConnectConfig{
		BaseURL:           c.cfg.BaseURL,
		MeetingID:         c.cfg.MeetingID,
		Token:             c.cfg.Token,
		DisplayName:       c.cfg.DisplayName,
		PreferredLanguage: c.ViewerLanguage(),
		Logger:            c.logger,
	}
}

// Close tears the session down: connection, flush timer and capture device
// are all released unconditionally. Idempotent.
func (c *SessionController) Close() {
	if c == nil {
		return
	}
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		conn := c.conn
		cancel := c.rootCancel
		c.mu.Unlock()

		c.capture.Stop()
		if conn != nil {
			_ = conn.Close()
		}
		if cancel != nil {
			cancel()
		}
		c.loopWG.Wait()
		c.timeline.Clear()
		c.suggestions.Clear()
	})
}

func (c *SessionController) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *SessionController) currentConn() *SessionConnection {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

func (c *SessionController) connectionOpen() bool {
	return c.currentConn().State() == StateOpen
}

// ViewerLanguage returns the current preferred language.
func (c *SessionController) ViewerLanguage() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewerLanguage
}

// SetViewerLanguage changes the preferred language for entries appended from
// now on; already-appended entries keep their frozen translation.
func (c *SessionController) SetViewerLanguage(lang string) {
	lang = protocol.BaseLanguage(lang)
	if lang == "" {
		return
	}
	c.mu.Lock()
	c.viewerLanguage = lang
	c.mu.Unlock()
}

// Snapshot returns the current session view for rendering.
func (c *SessionController) Snapshot() Snapshot {
	c.mu.Lock()
	meeting := c.meeting
	lastErr := c.lastErr
	conn := c.conn
	c.mu.Unlock()

	state := StateConnecting
	if conn != nil {
		state = conn.State()
	}
	return Snapshot{
		ConnState:    state,
		Meeting:      meeting,
		Entries:      c.timeline.Entries(),
		Participants: c.roster.Participants(),
		Suggestions:  c.suggestions.Suggestions(),
		Capturing:    c.capture.Running(),
		Err:          lastErr,
	}
}

// Timeline exposes the append-only conversation log.
func (c *SessionController) Timeline() *Timeline { return c.timeline }

// Roster exposes the participant set.
func (c *SessionController) Roster() *Roster { return c.roster }

// SendChat sends one chat message. Returns false when the connection is not
// Open and the message was dropped.
func (c *SessionController) SendChat(message string) (bool, error) {
	conn := c.currentConn()
	if conn == nil {
		return false, nil
	}
	return conn.SendChat(message, c.ViewerLanguage())
}

// RequestSuggestions emits one request_suggestions frame from recent context.
func (c *SessionController) RequestSuggestions() error {
	conn := c.currentConn()
	if conn == nil {
		return nil
	}
	meetingKind := c.meetingKind()
	return c.suggestions.Request(conn, c.timeline, c.ViewerLanguage(), meetingKind, c.cfg.UserRole)
}

func (c *SessionController) meetingKind() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.meeting.MeetingType != "" {
		return c.meeting.MeetingType
	}
	return "interview"
}

// StartCapture acquires the microphone and begins streaming segments.
func (c *SessionController) StartCapture() error {
	c.mu.Lock()
	ctx := c.rootCtx
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return core.NewInvalidRequestError("controller is closed")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := c.capture.Start(ctx); err != nil {
		c.recordError(err)
		return err
	}
	return nil
}

// StopCapture stops streaming and releases the microphone.
func (c *SessionController) StopCapture() {
	c.capture.Stop()
}

// ToggleCapture flips the capture state, reporting the new state.
func (c *SessionController) ToggleCapture() (bool, error) {
	if c.capture.Running() {
		c.capture.Stop()
		return false, nil
	}
	if err := c.StartCapture(); err != nil {
		return false, err
	}
	return true, nil
}

func (c *SessionController) transmitSegment(audioB64, language string, capturedAt time.Time) {
	conn := c.currentConn()
	if conn == nil {
		return
	}
	if err := conn.SendSpeechSegment(audioB64, language, capturedAt); err != nil {
		c.logger.Warn("speech segment send failed", "error", err)
	}
}

func (c *SessionController) reportError(err *core.Error) {
	if err == nil {
		return
	}
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()
	c.logger.Warn("session error", "type", string(err.Type), "error", err.Message)
}

func (c *SessionController) recordError(err error) {
	var coreErr *core.Error
	if !errors.As(err, &coreErr) {
		coreErr = core.NewConnectionError(err.Error())
	}
	c.reportError(coreErr)
}

// runLoop consumes connection events in delivery order; it is the single
// goroutine that mutates the timeline and roster.
func (c *SessionController) runLoop(conn *SessionConnection) {
	defer c.loopWG.Done()

	for {
		for event := range conn.Events() {
			c.dispatch(event)
		}

		if c.isClosed() {
			return
		}

		err := conn.Err()
		var coreErr *core.Error
		if !errors.As(err, &coreErr) || !coreErr.IsRetryable() || !c.cfg.Reconnect.Enabled {
			return
		}

		next, redialErr := c.redial()
		if redialErr != nil {
			c.recordError(redialErr)
			return
		}

		c.mu.Lock()
		closed := c.closed
		if !closed {
			c.conn = next
			c.lastErr = nil
		}
		c.mu.Unlock()
		if closed {
			_ = next.Close()
			return
		}

		c.timeline.AppendSystemNotice("Reconnected to the meeting.")
		conn = next
	}
}

// redial retries the dial with bounded exponential backoff.
func (c *SessionController) redial() (*SessionConnection, error) {
	c.mu.Lock()
	ctx := c.rootCtx
	c.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}

	backoff := retry.NewExponential(c.cfg.Reconnect.InitialBackoff)
	if c.cfg.Reconnect.MaxBackoff > 0 {
		backoff = retry.WithCappedDuration(c.cfg.Reconnect.MaxBackoff, backoff)
	}
	backoff = retry.WithMaxRetries(c.cfg.Reconnect.MaxAttempts, backoff)

	var conn *SessionConnection
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		s, dialErr := Dial(ctx, c.connectConfig())
		if dialErr != nil {
			return retry.RetryableError(dialErr)
		}
		conn = s
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reconnect failed: %w", err)
	}
	return conn, nil
}

func (c *SessionController) dispatch(event SessionEvent) {
	switch e := event.(type) {
	case ConversationEvent:
		c.timeline.AppendRemote(e.Message, c.ViewerLanguage())
	case MeetingInfoEvent:
		c.mu.Lock()
		c.meeting = e.Meeting
		c.mu.Unlock()
	case ParticipantsListEvent:
		c.roster.SetAll(e.Participants)
	case ParticipantJoinedEvent:
		c.roster.UpsertOnJoin(e.ParticipantID, e.Name)
		c.timeline.AppendSystemNotice(fmt.Sprintf("%s joined the meeting.", e.Name))
	case ParticipantLeftEvent:
		c.roster.RecordDeparture(e.Name)
		c.timeline.AppendSystemNotice(fmt.Sprintf("%s left the meeting.", e.Name))
	case SuggestionsEvent:
		c.suggestions.SetResult(e.Suggestions)
	case DisconnectedEvent:
		if e.Err != nil {
			c.recordError(e.Err)
		}
	}
}
