package meet

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/linguameet/meet-lite/pkg/core"
)

// newMeetingTestServer starts a websocket server for one meeting and returns
// the http base URL to dial through. The handler runs once per connection.
func newMeetingTestServer(t *testing.T, meetingID string, handler func(conn *websocket.Conn)) (string, func()) {
	t.Helper()

	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ws/meeting/"+meetingID+"/" {
			http.NotFound(w, r)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		handler(conn)
	}))

	return server.URL, server.Close
}

// drainBootstrap reads the two requests every new connection must send first.
func drainBootstrap(t *testing.T, conn *websocket.Conn) {
	t.Helper()

	for _, want := range []string{"request_meeting_info", "request_participants"} {
		var frame map[string]any
		if err := conn.ReadJSON(&frame); err != nil {
			t.Errorf("read bootstrap frame: %v", err)
			return
		}
		if got, _ := frame["type"].(string); got != want {
			t.Errorf("bootstrap frame type=%q, want %q", got, want)
		}
	}
}

func waitEvent(t *testing.T, events <-chan SessionEvent) SessionEvent {
	t.Helper()

	select {
	case ev, ok := <-events:
		if !ok {
			t.Fatalf("event channel closed early")
		}
		return ev
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for event")
		return nil
	}
}

func TestMeetingEndpoint_SchemeMapping(t *testing.T) {
	t.Parallel()

	got, err := MeetingEndpoint("https://meet.example.com", "476", "tok_123")
	if err != nil {
		t.Fatalf("MeetingEndpoint: %v", err)
	}
	want := "wss://meet.example.com/ws/meeting/476/?token=tok_123"
	if got != want {
		t.Fatalf("endpoint=%q, want %q", got, want)
	}

	got, err = MeetingEndpoint("http://127.0.0.1:8000", "476", "")
	if err != nil {
		t.Fatalf("MeetingEndpoint: %v", err)
	}
	want = "ws://127.0.0.1:8000/ws/meeting/476/"
	if got != want {
		t.Fatalf("endpoint=%q, want %q", got, want)
	}
}

func TestMeetingEndpoint_RejectsEmptyMeetingID(t *testing.T) {
	t.Parallel()

	if _, err := MeetingEndpoint("https://meet.example.com", "  ", "tok"); err == nil {
		t.Fatalf("expected error for empty meeting id")
	}
}

func TestDial_SendsBootstrapRequestsInOrder(t *testing.T) {
	t.Parallel()

	done := make(chan struct{})
	baseURL, closeServer := newMeetingTestServer(t, "m1", func(conn *websocket.Conn) {
		defer close(done)
		defer conn.Close()
		drainBootstrap(t, conn)
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(2*time.Second))
	})
	defer closeServer()

	s, err := Dial(context.Background(), ConnectConfig{BaseURL: baseURL, MeetingID: "m1", Token: "tok"})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer s.Close()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatalf("server never saw bootstrap requests")
	}
}

func TestSession_DeliversEventsInArrivalOrder(t *testing.T) {
	t.Parallel()

	baseURL, closeServer := newMeetingTestServer(t, "m2", func(conn *websocket.Conn) {
		defer conn.Close()
		drainBootstrap(t, conn)

		_ = conn.WriteJSON(map[string]any{
			"type": "meeting_info",
			"meeting": map[string]any{
				"id": "m2", "title": "Standup", "status": "active",
				"meeting_type": "business", "source_language": "en", "target_language": "ro",
			},
		})
		_ = conn.WriteJSON(map[string]any{
			"type": "participants_list",
			"participants": []map[string]any{
				{"id": "p1", "name": "Ana", "preferred_language": "ro"},
			},
		})
		_ = conn.WriteJSON(map[string]any{
			"type":              "chat",
			"participant_id":    "p1",
			"name":              "Ana",
			"original_text":     "buna",
			"original_language": "ro",
			"translations":      map[string]string{"en": "hello"},
			"timestamp":         "2026-08-30T10:00:00Z",
		})
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(2*time.Second))
	})
	defer closeServer()

	s, err := Dial(context.Background(), ConnectConfig{BaseURL: baseURL, MeetingID: "m2", Token: "tok"})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer s.Close()

	info, ok := waitEvent(t, s.Events()).(MeetingInfoEvent)
	if !ok {
		t.Fatalf("first event is not MeetingInfoEvent")
	}
	if info.Meeting.Title != "Standup" || info.Meeting.MeetingType != "business" {
		t.Fatalf("meeting=%+v, want title Standup / type business", info.Meeting)
	}

	list, ok := waitEvent(t, s.Events()).(ParticipantsListEvent)
	if !ok {
		t.Fatalf("second event is not ParticipantsListEvent")
	}
	if len(list.Participants) != 1 || list.Participants[0].Name != "Ana" {
		t.Fatalf("participants=%+v, want one entry Ana", list.Participants)
	}

	conv, ok := waitEvent(t, s.Events()).(ConversationEvent)
	if !ok {
		t.Fatalf("third event is not ConversationEvent")
	}
	if conv.Message.OriginalText != "buna" || conv.Message.Translations["en"] != "hello" {
		t.Fatalf("conversation=%+v, want buna with en translation", conv.Message)
	}

	if _, ok := waitEvent(t, s.Events()).(DisconnectedEvent); !ok {
		t.Fatalf("final event is not DisconnectedEvent")
	}
	if _, open := <-s.Events(); open {
		t.Fatalf("event channel still open after DisconnectedEvent")
	}
}

func TestSession_NormalCloseIsNotAnError(t *testing.T) {
	t.Parallel()

	baseURL, closeServer := newMeetingTestServer(t, "m3", func(conn *websocket.Conn) {
		defer conn.Close()
		drainBootstrap(t, conn)
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(2*time.Second))
	})
	defer closeServer()

	s, err := Dial(context.Background(), ConnectConfig{BaseURL: baseURL, MeetingID: "m3", Token: "tok"})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}

	ev := waitEvent(t, s.Events())
	disc, ok := ev.(DisconnectedEvent)
	if !ok {
		t.Fatalf("event=%T, want DisconnectedEvent", ev)
	}
	if disc.Err != nil {
		t.Fatalf("normal close surfaced error: %v", disc.Err)
	}
	if err := s.Err(); err != nil {
		t.Fatalf("Err()=%v after normal close, want nil", err)
	}
	if got := s.State(); got != StateClosed {
		t.Fatalf("state=%v, want %v", got, StateClosed)
	}
}

func TestSession_AbnormalCloseSurfacesTypedError(t *testing.T) {
	t.Parallel()

	baseURL, closeServer := newMeetingTestServer(t, "m4", func(conn *websocket.Conn) {
		defer conn.Close()
		drainBootstrap(t, conn)
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "backend crashed"), time.Now().Add(2*time.Second))
	})
	defer closeServer()

	s, err := Dial(context.Background(), ConnectConfig{BaseURL: baseURL, MeetingID: "m4", Token: "tok"})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}

	ev := waitEvent(t, s.Events())
	disc, ok := ev.(DisconnectedEvent)
	if !ok {
		t.Fatalf("event=%T, want DisconnectedEvent", ev)
	}
	if disc.Err == nil {
		t.Fatalf("abnormal close produced no error")
	}
	var coreErr *core.Error
	if !errors.As(disc.Err, &coreErr) || coreErr.Type != core.ErrAbnormalClose {
		t.Fatalf("error=%v, want %s", disc.Err, core.ErrAbnormalClose)
	}
	if !coreErr.IsRetryable() {
		t.Fatalf("abnormal close error must be retryable")
	}
	if got := s.State(); got != StateErrored {
		t.Fatalf("state=%v, want %v", got, StateErrored)
	}
	code, _ := s.CloseStatus()
	if code != websocket.CloseInternalServerErr {
		t.Fatalf("close code=%d, want %d", code, websocket.CloseInternalServerErr)
	}
}

func TestSession_SendChatRequiresOpenConnection(t *testing.T) {
	t.Parallel()

	gotChat := make(chan map[string]any, 1)
	baseURL, closeServer := newMeetingTestServer(t, "m5", func(conn *websocket.Conn) {
		defer conn.Close()
		drainBootstrap(t, conn)
		var frame map[string]any
		if err := conn.ReadJSON(&frame); err == nil {
			gotChat <- frame
		}
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(2*time.Second))
	})
	defer closeServer()

	s, err := Dial(context.Background(), ConnectConfig{BaseURL: baseURL, MeetingID: "m5", Token: "tok"})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}

	sent, err := s.SendChat("hello there", "en")
	if err != nil {
		t.Fatalf("SendChat: %v", err)
	}
	if !sent {
		t.Fatalf("SendChat dropped message while connection was open")
	}

	select {
	case frame := <-gotChat:
		if frame["type"] != "chat_message" || frame["message"] != "hello there" || frame["language"] != "en" {
			t.Fatalf("chat frame=%v", frame)
		}
		if ts, _ := frame["timestamp"].(string); ts == "" {
			t.Fatalf("chat frame missing timestamp")
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("server never received chat frame")
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	sent, err = s.SendChat("too late", "en")
	if err != nil {
		t.Fatalf("SendChat after close: %v", err)
	}
	if sent {
		t.Fatalf("SendChat reported delivery on a closed connection")
	}
}

func TestSession_CloseIsIdempotent(t *testing.T) {
	t.Parallel()

	baseURL, closeServer := newMeetingTestServer(t, "m6", func(conn *websocket.Conn) {
		defer conn.Close()
		drainBootstrap(t, conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer closeServer()

	s, err := Dial(context.Background(), ConnectConfig{BaseURL: baseURL, MeetingID: "m6", Token: "tok"})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := s.Close(); err != nil {
			t.Fatalf("Close #%d: %v", i+1, err)
		}
	}
	if got := s.State(); got != StateClosed {
		t.Fatalf("state=%v after close, want %v", got, StateClosed)
	}
}

func TestSession_UnknownFrameTypeIsDropped(t *testing.T) {
	t.Parallel()

	baseURL, closeServer := newMeetingTestServer(t, "m7", func(conn *websocket.Conn) {
		defer conn.Close()
		drainBootstrap(t, conn)
		_ = conn.WriteJSON(map[string]any{"type": "server_stats", "uptime": 12})
		_ = conn.WriteJSON(map[string]any{"type": "suggestions", "suggestions": []string{"ask about budget"}})
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(2*time.Second))
	})
	defer closeServer()

	s, err := Dial(context.Background(), ConnectConfig{BaseURL: baseURL, MeetingID: "m7", Token: "tok"})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer s.Close()

	ev := waitEvent(t, s.Events())
	sugg, ok := ev.(SuggestionsEvent)
	if !ok {
		t.Fatalf("event=%T, want SuggestionsEvent (unknown frame should be skipped)", ev)
	}
	if len(sugg.Suggestions) != 1 || sugg.Suggestions[0] != "ask about budget" {
		t.Fatalf("suggestions=%v", sugg.Suggestions)
	}
}
