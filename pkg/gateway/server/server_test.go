package server

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/linguameet/meet-lite/pkg/gateway/ai"
	"github.com/linguameet/meet-lite/pkg/gateway/config"
	"github.com/linguameet/meet-lite/pkg/gateway/meeting"
)

type echoTranscriber struct{}

func (echoTranscriber) Transcribe(context.Context, []byte, string) (string, error) {
	return "transcribed speech", nil
}

type taggingTranslator struct{}

func (taggingTranslator) Translate(_ context.Context, text, _, target string) (string, error) {
	return "[" + target + "] " + text, nil
}

type cannedSuggester struct{}

func (cannedSuggester) Suggest(context.Context, string, string, string, string) ([]string, error) {
	return []string{"sounds good"}, nil
}

func testConfig() config.Config {
	return config.Config{
		SessionTokens:          map[string]struct{}{},
		MaxMessageBytes:        1 << 20,
		SendQueueSize:          64,
		WSWriteTimeout:         time.Second,
		WSPongTimeout:          time.Minute,
		WSPingInterval:         30 * time.Second,
		ReadHeaderTimeout:      time.Second,
		ShutdownGracePeriod:    time.Second,
		SuggestionContextLimit: 5,
	}
}

func newTestGateway(t *testing.T, cfg config.Config) *httptest.Server {
	t.Helper()

	hub := meeting.NewHub(nil)
	hub.SetLayer(meeting.NewLocalLayer(hub))
	services := ai.Services{
		Transcriber: echoTranscriber{},
		Translator:  taggingTranslator{},
		Suggester:   cannedSuggester{},
	}
	srv := New(cfg, nil, hub, meeting.NewMemoryDirectory(), services)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func wsDial(t *testing.T, ts *httptest.Server, path string) *websocket.Conn {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", path, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()

	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var frame map[string]any
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return frame
}

func TestGateway_JoinBootstrapAndChat(t *testing.T) {
	t.Parallel()

	ts := newTestGateway(t, testConfig())
	conn := wsDial(t, ts, "/ws/meeting/m1/?name=Ana&language=ro")

	joined := readFrame(t, conn)
	if joined["type"] != "participant_joined" || joined["name"] != "Ana" {
		t.Fatalf("frame=%v, want own participant_joined", joined)
	}

	if err := conn.WriteJSON(map[string]any{"type": "request_meeting_info"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	info := readFrame(t, conn)
	if info["type"] != "meeting_info" {
		t.Fatalf("frame=%v, want meeting_info", info)
	}
	meetingObj, _ := info["meeting"].(map[string]any)
	if meetingObj["id"] != "m1" {
		t.Fatalf("meeting=%v", meetingObj)
	}

	if err := conn.WriteJSON(map[string]any{"type": "request_participants"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	list := readFrame(t, conn)
	if list["type"] != "participants_list" {
		t.Fatalf("frame=%v, want participants_list", list)
	}

	// A second participant speaking English: Ana gets the chat with a
	// Romanian translation.
	peer := wsDial(t, ts, "/ws/meeting/m1/?name=Bogdan&language=en")
	if joined := readFrame(t, conn); joined["name"] != "Bogdan" {
		t.Fatalf("frame=%v, want Bogdan joined", joined)
	}
	readFrame(t, peer) // Bogdan sees his own join

	if err := peer.WriteJSON(map[string]any{
		"type": "chat_message", "message": "hello everyone", "language": "en",
	}); err != nil {
		t.Fatalf("write: %v", err)
	}

	chat := readFrame(t, conn)
	if chat["type"] != "chat" || chat["original_text"] != "hello everyone" {
		t.Fatalf("frame=%v", chat)
	}
	translations, _ := chat["translations"].(map[string]any)
	if translations["ro"] != "[ro] hello everyone" {
		t.Fatalf("translations=%v", translations)
	}
}

func TestGateway_RejectsBadToken(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.SessionTokens = map[string]struct{}{"s3cret": {}}
	ts := newTestGateway(t, cfg)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/meeting/m1/?token=wrong"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatalf("dial succeeded with a bad token")
	}
	if resp == nil || resp.StatusCode != 401 {
		t.Fatalf("resp=%v, want 401", resp)
	}

	conn := wsDial(t, ts, "/ws/meeting/m1/?token=s3cret&name=Ana")
	if joined := readFrame(t, conn); joined["type"] != "participant_joined" {
		t.Fatalf("frame=%v", joined)
	}
}
