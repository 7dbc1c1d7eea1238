// Package server exposes the meeting gateway over HTTP: a health probe and
// the websocket endpoint each participant connects to.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/linguameet/meet-lite/pkg/gateway/ai"
	"github.com/linguameet/meet-lite/pkg/gateway/config"
	"github.com/linguameet/meet-lite/pkg/gateway/meeting"
)

type Server struct {
	cfg    config.Config
	logger *slog.Logger
	mux    *http.ServeMux

	hub       *meeting.Hub
	directory meeting.Directory
	services  ai.Services
	upgrader  websocket.Upgrader
}

func New(cfg config.Config, logger *slog.Logger, hub *meeting.Hub, directory meeting.Directory, services ai.Services) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:       cfg,
		logger:    logger,
		mux:       http.NewServeMux(),
		hub:       hub,
		directory: directory,
		services:  services,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("GET /ws/meeting/{meetingID}/{$}", s.handleMeeting)
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) authorized(r *http.Request) bool {
	if len(s.cfg.SessionTokens) == 0 {
		return true
	}
	token := strings.TrimSpace(r.URL.Query().Get("token"))
	_, ok := s.cfg.SessionTokens[token]
	return ok
}

func (s *Server) handleMeeting(w http.ResponseWriter, r *http.Request) {
	meetingID := r.PathValue("meetingID")
	if meetingID == "" {
		http.Error(w, "missing meeting id", http.StatusBadRequest)
		return
	}
	if !s.authorized(r) {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		name = "Guest"
	}
	language := strings.TrimSpace(r.URL.Query().Get("language"))
	if language == "" {
		language = "en"
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "meeting", meetingID, "error", err)
		return
	}

	client := meeting.NewClient(conn, meeting.ClientConfig{
		SendQueueSize:  s.cfg.SendQueueSize,
		WriteTimeout:   s.cfg.WSWriteTimeout,
		PongTimeout:    s.cfg.WSPongTimeout,
		PingInterval:   s.cfg.WSPingInterval,
		MaxMessageSize: s.cfg.MaxMessageBytes,
	}, s.logger)
	client.ParticipantName = name
	client.PreferredLanguage = language

	session := meeting.NewSession(meeting.SessionConfig{
		Hub:                    s.hub,
		Directory:              s.directory,
		AI:                     s.services,
		Logger:                 s.logger,
		SuggestionContextLimit: s.cfg.SuggestionContextLimit,
	}, client, meetingID)

	ctx := context.Background()
	if err := session.Join(ctx); err != nil {
		s.logger.Warn("session join failed", "meeting", meetingID, "error", err)
		client.CloseWithStatus(websocket.CloseInternalServerErr, "join failed")
		return
	}

	s.logger.Info("participant connected", "meeting", meetingID, "name", name, "language", language)

	go client.WritePump()
	go func() {
		client.ReadPump(func(data []byte) {
			session.HandleFrame(ctx, data)
		})
		session.Leave(ctx)
		s.logger.Info("participant disconnected", "meeting", meetingID, "name", name)
	}()
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownGracePeriod)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
