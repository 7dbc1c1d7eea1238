// Package config loads the gateway configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Addr string

	// DatabaseURL is the Postgres connection string. Empty disables
	// persistence; sessions then run from memory only.
	DatabaseURL string

	// RedisURL enables the cross-process channel layer. Empty keeps
	// fan-out within this process.
	RedisURL string

	// GeminiAPIKey authenticates the transcription/translation backend.
	GeminiAPIKey string

	// GeminiModel is the model used for all AI calls.
	GeminiModel string

	// Tokens accepted on /ws/meeting/{id}. Empty disables the check.
	SessionTokens map[string]struct{}

	MaxMessageBytes int64

	// Per-connection outbound queue; a participant that cannot drain
	// this many frames is disconnected.
	SendQueueSize int

	WSWriteTimeout      time.Duration
	WSPongTimeout       time.Duration
	WSPingInterval      time.Duration
	ReadHeaderTimeout   time.Duration
	ShutdownGracePeriod time.Duration

	// SuggestionContextLimit caps how many recent utterances are loaded
	// when a suggestion request carries no context of its own.
	SuggestionContextLimit int
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                   envOr("MEET_GATEWAY_ADDR", ":8000"),
		DatabaseURL:            envOr("MEET_GATEWAY_DATABASE_URL", ""),
		RedisURL:               envOr("MEET_GATEWAY_REDIS_URL", ""),
		GeminiAPIKey:           envOr("GEMINI_API_KEY", ""),
		GeminiModel:            envOr("MEET_GATEWAY_GEMINI_MODEL", "gemini-2.0-flash"),
		SessionTokens:          make(map[string]struct{}),
		MaxMessageBytes:        envInt64Or("MEET_GATEWAY_MAX_MESSAGE_BYTES", 8<<20), // audio segments dominate
		SendQueueSize:          envIntOr("MEET_GATEWAY_SEND_QUEUE_SIZE", 64),
		WSWriteTimeout:         envDurationOr("MEET_GATEWAY_WS_WRITE_TIMEOUT", 10*time.Second),
		WSPongTimeout:          envDurationOr("MEET_GATEWAY_WS_PONG_TIMEOUT", 60*time.Second),
		WSPingInterval:         envDurationOr("MEET_GATEWAY_WS_PING_INTERVAL", 25*time.Second),
		ReadHeaderTimeout:      envDurationOr("MEET_GATEWAY_READ_HEADER_TIMEOUT", 10*time.Second),
		ShutdownGracePeriod:    envDurationOr("MEET_GATEWAY_SHUTDOWN_GRACE_PERIOD", 15*time.Second),
		SuggestionContextLimit: envIntOr("MEET_GATEWAY_SUGGESTION_CONTEXT_LIMIT", 5),
	}

	for _, token := range splitCSV(os.Getenv("MEET_GATEWAY_SESSION_TOKENS")) {
		cfg.SessionTokens[token] = struct{}{}
	}

	if cfg.MaxMessageBytes <= 0 {
		return Config{}, fmt.Errorf("MEET_GATEWAY_MAX_MESSAGE_BYTES must be > 0")
	}
	if cfg.SendQueueSize <= 0 {
		return Config{}, fmt.Errorf("MEET_GATEWAY_SEND_QUEUE_SIZE must be > 0")
	}
	if cfg.WSWriteTimeout <= 0 {
		return Config{}, fmt.Errorf("MEET_GATEWAY_WS_WRITE_TIMEOUT must be > 0")
	}
	if cfg.WSPingInterval <= 0 || cfg.WSPongTimeout <= cfg.WSPingInterval {
		return Config{}, fmt.Errorf("MEET_GATEWAY_WS_PONG_TIMEOUT must exceed MEET_GATEWAY_WS_PING_INTERVAL")
	}
	if cfg.SuggestionContextLimit <= 0 {
		return Config{}, fmt.Errorf("MEET_GATEWAY_SUGGESTION_CONTEXT_LIMIT must be > 0")
	}

	return cfg, nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt64Or(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

func splitCSV(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
