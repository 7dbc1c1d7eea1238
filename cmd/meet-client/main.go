// Command meet-client joins a live meeting from the terminal: typed lines go
// out as chat, inbound speech and chat appear translated into the chosen
// language, and the microphone can be toggled for live transcription.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/linguameet/meet-lite/internal/dotenv"
	meet "github.com/linguameet/meet-lite/sdk"
)

func main() {
	baseURL := flag.String("url", "http://127.0.0.1:8000", "gateway base URL")
	meetingID := flag.String("meeting", "", "meeting id to join (required)")
	token := flag.String("token", "", "session token")
	name := flag.String("name", "Guest", "display name")
	language := flag.String("language", "en", "preferred language for translations")
	role := flag.String("role", "participant", "role used for suggestions")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	if err := dotenv.LoadFile(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "meet-client: %v\n", err)
		os.Exit(1)
	}
	if *meetingID == "" {
		fmt.Fprintln(os.Stderr, "meet-client: -meeting is required")
		flag.Usage()
		os.Exit(2)
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if err := run(*baseURL, *meetingID, *token, *name, *language, *role, logger); err != nil {
		fmt.Fprintf(os.Stderr, "meet-client: %v\n", err)
		os.Exit(1)
	}
}

func run(baseURL, meetingID, token, name, language, role string, logger *slog.Logger) error {
	controller := meet.NewSessionController(meet.ControllerConfig{
		BaseURL:        baseURL,
		MeetingID:      meetingID,
		Token:          token,
		DisplayName:    name,
		ViewerLanguage: language,
		UserRole:       role,
		Logger:         logger,
		Capture: meet.CaptureConfig{
			Language: language,
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := controller.Start(ctx); err != nil {
		return err
	}
	defer controller.Close()

	fmt.Printf("joined meeting %s as %s (%s)\n", meetingID, name, language)
	fmt.Println("type to chat; /mic toggles the microphone, /suggest asks for suggestions, /who lists participants, /quit leaves")

	go printTimeline(ctx, controller)

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/quit":
			return nil
		case line == "/mic":
			on, err := controller.ToggleCapture()
			if err != nil {
				fmt.Printf("microphone error: %v\n", err)
				continue
			}
			if on {
				fmt.Println("microphone on")
			} else {
				fmt.Println("microphone off")
			}
		case line == "/suggest":
			if err := controller.RequestSuggestions(); err != nil {
				fmt.Printf("suggestions error: %v\n", err)
			}
		case line == "/who":
			for _, p := range controller.Snapshot().Participants {
				fmt.Printf("  %s (%s)\n", p.Name, p.PreferredLanguage)
			}
		default:
			sent, err := controller.SendChat(line)
			if err != nil {
				fmt.Printf("send error: %v\n", err)
			} else if !sent {
				fmt.Println("not connected, message dropped")
			}
		}
	}
	return scanner.Err()
}

// printTimeline tails the session snapshot and prints entries and
// suggestions as they appear.
func printTimeline(ctx context.Context, controller *meet.SessionController) {
	var lastEntryID int64
	var lastSuggestions string
	var lastProblem string

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		snap := controller.Snapshot()
		for _, entry := range snap.Entries {
			if entry.ID <= lastEntryID {
				continue
			}
			lastEntryID = entry.ID
			if entry.IsSystem() {
				fmt.Printf("* %s\n", entry.TranslatedText)
				continue
			}
			fmt.Printf("%s: %s\n", entry.Sender.Name, entry.TranslatedText)
		}

		if joined := strings.Join(snap.Suggestions, "\n  - "); joined != "" && joined != lastSuggestions {
			lastSuggestions = joined
			fmt.Printf("suggestions:\n  - %s\n", joined)
		}

		if snap.Err != nil && snap.ConnState != meet.StateOpen && snap.Err.Message != lastProblem {
			lastProblem = snap.Err.Message
			fmt.Printf("connection problem: %s\n", lastProblem)
		}
	}
}
