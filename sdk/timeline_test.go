package meet

import (
	"strings"
	"testing"
	"time"

	"github.com/linguameet/meet-lite/pkg/meet/protocol"
)

func conversation(name, text, lang string, translations map[string]string) protocol.ServerConversation {
	return protocol.ServerConversation{
		Type:             protocol.TypeChat,
		ParticipantID:    "p_" + strings.ToLower(name),
		Name:             name,
		OriginalText:     text,
		OriginalLanguage: lang,
		Translations:     translations,
		Timestamp:        time.Now().UTC().Format(time.RFC3339),
	}
}

func TestTimeline_TranslationFallback(t *testing.T) {
	t.Parallel()

	tl := NewTimeline()

	// Viewer reads Romanian; the backend translated this one.
	entry := tl.AppendRemote(conversation("Ana", "hello", "en", map[string]string{"ro": "salut", "fr": "salut"}), "ro")
	if entry.TranslatedText != "salut" {
		t.Fatalf("translated=%q, want %q", entry.TranslatedText, "salut")
	}

	// No variant for the viewer's language: fall back to the original text.
	entry = tl.AppendRemote(conversation("Ana", "hello again", "en", map[string]string{"fr": "re-salut"}), "ro")
	if entry.TranslatedText != "hello again" {
		t.Fatalf("translated=%q, want original text fallback", entry.TranslatedText)
	}

	// Nil translations map behaves the same as a missing variant.
	entry = tl.AppendRemote(conversation("Ana", "third", "en", nil), "ro")
	if entry.TranslatedText != "third" {
		t.Fatalf("translated=%q, want original text fallback", entry.TranslatedText)
	}
}

func TestTimeline_IDsAreMonotonicAndUniqueUnderRapidAppends(t *testing.T) {
	t.Parallel()

	tl := NewTimeline()
	for i := 0; i < 200; i++ {
		tl.AppendRemote(conversation("Ana", "msg", "en", nil), "en")
	}
	tl.AppendSystemNotice("Ana left the meeting.")

	entries := tl.Entries()
	if len(entries) != 201 {
		t.Fatalf("len=%d, want 201", len(entries))
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].ID <= entries[i-1].ID {
			t.Fatalf("entry %d has id %d, not greater than previous %d", i, entries[i].ID, entries[i-1].ID)
		}
	}
}

func TestTimeline_AppendOrderIsArrivalOrder(t *testing.T) {
	t.Parallel()

	tl := NewTimeline()
	tl.AppendRemote(conversation("Ana", "first", "en", nil), "en")
	tl.AppendSystemNotice("Bogdan joined the meeting.")
	tl.AppendRemote(conversation("Bogdan", "second", "en", nil), "en")

	entries := tl.Entries()
	got := []string{entries[0].TranslatedText, entries[1].TranslatedText, entries[2].TranslatedText}
	want := []string{"first", "Bogdan joined the meeting.", "second"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("entry %d text=%q, want %q", i, got[i], want[i])
		}
	}
}

func TestTimeline_ContextTextUsesLastFiveNonSystemEntries(t *testing.T) {
	t.Parallel()

	tl := NewTimeline()
	for _, text := range []string{"one", "two", "three", "four", "five", "six"} {
		tl.AppendRemote(conversation("Ana", text, "en", nil), "en")
	}
	tl.AppendSystemNotice("Bogdan joined the meeting.")

	got := tl.ContextText(5)
	want := "Ana: two\nAna: three\nAna: four\nAna: five\nAna: six"
	if got != want {
		t.Fatalf("context=%q, want %q", got, want)
	}
}

func TestTimeline_EntriesReturnsACopy(t *testing.T) {
	t.Parallel()

	tl := NewTimeline()
	tl.AppendRemote(conversation("Ana", "original", "en", nil), "en")

	entries := tl.Entries()
	entries[0].OriginalText = "mutated"

	if tl.Entries()[0].OriginalText != "original" {
		t.Fatalf("timeline entry mutated through snapshot slice")
	}
}

func TestTimeline_ClearResetsEntriesButKeepsIDsAdvancing(t *testing.T) {
	t.Parallel()

	tl := NewTimeline()
	first := tl.AppendRemote(conversation("Ana", "before", "en", nil), "en")
	tl.Clear()
	if tl.Len() != 0 {
		t.Fatalf("len=%d after Clear, want 0", tl.Len())
	}
	second := tl.AppendRemote(conversation("Ana", "after", "en", nil), "en")
	if second.ID <= first.ID {
		t.Fatalf("id=%d after Clear, want greater than %d", second.ID, first.ID)
	}
}
