// Package ai provides the speech and language services behind a meeting
// session: transcription of audio segments, text translation, and
// conversation suggestions. The production implementation calls the Gemini
// API; sessions depend only on the interfaces so tests can substitute fakes.
package ai

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// Transcriber converts one WAV audio segment into text.
type Transcriber interface {
	Transcribe(ctx context.Context, wav []byte, language string) (string, error)
}

// Translator translates text into a target language.
type Translator interface {
	Translate(ctx context.Context, text, sourceLanguage, targetLanguage string) (string, error)
}

// Suggester produces short reply suggestions from recent conversation context.
type Suggester interface {
	Suggest(ctx context.Context, conversationContext, language, meetingType, userRole string) ([]string, error)
}

// Services bundles the three capabilities a session needs.
type Services struct {
	Transcriber Transcriber
	Translator  Translator
	Suggester   Suggester
}

// GeminiClient implements all three services against the Gemini API.
type GeminiClient struct {
	client *genai.Client
	model  string
}

// NewGeminiClient dials the Gemini API with the given key and model.
func NewGeminiClient(ctx context.Context, apiKey, model string) (*GeminiClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiClient{client: client, model: model}, nil
}

// Services returns the client wired as all three session services.
func (g *GeminiClient) Services() Services {
	return Services{Transcriber: g, Translator: g, Suggester: g}
}

func (g *GeminiClient) Transcribe(ctx context.Context, wav []byte, language string) (string, error) {
	if len(wav) == 0 {
		return "", fmt.Errorf("empty audio segment")
	}
	prompt := fmt.Sprintf(
		"Transcribe this audio verbatim. The speaker's language is %s. Return only the transcription, with no commentary. Return an empty response if there is no speech.",
		language,
	)
	content := genai.NewContentFromParts([]*genai.Part{
		genai.NewPartFromText(prompt),
		genai.NewPartFromBytes(wav, "audio/wav"),
	}, genai.RoleUser)

	resp, err := g.client.Models.GenerateContent(ctx, g.model, []*genai.Content{content}, nil)
	if err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}
	return strings.TrimSpace(resp.Text()), nil
}

func (g *GeminiClient) Translate(ctx context.Context, text, sourceLanguage, targetLanguage string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", nil
	}
	if sourceLanguage == targetLanguage {
		return text, nil
	}
	prompt := fmt.Sprintf(
		"Translate the following text from %s to %s. Return only the translation.\n\n%s",
		sourceLanguage, targetLanguage, text,
	)
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("translate: %w", err)
	}
	return strings.TrimSpace(resp.Text()), nil
}

func (g *GeminiClient) Suggest(ctx context.Context, conversationContext, language, meetingType, userRole string) ([]string, error) {
	prompt := fmt.Sprintf(
		"You are assisting a %s in a %s meeting. Based on the recent conversation below, propose 3 short, natural things they could say next, in %s. Return one suggestion per line with no numbering.\n\nConversation:\n%s",
		userRole, meetingType, language, conversationContext,
	)
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), nil)
	if err != nil {
		return nil, fmt.Errorf("suggest: %w", err)
	}

	var suggestions []string
	for _, line := range strings.Split(resp.Text(), "\n") {
		line = strings.TrimSpace(strings.TrimLeft(line, "-*• \t"))
		if line == "" {
			continue
		}
		suggestions = append(suggestions, line)
	}
	return suggestions, nil
}
