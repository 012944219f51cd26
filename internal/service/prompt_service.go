package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/makeasinger/sunoflow/internal/client"
	"github.com/makeasinger/sunoflow/internal/model"
)

const promptSystemPrompt = `You are an expert at writing prompts for the Suno AI music generator.
Turn the user's theme into a prompt that produces a strong song.

Rules:
1. Write the style tags in English; Suno understands English tags best.
2. Style covers genre, mood, instruments, vocal style and tempo.
3. Write the lyrics and the title in the requested language.
4. Structure the lyrics with tags such as [Verse], [Chorus], [Bridge] and [Outro].
5. Make sure the ending feels complete and emotionally resolved.

Style examples:
- "K-pop, energetic, synth, female vocal, catchy hook, 120bpm"
- "R&B, smooth, soulful, male vocal, romantic, piano"
- "Lo-fi, chill, dreamy, ambient, soft beats, rainy day"

Respond with JSON only, in exactly this shape:
{"title": "song title", "style": "english style tags", "lyrics": "lyrics with structure tags"}`

const themesSystemPrompt = `You suggest fresh, emotional song themes suited to K-pop, ballad and R&B.
Keep each theme to two to five words.
Respond with a JSON array of strings only, for example ["theme one", "theme two"].`

// PromptGenerator writes Suno prompts from a theme
type PromptGenerator interface {
	GeneratePrompt(ctx context.Context, req *model.PromptRequest) (*model.PromptData, error)
	RandomThemes(ctx context.Context, count int, category string) ([]string, error)
}

// PromptService builds Suno prompts with a chat completion model
type PromptService struct {
	chat client.ChatCompleter
}

// NewPromptService creates a prompt service. chat may be nil, in which case
// every call returns ErrNotConfigured.
func NewPromptService(chat client.ChatCompleter) *PromptService {
	return &PromptService{chat: chat}
}

// IsConfigured reports whether a text model is available.
func (s *PromptService) IsConfigured() bool {
	return s.chat != nil && s.chat.IsConfigured()
}

// GeneratePrompt returns title, style and lyrics for a theme. Lyrics are
// always empty for instrumental requests.
func (s *PromptService) GeneratePrompt(ctx context.Context, req *model.PromptRequest) (*model.PromptData, error) {
	if !s.IsConfigured() {
		return nil, ErrNotConfigured
	}

	response, err := s.chat.ChatCompletion(ctx, promptSystemPrompt, buildPromptMessage(req), client.ChatOptions{MaxTokens: 2000})
	if err != nil {
		return nil, fmt.Errorf("AI generation failed: %w", err)
	}

	prompt, err := parsePromptResponse(response)
	if err != nil {
		return nil, err
	}
	if req.Instrumental {
		prompt.Lyrics = ""
	}
	prompt.Theme = req.Theme
	return prompt, nil
}

// GenerateBatch writes one prompt per theme. A failing theme is reported in
// its result and does not stop the batch.
func (s *PromptService) GenerateBatch(ctx context.Context, req *model.BatchPromptRequest) []model.PromptResult {
	results := make([]model.PromptResult, 0, len(req.Themes))
	for _, theme := range req.Themes {
		if ctx.Err() != nil {
			results = append(results, model.PromptResult{Theme: theme, Error: ctx.Err().Error()})
			continue
		}
		prompt, err := s.GeneratePrompt(ctx, &model.PromptRequest{
			Theme:        theme,
			Genre:        req.Genre,
			Mood:         req.Mood,
			Language:     req.Language,
			Instrumental: req.Instrumental,
		})
		if err != nil {
			results = append(results, model.PromptResult{Theme: theme, Genre: req.Genre, Error: err.Error()})
			continue
		}
		results = append(results, model.PromptResult{Theme: theme, Genre: req.Genre, Prompt: prompt})
	}
	return results
}

// StyleVariations writes the same theme in several genres.
func (s *PromptService) StyleVariations(ctx context.Context, req *model.VariationsRequest) []model.PromptResult {
	results := make([]model.PromptResult, 0, len(req.Genres))
	for _, genre := range req.Genres {
		prompt, err := s.GeneratePrompt(ctx, &model.PromptRequest{
			Theme:    req.Theme,
			Genre:    genre,
			Language: req.Language,
		})
		if err != nil {
			results = append(results, model.PromptResult{Theme: req.Theme, Genre: genre, Error: err.Error()})
			continue
		}
		results = append(results, model.PromptResult{Theme: req.Theme, Genre: genre, Prompt: prompt})
	}
	return results
}

// RandomThemes asks the model for count short themes, optionally within a
// category.
func (s *PromptService) RandomThemes(ctx context.Context, count int, category string) ([]string, error) {
	if !s.IsConfigured() {
		return nil, ErrNotConfigured
	}
	if count <= 0 {
		count = 10
	}
	if category == "" {
		category = "varied (love, breakup, daily life, seasons, emotions)"
	}

	user := fmt.Sprintf("Suggest %d song themes.\nCategory: %s\n\nRespond with a JSON array only.", count, category)
	response, err := s.chat.ChatCompletion(ctx, themesSystemPrompt, user, client.ChatOptions{MaxTokens: 1000})
	if err != nil {
		return nil, fmt.Errorf("AI generation failed: %w", err)
	}

	var themes []string
	if err := json.Unmarshal([]byte(stripCodeFence(response)), &themes); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPrompt, err)
	}
	return themes, nil
}

func buildPromptMessage(req *model.PromptRequest) string {
	orAuto := func(v string) string {
		if v == "" {
			return "choose to fit the theme"
		}
		return v
	}

	lines := []string{
		"Theme: " + req.Theme,
		"Genre: " + orAuto(req.Genre),
		"Mood: " + orAuto(req.Mood),
	}
	if req.Language != "" {
		lines = append(lines, "Lyrics language: "+req.Language)
	} else {
		lines = append(lines, "Lyrics language: choose Korean, Japanese or English to fit the theme and genre")
	}
	if req.Gender != "" {
		lines = append(lines, "Vocal gender: "+req.Gender)
	}
	if req.Age != "" {
		lines = append(lines, "Vocal age: "+req.Age)
	}
	if req.Tempo != "" {
		lines = append(lines, "Tempo: "+req.Tempo)
	}
	if req.SoundTexture != "" {
		lines = append(lines, "Sound texture: "+req.SoundTexture)
	}
	if req.Instrumental {
		lines = append(lines, "Instrumental: yes (style only, no lyrics)")
	} else {
		lines = append(lines, "Instrumental: no (include lyrics)")
	}

	var ref string
	if style, ok := model.GenreReference[req.Genre]; ok {
		ref = "\n\nGenre reference (must be included in style):\n" + style
	}

	return fmt.Sprintf("Write a Suno prompt for these conditions:\n\n%s%s\n\nRespond with JSON only.",
		strings.Join(lines, "\n"), ref)
}

func parsePromptResponse(response string) (*model.PromptData, error) {
	body := extractJSON(stripCodeFence(response))

	var result struct {
		Title  string `json:"title"`
		Style  string `json:"style"`
		Lyrics string `json:"lyrics"`
	}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPrompt, err)
	}
	if result.Style == "" && result.Title == "" {
		return nil, fmt.Errorf("%w: no title or style", ErrInvalidPrompt)
	}
	return &model.PromptData{
		Title:  strings.TrimSpace(result.Title),
		Style:  strings.TrimSpace(result.Style),
		Lyrics: strings.TrimSpace(result.Lyrics),
	}, nil
}

// stripCodeFence returns the body of the first ```json (or bare ```) block,
// or s unchanged.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	for _, fence := range []string{"```json", "```"} {
		start := strings.Index(s, fence)
		if start < 0 {
			continue
		}
		rest := s[start+len(fence):]
		if end := strings.Index(rest, "```"); end >= 0 {
			return strings.TrimSpace(rest[:end])
		}
		return strings.TrimSpace(rest)
	}
	return s
}

// extractJSON trims anything outside the outermost braces
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start != -1 && end != -1 && end > start {
		return s[start : end+1]
	}
	return s
}
