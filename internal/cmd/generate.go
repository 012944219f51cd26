package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/makeasinger/sunoflow/internal/model"
	"github.com/spf13/cobra"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Submit one or more songs",
	Long: `Submit songs to the Suno API.

Exactly one source is used:
  --theme       write a prompt with the text model, then generate (repeat for a batch)
  --description let Suno write the lyrics from a short description
  --lyrics      custom mode with your own lyrics (a file path or "-" for stdin)

With --wait (the default) the command blocks until the clips are saved.
Without it the task is queued for the server's background worker.`,
	Args: cobra.NoArgs,
	RunE: runGenerate,
}

var generateOpts struct {
	themes       []string
	description  string
	lyrics       string
	style        string
	title        string
	genre        string
	mood         string
	language     string
	model        string
	instrumental bool
	wait         bool
}

func init() {
	f := generateCmd.Flags()
	f.StringArrayVar(&generateOpts.themes, "theme", nil, "Theme to write a song about (repeatable)")
	f.StringVar(&generateOpts.description, "description", "", "Song description for non-custom mode")
	f.StringVar(&generateOpts.lyrics, "lyrics", "", "Lyrics file, or - to read stdin")
	f.StringVar(&generateOpts.style, "style", "", "Style tags (custom mode)")
	f.StringVar(&generateOpts.title, "title", "", "Song title (custom mode)")
	f.StringVar(&generateOpts.genre, "genre", "", "Genre, used for prompts and the storage layout")
	f.StringVar(&generateOpts.mood, "mood", "", "Mood hint for --theme")
	f.StringVar(&generateOpts.language, "language", "", "Lyrics language for --theme")
	f.StringVar(&generateOpts.model, "model", "", "Suno model (V3_5, V4, V4_5, V4_5PLUS, V4_5ALL, V5)")
	f.BoolVar(&generateOpts.instrumental, "instrumental", false, "Generate without vocals")
	f.BoolVar(&generateOpts.wait, "wait", true, "Wait for the clips instead of queueing the task")
	generateCmd.MarkFlagsMutuallyExclusive("theme", "description", "lyrics")
	rootCmd.AddCommand(generateCmd)
}

// buildGenerateRequest turns the non-theme flags into a validated request.
func buildGenerateRequest(v *validator.Validate, stdin io.Reader) (*model.GenerateRequest, error) {
	req := &model.GenerateRequest{
		Style:        generateOpts.style,
		Title:        generateOpts.title,
		Genre:        generateOpts.genre,
		Instrumental: generateOpts.instrumental,
		Model:        model.SunoModel(generateOpts.model),
		Wait:         generateOpts.wait,
	}

	switch {
	case generateOpts.description != "":
		req.Description = generateOpts.description
	case generateOpts.lyrics != "":
		lyrics, err := readLyrics(generateOpts.lyrics, stdin)
		if err != nil {
			return nil, err
		}
		req.CustomMode = true
		req.Prompt = lyrics
	default:
		return nil, errors.New("one of --theme, --description or --lyrics is required")
	}

	if err := v.Struct(req); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	return req, nil
}

func readLyrics(src string, stdin io.Reader) (string, error) {
	var data []byte
	var err error
	if src == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(src)
	}
	if err != nil {
		return "", fmt.Errorf("read lyrics: %w", err)
	}
	lyrics := strings.TrimSpace(string(data))
	if lyrics == "" {
		return "", errors.New("lyrics are empty")
	}
	return lyrics, nil
}

// themeRequests builds one request per --theme flag.
func themeRequests(v *validator.Validate) ([]*model.ThemeGenerateRequest, error) {
	out := make([]*model.ThemeGenerateRequest, 0, len(generateOpts.themes))
	for _, theme := range generateOpts.themes {
		req := &model.ThemeGenerateRequest{
			PromptRequest: model.PromptRequest{
				Theme:        theme,
				Genre:        generateOpts.genre,
				Mood:         generateOpts.mood,
				Language:     generateOpts.language,
				Instrumental: generateOpts.instrumental,
			},
			Model: model.SunoModel(generateOpts.model),
			Wait:  generateOpts.wait,
		}
		if err := v.Struct(req); err != nil {
			return nil, fmt.Errorf("invalid theme %q: %w", theme, err)
		}
		out = append(out, req)
	}
	return out, nil
}

func runGenerate(cmd *cobra.Command, _ []string) error {
	v := validator.New()

	var single *model.GenerateRequest
	var batch []*model.ThemeGenerateRequest
	var err error
	if len(generateOpts.themes) > 0 {
		batch, err = themeRequests(v)
	} else {
		single, err = buildGenerateRequest(v, cmd.InOrStdin())
	}
	if err != nil {
		return err
	}

	ctx, a, done, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer done()

	out := cmd.OutOrStdout()
	if single != nil {
		resp, err := a.Generation.Generate(ctx, single)
		if err != nil {
			return err
		}
		return printGenerate(out, resp)
	}

	// Themes run one after another; a failure is reported and the batch goes on.
	failed := 0
	for i, req := range batch {
		fmt.Fprintf(cmd.ErrOrStderr(), "[%d/%d] %s\n", i+1, len(batch), req.Theme)
		resp, err := a.Generation.GenerateFromTheme(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			failed++
			fmt.Fprintf(cmd.ErrOrStderr(), "  failed: %v\n", err)
			continue
		}
		if err := printGenerate(out, resp); err != nil {
			return err
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d themes failed", failed, len(batch))
	}
	return nil
}

func printGenerate(w io.Writer, resp *model.GenerateResponse) error {
	if jsonOutput {
		return printJSON(w, resp)
	}
	fmt.Fprintf(w, "Task %s: %s\n", resp.TaskID, resp.Status)
	if resp.Status == model.TaskStatusPending {
		fmt.Fprintln(w, "  queued for the background worker; check with: sunoctl tasks list")
	}
	for _, s := range resp.Songs {
		location := s.AudioPath
		if location == "" {
			location = s.AudioURL
		}
		fmt.Fprintf(w, "  %s  %s  %s\n", s.ID, s.Title, location)
	}
	return nil
}
