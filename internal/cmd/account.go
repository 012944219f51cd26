package cmd

import (
	"errors"
	"fmt"

	"github.com/makeasinger/sunoflow/internal/model"
	"github.com/spf13/cobra"
)

var creditsCmd = &cobra.Command{
	Use:   "credits",
	Short: "Show the remaining API credit balance",
	Args:  cobra.NoArgs,
	RunE:  runCredits,
}

var libraryCmd = &cobra.Command{
	Use:   "library",
	Short: "Browse the studio library (requires SUNO_COOKIE)",
}

var libraryFeedCmd = &cobra.Command{
	Use:   "feed",
	Short: "List clips from the studio feed",
	Args:  cobra.NoArgs,
	RunE:  runLibraryFeed,
}

var libraryClipCmd = &cobra.Command{
	Use:   "clip <clip-id>",
	Short: "Show one studio clip",
	Args:  cobra.ExactArgs(1),
	RunE:  runLibraryClip,
}

var libraryPage int

func init() {
	libraryFeedCmd.Flags().IntVar(&libraryPage, "page", 0, "Feed page")

	libraryCmd.AddCommand(libraryFeedCmd, libraryClipCmd)
	rootCmd.AddCommand(creditsCmd, libraryCmd)
}

var errNoSession = errors.New("studio session not available; set SUNO_COOKIE")

func runCredits(cmd *cobra.Command, _ []string) error {
	ctx, a, done, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer done()

	credits, err := a.Generation.Credits(ctx)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), model.CreditsResponse{Credits: credits})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Credits: %g\n", credits)
	return nil
}

func runLibraryFeed(cmd *cobra.Command, _ []string) error {
	ctx, a, done, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer done()
	if a.Direct == nil {
		return errNoSession
	}

	clips, err := a.Direct.GetFeed(ctx, libraryPage)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if jsonOutput {
		return printJSON(out, clips)
	}
	for _, c := range clips {
		fmt.Fprintf(out, "%s  %-10s  %-30s  %s\n", c.ID, c.Status, c.Title, c.AudioURL)
	}
	return nil
}

func runLibraryClip(cmd *cobra.Command, args []string) error {
	ctx, a, done, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer done()
	if a.Direct == nil {
		return errNoSession
	}

	clip, err := a.Direct.GetClip(ctx, args[0])
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), clip)
}
