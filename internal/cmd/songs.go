package cmd

import (
	"fmt"
	"strings"

	"github.com/makeasinger/sunoflow/internal/model"
	"github.com/makeasinger/sunoflow/internal/service"
	"github.com/spf13/cobra"
)

var songsCmd = &cobra.Command{
	Use:   "songs",
	Short: "Browse the local song library",
}

var songsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved songs, newest first",
	Args:  cobra.NoArgs,
	RunE:  runSongsList,
}

var songsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show library statistics",
	Args:  cobra.NoArgs,
	RunE:  runSongsStats,
}

var songsExportCmd = &cobra.Command{
	Use:   "export <song-id>",
	Short: "Print the YouTube upload payload for a song",
	Args:  cobra.ExactArgs(1),
	RunE:  runSongsExport,
}

var songsRefreshCmd = &cobra.Command{
	Use:   "refresh <song-id>",
	Short: "Fetch a fresh audio URL for a song",
	Args:  cobra.ExactArgs(1),
	RunE:  runSongsRefresh,
}

var songsDeleteCmd = &cobra.Command{
	Use:   "delete <song-id>",
	Short: "Delete a song and its audio file",
	Args:  cobra.ExactArgs(1),
	RunE:  runSongsDelete,
}

var (
	songsRecent int
	songsDate   string
)

func init() {
	songsListCmd.Flags().IntVar(&songsRecent, "recent", 20, "Number of songs to show (0 for all)")
	songsListCmd.Flags().StringVar(&songsDate, "date", "", "Only songs created on this day (YYYY-MM-DD)")

	songsCmd.AddCommand(songsListCmd, songsStatsCmd, songsExportCmd, songsRefreshCmd, songsDeleteCmd)
	rootCmd.AddCommand(songsCmd)
}

func runSongsList(cmd *cobra.Command, _ []string) error {
	_, a, done, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer done()

	var songs []model.Song
	if songsDate != "" {
		songs = a.Music.SongsByDate(songsDate)
	} else {
		songs = a.Music.RecentSongs(songsRecent)
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		return printJSON(out, songs)
	}
	if len(songs) == 0 {
		fmt.Fprintln(out, "No songs")
		return nil
	}
	for _, s := range songs {
		fmt.Fprintf(out, "%s  %s  %-30s  %s\n", s.ID, s.CreatedAt, s.Title, s.Style)
	}
	return nil
}

func runSongsStats(cmd *cobra.Command, _ []string) error {
	_, a, done, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer done()

	stats := a.Music.Stats()
	out := cmd.OutOrStdout()
	if jsonOutput {
		return printJSON(out, stats)
	}
	fmt.Fprintf(out, "Generated: %d\nSaved:     %d\nToday:     %d\n", stats.TotalGenerated, stats.TotalSaved, stats.TodayCount)
	for genre, n := range stats.Genres {
		fmt.Fprintf(out, "  %-20s %d\n", genre, n)
	}
	return nil
}

func runSongsExport(cmd *cobra.Command, args []string) error {
	_, a, done, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer done()

	export, err := a.Music.ExportForYouTube(args[0])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if jsonOutput {
		return printJSON(out, export)
	}
	fmt.Fprintf(out, "Title: %s\nFile:  %s\nTags:  %s\n\n%s", export.Title, export.AudioPath, strings.Join(export.Tags, ", "), export.Description)
	return nil
}

func runSongsRefresh(cmd *cobra.Command, args []string) error {
	ctx, a, done, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer done()

	song, err := a.Generation.RefreshAudioURL(ctx, args[0])
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), song)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", song.ID, song.AudioURL)
	return nil
}

func runSongsDelete(cmd *cobra.Command, args []string) error {
	ctx, a, done, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer done()

	deleted, err := a.Music.DeleteSong(ctx, args[0])
	if err != nil {
		return err
	}
	if !deleted {
		return fmt.Errorf("%w: %s", service.ErrSongNotFound, args[0])
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
	return nil
}
