package service

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/makeasinger/sunoflow/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memSink struct {
	objects map[string]string
	deleted []string
	uploads int
	fail    bool
}

func newMemSink() *memSink {
	return &memSink{objects: map[string]string{}}
}

func (s *memSink) Upload(_ context.Context, key string, body io.Reader, _ string) (string, error) {
	s.uploads++
	if s.fail {
		return "", errors.New("bucket unreachable")
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	s.objects[key] = string(data)
	return "https://cdn.example/" + key, nil
}

func (s *memSink) UploadFile(ctx context.Context, key, localPath, contentType string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return s.Upload(ctx, key, f, contentType)
}

func (s *memSink) Delete(_ context.Context, key string) error {
	s.deleted = append(s.deleted, key)
	delete(s.objects, key)
	return nil
}

var fixedNow = time.Date(2024, 5, 1, 14, 30, 15, 0, time.Local)

func newTestMusicManager(t *testing.T) (*MusicManager, string) {
	t.Helper()
	dir := t.TempDir()
	m, err := NewMusicManager(dir, nil)
	require.NoError(t, err)
	m.SetClock(func() time.Time { return fixedNow })
	return m, dir
}

func TestGenerateFilename(t *testing.T) {
	m, _ := newTestMusicManager(t)

	assert.Equal(t, "Summer_Rain_20240501_143015_abcdef12.mp3", m.GenerateFilename("Summer Rain!", "abcdef1234567"))
	assert.Equal(t, "song_20240501_143015_unknown.mp3", m.GenerateFilename("?!*", ""))
	assert.Equal(t, "여름_바다_20240501_143015_abc.mp3", m.GenerateFilename("여름 바다", "abc"))

	long := m.GenerateFilename(strings.Repeat("a", 80), "id")
	assert.Equal(t, strings.Repeat("a", 50)+"_20240501_143015_id.mp3", long)
}

func TestAudioPath_FolderByClipIndex(t *testing.T) {
	m, dir := newTestMusicManager(t)

	p0, err := m.AudioPath("A", "id0", 0)
	require.NoError(t, err)
	p1, err := m.AudioPath("A", "id1", 1)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "output1"), filepath.Dir(p0))
	assert.Equal(t, filepath.Join(dir, "output2"), filepath.Dir(p1))
	assert.DirExists(t, filepath.Join(dir, "output2"))
}

func TestSaveSong_PersistsMetadata(t *testing.T) {
	ctx := context.Background()
	m, dir := newTestMusicManager(t)

	clip := model.Clip{ID: "clip-1", TaskID: "task-1", Title: "Upstream", AudioURL: "https://cdn/1.mp3", Duration: 95, ModelName: "chirp-v4", Status: "complete"}
	prompt := model.PromptData{Title: "Rain", Style: "Lo-fi, chill", Lyrics: "[Verse]", Theme: "rainy day"}

	song, err := m.SaveSong(ctx, clip, prompt, "/tmp/x.mp3", model.GenreLofi)
	require.NoError(t, err)
	assert.Equal(t, "clip-1", song.ID)
	assert.Equal(t, "Rain", song.Title)
	assert.Equal(t, "chirp-v4", song.Suno.Model)
	assert.False(t, song.Uploaded)

	reopened, err := NewMusicManager(dir, nil)
	require.NoError(t, err)
	got, ok := reopened.GetSong("clip-1")
	require.True(t, ok)
	assert.Equal(t, "task-1", got.TaskID)
	assert.Equal(t, 1, reopened.Stats().TotalGenerated)
}

func TestSaveSong_SameClipIDKeepsFirst(t *testing.T) {
	ctx := context.Background()
	m, dir := newTestMusicManager(t)
	sink := newMemSink()
	m.sink = sink

	audio := filepath.Join(dir, "a.mp3")
	require.NoError(t, os.WriteFile(audio, []byte("mp3"), 0o644))

	first, err := m.SaveSong(ctx, model.Clip{ID: "clip-a", TaskID: "task-1"}, model.PromptData{Title: "First"}, audio, "")
	require.NoError(t, err)
	again, err := m.SaveSong(ctx, model.Clip{ID: "clip-a", TaskID: "task-1"}, model.PromptData{Title: "Second"}, audio, "")
	require.NoError(t, err)

	assert.Equal(t, *first, *again)
	assert.Len(t, m.AllSongs(), 1)
	assert.Equal(t, 1, m.Stats().TotalGenerated)
	assert.Equal(t, 2, sink.uploads, "one audio upload and one metadata mirror")

	reopened, err := NewMusicManager(dir, nil)
	require.NoError(t, err)
	assert.Len(t, reopened.SongsForTask("task-1"), 1)
}

func TestSaveSong_GeneratesIDAndFallbackTitle(t *testing.T) {
	m, _ := newTestMusicManager(t)
	song, err := m.SaveSong(context.Background(), model.Clip{Title: "From Clip"}, model.PromptData{}, "", "")
	require.NoError(t, err)
	assert.NotEmpty(t, song.ID)
	assert.Equal(t, "From Clip", song.Title)
}

func TestSaveSong_MirrorsToSink(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	sink := newMemSink()
	m, err := NewMusicManager(dir, sink)
	require.NoError(t, err)

	audio := filepath.Join(dir, "output1", "Rain_x.mp3")
	require.NoError(t, os.MkdirAll(filepath.Dir(audio), 0o755))
	require.NoError(t, os.WriteFile(audio, []byte("mp3"), 0o644))

	song, err := m.SaveSong(ctx, model.Clip{ID: "c1"}, model.PromptData{Title: "Rain"}, audio, model.GenreLofi)
	require.NoError(t, err)
	assert.True(t, song.Uploaded)
	assert.Equal(t, "https://cdn.example/songs/lo-fi/output1/Rain_x.mp3", song.StorageURL)
	assert.Equal(t, "mp3", sink.objects["songs/lo-fi/output1/Rain_x.mp3"])
	assert.Contains(t, sink.objects, "metadata.json")
}

func TestSaveSong_UploadFailureRecorded(t *testing.T) {
	dir := t.TempDir()
	sink := newMemSink()
	sink.fail = true
	m, err := NewMusicManager(dir, sink)
	require.NoError(t, err)

	song, err := m.SaveSong(context.Background(), model.Clip{ID: "c1"}, model.PromptData{}, "/nowhere.mp3", "")
	require.NoError(t, err)
	assert.False(t, song.Uploaded)
	assert.NotEmpty(t, song.UploadError)
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMusicManager(t)

	_, err := m.SaveSong(ctx, model.Clip{ID: "a"}, model.PromptData{Style: "K-pop, energetic"}, "", "")
	require.NoError(t, err)
	_, err = m.SaveSong(ctx, model.Clip{ID: "b"}, model.PromptData{Style: "K-pop, ballad"}, "", "")
	require.NoError(t, err)
	_, err = m.SaveSong(ctx, model.Clip{ID: "c"}, model.PromptData{}, "", "")
	require.NoError(t, err)

	m.SetClock(func() time.Time { return fixedNow.AddDate(0, 0, 1) })
	_, err = m.SaveSong(ctx, model.Clip{ID: "d"}, model.PromptData{Style: "Jazz"}, "", "")
	require.NoError(t, err)

	stats := m.Stats()
	assert.Equal(t, 4, stats.TotalGenerated)
	assert.Equal(t, 4, stats.TotalSaved)
	assert.Equal(t, 1, stats.TodayCount)
	assert.Equal(t, map[string]int{"K-pop": 2, "Unknown": 1, "Jazz": 1}, stats.Genres)

	assert.Len(t, m.SongsByDate("2024-05-01"), 3)
	recent := m.RecentSongs(1)
	require.Len(t, recent, 1)
	assert.Equal(t, "d", recent[0].ID)
}

func TestDeleteSong(t *testing.T) {
	ctx := context.Background()
	m, dir := newTestMusicManager(t)

	audio := filepath.Join(dir, "song.mp3")
	require.NoError(t, os.WriteFile(audio, []byte("x"), 0o644))
	_, err := m.SaveSong(ctx, model.Clip{ID: "a"}, model.PromptData{}, audio, "")
	require.NoError(t, err)

	ok, err := m.DeleteSong(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoFileExists(t, audio)
	_, found := m.GetSong("a")
	assert.False(t, found)
	assert.Equal(t, 1, m.Stats().TotalGenerated)

	ok, err = m.DeleteSong(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExportForYouTube(t *testing.T) {
	m, _ := newTestMusicManager(t)
	_, err := m.SaveSong(context.Background(), model.Clip{ID: "a"},
		model.PromptData{Title: "Rain", Style: "Lo-fi, chill , ", Lyrics: "[Verse]\ndrip", Theme: "rainy day"}, "/out/a.mp3", "")
	require.NoError(t, err)

	export, err := m.ExportForYouTube("a")
	require.NoError(t, err)
	assert.Equal(t, "Rain", export.Title)
	assert.Equal(t, []string{"Lo-fi", "chill", "AI Music", "Suno AI", "AI Generated"}, export.Tags)
	assert.Contains(t, export.Description, "Theme: rainy day")
	assert.Contains(t, export.Description, "[Verse]\ndrip")
	assert.Contains(t, export.Description, "Generated with Suno AI")

	_, err = m.ExportForYouTube("missing")
	assert.True(t, errors.Is(err, ErrSongNotFound))
}

func TestUpdateSong(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMusicManager(t)
	_, err := m.SaveSong(ctx, model.Clip{ID: "a", AudioURL: "https://old"}, model.PromptData{}, "", "")
	require.NoError(t, err)

	got, err := m.UpdateSong(ctx, "a", func(s *model.Song) { s.AudioURL = "https://new" })
	require.NoError(t, err)
	assert.Equal(t, "https://new", got.AudioURL)

	_, err = m.UpdateSong(ctx, "missing", func(s *model.Song) {})
	assert.True(t, errors.Is(err, ErrSongNotFound))
}
