package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/makeasinger/sunoflow/internal/client"
	"github.com/makeasinger/sunoflow/internal/model"
)

const (
	metadataFileName = "metadata.json"
	maxTitleRunes    = 50
	createdAtLayout  = "2006-01-02T15:04:05.000000"
)

// MusicManager stores generated songs on disk with a metadata document and
// optionally mirrors them to an artifact sink.
type MusicManager struct {
	outputDir    string
	metadataPath string
	sink         client.ArtifactSink
	now          func() time.Time

	mu      sync.RWMutex
	library model.SongLibrary
}

// NewMusicManager opens (or creates) the library under outputDir. sink may be nil.
func NewMusicManager(outputDir string, sink client.ArtifactSink) (*MusicManager, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	m := &MusicManager{
		outputDir:    outputDir,
		metadataPath: filepath.Join(outputDir, metadataFileName),
		sink:         sink,
		now:          time.Now,
		library:      model.SongLibrary{Songs: []model.Song{}},
	}

	data, err := os.ReadFile(m.metadataPath)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &m.library); err != nil {
			return nil, fmt.Errorf("parse %s: %w", m.metadataPath, err)
		}
		if m.library.Songs == nil {
			m.library.Songs = []model.Song{}
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("read %s: %w", m.metadataPath, err)
	}
	return m, nil
}

// SetClock replaces the time source, for tests.
func (m *MusicManager) SetClock(now func() time.Time) {
	m.now = now
}

// OutputDir returns the library root.
func (m *MusicManager) OutputDir() string {
	return m.outputDir
}

func (m *MusicManager) saveLocked(ctx context.Context) error {
	data, err := json.MarshalIndent(m.library, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	tmp := m.metadataPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	if err := os.Rename(tmp, m.metadataPath); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename metadata: %w", err)
	}

	if m.sink != nil {
		if _, err := m.sink.UploadFile(ctx, metadataFileName, m.metadataPath, "application/json"); err != nil {
			log.Printf("[Library] Metadata mirror failed: %v", err)
		}
	}
	return nil
}

// SaveSong records a downloaded clip together with the prompt that produced
// it. When a sink is configured the audio is mirrored; upload failures are
// recorded on the song and do not fail the save. A clip ID that is already
// in the library returns the stored song unchanged.
func (m *MusicManager) SaveSong(ctx context.Context, clip model.Clip, prompt model.PromptData, audioPath, genre string) (*model.Song, error) {
	id := clip.ID
	if id == "" {
		id = uuid.NewString()
	} else if existing, ok := m.GetSong(id); ok {
		return existing, nil
	}
	title := firstNonEmpty(prompt.Title, clip.Title, "Untitled")

	song := model.Song{
		ID:        id,
		TaskID:    clip.TaskID,
		Title:     title,
		Style:     prompt.Style,
		Lyrics:    prompt.Lyrics,
		Theme:     prompt.Theme,
		Genre:     genre,
		AudioURL:  clip.AudioURL,
		AudioPath: audioPath,
		ImageURL:  clip.ImageURL,
		Duration:  clip.Duration,
		CreatedAt: m.now().Format(createdAtLayout),
		Suno: model.SunoDetails{
			Model:  clip.ModelName,
			Status: clip.Status,
		},
	}

	if m.sink != nil && audioPath != "" {
		url, err := m.sink.UploadFile(ctx, client.SongKey(genre, audioPath), audioPath, "audio/mpeg")
		if err != nil {
			song.UploadError = err.Error()
			log.Printf("[Library] Upload of %s failed: %v", song.ID, err)
		} else {
			song.Uploaded = true
			song.StorageURL = url
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if idx := m.indexLocked(id); idx >= 0 {
		existing := m.library.Songs[idx]
		return &existing, nil
	}

	m.library.Songs = append(m.library.Songs, song)
	m.library.Stats.TotalGenerated++
	if err := m.saveLocked(ctx); err != nil {
		m.library.Songs = m.library.Songs[:len(m.library.Songs)-1]
		m.library.Stats.TotalGenerated--
		return nil, err
	}

	log.Printf("[Library] Saved %s (%s)", song.ID, song.Title)
	return &song, nil
}

// GetSong returns a copy of the song with the given ID.
func (m *MusicManager) GetSong(id string) (*model.Song, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := range m.library.Songs {
		if m.library.Songs[i].ID == id {
			s := m.library.Songs[i]
			return &s, true
		}
	}
	return nil, false
}

func (m *MusicManager) indexLocked(id string) int {
	for i := range m.library.Songs {
		if m.library.Songs[i].ID == id {
			return i
		}
	}
	return -1
}

// SongsForTask returns the songs saved from one task's clips.
func (m *MusicManager) SongsForTask(taskID string) []model.Song {
	var out []model.Song
	for _, s := range m.AllSongs() {
		if s.TaskID == taskID {
			out = append(out, s)
		}
	}
	return out
}

// AllSongs returns every song in insertion order.
func (m *MusicManager) AllSongs() []model.Song {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Song, len(m.library.Songs))
	copy(out, m.library.Songs)
	return out
}

// RecentSongs returns up to n songs, newest first.
func (m *MusicManager) RecentSongs(n int) []model.Song {
	out := m.AllSongs()
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt > out[j].CreatedAt
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// SongsByDate returns songs created on date (YYYY-MM-DD).
func (m *MusicManager) SongsByDate(date string) []model.Song {
	var out []model.Song
	for _, s := range m.AllSongs() {
		if strings.HasPrefix(s.CreatedAt, date) {
			out = append(out, s)
		}
	}
	return out
}

// Stats summarises the library. The genre of a song is the first tag of its
// style.
func (m *MusicManager) Stats() model.SongStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	today := m.now().Format("2006-01-02")
	stats := model.SongStats{
		TotalGenerated: m.library.Stats.TotalGenerated,
		TotalSaved:     len(m.library.Songs),
		Genres:         map[string]int{},
	}
	for _, s := range m.library.Songs {
		if strings.HasPrefix(s.CreatedAt, today) {
			stats.TodayCount++
		}
		genre := "Unknown"
		if s.Style != "" {
			genre = strings.TrimSpace(strings.Split(s.Style, ",")[0])
		}
		stats.Genres[genre]++
	}
	return stats
}

// GenerateFilename builds "<title>_<yyyymmdd_hhmmss>_<id8>.mp3" keeping only
// letters, digits, spaces, dashes and underscores from the title.
func (m *MusicManager) GenerateFilename(title, songID string) string {
	var b strings.Builder
	for _, r := range title {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' || r == '-' || r == '_' {
			b.WriteRune(r)
		}
	}
	safe := strings.ReplaceAll(strings.TrimSpace(b.String()), " ", "_")
	if runes := []rune(safe); len(runes) > maxTitleRunes {
		safe = string(runes[:maxTitleRunes])
	}
	if safe == "" {
		safe = "song"
	}

	shortID := "unknown"
	if songID != "" {
		shortID = songID
		if len(shortID) > 8 {
			shortID = shortID[:8]
		}
	}
	return fmt.Sprintf("%s_%s_%s.mp3", safe, m.now().Format("20060102_150405"), shortID)
}

// AudioPath returns where a clip should be downloaded. The first clip of a
// task goes to output1, later ones to output2.
func (m *MusicManager) AudioPath(title, songID string, clipIndex int) (string, error) {
	folder := "output1"
	if clipIndex > 0 {
		folder = "output2"
	}
	dir := filepath.Join(m.outputDir, folder)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", dir, err)
	}
	return filepath.Join(dir, m.GenerateFilename(title, songID)), nil
}

// UpdateSong applies fn to the stored song and persists the library.
func (m *MusicManager) UpdateSong(ctx context.Context, id string, fn func(s *model.Song)) (*model.Song, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.library.Songs {
		if m.library.Songs[i].ID != id {
			continue
		}
		prev := m.library.Songs[i]
		fn(&m.library.Songs[i])
		if err := m.saveLocked(ctx); err != nil {
			m.library.Songs[i] = prev
			return nil, err
		}
		s := m.library.Songs[i]
		return &s, nil
	}
	return nil, ErrSongNotFound
}

// DeleteSong removes the song and its local audio file. It reports false for
// an unknown ID.
func (m *MusicManager) DeleteSong(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := -1
	for i := range m.library.Songs {
		if m.library.Songs[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false, nil
	}
	song := m.library.Songs[idx]

	if song.AudioPath != "" {
		if err := os.Remove(song.AudioPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return false, fmt.Errorf("remove audio: %w", err)
		}
	}
	if m.sink != nil && song.Uploaded {
		if err := m.sink.Delete(ctx, client.SongKey(song.Genre, song.AudioPath)); err != nil {
			log.Printf("[Library] Remote delete of %s failed: %v", id, err)
		}
	}

	prev := m.library.Songs
	m.library.Songs = append(m.library.Songs[:idx:idx], m.library.Songs[idx+1:]...)
	if err := m.saveLocked(ctx); err != nil {
		m.library.Songs = prev
		return false, err
	}
	return true, nil
}

// ExportForYouTube builds the title, description and tags for an upload.
func (m *MusicManager) ExportForYouTube(id string) (*model.YouTubeExport, error) {
	song, ok := m.GetSong(id)
	if !ok {
		return nil, ErrSongNotFound
	}

	description := fmt.Sprintf("🎵 %s\n\nTheme: %s\nStyle: %s\n\n%s\n\n---\nGenerated with Suno AI\n",
		song.Title, song.Theme, song.Style, song.Lyrics)

	var tags []string
	for _, tag := range strings.Split(song.Style, ",") {
		if tag = strings.TrimSpace(tag); tag != "" {
			tags = append(tags, tag)
		}
	}
	tags = append(tags, "AI Music", "Suno AI", "AI Generated")

	return &model.YouTubeExport{
		Title:       song.Title,
		Description: description,
		Tags:        tags,
		AudioPath:   song.AudioPath,
	}, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
