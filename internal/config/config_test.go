package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("SUNO_API_KEY", "sk-test")

	cfg, err := Load()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "sk-test", cfg.Suno.APIKey)
	assert.Equal(t, "https://api.sunoapi.org", cfg.Suno.BaseURL)
	assert.Equal(t, "https://webhook.site/dummy", cfg.Suno.CallbackURL)
	assert.Equal(t, 10*time.Second, cfg.Suno.PollInterval)
	assert.Equal(t, 300*time.Second, cfg.Suno.MaxWait)
	assert.Equal(t, 3, cfg.Suno.MaxRetries)
	assert.Equal(t, 5*time.Second, cfg.Suno.BackoffUnit)
	assert.Equal(t, 2, cfg.Suno.MaxConcurrent)
	assert.Equal(t, "file", cfg.Tasks.Backend)
	assert.Equal(t, 7, cfg.Tasks.KeepDays)
	assert.False(t, cfg.SunoDirect.Enabled())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SUNO_API_KEY", "sk-test")
	t.Setenv("SUNO_POLL_INTERVAL", "2s")
	t.Setenv("SUNO_MAX_CONCURRENT", "5")
	t.Setenv("TASKS_BACKEND", "REDIS")
	t.Setenv("SUNO_COOKIE", "cookie-value")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 2*time.Second, cfg.Suno.PollInterval)
	assert.Equal(t, 5, cfg.Suno.MaxConcurrent)
	assert.Equal(t, "redis", cfg.Tasks.Backend)
	assert.True(t, cfg.SunoDirect.Enabled())
}

func TestLoad_SecretFromFile(t *testing.T) {
	os.Unsetenv("SUNO_API_KEY")
	path := filepath.Join(t.TempDir(), "suno_key")
	require.NoError(t, os.WriteFile(path, []byte("sk-from-file\n"), 0o600))
	t.Setenv("SUNO_API_KEY_FILE", path)
	t.Cleanup(func() { os.Unsetenv("SUNO_API_KEY") })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sk-from-file", cfg.Suno.APIKey)
}

func TestValidate_MissingSunoKey(t *testing.T) {
	cfg := &Config{
		Suno:  SunoConfig{MaxRetries: 3, PollInterval: time.Second, MaxWait: time.Minute},
		Tasks: TasksConfig{Backend: "file"},
	}

	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingSecret))
}

func TestValidate_UnknownBackend(t *testing.T) {
	cfg := &Config{
		Suno:  SunoConfig{APIKey: "k", MaxRetries: 3, PollInterval: time.Second, MaxWait: time.Minute},
		Tasks: TasksConfig{Backend: "sqlite"},
	}

	assert.Error(t, cfg.Validate())
}
