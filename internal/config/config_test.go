package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "storyweaver", cfg.Name)
	assert.Equal(t, "gemini-2.5-flash-preview-tts", cfg.Backend.TTSModel)
	assert.Equal(t, "veo-3.1-fast-generate-preview", cfg.Backend.VideoModel)
	assert.Equal(t, 24000, cfg.Audio.SampleRate)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	t.Setenv("STORYWEAVER_DB", "")
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Backend, cfg.Backend)
}

func TestLoad_OverlaysFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
storage:
  database_path: /tmp/weaver-test.db
backend:
  video_poll_interval: 2s
  video_poll_attempts: 5
audio:
  player_command: [aplay, -q]
logging:
  debug_mode: true
  format: json
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0644))
	t.Setenv("STORYWEAVER_DB", "")
	t.Setenv("STORYWEAVER_PLAYER", "")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/weaver-test.db", cfg.Storage.DatabasePath)
	assert.Equal(t, 2*time.Second, cfg.GetVideoPollInterval())
	assert.Equal(t, 5, cfg.GetVideoPollAttempts())
	assert.Equal(t, []string{"aplay", "-q"}, cfg.Audio.PlayerCommand)
	// Untouched sections keep their defaults
	assert.Equal(t, "gemini-2.5-flash-preview-tts", cfg.Backend.TTSModel)

	lc := cfg.ToLogging()
	assert.True(t, lc.DebugMode)
	assert.True(t, lc.JSONFormat)
	assert.Equal(t, "/tmp", cfg.DataDir())
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("backend: [unclosed"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := DefaultConfig()
	cfg.Backend.VideoPollAttempts = 7
	require.NoError(t, cfg.Save(path))

	t.Setenv("STORYWEAVER_DB", "")
	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, loaded.Backend.VideoPollAttempts)
}

func TestEnvOverrides(t *testing.T) {
	t.Run("GEMINI_API_KEY wins over GOOGLE_API_KEY and API_KEY", func(t *testing.T) {
		t.Setenv("API_KEY", "generic")
		t.Setenv("GOOGLE_API_KEY", "google")
		t.Setenv("GEMINI_API_KEY", "gemini")

		cfg := &Config{}
		cfg.applyEnvOverrides()
		assert.Equal(t, "gemini", cfg.Backend.APIKey)
	})

	t.Run("API_KEY alone is used", func(t *testing.T) {
		t.Setenv("API_KEY", "generic")
		t.Setenv("GOOGLE_API_KEY", "")
		t.Setenv("GEMINI_API_KEY", "")

		cfg := &Config{}
		cfg.applyEnvOverrides()
		assert.Equal(t, "generic", cfg.Backend.APIKey)
		assert.NoError(t, cfg.RequireAPIKey())
	})

	t.Run("database and player", func(t *testing.T) {
		t.Setenv("STORYWEAVER_DB", "/data/x.db")
		t.Setenv("STORYWEAVER_PLAYER", "ffplay")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		assert.Equal(t, "/data/x.db", cfg.Storage.DatabasePath)
		assert.Equal(t, []string{"ffplay"}, cfg.Audio.PlayerCommand)
	})
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Audio.Volume = 1.5
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Logging.Format = "xml"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Storage.DatabasePath = ""
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	assert.Error(t, cfg.RequireAPIKey())
}

func TestDurationFallbacks(t *testing.T) {
	cfg := &Config{}
	assert.Equal(t, 120*time.Second, cfg.GetBackendTimeout())
	assert.Equal(t, 10*time.Second, cfg.GetVideoPollInterval())
	assert.Equal(t, 60, cfg.GetVideoPollAttempts())
}
