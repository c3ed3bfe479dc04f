package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"storyweaver/internal/logging"
)

// Config holds all Story Weaver process configuration.
// Per-user creative preferences live in AppSettings, persisted in the store.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Local database
	Storage StorageConfig `yaml:"storage"`

	// Generative backend
	Backend BackendConfig `yaml:"backend"`

	// Narration and background playback
	Audio AudioConfig `yaml:"audio"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// StorageConfig configures the local store.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// BackendConfig configures the generative backend.
type BackendConfig struct {
	APIKey     string `yaml:"api_key"`
	TTSModel   string `yaml:"tts_model"`
	VideoModel string `yaml:"video_model"`
	Timeout    string `yaml:"timeout"`

	// Long-running video operations are polled at this interval
	VideoPollInterval string `yaml:"video_poll_interval"`
	VideoPollAttempts int    `yaml:"video_poll_attempts"`
}

// AudioConfig configures playback.
type AudioConfig struct {
	// PlayerCommand is an external player invoked with the clip path appended.
	// Empty disables playback.
	PlayerCommand []string `yaml:"player_command"`
	SampleRate    int      `yaml:"sample_rate"`
	Volume        float64  `yaml:"volume"`
	MusicVolume   float64  `yaml:"music_volume"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Level      string          `yaml:"level"`  // debug, info, warn, error
	Format     string          `yaml:"format"` // json, text
	Categories map[string]bool `yaml:"categories,omitempty"`
}

// DefaultDataDir returns ~/.storyweaver, falling back to a relative directory.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".storyweaver"
	}
	return filepath.Join(home, ".storyweaver")
}

// DefaultConfigPath returns the default YAML config location.
func DefaultConfigPath() string {
	return filepath.Join(DefaultDataDir(), "config.yaml")
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "storyweaver",
		Version: "1.0.0",

		Storage: StorageConfig{
			DatabasePath: filepath.Join(DefaultDataDir(), "storyweaver.db"),
		},

		Backend: BackendConfig{
			TTSModel:          "gemini-2.5-flash-preview-tts",
			VideoModel:        "veo-3.1-fast-generate-preview",
			Timeout:           "120s",
			VideoPollInterval: "10s",
			VideoPollAttempts: 60,
		},

		Audio: AudioConfig{
			SampleRate:  24000,
			Volume:      1.0,
			MusicVolume: 0.5,
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML file.
// A missing file yields the defaults; environment overrides apply either way.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	// API key from environment (later entries take precedence)
	for _, name := range []string{"API_KEY", "GOOGLE_API_KEY", "GEMINI_API_KEY"} {
		if key := os.Getenv(name); key != "" {
			c.Backend.APIKey = key
		}
	}

	if path := os.Getenv("STORYWEAVER_DB"); path != "" {
		c.Storage.DatabasePath = path
	}

	if player := os.Getenv("STORYWEAVER_PLAYER"); player != "" {
		c.Audio.PlayerCommand = []string{player}
	}
}

// GetBackendTimeout returns the backend timeout as a duration.
func (c *Config) GetBackendTimeout() time.Duration {
	d, err := time.ParseDuration(c.Backend.Timeout)
	if err != nil {
		return 120 * time.Second
	}
	return d
}

// GetVideoPollInterval returns the video operation poll interval as a duration.
func (c *Config) GetVideoPollInterval() time.Duration {
	d, err := time.ParseDuration(c.Backend.VideoPollInterval)
	if err != nil || d <= 0 {
		return 10 * time.Second
	}
	return d
}

// GetVideoPollAttempts returns the maximum number of video polls.
func (c *Config) GetVideoPollAttempts() int {
	if c.Backend.VideoPollAttempts <= 0 {
		return 60
	}
	return c.Backend.VideoPollAttempts
}

// DataDir returns the directory holding the database, used for logs.
func (c *Config) DataDir() string {
	if c.Storage.DatabasePath == "" || c.Storage.DatabasePath == ":memory:" {
		return DefaultDataDir()
	}
	return filepath.Dir(c.Storage.DatabasePath)
}

// ToLogging converts the logging section for the logging package.
func (c *Config) ToLogging() logging.Config {
	return logging.Config{
		DebugMode:  c.Logging.DebugMode,
		Level:      c.Logging.Level,
		JSONFormat: c.Logging.Format == "json",
		Categories: c.Logging.Categories,
	}
}

// Validate validates the configuration.
// A missing API key is not an error here: only generation requires one.
func (c *Config) Validate() error {
	if c.Storage.DatabasePath == "" {
		return fmt.Errorf("storage.database_path must be set (or STORYWEAVER_DB)")
	}
	if c.Audio.SampleRate <= 0 {
		return fmt.Errorf("invalid audio.sample_rate: %d", c.Audio.SampleRate)
	}
	if c.Audio.Volume < 0 || c.Audio.Volume > 1 || c.Audio.MusicVolume < 0 || c.Audio.MusicVolume > 1 {
		return fmt.Errorf("audio volumes must be within [0, 1]")
	}
	switch c.Logging.Format {
	case "", "json", "text":
	default:
		return fmt.Errorf("invalid logging.format: %s (valid: json, text)", c.Logging.Format)
	}
	return nil
}

// RequireAPIKey reports a configuration error when no backend key is set.
func (c *Config) RequireAPIKey() error {
	if c.Backend.APIKey == "" {
		return fmt.Errorf("backend API key not configured (set GEMINI_API_KEY, GOOGLE_API_KEY or API_KEY)")
	}
	return nil
}
