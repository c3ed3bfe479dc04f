// Package app holds Story Weaver's application state and the flows that
// tie the story aggregate, asset library, generative backend and audio together.
package app

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"storyweaver/internal/assets"
	"storyweaver/internal/audio"
	"storyweaver/internal/backend"
	"storyweaver/internal/config"
	"storyweaver/internal/logging"
	"storyweaver/internal/story"
	"storyweaver/internal/stream"
	"storyweaver/internal/types"
)

var (
	// ErrGenerationInProgress is returned when a generation is requested while one is running.
	ErrGenerationInProgress = errors.New("a generation is already in progress")
	// ErrNoBackend is returned by flows that need the generative backend when none is configured.
	ErrNoBackend = errors.New("no generative backend configured (set GEMINI_API_KEY)")
	// ErrNoStory is returned when a flow needs a current story and none is selected.
	ErrNoStory = errors.New("no story selected")
	// ErrNotRegenerable is returned for turns that cannot be regenerated.
	ErrNotRegenerable = errors.New("turn cannot be regenerated")
	// ErrEmptyPrompt is returned when a generation has nothing to ask for.
	ErrEmptyPrompt = errors.New("prompt is empty")
)

// Backend is the generative collaborator.
type Backend interface {
	Stream(ctx context.Context, req backend.Request) iter.Seq2[stream.Fragment, error]
	Speak(ctx context.Context, text, voice string) ([]byte, error)
	GenerateVideo(ctx context.Context, req backend.VideoRequest) (stream.Media, error)
}

// Store is the persistence the application runs on.
type Store interface {
	story.Store
	assets.Store
	LoadSettings(ctx context.Context) ([]byte, error)
	SaveSettings(ctx context.Context, blob []byte) error
}

// App owns the application state.
type App struct {
	store    Store
	backend  Backend
	notifier types.Notifier
	mixer    *audio.Mixer
	now      func() time.Time

	speechRate int

	Stories *story.Library
	Assets  *assets.Library

	mu       sync.Mutex
	current  string
	settings config.AppSettings

	generating atomic.Bool
}

// Option configures an App.
type Option func(*App)

// WithBackend sets the generative backend. Without one, generation flows return ErrNoBackend.
func WithBackend(b Backend) Option {
	return func(a *App) { a.backend = b }
}

// WithNotifier sets where non-fatal conditions are surfaced.
func WithNotifier(n types.Notifier) Option {
	return func(a *App) { a.notifier = n }
}

// WithMixer sets the audio mixer.
func WithMixer(m *audio.Mixer) Option {
	return func(a *App) { a.mixer = m }
}

// WithSpeechSampleRate sets the sample rate of narration PCM returned by the backend.
func WithSpeechSampleRate(rate int) Option {
	return func(a *App) {
		if rate > 0 {
			a.speechRate = rate
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(a *App) { a.now = now }
}

// New creates an App over store. Call Start before use.
func New(store Store, opts ...Option) *App {
	a := &App{
		store:    store,
		notifier: types.NopNotifier{},
		now:      time.Now,
		settings: config.DefaultAppSettings(),

		speechRate: audio.SpeechSampleRate,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.mixer == nil {
		a.mixer = audio.NewMixer(audio.NopSink{}, 1, 0.5)
	}
	a.Stories = story.NewLibrary(store, story.WithNotifier(a.notifier), story.WithClock(a.now))
	a.Assets = assets.NewLibrary(store, assets.WithNotifier(a.notifier), assets.WithClock(a.now))
	return a
}

// Start loads settings, stories and assets, and selects the most recently updated story.
func (a *App) Start(ctx context.Context) error {
	timer := logging.StartTimer(logging.CategoryApp, "Start")
	defer timer.Stop()

	a.loadSettings(ctx)

	g, gctx := errgroup.WithContext(ctx)
	var nStories, nAssets int
	g.Go(func() error {
		nStories = a.Stories.Load(gctx)
		return nil
	})
	g.Go(func() error {
		nAssets = a.Assets.Load(gctx)
		return nil
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("startup load failed: %w", err)
	}
	logging.App("Started with %d stories and %d assets", nStories, nAssets)

	if latest, ok := a.Stories.Latest(); ok {
		a.setCurrent(latest.ID)
	}
	return nil
}

func (a *App) loadSettings(ctx context.Context) {
	blob, err := a.store.LoadSettings(ctx)
	if err != nil {
		logging.AppWarn("Failed to read settings, using defaults: %v", err)
		return
	}
	s, err := config.MergeSettings(blob)
	if err != nil {
		logging.AppWarn("Stored settings are malformed, using defaults: %v", err)
	}
	a.mu.Lock()
	a.settings = s
	a.mu.Unlock()
}

// Close stops all playback.
func (a *App) Close() {
	a.mixer.StopAll()
}

// Mixer returns the audio mixer.
func (a *App) Mixer() *audio.Mixer {
	return a.mixer
}

// Settings returns the current app settings.
func (a *App) Settings() config.AppSettings {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.settings
}

// SaveSettings validates and persists settings.
func (a *App) SaveSettings(ctx context.Context, s config.AppSettings) error {
	if err := backend.ValidateSettings(s); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	blob, err := s.Marshal()
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	a.mu.Lock()
	a.settings = s
	a.mu.Unlock()
	if err := a.store.SaveSettings(ctx, blob); err != nil {
		logging.Get(logging.CategoryApp).Error("Failed to save settings: %v", err)
		a.notifier.Notify(types.NoticeWarn, fmt.Sprintf("Could not save settings; they apply to this session only (%v)", err))
	}
	return nil
}

// =============================================================================
// CURRENT STORY
// =============================================================================

// CurrentID returns the selected story id, or "" when none is selected.
func (a *App) CurrentID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

// Current returns a snapshot of the selected story.
func (a *App) Current() (*types.Story, bool) {
	id := a.CurrentID()
	if id == "" {
		return nil, false
	}
	return a.Stories.Get(id)
}

func (a *App) setCurrent(id string) {
	a.mu.Lock()
	a.current = id
	a.mu.Unlock()
}

// NewStory creates a story and selects it.
func (a *App) NewStory(ctx context.Context) *types.Story {
	st := a.Stories.Create(ctx)
	a.setCurrent(st.ID)
	a.mixer.Stop(audio.LineBackground)
	return st
}

// SelectStory makes id the current story and switches the background line to its music.
func (a *App) SelectStory(ctx context.Context, id string) (*types.Story, error) {
	st, ok := a.Stories.Get(id)
	if !ok {
		return nil, fmt.Errorf("story %s: %w", id, story.ErrNotFound)
	}
	a.setCurrent(id)
	logging.App("Selected story %s", id)
	a.syncBackground(ctx, st)
	return st, nil
}

// EnsureStory returns the current story, silently creating one when none is selected
// or the selected one no longer exists.
func (a *App) EnsureStory(ctx context.Context) *types.Story {
	if st, ok := a.Current(); ok {
		return st
	}
	logging.App("No current story, creating one")
	return a.NewStory(ctx)
}

func (a *App) syncBackground(ctx context.Context, st *types.Story) {
	if st.BgMusic == "" {
		a.mixer.Stop(audio.LineBackground)
		return
	}
	a.playMusic(ctx, st.BgMusic)
}

func (a *App) playMusic(ctx context.Context, dataURL string) {
	clip, err := audio.ClipFromDataURL(dataURL)
	if err != nil {
		logging.AppWarn("Background music is not playable: %v", err)
		a.notifier.Notify(types.NoticeWarn, "Background music could not be decoded")
		return
	}
	if err := a.mixer.PlayBackground(ctx, clip); err != nil {
		a.notifier.Notify(types.NoticeWarn, fmt.Sprintf("Background music failed to start: %v", err))
	}
}

// PlayMusic starts the current story's background music, if it has any.
func (a *App) PlayMusic(ctx context.Context) (bool, error) {
	st, ok := a.Current()
	if !ok {
		return false, ErrNoStory
	}
	if st.BgMusic == "" {
		return false, nil
	}
	a.playMusic(ctx, st.BgMusic)
	return a.mixer.Playing(audio.LineBackground), nil
}

// DeleteStory removes a story. Deleting the current story clears the
// selection and stops the background line.
func (a *App) DeleteStory(ctx context.Context, id string) error {
	if err := a.Stories.Delete(ctx, id); err != nil {
		return err
	}
	a.mu.Lock()
	wasCurrent := a.current == id
	if wasCurrent {
		a.current = ""
	}
	a.mu.Unlock()
	if wasCurrent {
		a.mixer.Stop(audio.LineBackground)
	}
	return nil
}

// =============================================================================
// STORY EDITS
// =============================================================================

// EditTurn replaces the content of a text turn in the current story.
func (a *App) EditTurn(ctx context.Context, turnID, content string) (*types.Story, error) {
	id, err := a.requireCurrent()
	if err != nil {
		return nil, err
	}
	return a.Stories.EditTurn(ctx, id, turnID, content)
}

// DeleteTurn removes a turn from the current story.
func (a *App) DeleteTurn(ctx context.Context, turnID string) (*types.Story, error) {
	id, err := a.requireCurrent()
	if err != nil {
		return nil, err
	}
	return a.Stories.DeleteTurn(ctx, id, turnID)
}

// SetTitle renames the current story.
func (a *App) SetTitle(ctx context.Context, title string) (*types.Story, error) {
	id, err := a.requireCurrent()
	if err != nil {
		return nil, err
	}
	return a.Stories.SetTitle(ctx, id, title)
}

// SetMetadata applies a partial presentation update to the current story.
// Changing the music restarts the background line.
func (a *App) SetMetadata(ctx context.Context, md story.Metadata) (*types.Story, error) {
	id, err := a.requireCurrent()
	if err != nil {
		return nil, err
	}
	st, err := a.Stories.SetMetadata(ctx, id, md)
	if err != nil {
		return nil, err
	}
	if md.BgMusic != nil {
		a.syncBackground(ctx, st)
	}
	return st, nil
}

// ImportDocument appends an uploaded document's text to the current story's script.
func (a *App) ImportDocument(ctx context.Context, text string) (*types.Story, error) {
	st := a.EnsureStory(ctx)
	return a.Stories.AppendScript(ctx, st.ID, text)
}

func (a *App) requireCurrent() (string, error) {
	id := a.CurrentID()
	if id == "" || !a.Stories.Has(id) {
		return "", ErrNoStory
	}
	return id, nil
}

// =============================================================================
// ASSETS
// =============================================================================

// AddAsset stores content in the library, tagged with the current story.
func (a *App) AddAsset(ctx context.Context, kind types.AssetKind, name, content, mimeType string) (*types.Asset, error) {
	return a.Assets.Add(ctx, kind, name, content, mimeType, a.CurrentID())
}

// AddUpload stores uploaded bytes in the library, deriving the kind from mimeType.
func (a *App) AddUpload(ctx context.Context, name, mimeType string, data []byte) (*types.Asset, error) {
	return a.Assets.AddUpload(ctx, name, mimeType, data, a.CurrentID())
}

// RemoveAsset deletes an asset. Stories that copied its content keep their copy.
func (a *App) RemoveAsset(ctx context.Context, id string) error {
	return a.Assets.Remove(ctx, id)
}

// ListAssets lists the library with the current story's assets first.
func (a *App) ListAssets() []*types.Asset {
	return a.Assets.List(a.CurrentID())
}

// ApplyAsset applies an asset to the current story, creating one if needed.
// Setting music starts background playback.
func (a *App) ApplyAsset(ctx context.Context, assetID string, mode assets.Mode) (assets.Action, error) {
	asset, ok := a.Assets.Get(assetID)
	if !ok {
		return assets.ActionNone, fmt.Errorf("asset %s: %w", assetID, assets.ErrNotFound)
	}
	if assets.ActionFor(asset, mode) == assets.ActionNone {
		return assets.ActionNone, nil
	}
	st := a.EnsureStory(ctx)
	action, _, err := assets.Apply(ctx, a.Stories, st.ID, asset, mode)
	if err != nil {
		return action, err
	}
	logging.App("Applied asset %s to %s: %s", asset.ID, st.ID, action)
	if action == assets.ActionSetMusic {
		a.playMusic(ctx, asset.Data)
	}
	return action, nil
}
