package app

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"storyweaver/internal/audio"
	"storyweaver/internal/backend"
	"storyweaver/internal/logging"
	"storyweaver/internal/story"
	"storyweaver/internal/stream"
	"storyweaver/internal/types"
)

// GenerateResult reports what one generation added.
type GenerateResult struct {
	Story  *types.Story
	Turns  []types.Turn
	Assets []*types.Asset
	// Err is the provider error that ended the stream early; its turns are still kept.
	Err error
}

// Generate streams a continuation of the current story (creating one if needed)
// from instruction. Turns are applied as they arrive; the story is persisted when
// the stream ends. Generated media is copied into the asset library, and the new
// text is narrated when the narrator is on.
func (a *App) Generate(ctx context.Context, instruction string) (*GenerateResult, error) {
	instruction = strings.TrimSpace(instruction)
	if instruction == "" {
		return nil, ErrEmptyPrompt
	}
	if a.backend == nil {
		return nil, ErrNoBackend
	}
	if !a.generating.CompareAndSwap(false, true) {
		return nil, ErrGenerationInProgress
	}
	defer a.generating.Store(false)

	settings := a.Settings()
	opts, err := backend.OptionsFromSettings(settings)
	if err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}

	st := a.EnsureStory(ctx)
	req := backend.Request{
		Model:       settings.ChatModel,
		Recent:      st.RecentText(backend.ContextTurns),
		Instruction: instruction,
		Options:     opts,
	}

	timer := logging.StartTimer(logging.CategoryApp, "Generate")
	res := stream.Run(ctx, stream.NewReducer(), a.backend.Stream(ctx, req), func(ev stream.Event) {
		if err := a.Stories.ApplyEvent(st.ID, ev); err != nil {
			logging.AppWarn("Dropped %s event for %s: %v", ev.Kind, st.ID, err)
		}
	})
	timer.Stop()

	// The turns kept from a cancelled stream are still written.
	persistCtx := context.WithoutCancel(ctx)
	saved, err := a.Stories.Save(persistCtx, st.ID)
	if err != nil {
		return nil, err
	}
	out := &GenerateResult{Story: saved, Turns: res.Turns, Err: res.Err}
	if res.Err != nil {
		a.notifier.Notify(types.NoticeError, fmt.Sprintf("Generation failed: %v", res.Err))
	}

	for _, t := range res.Media() {
		asset, err := a.Assets.Add(persistCtx, assetKindOf(t.Kind), mediaAssetName(t.Kind, a.now().UnixMilli()), t.Content, mimeOf(t.Content), st.ID)
		if err != nil {
			logging.AppWarn("Failed to copy generated media to assets: %v", err)
			continue
		}
		out.Assets = append(out.Assets, asset)
	}

	if text := backend.NarrationText(res.Text()); text != "" && ctx.Err() == nil && a.mixer.NarratorEnabled() {
		if err := a.narrate(ctx, text, settings.TTSVoice); err != nil {
			logging.AppWarn("Narration failed: %v", err)
			a.notifier.Notify(types.NoticeWarn, fmt.Sprintf("Narration failed: %v", err))
		}
	}
	return out, nil
}

// Generating reports whether a generation is running.
func (a *App) Generating() bool {
	return a.generating.Load()
}

// Regenerate produces fresh content for one turn of the current story.
// Text turns are rewritten from the text turns before them; image turns get a new image.
func (a *App) Regenerate(ctx context.Context, turnID, instruction string) (*types.Story, error) {
	if a.backend == nil {
		return nil, ErrNoBackend
	}
	id, err := a.requireCurrent()
	if err != nil {
		return nil, err
	}
	st, _ := a.Stories.Get(id)
	i := st.TurnIndex(turnID)
	if i < 0 {
		return nil, fmt.Errorf("turn %s: %w", turnID, story.ErrNotFound)
	}
	turn := st.Conversation[i]

	if !a.generating.CompareAndSwap(false, true) {
		return nil, ErrGenerationInProgress
	}
	defer a.generating.Store(false)

	settings := a.Settings()
	opts, err := backend.OptionsFromSettings(settings)
	if err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	prior := &types.Story{Conversation: st.Conversation[:i]}
	req := backend.Request{
		Model:       settings.ChatModel,
		Recent:      prior.RecentText(backend.ContextTurns),
		Instruction: strings.TrimSpace(instruction),
		Options:     opts,
	}

	switch turn.Kind {
	case types.TurnText:
		req.Options.Modalities = []backend.Modality{backend.ModalityText}
		if req.Instruction == "" {
			req.Instruction = "Rewrite this passage: " + turn.Content
		}
	case types.TurnImage:
		req.Options.Modalities = []backend.Modality{backend.ModalityText, backend.ModalityImage}
		if req.Instruction == "" {
			req.Instruction = "Illustrate this scene again."
		}
	default:
		return nil, fmt.Errorf("%s turn %s: %w", turn.Kind, turnID, ErrNotRegenerable)
	}

	res := stream.Run(ctx, stream.NewReducer(), a.backend.Stream(ctx, req), func(stream.Event) {})
	if res.Err != nil {
		return nil, fmt.Errorf("regeneration failed: %w", res.Err)
	}

	var content string
	switch turn.Kind {
	case types.TurnText:
		content = res.Text()
	case types.TurnImage:
		for _, t := range res.Media() {
			if t.Kind == types.TurnImage {
				content = t.Content
				break
			}
		}
	}
	if content == "" {
		return nil, fmt.Errorf("regeneration of %s returned no %s", turnID, turn.Kind)
	}
	logging.App("Regenerated %s turn %s", turn.Kind, turnID)
	return a.Stories.ReplaceTurnContent(ctx, id, turnID, content)
}

// Speak narrates text on the narration line, replacing any narration in progress.
func (a *App) Speak(ctx context.Context, text string) error {
	if a.backend == nil {
		return ErrNoBackend
	}
	text = backend.NarrationText(text)
	if text == "" {
		return ErrEmptyPrompt
	}
	return a.narrate(ctx, text, a.Settings().TTSVoice)
}

// SpeakTurn narrates one text turn of the current story.
func (a *App) SpeakTurn(ctx context.Context, turnID string) error {
	st, ok := a.Current()
	if !ok {
		return ErrNoStory
	}
	i := st.TurnIndex(turnID)
	if i < 0 {
		return fmt.Errorf("turn %s: %w", turnID, story.ErrNotFound)
	}
	if st.Conversation[i].Kind != types.TurnText {
		return fmt.Errorf("turn %s is %s, not text", turnID, st.Conversation[i].Kind)
	}
	return a.Speak(ctx, st.Conversation[i].Content)
}

func (a *App) narrate(ctx context.Context, text, voice string) error {
	pcm, err := a.backend.Speak(ctx, text, voice)
	if err != nil {
		return err
	}
	return a.mixer.PlayNarration(ctx, audio.WrapPCM(pcm, a.speechRate, audio.SpeechChannels, audio.SpeechBitsPerSample))
}

// GenerateVideo renders a video from prompt and stores it in the asset library.
func (a *App) GenerateVideo(ctx context.Context, prompt string) (*types.Asset, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, ErrEmptyPrompt
	}
	if a.backend == nil {
		return nil, ErrNoBackend
	}
	if !a.generating.CompareAndSwap(false, true) {
		return nil, ErrGenerationInProgress
	}
	defer a.generating.Store(false)

	settings := a.Settings()
	media, err := a.backend.GenerateVideo(ctx, backend.VideoRequest{
		Prompt:         prompt,
		AspectRatio:    videoAspect(settings.ImageAspectRatio),
		NegativePrompt: settings.ImageNegativePrompt,
	})
	if err != nil {
		return nil, err
	}
	return a.Assets.Add(ctx, types.AssetVideo, "Vid: "+truncateRunes(prompt, 10), types.DataURL(media.MIMEType, media.Data), media.MIMEType, a.CurrentID())
}

// videoAspect maps the image aspect setting onto the two video aspects.
func videoAspect(image string) string {
	switch image {
	case "9:16", "2:3", "3:4":
		return "9:16"
	}
	return "16:9"
}

func assetKindOf(k types.TurnKind) types.AssetKind {
	switch k {
	case types.TurnAudio:
		return types.AssetAudio
	case types.TurnVideo:
		return types.AssetVideo
	}
	return types.AssetImage
}

func mediaAssetName(k types.TurnKind, ms int64) string {
	if k == types.TurnVideo {
		return fmt.Sprintf("Vid %d", ms)
	}
	return fmt.Sprintf("Gen %d", ms)
}

func mimeOf(dataURL string) string {
	mime, _, err := types.ParseDataURL(dataURL)
	if err != nil {
		return ""
	}
	return mime
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
