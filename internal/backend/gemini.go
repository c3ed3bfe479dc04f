// Package backend adapts the Gemini API to Story Weaver's fragment stream,
// narration and video generation needs.
package backend

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"google.golang.org/genai"

	"storyweaver/internal/logging"
	"storyweaver/internal/stream"
)

// =============================================================================
// GOOGLE GENAI BACKEND
// =============================================================================

var (
	// ErrNoAudio is returned when a speech response carries no audio payload.
	ErrNoAudio = errors.New("no audio in speech response")
	// ErrVideoTimeout is returned when a video operation is still running after the last poll.
	ErrVideoTimeout = errors.New("video generation timed out")
	// ErrNoVideo is returned when a finished video operation has no video.
	ErrNoVideo = errors.New("video generation returned no video")
)

// Request is one story generation.
type Request struct {
	Model       string
	Recent      []string
	Instruction string
	Options     Options
}

// VideoRequest is one text-to-video generation.
type VideoRequest struct {
	Prompt         string
	AspectRatio    string
	Resolution     string
	NegativePrompt string
}

// models is the subset of genai.Models the backend calls.
type models interface {
	GenerateContentStream(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error]
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	GenerateVideos(ctx context.Context, model string, prompt string, image *genai.Image, config *genai.GenerateVideosConfig) (*genai.GenerateVideosOperation, error)
}

// operations is the subset of genai.Operations the backend calls.
type operations interface {
	GetVideosOperation(ctx context.Context, operation *genai.GenerateVideosOperation, config *genai.GetOperationConfig) (*genai.GenerateVideosOperation, error)
}

// files is the subset of genai.Files the backend calls.
type files interface {
	Download(ctx context.Context, uri genai.DownloadURI, config *genai.DownloadFileConfig) ([]byte, error)
}

// GeminiConfig holds backend settings.
type GeminiConfig struct {
	APIKey            string
	TTSModel          string
	VideoModel        string
	VideoPollInterval time.Duration
	VideoPollAttempts int
}

// Gemini generates story content with the Gemini API.
type Gemini struct {
	models     models
	operations operations
	files      files
	cfg        GeminiConfig
	sleep      func(ctx context.Context, d time.Duration) error
}

// NewGemini creates a Gemini backend.
func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return newGemini(client.Models, client.Operations, client.Files, cfg), nil
}

func newGemini(m models, ops operations, f files, cfg GeminiConfig) *Gemini {
	if cfg.TTSModel == "" {
		cfg.TTSModel = "gemini-2.5-flash-preview-tts"
	}
	if cfg.VideoModel == "" {
		cfg.VideoModel = "veo-3.1-fast-generate-preview"
	}
	if cfg.VideoPollInterval <= 0 {
		cfg.VideoPollInterval = 10 * time.Second
	}
	if cfg.VideoPollAttempts <= 0 {
		cfg.VideoPollAttempts = 60
	}
	return &Gemini{models: m, operations: ops, files: f, cfg: cfg, sleep: sleepCtx}
}

// Stream starts a generation and yields its fragments in arrival order.
// Reasoning parts are dropped; the sequence ends at the first error.
func (g *Gemini) Stream(ctx context.Context, req Request) iter.Seq2[stream.Fragment, error] {
	return func(yield func(stream.Fragment, error) bool) {
		if err := req.Options.Validate(); err != nil {
			yield(stream.Fragment{}, fmt.Errorf("invalid request options: %w", err))
			return
		}

		contents := []*genai.Content{
			genai.NewContentFromText(BuildPrompt(req.Recent, req.Instruction), genai.RoleUser),
		}
		cfg := contentConfig(req.Options)
		logging.Backend("Streaming %s (modalities=%v)", req.Model, cfg.ResponseModalities)

		chunks := 0
		for resp, err := range g.models.GenerateContentStream(ctx, req.Model, contents, cfg) {
			if err != nil {
				logging.BackendError("Stream from %s failed after %d chunks: %v", req.Model, chunks, err)
				yield(stream.Fragment{}, fmt.Errorf("generation failed: %w", err))
				return
			}
			chunks++
			for _, f := range Fragments(resp) {
				if !yield(f, nil) {
					return
				}
			}
		}
		logging.BackendDebug("Stream from %s complete: %d chunks", req.Model, chunks)
	}
}

// contentConfig builds the genai request configuration for o.
func contentConfig(o Options) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		ResponseModalities: o.modalityStrings(),
	}
	if si := SystemInstruction(o); si != "" {
		cfg.SystemInstruction = genai.NewContentFromText(si, genai.RoleUser)
	}
	if o.Wants(ModalityImage) && o.AspectRatio != "" {
		cfg.ImageConfig = &genai.ImageConfig{AspectRatio: string(o.AspectRatio)}
	}
	return cfg
}

// Fragments maps one response chunk onto stream fragments.
func Fragments(resp *genai.GenerateContentResponse) []stream.Fragment {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil
	}
	var out []stream.Fragment
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		switch {
		case part.InlineData != nil && len(part.InlineData.Data) > 0:
			mime := part.InlineData.MIMEType
			if mime == "" {
				mime = "image/png"
			}
			out = append(out, stream.MediaFragment(mime, part.InlineData.Data))
		case part.Text != "":
			out = append(out, stream.TextFragment(part.Text))
		}
	}
	return out
}

// Speak synthesizes narration and returns raw 24 kHz mono 16-bit PCM.
func (g *Gemini) Speak(ctx context.Context, text, voice string) ([]byte, error) {
	if voice == "" {
		voice = "Kore"
	}
	timer := logging.StartTimer(logging.CategoryBackend, "Speak")
	defer timer.Stop()

	resp, err := g.models.GenerateContent(ctx, g.cfg.TTSModel,
		[]*genai.Content{genai.NewContentFromText(text, genai.RoleUser)},
		&genai.GenerateContentConfig{
			ResponseModalities: []string{string(genai.ModalityAudio)},
			SpeechConfig: &genai.SpeechConfig{
				VoiceConfig: &genai.VoiceConfig{
					PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: voice},
				},
			},
		},
	)
	if err != nil {
		return nil, fmt.Errorf("speech generation failed: %w", err)
	}

	for _, f := range Fragments(resp) {
		if f.Media != nil {
			logging.BackendDebug("Speech: %d bytes (%s)", len(f.Media.Data), f.Media.MIMEType)
			return f.Media.Data, nil
		}
	}
	return nil, ErrNoAudio
}

// GenerateVideo runs a long-running video operation to completion and returns the video.
func (g *Gemini) GenerateVideo(ctx context.Context, req VideoRequest) (stream.Media, error) {
	timer := logging.StartTimer(logging.CategoryBackend, "GenerateVideo")
	defer timer.Stop()

	cfg := &genai.GenerateVideosConfig{
		NumberOfVideos: 1,
		AspectRatio:    req.AspectRatio,
		Resolution:     req.Resolution,
		NegativePrompt: req.NegativePrompt,
	}
	if cfg.AspectRatio == "" {
		cfg.AspectRatio = "16:9"
	}
	if cfg.Resolution == "" {
		cfg.Resolution = "720p"
	}

	op, err := g.models.GenerateVideos(ctx, g.cfg.VideoModel, req.Prompt, nil, cfg)
	if err != nil {
		return stream.Media{}, fmt.Errorf("video generation failed: %w", err)
	}
	logging.Backend("Video operation %s started", op.Name)

	for attempt := 0; !op.Done && attempt < g.cfg.VideoPollAttempts; attempt++ {
		if err := g.sleep(ctx, g.cfg.VideoPollInterval); err != nil {
			return stream.Media{}, err
		}
		op, err = g.operations.GetVideosOperation(ctx, op, nil)
		if err != nil {
			return stream.Media{}, fmt.Errorf("video operation poll failed: %w", err)
		}
		logging.BackendDebug("Video operation %s poll %d: done=%v", op.Name, attempt+1, op.Done)
	}

	if !op.Done {
		return stream.Media{}, fmt.Errorf("%w after %d polls", ErrVideoTimeout, g.cfg.VideoPollAttempts)
	}
	if len(op.Error) > 0 {
		return stream.Media{}, fmt.Errorf("video operation failed: %v", op.Error["message"])
	}
	if op.Response == nil || len(op.Response.GeneratedVideos) == 0 || op.Response.GeneratedVideos[0].Video == nil {
		return stream.Media{}, ErrNoVideo
	}

	generated := op.Response.GeneratedVideos[0]
	mime := generated.Video.MIMEType
	if mime == "" {
		mime = "video/mp4"
	}
	if len(generated.Video.VideoBytes) > 0 {
		return stream.Media{MIMEType: mime, Data: generated.Video.VideoBytes}, nil
	}

	data, err := g.files.Download(ctx, genai.NewDownloadURIFromGeneratedVideo(generated), nil)
	if err != nil {
		return stream.Media{}, fmt.Errorf("video download failed: %w", err)
	}
	logging.Backend("Video downloaded: %d bytes", len(data))
	return stream.Media{MIMEType: mime, Data: data}, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
