package backend

import (
	"context"
	"iter"
	"time"

	"google.golang.org/genai"
)

// mockModels implements models for testing.
type mockModels struct {
	StreamFunc   func(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error]
	GenerateFunc func(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	VideosFunc   func(ctx context.Context, model string, prompt string, image *genai.Image, config *genai.GenerateVideosConfig) (*genai.GenerateVideosOperation, error)
}

func (m *mockModels) GenerateContentStream(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error] {
	return m.StreamFunc(ctx, model, contents, config)
}

func (m *mockModels) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	return m.GenerateFunc(ctx, model, contents, config)
}

func (m *mockModels) GenerateVideos(ctx context.Context, model string, prompt string, image *genai.Image, config *genai.GenerateVideosConfig) (*genai.GenerateVideosOperation, error) {
	return m.VideosFunc(ctx, model, prompt, image, config)
}

type mockOperations struct {
	polls   int
	GetFunc func(op *genai.GenerateVideosOperation) (*genai.GenerateVideosOperation, error)
}

func (m *mockOperations) GetVideosOperation(_ context.Context, op *genai.GenerateVideosOperation, _ *genai.GetOperationConfig) (*genai.GenerateVideosOperation, error) {
	m.polls++
	return m.GetFunc(op)
}

type mockFiles struct {
	data      []byte
	downloads int
}

func (m *mockFiles) Download(context.Context, genai.DownloadURI, *genai.DownloadFileConfig) ([]byte, error) {
	m.downloads++
	return m.data, nil
}

func chunk(parts ...*genai.Part) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: parts}}},
	}
}

func inline(mime string, data []byte) *genai.Part {
	return &genai.Part{InlineData: &genai.Blob{MIMEType: mime, Data: data}}
}

func noSleep(context.Context, time.Duration) error { return nil }
