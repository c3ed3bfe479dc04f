package app

import (
	"context"
	"iter"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"storyweaver/internal/audio"
	"storyweaver/internal/backend"
	"storyweaver/internal/store"
	"storyweaver/internal/stream"
	"storyweaver/internal/types"
)

// mockBackend implements Backend with overridable behaviour.
type mockBackend struct {
	mu       sync.Mutex
	requests []backend.Request
	spoken   []string

	StreamFunc func(ctx context.Context, req backend.Request) iter.Seq2[stream.Fragment, error]
	SpeakFunc  func(ctx context.Context, text, voice string) ([]byte, error)
	VideoFunc  func(ctx context.Context, req backend.VideoRequest) (stream.Media, error)
}

func (m *mockBackend) Stream(ctx context.Context, req backend.Request) iter.Seq2[stream.Fragment, error] {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	if m.StreamFunc != nil {
		return m.StreamFunc(ctx, req)
	}
	return stream.Slice(stream.TextFragment("Hello"))
}

func (m *mockBackend) Speak(ctx context.Context, text, voice string) ([]byte, error) {
	m.mu.Lock()
	m.spoken = append(m.spoken, text)
	m.mu.Unlock()
	if m.SpeakFunc != nil {
		return m.SpeakFunc(ctx, text, voice)
	}
	return []byte{0, 0, 1, 0}, nil
}

func (m *mockBackend) GenerateVideo(ctx context.Context, req backend.VideoRequest) (stream.Media, error) {
	if m.VideoFunc != nil {
		return m.VideoFunc(ctx, req)
	}
	return stream.Media{MIMEType: "video/mp4", Data: []byte("mp4")}, nil
}

func (m *mockBackend) lastRequest() backend.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[len(m.requests)-1]
}

// recordingSink is an audio sink whose playbacks run until stopped.
type recordingSink struct {
	mu    sync.Mutex
	plays []recordedPlay
}

type recordedPlay struct {
	line audio.Line
	clip audio.Clip
	pb   *recordedPlayback
}

type recordedPlayback struct {
	once sync.Once
	done chan struct{}
}

func (p *recordedPlayback) Stop() error {
	p.once.Do(func() { close(p.done) })
	return nil
}

func (p *recordedPlayback) Done() <-chan struct{} { return p.done }

func (s *recordingSink) Play(_ context.Context, line audio.Line, clip audio.Clip, _ float64) (audio.Playback, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pb := &recordedPlayback{done: make(chan struct{})}
	s.plays = append(s.plays, recordedPlay{line: line, clip: clip, pb: pb})
	return pb, nil
}

func (s *recordingSink) onLine(line audio.Line) []recordedPlay {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []recordedPlay
	for _, p := range s.plays {
		if p.line == line {
			out = append(out, p)
		}
	}
	return out
}

type notice struct {
	level types.NoticeLevel
	msg   string
}

type recordingNotifier struct {
	mu      sync.Mutex
	notices []notice
}

func (n *recordingNotifier) Notify(level types.NoticeLevel, msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice{level, msg})
}

func (n *recordingNotifier) levels() []types.NoticeLevel {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []types.NoticeLevel
	for _, x := range n.notices {
		out = append(out, x.level)
	}
	return out
}

// testClock advances one second per call and is safe for concurrent use.
func testClock() func() time.Time {
	var mu sync.Mutex
	t := time.UnixMilli(1_700_000_000_000)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

type harness struct {
	app      *App
	store    *store.LocalStore
	backend  *mockBackend
	sink     *recordingSink
	notifier *recordingNotifier
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	path := t.TempDir() + "/weaver.db"
	return openHarness(t, path)
}

func openHarness(t *testing.T, path string, opts ...Option) *harness {
	t.Helper()
	s, err := store.NewLocalStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	h := &harness{
		store:    s,
		backend:  &mockBackend{},
		sink:     &recordingSink{},
		notifier: &recordingNotifier{},
	}
	h.app = New(s, append([]Option{
		WithBackend(h.backend),
		WithNotifier(h.notifier),
		WithMixer(audio.NewMixer(h.sink, 1, 0.5)),
		WithClock(testClock()),
	}, opts...)...)
	t.Cleanup(h.app.Close)
	require.NoError(t, h.app.Start(context.Background()))
	return h
}
