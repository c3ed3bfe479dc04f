package assets

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storyweaver/internal/story"
	"storyweaver/internal/types"
)

type memStore struct {
	mu      sync.Mutex
	assets  map[string]*types.Asset
	stories map[string]*types.Story

	PutAssetFunc func(ctx context.Context, a *types.Asset) error
}

func newMemStore() *memStore {
	return &memStore{assets: map[string]*types.Asset{}, stories: map[string]*types.Story{}}
}

func (m *memStore) LoadAssets(context.Context) ([]*types.Asset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*types.Asset
	for _, a := range m.assets {
		c := *a
		out = append(out, &c)
	}
	return out, nil
}

func (m *memStore) PutAsset(ctx context.Context, a *types.Asset) error {
	if m.PutAssetFunc != nil {
		return m.PutAssetFunc(ctx, a)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *a
	m.assets[a.ID] = &c
	return nil
}

func (m *memStore) DeleteAsset(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.assets, id)
	return nil
}

func (m *memStore) LoadStories(context.Context) ([]*types.Story, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*types.Story
	for _, st := range m.stories {
		out = append(out, st.Clone())
	}
	return out, nil
}

func (m *memStore) PutStory(_ context.Context, st *types.Story) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stories[st.ID] = st.Clone()
	return nil
}

func (m *memStore) DeleteStory(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.stories, id)
	return nil
}

type countingNotifier struct{ n int }

func (c *countingNotifier) Notify(types.NoticeLevel, string) { c.n++ }

func tickClock() func() time.Time {
	t := time.UnixMilli(1_000)
	return func() time.Time {
		t = t.Add(time.Millisecond)
		return t
	}
}

func TestAddUploadDerivesKind(t *testing.T) {
	lib := NewLibrary(newMemStore(), WithClock(tickClock()))
	ctx := context.Background()

	tests := []struct {
		mime string
		want types.AssetKind
	}{
		{"image/jpeg", types.AssetImage},
		{"audio/mpeg", types.AssetAudio},
		{"video/webm", types.AssetVideo},
	}
	for _, tt := range tests {
		a, err := lib.AddUpload(ctx, "file", tt.mime, []byte("x"), "")
		require.NoError(t, err)
		assert.Equal(t, tt.want, a.Kind)
		assert.Equal(t, types.DataURL(tt.mime, []byte("x")), a.Data)
	}

	_, err := lib.AddUpload(ctx, "notes.pdf", "application/pdf", []byte("x"), "")
	assert.ErrorIs(t, err, ErrUnsupportedType)
	_, err = lib.Add(ctx, "hologram", "x", "", "", "")
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

func TestAddDefaultsName(t *testing.T) {
	lib := NewLibrary(newMemStore(), WithClock(tickClock()))
	a, err := lib.Add(context.Background(), types.AssetImage, "  ", "data:image/png;base64,AA==", "image/png", "")
	require.NoError(t, err)
	assert.Equal(t, "image 1001", a.Name)
}

func TestListOrdering(t *testing.T) {
	lib := NewLibrary(newMemStore(), WithClock(tickClock()))
	ctx := context.Background()

	a1, _ := lib.Add(ctx, types.AssetImage, "a1", "", "image/png", "s1")
	b1, _ := lib.Add(ctx, types.AssetImage, "b1", "", "image/png", "s2")
	a2, _ := lib.Add(ctx, types.AssetAudio, "a2", "", "audio/wav", "s1")
	free, _ := lib.Add(ctx, types.AssetVideo, "free", "", "video/mp4", "")

	ids := func(list []*types.Asset) []string {
		var out []string
		for _, a := range list {
			out = append(out, a.ID)
		}
		return out
	}

	assert.Equal(t, []string{free.ID, a2.ID, b1.ID, a1.ID}, ids(lib.List("")))
	assert.Equal(t, []string{a2.ID, a1.ID, free.ID, b1.ID}, ids(lib.List("s1")))
	assert.Equal(t, []string{a2.ID, a1.ID}, ids(lib.ListByOrigin("s1")))
}

func TestListTiesBrokenByID(t *testing.T) {
	fixed := time.UnixMilli(42)
	lib := NewLibrary(newMemStore(), WithClock(func() time.Time { return fixed }))
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := lib.Add(ctx, types.AssetImage, "same", "", "image/png", "")
		require.NoError(t, err)
	}

	first := lib.List("")
	for i := 0; i < 10; i++ {
		if diff := cmp.Diff(first, lib.List("")); diff != "" {
			t.Fatalf("ordering not consistent (-first +now):\n%s", diff)
		}
	}
	for i := 1; i < len(first); i++ {
		assert.Less(t, first[i-1].ID, first[i].ID)
	}
}

func TestRemoveDoesNotTouchStories(t *testing.T) {
	ms := newMemStore()
	ctx := context.Background()
	stories := story.NewLibrary(ms)
	lib := NewLibrary(ms)

	st := stories.Create(ctx)
	img, err := lib.Add(ctx, types.AssetImage, "cover", "data:image/png;base64,AA==", "image/png", st.ID)
	require.NoError(t, err)
	music, err := lib.Add(ctx, types.AssetAudio, "rain", "data:audio/wav;base64,AA==", "audio/wav", st.ID)
	require.NoError(t, err)
	clip, err := lib.Add(ctx, types.AssetVideo, "clip", "data:video/mp4;base64,AA==", "video/mp4", st.ID)
	require.NoError(t, err)

	for _, a := range []*types.Asset{img, music, clip} {
		_, _, err := Apply(ctx, stories, st.ID, a, ModeApply)
		require.NoError(t, err)
	}
	before, _ := stories.Get(st.ID)

	for _, a := range []*types.Asset{img, music, clip} {
		require.NoError(t, lib.Remove(ctx, a.ID))
	}
	after, _ := stories.Get(st.ID)

	if diff := cmp.Diff(before, after); diff != "" {
		t.Errorf("story changed by asset removal (-before +after):\n%s", diff)
	}
	assert.Empty(t, lib.List(""))
	assert.ErrorIs(t, lib.Remove(ctx, img.ID), ErrNotFound)
}

func TestApplyActions(t *testing.T) {
	ms := newMemStore()
	ctx := context.Background()
	stories := story.NewLibrary(ms)
	st := stories.Create(ctx)

	img := &types.Asset{ID: "i", Kind: types.AssetImage, Data: "data:image/png;base64,AA=="}
	aud := &types.Asset{ID: "a", Kind: types.AssetAudio, Data: "data:audio/wav;base64,AA=="}
	vid := &types.Asset{ID: "v", Kind: types.AssetVideo, Data: "data:video/mp4;base64,AA=="}
	odd := &types.Asset{ID: "x", Kind: "hologram"}

	action, got, err := Apply(ctx, stories, st.ID, img, ModeApply)
	require.NoError(t, err)
	assert.Equal(t, ActionSetTheme, action)
	assert.Equal(t, img.Data, got.ThemeImage)

	action, got, err = Apply(ctx, stories, st.ID, aud, ModeApply)
	require.NoError(t, err)
	assert.Equal(t, ActionSetMusic, action)
	assert.Equal(t, aud.Data, got.BgMusic)

	action, got, err = Apply(ctx, stories, st.ID, vid, ModeApply)
	require.NoError(t, err)
	assert.Equal(t, ActionInsertTurn, action)
	require.Len(t, got.Conversation, 1)
	assert.Equal(t, types.TurnVideo, got.Conversation[0].Kind)

	action, got, err = Apply(ctx, stories, st.ID, img, ModeInsert)
	require.NoError(t, err)
	assert.Equal(t, ActionInsertTurn, action)
	assert.Equal(t, types.TurnImage, got.Conversation[1].Kind)

	action, got, err = Apply(ctx, stories, st.ID, odd, ModeApply)
	require.NoError(t, err)
	assert.Equal(t, ActionNone, action)
	assert.Nil(t, got)

	_, _, err = Apply(ctx, stories, "missing", img, ModeApply)
	assert.ErrorIs(t, err, story.ErrNotFound)
}

func TestWriteFailureNotifies(t *testing.T) {
	ms := newMemStore()
	ms.PutAssetFunc = func(context.Context, *types.Asset) error { return errors.New("quota") }
	n := &countingNotifier{}
	lib := NewLibrary(ms, WithNotifier(n))

	a, err := lib.AddUpload(context.Background(), "x", "image/png", []byte{1}, "")
	require.NoError(t, err)
	assert.True(t, lib.Has(a.ID))
	assert.Equal(t, 1, n.n)
}

func TestLoadAndPut(t *testing.T) {
	ms := newMemStore()
	ctx := context.Background()
	lib := NewLibrary(ms)
	lib.Put(ctx, &types.Asset{ID: "keep", Kind: types.AssetImage, CreatedAt: 3})

	fresh := NewLibrary(ms)
	assert.Equal(t, 1, fresh.Load(ctx))
	got, ok := fresh.Get("keep")
	require.True(t, ok)
	assert.Equal(t, int64(3), got.CreatedAt)
}

func TestActionString(t *testing.T) {
	assert.Equal(t, "set-theme", ActionSetTheme.String())
	assert.Equal(t, "Action(7)", Action(7).String())
}
