// Package story implements the story aggregate: ordered turns, presentation
// metadata, auto-titling and persistence through an injected store.
//
// Every mutating call refreshes updatedAt, re-derives the auto title and
// persists the whole story. Persistence failures are logged and surfaced
// through the Notifier; the in-memory state proceeds regardless.
package story

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"storyweaver/internal/logging"
	"storyweaver/internal/stream"
	"storyweaver/internal/types"
)

var (
	// ErrNotFound is returned when a story or turn id is unknown.
	ErrNotFound = errors.New("not found")
	// ErrNotEditable is returned when editing the content of a media turn.
	ErrNotEditable = errors.New("media turns cannot be edited; delete or regenerate instead")
)

// Store is the persistence the library needs.
type Store interface {
	LoadStories(ctx context.Context) ([]*types.Story, error)
	PutStory(ctx context.Context, st *types.Story) error
	DeleteStory(ctx context.Context, id string) error
}

// ChangeKind classifies a change notification.
type ChangeKind int

const (
	ChangeCreated ChangeKind = iota
	ChangeUpdated
	// ChangeStreamed reports an in-memory streaming update that is not yet persisted.
	ChangeStreamed
	ChangeDeleted
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeCreated:
		return "created"
	case ChangeUpdated:
		return "updated"
	case ChangeStreamed:
		return "streamed"
	case ChangeDeleted:
		return "deleted"
	}
	return fmt.Sprintf("ChangeKind(%d)", int(k))
}

// Change is delivered to subscribers after every mutation.
// Story is an immutable snapshot; it is nil for ChangeDeleted.
type Change struct {
	Kind    ChangeKind
	StoryID string
	Story   *types.Story
}

// Metadata is a partial update of presentation fields. Nil fields are left unchanged.
type Metadata struct {
	ThemeImage *string
	FontFamily *string
	BgMusic    *string
}

// Library owns the in-memory stories and writes them through to the store.
type Library struct {
	store    Store
	notifier types.Notifier
	now      func() time.Time

	mu      sync.Mutex
	stories map[string]*types.Story

	subMu  sync.Mutex
	nextID int
	subs   map[int]func(Change)
}

// Option configures a Library.
type Option func(*Library)

// WithNotifier sets the sink for non-fatal persistence failures.
func WithNotifier(n types.Notifier) Option {
	return func(l *Library) { l.notifier = n }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Library) { l.now = now }
}

// NewLibrary creates an empty library over store.
func NewLibrary(store Store, opts ...Option) *Library {
	l := &Library{
		store:    store,
		notifier: types.NopNotifier{},
		now:      time.Now,
		stories:  make(map[string]*types.Story),
		subs:     make(map[int]func(Change)),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load replaces the in-memory stories with the persisted ones.
// A read failure is logged and leaves the library empty.
func (l *Library) Load(ctx context.Context) int {
	timer := logging.StartTimer(logging.CategoryStory, "Load")
	defer timer.Stop()

	loaded, err := l.store.LoadStories(ctx)
	if err != nil {
		logging.Get(logging.CategoryStory).Error("Failed to load stories: %v", err)
		loaded = nil
	}

	l.mu.Lock()
	l.stories = make(map[string]*types.Story, len(loaded))
	for _, st := range loaded {
		if st.Conversation == nil {
			st.Conversation = []types.Turn{}
		}
		l.stories[st.ID] = st
	}
	l.mu.Unlock()

	logging.Story("Loaded %d stories", len(loaded))
	return len(loaded)
}

// Create adds and persists a new empty story.
func (l *Library) Create(ctx context.Context) *types.Story {
	st := types.NewStory(l.now())

	l.mu.Lock()
	l.stories[st.ID] = st
	snap := st.Clone()
	l.mu.Unlock()

	logging.Story("Created story %s", st.ID)
	l.persist(ctx, snap)
	l.publish(Change{Kind: ChangeCreated, StoryID: st.ID, Story: snap})
	return snap.Clone()
}

// Get returns a snapshot of one story.
func (l *Library) Get(id string) (*types.Story, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	st, ok := l.stories[id]
	if !ok {
		return nil, false
	}
	return st.Clone(), true
}

// Has reports whether id is a known story.
func (l *Library) Has(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.stories[id]
	return ok
}

// List returns snapshots of all stories, most recently updated first.
func (l *Library) List() []*types.Story {
	l.mu.Lock()
	out := make([]*types.Story, 0, len(l.stories))
	for _, st := range l.stories {
		out = append(out, st.Clone())
	}
	l.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt != out[j].UpdatedAt {
			return out[i].UpdatedAt > out[j].UpdatedAt
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Latest returns the most recently updated story.
func (l *Library) Latest() (*types.Story, bool) {
	list := l.List()
	if len(list) == 0 {
		return nil, false
	}
	return list[0], true
}

// AppendTurn adds a turn at the end of the conversation.
func (l *Library) AppendTurn(ctx context.Context, id string, turn types.Turn) (*types.Story, error) {
	if turn.ID == "" {
		turn.ID = types.NewID()
	}
	return l.mutate(ctx, id, func(st *types.Story) error {
		st.Conversation = append(st.Conversation, turn)
		return nil
	})
}

// EditTurn replaces the content of a text turn.
func (l *Library) EditTurn(ctx context.Context, id, turnID, content string) (*types.Story, error) {
	return l.mutate(ctx, id, func(st *types.Story) error {
		i := st.TurnIndex(turnID)
		if i < 0 {
			return fmt.Errorf("turn %s: %w", turnID, ErrNotFound)
		}
		if st.Conversation[i].Kind != types.TurnText {
			return fmt.Errorf("turn %s: %w", turnID, ErrNotEditable)
		}
		st.Conversation[i].Content = content
		return nil
	})
}

// ReplaceTurnContent replaces a turn's content regardless of kind.
// It backs regeneration, which produces fresh content for an existing turn.
func (l *Library) ReplaceTurnContent(ctx context.Context, id, turnID, content string) (*types.Story, error) {
	return l.mutate(ctx, id, func(st *types.Story) error {
		i := st.TurnIndex(turnID)
		if i < 0 {
			return fmt.Errorf("turn %s: %w", turnID, ErrNotFound)
		}
		st.Conversation[i].Content = content
		return nil
	})
}

// DeleteTurn removes a turn.
func (l *Library) DeleteTurn(ctx context.Context, id, turnID string) (*types.Story, error) {
	return l.mutate(ctx, id, func(st *types.Story) error {
		i := st.TurnIndex(turnID)
		if i < 0 {
			return fmt.Errorf("turn %s: %w", turnID, ErrNotFound)
		}
		st.Conversation = append(st.Conversation[:i], st.Conversation[i+1:]...)
		return nil
	})
}

// SetMetadata applies a partial presentation update.
func (l *Library) SetMetadata(ctx context.Context, id string, md Metadata) (*types.Story, error) {
	return l.mutate(ctx, id, func(st *types.Story) error {
		if md.ThemeImage != nil {
			st.ThemeImage = *md.ThemeImage
		}
		if md.FontFamily != nil {
			st.FontFamily = *md.FontFamily
		}
		if md.BgMusic != nil {
			st.BgMusic = *md.BgMusic
		}
		return nil
	})
}

// SetTitle sets an explicit title. A custom title is never auto-replaced.
func (l *Library) SetTitle(ctx context.Context, id, title string) (*types.Story, error) {
	return l.mutate(ctx, id, func(st *types.Story) error {
		st.Title = title
		return nil
	})
}

// AppendScript appends text to the story's project script, separated by a blank line.
func (l *Library) AppendScript(ctx context.Context, id, text string) (*types.Story, error) {
	return l.mutate(ctx, id, func(st *types.Story) error {
		if st.Script != "" {
			st.Script += "\n\n"
		}
		st.Script += text
		return nil
	})
}

// Save refreshes, re-titles and persists a story without changing its content.
// It closes a streaming session started with ApplyEvent.
func (l *Library) Save(ctx context.Context, id string) (*types.Story, error) {
	return l.mutate(ctx, id, func(*types.Story) error { return nil })
}

// ApplyEvent applies one reducer event in memory only.
// Subscribers observe the change; persistence happens on Save.
func (l *Library) ApplyEvent(id string, ev stream.Event) error {
	l.mu.Lock()
	st, ok := l.stories[id]
	if !ok {
		l.mu.Unlock()
		return fmt.Errorf("story %s: %w", id, ErrNotFound)
	}
	switch ev.Kind {
	case stream.EventAppend:
		st.Conversation = append(st.Conversation, ev.Turn)
	case stream.EventUpdate:
		i := st.TurnIndex(ev.Turn.ID)
		if i < 0 {
			l.mu.Unlock()
			return fmt.Errorf("turn %s: %w", ev.Turn.ID, ErrNotFound)
		}
		st.Conversation[i].Content = ev.Turn.Content
	}
	l.touch(st)
	snap := st.Clone()
	l.mu.Unlock()

	logging.StoryDebug("Applied %s event to %s (turn %s)", ev.Kind, id, ev.Turn.ID)
	l.publish(Change{Kind: ChangeStreamed, StoryID: id, Story: snap})
	return nil
}

// Put stores a complete story as-is, replacing any story with the same id.
// It is used by import and keeps the record's own timestamps.
func (l *Library) Put(ctx context.Context, st *types.Story) {
	snap := st.Clone()
	l.mu.Lock()
	_, existed := l.stories[st.ID]
	l.stories[st.ID] = snap.Clone()
	l.mu.Unlock()

	l.persist(ctx, snap)
	kind := ChangeCreated
	if existed {
		kind = ChangeUpdated
	}
	l.publish(Change{Kind: kind, StoryID: st.ID, Story: snap})
}

// Delete removes a story from memory and the store.
func (l *Library) Delete(ctx context.Context, id string) error {
	l.mu.Lock()
	if _, ok := l.stories[id]; !ok {
		l.mu.Unlock()
		return fmt.Errorf("story %s: %w", id, ErrNotFound)
	}
	delete(l.stories, id)
	l.mu.Unlock()

	if err := l.store.DeleteStory(ctx, id); err != nil {
		l.writeFailed("delete story", err)
	}
	logging.Story("Deleted story %s", id)
	l.publish(Change{Kind: ChangeDeleted, StoryID: id})
	return nil
}

// Subscribe registers fn for change notifications and returns its cancel func.
// fn runs synchronously on the mutating goroutine.
func (l *Library) Subscribe(fn func(Change)) func() {
	l.subMu.Lock()
	defer l.subMu.Unlock()
	id := l.nextID
	l.nextID++
	l.subs[id] = fn
	return func() {
		l.subMu.Lock()
		delete(l.subs, id)
		l.subMu.Unlock()
	}
}

func (l *Library) mutate(ctx context.Context, id string, fn func(*types.Story) error) (*types.Story, error) {
	l.mu.Lock()
	st, ok := l.stories[id]
	if !ok {
		l.mu.Unlock()
		return nil, fmt.Errorf("story %s: %w", id, ErrNotFound)
	}
	work := st.Clone()
	if err := fn(work); err != nil {
		l.mu.Unlock()
		return nil, err
	}
	l.touch(work)
	work.Title = AutoTitle(work)
	l.stories[id] = work
	snap := work.Clone()
	l.mu.Unlock()

	l.persist(ctx, snap)
	l.publish(Change{Kind: ChangeUpdated, StoryID: id, Story: snap})
	return snap.Clone(), nil
}

// touch advances updatedAt; it never moves backwards even if the clock does.
func (l *Library) touch(st *types.Story) {
	ms := l.now().UnixMilli()
	if ms <= st.UpdatedAt {
		ms = st.UpdatedAt + 1
	}
	st.UpdatedAt = ms
}

func (l *Library) persist(ctx context.Context, st *types.Story) {
	if err := l.store.PutStory(ctx, st); err != nil {
		l.writeFailed("save story", err)
	}
}

func (l *Library) writeFailed(op string, err error) {
	logging.Get(logging.CategoryStory).Error("Failed to %s: %v", op, err)
	l.notifier.Notify(types.NoticeWarn, fmt.Sprintf("Could not %s; changes are kept in memory only (%v)", op, err))
}

func (l *Library) publish(c Change) {
	l.subMu.Lock()
	fns := make([]func(Change), 0, len(l.subs))
	for _, fn := range l.subs {
		fns = append(fns, fn)
	}
	l.subMu.Unlock()

	for _, fn := range fns {
		fn(c)
	}
}
