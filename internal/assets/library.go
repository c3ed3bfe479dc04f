// Package assets implements the reusable media library.
//
// Assets are independent of stories: the origin story id is provenance only,
// deleting a story never touches assets, and removing an asset never touches
// content that was copied from it.
package assets

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"storyweaver/internal/logging"
	"storyweaver/internal/types"
)

var (
	// ErrNotFound is returned for an unknown asset id.
	ErrNotFound = errors.New("asset not found")
	// ErrUnsupportedType is returned when a MIME type is not image, audio or video.
	ErrUnsupportedType = errors.New("unsupported asset type")
)

// Store is the persistence the library needs.
type Store interface {
	LoadAssets(ctx context.Context) ([]*types.Asset, error)
	PutAsset(ctx context.Context, a *types.Asset) error
	DeleteAsset(ctx context.Context, id string) error
}

// Library owns the in-memory assets and writes them through to the store.
type Library struct {
	store    Store
	notifier types.Notifier
	now      func() time.Time

	mu     sync.Mutex
	assets map[string]*types.Asset
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
		assets:   make(map[string]*types.Asset),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load replaces the in-memory assets with the persisted ones.
// A read failure is logged and leaves the library empty.
func (l *Library) Load(ctx context.Context) int {
	loaded, err := l.store.LoadAssets(ctx)
	if err != nil {
		logging.Get(logging.CategoryAssets).Error("Failed to load assets: %v", err)
		loaded = nil
	}

	l.mu.Lock()
	l.assets = make(map[string]*types.Asset, len(loaded))
	for _, a := range loaded {
		l.assets[a.ID] = a
	}
	l.mu.Unlock()

	logging.Assets("Loaded %d assets", len(loaded))
	return len(loaded)
}

// Add creates and persists an asset.
func (l *Library) Add(ctx context.Context, kind types.AssetKind, name, content, mimeType, originStoryID string) (*types.Asset, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, string(kind))
	}
	a := &types.Asset{
		ID:        types.NewID(),
		Kind:      kind,
		Name:      strings.TrimSpace(name),
		Data:      content,
		MimeType:  mimeType,
		CreatedAt: l.now().UnixMilli(),
		StoryID:   originStoryID,
	}
	if a.Name == "" {
		a.Name = fmt.Sprintf("%s %d", kind, a.CreatedAt)
	}

	l.mu.Lock()
	l.assets[a.ID] = a
	l.mu.Unlock()

	logging.Assets("Added %s asset %s (%q, %d bytes)", kind, a.ID, a.Name, len(content))
	l.persist(ctx, a)
	c := *a
	return &c, nil
}

// AddUpload stores an uploaded file, deriving the kind from its MIME type.
func (l *Library) AddUpload(ctx context.Context, name, mimeType string, data []byte, originStoryID string) (*types.Asset, error) {
	kind, ok := types.AssetKindFromMIME(mimeType)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, mimeType)
	}
	return l.Add(ctx, kind, name, types.DataURL(mimeType, data), mimeType, originStoryID)
}

// Put stores a complete asset as-is. It is used by import.
func (l *Library) Put(ctx context.Context, a *types.Asset) {
	c := *a
	l.mu.Lock()
	l.assets[a.ID] = &c
	l.mu.Unlock()
	l.persist(ctx, &c)
}

// Get returns a copy of one asset.
func (l *Library) Get(id string) (*types.Asset, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.assets[id]
	if !ok {
		return nil, false
	}
	c := *a
	return &c, true
}

// Has reports whether id is a known asset.
func (l *Library) Has(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.assets[id]
	return ok
}

// Remove deletes an asset unconditionally. Nothing else is modified.
func (l *Library) Remove(ctx context.Context, id string) error {
	l.mu.Lock()
	if _, ok := l.assets[id]; !ok {
		l.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(l.assets, id)
	l.mu.Unlock()

	if err := l.store.DeleteAsset(ctx, id); err != nil {
		l.writeFailed("delete asset", err)
	}
	logging.Assets("Removed asset %s", id)
	return nil
}

// List returns all assets in presentation order.
// With a current story, its assets come first; within each group assets are
// ordered by createdAt descending, then id.
func (l *Library) List(currentStoryID string) []*types.Asset {
	out := l.snapshot(func(*types.Asset) bool { return true })
	sort.SliceStable(out, func(i, j int) bool {
		if currentStoryID != "" {
			mi, mj := out[i].StoryID == currentStoryID, out[j].StoryID == currentStoryID
			if mi != mj {
				return mi
			}
		}
		return newerFirst(out[i], out[j])
	})
	return out
}

// ListByOrigin returns only the assets that originated in storyID, newest first.
func (l *Library) ListByOrigin(storyID string) []*types.Asset {
	out := l.snapshot(func(a *types.Asset) bool { return a.StoryID == storyID })
	sort.Slice(out, func(i, j int) bool { return newerFirst(out[i], out[j]) })
	return out
}

func newerFirst(a, b *types.Asset) bool {
	if a.CreatedAt != b.CreatedAt {
		return a.CreatedAt > b.CreatedAt
	}
	return a.ID < b.ID
}

func (l *Library) snapshot(keep func(*types.Asset) bool) []*types.Asset {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*types.Asset, 0, len(l.assets))
	for _, a := range l.assets {
		if keep(a) {
			c := *a
			out = append(out, &c)
		}
	}
	return out
}

func (l *Library) persist(ctx context.Context, a *types.Asset) {
	if err := l.store.PutAsset(ctx, a); err != nil {
		l.writeFailed("save asset", err)
	}
}

func (l *Library) writeFailed(op string, err error) {
	logging.Get(logging.CategoryAssets).Error("Failed to %s: %v", op, err)
	l.notifier.Notify(types.NoticeWarn, fmt.Sprintf("Could not %s; changes are kept in memory only (%v)", op, err))
}
