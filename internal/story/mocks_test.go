package story

import (
	"context"
	"errors"
	"sync"

	"storyweaver/internal/types"
)

var errStoreDown = errors.New("store unavailable")

// memStore is an in-memory Store with injectable failures.
type memStore struct {
	mu      sync.Mutex
	records map[string]*types.Story
	puts    int

	LoadFunc   func(ctx context.Context) ([]*types.Story, error)
	PutFunc    func(ctx context.Context, st *types.Story) error
	DeleteFunc func(ctx context.Context, id string) error
}

func newMemStore() *memStore {
	return &memStore{records: make(map[string]*types.Story)}
}

func (m *memStore) LoadStories(ctx context.Context) ([]*types.Story, error) {
	if m.LoadFunc != nil {
		return m.LoadFunc(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*types.Story, 0, len(m.records))
	for _, st := range m.records {
		out = append(out, st.Clone())
	}
	return out, nil
}

func (m *memStore) PutStory(ctx context.Context, st *types.Story) error {
	if m.PutFunc != nil {
		return m.PutFunc(ctx, st)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts++
	m.records[st.ID] = st.Clone()
	return nil
}

func (m *memStore) DeleteStory(ctx context.Context, id string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, id)
	return nil
}

func (m *memStore) get(id string) (*types.Story, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.records[id]
	return st, ok
}

type notice struct {
	level   types.NoticeLevel
	message string
}

type recordingNotifier struct {
	mu      sync.Mutex
	notices []notice
}

func (r *recordingNotifier) Notify(level types.NoticeLevel, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, notice{level, message})
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.notices)
}
